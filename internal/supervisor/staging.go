// SPDX-License-Identifier: MPL-2.0

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Staged describes the outcome of a staging run.
type Staged struct {
	Identity *Identity
	// HomeCreated is true when the home directory did not exist before.
	HomeCreated bool
	// UserDict is the user dictionary path inside the container, or ""
	// when no default was available.
	UserDict string
	// DictCopied is true when the default dictionary was copied this run.
	DictCopied bool
	// LoaderRefreshed is true when ldconfig ran.
	LoaderRefreshed bool
}

// Stage prepares the runtime user's home directory. It is idempotent: an
// existing user dictionary is never overwritten and ownership is reapplied.
func (s *Supervisor) Stage(ctx context.Context) (*Staged, error) {
	id, err := LookupIdentity(s.root, s.cfg.User)
	if err != nil {
		return nil, &StagingError{Step: "identity", Err: err}
	}
	st := &Staged{Identity: id}
	logger := s.logger.With("user", id.Name, "uid", id.UID, "gid", id.GID)

	home := s.hostPath(id.Home)
	if _, err := os.Stat(home); errors.Is(err, fs.ErrNotExist) {
		st.HomeCreated = true
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return st, &StagingError{Step: "home", Path: id.Home, Err: err}
	}

	if s.cfg.UserDictPath != "" {
		copied, err := s.stageUserDict(filepath.Join(home, s.cfg.UserDictPath))
		if err != nil {
			return st, &StagingError{Step: "user dictionary", Path: filepath.Join(id.Home, s.cfg.UserDictPath), Err: err}
		}
		st.DictCopied = copied
		if _, err := os.Stat(filepath.Join(home, s.cfg.UserDictPath)); err == nil {
			st.UserDict = filepath.Join(id.Home, s.cfg.UserDictPath)
		}
	}

	if err := s.chownTree(home, id.UID, id.GID); err != nil {
		return st, &StagingError{Step: "ownership", Path: id.Home, Err: err}
	}

	refreshed, err := s.refreshLoaderCache(ctx)
	if err != nil {
		return st, &StagingError{Step: "loader cache", Path: s.cfg.LdconfigPath, Err: err}
	}
	st.LoaderRefreshed = refreshed

	logger.Info("staged",
		"home", id.Home,
		"home_created", st.HomeCreated,
		"user_dict", st.UserDict,
		"dict_copied", st.DictCopied,
		"ldconfig", st.LoaderRefreshed)
	return st, nil
}

// stageUserDict copies the default user dictionary to dst unless dst already
// exists or there is no default. The copy is written to a temporary file
// beside dst and linked into place, which fails rather than replacing a file
// created concurrently.
func (s *Supervisor) stageUserDict(dst string) (bool, error) {
	if _, err := os.Lstat(dst); err == nil {
		s.logger.Debug("user dictionary present, keeping it", "path", dst)
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}

	src := s.hostPath(s.cfg.DefaultUserDict)
	in, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("no default user dictionary in the image, the engine starts without one", "path", s.cfg.DefaultUserDict)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".user.dic-*")
	if err != nil {
		return false, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return false, err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}

	if err := os.Link(tmp.Name(), dst); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// chownTree changes the owner of home and everything below it without
// following symlinks.
func (s *Supervisor) chownTree(home string, uid, gid int) error {
	return filepath.WalkDir(home, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := s.chown(path, uid, gid); err != nil {
			return fmt.Errorf("chown %s: %w", path, err)
		}
		return nil
	})
}

// refreshLoaderCache runs ldconfig when enabled and privileged.
func (s *Supervisor) refreshLoaderCache(ctx context.Context) (bool, error) {
	if !s.cfg.Ldconfig {
		return false, nil
	}
	if s.geteuid() != 0 {
		s.logger.Debug("not running as root, skipping ldconfig")
		return false, nil
	}
	cmd := s.execCommand(ctx, s.cfg.LdconfigPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return false, fmt.Errorf("%w: %s", err, msg)
		}
		return false, err
	}
	return true, nil
}

// hostPath maps a container path onto the supervisor's root.
func (s *Supervisor) hostPath(p string) string {
	if s.root == "" || s.root == "/" {
		return p
	}
	return filepath.Join(s.root, p)
}
