// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"vvimage/internal/descriptor"
	"vvimage/pkg/types"
)

// StampDir holds one <name>.json per published artifact, recording what its
// target was resolved from.
const StampDir types.ImagePath = "/var/lib/vvimage/artifacts"

type stamp struct {
	Name    string             `json:"name"`
	Kind    descriptor.Kind    `json:"kind"`
	Version string             `json:"version"`
	Variant descriptor.Variant `json:"variant"`
	Target  types.ImagePath    `json:"target"`
	Digest  string             `json:"digest"`
	Files   []string           `json:"files"`
}

func (s stamp) matches(key descriptor.CacheKey, target types.ImagePath) bool {
	return s.Name == key.Name && s.Version == key.Version && s.Variant == key.Variant && s.Target == target
}

func readStamp(path string) (stamp, error) {
	var s stamp
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("decoding %s: %w", path, err)
	}
	return s, nil
}

// writeStamp replaces path atomically.
func writeStamp(path string, s stamp) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".stamp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func removeStamp(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// treeDigest hashes the relative path, type, mode and content of every
// entry under dir, in lexical order. It also returns the
// relative paths of all non-directory entries.
func treeDigest(dir string) (digest string, files []string, err error) {
	h := sha256.New()
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)
		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			fmt.Fprintf(h, "d %s\n", rel)
			return nil
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(h, "l %s %s\n", rel, link)
		default:
			fmt.Fprintf(h, "f %s %o %d\n", rel, info.Mode().Perm(), info.Size())
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			_, err = io.Copy(h, f)
			_ = f.Close()
			if err != nil {
				return err
			}
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return hex.EncodeToString(h.Sum(nil)), files, nil
}
