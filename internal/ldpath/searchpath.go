// SPDX-License-Identifier: MPL-2.0

package ldpath

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// EnvVar is the loader variable set for child processes that must load
// freshly resolved libraries before the loader cache exists.
const EnvVar = "LD_LIBRARY_PATH"

// ErrRelativeDir is returned when a non-absolute directory is added.
var ErrRelativeDir = errors.New("search path entries must be absolute")

// SearchPath is an ordered set of absolute library directories. The zero
// value is an empty path ready to use.
type SearchPath struct {
	dirs []string
}

// New builds a SearchPath from dirs, dropping duplicates after the first.
func New(dirs ...string) (SearchPath, error) {
	var sp SearchPath
	for _, d := range dirs {
		next, err := sp.Add(d)
		if err != nil {
			return SearchPath{}, err
		}
		sp = next
	}
	return sp, nil
}

// MustNew is New for static inputs; it panics on a relative directory.
func MustNew(dirs ...string) SearchPath {
	sp, err := New(dirs...)
	if err != nil {
		panic(err)
	}
	return sp
}

// Add returns a copy of sp with dir appended unless already present.
func (sp SearchPath) Add(dir string) (SearchPath, error) {
	if !path.IsAbs(dir) {
		return sp, fmt.Errorf("%w: %q", ErrRelativeDir, dir)
	}
	clean := path.Clean(dir)
	if slices.Contains(sp.dirs, clean) {
		return sp, nil
	}
	return SearchPath{dirs: append(slices.Clone(sp.dirs), clean)}, nil
}

// Under returns sp with every directory prefixed by root, for use on a host
// where the image filesystem is assembled below root.
func (sp SearchPath) Under(root string) SearchPath {
	if root == "" || root == "/" {
		return sp
	}
	out := SearchPath{dirs: make([]string, len(sp.dirs))}
	for i, d := range sp.dirs {
		out.dirs[i] = path.Join(root, d)
	}
	return out
}

// Merge returns sp followed by the entries of other not already in sp.
func (sp SearchPath) Merge(other SearchPath) SearchPath {
	out := SearchPath{dirs: slices.Clone(sp.dirs)}
	for _, d := range other.dirs {
		if !slices.Contains(out.dirs, d) {
			out.dirs = append(out.dirs, d)
		}
	}
	return out
}

// Dirs returns a copy of the directories in order.
func (sp SearchPath) Dirs() []string { return slices.Clone(sp.dirs) }

// Len returns the number of directories.
func (sp SearchPath) Len() int { return len(sp.dirs) }

// String renders the path in LD_LIBRARY_PATH form.
func (sp SearchPath) String() string { return strings.Join(sp.dirs, ":") }

// Render returns the content of an ld.so.conf.d file listing the directories.
func (sp SearchPath) Render() string {
	var b strings.Builder
	b.WriteString("# generated by vvimage; one library directory per line\n")
	for _, d := range sp.dirs {
		b.WriteString(d)
		b.WriteByte('\n')
	}
	return b.String()
}

// Environ returns a copy of base with EnvVar set to the search path followed
// by any value base already had. base itself is not modified.
func (sp SearchPath) Environ(base []string) []string {
	out := make([]string, 0, len(base)+1)
	existing := ""
	for _, kv := range base {
		if v, ok := strings.CutPrefix(kv, EnvVar+"="); ok {
			existing = v
			continue
		}
		out = append(out, kv)
	}
	value := sp.String()
	if existing != "" {
		if value != "" {
			value += ":"
		}
		value += existing
	}
	if value == "" {
		return out
	}
	return append(out, EnvVar+"="+value)
}

// WriteConf atomically writes Render() to file, creating parent directories.
func (sp SearchPath) WriteConf(file string) error {
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("creating loader config dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(file), ".ldconf-*")
	if err != nil {
		return fmt.Errorf("creating loader config: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }() // no-op after a successful rename

	if _, err := tmp.WriteString(sp.Render()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing loader config: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), file)
}

// ParseConf reads back a file written by WriteConf. Comment and blank lines
// are ignored.
func ParseConf(file string) (SearchPath, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return SearchPath{}, err
	}
	var dirs []string
	for line := range strings.SplitSeq(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		dirs = append(dirs, line)
	}
	return New(dirs...)
}
