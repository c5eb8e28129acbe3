// SPDX-License-Identifier: MPL-2.0

package ldpath

import (
	"debug/elf"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// lookupCacheSize bounds the soname lookups remembered during one Verify.
const lookupCacheSize = 512

// ErrUnresolved is the sentinel error wrapped by UnresolvedError.
var ErrUnresolved = errors.New("unresolved shared library dependency")

// DefaultSystemDirs are the loader's trusted directories searched after the
// configured path.
var DefaultSystemDirs = []string{
	"/lib", "/usr/lib", "/lib64", "/usr/lib64",
	"/lib/x86_64-linux-gnu", "/usr/lib/x86_64-linux-gnu",
	"/lib/aarch64-linux-gnu", "/usr/lib/aarch64-linux-gnu",
	"/lib/arm-linux-gnueabihf", "/usr/lib/arm-linux-gnueabihf",
	"/usr/local/lib",
}

type (
	// NeededFunc returns the DT_NEEDED entries of the shared object at path.
	NeededFunc func(path string) ([]string, error)

	// Verifier checks that every shared object in a SearchPath can be loaded.
	Verifier struct {
		// Root prefixes the search path directories (an assembled rootfs).
		Root string
		// SystemRoot prefixes SystemDirs; defaults to Root.
		SystemRoot string
		// SystemDirs defaults to DefaultSystemDirs.
		SystemDirs []string
		// Needed defaults to reading ELF dynamic sections.
		Needed NeededFunc

		stat func(string) (fs.FileInfo, error)
	}

	// UnresolvedError lists DT_NEEDED entries no directory provides.
	UnresolvedError struct {
		// Missing maps a shared object to the libraries it cannot find.
		Missing map[string][]string
	}
)

// Verify checks the DT_NEEDED closure of every shared object in sp.
func (v Verifier) Verify(sp SearchPath) error {
	needed := v.Needed
	if needed == nil {
		needed = ELFNeeded
	}
	sysRoot := v.SystemRoot
	if sysRoot == "" {
		sysRoot = v.Root
	}
	sysDirs := v.SystemDirs
	if sysDirs == nil {
		sysDirs = DefaultSystemDirs
	}

	stat := v.stat
	if stat == nil {
		stat = os.Stat
	}

	var dirs []string
	for _, d := range sp.dirs {
		dirs = append(dirs, filepath.Join(v.Root, d))
	}
	for _, d := range sysDirs {
		dirs = append(dirs, filepath.Join(sysRoot, d))
	}
	// Most objects need the same few system libraries; each soname is
	// searched for once.
	found, err := lru.New[string, bool](lookupCacheSize)
	if err != nil {
		return err
	}
	provided := func(lib string) bool {
		if ok, hit := found.Get(lib); hit {
			return ok
		}
		ok := slices.ContainsFunc(dirs, func(d string) bool {
			_, err := stat(filepath.Join(d, lib))
			return err == nil
		})
		found.Add(lib, ok)
		return ok
	}

	missing := map[string][]string{}
	for _, d := range sp.dirs {
		dir := filepath.Join(v.Root, d)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("reading library dir %s: %w", d, err)
		}
		for _, e := range entries {
			if !isSharedObject(e.Name()) {
				continue
			}
			obj := filepath.Join(dir, e.Name())
			key := filepath.Join(d, e.Name())
			if e.Type()&fs.ModeSymlink != 0 {
				if _, err := os.Stat(obj); err != nil {
					missing[key] = append(missing[key], "<dangling symlink>")
				}
				continue
			}
			if !e.Type().IsRegular() {
				continue
			}
			libs, err := needed(obj)
			if err != nil {
				return fmt.Errorf("reading dependencies of %s: %w", filepath.Join(d, e.Name()), err)
			}
			for _, lib := range libs {
				if !provided(lib) {
					missing[key] = append(missing[key], lib)
				}
			}
		}
	}

	if len(missing) > 0 {
		return &UnresolvedError{Missing: missing}
	}
	return nil
}

// ELFNeeded reads the DT_NEEDED entries of an ELF file.
func ELFNeeded(path string) ([]string, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }() // read-only handle
	return f.ImportedLibraries()
}

// isSharedObject matches "libx.so" and versioned "libx.so.1.2".
func isSharedObject(name string) bool {
	return strings.HasSuffix(name, ".so") || strings.Contains(name, ".so.")
}

// Error implements the error interface for UnresolvedError.
func (e *UnresolvedError) Error() string {
	objs := slices.Sorted(maps.Keys(e.Missing))
	parts := make([]string, 0, len(objs))
	for _, obj := range objs {
		parts = append(parts, fmt.Sprintf("%s needs %s", obj, strings.Join(e.Missing[obj], ", ")))
	}
	return "unresolved shared library dependencies: " + strings.Join(parts, "; ")
}

// Unwrap returns ErrUnresolved for errors.Is() compatibility.
func (e *UnresolvedError) Unwrap() error { return ErrUnresolved }
