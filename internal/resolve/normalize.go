// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/mod/semver"

	"vvimage/internal/descriptor"
)

// coreExtras are copied next to libcore.so when the release ships them.
var coreExtras = []string{"core.h", "metas.json"}

// dictionaryRequired are the compiled index files the text analyser loads.
var dictionaryRequired = []string{"sys.dic", "matrix.bin", "char.bin", "unk.dic"}

// tree indexes an extracted release by base name.
type tree struct {
	root string
	// files maps a base name to the paths of regular files with that name,
	// shallowest first.
	files map[string][]string
	// links maps a base name to the paths of symlinks with that name.
	links map[string][]string
}

func scanTree(root string) (*tree, error) {
	t := &tree{root: root, files: map[string][]string{}, links: map[string][]string{}}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		switch {
		case d.Type().IsRegular():
			t.files[d.Name()] = append(t.files[d.Name()], path)
		case d.Type()&fs.ModeSymlink != 0:
			t.links[d.Name()] = append(t.links[d.Name()], path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, paths := range t.files {
		slices.SortStableFunc(paths, byDepth)
	}
	return t, nil
}

func byDepth(a, b string) int {
	return strings.Count(a, string(filepath.Separator)) - strings.Count(b, string(filepath.Separator))
}

// normalize dispatches to the per-kind layout rule.
func normalize(d descriptor.Descriptor, spec descriptor.VariantSpec, extracted, out string) error {
	t, err := scanTree(extracted)
	if err != nil {
		return newError(KindArchive, d.Name, err)
	}
	switch d.Kind {
	case descriptor.KindCore:
		return normalizeCore(d, spec, t, out)
	case descriptor.KindRuntime:
		return normalizeRuntime(d, t, out)
	case descriptor.KindDictionary:
		return normalizeDictionary(d, t, out)
	}
	return newError(KindDescriptor, d.Name, d.Kind.Validate())
}

// selectCore applies the variant's candidate order: the first candidate
// present in the tree wins, and it must be present exactly once.
func selectCore(name string, spec descriptor.VariantSpec, t *tree) (string, error) {
	for _, candidate := range spec.CoreCandidates {
		paths := t.files[candidate]
		switch len(paths) {
		case 0:
			continue
		case 1:
			return paths[0], nil
		default:
			rels := make([]string, 0, len(paths))
			for _, p := range paths {
				rel, _ := filepath.Rel(t.root, p)
				rels = append(rels, filepath.ToSlash(rel))
			}
			return "", layoutErrorf(name, "%d files match core library name %s for variant %s: %s",
				len(paths), candidate, spec.Variant, strings.Join(rels, ", "))
		}
	}
	return "", layoutErrorf(name, "no core library for variant %s (looked for %s)",
		spec.Variant, strings.Join(spec.CoreCandidates, ", "))
}

func normalizeCore(d descriptor.Descriptor, spec descriptor.VariantSpec, t *tree, out string) error {
	lib, err := selectCore(d.Name, spec, t)
	if err != nil {
		return err
	}
	if err := copyFile(lib, filepath.Join(out, descriptor.CanonicalCoreLibrary), 0o755); err != nil {
		return newError(KindPublish, d.Name, err)
	}
	for _, extra := range coreExtras {
		if paths := t.files[extra]; len(paths) > 0 {
			if err := copyFile(paths[0], filepath.Join(out, extra), 0o644); err != nil {
				return newError(KindPublish, d.Name, err)
			}
		}
	}
	return nil
}

// normalizeRuntime writes lib/libonnxruntime.so.<version> and the
// unversioned symlink, plus the .so.<major> symlink and provider libraries
// when the release ships them.
func normalizeRuntime(d descriptor.Descriptor, t *tree, out string) error {
	canonical, err := descriptor.CanonicalVersion(d.Version)
	if err != nil {
		return newError(KindVersion, d.Name, err)
	}
	version := strings.TrimPrefix(canonical, "v")
	stem := descriptor.RuntimeLibraryStem
	versioned := stem + "." + version

	src := first(t.files[versioned])
	if src == "" {
		// some archives dereference links and ship only the stem
		src = first(t.files[stem])
	}
	if src == "" {
		return layoutErrorf(d.Name, "release has no %s", versioned)
	}

	libDir := filepath.Join(out, descriptor.RuntimeLibDir)
	if err := os.MkdirAll(libDir, 0o755); err != nil {
		return newError(KindPublish, d.Name, err)
	}
	if err := copyFile(src, filepath.Join(libDir, versioned), 0o755); err != nil {
		return newError(KindPublish, d.Name, err)
	}
	links := []string{stem}
	major := stem + "." + strings.TrimPrefix(semver.Major(canonical), "v")
	if len(t.files[major]) > 0 || len(t.links[major]) > 0 {
		links = append(links, major)
	}
	for _, link := range links {
		if err := os.Symlink(versioned, filepath.Join(libDir, link)); err != nil {
			return newError(KindPublish, d.Name, err)
		}
	}

	for base, paths := range t.files {
		if strings.HasPrefix(base, "libonnxruntime_providers_") && strings.HasSuffix(base, ".so") {
			if err := copyFile(paths[0], filepath.Join(libDir, base), 0o755); err != nil {
				return newError(KindPublish, d.Name, err)
			}
		}
	}
	return nil
}

// normalizeDictionary copies the shallowest directory holding sys.dic into
// <out>/<stable name>.
func normalizeDictionary(d descriptor.Descriptor, t *tree, out string) error {
	sys := first(t.files["sys.dic"])
	if sys == "" {
		return layoutErrorf(d.Name, "release has no sys.dic")
	}
	srcDir := filepath.Dir(sys)
	var missing []string
	for _, name := range dictionaryRequired {
		if _, err := os.Stat(filepath.Join(srcDir, name)); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return layoutErrorf(d.Name, "dictionary directory is missing %s", strings.Join(missing, ", "))
	}
	if err := copyTree(srcDir, filepath.Join(out, d.DictionaryName())); err != nil {
		return newError(KindPublish, d.Name, err)
	}
	return nil
}

// checkLayout verifies the descriptor's declared entries exist in dir.
func checkLayout(d descriptor.Descriptor, dir string) error {
	var missing []string
	for _, entry := range d.Layout {
		if _, err := os.Lstat(filepath.Join(dir, filepath.FromSlash(entry))); err != nil {
			missing = append(missing, entry)
		}
	}
	if len(missing) > 0 {
		return layoutErrorf(d.Name, "expected %s in normalized artifact", strings.Join(missing, ", "))
	}
	return nil
}

func first(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

func copyFile(src, dst string, perm fs.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }() // read-only handle

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	_, err = io.Copy(out, in)
	return err
}

// copyTree copies src into dst preserving modes and relative symlinks.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		}
		return errors.New("unsupported file type: " + rel)
	})
}
