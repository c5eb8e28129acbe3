// SPDX-License-Identifier: MPL-2.0

package assemble

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"vvimage/internal/descriptor"
	"vvimage/internal/ldpath"
	"vvimage/internal/resolve"
	"vvimage/pkg/types"
)

// Compose copies the published stage outputs into root at their canonical
// paths: native artifacts first, then the dictionary, then the engine
// application tree. It then writes the loader configuration and checks that
// every shared object's dependencies resolve. Only published outputs are
// read; outputs maps stage names to their directories.
func (b *Builder) Compose(root string, outputs map[string]string) (ldpath.SearchPath, error) {
	hostRoot := types.FilesystemPath(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return ldpath.SearchPath{}, err
	}

	natives := b.nativeDependencies()
	for _, d := range natives {
		if err := b.placeTarget(d.Name, d.Target, outputs[d.Name], hostRoot); err != nil {
			return ldpath.SearchPath{}, err
		}
	}

	src, hasSource := b.DictionarySource()
	for _, d := range b.cfg.DependenciesOfKind(descriptor.KindDictionary) {
		if hasSource && d.Name == src.Name {
			continue
		}
		if err := b.placeTarget(d.Name, d.Target, outputs[d.Name], hostRoot); err != nil {
			return ldpath.SearchPath{}, err
		}
	}
	if hasSource {
		if err := b.placeDictionary(src, outputs[DictStageName], hostRoot); err != nil {
			return ldpath.SearchPath{}, err
		}
	}

	if b.cfg.Engine.Dir != "" {
		dst := string(b.cfg.Layout.EngineDir.Under(hostRoot))
		if err := CopyDir(b.cfg.Engine.Dir, dst); err != nil {
			return ldpath.SearchPath{}, &CompositionError{Artifact: "engine", Path: b.cfg.Engine.Dir, Err: err}
		}
	}

	sp := resolve.LibrarySearchPath(natives...)
	conf := string(b.cfg.Layout.LdConf.Under(hostRoot))
	if err := sp.WriteConf(conf); err != nil {
		return sp, &CompositionError{Artifact: "loader configuration", Path: conf, Err: err}
	}

	v := ldpath.Verifier{Root: root, SystemRoot: b.systemRoot, Needed: b.needed}
	if err := v.Verify(sp); err != nil {
		return sp, &CompositionError{Artifact: "shared library closure", Path: root, Err: err}
	}
	return sp, nil
}

// placeTarget replaces target under root with the copy published by stage.
func (b *Builder) placeTarget(stageName string, target types.ImagePath, published string, root types.FilesystemPath) error {
	if published == "" {
		return &CompositionError{Artifact: stageName, Err: errors.New("stage output was not published")}
	}
	src := string(target.Under(types.FilesystemPath(published)))
	if err := requireDir(src); err != nil {
		return &CompositionError{Artifact: stageName, Path: src, Err: err}
	}
	dst := string(target.Under(root))
	if err := os.RemoveAll(dst); err != nil {
		return &CompositionError{Artifact: stageName, Path: dst, Err: err}
	}
	if err := CopyDir(src, dst); err != nil {
		return &CompositionError{Artifact: stageName, Path: dst, Err: err}
	}
	b.logger.Debug("placed artifact", "artifact", stageName, "target", target)
	return nil
}

// placeDictionary copies the assembled dictionary and the default user
// dictionary.
func (b *Builder) placeDictionary(src descriptor.Descriptor, published string, root types.FilesystemPath) error {
	if published == "" {
		return &CompositionError{Artifact: DictStageName, Err: errors.New("stage output was not published")}
	}
	rel := filepath.Join(string(src.Target), src.DictionaryName())
	from := filepath.Join(published, rel)
	if err := requireDir(from); err != nil {
		return &CompositionError{Artifact: DictStageName, Path: from, Err: err}
	}
	to := filepath.Join(string(root), rel)
	if err := os.RemoveAll(to); err != nil {
		return &CompositionError{Artifact: DictStageName, Path: to, Err: err}
	}
	if err := CopyDir(from, to); err != nil {
		return &CompositionError{Artifact: DictStageName, Path: to, Err: err}
	}

	userDict := string(b.cfg.Layout.DefaultUserDict.Under(types.FilesystemPath(published)))
	if _, err := os.Stat(userDict); err != nil {
		return &CompositionError{Artifact: DictStageName, Path: userDict, Err: fmt.Errorf("default user dictionary missing: %w", err)}
	}
	dst := string(b.cfg.Layout.DefaultUserDict.Under(root))
	if err := CopyFile(userDict, dst); err != nil {
		return &CompositionError{Artifact: DictStageName, Path: dst, Err: err}
	}
	return nil
}

func requireDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("artifact directory missing: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("artifact path is not a directory")
	}
	return nil
}
