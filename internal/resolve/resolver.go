// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/log"

	"vvimage/internal/archive"
	"vvimage/internal/artifactstore"
	"vvimage/internal/descriptor"
	"vvimage/internal/fetch"
	"vvimage/internal/ldpath"
	"vvimage/pkg/types"
)

type (
	// Fetcher downloads a release archive into dir.
	Fetcher interface {
		Fetch(ctx context.Context, rawURL, dir string) (*fetch.Download, error)
	}

	// Artifact is a published, normalized artifact directory.
	Artifact struct {
		Descriptor descriptor.Descriptor
		Variant    descriptor.Variant
		// Dir is the host path of the published directory (root + target).
		Dir string
		// Files lists the relative paths of all non-directory entries.
		Files []string
		// Digest hashes the normalized tree.
		Digest string
		// Cached is true when the artifact came from the store or an
		// already-stamped target instead of a fresh fetch.
		Cached bool
	}

	// Resolver resolves descriptors into artifact directories under a root.
	Resolver struct {
		root       string
		scratchDir string
		fetcher    Fetcher
		store      artifactstore.Store
		logger     *log.Logger
	}

	// Option configures a Resolver.
	Option func(*Resolver)
)

// WithRoot places targets under root instead of "/".
func WithRoot(root string) Option {
	return func(r *Resolver) { r.root = root }
}

// WithScratchDir sets the parent of per-resolution scratch directories.
func WithScratchDir(dir string) Option {
	return func(r *Resolver) { r.scratchDir = dir }
}

// WithFetcher replaces the default HTTP fetch client.
func WithFetcher(f Fetcher) Option {
	return func(r *Resolver) { r.fetcher = f }
}

// WithStore sets the persistent artifact store consulted before fetching.
func WithStore(s artifactstore.Store) Option {
	return func(r *Resolver) { r.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{root: "/"}
	for _, opt := range opts {
		opt(r)
	}
	if r.fetcher == nil {
		r.fetcher = fetch.NewClient()
	}
	if r.store == nil {
		r.store = artifactstore.Nop()
	}
	if r.logger == nil {
		r.logger = log.Default().WithPrefix("resolve")
	}
	return r
}

// Root returns the directory targets are placed under.
func (r *Resolver) Root() string { return r.root }

// Resolve produces the artifact directory of d for variant v. The variant and
// descriptor are validated before anything under the target is touched.
func (r *Resolver) Resolve(ctx context.Context, d descriptor.Descriptor, v descriptor.Variant) (*Artifact, error) {
	spec, err := v.Spec()
	if err != nil {
		return nil, newError(KindUnknownVariant, d.Name, err)
	}
	if err := d.Validate(); err != nil {
		if errors.Is(err, descriptor.ErrInvalidVersion) {
			return nil, newError(KindVersion, d.Name, err)
		}
		return nil, newError(KindDescriptor, d.Name, err)
	}

	return r.resolve(ctx, d, spec, d.Key(v))
}

// ResolveAll resolves ds in order and stops at the first failure.
func (r *Resolver) ResolveAll(ctx context.Context, ds []descriptor.Descriptor, v descriptor.Variant) ([]*Artifact, error) {
	out := make([]*Artifact, 0, len(ds))
	for _, d := range ds {
		a, err := r.Resolve(ctx, d, v)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *Resolver) resolve(ctx context.Context, d descriptor.Descriptor, spec descriptor.VariantSpec, key descriptor.CacheKey) (*Artifact, error) {
	target := r.hostPath(d.Target)
	logger := r.logger.With("dependency", key.String())

	if a, ok := r.reuseTarget(d, spec.Variant, key, target); ok {
		logger.Debug("target already resolved", "dir", target)
		return a, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, newError(KindPublish, d.Name, err)
	}
	staging, err := os.MkdirTemp(filepath.Dir(target), ".vvimage-stage-*")
	if err != nil {
		return nil, newError(KindPublish, d.Name, err)
	}
	published := false
	defer func() {
		if !published {
			_ = os.RemoveAll(staging)
		}
	}()

	cached := true
	switch err := r.store.Get(ctx, key, staging); {
	case err == nil:
		logger.Info("restored from artifact store")
	case errors.Is(err, artifactstore.ErrMiss):
		cached = false
		if err := r.fetchAndNormalize(ctx, d, spec, staging, logger); err != nil {
			return nil, err
		}
	default:
		return nil, newError(KindFetch, d.Name, fmt.Errorf("artifact store: %w", err))
	}

	if err := checkLayout(d, staging); err != nil {
		return nil, err
	}
	digest, files, err := treeDigest(staging)
	if err != nil {
		return nil, newError(KindPublish, d.Name, err)
	}

	if !cached {
		if err := r.store.Put(ctx, key, staging); err != nil {
			logger.Warn("could not populate artifact store", "error", err)
		}
	}

	stampPath := r.stampPath(d.Name)
	if err := removeStamp(stampPath); err != nil {
		return nil, newError(KindPublish, d.Name, err)
	}
	if err := publish(staging, target); err != nil {
		return nil, newError(KindPublish, d.Name, err)
	}
	published = true
	st := stamp{Name: key.Name, Kind: d.Kind, Version: key.Version, Variant: key.Variant, Target: d.Target, Digest: digest, Files: files}
	if err := writeStamp(stampPath, st); err != nil {
		return nil, newError(KindPublish, d.Name, err)
	}

	logger.Info("resolved", "dir", target, "files", len(files))
	return &Artifact{Descriptor: d, Variant: spec.Variant, Dir: target, Files: files, Digest: digest, Cached: cached}, nil
}

// fetchAndNormalize runs fetch, verify, extract and normalize into out. The
// scratch directory holding the archive and extracted tree is always removed.
func (r *Resolver) fetchAndNormalize(ctx context.Context, d descriptor.Descriptor, spec descriptor.VariantSpec, out string, logger *log.Logger) error {
	rawURL, err := d.RenderURL(spec.Variant)
	if err != nil {
		return newError(KindDescriptor, d.Name, err)
	}

	scratch, err := os.MkdirTemp(r.scratchDir, "vvimage-fetch-*")
	if err != nil {
		return newError(KindFetch, d.Name, err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	logger.Info("fetching", "url", rawURL)
	dl, err := r.fetcher.Fetch(ctx, rawURL, scratch)
	if err != nil {
		return newError(KindFetch, d.Name, err)
	}
	if d.SHA256 != "" {
		if err := dl.Verify(d.SHA256); err != nil {
			return newError(KindChecksum, d.Name, err)
		}
	}

	format, err := archive.DetectFormat(dl.Name)
	if err != nil {
		return newError(KindArchive, d.Name, err)
	}
	extracted := filepath.Join(scratch, "x")
	if err := os.Mkdir(extracted, 0o755); err != nil {
		return newError(KindArchive, d.Name, err)
	}
	if err := archive.Extract(ctx, dl.Path, format, extracted); err != nil {
		return newError(KindArchive, d.Name, err)
	}
	if err := os.Remove(dl.Path); err != nil {
		return newError(KindArchive, d.Name, err)
	}

	return normalize(d, spec, extracted, out)
}

// reuseTarget reports whether target already holds this exact artifact:
// its stamp names the same key and the tree still hashes to the recorded
// digest.
func (r *Resolver) reuseTarget(d descriptor.Descriptor, v descriptor.Variant, key descriptor.CacheKey, target string) (*Artifact, bool) {
	st, err := readStamp(r.stampPath(d.Name))
	if err != nil || !st.matches(key, d.Target) {
		return nil, false
	}
	digest, files, err := treeDigest(target)
	if err != nil || digest != st.Digest {
		return nil, false
	}
	return &Artifact{Descriptor: d, Variant: v, Dir: target, Files: files, Digest: digest, Cached: true}, true
}

func (r *Resolver) hostPath(p types.ImagePath) string {
	return string(p.Under(types.FilesystemPath(r.root)))
}

// stampPath is kept outside every target so copying a target never carries
// its stamp along.
func (r *Resolver) stampPath(name string) string {
	return filepath.Join(r.hostPath(StampDir), name+".json")
}

// publish moves staging onto target. An existing target is swapped aside
// first and removed only after the new tree is in place.
func publish(staging, target string) error {
	if err := os.Chmod(staging, 0o755); err != nil {
		return err
	}
	old := ""
	if _, err := os.Lstat(target); err == nil {
		old = staging + ".old"
		if err := os.Rename(target, old); err != nil {
			return fmt.Errorf("moving previous %s aside: %w", target, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := os.Rename(staging, target); err != nil {
		if old != "" {
			_ = os.Rename(old, target)
		}
		return fmt.Errorf("publishing %s: %w", target, err)
	}
	if old != "" {
		return os.RemoveAll(old)
	}
	return nil
}

// SearchPath returns the library directories the artifact contributes, in image
// coordinates.
func (a *Artifact) SearchPath() ldpath.SearchPath {
	return LibrarySearchPath(a.Descriptor)
}

// SearchPathOf merges the search paths of as in order.
func SearchPathOf(as []*Artifact) ldpath.SearchPath {
	var sp ldpath.SearchPath
	for _, a := range as {
		sp = sp.Merge(a.SearchPath())
	}
	return sp
}

// LibrarySearchPath returns the library directories the normalized artifacts
// of ds will contribute once resolved. Dictionaries contribute none.
func LibrarySearchPath(ds ...descriptor.Descriptor) ldpath.SearchPath {
	var sp ldpath.SearchPath
	for _, d := range ds {
		switch d.Kind {
		case descriptor.KindCore:
			sp = sp.Merge(ldpath.MustNew(d.Target.String()))
		case descriptor.KindRuntime:
			sp = sp.Merge(ldpath.MustNew(path.Join(d.Target.String(), descriptor.RuntimeLibDir)))
		}
	}
	return sp
}
