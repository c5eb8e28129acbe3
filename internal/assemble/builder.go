// SPDX-License-Identifier: MPL-2.0

package assemble

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"vvimage/internal/artifactstore"
	"vvimage/internal/config"
	"vvimage/internal/descriptor"
	"vvimage/internal/dict"
	"vvimage/internal/ldpath"
	"vvimage/internal/resolve"
	"vvimage/internal/stage"
	"vvimage/pkg/types"
)

// DictStageName names the stage that assembles the dictionary.
const DictStageName = "dictionary"

type (
	// CompilerFunc returns the dictionary compiler to run with the given
	// library search path (host coordinates).
	CompilerFunc func(sp ldpath.SearchPath) dict.Compiler

	// Observer receives build telemetry.
	Observer interface {
		StageFinished(name string, state stage.State, elapsed time.Duration)
		ArtifactResolved(a *resolve.Artifact)
	}

	// Builder assembles the engine filesystem described by a build
	// configuration.
	Builder struct {
		cfg        *config.Config
		store      artifactstore.Store
		fetcher    resolve.Fetcher
		compiler   CompilerFunc
		jobs       int
		workDir    string
		systemRoot string
		needed     ldpath.NeededFunc
		observer   Observer
		logger     *log.Logger
	}

	// Option configures a Builder.
	Option func(*Builder)

	// Report summarizes a local build.
	Report struct {
		// Stages is nil when the graph could not be scheduled.
		Stages *stage.Result
		// Artifacts are the resolved dependencies, in name order.
		Artifacts []*resolve.Artifact
		// SearchPath is the library search path written to the root.
		SearchPath ldpath.SearchPath
		// Dictionary is the dictionary assembly outcome, or nil without a
		// dictionary source.
		Dictionary *dict.Result
	}

	// run collects artifacts produced by concurrently running stages.
	run struct {
		mu         sync.Mutex
		artifacts  []*resolve.Artifact
		dictionary *dict.Result
	}
)

// WithStore sets the persistent artifact store shared by resolver stages.
func WithStore(s artifactstore.Store) Option {
	return func(b *Builder) { b.store = s }
}

// WithFetcher replaces the HTTP fetcher of resolver stages.
func WithFetcher(f resolve.Fetcher) Option {
	return func(b *Builder) { b.fetcher = f }
}

// WithCompiler replaces the mecab-dict-index compiler.
func WithCompiler(fn CompilerFunc) Option {
	return func(b *Builder) { b.compiler = fn }
}

// WithJobs overrides the configured stage concurrency.
func WithJobs(n int) Option {
	return func(b *Builder) { b.jobs = n }
}

// WithWorkDir sets where stage outputs are kept during a build. The
// directory is left in place; by default a temporary one is created and
// removed.
func WithWorkDir(dir string) Option {
	return func(b *Builder) { b.workDir = dir }
}

// WithSystemRoot sets the root of the loader's default directories used by
// the closure check (default "/").
func WithSystemRoot(root string) Option {
	return func(b *Builder) { b.systemRoot = root }
}

// WithNeeded replaces the ELF reader of the closure check.
func WithNeeded(fn ldpath.NeededFunc) Option {
	return func(b *Builder) { b.needed = fn }
}

// WithObserver registers a telemetry observer.
func WithObserver(o Observer) Option {
	return func(b *Builder) { b.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a Builder for cfg. The variant is checked here so an
// unknown one fails before anything is written.
func NewBuilder(cfg *config.Config, opts ...Option) (*Builder, error) {
	if _, err := cfg.Variant.Spec(); err != nil {
		return nil, err
	}
	b := &Builder{
		cfg:        cfg,
		jobs:       cfg.Jobs,
		systemRoot: "/",
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.store == nil {
		b.store = artifactstore.Nop()
	}
	if b.compiler == nil {
		path := cfg.Dictionary.Compiler
		b.compiler = func(sp ldpath.SearchPath) dict.Compiler { return dict.NewMecabCompiler(path, sp) }
	}
	if b.logger == nil {
		b.logger = log.Default().WithPrefix("assemble")
	}
	return b, nil
}

// Config returns the build configuration.
func (b *Builder) Config() *config.Config { return b.cfg }

// DictionarySource returns the dictionary dependency the dictionary stage
// assembles from, if one is configured.
func (b *Builder) DictionarySource() (descriptor.Descriptor, bool) {
	if b.cfg.Dictionary.Source == "" {
		return descriptor.Descriptor{}, false
	}
	return b.cfg.Dependency(b.cfg.Dictionary.Source)
}

// Stages returns the build graph: one resolver stage per dependency and,
// when a dictionary source is configured, the dictionary stage consuming the
// native libraries and the source.
func (b *Builder) Stages() []stage.Stage {
	return b.stages(&run{})
}

func (b *Builder) stages(r *run) []stage.Stage {
	stages := make([]stage.Stage, 0, len(b.cfg.Dependencies)+1)
	for _, d := range b.cfg.Dependencies {
		stages = append(stages, stage.Stage{
			Name: d.Name,
			Run:  b.resolveStage(d, r),
		})
	}

	src, ok := b.DictionarySource()
	if !ok {
		return stages
	}
	var inputs []string
	for _, d := range b.nativeDependencies() {
		inputs = append(inputs, d.Name)
	}
	inputs = append(inputs, src.Name)
	stages = append(stages, stage.Stage{
		Name:   DictStageName,
		Inputs: inputs,
		Run:    b.dictionaryStage(src, r),
	})
	return stages
}

func (b *Builder) resolveStage(d descriptor.Descriptor, r *run) stage.Func {
	return func(ctx context.Context, _ stage.Inputs, workspace string) error {
		opts := []resolve.Option{
			resolve.WithRoot(workspace),
			resolve.WithStore(b.store),
			resolve.WithLogger(b.logger.WithPrefix("resolve")),
		}
		if b.fetcher != nil {
			opts = append(opts, resolve.WithFetcher(b.fetcher))
		}
		a, err := resolve.New(opts...).Resolve(ctx, d, b.cfg.Variant)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.artifacts = append(r.artifacts, a)
		r.mu.Unlock()
		return nil
	}
}

func (b *Builder) dictionaryStage(src descriptor.Descriptor, r *run) stage.Func {
	return func(ctx context.Context, in stage.Inputs, workspace string) error {
		var sp ldpath.SearchPath
		for _, d := range b.nativeDependencies() {
			sp = sp.Merge(resolve.LibrarySearchPath(d).Under(in[d.Name]))
		}
		base := filepath.Join(string(src.Target.Under(types.FilesystemPath(in[src.Name]))), src.DictionaryName())
		res, err := b.AssembleDictionary(ctx, base, sp, workspace)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.dictionary = res
		r.mu.Unlock()
		return nil
	}
}

// AssembleDictionary builds the configured dictionary from the compiled base
// directory into outRoot: the dictionary lands at the source's target and the
// compiled default user dictionary, baked under every strategy, at the
// default user dictionary path. sp is the
// library search path of the compiler in host coordinates.
func (b *Builder) AssembleDictionary(ctx context.Context, base string, sp ldpath.SearchPath, outRoot string) (*dict.Result, error) {
	src, ok := b.DictionarySource()
	if !ok {
		return nil, &CompositionError{Artifact: DictStageName, Err: fmt.Errorf("no dictionary source configured")}
	}

	out := string(src.Target.Under(types.FilesystemPath(outRoot)))
	res, err := dict.Assemble(ctx, dict.Options{
		Strategy:     dict.Strategy(b.cfg.Dictionary.Strategy),
		Base:         base,
		BaseSource:   b.cfg.Dictionary.BaseSource,
		Overlays:     b.cfg.Dictionary.Overlays,
		UserEntries:  b.cfg.Dictionary.UserEntries,
		BakeUserDict: true,
		Out:          out,
		StableName:   src.DictionaryName(),
		Compiler:     b.compiler(sp),
		Logger:       b.logger.WithPrefix("dict"),
	})
	if err != nil {
		return nil, err
	}

	if res.UserDict != "" {
		dst := string(b.cfg.Layout.DefaultUserDict.Under(types.FilesystemPath(outRoot)))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, err
		}
		if err := os.Rename(res.UserDict, dst); err != nil {
			return nil, &CompositionError{Artifact: DictStageName, Path: dst, Err: err}
		}
		res.UserDict = dst
	}
	return res, nil
}

// BuildRoot runs the stage graph and composes the published outputs under
// root.
func (b *Builder) BuildRoot(ctx context.Context, root string) (*Report, error) {
	workDir := b.workDir
	if workDir == "" {
		tmp, err := os.MkdirTemp("", "vvimage-build-*")
		if err != nil {
			return nil, err
		}
		defer func() { _ = os.RemoveAll(tmp) }()
		workDir = tmp
	}

	ex := stage.New(filepath.Join(workDir, "stages"),
		stage.WithJobs(b.jobs),
		stage.WithLogger(b.logger.WithPrefix("stage")))
	r := &run{}
	for _, s := range b.stages(r) {
		if err := ex.Add(s); err != nil {
			return nil, err
		}
	}

	res, err := ex.Run(ctx)
	report := &Report{Stages: res}
	r.mu.Lock()
	report.Artifacts = slices.SortedFunc(slices.Values(r.artifacts), func(x, y *resolve.Artifact) int {
		return cmp.Compare(x.Descriptor.Name, y.Descriptor.Name)
	})
	report.Dictionary = r.dictionary
	r.mu.Unlock()
	b.observe(report)
	if err != nil {
		return report, err
	}

	sp, err := b.Compose(root, res.Outputs)
	if err != nil {
		return report, err
	}
	report.SearchPath = sp
	b.logger.Info("root assembled", "root", root, "variant", b.cfg.Variant, "search_path", sp.String())
	return report, nil
}

func (b *Builder) observe(report *Report) {
	if b.observer == nil {
		return
	}
	if report.Stages != nil {
		for name, st := range report.Stages.States {
			b.observer.StageFinished(name, st, report.Stages.Durations[name])
		}
	}
	for _, a := range report.Artifacts {
		b.observer.ArtifactResolved(a)
	}
}

// nativeDependencies returns the core and runtime dependencies in
// declaration order.
func (b *Builder) nativeDependencies() []descriptor.Descriptor {
	var out []descriptor.Descriptor
	for _, d := range b.cfg.Dependencies {
		if d.Kind == descriptor.KindCore || d.Kind == descriptor.KindRuntime {
			out = append(out, d)
		}
	}
	return out
}
