// SPDX-License-Identifier: MPL-2.0

package assemble

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"vvimage/internal/config"
	"vvimage/internal/container"
	"vvimage/internal/issue"
	"vvimage/internal/resolve"
)

// Build context layout, relative to the context directory.
const (
	ContextBinary         = "vvimage"
	ContextConfig         = "vvimage.cue"
	ContextDockerfile     = "Dockerfile"
	ContextLdConf         = "vvimage.conf"
	ContextOverlayDir     = "overlays"
	ContextUserEntriesDir = "user-entries"
	ContextDictSourceDir  = "dict-src"
	ContextEngineDir      = "engine"
)

type (
	// ImageBuilder builds the engine image with a container engine.
	ImageBuilder struct {
		builder    *Builder
		engine     container.Engine
		binaryPath string
		// hostBinary is set when binaryPath defaulted to the running
		// executable.
		hostBinary bool
		goos       string
		goarch     string
		contextDir string
		stdout     io.Writer
		stderr     io.Writer
	}

	// ImageOption configures an ImageBuilder.
	ImageOption func(*ImageBuilder)

	// BuildContext is a prepared build context directory.
	BuildContext struct {
		Dir string
		// Cleanup removes Dir.
		Cleanup func()
	}
)

// WithBinaryPath sets the vvimage binary copied into the image. Defaults to
// the configured image.binary_path, then the running executable.
func WithBinaryPath(p string) ImageOption {
	return func(ib *ImageBuilder) { ib.binaryPath = p }
}

// WithContextParent sets the directory build contexts are created in.
func WithContextParent(dir string) ImageOption {
	return func(ib *ImageBuilder) { ib.contextDir = dir }
}

// WithOutput sets where build output is written (default stderr for both).
func WithOutput(stdout, stderr io.Writer) ImageOption {
	return func(ib *ImageBuilder) {
		ib.stdout = stdout
		ib.stderr = stderr
	}
}

// NewImageBuilder creates an ImageBuilder.
func NewImageBuilder(b *Builder, engine container.Engine, opts ...ImageOption) *ImageBuilder {
	ib := &ImageBuilder{
		builder:    b,
		engine:     engine,
		binaryPath: b.cfg.Image.BinaryPath,
		goos:       runtime.GOOS,
		goarch:     runtime.GOARCH,
		stdout:     os.Stderr,
		stderr:     os.Stderr,
	}
	for _, opt := range opts {
		opt(ib)
	}
	if ib.binaryPath == "" {
		ib.binaryPath, _ = os.Executable()
		ib.hostBinary = true
	}
	return ib
}

// checkHostBinary fails when the running executable would be copied into an
// image whose platform it cannot run on.
func (ib *ImageBuilder) checkHostBinary() error {
	if !ib.hostBinary {
		return nil
	}
	spec, err := ib.builder.cfg.Variant.Spec()
	if err != nil {
		return err
	}
	goos, goarch, _ := strings.Cut(spec.Platform, "/")
	goarch, _, _ = strings.Cut(goarch, "/")
	if ib.goos == goos && ib.goarch == goarch {
		return nil
	}
	return issue.NewErrorContext().
		WithOperation("copy vvimage binary").
		WithResource(ib.binaryPath).
		WithSuggestion(fmt.Sprintf("Cross-compile vvimage with GOOS=%s GOARCH=%s", goos, goarch)).
		WithSuggestion("Point image.binary_path in the build file or --binary at that build").
		WithIssue(issue.CompositionFailedId).
		Wrap(fmt.Errorf("%w: running executable is %s/%s, image platform is %s",
			ErrHostBinaryPlatform, ib.goos, ib.goarch, spec.Platform)).
		BuildError()
}

// Build prepares a context and builds the image tagged with the configured
// tag. It returns the tag.
func (ib *ImageBuilder) Build(ctx context.Context, noCache bool) (string, error) {
	bc, err := ib.PrepareContext()
	if err != nil {
		return "", err
	}
	defer bc.Cleanup()

	cfg := ib.builder.cfg
	spec, err := cfg.Variant.Spec()
	if err != nil {
		return "", err
	}

	ib.builder.logger.Info("building image", "engine", ib.engine.Name(), "tag", cfg.Image.Tag, "variant", cfg.Variant)
	err = ib.engine.Build(ctx, container.BuildOptions{
		ContextDir: bc.Dir,
		Dockerfile: ContextDockerfile,
		Tag:        cfg.Image.Tag,
		Platform:   spec.Platform,
		NoCache:    noCache,
		Stdout:     ib.stdout,
		Stderr:     ib.stderr,
	})
	if err != nil {
		return "", err
	}
	return cfg.Image.Tag, nil
}

// PrepareContext creates a build context holding the vvimage binary, a build
// file rewritten for in-image paths, dictionary inputs, the engine tree, the
// loader configuration and the Dockerfile.
//
// Docker installed via Snap cannot read /tmp or hidden directories, so the
// context is created in a visible directory under $HOME when possible.
func (ib *ImageBuilder) PrepareContext() (*BuildContext, error) {
	if err := ib.checkHostBinary(); err != nil {
		return nil, err
	}
	parent := ib.contextDir
	if parent == "" {
		parent = defaultContextParent()
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create build context parent directory: %w", err)
	}

	tmpDir, err := os.MkdirTemp(parent, "ctx-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	bc := &BuildContext{Dir: tmpDir, Cleanup: func() { _ = os.RemoveAll(tmpDir) }}

	if err := ib.populate(tmpDir); err != nil {
		bc.Cleanup()
		return nil, err
	}
	return bc, nil
}

func (ib *ImageBuilder) populate(dir string) error {
	cfg := ib.builder.cfg

	if ib.binaryPath == "" {
		return fmt.Errorf("no vvimage binary to copy into the build context")
	}
	binaryDst := filepath.Join(dir, ContextBinary)
	if err := CopyFile(ib.binaryPath, binaryDst); err != nil {
		return fmt.Errorf("failed to copy vvimage binary: %w", err)
	}
	if err := os.Chmod(binaryDst, 0o755); err != nil {
		return err
	}

	inImage := *cfg
	inImage.Engine.Dir = ""
	inImage.Store = config.StoreConfig{Kind: config.StoreNone}
	inImage.Metrics = config.MetricsConfig{}
	inImage.Image.BinaryPath = ""

	overlays, err := ib.copyCSVs(dir, ContextOverlayDir, cfg.Dictionary.Overlays)
	if err != nil {
		return err
	}
	inImage.Dictionary.Overlays = overlays
	userEntries, err := ib.copyCSVs(dir, ContextUserEntriesDir, cfg.Dictionary.UserEntries)
	if err != nil {
		return err
	}
	inImage.Dictionary.UserEntries = userEntries

	if cfg.Dictionary.Strategy == config.DictStrategyMerge {
		if err := CopyDir(cfg.Dictionary.BaseSource, filepath.Join(dir, ContextDictSourceDir)); err != nil {
			return fmt.Errorf("failed to copy dictionary sources: %w", err)
		}
		inImage.Dictionary.BaseSource = path.Join(ImageToolDir, ContextDictSourceDir)
	}

	if cfg.Engine.Dir != "" {
		if err := CopyDir(cfg.Engine.Dir, filepath.Join(dir, ContextEngineDir)); err != nil {
			return fmt.Errorf("failed to copy engine directory: %w", err)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, ContextConfig), []byte(config.GenerateCUE(&inImage)), 0o644); err != nil {
		return fmt.Errorf("failed to write build file: %w", err)
	}

	sp := resolve.LibrarySearchPath(ib.builder.nativeDependencies()...)
	if err := sp.WriteConf(filepath.Join(dir, ContextLdConf)); err != nil {
		return fmt.Errorf("failed to write loader configuration: %w", err)
	}

	dockerfile, err := ib.builder.RenderDockerfile()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, ContextDockerfile), []byte(dockerfile), 0o644); err != nil {
		return fmt.Errorf("failed to write Dockerfile: %w", err)
	}
	return nil
}

// copyCSVs copies the CSV files into <dir>/<sub> with an order-preserving
// prefix and returns their in-image paths. Missing files are skipped.
func (ib *ImageBuilder) copyCSVs(dir, sub string, files []string) ([]string, error) {
	dst := filepath.Join(dir, sub)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, err
	}
	inImage := []string{}
	for i, p := range files {
		name := fmt.Sprintf("%02d-%s", i, filepath.Base(p))
		if _, err := os.Stat(p); err != nil {
			ib.builder.logger.Warn("dictionary CSV not found, skipping", "path", p)
			continue
		}
		if err := CopyFile(p, filepath.Join(dst, name)); err != nil {
			return nil, fmt.Errorf("failed to copy %s: %w", p, err)
		}
		inImage = append(inImage, path.Join(ImageToolDir, sub, name))
	}
	return inImage, nil
}

// defaultContextParent prefers ~/vvimage-build, then ./.vvimage-build, then
// the system temp directory.
func defaultContextParent() string {
	if home, err := os.UserHomeDir(); err == nil {
		if _, err := os.Stat(home); err == nil {
			return filepath.Join(home, "vvimage-build")
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, ".vvimage-build")
	}
	return filepath.Join(os.TempDir(), "vvimage-build")
}
