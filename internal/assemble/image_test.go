// SPDX-License-Identifier: MPL-2.0

package assemble

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"vvimage/internal/config"
	"vvimage/internal/container"
	"vvimage/internal/descriptor"
	"vvimage/internal/issue"
	"vvimage/internal/ldpath"
	"vvimage/internal/testutil"
)

// fakeEngine records builds and snapshots the context it was handed.
type fakeEngine struct {
	err      error
	opts     container.BuildOptions
	files    []string
	contents map[string]string
}

func (e *fakeEngine) Name() string                            { return "fake" }
func (e *fakeEngine) Available() bool                         { return true }
func (e *fakeEngine) Version(context.Context) (string, error) { return "1.0", nil }

func (e *fakeEngine) Build(_ context.Context, opts container.BuildOptions) error {
	e.opts = opts
	e.contents = map[string]string{}
	for _, f := range []string{ContextDockerfile, ContextConfig} {
		data, err := os.ReadFile(filepath.Join(opts.ContextDir, f))
		if err != nil {
			return err
		}
		e.contents[f] = string(data)
	}
	e.files = listFiles(opts.ContextDir)
	return e.err
}

func (e *fakeEngine) ImageExists(context.Context, string) (bool, error) { return false, nil }
func (e *fakeEngine) RemoveImage(context.Context, string, bool) error   { return nil }

func listFiles(root string) []string {
	var out []string
	_ = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			rel, _ := filepath.Rel(root, p)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	return out
}

func fakeBinary(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "vvimage")
	testutil.MustWriteFile(t, p, []byte("\x7fELF"), 0o600)
	return p
}

func TestPrepareContext(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	overlay := filepath.Join(src, "words.csv")
	testutil.MustWriteFile(t, overlay, []byte(overlayRow+"\n"), 0o644)
	dictSrc := filepath.Join(src, "dic-src")
	testutil.MustWriteFile(t, filepath.Join(dictSrc, "matrix.def"), []byte("1 1\n"), 0o644)
	engineDir := filepath.Join(src, "engine")
	testutil.MustWriteFile(t, filepath.Join(engineDir, "requirements.txt"), []byte("fastapi\n"), 0o644)

	cfg := config.DefaultConfig()
	cfg.Dictionary.Strategy = config.DictStrategyMerge
	cfg.Dictionary.BaseSource = dictSrc
	cfg.Dictionary.Overlays = []string{overlay, filepath.Join(src, "missing.csv")}
	cfg.Dictionary.UserEntries = []string{overlay}
	cfg.Engine.Dir = engineDir
	cfg.Store = config.StoreConfig{Kind: config.StoreDisk, Dir: "/var/cache/vvimage"}
	cfg.Metrics.Textfile = "/var/lib/node_exporter/vvimage.prom"

	b, _ := newTestBuilder(t, cfg)
	ib := NewImageBuilder(b, &fakeEngine{}, WithBinaryPath(fakeBinary(t)), WithContextParent(t.TempDir()))

	bc, err := ib.PrepareContext()
	if err != nil {
		t.Fatalf("PrepareContext() error = %v", err)
	}
	defer bc.Cleanup()

	want := []string{
		"Dockerfile",
		"dict-src/matrix.def",
		"engine/requirements.txt",
		"overlays/00-words.csv",
		"user-entries/00-words.csv",
		"vvimage",
		"vvimage.conf",
		"vvimage.cue",
	}
	if got := testutil.ListFiles(t, bc.Dir); !slices.Equal(got, want) {
		t.Errorf("context files = %v, want %v", got, want)
	}

	info, err := os.Stat(filepath.Join(bc.Dir, ContextBinary))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("binary mode = %v, want 0755", info.Mode().Perm())
	}

	sp, err := ldpath.ParseConf(filepath.Join(bc.Dir, ContextLdConf))
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"/opt/voicevox_core", "/opt/onnxruntime/lib"}; !slices.Equal(sp.Dirs(), want) {
		t.Errorf("loader conf = %v, want %v", sp.Dirs(), want)
	}

	inImage, _, err := config.NewProvider().Load(context.Background(), config.LoadOptions{
		ConfigFilePath: filepath.Join(bc.Dir, ContextConfig),
	})
	if err != nil {
		t.Fatalf("context build file does not load: %v", err)
	}
	if want := []string{"/vvimage/overlays/00-words.csv"}; !slices.Equal(inImage.Dictionary.Overlays, want) {
		t.Errorf("overlays = %v, want %v", inImage.Dictionary.Overlays, want)
	}
	if want := []string{"/vvimage/user-entries/00-words.csv"}; !slices.Equal(inImage.Dictionary.UserEntries, want) {
		t.Errorf("user_entries = %v, want %v", inImage.Dictionary.UserEntries, want)
	}
	if inImage.Dictionary.BaseSource != "/vvimage/dict-src" {
		t.Errorf("base_source = %q", inImage.Dictionary.BaseSource)
	}
	if inImage.Engine.Dir != "" || inImage.Store.Kind != config.StoreNone || inImage.Metrics.Textfile != "" {
		t.Errorf("host-only settings leaked into the image: %+v %+v %+v", inImage.Engine, inImage.Store, inImage.Metrics)
	}
	if inImage.Variant != cfg.Variant || len(inImage.Dependencies) != len(cfg.Dependencies) {
		t.Errorf("in-image config lost the build settings: %+v", inImage)
	}

	// The original configuration is untouched.
	if cfg.Engine.Dir != engineDir || len(cfg.Dictionary.Overlays) != 2 {
		t.Error("PrepareContext modified the build configuration")
	}
}

func TestPrepareContext_MissingBinary(t *testing.T) {
	t.Parallel()

	b, _ := newTestBuilder(t, config.DefaultConfig())
	parent := t.TempDir()
	ib := NewImageBuilder(b, &fakeEngine{}, WithBinaryPath(filepath.Join(parent, "nope")), WithContextParent(parent))

	if _, err := ib.PrepareContext(); err == nil {
		t.Fatal("PrepareContext() succeeded without a binary")
	}
	entries, err := os.ReadDir(parent)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("failed context was not cleaned up: %v", entries)
	}
}

func TestCheckHostBinary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		variant  descriptor.Variant
		goos     string
		goarch   string
		explicit bool
		wantErr  bool
	}{
		{name: "matching amd64", variant: descriptor.VariantCPUX64, goos: "linux", goarch: "amd64"},
		{name: "matching arm64", variant: descriptor.VariantCPUArm64, goos: "linux", goarch: "arm64"},
		{name: "matching armhf", variant: descriptor.VariantCPUArmhf, goos: "linux", goarch: "arm"},
		{name: "macOS host", variant: descriptor.VariantCPUX64, goos: "darwin", goarch: "amd64", wantErr: true},
		{name: "arch mismatch", variant: descriptor.VariantCPUArm64, goos: "linux", goarch: "amd64", wantErr: true},
		{name: "explicit binary skips check", variant: descriptor.VariantCPUArm64, goos: "darwin", goarch: "arm64", explicit: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			cfg.Variant = tt.variant
			b, _ := newTestBuilder(t, cfg)
			parent := t.TempDir()
			opts := []ImageOption{WithContextParent(parent)}
			if tt.explicit {
				opts = append(opts, WithBinaryPath(fakeBinary(t)))
			}
			ib := NewImageBuilder(b, &fakeEngine{}, opts...)
			ib.goos, ib.goarch = tt.goos, tt.goarch

			err := ib.checkHostBinary()
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("checkHostBinary() error = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrHostBinaryPlatform) {
				t.Fatalf("checkHostBinary() error = %v, want ErrHostBinaryPlatform", err)
			}
			var ae *issue.ActionableError
			if !errors.As(err, &ae) || ae.IssueId != issue.CompositionFailedId {
				t.Fatalf("error is not an actionable composition error: %v", err)
			}
			if !slices.ContainsFunc(ae.Suggestions, func(s string) bool { return strings.Contains(s, "--binary") }) {
				t.Errorf("suggestions = %v, want a --binary hint", ae.Suggestions)
			}

			if _, err := ib.PrepareContext(); !errors.Is(err, ErrHostBinaryPlatform) {
				t.Fatalf("PrepareContext() error = %v, want ErrHostBinaryPlatform", err)
			}
			entries, err := os.ReadDir(parent)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 0 {
				t.Errorf("PrepareContext created %v before the platform check", entries)
			}
		})
	}
}

func TestImageBuilder_Build(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Image.Tag = "example/engine:cpu"
	b, _ := newTestBuilder(t, cfg)
	engine := &fakeEngine{}
	parent := t.TempDir()
	ib := NewImageBuilder(b, engine, WithBinaryPath(fakeBinary(t)), WithContextParent(parent))

	tag, err := ib.Build(context.Background(), true)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if tag != "example/engine:cpu" {
		t.Errorf("tag = %q", tag)
	}
	if engine.opts.Tag != tag || engine.opts.Platform != "linux/amd64" || !engine.opts.NoCache || engine.opts.Dockerfile != ContextDockerfile {
		t.Errorf("build options = %+v", engine.opts)
	}
	if !strings.Contains(engine.contents[ContextDockerfile], "ENTRYPOINT") {
		t.Error("engine was handed a context without a Dockerfile")
	}
	if !slices.Contains(engine.files, ContextBinary) {
		t.Errorf("context files = %v", engine.files)
	}
	if entries, _ := os.ReadDir(parent); len(entries) != 0 {
		t.Errorf("context not removed after build: %v", entries)
	}
}

func TestImageBuilder_BuildError(t *testing.T) {
	t.Parallel()

	b, _ := newTestBuilder(t, config.DefaultConfig())
	buildErr := errors.New("daemon unavailable")
	ib := NewImageBuilder(b, &fakeEngine{err: buildErr}, WithBinaryPath(fakeBinary(t)), WithContextParent(t.TempDir()))

	if _, err := ib.Build(context.Background(), false); !errors.Is(err, buildErr) {
		t.Fatalf("Build() error = %v, want %v", err, buildErr)
	}
}
