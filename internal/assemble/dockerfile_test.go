// SPDX-License-Identifier: MPL-2.0

package assemble

import (
	"strings"
	"testing"

	"vvimage/internal/config"
	"vvimage/internal/descriptor"
)

func TestRenderDockerfile_Stages(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Variant = descriptor.VariantCPUArm64
	cfg.Engine.Dir = "/src/engine"
	b, _ := newTestBuilder(t, cfg)

	out, err := b.RenderDockerfile()
	if err != nil {
		t.Fatalf("RenderDockerfile() error = %v", err)
	}

	for _, want := range []string{
		"FROM --platform=linux/arm64 ubuntu:20.04 AS dep-voicevox_core\n",
		"FROM --platform=linux/arm64 ubuntu:20.04 AS dep-onnxruntime\n",
		"FROM --platform=linux/arm64 ubuntu:20.04 AS dep-open_jtalk_dic\n",
		`RUN ["/usr/local/bin/vvimage","resolve","--config","/vvimage/vvimage.cue","--only","onnxruntime"]`,
		"FROM --platform=linux/arm64 ubuntu:20.04 AS dictionary\n",
		"COPY --from=dep-voicevox_core /opt/voicevox_core /opt/voicevox_core\n",
		"COPY --from=dep-open_jtalk_dic /opt/voicevox_engine/dic /opt/voicevox_engine/dic\n",
		`RUN ["/usr/local/bin/vvimage","dict","--config","/vvimage/vvimage.cue","--root","/vvimage/dict-root"]`,
		"COPY --from=dictionary /vvimage/dict-root/ /\n",
		"COPY vvimage.conf /etc/ld.so.conf.d/vvimage.conf\n",
		"COPY engine/ /opt/voicevox_engine/\n",
		"WORKDIR /opt/voicevox_engine\n",
		"RUN useradd --create-home --uid 1000 --user-group user\n",
		"EXPOSE 50021\n",
		`ENTRYPOINT ["/usr/local/bin/vvimage","entrypoint"]`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Dockerfile missing %q\n%s", want, out)
		}
	}

	// the default user dictionary is compiled in the dictionary stage
	dictStage := out[strings.Index(out, "AS dictionary\n"):strings.LastIndex(out, "\nFROM ")]
	if !strings.Contains(dictStage, "mecab-utils") || !strings.Contains(dictStage, "COPY user-entries/ /vvimage/user-entries/\n") {
		t.Errorf("dictionary stage cannot bake the default user dictionary:\n%s", dictStage)
	}
	if strings.Contains(out, "dict-src") {
		t.Error("dictionary sources copied for the none strategy")
	}

	runtime := out[strings.LastIndex(out, "\nFROM "):]
	if strings.Contains(runtime, "vvimage resolve") || strings.Contains(runtime, `"resolve"`) || strings.Contains(runtime, "apt-get") || strings.Contains(runtime, "mecab") {
		t.Errorf("runtime stage must only copy published artifacts:\n%s", runtime)
	}
	if strings.Contains(runtime, "--from=dep-open_jtalk_dic") {
		t.Error("runtime stage copies the unassembled dictionary")
	}
	if strings.Index(runtime, "--from=dictionary") < strings.Index(runtime, "--from=dep-onnxruntime") {
		t.Error("dictionary must be copied after the native artifacts")
	}
	if strings.Index(runtime, "ldconfig") > strings.Index(runtime, "COPY engine/") {
		t.Error("ldconfig must run before the engine tree is installed")
	}
}

func TestRenderDockerfile_Strategies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		strategy config.DictStrategy
		wantSrc  bool
	}{
		{name: "none", strategy: config.DictStrategyNone},
		{name: "overlay", strategy: config.DictStrategyOverlay},
		{name: "merge", strategy: config.DictStrategyMerge, wantSrc: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			cfg.Dictionary.Strategy = tt.strategy
			cfg.Dictionary.BaseSource = "/src/dic"
			b, _ := newTestBuilder(t, cfg)
			out, err := b.RenderDockerfile()
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(out, "# dictionary: "+string(tt.strategy)+" strategy") || !strings.Contains(out, "mecab-utils") {
				t.Errorf("dictionary stage for %s is missing its compiler", tt.strategy)
			}
			if got := strings.Contains(out, "COPY dict-src/ /vvimage/dict-src/"); got != tt.wantSrc {
				t.Errorf("dictionary sources copied = %v, want %v", got, tt.wantSrc)
			}
		})
	}
}

func TestRenderDockerfile_WithoutDictionarySource(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Dictionary.Source = ""
	cfg.Engine.InstallCmd = ""
	b, _ := newTestBuilder(t, cfg)
	out, err := b.RenderDockerfile()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "AS dictionary") {
		t.Error("dictionary stage rendered without a source")
	}
	if !strings.Contains(out, "COPY --from=dep-open_jtalk_dic /opt/voicevox_engine/dic /opt/voicevox_engine/dic\n") {
		t.Error("plain dictionary dependency not copied into the runtime stage")
	}
	if strings.Contains(out, "pip3") {
		t.Error("empty install command rendered")
	}
}

func TestRenderDockerfile_DependencyBaseImage(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Dependencies[0].BaseImage = "debian:bookworm-slim"
	b, _ := newTestBuilder(t, cfg)
	out, err := b.RenderDockerfile()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "debian:bookworm-slim AS dep-voicevox_core") {
		t.Errorf("dependency base image ignored:\n%s", out)
	}
}

func TestStageAlias(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"voicevox_core": "dep-voicevox_core",
		"ONNX Runtime":  "dep-onnx-runtime",
		"dic/1.11":      "dep-dic-1.11",
	}
	for in, want := range tests {
		if got := stageAlias(in); got != want {
			t.Errorf("stageAlias(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestShellJoin(t *testing.T) {
	t.Parallel()

	got, err := shellJoin("useradd", "--uid", "1000", "engine user")
	if err != nil {
		t.Fatal(err)
	}
	if want := "useradd --uid 1000 'engine user'"; got != want {
		t.Errorf("shellJoin() = %q, want %q", got, want)
	}
	if _, err := shellJoin("bad\x00word"); err == nil {
		t.Error("shellJoin() accepted a NUL byte")
	}
}
