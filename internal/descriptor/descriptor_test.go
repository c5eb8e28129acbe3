// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"errors"
	"strings"
	"testing"
)

const (
	coreURL    = "https://github.com/VOICEVOX/voicevox_core/releases/download/{{.Version}}/voicevox_core-linux-{{.Arch}}-{{.Device}}-{{.Version}}.zip"
	runtimeURL = "https://github.com/microsoft/onnxruntime/releases/download/{{.Tag}}/onnxruntime-linux-{{.RuntimeArch}}-{{.Version}}.tgz"
)

func validCore() Descriptor {
	return Descriptor{
		Name:        "voicevox_core",
		Kind:        KindCore,
		Version:     "0.12.3",
		URLTemplate: coreURL,
		Target:      "/opt/voicevox_core",
	}
}

func TestDescriptor_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Descriptor)
		wantErr string
	}{
		{"valid", func(*Descriptor) {}, ""},
		{"empty name", func(d *Descriptor) { d.Name = " " }, "name must be non-empty"},
		{"bad kind", func(d *Descriptor) { d.Kind = "plugin" }, "invalid artifact kind"},
		{"bad version", func(d *Descriptor) { d.Version = "latest" }, "invalid release version"},
		{"build metadata", func(d *Descriptor) { d.Version = "1.0.0+abc" }, "invalid release version"},
		{"empty url", func(d *Descriptor) { d.URLTemplate = "" }, "url must be non-empty"},
		{"broken template", func(d *Descriptor) { d.URLTemplate = "https://x/{{.Version" }, "url template"},
		{"relative target", func(d *Descriptor) { d.Target = "opt/core" }, "must be absolute"},
		{"short digest", func(d *Descriptor) { d.SHA256 = "abc" }, "64 hex"},
		{"nested stable name", func(d *Descriptor) { d.StableName = "a/b" }, "single path element"},
		{"escaping layout", func(d *Descriptor) { d.Layout = []string{"../etc"} }, "relative path inside"},
		{"valid layout", func(d *Descriptor) { d.Layout = []string{"metas.json", "model/d.bin"} }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := validCore()
			tt.mutate(&d)
			err := d.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidDescriptor) {
				t.Errorf("error should wrap ErrInvalidDescriptor: %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestDescriptor_RenderURL(t *testing.T) {
	t.Parallel()

	core := validCore()
	got, err := core.RenderURL(VariantCPUX64)
	if err != nil {
		t.Fatalf("RenderURL() error = %v", err)
	}
	want := "https://github.com/VOICEVOX/voicevox_core/releases/download/0.12.3/voicevox_core-linux-x64-cpu-0.12.3.zip"
	if got != want {
		t.Errorf("RenderURL() = %q, want %q", got, want)
	}

	rt := Descriptor{Name: "onnxruntime", Kind: KindRuntime, Version: "v1.10.0", URLTemplate: runtimeURL, Target: "/opt/onnxruntime"}
	got, err = rt.RenderURL(VariantGPUCUDAX64)
	if err != nil {
		t.Fatalf("RenderURL() error = %v", err)
	}
	want = "https://github.com/microsoft/onnxruntime/releases/download/v1.10.0/onnxruntime-linux-x64-gpu-1.10.0.tgz"
	if got != want {
		t.Errorf("RenderURL() = %q, want %q", got, want)
	}
}

func TestDescriptor_RenderURL_Errors(t *testing.T) {
	t.Parallel()

	core := validCore()
	if _, err := core.RenderURL("cpu-riscv"); !errors.Is(err, ErrInvalidVariant) {
		t.Errorf("unknown variant: got %v, want ErrInvalidVariant", err)
	}

	core.URLTemplate = "https://x/{{.Missing}}"
	if _, err := core.RenderURL(VariantCPUX64); err == nil {
		t.Error("unknown template field should fail")
	}

	core.URLTemplate = "ftp://mirror/{{.Version}}.zip"
	if _, err := core.RenderURL(VariantCPUX64); err == nil || !strings.Contains(err.Error(), "unsupported scheme") {
		t.Errorf("ftp scheme: got %v", err)
	}
}

func TestCanonicalVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0.12.3", "v0.12.3", false},
		{"v1.10.0", "v1.10.0", false},
		{"1.11", "v1.11", false},
		{"0.14.0-preview.1", "v0.14.0-preview.1", false},
		{"", "", true},
		{"latest", "", true},
		{"1.2.3.4", "", true},
	}

	for _, tt := range tests {
		got, err := CanonicalVersion(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("CanonicalVersion(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidVersion) {
			t.Errorf("CanonicalVersion(%q) should wrap ErrInvalidVersion", tt.in)
		}
		if got != tt.want {
			t.Errorf("CanonicalVersion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDescriptor_Key(t *testing.T) {
	t.Parallel()

	a := validCore()
	b := validCore()
	b.Version = "v0.12.3"

	if a.Key(VariantCPUX64) != b.Key(VariantCPUX64) {
		t.Error("keys should ignore the v prefix")
	}
	if a.Key(VariantCPUX64) == a.Key(VariantCPUArm64) {
		t.Error("keys must differ per variant")
	}
	if got := a.Key(VariantCPUX64).String(); got != "voicevox_core@0.12.3+cpu-x64" {
		t.Errorf("String() = %q", got)
	}
	if got := a.Key(VariantCPUX64).Slug(); strings.ContainsAny(got, "/ ") {
		t.Errorf("Slug() = %q should be a single path element", got)
	}
}

func TestDescriptor_DictionaryName(t *testing.T) {
	t.Parallel()

	d := Descriptor{}
	if d.DictionaryName() != DefaultDictionaryName {
		t.Errorf("default = %q", d.DictionaryName())
	}
	d.StableName = "naist_jdic"
	if d.DictionaryName() != "naist_jdic" {
		t.Errorf("override = %q", d.DictionaryName())
	}
}
