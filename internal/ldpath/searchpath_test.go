// SPDX-License-Identifier: MPL-2.0

package ldpath

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestNew_DedupesAndKeepsOrder(t *testing.T) {
	t.Parallel()

	sp, err := New("/opt/voicevox_core", "/opt/onnxruntime/lib", "/opt/voicevox_core/", "/opt/onnxruntime/lib")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	want := []string{"/opt/voicevox_core", "/opt/onnxruntime/lib"}
	if !slices.Equal(sp.Dirs(), want) {
		t.Errorf("Dirs() = %v, want %v", sp.Dirs(), want)
	}
	if sp.String() != "/opt/voicevox_core:/opt/onnxruntime/lib" {
		t.Errorf("String() = %q", sp.String())
	}
}

func TestNew_RejectsRelative(t *testing.T) {
	t.Parallel()

	if _, err := New("/ok", "lib"); !errors.Is(err, ErrRelativeDir) {
		t.Fatalf("New() error = %v, want ErrRelativeDir", err)
	}
}

func TestSearchPath_AddIsImmutable(t *testing.T) {
	t.Parallel()

	base := MustNew("/a")
	next, err := base.Add("/b")
	if err != nil {
		t.Fatal(err)
	}
	if base.Len() != 1 || next.Len() != 2 {
		t.Errorf("Add must not mutate the receiver: base=%v next=%v", base.Dirs(), next.Dirs())
	}
}

func TestSearchPath_Merge(t *testing.T) {
	t.Parallel()

	got := MustNew("/a", "/b").Merge(MustNew("/b", "/c"))
	if !slices.Equal(got.Dirs(), []string{"/a", "/b", "/c"}) {
		t.Errorf("Merge() = %v", got.Dirs())
	}
	var zero SearchPath
	if zero.Merge(MustNew("/x")).Len() != 1 {
		t.Error("zero value should merge")
	}
}

func TestSearchPath_Environ(t *testing.T) {
	t.Parallel()

	sp := MustNew("/opt/voicevox_core", "/opt/onnxruntime/lib")
	base := []string{"PATH=/usr/bin", "LD_LIBRARY_PATH=/usr/local/cuda/lib64"}

	got := sp.Environ(base)
	if !slices.Contains(got, "LD_LIBRARY_PATH=/opt/voicevox_core:/opt/onnxruntime/lib:/usr/local/cuda/lib64") {
		t.Errorf("Environ() = %v", got)
	}
	if base[1] != "LD_LIBRARY_PATH=/usr/local/cuda/lib64" {
		t.Error("Environ() must not modify its input")
	}

	var empty SearchPath
	for _, kv := range empty.Environ([]string{"PATH=/bin"}) {
		if strings.HasPrefix(kv, EnvVar+"=") {
			t.Errorf("empty path should not set %s", EnvVar)
		}
	}
}

func TestSearchPath_WriteAndParseConf(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "etc", "ld.so.conf.d", "vvimage.conf")
	sp := MustNew("/opt/voicevox_core", "/opt/onnxruntime/lib")
	if err := sp.WriteConf(file); err != nil {
		t.Fatalf("WriteConf() error = %v", err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "/opt/onnxruntime/lib\n") {
		t.Errorf("conf content = %q", data)
	}

	back, err := ParseConf(file)
	if err != nil {
		t.Fatalf("ParseConf() error = %v", err)
	}
	if !slices.Equal(back.Dirs(), sp.Dirs()) {
		t.Errorf("ParseConf() = %v, want %v", back.Dirs(), sp.Dirs())
	}

	entries, _ := os.ReadDir(filepath.Dir(file))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestSearchPath_Under(t *testing.T) {
	t.Parallel()

	sp := MustNew("/opt/voicevox_core", "/opt/onnxruntime/lib")
	got := sp.Under("/tmp/root").Dirs()
	want := []string{"/tmp/root/opt/voicevox_core", "/tmp/root/opt/onnxruntime/lib"}
	if !slices.Equal(got, want) {
		t.Errorf("Under() = %v, want %v", got, want)
	}
	if !slices.Equal(sp.Under("/").Dirs(), sp.Dirs()) {
		t.Error("Under(\"/\") should be the identity")
	}
}
