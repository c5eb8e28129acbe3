// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"vvimage/internal/assemble"
	"vvimage/internal/config"
	"vvimage/internal/descriptor"
	"vvimage/internal/dict"
	"vvimage/internal/ldpath"
	"vvimage/internal/testutil"
)

// stubCompiler stands in for mecab-dict-index: user.dic is the user CSV
// behind a marker line.
type stubCompiler struct{}

func (stubCompiler) CompileSystem(context.Context, string, string) error {
	return errors.New("system compilation is not stubbed")
}

func (stubCompiler) CompileUser(_ context.Context, _, csvFile, outFile string) error {
	data, err := os.ReadFile(csvFile)
	if err != nil {
		return err
	}
	return os.WriteFile(outFile, append([]byte("USERDIC\n"), data...), 0o644)
}

// stubCompilerOption makes builders use stubCompiler.
func stubCompilerOption() assemble.Option {
	return assemble.WithCompiler(func(ldpath.SearchPath) dict.Compiler { return stubCompiler{} })
}

// staticProvider returns a fixed configuration.
type staticProvider struct {
	cfg  *config.Config
	path string
	err  error
}

func (p staticProvider) Load(context.Context, config.LoadOptions) (*config.Config, string, error) {
	return p.cfg, p.path, p.err
}

// releaseConfig builds core, runtime and dictionary releases served from
// file:// URLs.
func releaseConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	url := func(name string) string { return "file://" + filepath.ToSlash(filepath.Join(dir, name)) }

	testutil.WriteZip(t, filepath.Join(dir, "core.zip"), []testutil.Entry{
		{Name: "core/libcore_cpu_x64.so", Body: "core", Mode: 0o755},
		{Name: "core/core.h", Body: "h"},
	})
	testutil.WriteTarGz(t, filepath.Join(dir, "ort.tgz"), []testutil.Entry{
		{Name: "onnxruntime-linux-x64-1.10.0/lib/libonnxruntime.so.1.10.0", Body: "ort", Mode: 0o755},
	})
	var dic []testutil.Entry
	for _, f := range []string{"sys.dic", "matrix.bin", "char.bin", "unk.dic"} {
		dic = append(dic, testutil.Entry{Name: "open_jtalk_dic_utf_8-1.11/" + f, Body: "base-" + f})
	}
	testutil.WriteTarGz(t, filepath.Join(dir, "dic.tar.gz"), dic)

	cfg := config.DefaultConfig()
	cfg.Dependencies = []descriptor.Descriptor{
		{Name: "voicevox_core", Kind: descriptor.KindCore, Version: "0.12.3", URLTemplate: url("core.zip"), Target: "/opt/voicevox_core"},
		{Name: "onnxruntime", Kind: descriptor.KindRuntime, Version: "1.10.0", URLTemplate: url("ort.tgz"), Target: "/opt/onnxruntime"},
		{
			Name: "open_jtalk_dic", Kind: descriptor.KindDictionary, Version: "1.11", URLTemplate: url("dic.tar.gz"),
			Target: "/opt/voicevox_engine/dic", StableName: descriptor.DefaultDictionaryName,
		},
	}
	return cfg
}

// runCommand executes cmd with args and captures its output.
func runCommand(t *testing.T, cmd *cobra.Command, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(t.Context())
	return out.String(), errOut.String(), err
}
