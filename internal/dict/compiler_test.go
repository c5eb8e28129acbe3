// SPDX-License-Identifier: MPL-2.0

package dict

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"vvimage/internal/ldpath"
)

// helperCommand runs TestHelperProcess in place of the real compiler. The
// helper appends its argv and LD_LIBRARY_PATH to record.
func helperCommand(record string, exitCode int) ExecCommandFunc {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = []string{
			"GO_WANT_HELPER_PROCESS=1",
			"GO_HELPER_RECORD=" + record,
			fmt.Sprintf("GO_HELPER_EXIT_CODE=%d", exitCode),
		}
		return cmd
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	line := strings.Join(args, " ") + "|" + os.Getenv("LD_LIBRARY_PATH") + "\n"
	_ = os.WriteFile(os.Getenv("GO_HELPER_RECORD"), []byte(line), 0o644)
	if os.Getenv("GO_HELPER_EXIT_CODE") != "0" {
		fmt.Fprintln(os.Stderr, "mecab-dict-index: matrix.def is broken")
		os.Exit(1)
	}
	os.Exit(0)
}

func TestMecabCompiler_Args(t *testing.T) {
	t.Parallel()

	sp := ldpath.MustNew("/opt/voicevox_core", "/opt/onnxruntime/lib")
	tests := []struct {
		name string
		run  func(*MecabCompiler) error
		want string
	}{
		{
			name: "system",
			run:  func(c *MecabCompiler) error { return c.CompileSystem(context.Background(), "/src", "/out") },
			want: "/usr/lib/mecab/mecab-dict-index -d /src -o /out -f utf-8 -t utf-8|/opt/voicevox_core:/opt/onnxruntime/lib",
		},
		{
			name: "user",
			run: func(c *MecabCompiler) error {
				return c.CompileUser(context.Background(), "/dic", "/tmp/user.csv", "/out/user.dic")
			},
			want: "/usr/lib/mecab/mecab-dict-index -d /dic -u /out/user.dic -f utf-8 -t utf-8 /tmp/user.csv|/opt/voicevox_core:/opt/onnxruntime/lib",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			record := filepath.Join(t.TempDir(), "record")
			c := NewMecabCompiler("", sp, WithExecCommand(helperCommand(record, 0)))
			if err := tt.run(c); err != nil {
				t.Fatalf("compile error = %v", err)
			}
			got, err := os.ReadFile(record)
			if err != nil {
				t.Fatal(err)
			}
			if strings.TrimSpace(string(got)) != tt.want {
				t.Errorf("invocation = %q\nwant %q", strings.TrimSpace(string(got)), tt.want)
			}
		})
	}
}

func TestMecabCompiler_FailureIncludesStderr(t *testing.T) {
	t.Parallel()

	record := filepath.Join(t.TempDir(), "record")
	c := NewMecabCompiler("/usr/bin/mecab-dict-index", ldpath.SearchPath{}, WithExecCommand(helperCommand(record, 1)))
	err := c.CompileSystem(context.Background(), "/src", "/out")
	if err == nil || !strings.Contains(err.Error(), "matrix.def is broken") {
		t.Fatalf("CompileSystem() error = %v", err)
	}
}

func TestMecabCompiler_MissingBinary(t *testing.T) {
	t.Parallel()

	c := NewMecabCompiler(filepath.Join(t.TempDir(), "mecab-dict-index"), ldpath.SearchPath{})
	err := c.CompileSystem(context.Background(), "/src", "/out")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("CompileSystem() error = %v", err)
	}
}
