// SPDX-License-Identifier: MPL-2.0

package dict

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"vvimage/internal/ldpath"
)

// DefaultCompilerPath is where Debian/Ubuntu install the mecab index builder.
const DefaultCompilerPath = "/usr/lib/mecab/mecab-dict-index"

type (
	// Compiler builds compiled dictionary indexes.
	Compiler interface {
		// CompileSystem compiles the lexicon sources in srcDir into outDir.
		CompileSystem(ctx context.Context, srcDir, outDir string) error
		// CompileUser compiles csvFile into the user dictionary outFile
		// against the compiled system dictionary in sysDir.
		CompileUser(ctx context.Context, sysDir, csvFile, outFile string) error
	}

	// ExecCommandFunc creates an exec.Cmd. Tests replace it.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// MecabCompiler runs mecab-dict-index.
	MecabCompiler struct {
		// Path is the compiler binary; defaults to DefaultCompilerPath.
		Path string
		// SearchPath is exported to the compiler as LD_LIBRARY_PATH.
		SearchPath  ldpath.SearchPath
		execCommand ExecCommandFunc
	}

	// MecabOption configures a MecabCompiler.
	MecabOption func(*MecabCompiler)
)

// WithExecCommand overrides command creation.
func WithExecCommand(fn ExecCommandFunc) MecabOption {
	return func(c *MecabCompiler) { c.execCommand = fn }
}

// NewMecabCompiler returns a compiler for the binary at path.
func NewMecabCompiler(path string, sp ldpath.SearchPath, opts ...MecabOption) *MecabCompiler {
	if path == "" {
		path = DefaultCompilerPath
	}
	c := &MecabCompiler{Path: path, SearchPath: sp, execCommand: exec.CommandContext}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CompileSystem implements Compiler.
func (c *MecabCompiler) CompileSystem(ctx context.Context, srcDir, outDir string) error {
	return c.run(ctx, "-d", srcDir, "-o", outDir, "-f", "utf-8", "-t", "utf-8")
}

// CompileUser implements Compiler.
func (c *MecabCompiler) CompileUser(ctx context.Context, sysDir, csvFile, outFile string) error {
	return c.run(ctx, "-d", sysDir, "-u", outFile, "-f", "utf-8", "-t", "utf-8", csvFile)
}

func (c *MecabCompiler) run(ctx context.Context, args ...string) error {
	cmd := c.execCommand(ctx, c.Path, args...)
	base := cmd.Env
	if base == nil {
		base = os.Environ()
	}
	cmd.Env = c.SearchPath.Environ(base)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("dictionary compiler %s not found: %w", c.Path, err)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s: %w", c.Path, err)
		}
		return fmt.Errorf("%s: %w: %s", c.Path, err, msg)
	}
	return nil
}
