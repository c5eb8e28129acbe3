// SPDX-License-Identifier: MPL-2.0

package supervisor

import (
	"context"
	"os/exec"
	"slices"
	"strconv"
	"strings"

	"vvimage/internal/ldpath"
	"vvimage/pkg/types"
)

type (
	// Launch describes the engine process to start.
	Launch struct {
		// Path is the engine executable.
		Path string
		// Argv includes argv[0].
		Argv []string
		Env  []string
		Dir  string
		// Identity is the account to switch to, or nil to keep the current
		// credentials.
		Identity *Identity
	}

	// Launcher starts the engine. An exec-style launcher does not return on
	// success.
	Launcher interface {
		Launch(ctx context.Context, l Launch) (types.ExitCode, error)
	}

	// ExecCommandFunc creates an exec.Cmd. Tests replace it.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd
)

// Argv builds the engine command line from the launch parameters. Values are
// passed through verbatim.
func (c Config) Argv() []string {
	argv := []string{c.EngineBin}
	if c.CombinedDir != "" {
		argv = append(argv, "--voicevox_dir", c.CombinedDir)
	} else {
		if c.VoicelibDir != "" {
			argv = append(argv, "--voicelib_dir", c.VoicelibDir)
		}
		if c.RuntimeDir != "" {
			argv = append(argv, "--runtime_dir", c.RuntimeDir)
		}
	}
	if c.DictDir != "" {
		argv = append(argv, "--open_jtalk_dict_dir", c.DictDir)
	}
	argv = append(argv, "--host", c.Host, "--port", c.Port.String())
	if c.Threads > 0 {
		argv = append(argv, "--cpu_num_threads", strconv.Itoa(c.Threads))
	}
	return append(argv, c.ExtraArgs...)
}

// SearchPath returns the library directories the engine loads from.
func (c Config) SearchPath() (ldpath.SearchPath, error) {
	if c.CombinedDir != "" {
		return ldpath.New(c.CombinedDir)
	}
	var dirs []string
	for _, d := range []string{c.VoicelibDir, c.RuntimeDir} {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return ldpath.New(dirs...)
}

// environment returns base with HOME and USER set for id. When the loader
// cache was not refreshed the library search path is exported instead.
func environment(base []string, id *Identity, sp ldpath.SearchPath, exportSearchPath bool) []string {
	env := slices.DeleteFunc(slices.Clone(base), func(kv string) bool {
		return strings.HasPrefix(kv, "HOME=") || strings.HasPrefix(kv, "USER=") || strings.HasPrefix(kv, "LOGNAME=")
	})
	env = append(env, "HOME="+id.Home, "USER="+id.Name, "LOGNAME="+id.Name)
	if exportSearchPath && sp.Len() > 0 {
		env = sp.Environ(env)
	}
	return env
}
