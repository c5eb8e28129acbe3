// SPDX-License-Identifier: MPL-2.0

//go:build unix

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"

	"vvimage/pkg/types"
)

// forwardedSignals are relayed to the engine in child mode.
var forwardedSignals = []os.Signal{
	unix.SIGINT, unix.SIGTERM, unix.SIGHUP, unix.SIGQUIT, unix.SIGUSR1, unix.SIGUSR2,
}

type (
	// ExecLauncher replaces the current process with the engine. Credentials
	// are dropped in the order setgroups, setgid, setuid.
	ExecLauncher struct{}

	// ChildLauncher runs the engine as a child process, relays signals to it
	// and reports its exit status.
	ChildLauncher struct {
		execCommand ExecCommandFunc
		signals     <-chan os.Signal
	}

	// ChildOption configures a ChildLauncher.
	ChildOption func(*ChildLauncher)
)

// WithChildExecCommand replaces the command constructor.
func WithChildExecCommand(fn ExecCommandFunc) ChildOption {
	return func(c *ChildLauncher) { c.execCommand = fn }
}

// WithSignals replaces the process signal subscription with ch.
func WithSignals(ch <-chan os.Signal) ChildOption {
	return func(c *ChildLauncher) { c.signals = ch }
}

// NewChildLauncher creates a ChildLauncher.
func NewChildLauncher(opts ...ChildOption) *ChildLauncher {
	c := &ChildLauncher{execCommand: exec.CommandContext}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Launch does not return on success. Config.Validate guarantees an absolute
// engine path, so the lookup does not depend on the working directory.
func (ExecLauncher) Launch(_ context.Context, l Launch) (types.ExitCode, error) {
	path, err := exec.LookPath(l.Path)
	if err != nil {
		return 0, &LaunchError{Path: l.Path, Err: err}
	}

	// Credential changes must happen on the thread that calls execve.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if l.Dir != "" {
		if err := unix.Chdir(l.Dir); err != nil {
			return 0, &LaunchError{Path: l.Dir, Err: fmt.Errorf("chdir: %w", err)}
		}
	}
	if id := l.Identity; id != nil {
		if err := unix.Setgroups(id.Groups); err != nil {
			return 0, &LaunchError{Path: path, Err: fmt.Errorf("setgroups: %w", err)}
		}
		if err := unix.Setgid(id.GID); err != nil {
			return 0, &LaunchError{Path: path, Err: fmt.Errorf("setgid: %w", err)}
		}
		if err := unix.Setuid(id.UID); err != nil {
			return 0, &LaunchError{Path: path, Err: fmt.Errorf("setuid: %w", err)}
		}
	}
	if err := unix.Exec(path, l.Argv, l.Env); err != nil {
		return 0, &LaunchError{Path: path, Err: err}
	}
	return 0, nil
}

// Launch starts the engine and waits for it. The returned code is the
// engine's exit status, or 128 plus the signal number if it was killed.
// Cancelling ctx does not kill the engine; signals are the only control.
func (c *ChildLauncher) Launch(_ context.Context, l Launch) (types.ExitCode, error) {
	if len(l.Argv) == 0 {
		return 0, &LaunchError{Path: l.Path, Err: errors.New("empty argv")}
	}

	signals := c.signals
	if signals == nil {
		ch := make(chan os.Signal, 8)
		signal.Notify(ch, forwardedSignals...)
		defer signal.Stop(ch)
		signals = ch
	}

	//nolint:gosec // the engine path comes from the launch configuration
	cmd := c.execCommand(context.Background(), l.Path, l.Argv[1:]...)
	if len(l.Env) > 0 {
		cmd.Env = append(cmd.Env, l.Env...)
	}
	cmd.Dir = l.Dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if id := l.Identity; id != nil {
		groups := make([]uint32, len(id.Groups))
		for i, g := range id.Groups {
			groups[i] = uint32(g)
		}
		cmd.SysProcAttr = &syscall.SysProcAttr{
			Credential: &syscall.Credential{Uid: uint32(id.UID), Gid: uint32(id.GID), Groups: groups},
		}
	}

	if err := cmd.Start(); err != nil {
		return 0, &LaunchError{Path: l.Path, Err: err}
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-signals:
				_ = cmd.Process.Signal(sig)
			case <-done:
				return
			}
		}
	}()

	err := cmd.Wait()
	close(done)
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			return types.ExitCodeFromWaitStatus(ws), nil
		}
		return types.ExitCode(exitErr.ExitCode()), nil
	}
	return 0, &LaunchError{Path: l.Path, Err: err}
}
