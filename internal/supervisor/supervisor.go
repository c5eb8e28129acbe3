// SPDX-License-Identifier: MPL-2.0

package supervisor

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"

	"vvimage/pkg/types"
)

type (
	// ChownFunc changes the owner of path without following symlinks.
	ChownFunc func(path string, uid, gid int) error

	// Supervisor stages the runtime home and launches the engine.
	Supervisor struct {
		cfg         Config
		root        string
		environ     []string
		chown       ChownFunc
		geteuid     func() int
		execCommand ExecCommandFunc
		launcher    Launcher
		logger      *log.Logger
	}

	// Option configures a Supervisor.
	Option func(*Supervisor)
)

// WithRoot sets the filesystem root that container paths are resolved
// against for staging (default "/").
func WithRoot(root string) Option {
	return func(s *Supervisor) { s.root = root }
}

// WithEnviron sets the environment passed to the engine (default
// os.Environ()).
func WithEnviron(environ []string) Option {
	return func(s *Supervisor) { s.environ = environ }
}

// WithChown replaces os.Lchown.
func WithChown(fn ChownFunc) Option {
	return func(s *Supervisor) { s.chown = fn }
}

// WithEUID replaces os.Geteuid.
func WithEUID(fn func() int) Option {
	return func(s *Supervisor) { s.geteuid = fn }
}

// WithExecCommand replaces the command constructor used for ldconfig.
func WithExecCommand(fn ExecCommandFunc) Option {
	return func(s *Supervisor) { s.execCommand = fn }
}

// WithLauncher replaces the launcher selected by the launch mode.
func WithLauncher(l Launcher) Option {
	return func(s *Supervisor) { s.launcher = l }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// New creates a Supervisor for cfg.
func New(cfg Config, opts ...Option) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Supervisor{
		cfg:         cfg,
		root:        "/",
		chown:       os.Lchown,
		geteuid:     os.Geteuid,
		execCommand: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.environ == nil {
		s.environ = os.Environ()
	}
	if s.launcher == nil {
		if cfg.LaunchMode == LaunchChild {
			s.launcher = NewChildLauncher()
		} else {
			s.launcher = ExecLauncher{}
		}
	}
	if s.logger == nil {
		s.logger = log.Default().WithPrefix("entrypoint")
	}
	return s, nil
}

// Run stages the home directory and launches the engine. The engine is never
// started when staging fails. With the exec launch mode Run does not return
// on success; otherwise it returns the engine's exit code unchanged.
func (s *Supervisor) Run(ctx context.Context) (types.ExitCode, error) {
	staged, err := s.Stage(ctx)
	if err != nil {
		s.logger.Error("staging failed, not starting the engine", "error", err)
		return types.ExitStagingFailure, err
	}

	l, err := s.Prepare(staged)
	if err != nil {
		return types.ExitConfigFailure, err
	}
	s.logLaunch(l)
	code, err := s.launcher.Launch(ctx, l)
	if err != nil {
		return types.ExitLaunchFailure, err
	}
	return code, nil
}

// Prepare builds the engine launch for a staged identity. Credentials are
// switched only when running as root.
func (s *Supervisor) Prepare(staged *Staged) (Launch, error) {
	sp, err := s.cfg.SearchPath()
	if err != nil {
		return Launch{}, err
	}
	l := Launch{
		Path: s.cfg.EngineBin,
		Argv: s.cfg.Argv(),
		Env:  environment(s.environ, staged.Identity, sp, !staged.LoaderRefreshed),
		Dir:  s.cfg.WorkDir,
	}
	if s.geteuid() == 0 {
		l.Identity = staged.Identity
	} else {
		s.logger.Warn("not running as root, keeping current credentials", "user", staged.Identity.Name)
	}
	return l, nil
}

// logLaunch prints the effective launch configuration.
func (s *Supervisor) logLaunch(l Launch) {
	kv := []any{
		"mode", s.cfg.LaunchMode,
		"argv", l.Argv,
		"workdir", l.Dir,
		"host", s.cfg.Host,
		"port", s.cfg.Port,
		"threads", s.cfg.Threads,
	}
	if l.Identity != nil {
		kv = append(kv, "user", l.Identity.Name, "uid", l.Identity.UID)
	}
	for _, name := range TuningVars {
		if v, ok := lookupEnv(l.Env, name); ok {
			kv = append(kv, name, v)
		}
	}
	s.logger.Info("launching engine", kv...)
}

func lookupEnv(environ []string, key string) (string, bool) {
	for i := len(environ) - 1; i >= 0; i-- {
		if v, ok := strings.CutPrefix(environ[i], key+"="); ok {
			return v, true
		}
	}
	return "", false
}
