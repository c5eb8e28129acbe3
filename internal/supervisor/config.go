// SPDX-License-Identifier: MPL-2.0

package supervisor

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"vvimage/pkg/types"
)

const (
	// LaunchExec replaces the supervisor with the engine.
	LaunchExec LaunchMode = "exec"
	// LaunchChild runs the engine as a child, forwarding signals and the
	// exit status.
	LaunchChild LaunchMode = "child"

	// DefaultDictDir is used when VV_DICT_DIR is unset.
	DefaultDictDir = "/opt/voicevox_engine/dic/open_jtalk_dic_utf_8"
)

// TuningVars are engine settings passed through the environment untouched.
var TuningVars = []string{"BASE_SPEED_SCALE", "VOLUME_SCALE", "PRE_PHONEME_LENGTH", "POST_PHONEME_LENGTH"}

type (
	// LaunchMode selects how the engine process is started.
	LaunchMode string

	// Config holds the runtime launch parameters, read from the environment.
	Config struct {
		// VoicelibDir holds libcore.so.
		VoicelibDir string `env:"VV_VOICELIB_DIR" envDefault:"/opt/voicevox_core"`
		// RuntimeDir holds the tensor runtime shared objects.
		RuntimeDir string `env:"VV_RUNTIME_DIR" envDefault:"/opt/onnxruntime/lib"`
		// CombinedDir switches to a combined distribution passed as a single
		// --voicevox_dir instead of VoicelibDir and RuntimeDir.
		CombinedDir string `env:"VV_COMBINED_DIR"`
		// DictDir is the stable dictionary directory. Setting VV_DICT_DIR to
		// the empty string omits the flag.
		DictDir string `env:"VV_DICT_DIR"`

		Host    string           `env:"VV_HOST" envDefault:"0.0.0.0"`
		Port    types.ListenPort `env:"PORT" envDefault:"50021"`
		Threads int              `env:"THREADS" envDefault:"0"`

		EngineBin string `env:"VV_ENGINE_BIN" envDefault:"/opt/voicevox_engine/run"`
		WorkDir   string `env:"VV_ENGINE_WORKDIR" envDefault:"/opt/voicevox_engine"`

		User            string `env:"VV_USER" envDefault:"user"`
		DefaultUserDict string `env:"VV_DEFAULT_USER_DICT" envDefault:"/opt/voicevox_engine/default_user.dic"`
		// UserDictPath is relative to the runtime user's home.
		UserDictPath string `env:"VV_USER_DICT_PATH" envDefault:".local/share/voicevox-engine/user.dic"`

		Ldconfig     bool   `env:"VV_LDCONFIG" envDefault:"true"`
		LdconfigPath string `env:"VV_LDCONFIG_PATH" envDefault:"/sbin/ldconfig"`

		LaunchMode LaunchMode `env:"VV_LAUNCH_MODE" envDefault:"exec"`

		// ExtraArgs are appended to the engine argv verbatim.
		ExtraArgs []string
	}
)

// Validate returns an error if the LaunchMode is not recognized.
func (m LaunchMode) Validate() error {
	switch m {
	case LaunchExec, LaunchChild:
		return nil
	}
	return fmt.Errorf("%w: launch mode %q (want exec or child)", ErrInvalidConfig, m)
}

// LoadConfig reads the launch parameters from environ (KEY=VALUE pairs).
// Variables from envFile, when given, fill in keys environ does not set.
func LoadConfig(environ []string, envFile string) (Config, error) {
	vars := make(map[string]string, len(environ))
	if envFile != "" {
		fileVars, err := godotenv.Read(envFile)
		if err != nil {
			return Config{}, fmt.Errorf("%w: reading env file %s: %w", ErrInvalidConfig, envFile, err)
		}
		maps.Copy(vars, fileVars)
	}
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}

	cfg, err := env.ParseAsWithOptions[Config](env.Options{Environment: vars})
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, set := vars["VV_DICT_DIR"]; !set {
		cfg.DictDir = DefaultDictDir
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFromEnv reads the launch parameters from the process environment.
func LoadConfigFromEnv(envFile string) (Config, error) {
	return LoadConfig(os.Environ(), envFile)
}

// Validate checks the launch parameters.
func (c Config) Validate() error {
	var errs []error
	if err := c.LaunchMode.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Port.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: PORT: %w", ErrInvalidConfig, err))
	}
	if c.Threads < 0 {
		errs = append(errs, fmt.Errorf("%w: THREADS must be >= 0, got %d", ErrInvalidConfig, c.Threads))
	}
	if c.User == "" || c.User == "root" {
		errs = append(errs, fmt.Errorf("%w: VV_USER must name an unprivileged user, got %q", ErrInvalidConfig, c.User))
	}
	if !filepath.IsAbs(c.EngineBin) {
		errs = append(errs, fmt.Errorf("%w: VV_ENGINE_BIN must be an absolute path, got %q", ErrInvalidConfig, c.EngineBin))
	}
	if c.UserDictPath != "" && (filepath.IsAbs(c.UserDictPath) || strings.HasPrefix(filepath.Clean(c.UserDictPath), "..")) {
		errs = append(errs, fmt.Errorf("%w: VV_USER_DICT_PATH must be relative to the home directory, got %q", ErrInvalidConfig, c.UserDictPath))
	}
	for name, dir := range map[string]string{
		"VV_VOICELIB_DIR":   c.VoicelibDir,
		"VV_RUNTIME_DIR":    c.RuntimeDir,
		"VV_COMBINED_DIR":   c.CombinedDir,
		"VV_DICT_DIR":       c.DictDir,
		"VV_ENGINE_WORKDIR": c.WorkDir,
	} {
		if dir != "" && !filepath.IsAbs(dir) {
			errs = append(errs, fmt.Errorf("%w: %s must be absolute, got %q", ErrInvalidConfig, name, dir))
		}
	}
	return errors.Join(errs...)
}
