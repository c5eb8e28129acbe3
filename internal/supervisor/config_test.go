// SPDX-License-Identifier: MPL-2.0

package supervisor

import (
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"vvimage/internal/testutil"
	"vvimage/pkg/types"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(nil, "")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Port != types.DefaultEnginePort || cfg.Host != "0.0.0.0" {
		t.Errorf("bind = %s:%d, want 0.0.0.0:50021", cfg.Host, cfg.Port)
	}
	if cfg.LaunchMode != LaunchExec || !cfg.Ldconfig || cfg.User != "user" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.VoicelibDir != "/opt/voicevox_core" || cfg.RuntimeDir != "/opt/onnxruntime/lib" {
		t.Errorf("library dirs = %q, %q", cfg.VoicelibDir, cfg.RuntimeDir)
	}
	if cfg.DictDir != "/opt/voicevox_engine/dic/open_jtalk_dic_utf_8" {
		t.Errorf("DictDir = %q", cfg.DictDir)
	}
}

func TestLoadConfig_EnvFile(t *testing.T) {
	t.Parallel()

	envFile := filepath.Join(t.TempDir(), "engine.env")
	testutil.MustWriteFile(t, envFile, []byte("PORT=50100\nTHREADS=4\nVV_LAUNCH_MODE=child\n"), 0o644)

	cfg, err := LoadConfig([]string{"PORT=50200", "VV_LDCONFIG=false"}, envFile)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Port != 50200 {
		t.Errorf("Port = %d, the environment must win over the env file", cfg.Port)
	}
	if cfg.Threads != 4 || cfg.LaunchMode != LaunchChild || cfg.Ldconfig {
		t.Errorf("cfg = %+v", cfg)
	}

	if _, err := LoadConfig(nil, filepath.Join(t.TempDir(), "missing.env")); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("missing env file error = %v, want ErrInvalidConfig", err)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		environ []string
	}{
		{"launch mode", []string{"VV_LAUNCH_MODE=fork"}},
		{"port out of range", []string{"PORT=70000"}},
		{"port not a number", []string{"PORT=http"}},
		{"negative threads", []string{"THREADS=-1"}},
		{"root user", []string{"VV_USER=root"}},
		{"relative library dir", []string{"VV_VOICELIB_DIR=opt/voicevox_core"}},
		{"absolute user dict", []string{"VV_USER_DICT_PATH=/tmp/user.dic"}},
		{"escaping user dict", []string{"VV_USER_DICT_PATH=../other/user.dic"}},
		{"relative engine binary", []string{"VV_ENGINE_BIN=./run", "VV_ENGINE_WORKDIR=/opt/voicevox_engine"}},
		{"bare engine name", []string{"VV_ENGINE_BIN=run"}},
		{"relative work dir", []string{"VV_ENGINE_WORKDIR=opt/voicevox_engine"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := LoadConfig(tt.environ, ""); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("LoadConfig(%v) error = %v, want ErrInvalidConfig", tt.environ, err)
			}
		})
	}
}

func TestConfig_Argv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		environ []string
		extra   []string
		want    string
	}{
		{
			name: "defaults",
			want: "/opt/voicevox_engine/run --voicelib_dir /opt/voicevox_core --runtime_dir /opt/onnxruntime/lib " +
				"--open_jtalk_dict_dir /opt/voicevox_engine/dic/open_jtalk_dic_utf_8 --host 0.0.0.0 --port 50021",
		},
		{
			name:    "combined distribution with threads",
			environ: []string{"VV_COMBINED_DIR=/opt/voicevox_engine", "VV_DICT_DIR=", "THREADS=2", "PORT=8080"},
			want:    "/opt/voicevox_engine/run --voicevox_dir /opt/voicevox_engine --host 0.0.0.0 --port 8080 --cpu_num_threads 2",
		},
		{
			name:    "extra args verbatim",
			environ: []string{"VV_DICT_DIR=", "VV_HOST=127.0.0.1"},
			extra:   []string{"--cors_policy_mode", "all"},
			want: "/opt/voicevox_engine/run --voicelib_dir /opt/voicevox_core --runtime_dir /opt/onnxruntime/lib " +
				"--host 127.0.0.1 --port 50021 --cors_policy_mode all",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := LoadConfig(tt.environ, "")
			if err != nil {
				t.Fatal(err)
			}
			cfg.ExtraArgs = tt.extra
			if got := strings.Join(cfg.Argv(), " "); got != tt.want {
				t.Errorf("Argv() =\n  %s\nwant\n  %s", got, tt.want)
			}
		})
	}
}

func TestConfig_SearchPath(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	sp, err := cfg.SearchPath()
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"/opt/voicevox_core", "/opt/onnxruntime/lib"}; !slices.Equal(sp.Dirs(), want) {
		t.Errorf("SearchPath() = %v, want %v", sp.Dirs(), want)
	}

	cfg.CombinedDir = "/opt/voicevox_engine"
	sp, err = cfg.SearchPath()
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"/opt/voicevox_engine"}; !slices.Equal(sp.Dirs(), want) {
		t.Errorf("combined SearchPath() = %v, want %v", sp.Dirs(), want)
	}
}
