// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"

	"vvimage/internal/descriptor"
	"vvimage/pkg/types"
)

const (
	// ContainerEngineAuto picks podman or docker, whichever is on PATH.
	ContainerEngineAuto ContainerEngine = ""
	// ContainerEnginePodman uses Podman as the container runtime.
	ContainerEnginePodman ContainerEngine = "podman"
	// ContainerEngineDocker uses Docker as the container runtime.
	ContainerEngineDocker ContainerEngine = "docker"

	// Dictionary strategies are defined locally to avoid coupling config to
	// internal/dict; the command layer converts at the boundary.

	// DictStrategyMerge compiles overlay entries into the system dictionary.
	DictStrategyMerge DictStrategy = "merge"
	// DictStrategyOverlay compiles overlay entries into a separate user.dic.
	DictStrategyOverlay DictStrategy = "overlay"
	// DictStrategyNone copies the base dictionary unchanged.
	DictStrategyNone DictStrategy = "none"

	// StoreNone disables the persistent artifact store.
	StoreNone StoreKind = "none"
	// StoreDisk keeps artifacts in a local directory.
	StoreDisk StoreKind = "disk"
	// StoreS3 keeps artifacts in an S3-compatible bucket.
	StoreS3 StoreKind = "s3"
)

var (
	// ErrInvalidContainerEngine is returned when a ContainerEngine value is not recognized.
	ErrInvalidContainerEngine = errors.New("invalid container engine")
	// ErrInvalidDictStrategy is returned when a DictStrategy value is not recognized.
	ErrInvalidDictStrategy = errors.New("invalid dictionary strategy")
	// ErrInvalidStoreKind is returned when a StoreKind value is not recognized.
	ErrInvalidStoreKind = errors.New("invalid store kind")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ContainerEngine specifies which container runtime builds images.
	ContainerEngine string

	// DictStrategy selects how overlay CSV entries reach the engine.
	DictStrategy string

	// StoreKind selects the persistent artifact store backend.
	StoreKind string

	// InvalidValueError is returned when an enumerated value is not recognized.
	InvalidValueError struct {
		Field    string
		Value    string
		Valid    []string
		sentinel error
	}

	// InvalidConfigError collects field-level validation errors.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config is the effective build configuration.
	Config struct {
		// Variant selects the binary build of the native dependencies.
		Variant descriptor.Variant `json:"variant" mapstructure:"variant"`
		// Jobs bounds concurrently running build stages; 0 means one per CPU.
		Jobs int `json:"jobs" mapstructure:"jobs"`
		// ContainerEngine builds images; empty means auto-detect.
		ContainerEngine ContainerEngine `json:"container_engine" mapstructure:"container_engine"`
		// Dependencies are the native artifacts to resolve.
		Dependencies []descriptor.Descriptor `json:"dependencies" mapstructure:"dependencies"`
		Dictionary   DictionaryConfig        `json:"dictionary" mapstructure:"dictionary"`
		Engine       EngineConfig            `json:"engine" mapstructure:"engine"`
		Image        ImageConfig             `json:"image" mapstructure:"image"`
		Layout       LayoutConfig            `json:"layout" mapstructure:"layout"`
		Store        StoreConfig             `json:"store" mapstructure:"store"`
		Metrics      MetricsConfig           `json:"metrics" mapstructure:"metrics"`
	}

	// DictionaryConfig configures dictionary assembly.
	DictionaryConfig struct {
		Strategy DictStrategy `json:"strategy" mapstructure:"strategy"`
		// Source names the dictionary-kind dependency used as base.
		Source string `json:"source" mapstructure:"source"`
		// BaseSource is a host directory of source CSVs (merge strategy).
		BaseSource string `json:"base_source,omitempty" mapstructure:"base_source"`
		// Overlays are host CSV files with user entries.
		Overlays []string `json:"overlays" mapstructure:"overlays"`
		// UserEntries are host CSV files seeding the default user
		// dictionary, which is baked under every strategy.
		UserEntries []string `json:"user_entries" mapstructure:"user_entries"`
		// Compiler is the mecab-dict-index executable.
		Compiler string `json:"compiler" mapstructure:"compiler"`
		// DictBase is the base image of the dictionary build stage.
		DictBase string `json:"base_image" mapstructure:"base_image"`
	}

	// EngineConfig describes the engine application tree.
	EngineConfig struct {
		// Dir is the host source directory of the engine application (optional).
		Dir string `json:"dir,omitempty" mapstructure:"dir"`
		// InstallCmd installs the engine's dependencies after native artifacts are in place.
		InstallCmd string `json:"install_cmd,omitempty" mapstructure:"install_cmd"`
		// Bin is the engine executable inside the image.
		Bin types.ImagePath `json:"bin" mapstructure:"bin"`
	}

	// ImageConfig holds container image parameters.
	ImageConfig struct {
		Tag         string `json:"tag" mapstructure:"tag"`
		RuntimeBase string `json:"runtime_base" mapstructure:"runtime_base"`
		BuilderBase string `json:"builder_base" mapstructure:"builder_base"`
		// User is the unprivileged runtime account created once at build time.
		User string `json:"user" mapstructure:"user"`
		UID  int    `json:"uid" mapstructure:"uid"`
		// BinaryPath is the vvimage binary copied into the build context;
		// empty means the running executable.
		BinaryPath string `json:"binary_path,omitempty" mapstructure:"binary_path"`
	}

	// LayoutConfig holds fixed paths of the final filesystem.
	LayoutConfig struct {
		EngineDir       types.ImagePath `json:"engine_dir" mapstructure:"engine_dir"`
		LdConf          types.ImagePath `json:"ld_conf" mapstructure:"ld_conf"`
		DefaultUserDict types.ImagePath `json:"default_user_dict" mapstructure:"default_user_dict"`
	}

	// StoreConfig configures the persistent artifact store.
	StoreConfig struct {
		Kind StoreKind `json:"kind" mapstructure:"kind"`
		Dir  string    `json:"dir,omitempty" mapstructure:"dir"`
		S3   S3Config  `json:"s3" mapstructure:"s3"`
	}

	// S3Config addresses an S3-compatible bucket.
	S3Config struct {
		Endpoint  string `json:"endpoint,omitempty" mapstructure:"endpoint"`
		Bucket    string `json:"bucket,omitempty" mapstructure:"bucket"`
		Region    string `json:"region,omitempty" mapstructure:"region"`
		Prefix    string `json:"prefix,omitempty" mapstructure:"prefix"`
		AccessKey string `json:"access_key,omitempty" mapstructure:"access_key"`
		SecretKey string `json:"secret_key,omitempty" mapstructure:"secret_key"`
		UseSSL    bool   `json:"use_ssl" mapstructure:"use_ssl"`
	}

	// MetricsConfig configures build metrics export.
	MetricsConfig struct {
		// Textfile receives Prometheus text exposition after each build.
		Textfile string `json:"textfile,omitempty" mapstructure:"textfile"`
	}
)

// Validate returns an error if the ContainerEngine is not recognized.
func (ce ContainerEngine) Validate() error {
	switch ce {
	case ContainerEngineAuto, ContainerEnginePodman, ContainerEngineDocker:
		return nil
	}
	return &InvalidValueError{Field: "container_engine", Value: string(ce), Valid: []string{"podman", "docker"}, sentinel: ErrInvalidContainerEngine}
}

// Validate returns an error if the DictStrategy is not recognized.
func (s DictStrategy) Validate() error {
	switch s {
	case DictStrategyMerge, DictStrategyOverlay, DictStrategyNone:
		return nil
	}
	return &InvalidValueError{Field: "dictionary.strategy", Value: string(s), Valid: []string{"merge", "overlay", "none"}, sentinel: ErrInvalidDictStrategy}
}

// Validate returns an error if the StoreKind is not recognized.
func (k StoreKind) Validate() error {
	switch k {
	case StoreNone, StoreDisk, StoreS3:
		return nil
	}
	return &InvalidValueError{Field: "store.kind", Value: string(k), Valid: []string{"none", "disk", "s3"}, sentinel: ErrInvalidStoreKind}
}

// Error implements the error interface for InvalidValueError.
func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("%s: invalid value %q (valid: %s)", e.Field, e.Value, strings.Join(e.Valid, ", "))
}

// Unwrap returns the field's sentinel error for errors.Is() compatibility.
func (e *InvalidValueError) Unwrap() error { return e.sentinel }

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, fe := range e.FieldErrors {
		msgs = append(msgs, fe.Error())
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

// Unwrap returns ErrInvalidConfig plus every field error, so errors.Is
// matches both the umbrella sentinel and the specific one.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// Validate checks cross-field constraints CUE cannot express: unique
// dependency names and targets, the dictionary source reference, and the
// store settings. All problems are reported at once.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Variant.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Jobs < 0 {
		errs = append(errs, fmt.Errorf("jobs: must be >= 0, got %d", c.Jobs))
	}
	if err := c.ContainerEngine.Validate(); err != nil {
		errs = append(errs, err)
	}

	names := make(map[string]int, len(c.Dependencies))
	targets := make(map[types.ImagePath]string, len(c.Dependencies))
	for i, d := range c.Dependencies {
		if err := d.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("dependencies[%d]: %w", i, err))
		}
		if first, ok := names[d.Name]; ok {
			errs = append(errs, fmt.Errorf("dependencies[%d]: duplicate name %q (same as dependencies[%d])", i, d.Name, first))
		} else {
			names[d.Name] = i
		}
		if other, ok := targets[d.Target]; ok {
			errs = append(errs, fmt.Errorf("dependencies[%d]: target %s already used by %q", i, d.Target, other))
		} else {
			targets[d.Target] = d.Name
		}
	}

	if err := c.Dictionary.Strategy.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Dictionary.Source != "" {
		d, ok := c.Dependency(c.Dictionary.Source)
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("dictionary.source: no dependency named %q", c.Dictionary.Source))
		case d.Kind != descriptor.KindDictionary:
			errs = append(errs, fmt.Errorf("dictionary.source: dependency %q has kind %s, want dictionary", d.Name, d.Kind))
		}
	}
	if c.Dictionary.Strategy == DictStrategyMerge && c.Dictionary.BaseSource == "" {
		errs = append(errs, errors.New("dictionary.base_source: required by the merge strategy"))
	}

	for field, p := range map[string]types.ImagePath{
		"engine.bin":               c.Engine.Bin,
		"layout.engine_dir":        c.Layout.EngineDir,
		"layout.ld_conf":           c.Layout.LdConf,
		"layout.default_user_dict": c.Layout.DefaultUserDict,
	} {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}

	if strings.TrimSpace(c.Image.User) == "" || c.Image.User == "root" {
		errs = append(errs, fmt.Errorf("image.user: must name an unprivileged account, got %q", c.Image.User))
	}
	if c.Image.UID <= 0 {
		errs = append(errs, fmt.Errorf("image.uid: must be > 0, got %d", c.Image.UID))
	}

	if err := c.Store.Kind.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Store.Kind {
	case StoreDisk:
		if c.Store.Dir == "" {
			errs = append(errs, errors.New("store.dir: required for the disk store"))
		}
	case StoreS3:
		if c.Store.S3.Endpoint == "" || c.Store.S3.Bucket == "" {
			errs = append(errs, errors.New("store.s3: endpoint and bucket are required for the s3 store"))
		}
	}

	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// Dependency returns the dependency with the given name.
func (c *Config) Dependency(name string) (descriptor.Descriptor, bool) {
	for _, d := range c.Dependencies {
		if d.Name == name {
			return d, true
		}
	}
	return descriptor.Descriptor{}, false
}

// DependenciesOfKind returns the dependencies of kind k in declaration order.
func (c *Config) DependenciesOfKind(k descriptor.Kind) []descriptor.Descriptor {
	var out []descriptor.Descriptor
	for _, d := range c.Dependencies {
		if d.Kind == k {
			out = append(out, d)
		}
	}
	return out
}

// DefaultConfig returns the default configuration: core 0.12.3, runtime
// 1.10.0 and the open_jtalk 1.11 dictionary for cpu-x64.
func DefaultConfig() *Config {
	return &Config{
		Variant:         descriptor.VariantCPUX64,
		Jobs:            0,
		ContainerEngine: ContainerEngineAuto,
		Dependencies:    DefaultDependencies(),
		Dictionary: DictionaryConfig{
			Strategy: DictStrategyNone,
			Source:   "open_jtalk_dic",
			Overlays:    []string{},
			UserEntries: []string{},
			Compiler: "/usr/lib/mecab/mecab-dict-index",
			DictBase: "ubuntu:20.04",
		},
		Engine: EngineConfig{
			InstallCmd: "pip3 install --no-cache-dir -r requirements.txt",
			Bin:        "/opt/voicevox_engine/run",
		},
		Image: ImageConfig{
			Tag:         "voicevox-engine:latest",
			RuntimeBase: "ubuntu:20.04",
			BuilderBase: "ubuntu:20.04",
			User:        "user",
			UID:         1000,
		},
		Layout: LayoutConfig{
			EngineDir:       "/opt/voicevox_engine",
			LdConf:          "/etc/ld.so.conf.d/vvimage.conf",
			DefaultUserDict: "/opt/voicevox_engine/default_user.dic",
		},
		Store: StoreConfig{Kind: StoreNone},
	}
}

// DefaultDependencies returns the default dependency descriptors.
func DefaultDependencies() []descriptor.Descriptor {
	return []descriptor.Descriptor{
		{
			Name:        "voicevox_core",
			Kind:        descriptor.KindCore,
			Version:     "0.12.3",
			URLTemplate: "https://github.com/VOICEVOX/voicevox_core/releases/download/{{.Version}}/core.zip",
			Layout:      []string{"core.h"},
			Target:      "/opt/voicevox_core",
		},
		{
			Name:        "onnxruntime",
			Kind:        descriptor.KindRuntime,
			Version:     "1.10.0",
			URLTemplate: "https://github.com/microsoft/onnxruntime/releases/download/{{.Tag}}/onnxruntime-linux-{{.RuntimeArch}}-{{.Version}}.tgz",
			Target:      "/opt/onnxruntime",
		},
		{
			Name:        "open_jtalk_dic",
			Kind:        descriptor.KindDictionary,
			Version:     "1.11",
			URLTemplate: "https://jaist.dl.sourceforge.net/project/open-jtalk/Dictionary/open_jtalk_dic-{{.Version}}/open_jtalk_dic_utf_8-{{.Version}}.tar.gz",
			Target:      "/opt/voicevox_engine/dic",
			StableName:  descriptor.DefaultDictionaryName,
		},
	}
}
