// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"

	"vvimage/internal/issue"
	"vvimage/pkg/cueutil"
)

const (
	// AppName is the application name.
	AppName = "vvimage"
	// BuildFileName is the default build file looked up in the working directory.
	BuildFileName = "vvimage.cue"
	// EnvPrefix prefixes environment overrides (VVIMAGE_VARIANT, ...).
	EnvPrefix = "VVIMAGE"
)

//go:embed build_schema.cue
var buildSchema string

type (
	// LoadOptions defines explicit configuration loading inputs.
	LoadOptions struct {
		// ConfigFilePath forces loading from a specific build file when set.
		ConfigFilePath string
		// WorkDir is searched for BuildFileName when ConfigFilePath is empty.
		WorkDir string
	}

	// Provider loads configuration from explicit options.
	Provider interface {
		Load(ctx context.Context, opts LoadOptions) (*Config, string, error)
	}

	fileProvider struct{}
)

// NewProvider creates a configuration provider reading CUE build files.
func NewProvider() Provider {
	return &fileProvider{}
}

// Load returns the validated effective configuration and the path of the
// build file it came from ("" when only defaults apply).
func (p *fileProvider) Load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	return loadWithOptions(ctx, opts)
}

func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := opts.ConfigFilePath
	if resolvedPath == "" {
		candidate := BuildFileName
		if opts.WorkDir != "" {
			candidate = strings.TrimRight(opts.WorkDir, "/") + "/" + BuildFileName
		}
		if fileExists(candidate) {
			resolvedPath = candidate
		}
	} else if !fileExists(resolvedPath) {
		return nil, "", issue.NewErrorContext().
			WithOperation("load build file").
			WithResource(resolvedPath).
			WithSuggestion("Verify the file path is correct").
			WithSuggestion("Run 'vvimage config init' to create one").
			WithIssue(issue.BuildFileInvalidId).
			Wrap(fmt.Errorf("build file not found: %s", resolvedPath)).
			BuildError()
	}

	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load build file").
				WithResource(resolvedPath).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Compare it with the output of 'vvimage config init'").
				WithIssue(issue.BuildFileInvalidId).
				Wrap(err).
				BuildError()
		}
	}

	cfg := DefaultConfig()
	cfg.Dependencies = nil
	if err := v.Unmarshal(cfg); err != nil {
		return nil, "", fmt.Errorf("failed to decode config: %w", err)
	}
	if !v.IsSet("dependencies") {
		cfg.Dependencies = DefaultDependencies()
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate build file").
			WithResource(resolvedPath).
			WithIssue(issue.BuildFileInvalidId).
			Wrap(err).
			BuildError()
	}

	return cfg, resolvedPath, nil
}

// setDefaults registers every scalar default so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("variant", string(d.Variant))
	v.SetDefault("jobs", d.Jobs)
	v.SetDefault("container_engine", string(d.ContainerEngine))
	v.SetDefault("dictionary.strategy", string(d.Dictionary.Strategy))
	v.SetDefault("dictionary.source", d.Dictionary.Source)
	v.SetDefault("dictionary.base_source", d.Dictionary.BaseSource)
	v.SetDefault("dictionary.overlays", d.Dictionary.Overlays)
	v.SetDefault("dictionary.user_entries", d.Dictionary.UserEntries)
	v.SetDefault("dictionary.compiler", d.Dictionary.Compiler)
	v.SetDefault("dictionary.base_image", d.Dictionary.DictBase)
	v.SetDefault("engine.dir", d.Engine.Dir)
	v.SetDefault("engine.install_cmd", d.Engine.InstallCmd)
	v.SetDefault("engine.bin", string(d.Engine.Bin))
	v.SetDefault("image.tag", d.Image.Tag)
	v.SetDefault("image.runtime_base", d.Image.RuntimeBase)
	v.SetDefault("image.builder_base", d.Image.BuilderBase)
	v.SetDefault("image.user", d.Image.User)
	v.SetDefault("image.uid", d.Image.UID)
	v.SetDefault("image.binary_path", d.Image.BinaryPath)
	v.SetDefault("layout.engine_dir", string(d.Layout.EngineDir))
	v.SetDefault("layout.ld_conf", string(d.Layout.LdConf))
	v.SetDefault("layout.default_user_dict", string(d.Layout.DefaultUserDict))
	v.SetDefault("store.kind", string(d.Store.Kind))
	v.SetDefault("store.dir", d.Store.Dir)
	v.SetDefault("store.s3.endpoint", d.Store.S3.Endpoint)
	v.SetDefault("store.s3.bucket", d.Store.S3.Bucket)
	v.SetDefault("store.s3.region", d.Store.S3.Region)
	v.SetDefault("store.s3.prefix", d.Store.S3.Prefix)
	v.SetDefault("store.s3.access_key", d.Store.S3.AccessKey)
	v.SetDefault("store.s3.secret_key", d.Store.S3.SecretKey)
	v.SetDefault("store.s3.use_ssl", d.Store.S3.UseSSL)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
}

// loadCUEIntoViper parses a CUE build file, validates it against the
// #BuildFile schema, and merges its contents into Viper.
//
// This decodes into map[string]any instead of using cueutil.ParseAndDecode
// so that Viper keeps its defaults and env overrides for omitted fields.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read build file: %w", err)
	}

	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
		return err
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(buildSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile build schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return cueutil.FormatError(userValue.Err(), path)
	}

	unified := schemaValue.LookupPath(cue.ParsePath("#BuildFile")).Unify(userValue)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cueutil.FormatError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return cueutil.FormatError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge build file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// GenerateCUE renders cfg as a build file accepted by the schema.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// vvimage build file\n")
	sb.WriteString("// Versions and the variant declared here are the single source of truth.\n\n")

	fmt.Fprintf(&sb, "variant: %q\n", cfg.Variant)
	fmt.Fprintf(&sb, "jobs: %d\n", cfg.Jobs)
	fmt.Fprintf(&sb, "container_engine: %q\n", cfg.ContainerEngine)

	sb.WriteString("\ndependencies: [\n")
	for _, d := range cfg.Dependencies {
		sb.WriteString("\t{\n")
		fmt.Fprintf(&sb, "\t\tname:    %q\n", d.Name)
		fmt.Fprintf(&sb, "\t\tkind:    %q\n", d.Kind)
		fmt.Fprintf(&sb, "\t\tversion: %q\n", d.Version)
		fmt.Fprintf(&sb, "\t\turl:     %q\n", d.URLTemplate)
		fmt.Fprintf(&sb, "\t\ttarget:  %q\n", d.Target)
		if len(d.Layout) > 0 {
			fmt.Fprintf(&sb, "\t\tlayout:  %s\n", cueStringList(d.Layout))
		}
		if d.SHA256 != "" {
			fmt.Fprintf(&sb, "\t\tsha256:  %q\n", d.SHA256)
		}
		if d.StableName != "" {
			fmt.Fprintf(&sb, "\t\tstable_name: %q\n", d.StableName)
		}
		if d.BaseImage != "" {
			fmt.Fprintf(&sb, "\t\tbase_image: %q\n", d.BaseImage)
		}
		sb.WriteString("\t},\n")
	}
	sb.WriteString("]\n")

	sb.WriteString("\ndictionary: {\n")
	fmt.Fprintf(&sb, "\tstrategy:   %q\n", cfg.Dictionary.Strategy)
	fmt.Fprintf(&sb, "\tsource:     %q\n", cfg.Dictionary.Source)
	if cfg.Dictionary.BaseSource != "" {
		fmt.Fprintf(&sb, "\tbase_source: %q\n", cfg.Dictionary.BaseSource)
	}
	fmt.Fprintf(&sb, "\toverlays:   %s\n", cueStringList(cfg.Dictionary.Overlays))
	fmt.Fprintf(&sb, "\tuser_entries: %s\n", cueStringList(cfg.Dictionary.UserEntries))
	fmt.Fprintf(&sb, "\tcompiler:   %q\n", cfg.Dictionary.Compiler)
	fmt.Fprintf(&sb, "\tbase_image: %q\n", cfg.Dictionary.DictBase)
	sb.WriteString("}\n")

	sb.WriteString("\nengine: {\n")
	if cfg.Engine.Dir != "" {
		fmt.Fprintf(&sb, "\tdir:         %q\n", cfg.Engine.Dir)
	}
	fmt.Fprintf(&sb, "\tinstall_cmd: %q\n", cfg.Engine.InstallCmd)
	fmt.Fprintf(&sb, "\tbin:         %q\n", cfg.Engine.Bin)
	sb.WriteString("}\n")

	sb.WriteString("\nimage: {\n")
	fmt.Fprintf(&sb, "\ttag:          %q\n", cfg.Image.Tag)
	fmt.Fprintf(&sb, "\truntime_base: %q\n", cfg.Image.RuntimeBase)
	fmt.Fprintf(&sb, "\tbuilder_base: %q\n", cfg.Image.BuilderBase)
	fmt.Fprintf(&sb, "\tuser:         %q\n", cfg.Image.User)
	fmt.Fprintf(&sb, "\tuid:          %d\n", cfg.Image.UID)
	if cfg.Image.BinaryPath != "" {
		fmt.Fprintf(&sb, "\tbinary_path:  %q\n", cfg.Image.BinaryPath)
	}
	sb.WriteString("}\n")

	sb.WriteString("\nlayout: {\n")
	fmt.Fprintf(&sb, "\tengine_dir:        %q\n", cfg.Layout.EngineDir)
	fmt.Fprintf(&sb, "\tld_conf:           %q\n", cfg.Layout.LdConf)
	fmt.Fprintf(&sb, "\tdefault_user_dict: %q\n", cfg.Layout.DefaultUserDict)
	sb.WriteString("}\n")

	sb.WriteString("\nstore: {\n")
	fmt.Fprintf(&sb, "\tkind: %q\n", cfg.Store.Kind)
	if cfg.Store.Dir != "" {
		fmt.Fprintf(&sb, "\tdir:  %q\n", cfg.Store.Dir)
	}
	if cfg.Store.Kind == StoreS3 {
		sb.WriteString("\ts3: {\n")
		fmt.Fprintf(&sb, "\t\tendpoint: %q\n", cfg.Store.S3.Endpoint)
		fmt.Fprintf(&sb, "\t\tbucket:   %q\n", cfg.Store.S3.Bucket)
		if cfg.Store.S3.Region != "" {
			fmt.Fprintf(&sb, "\t\tregion:   %q\n", cfg.Store.S3.Region)
		}
		if cfg.Store.S3.Prefix != "" {
			fmt.Fprintf(&sb, "\t\tprefix:   %q\n", cfg.Store.S3.Prefix)
		}
		fmt.Fprintf(&sb, "\t\tuse_ssl:  %v\n", cfg.Store.S3.UseSSL)
		sb.WriteString("\t}\n")
	}
	sb.WriteString("}\n")

	if cfg.Metrics.Textfile != "" {
		fmt.Fprintf(&sb, "\nmetrics: textfile: %q\n", cfg.Metrics.Textfile)
	}

	return sb.String()
}

func cueStringList(items []string) string {
	quoted := make([]string, 0, len(items))
	for _, s := range items {
		quoted = append(quoted, fmt.Sprintf("%q", s))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
