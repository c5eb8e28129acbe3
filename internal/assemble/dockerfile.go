// SPDX-License-Identifier: MPL-2.0

package assemble

import (
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"vvimage/internal/config"
	"vvimage/internal/descriptor"
)

const (
	// ImageBinaryPath is where the vvimage binary lives in every stage.
	ImageBinaryPath = "/usr/local/bin/vvimage"
	// ImageToolDir holds the build file and dictionary inputs in builder stages.
	ImageToolDir = "/vvimage"
	// DefaultEnginePort is exposed by the final image.
	DefaultEnginePort = 50021

	dictRootDir = ImageToolDir + "/dict-root"
)

// stageAlias is the Dockerfile stage name of a dependency.
func stageAlias(name string) string {
	var sb strings.Builder
	sb.WriteString("dep-")
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

// RenderDockerfile renders the multi-stage build: one builder stage per
// dependency running `vvimage resolve`, a dictionary stage running
// `vvimage dict`, and a final runtime stage that only copies published
// artifacts. The Dockerfile expects the build context written by
// PrepareContext.
func (b *Builder) RenderDockerfile() (string, error) {
	cfg := b.cfg
	spec, err := cfg.Variant.Spec()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("# syntax=docker/dockerfile:1\n")
	fmt.Fprintf(&sb, "# Generated by vvimage for variant %s. Do not edit.\n", cfg.Variant)

	for _, d := range cfg.Dependencies {
		if err := b.renderResolveStage(&sb, d, spec); err != nil {
			return "", err
		}
	}

	src, hasSource := b.DictionarySource()
	if hasSource {
		if err := b.renderDictionaryStage(&sb, src, spec); err != nil {
			return "", err
		}
	}

	if err := b.renderRuntimeStage(&sb, src, hasSource, spec); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (b *Builder) renderResolveStage(sb *strings.Builder, d descriptor.Descriptor, spec descriptor.VariantSpec) error {
	base := d.BaseImage
	if base == "" {
		base = b.cfg.Image.BuilderBase
	}
	fmt.Fprintf(sb, "\n# %s %s (%s)\n", d.Name, d.Version, d.Kind)
	fmt.Fprintf(sb, "FROM --platform=%s %s AS %s\n", spec.Platform, base, stageAlias(d.Name))
	if err := aptInstall(sb, "ca-certificates"); err != nil {
		return err
	}
	writeToolCopies(sb)
	return runExec(sb, ImageBinaryPath, "resolve",
		"--config", path.Join(ImageToolDir, ContextConfig),
		"--only", d.Name)
}

func (b *Builder) renderDictionaryStage(sb *strings.Builder, src descriptor.Descriptor, spec descriptor.VariantSpec) error {
	cfg := b.cfg
	base := cfg.Dictionary.DictBase
	if base == "" {
		base = cfg.Image.BuilderBase
	}
	fmt.Fprintf(sb, "\n# dictionary: %s strategy over %s\n", cfg.Dictionary.Strategy, src.Name)
	fmt.Fprintf(sb, "FROM --platform=%s %s AS %s\n", spec.Platform, base, DictStageName)
	if err := aptInstall(sb, "mecab-utils"); err != nil {
		return err
	}
	writeToolCopies(sb)
	for _, d := range b.nativeDependencies() {
		fmt.Fprintf(sb, "COPY --from=%s %s %s\n", stageAlias(d.Name), d.Target, d.Target)
	}
	fmt.Fprintf(sb, "COPY --from=%s %s %s\n", stageAlias(src.Name), src.Target, src.Target)
	fmt.Fprintf(sb, "COPY %s/ %s/\n", ContextOverlayDir, path.Join(ImageToolDir, ContextOverlayDir))
	fmt.Fprintf(sb, "COPY %s/ %s/\n", ContextUserEntriesDir, path.Join(ImageToolDir, ContextUserEntriesDir))
	if cfg.Dictionary.Strategy == config.DictStrategyMerge {
		fmt.Fprintf(sb, "COPY %s/ %s/\n", ContextDictSourceDir, path.Join(ImageToolDir, ContextDictSourceDir))
	}
	return runExec(sb, ImageBinaryPath, "dict",
		"--config", path.Join(ImageToolDir, ContextConfig),
		"--root", dictRootDir)
}

func (b *Builder) renderRuntimeStage(sb *strings.Builder, src descriptor.Descriptor, hasSource bool, spec descriptor.VariantSpec) error {
	cfg := b.cfg
	sb.WriteString("\n# runtime\n")
	fmt.Fprintf(sb, "FROM --platform=%s %s\n", spec.Platform, cfg.Image.RuntimeBase)
	fmt.Fprintf(sb, "LABEL io.vvimage.variant=%s\n", strconv.Quote(string(cfg.Variant)))

	sb.WriteString("\n# Native artifacts\n")
	for _, d := range b.nativeDependencies() {
		fmt.Fprintf(sb, "COPY --from=%s %s %s\n", stageAlias(d.Name), d.Target, d.Target)
	}
	for _, d := range cfg.DependenciesOfKind(descriptor.KindDictionary) {
		if hasSource && d.Name == src.Name {
			continue
		}
		fmt.Fprintf(sb, "COPY --from=%s %s %s\n", stageAlias(d.Name), d.Target, d.Target)
	}
	if hasSource {
		fmt.Fprintf(sb, "COPY --from=%s %s/ /\n", DictStageName, dictRootDir)
	}
	fmt.Fprintf(sb, "COPY %s %s\n", ContextLdConf, cfg.Layout.LdConf)
	sb.WriteString("RUN [\"ldconfig\"]\n")

	sb.WriteString("\n# Engine application\n")
	if cfg.Engine.Dir != "" {
		fmt.Fprintf(sb, "COPY %s/ %s/\n", ContextEngineDir, cfg.Layout.EngineDir)
	}
	fmt.Fprintf(sb, "WORKDIR %s\n", cfg.Layout.EngineDir)
	if strings.TrimSpace(cfg.Engine.InstallCmd) != "" {
		fmt.Fprintf(sb, "RUN %s\n", cfg.Engine.InstallCmd)
	}

	sb.WriteString("\n# Runtime identity\n")
	useradd, err := shellJoin("useradd", "--create-home", "--uid", strconv.Itoa(cfg.Image.UID), "--user-group", cfg.Image.User)
	if err != nil {
		return err
	}
	fmt.Fprintf(sb, "RUN %s\n", useradd)

	sb.WriteString("\n# Entrypoint\n")
	fmt.Fprintf(sb, "COPY %s %s\n", ContextBinary, ImageBinaryPath)
	fmt.Fprintf(sb, "EXPOSE %d\n", DefaultEnginePort)
	entry, err := json.Marshal([]string{ImageBinaryPath, "entrypoint"})
	if err != nil {
		return err
	}
	fmt.Fprintf(sb, "ENTRYPOINT %s\n", entry)
	return nil
}

// writeToolCopies installs the vvimage binary and build file into a builder stage.
func writeToolCopies(sb *strings.Builder) {
	fmt.Fprintf(sb, "COPY %s %s\n", ContextBinary, ImageBinaryPath)
	fmt.Fprintf(sb, "COPY %s %s\n", ContextConfig, path.Join(ImageToolDir, ContextConfig))
}

func aptInstall(sb *strings.Builder, pkgs ...string) error {
	install, err := shellJoin(append([]string{"apt-get", "install", "-y", "--no-install-recommends"}, pkgs...)...)
	if err != nil {
		return err
	}
	fmt.Fprintf(sb, "RUN apt-get update && %s && rm -rf /var/lib/apt/lists/*\n", install)
	return nil
}

func runExec(sb *strings.Builder, argv ...string) error {
	data, err := json.Marshal(argv)
	if err != nil {
		return err
	}
	fmt.Fprintf(sb, "RUN %s\n", data)
	return nil
}

// shellJoin quotes each word for a POSIX shell and joins them with spaces.
func shellJoin(words ...string) (string, error) {
	quoted := make([]string, len(words))
	for i, w := range words {
		q, err := syntax.Quote(w, syntax.LangPOSIX)
		if err != nil {
			return "", fmt.Errorf("quoting %q: %w", w, err)
		}
		quoted[i] = q
	}
	return strings.Join(quoted, " "), nil
}
