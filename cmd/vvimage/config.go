// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vvimage/internal/config"
)

// newConfigCommand creates the `vvimage config` command tree.
// Subcommands that read configuration use the App's config provider.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the vvimage build file",
		Long: `Manage the vvimage build file.

The build file is read from --config, or from vvimage.cue in the working
directory. Without one the built-in defaults apply. Scalar settings can be
overridden with VVIMAGE_* environment variables (VVIMAGE_VARIANT,
VVIMAGE_IMAGE_TAG, ...).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return failCommand(cmd, showConfig(cmd, app))
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create a default build file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.BuildFileName
			if len(args) == 1 {
				path = args[0]
			}
			return failCommand(cmd, initConfig(cmd.OutOrStdout(), path, force))
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing build file")
	cfgCmd.AddCommand(initCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the build file in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, path, err := app.LoadConfig(cmd.Context())
			if err != nil {
				return failCommand(cmd, err)
			}
			if path == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "(defaults)")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := app.LoadConfig(cmd.Context())
			if err != nil {
				return failCommand(cmd, err)
			}
			fmt.Fprint(cmd.OutOrStdout(), config.GenerateCUE(cfg))
			return nil
		},
	})

	return cfgCmd
}

func showConfig(cmd *cobra.Command, app *App) error {
	cfg, path, err := app.LoadConfig(cmd.Context())
	if err != nil {
		return err
	}

	keyStyle := CmdStyle
	valueStyle := SuccessStyle
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(out)
	if path != "" {
		fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("Build file"), path)
	} else {
		fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("Build file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Fprintln(out)

	engine := string(cfg.ContainerEngine)
	if engine == "" {
		engine = "auto"
	}
	fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("variant"), valueStyle.Render(string(cfg.Variant)))
	fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("container_engine"), valueStyle.Render(engine))
	fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("image"), valueStyle.Render(cfg.Image.Tag))

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("dependencies"))
	for _, d := range cfg.Dependencies {
		fmt.Fprintf(out, "  - %s %s (%s) -> %s\n", valueStyle.Render(d.Name), d.Version, d.Kind, d.Target)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("dictionary"))
	fmt.Fprintf(out, "  strategy: %s\n", valueStyle.Render(string(cfg.Dictionary.Strategy)))
	fmt.Fprintf(out, "  source: %s\n", valueStyle.Render(cfg.Dictionary.Source))
	if len(cfg.Dictionary.Overlays) == 0 {
		fmt.Fprintf(out, "  overlays: %s\n", SubtitleStyle.Render("(none configured)"))
	} else {
		fmt.Fprintf(out, "  overlays: %s\n", valueStyle.Render(strings.Join(cfg.Dictionary.Overlays, ", ")))
	}
	if len(cfg.Dictionary.UserEntries) == 0 {
		fmt.Fprintf(out, "  user entries: %s\n", SubtitleStyle.Render("(empty default user dictionary)"))
	} else {
		fmt.Fprintf(out, "  user entries: %s\n", valueStyle.Render(strings.Join(cfg.Dictionary.UserEntries, ", ")))
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("store"), valueStyle.Render(string(cfg.Store.Kind)))
	return nil
}

func initConfig(out io.Writer, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := os.WriteFile(path, []byte(config.GenerateCUE(config.DefaultConfig())), 0o644); err != nil {
		return fmt.Errorf("failed to create build file: %w", err)
	}
	fmt.Fprintf(out, "%s Created default build file at %s\n", SuccessStyle.Render("✓"), path)
	return nil
}
