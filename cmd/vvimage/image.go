// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vvimage/internal/assemble"
	"vvimage/internal/container"
)

// newImageCommand creates the `vvimage image` command tree.
func newImageCommand(app *App) *cobra.Command {
	imageCmd := &cobra.Command{
		Use:   "image",
		Short: "Render or build the engine container image",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var output string
	dockerfileCmd := &cobra.Command{
		Use:   "dockerfile",
		Short: "Print the multi-stage Dockerfile",
		Long: `Print the multi-stage Dockerfile for the build file: one builder stage
per dependency, a dictionary stage, and a runtime stage that only copies
normalized artifacts.

The Dockerfile expects the build context prepared by 'vvimage image build'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return failCommand(cmd, renderDockerfile(cmd, app, output))
		},
	}
	dockerfileCmd.Flags().StringVarP(&output, "output", "o", "", "write the Dockerfile to this file instead of stdout")

	var (
		noCache bool
		tag     string
		binary  string
	)
	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build the image with docker or podman",
		Long: `Prepare a build context holding the vvimage binary, the build file,
the dictionary inputs and the engine application, then build the image
with the configured container engine (podman or docker when unset).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return failCommand(cmd, buildImage(cmd, app, noCache, tag, binary))
		},
	}
	buildCmd.Flags().BoolVar(&noCache, "no-cache", false, "do not use the engine's layer cache")
	buildCmd.Flags().StringVarP(&tag, "tag", "t", "", "image tag (default from the build file)")
	buildCmd.Flags().StringVar(&binary, "binary", "", "linux vvimage binary copied into the image (default the running executable)")

	imageCmd.AddCommand(dockerfileCmd, buildCmd)
	return imageCmd
}

func renderDockerfile(cmd *cobra.Command, app *App, output string) error {
	cfg, _, err := app.LoadConfig(cmd.Context())
	if err != nil {
		return err
	}
	b, err := app.NewBuilder(cfg)
	if err != nil {
		return err
	}
	df, err := b.RenderDockerfile()
	if err != nil {
		return err
	}
	if output == "" {
		_, err = fmt.Fprint(cmd.OutOrStdout(), df)
		return err
	}
	if err := os.WriteFile(output, []byte(df), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s wrote %s\n", SuccessStyle.Render("✓"), CmdStyle.Render(output))
	return nil
}

func buildImage(cmd *cobra.Command, app *App, noCache bool, tag, binary string) error {
	ctx := cmd.Context()
	cfg, _, err := app.LoadConfig(ctx)
	if err != nil {
		return err
	}
	if tag != "" {
		cfg.Image.Tag = tag
	}
	b, err := app.NewBuilder(cfg)
	if err != nil {
		return err
	}
	engine, err := container.NewEngine(container.EngineType(cfg.ContainerEngine))
	if err != nil {
		return err
	}

	opts := []assemble.ImageOption{assemble.WithOutput(cmd.ErrOrStderr(), cmd.ErrOrStderr())}
	if binary != "" {
		opts = append(opts, assemble.WithBinaryPath(binary))
	}
	built, err := assemble.NewImageBuilder(b, engine, opts...).Build(ctx, noCache)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s built %s with %s\n", SuccessStyle.Render("✓"), CmdStyle.Render(built), engine.Name())
	return nil
}
