// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"vvimage/internal/assemble"
	"vvimage/internal/metrics"
)

// newBuildCommand creates the `vvimage build` command.
func newBuildCommand(app *App) *cobra.Command {
	var (
		root    string
		jobs    int
		workDir string
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Assemble the engine filesystem under a local root",
		Long: `Run the build graph locally and compose the published artifacts under
--root: native libraries, the dictionary, the default user dictionary, the
engine application and the loader configuration.

The shared library closure of the result is verified before the command
succeeds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return failCommand(cmd, runBuild(cmd, app, root, jobs, workDir))
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "directory the engine filesystem is assembled under (required)")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "maximum concurrent stages (default from the build file, then one per CPU)")
	cmd.Flags().StringVar(&workDir, "work-dir", "", "keep stage outputs in this directory instead of a temporary one")
	_ = cmd.MarkFlagRequired("root")
	return cmd
}

func runBuild(cmd *cobra.Command, app *App, root string, jobs int, workDir string) error {
	ctx := cmd.Context()
	cfg, path, err := app.LoadConfig(ctx)
	if err != nil {
		return err
	}
	store, err := app.Store(cfg.Store)
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder()
	opts := []assemble.Option{
		assemble.WithStore(store),
		assemble.WithObserver(recorder),
	}
	if jobs > 0 {
		opts = append(opts, assemble.WithJobs(jobs))
	}
	if workDir != "" {
		opts = append(opts, assemble.WithWorkDir(workDir))
	}
	b, err := app.NewBuilder(cfg, opts...)
	if err != nil {
		return err
	}

	log.Debug("building", "config", path, "variant", cfg.Variant, "root", root)
	report, buildErr := b.BuildRoot(ctx, root)
	recorder.BuildFinished(buildErr)
	if cfg.Metrics.Textfile != "" {
		if err := recorder.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.Warn("failed to write metrics", "path", cfg.Metrics.Textfile, "error", err)
		}
	}
	if buildErr != nil {
		return buildErr
	}

	out := cmd.OutOrStdout()
	for _, a := range report.Artifacts {
		fmt.Fprintf(out, "%s %s %s -> %s\n", SuccessStyle.Render("✓"),
			CmdStyle.Render(a.Descriptor.Name), a.Descriptor.Version, a.Descriptor.Target)
	}
	if report.Dictionary != nil {
		fmt.Fprintf(out, "%s dictionary (%s, %d overlay entries)\n", SuccessStyle.Render("✓"),
			cfg.Dictionary.Strategy, report.Dictionary.Entries)
	}
	fmt.Fprintf(out, "%s %s %s\n", SuccessStyle.Render("Assembled"), CmdStyle.Render(root),
		SubtitleStyle.Render("(search path "+report.SearchPath.String()+")"))
	return nil
}
