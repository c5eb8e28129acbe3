// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"vvimage/internal/config"
	"vvimage/internal/descriptor"
	"vvimage/internal/issue"
	"vvimage/internal/resolve"
)

// newResolveCommand creates the `vvimage resolve` command. Builder stages of
// the rendered Dockerfile run it once per dependency.
func newResolveCommand(app *App) *cobra.Command {
	var (
		only   []string
		root   string
		ldconf string
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Fetch, verify and normalize native dependencies",
		Long: `Fetch, verify and normalize the native dependencies of the build file
into their target directories under --root.

A target already holding the requested version and variant is reused.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return failCommand(cmd, runResolve(cmd, app, only, root, ldconf))
		},
	}
	cmd.Flags().StringArrayVar(&only, "only", nil, "resolve only the named dependency (repeatable)")
	cmd.Flags().StringVar(&root, "root", "/", "directory targets are placed under")
	cmd.Flags().StringVar(&ldconf, "ldconf", "", "write the loader configuration for the resolved libraries to this file")
	return cmd
}

func runResolve(cmd *cobra.Command, app *App, only []string, root, ldconf string) error {
	ctx := cmd.Context()
	cfg, _, err := app.LoadConfig(ctx)
	if err != nil {
		return err
	}
	deps, err := selectDependencies(cfg, only)
	if err != nil {
		return err
	}

	store, err := app.Store(cfg.Store)
	if err != nil {
		return err
	}
	r := resolve.New(resolve.WithRoot(root), resolve.WithStore(store))
	artifacts, err := r.ResolveAll(ctx, deps, cfg.Variant)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, a := range artifacts {
		note := ""
		if a.Cached {
			note = SubtitleStyle.Render(" (cached)")
		}
		fmt.Fprintf(out, "%s %s %s -> %s%s\n", SuccessStyle.Render("✓"),
			CmdStyle.Render(a.Descriptor.Name), a.Descriptor.Version, a.Descriptor.Target, note)
	}

	if ldconf != "" {
		if err := resolve.SearchPathOf(artifacts).WriteConf(ldconf); err != nil {
			return err
		}
	}
	return nil
}

// selectDependencies returns the configured dependencies named by only, in
// declaration order, or all of them when only is empty.
func selectDependencies(cfg *config.Config, only []string) ([]descriptor.Descriptor, error) {
	if len(only) == 0 {
		return cfg.Dependencies, nil
	}
	for _, name := range only {
		if _, ok := cfg.Dependency(name); !ok {
			return nil, issue.NewErrorContext().
				WithOperation("select dependency").
				WithResource(name).
				WithSuggestion("Run 'vvimage config show' to list the configured dependencies").
				WithIssue(issue.BuildFileInvalidId).
				Wrap(fmt.Errorf("dependency %q is not declared in the build file", name)).
				BuildError()
		}
	}
	var out []descriptor.Descriptor
	for _, d := range cfg.Dependencies {
		if slices.Contains(only, d.Name) {
			out = append(out, d)
		}
	}
	return out, nil
}
