// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"vvimage/internal/descriptor"
	"vvimage/internal/issue"
	"vvimage/internal/resolve"
	"vvimage/pkg/types"
)

// newDictCommand creates the `vvimage dict` command. The dictionary stage of
// the rendered Dockerfile runs it after the dependencies are resolved.
func newDictCommand(app *App) *cobra.Command {
	var (
		root string
		from string
	)
	cmd := &cobra.Command{
		Use:   "dict",
		Short: "Assemble the pronunciation dictionary",
		Long: `Assemble the pronunciation dictionary from the resolved dictionary
dependency and the configured CSV overlays.

The compiled base dictionary and the native libraries are read from their
targets under --from. The dictionary and the default user dictionary are
written to their image paths under --root.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return failCommand(cmd, runDict(cmd, app, root, from))
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "directory the dictionary is written under (required)")
	cmd.Flags().StringVar(&from, "from", "/", "directory the resolved dependencies live under")
	_ = cmd.MarkFlagRequired("root")
	return cmd
}

func runDict(cmd *cobra.Command, app *App, root, from string) error {
	ctx := cmd.Context()
	cfg, _, err := app.LoadConfig(ctx)
	if err != nil {
		return err
	}
	b, err := app.NewBuilder(cfg)
	if err != nil {
		return err
	}
	src, ok := b.DictionarySource()
	if !ok {
		return issue.NewErrorContext().
			WithOperation("assemble dictionary").
			WithSuggestion("Set dictionary.source to a dependency of kind \"dictionary\"").
			WithIssue(issue.BuildFileInvalidId).
			Wrap(fmt.Errorf("no dictionary source configured")).
			BuildError()
	}

	natives := append(cfg.DependenciesOfKind(descriptor.KindCore), cfg.DependenciesOfKind(descriptor.KindRuntime)...)
	sp := resolve.LibrarySearchPath(natives...).Under(from)
	base := filepath.Join(string(src.Target.Under(types.FilesystemPath(from))), src.DictionaryName())

	res, err := b.AssembleDictionary(ctx, base, sp, root)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s dictionary %s (%d overlay entries, strategy %s)\n",
		SuccessStyle.Render("✓"), CmdStyle.Render(res.Dir), res.Entries, cfg.Dictionary.Strategy)
	if res.UserDict != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "%s user dictionary %s (%d entries)\n", SuccessStyle.Render("✓"), CmdStyle.Render(res.UserDict), res.UserEntries)
	}
	return nil
}
