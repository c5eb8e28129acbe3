// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"github.com/spf13/cobra"

	"vvimage/internal/supervisor"
)

// newEntrypointCommand creates the `vvimage entrypoint` command, the ENTRYPOINT
// of the engine image. It reads its parameters from the environment only.
func newEntrypointCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "entrypoint [-- engine-args...]",
		Short: "Prepare the runtime user and start the engine",
		Long: `Prepare the runtime user's home directory and default user dictionary,
refresh the loader cache, then replace this process with the engine running
as the unprivileged user.

Launch parameters come from the environment (VV_VOICELIB_DIR, VV_RUNTIME_DIR,
VV_DICT_DIR, VV_HOST, PORT, THREADS, ...), optionally seeded from --env-file.
Arguments after -- are appended to the engine command line verbatim. The
command exits with the engine's exit code.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return failCommand(cmd, runEntrypoint(cmd, envFile, args))
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", "", "dotenv file with default launch parameters")
	return cmd
}

func runEntrypoint(cmd *cobra.Command, envFile string, args []string) error {
	cfg, err := supervisor.LoadConfigFromEnv(envFile)
	if err != nil {
		return err
	}
	cfg.ExtraArgs = args

	sup, err := supervisor.New(cfg)
	if err != nil {
		return err
	}
	code, err := sup.Run(cmd.Context())
	if err != nil || !code.IsSuccess() {
		return &ExitError{Code: code, Err: err, Engine: err == nil}
	}
	return nil
}
