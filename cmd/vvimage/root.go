// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// LogLevelEnv overrides the log level (debug, info, warn, error).
const LogLevelEnv = "VVIMAGE_LOG_LEVEL"

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables debug logging and full error chains.
	verbose bool
	// cfgFile allows specifying a custom build file.
	cfgFile string

	app = NewApp(Dependencies{})

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "vvimage",
		Short: "Assemble and run VOICEVOX engine images",
		Long: TitleStyle.Render("vvimage") + SubtitleStyle.Render(" - Assemble and run VOICEVOX engine images") + `

vvimage resolves the native dependencies of the speech engine (the core
library, the tensor runtime and the pronunciation dictionary) for a
hardware variant, assembles them into an engine filesystem, and runs as
the container entrypoint that drops privileges and starts the engine.

Builds are described by a 'vvimage.cue' build file in the working
directory, or the file given with --config.

` + SubtitleStyle.Render("Examples:") + `
  vvimage build --root ./rootfs     Assemble an engine root locally
  vvimage image dockerfile          Print the multi-stage Dockerfile
  vvimage image build               Build the image with docker or podman
  vvimage config init               Create a default build file`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return configureLogging()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging and full error chains")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "build file (default is ./vvimage.cue)")

	rootCmd.AddCommand(newResolveCommand(app))
	rootCmd.AddCommand(newDictCommand(app))
	rootCmd.AddCommand(newBuildCommand(app))
	rootCmd.AddCommand(newImageCommand(app))
	rootCmd.AddCommand(newEntrypointCommand())
	rootCmd.AddCommand(newConfigCommand(app))
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the root command and exits with the code carried by an
// ExitError. This is called by main.main().
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(exitStatus(err))
	}
}

// configureLogging sets the default logger level from --verbose or
// VVIMAGE_LOG_LEVEL. Logs always go to stderr.
func configureLogging() error {
	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(true)
	switch {
	case verbose:
		log.SetLevel(log.DebugLevel)
	case os.Getenv(LogLevelEnv) != "":
		level, err := log.ParseLevel(strings.ToLower(os.Getenv(LogLevelEnv)))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", LogLevelEnv, err)
		}
		log.SetLevel(level)
	default:
		log.SetLevel(log.InfoLevel)
	}
	return nil
}
