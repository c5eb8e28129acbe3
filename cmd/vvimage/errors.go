// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"vvimage/internal/assemble"
	"vvimage/internal/config"
	"vvimage/internal/container"
	"vvimage/internal/dag"
	"vvimage/internal/descriptor"
	"vvimage/internal/dict"
	"vvimage/internal/fetch"
	"vvimage/internal/issue"
	"vvimage/internal/ldpath"
	"vvimage/internal/resolve"
	"vvimage/internal/supervisor"
	"vvimage/pkg/types"
)

// classifyError maps a command failure to an issue catalog ID and an exit
// code, and returns a styled message for CLI rendering.
func classifyError(err error, verbose bool) (issueID issue.Id, code types.ExitCode, styledMsg string) {
	issueID, code = classify(err)
	return issueID, code, fmt.Sprintf("\n%s %s\n", ErrorStyle.Render("Error:"), formatErrorForDisplay(err, verbose))
}

func classify(err error) (issue.Id, types.ExitCode) {
	switch {
	case errors.Is(err, supervisor.ErrStaging):
		return issue.StagingFailedId, types.ExitStagingFailure
	case errors.Is(err, supervisor.ErrLaunch), errors.Is(err, supervisor.ErrLaunchUnsupported):
		return issue.EngineLaunchFailedId, types.ExitLaunchFailure
	case errors.Is(err, supervisor.ErrInvalidConfig):
		return 0, types.ExitConfigFailure
	case errors.Is(err, descriptor.ErrInvalidVariant):
		return issue.UnknownVariantId, types.ExitConfigFailure
	case errors.Is(err, config.ErrInvalidConfig):
		return issue.BuildFileInvalidId, types.ExitConfigFailure
	case errors.Is(err, resolve.ErrResolution):
		return resolutionIssue(resolve.KindOf(err)), types.ExitBuildFailure
	case errors.Is(err, fetch.ErrChecksumMismatch):
		return issue.ChecksumMismatchId, types.ExitBuildFailure
	case errors.Is(err, dict.ErrDictionary):
		return issue.DictionaryInvalidId, types.ExitBuildFailure
	case errors.Is(err, dag.ErrCycle):
		return issue.DependencyCycleId, types.ExitBuildFailure
	case errors.Is(err, assemble.ErrComposition), errors.Is(err, ldpath.ErrUnresolved):
		return issue.CompositionFailedId, types.ExitBuildFailure
	case errors.Is(err, container.ErrNoEngineAvailable):
		return issue.ContainerEngineNotFoundId, types.ExitBuildFailure
	}

	var ae *issue.ActionableError
	if errors.As(err, &ae) && ae.IssueId != 0 {
		if ae.IssueId == issue.BuildFileInvalidId {
			return ae.IssueId, types.ExitConfigFailure
		}
		return ae.IssueId, types.ExitBuildFailure
	}
	return 0, types.ExitBuildFailure
}

func resolutionIssue(kind resolve.ErrorKind) issue.Id {
	switch kind {
	case resolve.KindUnknownVariant:
		return issue.UnknownVariantId
	case resolve.KindChecksum:
		return issue.ChecksumMismatchId
	case resolve.KindArchive:
		return issue.ArchiveInvalidId
	case resolve.KindLayout:
		return issue.UnexpectedLayoutId
	case resolve.KindDescriptor, resolve.KindVersion:
		return issue.BuildFileInvalidId
	default:
		return issue.ArtifactFetchFailedId
	}
}

// failCommand renders err with its issue guidance and converts it into an
// ExitError carrying the classified exit code. An ExitError keeps its own
// code and is rendered only when it wraps a cause.
func failCommand(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			renderServiceError(cmd.ErrOrStderr(), newServiceError(exitErr.Err, verbose))
		}
		return exitErr
	}

	svcErr := newServiceError(err, verbose)
	renderServiceError(cmd.ErrOrStderr(), svcErr)
	return &ExitError{Code: svcErr.Code, Err: err}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
