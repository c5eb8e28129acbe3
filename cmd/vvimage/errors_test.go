// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"vvimage/internal/assemble"
	"vvimage/internal/container"
	"vvimage/internal/dag"
	"vvimage/internal/descriptor"
	"vvimage/internal/dict"
	"vvimage/internal/issue"
	"vvimage/internal/ldpath"
	"vvimage/internal/resolve"
	"vvimage/internal/supervisor"
	"vvimage/pkg/types"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantIssue issue.Id
		wantCode  types.ExitCode
	}{
		{
			name:      "staging",
			err:       &supervisor.StagingError{Step: "home", Path: "/home/user", Err: errors.New("read-only file system")},
			wantIssue: issue.StagingFailedId,
			wantCode:  types.ExitStagingFailure,
		},
		{
			name:      "launch",
			err:       &supervisor.LaunchError{Path: "/opt/voicevox_engine/run", Err: errors.New("no such file")},
			wantIssue: issue.EngineLaunchFailedId,
			wantCode:  types.ExitLaunchFailure,
		},
		{
			name:     "launch configuration",
			err:      fmt.Errorf("%w: PORT: out of range", supervisor.ErrInvalidConfig),
			wantCode: types.ExitConfigFailure,
		},
		{
			name:      "unknown variant",
			err:       &descriptor.InvalidVariantError{Value: "cpu-riscv"},
			wantIssue: issue.UnknownVariantId,
			wantCode:  types.ExitConfigFailure,
		},
		{
			name:      "fetch failure",
			err:       &resolve.ResolutionError{Kind: resolve.KindFetch, Name: "onnxruntime", Err: errors.New("404")},
			wantIssue: issue.ArtifactFetchFailedId,
			wantCode:  types.ExitBuildFailure,
		},
		{
			name:      "checksum",
			err:       &resolve.ResolutionError{Kind: resolve.KindChecksum, Name: "onnxruntime", Err: errors.New("mismatch")},
			wantIssue: issue.ChecksumMismatchId,
			wantCode:  types.ExitBuildFailure,
		},
		{
			name:      "archive",
			err:       &resolve.ResolutionError{Kind: resolve.KindArchive, Name: "voicevox_core", Err: errors.New("truncated")},
			wantIssue: issue.ArchiveInvalidId,
			wantCode:  types.ExitBuildFailure,
		},
		{
			name:      "layout",
			err:       &resolve.ResolutionError{Kind: resolve.KindLayout, Name: "voicevox_core", Err: errors.New("no libcore")},
			wantIssue: issue.UnexpectedLayoutId,
			wantCode:  types.ExitBuildFailure,
		},
		{
			name:      "dictionary",
			err:       &dict.DictionaryError{Err: errors.New("bad row")},
			wantIssue: issue.DictionaryInvalidId,
			wantCode:  types.ExitBuildFailure,
		},
		{
			name:      "cycle",
			err:       fmt.Errorf("scheduling: %w", dag.ErrCycle),
			wantIssue: issue.DependencyCycleId,
			wantCode:  types.ExitBuildFailure,
		},
		{
			name:      "composition",
			err:       &assemble.CompositionError{Artifact: "onnxruntime", Err: errors.New("missing")},
			wantIssue: issue.CompositionFailedId,
			wantCode:  types.ExitBuildFailure,
		},
		{
			name:      "unresolved library",
			err:       fmt.Errorf("closure: %w", ldpath.ErrUnresolved),
			wantIssue: issue.CompositionFailedId,
			wantCode:  types.ExitBuildFailure,
		},
		{
			name:      "no container engine",
			err:       &container.EngineNotAvailableError{Engine: "any", Reason: "not installed"},
			wantIssue: issue.ContainerEngineNotFoundId,
			wantCode:  types.ExitBuildFailure,
		},
		{
			name: "build file",
			err: issue.NewErrorContext().
				WithOperation("load build file").
				WithIssue(issue.BuildFileInvalidId).
				Wrap(errors.New("syntax error")).
				BuildError(),
			wantIssue: issue.BuildFileInvalidId,
			wantCode:  types.ExitConfigFailure,
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			wantCode: types.ExitBuildFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gotIssue, gotCode := classify(tt.err)
			if gotIssue != tt.wantIssue {
				t.Errorf("issue = %d, want %d", gotIssue, tt.wantIssue)
			}
			if gotCode != tt.wantCode {
				t.Errorf("code = %d, want %d", gotCode, tt.wantCode)
			}
		})
	}
}

func TestClassifyError_StyledMessage(t *testing.T) {
	t.Parallel()

	err := issue.NewErrorContext().
		WithOperation("load build file").
		WithResource("vvimage.cue").
		WithSuggestion("Run 'vvimage config init'").
		Wrap(errors.New("not found")).
		BuildError()

	_, _, msg := classifyError(err, false)
	if !strings.Contains(msg, "Error:") || !strings.Contains(msg, "vvimage config init") {
		t.Errorf("styled message = %q", msg)
	}
	if strings.Contains(msg, "Error chain:") {
		t.Errorf("non-verbose message should not include the chain: %q", msg)
	}

	_, _, verboseMsg := classifyError(err, true)
	if !strings.Contains(verboseMsg, "Error chain:") {
		t.Errorf("verbose message should include the chain: %q", verboseMsg)
	}
}

func TestFailCommand(t *testing.T) {
	t.Parallel()

	t.Run("nil", func(t *testing.T) {
		t.Parallel()
		if err := failCommand(&cobra.Command{}, nil); err != nil {
			t.Errorf("failCommand(nil) = %v", err)
		}
	})

	t.Run("classified", func(t *testing.T) {
		t.Parallel()
		var stderr bytes.Buffer
		cmd := &cobra.Command{}
		cmd.SetErr(&stderr)
		cause := &supervisor.StagingError{Step: "ownership", Path: "/home/user", Err: errors.New("operation not permitted")}

		err := failCommand(cmd, cause)

		var exitErr *ExitError
		if !errors.As(err, &exitErr) || exitErr.Code != types.ExitStagingFailure {
			t.Fatalf("error = %v, want ExitError with code %d", err, types.ExitStagingFailure)
		}
		if !errors.Is(err, supervisor.ErrStaging) {
			t.Error("ExitError should wrap the staging error")
		}
		if !cmd.SilenceErrors || !cmd.SilenceUsage {
			t.Error("command errors and usage should be silenced")
		}
		if !strings.Contains(stderr.String(), "operation not permitted") {
			t.Errorf("stderr = %q", stderr.String())
		}
	})

	t.Run("engine exit code passes through", func(t *testing.T) {
		t.Parallel()
		var stderr bytes.Buffer
		cmd := &cobra.Command{}
		cmd.SetErr(&stderr)

		err := failCommand(cmd, &ExitError{Code: 3})

		var exitErr *ExitError
		if !errors.As(err, &exitErr) || exitErr.Code != 3 {
			t.Fatalf("error = %v, want ExitError with code 3", err)
		}
		if stderr.Len() != 0 {
			t.Errorf("bare exit codes should not render anything, got %q", stderr.String())
		}
	})

	t.Run("exit code with cause keeps its code", func(t *testing.T) {
		t.Parallel()
		var stderr bytes.Buffer
		cmd := &cobra.Command{}
		cmd.SetErr(&stderr)
		cause := &supervisor.LaunchError{Path: "/opt/voicevox_engine/run", Err: errors.New("exec format error")}

		err := failCommand(cmd, &ExitError{Code: types.ExitLaunchFailure, Err: cause})

		var exitErr *ExitError
		if !errors.As(err, &exitErr) || exitErr.Code != types.ExitLaunchFailure {
			t.Fatalf("error = %v, want ExitError with code %d", err, types.ExitLaunchFailure)
		}
		if !strings.Contains(stderr.String(), "exec format error") {
			t.Errorf("stderr = %q", stderr.String())
		}
	})
}

func TestExitError(t *testing.T) {
	t.Parallel()

	cause := errors.New("read-only file system")
	tests := []struct {
		name       string
		err        error
		wantMsg    string
		wantStatus int
	}{
		{name: "success", err: nil, wantStatus: 0},
		{name: "classified build failure", err: &ExitError{Code: types.ExitBuildFailure, Err: cause}, wantMsg: "read-only file system", wantStatus: 65},
		{name: "engine status", err: &ExitError{Code: 3, Engine: true}, wantMsg: "engine exited with status 3", wantStatus: 3},
		{name: "engine killed by signal", err: &ExitError{Code: 143, Engine: true}, wantMsg: "engine exited with status 143", wantStatus: 143},
		{name: "bare status", err: &ExitError{Code: types.ExitConfigFailure}, wantMsg: "exit status 78", wantStatus: 78},
		{name: "wrapped exit error", err: fmt.Errorf("fang: %w", &ExitError{Code: types.ExitLaunchFailure, Err: cause}), wantMsg: "fang: read-only file system", wantStatus: 127},
		{name: "flag parsing error", err: errors.New("unknown flag: --nope"), wantMsg: "unknown flag: --nope", wantStatus: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := exitStatus(tt.err); got != tt.wantStatus {
				t.Errorf("exitStatus() = %d, want %d", got, tt.wantStatus)
			}
			if tt.err != nil && tt.err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.wantMsg)
			}
		})
	}

	if !errors.Is(&ExitError{Code: 65, Err: cause}, cause) {
		t.Error("ExitError should unwrap to its cause")
	}
	if (&ExitError{Code: 3, Engine: true}).Unwrap() != nil {
		t.Error("Unwrap() should be nil without a cause")
	}
}
