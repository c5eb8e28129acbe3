// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"vvimage/internal/issue"
	"vvimage/pkg/types"
)

// issueStyle is the glamour style catalog guidance is rendered with.
const issueStyle = "dark"

// ServiceError is a classified command failure: the cause, the catalog entry
// that explains it and the status the process exits with.
type ServiceError struct {
	// Err is the underlying error (never nil).
	Err error
	// IssueID selects catalog guidance; zero renders none.
	IssueID issue.Id
	// Code is the exit status for this failure class.
	Code types.ExitCode
	// StyledMessage is the pre-rendered error text.
	StyledMessage string
}

// newServiceError classifies err. It panics when err is nil.
func newServiceError(err error, verboseMode bool) *ServiceError {
	if err == nil {
		panic("ServiceError: Err must not be nil")
	}
	issueID, code, styled := classifyError(err, verboseMode)
	return &ServiceError{
		Err:           err,
		IssueID:       issueID,
		Code:          code,
		StyledMessage: styled,
	}
}

func (e *ServiceError) Error() string { return e.Err.Error() }

func (e *ServiceError) Unwrap() error { return e.Err }

// renderServiceError writes the styled message followed by the catalog
// guidance for the failure.
func renderServiceError(stderr io.Writer, svcErr *ServiceError) {
	if svcErr == nil {
		return
	}

	if svcErr.StyledMessage != "" {
		fmt.Fprint(stderr, svcErr.StyledMessage)
	}

	if svcErr.IssueID == 0 {
		return
	}

	entry := issue.Get(svcErr.IssueID)
	if entry == nil {
		log.Warn("no catalog entry for issue", "issue", svcErr.IssueID)
		return
	}
	rendered, err := entry.Render(issueStyle)
	if err != nil {
		log.Warn("failed to render issue catalog entry", "issue", svcErr.IssueID, "error", err)
		return
	}
	fmt.Fprint(stderr, rendered)
}
