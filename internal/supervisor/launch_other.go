// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package supervisor

import (
	"context"

	"vvimage/pkg/types"
)

type (
	// ExecLauncher is unavailable on this platform.
	ExecLauncher struct{}

	// ChildLauncher is unavailable on this platform.
	ChildLauncher struct{}

	// ChildOption configures a ChildLauncher.
	ChildOption func(*ChildLauncher)
)

// NewChildLauncher creates a ChildLauncher.
func NewChildLauncher(...ChildOption) *ChildLauncher { return &ChildLauncher{} }

// Launch always fails with ErrLaunchUnsupported.
func (ExecLauncher) Launch(_ context.Context, l Launch) (types.ExitCode, error) {
	return 0, &LaunchError{Path: l.Path, Err: ErrLaunchUnsupported}
}

// Launch always fails with ErrLaunchUnsupported.
func (*ChildLauncher) Launch(_ context.Context, l Launch) (types.ExitCode, error) {
	return 0, &LaunchError{Path: l.Path, Err: ErrLaunchUnsupported}
}
