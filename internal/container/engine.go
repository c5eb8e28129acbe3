// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
)

const (
	// EngineTypePodman selects the Podman CLI.
	EngineTypePodman EngineType = "podman"
	// EngineTypeDocker selects the Docker CLI.
	EngineTypeDocker EngineType = "docker"
	// EngineTypeAuto picks whichever engine is installed, Podman first.
	EngineTypeAuto EngineType = "auto"
)

var (
	// ErrNoEngineAvailable is the sentinel wrapped by EngineNotAvailableError.
	ErrNoEngineAvailable = errors.New("no container engine available")

	// ErrInvalidEngineType is returned for an engine name other than docker, podman or auto.
	ErrInvalidEngineType = errors.New("invalid container engine type")

	// ErrInvalidBuildOptions is the sentinel for BuildOptions.Validate failures.
	ErrInvalidBuildOptions = errors.New("invalid build options")
)

type (
	// Engine is the subset of container engine operations used to build images.
	Engine interface {
		// Name returns the engine name (docker or podman).
		Name() string
		// Available reports whether the engine binary is installed and answering.
		Available() bool
		// Version returns the engine version.
		Version(ctx context.Context) (string, error)
		// Build builds an image from a Dockerfile.
		Build(ctx context.Context, opts BuildOptions) error
		// ImageExists reports whether an image with the given tag exists locally.
		ImageExists(ctx context.Context, image string) (bool, error)
		// RemoveImage removes an image.
		RemoveImage(ctx context.Context, image string, force bool) error
	}

	// BuildOptions contains options for building an image.
	BuildOptions struct {
		// ContextDir is the build context directory.
		ContextDir string
		// Dockerfile is the path to the Dockerfile, relative to ContextDir unless absolute.
		Dockerfile string
		// Tag is the image tag.
		Tag string
		// Platform is passed as --platform when set (e.g. linux/arm64).
		Platform string
		// BuildArgs are build-time variables.
		BuildArgs map[string]string
		// NoCache disables the build cache.
		NoCache bool
		// Stdout receives build output.
		Stdout io.Writer
		// Stderr receives build errors.
		Stderr io.Writer
	}

	// EngineType identifies the container engine type.
	EngineType string

	// EngineNotAvailableError is returned when no usable container engine is found.
	EngineNotAvailableError struct {
		Engine string
		Reason string
	}
)

// Validate checks the engine name.
func (t EngineType) Validate() error {
	if slices.Contains([]EngineType{EngineTypeDocker, EngineTypePodman, EngineTypeAuto, ""}, t) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidEngineType, string(t))
}

// Validate checks the fields a build cannot run without.
func (o BuildOptions) Validate() error {
	if o.ContextDir == "" {
		return fmt.Errorf("%w: context directory is required", ErrInvalidBuildOptions)
	}
	if o.Tag == "" {
		return fmt.Errorf("%w: image tag is required", ErrInvalidBuildOptions)
	}
	return nil
}

func (e *EngineNotAvailableError) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// Unwrap returns ErrNoEngineAvailable.
func (e *EngineNotAvailableError) Unwrap() error { return ErrNoEngineAvailable }

// NewEngine creates a container engine for the preferred type, falling back to
// the other engine when the preferred one is not available.
func NewEngine(preferredType EngineType, opts ...BaseCLIEngineOption) (Engine, error) {
	switch preferredType {
	case EngineTypePodman:
		return firstAvailable("podman", NewPodmanEngine(opts...), NewDockerEngine(opts...))
	case EngineTypeDocker:
		return firstAvailable("docker", NewDockerEngine(opts...), NewPodmanEngine(opts...))
	case EngineTypeAuto, "":
		return AutoDetectEngine(opts...)
	default:
		return nil, preferredType.Validate()
	}
}

// AutoDetectEngine tries to find an available container engine.
// Podman is tried first since it is more commonly available in rootless setups.
func AutoDetectEngine(opts ...BaseCLIEngineOption) (Engine, error) {
	return firstAvailable("any", NewPodmanEngine(opts...), NewDockerEngine(opts...))
}

func firstAvailable(want string, engines ...Engine) (Engine, error) {
	for _, e := range engines {
		if e.Available() {
			return e, nil
		}
	}
	reason := "no container engine (podman or docker) is available on this system"
	if want != "any" {
		reason = want + " is not installed or not accessible, and the fallback engine is also not available"
	}
	return nil, &EngineNotAvailableError{Engine: want, Reason: reason}
}
