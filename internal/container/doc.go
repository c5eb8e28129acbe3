// SPDX-License-Identifier: MPL-2.0

// Package container drives the Docker or Podman CLI to build the assembled
// speech-engine image.
//
// Engine covers the operations image assembly needs: availability and version
// checks, Build, ImageExists and RemoveImage. DockerEngine and PodmanEngine both
// embed BaseCLIEngine for argument construction and command execution.
//
// NewEngine(EngineType) selects the preferred engine and falls back to the
// other one; AutoDetectEngine tries Podman first.
package container
