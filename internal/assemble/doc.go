// SPDX-License-Identifier: MPL-2.0

// Package assemble composes resolved artifacts into the engine's runtime
// filesystem.
//
// A Builder turns the build configuration into a stage graph: one resolver
// stage per dependency and a dictionary stage that consumes the native
// libraries and the base dictionary. BuildRoot runs the graph locally and
// composes the published outputs under a root directory. RenderDockerfile and
// ImageBuilder express the same graph as a multi-stage container build.
package assemble
