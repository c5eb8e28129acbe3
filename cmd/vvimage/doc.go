// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for vvimage.
//
// This package implements the Cobra command hierarchy: artifact resolution,
// dictionary assembly, local root assembly, Dockerfile rendering and image
// builds, the container entrypoint, and configuration helpers.
package cmd
