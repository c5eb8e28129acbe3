// SPDX-License-Identifier: MPL-2.0

// Package artifactstore persists normalized artifact directories between
// builds. An artifact is stored as one deterministic tar.zst blob keyed by
// (name, version, variant), either in a local directory guarded by a file
// lock or in an S3-compatible bucket.
package artifactstore
