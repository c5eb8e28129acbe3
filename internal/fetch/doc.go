// SPDX-License-Identifier: MPL-2.0

// Package fetch downloads release archives into a scratch directory.
//
// A download either completes fully or fails: short bodies (fewer bytes than
// Content-Length), oversize bodies and non-200 responses are errors and the
// partial file is removed. The SHA256 digest is computed while streaming so
// verification needs no second read.
package fetch
