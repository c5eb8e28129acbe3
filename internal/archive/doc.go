// SPDX-License-Identifier: MPL-2.0

// Package archive extracts release archives (zip, tar.gz/tgz, tar.zst, tar)
// into a scratch directory.
//
// Extraction refuses entries that would land outside the destination, symlinks
// pointing outside it, device nodes, and archives whose expanded size exceeds
// the configured limit. Regular file modes are preserved so shared objects keep
// their executable bits.
package archive
