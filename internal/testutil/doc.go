// SPDX-License-Identifier: MPL-2.0

// Package testutil provides test helpers that fail the test on error instead
// of returning it: filesystem helpers (MustMkdirAll, MustWriteFile,
// MustReadFile), archive builders for fetch and resolve tests (WriteZip,
// WriteTarGz, WriteTarZst), and a semaphore bounding concurrent container
// integration tests.
package testutil
