// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrChecksumMismatch indicates the computed SHA256 does not match the pinned one.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// ChecksumError provides details about a checksum verification failure.
// It wraps ErrChecksumMismatch so callers can use errors.Is for classification.
type ChecksumError struct {
	Name     string
	Expected string
	Got      string
}

// Error returns both digests for debugging.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum verification failed for %s\nExpected: %s\nGot:      %s", e.Name, e.Expected, e.Got)
}

// Unwrap returns ErrChecksumMismatch so callers can use errors.Is.
func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }

// Verify compares the streamed digest with expected (case-insensitive).
// An empty expected digest always passes.
func (d *Download) Verify(expected string) error {
	if expected == "" {
		return nil
	}
	if !strings.EqualFold(d.SHA256, expected) {
		return &ChecksumError{Name: d.Name, Expected: strings.ToLower(expected), Got: d.SHA256}
	}
	return nil
}

// FileSHA256 returns the lowercase hex SHA256 of the file at path.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }() // read-only handle

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing file %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
