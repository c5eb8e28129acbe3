// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDownload_Verify(t *testing.T) {
	t.Parallel()

	dl := &Download{Name: "core.zip", SHA256: digest([]byte("x"))}

	if err := dl.Verify(""); err != nil {
		t.Errorf("empty digest should pass, got %v", err)
	}
	if err := dl.Verify(strings.ToUpper(dl.SHA256)); err != nil {
		t.Errorf("case-insensitive match should pass, got %v", err)
	}

	err := dl.Verify(strings.Repeat("0", 64))
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("Verify() = %v, want ErrChecksumMismatch", err)
	}
	var ce *ChecksumError
	if !errors.As(err, &ce) || ce.Got != dl.SHA256 || ce.Name != "core.zip" {
		t.Errorf("unexpected ChecksumError %+v", ce)
	}
}

func TestFileSHA256(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := FileSHA256(path)
	if err != nil {
		t.Fatalf("FileSHA256() error = %v", err)
	}
	if got != digest([]byte("hello")) {
		t.Errorf("FileSHA256() = %s", got)
	}
	if _, err := FileSHA256(path + ".missing"); err == nil {
		t.Error("missing file should error")
	}
}
