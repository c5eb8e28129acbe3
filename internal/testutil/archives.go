// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"archive/tar"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// Entry is one member of a test archive. A trailing slash in Name makes a
// directory; a non-empty Link makes a symlink.
type Entry struct {
	Name string
	Body string
	Mode int64
	Link string
}

func (e Entry) mode() int64 {
	if e.Mode != 0 {
		return e.Mode
	}
	if strings.HasSuffix(e.Name, "/") {
		return 0o755
	}
	return 0o644
}

// WriteTarGz writes entries as a gzip-compressed tarball at path.
func WriteTarGz(t testing.TB, path string, entries []Entry) {
	t.Helper()
	f := create(t, path)
	gz := gzip.NewWriter(f)
	writeTar(t, gz, entries)
	MustClose(t, gz)
	MustClose(t, f)
}

// WriteTarZst writes entries as a zstd-compressed tarball at path.
func WriteTarZst(t testing.TB, path string, entries []Entry) {
	t.Helper()
	f := create(t, path)
	zw, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	writeTar(t, zw, entries)
	MustClose(t, zw)
	MustClose(t, f)
}

// WriteZip writes entries as a zip archive at path.
func WriteZip(t testing.TB, path string, entries []Entry) {
	t.Helper()
	f := create(t, path)
	zw := zip.NewWriter(f)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.Name, Method: zip.Deflate}
		switch {
		case e.Link != "":
			hdr.SetMode(os.ModeSymlink | 0o777)
		case strings.HasSuffix(e.Name, "/"):
			hdr.SetMode(os.ModeDir | os.FileMode(e.mode()))
		default:
			hdr.SetMode(os.FileMode(e.mode()))
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("zip entry %s: %v", e.Name, err)
		}
		body := e.Body
		if e.Link != "" {
			body = e.Link
		}
		if _, err := io.WriteString(w, body); err != nil {
			t.Fatalf("zip write %s: %v", e.Name, err)
		}
	}
	MustClose(t, zw)
	MustClose(t, f)
}

func writeTar(t testing.TB, w io.Writer, entries []Entry) {
	t.Helper()
	tw := tar.NewWriter(w)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Mode: e.mode()}
		switch {
		case e.Link != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.Link
		case strings.HasSuffix(e.Name, "/"):
			hdr.Typeflag = tar.TypeDir
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.Body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", e.Name, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := io.WriteString(tw, e.Body); err != nil {
				t.Fatalf("tar write %s: %v", e.Name, err)
			}
		}
	}
	MustClose(t, tw)
}

func create(t testing.TB, path string) *os.File {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	return f
}
