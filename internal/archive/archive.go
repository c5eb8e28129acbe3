// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

const (
	// FormatZip is a zip archive.
	FormatZip Format = "zip"
	// FormatTarGz is a gzip-compressed tarball (.tar.gz or .tgz).
	FormatTarGz Format = "tar.gz"
	// FormatTarZst is a zstd-compressed tarball.
	FormatTarZst Format = "tar.zst"
	// FormatTar is an uncompressed tarball.
	FormatTar Format = "tar"

	// DefaultMaxTotalBytes bounds the expanded size of one archive (8 GiB).
	DefaultMaxTotalBytes int64 = 8 << 30
	// DefaultMaxEntries bounds the number of entries of one archive.
	DefaultMaxEntries = 100_000
)

var (
	// ErrUnsupportedFormat is returned when the archive name has no known extension.
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	// ErrUnsafeEntry is returned for entries escaping the destination.
	ErrUnsafeEntry = errors.New("unsafe archive entry")
	// ErrTooLarge is returned when the expanded archive exceeds the limits.
	ErrTooLarge = errors.New("archive exceeds extraction limits")
)

type (
	// Format identifies an archive container and compression.
	Format string

	// Option configures extraction limits.
	Option func(*extractor)

	extractor struct {
		dest          string
		maxTotalBytes int64
		maxEntries    int
		written       int64
		entries       int
	}
)

// WithMaxTotalBytes overrides DefaultMaxTotalBytes.
func WithMaxTotalBytes(n int64) Option {
	return func(e *extractor) { e.maxTotalBytes = n }
}

// WithMaxEntries overrides DefaultMaxEntries.
func WithMaxEntries(n int) Option {
	return func(e *extractor) { e.maxEntries = n }
}

// DetectFormat infers the archive format from a file name.
func DetectFormat(name string) (Format, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip, nil
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return FormatTarZst, nil
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
}

// Extract unpacks the archive at src into dest, which must exist. The
// context is checked between entries.
func Extract(ctx context.Context, src string, format Format, dest string, opts ...Option) error {
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	e := &extractor{dest: absDest, maxTotalBytes: DefaultMaxTotalBytes, maxEntries: DefaultMaxEntries}
	for _, opt := range opts {
		opt(e)
	}

	switch format {
	case FormatZip:
		return e.extractZip(ctx, src)
	case FormatTarGz, FormatTarZst, FormatTar:
		f, err := os.Open(src)
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer func() { _ = f.Close() }() // read-only handle

		var r io.Reader = f
		switch format {
		case FormatTarGz:
			gz, err := gzip.NewReader(f)
			if err != nil {
				return fmt.Errorf("creating gzip reader: %w", err)
			}
			defer func() { _ = gz.Close() }()
			r = gz
		case FormatTarZst:
			zr, err := zstd.NewReader(f)
			if err != nil {
				return fmt.Errorf("creating zstd reader: %w", err)
			}
			defer zr.Close()
			r = zr
		}
		return e.extractTar(ctx, tar.NewReader(r))
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

func (e *extractor) extractTar(ctx context.Context, tr *tar.Reader) error {
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}
		if err := e.admit(ctx); err != nil {
			return err
		}

		target, err := e.resolve(hdr.Name)
		if err != nil {
			return err
		}
		if target == e.dest {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := e.writeFile(target, tr, fs.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := e.symlink(target, hdr.Linkname); err != nil {
				return err
			}
		case tar.TypeLink:
			src, err := e.resolve(hdr.Linkname)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Link(src, target); err != nil {
				return fmt.Errorf("creating hard link %s: %w", hdr.Name, err)
			}
		case tar.TypeXGlobalHeader, tar.TypeXHeader:
			continue
		default:
			return fmt.Errorf("%w: %s has unsupported type %q", ErrUnsafeEntry, hdr.Name, hdr.Typeflag)
		}
	}
}

func (e *extractor) extractZip(ctx context.Context, src string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("opening zip: %w", err)
	}
	defer func() { _ = zr.Close() }() // read-only handle

	for _, f := range zr.File {
		if err := e.admit(ctx); err != nil {
			return err
		}
		target, err := e.resolve(f.Name)
		if err != nil {
			return err
		}
		if target == e.dest {
			continue
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case mode&fs.ModeSymlink != 0:
			link, err := readZipLink(f)
			if err != nil {
				return err
			}
			if err := e.symlink(target, link); err != nil {
				return err
			}
		case mode.IsRegular():
			rc, err := f.Open()
			if err != nil {
				return fmt.Errorf("opening zip entry %s: %w", f.Name, err)
			}
			perm := mode.Perm()
			if perm == 0 {
				perm = 0o644
			}
			err = e.writeFile(target, rc, perm)
			_ = rc.Close()
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %s has unsupported mode %s", ErrUnsafeEntry, f.Name, mode)
		}
	}
	return nil
}

func readZipLink(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(io.LimitReader(rc, 4096))
	if err != nil {
		return "", fmt.Errorf("reading symlink %s: %w", f.Name, err)
	}
	return string(b), nil
}

// admit enforces the entry limit and honors cancellation.
func (e *extractor) admit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.entries++
	if e.entries > e.maxEntries {
		return fmt.Errorf("%w: more than %d entries", ErrTooLarge, e.maxEntries)
	}
	return nil
}

// resolve maps an entry name to a path under dest, rejecting escapes.
func (e *extractor) resolve(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimLeft(name, "/")))
	if filepath.IsAbs(name) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafeEntry, name)
	}
	target := filepath.Join(e.dest, clean)
	if target != e.dest && !strings.HasPrefix(target, e.dest+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafeEntry, name)
	}
	return target, nil
}

func (e *extractor) writeFile(target string, r io.Reader, perm fs.FileMode) (err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o200)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	remaining := e.maxTotalBytes - e.written
	n, err := io.Copy(f, io.LimitReader(r, remaining+1))
	e.written += n
	if err != nil {
		return fmt.Errorf("extracting %s: %w", target, err)
	}
	if e.written > e.maxTotalBytes {
		return fmt.Errorf("%w: more than %d bytes", ErrTooLarge, e.maxTotalBytes)
	}
	return nil
}

// symlink creates target -> link after checking the link stays inside dest.
func (e *extractor) symlink(target, link string) error {
	if filepath.IsAbs(link) {
		return fmt.Errorf("%w: absolute symlink %s -> %s", ErrUnsafeEntry, target, link)
	}
	resolved := filepath.Join(filepath.Dir(target), link)
	if resolved != e.dest && !strings.HasPrefix(resolved, e.dest+string(filepath.Separator)) {
		return fmt.Errorf("%w: symlink %s -> %s escapes destination", ErrUnsafeEntry, target, link)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	_ = os.Remove(target) // later entries replace earlier ones
	return os.Symlink(link, target)
}
