// SPDX-License-Identifier: MPL-2.0

package artifactstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"vvimage/internal/config"
	"vvimage/internal/descriptor"
	"vvimage/internal/testutil"
)

var coreKey = descriptor.CacheKey{Name: "voicevox_core", Version: "0.12.3", Variant: descriptor.VariantCPUX64}

func artifactTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(dir, "libcore.so"), []byte("core"), 0o755)
	testutil.MustWriteFile(t, filepath.Join(dir, "core.h"), []byte("header"), 0o644)
	return dir
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     config.StoreConfig
		want    string
		wantErr bool
	}{
		{name: "none", cfg: config.StoreConfig{Kind: config.StoreNone}, want: "artifactstore.nopStore"},
		{name: "empty kind", cfg: config.StoreConfig{}, want: "artifactstore.nopStore"},
		{name: "disk", cfg: config.StoreConfig{Kind: config.StoreDisk, Dir: t.TempDir()}, want: "*artifactstore.DiskStore"},
		{name: "disk without dir", cfg: config.StoreConfig{Kind: config.StoreDisk}, wantErr: true},
		{name: "s3", cfg: config.StoreConfig{Kind: config.StoreS3, S3: config.S3Config{Endpoint: "localhost:9000", Bucket: "artifacts"}}, want: "*artifactstore.S3Store"},
		{name: "s3 without bucket", cfg: config.StoreConfig{Kind: config.StoreS3, S3: config.S3Config{Endpoint: "localhost:9000"}}, wantErr: true},
		{name: "unknown", cfg: config.StoreConfig{Kind: "ftp"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := typeName(s); got != tt.want {
				t.Errorf("New() type = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNopStore(t *testing.T) {
	t.Parallel()

	s := nopStore{}
	if err := s.Put(context.Background(), coreKey, artifactTree(t)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Get(context.Background(), coreKey, t.TempDir()); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get() error = %v, want ErrMiss", err)
	}
}

func TestDiskStore_PutGet(t *testing.T) {
	t.Parallel()

	s, err := NewDiskStore(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := s.Get(ctx, coreKey, t.TempDir()); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get() on empty store error = %v, want ErrMiss", err)
	}

	src := artifactTree(t)
	if err := s.Put(ctx, coreKey, src); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	dest := t.TempDir()
	if err := s.Get(ctx, coreKey, dest); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := testutil.ListFiles(t, dest); !slices.Equal(got, []string{"core.h", "libcore.so"}) {
		t.Errorf("restored files = %v", got)
	}
	if got := string(testutil.MustReadFile(t, filepath.Join(dest, "libcore.so"))); got != "core" {
		t.Errorf("libcore.so = %q", got)
	}

	other := coreKey
	other.Variant = descriptor.VariantCPUArm64
	if err := s.Get(ctx, other, t.TempDir()); !errors.Is(err, ErrMiss) {
		t.Errorf("variant must be part of the key, got %v", err)
	}

	// no temp blobs left behind
	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != lockFileName && e.Name() != blobName(coreKey) {
			t.Errorf("unexpected store entry %s", e.Name())
		}
	}
}

func TestDiskStore_ConcurrentPut(t *testing.T) {
	t.Parallel()

	s, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	src := artifactTree(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Go(func() {
			errs <- s.Put(context.Background(), coreKey, src)
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	dest := t.TempDir()
	if err := s.Get(context.Background(), coreKey, dest); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
}

func TestS3Store_ObjectKey(t *testing.T) {
	t.Parallel()

	s, err := NewS3Store(config.S3Config{Endpoint: "localhost:9000", Bucket: "b", Prefix: "/cache/"})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := s.objectKey(coreKey), "cache/voicevox_core-0.12.3-cpu-x64.tar.zst"; got != want {
		t.Errorf("objectKey() = %q, want %q", got, want)
	}
	if s.region != defaultRegion {
		t.Errorf("region = %q", s.region)
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nopStore:
		return "artifactstore.nopStore"
	case *DiskStore:
		return "*artifactstore.DiskStore"
	case *S3Store:
		return "*artifactstore.S3Store"
	}
	return "unknown"
}
