// SPDX-License-Identifier: MPL-2.0

package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"vvimage/internal/archive"
	"vvimage/internal/descriptor"
)

// lockFileName is shared by every process using the same store directory.
const lockFileName = ".vvimage-store.lock"

// DiskStore keeps artifact blobs in a local directory. Concurrent vvimage
// processes serialize on an advisory lock in that directory.
type DiskStore struct {
	dir string
}

// NewDiskStore creates dir if needed and returns a store rooted there.
func NewDiskStore(dir string) (*DiskStore, error) {
	if dir == "" {
		return nil, errors.New("disk store directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &DiskStore{dir: abs}, nil
}

// Dir returns the store directory.
func (s *DiskStore) Dir() string { return s.dir }

// Get implements Store.
func (s *DiskStore) Get(ctx context.Context, key descriptor.CacheKey, dest string) error {
	lock, err := acquireLock(filepath.Join(s.dir, lockFileName), false)
	if err != nil && !errors.Is(err, errFlockUnavailable) {
		return err
	}
	defer lock.Release()

	blob := filepath.Join(s.dir, blobName(key))
	if _, err := os.Stat(blob); errors.Is(err, fs.ErrNotExist) {
		return ErrMiss
	} else if err != nil {
		return err
	}
	if err := archive.Extract(ctx, blob, archive.FormatTarZst, dest); err != nil {
		return fmt.Errorf("restoring %s: %w", key, err)
	}
	return nil
}

// Put implements Store. The blob is renamed into place so readers never
// observe a partial file.
func (s *DiskStore) Put(ctx context.Context, key descriptor.CacheKey, src string) error {
	tmp, err := packToTemp(ctx, src, s.dir)
	if err != nil {
		return err
	}

	lock, err := acquireLock(filepath.Join(s.dir, lockFileName), true)
	if err != nil && !errors.Is(err, errFlockUnavailable) {
		_ = os.Remove(tmp)
		return err
	}
	defer lock.Release()

	if err := os.Rename(tmp, filepath.Join(s.dir, blobName(key))); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("publishing %s: %w", key, err)
	}
	return nil
}
