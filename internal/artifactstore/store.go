// SPDX-License-Identifier: MPL-2.0

package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"vvimage/internal/archive"
	"vvimage/internal/config"
	"vvimage/internal/descriptor"
)

const blobSuffix = ".tar.zst"

// ErrMiss is returned by Get when the store holds no artifact for a key.
var ErrMiss = errors.New("artifact not in store")

type (
	// Store reads and writes normalized artifact trees.
	Store interface {
		// Get restores the artifact for key into dest, which must exist and be
		// empty. It returns ErrMiss when the key is absent.
		Get(ctx context.Context, key descriptor.CacheKey, dest string) error
		// Put records the tree under src for key, replacing any previous entry.
		Put(ctx context.Context, key descriptor.CacheKey, src string) error
	}

	nopStore struct{}
)

// New builds the store selected by cfg. StoreNone yields a store that
// always misses and drops writes.
func New(cfg config.StoreConfig) (Store, error) {
	switch cfg.Kind {
	case config.StoreNone, "":
		return nopStore{}, nil
	case config.StoreDisk:
		return NewDiskStore(cfg.Dir)
	case config.StoreS3:
		return NewS3Store(cfg.S3)
	}
	return nil, cfg.Kind.Validate()
}

// Nop returns a store that always misses and drops writes.
func Nop() Store { return nopStore{} }

func (nopStore) Get(context.Context, descriptor.CacheKey, string) error { return ErrMiss }

func (nopStore) Put(context.Context, descriptor.CacheKey, string) error { return nil }

func blobName(key descriptor.CacheKey) string {
	return key.Slug() + blobSuffix
}

// packToTemp writes src as a tar.zst blob into a temp file in dir and
// returns its path. The caller removes or renames it.
func packToTemp(ctx context.Context, src, dir string) (_ string, err error) {
	f, err := os.CreateTemp(dir, ".put-*"+blobSuffix)
	if err != nil {
		return "", fmt.Errorf("creating temp blob: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()
	if err := archive.PackTarZst(ctx, src, f); err != nil {
		return "", fmt.Errorf("packing %s: %w", filepath.Base(src), err)
	}
	return f.Name(), nil
}
