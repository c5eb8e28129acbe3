// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"testing"
)

func TestFilesystemPath_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    FilesystemPath
		wantErr bool
	}{
		{"absolute path", FilesystemPath("/usr/bin/bash"), false},
		{"relative path", FilesystemPath("run.sh"), false},
		{"dot path", FilesystemPath("."), false},
		{"empty is invalid", FilesystemPath(""), true},
		{"whitespace only is invalid", FilesystemPath("   "), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.path.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("FilesystemPath(%q).Validate() error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidFilesystemPath) {
				t.Errorf("error should wrap ErrInvalidFilesystemPath, got: %v", err)
			}
		})
	}
}

func TestImagePath_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    ImagePath
		wantErr bool
	}{
		{"core dir", "/opt/voicevox_core", false},
		{"runtime lib dir", "/opt/onnxruntime/lib", false},
		{"empty", "", true},
		{"relative", "opt/voicevox_core", true},
		{"root", "/", true},
		{"trailing slash", "/opt/voicevox_core/", true},
		{"dot dot", "/opt/../etc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.path.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ImagePath(%q).Validate() error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var ipErr *InvalidImagePathError
			if !errors.As(err, &ipErr) {
				t.Errorf("error should be *InvalidImagePathError, got: %T", err)
			}
			if !errors.Is(err, ErrInvalidImagePath) {
				t.Errorf("error should wrap ErrInvalidImagePath, got: %v", err)
			}
		})
	}
}

func TestImagePath_Under(t *testing.T) {
	t.Parallel()

	tests := []struct {
		root FilesystemPath
		path ImagePath
		want FilesystemPath
	}{
		{"/tmp/root", "/opt/voicevox_core", "/tmp/root/opt/voicevox_core"},
		{"/tmp/root/", "/opt/onnxruntime/lib", "/tmp/root/opt/onnxruntime/lib"},
	}

	for _, tt := range tests {
		if got := tt.path.Under(tt.root); got != tt.want {
			t.Errorf("ImagePath(%q).Under(%q) = %q, want %q", tt.path, tt.root, got, tt.want)
		}
	}
}
