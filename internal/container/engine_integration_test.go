// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"

	"vvimage/internal/testutil"
)

// testcontainersAvailable reports whether testcontainers can reach a provider.
// Provider discovery can panic on hosts without a socket.
func testcontainersAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		return false
	}
	defer provider.Close()
	return true
}

func TestBuild_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	engine, err := AutoDetectEngine()
	if err != nil {
		t.Skipf("skipping container integration test: %v", err)
	}
	if !testcontainersAvailable() {
		t.Skip("skipping container integration test: testcontainers provider not available")
	}

	sem := testutil.ContainerSemaphore()
	sem <- struct{}{}
	defer func() { <-sem }()

	ctx := t.Context()
	dir := t.TempDir()
	dockerfile := "FROM debian:stable-slim\nRUN mkdir -p /opt/voicevox_core && touch /opt/voicevox_core/libcore.so\n"
	testutil.MustWriteFile(t, filepath.Join(dir, "Dockerfile"), []byte(dockerfile), 0o644)

	tag := fmt.Sprintf("vvimage-it:%d", time.Now().UnixNano())
	var out bytes.Buffer
	if err := engine.Build(ctx, BuildOptions{ContextDir: dir, Dockerfile: "Dockerfile", Tag: tag, Stdout: &out, Stderr: os.Stderr}); err != nil {
		t.Fatalf("Build() = %v\n%s", err, out.String())
	}
	t.Cleanup(func() { _ = engine.RemoveImage(t.Context(), tag, true) })

	if exists, _ := engine.ImageExists(ctx, tag); !exists {
		t.Fatalf("image %s not found after build", tag)
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: tag,
			Cmd:   []string{"sleep", "300"},
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start container: %v", err)
	}
	defer func() { _ = testcontainers.TerminateContainer(c) }()

	code, _, err := c.Exec(ctx, []string{"test", "-f", "/opt/voicevox_core/libcore.so"})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if code != 0 {
		t.Errorf("libcore.so missing from built image (exit %d)", code)
	}
}
