// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
)

// DefaultMaxBytes bounds a single archive download (2 GiB).
const DefaultMaxBytes int64 = 2 << 30

var (
	// ErrNotFound is returned when the release asset does not exist upstream.
	ErrNotFound = errors.New("release asset not found")

	// ErrIncomplete is returned when fewer bytes arrived than announced.
	ErrIncomplete = errors.New("incomplete download")

	// ErrTooLarge is returned when a body exceeds the configured limit.
	ErrTooLarge = errors.New("download exceeds size limit")
)

type (
	// Client downloads release archives over HTTP(S) or from file:// URLs.
	Client struct {
		httpClient *http.Client
		token      string
		userAgent  string
		maxBytes   int64
	}

	// ClientOption configures a Client during construction.
	ClientOption func(*Client)

	// Download describes an archive stored in the scratch directory.
	Download struct {
		// Path is the local file. The caller removes it.
		Path string
		// Name is the base name of the URL path, used for format detection.
		Name string
		// Size is the number of bytes written.
		Size int64
		// SHA256 is the lowercase hex digest of the content.
		SHA256 string
	}

	// StatusError is returned for an unexpected HTTP status.
	StatusError struct {
		URL        string
		StatusCode int
	}
)

// WithHTTPClient sets a custom HTTP client, useful for tests or proxies.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithToken sets a GitHub token attached to requests for github.com hosts.
func WithToken(token string) ClientOption {
	return func(cl *Client) { cl.token = token }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(cl *Client) { cl.userAgent = ua }
}

// WithMaxBytes overrides DefaultMaxBytes.
func WithMaxBytes(n int64) ClientOption {
	return func(cl *Client) { cl.maxBytes = n }
}

// NewClient creates a Client with defaults.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		userAgent:  "vvimage/dev",
		maxBytes:   DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads rawURL into a new temporary file in dir.
func (c *Client) Fetch(ctx context.Context, rawURL, dir string) (*Download, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing url: %w", err)
	}

	body, expected, err := c.open(ctx, u)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }() // read-only body

	dl, err := c.store(body, expected, dir)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", redactURL(rawURL), err)
	}
	dl.Name = path.Base(u.Path)
	return dl, nil
}

// open returns the content stream and its announced length (-1 if unknown).
func (c *Client) open(ctx context.Context, u *url.URL) (io.ReadCloser, int64, error) {
	if u.Scheme == "file" {
		f, err := os.Open(u.Path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, u.Path)
		}
		if err != nil {
			return nil, 0, err
		}
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, 0, err
		}
		return f, info.Size(), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" && isGitHubHost(u) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("downloading %s: %w", redactURL(u.String()), err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, resp.ContentLength, nil
	case http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, redactURL(u.String()))
	default:
		_ = resp.Body.Close()
		return nil, 0, &StatusError{URL: redactURL(u.String()), StatusCode: resp.StatusCode}
	}
}

// store streams body into a temp file, hashing as it goes. Partial files are
// removed on every error path.
func (c *Client) store(body io.Reader, expected int64, dir string) (_ *Download, err error) {
	tmp, err := os.CreateTemp(dir, "vvimage-download-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if closeErr := tmp.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(tmp.Name()) // best-effort cleanup of the partial file
		}
	}()

	h := sha256.New()
	// Read one byte past the limit to detect oversize bodies.
	n, err := io.Copy(io.MultiWriter(tmp, h), io.LimitReader(body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("writing to temp file: %w", err)
	}
	if n > c.maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, c.maxBytes)
	}
	if expected >= 0 && n != expected {
		return nil, fmt.Errorf("%w: got %d of %d bytes", ErrIncomplete, n, expected)
	}

	return &Download{Path: tmp.Name(), Size: n, SHA256: hex.EncodeToString(h.Sum(nil))}, nil
}

// Error implements the error interface for StatusError.
func (e *StatusError) Error() string {
	return fmt.Sprintf("downloading %s: unexpected status %d", e.URL, e.StatusCode)
}

// isGitHubHost reports whether the token may be attached to a request for u.
func isGitHubHost(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	return host == "github.com" || host == "api.github.com"
}

// redactURL strips query parameters and fragments for safe inclusion in
// error messages.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return u.String()
}
