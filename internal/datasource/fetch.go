package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// DefaultMaxBytes caps a single payload. The GMBA peaks file is around 60MB.
const DefaultMaxBytes = 512 << 20

// Fetcher retrieves a raw GeoJSON payload.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// HTTPFetcher fetches payloads over HTTP(S).
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
	MaxBytes  int64
}

// Fetch performs a GET request. Non-2xx responses are errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("payload exceeds %d bytes", limit)
	}
	return data, nil
}

// FileFetcher reads payloads from the local filesystem. Locations may be plain paths or
// file:// URLs.
type FileFetcher struct{}

// Fetch reads the file.
func (FileFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(LocalPath(location))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// LocalPath returns the filesystem path of a local location, or "" for remote ones.
func LocalPath(location string) string {
	if IsRemote(location) {
		return ""
	}
	if strings.HasPrefix(location, "file://") {
		if u, err := url.Parse(location); err == nil {
			return u.Path
		}
		return strings.TrimPrefix(location, "file://")
	}
	return location
}

// IsRemote reports whether the location is fetched over HTTP(S).
func IsRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

type schemeFetcher struct {
	http *HTTPFetcher
	file FileFetcher
}

// NewFetcher returns a fetcher that reads http(s) locations with client and everything
// else from disk.
func NewFetcher(client *http.Client, userAgent string) Fetcher {
	return &schemeFetcher{http: &HTTPFetcher{Client: client, UserAgent: userAgent}}
}

func (f *schemeFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if IsRemote(location) {
		return f.http.Fetch(ctx, location)
	}
	return f.file.Fetch(ctx, location)
}
