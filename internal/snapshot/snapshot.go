// Package snapshot keeps the last good copy of each source payload so the atlas can
// start when the upstream dataset host is unreachable.
package snapshot

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/mountainatlas/internal/datasource"
)

// ErrNotFound is returned when no snapshot exists for a location.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is a stored payload.
type Snapshot struct {
	FetchedAt time.Time
	Location  string
	Checksum  string // hex sha256 of Data
	Data      []byte
}

// New creates a snapshot of data fetched now.
func New(location string, data []byte) Snapshot {
	sum := sha256.Sum256(data)
	return Snapshot{
		Location:  location,
		Data:      data,
		Checksum:  hex.EncodeToString(sum[:]),
		FetchedAt: time.Now().UTC(),
	}
}

// Info describes a stored snapshot without its payload.
type Info struct {
	FetchedAt time.Time `json:"fetched_at"`
	Location  string    `json:"location"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
}

// Cache stores snapshots by location.
type Cache interface {
	Get(ctx context.Context, location string) (*Snapshot, error)
	Put(ctx context.Context, snap Snapshot) error
	List(ctx context.Context) ([]Info, error)
	Close() error
}

// CachingFetcher stores every successful fetch and falls back to the stored snapshot
// when the wrapped fetcher fails.
type CachingFetcher struct {
	Next   datasource.Fetcher
	Cache  Cache
	Logger *slog.Logger
	// MaxAge rejects older snapshots as fallback. Zero accepts any age.
	MaxAge time.Duration
}

func (f *CachingFetcher) log() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// Fetch implements datasource.Fetcher.
func (f *CachingFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	data, err := f.Next.Fetch(ctx, location)
	if err == nil {
		if perr := f.Cache.Put(context.WithoutCancel(ctx), New(location, data)); perr != nil {
			f.log().Warn("Failed to store snapshot", "location", location, "error", perr)
		}
		return data, nil
	}

	snap, cerr := f.Cache.Get(context.WithoutCancel(ctx), location)
	if cerr != nil {
		if !errors.Is(cerr, ErrNotFound) {
			f.log().Warn("Failed to read snapshot", "location", location, "error", cerr)
		}
		return nil, err
	}

	age := time.Since(snap.FetchedAt)
	if f.MaxAge > 0 && age > f.MaxAge {
		f.log().Warn("Snapshot too old to serve", "location", location, "age", age.Round(time.Second))
		return nil, err
	}

	f.log().Warn("Fetch failed, serving stored snapshot",
		"location", location,
		"error", err,
		"age", age.Round(time.Second),
		"checksum", snap.Checksum)
	return snap.Data, nil
}

// Verify checks the payload against its checksum.
func (s Snapshot) Verify() error {
	sum := sha256.Sum256(s.Data)
	if got := hex.EncodeToString(sum[:]); got != s.Checksum {
		return fmt.Errorf("snapshot %s is corrupt: checksum %s, want %s", s.Location, got, s.Checksum)
	}
	return nil
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)

	if _, err := gw.Write(data); err != nil {
		_ = gw.Close()
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = gr.Close() }()
	return io.ReadAll(gr)
}
