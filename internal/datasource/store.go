// Package datasource loads the mountain area and peak collections.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/mountainatlas/internal/geojson"
	"github.com/MeKo-Tech/mountainatlas/internal/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Default GMBA dataset locations.
const (
	DefaultAreasURL = "https://raw.githubusercontent.com/latidudemaps/MountainAtlas/main/data/MountainAreas.geojson"
	DefaultPeaksURL = "https://raw.githubusercontent.com/latidudemaps/MountainAtlas/main/data/OSM_peaks_GMBA.geojson"
)

// State is the load state of a Store.
type State int

const (
	StatePending State = iota
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Dataset is one successfully loaded pair of collections. It is never modified after
// it has been published.
type Dataset struct {
	LoadedAt   time.Time
	Areas      types.Collection[types.AreaFeature]
	Peaks      types.Collection[types.PeakFeature]
	Warnings   []types.DataQualityWarning
	Bytes      int64
	Generation uint64
}

// StoreConfig configures a Store.
type StoreConfig struct {
	Fetcher  Fetcher
	Logger   *slog.Logger
	AreasURL string
	PeaksURL string
	Keys     geojson.PropertyKeys
	// Timeout bounds a whole load (both fetches and parsing). Default 30s.
	Timeout time.Duration
}

// DefaultStoreConfig returns the GMBA defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		AreasURL: DefaultAreasURL,
		PeaksURL: DefaultPeaksURL,
		Keys:     geojson.DefaultPropertyKeys(),
		Timeout:  30 * time.Second,
		Logger:   slog.Default(),
	}
}

// Status describes the store for health endpoints.
type Status struct {
	LoadedAt    *time.Time `json:"loaded_at,omitempty"`
	State       State      `json:"state"`
	LastError   string     `json:"last_error,omitempty"`
	Generation  uint64     `json:"generation"`
	Areas       int        `json:"areas"`
	Peaks       int        `json:"peaks"`
	TotalLoads  int64      `json:"total_loads"`
	TotalFailed int64      `json:"total_failed"`
	TotalBytes  int64      `json:"total_bytes"`
}

// Store owns the loaded collections. Both collections are published together or not
// at all.
type Store struct {
	current *Dataset
	lastErr error
	cfg     StoreConfig
	group   singleflight.Group
	state   State
	mu      sync.RWMutex

	generation  atomic.Uint64
	totalLoads  atomic.Int64
	totalFailed atomic.Int64
	totalBytes  atomic.Int64
}

// NewStore creates a store. Zero config fields take their defaults.
func NewStore(cfg StoreConfig) *Store {
	def := DefaultStoreConfig()
	if cfg.AreasURL == "" {
		cfg.AreasURL = def.AreasURL
	}
	if cfg.PeaksURL == "" {
		cfg.PeaksURL = def.PeaksURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Keys.Level == nil {
		cfg.Keys = def.Keys
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = NewFetcher(nil, "")
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	return &Store{cfg: cfg}
}

// Config returns the store configuration.
func (s *Store) Config() StoreConfig {
	return s.cfg
}

// Load returns the dataset, fetching it on first use. Concurrent callers share one
// fetch. A failed load is not cached; calling Load again retries.
func (s *Store) Load(ctx context.Context) (*Dataset, error) {
	if ds := s.Current(); ds != nil {
		return ds, nil
	}

	v, err, _ := s.group.Do("load", func() (any, error) {
		if ds := s.Current(); ds != nil {
			return ds, nil
		}
		return s.fetchAndPublish(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Dataset), nil
}

// Reload fetches both resources again. On failure the previous dataset stays published.
func (s *Store) Reload(ctx context.Context) (*Dataset, error) {
	v, err, _ := s.group.Do("reload", func() (any, error) {
		return s.fetchAndPublish(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Dataset), nil
}

// Current returns the published dataset or nil.
func (s *Store) Current() *Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// State returns the load state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the error of the most recent failed load.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Status returns a snapshot for monitoring.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		State:       s.state,
		TotalLoads:  s.totalLoads.Load(),
		TotalFailed: s.totalFailed.Load(),
		TotalBytes:  s.totalBytes.Load(),
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	if s.current != nil {
		loaded := s.current.LoadedAt
		st.LoadedAt = &loaded
		st.Generation = s.current.Generation
		st.Areas = len(s.current.Areas)
		st.Peaks = len(s.current.Peaks)
	}
	return st
}

func (s *Store) fetchAndPublish(ctx context.Context) (*Dataset, error) {
	start := time.Now()
	log := s.cfg.Logger.With("areas_url", s.cfg.AreasURL, "peaks_url", s.cfg.PeaksURL)
	log.Info("Loading mountain atlas data")

	s.totalLoads.Add(1)
	ds, err := s.fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.totalFailed.Add(1)
		s.lastErr = err
		if s.current == nil {
			s.state = StateFailed
		}
		log.Error("Load failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	ds.Generation = s.generation.Add(1)
	s.current = ds
	s.state = StateLoaded
	s.lastErr = nil
	s.totalBytes.Add(ds.Bytes)

	log.Info("Load completed",
		"generation", ds.Generation,
		"areas", len(ds.Areas),
		"peaks", len(ds.Peaks),
		"warnings", len(ds.Warnings),
		"data_size_mb", fmt.Sprintf("%.2f", float64(ds.Bytes)/(1024*1024)),
		"duration_ms", time.Since(start).Milliseconds())
	for kind, n := range types.CountWarnings(ds.Warnings) {
		log.Warn("Data quality warnings", "kind", kind, "count", n)
	}

	return ds, nil
}

// fetch retrieves and decodes both resources concurrently. Nothing is returned unless
// both succeed.
func (s *Store) fetch(ctx context.Context) (*Dataset, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var (
		areas      *geojson.Decoded[types.AreaFeature]
		peaks      *geojson.Decoded[types.PeakFeature]
		areasBytes int
		peaksBytes int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := s.get(gctx, ResourceAreas, s.cfg.AreasURL)
		if err != nil {
			return err
		}
		areasBytes = len(data)
		areas, err = geojson.DecodeAreas(data, s.cfg.Keys)
		if err != nil {
			return &LoadError{Resource: ResourceAreas, URL: s.cfg.AreasURL, Err: err}
		}
		return nil
	})
	g.Go(func() error {
		data, err := s.get(gctx, ResourcePeaks, s.cfg.PeaksURL)
		if err != nil {
			return err
		}
		peaksBytes = len(data)
		peaks, err = geojson.DecodePeaks(data, s.cfg.Keys)
		if err != nil {
			return &LoadError{Resource: ResourcePeaks, URL: s.cfg.PeaksURL, Err: err}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	warnings := make([]types.DataQualityWarning, 0, len(areas.Warnings)+len(peaks.Warnings))
	warnings = append(warnings, areas.Warnings...)
	warnings = append(warnings, peaks.Warnings...)

	return &Dataset{
		Areas:    areas.Features,
		Peaks:    peaks.Features,
		Warnings: warnings,
		Bytes:    int64(areasBytes + peaksBytes),
		LoadedAt: time.Now(),
	}, nil
}

func (s *Store) get(ctx context.Context, resource, location string) ([]byte, error) {
	data, err := s.cfg.Fetcher.Fetch(ctx, location)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", s.cfg.Timeout, err)
		}
		return nil, &LoadError{Resource: resource, URL: location, Err: err}
	}
	return data, nil
}
