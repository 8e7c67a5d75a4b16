// Package atlas wires the dataset store, the filter engine and the layer manager into the
// interactive map state: one current level, one zoom, and the layers drawn for them.
package atlas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/mountainatlas/internal/cluster"
	"github.com/MeKo-Tech/mountainatlas/internal/datasource"
	"github.com/MeKo-Tech/mountainatlas/internal/filter"
	"github.com/MeKo-Tech/mountainatlas/internal/layers"
	"github.com/MeKo-Tech/mountainatlas/internal/simplify"
	"github.com/MeKo-Tech/mountainatlas/internal/types"
	"github.com/paulmach/orb"
)

var (
	// ErrNotLoaded is returned by operations that need a loaded dataset.
	ErrNotLoaded = errors.New("dataset not loaded")
	// ErrSuperseded is returned when a newer level or zoom change replaced this one.
	ErrSuperseded = errors.New("level change superseded by a newer request")
)

// Frame is the committed map state handed to renderers.
type Frame struct {
	Level      types.Level         `json:"level"`
	Center     orb.Point           `json:"center"`
	Bound      orb.Bound           `json:"bound"`
	Tier       string              `json:"tier"`
	Areas      []types.AreaFeature `json:"-"`
	Clusters   []cluster.Cluster   `json:"-"`
	Levels     []types.Level       `json:"levels"`
	Style      AreaStyle           `json:"style"`
	Seq        uint64              `json:"seq"`
	Generation uint64              `json:"generation"`
	Zoom       float64             `json:"zoom"`
	Peaks      int                 `json:"peaks"`
	CommitTime time.Time           `json:"committed_at"`
}

// Renderer receives every committed frame, oldest first.
type Renderer interface {
	Render(ctx context.Context, f *Frame) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, f *Frame) error

// Render calls fn.
func (fn RendererFunc) Render(ctx context.Context, f *Frame) error {
	return fn(ctx, f)
}

// Atlas holds the current level and zoom and keeps the surface layers in step with them.
type Atlas struct {
	store   *datasource.Store
	manager *layers.Manager
	cfg     Config

	mu         sync.Mutex
	engine     *filter.Engine
	generation uint64
	level      types.Level
	zoom       float64
	seq        uint64
	cancel     context.CancelFunc

	pubMu     sync.Mutex
	frame     *Frame
	renderers []Renderer
}

// New creates an atlas drawing onto surface. Nothing is fetched until Load.
func New(store *datasource.Store, surface layers.Surface, cfg Config) *Atlas {
	cfg = cfg.withDefaults()
	a := &Atlas{
		store: store,
		cfg:   cfg,
		level: types.NewLevel(cfg.DefaultLevel),
		zoom:  cfg.Zoom,
	}
	a.manager = layers.NewManager(surface, layers.Config{
		Logger: cfg.Logger,
		OnChange: func(n int) {
			attachedLayers.Set(float64(n))
		},
	})
	return a
}

func (a *Atlas) log() *slog.Logger {
	if a.cfg.Logger != nil {
		return a.cfg.Logger
	}
	return slog.Default()
}

// AddRenderer registers r for every frame committed from now on.
func (a *Atlas) AddRenderer(r Renderer) {
	a.pubMu.Lock()
	defer a.pubMu.Unlock()
	a.renderers = append(a.renderers, r)
}

// Config returns the effective configuration.
func (a *Atlas) Config() Config {
	return a.cfg
}

// Store returns the dataset store.
func (a *Atlas) Store() *datasource.Store {
	return a.store
}

// Load fetches the dataset (once), builds the indexes and draws the current level. When
// the dataset fails to load the surface is left empty and the LoadError is returned.
func (a *Atlas) Load(ctx context.Context) (*Frame, error) {
	ds, err := a.store.Load(ctx)
	if err != nil {
		loadTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	loadTotal.WithLabelValues("ok").Inc()

	if err := a.install(ctx, ds); err != nil {
		return nil, err
	}
	return a.apply(ctx, nil, nil)
}

// Reload refetches the dataset and redraws the current level. A failed reload keeps the
// previous dataset on screen.
func (a *Atlas) Reload(ctx context.Context) (*Frame, error) {
	ds, err := a.store.Reload(ctx)
	if err != nil {
		loadTotal.WithLabelValues("error").Inc()
		a.log().Warn("Reload failed, keeping previous dataset", "error", err)
		return nil, err
	}
	loadTotal.WithLabelValues("ok").Inc()

	if err := a.install(ctx, ds); err != nil {
		return nil, err
	}
	return a.apply(ctx, nil, nil)
}

// install builds the engine for ds unless it is already installed.
func (a *Atlas) install(ctx context.Context, ds *datasource.Dataset) error {
	a.mu.Lock()
	current := a.engine != nil && a.generation == ds.Generation
	a.mu.Unlock()
	if current {
		return nil
	}

	start := time.Now()
	variants, err := simplify.Precompute(ctx, ds.Areas, a.cfg.Tiers, a.cfg.Workers, a.log())
	if err != nil {
		return fmt.Errorf("failed to precompute simplified areas: %w", err)
	}

	engine, err := filter.New(ds.Areas, ds.Peaks, variants, a.log())
	if err != nil {
		return fmt.Errorf("failed to build filter engine: %w", err)
	}

	warnings := append(append([]types.DataQualityWarning{}, ds.Warnings...), engine.Warnings()...)
	for kind, n := range types.CountWarnings(warnings) {
		dataQualityWarnings.WithLabelValues(string(kind)).Add(float64(n))
	}

	a.mu.Lock()
	if a.engine == nil || ds.Generation > a.generation {
		a.engine = engine
		a.generation = ds.Generation
	}
	a.mu.Unlock()

	a.log().Info("Dataset ready",
		"generation", ds.Generation,
		"areas", len(ds.Areas),
		"peaks", len(ds.Peaks),
		"levels", len(engine.Levels()),
		"warnings", len(warnings),
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// SetLevel makes level current and redraws. The previous in-flight change is cancelled;
// if this change is itself superseded before it commits, ErrSuperseded is returned and the
// surface shows the newer level.
func (a *Atlas) SetLevel(ctx context.Context, level types.Level) (*Frame, error) {
	return a.apply(ctx, &level, nil)
}

// SetZoom redraws the current level with the simplification tier and cluster radius of
// zoom.
func (a *Atlas) SetZoom(ctx context.Context, zoom float64) (*Frame, error) {
	if zoom < 0 {
		return nil, fmt.Errorf("invalid zoom %v", zoom)
	}
	return a.apply(ctx, nil, &zoom)
}

// Level returns the current level.
func (a *Atlas) Level() types.Level {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.level
}

// Levels returns the selectable levels, or ErrNotLoaded.
func (a *Atlas) Levels() ([]types.Level, error) {
	e, err := a.Engine()
	if err != nil {
		return nil, err
	}
	return e.Levels(), nil
}

// Engine returns the current filter engine, or ErrNotLoaded.
func (a *Atlas) Engine() (*filter.Engine, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.engine == nil {
		return nil, ErrNotLoaded
	}
	return a.engine, nil
}

// PeaksByMapName returns the peaks of one mountain area.
func (a *Atlas) PeaksByMapName(name string) ([]types.PeakFeature, error) {
	e, err := a.Engine()
	if err != nil {
		return nil, err
	}
	return e.PeaksByMapName(name), nil
}

// Current returns the last committed frame, or nil before the first commit.
func (a *Atlas) Current() *Frame {
	a.pubMu.Lock()
	defer a.pubMu.Unlock()
	return a.frame
}

// Attached returns the handles of the attached layers.
func (a *Atlas) Attached() map[layers.Key]layers.Handle {
	return a.manager.Attached()
}

// Close cancels any in-flight change and detaches every layer.
func (a *Atlas) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.mu.Unlock()

	if err := a.manager.Teardown(ctx); err != nil {
		return fmt.Errorf("failed to tear down layers: %w", err)
	}
	return nil
}

// request is one level or zoom change between begin and commit.
type request struct {
	ctx    context.Context
	cancel context.CancelFunc
	engine *filter.Engine
	level  types.Level
	zoom   float64
	gen    uint64
	seq    uint64
	ticket layers.Ticket
	start  time.Time
}

func (a *Atlas) apply(ctx context.Context, level *types.Level, zoom *float64) (*Frame, error) {
	req, err := a.begin(ctx, level, zoom)
	if err != nil {
		levelChangeTotal.WithLabelValues("not_loaded").Inc()
		return nil, err
	}
	defer req.cancel()

	f, err := a.run(req)
	switch {
	case err == nil:
		levelChangeTotal.WithLabelValues("ok").Inc()
		selectionDuration.Observe(time.Since(req.start).Seconds())
	case errors.Is(err, ErrSuperseded):
		levelChangeTotal.WithLabelValues("superseded").Inc()
	default:
		levelChangeTotal.WithLabelValues("error").Inc()
	}
	return f, err
}

// begin records the requested state, cancels the previous in-flight change and takes a
// ticket. The requested level is current from here on, even before it is drawn.
func (a *Atlas) begin(ctx context.Context, level *types.Level, zoom *float64) (*request, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.engine == nil {
		return nil, ErrNotLoaded
	}

	if a.cancel != nil {
		a.cancel()
	}
	if level != nil {
		a.level = *level
	}
	if zoom != nil {
		a.zoom = *zoom
	}

	reqCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.seq++

	return &request{
		ctx:    reqCtx,
		cancel: cancel,
		engine: a.engine,
		level:  a.level,
		zoom:   a.zoom,
		gen:    a.generation,
		seq:    a.seq,
		ticket: a.manager.Begin(),
		start:  time.Now(),
	}, nil
}

// run selects, clusters and commits one request.
func (a *Atlas) run(req *request) (*Frame, error) {
	f, err := a.compute(req.ctx, req.engine, req.level, req.zoom)
	if err != nil {
		if req.ctx.Err() != nil && !a.manager.Current(req.ticket) {
			return nil, fmt.Errorf("%w: %w", ErrSuperseded, err)
		}
		return nil, err
	}
	f.Seq = req.seq
	f.Generation = req.gen

	err = a.manager.Commit(req.ctx, req.ticket,
		layers.Layer{Key: layers.KeyAreas, Level: f.Level, Tier: f.Tier, Areas: f.Areas, Seq: f.Seq},
		layers.Layer{Key: layers.KeyPeaks, Level: f.Level, Tier: f.Tier, Clusters: f.Clusters, Seq: f.Seq},
	)
	if errors.Is(err, layers.ErrStale) {
		return nil, ErrSuperseded
	}
	if err != nil {
		// The slots already reflect the partial commit; report it without a frame.
		return nil, fmt.Errorf("failed to commit layers for level %s: %w", f.Level, err)
	}
	f.CommitTime = time.Now()
	selectionPeaks.Observe(float64(f.Peaks))

	a.log().Debug("Level drawn",
		"level", f.Level,
		"zoom", f.Zoom,
		"tier", f.Tier,
		"areas", len(f.Areas),
		"peaks", f.Peaks,
		"clusters", len(f.Clusters),
		"seq", f.Seq)

	a.publish(req.ctx, f)
	return f, nil
}

// Preview computes the frame of level at zoom without drawing it. The current level, the
// surface and the renderers are left alone; the frame has no sequence number.
func (a *Atlas) Preview(ctx context.Context, level types.Level, zoom float64) (*Frame, error) {
	a.mu.Lock()
	engine, gen := a.engine, a.generation
	a.mu.Unlock()
	if engine == nil {
		return nil, ErrNotLoaded
	}

	f, err := a.compute(ctx, engine, level, zoom)
	if err != nil {
		return nil, err
	}
	f.Generation = gen
	return f, nil
}

// compute selects level at zoom and clusters its peaks.
func (a *Atlas) compute(ctx context.Context, engine *filter.Engine, level types.Level, zoom float64) (*Frame, error) {
	sel := engine.SelectZoom(level, zoom)

	clusters, err := cluster.AssignChunked(ctx, sel.Peaks, a.cfg.Cluster.WithZoom(zoom), a.cfg.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("failed to cluster peaks: %w", err)
	}

	return &Frame{
		Level:    level,
		Zoom:     zoom,
		Tier:     sel.Tier.Name,
		Areas:    sel.Areas,
		Clusters: clusters,
		Peaks:    len(sel.Peaks),
		Levels:   engine.Levels(),
		Bound:    types.Bound(sel.Areas),
		Style:    a.cfg.Style,
		Center:   a.cfg.Center,
	}, nil
}

// publish stores f and hands it to the renderers unless a newer frame already went out.
func (a *Atlas) publish(ctx context.Context, f *Frame) {
	a.pubMu.Lock()
	defer a.pubMu.Unlock()

	if a.frame != nil && a.frame.Seq > f.Seq {
		return
	}
	a.frame = f

	for _, r := range a.renderers {
		if err := r.Render(context.WithoutCancel(ctx), f); err != nil {
			a.log().Warn("Renderer failed", "seq", f.Seq, "level", f.Level, "error", err)
		}
	}
}
