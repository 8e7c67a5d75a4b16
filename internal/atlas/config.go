package atlas

import (
	"log/slog"

	"github.com/MeKo-Tech/mountainatlas/internal/cluster"
	"github.com/MeKo-Tech/mountainatlas/internal/simplify"
	"github.com/paulmach/orb"
)

// AreaStyle is the default polygon style handed to renderers.
type AreaStyle struct {
	Color       string  `json:"color"`
	FillColor   string  `json:"fillColor"`
	Weight      float64 `json:"weight"`
	Opacity     float64 `json:"opacity"`
	FillOpacity float64 `json:"fillOpacity"`
}

// DefaultAreaStyle is the orange outline with a light fill used by the web map.
func DefaultAreaStyle() AreaStyle {
	return AreaStyle{
		Color:       "#ff7800",
		Weight:      2,
		Opacity:     1,
		FillColor:   "#ffcc66",
		FillOpacity: 0.65,
	}
}

// Config configures an Atlas.
type Config struct {
	Logger       *slog.Logger
	DefaultLevel string
	Tiers        []simplify.Tier
	Style        AreaStyle
	Cluster      cluster.RadiusPolicy
	Center       orb.Point // lon, lat
	Zoom         float64
	ChunkSize    int // peaks linked between yields while clustering
	Workers      int // goroutines used to precompute simplification tiers
}

// DefaultConfig returns the defaults of the original web map: level 4, centred on the
// Alps at zoom 6.
func DefaultConfig() Config {
	return Config{
		DefaultLevel: "4",
		Center:       orb.Point{10.5, 45.5},
		Zoom:         6,
		Tiers:        simplify.DefaultTiers(),
		Cluster:      cluster.DefaultPolicy(),
		ChunkSize:    cluster.DefaultChunkSize,
		Workers:      3,
		Style:        DefaultAreaStyle(),
		Logger:       slog.Default(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DefaultLevel == "" {
		c.DefaultLevel = def.DefaultLevel
	}
	if c.Tiers == nil {
		c.Tiers = def.Tiers
	}
	// Only the zero policy is unset; an explicit radius <= 0 keeps its meaning.
	if c.Cluster == (cluster.RadiusPolicy{}) {
		c.Cluster = def.Cluster
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.Style == (AreaStyle{}) {
		c.Style = def.Style
	}
	if c.Logger == nil {
		c.Logger = def.Logger
	}
	return c
}
