package cluster

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/mountainatlas/internal/tile"
	"github.com/paulmach/orb"
)

// Mode selects the space in which the clustering radius is measured.
type Mode int

const (
	// ModeScreen measures the radius in pixels at the policy zoom level.
	ModeScreen Mode = iota
	// ModeGeographic measures the radius in meters on the ground.
	ModeGeographic
)

func (m Mode) String() string {
	switch m {
	case ModeScreen:
		return "screen"
	case ModeGeographic:
		return "geographic"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "screen" or "geographic".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "screen", "":
		return ModeScreen, nil
	case "geographic", "geo":
		return ModeGeographic, nil
	default:
		return ModeScreen, fmt.Errorf("unknown cluster mode %q", s)
	}
}

// RadiusPolicy decides when two peaks are close enough to share a cluster.
type RadiusPolicy struct {
	Mode     Mode
	Radius   float64 // pixels (ModeScreen) or meters (ModeGeographic); <= 0 groups identical positions only
	Zoom     float64 // ModeScreen only
	TileSize int     // ModeScreen only
}

// DefaultPolicy matches the marker clustering of the original web map.
func DefaultPolicy() RadiusPolicy {
	return RadiusPolicy{
		Mode:     ModeScreen,
		Radius:   80,
		Zoom:     6,
		TileSize: tile.DefaultSize,
	}
}

// WithZoom returns a copy of the policy for another zoom level.
func (p RadiusPolicy) WithZoom(zoom float64) RadiusPolicy {
	p.Zoom = zoom
	return p
}

// projector maps lon/lat into a plane where Euclidean distance is compared with the radius.
type projector func(orb.Point) orb.Point

// projection returns the planar projection for the policy. Geographic mode uses an
// equirectangular projection around the mean latitude of the input, which is accurate to
// well under a percent across a single mountain range.
func (p RadiusPolicy) projection(points []orb.Point) projector {
	if p.Mode == ModeScreen {
		size := p.TileSize
		if size <= 0 {
			size = tile.DefaultSize
		}
		zoom := p.Zoom
		return func(pt orb.Point) orb.Point {
			return tile.Pixel(pt, zoom, size)
		}
	}

	var lat float64
	for _, pt := range points {
		lat += pt.Lat()
	}
	if len(points) > 0 {
		lat /= float64(len(points))
	}
	lat = math.Max(-tile.MaxLatitude, math.Min(tile.MaxLatitude, lat))

	const metersPerDegree = orb.EarthRadius * math.Pi / 180
	kx := metersPerDegree * math.Cos(lat*math.Pi/180)
	return func(pt orb.Point) orb.Point {
		return orb.Point{pt.Lon() * kx, pt.Lat() * metersPerDegree}
	}
}
