// Package layers owns the render layers attached to a map surface and guarantees at most
// one attached layer per key.
package layers

import (
	"context"
	"errors"

	"github.com/MeKo-Tech/mountainatlas/internal/cluster"
	"github.com/MeKo-Tech/mountainatlas/internal/types"
)

// Key identifies a layer slot.
type Key string

// Layer slots used by the atlas.
const (
	KeyAreas Key = "areas"
	KeyPeaks Key = "peaks-cluster"
)

// Handle is the surface's identifier for an attached layer.
type Handle string

// Layer is the content of one slot.
type Layer struct {
	Key      Key
	Level    types.Level
	Tier     string
	Areas    []types.AreaFeature
	Clusters []cluster.Cluster
	Seq      uint64
}

// Empty reports whether the layer has nothing to draw.
func (l Layer) Empty() bool {
	return len(l.Areas) == 0 && len(l.Clusters) == 0
}

// Surface is the rendering collaborator layers are attached to.
type Surface interface {
	Attach(ctx context.Context, layer Layer) (Handle, error)
	Detach(ctx context.Context, handle Handle) error
}

var (
	// ErrStale is returned when committing a ticket that has been superseded.
	ErrStale = errors.New("layer update superseded by a newer request")
	// ErrClosed is returned after Teardown.
	ErrClosed = errors.New("layer manager is closed")
)
