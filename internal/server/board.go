package server

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/mountainatlas/internal/layers"
	"github.com/MeKo-Tech/mountainatlas/internal/types"
	"github.com/google/uuid"
)

// Board is the layer surface served over HTTP. Browser clients read the attached layers
// from it instead of receiving attach and detach calls directly.
type Board struct {
	layers map[layers.Handle]boardLayer
	logger *slog.Logger
	mu     sync.RWMutex
}

type boardLayer struct {
	attachedAt time.Time
	layer      layers.Layer
}

// LayerInfo describes one attached layer.
type LayerInfo struct {
	AttachedAt time.Time     `json:"attached_at"`
	Handle     layers.Handle `json:"handle"`
	Key        layers.Key    `json:"key"`
	Level      types.Level   `json:"level"`
	Tier       string        `json:"tier,omitempty"`
	Features   int           `json:"features"`
	Seq        uint64        `json:"seq"`
}

// NewBoard creates an empty board.
func NewBoard(logger *slog.Logger) *Board {
	return &Board{
		layers: make(map[layers.Handle]boardLayer),
		logger: logger,
	}
}

func (b *Board) log() *slog.Logger {
	if b.logger != nil {
		return b.logger
	}
	return slog.Default()
}

// Attach stores the layer under a fresh random handle.
func (b *Board) Attach(_ context.Context, l layers.Layer) (layers.Handle, error) {
	h := layers.Handle(uuid.NewString())

	b.mu.Lock()
	defer b.mu.Unlock()
	b.layers[h] = boardLayer{layer: l, attachedAt: time.Now()}

	b.log().Debug("board attach", "handle", h, "key", l.Key, "level", l.Level)
	return h, nil
}

// Detach removes the layer. Unknown handles are an error.
func (b *Board) Detach(_ context.Context, h layers.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.layers[h]; !ok {
		return fmt.Errorf("unknown layer handle %s", h)
	}
	delete(b.layers, h)

	b.log().Debug("board detach", "handle", h)
	return nil
}

// Layers lists the attached layers ordered by key.
func (b *Board) Layers() []LayerInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]LayerInfo, 0, len(b.layers))
	for h, bl := range b.layers {
		out = append(out, LayerInfo{
			Handle:     h,
			Key:        bl.layer.Key,
			Level:      bl.layer.Level,
			Tier:       bl.layer.Tier,
			Features:   len(bl.layer.Areas) + len(bl.layer.Clusters),
			Seq:        bl.layer.Seq,
			AttachedAt: bl.attachedAt,
		})
	}
	slices.SortFunc(out, func(x, y LayerInfo) int {
		return strings.Compare(string(x.Key), string(y.Key))
	})
	return out
}

// Layer returns the attached layer of a key.
func (b *Board) Layer(key layers.Key) (layers.Layer, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, bl := range b.layers {
		if bl.layer.Key == key {
			return bl.layer, true
		}
	}
	return layers.Layer{}, false
}
