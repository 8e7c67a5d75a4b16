package server

import (
	"context"
	"testing"

	"github.com/MeKo-Tech/mountainatlas/internal/atlas"
	"github.com/MeKo-Tech/mountainatlas/internal/layers"
	"github.com/MeKo-Tech/mountainatlas/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoardAttachDetach(t *testing.T) {
	b := NewBoard(nil)
	ctx := context.Background()

	h1, err := b.Attach(ctx, layers.Layer{Key: layers.KeyPeaks, Level: types.NewLevel("4")})
	require.NoError(t, err)
	h2, err := b.Attach(ctx, layers.Layer{Key: layers.KeyAreas, Level: types.NewLevel("4"), Areas: make([]types.AreaFeature, 3)})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	infos := b.Layers()
	require.Len(t, infos, 2)
	assert.Equal(t, layers.KeyAreas, infos[0].Key, "ordered by key")
	assert.Equal(t, 3, infos[0].Features)

	l, ok := b.Layer(layers.KeyAreas)
	require.True(t, ok)
	assert.Len(t, l.Areas, 3)

	require.NoError(t, b.Detach(ctx, h2))
	assert.Error(t, b.Detach(ctx, h2), "double detach")
	_, ok = b.Layer(layers.KeyAreas)
	assert.False(t, ok)
}

func TestHubKeepsNewestFrame(t *testing.T) {
	h := NewHub()
	frames, unsubscribe := h.Subscribe()
	require.Equal(t, 1, h.Len())

	ctx := context.Background()
	for seq := uint64(1); seq <= 3; seq++ {
		require.NoError(t, h.Render(ctx, &atlas.Frame{Seq: seq}))
	}

	f := <-frames
	assert.Equal(t, uint64(3), f.Seq)

	unsubscribe()
	assert.Equal(t, 0, h.Len())
	require.NoError(t, h.Render(ctx, &atlas.Frame{Seq: 4}), "rendering without subscribers")
}
