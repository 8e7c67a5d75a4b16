package cluster

import (
	"testing"

	"github.com/MeKo-Tech/mountainatlas/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestIconFor(t *testing.T) {
	elevation := 4478.0
	single := Cluster{Count: 1, Members: []types.PeakFeature{{Name: "Matterhorn", Elevation: &elevation}}}

	tests := []struct {
		name    string
		cluster Cluster
		kind    string
		size    string
		badge   string
	}{
		{"single peak has no badge", single, KindPeak, SizePeak, ""},
		{"small", Cluster{Count: 2, Members: make([]types.PeakFeature, 2)}, KindCluster, SizeSmall, "2"},
		{"medium", Cluster{Count: 10, Members: make([]types.PeakFeature, 10)}, KindCluster, SizeMedium, "10"},
		{"large", Cluster{Count: 100, Members: make([]types.PeakFeature, 100)}, KindCluster, SizeLarge, "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			icon := IconFor(tt.cluster)
			assert.Equal(t, tt.kind, icon.Kind)
			assert.Equal(t, tt.size, icon.Size)
			assert.Equal(t, tt.badge, icon.Badge)
		})
	}

	assert.Equal(t, "Matterhorn (4478 m)", IconFor(single).Tooltip)
}

func TestIconForIsPure(t *testing.T) {
	c := Cluster{Count: 42, Members: make([]types.PeakFeature, 42)}
	assert.Equal(t, IconFor(c), IconFor(c))
}

func TestPeakLabel(t *testing.T) {
	assert.Equal(t, "Unnamed (elevation unknown)", PeakLabel(types.DefaultPeakName, nil))
}
