package cluster

import (
	"fmt"
	"strconv"
)

// Icon kinds and size classes.
const (
	KindPeak    = "peak"
	KindCluster = "cluster"

	SizePeak   = "peak"
	SizeSmall  = "small"
	SizeMedium = "medium"
	SizeLarge  = "large"
)

// IconDescriptor tells a renderer how to draw a cluster marker. It is plain data; the
// renderer owns every drawing object.
type IconDescriptor struct {
	Kind      string `json:"kind"`
	Size      string `json:"size"`
	ClassName string `json:"class_name"`
	Badge     string `json:"badge,omitempty"` // empty for single peaks
	Tooltip   string `json:"tooltip,omitempty"`
	Pixels    int    `json:"pixels"`
}

// IconFor derives the marker icon of a cluster. A single peak is drawn as a peak icon
// without a count badge; larger clusters carry their count.
func IconFor(c Cluster) IconDescriptor {
	if c.Count == 1 && len(c.Members) == 1 {
		return IconDescriptor{
			Kind:      KindPeak,
			Size:      SizePeak,
			ClassName: "marker-peak",
			Tooltip:   PeakLabel(c.Members[0].Name, c.Members[0].Elevation),
			Pixels:    25,
		}
	}

	size, px := SizeLarge, 48
	switch {
	case c.Count < 10:
		size, px = SizeSmall, 32
	case c.Count < 100:
		size, px = SizeMedium, 40
	}

	return IconDescriptor{
		Kind:      KindCluster,
		Size:      size,
		ClassName: "marker-cluster marker-cluster-" + size,
		Badge:     strconv.Itoa(c.Count),
		Tooltip:   fmt.Sprintf("%d peaks", c.Count),
		Pixels:    px,
	}
}

// PeakLabel formats a peak name with its elevation, e.g. "Mont Blanc (4808 m)".
func PeakLabel(name string, elevation *float64) string {
	if elevation == nil {
		return name + " (elevation unknown)"
	}
	return fmt.Sprintf("%s (%s m)", name, strconv.FormatFloat(*elevation, 'f', -1, 64))
}
