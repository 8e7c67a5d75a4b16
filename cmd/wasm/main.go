//go:build js && wasm
// +build js,wasm

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"syscall/js"

	"github.com/MeKo-Tech/mountainatlas/internal/atlas"
	"github.com/MeKo-Tech/mountainatlas/internal/datasource"
	"github.com/MeKo-Tech/mountainatlas/internal/geojson"
	"github.com/MeKo-Tech/mountainatlas/internal/layers"
	"github.com/MeKo-Tech/mountainatlas/internal/types"
)

const (
	areasLocation = "mem://areas"
	peaksLocation = "mem://peaks"
)

// memoryFetcher serves payloads handed over from JavaScript.
type memoryFetcher map[string][]byte

func (m memoryFetcher) Fetch(_ context.Context, location string) ([]byte, error) {
	data, ok := m[location]
	if !ok {
		return nil, fmt.Errorf("no payload for %s", location)
	}
	return data, nil
}

var current *atlas.Atlas

type frameResponse struct {
	Frame *atlas.Frame `json:"frame"`
	Areas any          `json:"areas"`
	Peaks any          `json:"peaks"`
	Error string       `json:"error,omitempty"`
}

func respond(f *atlas.Frame, err error) any {
	if err != nil {
		return marshal(frameResponse{Error: err.Error()})
	}
	return marshal(frameResponse{
		Frame: f,
		Areas: geojson.AreasToGeoJSON(f.Areas),
		Peaks: geojson.ClustersToGeoJSON(f.Clusters),
	})
}

func marshal(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data)
}

// atlasLoad(areasJSON, peaksJSON[, defaultLevel]) indexes both collections and returns the
// first frame.
func atlasLoad(this js.Value, args []js.Value) any {
	if len(args) < 2 {
		return marshal(frameResponse{Error: "atlasLoad(areasJSON, peaksJSON) needs two arguments"})
	}

	cfg := atlas.DefaultConfig()
	cfg.Workers = 1
	cfg.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if len(args) > 2 && args[2].Type() == js.TypeString {
		cfg.DefaultLevel = args[2].String()
	}

	store := datasource.NewStore(datasource.StoreConfig{
		AreasURL: areasLocation,
		PeaksURL: peaksLocation,
		Logger:   cfg.Logger,
		Fetcher: memoryFetcher{
			areasLocation: []byte(args[0].String()),
			peaksLocation: []byte(args[1].String()),
		},
	})

	a := atlas.New(store, layers.NewMemorySurface(), cfg)
	f, err := a.Load(context.Background())
	if err != nil {
		return respond(nil, err)
	}
	current = a
	return respond(f, nil)
}

// atlasSelect(level) switches the level; null selects every level merged.
func atlasSelect(this js.Value, args []js.Value) any {
	if current == nil {
		return respond(nil, atlas.ErrNotLoaded)
	}

	level := types.AllLevels
	if len(args) > 0 && !args[0].IsNull() && !args[0].IsUndefined() {
		switch args[0].Type() {
		case js.TypeNumber:
			level, _ = types.LevelFromProperty(args[0].Float())
		default:
			level = types.NewLevel(args[0].String())
		}
	}

	return respond(current.SetLevel(context.Background(), level))
}

// atlasZoom(zoom) redraws the current level for another zoom.
func atlasZoom(this js.Value, args []js.Value) any {
	if current == nil {
		return respond(nil, atlas.ErrNotLoaded)
	}
	if len(args) < 1 || args[0].Type() != js.TypeNumber {
		return marshal(frameResponse{Error: "atlasZoom(zoom) needs a number"})
	}
	return respond(current.SetZoom(context.Background(), args[0].Float()))
}

// atlasLevels() returns the selectable levels.
func atlasLevels(this js.Value, args []js.Value) any {
	if current == nil {
		return marshal(map[string]string{"error": atlas.ErrNotLoaded.Error()})
	}
	levels, err := current.Levels()
	if err != nil {
		return marshal(map[string]string{"error": err.Error()})
	}
	return marshal(map[string]any{"levels": levels, "current": current.Level()})
}

func main() {
	c := make(chan struct{})

	js.Global().Set("atlasLoad", js.FuncOf(atlasLoad))
	js.Global().Set("atlasSelect", js.FuncOf(atlasSelect))
	js.Global().Set("atlasZoom", js.FuncOf(atlasZoom))
	js.Global().Set("atlasLevels", js.FuncOf(atlasLevels))

	fmt.Println("MountainAtlas WASM module loaded")
	<-c
}
