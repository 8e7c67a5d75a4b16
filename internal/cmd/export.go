package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/MeKo-Tech/mountainatlas/internal/atlas"
	"github.com/MeKo-Tech/mountainatlas/internal/geojson"
	"github.com/MeKo-Tech/mountainatlas/internal/layers"
	"github.com/MeKo-Tech/mountainatlas/internal/types"
	"github.com/MeKo-Tech/mountainatlas/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write levels as GeoJSON (areas and peak clusters)",
	Long: `Export writes, for each requested level, the level's simplified areas and its
clustered peaks as two GeoJSON files, plus a manifest listing what was written.

Levels are exported in parallel.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringSliceP("level", "l", nil, "Levels to export (repeatable; default: the default level)")
	exportCmd.Flags().Bool("all-levels", false, "Export every level of the dataset")
	exportCmd.Flags().Bool("merged", false, "Also export all levels merged into one selection")
	exportCmd.Flags().Float64P("zoom", "z", 6, "Zoom used to pick the simplification tier and cluster radius")
	exportCmd.Flags().StringP("output-dir", "o", "./export", "Output directory")
	exportCmd.Flags().IntP("workers", "w", 0, "Number of parallel workers (default: number of CPUs)")
	exportCmd.Flags().Bool("progress", true, "Show progress bar")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"export.levels", "level"},
		{"export.all_levels", "all-levels"},
		{"export.merged", "merged"},
		{"export.zoom", "zoom"},
		{"export.output_dir", "output-dir"},
		{"export.workers", "workers"},
		{"export.progress", "progress"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, exportCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

// exportOptions are the resolved export flags.
type exportOptions struct {
	OutputDir    string
	Levels       []types.Level
	Zoom         float64
	Workers      int
	AllLevels    bool
	Merged       bool
	ShowProgress bool
}

// manifestEntry describes the files written for one level.
type manifestEntry struct {
	Level        types.Level `json:"level"`
	Tier         string      `json:"tier"`
	AreasFile    string      `json:"areas"`
	PeaksFile    string      `json:"peaks"`
	AreaCount    int         `json:"area_count"`
	ClusterCount int         `json:"cluster_count"`
	PeakCount    int         `json:"peak_count"`
}

type manifest struct {
	Style   atlas.AreaStyle `json:"style"`
	Center  [2]float64      `json:"center"`
	Entries []manifestEntry `json:"levels"`
	Zoom    float64         `json:"zoom"`
}

func runExport(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	levels, err := parseLevels(viper.GetStringSlice("export.levels"))
	if err != nil {
		return err
	}
	opts := exportOptions{
		OutputDir:    viper.GetString("export.output_dir"),
		Levels:       levels,
		Zoom:         viper.GetFloat64("export.zoom"),
		Workers:      viper.GetInt("export.workers"),
		AllLevels:    viper.GetBool("export.all_levels"),
		Merged:       viper.GetBool("export.merged"),
		ShowProgress: viper.GetBool("export.progress"),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cache, err := newStore(ctx)
	if err != nil {
		return err
	}
	if cache != nil {
		defer func() { _ = cache.Close() }()
	}

	cfg, err := atlasConfig()
	if err != nil {
		return err
	}

	a := atlas.New(store, layers.NewMemorySurface(), cfg)
	if _, err := a.Load(ctx); err != nil {
		return err
	}

	_, err = exportLevels(ctx, a, opts)
	return err
}

// exportLevels writes the requested levels of a loaded atlas and returns the manifest.
func exportLevels(ctx context.Context, a *atlas.Atlas, opts exportOptions) (*manifest, error) {
	available, err := a.Levels()
	if err != nil {
		return nil, err
	}

	targets := opts.Levels
	if opts.AllLevels {
		targets = available
	}
	if len(targets) == 0 && !opts.Merged {
		targets = []types.Level{a.Level()}
	}
	if opts.Merged {
		targets = append(append([]types.Level{}, targets...), types.AllLevels)
	}

	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	logger.Info("Starting export",
		"levels", len(targets),
		"zoom", opts.Zoom,
		"workers", opts.Workers,
		"output_dir", opts.OutputDir)

	entries := make([]manifestEntry, len(targets))
	tasks := make([]worker.Task, 0, len(targets))
	for i, level := range targets {
		tasks = append(tasks, worker.Task{
			Key: level.String(),
			Run: func(ctx context.Context) error {
				entry, err := exportLevel(ctx, a, level, opts.Zoom, opts.OutputDir)
				if err != nil {
					return err
				}
				entries[i] = entry
				return nil
			},
		})
	}

	progress := worker.NewProgress(len(tasks), "levels", opts.ShowProgress)
	pool := worker.New(worker.Config{
		Workers:  opts.Workers,
		OnResult: progress.Callback(),
	})

	results := pool.Run(ctx, tasks)
	progress.Done()

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			logger.Error("Level export failed", "level", r.Task.Key, "error", r.Err)
		}
	}
	logger.Info(progress.Summary())
	if failed > 0 {
		return nil, fmt.Errorf("%d of %d levels failed to export", failed, len(tasks))
	}

	cfg := a.Config()
	m := &manifest{
		Entries: entries,
		Zoom:    opts.Zoom,
		Style:   cfg.Style,
		Center:  [2]float64{cfg.Center.Lon(), cfg.Center.Lat()},
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(opts.OutputDir, "manifest.json"), data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}

	logger.Info("Export complete", "levels", len(entries), "output_dir", opts.OutputDir)
	return m, nil
}

var fileSafe = strings.NewReplacer("/", "_", "\\", "_", " ", "_")

// exportLevel writes one level's areas and clusters.
func exportLevel(ctx context.Context, a *atlas.Atlas, level types.Level, zoom float64, dir string) (manifestEntry, error) {
	f, err := a.Preview(ctx, level, zoom)
	if err != nil {
		return manifestEntry{}, err
	}

	// Concrete levels are prefixed so a level literally named "all" cannot collide
	// with the merged selection.
	name := "merged"
	if !level.IsAll() {
		name = "level-" + fileSafe.Replace(level.String())
	}
	entry := manifestEntry{
		Level:        level,
		Tier:         f.Tier,
		AreasFile:    name + "-areas.geojson",
		PeaksFile:    name + "-peaks.geojson",
		AreaCount:    len(f.Areas),
		ClusterCount: len(f.Clusters),
		PeakCount:    f.Peaks,
	}

	areas, err := geojson.ToBytes(geojson.AreasToGeoJSON(f.Areas))
	if err != nil {
		return entry, err
	}
	if err := os.WriteFile(filepath.Join(dir, entry.AreasFile), areas, 0o644); err != nil {
		return entry, fmt.Errorf("failed to write areas: %w", err)
	}

	peaks, err := geojson.ToBytes(geojson.ClustersToGeoJSON(f.Clusters))
	if err != nil {
		return entry, err
	}
	if err := os.WriteFile(filepath.Join(dir, entry.PeaksFile), peaks, 0o644); err != nil {
		return entry, fmt.Errorf("failed to write peaks: %w", err)
	}

	return entry, nil
}
