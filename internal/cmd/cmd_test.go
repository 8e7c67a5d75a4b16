package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/mountainatlas/internal/atlas"
	"github.com/MeKo-Tech/mountainatlas/internal/cluster"
	"github.com/MeKo-Tech/mountainatlas/internal/datasource"
	"github.com/MeKo-Tech/mountainatlas/internal/layers"
	"github.com/MeKo-Tech/mountainatlas/internal/snapshot"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	areasFixture = "../atlas/testdata/areas.geojson"
	peaksFixture = "../atlas/testdata/peaks.geojson"
)

func TestMain(m *testing.M) {
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	os.Exit(m.Run())
}

// setViper overrides a key for the duration of the test.
func setViper(t *testing.T, key string, value any) {
	t.Helper()
	old := viper.Get(key)
	viper.Set(key, value)
	t.Cleanup(func() { viper.Set(key, old) })
}

func useFixtures(t *testing.T) {
	setViper(t, "source.areas_url", areasFixture)
	setViper(t, "source.peaks_url", peaksFixture)
}

func loadFixtureAtlas(t *testing.T) *atlas.Atlas {
	t.Helper()
	useFixtures(t)

	store, cache, err := newStore(context.Background())
	require.NoError(t, err)
	require.Nil(t, cache)

	cfg, err := atlasConfig()
	require.NoError(t, err)

	a := atlas.New(store, layers.NewMemorySurface(), cfg)
	_, err = a.Load(context.Background())
	require.NoError(t, err)
	return a
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	l := newLogger(&buf, "json", false)
	l.Debug("hidden")
	l.Info("shown", "selection", "4")
	out := buf.String()
	assert.NotContains(t, out, "hidden")

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &record))
	assert.Equal(t, "shown", record["msg"])
	assert.Equal(t, "INFO", record["level"])
	assert.Equal(t, "4", record["selection"])

	buf.Reset()
	newLogger(&buf, "text", true).Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")
}

func TestParseLevels(t *testing.T) {
	levels, err := parseLevels([]string{"4", " 3 "})
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.Equal(t, "4", levels[0].Key())
	assert.Equal(t, "3", levels[1].Key())

	_, err = parseLevels([]string{"4", "  "})
	assert.Error(t, err)

	levels, err = parseLevels(nil)
	require.NoError(t, err)
	assert.Empty(t, levels)
}

func TestAtlasConfig(t *testing.T) {
	setViper(t, "atlas.default_level", "3")
	setViper(t, "cluster.mode", "geographic")
	setViper(t, "cluster.radius", 5000.0)

	cfg, err := atlasConfig()
	require.NoError(t, err)
	assert.Equal(t, "3", cfg.DefaultLevel)
	assert.Equal(t, cluster.ModeGeographic, cfg.Cluster.Mode)
	assert.Equal(t, 5000.0, cfg.Cluster.Radius)

	setViper(t, "cluster.mode", "hexagonal")
	_, err = atlasConfig()
	assert.Error(t, err)
}

func TestSummarizeLevels(t *testing.T) {
	a := loadFixtureAtlas(t)
	engine, err := a.Engine()
	require.NoError(t, err)

	report := summarizeLevels(engine, a.Store().Current().Warnings)
	require.Len(t, report.Levels, 3)
	assert.Equal(t, "2", report.Levels[0].Level.Key())
	assert.Equal(t, 1, report.Levels[0].Areas)
	assert.Equal(t, 1, report.Levels[0].Peaks)
	assert.Equal(t, 2, report.Levels[2].Areas)
	assert.Equal(t, 3, report.Levels[2].Peaks)
	assert.Positive(t, report.Warnings["missing_level"])

	var buf bytes.Buffer
	require.NoError(t, printLevels(&buf, report))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "LEVEL"))
	assert.Contains(t, out, "warning missing_level")
}

func TestExportLevels(t *testing.T) {
	a := loadFixtureAtlas(t)
	dir := t.TempDir()

	m, err := exportLevels(context.Background(), a, exportOptions{
		OutputDir: dir,
		Zoom:      6,
		Workers:   2,
		AllLevels: true,
		Merged:    true,
	})
	require.NoError(t, err)
	require.Len(t, m.Entries, 4)

	var names []string
	for _, e := range m.Entries {
		names = append(names, e.Level.String())
	}
	assert.Equal(t, []string{"2", "3", "4", "all"}, names)

	level4 := m.Entries[2]
	assert.Equal(t, 2, level4.AreaCount)
	assert.Equal(t, 3, level4.PeakCount)
	assert.Equal(t, 2, level4.ClusterCount)

	data, err := os.ReadFile(filepath.Join(dir, level4.PeaksFile))
	require.NoError(t, err)
	var fc struct {
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Len(t, fc.Features, 2)

	_, err = os.Stat(filepath.Join(dir, "merged-areas.geojson"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "manifest.json"))
	assert.NoError(t, err)

	// Exporting never changes what the atlas shows.
	assert.Equal(t, "4", a.Level().Key())
}

func TestExportDefaultsToCurrentLevel(t *testing.T) {
	a := loadFixtureAtlas(t)

	m, err := exportLevels(context.Background(), a, exportOptions{OutputDir: t.TempDir(), Zoom: 6})
	require.NoError(t, err)
	require.Len(t, m.Entries, 1)
	assert.Equal(t, "4", m.Entries[0].Level.Key())
}

func TestExportLiteralAllLevelKeepsMergedFiles(t *testing.T) {
	a := loadFixtureAtlas(t)
	dir := t.TempDir()

	levels, err := parseLevels([]string{"all"})
	require.NoError(t, err)

	m, err := exportLevels(context.Background(), a, exportOptions{
		OutputDir: dir,
		Levels:    levels,
		Zoom:      6,
		Merged:    true,
	})
	require.NoError(t, err)
	require.Len(t, m.Entries, 2)

	literal, merged := m.Entries[0], m.Entries[1]
	assert.False(t, literal.Level.IsAll())
	assert.True(t, merged.Level.IsAll())
	assert.NotEqual(t, literal.AreasFile, merged.AreasFile)
	assert.NotEqual(t, literal.PeaksFile, merged.PeaksFile)
	assert.Zero(t, literal.AreaCount)
	assert.Equal(t, 5, merged.AreaCount)
}

func TestSnapshotRefresh(t *testing.T) {
	useFixtures(t)
	setViper(t, "cache.db", filepath.Join(t.TempDir(), "snapshots.db"))

	store, cache, err := newStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cache)
	defer func() { _ = cache.Close() }()

	_, ok := store.Config().Fetcher.(*snapshot.CachingFetcher)
	require.True(t, ok, "a configured cache wraps the fetcher")

	require.NoError(t, refreshSnapshots(context.Background(), store))

	infos, err := cache.List(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 2)

	var buf bytes.Buffer
	require.NoError(t, printSnapshots(&buf, infos))
	assert.Contains(t, buf.String(), areasFixture)
	assert.Contains(t, buf.String(), peaksFixture)
}

func TestSnapshotRefreshRejectsFallback(t *testing.T) {
	dir := t.TempDir()
	setViper(t, "source.areas_url", filepath.Join(dir, "missing-areas.geojson"))
	setViper(t, "source.peaks_url", peaksFixture)
	setViper(t, "cache.db", filepath.Join(dir, "snapshots.db"))

	store, cache, err := newStore(context.Background())
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	err = refreshSnapshots(context.Background(), store)
	require.Error(t, err)
	var loadErr *datasource.LoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestLevelsCommandJSON(t *testing.T) {
	setViper(t, "levels.json", true)
	useFixtures(t)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"levels"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())

	var report struct {
		Levels []struct {
			Level string `json:"level"`
			Peaks int    `json:"peaks"`
		} `json:"levels"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	require.Len(t, report.Levels, 3)
	assert.Equal(t, "4", report.Levels[2].Level)
	assert.Equal(t, 3, report.Levels[2].Peaks)
}
