package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/MeKo-Tech/mountainatlas/internal/atlas"
	"github.com/MeKo-Tech/mountainatlas/internal/cluster"
	"github.com/MeKo-Tech/mountainatlas/internal/datasource"
	"github.com/MeKo-Tech/mountainatlas/internal/snapshot"
	"github.com/MeKo-Tech/mountainatlas/internal/types"
	"github.com/spf13/viper"
)

const (
	defaultAreasURL = datasource.DefaultAreasURL
	defaultPeaksURL = datasource.DefaultPeaksURL
	defaultTimeout  = 30 * time.Second
)

// openCache opens the configured snapshot cache. Redis wins when both are configured.
// It returns nil when no cache is configured.
func openCache(ctx context.Context) (snapshot.Cache, error) {
	if addr := viper.GetString("cache.redis_addr"); addr != "" {
		c, err := snapshot.OpenRedis(ctx, snapshot.RedisConfig{
			Addr:     addr,
			Password: viper.GetString("cache.redis_password"),
			DB:       viper.GetInt("cache.redis_db"),
		})
		if err != nil {
			return nil, err
		}
		logger.Info("Using redis snapshot cache", "addr", addr)
		return c, nil
	}

	if path := viper.GetString("cache.db"); path != "" {
		c, err := snapshot.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		logger.Info("Using sqlite snapshot cache", "path", path)
		return c, nil
	}

	return nil, nil
}

// newStore builds the dataset store from the source flags. The returned cache, if any,
// must be closed by the caller.
func newStore(ctx context.Context) (*datasource.Store, snapshot.Cache, error) {
	timeout := viper.GetDuration("source.timeout")

	var fetcher datasource.Fetcher = datasource.NewFetcher(&http.Client{Timeout: timeout}, viper.GetString("source.user_agent"))

	cache, err := openCache(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open snapshot cache: %w", err)
	}
	if cache != nil {
		fetcher = &snapshot.CachingFetcher{
			Next:   fetcher,
			Cache:  cache,
			Logger: logger,
			MaxAge: viper.GetDuration("cache.max_age"),
		}
	}

	store := datasource.NewStore(datasource.StoreConfig{
		AreasURL: viper.GetString("source.areas_url"),
		PeaksURL: viper.GetString("source.peaks_url"),
		Timeout:  timeout,
		Fetcher:  fetcher,
		Logger:   logger,
	})
	return store, cache, nil
}

// atlasConfig builds the atlas configuration from the flags.
func atlasConfig() (atlas.Config, error) {
	cfg := atlas.DefaultConfig()
	cfg.Logger = logger

	if level := viper.GetString("atlas.default_level"); level != "" {
		cfg.DefaultLevel = level
	}

	mode, err := cluster.ParseMode(viper.GetString("cluster.mode"))
	if err != nil {
		return cfg, err
	}
	cfg.Cluster.Mode = mode
	if r := viper.GetFloat64("cluster.radius"); r > 0 {
		cfg.Cluster.Radius = r
	}

	return cfg, nil
}

// parseLevels converts level arguments.
func parseLevels(args []string) ([]types.Level, error) {
	out := make([]types.Level, 0, len(args))
	for _, arg := range args {
		l := types.NewLevel(arg)
		if !l.Valid() {
			return nil, fmt.Errorf("invalid level %q", arg)
		}
		out = append(out, l)
	}
	return out, nil
}
