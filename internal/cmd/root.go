package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mountainatlas",
	Short: "Interactive GMBA mountain atlas: hierarchy levels, peaks and clusters",
	Long: `MountainAtlas loads the GMBA mountain area polygons and the OSM peak points,
indexes them by hierarchy level and serves one level at a time: the level's
areas plus its peaks grouped into clusters.

Run "serve" for the HTTP API and demo map, "levels" to inspect a dataset,
"export" to write levels as GeoJSON and "snapshot" to fill the offline cache.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	flags.String("areas-url", defaultAreasURL, "Mountain areas GeoJSON (URL or file path)")
	flags.String("peaks-url", defaultPeaksURL, "Peaks GeoJSON (URL or file path)")
	flags.Duration("timeout", defaultTimeout, "Timeout for loading both resources")
	flags.String("user-agent", "mountainatlas", "User-Agent sent when fetching over HTTP")
	flags.String("default-level", "4", "Hierarchy level shown first")
	flags.String("cluster-mode", "screen", "Cluster distance mode (screen, geographic)")
	flags.Float64("cluster-radius", 80, "Cluster radius (pixels in screen mode, meters in geographic mode)")
	flags.String("cache-db", "", "SQLite file keeping the last good copy of each resource")
	flags.String("redis-addr", "", "Redis address for a shared snapshot cache (host:port)")
	flags.String("redis-password", "", "Redis password")
	flags.Int("redis-db", 0, "Redis database number")
	flags.Duration("snapshot-max-age", 0, "Oldest snapshot served when fetching fails (0 = any)")
	flags.String("log-format", "text", "Log format (text, json)")
	flags.Bool("verbose", false, "Enable verbose logging")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"source.areas_url", "areas-url"},
		{"source.peaks_url", "peaks-url"},
		{"source.timeout", "timeout"},
		{"source.user_agent", "user-agent"},
		{"atlas.default_level", "default-level"},
		{"cluster.mode", "cluster-mode"},
		{"cluster.radius", "cluster-radius"},
		{"cache.db", "cache-db"},
		{"cache.redis_addr", "redis-addr"},
		{"cache.redis_password", "redis-password"},
		{"cache.redis_db", "redis-db"},
		{"cache.max_age", "snapshot-max-age"},
		{"log.format", "log-format"},
		{"verbose", "verbose"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, flags.Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func initConfig() {
	// .env values become process environment before viper reads it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Ignoring .env:", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("MOUNTAINATLAS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
