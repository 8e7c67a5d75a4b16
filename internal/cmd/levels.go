package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/MeKo-Tech/mountainatlas/internal/atlas"
	"github.com/MeKo-Tech/mountainatlas/internal/filter"
	"github.com/MeKo-Tech/mountainatlas/internal/layers"
	"github.com/MeKo-Tech/mountainatlas/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var levelsCmd = &cobra.Command{
	Use:   "levels",
	Short: "List the hierarchy levels of the dataset with area and peak counts",
	RunE:  runLevels,
}

func init() {
	rootCmd.AddCommand(levelsCmd)

	levelsCmd.Flags().Bool("json", false, "Print JSON instead of a table")
	if err := viper.BindPFlag("levels.json", levelsCmd.Flags().Lookup("json")); err != nil {
		panic(fmt.Sprintf("failed to bind flag: %v", err))
	}
}

// levelSummary is one row of the levels listing.
type levelSummary struct {
	Level types.Level `json:"level"`
	Areas int         `json:"areas"`
	Peaks int         `json:"peaks"`
}

type levelsReport struct {
	Warnings map[types.WarningKind]int `json:"warnings"`
	Levels   []levelSummary            `json:"levels"`
}

func runLevels(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}
	ctx := cmd.Context()

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
	engine, err := a.Engine()
	if err != nil {
		return err
	}

	report := summarizeLevels(engine, store.Current().Warnings)
	if viper.GetBool("levels.json") {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return printLevels(cmd.OutOrStdout(), report)
}

func summarizeLevels(engine *filter.Engine, loadWarnings []types.DataQualityWarning) levelsReport {
	report := levelsReport{
		Warnings: types.CountWarnings(append(append([]types.DataQualityWarning{}, loadWarnings...), engine.Warnings()...)),
	}
	for _, l := range engine.Levels() {
		sel := engine.Select(l)
		report.Levels = append(report.Levels, levelSummary{Level: l, Areas: len(sel.Areas), Peaks: len(sel.Peaks)})
	}
	return report
}

func printLevels(w io.Writer, report levelsReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tAREAS\tPEAKS")
	for _, s := range report.Levels {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", s.Level, s.Areas, s.Peaks)
	}
	for _, kind := range slices.Sorted(maps.Keys(report.Warnings)) {
		fmt.Fprintf(tw, "warning %s\t%d\t\n", kind, report.Warnings[kind])
	}
	return tw.Flush()
}
