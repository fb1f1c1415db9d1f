package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/carpool-pilot/prospect-cli/internal/area"
	"github.com/carpool-pilot/prospect-cli/internal/cache"
	"github.com/carpool-pilot/prospect-cli/internal/export"
	"github.com/carpool-pilot/prospect-cli/internal/geocode"
	"github.com/carpool-pilot/prospect-cli/internal/model"
	"github.com/carpool-pilot/prospect-cli/internal/pipeline"
	"github.com/carpool-pilot/prospect-cli/internal/postal"
	"github.com/carpool-pilot/prospect-cli/pkg/geonorge"
)

var filterCmd = &cobra.Command{
	Use:   "filter <area-file>",
	Short: "Filter the registry exports down to companies inside an area",
	Long: `Reads the bulk registry exports, keeps companies whose employee count
falls inside the configured bounds, geocodes their addresses via the
Kartverket address API and keeps those inside the area polygon.

The area file is GeoJSON (.geojson, .json) or an ESRI shapefile (.shp, .zip).`,
	Args: cobra.ExactArgs(1),
	RunE: runFilter,
}

func init() {
	f := filterCmd.Flags()
	f.String("output", "", "output CSV path (default output/<area>/bedrifter_raa_<timestamp>.csv)")
	f.Int("min-employees", 0, "minimum employee count, overrides config when > 0")
	f.Int("max-employees", 0, "maximum employee count, overrides config when > 0")
	f.Float64("margin", 0, "postal candidate margin in degrees, overrides config when > 0")
	f.Bool("xlsx", false, "also write an XLSX copy next to the CSV")
	rootCmd.AddCommand(filterCmd)
}

func runFilter(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate("filter"); err != nil {
		return err
	}
	started := time.Now().UTC()

	ar, err := area.Load(args[0])
	if err != nil {
		return err
	}

	idx, err := postal.Load(ctx, cfg.Postal.Path)
	if err != nil {
		return err
	}

	geoCache, err := cache.Open[geocode.Entry](cfg.Geocode.CachePath, cache.FlushEvery(cfg.Geocode.FlushEvery))
	if err != nil {
		return err
	}
	defer func() {
		if err := geoCache.Flush(); err != nil {
			zap.L().Warn("geocode cache flush failed", zap.Error(err))
		}
	}()

	client := geonorge.NewClient(cfg.Geocode.BaseURL,
		geonorge.WithRateLimit(cfg.Geocode.RequestsPerSecond),
		geonorge.WithUserAgent(cfg.HTTP.UserAgent),
	)
	resolver := geocode.NewResolver(client, geoCache)

	params := pipeline.FilterParams{
		MinEmployees: cfg.Filter.MinEmployees,
		MaxEmployees: cfg.Filter.MaxEmployees,
	}
	if n, _ := cmd.Flags().GetInt("min-employees"); n > 0 {
		params.MinEmployees = n
	}
	if n, _ := cmd.Flags().GetInt("max-employees"); n > 0 {
		params.MaxEmployees = n
	}
	params.Margin, _ = cmd.Flags().GetFloat64("margin")
	params.OutputPath, _ = cmd.Flags().GetString("output")
	if params.OutputPath == "" {
		params.OutputPath = defaultFilterOutput(cfg.Output.Dir, ar.Name, started)
	}

	stage := pipeline.NewFilterStage(cfg, idx, resolver)
	summary, err := stage.Run(ctx, ar, params)
	if err != nil {
		return eris.Wrap(err, "filter")
	}

	wantXLSX, _ := cmd.Flags().GetBool("xlsx")
	if wantXLSX || cfg.Output.XLSX {
		if err := writeXLSXSibling(params.OutputPath); err != nil {
			return err
		}
	}

	recordRun(ctx, &model.Run{
		Command:    "filter",
		Area:       ar.Name,
		OutputPath: params.OutputPath,
		Summary:    *summary,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	})

	printFilterSummary(os.Stdout, ar.Name, params.OutputPath, summary)
	return nil
}

// defaultFilterOutput builds output/<area>/bedrifter_raa_<timestamp>.csv.
func defaultFilterOutput(dir, areaName string, at time.Time) string {
	name := fmt.Sprintf("bedrifter_raa_%s.csv", at.Format("20060102_150405"))
	return filepath.Join(dir, areaName, name)
}

// writeXLSXSibling writes an XLSX copy of a result CSV next to it.
func writeXLSXSibling(csvPath string) error {
	entities, err := pipeline.ReadEntities(csvPath)
	if err != nil {
		return err
	}
	xlsxPath := strings.TrimSuffix(csvPath, filepath.Ext(csvPath)) + ".xlsx"
	if err := export.WriteXLSX(xlsxPath, entities); err != nil {
		return err
	}
	zap.L().Info("xlsx copy written", zap.String("path", xlsxPath))
	return nil
}

// printFilterSummary writes the per-reason tally of a filter run to w.
func printFilterSummary(out io.Writer, areaName, path string, s *model.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Area:\t%s\n", areaName)
	_, _ = fmt.Fprintf(w, "Registry candidates:\t%d\n", s.Input)
	_, _ = fmt.Fprintf(w, "Dropped, employee bounds:\t%d\n", s.OutOfRange)
	_, _ = fmt.Fprintf(w, "Dropped, missing address:\t%d\n", s.MissingAddress)
	_, _ = fmt.Fprintf(w, "Dropped, unresolved address:\t%d\n", s.Unresolved)
	_, _ = fmt.Fprintf(w, "Dropped, outside polygon:\t%d\n", s.OutsidePolygon)
	_, _ = fmt.Fprintf(w, "Dropped, duplicate address:\t%d\n", s.Duplicates)
	_, _ = fmt.Fprintf(w, "Geocode API calls:\t%d\n", s.GeocodeCalls)
	_, _ = fmt.Fprintf(w, "Geocode cache hits:\t%d\n", s.GeocodeCacheHits)
	_, _ = fmt.Fprintf(w, "Companies kept:\t%d\n", s.Output)
	_, _ = fmt.Fprintf(w, "Output:\t%s\n", path)
	_ = w.Flush()
}
