package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/carpool-pilot/prospect-cli/internal/cache"
	"github.com/carpool-pilot/prospect-cli/internal/model"
	"github.com/carpool-pilot/prospect-cli/internal/pipeline"
	"github.com/carpool-pilot/prospect-cli/internal/scorer"
	"github.com/carpool-pilot/prospect-cli/pkg/brreg"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <filtered-csv>",
	Short: "Enrich a filtered CSV with contact data and potential scores",
	Long: `Reads a filtered company CSV, looks up contact data for each org number
in the Enhetsregisteret detail API and computes a carpool potential score
with sales notes. Lookups are cached on disk so reruns stay offline.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnrich,
}

func init() {
	f := enrichCmd.Flags()
	f.String("output", "", "output CSV path (default <input-dir>/enriched_companies_<timestamp>.csv)")
	f.String("variant", "", "scoring variant, research or group (default from config)")
	f.Bool("xlsx", false, "also write an XLSX copy next to the CSV")
	rootCmd.AddCommand(enrichCmd)
}

func runEnrich(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate("enrich"); err != nil {
		return err
	}
	started := time.Now().UTC()
	inputPath := args[0]

	variantName := cfg.Scoring.Variant
	if s, _ := cmd.Flags().GetString("variant"); s != "" {
		variantName = s
	}
	variant, err := scorer.ParseVariant(variantName)
	if err != nil {
		return err
	}

	rules := scorer.DefaultRules()
	if cfg.Scoring.RulesPath != "" {
		rules, err = scorer.LoadRules(cfg.Scoring.RulesPath)
		if err != nil {
			return err
		}
	}

	contactCache, err := cache.Open[pipeline.ContactEntry](cfg.Registry.CachePath, cache.FlushEvery(cfg.Registry.FlushEvery))
	if err != nil {
		return err
	}
	defer func() {
		if err := contactCache.Flush(); err != nil {
			zap.L().Warn("contact cache flush failed", zap.Error(err))
		}
	}()

	client := brreg.NewClient(cfg.Registry.BaseURL,
		brreg.WithRateLimit(cfg.Registry.RequestsPerSecond),
		brreg.WithUserAgent(cfg.HTTP.UserAgent),
	)

	outputPath, _ := cmd.Flags().GetString("output")
	if outputPath == "" {
		outputPath = defaultEnrichOutput(inputPath, started)
	}

	stage := pipeline.NewEnrichStage(client, contactCache, rules, variant)
	summary, err := stage.Run(ctx, inputPath, outputPath)
	if err != nil {
		return eris.Wrap(err, "enrich")
	}

	wantXLSX, _ := cmd.Flags().GetBool("xlsx")
	if wantXLSX || cfg.Output.XLSX {
		if err := writeXLSXSibling(outputPath); err != nil {
			return err
		}
	}

	recordRun(ctx, &model.Run{
		Command:    "enrich",
		Area:       areaFromPath(inputPath),
		OutputPath: outputPath,
		Summary:    *summary,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	})

	printEnrichSummary(os.Stdout, outputPath, summary)
	return nil
}

// defaultEnrichOutput places the enriched file next to its input.
func defaultEnrichOutput(inputPath string, at time.Time) string {
	name := fmt.Sprintf("enriched_companies_%s.csv", at.Format("20060102_150405"))
	return filepath.Join(filepath.Dir(inputPath), name)
}

// areaFromPath recovers the area name from a result path of the form
// output/<area>/file.csv. Inputs outside that layout yield "".
func areaFromPath(path string) string {
	area := filepath.Base(filepath.Dir(path))
	if area == "." || area == string(filepath.Separator) {
		return ""
	}
	return area
}

// printEnrichSummary writes the contact coverage tally of an enrich run to w.
func printEnrichSummary(out io.Writer, path string, s *model.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Companies read:\t%d\n", s.Input)
	_, _ = fmt.Fprintf(w, "Dropped, duplicate org number:\t%d\n", s.Duplicates)
	_, _ = fmt.Fprintf(w, "Detail API calls:\t%d\n", s.DetailCalls)
	_, _ = fmt.Fprintf(w, "Detail cache hits:\t%d\n", s.DetailCacheHits)
	_, _ = fmt.Fprintf(w, "Without contact data:\t%d\n", s.DetailMisses)
	_, _ = fmt.Fprintf(w, "With website:\t%d\n", s.WithWebsite)
	_, _ = fmt.Fprintf(w, "With email:\t%d\n", s.WithEmail)
	_, _ = fmt.Fprintf(w, "With phone:\t%d\n", s.WithPhone)
	_, _ = fmt.Fprintf(w, "Companies written:\t%d\n", s.Output)
	_, _ = fmt.Fprintf(w, "Output:\t%s\n", path)
	_ = w.Flush()
}
