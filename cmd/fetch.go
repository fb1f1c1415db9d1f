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
	"golang.org/x/sync/errgroup"

	"github.com/carpool-pilot/prospect-cli/internal/cache"
	"github.com/carpool-pilot/prospect-cli/internal/config"
	"github.com/carpool-pilot/prospect-cli/internal/fetcher"
	"github.com/carpool-pilot/prospect-cli/internal/model"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the registry snapshots and postal table",
	Long: `Downloads the bulk registry exports and the postal code table from their
configured source URLs, so filter and enrich can run offline afterwards.

HTTP sources are fetched conditionally: the ETag of each download is kept
next to the snapshots and sent as If-None-Match on the next run, so an
unchanged snapshot costs one request and no transfer.`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().Bool("force", false, "download even when the remote file is unchanged")
	rootCmd.AddCommand(fetchCmd)
}

// fetchTarget is one remote snapshot and its local destination.
type fetchTarget struct {
	name string
	url  string
	path string
}

type fetchResult struct {
	name    string
	path    string
	bytes   int64
	changed bool
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate("fetch"); err != nil {
		return err
	}
	started := time.Now().UTC()

	targets := fetchTargets(cfg)
	if len(targets) == 0 {
		return eris.New("fetch: no source has both a url and a local path configured")
	}
	force, _ := cmd.Flags().GetBool("force")

	etags, err := cache.Open[string](filepath.Join(filepath.Dir(targets[0].path), "etags.json"))
	if err != nil {
		return err
	}
	defer func() {
		if err := etags.Flush(); err != nil {
			zap.L().Warn("etag cache flush failed", zap.Error(err))
		}
	}()

	timeout := time.Duration(cfg.HTTP.TimeoutSecs) * time.Second
	httpf := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.HTTP.UserAgent,
		Timeout:      timeout,
		MaxRetries:   cfg.HTTP.MaxRetries,
		RateLimiters: fetcher.DefaultRateLimiters(),
	})
	ftpf := fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout})

	results := make([]fetchResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for i, t := range targets {
		g.Go(func() error {
			log := zap.L().With(zap.String("source", t.name), zap.String("url", t.url))

			if strings.HasPrefix(t.url, "ftp://") {
				n, err := ftpf.DownloadToFile(gctx, t.url, t.path)
				if err != nil {
					return eris.Wrapf(err, "fetch %s", t.name)
				}
				results[i] = fetchResult{name: t.name, path: t.path, bytes: n, changed: true}
				log.Info("snapshot downloaded", zap.Int64("bytes", n))
				return nil
			}

			etag := ""
			if !force {
				etag, _ = etags.Get(t.url)
			}
			n, newTag, changed, err := httpf.DownloadToFileIfChanged(gctx, t.url, t.path, etag)
			if err != nil {
				return eris.Wrapf(err, "fetch %s", t.name)
			}
			if changed {
				etags.Put(t.url, newTag)
				log.Info("snapshot downloaded", zap.Int64("bytes", n))
			} else {
				log.Info("snapshot unchanged")
			}
			results[i] = fetchResult{name: t.name, path: t.path, bytes: n, changed: changed}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	downloaded := 0
	for _, r := range results {
		if r.changed {
			downloaded++
		}
	}
	recordRun(ctx, &model.Run{
		Command:    "fetch",
		OutputPath: filepath.Dir(targets[0].path),
		Summary:    model.Summary{Input: len(targets), Output: downloaded},
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	})

	printFetchSummary(os.Stdout, results)
	return nil
}

// fetchTargets pairs each configured source URL with its local path.
// Sources missing either side are left out.
func fetchTargets(cfg *config.Config) []fetchTarget {
	candidates := []fetchTarget{
		{name: "enheter", url: cfg.Data.EnheterURL, path: cfg.Data.EnheterPath},
		{name: "underenheter", url: cfg.Data.UnderenheterURL, path: cfg.Data.UnderenheterPath},
		{name: "postnummer", url: cfg.Data.PostalURL, path: cfg.Postal.Path},
	}
	targets := make([]fetchTarget, 0, len(candidates))
	for _, t := range candidates {
		if t.url == "" || t.path == "" {
			continue
		}
		targets = append(targets, t)
	}
	return targets
}

func printFetchSummary(out io.Writer, results []fetchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tSTATUS\tBYTES\tPATH")
	for _, r := range results {
		status := "unchanged"
		if r.changed {
			status = "downloaded"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.name, status, r.bytes, r.path)
	}
	_ = w.Flush()
}
