package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/contractor-intel/internal/gafscrape"
	"github.com/sells-group/contractor-intel/internal/model"
	"github.com/sells-group/contractor-intel/internal/refresh"
)

var (
	refreshZip        string
	refreshDistance   int
	refreshMaxResults int
	refreshSearches   string
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run an incremental reconciliation pass",
	Long:  "Fetches listing snapshots for each search, classifies them against the stored dataset, and applies full refreshes, metadata patches, or nothing per record.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		searches, err := resolveSearches()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		scraper := gafscrape.New(cfg.Scrape)
		engine := refresh.NewEngine(st, scraper, scraper, cfg.Refresh.Thresholds, cfg.Refresh.FetchConcurrency)

		var failed int
		for _, params := range searches {
			run, err := engine.Reconcile(ctx, params)
			if err != nil {
				failed++
				zap.L().Error("refresh pass failed",
					zap.String("zip", params.ZipCode),
					zap.Error(err))
				if ctx.Err() != nil {
					break
				}
				continue
			}
			fmt.Printf("run %d %s: found=%d new=%d refreshed=%d patched=%d unchanged=%d failed=%d\n",
				run.ID, params.ZipCode,
				run.Counters.Found, run.Counters.New, run.Counters.FullRefreshed,
				run.Counters.MetadataUpdated, run.Counters.Unchanged, run.Counters.Failed)
		}
		if failed > 0 {
			return eris.Errorf("%d of %d refresh passes failed", failed, len(searches))
		}
		return nil
	},
}

// resolveSearches builds the search list from either the --searches YAML file
// or the single --zip flag.
func resolveSearches() ([]model.SearchParams, error) {
	if refreshSearches != "" {
		data, err := os.ReadFile(refreshSearches)
		if err != nil {
			return nil, eris.Wrap(err, "read searches file")
		}
		return parseSearches(data)
	}
	if refreshZip == "" {
		return nil, eris.New("either --zip or --searches is required")
	}
	return []model.SearchParams{{
		ZipCode:    refreshZip,
		Distance:   refreshDistance,
		MaxResults: refreshMaxResults,
	}}, nil
}

// parseSearches decodes the searches YAML: a top-level list of zip/distance
// entries.
func parseSearches(data []byte) ([]model.SearchParams, error) {
	var doc struct {
		Searches []model.SearchParams `yaml:"searches"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "parse searches file")
	}
	if len(doc.Searches) == 0 {
		return nil, eris.New("searches file has no entries")
	}
	for i, s := range doc.Searches {
		if s.ZipCode == "" {
			return nil, eris.Errorf("searches entry %d missing zip_code", i)
		}
	}
	return doc.Searches, nil
}

func init() {
	refreshCmd.Flags().StringVar(&refreshZip, "zip", "", "zip code to search")
	refreshCmd.Flags().IntVar(&refreshDistance, "distance", 0, "search radius in miles (default from config)")
	refreshCmd.Flags().IntVar(&refreshMaxResults, "max-results", 0, "cap on listings per search (0 = no cap)")
	refreshCmd.Flags().StringVar(&refreshSearches, "searches", "", "YAML file with multiple searches")
	rootCmd.AddCommand(refreshCmd)
}
