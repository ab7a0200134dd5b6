package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/contractor-intel/internal/model"
	"github.com/sells-group/contractor-intel/internal/store"
)

var contractorsCmd = &cobra.Command{
	Use:   "contractors",
	Short: "Browse the contractor dataset",
}

var contractorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contractors",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		location, _ := cmd.Flags().GetString("location")
		minRating, _ := cmd.Flags().GetFloat64("min-rating")
		minReviews, _ := cmd.Flags().GetInt("min-reviews")
		search, _ := cmd.Flags().GetString("search")
		sortBy, _ := cmd.Flags().GetString("sort")
		limit, _ := cmd.Flags().GetInt("limit")

		contractors, total, err := st.ListContractors(ctx, store.ContractorFilter{
			Location:   location,
			MinRating:  minRating,
			MinReviews: minReviews,
			Search:     search,
			SortBy:     sortBy,
			SortDesc:   true,
			Limit:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "contractors list")
		}

		if len(contractors) == 0 {
			fmt.Fprintln(os.Stderr, "No contractors found.")
			return nil
		}

		formatContractorsList(os.Stdout, contractors)
		fmt.Printf("\n%d of %d contractor(s)\n", len(contractors), total)
		return nil
	},
}

var contractorsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one contractor with its insight and quality score",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("invalid contractor id %q", args[0])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		c, err := st.GetContractor(ctx, id)
		if err != nil {
			return eris.Wrap(err, "contractors show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	},
}

func init() {
	contractorsListCmd.Flags().String("location", "", "filter by location substring")
	contractorsListCmd.Flags().Float64("min-rating", 0, "minimum rating")
	contractorsListCmd.Flags().Int("min-reviews", 0, "minimum review count")
	contractorsListCmd.Flags().String("search", "", "search in name or location")
	contractorsListCmd.Flags().String("sort", "rating", "sort column (name, rating, reviews, distance, quality, updated_at)")
	contractorsListCmd.Flags().Int("limit", 50, "max number of contractors to display")

	contractorsCmd.AddCommand(contractorsListCmd)
	contractorsCmd.AddCommand(contractorsShowCmd)
	rootCmd.AddCommand(contractorsCmd)
}

// formatContractorsList writes a tabular contractor listing to w.
func formatContractorsList(out io.Writer, contractors []model.Contractor) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tLOCATION\tRATING\tREVIEWS\tQUALITY\tSTALE")

	for _, c := range contractors {
		rating := "-"
		if c.Rating != nil {
			rating = fmt.Sprintf("%.1f", *c.Rating)
		}
		reviews := "-"
		if c.Reviews != nil {
			reviews = strconv.Itoa(*c.Reviews)
		}
		quality := "-"
		if c.Quality != nil {
			quality = fmt.Sprintf("%.2f", c.Quality.Overall)
		}
		stale := ""
		if c.InsightStale {
			stale = "yes"
		}

		name := c.Name
		if len(name) > 32 {
			name = name[:29] + "..."
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, name, c.Location, rating, reviews, quality, stale)
	}
	_ = w.Flush()
}
