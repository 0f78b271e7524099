package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/dealcast/dealcast/internal/export"
	"github.com/dealcast/dealcast/internal/model"
	"github.com/dealcast/dealcast/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect cycle history",
	Long:  "Commands for listing, viewing, summarizing, and exporting publication cycles.",
}

// cycleFilterFromFlags builds the store filter shared by list and export.
func cycleFilterFromFlags(cmd *cobra.Command) store.CycleFilter {
	channel, _ := cmd.Flags().GetString("channel")
	outcome, _ := cmd.Flags().GetString("outcome")
	limit, _ := cmd.Flags().GetInt("limit")
	since, _ := cmd.Flags().GetDuration("since")

	filter := store.CycleFilter{
		ChannelKey: channel,
		Outcome:    model.Outcome(outcome),
		Limit:      limit,
	}
	if since > 0 {
		filter.Since = time.Now().Add(-since)
	}
	return filter
}

// -- history list --

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List publication cycles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, _, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.ListCycles(ctx, cycleFilterFromFlags(cmd))
		if err != nil {
			return eris.Wrap(err, "history list")
		}

		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No cycles found.")
			return nil
		}

		formatCyclesList(os.Stdout, recs)
		return nil
	},
}

// -- history show --

var historyShowCmd = &cobra.Command{
	Use:   "show <cycle-id>",
	Short: "Show full details of a cycle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, _, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetCycle(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "history show")
		}
		if rec == nil {
			return eris.Errorf("cycle %s not found", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

// -- history stats --

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate cycle statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, _, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		filter := store.CycleFilter{Limit: 10000} // high limit for stats
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		recs, err := st.ListCycles(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "history stats")
		}

		formatCycleStats(os.Stdout, computeCycleStats(recs))
		return nil
	},
}

// -- history export --

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export cycle history to CSV or XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, _, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.ListCycles(ctx, cycleFilterFromFlags(cmd))
		if err != nil {
			return eris.Wrap(err, "history export")
		}

		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")

		switch format {
		case "csv":
			w := os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return eris.Wrapf(err, "create %s", out)
				}
				defer f.Close() //nolint:errcheck
				w = f
			}
			return export.CyclesCSV(w, recs)
		case "xlsx":
			if out == "" {
				return eris.New("--out is required for xlsx")
			}
			return export.CyclesXLSX(out, recs)
		default:
			return eris.Errorf("unknown format %q (csv or xlsx)", format)
		}
	},
}

func init() {
	historyListCmd.Flags().String("channel", "", "filter by channel key")
	historyListCmd.Flags().String("outcome", "", "filter by outcome (published, no_candidates, skipped_inactive, verify_failed, publish_failed)")
	historyListCmd.Flags().Int("limit", 50, "max number of cycles to display")
	historyListCmd.Flags().Duration("since", 0, "time window (e.g. 24h, 168h); 0 means all")

	historyStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	historyExportCmd.Flags().String("channel", "", "filter by channel key")
	historyExportCmd.Flags().String("outcome", "", "filter by outcome")
	historyExportCmd.Flags().Int("limit", 10000, "max rows to export")
	historyExportCmd.Flags().Duration("since", 0, "time window; 0 means all")
	historyExportCmd.Flags().String("format", "csv", "output format (csv or xlsx)")
	historyExportCmd.Flags().String("out", "", "output path (default stdout for csv)")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyStatsCmd)
	historyCmd.AddCommand(historyExportCmd)
	rootCmd.AddCommand(historyCmd)
}

// cycleStats holds aggregate statistics computed from a set of cycles.
type cycleStats struct {
	Total         int
	Published     int
	NoCandidates  int
	Skipped       int
	VerifyFailed  int
	PublishFailed int
	AvgScore      float64
	AvgDurSecs    float64
}

// computeCycleStats computes aggregate statistics from a list of cycles.
func computeCycleStats(recs []model.CycleRecord) cycleStats {
	var s cycleStats
	s.Total = len(recs)

	var scoreSum float64
	var totalDur time.Duration
	var durCount int

	for _, r := range recs {
		switch r.Outcome {
		case model.OutcomePublished:
			s.Published++
			scoreSum += r.Score
		case model.OutcomeNoCandidates:
			s.NoCandidates++
		case model.OutcomeSkippedInactive:
			s.Skipped++
		case model.OutcomeVerifyFailed:
			s.VerifyFailed++
		case model.OutcomePublishFailed:
			s.PublishFailed++
		}

		// Skipped cycles finish in microseconds and would drag the mean.
		if r.Outcome != model.OutcomeSkippedInactive {
			totalDur += r.Duration()
			durCount++
		}
	}

	if s.Published > 0 {
		s.AvgScore = scoreSum / float64(s.Published)
	}
	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	return s
}

// formatCyclesList writes a tabular list of cycles to w.
func formatCyclesList(out io.Writer, recs []model.CycleRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCHANNEL\tMODE\tOUTCOME\tSCORE\tPRODUCT\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-------\t----\t-------\t-----\t-------\t-------\t--------")

	for _, r := range recs {
		score := ""
		if r.Outcome == model.OutcomePublished {
			score = fmt.Sprintf("%.1f", r.Score)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.ChannelKey,
			r.SourceMode,
			r.Outcome,
			score,
			r.ProductID,
			r.StartedAt.Format("2006-01-02 15:04"),
			r.Duration().Round(time.Millisecond).String(),
		)
	}
	_ = w.Flush()
}

// formatCycleStats writes aggregate stats to w.
func formatCycleStats(out io.Writer, s cycleStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total cycles:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Published:\t%d\n", s.Published)
	_, _ = fmt.Fprintf(w, "No candidates:\t%d\n", s.NoCandidates)
	_, _ = fmt.Fprintf(w, "Skipped (inactive):\t%d\n", s.Skipped)
	_, _ = fmt.Fprintf(w, "Verify failed:\t%d\n", s.VerifyFailed)
	_, _ = fmt.Fprintf(w, "Publish failed:\t%d\n", s.PublishFailed)
	if s.Published > 0 {
		_, _ = fmt.Fprintf(w, "Avg winning score:\t%.1f\n", s.AvgScore)
	}
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg cycle duration:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
