package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/dealcast/dealcast/internal/export"
	"github.com/dealcast/dealcast/internal/ledger"
	"github.com/dealcast/dealcast/internal/model"
	"github.com/dealcast/dealcast/internal/store"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and manage the publication ledger",
	Long:  "Commands for the deduplication ledger: cooldown stats, per-product checks, import/export, and clearing.",
}

// openLedger opens the store and wraps it in the cooldown ledger.
func openLedger(ctx context.Context) (store.Store, *ledger.Ledger, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, nil, eris.Wrap(err, "migrate store")
	}

	return st, ledger.New(st, time.Duration(cfg.Pipeline.CooldownHours)*time.Hour), nil
}

// -- ledger stats --

var ledgerStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cooldown statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, l, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := l.Stats(ctx)
		if err != nil {
			return eris.Wrap(err, "ledger stats")
		}

		formatLedgerStats(os.Stdout, stats)
		return nil
	},
}

// -- ledger check --

var ledgerCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check cooldown status for one product",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, l, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		product, _ := cmd.Flags().GetString("product")
		pub, err := st.GetPublication(ctx, product)
		if err != nil {
			return eris.Wrap(err, "ledger check")
		}

		if pub == nil {
			fmt.Fprintf(os.Stdout, "%s: never published, eligible\n", product)
			return nil
		}

		until := pub.PublishedAt.Add(l.Cooldown())
		if remaining := time.Until(until); remaining > 0 {
			fmt.Fprintf(os.Stdout, "%s: published on %s at %s, cooling down for another %s\n",
				product, pub.ChannelKey, pub.PublishedAt.Format(time.RFC3339), remaining.Round(time.Minute))
		} else {
			fmt.Fprintf(os.Stdout, "%s: published on %s at %s, eligible again\n",
				product, pub.ChannelKey, pub.PublishedAt.Format(time.RFC3339))
		}
		return nil
	},
}

// -- ledger list --

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent publications",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, _, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		pubs, err := st.ListPublications(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "ledger list")
		}

		if len(pubs) == 0 {
			fmt.Fprintln(os.Stderr, "Ledger is empty.")
			return nil
		}

		formatPublications(os.Stdout, pubs)
		return nil
	},
}

// -- ledger clear --

var ledgerClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all publication history",
	Long:  "Deletes every ledger entry. Every known product becomes immediately eligible again.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return eris.New("refusing to clear the ledger without --yes")
		}

		st, l, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := l.ResetAll(ctx)
		if err != nil {
			return eris.Wrap(err, "ledger clear")
		}

		fmt.Fprintf(os.Stdout, "Cleared %d publications.\n", n)
		return nil
	},
}

// -- ledger import --

var ledgerImportCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import publications from a CSV file",
	Long:  "Imports ledger rows from a CSV with a product_id,channel_key,published_at header. Existing products keep the newer timestamp semantics of an upsert: the imported row wins.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "open %s", args[0])
		}
		defer f.Close() //nolint:errcheck

		pubs, err := parsePublicationsCSV(f)
		if err != nil {
			return eris.Wrapf(err, "parse %s", args[0])
		}

		st, _, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ImportPublications(ctx, pubs)
		if err != nil {
			return eris.Wrap(err, "ledger import")
		}

		fmt.Fprintf(os.Stdout, "Imported %d publications.\n", n)
		return nil
	},
}

// -- ledger export --

var ledgerExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the ledger to CSV or XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, _, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		pubs, err := st.ListPublications(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "ledger export")
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
			return export.PublicationsCSV(w, pubs)
		case "xlsx":
			if out == "" {
				return eris.New("--out is required for xlsx")
			}
			return export.PublicationsXLSX(out, pubs)
		default:
			return eris.Errorf("unknown format %q (csv or xlsx)", format)
		}
	},
}

// parsePublicationsCSV reads ledger rows from CSV. The header must match
// the export layout: product_id,channel_key,published_at (RFC3339).
func parsePublicationsCSV(r io.Reader) ([]model.Publication, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, eris.New("empty file")
	}
	if err != nil {
		return nil, eris.Wrap(err, "read header")
	}
	if len(header) != 3 || header[0] != "product_id" || header[1] != "channel_key" || header[2] != "published_at" {
		return nil, eris.Errorf("unexpected header %v, want [product_id channel_key published_at]", header)
	}

	var pubs []model.Publication
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "read row")
		}

		at, err := time.Parse(time.RFC3339, row[2])
		if err != nil {
			return nil, eris.Wrapf(err, "row %d: bad published_at %q", len(pubs)+2, row[2])
		}
		if row[0] == "" {
			return nil, eris.Errorf("row %d: empty product_id", len(pubs)+2)
		}

		pubs = append(pubs, model.Publication{
			ProductID:   row[0],
			ChannelKey:  row[1],
			PublishedAt: at.UTC(),
		})
	}
	return pubs, nil
}

// formatLedgerStats writes cooldown stats to w.
func formatLedgerStats(out io.Writer, s *ledger.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Known products:\t%d\n", s.TotalProducts)
	_, _ = fmt.Fprintf(w, "In cooldown:\t%d\n", s.InCooldown)
	_, _ = fmt.Fprintf(w, "Eligible again:\t%d\n", s.Eligible)
	_, _ = fmt.Fprintf(w, "Cooldown window:\t%.0fh\n", s.CooldownHours)
	if s.LastPublished != nil {
		_, _ = fmt.Fprintf(w, "Last published:\t%s\n", s.LastPublished.Format(time.RFC3339))
	}
	_ = w.Flush()
}

// formatPublications writes a tabular publication list to w.
func formatPublications(out io.Writer, pubs []model.Publication) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PRODUCT\tCHANNEL\tPUBLISHED")

	for _, p := range pubs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", p.ProductID, p.ChannelKey, p.PublishedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

func init() {
	ledgerCheckCmd.Flags().String("product", "", "product ID to check")
	_ = ledgerCheckCmd.MarkFlagRequired("product")

	ledgerListCmd.Flags().Int("limit", 50, "max rows to display")

	ledgerClearCmd.Flags().Bool("yes", false, "confirm deletion")

	ledgerExportCmd.Flags().String("format", "csv", "output format (csv or xlsx)")
	ledgerExportCmd.Flags().String("out", "", "output path (default stdout for csv)")
	ledgerExportCmd.Flags().Int("limit", 10000, "max rows to export")

	ledgerCmd.AddCommand(ledgerStatsCmd)
	ledgerCmd.AddCommand(ledgerCheckCmd)
	ledgerCmd.AddCommand(ledgerListCmd)
	ledgerCmd.AddCommand(ledgerClearCmd)
	ledgerCmd.AddCommand(ledgerImportCmd)
	ledgerCmd.AddCommand(ledgerExportCmd)
	rootCmd.AddCommand(ledgerCmd)
}
