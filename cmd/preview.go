package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/dealcast/dealcast/internal/model"
	"github.com/dealcast/dealcast/internal/scorer"
)

var (
	previewChannel string
	previewMode    string
	previewASIN    string
	previewCooling bool
	previewLimit   int
	previewJSON    bool
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Rank candidates for a channel without publishing",
	Long:  "Sources, filters, and ranks deals exactly as a cycle would, then prints the ranking instead of posting. Nothing is sent and nothing is written to the ledger.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if previewASIN == "" && previewChannel == "" {
			return eris.New("--channel is required (or use --asin for a single product)")
		}

		env, err := initPreview(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if previewASIN != "" {
			return previewDetail(ctx, env, previewASIN)
		}

		mode := model.SourceMode(previewMode)
		if mode != model.ModeFlash && mode != model.ModeBrowse {
			return eris.Errorf("invalid mode %q (flash or browse)", previewMode)
		}

		ranked, err := env.Pipeline.Preview(ctx, previewChannel, mode, previewCooling)
		if err != nil {
			return eris.Wrap(err, "preview")
		}
		if previewLimit > 0 && len(ranked) > previewLimit {
			ranked = ranked[:previewLimit]
		}

		if previewJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(ranked)
		}

		if len(ranked) == 0 {
			fmt.Fprintln(os.Stderr, "No candidates clear the gate.")
			return nil
		}

		formatPreview(os.Stdout, ranked)

		post, err := env.Pipeline.RenderPreview(ranked[0].Candidate, previewChannel)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "\nTop pick caption:\n%s\n", post.Caption)
		return nil
	},
}

// previewDetail looks up one product and prints the candidate the verify
// phase would see.
func previewDetail(ctx context.Context, env *pipelineEnv, asin string) error {
	c, err := env.Pipeline.PreviewDetail(ctx, asin)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return err
	}

	if previewChannel != "" {
		reason, err := env.Pipeline.GateReason(c, previewChannel)
		if err != nil {
			return err
		}
		if reason != "" {
			fmt.Fprintf(os.Stdout, "\nWould not post on %s: %s\n", previewChannel, reason)
		}

		post, err := env.Pipeline.RenderPreview(c, previewChannel)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "\nCaption:\n%s\n", post.Caption)
	}
	return nil
}

// formatPreview writes the ranking as a table.
func formatPreview(out io.Writer, ranked []scorer.Ranked) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tSCORE\tASIN\tDISC\tPRICE\tRATING\tREVIEWS\tFLASH\tTITLE")

	for i, r := range ranked {
		c := r.Candidate
		title := c.Title
		if len(title) > 40 {
			title = title[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%d\t%.1f\t%s\t%d%%\t%.2f\t%.1f\t%d\t%v\t%s\n",
			i+1,
			r.Score,
			c.ProductID,
			c.DiscountPercent,
			c.CurrentPriceMajor(),
			c.Rating,
			c.ReviewCount,
			c.IsFlash,
			title,
		)
	}
	_ = w.Flush()
}

func init() {
	previewCmd.Flags().StringVar(&previewChannel, "channel", "", "channel key to preview")
	previewCmd.Flags().StringVar(&previewMode, "mode", "flash", "source feed (flash or browse)")
	previewCmd.Flags().StringVar(&previewASIN, "asin", "", "preview a single product instead of a feed")
	previewCmd.Flags().BoolVar(&previewCooling, "include-cooling", false, "keep candidates still inside the cooldown window")
	previewCmd.Flags().IntVar(&previewLimit, "limit", 10, "max rows to display")
	previewCmd.Flags().BoolVar(&previewJSON, "json", false, "print the ranking as JSON")
	rootCmd.AddCommand(previewCmd)
}
