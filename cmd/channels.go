package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dealcast/dealcast/internal/config"
	"github.com/dealcast/dealcast/internal/model"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List configured channel profiles",
	Long:  "Loads and validates the channels file, then prints every profile with its quality floors. The rotation posts in file order.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		channels, err := config.LoadChannels(cfg.Channels.File)
		if err != nil {
			return err
		}

		formatChannels(os.Stdout, channels)
		return nil
	},
}

// formatChannels writes a tabular profile list to w.
func formatChannels(out io.Writer, channels []model.ChannelProfile) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tCHAT\tCATEGORIES\tMIN_DISC\tMIN_RATING\tMIN_REVIEWS\tPRICE_RANGE\tEMOJIS")

	for _, p := range channels {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d%%\t%.1f\t%d\t%s\t%s\n",
			p.Key,
			p.ChatID,
			len(p.CategoryIDs),
			p.MinDiscountPercent,
			p.MinRating,
			p.MinReviewCount,
			priceRange(p),
			strings.Join(p.Emojis, ""),
		)
	}
	_ = w.Flush()
}

// priceRange renders the profile's price window in major units.
func priceRange(p model.ChannelProfile) string {
	if p.MaxPriceMinor == 0 {
		if p.MinPriceMinor == 0 {
			return "any"
		}
		return fmt.Sprintf("%.2f+", float64(p.MinPriceMinor)/100)
	}
	return fmt.Sprintf("%.2f-%.2f", float64(p.MinPriceMinor)/100, float64(p.MaxPriceMinor)/100)
}

func init() {
	rootCmd.AddCommand(channelsCmd)
}
