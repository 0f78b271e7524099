package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dealcast/dealcast/internal/config"
)

// doctorCheck is the result of probing one dependency.
type doctorCheck struct {
	Component string
	Status    string // ok | skip | fail
	Detail    string
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check connectivity of every configured dependency",
	Long:  "Probes the store, the deal feed, the bot API, and the channels file concurrently and reports per-component status. Unconfigured components are skipped, not failed.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		checks := make([]doctorCheck, 4)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			checks[0] = checkStore(gctx)
			return nil
		})
		g.Go(func() error {
			checks[1] = checkChannels()
			return nil
		})
		g.Go(func() error {
			checks[2] = checkKeepa(gctx)
			return nil
		})
		g.Go(func() error {
			checks[3] = checkTelegram(gctx)
			return nil
		})
		_ = g.Wait()

		formatDoctor(os.Stdout, checks)

		for _, c := range checks {
			if c.Status == "fail" {
				return eris.New("one or more checks failed")
			}
		}
		return nil
	},
}

func checkStore(ctx context.Context) doctorCheck {
	c := doctorCheck{Component: "store", Status: "fail"}

	if err := cfg.Validate("store"); err != nil {
		c.Detail = err.Error()
		return c
	}
	st, err := initStore(ctx)
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	defer st.Close() //nolint:errcheck

	if err := st.Migrate(ctx); err != nil {
		c.Detail = err.Error()
		return c
	}
	n, err := st.CountPublications(ctx)
	if err != nil {
		c.Detail = err.Error()
		return c
	}

	c.Status = "ok"
	c.Detail = fmt.Sprintf("%s ready, %d ledger entries", cfg.Store.Driver, n)
	return c
}

func checkChannels() doctorCheck {
	c := doctorCheck{Component: "channels", Status: "fail"}

	channels, err := config.LoadChannels(cfg.Channels.File)
	if err != nil {
		c.Detail = err.Error()
		return c
	}

	c.Status = "ok"
	c.Detail = fmt.Sprintf("%d profiles in %s", len(channels), cfg.Channels.File)
	return c
}

func checkKeepa(ctx context.Context) doctorCheck {
	c := doctorCheck{Component: "keepa", Status: "fail"}

	if cfg.Keepa.Key == "" {
		c.Status = "skip"
		c.Detail = "keepa.key not set"
		return c
	}

	status, err := initKeepa().Token(ctx)
	if err != nil {
		c.Detail = err.Error()
		return c
	}

	c.Status = "ok"
	c.Detail = fmt.Sprintf("%d tokens left, refill %d/min", status.TokensLeft, status.RefillRate)
	return c
}

func checkTelegram(ctx context.Context) doctorCheck {
	c := doctorCheck{Component: "telegram", Status: "fail"}

	if cfg.Telegram.Token == "" {
		c.Status = "skip"
		c.Detail = "telegram.token not set"
		return c
	}

	info, err := initTelegram().GetMe(ctx)
	if err != nil {
		c.Detail = err.Error()
		return c
	}

	c.Status = "ok"
	c.Detail = fmt.Sprintf("bot @%s", info.Username)
	return c
}

// formatDoctor writes the check results to w.
func formatDoctor(out io.Writer, checks []doctorCheck) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COMPONENT\tSTATUS\tDETAIL")

	for _, c := range checks {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", c.Component, c.Status, c.Detail)
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
