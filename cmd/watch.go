package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dealcast/dealcast/internal/monitoring"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the publication loop",
	Long:  "Runs a publication cycle immediately and then on every scheduler tick until interrupted. A health checker runs alongside and fires webhook alerts on sustained publish problems.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		checker := monitoring.NewChecker(
			monitoring.NewCollector(env.Store),
			monitoring.NewAlerter(cfg.Alerts),
			cfg.Alerts,
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return env.Pipeline.Watch(gctx)
		})
		g.Go(func() error {
			checker.Run(gctx)
			return nil
		})

		if err := g.Wait(); err != nil {
			return err
		}

		zap.L().Info("watch stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
