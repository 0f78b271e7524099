package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dealcast/dealcast/internal/model"
)

var postChannel string

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Run a single publication cycle now",
	Long:  "Runs one cycle immediately and prints the cycle record as JSON. The daily posting window does not apply to manual posts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// A manual post expresses operator intent; the window gate is for
		// the unattended loop.
		cfg.Scheduler.ActiveStartHour, cfg.Scheduler.ActiveEndHour = 0, 24

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if postChannel != "" {
			if err := pointRotationAt(ctx, env, postChannel); err != nil {
				return err
			}
		}

		rec, err := env.Pipeline.RunCycle(ctx)
		if err != nil {
			return eris.Wrap(err, "run cycle")
		}

		zap.L().Info("cycle finished",
			zap.String("outcome", string(rec.Outcome)),
			zap.String("channel", rec.ChannelKey),
			zap.String("product", rec.ProductID),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

// pointRotationAt rewrites the rotation state so the next cycle posts to
// the named channel. The rotation resumes from there.
func pointRotationAt(ctx context.Context, env *pipelineEnv, key string) error {
	idx := -1
	for i, p := range env.Channels {
		if p.Key == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		return eris.Errorf("unknown channel %q", key)
	}

	state, err := env.Store.LoadCycleState(ctx)
	if err != nil {
		return eris.Wrap(err, "load rotation state")
	}
	if state == nil {
		state = &model.CycleState{}
	}
	state.ChannelIndex = idx

	return eris.Wrap(env.Store.SaveCycleState(ctx, *state), "save rotation state")
}

func init() {
	postCmd.Flags().StringVar(&postChannel, "channel", "", "post to this channel instead of the rotation's next")
	rootCmd.AddCommand(postCmd)
}
