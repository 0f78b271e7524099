package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Watch runs cycles at the configured interval until ctx is canceled.
// The first cycle fires immediately. Every cycle error is logged and
// absorbed; a broken cycle must never take the loop down with it.
func (p *Pipeline) Watch(ctx context.Context) error {
	interval := time.Duration(p.cfg.Scheduler.IntervalMins) * time.Minute
	zap.L().Info("pipeline: watch started",
		zap.Duration("interval", interval),
		zap.Int("channels", len(p.channels)),
	)

	p.runLogged(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("pipeline: watch stopped")
			return nil
		case <-ticker.C:
			p.runLogged(ctx)
		}
	}
}

func (p *Pipeline) runLogged(ctx context.Context) {
	rec, err := p.RunCycle(ctx)
	if err != nil {
		zap.L().Error("pipeline: cycle aborted", zap.Error(err))
		return
	}
	zap.L().Info("pipeline: cycle finished",
		zap.String("outcome", string(rec.Outcome)),
		zap.String("channel", rec.ChannelKey),
		zap.Duration("took", rec.Duration()),
	)
}
