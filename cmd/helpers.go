package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dealcast/dealcast/internal/config"
	"github.com/dealcast/dealcast/internal/model"
	"github.com/dealcast/dealcast/internal/pipeline"
	"github.com/dealcast/dealcast/internal/resilience"
	"github.com/dealcast/dealcast/internal/store"
	"github.com/dealcast/dealcast/pkg/keepa"
	"github.com/dealcast/dealcast/pkg/telegram"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "dealcast.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// apiHTTPClient builds an http.Client with the shared transport shape and a
// per-config timeout.
func apiHTTPClient(timeoutSecs int) *http.Client {
	return &http.Client{
		Timeout: time.Duration(timeoutSecs) * time.Second,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func initKeepa() keepa.Client {
	opts := []keepa.Option{
		keepa.WithDomain(cfg.Keepa.Domain),
		keepa.WithRateLimit(cfg.Keepa.RequestsPerMinute, cfg.Keepa.Burst),
	}
	if cfg.Keepa.BaseURL != "" {
		opts = append(opts, keepa.WithBaseURL(cfg.Keepa.BaseURL))
	}
	if cfg.Keepa.TimeoutSecs > 0 {
		opts = append(opts, keepa.WithHTTPClient(apiHTTPClient(cfg.Keepa.TimeoutSecs)))
	}
	if cfg.Keepa.RateLimitCooldownSecs > 0 {
		opts = append(opts, keepa.WithRateLimitCooldown(time.Duration(cfg.Keepa.RateLimitCooldownSecs)*time.Second))
	}
	if cfg.Pipeline.RetryAttempts > 0 {
		opts = append(opts, keepa.WithRetry(resilience.RetryConfig{
			MaxAttempts: cfg.Pipeline.RetryAttempts,
			Backoff:     time.Duration(cfg.Pipeline.RetryBackoffSecs) * time.Second,
		}))
	}
	return keepa.NewClient(cfg.Keepa.Key, opts...)
}

func initTelegram() telegram.Client {
	var opts []telegram.Option
	if cfg.Telegram.BaseURL != "" {
		opts = append(opts, telegram.WithBaseURL(cfg.Telegram.BaseURL))
	}
	if cfg.Telegram.TimeoutSecs > 0 {
		opts = append(opts, telegram.WithHTTPClient(apiHTTPClient(cfg.Telegram.TimeoutSecs)))
	}
	return telegram.NewClient(cfg.Telegram.Token, opts...)
}

// pipelineEnv holds the store, the channel profiles, and the pipeline used
// by the watch/post/preview commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Channels []model.ChannelProfile
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up the store and both API clients, loads the channel
// profiles, and builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate("pipeline"); err != nil {
		return nil, err
	}
	return buildEnv(ctx, initTelegram())
}

// initPreview builds a pipeline without a publisher client. Preview paths
// never send, so the bot stays nil.
func initPreview(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate("preview"); err != nil {
		return nil, err
	}
	return buildEnv(ctx, nil)
}

func buildEnv(ctx context.Context, bot telegram.Client) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	channels, err := config.LoadChannels(cfg.Channels.File)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	p := pipeline.New(cfg, st, initKeepa(), bot, channels)

	zap.L().Info("pipeline ready",
		zap.String("store", cfg.Store.Driver),
		zap.Int("channels", len(channels)),
	)

	return &pipelineEnv{Store: st, Pipeline: p, Channels: channels}, nil
}
