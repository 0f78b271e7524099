package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Keepa     KeepaConfig     `yaml:"keepa" mapstructure:"keepa"`
	Telegram  TelegramConfig  `yaml:"telegram" mapstructure:"telegram"`
	Affiliate AffiliateConfig `yaml:"affiliate" mapstructure:"affiliate"`
	Channels  ChannelsConfig  `yaml:"channels" mapstructure:"channels"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Alerts    AlertsConfig    `yaml:"alerts" mapstructure:"alerts"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// KeepaConfig holds deal-data provider settings.
type KeepaConfig struct {
	Key                   string  `yaml:"key" mapstructure:"key"`
	BaseURL               string  `yaml:"base_url" mapstructure:"base_url"`
	Domain                int     `yaml:"domain" mapstructure:"domain"`
	TimeoutSecs           int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerMinute     float64 `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	Burst                 int     `yaml:"burst" mapstructure:"burst"`
	RateLimitCooldownSecs int     `yaml:"rate_limit_cooldown_secs" mapstructure:"rate_limit_cooldown_secs"`
	MaxSalesRank          int     `yaml:"max_sales_rank" mapstructure:"max_sales_rank"`
	BrowseDateRange       int     `yaml:"browse_date_range" mapstructure:"browse_date_range"`
	BrowseSortType        int     `yaml:"browse_sort_type" mapstructure:"browse_sort_type"`
}

// TelegramConfig holds bot API settings for the publisher.
type TelegramConfig struct {
	Token       string `yaml:"token" mapstructure:"token"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AffiliateConfig controls outbound product link construction.
type AffiliateConfig struct {
	Domain string `yaml:"domain" mapstructure:"domain"`
	Tag    string `yaml:"tag" mapstructure:"tag"`
}

// ChannelsConfig points at the channel profile file.
type ChannelsConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// SchedulerConfig controls the watch loop cadence and the daily posting window.
type SchedulerConfig struct {
	IntervalMins    int    `yaml:"interval_mins" mapstructure:"interval_mins"`
	ActiveStartHour int    `yaml:"active_start_hour" mapstructure:"active_start_hour"`
	ActiveEndHour   int    `yaml:"active_end_hour" mapstructure:"active_end_hour"`
	Timezone        string `yaml:"timezone" mapstructure:"timezone"`
}

// PipelineConfig controls cycle behavior.
type PipelineConfig struct {
	SourceMode          string  `yaml:"source_mode" mapstructure:"source_mode"` // flash | browse | alternate | weighted
	FlashWeight         float64 `yaml:"flash_weight" mapstructure:"flash_weight"`
	CooldownHours       int     `yaml:"cooldown_hours" mapstructure:"cooldown_hours"`
	ResetOnExhaustion   bool    `yaml:"reset_on_exhaustion" mapstructure:"reset_on_exhaustion"`
	FlashDiscountWaiver bool    `yaml:"flash_discount_waiver" mapstructure:"flash_discount_waiver"`
	ReferencePriceIndex int     `yaml:"reference_price_index" mapstructure:"reference_price_index"`
	VerifyBeforePublish bool    `yaml:"verify_before_publish" mapstructure:"verify_before_publish"`
	DetailWindow        int     `yaml:"detail_window" mapstructure:"detail_window"`
	RetryAttempts       int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffSecs    int     `yaml:"retry_backoff_secs" mapstructure:"retry_backoff_secs"`
}

// ScoringConfig holds selector weights.
type ScoringConfig struct {
	DiscountWeight float64 `yaml:"discount_weight" mapstructure:"discount_weight"`
	RatingWeight   float64 `yaml:"rating_weight" mapstructure:"rating_weight"`
	ReviewsWeight  float64 `yaml:"reviews_weight" mapstructure:"reviews_weight"`
	ReviewsDivisor float64 `yaml:"reviews_divisor" mapstructure:"reviews_divisor"`
	ReviewsCap     float64 `yaml:"reviews_cap" mapstructure:"reviews_cap"`
	FlashBonus     float64 `yaml:"flash_bonus" mapstructure:"flash_bonus"`
}

// ServerConfig configures the status API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// AlertsConfig configures the monitoring webhook.
type AlertsConfig struct {
	WebhookURL              string `yaml:"webhook_url" mapstructure:"webhook_url"`
	MaxConsecutiveNoPublish int    `yaml:"max_consecutive_no_publish" mapstructure:"max_consecutive_no_publish"`
	MaxHoursWithoutPublish  int    `yaml:"max_hours_without_publish" mapstructure:"max_hours_without_publish"`
	LookbackHours           int    `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	CheckIntervalMins       int    `yaml:"check_interval_mins" mapstructure:"check_interval_mins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DEALCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "dealcast.db")
	v.SetDefault("keepa.base_url", "https://api.keepa.com")
	v.SetDefault("keepa.domain", 8)
	v.SetDefault("keepa.timeout_secs", 30)
	v.SetDefault("keepa.requests_per_minute", 20)
	v.SetDefault("keepa.burst", 5)
	v.SetDefault("keepa.rate_limit_cooldown_secs", 60)
	v.SetDefault("keepa.max_sales_rank", 50000)
	v.SetDefault("keepa.browse_date_range", 1)
	v.SetDefault("keepa.browse_sort_type", 4)
	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.timeout_secs", 30)
	v.SetDefault("affiliate.domain", "amazon.it")
	v.SetDefault("channels.file", "channels.yaml")
	v.SetDefault("scheduler.interval_mins", 20)
	v.SetDefault("scheduler.active_start_hour", 7)
	v.SetDefault("scheduler.active_end_hour", 23)
	v.SetDefault("scheduler.timezone", "Europe/Rome")
	v.SetDefault("pipeline.source_mode", "alternate")
	v.SetDefault("pipeline.flash_weight", 0.5)
	v.SetDefault("pipeline.cooldown_hours", 48)
	v.SetDefault("pipeline.reset_on_exhaustion", true)
	v.SetDefault("pipeline.flash_discount_waiver", false)
	v.SetDefault("pipeline.reference_price_index", 1)
	v.SetDefault("pipeline.verify_before_publish", false)
	v.SetDefault("pipeline.detail_window", 90)
	v.SetDefault("pipeline.retry_attempts", 3)
	v.SetDefault("pipeline.retry_backoff_secs", 5)
	v.SetDefault("scoring.discount_weight", 1.0)
	v.SetDefault("scoring.rating_weight", 10.0)
	v.SetDefault("scoring.reviews_weight", 5.0)
	v.SetDefault("scoring.reviews_divisor", 100)
	v.SetDefault("scoring.reviews_cap", 10)
	v.SetDefault("scoring.flash_bonus", 15.0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("alerts.max_consecutive_no_publish", 12)
	v.SetDefault("alerts.max_hours_without_publish", 24)
	v.SetDefault("alerts.lookback_hours", 24)
	v.SetDefault("alerts.check_interval_mins", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the fields required by the given mode are present and
// sane. Modes: "pipeline" (watch/post), "preview", "serve", "store".
func (c *Config) Validate(mode string) error {
	var problems []string

	requireStore := func() {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}
	requireKeepa := func() {
		if c.Keepa.Key == "" {
			problems = append(problems, "keepa.key is required")
		}
	}
	requirePipeline := func() {
		requireStore()
		requireKeepa()
		if c.Telegram.Token == "" {
			problems = append(problems, "telegram.token is required")
		}
		switch c.Pipeline.SourceMode {
		case "flash", "browse", "alternate", "weighted":
		default:
			problems = append(problems, "pipeline.source_mode must be flash, browse, alternate, or weighted")
		}
		if c.Pipeline.FlashWeight < 0 || c.Pipeline.FlashWeight > 1 {
			problems = append(problems, "pipeline.flash_weight must be between 0 and 1")
		}
		if c.Pipeline.CooldownHours <= 0 {
			problems = append(problems, "pipeline.cooldown_hours must be > 0")
		}
		if c.Pipeline.ReferencePriceIndex < 1 {
			problems = append(problems, "pipeline.reference_price_index must be >= 1")
		}
		if c.Scheduler.ActiveStartHour < 0 || c.Scheduler.ActiveStartHour > 23 ||
			c.Scheduler.ActiveEndHour < 1 || c.Scheduler.ActiveEndHour > 24 ||
			c.Scheduler.ActiveStartHour >= c.Scheduler.ActiveEndHour {
			problems = append(problems, "scheduler active hours must satisfy 0 <= start < end <= 24")
		}
		if c.Scheduler.IntervalMins <= 0 {
			problems = append(problems, "scheduler.interval_mins must be > 0")
		}
	}

	switch mode {
	case "pipeline":
		requirePipeline()
	case "preview":
		requireStore()
		requireKeepa()
	case "serve":
		requireStore()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
	case "store":
		requireStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
