package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Discovery  DiscoveryConfig  `yaml:"discovery" mapstructure:"discovery"`
	Limits     LimitsConfig     `yaml:"limits" mapstructure:"limits"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Backoff    BackoffConfig    `yaml:"backoff" mapstructure:"backoff"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Scorer     ScorerConfig     `yaml:"scorer" mapstructure:"scorer"`
	Sources    SourcesConfig    `yaml:"sources" mapstructure:"sources"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
}

// DiscoveryConfig configures a discovery run.
type DiscoveryConfig struct {
	MaxProducts        int               `yaml:"max_products" mapstructure:"max_products"`
	Concurrency        int               `yaml:"concurrency" mapstructure:"concurrency"`
	Sequential         bool              `yaml:"sequential" mapstructure:"sequential"`
	SkipTrends         bool              `yaml:"skip_trends" mapstructure:"skip_trends"`
	TrendsBatchSize    int               `yaml:"trends_batch_size" mapstructure:"trends_batch_size"`
	ProductsPerKeyword int               `yaml:"products_per_keyword" mapstructure:"products_per_keyword"`
	MaxKeywords        int               `yaml:"max_keywords" mapstructure:"max_keywords"`
	PostsPerProduct    int               `yaml:"posts_per_product" mapstructure:"posts_per_product"`
	Expansions         []ExpansionConfig `yaml:"expansions" mapstructure:"expansions"`
}

// ExpansionConfig is one keyword expansion template: the suffix appended to
// a trend topic and the niche relationship the expanded keyword carries.
type ExpansionConfig struct {
	Suffix string `yaml:"suffix" mapstructure:"suffix"`
	Niche  string `yaml:"niche" mapstructure:"niche"`
}

// LimitsConfig holds the per-source rate limits. Default applies to any
// source without its own section.
type LimitsConfig struct {
	Default     SourceLimitConfig `yaml:"default" mapstructure:"default"`
	Trends      SourceLimitConfig `yaml:"trends" mapstructure:"trends"`
	Marketplace SourceLimitConfig `yaml:"marketplace" mapstructure:"marketplace"`
	Sentiment   SourceLimitConfig `yaml:"sentiment" mapstructure:"sentiment"`
}

// SourceLimitConfig configures the gate in front of one source.
type SourceLimitConfig struct {
	MinDelayMs  int `yaml:"min_delay_ms" mapstructure:"min_delay_ms"`
	JitterMs    int `yaml:"jitter_ms" mapstructure:"jitter_ms"`
	PerMinute   int `yaml:"per_minute" mapstructure:"per_minute"`
	MaxInFlight int `yaml:"max_in_flight" mapstructure:"max_in_flight"`
	MaxWaitSecs int `yaml:"max_wait_secs" mapstructure:"max_wait_secs"`
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CircuitConfig configures the per-source circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// BackoffConfig is the escalation applied after transient failures.
type BackoffConfig struct {
	ScheduleSecs []int `yaml:"schedule_secs" mapstructure:"schedule_secs"`
}

// RetryConfig controls orchestrator retries of rate-limited calls.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ScorerConfig holds the opportunity scoring points.
type ScorerConfig struct {
	// Base points by candidate origin.
	RisingBase float64 `yaml:"rising_base" mapstructure:"rising_base"`
	TrendBase  float64 `yaml:"trend_base" mapstructure:"trend_base"`
	SeedBase   float64 `yaml:"seed_base" mapstructure:"seed_base"`
	ManualBase float64 `yaml:"manual_base" mapstructure:"manual_base"`

	// Competition points by saturation tier.
	CompetitionVeryLow  float64 `yaml:"competition_very_low" mapstructure:"competition_very_low"`
	CompetitionLow      float64 `yaml:"competition_low" mapstructure:"competition_low"`
	CompetitionMedium   float64 `yaml:"competition_medium" mapstructure:"competition_medium"`
	CompetitionHigh     float64 `yaml:"competition_high" mapstructure:"competition_high"`
	CompetitionVeryHigh float64 `yaml:"competition_very_high" mapstructure:"competition_very_high"`
	CompetitionNeutral  float64 `yaml:"competition_neutral" mapstructure:"competition_neutral"`

	SentimentPolarityMax float64 `yaml:"sentiment_polarity_max" mapstructure:"sentiment_polarity_max"`
	SentimentVolumeMax   float64 `yaml:"sentiment_volume_max" mapstructure:"sentiment_volume_max"`

	NicheAccessory     float64 `yaml:"niche_accessory" mapstructure:"niche_accessory"`
	NicheAlternative   float64 `yaml:"niche_alternative" mapstructure:"niche_alternative"`
	NicheComplementary float64 `yaml:"niche_complementary" mapstructure:"niche_complementary"`

	ValidationPosts   float64 `yaml:"validation_posts" mapstructure:"validation_posts"`
	ValidationReviews float64 `yaml:"validation_reviews" mapstructure:"validation_reviews"`
	ValidationRating  float64 `yaml:"validation_rating" mapstructure:"validation_rating"`

	PositiveRatioThreshold float64 `yaml:"positive_ratio_threshold" mapstructure:"positive_ratio_threshold"`
	PositiveBonus          float64 `yaml:"positive_bonus" mapstructure:"positive_bonus"`
	NegativePenalty        float64 `yaml:"negative_penalty" mapstructure:"negative_penalty"`
}

// SourcesConfig holds upstream endpoints and credentials. When FixturePath
// is set every source is served from that file instead.
type SourcesConfig struct {
	TrendsURL      string `yaml:"trends_url" mapstructure:"trends_url"`
	TrendsKey      string `yaml:"trends_key" mapstructure:"trends_key"`
	MarketplaceURL string `yaml:"marketplace_url" mapstructure:"marketplace_url"`
	MarketplaceKey string `yaml:"marketplace_key" mapstructure:"marketplace_key"`
	SocialURL      string `yaml:"social_url" mapstructure:"social_url"`
	SocialKey      string `yaml:"social_key" mapstructure:"social_key"`
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
	FixturePath    string `yaml:"fixture_path" mapstructure:"fixture_path"`
}

// MonitoringConfig configures run health alerts.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinCalls             int     `yaml:"min_calls" mapstructure:"min_calls"`
	DLQThreshold         int     `yaml:"dlq_threshold" mapstructure:"dlq_threshold"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
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
	v.SetEnvPrefix("SCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("discovery.max_products", 50)
	v.SetDefault("discovery.concurrency", 5)
	v.SetDefault("discovery.sequential", false)
	v.SetDefault("discovery.skip_trends", false)
	v.SetDefault("discovery.trends_batch_size", 5)
	v.SetDefault("discovery.products_per_keyword", 10)
	v.SetDefault("discovery.max_keywords", 30)
	v.SetDefault("discovery.posts_per_product", 25)
	v.SetDefault("discovery.expansions", []map[string]any{
		{"suffix": "accessories", "niche": "accessory"},
		{"suffix": "alternative", "niche": "alternative"},
		{"suffix": "kit", "niche": "complementary"},
	})

	v.SetDefault("limits.default.min_delay_ms", 1000)
	v.SetDefault("limits.default.jitter_ms", 500)
	v.SetDefault("limits.default.per_minute", 30)
	v.SetDefault("limits.default.max_in_flight", 1)
	v.SetDefault("limits.default.max_wait_secs", 600)
	v.SetDefault("limits.default.timeout_secs", 30)
	v.SetDefault("limits.trends.min_delay_ms", 2000)
	v.SetDefault("limits.trends.jitter_ms", 1000)
	v.SetDefault("limits.trends.per_minute", 10)
	v.SetDefault("limits.trends.max_in_flight", 1)
	v.SetDefault("limits.trends.max_wait_secs", 600)
	v.SetDefault("limits.trends.timeout_secs", 30)
	v.SetDefault("limits.marketplace.min_delay_ms", 3000)
	v.SetDefault("limits.marketplace.jitter_ms", 1500)
	v.SetDefault("limits.marketplace.per_minute", 15)
	v.SetDefault("limits.marketplace.max_in_flight", 3)
	v.SetDefault("limits.marketplace.max_wait_secs", 600)
	v.SetDefault("limits.marketplace.timeout_secs", 30)
	v.SetDefault("limits.sentiment.min_delay_ms", 1000)
	v.SetDefault("limits.sentiment.jitter_ms", 500)
	v.SetDefault("limits.sentiment.per_minute", 30)
	v.SetDefault("limits.sentiment.max_in_flight", 5)
	v.SetDefault("limits.sentiment.max_wait_secs", 600)
	v.SetDefault("limits.sentiment.timeout_secs", 20)

	v.SetDefault("circuit.failure_threshold", 3)
	v.SetDefault("circuit.cooldown_secs", 600)
	v.SetDefault("backoff.schedule_secs", []int{60, 120, 300})
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 5000)
	v.SetDefault("retry.max_backoff_ms", 120000)

	v.SetDefault("scorer.rising_base", 30)
	v.SetDefault("scorer.trend_base", 20)
	v.SetDefault("scorer.seed_base", 15)
	v.SetDefault("scorer.manual_base", 10)
	v.SetDefault("scorer.competition_very_low", 25)
	v.SetDefault("scorer.competition_low", 20)
	v.SetDefault("scorer.competition_medium", 12.5)
	v.SetDefault("scorer.competition_high", 5)
	v.SetDefault("scorer.competition_very_high", 1)
	v.SetDefault("scorer.competition_neutral", 12.5)
	v.SetDefault("scorer.sentiment_polarity_max", 20)
	v.SetDefault("scorer.sentiment_volume_max", 5)
	v.SetDefault("scorer.niche_accessory", 10)
	v.SetDefault("scorer.niche_alternative", 8)
	v.SetDefault("scorer.niche_complementary", 6)
	v.SetDefault("scorer.validation_posts", 4)
	v.SetDefault("scorer.validation_reviews", 3)
	v.SetDefault("scorer.validation_rating", 3)
	v.SetDefault("scorer.positive_ratio_threshold", 0.75)
	v.SetDefault("scorer.positive_bonus", 5)
	v.SetDefault("scorer.negative_penalty", 15)

	v.SetDefault("sources.trends_url", "https://trends.example-api.com/v1")
	v.SetDefault("sources.marketplace_url", "https://marketplace.example-api.com/v1")
	v.SetDefault("sources.social_url", "https://social.example-api.com/v1")
	v.SetDefault("sources.user_agent", "niche-scout/1.0")

	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_calls", 5)
	v.SetDefault("monitoring.dlq_threshold", 10)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
}

// Validate checks the configuration for the given command mode
// ("discover" or "research").
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "discover", "research":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	d := c.Discovery
	if d.Concurrency < 1 || d.Concurrency > 50 {
		errs = append(errs, "discovery.concurrency must be between 1 and 50")
	}
	if d.MaxProducts < 1 {
		errs = append(errs, "discovery.max_products must be > 0")
	}
	if mode == "discover" {
		if d.TrendsBatchSize < 1 || d.TrendsBatchSize > 5 {
			errs = append(errs, "discovery.trends_batch_size must be between 1 and 5")
		}
		if d.MaxKeywords < 1 {
			errs = append(errs, "discovery.max_keywords must be > 0")
		}
	}
	if d.ProductsPerKeyword < 1 {
		errs = append(errs, "discovery.products_per_keyword must be > 0")
	}
	for _, e := range d.Expansions {
		if strings.TrimSpace(e.Suffix) == "" {
			errs = append(errs, "discovery.expansions suffix is required")
		}
		switch e.Niche {
		case "accessory", "alternative", "complementary", "none":
		default:
			errs = append(errs, fmt.Sprintf("discovery.expansions niche %q is not valid", e.Niche))
		}
	}

	if c.Circuit.FailureThreshold < 1 {
		errs = append(errs, "circuit.failure_threshold must be > 0")
	}
	if c.Circuit.CooldownSecs < 0 {
		errs = append(errs, "circuit.cooldown_secs must be >= 0")
	}
	for _, s := range c.Backoff.ScheduleSecs {
		if s < 0 {
			errs = append(errs, "backoff.schedule_secs values must be >= 0")
			break
		}
	}

	if t := c.Monitoring.FailureRateThreshold; t < 0 || t > 1 {
		errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
	}

	if c.Sources.FixturePath == "" {
		if mode == "discover" && !d.SkipTrends && c.Sources.TrendsURL == "" {
			errs = append(errs, "sources.trends_url is required")
		}
		if c.Sources.MarketplaceURL == "" {
			errs = append(errs, "sources.marketplace_url is required")
		}
		if c.Sources.SocialURL == "" {
			errs = append(errs, "sources.social_url is required")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
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
