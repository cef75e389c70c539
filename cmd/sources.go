package main

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sells-group/niche-scout/internal/config"
	"github.com/sells-group/niche-scout/internal/provider"
	"github.com/sells-group/niche-scout/internal/resilience"
	"github.com/sells-group/niche-scout/pkg/marketplace"
	"github.com/sells-group/niche-scout/pkg/social"
	"github.com/sells-group/niche-scout/pkg/trends"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Show the effective per-source limits and circuit settings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := cmd.OutOrStdout()

		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Source", "Endpoint", "Min delay", "Jitter", "Per minute", "In flight", "Max wait", "Timeout"})
		limits := sourceLimits(cfg)
		timeouts := sourceTimeouts(cfg)
		for _, s := range provider.Sources() {
			l := limits[s]
			t.AppendRow(table.Row{s, endpoint(cfg, s), l.MinDelay, l.Jitter, l.PerMinute, l.MaxInFlight, l.MaxWait, timeouts[s]})
		}
		t.Render()

		cb := resilience.FromCircuitConfig(cfg.Circuit.FailureThreshold, cfg.Circuit.CooldownSecs)
		c := table.NewWriter()
		c.SetOutputMirror(w)
		c.SetStyle(table.StyleLight)
		c.AppendHeader(table.Row{"Failure threshold", "Cooldown", "Backoff"})
		c.AppendRow(table.Row{cb.FailureThreshold, cb.Cooldown, resilience.BackoffSchedule(cfg.Backoff.ScheduleSecs)})
		c.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func endpoint(c *config.Config, source string) string {
	if c.Sources.FixturePath != "" {
		return "fixture:" + c.Sources.FixturePath
	}
	switch source {
	case provider.SourceTrends:
		return c.Sources.TrendsURL
	case provider.SourceMarketplace:
		return c.Sources.MarketplaceURL
	case provider.SourceSentiment:
		return c.Sources.SocialURL
	}
	return ""
}

func limitsFor(l config.SourceLimitConfig) resilience.SourceLimits {
	return resilience.FromSourceLimits(l.MinDelayMs, l.JitterMs, l.PerMinute, l.MaxInFlight, l.MaxWaitSecs)
}

func sourceLimits(c *config.Config) map[string]resilience.SourceLimits {
	return map[string]resilience.SourceLimits{
		provider.SourceTrends:      limitsFor(c.Limits.Trends),
		provider.SourceMarketplace: limitsFor(c.Limits.Marketplace),
		provider.SourceSentiment:   limitsFor(c.Limits.Sentiment),
	}
}

func sourceTimeouts(c *config.Config) map[string]time.Duration {
	secs := func(l config.SourceLimitConfig) time.Duration {
		if l.TimeoutSecs > 0 {
			return time.Duration(l.TimeoutSecs) * time.Second
		}
		if c.Limits.Default.TimeoutSecs > 0 {
			return time.Duration(c.Limits.Default.TimeoutSecs) * time.Second
		}
		return provider.DefaultTimeout
	}
	return map[string]time.Duration{
		provider.SourceTrends:      secs(c.Limits.Trends),
		provider.SourceMarketplace: secs(c.Limits.Marketplace),
		provider.SourceSentiment:   secs(c.Limits.Sentiment),
	}
}

// newLimiter builds the run's shared limiter from config.
func newLimiter(c *config.Config) *resilience.Limiter {
	return resilience.NewLimiter(
		sourceLimits(c),
		limitsFor(c.Limits.Default),
		resilience.FromCircuitConfig(c.Circuit.FailureThreshold, c.Circuit.CooldownSecs),
		resilience.BackoffSchedule(c.Backoff.ScheduleSecs),
	)
}

// newProviders wires the three sources to either the fixture file or the
// live HTTP clients, all guarded by limiter.
func newProviders(c *config.Config, limiter *resilience.Limiter) (provider.Set, error) {
	var (
		tc trends.Client
		mc marketplace.Client
		sc social.Client
	)
	if c.Sources.FixturePath != "" {
		fx, err := provider.LoadFixtures(c.Sources.FixturePath)
		if err != nil {
			return provider.Set{}, err
		}
		tc, mc, sc = fx.TrendsClient(), fx.MarketplaceClient(), fx.SocialClient()
	} else {
		tc = trends.NewClient(c.Sources.TrendsKey, trends.WithBaseURL(c.Sources.TrendsURL))
		mopts := []marketplace.Option{marketplace.WithBaseURL(c.Sources.MarketplaceURL)}
		sopts := []social.Option{social.WithBaseURL(c.Sources.SocialURL)}
		if ua := c.Sources.UserAgent; ua != "" {
			mopts = append(mopts, marketplace.WithUserAgent(ua))
			sopts = append(sopts, social.WithUserAgent(ua))
		}
		mc = marketplace.NewClient(c.Sources.MarketplaceKey, mopts...)
		sc = social.NewClient(c.Sources.SocialKey, sopts...)
	}

	guard := provider.NewGuard(limiter, sourceTimeouts(c))
	set := provider.Set{
		Marketplace: provider.NewMarketplace(mc, guard),
		Sentiment:   provider.NewSentiment(sc, guard, provider.WithPostLimit(c.Discovery.PostsPerProduct)),
	}
	if c.Sources.FixturePath != "" || c.Sources.TrendsURL != "" {
		set.Trends = provider.NewTrends(tc, guard)
	}
	return set, nil
}
