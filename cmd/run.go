package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/niche-scout/internal/config"
	"github.com/sells-group/niche-scout/internal/discovery"
	"github.com/sells-group/niche-scout/internal/monitoring"
	"github.com/sells-group/niche-scout/internal/report"
	"github.com/sells-group/niche-scout/internal/resilience"
	"github.com/sells-group/niche-scout/internal/scorer"
)

// addRunFlags registers the flags shared by discover and research.
func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("max-products", 0, "maximum candidates per run (overrides config)")
	f.Int("concurrency", 0, "maximum in-flight sentiment tasks (overrides config)")
	f.Bool("skip-trends", false, "skip the trends source")
	f.Bool("sequential", false, "run trend batches and sentiment lookups one at a time; marketplace searches stay bounded by limits.marketplace.max_in_flight")
	f.String("fixtures", "", "serve every source from a YAML fixture file")
	f.String("format", "table", "output format: table, csv or json")
	f.String("output", "", "output file path (default: stdout)")
	f.Int("limit", 0, "maximum rows to print (0 = all)")
}

// applyRunOverrides copies explicitly set flags over the loaded config.
func applyRunOverrides(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("max-products") {
		c.Discovery.MaxProducts, _ = f.GetInt("max-products")
	}
	if f.Changed("concurrency") {
		c.Discovery.Concurrency, _ = f.GetInt("concurrency")
	}
	if f.Changed("skip-trends") {
		c.Discovery.SkipTrends, _ = f.GetBool("skip-trends")
	}
	if f.Changed("sequential") {
		c.Discovery.Sequential, _ = f.GetBool("sequential")
	}
	if v, _ := f.GetString("fixtures"); v != "" {
		c.Sources.FixturePath = v
	}
}

// execute runs one discovery or research pass and renders the ranked list.
// A cancelled run still prints what it gathered before returning the error.
func execute(cmd *cobra.Command, mode string, req discovery.Request) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applyRunOverrides(cmd, cfg)
	if err := cfg.Validate(mode); err != nil {
		return err
	}
	if err := scorer.ValidateConfig(cfg.Scorer); err != nil {
		return err
	}

	formatFlag, _ := cmd.Flags().GetString("format")
	format, err := report.ParseFormat(formatFlag)
	if err != nil {
		return err
	}
	outputPath, _ := cmd.Flags().GetString("output")
	limit, _ := cmd.Flags().GetInt("limit")

	log := zap.L().With(zap.String("command", mode))

	orch, sc, err := newOrchestrator(cfg)
	if err != nil {
		return eris.Wrapf(err, "%s: build sources", mode)
	}

	req.Options = discovery.OptionsFromConfig(cfg.Discovery)
	res, runErr := orch.Run(ctx, req)
	if res == nil {
		return runErr
	}

	if err := render(cmd, format, outputPath, limit, res, sc); err != nil {
		return err
	}
	checkHealth(context.WithoutCancel(ctx), log, res)

	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		return eris.Wrapf(runErr, "%s: interrupted with %d candidates", mode, len(res.Candidates))
	default:
		// Stage failures leave signals absent; the ranked list is still usable.
		log.Warn("run finished with failed stages", zap.Error(runErr))
	}
	return nil
}

// newOrchestrator wires the limiter, sources and scorer described by c.
func newOrchestrator(c *config.Config) (*discovery.Orchestrator, *scorer.Scorer, error) {
	limiter := newLimiter(c)
	providers, err := newProviders(c, limiter)
	if err != nil {
		return nil, nil, err
	}
	sc := scorer.New(c.Scorer)
	orch := discovery.New(providers, limiter, sc,
		discovery.FromConfig(c.Discovery),
		discovery.WithRetry(resilience.FromRetryConfig(c.Retry.MaxAttempts, c.Retry.InitialBackoffMs, c.Retry.MaxBackoffMs)),
	)
	return orch, sc, nil
}

// checkHealth logs run health alerts and forwards them to the webhook.
func checkHealth(ctx context.Context, log *zap.Logger, res *discovery.RunResult) {
	alerter := monitoring.NewAlerter(cfg.Monitoring)
	alerts := alerter.Evaluate(monitoring.Collect(res))
	for _, a := range alerts {
		log.Warn("run health alert",
			zap.String("type", string(a.Type)),
			zap.String("severity", a.Severity),
			zap.String("message", a.Message),
		)
	}
	alerter.SendAlerts(ctx, alerts)
}

func render(cmd *cobra.Command, format report.Format, outputPath string, limit int, res *discovery.RunResult, sc *scorer.Scorer) error {
	var w io.Writer = cmd.OutOrStdout()
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return eris.Wrapf(err, "create output file %s", outputPath)
		}
		defer f.Close() //nolint:errcheck
		w = f
	}

	if err := report.Write(w, format, res, sc, limit); err != nil {
		return err
	}
	if format == report.FormatTable {
		report.WriteSummary(cmd.ErrOrStderr(), res)
	}
	return nil
}
