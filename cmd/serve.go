package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/niche-scout/internal/config"
	"github.com/sells-group/niche-scout/internal/discovery"
	"github.com/sells-group/niche-scout/internal/metrics"
	"github.com/sells-group/niche-scout/internal/report"
	"github.com/sells-group/niche-scout/internal/scorer"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for discovery and research runs",
	Long: `Start the HTTP API. One run executes at a time; a second request while a
run is in progress gets 409.

Routes:
  GET  /health
  GET  /metrics
  POST /v1/discover   {"seeds": [...], "max_products": 20}
  POST /v1/research   {"products": [...]}
  POST /v1/cancel     cancel the run in progress`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("discover"); err != nil {
			return err
		}
		if err := scorer.ValidateConfig(cfg.Scorer); err != nil {
			return err
		}

		orch, sc, err := newOrchestrator(cfg)
		if err != nil {
			return eris.Wrap(err, "serve: build sources")
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(orch, sc, cfg, prometheus.NewRegistry()),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			orch.Cancel()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// runRequest is the body of a discover or research request. Zero option
// fields fall back to config.
type runRequest struct {
	Seeds       []string `json:"seeds"`
	Products    []string `json:"products"`
	MaxProducts int      `json:"max_products"`
	Concurrency int      `json:"concurrency"`
	SkipTrends  bool     `json:"skip_trends"`
	Sequential  bool     `json:"sequential"`
	Limit       int      `json:"limit"`
}

func (r runRequest) options(c config.DiscoveryConfig) discovery.Options {
	o := discovery.OptionsFromConfig(c)
	if r.MaxProducts > 0 {
		o.MaxProducts = r.MaxProducts
	}
	if r.Concurrency > 0 {
		o.Concurrency = r.Concurrency
	}
	o.SkipTrends = o.SkipTrends || r.SkipTrends
	o.Sequential = o.Sequential || r.Sequential
	return o
}

func newRouter(orch *discovery.Orchestrator, sc *scorer.Scorer, c *config.Config, reg *prometheus.Registry) http.Handler {
	m := metrics.New(reg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: c.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/discover", runHandler(orch, sc, m, c, discovery.ModeDiscover))
		r.Post("/research", runHandler(orch, sc, m, c, discovery.ModeResearch))
		r.Post("/cancel", func(w http.ResponseWriter, _ *http.Request) {
			orch.Cancel()
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
		})
	})
	return r
}

func runHandler(orch *discovery.Orchestrator, sc *scorer.Scorer, m *metrics.Metrics, c *config.Config, mode discovery.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body runRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		req := discovery.Request{Options: body.options(c.Discovery)}
		if mode == discovery.ModeResearch {
			req.Products = body.Products
		} else {
			req.Seeds = body.Seeds
		}

		log := zap.L().With(zap.String("route", r.URL.Path), zap.String("request_id", middleware.GetReqID(r.Context())))
		res, err := orch.Run(r.Context(), req)
		if res == nil {
			status := http.StatusBadRequest
			if errors.Is(err, discovery.ErrRunInProgress) {
				status = http.StatusConflict
			}
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		m.ObserveRun(res, err)
		if err != nil {
			log.Warn("run finished with errors", zap.Error(err))
			w.Header().Set("X-Run-Error", err.Error())
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := report.Write(w, report.FormatJSON, res, sc, body.Limit); err != nil {
			log.Error("write run report", zap.Error(err))
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
