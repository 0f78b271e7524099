package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dealcast/dealcast/internal/config"
	"github.com/dealcast/dealcast/internal/ledger"
	"github.com/dealcast/dealcast/internal/model"
	"github.com/dealcast/dealcast/internal/monitoring"
	"github.com/dealcast/dealcast/internal/pipeline"
	"github.com/dealcast/dealcast/internal/store"
)

var servePort int

// apiServer exposes read-only pipeline state plus a guarded manual trigger.
type apiServer struct {
	baseCtx   context.Context
	store     store.Store
	ledger    *ledger.Ledger
	collector *monitoring.Collector
	channels  []model.ChannelProfile
	lookback  int

	// trigger runs one publication cycle; nil when the feed or the bot is
	// not configured.
	trigger func(ctx context.Context) (*model.CycleRecord, error)

	mu      sync.Mutex
	running bool
}

func newAPIServer(ctx context.Context, st store.Store, l *ledger.Ledger, channels []model.ChannelProfile, lookbackHours int, trigger func(ctx context.Context) (*model.CycleRecord, error)) *apiServer {
	if lookbackHours <= 0 {
		lookbackHours = 24
	}
	return &apiServer{
		baseCtx:   ctx,
		store:     st,
		ledger:    l,
		collector: monitoring.NewCollector(st),
		channels:  channels,
		lookback:  lookbackHours,
		trigger:   trigger,
	}
}

func (s *apiServer) router(corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/ledger", s.handleLedger)
		r.Get("/channels", s.handleChannels)
		r.Get("/cycles", s.handleCycles)
		r.Get("/cycles/{id}", s.handleCycle)
		r.Post("/cycles/trigger", s.handleTrigger)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	hours := s.lookback
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = n
	}

	snap, err := s.collector.Collect(r.Context(), hours)
	if err != nil {
		zap.L().Error("api: collect stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats collection failed")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *apiServer) handleLedger(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	stats, err := s.ledger.Stats(r.Context())
	if err != nil {
		zap.L().Error("api: ledger stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "ledger stats failed")
		return
	}
	recent, err := s.store.ListPublications(r.Context(), limit)
	if err != nil {
		zap.L().Error("api: list publications", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "ledger listing failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stats":  stats,
		"recent": recent,
	})
}

func (s *apiServer) handleChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(s.channels),
		"channels": s.channels,
	})
}

func (s *apiServer) handleCycles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.CycleFilter{
		ChannelKey: q.Get("channel"),
		Outcome:    model.Outcome(q.Get("outcome")),
		Limit:      50,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		filter.Since = t
	}

	recs, err := s.store.ListCycles(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list cycles", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cycle listing failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(recs),
		"cycles": recs,
	})
}

func (s *apiServer) handleCycle(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetCycle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		zap.L().Error("api: get cycle", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cycle lookup failed")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "cycle not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *apiServer) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if s.trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not configured")
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "a cycle is already running")
		return
	}
	s.running = true
	s.mu.Unlock()

	// Run asynchronously off the server's base context so the cycle
	// survives the HTTP request but not a shutdown.
	go func() {
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()

		rec, err := s.trigger(s.baseCtx)
		if err != nil {
			zap.L().Error("api: triggered cycle failed", zap.Error(err))
			return
		}
		zap.L().Info("api: triggered cycle finished",
			zap.String("outcome", string(rec.Outcome)),
			zap.String("channel", rec.ChannelKey),
		)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the status API server",
	Long:  "Serves pipeline health, stats, ledger, and cycle history over HTTP, plus a guarded endpoint that triggers one cycle. The health checker runs alongside.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		// Channel profiles are optional here; without them the API serves
		// history and stats only.
		channels, err := config.LoadChannels(cfg.Channels.File)
		if err != nil {
			zap.L().Warn("channels file not loaded, trigger disabled", zap.Error(err))
			channels = nil
		}

		var trigger func(ctx context.Context) (*model.CycleRecord, error)
		if cfg.Keepa.Key != "" && cfg.Telegram.Token != "" && len(channels) > 0 {
			p := pipeline.New(cfg, st, initKeepa(), initTelegram(), channels)
			trigger = p.RunCycle
		} else {
			zap.L().Info("manual trigger disabled, feed or bot not configured")
		}

		l := ledger.New(st, time.Duration(cfg.Pipeline.CooldownHours)*time.Hour)
		api := newAPIServer(ctx, st, l, channels, cfg.Alerts.LookbackHours, trigger)

		checker := monitoring.NewChecker(
			monitoring.NewCollector(st),
			monitoring.NewAlerter(cfg.Alerts),
			cfg.Alerts,
		)
		go checker.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: api.router(cfg.Server.CORSOrigins),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting status api", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
