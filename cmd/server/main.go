package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AngelCh415/coursepulse/internal/config"
	"github.com/AngelCh415/coursepulse/internal/httpx"
	"github.com/AngelCh415/coursepulse/internal/ingest"
	"github.com/AngelCh415/coursepulse/internal/journey"
	"github.com/AngelCh415/coursepulse/internal/leads"
	"github.com/AngelCh415/coursepulse/internal/store"
	"github.com/AngelCh415/coursepulse/internal/telemetry"
	"github.com/AngelCh415/coursepulse/internal/utils"
)

func main() {
	cfg := config.FromEnv()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	m := telemetry.New()
	hc := ingest.NewHTTPClient(cfg.HTTPTimeout)
	rest := ingest.NewRESTClient(hc, cfg.SupabaseURL, cfg.SupabaseKey, m)
	// Mirror runs retry longer than page loads.
	mirrorSrc := ingest.NewRESTClient(hc, cfg.SupabaseURL, cfg.SupabaseKey, m).
		WithBackoff(utils.NewBackoff(500*time.Millisecond, 4).WithJitter(time.Second))

	// The mirror receives /ingest/run; it falls back to memory without a path.
	seen := store.NewMemoryStore()
	var (
		sink   ingest.Sink        = seen
		events ingest.EventSource = rest
	)
	if cfg.SQLitePath != "" {
		db, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			logger.Error("open mirror", slog.String("path", cfg.SQLitePath), slog.String("err", err.Error()))
			os.Exit(1)
		}
		defer db.Close()
		sink = db
		if cfg.EventSource == config.SourceSQLite {
			events = db
		}
	} else if cfg.EventSource == config.SourceSQLite {
		events = seen
	}

	cache := journey.NewCache()
	r := httpx.NewRouter(logger, httpx.Services{
		ETL:       ingest.NewETL(mirrorSrc, sink, seen, logger),
		Bookings:  leads.NewBookings(events, logger, m, cfg.LookbackLimit),
		Learners:  leads.NewLearners(rest, events, cache, logger, m, cfg.BatchLimit),
		WarmLeads: leads.NewWarmLeads(rest, events, logger, m, cfg.BatchLimit),
		Converted: leads.NewConverted(rest, logger),
		Metrics:   m,
		Ready: func() error {
			if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
				return ingest.ErrNotConfigured
			}
			return nil
		},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			slog.String("port", cfg.Port),
			slog.String("event_source", cfg.EventSource))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			logger.Error("server error", slog.String("err", err.Error()))
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", slog.String("err", err.Error()))
		}
	}
}
