package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bulletin/internal/board"
	"bulletin/internal/config"
	"bulletin/internal/events"
	"bulletin/internal/handlers"
	"bulletin/internal/metrics"
	"bulletin/internal/routing"
	"bulletin/internal/tracing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogging(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	log.Info().Msg("Starting bulletin board")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", "0.0.0.0:"+cfg.Port)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.Port).Msg("Failed to listen")
	}

	if err := run(ctx, cfg, ln); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Server stopped")
}

// setupLogging configures the global zerolog logger.
func setupLogging(level, format string, out io.Writer) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info", "":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Use pretty console logging in development, JSON in production
	if format == "json" {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		})
	}
}

// run serves the board on ln until ctx is cancelled, then drains in-flight
// requests and closes the ledger.
func run(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	if cfg.TracingEnabled {
		tp, err := tracing.Init(ctx, cfg.OTLPEndpoint)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Failed to flush traces")
			}
		}()
		log.Info().Str("endpoint", cfg.OTLPEndpoint).Msg("Tracing enabled")
	}

	hub := events.NewHub(0)
	defer hub.Close()

	opts := cfg.BoardOptions()
	opts.Events = hub
	store, err := board.Open(opts)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	log.Info().
		Str("path", cfg.DBPath).
		Uint64("next_id", stats.NextID).
		Uint64("active_total", stats.ActiveTotal).
		Uint64("capacity", stats.Settings.Capacity).
		Bool("admin_configured", stats.Admin != "").
		Msg("Database opened")

	metrics.StartCollector(ctx, collectorSource(store, hub), cfg.MetricsInterval)

	srv := &http.Server{
		Handler: routing.SetupRouter(routing.Config{
			Handlers: handlers.NewHandler(store),
			Hub:      hub,
			Logger:   log.Logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("address", ln.Addr().String()).Msg("Starting HTTP server")
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down HTTP server")
		// Close the stream first; websocket connections are hijacked and
		// Shutdown does not wait for them.
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// collectorSource reads every ledger gauge from one Stats call per
// collection. A failed read is logged and leaves the gauges as they were.
func collectorSource(store *board.Store, hub *events.Hub) metrics.StatsSource {
	return metrics.StatsSource{
		Board: func() (metrics.BoardSnapshot, bool) {
			s, err := store.Stats(context.Background())
			if err != nil {
				log.Warn().Err(err).Msg("Failed to read board stats for metrics")
				return metrics.BoardSnapshot{}, false
			}
			return metrics.BoardSnapshot{
				ActiveTotal: s.ActiveTotal,
				Capacity:    s.Settings.Capacity,
				NextID:      s.NextID,
				Step:        s.Step,
			}, true
		},
		Subscribers: hub.Subscribers,
	}
}
