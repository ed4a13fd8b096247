package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/anemone/internal/config"
	"codeberg.org/mutker/anemone/internal/errors"
	"codeberg.org/mutker/anemone/internal/logger"
	"codeberg.org/mutker/anemone/internal/pid"
	"codeberg.org/mutker/anemone/pkg/reporter"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Interface("config", cfg).Msg("Config loaded")

	if err := pid.Write(cfg.PIDFile); err != nil {
		if errors.HasCode(err, errors.ErrAlreadyRunning) {
			logger.Fatal().Err(err).Str("pid_file", cfg.PIDFile).Msg("Another instance is already running")
		}
		logger.Fatal().Err(err).Msg("Failed to write PID file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	err = run(ctx, cfg)
	cleanup(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Error in main loop")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	errFactory := errors.New()

	r := reporter.New(cfg.Program, cfg.Analysis,
		reporter.WithQueueCapacity(cfg.QueueCapacity),
		reporter.WithStatsInterval(cfg.StatsInterval),
	)
	if err := r.StartContext(ctx, cfg.Bind); err != nil {
		return err
	}
	defer func() {
		if err := r.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop reporter")
		}
		logger.Info().Uint64("dropped", r.Dropped()).Msg("Reporter shut down")
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return newSampler(r, cfg.SampleInterval).run(gctx)
	})

	g.Go(func() error {
		select {
		case <-r.Done():
			if ctx.Err() == nil {
				return errFactory.WithMessage(errors.ErrMainLoop, "aggregation loop exited unexpectedly")
			}
			return nil
		case <-gctx.Done():
			return nil
		}
	})

	if cfg.MetricsAddress != "" {
		serveMetrics(gctx, g, cfg.MetricsAddress, r.MetricsHandler())
	}

	logger.Info().
		Str("bind", r.Addr()).
		Str("program", cfg.Program).
		Str("analysis", cfg.Analysis).
		Dur("sample_interval", cfg.SampleInterval).
		Msg("Daemon running")

	return g.Wait()
}

func serveMetrics(ctx context.Context, g *errgroup.Group, address string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info().Str("address", address).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.New().Wrap(errors.ErrUnavailable, err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func cleanup(cfg *config.Config) {
	if err := pid.Remove(cfg.PIDFile); err != nil {
		logger.Error().Err(err).Msg("Failed to remove PID file")
	}
	logger.Info().Msg("Exiting...")
}
