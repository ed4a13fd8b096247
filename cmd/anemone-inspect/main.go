package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/anemone/internal/archive"
	"codeberg.org/mutker/anemone/internal/config"
	"codeberg.org/mutker/anemone/internal/errors"
	"codeberg.org/mutker/anemone/internal/logger"
	"codeberg.org/mutker/anemone/pkg/inspector"
	"github.com/spf13/pflag"
)

const dialTimeout = 5 * time.Second

type options struct {
	connect  string
	follow   bool
	interval time.Duration
	archive  string
	timeout  time.Duration
	logLevel string
}

func parseFlags(args []string) (options, error) {
	var opts options

	fs := pflag.NewFlagSet("anemone-inspect", pflag.ContinueOnError)
	fs.StringVar(&opts.connect, "connect", config.DefaultBind, "Reporter address (tcp://, ipc:// or ws://)")
	fs.BoolVar(&opts.follow, "follow", false, "Keep polling and print new points")
	fs.DurationVar(&opts.interval, "interval", time.Second, "Poll interval in follow mode")
	fs.StringVar(&opts.archive, "archive", "", "SQLite file to record polled points in")
	fs.DurationVar(&opts.timeout, "timeout", dialTimeout, "Per-request timeout")
	fs.StringVar(&opts.logLevel, "log-level", "warning", "Log level: debug, info, warning, error")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	if opts.interval <= 0 || opts.timeout <= 0 {
		return opts, errors.New().WithData(errors.ErrInvalidInterval, opts.interval)
	}

	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "invalid arguments: %v\n", err)
		os.Exit(2)
	}

	if err := logger.Init(opts.logLevel, false); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx, opts); err != nil {
		logger.Error().Err(err).Str("address", opts.connect).Msg("Inspection failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	dialCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	client, err := inspector.Dial(dialCtx, opts.connect)
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()

	cfg := archive.DefaultConfig()
	cfg.Enabled = opts.archive != ""
	cfg.DBPath = opts.archive
	rec, err := archive.NewService(cfg, logger.Default())
	if err != nil {
		return err
	}
	defer func() {
		if err := rec.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close archive")
		}
	}()

	s := &session{
		client:  client,
		rec:     rec,
		out:     os.Stdout,
		timeout: opts.timeout,
	}

	info, err := s.describe(ctx)
	if err != nil {
		return err
	}
	if !opts.follow {
		return nil
	}
	return s.follow(ctx, info, opts.interval)
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	cancel()
}
