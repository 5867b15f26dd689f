package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/erauner12/notebridge/internal/backend"
	"github.com/erauner12/notebridge/internal/cache"
	"github.com/erauner12/notebridge/internal/config"
	"github.com/erauner12/notebridge/internal/rpc"
	"github.com/erauner12/notebridge/internal/statusapi"
	"github.com/erauner12/notebridge/internal/syncer"
	"github.com/erauner12/notebridge/internal/tools"
)

// version is overridable via -ldflags.
var version = "0.1.0"

// noteBucket is the single backend bucket this bridge syncs.
const noteBucket = "note"

var (
	showVersion = flag.Bool("version", false, "Show version information")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	logLevel    = flag.String("log-level", "", "Log level (trace, debug, info, warn, error, fatal)")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("notebridge version %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// CLI flags override the environment.
	if *debug {
		cfg.Debug = true
		if cfg.LogLevel == "info" {
			cfg.LogLevel = "debug"
		}
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	closeLog := setupLogging(cfg)
	defer closeLog()

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}

	log.Info().
		Str("version", version).
		Str("dataBaseUrl", cfg.DataBaseURL).
		Bool("encryptedCache", cfg.Encrypted()).
		Int("syncIntervalSec", cfg.SyncIntervalSec).
		Msg("Starting notebridge")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("notebridge failed")
		os.Exit(1)
	}

	log.Info().Msg("notebridge stopped gracefully")
}

// setupLogging configures the global logger. Logs always go to stderr or
// a file, never stdout: stdout carries JSON-RPC responses exclusively.
func setupLogging(cfg *config.Config) func() {
	zerolog.SetGlobalLevel(parseLogLevel(cfg.LogLevel))

	var out io.Writer = os.Stderr
	closer := func() {}
	if cfg.LogFilePath != "" {
		f, err := os.OpenFile(cfg.LogFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open log file %s: %v\n", cfg.LogFilePath, err)
		} else {
			out = f
			closer = func() { f.Close() }
		}
	}

	if cfg.Debug && cfg.LogFilePath == "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
		log.Logger = log.Logger.With().Caller().Logger()
	} else {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	}
	return closer
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	client := backend.NewClient(cfg.AuthBaseURL, cfg.DataBaseURL, noteBucket,
		cfg.Username, cfg.Password, cfg.APITimeout())

	cachePath, err := cache.DefaultPath(cfg.Username)
	if err != nil {
		return err
	}
	store, err := cache.Open(cachePath, cache.Options{
		Username:      cfg.Username,
		EncryptionKey: cfg.DBEncryptionKey,
		KDFIterations: cfg.KDFIterations,
	})
	if err != nil {
		// Open already tried one reset; a failure here is fatal.
		return err
	}
	defer store.Close()

	engine := syncer.New(store, client, cfg.SyncInterval())

	registry := tools.NewRegistry()
	tools.RegisterAllTools(registry)
	toolCtx := tools.NewToolContext(&log.Logger, store, client, engine, version)

	server := rpc.NewServer(registry, toolCtx, log.Logger, version, os.Stdin, os.Stdout)

	// The rpc server owns process lifetime: when stdin closes or the
	// client sends exit, the shared context winds the other tasks down.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		err := engine.Run(gctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	g.Go(func() error {
		defer stop()
		err := server.Run(gctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	g.Go(func() error {
		if cfg.StatusAddr == "" {
			return nil
		}
		status := &statusapi.Server{Store: store, Sync: engine, Version: version}
		err := status.Run(gctx, cfg.StatusAddr)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	return g.Wait()
}
