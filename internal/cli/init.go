// Package cli provides the process bootstrap shared by the ledger
// subcommands: logging, configuration, rate store and rate service wiring.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fxledger/internal/amqp"
	"fxledger/internal/backend"
	"fxledger/internal/config"
	"fxledger/internal/fx/ecb"
	"fxledger/internal/ledger"
	"fxledger/internal/log"
	"fxledger/internal/services"
	"fxledger/internal/sheets"
	gsheet "fxledger/internal/sheets/google"
	"fxledger/internal/sheets/memory"
)

// SetupLogger initializes structured logging at level and sets it as the
// default logger. Logs go to stderr so report output on stdout stays clean.
func SetupLogger(level string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	cfg := log.DefaultConfig()
	cfg.Level = lvl
	cfg.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Bootstrap loads the .env file and the configuration, then sets up
// logging at the configured level.
func Bootstrap() (*config.Config, *log.Logger, error) {
	LoadEnvFile()
	cfg, err := LoadAndValidateConfig()
	if err != nil {
		return nil, SetupLogger("info"), err
	}
	return cfg, SetupLogger(cfg.LogLevel), nil
}

// Rates bundles the rate service with the resources it holds open.
type Rates struct {
	Service   *services.RateService
	Publisher *amqp.Client
	cleanup   []func() error
}

// Close releases the rate store and the AMQP connection.
func (r *Rates) Close() error {
	var first error
	for i := len(r.cleanup) - 1; i >= 0; i-- {
		if err := r.cleanup[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenRates creates the configured rate store, the ECB source and, when
// AMQP_URL is set, the publisher of refresh events.
func OpenRates(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Rates, error) {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, err
	}

	r := &Rates{}
	if store.Cleanup != nil {
		r.cleanup = append(r.cleanup, store.Cleanup)
	}

	var publisher services.RatesPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.WarnContext(ctx, "AMQP unavailable, refresh events disabled", log.FieldError, err)
		} else {
			r.Publisher = client
			r.cleanup = append(r.cleanup, client.Close)
			publisher = client
		}
	}

	source := ecb.New(cfg.ECBBaseURL, cfg.FetchTimeout, logger)
	r.Service = services.NewRateService(source, store.Store, publisher, logger)
	return r, nil
}

// LoadBook reads the ledger tables from the configured data directory.
func LoadBook(ctx context.Context, cfg *config.Config) (*ledger.Book, error) {
	book, err := ledger.LoadBook(ctx, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("load ledger from %s: %w", cfg.DataDir, err)
	}
	return book, nil
}

// OpenSheets creates the report exporter: Google Sheets when a
// spreadsheet is configured, otherwise an in-memory store that only logs
// what would have been written.
func OpenSheets(ctx context.Context, cfg *config.Config, logger *log.Logger) (sheets.TableStore, error) {
	if cfg.GoogleSpreadsheetID == "" {
		logger.WarnContext(ctx, "GOOGLE_SPREADSHEET_ID not set, exporting to memory only",
			log.FieldOperation, log.OpExport)
		return memory.New(), nil
	}
	return gsheet.NewFromConfig(ctx, cfg, logger)
}

// GracefulShutdown returns a context that is cancelled on SIGINT or
// SIGTERM. cleanup runs once, bounded by timeout, before the returned
// done channel closes.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String(), log.FieldOperation, log.OpShutdown)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}
