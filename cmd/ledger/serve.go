package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"time"

	"github.com/google/subcommands"

	"fxledger/internal/amqp"
	"fxledger/internal/cli"
	apihttp "fxledger/internal/http"
	"fxledger/internal/ledger"
	"fxledger/internal/log"
	"fxledger/internal/services"
)

const shutdownTimeout = 30 * time.Second

type serveCmd struct {
	addr              string
	requestsPerMinute int
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve rates and reports over HTTP" }
func (*serveCmd) Usage() string {
	return `ledger serve [-addr :8081]

  Refreshes the rates once, then serves /api/rate and /api/reports/{name}.
  The rate snapshot is replaced on every REFRESH_INTERVAL tick and on
  every rates.refreshed message when AMQP is configured.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.addr, "addr", "", "Listen address (default: :$PORT)")
	f.IntVar(&c.requestsPerMinute, "rpm", 0, "Report requests allowed per client and minute (default: 120)")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := openSession(ctx)
	if err != nil {
		return fail(err)
	}
	defer s.Close()
	logger := s.logger

	currency := s.cfg.Currency()
	addr := c.addr
	if addr == "" {
		addr = ":" + s.cfg.Port
	}

	rates, err := s.rates.Service.Refresh(ctx)
	if err != nil {
		return fail(err)
	}

	cfg := s.cfg
	srv := apihttp.NewServer(apihttp.Config{
		Addr:              addr,
		Currency:          currency,
		CacheSize:         cfg.ReportCacheSize,
		CacheTTL:          cfg.ReportCacheTTL,
		RequestsPerMinute: c.requestsPerMinute,
	}, func(ctx context.Context) (*ledger.Book, error) {
		return cli.LoadBook(ctx, cfg)
	}, logger)
	srv.SetRates(rates)

	var scheduler *services.RefreshScheduler
	if cfg.RefreshInterval > 0 {
		scheduler = services.NewRefreshScheduler(s.rates.Service, srv.SetRates, services.RefreshSchedulerConfig{
			Interval: cfg.RefreshInterval,
		}, logger)
	}

	runCtx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown failed", log.FieldError, err)
		}
		if scheduler != nil {
			if err := scheduler.Stop(ctx); err != nil {
				logger.Error("Refresh scheduler shutdown failed", log.FieldError, err)
			}
		}
	})

	if scheduler != nil {
		if err := scheduler.Start(runCtx); err != nil {
			return fail(err)
		}
	}
	if s.rates.Publisher != nil {
		go c.consume(runCtx, s, srv)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			log.FieldOperation, log.OpStartup,
			"addr", addr,
			"currency", currency.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fail(err)
	case <-done:
		return subcommands.ExitSuccess
	}
}

// consume reloads the stored rates whenever another process announces a
// refresh.
func (c *serveCmd) consume(ctx context.Context, s *session, srv *apihttp.Server) {
	err := s.rates.Publisher.ConsumeRatesRefreshed(ctx, func(ctx context.Context, msg *amqp.RatesRefreshed) error {
		rates, err := s.rates.Service.Load(ctx)
		if err != nil {
			return err
		}
		srv.SetRates(rates)
		s.logger.InfoContext(ctx, "Reloaded rates after refresh event",
			log.FieldPair, msg.Pair,
			log.FieldOperation, log.OpReload)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("AMQP consumer stopped", log.FieldError, err)
	}
}
