package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"fxledger/internal/cli"
	"fxledger/internal/config"
	"fxledger/internal/fx"
	"fxledger/internal/log"
	"fxledger/internal/render"
	"fxledger/internal/report"
	"fxledger/internal/sheets"
)

// session is the state shared by one command run.
type session struct {
	cfg    *config.Config
	logger *log.Logger
	rates  *cli.Rates
}

func openSession(ctx context.Context) (*session, error) {
	cfg, logger, err := cli.Bootstrap()
	if err != nil {
		return nil, err
	}
	rates, err := cli.OpenRates(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, rates: rates}, nil
}

func (s *session) Close() {
	if err := s.rates.Close(); err != nil {
		s.logger.Warn("Failed to release rate resources", log.FieldError, err)
	}
}

// cache returns the rate cache for this run. Offline runs read the store
// only; otherwise missing series are fetched, stale ones refreshed and the
// result saved.
func (s *session) cache(ctx context.Context, offline bool) (*fx.Cache, error) {
	if offline {
		return s.rates.Service.Load(ctx)
	}
	return s.rates.Service.Refresh(ctx)
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return subcommands.ExitFailure
}

func usageError(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return subcommands.ExitUsageError
}

// outputFlags are shared by every report command.
type outputFlags struct {
	format  string
	sheet   string
	export  bool
	offline bool
}

func (o *outputFlags) register(f *flag.FlagSet) {
	f.StringVar(&o.format, "format", "md", "Output format (md, csv, json)")
	f.StringVar(&o.sheet, "sheet", "", "Also export the report to this Google Sheets tab")
	f.BoolVar(&o.export, "export", false, "Also export the report to Google Sheets under its default tab name")
	f.BoolVar(&o.offline, "offline", false, "Use the stored rates only, without contacting the rate source")
}

// emit prints t and exports it when asked.
func (o *outputFlags) emit(ctx context.Context, s *session, t report.Table) error {
	format, err := render.ParseFormat(o.format)
	if err != nil {
		return err
	}
	switch format {
	case render.FormatCSV:
		if err := render.WriteCSV(os.Stdout, t); err != nil {
			return err
		}
	case render.FormatJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(t); err != nil {
			return err
		}
	default:
		printMarkdown(render.Markdown(t))
	}

	if o.sheet == "" && !o.export {
		return nil
	}
	store, err := cli.OpenSheets(ctx, s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("open sheets exporter: %w", err)
	}
	name := sheets.SheetName(o.sheet, t)
	ref, err := sheets.Export(ctx, store, name, t)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Exported report",
		log.FieldSheet, name,
		log.FieldRows, t.Len(),
		"range", ref)
	return nil
}

func printMarkdown(md string) {
	fmt.Print(render.Terminal(md))
}

// windowFlags select an optional date window.
type windowFlags struct {
	from string
	to   string
}

func (w *windowFlags) register(f *flag.FlagSet) {
	f.StringVar(&w.from, "from", "", "First day of the window (YYYY-MM-DD, default: open)")
	f.StringVar(&w.to, "to", "", "Last day of the window (YYYY-MM-DD, default: open)")
}

func (w *windowFlags) window() (report.Window, error) {
	var (
		win report.Window
		err error
	)
	if w.from != "" {
		if win.From, err = parseDay(w.from); err != nil {
			return win, fmt.Errorf("-from: %w", err)
		}
	}
	if w.to != "" {
		if win.To, err = parseDay(w.to); err != nil {
			return win, fmt.Errorf("-to: %w", err)
		}
	}
	return win, win.Validate()
}
