package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"fxledger/internal/cli"
	"fxledger/internal/core"
	"fxledger/internal/ledger"
	"fxledger/internal/report"
)

// build produces one report table from the loaded book and rates.
type build func(agg *report.Aggregator, book *ledger.Book) (report.Table, error)

// runReport loads rates and the ledger, builds the table and emits it.
func runReport(ctx context.Context, out *outputFlags, build build) subcommands.ExitStatus {
	s, err := openSession(ctx)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	rates, err := s.cache(ctx, out.offline)
	if err != nil {
		return fail(err)
	}
	book, err := cli.LoadBook(ctx, s.cfg)
	if err != nil {
		return fail(err)
	}
	agg := report.NewAggregator(rates, report.WithLogger(s.logger))
	t, err := build(agg, book)
	if err != nil {
		return fail(err)
	}
	if err := out.emit(ctx, s, t); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

// targetCurrency parses a required -c flag.
func targetCurrency(s string) (core.Currency, error) {
	if s == "" {
		return "", errors.New("-c: a target currency is required")
	}
	cur, err := core.ParseCurrency(s)
	if err != nil {
		return "", fmt.Errorf("-c: %w", err)
	}
	return cur, nil
}

type standCmd struct {
	currency string
	out      outputFlags
}

func (*standCmd) Name() string     { return "stand" }
func (*standCmd) Synopsis() string { return "print the current balance of every account" }
func (*standCmd) Usage() string {
	return `ledger stand [-c <CUR>] [-format md|csv|json] [-sheet <name> | -export]

  Prints every account balance. Without -c balances stay in each account's
  own currency; with -c they are converted at today's rate and totalled.
`
}

func (c *standCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "c", "", "Convert balances to this currency (default: native)")
	c.out.register(f)
}

func (c *standCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var target core.Currency
	if c.currency != "" {
		cur, err := core.ParseCurrency(c.currency)
		if err != nil {
			return usageError(fmt.Errorf("-c: %w", err))
		}
		target = cur
	}
	return runReport(ctx, &c.out, func(agg *report.Aggregator, book *ledger.Book) (report.Table, error) {
		stand, err := agg.Stand(book, target)
		if err != nil {
			return report.Table{}, err
		}
		return stand.Table(), nil
	})
}

type evolutionCmd struct {
	currency string
	window   windowFlags
	out      outputFlags
}

func (*evolutionCmd) Name() string     { return "evolution" }
func (*evolutionCmd) Synopsis() string { return "print the daily total balance over time" }
func (*evolutionCmd) Usage() string {
	return `ledger evolution -c <CUR> [-from <date>] [-to <date>] [-format md|csv|json]

  Prints the total balance of all accounts for every day of the window,
  each movement converted at the rate of its own day.
`
}

func (c *evolutionCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "c", "", "Target currency")
	c.window.register(f)
	c.out.register(f)
}

func (c *evolutionCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	target, err := targetCurrency(c.currency)
	if err != nil {
		return usageError(err)
	}
	w, err := c.window.window()
	if err != nil {
		return usageError(err)
	}
	return runReport(ctx, &c.out, func(agg *report.Aggregator, book *ledger.Book) (report.Table, error) {
		series, err := agg.Evolution(book, target, w)
		if err != nil {
			return report.Table{}, err
		}
		return series.Table(), nil
	})
}

type monthlyCmd struct {
	currency string
	window   windowFlags
	out      outputFlags
}

func (*monthlyCmd) Name() string     { return "monthly" }
func (*monthlyCmd) Synopsis() string { return "print total expenses per month" }
func (*monthlyCmd) Usage() string {
	return `ledger monthly -c <CUR> [-from <date>] [-to <date>] [-format md|csv|json]

  Prints the sum of expenses for every month of the window.
`
}

func (c *monthlyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "c", "", "Target currency")
	c.window.register(f)
	c.out.register(f)
}

func (c *monthlyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	target, err := targetCurrency(c.currency)
	if err != nil {
		return usageError(err)
	}
	w, err := c.window.window()
	if err != nil {
		return usageError(err)
	}
	return runReport(ctx, &c.out, func(agg *report.Aggregator, book *ledger.Book) (report.Table, error) {
		series, err := agg.MonthlyExpenses(book, target, w)
		if err != nil {
			return report.Table{}, err
		}
		return series.Table(), nil
	})
}

type summaryCmd struct {
	currency string
	month    string
	window   windowFlags
	out      outputFlags
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "print income and expenses per category" }
func (*summaryCmd) Usage() string {
	return `ledger summary -c <CUR> [-m <YYYY-MM> | -from <date> -to <date>] [-format md|csv|json]

  Prints income and expenses per category with their share of total
  income, followed by a total row.
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "c", "", "Target currency")
	f.StringVar(&c.month, "m", "", "Summarize one calendar month (YYYY-MM)")
	c.window.register(f)
	c.out.register(f)
}

func (c *summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	target, err := targetCurrency(c.currency)
	if err != nil {
		return usageError(err)
	}
	var month core.Date
	if c.month != "" {
		if c.window.from != "" || c.window.to != "" {
			return usageError(errors.New("-m cannot be combined with -from or -to"))
		}
		if month, err = report.ParseMonth(c.month); err != nil {
			return usageError(fmt.Errorf("-m: %w", err))
		}
	}
	w, err := c.window.window()
	if err != nil {
		return usageError(err)
	}
	return runReport(ctx, &c.out, func(agg *report.Aggregator, book *ledger.Book) (report.Table, error) {
		var summary *report.Summary
		if c.month != "" {
			summary, err = agg.MonthlySummary(book, month, target)
		} else {
			summary, err = agg.Summary(book, target, w)
		}
		if err != nil {
			return report.Table{}, err
		}
		return summary.Table(), nil
	})
}

type checkCmd struct{}

func (*checkCmd) Name() string     { return "check" }
func (*checkCmd) Synopsis() string { return "validate the ledger tables" }
func (*checkCmd) Usage() string {
	return `ledger check

  Loads the ledger tables from DATA_DIR and reports every invalid row and
  every party whose flows do not balance.
`
}

func (*checkCmd) SetFlags(*flag.FlagSet) {}

func (*checkCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, logger, err := cli.Bootstrap()
	if err != nil {
		return fail(err)
	}
	book, err := cli.LoadBook(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	if err := book.Validate(); err != nil {
		return fail(err)
	}
	logger.InfoContext(ctx, "Ledger is consistent",
		"accounts", len(book.Accounts),
		"incomes", len(book.Incomes),
		"expenses", len(book.Expenses),
		"fund_movements", len(book.FundMovements),
		"parties", len(book.Parties()))
	fmt.Println("ok")
	return subcommands.ExitSuccess
}
