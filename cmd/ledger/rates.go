package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"fxledger/internal/core"
)

type refreshCmd struct{}

func (*refreshCmd) Name() string     { return "refresh" }
func (*refreshCmd) Synopsis() string { return "fetch missing and new exchange rates and save them" }
func (*refreshCmd) Usage() string {
	return `ledger refresh

  Loads every stored rate series, fetches the full history of missing ones
  and the new observations of stale ones, saves the result and announces
  it on AMQP when configured.
`
}

func (*refreshCmd) SetFlags(*flag.FlagSet) {}

func (*refreshCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := openSession(ctx)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	cache, err := s.rates.Service.Refresh(ctx)
	if err != nil {
		return fail(err)
	}
	for _, info := range cache.Series() {
		fmt.Printf("%s\t%s\t%s\t%d observations\n", info.Pair.Key(), info.First, info.Last, info.Observations)
	}
	return subcommands.ExitSuccess
}

type rateCmd struct {
	from, to, date string
	offline        bool
}

func (*rateCmd) Name() string     { return "rate" }
func (*rateCmd) Synopsis() string { return "print the exchange rate between two currencies on a day" }
func (*rateCmd) Usage() string {
	return `ledger rate -from <CUR> -to <CUR> [-d <date>]

  Prints how many units of -to one unit of -from buys on the given day.
`
}

func (c *rateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "Currency to convert from")
	f.StringVar(&c.to, "to", string(core.BaseCurrency), "Currency to convert to")
	f.StringVar(&c.date, "d", "", "Day of the rate (YYYY-MM-DD, default: today)")
	f.BoolVar(&c.offline, "offline", false, "Use the stored rates only, without contacting the rate source")
}

func (c *rateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	from, err := core.ParseCurrency(c.from)
	if err != nil {
		return usageError(fmt.Errorf("-from: %w", err))
	}
	to, err := core.ParseCurrency(c.to)
	if err != nil {
		return usageError(fmt.Errorf("-to: %w", err))
	}
	day := core.Today()
	if c.date != "" {
		if day, err = parseDay(c.date); err != nil {
			return usageError(fmt.Errorf("-d: %w", err))
		}
	}

	s, err := openSession(ctx)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	cache, err := s.cache(ctx, c.offline)
	if err != nil {
		return fail(err)
	}
	rate, err := cache.Resolve(from, to, day)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("1 %s = %.6f %s on %s\n", from, rate, to, day)
	return subcommands.ExitSuccess
}

func parseDay(s string) (core.Date, error) {
	return core.ParseDate(s)
}
