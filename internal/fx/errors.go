package fx

import (
	"errors"
	"fmt"

	"fxledger/internal/core"
)

var (
	ErrSeriesNotFound  = errors.New("rate series not found")
	ErrCorruptSeries   = errors.New("corrupt rate series")
	ErrEmptySeries     = errors.New("empty rate series")
	ErrNonPositiveRate = errors.New("rate must be positive and finite")
	ErrUnsortedSeries  = errors.New("observations must be strictly ascending by date")
)

// FetchError reports that the rate source could not deliver a series.
// It is fatal for the session that triggered the fetch.
type FetchError struct {
	Currency core.Currency
	Since    core.Date
	Err      error
}

func (e *FetchError) Error() string {
	if e.Since.IsZero() {
		return fmt.Sprintf("fetch %s rates: %v", e.Currency, e.Err)
	}
	return fmt.Sprintf("fetch %s rates since %s: %v", e.Currency, e.Since, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// CacheLoadError reports a missing or unreadable persisted series. The
// cache absorbs it and falls back to a full fetch.
type CacheLoadError struct {
	Pair Pair
	Err  error
}

func (e *CacheLoadError) Error() string {
	return fmt.Sprintf("load %s series: %v", e.Pair, e.Err)
}

func (e *CacheLoadError) Unwrap() error { return e.Err }

// OutOfRangeError reports a lookup outside the covered dates of a series.
type OutOfRangeError struct {
	Pair Pair
	Date core.Date
	Min  core.Date
	Max  core.Date
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("no %s rate on %s: series covers %s to %s", e.Pair, e.Date, e.Min, e.Max)
}

// UnresolvablePairError reports that no direct, inverse or bridged series
// connects two currencies.
type UnresolvablePairError struct {
	From core.Currency
	To   core.Currency
}

func (e *UnresolvablePairError) Error() string {
	return fmt.Sprintf("no exchange rate path from %s to %s", e.From, e.To)
}
