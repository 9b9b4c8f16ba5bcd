package fx

import (
	"context"

	"fxledger/internal/core"
)

// Ports for outbound adapters.
type (
	// RateSource fetches daily observations for one currency against the
	// base currency, expressed as base units per one unit of currency.
	// A zero since fetches the full available history; otherwise the
	// result starts at since (inclusive). A source must fail rather than
	// return an empty result.
	RateSource interface {
		Fetch(ctx context.Context, currency core.Currency, since core.Date) ([]Observation, error)
	}

	// SeriesStore persists raw series between sessions.
	// Load returns an error wrapping ErrSeriesNotFound when nothing was
	// persisted for pair and ErrCorruptSeries when the stored data is unreadable.
	SeriesStore interface {
		Load(ctx context.Context, pair Pair) (*RawSeries, error)
		Save(ctx context.Context, pair Pair, series *RawSeries) error
	}
)
