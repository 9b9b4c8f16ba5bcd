package fx

import (
	"fmt"
	"math"
	"slices"

	"fxledger/internal/core"
)

// Pair is an ordered currency pair. A series for Pair{CHF, EUR} holds how
// many EUR one CHF buys.
type Pair struct {
	From core.Currency
	To   core.Currency
}

// PairFor returns the pair of currency quoted against the base currency.
func PairFor(currency core.Currency) Pair {
	return Pair{From: currency, To: core.BaseCurrency}
}

// Key is the storage key of the pair, e.g. "CHFEUR".
func (p Pair) Key() string { return string(p.From) + string(p.To) }

func (p Pair) String() string { return string(p.From) + "/" + string(p.To) }

// Inverse returns the pair with both sides swapped.
func (p Pair) Inverse() Pair { return Pair{From: p.To, To: p.From} }

// Observation is one published rate on one day.
type Observation struct {
	Date core.Date
	Rate float64
}

func (o Observation) validate() error {
	if o.Rate <= 0 || math.IsInf(o.Rate, 0) || math.IsNaN(o.Rate) {
		return fmt.Errorf("%w: %v on %s", ErrNonPositiveRate, o.Rate, o.Date)
	}
	return nil
}

// RawSeries is the list of observations as published: sorted by date,
// unique per date, with gaps on non-publication days. It only grows by
// appending dates after its current last date.
type RawSeries struct {
	obs []Observation
}

// NewRawSeries validates obs and wraps a copy of it.
func NewRawSeries(obs []Observation) (*RawSeries, error) {
	for i, o := range obs {
		if err := o.validate(); err != nil {
			return nil, err
		}
		if i > 0 && !obs[i-1].Date.Before(o.Date) {
			return nil, fmt.Errorf("%w: %s follows %s", ErrUnsortedSeries, o.Date, obs[i-1].Date)
		}
	}
	return &RawSeries{obs: slices.Clone(obs)}, nil
}

// Append adds the observations dated after the current last date and
// returns how many were added. Dates already covered are skipped, so
// appending the same fetch twice is a no-op. The whole batch is validated
// first; on error the series is unchanged.
func (s *RawSeries) Append(obs ...Observation) (int, error) {
	incoming := slices.Clone(obs)
	for _, o := range incoming {
		if err := o.validate(); err != nil {
			return 0, err
		}
	}
	slices.SortStableFunc(incoming, func(a, b Observation) int {
		return a.Date.Compare(b.Date.Time)
	})

	next := s.obs
	for _, o := range incoming {
		if n := len(next); n > 0 && !next[n-1].Date.Before(o.Date) {
			continue
		}
		next = append(next, o)
	}
	added := len(next) - len(s.obs)
	s.obs = next
	return added, nil
}

// Clone returns an independent copy of the series.
func (s *RawSeries) Clone() *RawSeries {
	return &RawSeries{obs: slices.Clone(s.obs)}
}

// Len returns the number of observations.
func (s *RawSeries) Len() int { return len(s.obs) }

// Bounds returns the first and last observation dates. ok is false for an
// empty series.
func (s *RawSeries) Bounds() (first, last core.Date, ok bool) {
	if len(s.obs) == 0 {
		return core.Date{}, core.Date{}, false
	}
	return s.obs[0].Date, s.obs[len(s.obs)-1].Date, true
}

// Observations returns a copy of the observations in date order.
func (s *RawSeries) Observations() []Observation {
	return slices.Clone(s.obs)
}
