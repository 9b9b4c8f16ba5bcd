// Package fx holds the exchange-rate engine: raw series as published by a
// rate source, their daily forward-filled expansion, and the Cache that
// answers "how many units of To does one unit of From buy on a day".
//
// A Cache is filled by Init (load, fetch, refresh) and is read-only
// afterwards. Resolve never touches the network or the store.
package fx

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"fxledger/internal/core"
	"fxledger/internal/log"
)

// maxBridgeHops bounds triangulation through the base currency.
const maxBridgeHops = 1

// Cache owns one raw and one expanded series per supported currency
// against the base currency.
type Cache struct {
	base       core.Currency
	currencies []core.Currency
	source     RateSource
	store      SeriesStore
	today      func() core.Date
	logger     *log.Logger

	raw      map[Pair]*RawSeries
	expanded map[Pair]*ExpandedSeries
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides how the cache learns the current day.
func WithClock(today func() core.Date) Option {
	return func(c *Cache) { c.today = today }
}

// WithLogger sets the logger used for load, fetch and save events.
func WithLogger(logger *log.Logger) Option {
	return func(c *Cache) { c.logger = logger.WithComponent(log.ComponentFX) }
}

// WithCurrencies restricts the currencies the cache maintains.
func WithCurrencies(currencies ...core.Currency) Option {
	return func(c *Cache) { c.currencies = slices.Clone(currencies) }
}

// NewCache returns an empty cache. Call Init before resolving rates.
func NewCache(source RateSource, store SeriesStore, opts ...Option) *Cache {
	c := &Cache{
		base:       core.BaseCurrency,
		currencies: core.SupportedCurrencies(),
		source:     source,
		store:      store,
		today:      core.Today,
		logger:     log.Default().WithComponent(log.ComponentFX),
		raw:        make(map[Pair]*RawSeries),
		expanded:   make(map[Pair]*ExpandedSeries),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromSeries builds a ready cache from in-memory raw series, without a
// source or store. Empty series are ignored.
func FromSeries(series map[Pair]*RawSeries, opts ...Option) *Cache {
	c := NewCache(nil, nil, opts...)
	for pair, raw := range series {
		if raw == nil || raw.Len() == 0 {
			continue
		}
		c.raw[pair] = raw
	}
	c.expandAll()
	return c
}

// Init loads each currency's series from the store, fetching the full
// history when it is missing or unreadable, then refreshes stale tails.
// A failed fetch aborts Init with a *FetchError and leaves the cache as it
// was.
func (c *Cache) Init(ctx context.Context) error {
	raws := make(map[Pair]*RawSeries)
	fresh := make(map[Pair]bool)
	for _, cur := range c.currencies {
		if cur == c.base {
			continue
		}
		pair := Pair{From: cur, To: c.base}
		raw, err := c.load(ctx, pair)
		if err != nil {
			var loadErr *CacheLoadError
			if !errors.As(err, &loadErr) {
				return err
			}
			c.logger.WarnContext(ctx, "Rate series not available locally, fetching full history",
				log.FieldPair, pair.Key(),
				log.FieldError, loadErr.Err)

			raw, err = c.fetchAll(ctx, cur)
			if err != nil {
				return err
			}
			fresh[pair] = true
		}
		raws[pair] = raw.Clone()
	}
	if err := c.refreshInto(ctx, raws, fresh); err != nil {
		return err
	}
	c.install(raws)
	return nil
}

// Load reads every series from the store without touching the rate
// source. Unlike Init, a missing or unreadable series is returned as a
// *CacheLoadError.
func (c *Cache) Load(ctx context.Context) error {
	raws := make(map[Pair]*RawSeries)
	for _, cur := range c.currencies {
		if cur == c.base {
			continue
		}
		pair := Pair{From: cur, To: c.base}
		series, err := c.load(ctx, pair)
		if err != nil {
			return err
		}
		raws[pair] = series
	}
	c.install(raws)
	return nil
}

// Refresh fetches observations newer than each series' last date when
// that date is before today, appends them and rebuilds the expansions.
// The new tails are applied to copies; on error the cache is unchanged.
func (c *Cache) Refresh(ctx context.Context) error {
	raws := make(map[Pair]*RawSeries, len(c.raw))
	for pair, raw := range c.raw {
		raws[pair] = raw.Clone()
	}
	if err := c.refreshInto(ctx, raws, nil); err != nil {
		return err
	}
	c.install(raws)
	return nil
}

// refreshInto appends the stale tails to the series in raws, skipping the
// pairs in skip.
func (c *Cache) refreshInto(ctx context.Context, raws map[Pair]*RawSeries, skip map[Pair]bool) error {
	today := c.today()
	for _, pair := range sortedPairs(raws) {
		if skip[pair] {
			continue
		}
		raw := raws[pair]
		_, last, ok := raw.Bounds()
		if !ok || !last.Before(today) {
			continue
		}
		if c.source == nil {
			return &FetchError{Currency: pair.From, Since: last, Err: errors.New("no rate source configured")}
		}
		obs, err := c.source.Fetch(ctx, pair.From, last)
		if err != nil {
			return asFetchError(pair.From, last, err)
		}
		added, err := raw.Append(obs...)
		if err != nil {
			return &FetchError{Currency: pair.From, Since: last, Err: err}
		}
		c.logger.InfoContext(ctx, "Refreshed rate series",
			log.FieldPair, pair.Key(),
			log.FieldDate, last.String(),
			log.FieldObservations, added)
	}
	return nil
}

// install replaces the raw series and rebuilds their expansions.
func (c *Cache) install(raws map[Pair]*RawSeries) {
	c.raw = raws
	c.expandAll()
}

func (c *Cache) load(ctx context.Context, pair Pair) (*RawSeries, error) {
	if c.store == nil {
		return nil, &CacheLoadError{Pair: pair, Err: ErrSeriesNotFound}
	}
	raw, err := c.store.Load(ctx, pair)
	if err != nil {
		return nil, &CacheLoadError{Pair: pair, Err: err}
	}
	if raw.Len() == 0 {
		return nil, &CacheLoadError{Pair: pair, Err: ErrEmptySeries}
	}
	c.logger.InfoContext(ctx, "Loaded rate series",
		log.FieldPair, pair.Key(),
		log.FieldObservations, raw.Len())
	return raw, nil
}

func (c *Cache) fetchAll(ctx context.Context, cur core.Currency) (*RawSeries, error) {
	if c.source == nil {
		return nil, &FetchError{Currency: cur, Err: errors.New("no rate source configured")}
	}
	obs, err := c.source.Fetch(ctx, cur, core.Date{})
	if err != nil {
		return nil, asFetchError(cur, core.Date{}, err)
	}
	if len(obs) == 0 {
		return nil, &FetchError{Currency: cur, Err: ErrEmptySeries}
	}
	raw, err := NewRawSeries(obs)
	if err != nil {
		return nil, &FetchError{Currency: cur, Err: err}
	}
	c.logger.InfoContext(ctx, "Fetched rate series",
		log.FieldCurrency, cur.String(),
		log.FieldObservations, raw.Len())
	return raw, nil
}

func asFetchError(cur core.Currency, since core.Date, err error) error {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return err
	}
	return &FetchError{Currency: cur, Since: since, Err: err}
}

func (c *Cache) expandAll() {
	today := c.today()
	expanded := make(map[Pair]*ExpandedSeries, len(c.raw))
	for pair, raw := range c.raw {
		expanded[pair] = Expand(raw, today)
	}
	c.expanded = expanded
}

// Save writes every non-empty raw series to the store.
func (c *Cache) Save(ctx context.Context) error {
	if c.store == nil {
		return errors.New("save rate series: no store configured")
	}
	for _, pair := range c.Pairs() {
		raw := c.raw[pair]
		if raw.Len() == 0 {
			continue
		}
		if err := c.store.Save(ctx, pair, raw); err != nil {
			return fmt.Errorf("save %s series: %w", pair, err)
		}
		c.logger.InfoContext(ctx, "Saved rate series",
			log.FieldPair, pair.Key(),
			log.FieldObservations, raw.Len())
	}
	return nil
}

// Resolve returns how many units of to one unit of from buys on day.
//
// The same currency resolves to 1. Otherwise a direct series is used, then
// the inverse of the reverse series, then a bridge through the base
// currency. Lookups outside a series' coverage fail with *OutOfRangeError;
// a pair with no path fails with *UnresolvablePairError.
func (c *Cache) Resolve(from, to core.Currency, day core.Date) (float64, error) {
	return c.resolve(from, to, day, maxBridgeHops)
}

func (c *Cache) resolve(from, to core.Currency, day core.Date, hops int) (float64, error) {
	if from == to {
		return 1, nil
	}
	direct := Pair{From: from, To: to}
	if s, ok := c.expanded[direct]; ok {
		return lookup(direct, s, day)
	}
	if s, ok := c.expanded[direct.Inverse()]; ok {
		rate, err := lookup(direct.Inverse(), s, day)
		if err != nil {
			return 0, err
		}
		return 1 / rate, nil
	}
	if hops > 0 && from != c.base && to != c.base {
		toBase, err := c.resolve(from, c.base, day, hops-1)
		if err != nil {
			return 0, bridgeError(from, to, err)
		}
		fromBase, err := c.resolve(c.base, to, day, hops-1)
		if err != nil {
			return 0, bridgeError(from, to, err)
		}
		return toBase * fromBase, nil
	}
	return 0, &UnresolvablePairError{From: from, To: to}
}

func bridgeError(from, to core.Currency, err error) error {
	var unresolvable *UnresolvablePairError
	if errors.As(err, &unresolvable) {
		return &UnresolvablePairError{From: from, To: to}
	}
	return err
}

func lookup(pair Pair, s *ExpandedSeries, day core.Date) (float64, error) {
	rate, ok := s.Lookup(day)
	if !ok {
		first, last, _ := s.Bounds()
		return 0, &OutOfRangeError{Pair: pair, Date: day, Min: first, Max: last}
	}
	return rate, nil
}

// Convert returns amount expressed in to, using the rate on day.
func (c *Cache) Convert(amount float64, from, to core.Currency, day core.Date) (float64, error) {
	rate, err := c.Resolve(from, to, day)
	if err != nil {
		return 0, err
	}
	return amount * rate, nil
}

// Coverage returns the days the expanded series of currency against the
// base covers.
func (c *Cache) Coverage(currency core.Currency) (first, last core.Date, ok bool) {
	s, found := c.expanded[Pair{From: currency, To: c.base}]
	if !found {
		return core.Date{}, core.Date{}, false
	}
	return s.Bounds()
}

// Pairs returns the cached pairs ordered by key.
func (c *Cache) Pairs() []Pair {
	return sortedPairs(c.raw)
}

func sortedPairs(raws map[Pair]*RawSeries) []Pair {
	pairs := make([]Pair, 0, len(raws))
	for pair := range raws {
		pairs = append(pairs, pair)
	}
	slices.SortFunc(pairs, func(a, b Pair) int {
		return strings.Compare(a.Key(), b.Key())
	})
	return pairs
}

// SeriesInfo describes one cached raw series.
type SeriesInfo struct {
	Pair         Pair
	First        core.Date
	Last         core.Date
	Observations int
}

// Series describes every cached raw series, ordered by pair key.
func (c *Cache) Series() []SeriesInfo {
	var out []SeriesInfo
	for _, pair := range c.Pairs() {
		raw := c.raw[pair]
		first, last, _ := raw.Bounds()
		out = append(out, SeriesInfo{Pair: pair, First: first, Last: last, Observations: raw.Len()})
	}
	return out
}
