// Package services orchestrates the rate engine for long-running and
// one-shot callers: refresh, persist and announce.
package services

import (
	"context"
	"fmt"

	"fxledger/internal/amqp"
	"fxledger/internal/fx"
	"fxledger/internal/log"
)

// RatesPublisher announces refreshed series. *amqp.Client implements it.
type RatesPublisher interface {
	PublishRatesRefreshed(ctx context.Context, msg *amqp.RatesRefreshed) error
}

// RateService builds rate caches. Every call returns a new cache, so a
// cache handed to a report is never mutated while it is read.
type RateService struct {
	source    fx.RateSource
	store     fx.SeriesStore
	publisher RatesPublisher
	opts      []fx.Option
	logger    *log.Logger
}

// NewRateService creates the service. publisher may be nil.
func NewRateService(source fx.RateSource, store fx.SeriesStore, publisher RatesPublisher, logger *log.Logger, opts ...fx.Option) *RateService {
	if logger == nil {
		logger = log.Default()
	}
	return &RateService{
		source:    source,
		store:     store,
		publisher: publisher,
		opts:      append([]fx.Option{fx.WithLogger(logger)}, opts...),
		logger:    logger.WithComponent(log.ComponentFX),
	}
}

// Refresh loads every series, fetches what is missing or stale, saves the
// result and publishes one event per series. A failed publish is logged;
// the rates are already saved.
func (s *RateService) Refresh(ctx context.Context) (*fx.Cache, error) {
	cache := fx.NewCache(s.source, s.store, s.opts...)
	if err := cache.Init(ctx); err != nil {
		return nil, fmt.Errorf("init rates: %w", err)
	}
	if err := cache.Save(ctx); err != nil {
		return nil, err
	}

	if s.publisher == nil {
		return cache, nil
	}
	for _, info := range cache.Series() {
		msg := amqp.NewRatesRefreshed(info)
		if err := s.publisher.PublishRatesRefreshed(ctx, msg); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish rates refreshed message",
				log.FieldPair, msg.Pair,
				log.FieldError, err)
		}
	}
	return cache, nil
}

// Load builds a cache from the store alone.
func (s *RateService) Load(ctx context.Context) (*fx.Cache, error) {
	cache := fx.NewCache(nil, s.store, s.opts...)
	if err := cache.Load(ctx); err != nil {
		return nil, err
	}
	return cache, nil
}
