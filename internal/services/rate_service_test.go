package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fxledger/internal/amqp"
	"fxledger/internal/core"
	"fxledger/internal/fx"
	"fxledger/internal/log"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Fetch(ctx context.Context, currency core.Currency, since core.Date) ([]fx.Observation, error) {
	args := m.Called(ctx, currency, since)
	obs, _ := args.Get(0).([]fx.Observation)
	return obs, args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishRatesRefreshed(ctx context.Context, msg *amqp.RatesRefreshed) error {
	return m.Called(ctx, msg).Error(0)
}

type memStore struct {
	mu     sync.Mutex
	series map[fx.Pair]*fx.RawSeries
}

func newMemStore() *memStore { return &memStore{series: map[fx.Pair]*fx.RawSeries{}} }

func (s *memStore) Load(_ context.Context, pair fx.Pair) (*fx.RawSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.series[pair]
	if !ok {
		return nil, fmt.Errorf("%s: %w", pair.Key(), fx.ErrSeriesNotFound)
	}
	return raw, nil
}

func (s *memStore) Save(_ context.Context, pair fx.Pair, raw *fx.RawSeries) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[pair] = raw
	return nil
}

var today = core.NewDate(2024, 1, 3)

func clock() fx.Option { return fx.WithClock(func() core.Date { return today }) }

func fullHistory(src *mockSource) {
	src.On("Fetch", mock.Anything, core.CHF, core.Date{}).Return([]fx.Observation{
		{Date: core.NewDate(2024, 1, 2), Rate: 1.05},
		{Date: today, Rate: 1.06},
	}, nil)
	src.On("Fetch", mock.Anything, core.SEK, core.Date{}).Return([]fx.Observation{
		{Date: today, Rate: 0.09},
	}, nil)
}

func isPair(key string) any {
	return mock.MatchedBy(func(m *amqp.RatesRefreshed) bool { return m.Pair == key && m.ID != "" })
}

func TestRefreshSavesAndPublishes(t *testing.T) {
	src := &mockSource{}
	fullHistory(src)
	pub := &mockPublisher{}
	pub.On("PublishRatesRefreshed", mock.Anything, isPair("CHFEUR")).Return(nil).Once()
	pub.On("PublishRatesRefreshed", mock.Anything, isPair("SEKEUR")).Return(nil).Once()
	store := newMemStore()

	svc := NewRateService(src, store, pub, log.Discard(), clock())
	cache, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	pub.AssertExpectations(t)
	assert.Len(t, store.series, 2)
	assert.Equal(t, 2, store.series[fx.PairFor(core.CHF)].Len())

	rate, err := cache.Resolve(core.CHF, core.SEK, today)
	require.NoError(t, err)
	assert.InDelta(t, 1.06/0.09, rate, 1e-12)
}

func TestRefreshIgnoresPublishFailures(t *testing.T) {
	src := &mockSource{}
	fullHistory(src)
	pub := &mockPublisher{}
	pub.On("PublishRatesRefreshed", mock.Anything, mock.Anything).Return(errors.New("circuit breaker is open"))

	cache, err := NewRateService(src, newMemStore(), pub, log.Discard(), clock()).Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, cache.Pairs(), 2)
	pub.AssertNumberOfCalls(t, "PublishRatesRefreshed", 2)
}

func TestRefreshFailsWithoutSavingOrPublishing(t *testing.T) {
	src := &mockSource{}
	src.On("Fetch", mock.Anything, core.CHF, core.Date{}).Return(nil, errors.New("connection refused"))
	pub := &mockPublisher{}
	store := newMemStore()

	_, err := NewRateService(src, store, pub, log.Discard(), clock()).Refresh(context.Background())

	var fetchErr *fx.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Empty(t, store.series)
	pub.AssertNotCalled(t, "PublishRatesRefreshed", mock.Anything, mock.Anything)
}

func TestLoadDoesNotFetch(t *testing.T) {
	store := newMemStore()
	for _, cur := range []core.Currency{core.CHF, core.SEK} {
		raw, err := fx.NewRawSeries([]fx.Observation{{Date: core.NewDate(2023, 12, 29), Rate: 1}})
		require.NoError(t, err)
		store.series[fx.PairFor(cur)] = raw
	}
	src := &mockSource{}

	cache, err := NewRateService(src, store, nil, log.Discard(), clock()).Load(context.Background())
	require.NoError(t, err)
	src.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything)

	_, last, ok := cache.Coverage(core.SEK)
	require.True(t, ok)
	assert.Equal(t, today, last)
}

func TestRefreshSchedulerDeliversFreshCaches(t *testing.T) {
	src := &mockSource{}
	fullHistory(src)
	svc := NewRateService(src, newMemStore(), nil, log.Discard(), clock())

	got := make(chan *fx.Cache, 4)
	s := NewRefreshScheduler(svc, func(c *fx.Cache) { got <- c }, RefreshSchedulerConfig{
		Interval:   time.Hour,
		RunOnStart: true,
	}, log.Discard())

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start(ctx), "second start")

	select {
	case c := <-got:
		assert.Len(t, c.Pairs(), 2)
	case <-time.After(5 * time.Second):
		t.Fatal("no refresh delivered")
	}

	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())
}

func TestRefreshSchedulerKeepsSnapshotOnFailure(t *testing.T) {
	src := &mockSource{}
	src.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("HTTP 503"))
	svc := NewRateService(src, newMemStore(), nil, log.Discard(), clock())

	called := false
	s := NewRefreshScheduler(svc, func(*fx.Cache) { called = true }, DefaultRefreshSchedulerConfig(), log.Discard())
	s.refresh(context.Background())
	assert.False(t, called)
}

func TestRefreshSchedulerLifecycle(t *testing.T) {
	s := NewRefreshScheduler(nil, nil, RefreshSchedulerConfig{}, log.Discard())
	assert.Error(t, s.Start(context.Background()), "zero interval")
	assert.False(t, s.IsRunning())
	assert.NoError(t, s.Stop(context.Background()), "stop when not running")

	assert.Equal(t, 6*time.Hour, DefaultRefreshSchedulerConfig().Interval)
}
