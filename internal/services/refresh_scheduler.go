package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fxledger/internal/fx"
	"fxledger/internal/log"
)

// RefreshSchedulerConfig holds configuration for the refresh scheduler
type RefreshSchedulerConfig struct {
	// Interval is how often rates are refreshed (default: 6h)
	Interval time.Duration

	// RunOnStart refreshes immediately when the scheduler starts
	RunOnStart bool
}

// DefaultRefreshSchedulerConfig returns sensible defaults
func DefaultRefreshSchedulerConfig() RefreshSchedulerConfig {
	return RefreshSchedulerConfig{
		Interval: 6 * time.Hour,
	}
}

// RefreshScheduler periodically builds a fresh rate cache and hands it to
// a callback. The callback replaces the caller's snapshot; caches already
// handed out are never touched.
type RefreshScheduler struct {
	service   *RateService
	onRefresh func(*fx.Cache)
	config    RefreshSchedulerConfig
	logger    *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRefreshScheduler creates a new refresh scheduler
func NewRefreshScheduler(service *RateService, onRefresh func(*fx.Cache), config RefreshSchedulerConfig, logger *log.Logger) *RefreshScheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &RefreshScheduler{
		service:   service,
		onRefresh: onRefresh,
		config:    config,
		logger:    logger.WithComponent(log.ComponentFX),
	}
}

// Start begins the refresh loop. Returns an error if already running.
func (p *RefreshScheduler) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("refresh scheduler is already running")
	}
	if p.config.Interval <= 0 {
		p.mu.Unlock()
		return fmt.Errorf("refresh interval must be positive, got %v", p.config.Interval)
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Refresh scheduler started", "interval", p.config.Interval.String())
	return nil
}

// Stop gracefully stops the scheduler and waits for completion.
func (p *RefreshScheduler) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	// Signal stop
	close(p.stopCh)

	// Wait for completion or context cancellation
	select {
	case <-p.doneCh:
		p.logger.InfoContext(ctx, "Refresh scheduler stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Refresh scheduler stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the scheduler is currently running
func (p *RefreshScheduler) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *RefreshScheduler) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	if p.config.RunOnStart {
		p.refresh(ctx)
	}

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

// refresh keeps the previous snapshot when the refresh fails.
func (p *RefreshScheduler) refresh(ctx context.Context) {
	start := time.Now()
	cache, err := p.service.Refresh(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Scheduled rate refresh failed, keeping previous rates",
			log.FieldError, err)
		return
	}
	if p.onRefresh != nil {
		p.onRefresh(cache)
	}
	p.logger.InfoContext(ctx, "Scheduled rate refresh completed",
		log.FieldDuration, time.Since(start).Milliseconds(),
		"series", len(cache.Pairs()))
}
