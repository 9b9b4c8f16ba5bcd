package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"fxledger/internal/core"
	"fxledger/internal/log"
	"fxledger/internal/report"
)

// Report names served under /api/reports/.
const (
	ReportStand           = "stand"
	ReportEvolution       = "evolution"
	ReportMonthlyExpenses = "monthly-expenses"
	ReportSummary         = "summary"
)

var reportNames = []string{ReportStand, ReportEvolution, ReportMonthlyExpenses, ReportSummary}

var (
	ErrUnknownReport = errors.New("unknown report")
	ErrNotReady      = errors.New("exchange rates not loaded yet")
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports ready once a rate snapshot is installed.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	rates := s.rates.Load()
	if rates == nil {
		NewResponse().Status(http.StatusServiceUnavailable).JSON(map[string]any{
			"status": "not_ready",
			"checks": map[string]string{"rates": "not loaded"},
		}).Write(w)
		return
	}

	coverage := make(map[string]string)
	for _, pair := range rates.Pairs() {
		if first, last, ok := rates.Coverage(pair.From); ok {
			coverage[pair.Key()] = first.String() + "/" + last.String()
		}
	}
	NewResponse().JSON(map[string]any{
		"status": "ready",
		"checks": map[string]any{"rates": "ok", "series": coverage},
	}).Write(w)
}

type rateResponse struct {
	From core.Currency `json:"from"`
	To   core.Currency `json:"to"`
	Date core.Date     `json:"date"`
	Rate float64       `json:"rate"`
}

// handleRate resolves one exchange rate.
func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	rates := s.rates.Load()
	if rates == nil {
		ErrorFor(ErrNotReady).Write(w)
		return
	}
	p, err := ParseRateParams(r.URL.Query(), s.today())
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}
	rate, err := rates.Resolve(p.From, p.To, p.Date)
	if err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate lookup failed",
			log.FieldFrom, p.From.String(),
			log.FieldTo, p.To.String(),
			log.FieldDate, p.Date.String(),
			log.FieldError, err)
		ErrorFor(err).Write(w)
		return
	}
	NewResponse().JSON(rateResponse{From: p.From, To: p.To, Date: p.Date, Rate: rate}).Write(w)
}

// handleReport serves one report table, from the report cache when the
// same request was answered from the current rate snapshot.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")
	if !slices.Contains(reportNames, name) {
		ErrorFor(fmt.Errorf("%w %q", ErrUnknownReport, name)).Write(w)
		return
	}
	p, err := ParseReportParams(r.URL.Query(), s.currency)
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}

	sl := log.NewStructuredLogger(log.FromContext(ctx))
	key := strconv.FormatUint(s.generation.Load(), 10) + "|" + p.Key(name)
	table, cached := s.reports.Get(key)
	if !cached {
		table, err = s.buildReport(ctx, name, p)
		if err != nil {
			sl.LogError(ctx, "Report failed", err, log.OpReport,
				log.NewFields().WithReport(name, p.Currency.String(), 0))
			ErrorFor(err).Write(w)
			return
		}
		s.reports.Set(key, table)
	}

	sl.LogReportServed(ctx, name, p.Currency.String(), table.Len(), cached)
	NewResponse().Table(table, p.Format).Write(w)
}

func (s *Server) buildReport(ctx context.Context, name string, p ReportParams) (report.Table, error) {
	rates := s.rates.Load()
	if rates == nil {
		return report.Table{}, ErrNotReady
	}
	if name != ReportStand && p.Currency == "" {
		return report.Table{}, fmt.Errorf("%w: %s needs a target currency", ErrBadParam, name)
	}
	book, err := s.books(ctx)
	if err != nil {
		return report.Table{}, fmt.Errorf("load ledger: %w", err)
	}
	agg := report.NewAggregator(rates, report.WithClock(s.today), report.WithLogger(s.logger))

	switch name {
	case ReportStand:
		stand, err := agg.Stand(book, p.Currency)
		if err != nil {
			return report.Table{}, err
		}
		return stand.Table(), nil
	case ReportEvolution:
		series, err := agg.Evolution(book, p.Currency, p.Window)
		if err != nil {
			return report.Table{}, err
		}
		return series.Table(), nil
	case ReportMonthlyExpenses:
		series, err := agg.MonthlyExpenses(book, p.Currency, p.Window)
		if err != nil {
			return report.Table{}, err
		}
		return series.Table(), nil
	default:
		var (
			summary *report.Summary
			err     error
		)
		if !p.Month.IsZero() {
			summary, err = agg.MonthlySummary(book, p.Month, p.Currency)
		} else {
			summary, err = agg.Summary(book, p.Currency, p.Window)
		}
		if err != nil {
			return report.Table{}, err
		}
		return summary.Table(), nil
	}
}

// handleMetrics provides request, cache and rate limit metrics in
// Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.tracer.GetMetrics()
	cacheStats := s.reports.Stats()
	limitMetrics := s.limiter.GetMetrics()
	pairs := 0
	if rates := s.rates.Load(); rates != nil {
		pairs = len(rates.Pairs())
	}

	w.WriteHeader(http.StatusOK)
	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_requests_failed_total", "counter", "HTTP requests answered with a 4xx or 5xx status", traceMetrics.FailedRequests)
	metric("http_request_duration_avg_us", "gauge", "Average request duration in microseconds", traceMetrics.AverageResponseTime)
	metric("report_cache_hits_total", "counter", "Reports served from the cache since the last rate reload", cacheStats.Hits)
	metric("report_cache_misses_total", "counter", "Reports built since the last rate reload", cacheStats.Misses)
	metric("report_cache_entries", "gauge", "Current report cache entries", cacheStats.Size)
	metric("rate_limit_rejected_total", "counter", "Requests rejected by the rate limiter", limitMetrics.Rejected)
	metric("rate_limit_clients", "gauge", "Currently tracked rate limit clients", limitMetrics.ClientCount)
	metric("rate_snapshot_generation", "gauge", "Rate snapshots installed since start", s.generation.Load())
	metric("rate_series_loaded", "gauge", "Rate series in the current snapshot", pairs)
	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n# TYPE uptime_seconds gauge\nuptime_seconds %.0f\n", time.Since(s.started).Seconds())
}
