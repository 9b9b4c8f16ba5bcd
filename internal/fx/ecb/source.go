// Package ecb fetches daily reference rates from the European Central
// Bank SDMX data API in CSV form.
package ecb

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"fxledger/internal/core"
	"fxledger/internal/fx"
	"fxledger/internal/log"
)

const (
	DefaultBaseURL = "https://data-api.ecb.europa.eu"

	columnDate  = "TIME_PERIOD"
	columnValue = "OBS_VALUE"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
	ErrMalformedCSV     = errors.New("malformed CSV response")
)

// Source implements fx.RateSource. The ECB publishes how many units of a
// currency one euro buys, so every value is inverted before it is
// returned.
type Source struct {
	baseURL string
	client  *http.Client
	logger  *log.Logger
}

var _ fx.RateSource = (*Source)(nil)

// New creates a Source against baseURL (DefaultBaseURL when empty). A zero
// timeout leaves requests bounded only by the caller's context.
func New(baseURL string, timeout time.Duration, logger *log.Logger) *Source {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Source{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClientWithPooling(timeout),
		logger:  logger.WithComponent(log.ComponentSource),
	}
}

// newHTTPClientWithPooling creates an HTTP client with connection pooling
// and keep-alive. Only connection setup and headers have fixed timeouts.
func newHTTPClientWithPooling(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// URL returns the query for currency against the euro, starting at since
// when it is not zero.
func (s *Source) URL(currency core.Currency, since core.Date) string {
	q := url.Values{}
	q.Set("format", "csvdata")
	q.Set("detail", "dataonly")
	if !since.IsZero() {
		q.Set("startPeriod", since.String())
	}
	return fmt.Sprintf("%s/service/data/EXR/D.%s.%s.SP00.A?%s", s.baseURL, currency, core.BaseCurrency, q.Encode())
}

// Fetch implements fx.RateSource.
func (s *Source) Fetch(ctx context.Context, currency core.Currency, since core.Date) ([]fx.Observation, error) {
	if currency.IsBase() {
		return nil, fmt.Errorf("%s is the base currency", currency)
	}
	addr := s.URL(currency, since)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: GET %s: %s: %s", ErrUnexpectedStatus, addr, resp.Status, strings.TrimSpace(string(body)))
	}

	obs, err := Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s rates: %w", currency, err)
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("%w: no observations for %s", fx.ErrEmptySeries, currency)
	}

	s.logger.InfoContext(ctx, "Fetched ECB rates",
		log.FieldCurrency, currency.String(),
		log.FieldObservations, len(obs),
		log.FieldDuration, time.Since(start).Milliseconds())
	return obs, nil
}

// Parse reads an SDMX CSV body and returns the inverted observations in
// date order. Rows with an empty value are skipped.
func Parse(r io.Reader) ([]fx.Observation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrMalformedCSV, err)
	}
	dateIdx := slices.Index(header, columnDate)
	valueIdx := slices.Index(header, columnValue)
	if dateIdx < 0 || valueIdx < 0 {
		return nil, fmt.Errorf("%w: missing %s or %s column", ErrMalformedCSV, columnDate, columnValue)
	}

	var obs []fx.Observation
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedCSV, line, err)
		}
		if len(rec) <= max(dateIdx, valueIdx) {
			return nil, fmt.Errorf("%w: line %d: short record", ErrMalformedCSV, line)
		}
		raw := strings.TrimSpace(rec[valueIdx])
		if raw == "" || strings.EqualFold(raw, "NaN") {
			continue
		}
		day, err := core.ParseDate(rec[dateIdx])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedCSV, line, err)
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			return nil, fmt.Errorf("%w: line %d: invalid value %q", ErrMalformedCSV, line, raw)
		}
		obs = append(obs, fx.Observation{Date: day, Rate: 1 / value})
	}

	slices.SortFunc(obs, func(a, b fx.Observation) int {
		return a.Date.Compare(b.Date.Time)
	})
	return obs, nil
}
