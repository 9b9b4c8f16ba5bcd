package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxledger/internal/core"
	"fxledger/internal/fx"
	"fxledger/internal/ledger"
	"fxledger/internal/log"
	"fxledger/internal/report"
)

func d(y, m, day int) core.Date { return core.NewDate(y, m, day) }

var today = d(2024, 3, 1)

func testRates(t *testing.T, chfRate float64) *fx.Cache {
	t.Helper()
	chf, err := fx.NewRawSeries([]fx.Observation{{Date: d(2024, 1, 1), Rate: 1}, {Date: d(2024, 1, 3), Rate: chfRate}})
	require.NoError(t, err)
	sek, err := fx.NewRawSeries([]fx.Observation{{Date: d(2024, 1, 1), Rate: 0.1}})
	require.NoError(t, err)
	return fx.FromSeries(map[fx.Pair]*fx.RawSeries{
		fx.PairFor(core.CHF): chf,
		fx.PairFor(core.SEK): sek,
	}, fx.WithClock(func() core.Date { return today }), fx.WithLogger(log.Discard()))
}

func testBook() *ledger.Book {
	return &ledger.Book{
		Accounts: []ledger.Account{
			{ID: 1, Name: "Checking", Country: "DE", Currency: core.EUR, Type: "bank", InitialBalance: 100, CreatedOn: d(2024, 1, 1)},
			{ID: 2, Name: "Savings", Country: "CH", Currency: core.CHF, Type: "bank", InitialBalance: 50, CreatedOn: d(2024, 1, 1)},
		},
		FundMovements: []ledger.Transaction{
			{ID: 1, Kind: ledger.Credit, Date: d(2024, 1, 2), Amount: 20, Currency: core.EUR, AccountID: 1},
			{ID: 2, Kind: ledger.Debit, Date: d(2024, 1, 3), Amount: 10, Currency: core.CHF, AccountID: 2},
		},
		Incomes: []ledger.Transaction{
			{ID: 1, Kind: ledger.Income, Date: d(2024, 1, 5), Amount: 1000, Currency: core.EUR, Category: "Salary"},
		},
		Expenses: []ledger.Transaction{
			{ID: 1, Kind: ledger.Expense, Date: d(2024, 1, 10), Amount: 200, Currency: core.EUR, Category: "Home", Subcategory: "Rent"},
			{ID: 2, Kind: ledger.Expense, Date: d(2024, 1, 12), Amount: 50, Currency: core.CHF, Category: "Food", Subcategory: "Groceries"},
		},
	}
}

type testServer struct {
	*Server
	bookLoads atomic.Int32
}

func newTestServer(t *testing.T, book *ledger.Book) *testServer {
	t.Helper()
	ts := &testServer{}
	loader := func(context.Context) (*ledger.Book, error) {
		ts.bookLoads.Add(1)
		if book == nil {
			return nil, errors.New("ledger directory unreadable")
		}
		return book, nil
	}
	ts.Server = NewServer(Config{
		Addr:              ":0",
		Currency:          core.EUR,
		CacheSize:         16,
		CacheTTL:          time.Minute,
		RequestsPerMinute: 1000,
	}, loader, log.Discard(), WithClock(func() core.Date { return today }))
	t.Cleanup(func() { _ = ts.Shutdown(context.Background()) })
	return ts
}

func (ts *testServer) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func decodeTable(t *testing.T, rr *httptest.ResponseRecorder) report.Table {
	t.Helper()
	var table report.Table
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &table), rr.Body.String())
	return table
}

func TestHealthAndReadiness(t *testing.T) {
	ts := newTestServer(t, testBook())

	rr := ts.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	assert.Equal(t, http.StatusServiceUnavailable, ts.get(t, "/readyz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, ts.get(t, "/api/reports/stand").Code)
	assert.Equal(t, http.StatusServiceUnavailable, ts.get(t, "/api/rate?from=CHF&to=EUR").Code)

	ts.SetRates(testRates(t, 2))
	rr = ts.get(t, "/readyz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"CHFEUR":"2024-01-01/2024-03-01"`)
}

func TestRateEndpoint(t *testing.T) {
	ts := newTestServer(t, testBook())
	ts.SetRates(testRates(t, 2))

	rr := ts.get(t, "/api/rate?from=chf&to=SEK&date=2024-01-02")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var got rateResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, core.CHF, got.From)
	assert.Equal(t, d(2024, 1, 2), got.Date)
	assert.InDelta(t, 10, got.Rate, 1e-9)

	rr = ts.get(t, "/api/rate?from=CHF&to=EUR")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"date":"2024-03-01"`)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"before coverage", "/api/rate?from=CHF&to=EUR&date=2023-12-31", http.StatusUnprocessableEntity},
		{"unsupported currency", "/api/rate?from=USD&to=EUR", http.StatusBadRequest},
		{"missing to", "/api/rate?from=CHF", http.StatusBadRequest},
		{"bad date", "/api/rate?from=CHF&to=EUR&date=01/02/2024", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.get(t, tt.target)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			assert.Contains(t, rr.Body.String(), `"error"`)
		})
	}
}

func TestStandReport(t *testing.T) {
	ts := newTestServer(t, testBook())
	ts.SetRates(testRates(t, 2))

	rr := ts.get(t, "/api/reports/stand")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	table := decodeTable(t, rr)
	assert.Equal(t, []string{"NAME", "COUNTRY", "ACCOUNT TYPE", "EUR"}, table.Columns)
	assert.Equal(t, [][]string{
		{"Checking", "DE", "bank", "120.00"},
		{"Savings", "CH", "bank", "80.00"},
	}, table.Rows)

	rr = ts.get(t, "/api/reports/stand?currency=native&format=csv")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "NAME,COUNTRY,CURRENCY,ACCOUNT TYPE,TOTAL VALUE\n"))
	assert.Contains(t, rr.Body.String(), "Savings,CH,CHF,bank,40.00\n")
}

func TestEvolutionAndMonthlyExpenses(t *testing.T) {
	ts := newTestServer(t, testBook())
	ts.SetRates(testRates(t, 2))

	rr := ts.get(t, "/api/reports/evolution?to=2024-01-04")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	table := decodeTable(t, rr)
	assert.Equal(t, [][]string{
		{"2024-01-01", "150.00"},
		{"2024-01-02", "170.00"},
		{"2024-01-03", "150.00"},
		{"2024-01-04", "150.00"},
	}, table.Rows)

	rr = ts.get(t, "/api/reports/monthly-expenses?currency=EUR")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, [][]string{{"2024-01-01", "300.00"}}, decodeTable(t, rr).Rows)

	rr = ts.get(t, "/api/reports/evolution?currency=native")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSummaryReport(t *testing.T) {
	ts := newTestServer(t, testBook())
	ts.SetRates(testRates(t, 2))

	rr := ts.get(t, "/api/reports/summary?month=2024-01")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	table := decodeTable(t, rr)
	require.NotEmpty(t, table.Rows)
	assert.Equal(t, []string{report.TotalLabel, report.TotalLabel, "300.00", "100.00", "30.00"}, table.Rows[len(table.Rows)-1])

	rr = ts.get(t, "/api/reports/summary?from=2024-01-01&to=2024-01-31&format=md")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "# Expense summary")
}

func TestReportErrors(t *testing.T) {
	ts := newTestServer(t, testBook())
	ts.SetRates(testRates(t, 2))

	assert.Equal(t, http.StatusNotFound, ts.get(t, "/api/reports/balance-sheet").Code)
	assert.Equal(t, http.StatusBadRequest, ts.get(t, "/api/reports/evolution?from=2024-02-01&to=2024-01-01").Code)
	assert.Equal(t, http.StatusBadRequest, ts.get(t, "/api/reports/summary?month=2024-13").Code)
	assert.Equal(t, http.StatusBadRequest, ts.get(t, "/api/reports/stand?format=xml").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, func() int {
		rr := httptest.NewRecorder()
		ts.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/reports/stand", nil))
		return rr.Code
	}())

	book := testBook()
	book.Expenses = append(book.Expenses, ledger.Transaction{
		ID: 3, Kind: ledger.Expense, Date: d(2023, 12, 1), Amount: 5, Currency: core.SEK, Category: "Food",
	})
	unpriced := newTestServer(t, book)
	unpriced.SetRates(testRates(t, 2))
	rr := unpriced.get(t, "/api/reports/monthly-expenses")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "expense 3")

	broken := newTestServer(t, nil)
	broken.SetRates(testRates(t, 2))
	assert.Equal(t, http.StatusInternalServerError, broken.get(t, "/api/reports/stand").Code)
}

func TestReportCacheIsPurgedOnNewRates(t *testing.T) {
	ts := newTestServer(t, testBook())
	ts.SetRates(testRates(t, 2))

	first := decodeTable(t, ts.get(t, "/api/reports/stand"))
	second := decodeTable(t, ts.get(t, "/api/reports/stand"))
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, ts.bookLoads.Load(), "second request is served from the cache")

	ts.SetRates(testRates(t, 3))
	third := decodeTable(t, ts.get(t, "/api/reports/stand"))
	assert.EqualValues(t, 2, ts.bookLoads.Load())
	assert.Equal(t, "120.00", third.Rows[0][3])
	assert.Equal(t, "Savings", third.Rows[1][0])
	assert.Equal(t, "120.00", third.Rows[1][3], "40 CHF at the new rate")
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, testBook())
	ts.SetRates(testRates(t, 2))
	ts.get(t, "/api/reports/stand")
	ts.get(t, "/api/reports/stand")

	rr := ts.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "report_cache_hits_total 1\n")
	assert.Contains(t, body, "report_cache_misses_total 1\n")
	assert.Contains(t, body, "rate_series_loaded 2\n")
	assert.Contains(t, body, "http_requests_total 2\n")
}

func TestRateLimitOnReports(t *testing.T) {
	srv := NewServer(Config{Currency: core.EUR, CacheSize: 4, RequestsPerMinute: 1},
		func(context.Context) (*ledger.Book, error) { return testBook(), nil },
		log.Discard(), WithClock(func() core.Date { return today }))
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	srv.SetRates(testRates(t, 2))

	codes := make([]int, 2)
	for i := range codes {
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/reports/stand", nil))
		codes[i] = rr.Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/rate?from=CHF&to=EUR", nil))
	assert.Equal(t, http.StatusOK, rr.Code, "rate lookups are not limited")
}
