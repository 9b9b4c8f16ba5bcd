// Package http serves the rate engine and the reports over a small
// read-only JSON and CSV API.
//
// This file parses and validates query parameters.

package http

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"fxledger/internal/core"
	"fxledger/internal/render"
	"fxledger/internal/report"
)

// ErrBadParam marks a query parameter the handler cannot use.
var ErrBadParam = errors.New("invalid parameter")

// ReportParams holds the parsed query of a report request.
type ReportParams struct {
	// Currency is empty when the request asked for native currencies.
	Currency core.Currency
	Window   report.Window
	// Month is set when the request named a calendar month.
	Month  core.Date
	Format render.Format
}

// Key identifies the table these parameters produce for name.
func (p ReportParams) Key(name string) string {
	month := ""
	if !p.Month.IsZero() {
		month = p.Month.String()
	}
	return strings.Join([]string{name, string(p.Currency), p.Window.String(), month}, "|")
}

// ParseReportParams reads currency, from, to, month and format. An absent
// currency falls back to def and "native" selects native currencies. The
// format defaults to JSON.
func ParseReportParams(query url.Values, def core.Currency) (ReportParams, error) {
	p := ReportParams{Currency: def}

	switch v := sanitizeInput(query.Get("currency")); strings.ToLower(v) {
	case "":
	case "native":
		p.Currency = ""
	default:
		cur, err := parseCurrencyParam("currency", v)
		if err != nil {
			return ReportParams{}, err
		}
		p.Currency = cur
	}

	var err error
	if p.Window.From, err = parseDateParam(query, "from"); err != nil {
		return ReportParams{}, err
	}
	if p.Window.To, err = parseDateParam(query, "to"); err != nil {
		return ReportParams{}, err
	}
	if err := p.Window.Validate(); err != nil {
		return ReportParams{}, fmt.Errorf("%w: %v", ErrBadParam, err)
	}

	if v := sanitizeInput(query.Get("month")); v != "" {
		month, err := report.ParseMonth(v)
		if err != nil {
			return ReportParams{}, fmt.Errorf("%w month %q: %v", ErrBadParam, v, err)
		}
		p.Month = month
	}

	p.Format = render.FormatJSON
	if v := sanitizeInput(query.Get("format")); v != "" {
		if p.Format, err = render.ParseFormat(v); err != nil {
			return ReportParams{}, fmt.Errorf("%w: %v", ErrBadParam, err)
		}
	}
	return p, nil
}

// RateParams holds the parsed query of a rate lookup.
type RateParams struct {
	From core.Currency
	To   core.Currency
	Date core.Date
}

// ParseRateParams reads from, to and date. from and to are required; date
// defaults to today.
func ParseRateParams(query url.Values, today core.Date) (RateParams, error) {
	from, err := parseCurrencyParam("from", sanitizeInput(query.Get("from")))
	if err != nil {
		return RateParams{}, err
	}
	to, err := parseCurrencyParam("to", sanitizeInput(query.Get("to")))
	if err != nil {
		return RateParams{}, err
	}
	day, err := parseDateParam(query, "date")
	if err != nil {
		return RateParams{}, err
	}
	if day.IsZero() {
		day = today
	}
	return RateParams{From: from, To: to, Date: day}, nil
}

func parseCurrencyParam(name, v string) (core.Currency, error) {
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", ErrBadParam, name)
	}
	cur, err := core.ParseCurrency(v)
	if err != nil {
		return "", fmt.Errorf("%w %s: %v", ErrBadParam, name, err)
	}
	return cur, nil
}

// parseDateParam returns the zero date when the parameter is absent.
func parseDateParam(query url.Values, name string) (core.Date, error) {
	v := sanitizeInput(query.Get(name))
	if v == "" {
		return core.Date{}, nil
	}
	day, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, fmt.Errorf("%w %s %q: %v", ErrBadParam, name, v, err)
	}
	return day, nil
}
