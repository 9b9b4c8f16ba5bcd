package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
)

const (
	EUR Currency = "EUR"
	CHF Currency = "CHF"
	SEK Currency = "SEK"

	// BaseCurrency is the currency every rate series is quoted against.
	BaseCurrency = EUR
)

const (
	dateLayout        = "2006-01-02"
	dateLayoutRelaxed = "2006-1-2"
)

type (
	// Currency is an ISO-4217 code from the closed set the ledger supports.
	Currency string

	// Date is a calendar day. The time part is always midnight UTC so that
	// two dates for the same day compare equal with ==.
	Date struct {
		time.Time
	}
)

var (
	ErrUnknownCurrency = errors.New("unknown currency")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidDay      = errors.New("invalid day")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidAmount   = errors.New("invalid amount")
)

var supported = []Currency{EUR, CHF, SEK}

// SupportedCurrencies returns the closed set of currencies, base first.
func SupportedCurrencies() []Currency {
	return append([]Currency(nil), supported...)
}

// ParseCurrency accepts a currency code in any case and returns it if supported.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if err := c.Validate(); err != nil {
		return "", err
	}
	return c, nil
}

func (c Currency) Validate() error {
	if money.GetCurrency(string(c)) == nil {
		return fmt.Errorf("%w: %q is not an ISO-4217 code", ErrUnknownCurrency, string(c))
	}
	for _, s := range supported {
		if s == c {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not supported", ErrUnknownCurrency, string(c))
}

func (c Currency) String() string { return string(c) }

// IsBase reports whether c is the base currency.
func (c Currency) IsBase() bool { return c == BaseCurrency }

// Symbol returns the display grapheme of the currency, e.g. "€".
func (c Currency) Symbol() string {
	if cur := money.GetCurrency(string(c)); cur != nil {
		return cur.Grapheme
	}
	return string(c)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// Today returns the current local calendar day.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses YYYY-MM-DD. Month and day may omit their leading zero.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(dateLayoutRelaxed, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w %q: %v", ErrInvalidDate, s, err)
	}
	return DateOf(t), nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// AddDays returns the date n days after d (before d when n is negative).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// DaysSince returns the number of days from o to d.
func (d Date) DaysSince(o Date) int {
	return int(d.Sub(o.Time).Hours() / 24)
}

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool  { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool  { return d.Time.Equal(o.Time) }

// MonthStart returns the first day of d's month.
func (d Date) MonthStart() Date {
	return NewDate(d.Year(), d.Month(), 1)
}

// MonthEnd returns the last day of d's month.
func (d Date) MonthEnd() Date {
	return NewDate(d.Year(), d.Month()+1, 1).AddDays(-1)
}

// MarshalText renders d as YYYY-MM-DD and the zero date as empty text.
func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON shadows the promoted time.Time encoding.
func (d Date) MarshalJSON() ([]byte, error) {
	b, _ := d.MarshalText()
	return json.Marshal(string(b))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, b)
	}
	return d.UnmarshalText([]byte(s))
}
