package report

import (
	"fmt"
	"strings"
	"time"

	"fxledger/internal/core"
)

// Window is an inclusive date range. A zero bound leaves that side open.
type Window struct {
	From core.Date
	To   core.Date
}

// Contains reports whether day falls inside the window.
func (w Window) Contains(day core.Date) bool {
	if !w.From.IsZero() && day.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && day.After(w.To) {
		return false
	}
	return true
}

func (w Window) Validate() error {
	if !w.From.IsZero() && !w.To.IsZero() && w.To.Before(w.From) {
		return fmt.Errorf("window ends on %s before it starts on %s", w.To, w.From)
	}
	return nil
}

func (w Window) String() string {
	bound := func(d core.Date) string {
		if d.IsZero() {
			return "..."
		}
		return d.String()
	}
	return bound(w.From) + "/" + bound(w.To)
}

// MonthWindow covers the calendar month containing day.
func MonthWindow(day core.Date) Window {
	return Window{From: day.MonthStart(), To: day.MonthEnd()}
}

// ParseMonth reads a YYYY-MM month and returns its first day.
func ParseMonth(s string) (core.Date, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return core.Date{}, fmt.Errorf("%w: month %q, want YYYY-MM", core.ErrInvalidDate, s)
	}
	return core.DateOf(t), nil
}
