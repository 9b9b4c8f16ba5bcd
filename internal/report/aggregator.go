// Package report projects multi-currency ledger records onto a single
// target currency and time axis: account stands, the evolution of total
// funds, monthly expenses and category summaries.
//
// Every conversion goes through a Converter. A record that cannot be priced
// fails the whole report; no rate is ever defaulted.
package report

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"fxledger/internal/core"
	"fxledger/internal/ledger"
	"fxledger/internal/log"
)

// StandThreshold is the smallest total an account row must carry to be
// listed in a stand.
const StandThreshold = 0.01

// Converter expresses an amount of from in to at the rate of day.
// *fx.Cache implements it.
type Converter interface {
	Convert(amount float64, from, to core.Currency, day core.Date) (float64, error)
}

// Aggregator builds reports from a ledger.Book.
type Aggregator struct {
	rates  Converter
	today  func() core.Date
	logger *log.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the evaluation day of point-in-time reports.
func WithClock(today func() core.Date) Option {
	return func(a *Aggregator) { a.today = today }
}

func WithLogger(logger *log.Logger) Option {
	return func(a *Aggregator) { a.logger = logger.WithComponent(log.ComponentReport) }
}

func NewAggregator(rates Converter, opts ...Option) *Aggregator {
	a := &Aggregator{
		rates:  rates,
		today:  core.Today,
		logger: log.Default().WithComponent(log.ComponentReport),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Point is one amount already expressed in the target currency.
type Point struct {
	Date  core.Date `json:"date"`
	Value float64   `json:"value"`
}

// ConversionError says which record could not be priced.
type ConversionError struct {
	Kind     ledger.Kind
	ID       int64
	Currency core.Currency
	Target   core.Currency
	Date     core.Date
	Err      error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s %d from %s to %s on %s: %v", e.Kind, e.ID, e.Currency, e.Target, e.Date, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// convert prices t in target at the rate of day.
func (a *Aggregator) convert(t ledger.Transaction, amount float64, target core.Currency, day core.Date) (float64, error) {
	v, err := a.rates.Convert(amount, t.Currency, target, day)
	if err != nil {
		return 0, &ConversionError{Kind: t.Kind, ID: t.ID, Currency: t.Currency, Target: target, Date: day, Err: err}
	}
	return v, nil
}

// Normalize converts every record's signed amount to target at the rate of
// the record's own date.
func (a *Aggregator) Normalize(txs []ledger.Transaction, target core.Currency) ([]Point, error) {
	out := make([]Point, 0, len(txs))
	for _, t := range txs {
		v, err := a.convert(t, t.SignedAmount(), target, t.Date)
		if err != nil {
			return nil, err
		}
		out = append(out, Point{Date: t.Date, Value: v})
	}
	return out, nil
}

// StandRow is one account's current holdings.
type StandRow struct {
	AccountID int64         `json:"account_id"`
	Name      string        `json:"name"`
	Country   string        `json:"country"`
	Type      string        `json:"account_type"`
	Currency  core.Currency `json:"currency"`
	Total     float64       `json:"total"`
}

// Stand lists what every account holds today. Without a target currency the
// rows stay in their native currency.
type Stand struct {
	Target core.Currency `json:"target,omitempty"`
	On     core.Date     `json:"on"`
	Rows   []StandRow    `json:"rows"`
}

// Stand sums each account's initial balance and fund movements. With a
// target every term is converted at today's rate and one row is produced
// per account; with an empty target one row is produced per account and
// currency. Rows below StandThreshold are dropped.
func (a *Aggregator) Stand(book *ledger.Book, target core.Currency) (*Stand, error) {
	today := a.today()
	type key struct {
		account  int64
		currency core.Currency
	}
	totals := make(map[key]float64)
	accounts := make(map[int64]ledger.Account, len(book.Accounts))

	add := func(acc ledger.Account, t ledger.Transaction) error {
		k := key{account: acc.ID, currency: t.Currency}
		if target == "" {
			totals[k] += t.SignedAmount()
			return nil
		}
		v, err := a.convert(t, t.SignedAmount(), target, today)
		if err != nil {
			return err
		}
		k.currency = target
		totals[k] += v
		return nil
	}

	for _, acc := range book.Accounts {
		accounts[acc.ID] = acc
		if err := add(acc, acc.Opening()); err != nil {
			return nil, err
		}
	}
	for _, t := range book.FundMovements {
		acc, ok := accounts[t.AccountID]
		if !ok {
			return nil, fmt.Errorf("%s %d: %w %d", t.Kind, t.ID, ledger.ErrUnknownAccount, t.AccountID)
		}
		if err := add(acc, t); err != nil {
			return nil, err
		}
	}

	stand := &Stand{Target: target, On: today}
	for k, total := range totals {
		if total < StandThreshold {
			continue
		}
		acc := accounts[k.account]
		stand.Rows = append(stand.Rows, StandRow{
			AccountID: acc.ID,
			Name:      acc.Name,
			Country:   acc.Country,
			Type:      acc.Type,
			Currency:  k.currency,
			Total:     total,
		})
	}
	slices.SortFunc(stand.Rows, func(x, y StandRow) int {
		if target == "" {
			if c := cmp.Compare(x.Currency, y.Currency); c != 0 {
				return c
			}
		}
		if c := cmp.Compare(y.Total, x.Total); c != 0 {
			return c
		}
		return cmp.Compare(x.AccountID, y.AccountID)
	})

	a.logger.Debug("Built stand", log.NewFields().WithReport("stand", target.String(), len(stand.Rows)).ToSlice()...)
	return stand, nil
}

func (s *Stand) Table() Table {
	t := Table{Title: "Current fund stand", Currency: s.Target.String()}
	if s.Target == "" {
		t.Columns = []string{"NAME", "COUNTRY", "CURRENCY", "ACCOUNT TYPE", "TOTAL VALUE"}
		for _, r := range s.Rows {
			t.Rows = append(t.Rows, []string{r.Name, r.Country, r.Currency.String(), r.Type, amountCell(r.Total)})
		}
		return t
	}
	t.Columns = []string{"NAME", "COUNTRY", "ACCOUNT TYPE", s.Target.String()}
	for _, r := range s.Rows {
		t.Rows = append(t.Rows, []string{r.Name, r.Country, r.Type, amountCell(r.Total)})
	}
	return t
}

// Series is a dated value curve in one currency.
type Series struct {
	Title  string        `json:"title"`
	Target core.Currency `json:"target"`
	Label  string        `json:"-"`
	Points []Point       `json:"points"`
}

func (s *Series) Table() Table {
	t := Table{Title: s.Title, Currency: s.Target.String(), Columns: []string{s.Label, "value"}}
	for _, p := range s.Points {
		t.Rows = append(t.Rows, []string{p.Date.String(), amountCell(p.Value)})
	}
	return t
}

// Evolution returns the total funds held on every calendar day. Fund
// movements and account openings are converted at their own date, summed
// per day and accumulated. Days without activity keep the previous total.
// Activity before the window's start sets the opening level; the curve runs
// to the window's end, or to the last activity when the window is open.
func (a *Aggregator) Evolution(book *ledger.Book, target core.Currency, w Window) (*Series, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	txs := make([]ledger.Transaction, 0, len(book.Accounts)+len(book.FundMovements))
	for _, acc := range book.Accounts {
		txs = append(txs, acc.Opening())
	}
	txs = append(txs, book.FundMovements...)
	txs = slices.DeleteFunc(txs, func(t ledger.Transaction) bool {
		return !w.To.IsZero() && t.Date.After(w.To)
	})
	points, err := a.Normalize(txs, target)
	if err != nil {
		return nil, err
	}

	series := &Series{Title: "Evolution of total funds", Target: target, Label: "date"}
	daily := bucket(points, func(d core.Date) core.Date { return d })
	if len(daily) == 0 {
		return series, nil
	}

	first := daily[0].Date
	end := daily[len(daily)-1].Date
	if !w.To.IsZero() {
		end = w.To
	}
	if end.Before(w.From) {
		end = w.From
	}

	total := 0.0
	j := 0
	for day := first; !day.After(end); day = day.AddDays(1) {
		if j < len(daily) && daily[j].Date.Equal(day) {
			total += daily[j].Value
			j++
		}
		if w.Contains(day) {
			series.Points = append(series.Points, Point{Date: day, Value: total})
		}
	}
	return series, nil
}

// MonthlyExpenses returns the expense total of every month with activity,
// each expense converted at its own date. Values are positive.
func (a *Aggregator) MonthlyExpenses(book *ledger.Book, target core.Currency, w Window) (*Series, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	var points []Point
	for _, t := range book.Expenses {
		if !w.Contains(t.Date) {
			continue
		}
		v, err := a.convert(t, t.Amount, target, t.Date)
		if err != nil {
			return nil, err
		}
		points = append(points, Point{Date: t.Date, Value: v})
	}
	return &Series{
		Title:  "Monthly expenses",
		Target: target,
		Label:  "month",
		Points: bucket(points, core.Date.MonthStart),
	}, nil
}

// bucket sums points per key day and returns them in date order.
func bucket(points []Point, keyOf func(core.Date) core.Date) []Point {
	sums := make(map[core.Date]float64)
	for _, p := range points {
		sums[keyOf(p.Date)] += p.Value
	}
	days := slices.SortedFunc(maps.Keys(sums), func(x, y core.Date) int {
		return x.Compare(y.Time)
	})
	out := make([]Point, 0, len(days))
	for _, d := range days {
		out = append(out, Point{Date: d, Value: sums[d]})
	}
	return out
}

// TotalIncome sums the incomes dated inside w, each converted at its own
// date.
func (a *Aggregator) TotalIncome(book *ledger.Book, target core.Currency, w Window) (float64, error) {
	total := 0.0
	for _, t := range book.Incomes {
		if !w.Contains(t.Date) {
			continue
		}
		v, err := a.convert(t, t.Amount, target, t.Date)
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total, nil
}

// SummaryRow is the expense total of one category and subcategory.
// PctIncome is nil when the window has no income.
type SummaryRow struct {
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Value       float64  `json:"value"`
	PctExpenses float64  `json:"pct_total_expenses"`
	PctIncome   *float64 `json:"pct_total_income"`
}

// Summary breaks the expenses of a window down by category.
type Summary struct {
	Target   core.Currency `json:"target"`
	Window   Window        `json:"window"`
	Income   float64       `json:"income"`
	Expenses float64       `json:"expenses"`
	Rows     []SummaryRow  `json:"rows"`
	Total    SummaryRow    `json:"total"`
}

// Summary groups the expenses dated inside w by category and subcategory,
// converting each at its own date. Every group carries its share of the
// window's expenses and income; Total closes the table.
func (a *Aggregator) Summary(book *ledger.Book, target core.Currency, w Window) (*Summary, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	income, err := a.TotalIncome(book, target, w)
	if err != nil {
		return nil, err
	}

	type group struct{ category, subcategory string }
	sums := make(map[group]float64)
	for _, t := range book.Expenses {
		if !w.Contains(t.Date) {
			continue
		}
		v, err := a.convert(t, t.Amount, target, t.Date)
		if err != nil {
			return nil, err
		}
		sums[group{t.Category, t.Subcategory}] += v
	}

	expenses := 0.0
	for _, v := range sums {
		expenses += v
	}

	s := &Summary{Target: target, Window: w, Income: income, Expenses: expenses}
	for g, v := range sums {
		s.Rows = append(s.Rows, SummaryRow{
			Category:    g.category,
			Subcategory: g.subcategory,
			Value:       core.Round2(v),
			PctExpenses: share(v, expenses),
			PctIncome:   shareOf(v, income),
		})
	}
	slices.SortFunc(s.Rows, func(x, y SummaryRow) int {
		if c := strings.Compare(x.Category, y.Category); c != 0 {
			return c
		}
		return strings.Compare(x.Subcategory, y.Subcategory)
	})

	s.Total = SummaryRow{
		Category:    TotalLabel,
		Subcategory: TotalLabel,
		Value:       core.Round2(expenses),
		PctExpenses: 100,
		PctIncome:   shareOf(expenses, income),
	}
	return s, nil
}

// MonthlySummary is Summary over the calendar month containing month.
func (a *Aggregator) MonthlySummary(book *ledger.Book, month core.Date, target core.Currency) (*Summary, error) {
	return a.Summary(book, target, MonthWindow(month))
}

func share(v, total float64) float64 {
	if total == 0 {
		return 0
	}
	return core.Round2(v * 100 / total)
}

func shareOf(v, total float64) *float64 {
	if total == 0 {
		return nil
	}
	p := core.Round2(v * 100 / total)
	return &p
}

func (s *Summary) Table() Table {
	code := s.Target.String()
	t := Table{
		Title:    "Expense summary " + s.Window.String(),
		Currency: code,
		Columns:  []string{"Category", "Subcategory", code, "% Total Expenses", "% Total Income"},
	}
	for _, r := range append(slices.Clone(s.Rows), s.Total) {
		pct := r.PctExpenses
		t.Rows = append(t.Rows, []string{r.Category, r.Subcategory, amountCell(r.Value), percentCell(&pct), percentCell(r.PctIncome)})
	}
	return t
}
