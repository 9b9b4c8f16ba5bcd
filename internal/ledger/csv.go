package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"fxledger/internal/core"
)

// Table file names inside a ledger directory.
const (
	IncomesFile  = "incomes.csv"
	ExpensesFile = "expenses.csv"
	FundsFile    = "funds.csv"
	AccountsFile = "accounts.csv"
)

// LoadBook reads the four ledger tables from dir concurrently. A missing
// table is read as empty; a malformed one fails the whole load.
func LoadBook(ctx context.Context, dir string) (*Book, error) {
	book := &Book{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		book.Incomes, err = loadTable(ctx, filepath.Join(dir, IncomesFile), func(r row) (Transaction, error) {
			return r.categorized(Income)
		})
		return err
	})
	g.Go(func() error {
		var err error
		book.Expenses, err = loadTable(ctx, filepath.Join(dir, ExpensesFile), func(r row) (Transaction, error) {
			return r.categorized(Expense)
		})
		return err
	})
	g.Go(func() error {
		var err error
		book.FundMovements, err = loadTable(ctx, filepath.Join(dir, FundsFile), row.fundMovement)
		return err
	})
	g.Go(func() error {
		var err error
		book.Accounts, err = loadTable(ctx, filepath.Join(dir, AccountsFile), row.account)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return book, nil
}

// row gives access to one CSV record by column name.
type row struct {
	columns map[string]int
	values  []string
}

func (r row) str(name string) string {
	i, ok := r.columns[name]
	if !ok || i >= len(r.values) {
		return ""
	}
	return strings.TrimSpace(r.values[i])
}

func (r row) id(name string) (int64, error) {
	s := r.str(name)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: invalid id %q", name, s)
	}
	return v, nil
}

func (r row) date(name string) (core.Date, error) {
	d, err := core.ParseDate(r.str(name))
	if err != nil {
		return core.Date{}, fmt.Errorf("column %s: %w", name, err)
	}
	return d, nil
}

func (r row) amount(name string) (float64, error) {
	v, err := core.ParseAmount(r.str(name))
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", name, err)
	}
	return v, nil
}

func (r row) currency(name string) (core.Currency, error) {
	c, err := core.ParseCurrency(r.str(name))
	if err != nil {
		return "", fmt.Errorf("column %s: %w", name, err)
	}
	return c, nil
}

func (r row) transaction(kind Kind) (Transaction, error) {
	t := Transaction{Kind: kind, Description: r.str("description")}
	var err error
	if t.ID, err = r.id("id"); err != nil {
		return t, err
	}
	if t.Date, err = r.date("date"); err != nil {
		return t, err
	}
	if t.Amount, err = r.amount("value"); err != nil {
		return t, err
	}
	if t.Currency, err = r.currency("currency"); err != nil {
		return t, err
	}
	if t.PartyID, err = r.id("party_id"); err != nil {
		return t, err
	}
	return t, nil
}

func (r row) categorized(kind Kind) (Transaction, error) {
	t, err := r.transaction(kind)
	if err != nil {
		return t, err
	}
	t.Category = r.str("category")
	t.Subcategory = r.str("subcategory")
	if t.EntityID, err = r.id("entity_id"); err != nil {
		return t, err
	}
	return t, t.Validate()
}

func (r row) fundMovement() (Transaction, error) {
	kind, err := ParseKind(r.str("type"))
	if err != nil {
		return Transaction{}, err
	}
	if !kind.IsFundMovement() {
		return Transaction{}, fmt.Errorf("%w %q for a fund movement", ErrUnknownKind, kind)
	}
	t, err := r.transaction(kind)
	if err != nil {
		return t, err
	}
	if t.AccountID, err = r.id("account_id"); err != nil {
		return t, err
	}
	return t, t.Validate()
}

func (r row) account() (Account, error) {
	a := Account{
		Name:    r.str("name"),
		Country: r.str("country"),
		Type:    r.str("type"),
	}
	var err error
	if a.ID, err = r.id("id"); err != nil {
		return a, err
	}
	if a.Currency, err = r.currency("currency"); err != nil {
		return a, err
	}
	if a.InitialBalance, err = r.amount("initial_balance"); err != nil {
		return a, err
	}
	if a.CreatedOn, err = r.date("creation_date"); err != nil {
		return a, err
	}
	return a, a.Validate()
}

func loadTable[T any](ctx context.Context, path string, parse func(row) (T, error)) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", path, err)
	}
	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var out []T
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		v, err := parse(row{columns: columns, values: rec})
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, v)
	}
}
