// Package ledger holds the read-only bookkeeping records the reports
// aggregate: incomes, expenses, fund movements and accounts.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"fxledger/internal/core"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
	Credit  Kind = "credit"
	Debit   Kind = "debit"
)

// BalanceTolerance is the largest per-currency residual a balanced party
// may carry.
const BalanceTolerance = 0.01

type (
	// Kind says which table a transaction belongs to and fixes its sign.
	Kind string

	// Transaction is one ledger row. Amount is recorded as a magnitude;
	// SignedAmount applies the sign of the kind.
	Transaction struct {
		ID          int64
		Kind        Kind
		Date        core.Date
		Amount      float64
		Currency    core.Currency
		Category    string
		Subcategory string
		Description string
		EntityID    int64
		AccountID   int64 // fund movements only
		PartyID     int64
	}

	// Account is a place funds are held.
	Account struct {
		ID             int64
		Name           string
		Country        string
		Currency       core.Currency
		Type           string
		InitialBalance float64
		CreatedOn      core.Date
	}

	// Party groups the transactions of one real-world event, e.g. a
	// grocery bill and the card payment that settled it.
	Party struct {
		ID           int64
		Transactions []Transaction
	}

	// Book is the full set of ledger tables.
	Book struct {
		Incomes       []Transaction
		Expenses      []Transaction
		FundMovements []Transaction
		Accounts      []Account
	}
)

var (
	ErrUnknownKind     = errors.New("unknown transaction kind")
	ErrMissingAccount  = errors.New("fund movement without account")
	ErrUnknownAccount  = errors.New("unknown account")
	ErrEmptyCategory   = errors.New("empty category")
	ErrUnbalancedParty = errors.New("unbalanced party")
)

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case Income, Expense, Credit, Debit:
		return k, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownKind, s)
}

// IsFundMovement reports whether the transaction moves money in or out of
// an account.
func (k Kind) IsFundMovement() bool { return k == Credit || k == Debit }

// SignedAmount is positive for incomes and credits and negative for
// expenses and debits.
func (t Transaction) SignedAmount() float64 {
	switch t.Kind {
	case Expense, Debit:
		return -t.Amount
	default:
		return t.Amount
	}
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := t.Currency.Validate(); err != nil {
		return err
	}
	if math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return core.ErrInvalidAmount
	}
	switch t.Kind {
	case Income, Expense:
		if t.Amount < 0 {
			return core.ErrInvalidAmount
		}
		if strings.TrimSpace(t.Category) == "" {
			return ErrEmptyCategory
		}
	case Credit, Debit:
		if t.Amount < 0 {
			return core.ErrInvalidAmount
		}
		if t.AccountID == 0 {
			return ErrMissingAccount
		}
	default:
		return fmt.Errorf("%w %q", ErrUnknownKind, t.Kind)
	}
	return nil
}

// Opening returns the initial balance as a credit dated at the account's
// creation.
func (a Account) Opening() Transaction {
	return Transaction{
		Kind:        Credit,
		Date:        a.CreatedOn,
		Amount:      a.InitialBalance,
		Currency:    a.Currency,
		Description: "initial balance",
		AccountID:   a.ID,
	}
}

func (a Account) Validate() error {
	if err := a.CreatedOn.Validate(); err != nil {
		return fmt.Errorf("account %d creation date: %w", a.ID, err)
	}
	if err := a.Currency.Validate(); err != nil {
		return fmt.Errorf("account %d: %w", a.ID, err)
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("account %d: empty name", a.ID)
	}
	return nil
}

// Balance returns, per currency, the income and expense total minus the
// fund movement total.
func (p Party) Balance() map[core.Currency]float64 {
	out := make(map[core.Currency]float64)
	for _, t := range p.Transactions {
		if t.Kind.IsFundMovement() {
			out[t.Currency] -= t.SignedAmount()
		} else {
			out[t.Currency] += t.SignedAmount()
		}
	}
	return out
}

// IsBalanced reports whether every currency nets to less than BalanceTolerance.
func (p Party) IsBalanced() bool {
	for _, v := range p.Balance() {
		if math.Abs(v) >= BalanceTolerance {
			return false
		}
	}
	return true
}

// Account returns the account with id.
func (b *Book) Account(id int64) (Account, bool) {
	for _, a := range b.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}

// Parties groups every transaction carrying a party id, ordered by id.
func (b *Book) Parties() []Party {
	byID := make(map[int64][]Transaction)
	for _, table := range [][]Transaction{b.Incomes, b.Expenses, b.FundMovements} {
		for _, t := range table {
			if t.PartyID == 0 {
				continue
			}
			byID[t.PartyID] = append(byID[t.PartyID], t)
		}
	}
	parties := make([]Party, 0, len(byID))
	for id, txs := range byID {
		parties = append(parties, Party{ID: id, Transactions: txs})
	}
	slices.SortFunc(parties, func(a, b Party) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return parties
}

// Validate checks every row and that each party balances. All problems
// are reported together.
func (b *Book) Validate() error {
	var errs []error
	for _, a := range b.Accounts {
		if err := a.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, table := range [][]Transaction{b.Incomes, b.Expenses, b.FundMovements} {
		for _, t := range table {
			if err := t.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("%s %d: %w", t.Kind, t.ID, err))
				continue
			}
			if t.Kind.IsFundMovement() {
				if _, ok := b.Account(t.AccountID); !ok {
					errs = append(errs, fmt.Errorf("%s %d: %w %d", t.Kind, t.ID, ErrUnknownAccount, t.AccountID))
				}
			}
		}
	}
	for _, p := range b.Parties() {
		if !p.IsBalanced() {
			errs = append(errs, fmt.Errorf("%w %d: %v", ErrUnbalancedParty, p.ID, p.Balance()))
		}
	}
	return errors.Join(errs...)
}
