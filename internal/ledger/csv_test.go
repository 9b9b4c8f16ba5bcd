package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxledger/internal/core"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadBook(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, AccountsFile, "id,name,country,currency,type,initial_balance,creation_date\n"+
		"1,Checking,DE,EUR,Bank,100,2024-01-01\n"+
		"2,Konto,CH,chf,Bank,\"1,5\",2024-01-10\n")
	writeFile(t, dir, IncomesFile, "id,date,value,currency,category,subcategory,description,entity_id,party_id\n"+
		"1,2024-02-01,1000,EUR,Salary,Base,February,3,10\n")
	writeFile(t, dir, ExpensesFile, "date,id,value,currency,category,subcategory,description,entity_id,party_id\n"+
		"2024-02-03,1,50.5,EUR,Food,Groceries,,,11\n")
	writeFile(t, dir, FundsFile, "id,type,date,value,currency,account_id,party_id\n"+
		"1,credit,2024-02-01,1000,EUR,1,10\n"+
		"2,debit,2024-02-03,50.5,EUR,1,11\n")

	book, err := LoadBook(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, book.Accounts, 2)
	assert.Equal(t, core.CHF, book.Accounts[1].Currency)
	assert.Equal(t, 1.5, book.Accounts[1].InitialBalance)

	require.Len(t, book.Incomes, 1)
	assert.Equal(t, "Salary", book.Incomes[0].Category)
	assert.Equal(t, int64(3), book.Incomes[0].EntityID)

	require.Len(t, book.Expenses, 1)
	assert.Equal(t, -50.5, book.Expenses[0].SignedAmount(), "columns are matched by name")

	require.Len(t, book.FundMovements, 2)
	assert.Equal(t, Debit, book.FundMovements[1].Kind)
	assert.Equal(t, int64(1), book.FundMovements[1].AccountID)

	require.NoError(t, book.Validate())
}

func TestLoadBookMissingTablesAreEmpty(t *testing.T) {
	book, err := LoadBook(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, book.Accounts)
	assert.Empty(t, book.FundMovements)
}

func TestLoadBookReportsLine(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, FundsFile, "id,type,date,value,currency,account_id,party_id\n"+
		"1,credit,2024-02-01,1000,EUR,1,\n"+
		"2,transfer,2024-02-03,50,EUR,1,\n")

	_, err := LoadBook(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "funds.csv:3")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestLoadBookRejectsUnsupportedCurrency(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ExpensesFile, "id,date,value,currency,category\n1,2024-02-03,5,USD,Food\n")

	_, err := LoadBook(context.Background(), dir)
	assert.ErrorIs(t, err, core.ErrUnknownCurrency)
}
