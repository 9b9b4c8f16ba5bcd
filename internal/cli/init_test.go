package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxledger/internal/fx"
	"fxledger/internal/log"
	"fxledger/internal/report"
	"fxledger/internal/sheets/memory"
)

func setEnv(t *testing.T, dir string) {
	t.Helper()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("RATE_STORE", "csv")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("AMQP_URL", "")
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")
}

func TestBootstrap(t *testing.T) {
	dir := t.TempDir()
	setEnv(t, dir)

	cfg, logger, err := Bootstrap()
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestBootstrapInvalidConfig(t *testing.T) {
	setEnv(t, t.TempDir())
	t.Setenv("RATE_STORE", "postgres")

	_, logger, err := Bootstrap()
	require.Error(t, err)
	assert.NotNil(t, logger, "a logger is returned to report the error")
}

func TestOpenRatesWithoutStoredSeries(t *testing.T) {
	setEnv(t, t.TempDir())
	cfg, err := LoadAndValidateConfig()
	require.NoError(t, err)

	rates, err := OpenRates(context.Background(), cfg, log.Discard())
	require.NoError(t, err)
	defer rates.Close()
	assert.Nil(t, rates.Publisher)

	_, err = rates.Service.Load(context.Background())
	var loadErr *fx.CacheLoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestLoadBook(t *testing.T) {
	dir := t.TempDir()
	setEnv(t, dir)
	cfg, err := LoadAndValidateConfig()
	require.NoError(t, err)

	book, err := LoadBook(context.Background(), cfg)
	require.NoError(t, err, "missing tables read as empty")
	assert.Empty(t, book.Accounts)

	accounts := "id,name,currency,initial_balance,creation_date\nx,Cash,EUR,10,2024-01-01\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "accounts.csv"), []byte(accounts), 0o644))

	_, err = LoadBook(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), dir)
}

func TestOpenSheetsFallsBackToMemory(t *testing.T) {
	setEnv(t, t.TempDir())
	cfg, err := LoadAndValidateConfig()
	require.NoError(t, err)

	w, err := OpenSheets(context.Background(), cfg, log.Discard())
	require.NoError(t, err)
	require.IsType(t, &memory.Store{}, w)

	_, err = w.WriteTable(context.Background(), "stand", report.Table{Title: "Stand", Columns: []string{"Account"}})
	assert.NoError(t, err)
}
