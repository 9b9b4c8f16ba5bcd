package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"fxledger/internal/core"
	"fxledger/internal/fx"
	"fxledger/internal/log"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores raw rate series in a single SQLite table keyed
// by pair and day.
type SQLiteRepository struct {
	db     *sql.DB
	logger *log.Logger
}

var _ fx.SeriesStore = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:     db,
		logger: logger.WithComponent(log.ComponentStorage),
	}
	repo.logger.Info("SQLite rate store ready", "db_path", dbPath, "schema_version", version)

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Load implements fx.SeriesStore.
func (r *SQLiteRepository) Load(ctx context.Context, pair fx.Pair) (*fx.RawSeries, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT day, rate FROM rate_observations WHERE pair = ? ORDER BY day`, pair.Key())
	if err != nil {
		return nil, fmt.Errorf("query %s observations: %w", pair.Key(), err)
	}
	defer rows.Close()

	var obs []fx.Observation
	for rows.Next() {
		var day string
		var rate float64
		if err := rows.Scan(&day, &rate); err != nil {
			return nil, fmt.Errorf("scan %s observation: %w", pair.Key(), err)
		}
		d, err := core.ParseDate(day)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %v", pair.Key(), fx.ErrCorruptSeries, err)
		}
		obs = append(obs, fx.Observation{Date: d, Rate: rate})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s observations: %w", pair.Key(), err)
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("%s: %w", pair.Key(), fx.ErrSeriesNotFound)
	}

	raw, err := fx.NewRawSeries(obs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", pair.Key(), fx.ErrCorruptSeries, err)
	}
	return raw, nil
}

// Save implements fx.SeriesStore. Days already stored keep their rate.
func (r *SQLiteRepository) Save(ctx context.Context, pair fx.Pair, series *fx.RawSeries) error {
	if series == nil || series.Len() == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO rate_observations (pair, day, rate) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := int64(0)
	for _, o := range series.Observations() {
		res, err := stmt.ExecContext(ctx, pair.Key(), o.Date.String(), o.Rate)
		if err != nil {
			return fmt.Errorf("insert %s %s: %w", pair.Key(), o.Date, err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s observations: %w", pair.Key(), err)
	}

	r.logger.InfoContext(ctx, "Rate series saved to SQLite",
		log.FieldPair, pair.Key(),
		log.FieldObservations, series.Len(),
		"inserted", inserted)
	return nil
}
