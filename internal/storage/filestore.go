package storage

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

	"fxledger/internal/core"
	"fxledger/internal/fx"
	"fxledger/internal/log"
)

var fileHeader = []string{"date", "value"}

// FileStore keeps one two-column CSV per pair, named
// exchange_rate_<KEY>.csv inside dir.
type FileStore struct {
	dir    string
	logger *log.Logger
}

var _ fx.SeriesStore = (*FileStore)(nil)

func NewFileStore(dir string, logger *log.Logger) *FileStore {
	if logger == nil {
		logger = log.Default()
	}
	return &FileStore{dir: dir, logger: logger.WithComponent(log.ComponentStorage)}
}

// Path returns the file backing pair.
func (s *FileStore) Path(pair fx.Pair) string {
	return filepath.Join(s.dir, "exchange_rate_"+pair.Key()+".csv")
}

// Load implements fx.SeriesStore.
func (s *FileStore) Load(_ context.Context, pair fx.Pair) (*fx.RawSeries, error) {
	path := s.Path(pair)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, fx.ErrSeriesNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	obs, err := readObservations(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, fx.ErrCorruptSeries, err)
	}
	raw, err := fx.NewRawSeries(obs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, fx.ErrCorruptSeries, err)
	}
	return raw, nil
}

func readObservations(r io.Reader) ([]fx.Observation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(fileHeader)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header[0] != fileHeader[0] || header[1] != fileHeader[1] {
		return nil, fmt.Errorf("unexpected header %v", header)
	}

	var obs []fx.Observation
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return obs, nil
		}
		if err != nil {
			return nil, err
		}
		day, err := core.ParseDate(rec[0])
		if err != nil {
			return nil, err
		}
		rate, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse rate %q: %w", rec[1], err)
		}
		obs = append(obs, fx.Observation{Date: day, Rate: rate})
	}
}

// Save implements fx.SeriesStore. An empty series leaves the file
// untouched. The file is replaced atomically.
func (s *FileStore) Save(ctx context.Context, pair fx.Pair, series *fx.RawSeries) error {
	if series == nil || series.Len() == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	path := s.Path(pair)
	tmp, err := os.CreateTemp(s.dir, ".exchange_rate_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	_ = w.Write(fileHeader)
	for _, o := range series.Observations() {
		_ = w.Write([]string{o.Date.String(), strconv.FormatFloat(o.Rate, 'g', -1, 64)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}

	s.logger.DebugContext(ctx, "Rate series written",
		log.FieldPair, pair.Key(),
		log.FieldObservations, series.Len(),
		log.FieldStore, path)
	return nil
}
