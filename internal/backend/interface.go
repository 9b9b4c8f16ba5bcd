package backend

import (
	"context"

	"fxledger/internal/fx"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the rate store and optional cleanup function
type BackendResult struct {
	Store   fx.SeriesStore
	Cleanup CleanupFunc
}

// Factory creates rate stores based on configuration
type Factory interface {
	// CreateBackend creates a rate store based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for rate store creation
type Config struct {
	Type BackendType

	// CSV specific
	DataDirectory string

	// SQLite specific
	SQLiteDBPath string
}

// BackendType represents the type of rate store
type BackendType string

const (
	CSVBackend    BackendType = "csv"
	SQLiteBackend BackendType = "sqlite"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case CSVBackend, SQLiteBackend:
		return true
	default:
		return false
	}
}
