package sheets

import (
	"context"
	"fmt"

	"fxledger/internal/report"
)

// Ports for outbound adapters.
type (
	// TableWriter replaces the content of a named sheet with a report table
	// and returns the range it wrote.
	TableWriter interface {
		WriteTable(ctx context.Context, sheet string, t report.Table) (rangeRef string, err error)
	}

	// TableReader returns what was last written to a sheet.
	TableReader interface {
		ReadTable(ctx context.Context, sheet string) (report.Table, error)
	}

	// TableStore is an exporter that can read its sheets back.
	TableStore interface {
		TableWriter
		TableReader
	}
)

// MismatchError reports a sheet whose read-back shape differs from the
// table written to it.
type MismatchError struct {
	Sheet             string
	WantRows, GotRows int
	WantCols, GotCols int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("sheet %q holds %d rows x %d columns, wrote %d x %d",
		e.Sheet, e.GotRows, e.GotCols, e.WantRows, e.WantCols)
}

// Export writes t to sheet and reads it back, failing with a
// *MismatchError when the sheet does not hold the same number of rows and
// columns. Cell text is not compared since the spreadsheet may reformat
// numbers.
func Export(ctx context.Context, store TableStore, sheet string, t report.Table) (string, error) {
	ref, err := store.WriteTable(ctx, sheet, t)
	if err != nil {
		return "", fmt.Errorf("export to sheet %q: %w", sheet, err)
	}
	back, err := store.ReadTable(ctx, sheet)
	if err != nil {
		return "", fmt.Errorf("read back sheet %q: %w", sheet, err)
	}
	if back.Len() != t.Len() || len(back.Columns) != len(t.Columns) {
		return "", &MismatchError{
			Sheet:    sheet,
			WantRows: t.Len(), GotRows: back.Len(),
			WantCols: len(t.Columns), GotCols: len(back.Columns),
		}
	}
	return ref, nil
}

// SheetName returns the sheet a table is exported to: name when given,
// otherwise the table title followed by its currency.
func SheetName(name string, t report.Table) string {
	if name != "" {
		return name
	}
	if t.Currency == "" {
		return t.Title
	}
	return t.Title + " " + t.Currency
}
