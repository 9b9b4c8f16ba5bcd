package report

import (
	"strconv"

	"fxledger/internal/core"
)

// TotalLabel marks the synthetic total row of a summary.
const TotalLabel = "Total"

// Table is the rectangular output of every report: an ordered column list
// and rows of already formatted cells.
type Table struct {
	Title    string     `json:"title"`
	Currency string     `json:"currency,omitempty"`
	Columns  []string   `json:"columns"`
	Rows     [][]string `json:"rows"`
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

func amountCell(v float64) string { return core.FormatAmount(v) }

func percentCell(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
