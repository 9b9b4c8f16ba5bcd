// Package render turns report tables into CSV, Markdown and styled
// terminal output.
package render

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	md "github.com/nao1215/markdown"

	"fxledger/internal/core"
	"fxledger/internal/report"
)

type Format string

const (
	FormatMarkdown Format = "md"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatMarkdown:
		return FormatMarkdown, nil
	case FormatCSV, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want md, csv or json)", s)
}

// WriteCSV writes the header followed by every row.
func WriteCSV(w io.Writer, t report.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write %s rows: %w", t.Title, err)
	}
	return nil
}

// CSV returns the table as delimited text.
func CSV(t report.Table) (string, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, t); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Markdown renders the table under a level one heading. Text columns are
// left aligned and figures right aligned.
func Markdown(t report.Table) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	title := t.Title
	if t.Currency != "" {
		title = fmt.Sprintf("%s (%s)", title, currencyLabel(t.Currency))
	}
	doc.H1(title)

	if len(t.Rows) == 0 {
		doc.PlainText("No data.")
		return doc.String()
	}

	set := md.TableSet{
		Header:    t.Columns,
		Rows:      t.Rows,
		Alignment: make([]md.TableAlignment, len(t.Columns)),
	}
	for i := range t.Columns {
		set.Alignment[i] = md.AlignLeft
		if numeric(t.Rows, i) {
			set.Alignment[i] = md.AlignRight
		}
	}
	doc.Table(set)
	return doc.String()
}

// Terminal styles Markdown for the terminal, falling back to the raw text
// when styling fails.
func Terminal(markdown string) string {
	out, err := glamour.Render(markdown, "auto")
	if err != nil {
		return markdown
	}
	return out
}

func currencyLabel(code string) string {
	cur, err := core.ParseCurrency(code)
	if err != nil {
		return code
	}
	if sym := cur.Symbol(); sym != "" && sym != code {
		return code + " " + sym
	}
	return code
}

// numeric reports whether column i holds figures in every row, ignoring
// placeholders.
func numeric(rows [][]string, i int) bool {
	seen := false
	for _, row := range rows {
		if i >= len(row) {
			continue
		}
		cell := row[i]
		if cell == "" || cell == "-" {
			continue
		}
		if _, err := core.ParseAmount(cell); err != nil {
			return false
		}
		seen = true
	}
	return seen
}
