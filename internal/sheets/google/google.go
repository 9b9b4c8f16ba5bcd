package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fxledger/internal/config"
	"fxledger/internal/core"
	"fxledger/internal/log"
	"fxledger/internal/report"
	ports "fxledger/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	logger        *log.Logger
}

// Ensure interface conformance
var _ ports.TableStore = (*Client)(nil)

// Credentials holds a service account key, inline or as a file path.
type Credentials struct {
	JSON string
	File string
}

// NewFromConfig creates a Sheets client for the configured spreadsheet
// using Service Account credentials.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Client, error) {
	creds := Credentials{JSON: cfg.GoogleServiceAccountJSON, File: cfg.GoogleServiceAccountFile}
	return New(ctx, cfg.GoogleSpreadsheetID, creds, logger)
}

// New creates a Sheets client. Extra options are passed to the Sheets
// service and take precedence over the credentials.
func New(ctx context.Context, spreadsheetID string, creds Credentials, logger *log.Logger, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	svc, err := newSheetsService(ctx, creds, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, logger: logger}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, creds Credentials, logger *log.Logger, extra ...goption.ClientOption) (*gsheet.Service, error) {
	opts := []goption.ClientOption{goption.WithScopes(gsheet.SpreadsheetsScope)}

	if len(extra) == 0 {
		credentialsJSON, err := creds.load()
		if err != nil {
			return nil, err
		}
		logger.InfoContext(ctx, "Creating Google Sheets service with Service Account",
			"credentials_size", len(credentialsJSON),
			"scope", gsheet.SpreadsheetsScope)
		opts = append(opts, goption.WithCredentialsJSON(credentialsJSON))
	}

	service, err := gsheet.NewService(ctx, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func (c Credentials) load() ([]byte, error) {
	switch {
	case strings.TrimSpace(c.JSON) != "":
		return []byte(c.JSON), nil
	case strings.TrimSpace(c.File) != "":
		b, err := os.ReadFile(strings.TrimSpace(c.File))
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// WriteTable creates the sheet when it does not exist, clears it and
// writes the header and rows from A1. Figures are sent as numbers.
func (c *Client) WriteTable(ctx context.Context, sheet string, t report.Table) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	sheet = strings.TrimSpace(sheet)
	if sheet == "" {
		return "", errors.New("empty sheet name")
	}
	if err := c.ensureSheet(ctx, sheet); err != nil {
		return "", err
	}

	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, a1(sheet, ""), &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear sheet %s: %w", sheet, err)
	}

	vr := &gsheet.ValueRange{Values: toValues(t)}
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, a1(sheet, "A1"), vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update sheet %s: %w", sheet, err)
	}

	c.logger.InfoContext(ctx, "Exported report",
		log.FieldSheet, sheet,
		log.FieldReport, t.Title,
		log.FieldRows, len(t.Rows))
	return resp.UpdatedRange, nil
}

// ReadTable reads a sheet back, treating the first row as the header.
func (c *Client) ReadTable(ctx context.Context, sheet string) (report.Table, error) {
	if c.svc == nil {
		return report.Table{}, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, a1(sheet, "")).Context(ctx).Do()
	if err != nil {
		return report.Table{}, fmt.Errorf("read %s: %w", sheet, err)
	}
	return fromValues(sheet, resp.Values), nil
}

func (c *Client) ensureSheet(ctx context.Context, sheet string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet %s: %w", c.spreadsheetID, err)
	}
	if slices.ContainsFunc(ss.Sheets, func(s *gsheet.Sheet) bool {
		return s.Properties != nil && s.Properties.Title == sheet
	}) {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: sheet}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", sheet, err)
	}
	c.logger.InfoContext(ctx, "Created sheet", log.FieldSheet, sheet)
	return nil
}

// a1 builds an A1 range, quoting the sheet name. An empty cell range means
// the whole sheet.
func a1(sheet, cells string) string {
	quoted := "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	if cells == "" {
		return quoted
	}
	return quoted + "!" + cells
}

func toValues(t report.Table) [][]any {
	values := make([][]any, 0, len(t.Rows)+1)
	header := make([]any, len(t.Columns))
	for i, col := range t.Columns {
		header[i] = col
	}
	values = append(values, header)
	for _, row := range t.Rows {
		cells := make([]any, len(row))
		for i, cell := range row {
			cells[i] = cellValue(cell)
		}
		values = append(values, cells)
	}
	return values
}

// cellValue sends plain figures as numbers and everything else verbatim.
func cellValue(cell string) any {
	if strings.ContainsAny(cell, ", ") {
		return cell
	}
	if v, err := core.ParseAmount(cell); err == nil {
		return v
	}
	return cell
}

func fromValues(title string, values [][]any) report.Table {
	t := report.Table{Title: title}
	if len(values) == 0 {
		return t
	}
	t.Columns = toStrings(values[0])
	for _, row := range values[1:] {
		t.Rows = append(t.Rows, toStrings(row))
	}
	return t
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
