package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fxledger/internal/log"
	"fxledger/internal/report"
	"fxledger/internal/sheets"
)

type fakeSheets struct {
	mu      sync.Mutex
	titles  []string
	calls   []string
	written *gsheet.ValueRange
	// dropRows trims the read-back to simulate a partial write.
	dropRows int
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/values/"):
		vr := gsheet.ValueRange{}
		if f.written != nil {
			vr.Values = f.written.Values[:len(f.written.Values)-f.dropRows]
		}
		json.NewEncoder(w).Encode(vr)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/spreadsheets/sheet-id"):
		ss := gsheet.Spreadsheet{}
		for _, title := range f.titles {
			ss.Sheets = append(ss.Sheets, &gsheet.Sheet{Properties: &gsheet.SheetProperties{Title: title}})
		}
		json.NewEncoder(w).Encode(ss)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.titles = append(f.titles, req.Requests[0].AddSheet.Properties.Title)
		w.Write([]byte(`{}`))
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":clear"):
		w.Write([]byte(`{}`))
	case r.Method == http.MethodPut:
		var vr gsheet.ValueRange
		json.NewDecoder(r.Body).Decode(&vr)
		f.written = &vr
		json.NewEncoder(w).Encode(gsheet.UpdateValuesResponse{UpdatedRange: "'Summary EUR'!A1:C3"})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), "sheet-id", Credentials{}, log.Discard(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

var summary = report.Table{
	Title:    "Summary",
	Currency: "EUR",
	Columns:  []string{"Category", "EUR", "% Total Income"},
	Rows: [][]string{
		{"Food", "100.00", "-"},
		{"Total", "100.00", "-"},
	},
}

func TestWriteTableCreatesMissingSheet(t *testing.T) {
	fake := &fakeSheets{titles: []string{"Sheet1"}}
	c := newTestClient(t, fake)

	ref, err := c.WriteTable(context.Background(), "Summary EUR", summary)
	require.NoError(t, err)
	assert.Equal(t, "'Summary EUR'!A1:C3", ref)

	require.Len(t, fake.calls, 4, "expected get, add, clear and update calls")
	assert.True(t, strings.HasSuffix(fake.calls[1], ":batchUpdate"), "expected sheet creation, got %s", fake.calls[1])
	assert.Equal(t, "Summary EUR", fake.titles[len(fake.titles)-1])

	require.Len(t, fake.written.Values, 3, "header and 2 rows")
	assert.Equal(t, 100.0, fake.written.Values[1][1], "figures are sent as numbers")
	assert.Equal(t, "-", fake.written.Values[1][2], "placeholders stay text")
}

func TestWriteTableReusesExistingSheet(t *testing.T) {
	fake := &fakeSheets{titles: []string{"Summary EUR"}}
	c := newTestClient(t, fake)

	_, err := c.WriteTable(context.Background(), "Summary EUR", summary)
	require.NoError(t, err)
	for _, call := range fake.calls {
		assert.False(t, strings.HasSuffix(call, ":batchUpdate"), "unexpected sheet creation: %v", fake.calls)
	}
}

func TestWriteTableRejectsEmptySheetName(t *testing.T) {
	c := &Client{svc: &gsheet.Service{}, spreadsheetID: "sheet-id", logger: log.Discard()}
	_, err := c.WriteTable(context.Background(), " ", summary)
	assert.Error(t, err)
}

func TestReadTableReturnsWrittenShape(t *testing.T) {
	fake := &fakeSheets{titles: []string{"Summary EUR"}}
	c := newTestClient(t, fake)

	_, err := c.WriteTable(context.Background(), "Summary EUR", summary)
	require.NoError(t, err)

	got, err := c.ReadTable(context.Background(), "Summary EUR")
	require.NoError(t, err)
	assert.Equal(t, "Summary EUR", got.Title)
	assert.Equal(t, summary.Columns, got.Columns)
	require.Equal(t, summary.Len(), got.Len())
	assert.Equal(t, []string{"Food", "100", "-"}, got.Rows[0])
}

func TestExportVerifiesReadBack(t *testing.T) {
	t.Run("matching sheet", func(t *testing.T) {
		c := newTestClient(t, &fakeSheets{titles: []string{"Summary EUR"}})
		ref, err := sheets.Export(context.Background(), c, "Summary EUR", summary)
		require.NoError(t, err)
		assert.Equal(t, "'Summary EUR'!A1:C3", ref)
	})

	t.Run("short sheet", func(t *testing.T) {
		c := newTestClient(t, &fakeSheets{titles: []string{"Summary EUR"}, dropRows: 1})
		_, err := sheets.Export(context.Background(), c, "Summary EUR", summary)

		var mismatch *sheets.MismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, 2, mismatch.WantRows)
		assert.Equal(t, 1, mismatch.GotRows)
	})
}

func TestNewRequiresSpreadsheetAndCredentials(t *testing.T) {
	_, err := New(context.Background(), "", Credentials{}, log.Discard())
	assert.EqualError(t, err, "missing GOOGLE_SPREADSHEET_ID")

	_, err = New(context.Background(), "sheet-id", Credentials{}, log.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing service account credentials")

	_, err = New(context.Background(), "sheet-id", Credentials{File: "/does/not/exist.json"}, log.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read service account file")
}

func TestA1(t *testing.T) {
	tests := []struct {
		sheet, cells, want string
	}{
		{"Summary", "A1", "'Summary'!A1"},
		{"Jan's summary", "", "'Jan''s summary'"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, a1(tt.sheet, tt.cells), "a1(%q, %q)", tt.sheet, tt.cells)
	}
}

func TestCellValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"12.50", 12.5},
		{"-3", -3.0},
		{"2024-01-02", "2024-01-02"},
		{"Groceries, weekly", "Groceries, weekly"},
		{"-", "-"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cellValue(tt.in), "cellValue(%q)", tt.in)
	}
}

func TestFromValues(t *testing.T) {
	got := fromValues("Summary", [][]any{{"Category", "EUR"}, {"Food", 100.5}})
	assert.Equal(t, []string{"Category", "EUR"}, got.Columns)
	assert.Equal(t, [][]string{{"Food", "100.5"}}, got.Rows)
}
