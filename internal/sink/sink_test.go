package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func TestA1(t *testing.T) {
	assert.Equal(t, "Hoja1!R10", A1("Hoja1", "R10"))
	assert.Equal(t, "R10", A1("", "R10"))
	assert.Equal(t, "Año_2023!C5", A1("Año_2023", "C5"))
	assert.Equal(t, "'Hoja 1'!C5", A1("Hoja 1", "C5"))
	assert.Equal(t, "'Balance!'!C5", A1("Balance!", "C5"))
	assert.Equal(t, "'Balance-2023'!C5", A1("Balance-2023", "C5"))
	assert.Equal(t, "'Hoja d''Or'!C5", A1("Hoja d'Or", "C5"))
}

func TestWriteError(t *testing.T) {
	inner := errors.New("quota exceeded")
	err := &WriteError{Sheet: "Hoja1", Cell: "C5", Err: inner}
	assert.Equal(t, "write to Hoja1!C5 failed: quota exceeded", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "write to Hoja1 failed: quota exceeded", (&WriteError{Sheet: "Hoja1", Err: inner}).Error())
}

func TestWorkbook_WriteAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balance.xlsx")
	ctx := context.Background()

	wb, err := OpenWorkbook(path)
	require.NoError(t, err)
	require.NoError(t, wb.WriteCell(ctx, "Datos", "R10", "B12345678"))
	require.NoError(t, wb.WriteCells(ctx, "Datos", []Cell{
		{Ref: "C5", Value: 1234.56},
		{Ref: "D5", Value: "No encontrado"},
	}))
	require.NoError(t, wb.Close())

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetCellValue("Datos", "R10")
	require.NoError(t, err)
	assert.Equal(t, "B12345678", got)

	got, err = f.GetCellValue("Datos", "C5")
	require.NoError(t, err)
	assert.Equal(t, "1234.56", got)

	got, err = f.GetCellValue("Datos", "D5")
	require.NoError(t, err)
	assert.Equal(t, "No encontrado", got)

	// Reopening keeps existing content
	wb, err = OpenWorkbook(path)
	require.NoError(t, err)
	require.NoError(t, wb.WriteCell(ctx, "Datos", "E1", "nuevo"))
	require.NoError(t, wb.Close())

	f2, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f2.Close()
	got, err = f2.GetCellValue("Datos", "R10")
	require.NoError(t, err)
	assert.Equal(t, "B12345678", got)
}

func TestWorkbook_InvalidCell(t *testing.T) {
	wb, err := OpenWorkbook(filepath.Join(t.TempDir(), "x.xlsx"))
	require.NoError(t, err)

	err = wb.WriteCell(context.Background(), "Hoja1", "not-a-cell", 1)
	require.Error(t, err)
	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, "not-a-cell", we.Cell)

	_, err = OpenWorkbook("")
	assert.Error(t, err)
}

func TestWorkbook_CloseReportsSaveFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "balance.xlsx")
	wb, err := OpenWorkbook(path)
	require.NoError(t, err)
	require.NoError(t, wb.WriteCell(context.Background(), "Hoja1", "A1", 1))

	err = wb.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save workbook")
	assert.NoFileExists(t, path)
}

func TestWorkbook_CanceledContext(t *testing.T) {
	wb, err := OpenWorkbook(filepath.Join(t.TempDir(), "x.xlsx"))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, wb.WriteCell(ctx, "Hoja1", "A1", 1), context.Canceled)
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	j := NewJSON(&buf)
	ctx := context.Background()

	require.NoError(t, j.WriteCell(ctx, "Hoja1", "R10", "B12345678"))
	require.NoError(t, j.WriteCells(ctx, "Hoja1", []Cell{{Ref: "C5", Value: 12.5}}))
	require.Len(t, j.Writes(), 2)
	require.NoError(t, j.Close())

	assert.JSONEq(t, `{"writes": [
		{"sheet": "Hoja1", "cell": "R10", "value": "B12345678"},
		{"sheet": "Hoja1", "cell": "C5", "value": 12.5}
	]}`, buf.String())
}

type recordedRequest struct {
	method string
	path   string
	query  string
	body   map[string]any
}

func newSheetsServer(t *testing.T, status int) (*Sheets, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var recorded []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(b, &body)

		mu.Lock()
		recorded = append(recorded, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			body:   body,
		})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error": {"code": 403, "message": "forbidden"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"totalUpdatedCells": 1}`))
	}))
	t.Cleanup(srv.Close)

	svc, err := sheets.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return NewSheetsWithService(svc, "sheet-123", nil), &recorded
}

func TestSheets_WriteCell(t *testing.T) {
	s, recorded := newSheetsServer(t, http.StatusOK)

	require.NoError(t, s.WriteCell(context.Background(), "Hoja1", "R10", "B12345678"))

	require.Len(t, *recorded, 1)
	req := (*recorded)[0]
	assert.Equal(t, http.MethodPut, req.method)
	assert.Contains(t, req.path, "/v4/spreadsheets/sheet-123/values/")
	assert.True(t, strings.HasSuffix(req.path, "R10"))
	assert.Contains(t, req.query, "valueInputOption=USER_ENTERED")
	assert.Equal(t, []any{[]any{"B12345678"}}, req.body["values"])
}

func TestSheets_WriteCells(t *testing.T) {
	s, recorded := newSheetsServer(t, http.StatusOK)

	require.NoError(t, s.WriteCells(context.Background(), "Hoja1", []Cell{
		{Ref: "C5", Value: 1234.56},
		{Ref: "D5", Value: "No encontrado"},
	}))
	require.NoError(t, s.WriteCells(context.Background(), "Hoja1", nil))

	require.Len(t, *recorded, 1)
	req := (*recorded)[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Contains(t, req.path, "/v4/spreadsheets/sheet-123/values:batchUpdate")
	assert.Equal(t, "USER_ENTERED", req.body["valueInputOption"])
	data, ok := req.body["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 2)
	first := data[0].(map[string]any)
	assert.Equal(t, "Hoja1!C5", first["range"])
	assert.Equal(t, []any{[]any{1234.56}}, first["values"])
}

func TestSheets_WriteFailure(t *testing.T) {
	s, _ := newSheetsServer(t, http.StatusForbidden)

	err := s.WriteCell(context.Background(), "Hoja1", "C5", 1)
	require.Error(t, err)
	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, "C5", we.Cell)
	assert.Equal(t, "Hoja1", we.Sheet)
}

func TestNewSheets_RequiresSpreadsheetID(t *testing.T) {
	_, err := NewSheets(context.Background(), "", "credentials.json", nil)
	assert.Error(t, err)
}

var (
	_ BatchWriter = (*Sheets)(nil)
	_ BatchWriter = (*Workbook)(nil)
	_ BatchWriter = (*JSON)(nil)
)
