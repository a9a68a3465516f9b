package sink

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// valueInputOption makes Sheets parse values as if typed by a user
const valueInputOption = "USER_ENTERED"

// Sheets writes cells to a Google Sheets spreadsheet
type Sheets struct {
	svc           *sheets.Service
	spreadsheetID string
	logger        *zap.Logger
}

// NewSheets creates a Sheets writer authenticated with a service-account
// credentials file
func NewSheets(ctx context.Context, spreadsheetID, credentialsFile string, logger *zap.Logger) (*Sheets, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id cannot be empty")
	}
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	return NewSheetsWithService(svc, spreadsheetID, logger), nil
}

// NewSheetsWithService wraps an existing Sheets service
func NewSheetsWithService(svc *sheets.Service, spreadsheetID string, logger *zap.Logger) *Sheets {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sheets{svc: svc, spreadsheetID: spreadsheetID, logger: logger}
}

// WriteCell updates one cell
func (s *Sheets) WriteCell(ctx context.Context, sheet, cell string, value any) error {
	rng := A1(sheet, cell)
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, &sheets.ValueRange{
		Values: [][]interface{}{{value}},
	}).ValueInputOption(valueInputOption).Context(ctx).Do()
	if err != nil {
		return &WriteError{Sheet: sheet, Cell: cell, Err: err}
	}
	s.logger.Debug("cell updated", zap.String("range", rng))
	return nil
}

// WriteCells updates every cell in one batchUpdate request
func (s *Sheets) WriteCells(ctx context.Context, sheet string, cells []Cell) error {
	if len(cells) == 0 {
		return nil
	}
	data := make([]*sheets.ValueRange, 0, len(cells))
	for _, c := range cells {
		data = append(data, &sheets.ValueRange{
			Range:  A1(sheet, c.Ref),
			Values: [][]interface{}{{c.Value}},
		})
	}
	resp, err := s.svc.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: valueInputOption,
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return &WriteError{Sheet: sheet, Err: err}
	}
	s.logger.Debug("cells updated",
		zap.String("sheet", sheet),
		zap.Int64("updated_cells", resp.TotalUpdatedCells))
	return nil
}
