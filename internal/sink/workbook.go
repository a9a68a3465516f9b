package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/xuri/excelize/v2"
)

// Workbook writes cells into a local .xlsx file. Changes are kept in memory
// until Save or Close.
type Workbook struct {
	mu   sync.Mutex
	path string
	file *excelize.File
}

// OpenWorkbook opens the workbook at path, or starts a new one when the file
// does not exist yet
func OpenWorkbook(path string) (*Workbook, error) {
	if path == "" {
		return nil, fmt.Errorf("workbook path cannot be empty")
	}

	var f *excelize.File
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		f = excelize.NewFile()
	} else {
		f, err = excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open workbook: %w", err)
		}
	}
	return &Workbook{path: path, file: f}, nil
}

// WriteCell sets one cell, creating the worksheet when needed
func (w *Workbook) WriteCell(ctx context.Context, sheet, cell string, value any) error {
	if err := ctx.Err(); err != nil {
		return &WriteError{Sheet: sheet, Cell: cell, Err: err}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.set(sheet, cell, value)
}

// WriteCells sets every cell and saves the workbook once
func (w *Workbook) WriteCells(ctx context.Context, sheet string, cells []Cell) error {
	if err := ctx.Err(); err != nil {
		return &WriteError{Sheet: sheet, Err: err}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, c := range cells {
		if err := w.set(sheet, c.Ref, c.Value); err != nil {
			return err
		}
	}
	if err := w.file.SaveAs(w.path); err != nil {
		return &WriteError{Sheet: sheet, Err: fmt.Errorf("failed to save workbook: %w", err)}
	}
	return nil
}

func (w *Workbook) set(sheet, cell string, value any) error {
	if sheet == "" {
		sheet = w.file.GetSheetName(w.file.GetActiveSheetIndex())
	}
	if _, _, err := excelize.CellNameToCoordinates(cell); err != nil {
		return &WriteError{Sheet: sheet, Cell: cell, Err: err}
	}

	idx, err := w.file.GetSheetIndex(sheet)
	if err != nil {
		return &WriteError{Sheet: sheet, Cell: cell, Err: err}
	}
	if idx == -1 {
		if _, err := w.file.NewSheet(sheet); err != nil {
			return &WriteError{Sheet: sheet, Cell: cell, Err: err}
		}
	}

	if err := w.file.SetCellValue(sheet, cell, value); err != nil {
		return &WriteError{Sheet: sheet, Cell: cell, Err: err}
	}
	return nil
}

// Save writes the workbook to disk
func (w *Workbook) Save() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.SaveAs(w.path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// Close saves the workbook and releases it. The file is released even when
// saving fails.
func (w *Workbook) Close() error {
	return errors.Join(w.Save(), w.file.Close())
}
