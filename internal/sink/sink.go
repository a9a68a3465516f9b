// Package sink writes extracted cell values to a tabular destination.
package sink

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// Cell is one value addressed by a cell reference such as "C5"
type Cell struct {
	Ref   string
	Value any
}

// Writer persists single cell values. Each call is independent: a failed
// write does not undo earlier ones.
type Writer interface {
	WriteCell(ctx context.Context, sheet, cell string, value any) error
}

// BatchWriter is implemented by destinations that can persist many cells in
// one request
type BatchWriter interface {
	Writer
	WriteCells(ctx context.Context, sheet string, cells []Cell) error
}

// WriteError reports a failed write to the destination
type WriteError struct {
	Sheet string
	Cell  string
	Err   error
}

// Error implements the error interface
func (e *WriteError) Error() string {
	if e.Cell == "" {
		return fmt.Sprintf("write to %s failed: %v", e.Sheet, e.Err)
	}
	return fmt.Sprintf("write to %s!%s failed: %v", e.Sheet, e.Cell, e.Err)
}

// Unwrap returns the underlying error
func (e *WriteError) Unwrap() error {
	return e.Err
}

// A1 returns the A1-notation range for a cell on a sheet. Sheet names with
// anything other than letters, digits and underscores are single-quoted.
func A1(sheet, cell string) string {
	if sheet == "" {
		return cell
	}
	if needsQuoting(sheet) {
		sheet = "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	}
	return sheet + "!" + cell
}

func needsQuoting(sheet string) bool {
	for _, r := range sheet {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
