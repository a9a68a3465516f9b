package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// JSONWrite is one recorded write
type JSONWrite struct {
	Sheet string `json:"sheet"`
	Cell  string `json:"cell"`
	Value any    `json:"value"`
}

// JSON records writes and encodes them to w on Close. It is used for dry runs.
type JSON struct {
	mu     sync.Mutex
	w      io.Writer
	writes []JSONWrite
}

// NewJSON creates a JSON writer that encodes to w
func NewJSON(w io.Writer) *JSON {
	return &JSON{w: w}
}

// WriteCell records one cell
func (j *JSON) WriteCell(ctx context.Context, sheet, cell string, value any) error {
	if err := ctx.Err(); err != nil {
		return &WriteError{Sheet: sheet, Cell: cell, Err: err}
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.writes = append(j.writes, JSONWrite{Sheet: sheet, Cell: cell, Value: value})
	return nil
}

// WriteCells records every cell
func (j *JSON) WriteCells(ctx context.Context, sheet string, cells []Cell) error {
	for _, c := range cells {
		if err := j.WriteCell(ctx, sheet, c.Ref, c.Value); err != nil {
			return err
		}
	}
	return nil
}

// Writes returns the recorded writes in order
func (j *JSON) Writes() []JSONWrite {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]JSONWrite, len(j.writes))
	copy(out, j.writes)
	return out
}

// Close encodes the recorded writes
func (j *JSON) Close() error {
	enc := json.NewEncoder(j.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		Writes []JSONWrite `json:"writes"`
	}{Writes: j.Writes()}); err != nil {
		return fmt.Errorf("failed to encode writes: %w", err)
	}
	return nil
}
