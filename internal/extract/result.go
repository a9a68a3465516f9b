package extract

import "encoding/json"

// NotFound is the default sentinel written for cells whose rule matched nothing
const NotFound = "No encontrado"

// Entry is one cell of an extraction result
type Entry struct {
	Cell  string `json:"cell"`
	Value string `json:"value"`
}

// Result maps cell identifiers to raw extracted strings, in first-seen order
type Result struct {
	entries []Entry
	index   map[string]int
}

func newResult() *Result {
	return &Result{index: make(map[string]int)}
}

// set records a value. A cell that was already set keeps its position and
// takes the new value.
func (r *Result) set(cell, value string) {
	if i, ok := r.index[cell]; ok {
		r.entries[i].Value = value
		return
	}
	r.index[cell] = len(r.entries)
	r.entries = append(r.entries, Entry{Cell: cell, Value: value})
}

// Get returns the raw value of a cell
func (r *Result) Get(cell string) (string, bool) {
	i, ok := r.index[cell]
	if !ok {
		return "", false
	}
	return r.entries[i].Value, true
}

// Len returns the number of cells
func (r *Result) Len() int {
	return len(r.entries)
}

// Entries returns a copy of the entries in order
func (r *Result) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Map returns the result as a plain map
func (r *Result) Map() map[string]string {
	m := make(map[string]string, len(r.entries))
	for _, e := range r.entries {
		m[e.Cell] = e.Value
	}
	return m
}

// MarshalJSON encodes the result as an ordered list of entries
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.entries)
}

// NormalizedEntry is one cell of a normalized result
type NormalizedEntry struct {
	Cell  string `json:"cell"`
	Value Value  `json:"value"`
}

// Normalized holds typed values keyed by cell, in the same order as the Result
// it was built from
type Normalized struct {
	entries []NormalizedEntry
	index   map[string]int
}

// NormalizeResult normalizes every entry of r
func NormalizeResult(r *Result) *Normalized {
	n := &Normalized{
		entries: make([]NormalizedEntry, 0, r.Len()),
		index:   make(map[string]int, r.Len()),
	}
	for _, e := range r.entries {
		n.index[e.Cell] = len(n.entries)
		n.entries = append(n.entries, NormalizedEntry{Cell: e.Cell, Value: Normalize(e.Value)})
	}
	return n
}

// Get returns the normalized value of a cell
func (n *Normalized) Get(cell string) (Value, bool) {
	i, ok := n.index[cell]
	if !ok {
		return Value{}, false
	}
	return n.entries[i].Value, true
}

// Len returns the number of cells
func (n *Normalized) Len() int {
	return len(n.entries)
}

// Entries returns a copy of the entries in order
func (n *Normalized) Entries() []NormalizedEntry {
	out := make([]NormalizedEntry, len(n.entries))
	copy(out, n.entries)
	return out
}

// MarshalJSON encodes the result as an ordered list of entries
func (n *Normalized) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.entries)
}
