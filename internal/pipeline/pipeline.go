// Package pipeline runs one document from text acquisition to the destination.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/a3tai/balance-extractor/internal/extract"
	"github.com/a3tai/balance-extractor/internal/rules"
	"github.com/a3tai/balance-extractor/internal/sink"
)

// DefaultIdentifierCell receives the document's tax identifier
const DefaultIdentifierCell = "R10"

// ErrNoRules is returned for a job that carries no rule set
var ErrNoRules = errors.New("job has no rules")

// TextSource returns the full text of a document, pages separated by line breaks
type TextSource interface {
	Text(ctx context.Context, path string) (string, error)
}

// Job is one document to process
type Job struct {
	Document string
	Rules    *rules.RuleSet
	// Sheet overrides Rules.WorksheetName when set
	Sheet string
}

func (j Job) sheet() string {
	if j.Sheet != "" {
		return j.Sheet
	}
	if j.Rules != nil {
		return j.Rules.WorksheetName
	}
	return ""
}

// Report is the outcome of one run. It stays valid when dispatch fails.
type Report struct {
	RunID      string              `json:"run_id"`
	Document   string              `json:"document"`
	Identifier string              `json:"identifier"`
	Raw        *extract.Result     `json:"raw"`
	Normalized *extract.Normalized `json:"normalized"`
	Written    int                 `json:"written"`
	Duration   time.Duration       `json:"duration"`
}

// Runner sequences acquisition, extraction, normalization and dispatch
type Runner struct {
	source         TextSource
	sink           sink.Writer
	engine         *extract.Engine
	identifierCell string
	batchWrites    bool
	logger         *zap.Logger
}

// Option configures a Runner
type Option func(*Runner)

// WithEngine sets the extraction engine
func WithEngine(e *extract.Engine) Option {
	return func(r *Runner) {
		if e != nil {
			r.engine = e
		}
	}
}

// WithIdentifierCell sets the cell that receives the identifier
func WithIdentifierCell(cell string) Option {
	return func(r *Runner) {
		if cell != "" {
			r.identifierCell = cell
		}
	}
}

// WithBatchWrites sends all cells in one request when the sink supports it
func WithBatchWrites(enabled bool) Option {
	return func(r *Runner) {
		r.batchWrites = enabled
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a runner. A nil sink makes every run extract-only.
func NewRunner(source TextSource, w sink.Writer, opts ...Option) (*Runner, error) {
	if source == nil {
		return nil, fmt.Errorf("text source cannot be nil")
	}
	r := &Runner{
		source:         source,
		sink:           w,
		identifierCell: DefaultIdentifierCell,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.engine == nil {
		r.engine = extract.NewEngine(extract.WithLogger(r.logger))
	}
	return r, nil
}

// Run processes one document. Acquisition and write failures abort the run;
// writes already made are not rolled back. When a write fails the returned
// Report still carries the extraction results.
func (r *Runner) Run(ctx context.Context, job Job) (*Report, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := r.logger.With(zap.String("run_id", runID), zap.String("document", job.Document))

	report, err := r.extractDocument(ctx, runID, job)
	if errors.Is(err, ErrNoRules) {
		log.Error("invalid job configuration", zap.Error(err))
		return nil, err
	}
	if err != nil {
		log.Error("acquisition failed", zap.Error(err))
		return nil, err
	}
	log.Info("fields extracted",
		zap.String("identifier", report.Identifier),
		zap.Int("cells", report.Raw.Len()))

	if r.sink == nil {
		report.Duration = time.Since(start)
		return report, nil
	}

	err = r.dispatch(ctx, job.sheet(), report)
	report.Duration = time.Since(start)
	if err != nil {
		log.Error("destination write failed", zap.Int("written", report.Written), zap.Error(err))
		return report, fmt.Errorf("failed to write results: %w", err)
	}
	log.Info("results written", zap.Int("written", report.Written), zap.Duration("duration", report.Duration))
	return report, nil
}

// Extract runs the pure part of the pipeline over text that is already in memory
func (r *Runner) Extract(text string, rs *rules.RuleSet) *Report {
	var fieldRules []rules.FieldRule
	if rs != nil {
		fieldRules = rs.Rules
	}
	raw := r.engine.Extract(text, fieldRules)
	return &Report{
		RunID:      uuid.NewString(),
		Identifier: extract.FindIdentifier(text, r.engine.NotFound()),
		Raw:        raw,
		Normalized: extract.NormalizeResult(raw),
	}
}

func (r *Runner) extractDocument(ctx context.Context, runID string, job Job) (*Report, error) {
	if job.Rules == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoRules, job.Document)
	}
	text, err := r.source.Text(ctx, job.Document)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire document text: %w", err)
	}
	report := r.Extract(text, job.Rules)
	report.RunID = runID
	report.Document = job.Document
	return report, nil
}

// dispatch writes the identifier and then every normalized cell
func (r *Runner) dispatch(ctx context.Context, sheet string, report *Report) error {
	cells := make([]sink.Cell, 0, report.Normalized.Len()+1)
	cells = append(cells, sink.Cell{Ref: r.identifierCell, Value: report.Identifier})
	for _, e := range report.Normalized.Entries() {
		cells = append(cells, sink.Cell{Ref: e.Cell, Value: e.Value.Interface()})
	}

	if bw, ok := r.sink.(sink.BatchWriter); ok && r.batchWrites {
		if err := bw.WriteCells(ctx, sheet, cells); err != nil {
			return err
		}
		report.Written = len(cells)
		return nil
	}

	for _, c := range cells {
		if err := r.sink.WriteCell(ctx, sheet, c.Ref, c.Value); err != nil {
			return err
		}
		report.Written++
	}
	return nil
}

// BatchItem is the outcome of one document in a batch
type BatchItem struct {
	Report *Report
	Err    error
}

// RunBatch extracts several documents concurrently, at most limit at a time.
// Batch runs never write to the sink. A failing document does not stop the
// others; only cancellation of ctx does.
func (r *Runner) RunBatch(ctx context.Context, jobs []Job, limit int) ([]BatchItem, error) {
	items := make([]BatchItem, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report, err := r.extractDocument(gctx, uuid.NewString(), job)
			if err != nil && errors.Is(err, context.Canceled) {
				return err
			}
			items[i] = BatchItem{Report: report, Err: err}
			if err != nil {
				r.logger.Warn("document failed", zap.String("document", job.Document), zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return items, err
	}
	return items, nil
}
