// Package pdf acquires the plain text of financial-statement documents.
package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultMaxFileSize bounds the size of a document accepted for extraction
	DefaultMaxFileSize = 100 * 1024 * 1024 // 100MB

	extPDF  = ".pdf"
	extText = ".txt"
)

// DocumentInfo is what structural validation learns about a document
type DocumentInfo struct {
	Path  string `json:"path"`
	Size  int64  `json:"size"`
	Pages int    `json:"pages"`
}

// Extractor turns a document on disk into SourceText: one line per page,
// NFC-normalized. PDF files are checked with pdfcpu before ledongthuc/pdf
// reads their text; .txt files are read as-is.
type Extractor struct {
	maxFileSize int64
	logger      *zap.Logger
}

// NewExtractor creates a new extractor with the specified constraints
func NewExtractor(maxFileSize int64, logger *zap.Logger) *Extractor {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// Text returns the full text of the document at path
func (e *Extractor) Text(ctx context.Context, path string) (string, error) {
	info, err := e.stat(path)
	if err != nil {
		return "", err
	}

	var text string
	switch strings.ToLower(filepath.Ext(path)) {
	case extText:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", &AcquisitionError{Kind: KindInvalidFile, Path: path, Err: err}
		}
		text = string(data)
	default:
		doc, err := e.Inspect(path)
		if err != nil {
			return "", err
		}
		e.logger.Debug("document validated",
			zap.String("path", path),
			zap.Int("pages", doc.Pages),
			zap.Int64("size", info.Size()))

		text, err = e.readPages(ctx, path)
		if err != nil {
			return "", err
		}
	}

	if strings.TrimSpace(text) == "" {
		return "", newAcquisitionError(KindNoText, path, "no text content could be extracted")
	}
	return norm.NFC.String(text), nil
}

// Inspect validates the PDF structure with pdfcpu and returns its page count
func (e *Extractor) Inspect(path string) (*DocumentInfo, error) {
	info, err := e.stat(path)
	if err != nil {
		return nil, err
	}
	if strings.ToLower(filepath.Ext(path)) != extPDF {
		return nil, newAcquisitionError(KindInvalidFile, path, "file is not a PDF")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &AcquisitionError{Kind: KindInvalidFile, Path: path, Err: err}
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pdfCtx, err := api.ReadContext(f, conf)
	if err != nil {
		return nil, newAcquisitionError(KindCorrupt, path, "failed to read PDF context: %w", err)
	}
	if err := pdfCtx.EnsurePageCount(); err != nil {
		return nil, newAcquisitionError(KindCorrupt, path, "failed to ensure page count: %w", err)
	}

	return &DocumentInfo{Path: path, Size: info.Size(), Pages: pdfCtx.PageCount}, nil
}

// stat checks that path is a regular file within the size limit
func (e *Extractor) stat(path string) (os.FileInfo, error) {
	if path == "" {
		return nil, newAcquisitionError(KindInvalidFile, path, "path cannot be empty")
	}

	fileInfo, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, newAcquisitionError(KindNotFound, path, "file does not exist")
	}
	if err != nil {
		return nil, &AcquisitionError{Kind: KindInvalidFile, Path: path, Err: err}
	}
	if fileInfo.IsDir() {
		return nil, newAcquisitionError(KindInvalidFile, path, "path is a directory, not a file")
	}
	if fileInfo.Size() == 0 {
		return nil, newAcquisitionError(KindInvalidFile, path, "file is empty")
	}
	if fileInfo.Size() > e.maxFileSize {
		return nil, newAcquisitionError(KindTooLarge, path, "file too large: %d bytes (max: %d bytes)",
			fileInfo.Size(), e.maxFileSize)
	}
	return fileInfo, nil
}

// readPages extracts each page's text as a single line
func (e *Extractor) readPages(ctx context.Context, path string) (text string, err error) {
	defer func() {
		// ledongthuc/pdf panics on some malformed content streams
		if r := recover(); r != nil {
			err = newAcquisitionError(KindCorrupt, path, "failed to extract text: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", newAcquisitionError(KindCorrupt, path, "failed to open PDF: %w", err)
	}
	defer f.Close()

	pages := make([]string, 0, reader.NumPage())
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			e.logger.Warn("skipping unreadable page",
				zap.String("path", path),
				zap.Int("page", pageNum),
				zap.Error(err))
			pages = append(pages, "")
			continue
		}
		pages = append(pages, joinRows(rows))
	}

	return strings.Join(pages, "\n"), nil
}

// joinRows flattens a page's rows, top to bottom, into a single line with
// one space between text items
func joinRows(rows pdf.Rows) string {
	var items []string
	for _, row := range rows {
		for _, t := range row.Content {
			items = append(items, strings.TrimSpace(t.S))
		}
	}
	return strings.Join(nonEmpty(items), " ")
}

func nonEmpty(ss []string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// String describes the extractor configuration
func (e *Extractor) String() string {
	return fmt.Sprintf("Extractor{MaxFileSize: %d}", e.maxFileSize)
}
