package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/a3tai/balance-extractor/internal/config"
	"github.com/a3tai/balance-extractor/internal/extract"
	"github.com/a3tai/balance-extractor/internal/mcp"
	"github.com/a3tai/balance-extractor/internal/pdf"
	"github.com/a3tai/balance-extractor/internal/pipeline"
	"github.com/a3tai/balance-extractor/internal/rules"
	"github.com/a3tai/balance-extractor/internal/sink"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// newLogger builds a production logger on stderr so stdout stays free for
// JSON output and the MCP protocol
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	if cfg.IsDebug() {
		zcfg.Development = true
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("version", cfg.Version)), nil
}

// openOutput returns the JSON output stream and a function that releases it
func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" || path == config.StdoutPath {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// openSink creates the configured destination. The returned function flushes
// and releases it.
func openSink(ctx context.Context, cfg *config.Config, logger *zap.Logger) (sink.Writer, func() error, error) {
	switch cfg.Sink {
	case config.SinkSheets:
		s, err := sink.NewSheets(ctx, cfg.SpreadsheetID, cfg.CredentialsFile, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil

	case config.SinkXLSX:
		wb, err := sink.OpenWorkbook(cfg.WorkbookPath)
		if err != nil {
			return nil, nil, err
		}
		return wb, wb.Close, nil

	case config.SinkJSON:
		out, closeOut, err := openOutput(cfg.OutputPath)
		if err != nil {
			return nil, nil, err
		}
		j := sink.NewJSON(out)
		return j, func() error {
			return errors.Join(j.Close(), closeOut())
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown sink: %s", cfg.Sink)
}

func newRunner(cfg *config.Config, w sink.Writer, logger *zap.Logger) (*pipeline.Runner, error) {
	engine := extract.NewEngine(extract.WithNotFound(cfg.NotFound), extract.WithLogger(logger))
	return pipeline.NewRunner(pdf.NewExtractor(cfg.MaxFileSize, logger), w,
		pipeline.WithEngine(engine),
		pipeline.WithIdentifierCell(cfg.IdentifierCell),
		pipeline.WithBatchWrites(cfg.BatchWrites),
		pipeline.WithLogger(logger),
	)
}

func jsonOnStdout(cfg *config.Config) bool {
	return cfg.Sink == config.SinkJSON && (cfg.OutputPath == "" || cfg.OutputPath == config.StdoutPath)
}

// messageWriter is where user-facing progress lines go
func messageWriter(cfg *config.Config) io.Writer {
	if jsonOnStdout(cfg) {
		return os.Stderr
	}
	return os.Stdout
}

// runDocument processes the single configured document
func runDocument(ctx context.Context, cfg *config.Config, rs *rules.RuleSet, logger *zap.Logger) error {
	if err := cfg.ValidateDestination(); err != nil {
		return err
	}

	w, closeSink, err := openSink(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open destination: %w", err)
	}

	runner, err := newRunner(cfg, w, logger)
	if err != nil {
		_ = closeSink()
		return err
	}

	report, runErr := runner.Run(ctx, pipeline.Job{Document: cfg.Document, Rules: rs, Sheet: cfg.Worksheet})
	closeErr := closeSink()
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close destination: %w", closeErr)
	}

	out := messageWriter(cfg)
	fmt.Fprintf(out, "Primer NIF encontrado: %s\n", report.Identifier)
	fmt.Fprintf(out, "Datos escritos correctamente en %s (%d celdas).\n", destinationName(cfg), report.Written)
	return nil
}

func destinationName(cfg *config.Config) string {
	switch cfg.Sink {
	case config.SinkXLSX:
		return cfg.WorkbookPath
	case config.SinkJSON:
		return "JSON"
	default:
		return "Google Sheets"
	}
}

// batchLine is one document's outcome in batch output
type batchLine struct {
	Document string           `json:"document"`
	Report   *pipeline.Report `json:"report,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// runBatch extracts every document in the configured directory and emits one
// JSON line per document
func runBatch(ctx context.Context, cfg *config.Config, rs *rules.RuleSet, logger *zap.Logger) error {
	dir, err := pdf.NewDirectory(cfg.Directory)
	if err != nil {
		return err
	}
	docs, err := dir.Documents()
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no documents found in directory: %s", dir.Root())
	}

	runner, err := newRunner(cfg, nil, logger)
	if err != nil {
		return err
	}

	jobs := make([]pipeline.Job, len(docs))
	for i, doc := range docs {
		jobs[i] = pipeline.Job{Document: doc, Rules: rs, Sheet: cfg.Worksheet}
	}

	items, err := runner.RunBatch(ctx, jobs, cfg.Concurrency)
	if err != nil {
		return fmt.Errorf("batch interrupted: %w", err)
	}

	out, closeOut, err := openOutput(cfg.OutputPath)
	if err != nil {
		return err
	}
	defer func() { _ = closeOut() }()

	enc := json.NewEncoder(out)
	failed := 0
	for i, item := range items {
		line := batchLine{Document: jobs[i].Document, Report: item.Report}
		if item.Err != nil {
			line.Error = item.Err.Error()
			failed++
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to write batch output: %w", err)
		}
	}

	logger.Info("batch completed", zap.Int("documents", len(items)), zap.Int("failed", failed))
	if failed > 0 {
		return fmt.Errorf("%d of %d document(s) failed", failed, len(items))
	}
	return nil
}

// runStdio serves the MCP tools. Without a usable destination run_pipeline
// reports an error and the other tools keep working.
func runStdio(ctx context.Context, cfg *config.Config, rs *rules.RuleSet, logger *zap.Logger) error {
	var w sink.Writer
	closeSink := func() error { return nil }

	switch {
	case jsonOnStdout(cfg):
		logger.Warn("json destination on stdout is not available in stdio mode")
	case cfg.ValidateDestination() != nil:
		logger.Warn("destination not configured", zap.Error(cfg.ValidateDestination()))
	default:
		opened, closeFn, err := openSink(ctx, cfg, logger)
		if err != nil {
			logger.Warn("failed to open destination", zap.Error(err))
			break
		}
		w, closeSink = opened, closeFn
	}

	server, err := mcp.NewServer(cfg, rs, w, logger)
	if err != nil {
		_ = closeSink()
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	runErr := server.Run(ctx)
	return errors.Join(runErr, closeSink())
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	rs, err := rules.LoadFile(cfg.RulesFile)
	if err != nil {
		return err
	}
	cfg.ApplyRuleDefaults(rs.SpreadsheetID, rs.WorksheetName)

	if cfg.IsDebug() {
		logger.Debug("starting with configuration", zap.Stringer("config", cfg))
	}

	switch {
	case cfg.IsStdioMode():
		return runStdio(ctx, cfg, rs, logger)
	case cfg.IsBatch():
		return runBatch(ctx, cfg, rs, logger)
	default:
		return runDocument(ctx, cfg, rs, logger)
	}
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	// A missing .env file is not an error
	_ = godotenv.Load()

	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set version if it was provided during build
	if version != "dev" {
		cfg.Version = version
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err = run(ctx, cfg, logger)
	stop()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("Balance Extractor\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
