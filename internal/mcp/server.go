package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/a3tai/balance-extractor/internal/config"
	"github.com/a3tai/balance-extractor/internal/descriptions"
	"github.com/a3tai/balance-extractor/internal/extract"
	"github.com/a3tai/balance-extractor/internal/pdf"
	"github.com/a3tai/balance-extractor/internal/pipeline"
	"github.com/a3tai/balance-extractor/internal/rules"
	"github.com/a3tai/balance-extractor/internal/sink"
)

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	directory *pdf.Directory
	extractor *pdf.Extractor
	rules     *rules.RuleSet
	writer    sink.Writer
	runner    *pipeline.Runner
	logger    *zap.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server instance. Documents are confined to
// cfg.Directory. A nil writer leaves run_pipeline without a destination.
func NewServer(cfg *config.Config, rs *rules.RuleSet, w sink.Writer, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if rs == nil {
		return nil, fmt.Errorf("rules cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	directory, err := pdf.NewDirectory(cfg.Directory)
	if err != nil {
		return nil, err
	}

	extractor := pdf.NewExtractor(cfg.MaxFileSize, logger)
	engine := extract.NewEngine(extract.WithNotFound(cfg.NotFound), extract.WithLogger(logger))
	runner, err := pipeline.NewRunner(extractor, w,
		pipeline.WithEngine(engine),
		pipeline.WithIdentifierCell(cfg.IdentifierCell),
		pipeline.WithBatchWrites(cfg.BatchWrites),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		config:    cfg,
		directory: directory,
		extractor: extractor,
		rules:     rs,
		writer:    w,
		runner:    runner,
		logger:    logger,
		mcpServer: mcpServer,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	listDocumentsTool := mcp.NewTool(
		"list_documents",
		mcp.WithDescription(descriptions.GetToolDescription("list_documents")),
	)
	s.mcpServer.AddTool(listDocumentsTool, s.handleListDocuments)

	documentTextTool := mcp.NewTool(
		"document_text",
		mcp.WithDescription(descriptions.GetToolDescription("document_text")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Document path, absolute or relative to the document directory"),
		),
	)
	s.mcpServer.AddTool(documentTextTool, s.handleDocumentText)

	locateIdentifierTool := mcp.NewTool(
		"locate_identifier",
		mcp.WithDescription(descriptions.GetToolDescription("locate_identifier")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Document path, absolute or relative to the document directory"),
		),
	)
	s.mcpServer.AddTool(locateIdentifierTool, s.handleLocateIdentifier)

	extractFieldsTool := mcp.NewTool(
		"extract_fields",
		mcp.WithDescription(descriptions.GetToolDescription("extract_fields")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Document path, absolute or relative to the document directory"),
		),
		mcp.WithString("rules",
			mcp.Description("Optional rule file inside the document directory (uses the configured rules if empty)"),
		),
	)
	s.mcpServer.AddTool(extractFieldsTool, s.handleExtractFields)

	runPipelineTool := mcp.NewTool(
		"run_pipeline",
		mcp.WithDescription(descriptions.GetToolDescription("run_pipeline")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Document path, absolute or relative to the document directory"),
		),
		mcp.WithString("worksheet",
			mcp.Description("Worksheet to write to (uses the configured worksheet if empty)"),
		),
	)
	s.mcpServer.AddTool(runPipelineTool, s.handleRunPipeline)
}

// Handler functions
func (s *Server) handleListDocuments(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.directory.Documents()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(docs) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No documents found in directory: %s", s.directory.Root())), nil
	}

	text := fmt.Sprintf("Found %d document(s) in directory: %s\n\n", len(docs), s.directory.Root())
	for i, doc := range docs {
		text += fmt.Sprintf("%d. %s\n", i+1, filepath.Base(doc))
		if info, err := os.Stat(doc); err == nil {
			text += fmt.Sprintf("   Size: %d bytes\n", info.Size())
		}
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleDocumentText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, text, err := s.documentText(ctx, request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	responseText := fmt.Sprintf("Successfully read document: %s\n", path)
	responseText += fmt.Sprintf("Characters: %d\n", len([]rune(text)))
	responseText += "\nContent:\n"
	responseText += text

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleLocateIdentifier(ctx context.Context, request mcp.CallToolRequest) (
	*mcp.CallToolResult, error,
) {
	path, text, err := s.documentText(ctx, request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	id := extract.FindIdentifier(text, s.config.NotFound)
	return mcp.NewToolResultText(fmt.Sprintf("Identifier in %s: %s", path, id)), nil
}

func (s *Server) handleExtractFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rs := s.rules
	if name, ok := request.GetArguments()["rules"].(string); ok && name != "" {
		rulesPath, err := s.directory.Resolve(name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if rs, err = rules.LoadFile(rulesPath); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	path, text, err := s.documentText(ctx, request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report := s.runner.Extract(text, rs)
	report.Document = path
	return s.reportResult(report)
}

func (s *Server) handleRunPipeline(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.writer == nil {
		return mcp.NewToolResultError("no destination configured for run_pipeline"), nil
	}

	path, err := s.resolvePath(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sheet := s.config.Worksheet
	if ws, ok := request.GetArguments()["worksheet"].(string); ok && ws != "" {
		sheet = ws
	}

	report, err := s.runner.Run(ctx, pipeline.Job{Document: path, Rules: s.rules, Sheet: sheet})
	if err != nil {
		if report != nil {
			return mcp.NewToolResultError(fmt.Sprintf("%v (%d cell(s) written before the failure)", err, report.Written)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.reportResult(report)
}

func (s *Server) resolvePath(request mcp.CallToolRequest) (string, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return "", err
	}
	return s.directory.Resolve(path)
}

func (s *Server) documentText(ctx context.Context, request mcp.CallToolRequest) (string, string, error) {
	path, err := s.resolvePath(request)
	if err != nil {
		return "", "", err
	}
	text, err := s.extractor.Text(ctx, path)
	if err != nil {
		return path, "", err
	}
	return path, text, nil
}

func (s *Server) reportResult(report *pipeline.Report) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode report: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// Run serves the MCP tools on standard I/O until the input closes
func (s *Server) Run(_ context.Context) error {
	s.logger.Info("starting MCP server in stdio mode",
		zap.String("directory", s.directory.Root()),
		zap.Int("rules", len(s.rules.Rules)))

	errLogger, err := zap.NewStdLogAt(s.logger, zap.ErrorLevel)
	if err != nil {
		errLogger = zap.NewStdLog(s.logger)
	}
	if err := server.ServeStdio(s.mcpServer, server.WithErrorLogger(errLogger)); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
