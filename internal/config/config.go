package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeCLI   = "cli"
	ModeStdio = "stdio"

	// Sink constants
	SinkSheets = "sheets"
	SinkXLSX   = "xlsx"
	SinkJSON   = "json"

	// Default values
	DefaultRulesFile       = "config_balance.json"
	DefaultCredentialsFile = "credentials.json"
	DefaultIdentifierCell  = "R10"
	DefaultNotFound        = "No encontrado"
	DefaultLogLevel        = "info"
	DefaultMaxFileSize     = 100 * 1024 * 1024 // 100MB
	DefaultConcurrency     = 4

	// StdoutPath selects standard output for JSON output
	StdoutPath = "-"
)

// Config holds all configuration for the balance extractor
type Config struct {
	Mode string // "cli" or "stdio"

	// Input
	Document  string // single document to process
	Directory string // batch input folder, and the MCP document root
	RulesFile string

	// Destination
	Sink            string
	SpreadsheetID   string
	Worksheet       string
	CredentialsFile string
	WorkbookPath    string
	OutputPath      string
	IdentifierCell  string
	BatchWrites     bool

	// Extraction
	NotFound    string
	Concurrency int

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	MaxFileSize int64 // Maximum document size in bytes
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:            ModeCLI,
		RulesFile:       DefaultRulesFile,
		Sink:            SinkSheets,
		CredentialsFile: DefaultCredentialsFile,
		OutputPath:      StdoutPath,
		IdentifierCell:  DefaultIdentifierCell,
		NotFound:        DefaultNotFound,
		Concurrency:     DefaultConcurrency,
		Version:         "1.0.0",
		ServerName:      "balance-extractor",
		LogLevel:        DefaultLogLevel,
		MaxFileSize:     DefaultMaxFileSize,
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)

	// A positional argument is the document to process
	if cfg.Document == "" && pflag.NArg() > 0 {
		cfg.Document = pflag.Arg(0)
	}

	if cfg.Directory != "" {
		if expandedPath, err := filepath.Abs(cfg.Directory); err == nil {
			cfg.Directory = expandedPath
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix("BALANCE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("doc", cfg.Document)
	viper.SetDefault("dir", cfg.Directory)
	viper.SetDefault("rules", cfg.RulesFile)
	viper.SetDefault("sink", cfg.Sink)
	viper.SetDefault("spreadsheet-id", cfg.SpreadsheetID)
	viper.SetDefault("worksheet", cfg.Worksheet)
	viper.SetDefault("credentials", cfg.CredentialsFile)
	viper.SetDefault("workbook", cfg.WorkbookPath)
	viper.SetDefault("output", cfg.OutputPath)
	viper.SetDefault("id-cell", cfg.IdentifierCell)
	viper.SetDefault("batch-writes", cfg.BatchWrites)
	viper.SetDefault("not-found", cfg.NotFound)
	viper.SetDefault("concurrency", cfg.Concurrency)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Run mode: 'cli' processes documents, 'stdio' serves MCP tools on standard I/O")
	pflag.String("doc", cfg.Document, "Document (.pdf or .txt) to process")
	pflag.String("dir", cfg.Directory, "Directory of documents for batch extraction; document root in stdio mode")
	pflag.String("rules", cfg.RulesFile, "Rule file (JSON or YAML)")
	pflag.String("sink", cfg.Sink, "Destination: 'sheets', 'xlsx' or 'json'")
	pflag.String("spreadsheet-id", cfg.SpreadsheetID, "Google Sheets spreadsheet id (overrides the rule file)")
	pflag.String("worksheet", cfg.Worksheet, "Worksheet name (overrides the rule file)")
	pflag.String("credentials", cfg.CredentialsFile, "Google service-account credentials file")
	pflag.String("workbook", cfg.WorkbookPath, "Workbook path for the xlsx destination")
	pflag.String("output", cfg.OutputPath, "Output file for the json destination and batch reports ('-' for stdout)")
	pflag.String("id-cell", cfg.IdentifierCell, "Cell that receives the tax identifier")
	pflag.Bool("batch-writes", cfg.BatchWrites, "Write all cells in one request when the destination supports it")
	pflag.String("not-found", cfg.NotFound, "Value written for fields that were not found")
	pflag.Int("concurrency", cfg.Concurrency, "Documents extracted in parallel in batch mode")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum document size in bytes")
}

var flagKeys = []string{
	"mode", "doc", "dir", "rules", "sink", "spreadsheet-id", "worksheet",
	"credentials", "workbook", "output", "id-cell", "batch-writes",
	"not-found", "concurrency", "loglevel", "maxfilesize",
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, key := range flagKeys {
		_ = viper.BindPFlag(key, pflag.Lookup(key))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nBalance Extractor - extracts financial statement fields from documents\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s documento.pdf                                  "+
			"# write to the spreadsheet named in config_balance.json\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --sink=json documento.pdf                      # dry run to stdout\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --sink=xlsx --workbook=out.xlsx documento.pdf  # local workbook\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --dir=/path/to/pdfs --output=reports.jsonl     # batch extraction\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=stdio --dir=/path/to/pdfs               # MCP server\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables (also read from .env):\n")
		fmt.Fprintf(os.Stderr, "  BALANCE_MODE, BALANCE_DOC, BALANCE_DIR, BALANCE_RULES, BALANCE_SINK,\n")
		fmt.Fprintf(os.Stderr, "  BALANCE_SPREADSHEET_ID, BALANCE_WORKSHEET, BALANCE_CREDENTIALS,\n")
		fmt.Fprintf(os.Stderr, "  BALANCE_WORKBOOK, BALANCE_OUTPUT, BALANCE_ID_CELL, BALANCE_BATCH_WRITES,\n")
		fmt.Fprintf(os.Stderr, "  BALANCE_NOT_FOUND, BALANCE_CONCURRENCY, BALANCE_LOGLEVEL, BALANCE_MAXFILESIZE\n")
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Document = viper.GetString("doc")
	cfg.Directory = viper.GetString("dir")
	cfg.RulesFile = viper.GetString("rules")
	cfg.Sink = viper.GetString("sink")
	cfg.SpreadsheetID = viper.GetString("spreadsheet-id")
	cfg.Worksheet = viper.GetString("worksheet")
	cfg.CredentialsFile = viper.GetString("credentials")
	cfg.WorkbookPath = viper.GetString("workbook")
	cfg.OutputPath = viper.GetString("output")
	cfg.IdentifierCell = viper.GetString("id-cell")
	cfg.BatchWrites = viper.GetBool("batch-writes")
	cfg.NotFound = viper.GetString("not-found")
	cfg.Concurrency = viper.GetInt("concurrency")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeCLI && c.Mode != ModeStdio {
		return errors.New("mode must be either 'cli' or 'stdio'")
	}

	if c.Mode == ModeCLI && c.Document == "" && c.Directory == "" {
		return errors.New("a document or a directory is required")
	}
	if c.Mode == ModeStdio && c.Directory == "" {
		return errors.New("stdio mode requires a document directory")
	}

	if c.RulesFile == "" {
		return errors.New("rule file cannot be empty")
	}

	switch c.Sink {
	case SinkSheets, SinkJSON:
	case SinkXLSX:
		if c.WorkbookPath == "" {
			return errors.New("the xlsx destination requires a workbook path")
		}
	default:
		return fmt.Errorf("invalid sink: %s (must be one of: sheets, xlsx, json)", c.Sink)
	}

	if c.IdentifierCell == "" {
		return errors.New("identifier cell cannot be empty")
	}

	if c.Concurrency < 1 {
		return errors.New("concurrency must be at least 1")
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// ApplyRuleDefaults fills the destination from the rule file where flags left it empty
func (c *Config) ApplyRuleDefaults(spreadsheetID, worksheet string) {
	if c.SpreadsheetID == "" {
		c.SpreadsheetID = spreadsheetID
	}
	if c.Worksheet == "" {
		c.Worksheet = worksheet
	}
}

// ValidateDestination checks the settings the chosen sink needs at write time
func (c *Config) ValidateDestination() error {
	if c.Sink == SinkSheets && c.SpreadsheetID == "" {
		return errors.New("the sheets destination requires a spreadsheet id")
	}
	return nil
}

// IsBatch returns true when a directory of documents is processed in cli mode
func (c *Config) IsBatch() bool {
	return c.Mode == ModeCLI && c.Document == "" && c.Directory != ""
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// IsStdioMode returns true if MCP tools are served on standard I/O
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Document: %s, Directory: %s, RulesFile: %s, Sink: %s, "+
		"SpreadsheetID: %s, Worksheet: %s, IdentifierCell: %s, LogLevel: %s, MaxFileSize: %d}",
		c.Mode, c.Document, c.Directory, c.RulesFile, c.Sink,
		c.SpreadsheetID, c.Worksheet, c.IdentifierCell, c.LogLevel, c.MaxFileSize)
}
