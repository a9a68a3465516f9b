package config

import (
	"os"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Helper function to reset pflag.CommandLine for testing
func resetFlags() {
	pflag.CommandLine = pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	viper.Reset()
}

// Helper function to clear environment variables
func clearEnvVars() {
	for _, key := range []string{
		"BALANCE_MODE", "BALANCE_DOC", "BALANCE_DIR", "BALANCE_RULES", "BALANCE_SINK",
		"BALANCE_SPREADSHEET_ID", "BALANCE_WORKSHEET", "BALANCE_WORKBOOK",
		"BALANCE_ID_CELL", "BALANCE_NOT_FOUND", "BALANCE_LOGLEVEL",
	} {
		os.Unsetenv(key)
	}
}

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	originalArgs := os.Args
	t.Cleanup(func() {
		os.Args = originalArgs
		resetFlags()
		clearEnvVars()
	})
	os.Args = args
	resetFlags()
	clearEnvVars()
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Mode != "cli" {
		t.Errorf("Expected default mode to be 'cli', got '%s'", cfg.Mode)
	}
	if cfg.RulesFile != "config_balance.json" {
		t.Errorf("Expected default rule file to be 'config_balance.json', got '%s'", cfg.RulesFile)
	}
	if cfg.Sink != "sheets" {
		t.Errorf("Expected default sink to be 'sheets', got '%s'", cfg.Sink)
	}
	if cfg.IdentifierCell != "R10" {
		t.Errorf("Expected default identifier cell to be 'R10', got '%s'", cfg.IdentifierCell)
	}
	if cfg.NotFound != "No encontrado" {
		t.Errorf("Expected default sentinel to be 'No encontrado', got '%s'", cfg.NotFound)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level to be 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.MaxFileSize != 100*1024*1024 {
		t.Errorf("Expected default max file size to be 100MB, got %d", cfg.MaxFileSize)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Document = "documento.pdf"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid cli config", mutate: func(c *Config) {}, wantErr: false},
		{name: "valid batch config", mutate: func(c *Config) { c.Document = ""; c.Directory = "/tmp" }, wantErr: false},
		{name: "valid stdio config", mutate: func(c *Config) { c.Mode = "stdio"; c.Directory = "/tmp" }, wantErr: false},
		{name: "invalid mode", mutate: func(c *Config) { c.Mode = "server" }, wantErr: true},
		{name: "no input", mutate: func(c *Config) { c.Document = "" }, wantErr: true},
		{name: "stdio without directory", mutate: func(c *Config) { c.Mode = "stdio" }, wantErr: true},
		{name: "empty rule file", mutate: func(c *Config) { c.RulesFile = "" }, wantErr: true},
		{name: "unknown sink", mutate: func(c *Config) { c.Sink = "csv" }, wantErr: true},
		{name: "xlsx without workbook", mutate: func(c *Config) { c.Sink = "xlsx" }, wantErr: true},
		{name: "xlsx with workbook", mutate: func(c *Config) { c.Sink = "xlsx"; c.WorkbookPath = "out.xlsx" }, wantErr: false},
		{name: "empty identifier cell", mutate: func(c *Config) { c.IdentifierCell = "" }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.Concurrency = 0 }, wantErr: true},
		{name: "zero max file size", mutate: func(c *Config) { c.MaxFileSize = 0 }, wantErr: true},
		{name: "invalid log level", mutate: func(c *Config) { c.LogLevel = "verbose" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyRuleDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyRuleDefaults("sheet-123", "Hoja1")
	if cfg.SpreadsheetID != "sheet-123" || cfg.Worksheet != "Hoja1" {
		t.Errorf("ApplyRuleDefaults() = (%s, %s), want (sheet-123, Hoja1)", cfg.SpreadsheetID, cfg.Worksheet)
	}

	cfg.ApplyRuleDefaults("other", "Otra")
	if cfg.SpreadsheetID != "sheet-123" || cfg.Worksheet != "Hoja1" {
		t.Error("ApplyRuleDefaults() must not override explicit values")
	}

	if err := cfg.ValidateDestination(); err != nil {
		t.Errorf("ValidateDestination() unexpected error: %v", err)
	}
	if err := DefaultConfig().ValidateDestination(); err == nil {
		t.Error("ValidateDestination() expected error for sheets without spreadsheet id")
	}
}

func TestConfigHelpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Directory = "/tmp"
	if !cfg.IsBatch() {
		t.Error("IsBatch() expected true with only a directory")
	}
	cfg.Document = "a.pdf"
	if cfg.IsBatch() {
		t.Error("IsBatch() expected false with a document")
	}
	if cfg.IsStdioMode() {
		t.Error("IsStdioMode() expected false for cli mode")
	}
	cfg.LogLevel = "debug"
	if !cfg.IsDebug() {
		t.Error("IsDebug() expected true")
	}
	if cfg.String() == "" {
		t.Error("String() should not be empty")
	}
}

func TestLoadFromFlags_Flags(t *testing.T) {
	dir := t.TempDir()
	withArgs(t, "balance-extractor",
		"--sink=xlsx", "--workbook=out.xlsx", "--id-cell=B2", "--worksheet=Datos",
		"--not-found=N/A", "--loglevel=debug", "--dir="+dir, "documento.pdf")

	cfg, err := LoadFromFlags()
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}

	if cfg.Document != "documento.pdf" {
		t.Errorf("LoadFromFlags() Document = %v, want %v", cfg.Document, "documento.pdf")
	}
	if cfg.Sink != "xlsx" {
		t.Errorf("LoadFromFlags() Sink = %v, want %v", cfg.Sink, "xlsx")
	}
	if cfg.WorkbookPath != "out.xlsx" {
		t.Errorf("LoadFromFlags() WorkbookPath = %v, want %v", cfg.WorkbookPath, "out.xlsx")
	}
	if cfg.IdentifierCell != "B2" {
		t.Errorf("LoadFromFlags() IdentifierCell = %v, want %v", cfg.IdentifierCell, "B2")
	}
	if cfg.Worksheet != "Datos" {
		t.Errorf("LoadFromFlags() Worksheet = %v, want %v", cfg.Worksheet, "Datos")
	}
	if cfg.NotFound != "N/A" {
		t.Errorf("LoadFromFlags() NotFound = %v, want %v", cfg.NotFound, "N/A")
	}
	if !cfg.IsDebug() {
		t.Errorf("LoadFromFlags() LogLevel = %v, want debug", cfg.LogLevel)
	}
	if cfg.Directory != dir {
		t.Errorf("LoadFromFlags() Directory = %v, want %v", cfg.Directory, dir)
	}
}

func TestLoadFromFlags_EnvironmentVariables(t *testing.T) {
	withArgs(t, "balance-extractor")

	os.Setenv("BALANCE_DOC", "env.pdf")
	os.Setenv("BALANCE_SINK", "json")
	os.Setenv("BALANCE_SPREADSHEET_ID", "from-env")
	os.Setenv("BALANCE_ID_CELL", "C1")

	cfg, err := LoadFromFlags()
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}
	if cfg.Document != "env.pdf" {
		t.Errorf("LoadFromFlags() Document = %v, want %v", cfg.Document, "env.pdf")
	}
	if cfg.Sink != "json" {
		t.Errorf("LoadFromFlags() Sink = %v, want %v", cfg.Sink, "json")
	}
	if cfg.SpreadsheetID != "from-env" {
		t.Errorf("LoadFromFlags() SpreadsheetID = %v, want %v", cfg.SpreadsheetID, "from-env")
	}
	if cfg.IdentifierCell != "C1" {
		t.Errorf("LoadFromFlags() IdentifierCell = %v, want %v", cfg.IdentifierCell, "C1")
	}
}

func TestLoadFromFlags_Errors(t *testing.T) {
	withArgs(t, "balance-extractor", "--version")
	if _, err := LoadFromFlags(); err == nil {
		t.Error("LoadFromFlags() expected error when version is requested")
	}

	withArgs(t, "balance-extractor", "--sink=csv", "a.pdf")
	if _, err := LoadFromFlags(); err == nil {
		t.Error("LoadFromFlags() expected error for an invalid sink")
	}
}
