package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/a3tai/balance-extractor/internal/config"
	"github.com/a3tai/balance-extractor/internal/rules"
)

const testVersion = "1.2.3"

const ruleFile = `{
	"keywords": {
		"Total activo": {"cells": ["C5", "D5"], "mode": "two_numbers_after"},
		"Denominación:": {"cells": ["C2"], "mode": "until_newline"}
	},
	"worksheet_name": "Hoja1"
}`

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	originalStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = originalStdout }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
		w.Close()
	}()

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	<-done
	return buf.String()
}

func TestPrintVersion(t *testing.T) {
	oldVersion, oldBuildTime, oldGitCommit := version, buildTime, gitCommit
	version, buildTime, gitCommit = testVersion, "2024-05-01_10:30:00", "abc123"
	defer func() {
		version, buildTime, gitCommit = oldVersion, oldBuildTime, oldGitCommit
	}()

	output := captureStdout(t, printVersion)

	for _, expected := range []string{
		"Balance Extractor",
		"Version: " + testVersion,
		"Build Time: 2024-05-01_10:30:00",
		"Git Commit: abc123",
		"Built with:",
	} {
		if !strings.Contains(output, expected) {
			t.Errorf("printVersion() output missing expected string: %s\nActual output:\n%s", expected, output)
		}
	}
}

func TestNewLogger(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LogLevel = "debug"
	logger, err := newLogger(cfg)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	cfg.LogLevel = "warn"
	logger, err = newLogger(cfg)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))

	cfg.LogLevel = "loud"
	_, err = newLogger(cfg)
	assert.Error(t, err)
}

func setup(t *testing.T) (*config.Config, *rules.RuleSet) {
	t.Helper()
	dir := t.TempDir()
	docs := map[string]string{
		"a.txt": "ACME SL B12345678\nTotal activo 1.234,00 2.345,00\nDenominación: ACME SL\n",
		"b.txt": "OTRA SA C87654321\nDenominación: OTRA SA\n",
	}
	for name, content := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	rs, err := rules.Parse([]byte(ruleFile))
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Directory = dir
	cfg.ApplyRuleDefaults(rs.SpreadsheetID, rs.WorksheetName)
	return cfg, rs
}

func TestRunDocument_Workbook(t *testing.T) {
	cfg, rs := setup(t)
	cfg.Document = filepath.Join(cfg.Directory, "a.txt")
	cfg.Sink = config.SinkXLSX
	cfg.WorkbookPath = filepath.Join(t.TempDir(), "balance.xlsx")

	var runErr error
	output := captureStdout(t, func() {
		runErr = runDocument(context.Background(), cfg, rs, zap.NewNop())
	})
	require.NoError(t, runErr)
	assert.Contains(t, output, "Primer NIF encontrado: B12345678")
	assert.Contains(t, output, "(4 celdas)")

	f, err := excelize.OpenFile(cfg.WorkbookPath)
	require.NoError(t, err)
	defer f.Close()

	for cell, want := range map[string]string{"R10": "B12345678", "C5": "1234", "D5": "2345", "C2": "ACME SL"} {
		got, err := f.GetCellValue("Hoja1", cell)
		require.NoError(t, err)
		assert.Equal(t, want, got, "cell %s", cell)
	}
}

func TestRunDocument_JSON(t *testing.T) {
	cfg, rs := setup(t)
	cfg.Document = filepath.Join(cfg.Directory, "b.txt")
	cfg.Sink = config.SinkJSON
	cfg.OutputPath = filepath.Join(t.TempDir(), "writes.json")
	cfg.IdentifierCell = "A1"

	require.NoError(t, runDocument(context.Background(), cfg, rs, zap.NewNop()))

	data, err := os.ReadFile(cfg.OutputPath)
	require.NoError(t, err)
	var out struct {
		Writes []struct {
			Sheet string `json:"sheet"`
			Cell  string `json:"cell"`
			Value any    `json:"value"`
		} `json:"writes"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out.Writes, 4)
	assert.Equal(t, "A1", out.Writes[0].Cell)
	assert.Equal(t, "C87654321", out.Writes[0].Value)
	assert.Equal(t, "No encontrado", out.Writes[1].Value)
}

func TestRunDocument_Errors(t *testing.T) {
	cfg, rs := setup(t)
	cfg.Document = filepath.Join(cfg.Directory, "a.txt")

	// Sheets without a spreadsheet id
	assert.Error(t, runDocument(context.Background(), cfg, rs, zap.NewNop()))

	cfg.Sink = config.SinkJSON
	cfg.OutputPath = filepath.Join(t.TempDir(), "writes.json")
	cfg.Document = filepath.Join(cfg.Directory, "missing.pdf")
	err := runDocument(context.Background(), cfg, rs, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_FOUND")
}

func TestRunBatch(t *testing.T) {
	cfg, rs := setup(t)
	cfg.OutputPath = filepath.Join(t.TempDir(), "reports.jsonl")
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Directory, "vacio.pdf"), nil, 0o644))

	err := runBatch(context.Background(), cfg, rs, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3")

	f, err := os.Open(cfg.OutputPath)
	require.NoError(t, err)
	defer f.Close()

	var lines []batchLine
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line struct {
			Document string `json:"document"`
			Error    string `json:"error"`
		}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, batchLine{Document: line.Document, Error: line.Error})
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 3)

	assert.Equal(t, "a.txt", filepath.Base(lines[0].Document))
	assert.Empty(t, lines[0].Error)
	assert.Equal(t, "b.txt", filepath.Base(lines[1].Document))
	assert.Equal(t, "vacio.pdf", filepath.Base(lines[2].Document))
	assert.Contains(t, lines[2].Error, "INVALID_FILE")
}

func TestRunBatch_EmptyDirectory(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Directory = t.TempDir()
	err := runBatch(context.Background(), cfg, &rules.RuleSet{}, zap.NewNop())
	assert.ErrorContains(t, err, "no documents found")
}

func TestRun_MissingRules(t *testing.T) {
	cfg, _ := setup(t)
	cfg.RulesFile = filepath.Join(cfg.Directory, "nope.json")
	assert.Error(t, run(context.Background(), cfg, zap.NewNop()))
}
