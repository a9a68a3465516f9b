package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// ErrInvalidRules is wrapped by every error caused by the content of a rule file
var ErrInvalidRules = errors.New("invalid rule file")

const ruleFileSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["keywords"],
  "properties": {
    "keywords": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["cells"],
        "properties": {
          "cells": {
            "type": "array",
            "minItems": 1,
            "items": {"type": "string", "minLength": 1}
          },
          "mode": {
            "type": "string",
            "enum": ["", "split", "until_dot", "until_newline",
                     "first_number_after", "two_numbers_after", "between_phrases"]
          },
          "start_phrase": {"type": "string"},
          "end_phrase": {"type": "string"},
          "literal": {"type": "boolean"}
        }
      }
    },
    "sheet_name": {"type": "string"},
    "worksheet_name": {"type": "string"},
    "spreadsheet_id": {"type": "string"}
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("rules.json", bytes.NewReader([]byte(ruleFileSchema))); err != nil {
		panic(fmt.Sprintf("add rule schema: %v", err))
	}
	return compiler.MustCompile("rules.json")
}

type ruleEntry struct {
	Cells       []string `json:"cells" yaml:"cells"`
	Mode        string   `json:"mode" yaml:"mode"`
	StartPhrase string   `json:"start_phrase" yaml:"start_phrase"`
	EndPhrase   string   `json:"end_phrase" yaml:"end_phrase"`
	Literal     bool     `json:"literal" yaml:"literal"`
}

// keywordEntry is one member of the keywords mapping, in file order
type keywordEntry struct {
	keyword string
	entry   ruleEntry
}

// LoadFile reads a rule file from disk. JSON and YAML are both accepted.
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// Parse decodes a rule file, preserving the order of the keywords mapping.
// Valid JSON is decoded as JSON; anything else is read as YAML.
func Parse(data []byte) (*RuleSet, error) {
	if json.Valid(data) {
		return parseJSON(data)
	}
	return parseYAML(data)
}

func parseJSON(data []byte) (*RuleSet, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	if err := validateShape(v); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	rs := &RuleSet{}
	var entries []keywordEntry
	for dec.More() {
		key, err := objectKey(dec)
		if err != nil {
			return nil, err
		}
		switch key {
		case "keywords":
			entries, err = decodeKeywords(dec)
		case "sheet_name":
			err = dec.Decode(&rs.SheetName)
		case "worksheet_name":
			err = dec.Decode(&rs.WorksheetName)
		case "spreadsheet_id":
			err = dec.Decode(&rs.SpreadsheetID)
		default:
			var skip json.RawMessage
			err = dec.Decode(&skip)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRules, key, err)
		}
	}

	parsed, err := buildRules(entries)
	if err != nil {
		return nil, err
	}
	rs.Rules = parsed
	return rs, nil
}

// decodeKeywords reads the keywords object. A repeated keyword keeps its
// first position and takes the last value.
func decodeKeywords(dec *json.Decoder) ([]keywordEntry, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	var entries []keywordEntry
	index := make(map[string]int)
	for dec.More() {
		keyword, err := objectKey(dec)
		if err != nil {
			return nil, err
		}
		var entry ruleEntry
		if err := dec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("keyword %q: %v", keyword, err)
		}
		if i, ok := index[keyword]; ok {
			entries[i].entry = entry
			continue
		}
		index[keyword] = len(entries)
		entries = append(entries, keywordEntry{keyword: keyword, entry: entry})
	}
	return entries, expectDelim(dec, '}')
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", ErrInvalidRules, want, tok)
	}
	return nil
}

func objectKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("%w: expected object key, got %v", ErrInvalidRules, tok)
	}
	return key, nil
}

func parseYAML(data []byte) (*RuleSet, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidRules)
	}
	root := doc.Content[0]

	var raw any
	if err := root.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	// Round-trip through JSON so the validator sees plain JSON values
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	if err := validateShape(v); err != nil {
		return nil, err
	}

	rs := &RuleSet{}
	var entries []keywordEntry
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		switch key.Value {
		case "keywords":
			entries = entries[:0]
			for j := 0; j+1 < len(value.Content); j += 2 {
				keyword := value.Content[j].Value
				var entry ruleEntry
				if err := value.Content[j+1].Decode(&entry); err != nil {
					return nil, fmt.Errorf("%w: keyword %q: %v", ErrInvalidRules, keyword, err)
				}
				entries = append(entries, keywordEntry{keyword: keyword, entry: entry})
			}
		case "sheet_name":
			rs.SheetName = value.Value
		case "worksheet_name":
			rs.WorksheetName = value.Value
		case "spreadsheet_id":
			rs.SpreadsheetID = value.Value
		}
	}

	parsed, err := buildRules(entries)
	if err != nil {
		return nil, err
	}
	rs.Rules = parsed
	return rs, nil
}

// validateShape checks a decoded document against the rule file schema
func validateShape(v any) error {
	if err := compiledSchema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	return nil
}

// buildRules compiles the keyword entries. Keywords and phrases are
// NFC-normalized to match the extracted document text.
func buildRules(entries []keywordEntry) ([]FieldRule, error) {
	parsed := make([]FieldRule, 0, len(entries))
	for _, e := range entries {
		keyword := norm.NFC.String(e.keyword)

		mode, err := ParseMode(e.entry.Mode)
		if err != nil {
			return nil, fmt.Errorf("%w: keyword %q: %v", ErrInvalidRules, keyword, err)
		}

		rule := FieldRule{
			Keyword: keyword,
			Cells:   e.entry.Cells,
			Mode:    mode,
			Literal: e.entry.Literal,
		}
		if mode == ModeBetweenPhrases {
			rule.Span = &SpanParams{
				Start: norm.NFC.String(e.entry.StartPhrase),
				End:   norm.NFC.String(e.entry.EndPhrase),
			}
		}
		if err := rule.Compile(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
		}
		parsed = append(parsed, rule)
	}
	return parsed, nil
}
