package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// plainNumber is the whole-string shape accepted as numeric once separators
// have been rewritten. strconv.ParseFloat alone would also take "Inf", "NaN"
// and hex floats.
var plainNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// leadingNumber matches the numeric prefix of a token
var leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)`)

// Value is a normalized cell value: either a number or text
type Value struct {
	Number  float64
	Text    string
	Numeric bool
}

// NumberValue returns a numeric Value
func NumberValue(f float64) Value {
	return Value{Number: f, Numeric: true}
}

// TextValue returns a text Value
func TextValue(s string) Value {
	return Value{Text: s}
}

// Interface returns the value as float64 or string
func (v Value) Interface() any {
	if v.Numeric {
		return v.Number
	}
	return v.Text
}

// String formats the value the way it is sent to a destination
func (v Value) String() string {
	if v.Numeric {
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	}
	return v.Text
}

// MarshalJSON encodes the value as a JSON number or string
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// Normalize converts a raw extracted string into a number when it reads as a
// number in Spanish notation ("1.234,56", "(1.234,56)"). Otherwise the
// cleaned string is returned. It never fails.
func Normalize(raw string) Value {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "'")
	if len(s) >= 2 && strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + s[1:len(s)-1]
	}
	s = decimalNotation(s)

	if plainNumber.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return NumberValue(f)
		}
	}
	return TextValue(s)
}

// NormalizeAny normalizes strings and returns every other value unchanged
func NormalizeAny(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return Normalize(s).Interface()
}

// decimalNotation drops thousands separators and turns the first decimal
// comma into a period
func decimalNotation(s string) string {
	s = strings.ReplaceAll(s, ".", "")
	return strings.Replace(s, ",", ".", 1)
}

// looksNumeric reports whether a token starts with a number once separators
// and parentheses are removed
func looksNumeric(token string) bool {
	cleaned := decimalNotation(token)
	cleaned = strings.NewReplacer("(", "", ")", "").Replace(cleaned)
	return leadingNumber.MatchString(cleaned)
}
