// Package model defines the domain types shared across the reconciliation
// engine: extracted field values, issues, conflicts, reconciled fields, and
// the deal aggregate.
package model

import (
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"
)

// ValueKind discriminates the FieldValue union.
type ValueKind string

const (
	ValueNumber  ValueKind = "number"
	ValueText    ValueKind = "text"
	ValueMissing ValueKind = "missing"
)

// FieldValue is a tagged union over the value types a document extraction can
// produce. Exactly one variant is meaningful per Kind; comparison and
// normalization switch on Kind rather than probing dynamic types.
type FieldValue struct {
	Kind   ValueKind `json:"kind"`
	Number float64   `json:"number,omitempty"`
	Text   string    `json:"text,omitempty"`
}

// NumberValue wraps a numeric extraction result.
func NumberValue(n float64) FieldValue {
	return FieldValue{Kind: ValueNumber, Number: n}
}

// TextValue wraps a string extraction result.
func TextValue(s string) FieldValue {
	return FieldValue{Kind: ValueText, Text: s}
}

// MissingValue represents an absent extraction (null in the source payload).
func MissingValue() FieldValue {
	return FieldValue{Kind: ValueMissing}
}

// IsMissing reports whether no value was extracted. An empty text value
// counts as missing for evaluation purposes.
func (v FieldValue) IsMissing() bool {
	return v.Kind == ValueMissing || (v.Kind == ValueText && v.Text == "")
}

// String renders the value for reasons and CLI output.
func (v FieldValue) String() string {
	switch v.Kind {
	case ValueNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case ValueText:
		return v.Text
	default:
		return ""
	}
}

// MarshalJSON renders the natural JSON form: numbers as numbers, text as
// strings, missing as null.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueNumber:
		return json.Marshal(v.Number)
	case ValueText:
		return json.Marshal(v.Text)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a JSON number, string, or null.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = MissingValue()
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*v = NumberValue(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = TextValue(s)
		return nil
	}
	return eris.Errorf("model: field value must be number, string, or null: %s", string(data))
}
