package model

import "time"

// ExtractedField is one value produced by the document-processing pipeline
// for a single field of a single document. Immutable once created;
// reprocessing a document supersedes its field set wholesale.
type ExtractedField struct {
	DocumentID   string       `json:"document_id"`
	FieldName    string       `json:"field_name"`
	Value        FieldValue   `json:"value"`
	Confidence   float64      `json:"confidence"` // 0-100
	Alternatives []FieldValue `json:"alternatives,omitempty"`
	PeriodEnd    *time.Time   `json:"period_end,omitempty"`
	ExtractedAt  time.Time    `json:"extracted_at"`
}

// BenchmarkRange is the expected numeric envelope for a field, supplied by
// an external benchmark provider per facility category.
type BenchmarkRange struct {
	Min    float64 `json:"min" yaml:"min"`
	Median float64 `json:"median" yaml:"median"`
	Max    float64 `json:"max" yaml:"max"`
}

// CriticalFields is the set of field names whose absence or disagreement is
// treated as more severe than ordinary fields.
type CriticalFields map[string]bool

// NewCriticalFields builds the set from a list of field names.
func NewCriticalFields(names []string) CriticalFields {
	set := make(CriticalFields, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
