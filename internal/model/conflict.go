package model

import "time"

// ConflictSeverity grades how badly two documents disagree.
type ConflictSeverity string

const (
	SeverityLow      ConflictSeverity = "low"
	SeverityMedium   ConflictSeverity = "medium"
	SeverityHigh     ConflictSeverity = "high"
	SeverityCritical ConflictSeverity = "critical"
)

// ConflictResolution is the lifecycle state of a pairwise conflict. Pending
// is the only non-terminal state.
type ConflictResolution string

const (
	ResolutionPending     ConflictResolution = "pending"
	ResolutionUseFirst    ConflictResolution = "use_first"
	ResolutionUseSecond   ConflictResolution = "use_second"
	ResolutionUseAverage  ConflictResolution = "use_average"
	ResolutionManualValue ConflictResolution = "manual_value"
	ResolutionIgnored     ConflictResolution = "ignored"
)

// Terminal reports whether the resolution is final.
func (r ConflictResolution) Terminal() bool {
	return r != ResolutionPending && r != ""
}

// Valid reports whether r names a known resolution action.
func (r ConflictResolution) Valid() bool {
	switch r {
	case ResolutionUseFirst, ResolutionUseSecond, ResolutionUseAverage,
		ResolutionManualValue, ResolutionIgnored:
		return true
	}
	return false
}

// Conflict records a pairwise disagreement between two documents for one
// field. Created once per (deal, field, document pair); resolution metadata
// is written in place, never duplicated.
type Conflict struct {
	ID              string             `json:"id,omitempty"`
	DealID          string             `json:"deal_id"`
	FieldName       string             `json:"field_name"`
	Document1ID     string             `json:"document1_id"`
	Document2ID     string             `json:"document2_id"`
	Value1          FieldValue         `json:"value1"`
	Value2          FieldValue         `json:"value2"`
	VariancePercent float64            `json:"variance_percent"`
	Severity        ConflictSeverity   `json:"severity"`
	Suggestion      ConflictResolution `json:"suggestion"`
	SuggestReason   string             `json:"suggest_reason,omitempty"`
	Resolution      ConflictResolution `json:"resolution"`
	ResolvedValue   *FieldValue        `json:"resolved_value,omitempty"`
	ResolvedBy      string             `json:"resolved_by,omitempty"`
	Rationale       string             `json:"rationale,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	ResolvedAt      *time.Time         `json:"resolved_at,omitempty"`
}

// PairKey returns the document pair in canonical order so that detection in
// either argument order dedupes to the same conflict row.
func (c Conflict) PairKey() (string, string) {
	if c.Document1ID <= c.Document2ID {
		return c.Document1ID, c.Document2ID
	}
	return c.Document2ID, c.Document1ID
}
