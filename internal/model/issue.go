package model

import (
	"math"
	"time"
)

// IssueKind classifies a single-document field problem.
type IssueKind string

const (
	IssueLowConfidence IssueKind = "low_confidence"
	IssueOutOfRange    IssueKind = "out_of_range"
	IssueMissing       IssueKind = "missing"
	IssueConflict      IssueKind = "conflict"
)

// IssueStatus is the lifecycle state of an issue.
type IssueStatus string

const (
	IssuePending  IssueStatus = "pending"
	IssueResolved IssueStatus = "resolved"
	IssueIgnored  IssueStatus = "ignored"
)

// Issue is a detected problem with one field in one document. Issues are
// audit records: they transition to resolved/ignored but are never deleted.
type Issue struct {
	ID              string          `json:"id,omitempty"`
	DealID          string          `json:"deal_id"`
	DocumentID      string          `json:"document_id"`
	FieldName       string          `json:"field_name"`
	Kind            IssueKind       `json:"kind"`
	Priority        int             `json:"priority"` // 0-10
	Reason          string          `json:"reason"`
	SuggestedValues []FieldValue    `json:"suggested_values,omitempty"`
	BenchmarkRange  *BenchmarkRange `json:"benchmark_range,omitempty"`
	Status          IssueStatus     `json:"status"`
	ResolvedValue   *FieldValue     `json:"resolved_value,omitempty"`
	ResolvedBy      string          `json:"resolved_by,omitempty"`
	Rationale       string          `json:"rationale,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
}

// Terminal reports whether the issue has reached a final state.
func (s IssueStatus) Terminal() bool {
	return s == IssueResolved || s == IssueIgnored
}

// PriorityFor computes the 0-10 priority of an issue. Base 5, +3 when the
// field is critical, plus a kind-specific bump; low-confidence issues scale
// with how far below certainty the extraction fell. A completely absent
// critical number always outranks a merely noisy one.
func PriorityFor(kind IssueKind, critical bool, confidence float64) int {
	p := 5
	if critical {
		p += 3
	}
	switch kind {
	case IssueMissing:
		p += 3
	case IssueConflict:
		p += 2
	case IssueOutOfRange:
		p++
	case IssueLowConfidence:
		p += int(math.Floor((100 - confidence) / 25))
	}
	if p > 10 {
		p = 10
	}
	if p < 0 {
		p = 0
	}
	return p
}
