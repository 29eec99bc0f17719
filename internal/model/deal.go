package model

import "time"

// Deal is the aggregation root grouping all documents and derived records
// for one facility under review. HasUnresolvedConflicts is derived state:
// it must always equal "a pending issue or conflict exists for this deal"
// and is recomputed after every mutation rather than toggled directly.
type Deal struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	FacilityCategory       string    `json:"facility_category"`
	HasUnresolvedConflicts bool      `json:"has_unresolved_conflicts"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Source is one document's contribution to a field triangulation.
type Source struct {
	DocumentID string     `json:"document_id"`
	Value      FieldValue `json:"value"`
	Confidence float64    `json:"confidence"`
}

// ReconciledField is the triangulation output for one field across all
// documents of a deal. Derivable on demand from the persisted extracted
// fields; the stored copy is a snapshot for downstream valuation reads.
type ReconciledField struct {
	DealID      string     `json:"deal_id"`
	FieldName   string     `json:"field_name"`
	Sources     []Source   `json:"sources"`
	Value       FieldValue `json:"value"`
	Confidence  float64    `json:"confidence"`
	Methodology string     `json:"methodology"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
