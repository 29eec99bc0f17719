// Package store persists deals, extracted fields, issues, conflicts, and
// reconciled-field snapshots, and owns the clarification lifecycle state
// machine.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// ErrNotFound is returned when a deal, issue, or conflict id does not exist.
// Resolution against an unknown id is rejected with no partial mutation.
var ErrNotFound = eris.New("store: not found")

// ErrAlreadyResolved is returned when a resolution targets a record already
// in a terminal state. Terminal states are final.
var ErrAlreadyResolved = eris.New("store: already resolved")

// ErrInvalidResolution is returned when a resolution request names an
// unknown kind or omits a value the kind requires.
var ErrInvalidResolution = eris.New("store: invalid resolution")

// ResolveRequest carries a resolution action for an issue or conflict.
type ResolveRequest struct {
	Resolution model.ConflictResolution
	Value      *model.FieldValue // manual override; computed from the kind when nil
	ResolvedBy string
	Rationale  string
}

// Store is the persistence contract for the reconciliation engine.
type Store interface {
	// Deals
	CreateDeal(ctx context.Context, name, facilityCategory string) (*model.Deal, error)
	GetDeal(ctx context.Context, dealID string) (*model.Deal, error)
	ListDeals(ctx context.Context, limit int) ([]model.Deal, error)

	// Documents and extracted fields. Saving a document's fields replaces
	// any prior extraction for the same document (reprocessing).
	SaveExtractedFields(ctx context.Context, dealID, documentID string, fields []model.ExtractedField) error
	ListDocuments(ctx context.Context, dealID string, limit int) ([]string, error)
	GetExtractedFields(ctx context.Context, dealID, documentID string) (map[string]model.ExtractedField, error)
	ListFieldSources(ctx context.Context, dealID, fieldName string) ([]model.Source, error)

	// Issues. Creation is idempotent on (deal, document, field, kind).
	CreateIssue(ctx context.Context, issue *model.Issue) (bool, error)
	GetIssue(ctx context.Context, issueID string) (*model.Issue, error)
	ListIssues(ctx context.Context, dealID string, pendingOnly bool) ([]model.Issue, error)
	ResolveIssue(ctx context.Context, issueID string, req ResolveRequest) (*model.Issue, error)

	// Conflicts. Creation is idempotent on (deal, field, document pair).
	CreateConflict(ctx context.Context, c *model.Conflict) (bool, error)
	GetConflict(ctx context.Context, conflictID string) (*model.Conflict, error)
	ListConflicts(ctx context.Context, dealID string, pendingOnly bool) ([]model.Conflict, error)
	ResolveConflict(ctx context.Context, conflictID string, req ResolveRequest) (*model.Conflict, error)

	// Reconciled snapshots, upserted per (deal, field).
	SaveReconciledFields(ctx context.Context, fields []model.ReconciledField) error
	ListReconciledFields(ctx context.Context, dealID string) ([]model.ReconciledField, error)

	// RecomputeUnresolvedFlag derives the deal flag from pending-record
	// existence. Recomputation rather than increment keeps the flag
	// correct under concurrent writers and self-heals missed updates.
	RecomputeUnresolvedFlag(ctx context.Context, dealID string) (bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// canonicalizeConflict rewrites a conflict so its document pair is in
// canonical order, flipping the values and any side-specific suggestion to
// match. Detection in either argument order then maps onto the same
// (deal, field, doc1, doc2) dedupe key.
func canonicalizeConflict(c *model.Conflict) {
	if c.Document1ID <= c.Document2ID {
		return
	}
	c.Document1ID, c.Document2ID = c.Document2ID, c.Document1ID
	c.Value1, c.Value2 = c.Value2, c.Value1
	switch c.Suggestion {
	case model.ResolutionUseFirst:
		c.Suggestion = model.ResolutionUseSecond
	case model.ResolutionUseSecond:
		c.Suggestion = model.ResolutionUseFirst
	}
}

// applyConflictResolution validates a resolution request against a pending
// conflict and fills in the resolution metadata. The resolved value is
// computed from the resolution kind unless the request overrides it.
func applyConflictResolution(c *model.Conflict, req ResolveRequest, now time.Time) error {
	if c.Resolution.Terminal() {
		return eris.Wrapf(ErrAlreadyResolved, "conflict %s is %s", c.ID, c.Resolution)
	}
	if !req.Resolution.Valid() {
		return eris.Wrapf(ErrInvalidResolution, "%q", req.Resolution)
	}

	value := req.Value
	if value == nil {
		v, err := computedResolutionValue(c, req.Resolution)
		if err != nil {
			return err
		}
		value = v
	}

	c.Resolution = req.Resolution
	c.ResolvedValue = value
	c.ResolvedBy = req.ResolvedBy
	c.Rationale = req.Rationale
	c.ResolvedAt = &now
	return nil
}

func computedResolutionValue(c *model.Conflict, res model.ConflictResolution) (*model.FieldValue, error) {
	switch res {
	case model.ResolutionUseFirst:
		v := c.Value1
		return &v, nil
	case model.ResolutionUseSecond:
		v := c.Value2
		return &v, nil
	case model.ResolutionUseAverage:
		if c.Value1.Kind != model.ValueNumber || c.Value2.Kind != model.ValueNumber {
			return nil, eris.Wrapf(ErrInvalidResolution, "use_average requires numeric values for conflict %s", c.ID)
		}
		v := model.NumberValue((c.Value1.Number + c.Value2.Number) / 2)
		return &v, nil
	case model.ResolutionIgnored:
		return nil, nil
	case model.ResolutionManualValue:
		return nil, eris.Wrap(ErrInvalidResolution, "manual_value requires an explicit value")
	default:
		return nil, eris.Wrapf(ErrInvalidResolution, "%q", res)
	}
}

// applyIssueResolution maps a resolution request onto an issue's simpler
// pending → resolved/ignored state machine.
func applyIssueResolution(iss *model.Issue, req ResolveRequest, now time.Time) error {
	if iss.Status.Terminal() {
		return eris.Wrapf(ErrAlreadyResolved, "issue %s is %s", iss.ID, iss.Status)
	}

	switch req.Resolution {
	case model.ResolutionIgnored:
		iss.Status = model.IssueIgnored
	case model.ResolutionManualValue:
		if req.Value == nil {
			return eris.Wrap(ErrInvalidResolution, "manual_value requires an explicit value")
		}
		iss.Status = model.IssueResolved
	default:
		return eris.Wrapf(ErrInvalidResolution, "issues accept manual_value or ignored, got %q", req.Resolution)
	}

	iss.ResolvedValue = req.Value
	iss.ResolvedBy = req.ResolvedBy
	iss.Rationale = req.Rationale
	iss.ResolvedAt = &now
	return nil
}
