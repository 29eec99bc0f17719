// Package engine orchestrates the per-document reconciliation pipeline:
// evaluate the extraction, detect cross-document conflicts, triangulate a
// reconciled value per field, then refresh the deal's unresolved flag.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/benchmark"
	"github.com/sells-group/reconcile-cli/internal/config"
	"github.com/sells-group/reconcile-cli/internal/conflict"
	"github.com/sells-group/reconcile-cli/internal/evaluate"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/store"
	"github.com/sells-group/reconcile-cli/internal/triangulate"
)

// Engine wires the pure reconciliation stages to the store.
type Engine struct {
	store      store.Store
	benchmarks benchmark.Provider
	cfg        config.ReconcileConfig
}

// New builds an Engine. The benchmark provider may be nil, in which case
// benchmark plausibility checks are skipped.
func New(st store.Store, benchmarks benchmark.Provider, cfg config.ReconcileConfig) *Engine {
	return &Engine{store: st, benchmarks: benchmarks, cfg: cfg}
}

// Report summarizes what one document's processing produced.
type Report struct {
	DealID            string   `json:"deal_id"`
	DocumentID        string   `json:"document_id"`
	FieldCount        int      `json:"field_count"`
	IssuesCreated     int      `json:"issues_created"`
	ConflictsCreated  int      `json:"conflicts_created"`
	AutoResolved      []string `json:"auto_resolved,omitempty"`
	ReconciledFields  int      `json:"reconciled_fields"`
	OverallConfidence float64  `json:"overall_confidence"`
	HasUnresolved     bool     `json:"has_unresolved_conflicts"`
}

// ProcessDocument persists a document's extraction and runs the full
// pipeline for it. Reprocessing the same document is safe: the extraction
// is replaced and issue/conflict creation deduplicates.
func (e *Engine) ProcessDocument(ctx context.Context, dealID, documentID string, fields []model.ExtractedField) (*Report, error) {
	deal, err := e.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}

	for i := range fields {
		fields[i].DocumentID = documentID
	}
	if err := e.store.SaveExtractedFields(ctx, dealID, documentID, fields); err != nil {
		return nil, err
	}

	fieldMap := make(map[string]model.ExtractedField, len(fields))
	for _, f := range fields {
		fieldMap[f.FieldName] = f
	}

	report := &Report{DealID: dealID, DocumentID: documentID, FieldCount: len(fields)}
	critical := model.NewCriticalFields(e.cfg.CriticalFields)

	var ranges map[string]model.BenchmarkRange
	if e.benchmarks != nil {
		ranges = e.benchmarks.Ranges(deal.FacilityCategory)
	}

	result := evaluate.Evaluate(dealID, fieldMap, ranges, critical, evaluate.Options{
		MinConfidence:        e.cfg.MinConfidenceThreshold,
		AutoResolveThreshold: e.cfg.AutoResolveThreshold,
		MaxBenchmarkVariance: e.cfg.MaxBenchmarkVariance,
	})
	report.AutoResolved = result.AutoResolved
	report.OverallConfidence = result.OverallConfidence

	for i := range result.Issues {
		created, err := e.store.CreateIssue(ctx, &result.Issues[i])
		if err != nil {
			return nil, err
		}
		if created {
			report.IssuesCreated++
		}
	}

	conflicts, conflictIssues, err := e.detectConflicts(ctx, dealID, documentID, fieldMap, critical)
	if err != nil {
		return nil, err
	}
	report.ConflictsCreated = conflicts
	report.IssuesCreated += conflictIssues

	reconciled, err := e.triangulateFields(ctx, dealID, fieldMap)
	if err != nil {
		return nil, err
	}
	report.ReconciledFields = reconciled

	flag, err := e.store.RecomputeUnresolvedFlag(ctx, dealID)
	if err != nil {
		return nil, err
	}
	report.HasUnresolved = flag

	zap.L().Info("document processed",
		zap.String("deal_id", dealID),
		zap.String("document_id", documentID),
		zap.Int("fields", report.FieldCount),
		zap.Int("issues_created", report.IssuesCreated),
		zap.Int("conflicts_created", report.ConflictsCreated),
		zap.Int("auto_resolved", len(report.AutoResolved)),
		zap.Float64("overall_confidence", report.OverallConfidence),
		zap.Bool("has_unresolved", flag))

	return report, nil
}

// detectConflicts compares the document's fields against the most recent
// prior documents of the deal. Each new conflict also raises a conflict
// issue against the incoming document so it surfaces in the review queue.
func (e *Engine) detectConflicts(ctx context.Context, dealID, documentID string, fields map[string]model.ExtractedField, critical model.CriticalFields) (conflicts, issues int, err error) {
	limit := e.cfg.MaxCompareDocuments
	if limit <= 0 {
		limit = 25
	}
	// The incoming document is already persisted, so fetch one extra slot.
	docs, err := e.store.ListDocuments(ctx, dealID, limit+1)
	if err != nil {
		return 0, 0, err
	}

	opts := conflict.Options{
		VarianceThreshold: e.cfg.MaxDocumentVariance,
		CriticalFields:    critical,
	}

	compared := 0
	for _, other := range docs {
		if other == documentID {
			continue
		}
		if compared >= limit {
			break
		}
		compared++

		otherFields, err := e.store.GetExtractedFields(ctx, dealID, other)
		if err != nil {
			return conflicts, issues, err
		}

		for name, f := range fields {
			of, ok := otherFields[name]
			if !ok {
				continue
			}
			c := conflict.Detect(dealID, name,
				conflict.Entry{DocumentID: documentID, Value: f.Value, Confidence: f.Confidence, PeriodEnd: f.PeriodEnd},
				conflict.Entry{DocumentID: other, Value: of.Value, Confidence: of.Confidence, PeriodEnd: of.PeriodEnd},
				opts)
			if c == nil {
				continue
			}
			created, err := e.store.CreateConflict(ctx, c)
			if err != nil {
				return conflicts, issues, err
			}
			if !created {
				continue
			}
			conflicts++

			iss := model.Issue{
				DealID:     dealID,
				DocumentID: documentID,
				FieldName:  name,
				Kind:       model.IssueConflict,
				Priority:   model.PriorityFor(model.IssueConflict, critical[name], f.Confidence),
				Reason:     fmt.Sprintf("%s disagrees with document %s (severity %s)", name, other, c.Severity),
			}
			issueCreated, err := e.store.CreateIssue(ctx, &iss)
			if err != nil {
				return conflicts, issues, err
			}
			if issueCreated {
				issues++
			}
		}
	}
	return conflicts, issues, nil
}

// triangulateFields recomputes the reconciled snapshot for every field the
// document touched, across all documents of the deal.
func (e *Engine) triangulateFields(ctx context.Context, dealID string, fields map[string]model.ExtractedField) (int, error) {
	var reconciled []model.ReconciledField
	for name := range fields {
		sources, err := e.store.ListFieldSources(ctx, dealID, name)
		if err != nil {
			return 0, err
		}
		if len(sources) == 0 {
			continue
		}
		reconciled = append(reconciled, triangulate.Reconcile(dealID, name, sources))
	}
	if err := e.store.SaveReconciledFields(ctx, reconciled); err != nil {
		return 0, err
	}
	return len(reconciled), nil
}

// ResolveConflict applies a human resolution and refreshes the deal flag.
func (e *Engine) ResolveConflict(ctx context.Context, conflictID string, req store.ResolveRequest) (*model.Conflict, error) {
	c, err := e.store.ResolveConflict(ctx, conflictID, req)
	if err != nil {
		return nil, err
	}
	if _, err := e.store.RecomputeUnresolvedFlag(ctx, c.DealID); err != nil {
		return nil, err
	}
	zap.L().Info("conflict resolved",
		zap.String("conflict_id", c.ID),
		zap.String("deal_id", c.DealID),
		zap.String("field", c.FieldName),
		zap.String("resolution", string(c.Resolution)),
		zap.String("resolved_by", c.ResolvedBy))
	return c, nil
}

// ResolveIssue applies a human resolution and refreshes the deal flag.
func (e *Engine) ResolveIssue(ctx context.Context, issueID string, req store.ResolveRequest) (*model.Issue, error) {
	iss, err := e.store.ResolveIssue(ctx, issueID, req)
	if err != nil {
		return nil, err
	}
	if _, err := e.store.RecomputeUnresolvedFlag(ctx, iss.DealID); err != nil {
		return nil, err
	}
	zap.L().Info("issue resolved",
		zap.String("issue_id", iss.ID),
		zap.String("deal_id", iss.DealID),
		zap.String("field", iss.FieldName),
		zap.String("status", string(iss.Status)),
		zap.String("resolved_by", iss.ResolvedBy))
	return iss, nil
}

// Status is the deal-level rollup served by the status verb and endpoint.
type Status struct {
	Deal             *model.Deal             `json:"deal"`
	PendingIssues    int                     `json:"pending_issues"`
	PendingConflicts int                     `json:"pending_conflicts"`
	ReconciledFields []model.ReconciledField `json:"reconciled_fields"`
}

// DealStatus assembles the rollup for one deal.
func (e *Engine) DealStatus(ctx context.Context, dealID string) (*Status, error) {
	deal, err := e.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	issues, err := e.store.ListIssues(ctx, dealID, true)
	if err != nil {
		return nil, err
	}
	conflicts, err := e.store.ListConflicts(ctx, dealID, true)
	if err != nil {
		return nil, err
	}
	reconciled, err := e.store.ListReconciledFields(ctx, dealID)
	if err != nil {
		return nil, err
	}
	return &Status{
		Deal:             deal,
		PendingIssues:    len(issues),
		PendingConflicts: len(conflicts),
		ReconciledFields: reconciled,
	}, nil
}

// Store exposes the underlying store for read-only verbs.
func (e *Engine) Store() store.Store {
	return e.store
}
