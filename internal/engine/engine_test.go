package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reconcile-cli/internal/benchmark"
	"github.com/sells-group/reconcile-cli/internal/config"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/store"
)

func testConfig() config.ReconcileConfig {
	return config.ReconcileConfig{
		MinConfidenceThreshold: 70,
		MaxBenchmarkVariance:   0.20,
		MaxDocumentVariance:    0.10,
		AutoResolveThreshold:   95,
		MaxCompareDocuments:    25,
		CriticalFields:         []string{"total_revenue", "net_operating_income", "total_expenses", "occupancy_rate", "licensed_beds"},
	}
}

func testBenchmarks() benchmark.Provider {
	return benchmark.NewTable(map[string]map[string]model.BenchmarkRange{
		"default": {
			"occupancy_rate": {Min: 0.60, Median: 0.85, Max: 0.98},
			"total_revenue":  {Min: 500_000, Median: 2_000_000, Max: 10_000_000},
		},
	})
}

func newTestEngine(t *testing.T) (*Engine, store.Store, *model.Deal) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	deal, err := st.CreateDeal(context.Background(), "Cedar Grove SNF", "default")
	require.NoError(t, err)

	return New(st, testBenchmarks(), testConfig()), st, deal
}

func TestProcessDocumentFlagsLowConfidence(t *testing.T) {
	e, st, deal := newTestEngine(t)
	ctx := context.Background()

	report, err := e.ProcessDocument(ctx, deal.ID, "doc-1", []model.ExtractedField{
		{FieldName: "total_revenue", Value: model.NumberValue(1_000_000), Confidence: 55},
		{FieldName: "occupancy_rate", Value: model.NumberValue(0.85), Confidence: 90},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.IssuesCreated)
	assert.Equal(t, 0, report.ConflictsCreated)
	assert.Equal(t, 2, report.ReconciledFields)
	assert.True(t, report.HasUnresolved)

	issues, err := st.ListIssues(ctx, deal.ID, true)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, model.IssueLowConfidence, issues[0].Kind)
	assert.Equal(t, "total_revenue", issues[0].FieldName)

	got, err := st.GetDeal(ctx, deal.ID)
	require.NoError(t, err)
	assert.True(t, got.HasUnresolvedConflicts)
}

func TestProcessDocumentMissingCritical(t *testing.T) {
	e, st, deal := newTestEngine(t)
	ctx := context.Background()

	_, err := e.ProcessDocument(ctx, deal.ID, "doc-1", []model.ExtractedField{
		{FieldName: "licensed_beds", Value: model.MissingValue(), Confidence: 0},
		{FieldName: "occupancy_rate", Value: model.NumberValue(0.85), Confidence: 90},
	})
	require.NoError(t, err)

	issues, err := st.ListIssues(ctx, deal.ID, true)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, model.IssueMissing, issues[0].Kind)
	assert.Equal(t, 10, issues[0].Priority)
}

func TestProcessDocumentAutoResolvesHighConfidence(t *testing.T) {
	e, st, deal := newTestEngine(t)
	ctx := context.Background()

	// 30% above benchmark max would flag, but confidence 97 auto-resolves.
	report, err := e.ProcessDocument(ctx, deal.ID, "doc-1", []model.ExtractedField{
		{FieldName: "total_revenue", Value: model.NumberValue(13_000_000), Confidence: 97},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, report.IssuesCreated)
	assert.Equal(t, []string{"total_revenue"}, report.AutoResolved)
	assert.False(t, report.HasUnresolved)

	issues, err := st.ListIssues(ctx, deal.ID, false)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestProcessDocumentDetectsCrossDocumentConflict(t *testing.T) {
	e, st, deal := newTestEngine(t)
	ctx := context.Background()

	_, err := e.ProcessDocument(ctx, deal.ID, "doc-a", []model.ExtractedField{
		{FieldName: "total_revenue", Value: model.NumberValue(1_000_000), Confidence: 90},
	})
	require.NoError(t, err)

	report, err := e.ProcessDocument(ctx, deal.ID, "doc-b", []model.ExtractedField{
		{FieldName: "total_revenue", Value: model.NumberValue(1_150_000), Confidence: 85},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.ConflictsCreated)
	assert.Equal(t, 1, report.IssuesCreated) // the conflict issue
	assert.True(t, report.HasUnresolved)

	conflicts, err := st.ListConflicts(ctx, deal.ID, true)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, model.SeverityHigh, conflicts[0].Severity)
	assert.InDelta(t, 13.95, conflicts[0].VariancePercent, 0.01)

	issues, err := st.ListIssues(ctx, deal.ID, true)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, model.IssueConflict, issues[0].Kind)

	// The triangulated value sits between the two observations.
	reconciled, err := st.ListReconciledFields(ctx, deal.ID)
	require.NoError(t, err)
	require.Len(t, reconciled, 1)
	assert.Greater(t, reconciled[0].Value.Number, 1_000_000.0)
	assert.Less(t, reconciled[0].Value.Number, 1_150_000.0)
	assert.Equal(t, "confidence_weighted_mean", reconciled[0].Methodology)
}

func TestProcessDocumentAgreementRaisesNoConflict(t *testing.T) {
	e, st, deal := newTestEngine(t)
	ctx := context.Background()

	_, err := e.ProcessDocument(ctx, deal.ID, "doc-a", []model.ExtractedField{
		{FieldName: "occupancy_rate", Value: model.NumberValue(0.85), Confidence: 90},
	})
	require.NoError(t, err)

	report, err := e.ProcessDocument(ctx, deal.ID, "doc-b", []model.ExtractedField{
		{FieldName: "occupancy_rate", Value: model.NumberValue(0.86), Confidence: 85},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, report.ConflictsCreated)
	assert.False(t, report.HasUnresolved)

	conflicts, err := st.ListConflicts(ctx, deal.ID, false)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestProcessDocumentReprocessingIsIdempotent(t *testing.T) {
	e, st, deal := newTestEngine(t)
	ctx := context.Background()

	fields := []model.ExtractedField{
		{FieldName: "total_revenue", Value: model.NumberValue(1_000_000), Confidence: 55},
	}
	first, err := e.ProcessDocument(ctx, deal.ID, "doc-1", fields)
	require.NoError(t, err)
	assert.Equal(t, 1, first.IssuesCreated)

	second, err := e.ProcessDocument(ctx, deal.ID, "doc-1", fields)
	require.NoError(t, err)
	assert.Equal(t, 0, second.IssuesCreated)

	issues, err := st.ListIssues(ctx, deal.ID, false)
	require.NoError(t, err)
	assert.Len(t, issues, 1)
}

func TestProcessDocumentUnknownDeal(t *testing.T) {
	e, _, _ := newTestEngine(t)

	_, err := e.ProcessDocument(context.Background(), "missing", "doc-1", nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestResolveConflictClearsFlag(t *testing.T) {
	e, st, deal := newTestEngine(t)
	ctx := context.Background()

	_, err := e.ProcessDocument(ctx, deal.ID, "doc-a", []model.ExtractedField{
		{FieldName: "total_revenue", Value: model.NumberValue(1_000_000), Confidence: 90},
	})
	require.NoError(t, err)
	_, err = e.ProcessDocument(ctx, deal.ID, "doc-b", []model.ExtractedField{
		{FieldName: "total_revenue", Value: model.NumberValue(1_150_000), Confidence: 85},
	})
	require.NoError(t, err)

	conflicts, err := st.ListConflicts(ctx, deal.ID, true)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	issues, err := st.ListIssues(ctx, deal.ID, true)
	require.NoError(t, err)
	require.Len(t, issues, 1)

	resolved, err := e.ResolveConflict(ctx, conflicts[0].ID, store.ResolveRequest{
		Resolution: model.ResolutionUseAverage,
		ResolvedBy: "analyst",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ResolutionUseAverage, resolved.Resolution)

	// The conflict issue is still pending, so the flag holds.
	got, err := st.GetDeal(ctx, deal.ID)
	require.NoError(t, err)
	assert.True(t, got.HasUnresolvedConflicts)

	_, err = e.ResolveIssue(ctx, issues[0].ID, store.ResolveRequest{Resolution: model.ResolutionIgnored})
	require.NoError(t, err)

	got, err = st.GetDeal(ctx, deal.ID)
	require.NoError(t, err)
	assert.False(t, got.HasUnresolvedConflicts)
}

func TestDealStatus(t *testing.T) {
	e, _, deal := newTestEngine(t)
	ctx := context.Background()

	_, err := e.ProcessDocument(ctx, deal.ID, "doc-1", []model.ExtractedField{
		{FieldName: "total_revenue", Value: model.NumberValue(1_000_000), Confidence: 55},
		{FieldName: "occupancy_rate", Value: model.NumberValue(0.85), Confidence: 90},
	})
	require.NoError(t, err)

	status, err := e.DealStatus(ctx, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, deal.ID, status.Deal.ID)
	assert.Equal(t, 1, status.PendingIssues)
	assert.Equal(t, 0, status.PendingConflicts)
	assert.Len(t, status.ReconciledFields, 2)
	assert.True(t, status.Deal.HasUnresolvedConflicts)
}
