package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reconcile-cli/internal/benchmark"
	"github.com/sells-group/reconcile-cli/internal/config"
	"github.com/sells-group/reconcile-cli/internal/engine"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/store"
)

func newTestServer(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	benchmarks := benchmark.NewTable(map[string]map[string]model.BenchmarkRange{
		"default": {
			"occupancy_rate": {Min: 0.60, Median: 0.85, Max: 0.98},
		},
	})
	cfg := config.ReconcileConfig{
		MinConfidenceThreshold: 70,
		MaxBenchmarkVariance:   0.20,
		MaxDocumentVariance:    0.10,
		AutoResolveThreshold:   95,
		MaxCompareDocuments:    25,
		CriticalFields:         []string{"total_revenue", "occupancy_rate", "licensed_beds"},
	}
	return New(engine.New(st, benchmarks, cfg)).Router(), st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"status": "ok"}, decode[map[string]string](t, rec))
}

func TestCreateAndListDeals(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/deals", map[string]string{
		"name":              "Cedar Grove SNF",
		"facility_category": "skilled_nursing",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	deal := decode[model.Deal](t, rec)
	assert.NotEmpty(t, deal.ID)

	rec = doJSON(t, h, http.MethodPost, "/deals", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/deals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Deal](t, rec), 1)
}

func TestIngestDocumentEndToEnd(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/deals", map[string]string{"name": "Deal"})
	require.Equal(t, http.StatusCreated, rec.Code)
	deal := decode[model.Deal](t, rec)

	rec = doJSON(t, h, http.MethodPost, "/deals/"+deal.ID+"/documents", map[string]any{
		"document_id": "doc-1",
		"fields": []map[string]any{
			{"field_name": "total_revenue", "value": 1_000_000, "confidence": 55},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[engine.Report](t, rec)
	assert.Equal(t, 1, report.IssuesCreated)
	assert.True(t, report.HasUnresolved)

	rec = doJSON(t, h, http.MethodGet, "/deals/"+deal.ID+"/issues", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	issues := decode[[]model.Issue](t, rec)
	require.Len(t, issues, 1)
	assert.Equal(t, model.IssueLowConfidence, issues[0].Kind)

	rec = doJSON(t, h, http.MethodGet, "/deals/"+deal.ID+"/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[engine.Status](t, rec)
	assert.Equal(t, 1, status.PendingIssues)
}

func TestIngestValidation(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/deals", map[string]string{"name": "Deal"})
	deal := decode[model.Deal](t, rec)

	rec = doJSON(t, h, http.MethodPost, "/deals/"+deal.ID+"/documents", map[string]any{
		"fields": []map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/deals/missing/documents", map[string]any{
		"document_id": "doc-1",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveConflictEndpoint(t *testing.T) {
	h, st := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/deals", map[string]string{"name": "Deal"})
	deal := decode[model.Deal](t, rec)

	for doc, revenue := range map[string]float64{"doc-a": 1_000_000, "doc-b": 1_150_000} {
		rec = doJSON(t, h, http.MethodPost, "/deals/"+deal.ID+"/documents", map[string]any{
			"document_id": doc,
			"fields": []map[string]any{
				{"field_name": "total_revenue", "value": revenue, "confidence": 90},
			},
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/deals/"+deal.ID+"/conflicts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	conflicts := decode[[]model.Conflict](t, rec)
	require.Len(t, conflicts, 1)

	rec = doJSON(t, h, http.MethodPost, "/conflicts/"+conflicts[0].ID+"/resolution", map[string]any{
		"resolution":  "use_average",
		"resolved_by": "analyst",
		"rationale":   "averaged per review call",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := decode[model.Conflict](t, rec)
	assert.Equal(t, model.ResolutionUseAverage, resolved.Resolution)
	require.NotNil(t, resolved.ResolvedValue)
	assert.InDelta(t, 1_075_000, resolved.ResolvedValue.Number, 0.001)

	// Second attempt hits the terminal-state guard.
	rec = doJSON(t, h, http.MethodPost, "/conflicts/"+conflicts[0].ID+"/resolution", map[string]any{
		"resolution": "use_first",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Unknown id.
	rec = doJSON(t, h, http.MethodPost, "/conflicts/missing/resolution", map[string]any{
		"resolution": "ignored",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	got, err := st.GetConflict(context.Background(), conflicts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.ResolutionUseAverage, got.Resolution)
}

func TestResolveIssueEndpoint(t *testing.T) {
	h, st := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/deals", map[string]string{"name": "Deal"})
	deal := decode[model.Deal](t, rec)

	rec = doJSON(t, h, http.MethodPost, "/deals/"+deal.ID+"/documents", map[string]any{
		"document_id": "doc-1",
		"fields": []map[string]any{
			{"field_name": "licensed_beds", "value": nil, "confidence": 0},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	issues, err := st.ListIssues(context.Background(), deal.ID, true)
	require.NoError(t, err)
	require.Len(t, issues, 1)

	rec = doJSON(t, h, http.MethodPost, "/issues/"+issues[0].ID+"/resolution", map[string]any{
		"resolution": "use_first",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/issues/"+issues[0].ID+"/resolution", map[string]any{
		"resolution":  "manual_value",
		"value":       120,
		"resolved_by": "analyst",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := decode[model.Issue](t, rec)
	assert.Equal(t, model.IssueResolved, resolved.Status)

	deals, err := st.GetDeal(context.Background(), deal.ID)
	require.NoError(t, err)
	assert.False(t, deals.HasUnresolvedConflicts)
}
