// Package server exposes the reconciliation engine over HTTP for the review
// UI: document ingestion plus issue/conflict browsing and resolution.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/engine"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/store"
)

type Server struct {
	engine *engine.Engine
}

func New(e *engine.Engine) *Server {
	return &Server{engine: e}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/deals", func(r chi.Router) {
		r.Post("/", s.handleCreateDeal)
		r.Get("/", s.handleListDeals)
		r.Route("/{dealID}", func(r chi.Router) {
			r.Post("/documents", s.handleIngestDocument)
			r.Get("/issues", s.handleListIssues)
			r.Get("/conflicts", s.handleListConflicts)
			r.Get("/status", s.handleStatus)
		})
	})

	r.Post("/conflicts/{conflictID}/resolution", s.handleResolveConflict)
	r.Post("/issues/{issueID}/resolution", s.handleResolveIssue)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateDeal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name             string `json:"name"`
		FacilityCategory string `json:"facility_category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	deal, err := s.engine.Store().CreateDeal(r.Context(), req.Name, req.FacilityCategory)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, deal)
}

func (s *Server) handleListDeals(w http.ResponseWriter, r *http.Request) {
	deals, err := s.engine.Store().ListDeals(r.Context(), 0)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if deals == nil {
		deals = []model.Deal{}
	}
	writeJSON(w, http.StatusOK, deals)
}

func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")

	var req struct {
		DocumentID string                 `json:"document_id"`
		Fields     []model.ExtractedField `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, "document_id is required")
		return
	}

	report, err := s.engine.ProcessDocument(r.Context(), dealID, req.DocumentID, req.Fields)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")
	pendingOnly := r.URL.Query().Get("all") != "true"

	if _, err := s.engine.Store().GetDeal(r.Context(), dealID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	issues, err := s.engine.Store().ListIssues(r.Context(), dealID, pendingOnly)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if issues == nil {
		issues = []model.Issue{}
	}
	writeJSON(w, http.StatusOK, issues)
}

func (s *Server) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")
	pendingOnly := r.URL.Query().Get("all") != "true"

	if _, err := s.engine.Store().GetDeal(r.Context(), dealID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	conflicts, err := s.engine.Store().ListConflicts(r.Context(), dealID, pendingOnly)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if conflicts == nil {
		conflicts = []model.Conflict{}
	}
	writeJSON(w, http.StatusOK, conflicts)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.DealStatus(r.Context(), chi.URLParam(r, "dealID"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// resolutionRequest is the wire form of a resolution action.
type resolutionRequest struct {
	Resolution string            `json:"resolution"`
	Value      *model.FieldValue `json:"value,omitempty"`
	ResolvedBy string            `json:"resolved_by"`
	Rationale  string            `json:"rationale"`
}

func (req resolutionRequest) toStore() store.ResolveRequest {
	return store.ResolveRequest{
		Resolution: model.ConflictResolution(req.Resolution),
		Value:      req.Value,
		ResolvedBy: req.ResolvedBy,
		Rationale:  req.Rationale,
	}
}

func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req resolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := s.engine.ResolveConflict(r.Context(), chi.URLParam(r, "conflictID"), req.toStore())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleResolveIssue(w http.ResponseWriter, r *http.Request) {
	var req resolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	iss, err := s.engine.ResolveIssue(r.Context(), chi.URLParam(r, "issueID"), req.toStore())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, iss)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, "already resolved")
	case errors.Is(err, store.ErrInvalidResolution):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
