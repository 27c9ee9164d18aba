package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/normgraph/normgraph/internal/knowledge"
	"github.com/normgraph/normgraph/internal/retrieval"
	"github.com/normgraph/normgraph/internal/types"
)

type queryRequest struct {
	Query     string `json:"query"`
	TopK      int    `json:"top_k,omitempty"`
	SkipCache bool   `json:"skip_cache,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.WrapError(types.QUERY_INVALID, "invalid request body", err))
		return
	}

	resp, err := s.deps.Orchestrator.Query(r.Context(), req.Query, retrieval.QueryOptions{
		TopK:      req.TopK,
		SkipCache: req.SkipCache,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type ingestRequest struct {
	// Path is a file path readable by the server process.
	Path           string `json:"path"`
	Force          bool   `json:"force,omitempty"`
	SkipExtraction bool   `json:"skip_extraction,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.WrapError(types.INGEST_FAILED, "invalid request body", err))
		return
	}
	if req.Path == "" {
		writeError(w, types.NewError(types.INGEST_FAILED, "path is required"))
		return
	}

	result, err := s.deps.Ingester.Ingest(r.Context(), req.Path, knowledge.IngestOptions{
		Force:          req.Force,
		SkipExtraction: req.SkipExtraction,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.deps.Manager.ListSources(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	if err := s.deps.Manager.DeleteSource(r.Context(), source); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": source})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Manager.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Manager.Health(r.Context())
	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
