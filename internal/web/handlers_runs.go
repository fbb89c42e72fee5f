package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/topsis/internal/core"
)

var errRunNotFound = errors.New("run not found")

// RunsResponse is the body of GET /api/runs.
type RunsResponse struct {
	Runs  []core.RunRecord `json:"runs"`
	Count int              `json:"count"`
}

// handleListRuns returns recent runs, newest first. ?limit defaults to 20.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Message: "limit must be an integer", Kind: "invalid_limit"})
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRecent(r.Context(), limit)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []core.RunRecord{}
	}
	writeJSON(w, http.StatusOK, RunsResponse{Runs: runs, Count: len(runs)})
}

// handleGetRun returns one run by id.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "run id must be a UUID", Kind: "invalid_id"})
		return
	}

	run, err := s.runs.GetRun(r.Context(), id.String())
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if run == nil {
		writeJSON(w, http.StatusNotFound, Response{Message: errRunNotFound.Error(), Kind: kindNotFound})
		return
	}
	writeJSON(w, http.StatusOK, run)
}
