package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pagebase/core/internal/apperr"
	"github.com/pagebase/core/internal/httpx"
	"github.com/pagebase/core/internal/model"
	"github.com/pagebase/core/internal/sync"
)

const syncRunTimeout = 5 * time.Minute

func (s *Server) runSyncOperation(w http.ResponseWriter, r *http.Request) {
	configID := chi.URLParam(r, "configId")
	cfg, err := s.Store.GetSyncConfig(configID)
	if err != nil {
		httpx.WriteErr(w, apperr.NotFound("sync config not found"))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), syncRunTimeout)
	defer cancel()

	job, err := s.SyncExec.Run(ctx, cfg, httpx.AdminFromCtx(r.Context()))
	if err != nil && job.ID == "" {
		httpx.WriteErr(w, err)
		return
	}

	s.audit(model.ScopeSync, httpx.AdminFromCtx(r.Context()), "run", configID, map[string]any{"job_id": job.ID, "status": job.Status})
	httpx.Ok(w, http.StatusOK, job, "")
}

func (s *Server) syncJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	job, err := s.Store.GetSyncJob(jobID)
	if err != nil {
		httpx.WriteErr(w, apperr.NotFound("sync job not found"))
		return
	}
	httpx.Ok(w, http.StatusOK, job, "")
}

func (s *Server) listConflicts(w http.ResponseWriter, r *http.Request) {
	configID := chi.URLParam(r, "configId")
	jobs, err := s.Store.ListSyncJobsByConfig(configID)
	if err != nil {
		httpx.WriteErr(w, apperr.Fatal(err))
		return
	}
	statusFilter := r.URL.Query().Get("status_filter")

	var out []model.Conflict
	for _, j := range jobs {
		cs, err := s.Store.ListConflictsByJob(j.ID)
		if err != nil {
			continue
		}
		for _, c := range cs {
			if statusFilter != "" && string(c.Status) != statusFilter {
				continue
			}
			out = append(out, c)
		}
	}
	httpx.Ok(w, http.StatusOK, out, "")
}

type resolveConflictInput struct {
	Resolution string      `json:"resolution"`
	MergedData model.Record `json:"merged_data,omitempty"`
}

func (s *Server) resolveConflict(w http.ResponseWriter, r *http.Request) {
	conflictID := chi.URLParam(r, "conflictId")
	var in resolveConflictInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.WriteErr(w, apperr.Validation("invalid request body", err.Error()))
		return
	}
	if in.Resolution == "" {
		httpx.WriteErr(w, apperr.Validation("resolution is required", nil))
		return
	}

	resolved, err := sync.Resolve(s.Store, conflictID, in.Resolution, httpx.AdminFromCtx(r.Context()), in.MergedData)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	s.audit(model.ScopeConflict, httpx.AdminFromCtx(r.Context()), "resolve", conflictID, map[string]any{"resolution": in.Resolution})
	httpx.Ok(w, http.StatusOK, resolved, "conflict resolved")
}
