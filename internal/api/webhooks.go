package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pagebase/core/internal/apperr"
	"github.com/pagebase/core/internal/httpx"
	"github.com/pagebase/core/internal/model"
)

var inboundWebhookProviders = map[string]bool{
	"n8n": true, "zapier": true, "activepieces": true, "generic": true,
}

// inboundWebhook lets an external automation tool (n8n, Zapier,
// ActivePieces, or any generic caller) dispatch a sync run the same way a
// manual trigger or the cron scheduler would, distinguished only by
// SyncJob.TriggeredBy.
func (s *Server) inboundWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !inboundWebhookProviders[provider] {
		httpx.WriteErr(w, apperr.Validation("unknown webhook provider", provider))
		return
	}
	configID := chi.URLParam(r, "configId")
	cfg, err := s.Store.GetSyncConfig(configID)
	if err != nil {
		httpx.WriteErr(w, apperr.NotFound("sync config not found"))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), syncRunTimeout)
	defer cancel()

	job, err := s.SyncExec.Run(ctx, cfg, "webhook:"+provider)
	if err != nil && job.ID == "" {
		httpx.WriteErr(w, err)
		return
	}
	s.audit(model.ScopeSync, "webhook:"+provider, "run", configID, map[string]any{"job_id": job.ID, "status": job.Status})
	httpx.Ok(w, http.StatusOK, job, "")
}
