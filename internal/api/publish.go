package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pagebase/core/internal/apperr"
	"github.com/pagebase/core/internal/httpx"
	"github.com/pagebase/core/internal/model"
)

type publishResponse struct {
	Success    bool   `json:"success"`
	PreviewURL string `json:"previewUrl,omitempty"`
	Version    int    `json:"version,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	Details    any    `json:"details,omitempty"`
}

func (s *Server) activeDatasources() ([]model.Datasource, error) {
	all, err := s.Store.ListDatasources()
	if err != nil {
		return nil, err
	}
	out := make([]model.Datasource, 0, len(all))
	for _, ds := range all {
		if ds.Active {
			out = append(out, ds)
		}
	}
	return out, nil
}

// publishPage runs the full publish pipeline for one page: compile (steps
// 2-9 of the publish compiler), hand the bundle to the configured Publish
// Strategy, and only on success flip is_public — a second, short-lived
// store write, never held open across the strategy's network call.
func (s *Server) publishPage(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageId")

	page, err := s.Store.GetPage(pageID)
	if err != nil {
		httpx.JSON(w, http.StatusNotFound, publishResponse{Success: false, Error: "not_found", Message: "page not found"})
		return
	}

	var components []model.PageComponent
	if len(page.LayoutData) > 0 {
		if err := json.Unmarshal(page.LayoutData, &components); err != nil {
			httpx.JSON(w, http.StatusBadRequest, publishResponse{Success: false, Error: "validation_error", Message: "malformed layout_data"})
			return
		}
	}

	datasources, err := s.activeDatasources()
	if err != nil {
		httpx.WriteErr(w, apperr.Fatal(err))
		return
	}

	compiled, err := s.Compiler.Compile(r.Context(), page, datasources, components)
	if err != nil {
		writePublishErr(w, err)
		return
	}

	var force bool
	if r.ContentLength != 0 {
		var body struct {
			Force bool `json:"force"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		force = body.Force
	}

	result, err := s.Strategy.PublishPage(r.Context(), *compiled, force)
	if err != nil {
		writePublishErr(w, err)
		return
	}

	if err := s.Store.SetPagePublic(pageID, true); err != nil {
		httpx.WriteErr(w, apperr.Fatal(err))
		return
	}

	s.audit(model.ScopePublish, httpx.AdminFromCtx(r.Context()), "publish", pageID, map[string]any{"version": result.Version})
	httpx.JSON(w, http.StatusOK, publishResponse{Success: true, PreviewURL: result.PreviewURL, Version: result.Version})
}

// getPublicPage re-runs the publish compiler (the same enrichment path
// publishPage uses) on every request so server-side rendering always sees
// fresh DataRequests, per spec.md §6.
func (s *Server) getPublicPage(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	page, err := s.Store.GetPageBySlug(slug)
	if err != nil {
		httpx.WriteErr(w, apperr.NotFound("page not found"))
		return
	}
	if !page.IsPublic {
		httpx.WriteErr(w, apperr.NotFound("page not found"))
		return
	}

	var components []model.PageComponent
	if len(page.LayoutData) > 0 {
		if err := json.Unmarshal(page.LayoutData, &components); err != nil {
			httpx.WriteErr(w, apperr.Validation("malformed layout_data", err.Error()))
			return
		}
	}
	datasources, err := s.activeDatasources()
	if err != nil {
		httpx.WriteErr(w, apperr.Fatal(err))
		return
	}
	compiled, err := s.Compiler.Compile(r.Context(), page, datasources, components)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.Ok(w, http.StatusOK, compiled, "")
}

func writePublishErr(w http.ResponseWriter, err error) {
	if e, ok := apperr.As(err); ok {
		status := publishStatusFor(e.Kind)
		httpx.JSON(w, status, publishResponse{Success: false, Error: string(e.Kind), Message: e.Message, Details: e.Details})
		return
	}
	httpx.JSON(w, http.StatusInternalServerError, publishResponse{Success: false, Error: "internal_error", Message: err.Error()})
}

func publishStatusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnprocessable:
		return http.StatusUnprocessableEntity
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindSchemaMiss:
		return http.StatusNotFound
	case apperr.KindUpstream:
		return http.StatusBadGateway
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
