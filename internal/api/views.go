package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pagebase/core/internal/apperr"
	"github.com/pagebase/core/internal/httpx"
	"github.com/pagebase/core/internal/model"
	"github.com/pagebase/core/internal/validate"
)

// validateFilters rejects a view's filters against the closed operator
// schema before they reach the store, producing the 422 spec.md's error
// table requires from a "schema-validator rejection" rather than letting a
// bad operator survive into the adapter's WHERE builder.
func validateFilters(filters []model.FilterExpr) error {
	for _, f := range filters {
		if err := validate.FilterExpr(f); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) listViewsForDatasource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	views, err := s.Store.ListViewsByDatasource(id)
	if err != nil {
		httpx.WriteErr(w, apperr.Fatal(err))
		return
	}
	httpx.Ok(w, http.StatusOK, views, "")
}

func (s *Server) createView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var v model.DatasourceView
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		httpx.WriteErr(w, apperr.Validation("invalid request body", err.Error()))
		return
	}
	if v.Name == "" || v.TargetTable == "" {
		httpx.WriteErr(w, apperr.Validation("name and target_table are required", nil))
		return
	}
	if err := validateFilters(v.Filters); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	v.DatasourceID = id
	created, err := s.Store.CreateView(v)
	if err != nil {
		httpx.WriteErr(w, apperr.Fatal(err))
		return
	}
	s.audit(model.ScopeView, httpx.AdminFromCtx(r.Context()), "create", created.ID, map[string]any{"name": created.Name})
	httpx.Ok(w, http.StatusCreated, created, "view created")
}

func (s *Server) getView(w http.ResponseWriter, r *http.Request) {
	v, err := s.Store.GetView(chi.URLParam(r, "viewId"))
	if err != nil {
		httpx.WriteErr(w, apperr.NotFound("view not found"))
		return
	}
	httpx.Ok(w, http.StatusOK, v, "")
}

func (s *Server) updateView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "viewId")
	existing, err := s.Store.GetView(id)
	if err != nil {
		httpx.WriteErr(w, apperr.NotFound("view not found"))
		return
	}
	var in model.DatasourceView
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.WriteErr(w, apperr.Validation("invalid request body", err.Error()))
		return
	}
	if err := validateFilters(in.Filters); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	in.ID = id
	in.DatasourceID = existing.DatasourceID
	in.CreatedAt = existing.CreatedAt
	if err := s.Store.UpdateView(in); err != nil {
		httpx.WriteErr(w, apperr.Fatal(err))
		return
	}
	s.audit(model.ScopeView, httpx.AdminFromCtx(r.Context()), "update", id, nil)
	httpx.Ok(w, http.StatusOK, in, "view updated")
}

func (s *Server) deleteView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "viewId")
	if err := s.Store.DeleteView(id); err != nil {
		httpx.WriteErr(w, apperr.Fatal(err))
		return
	}
	s.audit(model.ScopeView, httpx.AdminFromCtx(r.Context()), "delete", id, nil)
	httpx.JSON(w, http.StatusNoContent, nil)
}

func (s *Server) readViewRecords(w http.ResponseWriter, r *http.Request) {
	v, err := s.Store.GetView(chi.URLParam(r, "viewId"))
	if err != nil {
		httpx.WriteErr(w, apperr.NotFound("view not found"))
		return
	}
	page := atoiOr(r.URL.Query().Get("page"), 1)
	limit := atoiOr(r.URL.Query().Get("limit"), 50)
	recs, err := s.Views.ReadView(r.Context(), v, page, limit)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.Ok(w, http.StatusOK, recs, "")
}

func (s *Server) countViewRecords(w http.ResponseWriter, r *http.Request) {
	v, err := s.Store.GetView(chi.URLParam(r, "viewId"))
	if err != nil {
		httpx.WriteErr(w, apperr.NotFound("view not found"))
		return
	}
	count, err := s.Views.CountView(r.Context(), v)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.Ok(w, http.StatusOK, map[string]any{"count": count}, "")
}

func (s *Server) insertViaView(w http.ResponseWriter, r *http.Request) {
	v, err := s.Store.GetView(chi.URLParam(r, "viewId"))
	if err != nil {
		httpx.WriteErr(w, apperr.NotFound("view not found"))
		return
	}
	var rec model.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		httpx.WriteErr(w, apperr.Validation("invalid request body", err.Error()))
		return
	}
	out, err := s.Views.WriteRecord(r.Context(), v, rec, r.URL.Query().Get("key_column"))
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.Ok(w, http.StatusCreated, out, "")
}

func (s *Server) updateViaView(w http.ResponseWriter, r *http.Request) {
	v, err := s.Store.GetView(chi.URLParam(r, "viewId"))
	if err != nil {
		httpx.WriteErr(w, apperr.NotFound("view not found"))
		return
	}
	var rec model.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		httpx.WriteErr(w, apperr.Validation("invalid request body", err.Error()))
		return
	}
	out, err := s.Views.WriteRecord(r.Context(), v, rec, r.URL.Query().Get("key_column"))
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.Ok(w, http.StatusOK, out, "")
}

func (s *Server) triggerView(w http.ResponseWriter, r *http.Request) {
	v, err := s.Store.GetView(chi.URLParam(r, "viewId"))
	if err != nil {
		httpx.WriteErr(w, apperr.NotFound("view not found"))
		return
	}
	var payload model.Record
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httpx.WriteErr(w, apperr.Validation("invalid request body", err.Error()))
		return
	}
	s.Views.TriggerView(v, payload)
	httpx.Ok(w, http.StatusOK, map[string]any{"triggered": true}, "")
}
