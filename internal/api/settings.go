package api

import (
	"encoding/json"
	"net/http"

	"github.com/pagebase/core/internal/apperr"
	"github.com/pagebase/core/internal/httpx"
	"github.com/pagebase/core/internal/model"
)

func (s *Server) getRedisSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.Settings.Get()
	if err != nil {
		httpx.WriteErr(w, apperr.Fatal(err))
		return
	}
	cfg.CacheToken = ""
	httpx.Ok(w, http.StatusOK, cfg, "")
}

func (s *Server) putRedisSettings(w http.ResponseWriter, r *http.Request) {
	existing, err := s.Settings.Get()
	if err != nil {
		httpx.WriteErr(w, apperr.Fatal(err))
		return
	}
	var in model.ProjectSettings
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.WriteErr(w, apperr.Validation("invalid request body", err.Error()))
		return
	}
	if in.CacheToken == "" {
		in.CacheToken = existing.CacheToken
	}
	if err := s.Settings.Put(in); err != nil {
		httpx.WriteErr(w, apperr.Fatal(err))
		return
	}
	s.Cache.Configure(in)
	s.audit(model.ScopeSettings, httpx.AdminFromCtx(r.Context()), "update", "redis", map[string]any{"cache_type": in.CacheType, "cache_enabled": in.CacheEnabled})

	in.CacheToken = ""
	httpx.Ok(w, http.StatusOK, in, "cache settings updated")
}

func (s *Server) testRedisSettings(w http.ResponseWriter, r *http.Request) {
	var in model.ProjectSettings
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.WriteErr(w, apperr.Validation("invalid request body", err.Error()))
		return
	}
	if in.CacheToken == "" {
		if existing, err := s.Settings.Get(); err == nil {
			in.CacheToken = existing.CacheToken
		}
	}
	result := s.Cache.TestBackend(r.Context(), in)
	httpx.Ok(w, http.StatusOK, map[string]any{"result": result}, "")
}
