package api

import (
	"encoding/json"
	"net/http"

	"github.com/pagebase/core/internal/apperr"
	"github.com/pagebase/core/internal/httpx"
)

type loginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// login mints the single bootstrap admin's bearer token against the
// ADMIN_EMAIL/ADMIN_PASSWORD configured at boot. There is exactly one admin
// principal per spec.md Non-goals, so this checks two env-sourced strings
// rather than a user table.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in loginInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.WriteErr(w, apperr.Validation("invalid request body", err.Error()))
		return
	}
	if s.Config.AdminEmail == "" || in.Email != s.Config.AdminEmail || in.Password != s.Config.AdminPassword {
		httpx.WriteErr(w, apperr.Validation("invalid credentials", nil))
		return
	}
	token, err := s.Issuer.Issue(in.Email)
	if err != nil {
		httpx.WriteErr(w, apperr.Fatal(err))
		return
	}
	httpx.Ok(w, http.StatusOK, map[string]any{"token": token}, "")
}
