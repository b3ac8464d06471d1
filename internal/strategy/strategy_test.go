package strategy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pagebase/core/internal/apperr"
	"github.com/pagebase/core/internal/cache"
	"github.com/pagebase/core/internal/model"
)

func TestEdgeHTTPPublishPageSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/import" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"previewUrl":"https://preview.example/p1"}`))
	}))
	defer srv.Close()

	s := NewEdgeHTTPStrategy(srv.URL)
	res, err := s.PublishPage(context.Background(), model.CompiledPage{Slug: "p1", Version: 3}, true)
	if err != nil {
		t.Fatalf("PublishPage: %v", err)
	}
	if res.PreviewURL != "https://preview.example/p1" || res.Version != 3 {
		t.Fatalf("unexpected result: %#v", res)
	}
}

func TestEdgeHTTPPublishPageUnreachableReturnsUnavailable(t *testing.T) {
	s := NewEdgeHTTPStrategy("http://127.0.0.1:1")
	_, err := s.PublishPage(context.Background(), model.CompiledPage{Slug: "p1"}, true)
	if err == nil {
		t.Fatalf("expected error")
	}
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindUnavailable {
		t.Fatalf("expected KindUnavailable, got %#v", err)
	}
}

func TestEdgeHTTPPublishPageNon2xxReturnsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewEdgeHTTPStrategy(srv.URL)
	_, err := s.PublishPage(context.Background(), model.CompiledPage{Slug: "p1"}, true)
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindUpstream {
		t.Fatalf("expected KindUpstream, got %#v", err)
	}
}

func TestHostedSQLPublishPagePurgesCacheOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/pipeline" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := cache.New()
	c.Set(context.Background(), "published_page:p1:x", "stale", time.Minute)

	s := NewHostedSQLStrategy(srv.URL, "tok", c)
	res, err := s.PublishPage(context.Background(), model.CompiledPage{Slug: "p1", Version: 1}, true)
	if err != nil {
		t.Fatalf("PublishPage: %v", err)
	}
	if res.Version != 1 {
		t.Fatalf("unexpected version: %d", res.Version)
	}

	var out string
	if c.Get(context.Background(), "published_page:p1:x", &out) {
		t.Fatalf("expected cache key to be purged")
	}
}
