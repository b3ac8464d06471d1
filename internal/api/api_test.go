package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pagebase/core/internal/cache"
	"github.com/pagebase/core/internal/httpx"
	"github.com/pagebase/core/internal/localdb"
	"github.com/pagebase/core/internal/model"
	"github.com/pagebase/core/internal/publish"
	"github.com/pagebase/core/internal/schema"
	"github.com/pagebase/core/internal/secrets"
	"github.com/pagebase/core/internal/store"
	"github.com/pagebase/core/pkg/config"
)

// fakeStrategy stands in for internal/strategy in handler-level tests so
// publishPage never makes a real network call.
type fakeStrategy struct {
	result     model.PublishResult
	err        error
	publishedN int
}

func (f *fakeStrategy) PublishPage(ctx context.Context, payload model.CompiledPage, force bool) (model.PublishResult, error) {
	f.publishedN++
	return f.result, f.err
}
func (f *fakeStrategy) UnpublishPage(ctx context.Context, slug string) error { return nil }
func (f *fakeStrategy) SyncSettings(ctx context.Context, s model.ProjectSettings) error {
	return nil
}

func newTestServer(t *testing.T) (*Server, *fakeStrategy) {
	t.Helper()
	mgr, err := localdb.OpenManager(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })

	st := store.New(mgr.DB)
	secretsMgr, err := secrets.New("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("secrets.New: %v", err)
	}
	c := cache.New()
	schemas := schema.New(st)
	strat := &fakeStrategy{result: model.PublishResult{PreviewURL: "https://preview.example/p1", Version: 1}}

	srv := &Server{
		DB:      mgr.DB,
		Store:   st,
		Secrets: secretsMgr,
		Schemas: schemas,
		Cache:   c,
		Strategy: strat,
		Logger:  zap.NewNop(),
		Issuer:  httpx.NewTokenIssuer("test-secret", time.Hour),
		Config: &config.Config{
			AdminEmail:    "admin@example.com",
			AdminPassword: "hunter2",
			CORSOrigins:   []string{"*"},
		},
	}
	srv.Compiler = publish.New(st, schemas, srv.AdapterFor, c, func() model.ProjectSettings {
		return model.DefaultProjectSettings()
	})
	return srv, strat
}

func withURLParam(r *http.Request, key, val string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, val)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestLoginSuccessAndFailure(t *testing.T) {
	srv, _ := newTestServer(t)

	ok := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"email":"admin@example.com","password":"hunter2"}`))
	w := httptest.NewRecorder()
	srv.login(w, ok)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	bad := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"email":"admin@example.com","password":"wrong"}`))
	w2 := httptest.NewRecorder()
	srv.login(w2, bad)
	if w2.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad credentials, got %d", w2.Code)
	}
}

func TestPublishPageNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/pages/missing/publish", nil)
	req = withURLParam(req, "pageId", "missing")
	w := httptest.NewRecorder()
	srv.publishPage(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPublishPageSuccessFlipsIsPublic(t *testing.T) {
	srv, strat := newTestServer(t)

	page := model.Page{ID: "p1", Slug: "home", Name: "Home"}
	if err := srv.Store.PutPage(page); err != nil {
		t.Fatalf("PutPage: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/pages/p1/publish", nil)
	req = withURLParam(req, "pageId", "p1")
	w := httptest.NewRecorder()
	srv.publishPage(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if strat.publishedN != 1 {
		t.Fatalf("expected strategy to be invoked once, got %d", strat.publishedN)
	}

	updated, err := srv.Store.GetPage("p1")
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if !updated.IsPublic {
		t.Fatalf("expected page to be flipped public after a successful publish")
	}
}

func TestGetPublicPageNotFoundWhenPrivate(t *testing.T) {
	srv, _ := newTestServer(t)
	if err := srv.Store.PutPage(model.Page{ID: "p2", Slug: "draft", IsPublic: false}); err != nil {
		t.Fatalf("PutPage: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/pages/public/draft", nil)
	req = withURLParam(req, "slug", "draft")
	w := httptest.NewRecorder()
	srv.getPublicPage(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a non-public page, got %d", w.Code)
	}
}
