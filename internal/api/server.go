// Package api exposes the REST surface of spec.md §4.I / §6: thin HTTP
// handlers over the components the rest of the module implements. Every
// handler follows the teacher's internal/httpx handler convention — decode,
// call the domain package, write an Envelope — with chi route params
// standing in for the teacher's own path-parameter extraction.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pagebase/core/internal/adapter"
	"github.com/pagebase/core/internal/audit"
	"github.com/pagebase/core/internal/cache"
	"github.com/pagebase/core/internal/httpx"
	"github.com/pagebase/core/internal/localdb"
	"github.com/pagebase/core/internal/model"
	"github.com/pagebase/core/internal/publish"
	"github.com/pagebase/core/internal/schema"
	"github.com/pagebase/core/internal/secrets"
	"github.com/pagebase/core/internal/settings"
	"github.com/pagebase/core/internal/store"
	"github.com/pagebase/core/internal/strategy"
	"github.com/pagebase/core/internal/sync"
	"github.com/pagebase/core/internal/view"
	"github.com/pagebase/core/pkg/config"
)

const adapterConnectTimeout = 15 * time.Second

// Server holds every dependency a handler needs. It is constructed once in
// cmd/server and closed over by the route handlers.
type Server struct {
	DB        *localdb.DB
	Store     *store.Store
	Schemas   *schema.Cache
	Secrets   *secrets.Manager
	Views     *view.Reader
	SyncExec  *sync.Executor
	Scheduler *sync.Scheduler
	Compiler  *publish.Compiler
	Cache     *cache.Cache
	Settings  settings.Manager
	Strategy  strategy.Strategy
	Logger    *zap.Logger
	Issuer    *httpx.TokenIssuer
	Config    *config.Config
}

// AdapterFor builds, decrypts, and connects a live adapter for ds, the
// AdapterFactory every domain package (schema/view/sync/publish) is handed
// at construction time.
func (s *Server) AdapterFor(ctx context.Context, ds model.Datasource) (adapter.Adapter, error) {
	opts := model.ConnectOpts{
		Host: ds.Host, Port: ds.Port, Database: ds.Database,
		User: ds.User, RESTBaseURL: ds.RESTBaseURL, AnonKey: ds.AnonKey,
		TablePrefix: ds.TablePrefix,
	}
	if ds.Password != "" {
		pw, err := s.Secrets.Decrypt(ds.Password)
		if err != nil {
			return nil, err
		}
		opts.Password = pw
	}
	if ds.ServiceKeyEnc != "" {
		sk, err := s.Secrets.Decrypt(ds.ServiceKeyEnc)
		if err != nil {
			return nil, err
		}
		opts.ServiceKey = sk
	}

	ad, err := adapter.Factory(ds, opts)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, adapterConnectTimeout)
	defer cancel()
	if err := ad.Connect(cctx); err != nil {
		return nil, err
	}
	return ad, nil
}

func (s *Server) audit(scope model.AuditScope, actor, action, entityID string, diff any) {
	audit.Append(s.DB, scope, actor, action, entityID, diff)
}

// NewRouter wires every route named in spec.md §6 onto a chi.Mux.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpx.RequestID)
	r.Use(httpx.Logging(s.Logger))
	r.Use(httpx.CORS(s.Config.CORSOrigins))

	admin := httpx.RequireAdmin(s.Issuer)

	r.Post("/api/auth/login", s.login)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/sync/datasources", func(r chi.Router) {
		r.With(admin).Post("/", s.createDatasource)
		r.Get("/", s.listDatasources)
		r.With(admin).Post("/test-raw", s.testRawDatasource)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getDatasource)
			r.With(admin).Put("/", s.updateDatasource)
			r.With(admin).Delete("/", s.deleteDatasource)
			r.With(admin).Post("/test", s.testDatasource)
			r.With(admin).Post("/test-update", s.testUpdateDatasource)
			r.Get("/tables", s.listTables)
			r.Get("/tables/{table}/schema", s.getTableSchema)
			r.Get("/tables/{table}/data", s.readTableData)
			r.Post("/tables/{table}/records", s.createRecord)
			r.Patch("/tables/{table}/records/{recordId}", s.updateRecord)
			r.Delete("/tables/{table}/records/{recordId}", s.deleteRecordHandler)
			r.Get("/tables/{table}/distinct/{column}", s.distinctValues)
			r.Get("/relationships", s.relationships)
			r.Get("/search", s.searchTable)
		})
		r.Get("/search-all", s.searchAll)
	})

	r.Route("/api/sync/views", func(r chi.Router) {
		r.Get("/{viewId}", s.getView)
		r.With(admin).Patch("/{viewId}", s.updateView)
		r.With(admin).Delete("/{viewId}", s.deleteView)
		r.Get("/{viewId}/records", s.readViewRecords)
		r.Get("/{viewId}/count", s.countViewRecords)
		r.With(admin).Post("/{viewId}/records", s.insertViaView)
		r.With(admin).Patch("/{viewId}/records", s.updateViaView)
		r.Post("/{viewId}/trigger", s.triggerView)
	})
	r.Route("/api/sync/datasources/{id}/views", func(r chi.Router) {
		r.Get("/", s.listViewsForDatasource)
		r.With(admin).Post("/", s.createView)
	})

	r.Route("/api/sync/operations", func(r chi.Router) {
		r.With(admin).Post("/{configId}", s.runSyncOperation)
		r.Get("/{configId}/status/{jobId}", s.syncJobStatus)
		r.Get("/{configId}/conflicts", s.listConflicts)
		r.With(admin).Post("/{configId}/resolve/{conflictId}", s.resolveConflict)
	})

	r.Route("/api/sync/webhooks", func(r chi.Router) {
		r.Post("/{provider}/{configId}", s.inboundWebhook)
	})

	r.Route("/api/sync/settings", func(r chi.Router) {
		r.Get("/redis", s.getRedisSettings)
		r.With(admin).Put("/redis", s.putRedisSettings)
		r.With(admin).Post("/redis/test", s.testRedisSettings)
	})

	r.Route("/api/pages", func(r chi.Router) {
		r.With(admin).Post("/{pageId}/publish", s.publishPage)
		r.Get("/public/{slug}", s.getPublicPage)
	})

	return r
}
