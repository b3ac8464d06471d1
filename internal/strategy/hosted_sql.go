package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pagebase/core/internal/apperr"
	"github.com/pagebase/core/internal/cache"
	"github.com/pagebase/core/internal/metrics"
	"github.com/pagebase/core/internal/model"
)

const hostedSQLTimeout = 20 * time.Second

// HostedSQLStrategy upserts the compiled page into a published_pages table
// on a hosted SQL service (Turso's HTTP SQL API: POST {requests:[{type:
// "execute", stmt:{sql, args}}, {type:"close"}]} to <dbURL>/v2/pipeline)
// per spec.md §4.G. On success it
// best-effort deletes the edge cache key for the slug — cache-invalidation
// failure never fails the publish.
type HostedSQLStrategy struct {
	DBURL    string
	AuthToken string
	Client   *http.Client
	Cache    *cache.Cache
	CacheKeyPrefix string
}

func NewHostedSQLStrategy(dbURL, authToken string, c *cache.Cache) *HostedSQLStrategy {
	return &HostedSQLStrategy{
		DBURL:          strings.TrimRight(dbURL, "/"),
		AuthToken:      authToken,
		Client:         &http.Client{Timeout: hostedSQLTimeout},
		Cache:          c,
		CacheKeyPrefix: "published_page",
	}
}

type sqlPipelineRequest struct {
	Requests []sqlPipelineStatement `json:"requests"`
}

type sqlPipelineStatement struct {
	Type  string      `json:"type"`
	Stmt  *sqlStatement `json:"stmt,omitempty"`
}

type sqlStatement struct {
	SQL  string        `json:"sql"`
	Args []sqlArg      `json:"args"`
}

type sqlArg struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func textArg(v string) sqlArg { return sqlArg{Type: "text", Value: v} }

func (s *HostedSQLStrategy) do(ctx context.Context, stmts []sqlPipelineStatement) error {
	body, err := json.Marshal(sqlPipelineRequest{Requests: append(stmts, sqlPipelineStatement{Type: "close"})})
	if err != nil {
		return apperr.Fatal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.DBURL+"/v2/pipeline", bytes.NewReader(body))
	if err != nil {
		return apperr.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.AuthToken)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return apperr.Unavailable(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.Upstream(resp.StatusCode, "")
	}
	return nil
}

func (s *HostedSQLStrategy) PublishPage(ctx context.Context, payload model.CompiledPage, force bool) (result model.PublishResult, err error) {
	start := time.Now()
	defer func() {
		metrics.PublishDuration.WithLabelValues("hosted_sql").Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.PublishFailures.WithLabelValues("hosted_sql", failureReason(err)).Inc()
		}
	}()

	pageJSON, err := json.Marshal(payload)
	if err != nil {
		err = apperr.Fatal(err)
		return model.PublishResult{}, err
	}

	stmt := sqlPipelineStatement{
		Type: "execute",
		Stmt: &sqlStatement{
			SQL: `INSERT INTO published_pages (slug, version, published_at, payload) VALUES (?, ?, ?, ?)
ON CONFLICT(slug) DO UPDATE SET version=excluded.version, published_at=excluded.published_at, payload=excluded.payload`,
			Args: []sqlArg{
				textArg(payload.Slug),
				textArg(fmt.Sprint(payload.Version)),
				textArg(payload.PublishedAt),
				textArg(string(pageJSON)),
			},
		},
	}

	if err := s.do(ctx, []sqlPipelineStatement{stmt}); err != nil {
		return model.PublishResult{}, err
	}

	if s.Cache != nil {
		s.Cache.Purge(ctx, s.CacheKeyPrefix, payload.Slug)
	}

	return model.PublishResult{
		PreviewURL: fmt.Sprintf("%s/%s", strings.TrimRight(s.DBURL, "/"), payload.Slug),
		Version:    payload.Version,
	}, nil
}

func (s *HostedSQLStrategy) UnpublishPage(ctx context.Context, slug string) error {
	stmt := sqlPipelineStatement{
		Type: "execute",
		Stmt: &sqlStatement{
			SQL:  `DELETE FROM published_pages WHERE slug = ?`,
			Args: []sqlArg{textArg(slug)},
		},
	}
	if err := s.do(ctx, []sqlPipelineStatement{stmt}); err != nil {
		return err
	}
	if s.Cache != nil {
		s.Cache.Purge(ctx, s.CacheKeyPrefix, slug)
	}
	return nil
}

func (s *HostedSQLStrategy) SyncSettings(ctx context.Context, settings model.ProjectSettings) error {
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return apperr.Fatal(err)
	}
	stmt := sqlPipelineStatement{
		Type: "execute",
		Stmt: &sqlStatement{
			SQL:  `INSERT INTO project_settings (id, payload) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET payload=excluded.payload`,
			Args: []sqlArg{textArg(string(settingsJSON))},
		},
	}
	return s.do(ctx, []sqlPipelineStatement{stmt})
}
