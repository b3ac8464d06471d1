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
	"github.com/pagebase/core/internal/metrics"
	"github.com/pagebase/core/internal/model"
)

const edgeRequestTimeout = 20 * time.Second

// EdgeHTTPStrategy POSTs the compiled bundle to the edge service's
// /api/import, per spec.md §4.G.
type EdgeHTTPStrategy struct {
	BaseURL string
	Client  *http.Client
}

func NewEdgeHTTPStrategy(baseURL string) *EdgeHTTPStrategy {
	return &EdgeHTTPStrategy{BaseURL: strings.TrimRight(baseURL, "/"), Client: &http.Client{Timeout: edgeRequestTimeout}}
}

type edgeImportRequest struct {
	Page  model.CompiledPage `json:"page"`
	Force bool               `json:"force"`
}

type edgeImportResponse struct {
	PreviewURL string `json:"previewUrl"`
}

func (s *EdgeHTTPStrategy) PublishPage(ctx context.Context, payload model.CompiledPage, _ bool) (result model.PublishResult, err error) {
	start := time.Now()
	defer func() {
		metrics.PublishDuration.WithLabelValues("edge_http").Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.PublishFailures.WithLabelValues("edge_http", failureReason(err)).Inc()
		}
	}()

	// per spec.md §4.G the edge import always forces the write, regardless
	// of the caller's own force flag (which only gates the core-side
	// already-published guard before a strategy is ever invoked)
	body, err := json.Marshal(edgeImportRequest{Page: payload, Force: true})
	if err != nil {
		return model.PublishResult{}, apperr.Fatal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/api/import", bytes.NewReader(body))
	if err != nil {
		return model.PublishResult{}, apperr.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, doErr := s.Client.Do(req)
	if doErr != nil {
		err = apperr.Unavailable(doErr)
		return model.PublishResult{}, err
	}
	defer resp.Body.Close()

	var out edgeImportResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = apperr.Upstream(resp.StatusCode, out.PreviewURL)
		return model.PublishResult{}, err
	}

	if out.PreviewURL == "" {
		out.PreviewURL = fmt.Sprintf("%s/%s", s.BaseURL, payload.Slug)
	}
	result = model.PublishResult{PreviewURL: out.PreviewURL, Version: payload.Version}
	return result, nil
}

func (s *EdgeHTTPStrategy) UnpublishPage(ctx context.Context, slug string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.BaseURL+"/api/import/"+slug, nil)
	if err != nil {
		return apperr.Fatal(err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return apperr.Unavailable(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil // already unpublished
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.Upstream(resp.StatusCode, "")
	}
	return nil
}

func (s *EdgeHTTPStrategy) SyncSettings(ctx context.Context, settings model.ProjectSettings) error {
	body, err := json.Marshal(settings)
	if err != nil {
		return apperr.Fatal(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/api/settings", bytes.NewReader(body))
	if err != nil {
		return apperr.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

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
