// Package strategy implements the pluggable Publish Strategies of spec.md
// §4.G: the last step of the publish pipeline, invoked strictly after the
// database session holding the page has been released.
package strategy

import (
	"context"

	"github.com/pagebase/core/internal/apperr"
	"github.com/pagebase/core/internal/model"
	"github.com/pagebase/core/pkg/config"
)

// Strategy delivers a compiled page bundle to wherever the edge reads it
// from. Both concrete strategies are invoked after the page's database
// session is released, per spec.md §4.G.
type Strategy interface {
	PublishPage(ctx context.Context, payload model.CompiledPage, force bool) (model.PublishResult, error)
	UnpublishPage(ctx context.Context, slug string) error
	SyncSettings(ctx context.Context, settings model.ProjectSettings) error
}

// ForKind resolves the configured strategy, per spec.md §4.G "selected by
// a process-wide configuration". StrategyTurso maps to the Hosted-SQL
// strategy (Turso's HTTP SQL API); StrategyLocal maps to the Edge-HTTP
// strategy (POST to EDGE_URL).
func ForKind(kind config.PublishStrategyKind, edge *EdgeHTTPStrategy, hostedSQL *HostedSQLStrategy) Strategy {
	if kind == config.StrategyTurso {
		return hostedSQL
	}
	return edge
}

// failureReason classifies err into the low-cardinality reason label
// pagebase_publish_failures_total is keyed on.
func failureReason(err error) string {
	if e, ok := apperr.As(err); ok {
		return string(e.Kind)
	}
	return "unknown"
}
