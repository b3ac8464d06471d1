// Package schema is the schema cache and relationship graph: the only path
// through which downstream code reads column/FK information for a
// datasource table, per spec.md §4.B.
package schema

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pagebase/core/internal/adapter"
	"github.com/pagebase/core/internal/apperr"
	"github.com/pagebase/core/internal/metrics"
	"github.com/pagebase/core/internal/model"
	"github.com/pagebase/core/internal/store"
)

// discoverParallelism bounds concurrent per-table schema fetches during
// discover_all_schemas, per spec.md §4.B / §9.
const discoverParallelism = 10

// Cache is the persistent schema store, backed by internal/store.
type Cache struct {
	st *store.Store
	mu sync.Mutex // serializes writers per spec.md §5 "sole writer" discipline
}

func New(st *store.Store) *Cache {
	return &Cache{st: st}
}

// GetCachedSchema returns the cached schema for one table, or ok=false on a
// cache miss. It never calls an adapter.
func (c *Cache) GetCachedSchema(datasourceID, table string) (model.Schema, bool, error) {
	entries, err := c.st.ListSchemaEntries(datasourceID)
	if err != nil {
		return model.Schema{}, false, err
	}
	for _, e := range entries {
		if e.TableName == table {
			return model.Schema{Columns: e.Columns, ForeignKeys: e.ForeignKeys}, true, nil
		}
	}
	return model.Schema{}, false, nil
}

// GetAllCachedSchemas returns every cached table for a datasource, keyed by
// table name.
func (c *Cache) GetAllCachedSchemas(datasourceID string) (map[string]model.Schema, error) {
	entries, err := c.st.ListSchemaEntries(datasourceID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Schema, len(entries))
	for _, e := range entries {
		out[e.TableName] = model.Schema{Columns: e.Columns, ForeignKeys: e.ForeignKeys}
	}
	return out, nil
}

// DiscoverAllSchemas lists the datasource's tables and fetches per-table
// schemas in bounded-parallel batches, upserting each entry as it completes.
// One table's failure is quarantined and does not abort the others.
func (c *Cache) DiscoverAllSchemas(ctx context.Context, datasourceID string, ad adapter.Adapter) error {
	metrics.SchemaDiscoveries.WithLabelValues(datasourceID).Inc()
	tables, err := ad.ListTables(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(discoverParallelism)

	for _, table := range tables {
		table := table
		g.Go(func() error {
			sc, err := ad.GetSchema(gctx, table)
			if err != nil {
				// quarantined: log-worthy but does not abort sibling tables
				return nil
			}
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.st.UpsertSchemaEntry(model.TableSchemaEntry{
				DatasourceID: datasourceID,
				TableName:    table,
				Columns:      sc.Columns,
				ForeignKeys:  sc.ForeignKeys,
				FetchedAt:    model.NowISO(),
			})
		})
	}
	return g.Wait()
}

// RefreshAllSchemas deletes all cached entries for a datasource then
// re-runs discovery.
func (c *Cache) RefreshAllSchemas(ctx context.Context, datasourceID string, ad adapter.Adapter) error {
	if err := c.st.DeleteSchemaEntries(datasourceID); err != nil {
		return err
	}
	return c.DiscoverAllSchemas(ctx, datasourceID, ad)
}

// EnsureTable performs lazy discovery of a single missing table, used on a
// schema-cache miss encountered mid-publish (spec.md §4.B, §7 SchemaLookupMiss).
func (c *Cache) EnsureTable(ctx context.Context, datasourceID, table string, ad adapter.Adapter) (model.Schema, error) {
	if sc, ok, err := c.GetCachedSchema(datasourceID, table); err != nil {
		return model.Schema{}, err
	} else if ok {
		return sc, nil
	}
	sc, err := ad.GetSchema(ctx, table)
	if err != nil {
		return model.Schema{}, apperr.SchemaMiss(table)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := model.TableSchemaEntry{
		DatasourceID: datasourceID,
		TableName:    table,
		Columns:      sc.Columns,
		ForeignKeys:  sc.ForeignKeys,
		FetchedAt:    model.NowISO(),
	}
	if err := c.st.UpsertSchemaEntry(entry); err != nil {
		return model.Schema{}, err
	}
	return sc, nil
}

// GetAllRelationships aggregates FKs from every cached schema entry into a
// normalized adjacency list. A cache miss here triggers full discovery.
func (c *Cache) GetAllRelationships(ctx context.Context, datasourceID string, ad adapter.Adapter) ([]model.Relationship, error) {
	entries, err := c.st.ListSchemaEntries(datasourceID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		if err := c.DiscoverAllSchemas(ctx, datasourceID, ad); err != nil {
			return nil, err
		}
		entries, err = c.st.ListSchemaEntries(datasourceID)
		if err != nil {
			return nil, err
		}
	}

	var out []model.Relationship
	for _, e := range entries {
		for _, fk := range e.ForeignKeys {
			for i, col := range fk.ConstrainedColumns {
				refCol := ""
				if i < len(fk.ReferredColumns) {
					refCol = fk.ReferredColumns[i]
				}
				out = append(out, model.Relationship{
					SourceTable:  e.TableName,
					SourceColumn: col,
					TargetTable:  fk.ReferredTable,
					TargetColumn: refCol,
				})
			}
		}
	}
	return out, nil
}
