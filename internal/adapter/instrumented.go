package adapter

import (
	"context"

	"github.com/pagebase/core/internal/metrics"
	"github.com/pagebase/core/internal/model"
)

// instrumented wraps any Adapter with the pagebase_adapter_op(s)_total
// counters of internal/metrics, labeled by datasource kind, table, and op.
// Connect/Close/Ping are left unwrapped — they're not per-table operations.
type instrumented struct {
	Adapter
	kind string
}

// Instrument wraps ad with op/error counters keyed by kind, used by
// Factory so every adapter produced by it reports the same metrics
// regardless of backend.
func Instrument(kind model.DatasourceKind, ad Adapter) Adapter {
	return &instrumented{Adapter: ad, kind: string(kind)}
}

func (i *instrumented) observe(table, op string, err error) {
	metrics.AdapterOps.WithLabelValues(i.kind, table, op).Inc()
	if err != nil {
		metrics.AdapterOpErrors.WithLabelValues(i.kind, table, op).Inc()
	}
}

func (i *instrumented) ReadRecords(ctx context.Context, table string, opts ReadOpts) ([]model.Record, error) {
	out, err := i.Adapter.ReadRecords(ctx, table, opts)
	i.observe(table, "read_records", err)
	return out, err
}

func (i *instrumented) ReadRecordsWithRelations(ctx context.Context, table string, opts ReadOpts) ([]model.Record, error) {
	out, err := i.Adapter.ReadRecordsWithRelations(ctx, table, opts)
	i.observe(table, "read_records_with_relations", err)
	return out, err
}

func (i *instrumented) ReadRecordByKey(ctx context.Context, table, keyCol, keyVal string) (model.Record, bool, error) {
	rec, ok, err := i.Adapter.ReadRecordByKey(ctx, table, keyCol, keyVal)
	i.observe(table, "read_record_by_key", err)
	return rec, ok, err
}

func (i *instrumented) UpsertRecord(ctx context.Context, table string, record model.Record, keyCol string) (model.Record, error) {
	rec, err := i.Adapter.UpsertRecord(ctx, table, record, keyCol)
	i.observe(table, "upsert_record", err)
	return rec, err
}

func (i *instrumented) DeleteRecord(ctx context.Context, table, keyCol, keyVal string) (bool, error) {
	ok, err := i.Adapter.DeleteRecord(ctx, table, keyCol, keyVal)
	i.observe(table, "delete_record", err)
	return ok, err
}

func (i *instrumented) CountRecords(ctx context.Context, table string, where []Filter) (int, error) {
	n, err := i.Adapter.CountRecords(ctx, table, where)
	i.observe(table, "count_records", err)
	return n, err
}

func (i *instrumented) SearchRecords(ctx context.Context, table, query string, limit int) ([]model.Record, error) {
	out, err := i.Adapter.SearchRecords(ctx, table, query, limit)
	i.observe(table, "search_records", err)
	return out, err
}

func (i *instrumented) CountSearchMatches(ctx context.Context, table, query string) (int, error) {
	n, err := i.Adapter.CountSearchMatches(ctx, table, query)
	i.observe(table, "count_search_matches", err)
	return n, err
}
