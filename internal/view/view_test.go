package view

import (
	"context"
	"testing"

	"github.com/pagebase/core/internal/adapter"
	"github.com/pagebase/core/internal/localdb"
	"github.com/pagebase/core/internal/model"
	"github.com/pagebase/core/internal/store"
)

// fakeAdapter is an in-memory stand-in for internal/adapter.Adapter used to
// exercise the view layer without a live database.
type fakeAdapter struct {
	rows map[string][]model.Record
}

func (f *fakeAdapter) Connect(ctx context.Context) error { return nil }
func (f *fakeAdapter) Close(ctx context.Context) error   { return nil }
func (f *fakeAdapter) Ping(ctx context.Context) error    { return nil }
func (f *fakeAdapter) ListTables(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeAdapter) GetSchema(ctx context.Context, table string) (model.Schema, error) {
	return model.Schema{}, nil
}
func (f *fakeAdapter) ListAllRelationships(ctx context.Context) ([]model.Relationship, error) {
	return nil, nil
}
func (f *fakeAdapter) ReadRecords(ctx context.Context, table string, opts adapter.ReadOpts) ([]model.Record, error) {
	rows := f.rows[table]
	out := make([]model.Record, len(rows))
	copy(out, rows)
	if opts.Offset < len(out) {
		out = out[opts.Offset:]
	} else {
		out = nil
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}
func (f *fakeAdapter) ReadRecordsWithRelations(ctx context.Context, table string, opts adapter.ReadOpts) ([]model.Record, error) {
	return f.ReadRecords(ctx, table, opts)
}
func (f *fakeAdapter) ReadRecordByKey(ctx context.Context, table, keyCol, keyVal string) (model.Record, bool, error) {
	for _, r := range f.rows[table] {
		if toStr(r[keyCol]) == keyVal {
			return r, true, nil
		}
	}
	return nil, false, nil
}
func (f *fakeAdapter) UpsertRecord(ctx context.Context, table string, record model.Record, keyCol string) (model.Record, error) {
	return record, nil
}
func (f *fakeAdapter) DeleteRecord(ctx context.Context, table, keyCol, keyVal string) (bool, error) {
	return true, nil
}
func (f *fakeAdapter) CountRecords(ctx context.Context, table string, where []adapter.Filter) (int, error) {
	return len(f.rows[table]), nil
}
func (f *fakeAdapter) SearchRecords(ctx context.Context, table, query string, limit int) ([]model.Record, error) {
	return nil, nil
}
func (f *fakeAdapter) CountSearchMatches(ctx context.Context, table, query string) (int, error) {
	return 0, nil
}

func toStr(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := localdb.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open localdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.New(db)
}

func TestReadViewAppliesMappingsAndVisibleColumns(t *testing.T) {
	st := newTestStore(t)
	fa := &fakeAdapter{rows: map[string][]model.Record{
		"institutions": {{"id": "1", "name": "acme", "country_id": "us"}},
	}}

	ds, err := st.CreateDatasource(model.Datasource{Name: "ds1", Kind: model.KindPostgres})
	if err != nil {
		t.Fatalf("create datasource: %v", err)
	}
	v, err := st.CreateView(model.DatasourceView{
		Name:           "v1",
		DatasourceID:   ds.ID,
		TargetTable:    "institutions",
		FieldMappings:  map[string]string{"label": "@name"},
		VisibleColumns: []string{"id", "label"},
	})
	if err != nil {
		t.Fatalf("create view: %v", err)
	}

	reader := New(st, func(ctx context.Context, ds model.Datasource) (adapter.Adapter, error) { return fa, nil })
	recs, err := reader.ReadView(context.Background(), v, 1, 10)
	if err != nil {
		t.Fatalf("read view: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0]["label"] != "acme" {
		t.Fatalf("expected mapped label, got %v", recs[0])
	}
	if _, ok := recs[0]["country_id"]; ok {
		t.Fatalf("expected country_id excluded by visible_columns, got %v", recs[0])
	}
}

func TestCountView(t *testing.T) {
	st := newTestStore(t)
	fa := &fakeAdapter{rows: map[string][]model.Record{
		"institutions": {{"id": "1"}, {"id": "2"}},
	}}
	ds, _ := st.CreateDatasource(model.Datasource{Name: "ds1", Kind: model.KindPostgres})
	v, _ := st.CreateView(model.DatasourceView{DatasourceID: ds.ID, TargetTable: "institutions"})

	reader := New(st, func(ctx context.Context, ds model.Datasource) (adapter.Adapter, error) { return fa, nil })
	n, err := reader.CountView(context.Background(), v)
	if err != nil {
		t.Fatalf("count view: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
}
