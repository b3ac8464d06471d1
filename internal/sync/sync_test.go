package sync

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/pagebase/core/internal/adapter"
	"github.com/pagebase/core/internal/localdb"
	"github.com/pagebase/core/internal/model"
	"github.com/pagebase/core/internal/store"
)

// memAdapter is a minimal in-memory Adapter keyed by "id" used to exercise
// the sync executor without a live database.
type memAdapter struct {
	table map[string]model.Record
}

func newMemAdapter(rows ...model.Record) *memAdapter {
	m := &memAdapter{table: map[string]model.Record{}}
	for _, r := range rows {
		m.table[toStr(r["id"])] = r
	}
	return m
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

func (m *memAdapter) Connect(ctx context.Context) error { return nil }
func (m *memAdapter) Close(ctx context.Context) error   { return nil }
func (m *memAdapter) Ping(ctx context.Context) error    { return nil }
func (m *memAdapter) ListTables(ctx context.Context) ([]string, error) { return nil, nil }
func (m *memAdapter) GetSchema(ctx context.Context, table string) (model.Schema, error) {
	return model.Schema{}, nil
}
func (m *memAdapter) ListAllRelationships(ctx context.Context) ([]model.Relationship, error) {
	return nil, nil
}
func (m *memAdapter) ReadRecords(ctx context.Context, table string, opts adapter.ReadOpts) ([]model.Record, error) {
	var out []model.Record
	for _, r := range m.table {
		out = append(out, r)
	}
	if opts.Offset >= len(out) {
		return nil, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}
func (m *memAdapter) ReadRecordsWithRelations(ctx context.Context, table string, opts adapter.ReadOpts) ([]model.Record, error) {
	return m.ReadRecords(ctx, table, opts)
}
func (m *memAdapter) ReadRecordByKey(ctx context.Context, table, keyCol, keyVal string) (model.Record, bool, error) {
	r, ok := m.table[keyVal]
	return r, ok, nil
}
func (m *memAdapter) UpsertRecord(ctx context.Context, table string, record model.Record, keyCol string) (model.Record, error) {
	m.table[toStr(record[keyCol])] = record
	return record, nil
}
func (m *memAdapter) DeleteRecord(ctx context.Context, table, keyCol, keyVal string) (bool, error) {
	delete(m.table, keyVal)
	return true, nil
}
func (m *memAdapter) CountRecords(ctx context.Context, table string, where []adapter.Filter) (int, error) {
	return len(m.table), nil
}
func (m *memAdapter) SearchRecords(ctx context.Context, table, query string, limit int) ([]model.Record, error) {
	return nil, nil
}
func (m *memAdapter) CountSearchMatches(ctx context.Context, table, query string) (int, error) {
	return 0, nil
}

func newTestExecutor(t *testing.T, master, slave *memAdapter) (*Executor, *store.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	db, err := localdb.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open localdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	st := store.New(db)

	factory := func(ctx context.Context, ds model.Datasource) (adapter.Adapter, error) {
		if ds.Name == "master" {
			return master, nil
		}
		return slave, nil
	}
	return New(st, factory, rdb), st
}

func baseConfig(st *store.Store, t *testing.T, strategy model.ConflictStrategy) model.SyncConfig {
	t.Helper()
	m, _ := st.CreateDatasource(model.Datasource{Name: "master", Kind: model.KindPostgres})
	s, _ := st.CreateDatasource(model.Datasource{Name: "slave", Kind: model.KindPostgres})
	return model.SyncConfig{
		Name:             "cfg",
		MasterDatasource: m.ID,
		SlaveDatasource:  s.ID,
		MasterTable:      "items",
		SlaveTable:       "items",
		MasterPK:         "id",
		SlavePK:          "id",
		ConflictStrategy: strategy,
		BatchSize:        10,
		FieldMappings: []model.FieldMapping{
			{MasterColumn: "id", SlaveColumn: "id", IsKeyField: true},
			{MasterColumn: "title", SlaveColumn: "title"},
			{MasterColumn: "status", SlaveColumn: "status"},
		},
	}
}

func TestSyncSourceWinsResolvesConflict(t *testing.T) {
	master := newMemAdapter(model.Record{"id": "42", "title": "New", "status": "published"})
	slave := newMemAdapter(model.Record{"id": "42", "title": "Old", "status": "published"})
	exec, st := newTestExecutor(t, master, slave)
	cfg := baseConfig(st, t, model.StrategySourceWins)

	job, err := exec.Run(context.Background(), cfg, "manual")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.Updated != 1 || job.Conflict != 0 {
		t.Fatalf("expected updated=1 conflict=0, got %+v", job)
	}
	if slave.table["42"]["title"] != "New" {
		t.Fatalf("expected slave title New, got %v", slave.table["42"])
	}
}

func TestSyncManualConflictCreatesConflictRow(t *testing.T) {
	master := newMemAdapter(model.Record{"id": "42", "title": "New", "status": "published"})
	slave := newMemAdapter(model.Record{"id": "42", "title": "Old", "status": "published"})
	exec, st := newTestExecutor(t, master, slave)
	cfg := baseConfig(st, t, model.StrategyManual)

	job, err := exec.Run(context.Background(), cfg, "manual")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.Conflict != 1 {
		t.Fatalf("expected conflict=1, got %+v", job)
	}
	if slave.table["42"]["title"] != "Old" {
		t.Fatalf("expected slave unchanged, got %v", slave.table["42"])
	}

	conflicts, err := st.ListConflictsByJob(job.ID)
	if err != nil || len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict row: %v %v", conflicts, err)
	}
	if conflicts[0].Status != model.ConflictPending {
		t.Fatalf("expected pending, got %s", conflicts[0].Status)
	}

	resolved, err := Resolve(st, conflicts[0].ID, "master", "admin", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != model.ConflictResolvedMaster {
		t.Fatalf("expected resolved_master, got %s", resolved.Status)
	}
}

func TestSyncAgreementProducesNoChanges(t *testing.T) {
	master := newMemAdapter(model.Record{"id": "1", "title": "Same", "status": "x"})
	slave := newMemAdapter(model.Record{"id": "1", "title": "Same", "status": "x"})
	exec, st := newTestExecutor(t, master, slave)
	cfg := baseConfig(st, t, model.StrategySourceWins)

	job, err := exec.Run(context.Background(), cfg, "manual")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.Inserted != 0 || job.Updated != 0 || job.Conflict != 0 {
		t.Fatalf("expected no-op sync, got %+v", job)
	}
}
