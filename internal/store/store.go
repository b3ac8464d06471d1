// Package store persists every admin-managed entity — datasources, views,
// sync configs, sync jobs, conflicts, schema cache entries, pages, and
// publish versions (the project settings singleton lives in
// internal/settings) — on top of internal/localdb's sqlite KV-blob store, the way the teacher's
// own internal/store managed its in-memory registries: one bucket per
// entity kind, list-then-filter for queries, read-modify-write for updates.
package store

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/pagebase/core/internal/localdb"
	"github.com/pagebase/core/internal/model"
)

const (
	bucketDatasources     = "datasources"
	bucketViews           = "views"
	bucketSyncConfigs     = "sync_configs"
	bucketSyncJobs        = "sync_jobs"
	bucketConflicts       = "conflicts"
	bucketSchemaCache     = "table_schema_cache"
	bucketPublishVersions = "publish_versions"
	bucketPages           = "pages"
)

// Store is the single persisted-state handle shared by every package that
// needs durable admin state.
type Store struct {
	db *localdb.DB
}

func New(db *localdb.DB) *Store { return &Store{db: db} }

// --- Datasources ---

func (s *Store) CreateDatasource(d model.Datasource) (model.Datasource, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := model.NowISO()
	d.CreatedAt, d.UpdatedAt = now, now
	return d, s.db.Put(bucketDatasources, d.ID, d)
}

func (s *Store) UpdateDatasource(d model.Datasource) error {
	d.UpdatedAt = model.NowISO()
	return s.db.Put(bucketDatasources, d.ID, d)
}

func (s *Store) GetDatasource(id string) (model.Datasource, error) {
	var d model.Datasource
	if err := s.db.Get(bucketDatasources, id, &d); err != nil {
		return model.Datasource{}, fmt.Errorf("datasource %s: %w", id, err)
	}
	return d, nil
}

func (s *Store) ListDatasources() ([]model.Datasource, error) {
	var out []model.Datasource
	if err := s.db.List(bucketDatasources, &out); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (s *Store) DeleteDatasource(id string) error {
	return s.db.Delete(bucketDatasources, id)
}

// --- Views ---

func (s *Store) CreateView(v model.DatasourceView) (model.DatasourceView, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := model.NowISO()
	v.CreatedAt, v.UpdatedAt = now, now
	return v, s.db.Put(bucketViews, v.ID, v)
}

func (s *Store) UpdateView(v model.DatasourceView) error {
	v.UpdatedAt = model.NowISO()
	return s.db.Put(bucketViews, v.ID, v)
}

func (s *Store) GetView(id string) (model.DatasourceView, error) {
	var v model.DatasourceView
	if err := s.db.Get(bucketViews, id, &v); err != nil {
		return model.DatasourceView{}, fmt.Errorf("view %s: %w", id, err)
	}
	return v, nil
}

func (s *Store) ListViews() ([]model.DatasourceView, error) {
	var out []model.DatasourceView
	if err := s.db.List(bucketViews, &out); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (s *Store) ListViewsByDatasource(datasourceID string) ([]model.DatasourceView, error) {
	all, err := s.ListViews()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, v := range all {
		if v.DatasourceID == datasourceID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store) DeleteView(id string) error {
	return s.db.Delete(bucketViews, id)
}

// --- Sync configs ---

func (s *Store) CreateSyncConfig(c model.SyncConfig) (model.SyncConfig, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := model.NowISO()
	c.CreatedAt, c.UpdatedAt = now, now
	return c, s.db.Put(bucketSyncConfigs, c.ID, c)
}

func (s *Store) UpdateSyncConfig(c model.SyncConfig) error {
	c.UpdatedAt = model.NowISO()
	return s.db.Put(bucketSyncConfigs, c.ID, c)
}

func (s *Store) GetSyncConfig(id string) (model.SyncConfig, error) {
	var c model.SyncConfig
	if err := s.db.Get(bucketSyncConfigs, id, &c); err != nil {
		return model.SyncConfig{}, fmt.Errorf("sync config %s: %w", id, err)
	}
	return c, nil
}

func (s *Store) ListSyncConfigs() ([]model.SyncConfig, error) {
	var out []model.SyncConfig
	if err := s.db.List(bucketSyncConfigs, &out); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (s *Store) DeleteSyncConfig(id string) error {
	return s.db.Delete(bucketSyncConfigs, id)
}

// --- Sync jobs ---

func (s *Store) CreateSyncJob(j model.SyncJob) (model.SyncJob, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	j.CreatedAt = model.NowISO()
	return j, s.db.Put(bucketSyncJobs, j.ID, j)
}

func (s *Store) UpdateSyncJob(j model.SyncJob) error {
	return s.db.Put(bucketSyncJobs, j.ID, j)
}

func (s *Store) GetSyncJob(id string) (model.SyncJob, error) {
	var j model.SyncJob
	if err := s.db.Get(bucketSyncJobs, id, &j); err != nil {
		return model.SyncJob{}, fmt.Errorf("sync job %s: %w", id, err)
	}
	return j, nil
}

func (s *Store) ListSyncJobsByConfig(configID string) ([]model.SyncJob, error) {
	var all []model.SyncJob
	if err := s.db.List(bucketSyncJobs, &all); err != nil {
		return nil, err
	}
	out := make([]model.SyncJob, 0, len(all))
	for _, j := range all {
		if j.SyncConfigID == configID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

// --- Conflicts ---

func (s *Store) CreateConflict(c model.Conflict) (model.Conflict, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = model.NowISO()
	if c.Status == "" {
		c.Status = model.ConflictPending
	}
	return c, s.db.Put(bucketConflicts, c.ID, c)
}

func (s *Store) UpdateConflict(c model.Conflict) error {
	return s.db.Put(bucketConflicts, c.ID, c)
}

func (s *Store) GetConflict(id string) (model.Conflict, error) {
	var c model.Conflict
	if err := s.db.Get(bucketConflicts, id, &c); err != nil {
		return model.Conflict{}, fmt.Errorf("conflict %s: %w", id, err)
	}
	return c, nil
}

func (s *Store) ListConflictsByJob(jobID string) ([]model.Conflict, error) {
	var all []model.Conflict
	if err := s.db.List(bucketConflicts, &all); err != nil {
		return nil, err
	}
	out := make([]model.Conflict, 0, len(all))
	for _, c := range all {
		if c.JobID == jobID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) ListPendingConflicts() ([]model.Conflict, error) {
	var all []model.Conflict
	if err := s.db.List(bucketConflicts, &all); err != nil {
		return nil, err
	}
	out := make([]model.Conflict, 0)
	for _, c := range all {
		if c.Status == model.ConflictPending {
			out = append(out, c)
		}
	}
	return out, nil
}

// --- Schema cache ---

func schemaEntryKey(datasourceID, table string) string {
	return datasourceID + "/" + table
}

// UpsertSchemaEntry writes a whole TableSchemaEntry; per spec.md §4.B it is
// never written piecemeal.
func (s *Store) UpsertSchemaEntry(e model.TableSchemaEntry) error {
	return s.db.Put(bucketSchemaCache, schemaEntryKey(e.DatasourceID, e.TableName), e)
}

func (s *Store) ListSchemaEntries(datasourceID string) ([]model.TableSchemaEntry, error) {
	var all []model.TableSchemaEntry
	if err := s.db.List(bucketSchemaCache, &all); err != nil {
		return nil, err
	}
	out := make([]model.TableSchemaEntry, 0, len(all))
	for _, e := range all {
		if e.DatasourceID == datasourceID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableName < out[j].TableName })
	return out, nil
}

// DeleteSchemaEntries removes every cached entry for a datasource, used by
// RefreshAllSchemas and by datasource deletion (cascades per spec.md §3).
func (s *Store) DeleteSchemaEntries(datasourceID string) error {
	entries, err := s.ListSchemaEntries(datasourceID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := s.db.Delete(bucketSchemaCache, schemaEntryKey(datasourceID, e.TableName)); err != nil {
			return err
		}
	}
	return nil
}

// --- Pages ---
//
// Page authoring (CRUD) is out of the core's scope per spec.md §1 — pages
// are created and edited by the builder against its own store. The core
// reads one by id to run the publish pipeline, reads one by slug for the
// public-page path, and flips is_public after a successful publish, so this bucket mirrors just enough
// of "the page table it reads from" (spec.md §6) for that.

func (s *Store) GetPage(id string) (model.Page, error) {
	var p model.Page
	if err := s.db.Get(bucketPages, id, &p); err != nil {
		return model.Page{}, fmt.Errorf("page %s: %w", id, err)
	}
	return p, nil
}

func (s *Store) PutPage(p model.Page) error {
	return s.db.Put(bucketPages, p.ID, p)
}

// GetPageBySlug is a full-bucket scan, acceptable here since the bucket
// holds one row per page and the public-page path is cache-fronted
// (internal/cache) by the edge well above this core request rate.
func (s *Store) GetPageBySlug(slug string) (model.Page, error) {
	var all []model.Page
	if err := s.db.List(bucketPages, &all); err != nil {
		return model.Page{}, err
	}
	for _, p := range all {
		if p.Slug == slug {
			return p, nil
		}
	}
	return model.Page{}, fmt.Errorf("page with slug %s: not found", slug)
}

func (s *Store) SetPagePublic(id string, public bool) error {
	p, err := s.GetPage(id)
	if err != nil {
		return err
	}
	p.IsPublic = public
	return s.PutPage(p)
}

// --- Publish versions ---

// NextPublishVersion returns the next monotonically increasing version for
// pageID, per spec.md §3 CompiledPage.version / §8 idempotence property.
func (s *Store) NextPublishVersion(pageID string) (int, error) {
	var v int
	if err := s.db.Get(bucketPublishVersions, pageID, &v); err != nil {
		v = 0
	}
	v++
	if err := s.db.Put(bucketPublishVersions, pageID, v); err != nil {
		return 0, err
	}
	return v, nil
}
