// Package sync implements the master→slave replication executor of
// spec.md §4.D: a capture-then-flush pipeline backed by an external
// key-value buffer, with per-strategy conflict resolution.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pagebase/core/internal/adapter"
	"github.com/pagebase/core/internal/apperr"
	"github.com/pagebase/core/internal/expr"
	"github.com/pagebase/core/internal/metrics"
	"github.com/pagebase/core/internal/model"
	"github.com/pagebase/core/internal/store"
	"github.com/pagebase/core/internal/validate"
)

const (
	// DefaultCaptureTTL is sync_state_ttl's default, per spec.md §4.D step 2.
	DefaultCaptureTTL = 4 * time.Hour
	webhookTimeout    = 15 * time.Second
)

// AdapterFactory resolves a datasource's live, connected adapter.
type AdapterFactory func(ctx context.Context, ds model.Datasource) (adapter.Adapter, error)

// captured is the buffer payload written per spec.md §4.D step 2.
type captured struct {
	ID     string       `json:"id"`
	Data   model.Record `json:"data"`
	Status string       `json:"status"`
}

type Executor struct {
	st      *store.Store
	factory AdapterFactory
	rdb     *redis.Client
}

func New(st *store.Store, factory AdapterFactory, rdb *redis.Client) *Executor {
	return &Executor{st: st, factory: factory, rdb: rdb}
}

func captureKey(jobID, recordID string) string {
	return fmt.Sprintf("sync:job:%s:record:%s", jobID, recordID)
}

func capturedSetKey(jobID string) string {
	return fmt.Sprintf("sync:job:%s:captured", jobID)
}

// Run executes one full capture-then-flush cycle for cfg and returns the
// finished SyncJob. A KV-buffer outage fails the job fast rather than
// degrading to in-memory state, per spec.md §9.
func (e *Executor) Run(ctx context.Context, cfg model.SyncConfig, triggeredBy string) (model.SyncJob, error) {
	if e.rdb == nil {
		return model.SyncJob{}, apperr.Fatal(fmt.Errorf("sync capture buffer unavailable"))
	}
	for _, fm := range cfg.FieldMappings {
		if err := validate.FieldMapping(fm); err != nil {
			return model.SyncJob{}, err
		}
	}

	job, err := e.st.CreateSyncJob(model.SyncJob{
		SyncConfigID: cfg.ID,
		Status:       model.JobRunning,
		TriggeredBy:  triggeredBy,
		StartedAt:    model.NowISO(),
	})
	if err != nil {
		return model.SyncJob{}, err
	}

	metrics.ActiveSyncJobs.Inc()
	defer metrics.ActiveSyncJobs.Dec()

	if err := e.runInto(ctx, cfg, &job); err != nil {
		job.Status = model.JobFailed
		job.ErrorMessage = err.Error()
		job.FinishedAt = model.NowISO()
		_ = e.st.UpdateSyncJob(job)
		metrics.SyncJobsTotal.WithLabelValues(string(job.Status)).Inc()
		return job, err
	}

	job.Status = model.JobCompleted
	job.FinishedAt = model.NowISO()
	if err := e.st.UpdateSyncJob(job); err != nil {
		return job, err
	}
	metrics.SyncJobsTotal.WithLabelValues(string(job.Status)).Inc()
	return job, nil
}

func (e *Executor) runInto(ctx context.Context, cfg model.SyncConfig, job *model.SyncJob) error {
	masterDS, err := e.st.GetDatasource(cfg.MasterDatasource)
	if err != nil {
		return err
	}
	slaveDS, err := e.st.GetDatasource(cfg.SlaveDatasource)
	if err != nil {
		return err
	}
	master, err := e.factory(ctx, masterDS)
	if err != nil {
		return err
	}
	slave, err := e.factory(ctx, slaveDS)
	if err != nil {
		return err
	}

	masterKeyCol, slaveKeyCol := cfg.KeyField()

	if err := e.capture(ctx, cfg, job, master, masterKeyCol); err != nil {
		return err
	}
	if err := e.flush(ctx, cfg, job, slave, masterKeyCol, slaveKeyCol); err != nil {
		return err
	}
	if cfg.SyncDeletes {
		if err := e.syncDeletes(ctx, cfg, job, slave, masterKeyCol, slaveKeyCol); err != nil {
			return err
		}
	}
	return nil
}

// capture pages through master with batch_size, writing each record to the
// KV buffer under a per-job namespace, per spec.md §4.D step 2.
func (e *Executor) capture(ctx context.Context, cfg model.SyncConfig, job *model.SyncJob, master adapter.Adapter, masterKeyCol string) error {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	total, err := master.CountRecords(ctx, cfg.MasterTable, nil)
	if err != nil {
		return err
	}
	job.Total = total
	_ = e.st.UpdateSyncJob(*job)

	for offset := 0; ; offset += batchSize {
		recs, err := master.ReadRecords(ctx, cfg.MasterTable, adapter.ReadOpts{Limit: batchSize, Offset: offset})
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			break
		}
		for _, rec := range recs {
			key := fmt.Sprint(rec[masterKeyCol])
			payload, err := json.Marshal(captured{ID: key, Data: rec, Status: "captured"})
			if err != nil {
				continue
			}
			if err := e.rdb.Set(ctx, captureKey(job.ID, key), payload, DefaultCaptureTTL).Err(); err != nil {
				return apperr.Fatal(err)
			}
			if err := e.rdb.SAdd(ctx, capturedSetKey(job.ID), key).Err(); err != nil {
				return apperr.Fatal(err)
			}
			e.rdb.Expire(ctx, capturedSetKey(job.ID), DefaultCaptureTTL)
		}
		if len(recs) < batchSize {
			break
		}
	}
	return nil
}

// flush iterates captured keys, inserting records the slave lacks, leaving
// records whose mapped fields already agree untouched, and dispatching to the
// conflict resolver when mapped fields disagree.
func (e *Executor) flush(ctx context.Context, cfg model.SyncConfig, job *model.SyncJob, slave adapter.Adapter, masterKeyCol, slaveKeyCol string) error {
	keys, err := e.rdb.SMembers(ctx, capturedSetKey(job.ID)).Result()
	if err != nil {
		return apperr.Fatal(err)
	}

	for _, key := range keys {
		raw, err := e.rdb.Get(ctx, captureKey(job.ID, key)).Bytes()
		if err != nil {
			job.Error++
			continue
		}
		var cap captured
		if json.Unmarshal(raw, &cap) != nil {
			job.Error++
			continue
		}

		slaveRecord := e.transform(cfg, cap.Data)

		existing, exists, err := slave.ReadRecordByKey(ctx, cfg.SlaveTable, slaveKeyCol, key)
		if err != nil {
			job.Error++
			continue
		}

		if !exists {
			if _, err := slave.UpsertRecord(ctx, cfg.SlaveTable, slaveRecord, slaveKeyCol); err != nil {
				job.Error++
				continue
			}
			job.Inserted++
			job.Processed++
			continue
		}

		conflicting := diffFields(cfg, cap.Data, existing)
		if len(conflicting) == 0 {
			// master and slave already agree on every mapped field
			continue
		}

		resolved, terminal, err := e.resolveConflict(ctx, cfg, job, key, cap.Data, existing, conflicting)
		if err != nil {
			job.Error++
			continue
		}
		if terminal == model.ConflictPending {
			job.Conflict++
			job.Processed++
			continue
		}
		if resolved != nil {
			if _, err := slave.UpsertRecord(ctx, cfg.SlaveTable, resolved, slaveKeyCol); err != nil {
				job.Error++
				continue
			}
			job.Updated++
		}
		job.Processed++
	}
	metrics.SyncRecordsProcessed.WithLabelValues("inserted").Add(float64(job.Inserted))
	metrics.SyncRecordsProcessed.WithLabelValues("updated").Add(float64(job.Updated))
	metrics.SyncRecordsProcessed.WithLabelValues("conflict").Add(float64(job.Conflict))
	metrics.SyncRecordsProcessed.WithLabelValues("error").Add(float64(job.Error))
	return e.st.UpdateSyncJob(*job)
}

// transform applies FieldMapper.master_to_slave: each non-skipped mapping is
// evaluated through the Expression Engine when it carries a transform, else
// copied verbatim.
func (e *Executor) transform(cfg model.SyncConfig, master model.Record) model.Record {
	out := model.Record{}
	for _, fm := range cfg.FieldMappings {
		if fm.SkipSync {
			continue
		}
		var v any
		if fm.Transform != "" {
			v = expr.Eval(fm.Transform, master, nil)
		} else {
			v = master[fm.MasterColumn]
		}
		out[fm.SlaveColumn] = v
	}
	return out
}

// diffFields compares each mapped non-key value, tolerant of numeric vs
// string cross-typing and of nil vs empty-string, per spec.md §4.D step 3.
func diffFields(cfg model.SyncConfig, master, slave model.Record) []string {
	var out []string
	for _, fm := range cfg.FieldMappings {
		if fm.SkipSync || fm.IsKeyField {
			continue
		}
		var mv any
		if fm.Transform != "" {
			mv = expr.Eval(fm.Transform, master, nil)
		} else {
			mv = master[fm.MasterColumn]
		}
		sv := slave[fm.SlaveColumn]
		if !valuesEqual(mv, sv) {
			out = append(out, fm.SlaveColumn)
		}
	}
	return out
}

func valuesEqual(a, b any) bool {
	if normalizeEmpty(a) == normalizeEmpty(b) {
		return true
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func normalizeEmpty(v any) string {
	if v == nil {
		return ""
	}
	s := fmt.Sprint(v)
	return s
}

// resolveConflict dispatches on conflict_strategy per spec.md §4.D step 4.
// It returns the record to upsert (nil if none) and the Conflict's terminal
// status (ConflictPending means the caller should skip the upsert and count
// it as a pending conflict).
func (e *Executor) resolveConflict(ctx context.Context, cfg model.SyncConfig, job *model.SyncJob, key string, master, slave model.Record, conflicting []string) (model.Record, model.ConflictStatus, error) {
	switch cfg.ConflictStrategy {
	case model.StrategySourceWins:
		return e.transform(cfg, master), model.ConflictResolvedMaster, nil

	case model.StrategyTargetWins:
		return nil, model.ConflictResolvedSlave, nil

	case model.StrategyMerge:
		merged := model.Record{}
		for k, v := range slave {
			merged[k] = v
		}
		mappedMaster := e.transform(cfg, master)
		for _, field := range conflicting {
			merged[field] = mappedMaster[field]
		}
		return merged, model.ConflictResolvedMerged, nil

	case model.StrategyWebhook:
		resolved, err := e.callWebhook(ctx, cfg, key, master, slave, conflicting)
		if err != nil {
			return e.escalateManual(cfg, job, key, master, slave, conflicting)
		}
		return resolved, model.ConflictResolvedWebhook, nil

	default: // manual
		return e.escalateManual(cfg, job, key, master, slave, conflicting)
	}
}

func (e *Executor) escalateManual(cfg model.SyncConfig, job *model.SyncJob, key string, master, slave model.Record, conflicting []string) (model.Record, model.ConflictStatus, error) {
	_, err := e.st.CreateConflict(model.Conflict{
		SyncConfigID:      cfg.ID,
		JobID:             job.ID,
		RecordKey:         key,
		MasterData:        master,
		SlaveData:         slave,
		ConflictingFields: conflicting,
		Status:            model.ConflictPending,
	})
	return nil, model.ConflictPending, err
}

type webhookRequest struct {
	RecordKey         string       `json:"record_key"`
	MasterData        model.Record `json:"master_data"`
	SlaveData         model.Record `json:"slave_data"`
	ConflictingFields []string     `json:"conflicting_fields"`
	ConfigID          string       `json:"config_id"`
	ConfigName        string       `json:"config_name"`
}

type webhookResponse struct {
	ResolvedData model.Record `json:"resolved_data"`
}

func (e *Executor) callWebhook(ctx context.Context, cfg model.SyncConfig, key string, master, slave model.Record, conflicting []string) (model.Record, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("no webhook_url configured")
	}
	body, err := json.Marshal(webhookRequest{
		RecordKey: key, MasterData: master, SlaveData: slave,
		ConflictingFields: conflicting, ConfigID: cfg.ID, ConfigName: cfg.Name,
	})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.Upstream(resp.StatusCode, "")
	}
	var out webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.ResolvedData == nil {
		return nil, fmt.Errorf("webhook response missing resolved_data")
	}
	return out.ResolvedData, nil
}

// syncDeletes enumerates slave keys and removes any absent from master.
func (e *Executor) syncDeletes(ctx context.Context, cfg model.SyncConfig, job *model.SyncJob, slave adapter.Adapter, masterKeyCol, slaveKeyCol string) error {
	masterKeys, err := e.rdb.SMembers(ctx, capturedSetKey(job.ID)).Result()
	if err != nil {
		return apperr.Fatal(err)
	}
	present := make(map[string]bool, len(masterKeys))
	for _, k := range masterKeys {
		present[k] = true
	}

	slaveRecs, err := slave.ReadRecords(ctx, cfg.SlaveTable, adapter.ReadOpts{})
	if err != nil {
		return err
	}
	for _, rec := range slaveRecs {
		key := fmt.Sprint(rec[slaveKeyCol])
		if present[key] {
			continue
		}
		if _, err := slave.DeleteRecord(ctx, cfg.SlaveTable, slaveKeyCol, key); err != nil {
			job.Error++
			continue
		}
		job.Deleted++
	}
	metrics.SyncRecordsProcessed.WithLabelValues("deleted").Add(float64(job.Deleted))
	return e.st.UpdateSyncJob(*job)
}

// Resolve applies an admin-driven resolution to a pending Conflict, per
// spec.md §4.D "Conflict resolution API".
func Resolve(st *store.Store, conflictID, resolution, actor string, mergedData model.Record) (model.Conflict, error) {
	c, err := st.GetConflict(conflictID)
	if err != nil {
		return model.Conflict{}, apperr.NotFound("conflict not found")
	}
	if c.Status != model.ConflictPending {
		return model.Conflict{}, apperr.Validation("conflict already resolved", nil)
	}
	switch resolution {
	case "master":
		c.Status = model.ConflictResolvedMaster
	case "slave":
		c.Status = model.ConflictResolvedSlave
	case "merge":
		c.Status = model.ConflictResolvedMerged
		c.MergedData = mergedData
	case "skip":
		c.Status = model.ConflictSkipped
	default:
		return model.Conflict{}, apperr.Validation("unknown resolution", resolution)
	}
	c.ResolvedBy = actor
	c.ResolvedAt = model.NowISO()
	if err := st.UpdateConflict(c); err != nil {
		return model.Conflict{}, err
	}
	return c, nil
}
