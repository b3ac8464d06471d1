package model

// ConflictStrategy enumerates how the sync executor resolves a record that
// differs between master and slave.
type ConflictStrategy string

const (
	StrategySourceWins ConflictStrategy = "source_wins"
	StrategyTargetWins ConflictStrategy = "target_wins"
	StrategyManual     ConflictStrategy = "manual"
	StrategyMerge      ConflictStrategy = "merge"
	StrategyWebhook    ConflictStrategy = "webhook"
)

// FieldMapping maps one master column to one slave column, optionally
// through a Transform expression evaluated by expr.Eval, and optionally
// marked as the key field
// used to match records across the two sides.
type FieldMapping struct {
	MasterColumn string `json:"master_column"`
	SlaveColumn  string `json:"slave_column"`
	Transform    string `json:"transform,omitempty"`
	IsKeyField   bool   `json:"is_key_field,omitempty"`
	SkipSync     bool   `json:"skip_sync,omitempty"`
}

// SyncConfig is a configured master->slave replication pair.
type SyncConfig struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	MasterDatasource string           `json:"master_datasource_id"`
	SlaveDatasource  string           `json:"slave_datasource_id"`
	MasterViewID     string           `json:"master_view_id,omitempty"`
	SlaveViewID      string           `json:"slave_view_id,omitempty"`
	MasterTable      string           `json:"master_table"`
	SlaveTable       string           `json:"slave_table"`
	MasterPK         string           `json:"master_pk"`
	SlavePK          string           `json:"slave_pk"`
	ConflictStrategy ConflictStrategy `json:"conflict_strategy"`
	WebhookURL       string           `json:"webhook_url,omitempty"`
	SyncDeletes      bool             `json:"sync_deletes"`
	BatchSize        int              `json:"batch_size"`
	CronSchedule     string           `json:"cron_schedule,omitempty"`
	Active           bool             `json:"active"`
	FieldMappings    []FieldMapping   `json:"field_mappings"`
	CreatedAt        string           `json:"created_at,omitempty"`
	UpdatedAt        string           `json:"updated_at,omitempty"`
}

// KeyField returns the master/slave column pair used to match records across
// sides: the explicit is_key_field mapping if present, else the config's
// declared master_pk/slave_pk.
func (c SyncConfig) KeyField() (masterCol, slaveCol string) {
	for _, fm := range c.FieldMappings {
		if fm.IsKeyField {
			return fm.MasterColumn, fm.SlaveColumn
		}
	}
	return c.MasterPK, c.SlavePK
}

// SyncJobStatus enumerates the lifecycle of a SyncJob.
type SyncJobStatus string

const (
	JobPending   SyncJobStatus = "pending"
	JobRunning   SyncJobStatus = "running"
	JobCompleted SyncJobStatus = "completed"
	JobFailed    SyncJobStatus = "failed"
	JobCancelled SyncJobStatus = "cancelled"
)

// SyncJob tracks one execution of a SyncConfig.
type SyncJob struct {
	ID            string        `json:"id"`
	SyncConfigID  string        `json:"sync_config_id"`
	Status        SyncJobStatus `json:"status"`
	Total         int           `json:"total"`
	Processed     int           `json:"processed"`
	Inserted      int           `json:"inserted"`
	Updated       int           `json:"updated"`
	Deleted       int           `json:"deleted"`
	Conflict      int           `json:"conflict"`
	Error         int           `json:"error"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	TriggeredBy   string        `json:"triggered_by"`
	CreatedAt     string        `json:"created_at,omitempty"`
	StartedAt     string        `json:"started_at,omitempty"`
	FinishedAt    string        `json:"finished_at,omitempty"`
}

// ConflictStatus enumerates the lifecycle of a Conflict row.
type ConflictStatus string

const (
	ConflictPending         ConflictStatus = "pending"
	ConflictResolvedMaster  ConflictStatus = "resolved_master"
	ConflictResolvedSlave   ConflictStatus = "resolved_slave"
	ConflictResolvedMerged  ConflictStatus = "resolved_merged"
	ConflictResolvedWebhook ConflictStatus = "resolved_webhook"
	ConflictSkipped         ConflictStatus = "skipped"
)

// Conflict is a record whose master/slave values disagree on at least one
// mapped, non-key field and whose conflict_strategy could not auto-resolve.
type Conflict struct {
	ID                string         `json:"id"`
	SyncConfigID      string         `json:"sync_config_id"`
	JobID             string         `json:"job_id"`
	RecordKey         string         `json:"record_key"`
	MasterData        Record         `json:"master_data"`
	SlaveData         Record         `json:"slave_data"`
	ConflictingFields []string       `json:"conflicting_fields"`
	Status            ConflictStatus `json:"status"`
	MergedData        Record         `json:"merged_data,omitempty"`
	ResolvedBy        string         `json:"resolved_by,omitempty"`
	ResolvedAt        string         `json:"resolved_at,omitempty"`
	CreatedAt         string         `json:"created_at,omitempty"`
}
