package model

// DatasourceKind enumerates the adapter variants the factory in
// internal/adapter knows how to build.
type DatasourceKind string

const (
	KindPostgres         DatasourceKind = "postgres"
	KindSupabase         DatasourceKind = "supabase"
	KindMySQL            DatasourceKind = "mysql"
	KindWordPressDB      DatasourceKind = "wordpress_db"
	KindWordPressREST    DatasourceKind = "wordpress_rest"
	KindWordPressGraphQL DatasourceKind = "wordpress_graphql"
	KindNeon             DatasourceKind = "neon"
)

// Datasource is a registered external data backend. ServiceKey is stored
// encrypted at rest (see internal/secrets) and is never serialized back to
// the builder UI or baked into a compiled page.
type Datasource struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Kind            DatasourceKind `json:"kind"`
	Host            string         `json:"host,omitempty"`
	Port            int            `json:"port,omitempty"`
	Database        string         `json:"database,omitempty"`
	User            string         `json:"user,omitempty"`
	Password        string         `json:"password,omitempty"`
	RESTBaseURL     string         `json:"rest_base_url,omitempty"`
	AnonKey         string         `json:"anon_key,omitempty"`
	ServiceKeyEnc   string         `json:"-"`
	TablePrefix     string         `json:"table_prefix,omitempty"`
	Active          bool           `json:"active"`
	LastTestedAt    string         `json:"last_tested_at,omitempty"`
	LastTestSuccess bool           `json:"last_test_success"`
	CreatedAt       string         `json:"created_at,omitempty"`
	UpdatedAt       string         `json:"updated_at,omitempty"`
}

// DatasourceBundle is the non-secret projection of a Datasource shipped
// inside a CompiledPage. Secrets never travel past this boundary; the edge
// resolves SecretEnvRef from its own environment at render time.
type DatasourceBundle struct {
	ID         string         `json:"id"`
	Kind       DatasourceKind `json:"kind"`
	URL        string         `json:"url,omitempty"`
	AnonKey    string         `json:"anonKey,omitempty"`
	SecretEnv  string         `json:"secretEnvRef,omitempty"`
}

// ColumnDef describes a single column as discovered by an adapter.
type ColumnDef struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Nullable      bool   `json:"nullable"`
	PrimaryKey    bool   `json:"primary_key,omitempty"`
	Default       any    `json:"default,omitempty"`
	IsForeign     bool   `json:"is_foreign,omitempty"`
	ForeignTable  string `json:"foreign_table,omitempty"`
	ForeignColumn string `json:"foreign_column,omitempty"`
}

// FKDef is a single foreign-key constraint as reported by the database's
// constraint metadata (or synthesized for non-SQL adapters).
type FKDef struct {
	ConstrainedColumns []string `json:"constrained_columns"`
	ReferredTable      string   `json:"referred_table"`
	ReferredColumns    []string `json:"referred_columns"`
}

// Relationship is one normalized (source column, referred column) pair, the
// shape returned by list_all_relationships / the schema cache's
// GetAllRelationships.
type Relationship struct {
	SourceTable  string `json:"source_table"`
	SourceColumn string `json:"source_column"`
	TargetTable  string `json:"target_table"`
	TargetColumn string `json:"target_column"`
}

// Schema bundles the columns and foreign keys of one table, the unit the
// schema cache stores and the adapter's GetSchema returns.
type Schema struct {
	Columns     []ColumnDef `json:"columns"`
	ForeignKeys []FKDef     `json:"foreign_keys"`
}

// TableSchemaEntry is the persisted cache row: one per (datasource, table).
type TableSchemaEntry struct {
	DatasourceID string      `json:"datasource_id"`
	TableName    string      `json:"table_name"`
	Columns      []ColumnDef `json:"columns"`
	ForeignKeys  []FKDef     `json:"foreign_keys"`
	FetchedAt    string      `json:"fetched_at"`
}

// ConnectOpts carries the parameters an adapter needs to establish a
// connection; it is built from a Datasource by internal/api's
// Server.AdapterFor, which decrypts the secrets and hands it to
// internal/adapter.Factory.
type ConnectOpts struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	RESTBaseURL string
	AnonKey     string
	ServiceKey  string
	TablePrefix string
	SSLMode     string
	PoolerMode  bool // disables prepared-statement caching when true (pgbouncer transaction mode etc.)
}
