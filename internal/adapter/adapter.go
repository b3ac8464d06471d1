// Package adapter provides a uniform capability interface over the
// heterogeneous external data backends a Datasource can point at
// (PostgreSQL, Supabase, MySQL/WordPress-DB, WordPress REST, Neon). Every
// adapter method signature matches spec.md §4.A so the schema cache, sync
// executor, view layer, and publish compiler can all depend on the
// interface alone.
package adapter

import (
	"context"

	"github.com/pagebase/core/internal/model"
)

// Operator is the closed WHERE-operator set every SQL adapter's filter
// builder accepts. Anything outside this set is dropped rather than ever
// reaching raw SQL.
type Operator string

const (
	OpEq           Operator = "=="
	OpNeq          Operator = "!="
	OpGt           Operator = ">"
	OpLt           Operator = "<"
	OpContains     Operator = "contains"
	OpStartsWith   Operator = "starts_with"
	OpEndsWith     Operator = "ends_with"
	OpIsEmpty      Operator = "is_empty"
	OpIsNotEmpty   Operator = "is_not_empty"
	OpIn           Operator = "in"
	OpNotIn        Operator = "not_in"
	OpNotContains  Operator = "not_contains"
)

var validOperators = map[Operator]bool{
	OpEq: true, OpNeq: true, OpGt: true, OpLt: true,
	OpContains: true, OpStartsWith: true, OpEndsWith: true,
	OpIsEmpty: true, OpIsNotEmpty: true, OpIn: true, OpNotIn: true,
	OpNotContains: true,
}

// ValidOperator reports whether op is in the closed set.
func ValidOperator(op string) bool { return validOperators[Operator(op)] }

// Filter is one normalized WHERE predicate, after translating a
// model.FilterExpr or a REST `filters=<json>` query param into adapter
// terms. Column may be dotted ("related_table.col") to address a related
// table's column once joined.
type Filter struct {
	Column string
	Op     Operator
	Value  string
}

// RelatedSpec describes one related table to flatten into the base read via
// a foreign key, per spec.md §4.A read_records_with_relations.
type RelatedSpec struct {
	Table   string
	Columns []string
	FKCol   string // column on the base table
	RefCol  string // column on the related table
}

// ReadOpts bundles the optional parameters of read_records /
// read_records_with_relations.
type ReadOpts struct {
	Columns        []string
	Where          []Filter
	Limit          int
	Offset         int
	OrderBy        string
	OrderDirection string
	Search         string
	SearchCols     []string
	Related        []RelatedSpec
}

// ConnectionSuggestion classifies a failed connect() attempt.
type ConnectionSuggestion string

const (
	SuggestAuth        ConnectionSuggestion = "auth"
	SuggestHost        ConnectionSuggestion = "host_unresolved"
	SuggestPortBlocked ConnectionSuggestion = "port_blocked"
	SuggestSSL         ConnectionSuggestion = "ssl"
	SuggestTimeout     ConnectionSuggestion = "timeout"
	SuggestUnknown     ConnectionSuggestion = "unknown"
)

// Adapter is the capability set every datasource backend implements.
// Connect/Close bracket a connection's lifetime; all other methods assume
// Connect succeeded.
type Adapter interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	ListTables(ctx context.Context) ([]string, error)
	GetSchema(ctx context.Context, table string) (model.Schema, error)
	ListAllRelationships(ctx context.Context) ([]model.Relationship, error)

	ReadRecords(ctx context.Context, table string, opts ReadOpts) ([]model.Record, error)
	ReadRecordsWithRelations(ctx context.Context, table string, opts ReadOpts) ([]model.Record, error)
	ReadRecordByKey(ctx context.Context, table, keyCol, keyVal string) (model.Record, bool, error)
	UpsertRecord(ctx context.Context, table string, record model.Record, keyCol string) (model.Record, error)
	DeleteRecord(ctx context.Context, table, keyCol, keyVal string) (bool, error)

	CountRecords(ctx context.Context, table string, where []Filter) (int, error)
	SearchRecords(ctx context.Context, table, query string, limit int) ([]model.Record, error)
	CountSearchMatches(ctx context.Context, table, query string) (int, error)
}

// Factory builds the right Adapter implementation for a Datasource's kind,
// wiring in ConnectOpts derived by the caller (with secrets decrypted).
func Factory(ds model.Datasource, opts model.ConnectOpts) (Adapter, error) {
	var ad Adapter
	switch ds.Kind {
	case model.KindPostgres:
		ad = NewPostgresAdapter(opts)
	case model.KindSupabase:
		ad = NewSupabaseAdapter(opts)
	case model.KindNeon:
		ad = NewNeonAdapter(opts)
	case model.KindMySQL, model.KindWordPressDB:
		ad = NewMySQLAdapter(opts, ds.Kind == model.KindWordPressDB)
	case model.KindWordPressREST:
		ad = NewWordPressRESTAdapter(opts)
	default:
		return nil, &UnsupportedKindError{Kind: ds.Kind}
	}
	return Instrument(ds.Kind, ad), nil
}

type UnsupportedKindError struct{ Kind model.DatasourceKind }

func (e *UnsupportedKindError) Error() string { return "unsupported datasource kind: " + string(e.Kind) }
