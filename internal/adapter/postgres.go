package adapter

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagebase/core/internal/model"
)

const pgCommandTimeout = 60 * time.Second

// pgBase is shared by Postgres, Supabase, and Neon: all three are wire-
// compatible Postgres, differing only in pool sizing, prepared-statement
// caching, SSL handling, and (for Neon) system-table filtering.
type pgBase struct {
	opts        model.ConnectOpts
	pool        *pgxpool.Pool
	maxConns    int32
	sslRequired bool
	filterTable func(name string) bool
	dialect     goqu.DialectWrapper
}

func newPGBase(opts model.ConnectOpts, maxConns int32, sslRequired bool, filter func(string) bool) *pgBase {
	return &pgBase{opts: opts, maxConns: maxConns, sslRequired: sslRequired, filterTable: filter, dialect: goqu.Dialect("postgres")}
}

func (b *pgBase) dsn(disableVerify bool) string {
	ssl := b.opts.SSLMode
	if ssl == "" {
		ssl = "prefer"
	}
	if disableVerify {
		ssl = "require"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		b.opts.User, b.opts.Password, b.opts.Host, b.opts.Port, b.opts.Database, ssl)
}

// Connect pre-pings the pool; on SSL verification failure it retries once
// with verification disabled, per spec.md §4.A.
func (b *pgBase) Connect(ctx context.Context) error {
	cfg, err := pgxpool.ParseConfig(b.dsn(false))
	if err != nil {
		return classifyConnectErr(err)
	}
	cfg.MaxConns = b.maxConns
	if b.opts.PoolerMode {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	pctx, cancel := context.WithTimeout(ctx, pgCommandTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(pctx, cfg)
	if err == nil {
		if perr := pool.Ping(pctx); perr == nil {
			b.pool = pool
			return nil
		} else {
			pool.Close()
			err = perr
		}
	}
	if isSSLError(err) {
		cfg2, err2 := pgxpool.ParseConfig(b.dsn(true))
		if err2 != nil {
			return classifyConnectErr(err2)
		}
		cfg2.MaxConns = b.maxConns
		cfg2.ConnConfig.TLSConfig = &tls.Config{InsecureSkipVerify: true}
		pool2, err2 := pgxpool.NewWithConfig(pctx, cfg2)
		if err2 == nil {
			if perr := pool2.Ping(pctx); perr == nil {
				b.pool = pool2
				return nil
			}
			pool2.Close()
		}
	}
	return classifyConnectErr(err)
}

func isSSLError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "ssl") || strings.Contains(s, "tls") || strings.Contains(s, "certificate")
}

func (b *pgBase) Close(ctx context.Context) error {
	if b.pool != nil {
		b.pool.Close()
	}
	return nil
}

func (b *pgBase) Ping(ctx context.Context) error {
	if b.pool == nil {
		return fmt.Errorf("not connected")
	}
	return b.pool.Ping(ctx)
}

func (b *pgBase) ListTables(ctx context.Context) ([]string, error) {
	rows, err := b.pool.Query(ctx, `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if b.filterTable != nil && b.filterTable(name) {
			continue
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (b *pgBase) GetSchema(ctx context.Context, table string) (model.Schema, error) {
	var schema model.Schema

	colRows, err := b.pool.Query(ctx, `
		SELECT c.column_name, c.data_type, c.is_nullable = 'YES', c.column_default,
		       EXISTS (
		         SELECT 1 FROM information_schema.key_column_usage kcu
		         JOIN information_schema.table_constraints tc
		           ON tc.constraint_name = kcu.constraint_name AND tc.constraint_type = 'PRIMARY KEY'
		         WHERE kcu.table_name = c.table_name AND kcu.column_name = c.column_name
		       ) AS is_pk
		FROM information_schema.columns c
		WHERE c.table_name = $1 ORDER BY c.ordinal_position`, table)
	if err != nil {
		return schema, err
	}
	defer colRows.Close()
	for colRows.Next() {
		var col model.ColumnDef
		var def *string
		if err := colRows.Scan(&col.Name, &col.Type, &col.Nullable, &def, &col.PrimaryKey); err != nil {
			return schema, err
		}
		if def != nil {
			col.Default = *def
		}
		schema.Columns = append(schema.Columns, col)
	}
	if err := colRows.Err(); err != nil {
		return schema, err
	}

	fkRows, err := b.pool.Query(ctx, `
		SELECT kcu.column_name, ccu.table_name AS referred_table, ccu.column_name AS referred_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu ON tc.constraint_name = kcu.constraint_name
		JOIN information_schema.constraint_column_usage ccu ON tc.constraint_name = ccu.constraint_name
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_name = $1`, table)
	if err != nil {
		return schema, err
	}
	defer fkRows.Close()
	for fkRows.Next() {
		var col, refTable, refCol string
		if err := fkRows.Scan(&col, &refTable, &refCol); err != nil {
			return schema, err
		}
		schema.ForeignKeys = append(schema.ForeignKeys, model.FKDef{
			ConstrainedColumns: []string{col},
			ReferredTable:      refTable,
			ReferredColumns:    []string{refCol},
		})
		for i := range schema.Columns {
			if schema.Columns[i].Name == col {
				schema.Columns[i].IsForeign = true
				schema.Columns[i].ForeignTable = refTable
				schema.Columns[i].ForeignColumn = refCol
			}
		}
	}
	return schema, fkRows.Err()
}

func (b *pgBase) ListAllRelationships(ctx context.Context) ([]model.Relationship, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT tc.table_name AS source_table, kcu.column_name AS source_column,
		       ccu.table_name AS target_table, ccu.column_name AS target_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu ON tc.constraint_name = kcu.constraint_name
		JOIN information_schema.constraint_column_usage ccu ON tc.constraint_name = ccu.constraint_name
		WHERE tc.constraint_type = 'FOREIGN KEY'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Relationship
	for rows.Next() {
		var r model.Relationship
		if err := rows.Scan(&r.SourceTable, &r.SourceColumn, &r.TargetTable, &r.TargetColumn); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (b *pgBase) selectColumns(table string, cols []string) []any {
	if len(cols) == 0 {
		return []any{goqu.T(table).Col("*")}
	}
	out := make([]any, 0, len(cols))
	for _, c := range cols {
		out = append(out, identExpr(c))
	}
	return out
}

func (b *pgBase) ReadRecords(ctx context.Context, table string, opts ReadOpts) ([]model.Record, error) {
	ds := b.dialect.From(goqu.T(table)).Select(b.selectColumns(table, opts.Columns)...)
	ds = buildWhere(ds, opts.Where)
	if opts.OrderBy != "" {
		if orderDirection(opts.OrderDirection) == "desc" {
			ds = ds.Order(identExpr(opts.OrderBy).Desc())
		} else {
			ds = ds.Order(identExpr(opts.OrderBy).Asc())
		}
	}
	if opts.Limit > 0 {
		ds = ds.Limit(uint(opts.Limit))
	}
	if opts.Offset > 0 {
		ds = ds.Offset(uint(opts.Offset))
	}
	return b.query(ctx, ds)
}

func (b *pgBase) ReadRecordsWithRelations(ctx context.Context, table string, opts ReadOpts) ([]model.Record, error) {
	cols := make([]any, 0)
	cols = append(cols, b.selectColumns(table, opts.Columns)...)
	ds := b.dialect.From(goqu.T(table))
	for _, rel := range opts.Related {
		relCols := rel.Columns
		if len(relCols) == 0 {
			relCols = []string{"*"}
		}
		for _, c := range relCols {
			if c == "*" {
				continue
			}
			cols = append(cols, goqu.T(rel.Table).Col(c).As(rel.Table+"."+c))
		}
		ds = ds.LeftJoin(goqu.T(rel.Table), goqu.On(goqu.T(table).Col(rel.FKCol).Eq(goqu.T(rel.Table).Col(rel.RefCol))))
	}
	ds = ds.Select(cols...)
	ds = buildWhere(ds, opts.Where)
	if opts.Search != "" && len(opts.SearchCols) > 0 {
		var ors []goqu.Expression
		for _, c := range opts.SearchCols {
			ors = append(ors, goqu.L(identSQL(c)).Like("%"+escapeLike(opts.Search)+"%"))
		}
		ds = ds.Where(goqu.Or(ors...))
	}
	if opts.OrderBy != "" {
		if orderDirection(opts.OrderDirection) == "desc" {
			ds = ds.Order(identExpr(opts.OrderBy).Desc())
		} else {
			ds = ds.Order(identExpr(opts.OrderBy).Asc())
		}
	}
	if opts.Limit > 0 {
		ds = ds.Limit(uint(opts.Limit))
	}
	if opts.Offset > 0 {
		ds = ds.Offset(uint(opts.Offset))
	}
	return b.query(ctx, ds)
}

func (b *pgBase) query(ctx context.Context, ds *goqu.SelectDataset) ([]model.Record, error) {
	sqlStr, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := b.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	fds := rows.FieldDescriptions()
	var out []model.Record
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		rec := model.Record{}
		for i, fd := range fds {
			rec[string(fd.Name)] = vals[i]
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (b *pgBase) ReadRecordByKey(ctx context.Context, table, keyCol, keyVal string) (model.Record, bool, error) {
	recs, err := b.ReadRecords(ctx, table, ReadOpts{Where: []Filter{{Column: keyCol, Op: OpEq, Value: keyVal}}, Limit: 1})
	if err != nil {
		return nil, false, err
	}
	if len(recs) == 0 {
		return nil, false, nil
	}
	return recs[0], true, nil
}

func (b *pgBase) UpsertRecord(ctx context.Context, table string, record model.Record, keyCol string) (model.Record, error) {
	cols := make([]any, 0, len(record))
	vals := make([]any, 0, len(record))
	updates := goqu.Record{}
	for k, v := range record {
		cols = append(cols, k)
		vals = append(vals, v)
		if k != keyCol {
			updates[k] = v
		}
	}
	insertDS := b.dialect.Insert(table).Cols(cols...).Vals(vals).
		OnConflict(goqu.DoUpdate(keyCol, updates)).Returning(goqu.Star())
	sqlStr, args, err := insertDS.Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := b.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	fds := rows.FieldDescriptions()
	var rec model.Record
	if rows.Next() {
		v, err := rows.Values()
		if err != nil {
			return nil, err
		}
		rec = model.Record{}
		for i, fd := range fds {
			rec[string(fd.Name)] = v[i]
		}
	}
	return rec, rows.Err()
}

func (b *pgBase) DeleteRecord(ctx context.Context, table, keyCol, keyVal string) (bool, error) {
	ds := b.dialect.Delete(table).Where(goqu.C(keyCol).Eq(keyVal))
	sqlStr, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return false, err
	}
	tag, err := b.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (b *pgBase) CountRecords(ctx context.Context, table string, where []Filter) (int, error) {
	ds := b.dialect.From(table).Select(goqu.COUNT(goqu.Star()))
	ds = buildWhere(ds, where)
	sqlStr, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := b.pool.QueryRow(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, err
	}
	return int(count), nil
}

func (b *pgBase) SearchRecords(ctx context.Context, table, query string, limit int) ([]model.Record, error) {
	schema, err := b.GetSchema(ctx, table)
	if err != nil {
		return nil, err
	}
	var ors []goqu.Expression
	for _, c := range schema.Columns {
		if strings.Contains(strings.ToLower(c.Type), "char") || strings.Contains(strings.ToLower(c.Type), "text") {
			ors = append(ors, goqu.L(identSQL(c.Name)).ILike("%"+escapeLike(query)+"%"))
		}
	}
	if len(ors) == 0 {
		return nil, nil
	}
	ds := b.dialect.From(table).Select(goqu.Star()).Where(goqu.Or(ors...))
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	return b.query(ctx, ds)
}

func (b *pgBase) CountSearchMatches(ctx context.Context, table, query string) (int, error) {
	schema, err := b.GetSchema(ctx, table)
	if err != nil {
		return 0, err
	}
	var ors []goqu.Expression
	for _, c := range schema.Columns {
		if strings.Contains(strings.ToLower(c.Type), "char") || strings.Contains(strings.ToLower(c.Type), "text") {
			ors = append(ors, goqu.L(identSQL(c.Name)).ILike("%"+escapeLike(query)+"%"))
		}
	}
	if len(ors) == 0 {
		return 0, nil
	}
	ds := b.dialect.From(table).Select(goqu.COUNT(goqu.Star())).Where(goqu.Or(ors...))
	sqlStr, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := b.pool.QueryRow(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, err
	}
	return int(count), nil
}

// PostgresAdapter is a plain Postgres backend: 60s command timeout, default
// pool bounds, SSL-verification-failure retry.
type PostgresAdapter struct{ *pgBase }

func NewPostgresAdapter(opts model.ConnectOpts) *PostgresAdapter {
	return &PostgresAdapter{pgBase: newPGBase(opts, 10, false, nil)}
}

var _ Adapter = (*PostgresAdapter)(nil)
