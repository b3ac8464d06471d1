package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	_ "github.com/go-sql-driver/mysql"

	"github.com/pagebase/core/internal/model"
)

const mysqlCommandTimeout = 60 * time.Second

// MySQLAdapter backs both a plain MySQL datasource and the WordPress-DB
// variant (same wire protocol; the latter understands the wp_ table-prefix
// convention and can materialize a postmeta-key filter as a JOIN).
type MySQLAdapter struct {
	opts        model.ConnectOpts
	db          *sql.DB
	dialect     goqu.DialectWrapper
	isWordPress bool
	prefix      string
}

func NewMySQLAdapter(opts model.ConnectOpts, isWordPress bool) *MySQLAdapter {
	prefix := opts.TablePrefix
	if isWordPress && prefix == "" {
		prefix = "wp_"
	}
	return &MySQLAdapter{opts: opts, dialect: goqu.Dialect("mysql"), isWordPress: isWordPress, prefix: prefix}
}

var _ Adapter = (*MySQLAdapter)(nil)

func (a *MySQLAdapter) dsn() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&timeout=10s", a.opts.User, a.opts.Password, a.opts.Host, a.opts.Port, a.opts.Database)
}

func (a *MySQLAdapter) Connect(ctx context.Context) error {
	db, err := sql.Open("mysql", a.dsn())
	if err != nil {
		return classifyConnectErr(err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, mysqlCommandTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return classifyConnectErr(err)
	}
	a.db = db
	return nil
}

func (a *MySQLAdapter) Close(ctx context.Context) error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *MySQLAdapter) Ping(ctx context.Context) error { return a.db.PingContext(ctx) }

func (a *MySQLAdapter) ListTables(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name`)
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
		out = append(out, name)
	}
	return out, rows.Err()
}

func (a *MySQLAdapter) GetSchema(ctx context.Context, table string) (model.Schema, error) {
	var schema model.Schema
	colRows, err := a.db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES', column_default, column_key = 'PRI'
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position`, table)
	if err != nil {
		return schema, err
	}
	defer colRows.Close()
	for colRows.Next() {
		var col model.ColumnDef
		var def sql.NullString
		if err := colRows.Scan(&col.Name, &col.Type, &col.Nullable, &def, &col.PrimaryKey); err != nil {
			return schema, err
		}
		if def.Valid {
			col.Default = def.String
		}
		schema.Columns = append(schema.Columns, col)
	}
	if err := colRows.Err(); err != nil {
		return schema, err
	}

	fkRows, err := a.db.QueryContext(ctx, `
		SELECT column_name, referenced_table_name, referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE() AND table_name = ? AND referenced_table_name IS NOT NULL`, table)
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
			ConstrainedColumns: []string{col}, ReferredTable: refTable, ReferredColumns: []string{refCol},
		})
	}
	return schema, fkRows.Err()
}

func (a *MySQLAdapter) ListAllRelationships(ctx context.Context) ([]model.Relationship, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT table_name, column_name, referenced_table_name, referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE() AND referenced_table_name IS NOT NULL`)
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

// postmetaJoins materializes a filter referencing a wp_postmeta key as a
// uniquely-aliased JOIN, per spec.md §4.A's WordPress-DB convention. Filters
// of the shape "meta:<key>.<column>" trigger one join per distinct key.
func (a *MySQLAdapter) postmetaJoins(ds *goqu.SelectDataset, table string, filters []Filter) (*goqu.SelectDataset, []Filter) {
	if !a.isWordPress || table != a.prefix+"posts" {
		return ds, filters
	}
	rest := make([]Filter, 0, len(filters))
	seen := map[string]string{}
	for _, f := range filters {
		key, col, ok := parseMetaFilter(f.Column)
		if !ok {
			rest = append(rest, f)
			continue
		}
		alias, joined := seen[key]
		if !joined {
			alias = "pm_" + sanitizeAlias(key)
			seen[key] = alias
			metaTable := a.prefix + "postmeta"
			ds = ds.LeftJoin(
				goqu.T(metaTable).As(alias),
				goqu.On(goqu.T(alias).Col("post_id").Eq(goqu.T(table).Col("ID")), goqu.T(alias).Col("meta_key").Eq(key)),
			)
		}
		f.Column = alias + "." + col
		rest = append(rest, f)
	}
	return ds, rest
}

func parseMetaFilter(col string) (key, field string, ok bool) {
	if !strings.HasPrefix(col, "meta:") {
		return "", "", false
	}
	rest := strings.TrimPrefix(col, "meta:")
	key, field, found := strings.Cut(rest, ".")
	if !found {
		field = "meta_value"
	}
	return key, field, true
}

func sanitizeAlias(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func (a *MySQLAdapter) ReadRecords(ctx context.Context, table string, opts ReadOpts) ([]model.Record, error) {
	cols := []any{goqu.T(table).Col("*")}
	if len(opts.Columns) > 0 {
		cols = cols[:0]
		for _, c := range opts.Columns {
			cols = append(cols, identExpr(c))
		}
	}
	ds := a.dialect.From(goqu.T(table)).Select(cols...)
	ds, filters := a.postmetaJoins(ds, table, opts.Where)
	ds = buildWhere(ds, filters)
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
	return a.query(ctx, ds)
}

func (a *MySQLAdapter) ReadRecordsWithRelations(ctx context.Context, table string, opts ReadOpts) ([]model.Record, error) {
	cols := make([]any, 0)
	if len(opts.Columns) == 0 {
		cols = append(cols, goqu.T(table).Col("*"))
	} else {
		for _, c := range opts.Columns {
			cols = append(cols, identExpr(c))
		}
	}
	ds := a.dialect.From(goqu.T(table))
	for _, rel := range opts.Related {
		for _, c := range rel.Columns {
			cols = append(cols, goqu.T(rel.Table).Col(c).As(rel.Table+"."+c))
		}
		ds = ds.LeftJoin(goqu.T(rel.Table), goqu.On(goqu.T(table).Col(rel.FKCol).Eq(goqu.T(rel.Table).Col(rel.RefCol))))
	}
	ds = ds.Select(cols...)
	ds, filters := a.postmetaJoins(ds, table, opts.Where)
	ds = buildWhere(ds, filters)
	if opts.Limit > 0 {
		ds = ds.Limit(uint(opts.Limit))
	}
	if opts.Offset > 0 {
		ds = ds.Offset(uint(opts.Offset))
	}
	return a.query(ctx, ds)
}

func (a *MySQLAdapter) query(ctx context.Context, ds *goqu.SelectDataset) ([]model.Record, error) {
	sqlStr, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := a.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	colNames, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []model.Record
	for rows.Next() {
		vals := make([]any, len(colNames))
		ptrs := make([]any, len(colNames))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := model.Record{}
		for i, name := range colNames {
			rec[name] = vals[i]
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (a *MySQLAdapter) ReadRecordByKey(ctx context.Context, table, keyCol, keyVal string) (model.Record, bool, error) {
	recs, err := a.ReadRecords(ctx, table, ReadOpts{Where: []Filter{{Column: keyCol, Op: OpEq, Value: keyVal}}, Limit: 1})
	if err != nil {
		return nil, false, err
	}
	if len(recs) == 0 {
		return nil, false, nil
	}
	return recs[0], true, nil
}

func (a *MySQLAdapter) UpsertRecord(ctx context.Context, table string, record model.Record, keyCol string) (model.Record, error) {
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
	ds := a.dialect.Insert(table).Cols(cols...).Vals(vals).OnConflict(goqu.DoUpdate(keyCol, updates))
	sqlStr, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	if _, err := a.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return nil, err
	}
	rec, _, err := a.ReadRecordByKey(ctx, table, keyCol, fmt.Sprint(record[keyCol]))
	return rec, err
}

func (a *MySQLAdapter) DeleteRecord(ctx context.Context, table, keyCol, keyVal string) (bool, error) {
	ds := a.dialect.Delete(table).Where(goqu.C(keyCol).Eq(keyVal))
	sqlStr, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return false, err
	}
	res, err := a.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (a *MySQLAdapter) CountRecords(ctx context.Context, table string, where []Filter) (int, error) {
	ds := a.dialect.From(table).Select(goqu.COUNT(goqu.Star()))
	ds, filters := a.postmetaJoins(ds, table, where)
	ds = buildWhere(ds, filters)
	sqlStr, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := a.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, err
	}
	return int(count), nil
}

func (a *MySQLAdapter) SearchRecords(ctx context.Context, table, query string, limit int) ([]model.Record, error) {
	schema, err := a.GetSchema(ctx, table)
	if err != nil {
		return nil, err
	}
	var ors []goqu.Expression
	for _, c := range schema.Columns {
		if strings.Contains(strings.ToLower(c.Type), "char") || strings.Contains(strings.ToLower(c.Type), "text") {
			ors = append(ors, goqu.L(identSQL(c.Name)).Like("%"+escapeLike(query)+"%"))
		}
	}
	if len(ors) == 0 {
		return nil, nil
	}
	ds := a.dialect.From(table).Select(goqu.Star()).Where(goqu.Or(ors...))
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	return a.query(ctx, ds)
}

func (a *MySQLAdapter) CountSearchMatches(ctx context.Context, table, query string) (int, error) {
	schema, err := a.GetSchema(ctx, table)
	if err != nil {
		return 0, err
	}
	var ors []goqu.Expression
	for _, c := range schema.Columns {
		if strings.Contains(strings.ToLower(c.Type), "char") || strings.Contains(strings.ToLower(c.Type), "text") {
			ors = append(ors, goqu.L(identSQL(c.Name)).Like("%"+escapeLike(query)+"%"))
		}
	}
	if len(ors) == 0 {
		return 0, nil
	}
	ds := a.dialect.From(table).Select(goqu.COUNT(goqu.Star())).Where(goqu.Or(ors...))
	sqlStr, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := a.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, err
	}
	return int(count), nil
}
