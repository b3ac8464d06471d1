package publish

import (
	"context"
	"fmt"
	"strings"

	"github.com/pagebase/core/internal/apperr"
	"github.com/pagebase/core/internal/model"
)

const (
	supabaseRowsRPC     = "frontbase_get_rows"
	supabaseDistinctRPC = "frontbase_get_distinct_values"
	defaultPageSize     = 1000
)

// enrichBinding computes the main DataRequest, attaches per-filter
// options_data_request for dropdown/multiselect filters, and carries
// columns through as column_order, per spec.md §4.F step 4 / §4.6.
func (c *Compiler) enrichBinding(ctx context.Context, comp *model.PageComponent, ds model.Datasource) error {
	b := comp.Binding
	table, _ := b["table_name"].(string)
	if table == "" {
		return nil
	}

	fks, err := c.foreignKeysFor(ctx, ds, table)
	if err != nil {
		return apperr.SchemaMiss(table)
	}

	columns := toStringSlice(b["columns"])
	joins := resolveJoins(table, columns, fks)

	req, qc := c.buildDataRequest(ds, table, columns, joins, b)
	b["dataRequest"] = req
	b["queryConfig"] = qc

	if len(columns) > 0 {
		b["column_order"] = columns
	}

	attachFilterOptions(b, table)
	return nil
}

func (c *Compiler) foreignKeysFor(ctx context.Context, ds model.Datasource, table string) ([]model.FKDef, error) {
	sc, ok, err := c.schemas.GetCachedSchema(ds.ID, table)
	if err != nil {
		return nil, err
	}
	if ok {
		return sc.ForeignKeys, nil
	}
	ad, err := c.factory(ctx, ds)
	if err != nil {
		return nil, err
	}
	sc, err = c.schemas.EnsureTable(ctx, ds.ID, table, ad)
	if err != nil {
		return nil, err
	}
	return sc.ForeignKeys, nil
}

// resolveJoins infers one {type: left, table, on} per distinct related
// table named by a dotted column, resolved against the base table's cached
// FKs, per spec.md §4.6.
func resolveJoins(baseTable string, columns []string, fks []model.FKDef) []model.Join {
	seen := map[string]bool{}
	var joins []model.Join
	for _, col := range columns {
		relTable, _, ok := splitDotted(col)
		if !ok || seen[relTable] {
			continue
		}
		seen[relTable] = true
		for _, fk := range fks {
			if fk.ReferredTable != relTable || len(fk.ConstrainedColumns) == 0 || len(fk.ReferredColumns) == 0 {
				continue
			}
			joins = append(joins, model.Join{
				Type:  "left",
				Table: relTable,
				On:    fmt.Sprintf(`"%s"."%s" = "%s"."%s"`, baseTable, fk.ConstrainedColumns[0], relTable, fk.ReferredColumns[0]),
			})
			break
		}
	}
	return joins
}

func splitDotted(col string) (table, column string, ok bool) {
	i := strings.Index(col, ".")
	if i < 0 {
		return "", col, false
	}
	return col[:i], col[i+1:], true
}

// quoteProjection renders one projection column per spec.md §4.6: base
// columns as "t"."c", dotted related columns as "rel"."c" AS "rel.c".
func quoteProjection(baseTable, col string) string {
	if relTable, c, ok := splitDotted(col); ok {
		return fmt.Sprintf(`"%s"."%s" AS "%s.%s"`, relTable, c, relTable, c)
	}
	return fmt.Sprintf(`"%s"."%s"`, baseTable, col)
}

func projectionString(baseTable string, columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = quoteProjection(baseTable, c)
	}
	return strings.Join(parts, ", ")
}

func (c *Compiler) buildDataRequest(ds model.Datasource, table string, columns []string, joins []model.Join, b map[string]any) (*model.DataRequest, *model.QueryConfig) {
	pageSize := defaultPageSize
	enabled := false
	if p, ok := b["pagination"].(map[string]any); ok {
		enabled, _ = p["enabled"].(bool)
		if ps, ok := toInt(p["page_size"]); ok && enabled {
			pageSize = ps
		}
	}

	var sortCol, sortDir any
	sortDir = "asc"
	if s, ok := b["sorting"].(map[string]any); ok {
		if col, ok := s["column"].(string); ok && col != "" {
			sortCol = col
		}
		if dir, ok := s["direction"].(string); ok && dir != "" {
			sortDir = strings.ToLower(dir)
		}
	}

	projection := projectionString(table, columns)

	qc := &model.QueryConfig{
		TableName:     table,
		Columns:       projection,
		Joins:         joins,
		PageSize:      pageSize,
		SortDirection: fmt.Sprint(sortDir),
	}
	if sortCol != nil {
		qc.SortColumn = fmt.Sprint(sortCol)
	}

	switch ds.Kind {
	case model.KindSupabase:
		return c.buildSupabaseDataRequest(ds, table, projection, joins, sortCol, sortDir, pageSize), qc
	case model.KindNeon:
		return c.buildNeonDataRequest(ds, table, projection, joins, sortCol, sortDir, pageSize), qc
	default:
		return c.buildGenericDataRequest(ds, table, projection, joins, sortCol, sortDir, pageSize), qc
	}
}

func (c *Compiler) buildSupabaseDataRequest(ds model.Datasource, table, projection string, joins []model.Join, sortCol, sortDir any, pageSize int) *model.DataRequest {
	url := strings.TrimRight(ds.RESTBaseURL, "/") + "/rest/v1/rpc/" + supabaseRowsRPC
	body := map[string]any{
		"table_name": table,
		"columns":    projection,
		"joins":      joinBodies(joins),
		"sort_col":   sortCol,
		"sort_dir":   sortDir,
		"page":       1,
		"page_size":  pageSize,
		"filters":    []any{},
	}
	return &model.DataRequest{
		URL:    url,
		Method: "POST",
		Headers: map[string]string{
			"apikey":        "{{SUPABASE_ANON_KEY}}",
			"Authorization": "Bearer {{SUPABASE_ANON_KEY}}",
		},
		Body:             body,
		ResultPath:       "",
		FlattenRelations: len(joins) > 0,
	}
}

// buildNeonDataRequest builds a raw SQL SELECT with left-joins derived from
// FKs and ships it in the Neon Data API's HTTP-SQL envelope, per spec.md
// §4.6. (planetscale/turso are named in the spec alongside neon for this
// branch, but neither appears as a DatasourceKind in this data model —
// turso is only a PublishStrategyKind for bundle delivery — so this branch
// only ever fires for neon.)
func (c *Compiler) buildNeonDataRequest(ds model.Datasource, table, projection string, joins []model.Join, sortCol, sortDir any, pageSize int) *model.DataRequest {
	sql := "SELECT " + projection + " FROM \"" + table + "\""
	for _, j := range joins {
		sql += fmt.Sprintf(" LEFT JOIN %q ON %s", j.Table, j.On)
	}
	if sortCol != nil {
		sql += fmt.Sprintf(" ORDER BY %v %v", sortCol, sortDir)
	}
	sql += fmt.Sprintf(" LIMIT %d", pageSize)

	return &model.DataRequest{
		URL:    strings.TrimRight(ds.RESTBaseURL, "/") + "/sql",
		Method: "POST",
		Headers: map[string]string{
			"Authorization": "Bearer {{NEON_API_KEY}}",
			"Content-Type":  "application/json",
		},
		Body:             map[string]any{"query": sql, "params": []any{}},
		ResultPath:       "rows",
		FlattenRelations: len(joins) > 0,
	}
}

// buildGenericDataRequest is the fallback for kinds spec.md §4.6 does not
// detail explicitly (postgres, mysql/wordpress_db, wordpress_rest): it
// mirrors the Supabase RPC body shape against a generic edge data endpoint,
// since every adapter kind answers read_records_with_relations the same
// shape regardless of wire protocol.
func (c *Compiler) buildGenericDataRequest(ds model.Datasource, table, projection string, joins []model.Join, sortCol, sortDir any, pageSize int) *model.DataRequest {
	body := map[string]any{
		"datasource_id": ds.ID,
		"table_name":    table,
		"columns":       projection,
		"joins":         joinBodies(joins),
		"sort_col":      sortCol,
		"sort_dir":      sortDir,
		"page":          1,
		"page_size":     pageSize,
		"filters":       []any{},
	}
	return &model.DataRequest{
		URL:              "{{EDGE_URL}}/api/data/query",
		Method:           "POST",
		Headers:          map[string]string{"Content-Type": "application/json"},
		Body:             body,
		ResultPath:       "rows",
		FlattenRelations: len(joins) > 0,
	}
}

func joinBodies(joins []model.Join) []map[string]any {
	out := make([]map[string]any, len(joins))
	for i, j := range joins {
		out[i] = map[string]any{"type": j.Type, "table": j.Table, "on": j.On}
	}
	return out
}

// attachFilterOptions attaches an options_data_request to every
// dropdown/multiselect frontend filter with a non-empty column, per
// spec.md §4.F step 4 and the §8 testable property.
func attachFilterOptions(b map[string]any, baseTable string) {
	raw, ok := b["frontend_filters"].([]any)
	if !ok {
		return
	}
	for _, item := range raw {
		filter, ok := item.(map[string]any)
		if !ok {
			continue
		}
		filterType, _ := filter["filter_type"].(string)
		column, _ := filter["column"].(string)
		if column == "" || (filterType != model.FilterDropdown && filterType != model.FilterMultiselect) {
			continue
		}
		targetTable, targetCol, dotted := splitDotted(column)
		if !dotted {
			targetTable, targetCol = baseTable, column
		}
		filter["options_data_request"] = map[string]any{
			"url":    "{{SUPABASE_URL}}/rest/v1/rpc/" + supabaseDistinctRPC,
			"method": "POST",
			"body":   map[string]any{"target_table": targetTable, "target_col": targetCol},
		}
	}
}

func toStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}
