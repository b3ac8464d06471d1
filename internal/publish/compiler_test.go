package publish

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/pagebase/core/internal/adapter"
	"github.com/pagebase/core/internal/cache"
	"github.com/pagebase/core/internal/localdb"
	"github.com/pagebase/core/internal/model"
	"github.com/pagebase/core/internal/schema"
	"github.com/pagebase/core/internal/store"
)

func newTestCompiler(t *testing.T) (*Compiler, *store.Store) {
	t.Helper()
	db, err := localdb.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open localdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	schemas := schema.New(st)
	factory := func(ctx context.Context, ds model.Datasource) (adapter.Adapter, error) {
		t.Fatalf("unexpected adapter factory call for datasource %s", ds.ID)
		return nil, nil
	}
	c := New(st, schemas, factory, cache.New(), func() model.ProjectSettings { return model.DefaultProjectSettings() })
	return c, st
}

func institutionsDatasource() model.Datasource {
	return model.Datasource{ID: "ds1", Kind: model.KindSupabase, RESTBaseURL: "https://xyz.supabase.co"}
}

func seedInstitutionsFK(t *testing.T, st *store.Store) {
	t.Helper()
	if err := st.UpsertSchemaEntry(model.TableSchemaEntry{
		DatasourceID: "ds1",
		TableName:    "institutions",
		Columns:      []model.ColumnDef{{Name: "name"}, {Name: "country_id"}},
		ForeignKeys: []model.FKDef{{
			ConstrainedColumns: []string{"country_id"},
			ReferredTable:      "countries",
			ReferredColumns:    []string{"id"},
		}},
	}); err != nil {
		t.Fatalf("seed schema: %v", err)
	}
}

func TestCompileSupabaseDataTableDataRequest(t *testing.T) {
	c, st := newTestCompiler(t)
	seedInstitutionsFK(t, st)

	page := model.Page{ID: "p1", Slug: "p1"}
	ds := institutionsDatasource()
	components := []model.PageComponent{{
		ID:   "c1",
		Type: "DataTable",
		Binding: map[string]any{
			"datasource_id": "ds1",
			"table_name":    "institutions",
			"columns":       []any{"name", "countries.country"},
			"pagination":    map[string]any{"enabled": true, "page_size": 20},
		},
	}}

	out, err := c.Compile(context.Background(), page, []model.Datasource{ds}, components)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	got := out.LayoutData[0]
	req, ok := got.Binding["dataRequest"].(*model.DataRequest)
	if !ok {
		t.Fatalf("dataRequest missing or wrong type: %#v", got.Binding["dataRequest"])
	}
	if !strings.HasSuffix(req.URL, "/rest/v1/rpc/frontbase_get_rows") {
		t.Fatalf("unexpected url: %s", req.URL)
	}

	body, ok := req.Body.(map[string]any)
	if !ok {
		t.Fatalf("body wrong type: %#v", req.Body)
	}
	wantCols := `"institutions"."name", "countries"."country" AS "countries.country"`
	if body["columns"] != wantCols {
		t.Fatalf("columns = %v, want %v", body["columns"], wantCols)
	}
	if body["table_name"] != "institutions" {
		t.Fatalf("table_name = %v", body["table_name"])
	}
	if body["sort_col"] != nil {
		t.Fatalf("sort_col = %v, want nil", body["sort_col"])
	}
	if body["sort_dir"] != "asc" {
		t.Fatalf("sort_dir = %v, want asc", body["sort_dir"])
	}
	if body["page"] != 1 {
		t.Fatalf("page = %v, want 1", body["page"])
	}
	if body["page_size"] != 20 {
		t.Fatalf("page_size = %v, want 20", body["page_size"])
	}
	filters, ok := body["filters"].([]any)
	if !ok || len(filters) != 0 {
		t.Fatalf("filters = %#v, want empty slice", body["filters"])
	}

	joins, ok := body["joins"].([]map[string]any)
	if !ok || len(joins) != 1 {
		t.Fatalf("joins = %#v, want one left join", body["joins"])
	}
	if joins[0]["table"] != "countries" || joins[0]["type"] != "left" {
		t.Fatalf("unexpected join: %#v", joins[0])
	}
	wantOn := `"institutions"."country_id" = "countries"."id"`
	if joins[0]["on"] != wantOn {
		t.Fatalf("join on = %v, want %v", joins[0]["on"], wantOn)
	}
}

func TestCompileFilterOptionsBaked(t *testing.T) {
	c, st := newTestCompiler(t)
	seedInstitutionsFK(t, st)

	page := model.Page{ID: "p1", Slug: "p1"}
	ds := institutionsDatasource()
	components := []model.PageComponent{{
		ID:   "c1",
		Type: "DataTable",
		Binding: map[string]any{
			"datasource_id": "ds1",
			"table_name":    "institutions",
			"columns":       []any{"name", "countries.country"},
			"frontend_filters": []any{
				map[string]any{"id": "f1", "column": "countries.country", "filter_type": "dropdown", "label": "Country"},
				map[string]any{"id": "f2", "column": "name", "filter_type": "text"},
			},
		},
	}}

	out, err := c.Compile(context.Background(), page, []model.Datasource{ds}, components)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	filters := out.LayoutData[0].Binding["frontend_filters"].([]any)
	f1 := filters[0].(map[string]any)
	opt, ok := f1["options_data_request"].(map[string]any)
	if !ok {
		t.Fatalf("f1 missing options_data_request: %#v", f1)
	}
	if !strings.HasSuffix(opt["url"].(string), "/rpc/frontbase_get_distinct_values") {
		t.Fatalf("unexpected options url: %v", opt["url"])
	}
	body := opt["body"].(map[string]any)
	if body["target_table"] != "countries" || body["target_col"] != "country" {
		t.Fatalf("unexpected options body: %#v", body)
	}

	f2 := filters[1].(map[string]any)
	if _, ok := f2["options_data_request"]; ok {
		t.Fatalf("f2 should have no options_data_request: %#v", f2)
	}
}

func TestCompileScrubsLiteralNulls(t *testing.T) {
	c, st := newTestCompiler(t)
	seedInstitutionsFK(t, st)

	page := model.Page{ID: "p1", Slug: "p1"}
	ds := institutionsDatasource()
	components := []model.PageComponent{{
		ID:   "c1",
		Type: "DataTable",
		Binding: map[string]any{
			"datasource_id": "ds1",
			"table_name":    "institutions",
			"sorting":       nil,
			"pagination":    map[string]any{"enabled": true, "page_size": 20},
		},
	}}

	out, err := c.Compile(context.Background(), page, []model.Datasource{ds}, components)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	b := out.LayoutData[0].Binding
	if _, ok := b["sorting"]; ok {
		t.Fatalf("sorting should have been scrubbed, got %#v", b["sorting"])
	}
	if _, ok := b["dataRequest"]; !ok {
		t.Fatalf("dataRequest missing")
	}
	if _, ok := b["pagination"]; !ok {
		t.Fatalf("pagination should survive scrubbing")
	}
}

func TestCompileIsIdempotentAsideFromVersionAndTimestamp(t *testing.T) {
	c, st := newTestCompiler(t)
	seedInstitutionsFK(t, st)

	page := model.Page{ID: "p1", Slug: "p1"}
	ds := institutionsDatasource()
	components := []model.PageComponent{{
		ID:   "c1",
		Type: "DataTable",
		Binding: map[string]any{
			"datasource_id": "ds1",
			"table_name":    "institutions",
			"columns":       []any{"name"},
		},
	}}

	first, err := c.Compile(context.Background(), page, []model.Datasource{ds}, components)
	if err != nil {
		t.Fatalf("first compile: %v", err)
	}
	second, err := c.Compile(context.Background(), page, []model.Datasource{ds}, components)
	if err != nil {
		t.Fatalf("second compile: %v", err)
	}

	if second.Version != first.Version+1 {
		t.Fatalf("version did not increment: %d -> %d", first.Version, second.Version)
	}
	if first.Slug != second.Slug || first.Name != second.Name {
		t.Fatalf("non-version fields diverged unexpectedly")
	}
	if !reflect.DeepEqual(first.LayoutData, second.LayoutData) || first.CSSBundle != second.CSSBundle || !reflect.DeepEqual(first.Datasources, second.Datasources) {
		t.Fatalf("compiled payloads diverged outside version and published_at")
	}
}
