package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pagebase/core/internal/adapter"
	"github.com/pagebase/core/internal/apperr"
	"github.com/pagebase/core/internal/cache"
	"github.com/pagebase/core/internal/httpx"
	"github.com/pagebase/core/internal/model"
)

// datasourceInput is the wire shape the builder sends, carrying plaintext
// secrets that never survive past this handler — they're encrypted before
// the Datasource is ever persisted.
type datasourceInput struct {
	model.Datasource
	ServiceKey string `json:"service_key,omitempty"`
}

// redact clears fields that must never echo back to the builder.
func redact(d *model.Datasource) { d.Password = ""; d.ServiceKeyEnc = "" }

func (s *Server) createDatasource(w http.ResponseWriter, r *http.Request) {
	var in datasourceInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.WriteErr(w, apperr.Validation("invalid request body", err.Error()))
		return
	}
	if in.Name == "" || in.Kind == "" {
		httpx.WriteErr(w, apperr.Validation("name and kind are required", nil))
		return
	}

	ds := in.Datasource
	if ds.Password != "" {
		enc, err := s.Secrets.Encrypt(ds.Password)
		if err != nil {
			httpx.WriteErr(w, apperr.Fatal(err))
			return
		}
		ds.Password = enc
	}
	if in.ServiceKey != "" {
		enc, err := s.Secrets.Encrypt(in.ServiceKey)
		if err != nil {
			httpx.WriteErr(w, apperr.Fatal(err))
			return
		}
		ds.ServiceKeyEnc = enc
	}

	created, err := s.Store.CreateDatasource(ds)
	if err != nil {
		httpx.WriteErr(w, apperr.Fatal(err))
		return
	}

	// eager discovery on create, per spec.md §3
	if ad, aerr := s.AdapterFor(r.Context(), created); aerr == nil {
		defer ad.Close(r.Context())
		_ = s.Schemas.DiscoverAllSchemas(r.Context(), created.ID, ad)
	}

	s.audit(model.ScopeDatasource, httpx.AdminFromCtx(r.Context()), "create", created.ID, map[string]any{"name": created.Name, "kind": created.Kind})

	redact(&created)
	httpx.Ok(w, http.StatusCreated, created, "datasource created")
}

func (s *Server) listDatasources(w http.ResponseWriter, r *http.Request) {
	list, err := s.Store.ListDatasources()
	if err != nil {
		httpx.WriteErr(w, apperr.Fatal(err))
		return
	}
	for i := range list {
		redact(&list[i])
	}
	httpx.Ok(w, http.StatusOK, list, "")
}

func (s *Server) getDatasource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ds, err := s.Store.GetDatasource(id)
	if err != nil {
		httpx.WriteErr(w, apperr.NotFound("datasource not found"))
		return
	}
	redact(&ds)
	httpx.Ok(w, http.StatusOK, ds, "")
}

func (s *Server) updateDatasource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := s.Store.GetDatasource(id)
	if err != nil {
		httpx.WriteErr(w, apperr.NotFound("datasource not found"))
		return
	}

	var in datasourceInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.WriteErr(w, apperr.Validation("invalid request body", err.Error()))
		return
	}

	updated := in.Datasource
	updated.ID = id
	updated.CreatedAt = existing.CreatedAt
	if updated.Password != "" {
		enc, err := s.Secrets.Encrypt(updated.Password)
		if err != nil {
			httpx.WriteErr(w, apperr.Fatal(err))
			return
		}
		updated.Password = enc
	} else {
		updated.Password = existing.Password
	}
	if in.ServiceKey != "" {
		enc, err := s.Secrets.Encrypt(in.ServiceKey)
		if err != nil {
			httpx.WriteErr(w, apperr.Fatal(err))
			return
		}
		updated.ServiceKeyEnc = enc
	} else {
		updated.ServiceKeyEnc = existing.ServiceKeyEnc
	}

	if err := s.Store.UpdateDatasource(updated); err != nil {
		httpx.WriteErr(w, apperr.Fatal(err))
		return
	}
	s.audit(model.ScopeDatasource, httpx.AdminFromCtx(r.Context()), "update", id, nil)

	redact(&updated)
	httpx.Ok(w, http.StatusOK, updated, "datasource updated")
}

func (s *Server) deleteDatasource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Store.DeleteDatasource(id); err != nil {
		httpx.WriteErr(w, apperr.Fatal(err))
		return
	}
	_ = s.Store.DeleteSchemaEntries(id)
	for _, v := range mustListViewsByDatasource(s, id) {
		_ = s.Store.DeleteView(v.ID)
	}
	s.audit(model.ScopeDatasource, httpx.AdminFromCtx(r.Context()), "delete", id, nil)
	httpx.JSON(w, http.StatusNoContent, nil)
}

func mustListViewsByDatasource(s *Server, datasourceID string) []model.DatasourceView {
	list, _ := s.Store.ListViewsByDatasource(datasourceID)
	return list
}

func (s *Server) testDatasource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ds, err := s.Store.GetDatasource(id)
	if err != nil {
		httpx.WriteErr(w, apperr.NotFound("datasource not found"))
		return
	}
	s.runConnectionTest(w, r, ds)
}

func (s *Server) testUpdateDatasource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := s.Store.GetDatasource(id)
	if err != nil {
		httpx.WriteErr(w, apperr.NotFound("datasource not found"))
		return
	}
	var in datasourceInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.WriteErr(w, apperr.Validation("invalid request body", err.Error()))
		return
	}
	candidate := in.Datasource
	candidate.ID = existing.ID
	if candidate.Password == "" {
		candidate.Password = existing.Password
	} else if enc, err := s.Secrets.Encrypt(candidate.Password); err == nil {
		candidate.Password = enc
	}
	s.runConnectionTest(w, r, candidate)
}

func (s *Server) testRawDatasource(w http.ResponseWriter, r *http.Request) {
	var ds model.Datasource
	if err := json.NewDecoder(r.Body).Decode(&ds); err != nil {
		httpx.WriteErr(w, apperr.Validation("invalid request body", err.Error()))
		return
	}
	s.runConnectionTest(w, r, ds)
}

func (s *Server) runConnectionTest(w http.ResponseWriter, r *http.Request, ds model.Datasource) {
	ad, err := s.AdapterFor(r.Context(), ds)
	now := model.NowISO()
	if err != nil {
		if ds.ID != "" {
			ds.LastTestedAt, ds.LastTestSuccess = now, false
			_ = s.Store.UpdateDatasource(ds)
		}
		httpx.WriteErr(w, err)
		return
	}
	defer ad.Close(r.Context())

	pingErr := ad.Ping(r.Context())
	success := pingErr == nil
	if ds.ID != "" {
		ds.LastTestedAt, ds.LastTestSuccess = now, success
		_ = s.Store.UpdateDatasource(ds)
	}
	if !success {
		httpx.WriteErr(w, apperr.Connection(apperr.SuggestUnknown, pingErr))
		return
	}
	httpx.Ok(w, http.StatusOK, map[string]any{"last_tested_at": now, "last_test_success": true}, "connection ok")
}

func (s *Server) listTables(w http.ResponseWriter, r *http.Request) {
	ds, ad, ok := s.resolveAdapter(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	defer ad.Close(r.Context())
	_ = ds
	tables, err := ad.ListTables(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.Ok(w, http.StatusOK, tables, "")
}

func (s *Server) getTableSchema(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	table := chi.URLParam(r, "table")

	if r.URL.Query().Get("refresh") == "true" {
		ds, ad, ok := s.resolveAdapter(w, r, id)
		if !ok {
			return
		}
		defer ad.Close(r.Context())
		sc, err := s.Schemas.EnsureTable(r.Context(), ds.ID, table, ad)
		if err != nil {
			httpx.WriteErr(w, err)
			return
		}
		httpx.Ok(w, http.StatusOK, sc, "")
		return
	}

	sc, found, err := s.Schemas.GetCachedSchema(id, table)
	if err != nil {
		httpx.WriteErr(w, apperr.Fatal(err))
		return
	}
	if !found {
		ds, ad, ok := s.resolveAdapter(w, r, id)
		if !ok {
			return
		}
		defer ad.Close(r.Context())
		sc, err = s.Schemas.EnsureTable(r.Context(), ds.ID, table, ad)
		if err != nil {
			httpx.WriteErr(w, err)
			return
		}
	}
	httpx.Ok(w, http.StatusOK, sc, "")
}

func (s *Server) readTableData(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	table := chi.URLParam(r, "table")
	ds, ad, ok := s.resolveAdapter(w, r, id)
	if !ok {
		return
	}
	defer ad.Close(r.Context())

	q := r.URL.Query()
	limit := atoiOr(q.Get("limit"), 50)
	offset := atoiOr(q.Get("offset"), 0)
	opts := adapter.ReadOpts{
		Limit: limit, Offset: offset,
		OrderBy: q.Get("sort"), OrderDirection: q.Get("order"),
		Search: q.Get("search"),
	}
	if raw := q.Get("filters"); raw != "" {
		var filters []adapter.Filter
		_ = json.Unmarshal([]byte(raw), &filters)
		opts.Where = filters
	}
	if raw := q.Get("search_cols"); raw != "" {
		var cols []string
		_ = json.Unmarshal([]byte(raw), &cols)
		opts.SearchCols = cols
	}
	if raw := q.Get("select"); raw != "" {
		opts.Columns = splitCSVParam(raw)
	}

	cacheKey := ""
	if s.Cache != nil {
		cacheKey = cache.Key(ds.RESTBaseURL, table, opts.Limit, opts.Offset, opts.Where, opts.Columns, opts.OrderBy+":"+opts.OrderDirection)
		var cached []model.Record
		if s.Cache.Get(r.Context(), cacheKey, &cached) {
			httpx.Ok(w, http.StatusOK, cached, "")
			return
		}
	}

	records, err := ad.ReadRecords(r.Context(), table, opts)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	if s.Cache != nil {
		s.Cache.Set(r.Context(), cacheKey, records, s.Cache.DataTTL())
	}
	httpx.Ok(w, http.StatusOK, records, "")
}

func (s *Server) createRecord(w http.ResponseWriter, r *http.Request) {
	s.upsertRecord(w, r, "")
}

func (s *Server) updateRecord(w http.ResponseWriter, r *http.Request) {
	s.upsertRecord(w, r, chi.URLParam(r, "recordId"))
}

func (s *Server) upsertRecord(w http.ResponseWriter, r *http.Request, recordID string) {
	id := chi.URLParam(r, "id")
	table := chi.URLParam(r, "table")
	ds, ad, ok := s.resolveAdapter(w, r, id)
	if !ok {
		return
	}
	defer ad.Close(r.Context())

	var rec model.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		httpx.WriteErr(w, apperr.Validation("invalid request body", err.Error()))
		return
	}
	keyCol := r.URL.Query().Get("key_column")
	if keyCol == "" {
		keyCol = "id"
	}
	if recordID != "" {
		rec[keyCol] = recordID
	}

	out, err := ad.UpsertRecord(r.Context(), table, rec, keyCol)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	if s.Cache != nil {
		s.Cache.Purge(r.Context(), ds.RESTBaseURL, table)
	}
	status := http.StatusOK
	if recordID == "" {
		status = http.StatusCreated
	}
	httpx.Ok(w, status, out, "")
}

func (s *Server) deleteRecordHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	table := chi.URLParam(r, "table")
	recordID := chi.URLParam(r, "recordId")
	ds, ad, ok := s.resolveAdapter(w, r, id)
	if !ok {
		return
	}
	defer ad.Close(r.Context())

	keyCol := r.URL.Query().Get("key_column")
	if keyCol == "" {
		keyCol = "id"
	}
	if _, err := ad.DeleteRecord(r.Context(), table, keyCol, recordID); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	if s.Cache != nil {
		s.Cache.Purge(r.Context(), ds.RESTBaseURL, table)
	}
	httpx.JSON(w, http.StatusNoContent, nil)
}

func (s *Server) distinctValues(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	table := chi.URLParam(r, "table")
	column := chi.URLParam(r, "column")
	_, ad, ok := s.resolveAdapter(w, r, id)
	if !ok {
		return
	}
	defer ad.Close(r.Context())

	records, err := ad.ReadRecords(r.Context(), table, adapter.ReadOpts{Columns: []string{column}, Limit: 1000})
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	seen := map[string]bool{}
	var out []any
	for _, rec := range records {
		v, ok := rec[column]
		if !ok || v == nil {
			continue
		}
		key := toComparableKey(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	httpx.Ok(w, http.StatusOK, out, "")
}

func (s *Server) relationships(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ds, err := s.Store.GetDatasource(id)
	if err != nil {
		httpx.WriteErr(w, apperr.NotFound("datasource not found"))
		return
	}

	if r.URL.Query().Get("refresh") == "true" {
		ad, err := s.AdapterFor(r.Context(), ds)
		if err != nil {
			httpx.WriteErr(w, err)
			return
		}
		defer ad.Close(r.Context())
		if err := s.Schemas.RefreshAllSchemas(r.Context(), id, ad); err != nil {
			httpx.WriteErr(w, err)
			return
		}
	}

	ad, err := s.AdapterFor(r.Context(), ds)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	defer ad.Close(r.Context())

	rels, err := s.Schemas.GetAllRelationships(r.Context(), id, ad)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.Ok(w, http.StatusOK, rels, "")
}

func (s *Server) searchTable(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	table := chi.URLParam(r, "table")
	_, ad, ok := s.resolveAdapter(w, r, id)
	if !ok {
		return
	}
	defer ad.Close(r.Context())

	q := r.URL.Query()
	limit := atoiOr(q.Get("limit"), 20)
	records, err := ad.SearchRecords(r.Context(), table, q.Get("q"), limit)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	if q.Get("detailed") == "true" {
		count, _ := ad.CountSearchMatches(r.Context(), table, q.Get("q"))
		httpx.Ok(w, http.StatusOK, map[string]any{"records": records, "total": count}, "")
		return
	}
	httpx.Ok(w, http.StatusOK, records, "")
}

func (s *Server) searchAll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := atoiOr(r.URL.Query().Get("limit"), 10)

	list, err := s.Store.ListDatasources()
	if err != nil {
		httpx.WriteErr(w, apperr.Fatal(err))
		return
	}
	out := map[string]any{}
	for _, ds := range list {
		if !ds.Active {
			continue
		}
		ad, err := s.AdapterFor(r.Context(), ds)
		if err != nil {
			continue
		}
		tables, err := ad.ListTables(r.Context())
		if err != nil {
			ad.Close(r.Context())
			continue
		}
		dsResults := map[string]any{}
		for _, table := range tables {
			recs, err := ad.SearchRecords(r.Context(), table, q, limit)
			if err == nil && len(recs) > 0 {
				dsResults[table] = recs
			}
		}
		ad.Close(r.Context())
		if len(dsResults) > 0 {
			out[ds.ID] = dsResults
		}
	}
	httpx.Ok(w, http.StatusOK, out, "")
}

func (s *Server) resolveAdapter(w http.ResponseWriter, r *http.Request, datasourceID string) (model.Datasource, adapter.Adapter, bool) {
	ds, err := s.Store.GetDatasource(datasourceID)
	if err != nil {
		httpx.WriteErr(w, apperr.NotFound("datasource not found"))
		return model.Datasource{}, nil, false
	}
	ad, err := s.AdapterFor(r.Context(), ds)
	if err != nil {
		httpx.WriteErr(w, err)
		return model.Datasource{}, nil, false
	}
	return ds, ad, true
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func splitCSVParam(s string) []string {
	var out []string
	cur := ""
	for _, r := range s {
		if r == ',' {
			out = append(out, cur)
			cur = ""
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

func toComparableKey(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
