package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pagebase/core/internal/model"
)

const (
	wpRESTTimeout   = 30 * time.Second
	wpRESTPageCap   = 100
	wpScanPageLimit = 10 // pages scanned client-side before estimating by match rate
)

// WordPressRESTAdapter talks to a WordPress site's /wp-json REST API
// directly, with no database access. Resource discovery reads the types and
// taxonomies endpoints; the /wp-json index is not walked, so routes listed
// only there are not discovered. Schema is hybrid (OPTIONS ⋃ sample record
// keys); unsupported filters fall back to client-side scanning.
type WordPressRESTAdapter struct {
	baseURL string
	user    string
	appPass string
	client  *http.Client
}

func NewWordPressRESTAdapter(opts model.ConnectOpts) *WordPressRESTAdapter {
	return &WordPressRESTAdapter{
		baseURL: strings.TrimRight(opts.RESTBaseURL, "/"),
		user:    opts.User,
		appPass: opts.ServiceKey,
		client:  &http.Client{Timeout: wpRESTTimeout},
	}
}

var _ Adapter = (*WordPressRESTAdapter)(nil)

func (a *WordPressRESTAdapter) Connect(ctx context.Context) error { return a.Ping(ctx) }
func (a *WordPressRESTAdapter) Close(ctx context.Context) error   { return nil }

func (a *WordPressRESTAdapter) Ping(ctx context.Context) error {
	_, _, err := a.doJSON(ctx, http.MethodGet, a.baseURL+"/wp-json/", nil)
	if err != nil {
		return classifyConnectErr(err)
	}
	return nil
}

func (a *WordPressRESTAdapter) doJSON(ctx context.Context, method, rawURL string, body any) (json.RawMessage, http.Header, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, nil, err
		}
		bodyReader = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.user != "" {
		req.SetBasicAuth(a.user, a.appPass)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, resp.Header, fmt.Errorf("wordpress rest %s %s: status %d: %s", method, rawURL, resp.StatusCode, truncateBody(raw))
	}
	return raw, resp.Header, nil
}

func truncateBody(b []byte) string {
	if len(b) > 512 {
		return string(b[:512]) + "...(truncated)"
	}
	return string(b)
}

// wpResource describes one discovered REST resource, e.g. "posts",
// "categories", or a registered custom post type.
type wpResource struct {
	Name     string
	Endpoint string
}

func (a *WordPressRESTAdapter) discoverResources(ctx context.Context) ([]wpResource, error) {
	raw, _, err := a.doJSON(ctx, http.MethodGet, a.baseURL+"/wp-json/wp/v2/types", nil)
	if err != nil {
		return nil, err
	}
	var types map[string]struct {
		RESTBase string `json:"rest_base"`
	}
	if err := json.Unmarshal(raw, &types); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []wpResource
	for name, t := range types {
		base := t.RESTBase
		if base == "" {
			base = name
		}
		if seen[base] {
			continue
		}
		seen[base] = true
		out = append(out, wpResource{Name: name, Endpoint: base})
	}

	taxRaw, _, err := a.doJSON(ctx, http.MethodGet, a.baseURL+"/wp-json/wp/v2/taxonomies", nil)
	if err == nil {
		var taxes map[string]struct {
			RESTBase string `json:"rest_base"`
		}
		if json.Unmarshal(taxRaw, &taxes) == nil {
			for name, t := range taxes {
				base := t.RESTBase
				if base == "" {
					base = name
				}
				if seen[base] {
					continue
				}
				seen[base] = true
				out = append(out, wpResource{Name: name, Endpoint: base})
			}
		}
	}
	return out, nil
}

func (a *WordPressRESTAdapter) ListTables(ctx context.Context) ([]string, error) {
	resources, err := a.discoverResources(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resources))
	for _, r := range resources {
		out = append(out, r.Endpoint)
	}
	return out, nil
}

// GetSchema fetches a sample record in parallel with OPTIONS to derive a
// hybrid schema: columns are the union of the OPTIONS "properties" and the
// keys of one sample record, with types inferred from sample values when
// the OPTIONS schema omits a property.
func (a *WordPressRESTAdapter) GetSchema(ctx context.Context, table string) (model.Schema, error) {
	var optionsProps map[string]struct {
		Type string `json:"type"`
	}
	var sample map[string]any

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		req, err := http.NewRequestWithContext(gctx, http.MethodOptions, a.endpoint(table), nil)
		if err != nil {
			return err
		}
		if a.user != "" {
			req.SetBasicAuth(a.user, a.appPass)
		}
		resp, err := a.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		var schemaDoc struct {
			Schema struct {
				Properties map[string]struct {
					Type string `json:"type"`
				} `json:"properties"`
			} `json:"schema"`
		}
		if err := json.Unmarshal(raw, &schemaDoc); err != nil {
			return nil // tolerate hosts without an OPTIONS schema doc
		}
		optionsProps = schemaDoc.Schema.Properties
		return nil
	})
	g.Go(func() error {
		raw, _, err := a.doJSON(gctx, http.MethodGet, a.endpoint(table)+"?per_page=1", nil)
		if err != nil {
			return err
		}
		var arr []map[string]any
		if err := json.Unmarshal(raw, &arr); err != nil {
			return err
		}
		if len(arr) > 0 {
			sample = arr[0]
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.Schema{}, err
	}

	seen := map[string]bool{}
	var schema model.Schema
	for name, p := range optionsProps {
		schema.Columns = append(schema.Columns, model.ColumnDef{Name: name, Type: normalizeWPType(p.Type)})
		seen[name] = true
	}
	for name, v := range sample {
		if seen[name] {
			continue
		}
		schema.Columns = append(schema.Columns, model.ColumnDef{Name: name, Type: inferTypeFromValue(v)})
	}
	return schema, nil
}

func normalizeWPType(t string) string {
	if t == "" {
		return "string"
	}
	return t
}

func inferTypeFromValue(v any) string {
	switch v.(type) {
	case float64:
		return "number"
	case bool:
		return "boolean"
	case map[string]any, []any:
		return "object"
	default:
		return "string"
	}
}

// ListAllRelationships has no server-side FK concept over REST; it
// synthesizes the conventional author, parent, and featured_media
// relationships from the columns each resource exposes. Term (category/tag)
// links are not synthesized.
func (a *WordPressRESTAdapter) ListAllRelationships(ctx context.Context) ([]model.Relationship, error) {
	resources, err := a.discoverResources(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Relationship
	for _, r := range resources {
		schema, err := a.GetSchema(ctx, r.Endpoint)
		if err != nil {
			continue
		}
		for _, c := range schema.Columns {
			switch c.Name {
			case "author":
				out = append(out, model.Relationship{SourceTable: r.Endpoint, SourceColumn: "author", TargetTable: "users", TargetColumn: "id"})
			case "parent":
				out = append(out, model.Relationship{SourceTable: r.Endpoint, SourceColumn: "parent", TargetTable: r.Endpoint, TargetColumn: "id"})
			case "featured_media":
				out = append(out, model.Relationship{SourceTable: r.Endpoint, SourceColumn: "featured_media", TargetTable: "media", TargetColumn: "id"})
			}
		}
	}
	return out, nil
}

func (a *WordPressRESTAdapter) endpoint(table string) string {
	return a.baseURL + "/wp-json/wp/v2/" + strings.TrimPrefix(table, "/")
}

// wpNativeParams is the set of query params the WP REST API understands
// natively; filters on any other column fall back to client-side scanning.
var wpNativeParams = map[string]bool{
	"slug": true, "author": true, "categories": true, "tags": true,
	"status": true, "include": true,
}

func (a *WordPressRESTAdapter) buildQuery(opts ReadOpts, page int) url.Values {
	q := url.Values{}
	perPage := opts.Limit
	if perPage <= 0 || perPage > wpRESTPageCap {
		perPage = wpRESTPageCap
	}
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}
	for _, f := range opts.Where {
		if wpNativeParams[f.Column] && f.Op == OpEq {
			q.Set(f.Column, f.Value)
		}
	}
	return q
}

func (a *WordPressRESTAdapter) clientSideFilters(opts ReadOpts) []Filter {
	var out []Filter
	for _, f := range opts.Where {
		if !wpNativeParams[f.Column] || f.Op != OpEq {
			out = append(out, f)
		}
	}
	return out
}

func matchesFilter(rec map[string]any, f Filter) bool {
	v := fmt.Sprint(rec[f.Column])
	switch f.Op {
	case OpEq:
		return v == f.Value
	case OpNeq:
		return v != f.Value
	case OpContains:
		return strings.Contains(v, f.Value)
	case OpNotContains:
		return !strings.Contains(v, f.Value)
	case OpStartsWith:
		return strings.HasPrefix(v, f.Value)
	case OpEndsWith:
		return strings.HasSuffix(v, f.Value)
	case OpIsEmpty:
		return v == "" || v == "<nil>"
	case OpIsNotEmpty:
		return v != "" && v != "<nil>"
	case OpIn:
		for _, want := range strings.Split(f.Value, ",") {
			if strings.TrimSpace(want) == v {
				return true
			}
		}
		return false
	case OpNotIn:
		for _, want := range strings.Split(f.Value, ",") {
			if strings.TrimSpace(want) == v {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func (a *WordPressRESTAdapter) ReadRecords(ctx context.Context, table string, opts ReadOpts) ([]model.Record, error) {
	page := 1
	if opts.Limit > 0 && opts.Offset > 0 {
		page = opts.Offset/max(opts.Limit, 1) + 1
	}
	clientFilters := a.clientSideFilters(opts)
	var out []model.Record
	for p := page; p < page+wpScanPageLimit; p++ {
		q := a.buildQuery(opts, p)
		raw, hdr, err := a.doJSON(ctx, http.MethodGet, a.endpoint(table)+"?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		var arr []map[string]any
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil, err
		}
		for _, rec := range arr {
			keep := true
			for _, f := range clientFilters {
				if !matchesFilter(rec, f) {
					keep = false
					break
				}
			}
			if keep {
				out = append(out, model.Record(rec))
			}
		}
		if len(clientFilters) == 0 || len(arr) < wpRESTPageCap {
			break
		}
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
		_ = hdr
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ReadRecordsWithRelations flattens declared related resources by fetching
// each referenced id individually; REST has no server-side join.
func (a *WordPressRESTAdapter) ReadRecordsWithRelations(ctx context.Context, table string, opts ReadOpts) ([]model.Record, error) {
	recs, err := a.ReadRecords(ctx, table, opts)
	if err != nil {
		return nil, err
	}
	for _, rel := range opts.Related {
		for i, rec := range recs {
			fkVal := fmt.Sprint(rec[rel.FKCol])
			if fkVal == "" || fkVal == "<nil>" {
				continue
			}
			raw, _, err := a.doJSON(ctx, http.MethodGet, a.baseURL+"/wp-json/wp/v2/"+rel.Table+"/"+fkVal, nil)
			if err != nil {
				continue
			}
			var relRec map[string]any
			if json.Unmarshal(raw, &relRec) != nil {
				continue
			}
			for _, c := range rel.Columns {
				recs[i][rel.Table+"."+c] = relRec[c]
			}
		}
	}
	return recs, nil
}

func (a *WordPressRESTAdapter) ReadRecordByKey(ctx context.Context, table, keyCol, keyVal string) (model.Record, bool, error) {
	if keyCol == "id" {
		raw, _, err := a.doJSON(ctx, http.MethodGet, a.baseURL+"/wp-json/wp/v2/"+table+"/"+keyVal, nil)
		if err != nil {
			return nil, false, nil
		}
		var rec map[string]any
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, false, err
		}
		return model.Record(rec), true, nil
	}
	recs, err := a.ReadRecords(ctx, table, ReadOpts{Where: []Filter{{Column: keyCol, Op: OpEq, Value: keyVal}}, Limit: 1})
	if err != nil {
		return nil, false, err
	}
	if len(recs) == 0 {
		return nil, false, nil
	}
	return recs[0], true, nil
}

// UpsertRecord uses POST (create) or POST to the item URL (update), per
// spec.md §4.A.
func (a *WordPressRESTAdapter) UpsertRecord(ctx context.Context, table string, record model.Record, keyCol string) (model.Record, error) {
	id := fmt.Sprint(record[keyCol])
	target := a.baseURL + "/wp-json/wp/v2/" + table
	if id != "" && id != "<nil>" && id != "0" {
		target += "/" + id
	}
	raw, _, err := a.doJSON(ctx, http.MethodPost, target, record)
	if err != nil {
		return nil, err
	}
	var rec map[string]any
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return model.Record(rec), nil
}

func (a *WordPressRESTAdapter) DeleteRecord(ctx context.Context, table, keyCol, keyVal string) (bool, error) {
	_, _, err := a.doJSON(ctx, http.MethodDelete, a.baseURL+"/wp-json/wp/v2/"+table+"/"+keyVal+"?force=true", nil)
	return err == nil, err
}

// CountRecords without filters returns exactly X-WP-Total; with an
// unsupported filter it scans up to wpScanPageLimit pages and estimates the
// total by match_rate × server_total, never reporting below the matches
// actually observed.
func (a *WordPressRESTAdapter) CountRecords(ctx context.Context, table string, where []Filter) (int, error) {
	opts := ReadOpts{Where: where, Limit: wpRESTPageCap}
	clientFilters := a.clientSideFilters(opts)

	q := a.buildQuery(opts, 1)
	_, hdr, err := a.doJSON(ctx, http.MethodGet, a.endpoint(table)+"?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	serverTotal := 0
	if v := hdr.Get("X-WP-Total"); v != "" {
		serverTotal, _ = strconv.Atoi(v)
	}
	if len(clientFilters) == 0 {
		return serverTotal, nil
	}

	matched, scanned := 0, 0
	for p := 1; p <= wpScanPageLimit; p++ {
		q := a.buildQuery(opts, p)
		raw, _, err := a.doJSON(ctx, http.MethodGet, a.endpoint(table)+"?"+q.Encode(), nil)
		if err != nil {
			break
		}
		var arr []map[string]any
		if err := json.Unmarshal(raw, &arr); err != nil {
			break
		}
		if len(arr) == 0 {
			break
		}
		for _, rec := range arr {
			scanned++
			keep := true
			for _, f := range clientFilters {
				if !matchesFilter(rec, f) {
					keep = false
					break
				}
			}
			if keep {
				matched++
			}
		}
		if len(arr) < wpRESTPageCap {
			break
		}
	}
	if scanned == 0 || serverTotal == 0 {
		return matched, nil
	}
	matchRate := float64(matched) / float64(scanned)
	estimate := int(matchRate * float64(serverTotal))
	if estimate < matched {
		estimate = matched
	}
	if estimate > serverTotal {
		estimate = serverTotal
	}
	return estimate, nil
}

func (a *WordPressRESTAdapter) SearchRecords(ctx context.Context, table, query string, limit int) ([]model.Record, error) {
	return a.ReadRecords(ctx, table, ReadOpts{Search: query, Limit: limit})
}

func (a *WordPressRESTAdapter) CountSearchMatches(ctx context.Context, table, query string) (int, error) {
	q := url.Values{"search": {query}, "per_page": {"1"}}
	_, hdr, err := a.doJSON(ctx, http.MethodGet, a.endpoint(table)+"?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	if v := hdr.Get("X-WP-Total"); v != "" {
		n, _ := strconv.Atoi(v)
		return n, nil
	}
	return 0, nil
}
