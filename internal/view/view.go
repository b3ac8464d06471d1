// Package view implements the saved, named projection described in
// spec.md §4.E: a filter + field-mapping + linked-view spec over an
// adapter table.
package view

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pagebase/core/internal/adapter"
	"github.com/pagebase/core/internal/apperr"
	"github.com/pagebase/core/internal/expr"
	"github.com/pagebase/core/internal/model"
	"github.com/pagebase/core/internal/store"
)

const webhookTimeout = 10 * time.Second

// AdapterFactory resolves a datasource's live adapter, used instead of
// importing internal/adapter's Factory directly so tests can substitute a
// fake.
type AdapterFactory func(ctx context.Context, ds model.Datasource) (adapter.Adapter, error)

type Reader struct {
	st      *store.Store
	factory AdapterFactory
}

func New(st *store.Store, factory AdapterFactory) *Reader {
	return &Reader{st: st, factory: factory}
}

func toFilters(fes []model.FilterExpr) []adapter.Filter {
	out := make([]adapter.Filter, 0, len(fes))
	for _, f := range fes {
		if !adapter.ValidOperator(f.Op) {
			continue
		}
		out = append(out, adapter.Filter{Column: f.Column, Op: adapter.Operator(f.Op), Value: f.Value})
	}
	return out
}

func (r *Reader) resolve(ctx context.Context, v model.DatasourceView) (adapter.Adapter, model.Datasource, error) {
	ds, err := r.st.GetDatasource(v.DatasourceID)
	if err != nil {
		return nil, model.Datasource{}, apperr.NotFound("datasource not found")
	}
	ad, err := r.factory(ctx, ds)
	if err != nil {
		return nil, model.Datasource{}, err
	}
	return ad, ds, nil
}

// ReadView reads the view's target table applying its filters, maps each
// record through the Expression Engine, attaches linked-view records, and
// restricts output to visible_columns when declared.
func (r *Reader) ReadView(ctx context.Context, v model.DatasourceView, page, perPage int) ([]model.Record, error) {
	ad, _, err := r.resolve(ctx, v)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 50
	}

	recs, err := ad.ReadRecords(ctx, v.TargetTable, adapter.ReadOpts{
		Where:  toFilters(v.Filters),
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	})
	if err != nil {
		return nil, err
	}

	for i, rec := range recs {
		mapped := model.Record{}
		for k, v := range rec {
			mapped[k] = v
		}
		for target, expression := range v.FieldMappings {
			mapped[target] = expr.Eval(expression, rec, nil)
		}
		for alias, link := range v.LinkedViews {
			linked, err := r.attachLinked(ctx, link, rec)
			if err == nil && linked != nil {
				mapped[alias] = linked
			}
		}
		recs[i] = restrictColumns(mapped, v.VisibleColumns)
	}
	return recs, nil
}

func (r *Reader) attachLinked(ctx context.Context, link model.LinkedView, base model.Record) (model.Record, error) {
	linkedView, err := r.st.GetView(link.ViewID)
	if err != nil {
		return nil, err
	}
	ad, _, err := r.resolve(ctx, linkedView)
	if err != nil {
		return nil, err
	}
	joinVal := fmt.Sprint(base[link.JoinOn])
	rec, ok, err := ad.ReadRecordByKey(ctx, linkedView.TargetTable, link.TargetKey, joinVal)
	if err != nil || !ok {
		return nil, err
	}
	return rec, nil
}

func restrictColumns(rec model.Record, visible []string) model.Record {
	if len(visible) == 0 {
		return rec
	}
	out := model.Record{}
	for _, c := range visible {
		if v, ok := rec[c]; ok {
			out[c] = v
		}
	}
	return out
}

// WriteRecord upserts payload into the view's target table, used by the
// insert/update-via-view endpoints so the builder can write through a saved
// projection instead of addressing the table directly.
func (r *Reader) WriteRecord(ctx context.Context, v model.DatasourceView, payload model.Record, keyCol string) (model.Record, error) {
	ad, _, err := r.resolve(ctx, v)
	if err != nil {
		return nil, err
	}
	if keyCol == "" {
		keyCol = "id"
	}
	return ad.UpsertRecord(ctx, v.TargetTable, payload, keyCol)
}

// CountView executes only the filtered count path.
func (r *Reader) CountView(ctx context.Context, v model.DatasourceView) (int, error) {
	ad, _, err := r.resolve(ctx, v)
	if err != nil {
		return 0, err
	}
	return ad.CountRecords(ctx, v.TargetTable, toFilters(v.Filters))
}

// TriggerView applies the view's field mappings to an incoming payload and
// forwards the mapped result to every registered webhook, fire-and-forget.
func (r *Reader) TriggerView(v model.DatasourceView, payload model.Record) {
	mapped := model.Record{}
	for k, val := range payload {
		mapped[k] = val
	}
	for target, expression := range v.FieldMappings {
		mapped[target] = expr.Eval(expression, payload, nil)
	}
	for _, wh := range v.Webhooks {
		go deliverWebhook(wh, mapped)
	}
}

func deliverWebhook(wh model.Webhook, payload model.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for k, val := range wh.Headers {
		req.Header.Set(k, val)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}
