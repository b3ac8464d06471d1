package model

// FilterExpr is one server-side filter applied when reading a view's target
// table. Op is restricted to the adapter layer's closed operator set (see
// internal/adapter.Operator).
type FilterExpr struct {
	Column string `json:"column"`
	Op     string `json:"op"`
	Value  string `json:"value,omitempty"`
}

// LinkedView describes a join from one view to another: the aliased record
// is attached under Alias after reading the base view's row, fetched by
// JoinOn (a column on the base row) matched against TargetKey (a column on
// the linked view's target table).
type LinkedView struct {
	ViewID    string `json:"view_id"`
	JoinOn    string `json:"join_on"`
	TargetKey string `json:"target_key"`
}

// Webhook is a fire-and-forget delivery target for view.Reader.TriggerView.
type Webhook struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// DatasourceView is a saved, named projection over an adapter table.
type DatasourceView struct {
	ID              string                `json:"id"`
	Name            string                `json:"name"`
	DatasourceID    string                `json:"datasource_id"`
	TargetTable     string                `json:"target_table"`
	Filters         []FilterExpr          `json:"filters,omitempty"`
	FieldMappings   map[string]string     `json:"field_mappings,omitempty"`
	LinkedViews     map[string]LinkedView `json:"linked_views,omitempty"`
	VisibleColumns  []string              `json:"visible_columns,omitempty"`
	PinnedColumns   []string              `json:"pinned_columns,omitempty"`
	ColumnOrder     []string              `json:"column_order,omitempty"`
	Webhooks        []Webhook             `json:"webhooks,omitempty"`
	CreatedAt       string                `json:"created_at,omitempty"`
	UpdatedAt       string                `json:"updated_at,omitempty"`
}

// ExportRequest describes a CSV export of a view's current rows (carried over
// from original_source; the builder's download button). No handler in this
// module reads it or produces CSV.
type ExportRequest struct {
	Format  string   `json:"format"`
	ViewID  string   `json:"view_id,omitempty"`
	Columns []string `json:"columns,omitempty"`
}
