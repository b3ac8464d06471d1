package model

import "encoding/json"

// Page mirrors the subset of the externally-owned page-CRUD row that the
// publish pipeline reads. Page storage itself is out of scope (see spec.md
// §1 Out of scope); the core reads one by ID to publish it and by slug for
// the public-page path.
type Page struct {
	ID          string          `json:"id"`
	Slug        string          `json:"slug"`
	Name        string          `json:"name"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	LayoutData  json.RawMessage `json:"layout_data"`
	SEOData     json.RawMessage `json:"seo_data,omitempty"`
	IsPublic    bool            `json:"is_public"`
	IsHomepage  bool            `json:"is_homepage"`
}

// PageComponent is one node of the authored component tree. Props and
// Binding are loosely typed (map[string]any) because the builder has shipped
// several historical shapes for both (see FrontendFilter / binding-shape
// drift in spec.md §9); internal/publish normalizes them.
type PageComponent struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Props      map[string]any         `json:"props,omitempty"`
	Binding    map[string]any         `json:"binding,omitempty"`
	Styles     map[string]any         `json:"styles,omitempty"`
	StylesData map[string]any         `json:"stylesData,omitempty"`
	Visibility map[string]any         `json:"visibility,omitempty"`
	Children   []PageComponent        `json:"children,omitempty"`
}

// FrontendFilter is one client-facing filter control attached to a binding.
type FrontendFilter struct {
	ID         string `json:"id"`
	Column     string `json:"column"`
	FilterType string `json:"filter_type"`
	Label      string `json:"label,omitempty"`
}

const (
	FilterText        = "text"
	FilterDropdown    = "dropdown"
	FilterMultiselect = "multiselect"
	FilterDate        = "date"
	FilterRange       = "range"
)

// Pagination controls page-size for a data-bound component.
type Pagination struct {
	Enabled  bool `json:"enabled"`
	PageSize int  `json:"page_size,omitempty"`
}

// Sorting controls default ORDER BY for a data-bound component.
type Sorting struct {
	Column    string `json:"column,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// ComponentBinding is the normalized shape every downstream stage of
// internal/publish consumes — never the raw builder variants.
type ComponentBinding struct {
	DatasourceID    string                 `json:"datasource_id,omitempty"`
	TableName       string                 `json:"table_name,omitempty"`
	Columns         []string               `json:"columns,omitempty"`
	ForeignKeys     []ForeignKeyRef        `json:"foreignKeys,omitempty"`
	Sorting         *Sorting               `json:"sorting,omitempty"`
	Pagination      *Pagination            `json:"pagination,omitempty"`
	FrontendFilters []FrontendFilter       `json:"frontend_filters,omitempty"`
	FieldOverrides  map[string]any         `json:"field_overrides,omitempty"`
	FieldOrder      []string               `json:"field_order,omitempty"`
	ColumnOrder     []string               `json:"column_order,omitempty"`
	DataRequest     *DataRequest           `json:"dataRequest,omitempty"`
	QueryConfig     *QueryConfig           `json:"queryConfig,omitempty"`
}

// ForeignKeyRef is the baked, edge-friendly shape of an FKDef (see spec.md
// §4.F step 5).
type ForeignKeyRef struct {
	Column            string `json:"column"`
	ReferencedTable   string `json:"referencedTable"`
	ReferencedColumn  string `json:"referencedColumn"`
}

// DataRequest is a fully-formed HTTP request spec the edge executes verbatim
// at render time (spec.md §4.6 / §6 GLOSSARY).
type DataRequest struct {
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Headers         map[string]string `json:"headers"`
	Body            any               `json:"body,omitempty"`
	ResultPath      string            `json:"result_path"`
	FlattenRelations bool             `json:"flatten_relations"`
	QueryConfig     *QueryConfig      `json:"query_config,omitempty"`
}

// QueryConfig mirrors the fields the edge needs to rebuild subsequent-page
// requests without reparsing the DataRequest body.
type QueryConfig struct {
	TableName       string           `json:"tableName"`
	Columns         string           `json:"columns"`
	Joins           []Join           `json:"joins,omitempty"`
	PageSize        int              `json:"pageSize"`
	SortColumn      string           `json:"sortColumn,omitempty"`
	SortDirection   string           `json:"sortDirection,omitempty"`
	SearchColumns   []string         `json:"searchColumns,omitempty"`
	FrontendFilters []FrontendFilter `json:"frontendFilters,omitempty"`
}

// Join is one left-join inferred from a dotted related column resolved
// against cached foreign keys.
type Join struct {
	Type  string `json:"type"`
	Table string `json:"table"`
	On    string `json:"on"`
}

// PublishResult is the outcome of a Publish Strategy's publish_page call,
// per spec.md §4.G / §7 (the publish endpoint returns previewUrl and version
// on success).
type PublishResult struct {
	PreviewURL string `json:"previewUrl"`
	Version    int    `json:"version"`
}

// CompiledPage is the publish-time output handed to a Publish Strategy.
type CompiledPage struct {
	ID            string             `json:"id"`
	Slug          string             `json:"slug"`
	Name          string             `json:"name"`
	Title         string             `json:"title,omitempty"`
	Description   string             `json:"description,omitempty"`
	LayoutData    []PageComponent    `json:"layout_data"`
	SEOData       json.RawMessage    `json:"seo_data,omitempty"`
	Datasources   []DatasourceBundle `json:"datasources"`
	CSSBundle     string             `json:"css_bundle"`
	Version       int                `json:"version"`
	PublishedAt   string             `json:"published_at"`
	IsPublic      bool               `json:"is_public"`
	IsHomepage    bool               `json:"is_homepage"`
}
