// Package validate enforces spec.md §6/§7's schema-validator contract: an
// inbound ComponentBinding, FilterExpr, or FieldMapping shape that does not
// match the domain's JSON schema is rejected with apperr.Unprocessable (HTTP
// 422) before it ever reaches the publish compiler or sync executor.
package validate

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/pagebase/core/internal/adapter"
	"github.com/pagebase/core/internal/apperr"
	"github.com/pagebase/core/internal/model"
)

var (
	componentBindingSchema = mustCompile(componentBindingSchemaJSON())
	filterExprSchema       = mustCompile(filterExprSchemaJSON())
	fieldMappingSchema     = mustCompile(fieldMappingSchemaJSON)
)

func mustCompile(raw string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("validate: invalid schema literal: %v", err))
	}
	return schema
}

func check(schema *gojsonschema.Schema, v any, label string) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(v))
	if err != nil {
		return apperr.Fatal(fmt.Errorf("%s: %w", label, err))
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return apperr.Unprocessable(label+" failed schema validation", msgs)
}

// enumArray renders a JSON array literal from string values, for building
// schema enums off a closed Go constant set rather than hand-duplicating it.
func enumArray(vals []string) string {
	quoted := make([]string, len(vals))
	for i, v := range vals {
		quoted[i] = `"` + v + `"`
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func componentBindingSchemaJSON() string {
	return `{
		"type": "object",
		"additionalProperties": true,
		"properties": {
			"datasource_id": {"type": "string"},
			"table_name": {"type": "string"},
			"columns": {"type": ["array", "null"], "items": {"type": "string"}},
			"field_order": {"type": ["array", "null"], "items": {"type": "string"}},
			"column_order": {"type": ["array", "null"], "items": {"type": "string"}},
			"sorting": {
				"type": ["object", "null"],
				"properties": {
					"column": {"type": "string"},
					"direction": {"type": "string", "enum": ["asc", "desc", ""]}
				}
			},
			"pagination": {
				"type": ["object", "null"],
				"properties": {
					"enabled": {"type": "boolean"},
					"page_size": {"type": "number"}
				}
			},
			"frontend_filters": {
				"type": ["array", "null"],
				"items": {
					"type": "object",
					"required": ["id", "column", "filter_type"],
					"properties": {
						"id": {"type": "string"},
						"column": {"type": "string"},
						"filter_type": {"type": "string", "enum": ["text", "dropdown", "multiselect", "date", "range"]},
						"label": {"type": "string"}
					}
				}
			}
		}
	}`
}

func filterExprSchemaJSON() string {
	return fmt.Sprintf(`{
		"type": "object",
		"required": ["column", "op"],
		"properties": {
			"column": {"type": "string", "minLength": 1},
			"op": {"type": "string", "enum": %s},
			"value": {"type": "string"}
		}
	}`, enumArray(validOperatorStrings()))
}

func validOperatorStrings() []string {
	return []string{
		string(adapter.OpEq), string(adapter.OpNeq), string(adapter.OpGt), string(adapter.OpLt),
		string(adapter.OpContains), string(adapter.OpStartsWith), string(adapter.OpEndsWith),
		string(adapter.OpIsEmpty), string(adapter.OpIsNotEmpty), string(adapter.OpIn),
		string(adapter.OpNotIn), string(adapter.OpNotContains),
	}
}

const fieldMappingSchemaJSON = `{
	"type": "object",
	"required": ["master_column", "slave_column"],
	"properties": {
		"master_column": {"type": "string", "minLength": 1},
		"slave_column": {"type": "string", "minLength": 1},
		"transform": {"type": "string"},
		"is_key_field": {"type": "boolean"},
		"skip_sync": {"type": "boolean"}
	}
}`

// ComponentBinding validates a component's normalized (but still loosely
// typed) binding map, after internal/publish's normalizeBinding has run and
// before enrichment touches it. additionalProperties stays open so the
// historical builder key spellings normalizeBinding doesn't rewrite still
// pass through untouched — only the canonical, well-typed fields are
// schema-checked.
func ComponentBinding(v map[string]any) error {
	if v == nil {
		return nil
	}
	return check(componentBindingSchema, v, "component binding")
}

// FilterExpr validates one view/sync filter predicate.
func FilterExpr(f model.FilterExpr) error {
	return check(filterExprSchema, f, "filter expression")
}

// FieldMapping validates one sync field mapping.
func FieldMapping(fm model.FieldMapping) error {
	return check(fieldMappingSchema, fm, "field mapping")
}
