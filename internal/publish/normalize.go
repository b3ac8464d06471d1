package publish

import "github.com/pagebase/core/internal/model"

// datasourceIDSpellings are the variant keys the builder has shipped for a
// binding's datasource reference over time, per spec.md §4.F step 2 / §9
// "binding shape drift".
var datasourceIDSpellings = []string{"datasourceId", "datasource_id", "dataSourceId"}

// normalizeBinding lifts a component's binding from props (if that's where
// the builder put it) to the root Binding field, normalizes whichever
// datasource-id spelling is present to "datasource_id", and falls back to
// the first registered datasource when none is given.
func normalizeBinding(comp *model.PageComponent, fallbackDatasourceID string) {
	if comp.Binding == nil {
		if raw, ok := comp.Props["binding"]; ok {
			if m, ok := raw.(map[string]any); ok {
				comp.Binding = m
				delete(comp.Props, "binding")
			}
		}
	}
	if comp.Binding == nil {
		return
	}

	for _, spelling := range datasourceIDSpellings {
		if v, ok := comp.Binding[spelling]; ok {
			if spelling != "datasource_id" {
				delete(comp.Binding, spelling)
			}
			if s, ok := v.(string); ok && s != "" {
				comp.Binding["datasource_id"] = s
			}
		}
	}

	if _, ok := comp.Binding["datasource_id"]; !ok && fallbackDatasourceID != "" {
		comp.Binding["datasource_id"] = fallbackDatasourceID
	}
}
