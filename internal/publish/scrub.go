package publish

import "github.com/pagebase/core/internal/model"

// scrubNulls removes null-valued keys from a component's props, binding, and
// visibility maps, recursively through nested maps and slices, per spec.md
// §4.F step 6. Every per-component step (normalize, styles, enrichment,
// schema baking) runs before this one so a
// binding left nil by enrichment or schema-baking never reaches the bundle.
func scrubNulls(comp *model.PageComponent) {
	comp.Props = scrubMap(comp.Props)
	comp.Binding = scrubMap(comp.Binding)
	comp.Visibility = scrubMap(comp.Visibility)
}

func scrubMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	for k, v := range m {
		if v == nil {
			delete(m, k)
			continue
		}
		m[k] = scrubValue(v)
	}
	return m
}

func scrubValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return scrubMap(t)
	case []any:
		out := t[:0]
		for _, item := range t {
			if item == nil {
				continue
			}
			out = append(out, scrubValue(item))
		}
		return out
	default:
		return v
	}
}
