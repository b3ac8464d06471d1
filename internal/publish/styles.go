package publish

import "github.com/pagebase/core/internal/model"

// mergeStyles computes the final styles = {activeProperties, values,
// stylingMode} per spec.md §4.F step 3: values is the existing base values
// overridden by stylesData.values; activeProperties defaults to the merged
// key-set when absent. The legacy stylesData field never survives into the
// output.
func mergeStyles(comp *model.PageComponent) {
	if comp.Styles == nil && comp.StylesData == nil {
		return
	}

	values := map[string]any{}
	if comp.Styles != nil {
		if v, ok := comp.Styles["values"].(map[string]any); ok {
			for k, val := range v {
				values[k] = val
			}
		}
	}
	if comp.StylesData != nil {
		if v, ok := comp.StylesData["values"].(map[string]any); ok {
			for k, val := range v {
				values[k] = val
			}
		}
	}

	merged := map[string]any{"values": values}

	var activeProperties []any
	if comp.Styles != nil {
		if ap, ok := comp.Styles["activeProperties"]; ok {
			activeProperties, _ = ap.([]any)
		}
	}
	if len(activeProperties) == 0 {
		for k := range values {
			activeProperties = append(activeProperties, k)
		}
	}
	merged["activeProperties"] = activeProperties

	if comp.Styles != nil {
		if mode, ok := comp.Styles["stylingMode"]; ok {
			merged["stylingMode"] = mode
		}
	}

	comp.Styles = merged
	comp.StylesData = nil
}
