package publish

import (
	"sort"
	"strings"

	"github.com/pagebase/core/internal/model"
)

// baseCSS ships in every bundle regardless of which components are present.
const baseCSS = `*,*::before,*::after{box-sizing:border-box}body{margin:0;font-family:system-ui,sans-serif}`

// componentCSSModules maps a component type to the CSS module it needs; a
// type with no registered module contributes nothing to the bundle.
var componentCSSModules = map[string]string{
	"Table":     `.pb-table{width:100%;border-collapse:collapse}.pb-table td,.pb-table th{padding:.5rem;border-bottom:1px solid #e2e2e2}`,
	"DataTable": `.pb-table{width:100%;border-collapse:collapse}.pb-table td,.pb-table th{padding:.5rem;border-bottom:1px solid #e2e2e2}`,
	"Form":      `.pb-form{display:flex;flex-direction:column;gap:.75rem}.pb-form label{font-weight:600}`,
	"InfoList":  `.pb-infolist{display:grid;gap:.5rem}`,
	"Button":    `.pb-button{padding:.5rem 1rem;border-radius:.25rem;border:none;cursor:pointer}`,
	"Card":      `.pb-card{border-radius:.5rem;box-shadow:0 1px 3px rgba(0,0,0,.15);padding:1rem}`,
	"Chart":     `.pb-chart{width:100%;min-height:200px}`,
}

// buildCSSBundle tree-shakes the per-type CSS down to the types actually
// present in the transformed tree, per spec.md §4.F step 8.
func buildCSSBundle(components []model.PageComponent) string {
	present := map[string]bool{}
	var walk func(model.PageComponent)
	walk = func(c model.PageComponent) {
		present[c.Type] = true
		for _, child := range c.Children {
			walk(child)
		}
	}
	for _, c := range components {
		walk(c)
	}

	types := make([]string, 0, len(present))
	for t := range present {
		types = append(types, t)
	}
	sort.Strings(types)

	var b strings.Builder
	b.WriteString(baseCSS)
	for _, t := range types {
		if css, ok := componentCSSModules[t]; ok {
			b.WriteString(css)
		}
	}
	return b.String()
}
