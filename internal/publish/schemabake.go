package publish

import "github.com/pagebase/core/internal/model"

// bakeSchema bakes the resolved column/FK metadata onto a Form or InfoList
// component's binding and mirrors it under legacy props._* keys for older
// renderer builds, per spec.md §4.F step 5. A schema-cache miss here is
// tolerated silently — the component renders without baked metadata rather
// than failing the whole publish.
func (c *Compiler) bakeSchema(comp *model.PageComponent, ds model.Datasource) {
	table, _ := comp.Binding["table_name"].(string)
	if table == "" {
		return
	}
	sc, ok, err := c.schemas.GetCachedSchema(ds.ID, table)
	if err != nil || !ok {
		return
	}

	fkRefs := make([]model.ForeignKeyRef, 0, len(sc.ForeignKeys))
	for _, fk := range sc.ForeignKeys {
		if len(fk.ConstrainedColumns) == 0 || len(fk.ReferredColumns) == 0 {
			continue
		}
		fkRefs = append(fkRefs, model.ForeignKeyRef{
			Column:           fk.ConstrainedColumns[0],
			ReferencedTable:  fk.ReferredTable,
			ReferencedColumn: fk.ReferredColumns[0],
		})
	}

	columnNames := make([]string, len(sc.Columns))
	for i, col := range sc.Columns {
		columnNames[i] = col.Name
	}

	comp.Binding["columns_meta"] = sc.Columns
	comp.Binding["foreignKeys"] = fkRefs

	if comp.Props == nil {
		comp.Props = map[string]any{}
	}
	comp.Props["_columns"] = sc.Columns
	comp.Props["_foreignKeys"] = fkRefs
	comp.Props["_tableName"] = table
	comp.Props["_dataSourceId"] = ds.ID
	if fo, ok := comp.Binding["field_overrides"]; ok {
		comp.Props["_fieldOverrides"] = fo
	}
	if order, ok := comp.Binding["field_order"]; ok {
		comp.Props["_fieldOrder"] = order
	} else {
		comp.Props["_fieldOrder"] = columnNames
	}
}
