package adapter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

// buildWhere translates the closed Filter set into goqu expressions. Any
// operator outside the closed set (already rejected by ValidOperator at the
// API boundary) is skipped here too, so the predicate is simply omitted —
// never smuggled into raw SQL.
func buildWhere(ds *goqu.SelectDataset, filters []Filter) *goqu.SelectDataset {
	for _, f := range filters {
		expr := filterExpression(f)
		if expr != nil {
			ds = ds.Where(expr)
		}
	}
	return ds
}

// identExpr returns the goqu identifier for a (possibly dotted) column: a
// "table.col" column becomes the table-qualified identifier; no alias is
// applied.
func identExpr(col string) exp.IdentifierExpression {
	if table, c, ok := strings.Cut(col, "."); ok {
		return goqu.T(table).Col(c)
	}
	return goqu.C(col)
}

func filterExpression(f Filter) exp.Expression {
	ident := identExpr(f.Column)
	castText := goqu.Literal(fmt.Sprintf("CAST(%s AS TEXT)", identSQL(f.Column)))

	switch f.Op {
	case OpEq:
		return ident.Eq(f.Value)
	case OpNeq:
		return ident.Neq(f.Value)
	case OpGt:
		if n, err := strconv.ParseFloat(f.Value, 64); err == nil {
			return ident.Gt(n)
		}
		return ident.Gt(f.Value)
	case OpLt:
		if n, err := strconv.ParseFloat(f.Value, 64); err == nil {
			return ident.Lt(n)
		}
		return ident.Lt(f.Value)
	case OpContains:
		return castText.Like("%" + escapeLike(f.Value) + "%")
	case OpNotContains:
		return castText.NotLike("%" + escapeLike(f.Value) + "%")
	case OpStartsWith:
		return castText.Like(escapeLike(f.Value) + "%")
	case OpEndsWith:
		return castText.Like("%" + escapeLike(f.Value))
	case OpIsEmpty:
		return goqu.Or(ident.IsNull(), ident.Eq(""))
	case OpIsNotEmpty:
		return goqu.And(ident.IsNotNull(), ident.Neq(""))
	case OpIn:
		return ident.In(splitCSV(f.Value))
	case OpNotIn:
		return ident.NotIn(splitCSV(f.Value))
	default:
		return nil
	}
}

func identSQL(col string) string {
	if table, c, ok := strings.Cut(col, "."); ok {
		return fmt.Sprintf(`"%s"."%s"`, table, c)
	}
	return fmt.Sprintf(`"%s"`, col)
}

func escapeLike(v string) string {
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "%", "\\%")
	v = strings.ReplaceAll(v, "_", "\\_")
	return v
}

func splitCSV(v string) []any {
	parts := strings.Split(v, ",")
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// quoteProjectionColumn renders one base or dotted-related column the way
// §4.6 requires: "t"."c" for base columns, "rel"."c" AS "rel.c" for dotted.
func quoteProjectionColumn(baseTable, col string) string {
	if table, c, ok := strings.Cut(col, "."); ok {
		return fmt.Sprintf(`"%s"."%s" AS "%s.%s"`, table, c, table, c)
	}
	return fmt.Sprintf(`"%s"."%s"`, baseTable, col)
}

// orderDirection normalizes a free-form direction string to asc/desc.
func orderDirection(dir string) string {
	if strings.EqualFold(dir, "desc") {
		return "desc"
	}
	return "asc"
}
