package adapter

import (
	"strings"
	"testing"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
)

func sqlFor(t *testing.T, filters []Filter) string {
	t.Helper()
	ds := goqu.Dialect("mysql").From(goqu.T("widgets")).Select(goqu.Star())
	ds = buildWhere(ds, filters)
	sqlStr, _, err := ds.ToSQL()
	if err != nil {
		t.Fatalf("ToSQL: %v", err)
	}
	return sqlStr
}

func TestFilterExpressionEq(t *testing.T) {
	got := sqlFor(t, []Filter{{Column: "status", Op: OpEq, Value: "active"}})
	if !strings.Contains(got, "`status` = 'active'") {
		t.Fatalf("expected an equality predicate on status, got %q", got)
	}
}

func TestFilterExpressionGtNumericComparesAsNumber(t *testing.T) {
	got := sqlFor(t, []Filter{{Column: "price", Op: OpGt, Value: "9.5"}})
	if !strings.Contains(got, "`price` > 9.5") {
		t.Fatalf("expected a numeric comparison on price, got %q", got)
	}
}

func TestFilterExpressionGtNonNumericFallsBackToString(t *testing.T) {
	got := sqlFor(t, []Filter{{Column: "version", Op: OpGt, Value: "v2"}})
	if !strings.Contains(got, "`version` > 'v2'") {
		t.Fatalf("expected a quoted string comparison on version, got %q", got)
	}
}

func TestFilterExpressionContainsEscapesWildcards(t *testing.T) {
	got := sqlFor(t, []Filter{{Column: "name", Op: OpContains, Value: "100%_off"}})
	if !strings.Contains(got, `LIKE '%100\\%\\_off%'`) {
		t.Fatalf("expected the literal %% and _ to be backslash-escaped, got %q", got)
	}
}

func TestFilterExpressionNotContains(t *testing.T) {
	got := sqlFor(t, []Filter{{Column: "name", Op: OpNotContains, Value: "spam"}})
	if !strings.Contains(got, "NOT LIKE '%spam%'") {
		t.Fatalf("expected a NOT LIKE predicate, got %q", got)
	}
}

func TestFilterExpressionStartsEndsWith(t *testing.T) {
	starts := sqlFor(t, []Filter{{Column: "name", Op: OpStartsWith, Value: "Acme"}})
	if !strings.Contains(starts, "LIKE 'Acme%'") {
		t.Fatalf("expected a prefix LIKE, got %q", starts)
	}
	ends := sqlFor(t, []Filter{{Column: "name", Op: OpEndsWith, Value: "Inc"}})
	if !strings.Contains(ends, "LIKE '%Inc'") {
		t.Fatalf("expected a suffix LIKE, got %q", ends)
	}
}

func TestFilterExpressionIn(t *testing.T) {
	got := sqlFor(t, []Filter{{Column: "id", Op: OpIn, Value: "1, 2, 3"}})
	if !strings.Contains(got, "`id` IN") || !strings.Contains(got, "'1'") || !strings.Contains(got, "'3'") {
		t.Fatalf("expected an IN predicate over the split CSV values, got %q", got)
	}
}

func TestFilterExpressionIsEmptyMatchesNullOrBlank(t *testing.T) {
	got := sqlFor(t, []Filter{{Column: "note", Op: OpIsEmpty}})
	if !strings.Contains(got, "`note` IS NULL") || !strings.Contains(got, "`note` = ''") {
		t.Fatalf("expected an IS NULL OR = '' predicate, got %q", got)
	}
}

func TestFilterExpressionUnknownOperatorOmitsPredicate(t *testing.T) {
	got := sqlFor(t, []Filter{{Column: "note", Op: Operator("bogus")}})
	if strings.Contains(got, "WHERE") {
		t.Fatalf("an unrecognized operator must never reach raw SQL, got %q", got)
	}
}

func TestFilterExpressionDottedColumnAddressesRelatedTable(t *testing.T) {
	got := sqlFor(t, []Filter{{Column: "countries.code", Op: OpEq, Value: "US"}})
	if !strings.Contains(got, "`countries`.`code` = 'US'") {
		t.Fatalf("expected a qualified related-table column, got %q", got)
	}
}

func TestFilterExpressionMultipleFiltersAreAnded(t *testing.T) {
	got := sqlFor(t, []Filter{
		{Column: "status", Op: OpEq, Value: "active"},
		{Column: "price", Op: OpGt, Value: "10"},
	})
	if !strings.Contains(got, "AND") {
		t.Fatalf("expected multiple filters to be ANDed together, got %q", got)
	}
}
