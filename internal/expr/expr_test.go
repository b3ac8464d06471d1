package expr

import (
	"testing"

	"github.com/pagebase/core/internal/model"
)

func TestEvalAtFieldSugar(t *testing.T) {
	master := model.Record{"title": "Hello"}
	got := Eval("@title", master, nil)
	if got != "Hello" {
		t.Fatalf("expected Hello, got %v", got)
	}
}

func TestEvalTemplateBindings(t *testing.T) {
	master := model.Record{"id": "42"}
	slave := model.Record{"id": "7"}
	got := Eval("{{ master['id'] }}-{{ slave['id'] }}", master, slave)
	if got != "42-7" {
		t.Fatalf("expected 42-7, got %v", got)
	}
}

func TestEvalAliasBindings(t *testing.T) {
	master := model.Record{"status": "active"}
	got := Eval("{{ m['status'] }}", master, nil)
	if got != "active" {
		t.Fatalf("expected active, got %v", got)
	}
}

func TestEvalLiteralLookupFallback(t *testing.T) {
	master := model.Record{"count": 3}
	if got := Eval("count", master, nil); got != 3 {
		t.Fatalf("expected 3, got %v", got)
	}
	if got := Eval("not_a_key", master, nil); got != "not_a_key" {
		t.Fatalf("expected literal passthrough, got %v", got)
	}
}

func TestEvalCoercion(t *testing.T) {
	master := model.Record{"flag": "true", "n": "12", "f": "1.5"}
	if got := Eval("@flag", master, nil); got != true {
		t.Fatalf("expected bool true, got %v (%T)", got, got)
	}
	if got := Eval("@n", master, nil); got != 12 {
		t.Fatalf("expected int 12, got %v (%T)", got, got)
	}
	if got := Eval("@f", master, nil); got != 1.5 {
		t.Fatalf("expected float 1.5, got %v (%T)", got, got)
	}
}

func TestEvalUndefinedResolvesNull(t *testing.T) {
	master := model.Record{}
	if got := Eval("@missing", master, nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	if got := Eval("{{ slave['x'] }}", master, nil); got != nil {
		t.Fatalf("expected nil for nil slave, got %v", got)
	}
}

func TestEvalEmptyExpression(t *testing.T) {
	if got := Eval("", model.Record{}, nil); got != nil {
		t.Fatalf("expected nil for empty expression, got %v", got)
	}
}
