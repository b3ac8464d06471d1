// Package expr is the tiny template language used by field mappings and
// view-level transforms (spec.md §4.C). It intentionally exposes only two
// bound names, master and slave, and never reaches an ambient global or a
// general code evaluator.
package expr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pagebase/core/internal/model"
)

var templateRe = regexp.MustCompile(`\{\{\s*(.*?)\s*\}\}`)

// Eval renders expr against master (aliased m) and slave (aliased s,
// possibly nil), returning a value coerced to bool/int/float64/string.
// Syntax errors and undefined-variable errors resolve to nil rather than
// propagating, per spec.md §4.C.
func Eval(expression string, master, slave model.Record) any {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil
	}

	if strings.HasPrefix(expression, "@") {
		field := strings.TrimPrefix(expression, "@")
		return coerce(lookup(master, field))
	}

	if !strings.Contains(expression, "{{") {
		if v, ok := master[expression]; ok {
			return coerce(v)
		}
		return expression
	}

	undefined := false
	rendered := templateRe.ReplaceAllStringFunc(expression, func(m string) string {
		inner := templateRe.FindStringSubmatch(m)[1]
		v, ok := evalBinding(inner, master, slave)
		if !ok {
			undefined = true
			return ""
		}
		return toString(v)
	})
	if undefined {
		return nil
	}
	return coerce(rendered)
}

// evalBinding resolves one `{{ ... }}` body of the restricted forms this
// engine supports: `master['field']`, `m['field']`, `slave['field']`,
// `s['field']`, or a bare identifier looked up in master.
func evalBinding(body string, master, slave model.Record) (any, bool) {
	body = strings.TrimSpace(body)

	if idx := strings.IndexAny(body, "["); idx >= 0 {
		root := strings.TrimSpace(body[:idx])
		field := extractBracketKey(body[idx:])
		if field == "" {
			return nil, false
		}
		switch root {
		case "master", "m":
			v, ok := lookupOK(master, field)
			return v, ok
		case "slave", "s":
			v, ok := lookupOK(slave, field)
			return v, ok
		default:
			return nil, false
		}
	}

	// bare identifier: default to a master field lookup
	v, ok := lookupOK(master, body)
	return v, ok
}

func extractBracketKey(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return ""
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	inner = strings.Trim(inner, `'"`)
	return inner
}

func lookup(rec model.Record, field string) any {
	v, _ := lookupOK(rec, field)
	return v
}

func lookupOK(rec model.Record, field string) (any, bool) {
	if rec == nil {
		return nil, false
	}
	v, ok := rec[field]
	return v, ok
}

// coerce converts a rendered string (or a passthrough value already typed
// by a map lookup) to bool, int, float64, or string, in that preference
// order, only when unambiguously convertible.
func coerce(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(t)
	}
}
