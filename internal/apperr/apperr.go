// Package apperr defines the typed error taxonomy of spec.md §7 so that
// internal/httpx can translate any error returned from deeper packages into
// the right HTTP status and machine-readable code without string-matching.
package apperr

import "fmt"

// Kind enumerates the taxonomy. Each is translated to one HTTP status by
// httpx.WriteErr.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindConnection  Kind = "connection"
	KindUpstream    Kind = "upstream"
	KindConflict    Kind = "conflict_requires_manual"
	KindSchemaMiss  Kind = "schema_lookup_miss"
	KindUnavailable   Kind = "unavailable"
	KindTimeout       Kind = "timeout"
	KindFatal         Kind = "fatal"
	KindUnprocessable Kind = "unprocessable"
)

// Error is the common shape for every typed error in this taxonomy.
type Error struct {
	Kind    Kind
	Message string
	Details any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func Validation(msg string, details any) error {
	return &Error{Kind: KindValidation, Message: msg, Details: details}
}

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Unprocessable signals a gojsonschema rejection of an inbound
// ComponentBinding/FilterExpr/FieldMapping shape — the 422 of spec.md §6/§7,
// distinct from KindValidation's 400 (missing/malformed request body) since
// the body parsed fine but failed the domain schema.
func Unprocessable(msg string, details any) error {
	return &Error{Kind: KindUnprocessable, Message: msg, Details: details}
}

// ConnectionSuggestion classifies a failed adapter connection attempt, per
// spec.md §4.A failure semantics.
type ConnectionSuggestion string

const (
	SuggestAuth        ConnectionSuggestion = "auth"
	SuggestHost        ConnectionSuggestion = "host_unresolved"
	SuggestPortBlocked ConnectionSuggestion = "port_blocked"
	SuggestSSL         ConnectionSuggestion = "ssl"
	SuggestTimeout     ConnectionSuggestion = "timeout"
	SuggestUnknown     ConnectionSuggestion = "unknown"
)

func Connection(suggestion ConnectionSuggestion, cause error) error {
	return &Error{Kind: KindConnection, Message: "connection failed", Details: suggestion, Cause: cause}
}

func Upstream(status int, body string) error {
	return &Error{Kind: KindUpstream, Message: "upstream error", Details: map[string]any{"status": status, "body": truncate(body, 2048)}}
}

func ConflictManual(recordKey string) error {
	return &Error{Kind: KindConflict, Message: "conflict requires manual resolution", Details: recordKey}
}

func SchemaMiss(table string) error {
	return &Error{Kind: KindSchemaMiss, Message: "schema lookup miss", Details: table}
}

// Unavailable signals a downstream service (the edge, a hosted SQL API) is
// unreachable — a publish while the edge is down returns 503 and never
// marks the page is_public=true (spec.md §8 boundary behavior).
func Unavailable(cause error) error {
	return &Error{Kind: KindUnavailable, Message: "service unavailable", Cause: cause}
}

// Timeout signals a downstream call exceeded its deadline (spec.md §6: 504
// on edge timeout).
func Timeout(cause error) error {
	return &Error{Kind: KindTimeout, Message: "upstream timeout", Cause: cause}
}

func Fatal(cause error) error {
	return &Error{Kind: KindFatal, Message: "internal error", Cause: cause}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

// As extracts an *Error from err, if any is in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errorsAs(err, &e)
	return e, ok
}

// errorsAs walks the Unwrap chain by hand, so this file needs no import of
// the standard "errors" package.
func errorsAs(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
