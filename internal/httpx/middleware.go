package httpx

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pagebase/core/internal/apperr"
	"github.com/pagebase/core/internal/model"
)

// JSON writes a JSON response body with the given status code.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Ok writes a successful Envelope.
func Ok(w http.ResponseWriter, code int, data any, message string) {
	JSON(w, code, model.Envelope{Success: true, Data: data, Message: message})
}

// WriteErr maps a typed apperr.Error (or a generic error) to the HTTP status
// table in spec.md §7 and writes the canonical Envelope.
func WriteErr(w http.ResponseWriter, err error) {
	if e, ok := apperr.As(err); ok {
		status, errCode := statusFor(e.Kind)
		JSON(w, status, model.Envelope{Success: false, Error: errCode, Message: e.Message, Details: e.Details})
		return
	}
	JSON(w, http.StatusInternalServerError, model.Envelope{Success: false, Error: "internal_error", Message: err.Error()})
}

func statusFor(k apperr.Kind) (int, string) {
	switch k {
	case apperr.KindValidation:
		return http.StatusBadRequest, "validation_error"
	case apperr.KindUnprocessable:
		return http.StatusUnprocessableEntity, "schema_validation_error"
	case apperr.KindNotFound:
		return http.StatusNotFound, "not_found"
	case apperr.KindConnection:
		return http.StatusBadRequest, "connection_error"
	case apperr.KindUpstream:
		return http.StatusBadGateway, "upstream_error"
	case apperr.KindConflict:
		return http.StatusConflict, "conflict_requires_manual_resolution"
	case apperr.KindSchemaMiss:
		return http.StatusNotFound, "schema_lookup_miss"
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable, "service_unavailable"
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout, "upstream_timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// RequestID middleware adds/propagates a request ID via header and context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-Id")
		if rid == "" {
			rid = genID()
		}
		w.Header().Set("X-Request-Id", rid)
		ctx := context.WithValue(r.Context(), reqIDKey, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logging middleware logs one structured line per request via zap.
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &respWriter{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rw, r)
			logger.Info("request",
				zap.String("req_id", ReqIDFromCtx(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.code),
				zap.Duration("dur", time.Since(start)),
				zap.String("remote", r.RemoteAddr),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	code int
}

func (w *respWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *respWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *respWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, fmt.Errorf("hijacker not supported")
}

func (w *respWriter) Push(target string, opts *http.PushOptions) error {
	if p, ok := w.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}

func (w *respWriter) ReadFrom(r io.Reader) (n int64, err error) {
	if rf, ok := w.ResponseWriter.(io.ReaderFrom); ok {
		return rf.ReadFrom(r)
	}
	return io.Copy(w.ResponseWriter, r)
}

type ctxKey string

const reqIDKey ctxKey = "req_id"

func ReqIDFromCtx(ctx context.Context) string {
	if v := ctx.Value(reqIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func genID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return time.Now().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(b[:])
}

// CORS builds a middleware restricting responses to the configured origin
// set. A single "*" entry allows any origin. Preflight OPTIONS short-circuits
// with 204, matching the builder's cross-origin publish/preview calls.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Accept, X-Request-Id")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
