package adapter

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/pagebase/core/internal/apperr"
)

// classifyConnectErr turns a raw connect-time error into the structured
// suggestion spec.md §4.A promises (auth, host, port-blocked, SSL, timeout).
// This never retries — retries are the caller's decision.
func classifyConnectErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return apperr.Connection(apperr.SuggestHost, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Connection(apperr.SuggestTimeout, err)
	}

	switch {
	case strings.Contains(msg, "password authentication failed"),
		strings.Contains(msg, "authentication failed"),
		strings.Contains(msg, "access denied"),
		strings.Contains(msg, "role") && strings.Contains(msg, "does not exist"):
		return apperr.Connection(apperr.SuggestAuth, err)
	case strings.Contains(msg, "no such host"), strings.Contains(msg, "name resolution"):
		return apperr.Connection(apperr.SuggestHost, err)
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "i/o timeout") && strings.Contains(msg, "dial"):
		return apperr.Connection(apperr.SuggestPortBlocked, err)
	case strings.Contains(msg, "ssl"), strings.Contains(msg, "tls"), strings.Contains(msg, "certificate"):
		return apperr.Connection(apperr.SuggestSSL, err)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return apperr.Connection(apperr.SuggestTimeout, err)
	default:
		return apperr.Connection(apperr.SuggestUnknown, err)
	}
}
