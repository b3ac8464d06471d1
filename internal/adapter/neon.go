package adapter

import (
	"strings"

	"github.com/pagebase/core/internal/model"
)

// NeonAdapter is Postgres with a smaller pool, statement cache disabled,
// SSL required, and system tables filtered out of ListTables, per spec.md
// §4.A.
type NeonAdapter struct{ *pgBase }

func NewNeonAdapter(opts model.ConnectOpts) *NeonAdapter {
	opts.PoolerMode = true // disables prepared-statement caching
	if opts.SSLMode == "" {
		opts.SSLMode = "require"
	}
	return &NeonAdapter{pgBase: newPGBase(opts, 3, true, isNeonSystemTable)}
}

var _ Adapter = (*NeonAdapter)(nil)

func isNeonSystemTable(name string) bool {
	return strings.HasPrefix(name, "_neon") ||
		strings.HasPrefix(name, "pg_") ||
		strings.HasPrefix(name, "information_schema")
}
