package adapter

import (
	"strings"

	"github.com/pagebase/core/internal/model"
)

// SupabaseAdapter extends the Postgres adapter (Supabase projects are wire-
// compatible Postgres). Its embedded pgBase serves every read/write path;
// the REST base URL and keys are stored on the adapter but not read by it.
// internal/publish/datarequest.go builds the PostgREST/RPC request a
// published page issues at runtime from the model.Datasource itself.
type SupabaseAdapter struct {
	*pgBase
	restBaseURL string
	anonKey     string
	serviceKey  string
}

func NewSupabaseAdapter(opts model.ConnectOpts) *SupabaseAdapter {
	return &SupabaseAdapter{
		pgBase:      newPGBase(opts, 10, false, nil),
		restBaseURL: strings.TrimRight(opts.RESTBaseURL, "/"),
		anonKey:     opts.AnonKey,
		serviceKey:  opts.ServiceKey,
	}
}

var _ Adapter = (*SupabaseAdapter)(nil)
