// Package settings persists the process-wide ProjectSettings singleton
// (cache backend, TTLs, publish strategy, CORS, branding) the bucket-keyed
// way the core's localdb-backed managers always have.
package settings

import (
	"strings"

	"github.com/pagebase/core/internal/localdb"
	"github.com/pagebase/core/internal/model"
)

// Manager wraps localdb for the typed ProjectSettings singleton.
type Manager struct{ DB *localdb.DB }

const (
	bucket        = "settings"
	keyProject    = "project"
	credsBucket   = "credentials"
	keyCacheToken = "cache_token"
)

func EnsureBucket(db *localdb.DB) error { return db.EnsureBuckets(bucket, credsBucket) }

// Get returns the current ProjectSettings, falling back to defaults when
// nothing has been persisted yet.
func (m Manager) Get() (model.ProjectSettings, error) {
	out := model.DefaultProjectSettings()
	var tmp map[string]any
	if err := m.DB.Get(bucket, keyProject, &tmp); err != nil {
		return out, nil
	}
	out.FaviconURL = asString(tmp["favicon_url"])
	out.LogoURL = asString(tmp["logo_url"])
	out.SiteName = asString(tmp["site_name"])
	out.Description = asString(tmp["description"])
	out.AppURL = asString(tmp["app_url"])
	out.CacheURL = asString(tmp["cache_url"])
	out.CacheType = model.CacheBackendType(asString(tmp["cache_type"]))
	out.CacheEnabled = asBool(tmp["cache_enabled"])
	if v := asInt(tmp["ttl_data"]); v > 0 {
		out.TTLData = v
	}
	if v := asInt(tmp["ttl_count"]); v > 0 {
		out.TTLCount = v
	}
	out.PublishStrategy = asString(tmp["publish_strategy"])
	if arr, ok := tmp["cors_origins"].([]any); ok {
		for _, v := range arr {
			if s, ok := v.(string); ok {
				out.CORSOrigins = append(out.CORSOrigins, s)
			}
		}
	}
	var cred map[string]any
	if err := m.DB.Get(credsBucket, keyCacheToken, &cred); err == nil {
		out.CacheToken = asString(cred["value"])
	}
	return out, nil
}

// Put persists s, storing CacheToken separately so Get's returned payload
// (mirrored back to the builder UI) never needs to redact it by hand.
func (m Manager) Put(s model.ProjectSettings) error {
	rec := map[string]any{
		"favicon_url":      strings.TrimSpace(s.FaviconURL),
		"logo_url":         strings.TrimSpace(s.LogoURL),
		"site_name":        strings.TrimSpace(s.SiteName),
		"description":      strings.TrimSpace(s.Description),
		"app_url":          strings.TrimSpace(s.AppURL),
		"cache_url":        strings.TrimSpace(s.CacheURL),
		"cache_type":       string(s.CacheType),
		"cache_enabled":    s.CacheEnabled,
		"ttl_data":         s.TTLData,
		"ttl_count":        s.TTLCount,
		"publish_strategy": strings.TrimSpace(s.PublishStrategy),
		"cors_origins":     s.CORSOrigins,
	}
	if strings.TrimSpace(s.CacheToken) != "" {
		if err := m.DB.Put(credsBucket, keyCacheToken, map[string]any{"value": s.CacheToken}); err != nil {
			return err
		}
	}
	return m.DB.Put(bucket, keyProject, rec)
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true") || strings.TrimSpace(t) == "1"
	case float64:
		return t != 0
	default:
		return false
	}
}

func asInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	default:
		return 0
	}
}
