// Package audit records one row per mutating admin action, per spec.md's
// supplemented audit trail (builder-facing "who changed what").
package audit

import (
	"github.com/google/uuid"

	"github.com/pagebase/core/internal/localdb"
	"github.com/pagebase/core/internal/model"
)

const bucket = "audit"

// Append writes an AuditEvent to the local store. Diff should already be
// redacted of secrets (service keys, passwords) by the caller.
func Append(db *localdb.DB, scope model.AuditScope, actor, action, entityID string, diff any) {
	if db == nil {
		return
	}
	ev := model.AuditEvent{
		ID:       uuid.NewString(),
		Scope:    scope,
		EntityID: entityID,
		Actor:    actor,
		Action:   action,
		Diff:     diff,
		TS:       model.NowISO(),
	}
	_ = db.Put(bucket, ev.ID, ev)
}

// List returns every audit event ever recorded, most recent last.
func List(db *localdb.DB) ([]model.AuditEvent, error) {
	if db == nil {
		return nil, nil
	}
	var out []model.AuditEvent
	if err := db.List(bucket, &out); err != nil {
		return nil, err
	}
	return out, nil
}
