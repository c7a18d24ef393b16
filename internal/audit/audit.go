package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/procurement/services/rfq/internal/models"
)

// Audit actions
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Actor is the explicit request context of whoever performs a change.
// It is threaded into every call rather than read from ambient state.
type Actor struct {
	UserID    *uuid.UUID
	IP        string
	UserAgent string
}

// SystemActor is used for changes made by background jobs and message
// consumers, where no user request is present.
func SystemActor() Actor {
	return Actor{UserAgent: "system"}
}

// Fields holds the before or after values of the fields a change touched.
// Only fields that actually changed belong here.
type Fields map[string]interface{}

// Logger records field-level changes. Implementations must write exactly one
// entry per actual change and none for idempotent no-ops; callers are
// responsible for not invoking the logger when nothing changed.
type Logger interface {
	Created(ctx context.Context, actor Actor, entityType string, entityID uuid.UUID, after Fields) error
	Updated(ctx context.Context, actor Actor, entityType string, entityID uuid.UUID, before, after Fields) error
	Deleted(ctx context.Context, actor Actor, entityType string, entityID uuid.UUID, before Fields) error
}

// GormLogger persists audit entries through GORM. Construct it with the
// caller's transaction handle so entries commit and roll back together with
// the change they describe.
type GormLogger struct {
	db *gorm.DB
}

// NewGormLogger creates a new GORM-backed audit logger
func NewGormLogger(db *gorm.DB) *GormLogger {
	return &GormLogger{db: db}
}

// Created records the creation of an entity
func (l *GormLogger) Created(ctx context.Context, actor Actor, entityType string, entityID uuid.UUID, after Fields) error {
	return l.write(ctx, actor, entityType, entityID, ActionCreated, nil, after)
}

// Updated records a change to an entity, with before and after values of
// exactly the changed fields
func (l *GormLogger) Updated(ctx context.Context, actor Actor, entityType string, entityID uuid.UUID, before, after Fields) error {
	return l.write(ctx, actor, entityType, entityID, ActionUpdated, before, after)
}

// Deleted records the deletion of an entity
func (l *GormLogger) Deleted(ctx context.Context, actor Actor, entityType string, entityID uuid.UUID, before Fields) error {
	return l.write(ctx, actor, entityType, entityID, ActionDeleted, before, nil)
}

func (l *GormLogger) write(ctx context.Context, actor Actor, entityType string, entityID uuid.UUID, action string, before, after Fields) error {
	var beforeJSON, afterJSON []byte
	var err error

	if before != nil {
		beforeJSON, err = json.Marshal(before)
		if err != nil {
			return errors.Wrap(err, "failed to marshal audit before fields")
		}
	}
	if after != nil {
		afterJSON, err = json.Marshal(after)
		if err != nil {
			return errors.Wrap(err, "failed to marshal audit after fields")
		}
	}

	entry := models.AuditLog{
		ID:             uuid.New(),
		EntityType:     entityType,
		EntityID:       entityID,
		Action:         action,
		Before:         beforeJSON,
		After:          afterJSON,
		ActorID:        actor.UserID,
		ActorIP:        actor.IP,
		ActorUserAgent: actor.UserAgent,
	}

	if err := l.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return errors.Wrap(err, "failed to write audit log entry")
	}

	log.Debug().
		Str("entity_type", entityType).
		Str("entity_id", entityID.String()).
		Str("action", action).
		Msg("Audit entry recorded")

	return nil
}
