package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActivityEventVersion is the schema version carried by every persisted activity event
const ActivityEventVersion = "1"

// ActivityStreamEvent is the durable envelope appended to the activity stream
type ActivityStreamEvent struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	Version         string         `json:"version" db:"version"`
	Timestamp       time.Time      `json:"timestamp" db:"timestamp"`
	Type            EventType      `json:"type" db:"event_type"`
	EventAccess     EventAccess    `json:"event_access" db:"event_access"`
	EventScope      EventScope     `json:"event_scope" db:"event_scope"`
	PreventIndexing bool           `json:"prevent_indexing" db:"prevent_indexing"`
	Status          EventStatus    `json:"status" db:"status"`
	Origin          UserOrigin     `json:"origin" db:"origin"` // JSONB
	UserID          string         `json:"user_id" db:"user_id"`
	Message         string         `json:"message" db:"message"`
	Data            map[string]any `json:"data" db:"data"` // JSONB, sanitized
}

// TableName returns the table name for the ActivityStreamEvent model
func (ActivityStreamEvent) TableName() string {
	return "activity_events"
}

// NewActivityStreamEvent builds the envelope for an action, applying the documented defaults.
// data must already be sanitized.
func NewActivityStreamEvent(action *UserAction, message string, data map[string]any) *ActivityStreamEvent {
	status := action.Status
	if status == "" {
		status = EventStatusSuccess
	}
	preventIndexing := false
	if action.PreventIndexing != nil {
		preventIndexing = *action.PreventIndexing
	}
	if data == nil {
		data = map[string]any{}
	}

	return &ActivityStreamEvent{
		ID:              uuid.New(),
		Version:         ActivityEventVersion,
		Timestamp:       time.Now().UTC(),
		Type:            action.EventType,
		EventAccess:     action.EventAccess,
		EventScope:      action.EventScope,
		PreventIndexing: preventIndexing,
		Status:          status,
		Origin:          action.User.Origin,
		UserID:          action.User.ID,
		Message:         message,
		Data:            data,
	}
}

// AuditMeta returns the metadata block written with the audit log record
func (e *ActivityStreamEvent) AuditMeta() map[string]any {
	return map[string]any{
		"version":      e.Version,
		"type":         e.Type,
		"event_scope":  e.EventScope,
		"event_access": e.EventAccess,
		"data":         e.Data,
	}
}

// Subject returns the stream subject of the event ("activity.<type>.<scope>")
func (e *ActivityStreamEvent) Subject() string {
	return "activity." + string(e.Type) + "." + string(e.EventScope)
}

// MarshalData encodes the sanitized payload for JSONB storage
func (e *ActivityStreamEvent) MarshalData() ([]byte, error) {
	return json.Marshal(e.Data)
}

// MarshalOrigin encodes the origin for JSONB storage
func (e *ActivityStreamEvent) MarshalOrigin() ([]byte, error) {
	return json.Marshal(e.Origin)
}
