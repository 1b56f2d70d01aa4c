package models

import (
	"slices"
	"time"
)

// SettingsEntityID is the well-known id of the platform settings entity
const SettingsEntityID = "settings"

// SystemUserID identifies the internal system identity
const SystemUserID = "6a4b11e1-90ca-4e42-ba42-db7bc7f7d505"

// SystemUser is the identity used for internal lookups, never the acting user's
var SystemUser = &ActionUser{
	ID:     SystemUserID,
	Name:   "SYSTEM",
	Origin: UserOrigin{Socket: SocketInternal},
}

// Settings holds the platform settings consumed by the activity pipeline
type Settings struct {
	ID                     string    `json:"id" db:"id"`
	ValidEnterpriseEdition bool      `json:"valid_enterprise_edition" db:"valid_enterprise_edition"`
	ActivityListenersUsers []string  `json:"activity_listeners_users" db:"activity_listeners_users"`
	UpdatedAt              time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Settings model
func (Settings) TableName() string {
	return "platform_settings"
}

// IsListening reports whether the user is in the activity listeners list
func (s *Settings) IsListening(userID string) bool {
	return slices.Contains(s.ActivityListenersUsers, userID)
}
