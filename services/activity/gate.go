package activity

import (
	"context"

	"github.com/upb/activity-pipeline/models"
	"go.uber.org/zap"
)

// SettingsProvider resolves the platform settings, usually through a cache
type SettingsProvider interface {
	GetSettings(ctx context.Context, identity *models.ActionUser, id string) (*models.Settings, error)
}

// Rejection explains why the gate refused an action
type Rejection string

const (
	RejectNone       Rejection = ""
	RejectOrigin     Rejection = "origin"
	RejectSettings   Rejection = "settings"
	RejectEnterprise Rejection = "enterprise"
	RejectListener   Rejection = "listener"
)

// Gate decides whether an action is eligible for activity tracking
type Gate struct {
	settings SettingsProvider
	logger   *zap.Logger
}

// NewGate creates a Gate reading settings from provider
func NewGate(provider SettingsProvider, logger *zap.Logger) *Gate {
	return &Gate{settings: provider, logger: logger}
}

// Accept reports whether the action passes every eligibility rule
func (g *Gate) Accept(ctx context.Context, action *models.UserAction) bool {
	return g.Check(ctx, action) == RejectNone
}

// Check returns the first rule the action breaks, or RejectNone.
// Subscription traffic is never tracked. Administration actions skip the listener list.
func (g *Gate) Check(ctx context.Context, action *models.UserAction) Rejection {
	if !action.FromSocket(models.SocketQuery, models.SocketInternal) {
		return RejectOrigin
	}

	settings, err := g.settings.GetSettings(ctx, models.SystemUser, models.SettingsEntityID)
	if err != nil || settings == nil {
		g.logger.Warn("activity gate could not load settings", zap.Error(err))
		return RejectSettings
	}
	if !settings.ValidEnterpriseEdition {
		return RejectEnterprise
	}

	if action.EventAccess == models.EventAccessExtended && !settings.IsListening(action.User.ID) {
		return RejectListener
	}
	return RejectNone
}
