package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/upb/activity-pipeline/middleware"
	"github.com/upb/activity-pipeline/models"
	"github.com/upb/activity-pipeline/services/settings"
	"github.com/upb/activity-pipeline/utils"
	"go.uber.org/zap"
)

// SettingsService defines the settings operations used by the API
type SettingsService interface {
	GetSettings(ctx context.Context, identity *models.ActionUser, id string) (*models.Settings, error)
	UpdateActivity(ctx context.Context, actor *models.ActionUser, id string, input settings.UpdateActivityInput) (*models.Settings, error)
}

// SettingsHandler exposes the activity part of the platform settings
type SettingsHandler struct {
	service SettingsService
	bus     ActionDispatcher
	logger  *zap.Logger
}

// NewSettingsHandler creates a new SettingsHandler. Successful updates are
// reported on bus as administration mutations.
func NewSettingsHandler(service SettingsService, bus ActionDispatcher, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		service: service,
		bus:     bus,
		logger:  logger,
	}
}

// HandleGetActivity handles GET /api/v1/settings/activity
func (h *SettingsHandler) HandleGetActivity(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActionUserFromRequest(r)

	current, err := h.service.GetSettings(r.Context(), actor, models.SettingsEntityID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, current)
}

// HandleUpdateActivity handles PUT /api/v1/settings/activity
func (h *SettingsHandler) HandleUpdateActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.ActionUserFromRequest(r)

	var input settings.UpdateActivityInput
	if err := utils.DecodeJSON(w, r, &input); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&input); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	updated, err := h.service.UpdateActivity(ctx, actor, models.SettingsEntityID, input)
	if err != nil {
		h.logger.Warn("activity settings update failed",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	if action := settingsUpdateAction(actor, input); action != nil {
		h.bus.Dispatch(ctx, action)
	}

	_ = utils.WriteOK(w, updated)
}

// settingsUpdateAction describes a settings change for the activity log, nil when
// the input changed nothing
func settingsUpdateAction(actor *models.ActionUser, input settings.UpdateActivityInput) *models.UserAction {
	changes := make(map[string]any)
	var keys []string
	if input.ValidEnterpriseEdition != nil {
		keys = append(keys, "valid_enterprise_edition")
		changes["valid_enterprise_edition"] = *input.ValidEnterpriseEdition
	}
	if input.ActivityListenersUsers != nil {
		keys = append(keys, "activity_listeners_users")
		changes["activity_listeners_users"] = input.ActivityListenersUsers
	}
	if len(keys) == 0 {
		return nil
	}

	return &models.UserAction{
		EventType:   models.EventTypeMutation,
		EventScope:  models.EventScopeUpdate,
		EventAccess: models.EventAccessAdministration,
		User:        *actor,
		Message:     fmt.Sprintf("updates `%s` in `Settings`", strings.Join(keys, ", ")),
		ContextData: map[string]any{
			"id":          models.SettingsEntityID,
			"entity_type": "Settings",
			"entity_name": "Settings",
			"input":       changes,
		},
	}
}
