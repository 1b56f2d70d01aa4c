package handlers

import (
	"context"
	"net/http"

	"github.com/upb/activity-pipeline/middleware"
	"github.com/upb/activity-pipeline/models"
	"github.com/upb/activity-pipeline/services"
	"github.com/upb/activity-pipeline/services/activity"
	"github.com/upb/activity-pipeline/utils"
	"go.uber.org/zap"
)

// ActionDispatcher hands completed user actions to the registered listeners
type ActionDispatcher interface {
	Dispatch(ctx context.Context, action *models.UserAction)
}

// ListenerStatus reports the activity listener lifecycle
type ListenerStatus interface {
	Status() activity.Status
}

// IngestActionRequest is a user action reported by another request path.
// User may only be set by administrators reporting on behalf of someone else;
// otherwise the caller's own identity is used.
type IngestActionRequest struct {
	EventType       models.EventType   `json:"event_type"`
	EventScope      models.EventScope  `json:"event_scope"`
	EventAccess     models.EventAccess `json:"event_access"`
	Status          models.EventStatus `json:"status,omitempty"`
	User            *models.ActionUser `json:"user,omitempty"`
	ContextData     map[string]any     `json:"context_data,omitempty"`
	Message         string             `json:"message,omitempty"`
	PreventIndexing *bool              `json:"prevent_indexing,omitempty"`
}

// ActionHandler receives user actions over HTTP and feeds the action bus
type ActionHandler struct {
	bus      ActionDispatcher
	listener ListenerStatus
	logger   *zap.Logger
}

// NewActionHandler creates a new ActionHandler
func NewActionHandler(bus ActionDispatcher, listener ListenerStatus, logger *zap.Logger) *ActionHandler {
	return &ActionHandler{
		bus:      bus,
		listener: listener,
		logger:   logger,
	}
}

// HandleIngest handles POST /api/v1/actions
func (h *ActionHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	claims := middleware.GetClaimsFromContext(ctx)
	if claims == nil {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	var req IngestActionRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	action := &models.UserAction{
		EventType:       req.EventType,
		EventScope:      req.EventScope,
		EventAccess:     req.EventAccess,
		Status:          req.Status,
		ContextData:     req.ContextData,
		Message:         req.Message,
		PreventIndexing: req.PreventIndexing,
	}

	if req.User != nil {
		if !claims.HasRole(middleware.RoleAdmin) {
			h.logger.Warn("non admin tried to report an action for another user",
				zap.String("request_id", requestID),
				zap.String("sub", claims.Sub),
				zap.String("reported_user", req.User.ID))
			HandleServiceError(w, services.ErrInsufficientPermissions.WithDetail("field", "user"), h.logger)
			return
		}
		action.User = *req.User
		if action.User.Origin.Socket == "" {
			action.User.Origin.Socket = models.SocketInternal
		}
	} else {
		action.User = *middleware.ActionUserFromRequest(r)
	}

	if err := utils.ValidateStruct(action); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if !h.listener.Status().Running {
		HandleServiceError(w, services.ErrListenerStopped, h.logger)
		return
	}

	h.bus.Dispatch(ctx, action)

	h.logger.Debug("user action accepted",
		zap.String("request_id", requestID),
		zap.String("action", action.Key()),
		zap.String("user_id", action.User.ID))

	_ = utils.WriteAccepted(w, "action accepted")
}
