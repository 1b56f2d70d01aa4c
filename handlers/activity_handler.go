package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/upb/activity-pipeline/models"
	"github.com/upb/activity-pipeline/repositories"
	"github.com/upb/activity-pipeline/services"
	"github.com/upb/activity-pipeline/services/activity"
	"github.com/upb/activity-pipeline/services/settings"
	"github.com/upb/activity-pipeline/utils"
	"go.uber.org/zap"
)

// Listing page bounds
const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// ListenerReporter exposes the activity listener state
type ListenerReporter interface {
	ListenerStatus
	Stats() activity.Stats
}

// CacheStatsProvider reports the settings cache statistics
type CacheStatsProvider interface {
	CacheStats() settings.CacheStats
}

// StatusResponse is the body of GET /api/v1/activity/status
type StatusResponse struct {
	Listener      activity.Status      `json:"listener"`
	Stats         activity.Stats       `json:"stats"`
	ReadCacheSize int                  `json:"read_cache_size"`
	SettingsCache *settings.CacheStats `json:"settings_cache,omitempty"`
	StreamBackend string               `json:"stream_backend"`
}

// ActivityHandler serves the persisted activity events and the pipeline status
type ActivityHandler struct {
	events        repositories.ActivityRepository // nil unless the postgres stream is used
	listener      ListenerReporter
	reads         *activity.ReadCache
	settings      CacheStatsProvider
	streamBackend string
	logger        *zap.Logger
}

// NewActivityHandler creates a new ActivityHandler. events may be nil when the
// stream backend does not keep events queryable.
func NewActivityHandler(
	events repositories.ActivityRepository,
	listener ListenerReporter,
	reads *activity.ReadCache,
	settingsService CacheStatsProvider,
	streamBackend string,
	logger *zap.Logger,
) *ActivityHandler {
	return &ActivityHandler{
		events:        events,
		listener:      listener,
		reads:         reads,
		settings:      settingsService,
		streamBackend: streamBackend,
		logger:        logger,
	}
}

// HandleListEvents handles GET /api/v1/activity/events
func (h *ActivityHandler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		HandleServiceError(w, services.ErrListingDisabled.WithDetail("stream_backend", h.streamBackend), h.logger)
		return
	}

	filter, err := parseActivityFilter(r.URL.Query())
	if err != nil {
		HandleServiceError(w, services.ErrInvalidFilter.WithDetail("reason", err.Error()), h.logger)
		return
	}

	events, err := h.events.List(r.Context(), filter)
	if err != nil {
		HandleServiceError(w, services.WrapInternal("failed to list activity events", err), h.logger)
		return
	}

	_ = utils.WritePage(w, events, len(events), filter.Limit, filter.Offset)
}

// HandleGetEvent handles GET /api/v1/activity/events/{id}
func (h *ActivityHandler) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		HandleServiceError(w, services.ErrListingDisabled.WithDetail("stream_backend", h.streamBackend), h.logger)
		return
	}

	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	event, err := h.events.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			HandleServiceError(w, services.ErrEventNotFound.WithDetail("id", id.String()), h.logger)
			return
		}
		HandleServiceError(w, services.WrapInternal("failed to load activity event", err), h.logger)
		return
	}

	_ = utils.WriteOK(w, event)
}

// HandleStatus handles GET /api/v1/activity/status
func (h *ActivityHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	response := StatusResponse{
		Listener:      h.listener.Status(),
		Stats:         h.listener.Stats(),
		StreamBackend: h.streamBackend,
	}
	if h.reads != nil {
		response.ReadCacheSize = h.reads.Len()
	}
	if h.settings != nil {
		stats := h.settings.CacheStats()
		response.SettingsCache = &stats
	}

	_ = utils.WriteOK(w, response)
}

// parseActivityFilter reads the listing filters from the query string
func parseActivityFilter(q url.Values) (repositories.ActivityFilter, error) {
	filter := repositories.ActivityFilter{
		UserID: q.Get("user_id"),
		Type:   models.EventType(q.Get("type")),
		Scope:  models.EventScope(q.Get("scope")),
		Access: models.EventAccess(q.Get("access")),
		Limit:  defaultEventLimit,
	}

	var err error
	if filter.Since, err = parseTimeParam(q, "since"); err != nil {
		return filter, err
	}
	if filter.Until, err = parseTimeParam(q, "until"); err != nil {
		return filter, err
	}
	if !filter.Since.IsZero() && !filter.Until.IsZero() && !filter.Since.Before(filter.Until) {
		return filter, errors.New("since must be before until")
	}

	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil || filter.Limit <= 0 {
			return filter, errors.New("limit must be a positive integer")
		}
		filter.Limit = min(filter.Limit, maxEventLimit)
	}
	if v := q.Get("offset"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil || filter.Offset < 0 {
			return filter, errors.New("offset must be a non-negative integer")
		}
	}
	return filter, nil
}

func parseTimeParam(q url.Values, key string) (time.Time, error) {
	v := q.Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, errors.New(key + " must be an RFC3339 timestamp")
	}
	return t, nil
}
