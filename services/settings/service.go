package settings

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/upb/activity-pipeline/models"
	"github.com/upb/activity-pipeline/repositories"
	"github.com/upb/activity-pipeline/services"
	"go.uber.org/zap"
)

// UpdateActivityInput carries the activity fields an administrator may change.
// UpdatedAt, when set, must match the stored value.
type UpdateActivityInput struct {
	ValidEnterpriseEdition *bool     `json:"valid_enterprise_edition"`
	ActivityListenersUsers []string  `json:"activity_listeners_users" validate:"omitempty,dive,required,max=255"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Service reads and updates platform settings through a cache
type Service struct {
	repo   repositories.SettingsRepository
	cache  *Cache
	logger *zap.Logger
}

// NewService creates a new settings Service
func NewService(repo repositories.SettingsRepository, cache *Cache, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

// GetSettings returns the settings entity id as seen by identity
func (s *Service) GetSettings(ctx context.Context, identity *models.ActionUser, id string) (*models.Settings, error) {
	if identity == nil {
		return nil, services.ErrUnauthorized
	}

	if cached := s.cache.Get(id); cached != nil {
		return cached, nil
	}

	gen := s.cache.Generation()
	settings, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrSettingsNotFound.WithDetail("id", id)
		}
		return nil, services.WrapInternal("failed to load settings", err)
	}

	// an update that ran during the load invalidated it; keep the result out of the cache
	s.cache.SetIfCurrent(settings, gen)
	s.logger.Debug("settings loaded from database",
		zap.String("id", id),
		zap.String("identity", identity.ID),
	)
	return settings, nil
}

// UpdateActivity applies input to the settings entity and drops the cached copy
func (s *Service) UpdateActivity(ctx context.Context, actor *models.ActionUser, id string, input UpdateActivityInput) (*models.Settings, error) {
	if actor == nil {
		return nil, services.ErrUnauthorized
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrSettingsNotFound.WithDetail("id", id)
		}
		return nil, services.WrapInternal("failed to load settings", err)
	}

	updated := *current
	if input.ValidEnterpriseEdition != nil {
		updated.ValidEnterpriseEdition = *input.ValidEnterpriseEdition
	}
	if input.ActivityListenersUsers != nil {
		users := slices.Clone(input.ActivityListenersUsers)
		slices.Sort(users)
		updated.ActivityListenersUsers = slices.Compact(users)
	}
	if !input.UpdatedAt.IsZero() {
		updated.UpdatedAt = input.UpdatedAt
	}

	// the cached copy is stale as soon as the write starts
	s.cache.Invalidate(id)

	if err := s.repo.Update(ctx, &updated); err != nil {
		switch {
		case errors.Is(err, repositories.ErrConflict):
			return nil, services.ErrConcurrentUpdate.WithDetail("id", id)
		case errors.Is(err, repositories.ErrNotFound):
			return nil, services.ErrSettingsNotFound.WithDetail("id", id)
		}
		return nil, services.WrapInternal("failed to update settings", err)
	}
	// a read that raced the write may have cached the old row
	s.cache.Invalidate(id)

	s.logger.Info("activity settings updated",
		zap.String("id", id),
		zap.String("actor", actor.ID),
		zap.Bool("valid_enterprise_edition", updated.ValidEnterpriseEdition),
		zap.Strings("activity_listeners_users", updated.ActivityListenersUsers),
	)
	return &updated, nil
}

// CacheStats exposes the settings cache counters
func (s *Service) CacheStats() CacheStats {
	return s.cache.Stats()
}
