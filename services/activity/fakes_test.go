package activity

import (
	"context"
	"errors"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/upb/activity-pipeline/models"
	"go.uber.org/zap/zapcore"
)

// MockSettingsProvider is a mock implementation of SettingsProvider
type MockSettingsProvider struct {
	mock.Mock
}

func (m *MockSettingsProvider) GetSettings(ctx context.Context, identity *models.ActionUser, id string) (*models.Settings, error) {
	args := m.Called(ctx, identity, id)
	if s := args.Get(0); s != nil {
		return s.(*models.Settings), args.Error(1)
	}
	return nil, args.Error(1)
}

// staticSettings always returns the same settings
type staticSettings struct {
	settings *models.Settings
	err      error
}

func (s *staticSettings) GetSettings(context.Context, *models.ActionUser, string) (*models.Settings, error) {
	return s.settings, s.err
}

func enterprise(listeners ...string) *staticSettings {
	return &staticSettings{settings: &models.Settings{
		ID:                     models.SettingsEntityID,
		ValidEnterpriseEdition: true,
		ActivityListenersUsers: listeners,
	}}
}

type auditRecord struct {
	Level   zapcore.Level
	User    *models.ActionUser
	Message string
	Meta    map[string]any
}

type recordingAuditLogger struct {
	mu      sync.Mutex
	records []auditRecord
	err     error
}

func (l *recordingAuditLogger) Log(level zapcore.Level, user *models.ActionUser, message string, meta map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.records = append(l.records, auditRecord{Level: level, User: user, Message: message, Meta: meta})
	return nil
}

func (l *recordingAuditLogger) all() []auditRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]auditRecord(nil), l.records...)
}

type recordingStore struct {
	mu     sync.Mutex
	events []*models.ActivityStreamEvent
	// failures is the number of upcoming appends that fail
	failures int
}

var errStoreDown = errors.New("stream unavailable")

func (s *recordingStore) Append(_ context.Context, event *models.ActivityStreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errStoreDown
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingStore) all() []*models.ActivityStreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.ActivityStreamEvent(nil), s.events...)
}

func (s *recordingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func queryUser(id string) models.ActionUser {
	return models.ActionUser{
		ID:     id,
		Name:   id,
		Origin: models.UserOrigin{Socket: models.SocketQuery, IP: "10.0.0.1"},
	}
}

func newAction(t models.EventType, s models.EventScope, access models.EventAccess, data map[string]any) *models.UserAction {
	return &models.UserAction{
		EventType:   t,
		EventScope:  s,
		EventAccess: access,
		User:        queryUser("user-1"),
		ContextData: data,
	}
}
