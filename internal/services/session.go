package services

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"systemsmap-client/internal/models"
	"systemsmap-client/internal/state"
)

// ConversationStarter creates conversations on the backend.
type ConversationStarter interface {
	StartConversation(ctx context.Context) (string, error)
}

var errEmptyConversationID = errors.New("backend returned an empty conversation id")

// SessionManager owns the conversation id for the lifetime of the process.
type SessionManager struct {
	backend ConversationStarter
	state   *state.AppState
	logger  *zap.Logger

	mu    sync.RWMutex
	id    string
	group singleflight.Group
}

func NewSessionManager(backend ConversationStarter, st *state.AppState, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{backend: backend, state: st, logger: logger}
}

// Current returns the cached id, or "" before the first successful start.
func (m *SessionManager) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.id
}

// EnsureSession returns the cached id or starts a conversation. Concurrent
// callers share one in-flight start request and its outcome. On failure
// nothing is stored, one session notification is raised and every waiting
// caller gets the same *SessionError.
func (m *SessionManager) EnsureSession(ctx context.Context) (string, error) {
	if id := m.Current(); id != "" {
		return id, nil
	}

	v, err, _ := m.group.Do("start_conversation", func() (interface{}, error) {
		if id := m.Current(); id != "" {
			return id, nil
		}

		id, err := m.backend.StartConversation(ctx)
		if err == nil && id == "" {
			err = errEmptyConversationID
		}
		if err != nil {
			serr := &SessionError{Err: err}
			m.logger.Warn("failed to start conversation", zap.Error(err))
			if m.state != nil {
				m.state.Notify(models.NotifySession, serr.Error())
			}
			return "", serr
		}

		m.mu.Lock()
		m.id = id
		m.mu.Unlock()

		if m.state != nil {
			m.state.SetSessionID(id)
		}
		m.logger.Info("conversation started", zap.String("conversation_id", id))
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
