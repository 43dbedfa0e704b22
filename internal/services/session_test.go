package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"systemsmap-client/internal/models"
	"systemsmap-client/internal/state"
)

func TestEnsureSession_CachesID(t *testing.T) {
	fb := &fakeBackend{startID: "1"}
	st := state.New(nil)
	m := NewSessionManager(fb, st, nil)

	id, err := m.EnsureSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", id)

	id, err = m.EnsureSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", id)

	start, _, _, _ := fb.calls()
	assert.Equal(t, 1, start)
	assert.Equal(t, "1", st.SessionID())
}

func TestEnsureSession_ConcurrentCallersShareOneRequest(t *testing.T) {
	release := make(chan struct{})
	fb := &fakeBackend{startID: "42", startRelease: release}
	m := NewSessionManager(fb, state.New(nil), nil)

	const callers = 8
	var wg sync.WaitGroup
	ids := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = m.EnsureSession(context.Background())
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "42", ids[i])
	}
	start, _, _, _ := fb.calls()
	assert.Equal(t, 1, start)
}

func TestEnsureSession_FailureLeavesNoSession(t *testing.T) {
	fb := &fakeBackend{startErr: errBackendDown}
	st := state.New(nil)
	m := NewSessionManager(fb, st, nil)

	_, err := m.EnsureSession(context.Background())
	require.Error(t, err)
	assert.True(t, IsSessionError(err))
	assert.ErrorIs(t, err, errBackendDown)
	assert.Empty(t, m.Current())
	assert.Empty(t, st.SessionID())
	assert.Equal(t, []models.NotificationKind{models.NotifySession}, notificationKinds(st.Notifications()))

	// The next attempt is a fresh request, not a cached failure.
	fb.mu.Lock()
	fb.startErr = nil
	fb.startID = "2"
	fb.mu.Unlock()

	id, err := m.EnsureSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2", id)
	start, _, _, _ := fb.calls()
	assert.Equal(t, 2, start)
}

func TestEnsureSession_EmptyIDIsFailure(t *testing.T) {
	fb := &fakeBackend{startID: ""}
	m := NewSessionManager(fb, state.New(nil), nil)

	_, err := m.EnsureSession(context.Background())
	assert.ErrorIs(t, err, errEmptyConversationID)
	assert.Empty(t, m.Current())
}
