package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"systemsmap-client/internal/models"
	"systemsmap-client/internal/state"
)

func newExchange(fb *fakeBackend) (*ExchangeCoordinator, *state.AppState) {
	st := state.New(nil)
	sessions := NewSessionManager(fb, st, nil)
	return NewExchangeCoordinator(sessions, fb, st, nil), st
}

func TestAnalyze_ReplacesHistoryAndClearsInput(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleUser, Content: "Why do delays cascade?"},
		{Role: models.RoleAssistant, Content: "Feedback between queues and staffing."},
	}
	fb := &fakeBackend{
		startID:     "7",
		analyzeResp: &models.AnalyzeResponse{Analysis: "Feedback between queues and staffing.", Conversation: history},
	}
	c, st := newExchange(fb)
	st.SetInput("Why do delays cascade?")

	got, err := c.Submit(context.Background())
	require.NoError(t, err)

	if diff := cmp.Diff(history, got); diff != "" {
		t.Errorf("returned history mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(history, st.Conversation()); diff != "" {
		t.Errorf("stored history mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, st.Input())
	assert.False(t, c.Busy())
	assert.Nil(t, st.Plot())

	require.Len(t, fb.analyzeReqs, 1)
	assert.Equal(t, models.AnalyzeRequest{Query: "Why do delays cascade?", ConversationID: "7"}, fb.analyzeReqs[0])
}

func TestAnalyze_ServerHistoryIsAuthoritative(t *testing.T) {
	fb := &fakeBackend{startID: "7"}
	c, st := newExchange(fb)

	fb.analyzeResp = &models.AnalyzeResponse{Conversation: []models.Message{
		{Role: models.RoleUser, Content: "one"},
		{Role: models.RoleAssistant, Content: "two"},
	}}
	_, err := c.Analyze(context.Background(), "one")
	require.NoError(t, err)

	// The server may return a shorter history; it replaces what we had.
	short := []models.Message{{Role: models.RoleAssistant, Content: "reset"}}
	fb.analyzeResp = &models.AnalyzeResponse{Conversation: short}
	_, err = c.Analyze(context.Background(), "again")
	require.NoError(t, err)

	assert.Equal(t, short, st.Conversation())
	start, analyze, _, _ := fb.calls()
	assert.Equal(t, 1, start)
	assert.Equal(t, 2, analyze)
}

func TestAnalyze_FailureKeepsHistory(t *testing.T) {
	before := []models.Message{{Role: models.RoleUser, Content: "earlier"}}
	fb := &fakeBackend{startID: "7", analyzeErr: errBackendDown}
	c, st := newExchange(fb)
	st.ReplaceConversation(before, "", nil)
	st.SetInput("next question")

	_, err := c.Submit(context.Background())
	require.Error(t, err)

	var xerr *ExchangeError
	require.True(t, errors.As(err, &xerr))
	assert.ErrorIs(t, err, errBackendDown)
	assert.Equal(t, before, st.Conversation())
	assert.Equal(t, "next question", st.Input())
	assert.False(t, c.Busy())
	assert.Equal(t, []models.NotificationKind{models.NotifyExchange}, notificationKinds(st.Notifications()))
}

func TestAnalyze_BlankQueryRejected(t *testing.T) {
	for _, q := range []string{"", "   ", "\n\t"} {
		fb := &fakeBackend{startID: "7"}
		c, st := newExchange(fb)

		_, err := c.Analyze(context.Background(), q)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), "query %q", q)

		start, analyze, _, _ := fb.calls()
		assert.Zero(t, start)
		assert.Zero(t, analyze)
		assert.Empty(t, st.Notifications())
	}
}

func TestAnalyze_SecondCallWhileBusyIsRejected(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	fb := &fakeBackend{
		startID:        "7",
		analyzeResp:    &models.AnalyzeResponse{Conversation: []models.Message{{Role: models.RoleAssistant, Content: "ok"}}},
		analyzeEntered: entered,
		analyzeRelease: release,
	}
	c, st := newExchange(fb)

	done := make(chan error, 1)
	go func() {
		_, err := c.Analyze(context.Background(), "first")
		done <- err
	}()
	<-entered
	assert.True(t, c.Busy())

	_, err := c.Analyze(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Empty(t, st.Notifications())

	close(release)
	require.NoError(t, <-done)

	_, analyze, _, _ := fb.calls()
	assert.Equal(t, 1, analyze)
	assert.False(t, c.Busy())
}

func TestAnalyze_SessionFailureSkipsAnalyze(t *testing.T) {
	fb := &fakeBackend{startErr: errBackendDown}
	c, st := newExchange(fb)

	_, err := c.Analyze(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, IsSessionError(err))

	_, analyze, _, _ := fb.calls()
	assert.Zero(t, analyze)
	assert.Empty(t, st.Conversation())
	// One notification from the session manager, none from the exchange.
	assert.Equal(t, []models.NotificationKind{models.NotifySession}, notificationKinds(st.Notifications()))
	assert.False(t, c.Busy())
}

func TestAnalyze_StoresPlot(t *testing.T) {
	plot := "https://backend.example/plots/loop.png"
	fb := &fakeBackend{
		startID: "7",
		analyzeResp: &models.AnalyzeResponse{
			Conversation: []models.Message{{Role: models.RoleAssistant, Content: "see plot"}},
			PlotURL:      &plot,
		},
	}
	c, st := newExchange(fb)

	_, err := c.Analyze(context.Background(), "plot it")
	require.NoError(t, err)

	got := st.Plot()
	require.NotNil(t, got)
	assert.Equal(t, models.ArtifactRemoteURL, got.Kind)
	assert.Equal(t, plot, got.URL)
}
