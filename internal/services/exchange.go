package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"systemsmap-client/internal/models"
	"systemsmap-client/internal/state"
)

// Analyzer submits queries to the backend.
type Analyzer interface {
	Analyze(ctx context.Context, req models.AnalyzeRequest) (*models.AnalyzeResponse, error)
}

// SessionEnsurer hands out the conversation id, creating it on first use.
type SessionEnsurer interface {
	EnsureSession(ctx context.Context) (string, error)
}

// ExchangeCoordinator runs one analyze exchange at a time and replaces the
// conversation history with whatever the server returns.
type ExchangeCoordinator struct {
	sessions SessionEnsurer
	backend  Analyzer
	state    *state.AppState
	logger   *zap.Logger
}

func NewExchangeCoordinator(sessions SessionEnsurer, backend Analyzer, st *state.AppState, logger *zap.Logger) *ExchangeCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExchangeCoordinator{
		sessions: sessions,
		backend:  backend,
		state:    st,
		logger:   logger,
	}
}

// Busy reports whether an exchange is outstanding.
func (c *ExchangeCoordinator) Busy() bool {
	return c.state.Busy().Exchange
}

// Submit analyzes the current input buffer.
func (c *ExchangeCoordinator) Submit(ctx context.Context) ([]models.Message, error) {
	return c.Analyze(ctx, c.state.Input())
}

// Analyze sends query on the current conversation. A blank query or a call
// made while another exchange is outstanding is rejected with no side
// effects. On success the history is replaced and the input cleared; on
// failure the history is left as it was and a notification is raised.
func (c *ExchangeCoordinator) Analyze(ctx context.Context, query string) ([]models.Message, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &ValidationError{Fields: map[string]string{"query": "Query is required"}}
	}

	if !c.state.TryBegin(models.ActivityExchange) {
		return nil, ErrBusy
	}
	defer c.state.End(models.ActivityExchange)

	conversationID, err := c.sessions.EnsureSession(ctx)
	if err != nil {
		// The session manager has already told the user.
		return nil, err
	}

	resp, err := c.backend.Analyze(ctx, models.AnalyzeRequest{
		Query:          query,
		ConversationID: conversationID,
	})
	if err != nil {
		return nil, c.fail(conversationID, err)
	}

	var plot *models.Artifact
	if resp.PlotURL != nil {
		if a, ok := models.ParseArtifact(*resp.PlotURL); ok {
			plot = &a
		}
	}

	c.state.ReplaceConversation(resp.Conversation, resp.Analysis, plot)
	c.logger.Info("exchange completed",
		zap.String("conversation_id", conversationID),
		zap.Int("messages", len(resp.Conversation)),
		zap.Bool("plot", plot != nil))

	return c.state.Conversation(), nil
}

func (c *ExchangeCoordinator) fail(conversationID string, err error) error {
	xerr := &ExchangeError{Err: err}
	c.logger.Warn("exchange failed",
		zap.String("conversation_id", conversationID),
		zap.Error(err))
	c.state.Notify(models.NotifyExchange, xerr.Error())
	return xerr
}

// IsSessionError reports whether err came from starting the conversation.
func IsSessionError(err error) bool {
	var serr *SessionError
	return errors.As(err, &serr)
}
