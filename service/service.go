package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360/convstreams/dispatch"
	"github.com/c360/convstreams/errors"
	"github.com/c360/convstreams/model"
	"github.com/c360/convstreams/store"
)

// ConversationService orchestrates conversation writes and analysis runs.
type ConversationService struct {
	store      store.Store
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// ServiceOption configures a ConversationService
type ServiceOption func(*ConversationService)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *ConversationService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *ConversationService) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates the conversation service.
func New(st store.Store, d *dispatch.Dispatcher, opts ...ServiceOption) *ConversationService {
	s := &ConversationService{
		store:      st,
		dispatcher: d,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// checkOwner loads a conversation and verifies the client owns it.
func (s *ConversationService) checkOwner(ctx context.Context, client, id string) (*model.Conversation, error) {
	conv, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.Owner != client {
		return nil, errors.ErrNotOwner
	}
	return conv, nil
}

// GetConversation returns the latest snapshot of an owned conversation.
func (s *ConversationService) GetConversation(ctx context.Context, client, id string) (*model.Conversation, error) {
	return s.checkOwner(ctx, client, id)
}

// GetAnalysis returns the newest committed analysis for an owned
// conversation.
func (s *ConversationService) GetAnalysis(ctx context.Context, client, id string) (*model.Analysis, error) {
	if _, err := s.checkOwner(ctx, client, id); err != nil {
		return nil, err
	}
	return s.store.LatestAnalysis(ctx, id)
}

// AppendResult is the outcome of AppendMessage. Analysis is nil when the
// run was dispatched asynchronously.
type AppendResult struct {
	Conversation *model.Conversation
	Analysis     *model.Analysis
	Async        bool
}

// AppendMessage upserts a message into the conversation, creating it when
// absent, and triggers analysis. With a callback URI the analysis runs
// asynchronously and is delivered to the URI; otherwise it runs inline and
// the committed analysis is returned.
func (s *ConversationService) AppendMessage(ctx context.Context, client, id string, msg model.Message, callbackURI string) (*AppendResult, error) {
	conv, err := s.store.Get(ctx, id)
	switch {
	case err == nil:
		if conv.Owner != client {
			return nil, errors.ErrNotOwner
		}
	case errors.IsNotFound(err):
		conv = model.NewConversation(id, client)
	default:
		return nil, err
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Time.IsZero() {
		msg.Time = s.now()
	}
	if msg.Origin == "" {
		msg.Origin = model.OriginUser
	}

	stored, err := s.store.Append(ctx, conv, msg)
	if err != nil {
		return nil, err
	}

	task := dispatch.Task{
		ConversationID: stored.ID,
		Client:         client,
		CallbackURI:    callbackURI,
		Expected:       stored.LastModified,
	}

	if callbackURI != "" {
		if err := s.dispatcher.Submit(task); err != nil {
			return nil, err
		}
		return &AppendResult{Conversation: stored, Async: true}, nil
	}

	analysis, err := s.dispatcher.ProcessSync(ctx, task)
	if err != nil {
		if errors.IsConcurrentModification(err) {
			// a newer write superseded this run; hand back the freshest state
			return s.freshResult(ctx, client, stored.ID)
		}
		return nil, err
	}
	return &AppendResult{Conversation: stored, Analysis: analysis}, nil
}

// freshResult re-reads conversation and latest analysis after a lost
// analysis race.
func (s *ConversationService) freshResult(ctx context.Context, client, id string) (*AppendResult, error) {
	conv, err := s.checkOwner(ctx, client, id)
	if err != nil {
		return nil, err
	}
	analysis, err := s.store.LatestAnalysis(ctx, id)
	if err != nil && !errors.IsNotFound(err) {
		return nil, err
	}
	return &AppendResult{Conversation: conv, Analysis: analysis}, nil
}

// reanalyze schedules a background analysis after a partial mutation.
// Submission failures are logged, not surfaced: the mutation itself
// already committed.
func (s *ConversationService) reanalyze(client string, conv *model.Conversation) {
	err := s.dispatcher.Submit(dispatch.Task{
		ConversationID: conv.ID,
		Client:         client,
		Expected:       conv.LastModified,
	})
	if err != nil {
		s.logger.Warn("re-analysis submission failed",
			"conversation", conv.ID, "error", err)
	}
}

// AdjustVotes applies a vote delta to a message and schedules re-analysis.
func (s *ConversationService) AdjustVotes(ctx context.Context, client, id, messageID string, delta int) (*model.Conversation, error) {
	if _, err := s.checkOwner(ctx, client, id); err != nil {
		return nil, err
	}
	conv, err := s.store.AdjustVotes(ctx, id, messageID, delta)
	if err != nil {
		return nil, err
	}
	s.reanalyze(client, conv)
	return conv, nil
}

// UpdateStatus sets the conversation status and schedules re-analysis.
func (s *ConversationService) UpdateStatus(ctx context.Context, client, id string, status model.Status) (*model.Conversation, error) {
	if _, err := s.checkOwner(ctx, client, id); err != nil {
		return nil, err
	}
	conv, err := s.store.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.reanalyze(client, conv)
	return conv, nil
}

// DeleteMessage removes a message and schedules re-analysis.
func (s *ConversationService) DeleteMessage(ctx context.Context, client, id, messageID string) (*model.Conversation, error) {
	if _, err := s.checkOwner(ctx, client, id); err != nil {
		return nil, err
	}
	conv, err := s.store.DeleteMessage(ctx, id, messageID)
	if err != nil {
		return nil, err
	}
	s.reanalyze(client, conv)
	return conv, nil
}

// UpdateField applies a whitelisted field mutation and schedules
// re-analysis.
func (s *ConversationService) UpdateField(ctx context.Context, client, id, field string, value any) (*model.Conversation, error) {
	if _, err := s.checkOwner(ctx, client, id); err != nil {
		return nil, err
	}
	conv, err := s.store.UpdateField(ctx, id, field, value)
	if err != nil {
		return nil, err
	}
	s.reanalyze(client, conv)
	return conv, nil
}
