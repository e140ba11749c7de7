package store

import (
	"context"
	"sync"
	"time"

	"github.com/c360/convstreams/errors"
	"github.com/c360/convstreams/model"
)

// MemStore is an in-memory Store implementation. It backs tests and the
// embedded single-node mode; the CAS semantics are identical to the KV
// backend.
type MemStore struct {
	mu            sync.Mutex
	conversations map[string]*model.Conversation
	analyses      map[string][]*model.Analysis // per conversation, date ascending
	now           func() time.Time
}

var _ Store = (*MemStore)(nil)

// MemOption configures a MemStore
type MemOption func(*MemStore)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) MemOption {
	return func(s *MemStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemStore creates an empty in-memory store.
func NewMemStore(opts ...MemOption) *MemStore {
	s := &MemStore{
		conversations: make(map[string]*model.Conversation),
		analyses:      make(map[string][]*model.Analysis),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the latest snapshot of a conversation.
func (s *MemStore) Get(_ context.Context, id string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, errors.ErrConversationNotFound
	}
	return conv.Clone(), nil
}

// Append upserts a message and persists unconditionally.
func (s *MemStore) Append(_ context.Context, conv *model.Conversation, msg model.Message) (*model.Conversation, error) {
	if conv == nil || conv.ID == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "MemStore", "Append", "conversation id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.conversations[conv.ID]
	if !ok {
		stored = conv.Clone()
	} else if stored.Owner != conv.Owner {
		return nil, errors.ErrOwnerImmutable
	}

	stored.UpsertMessage(msg)
	stored.LastModified = NextModified(s.now, stored.LastModified)
	s.conversations[conv.ID] = stored
	return stored.Clone(), nil
}

// StoreIfUnmodifiedSince persists conv iff no newer write landed since the
// caller's snapshot.
func (s *MemStore) StoreIfUnmodifiedSince(_ context.Context, conv *model.Conversation, expected time.Time) (*model.Conversation, error) {
	if conv == nil || conv.ID == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "MemStore", "StoreIfUnmodifiedSince", "conversation id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.conversations[conv.ID]
	if !ok {
		return nil, errors.ErrConversationNotFound
	}
	if stored.LastModified.After(expected) {
		return nil, errors.ErrConcurrentModification
	}
	if stored.Owner != conv.Owner {
		return nil, errors.ErrOwnerImmutable
	}

	updated := conv.Clone()
	updated.LastModified = NextModified(s.now, stored.LastModified)
	s.conversations[conv.ID] = updated
	return updated.Clone(), nil
}

func (s *MemStore) mutate(id string, fn func(*model.Conversation) error) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.conversations[id]
	if !ok {
		return nil, errors.ErrConversationNotFound
	}

	if err := fn(stored); err != nil {
		return nil, err
	}

	stored.LastModified = NextModified(s.now, stored.LastModified)
	return stored.Clone(), nil
}

// AdjustVotes applies a vote delta to one message.
func (s *MemStore) AdjustVotes(_ context.Context, id, messageID string, delta int) (*model.Conversation, error) {
	return s.mutate(id, func(conv *model.Conversation) error {
		idx := conv.MessageIndex(messageID)
		if idx < 0 {
			return errors.ErrMessageNotFound
		}
		conv.Messages[idx].Votes += delta
		return nil
	})
}

// UpdateStatus sets the conversation status.
func (s *MemStore) UpdateStatus(_ context.Context, id string, status model.Status) (*model.Conversation, error) {
	if !status.Valid() {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "MemStore", "UpdateStatus", "status validation")
	}
	return s.mutate(id, func(conv *model.Conversation) error {
		conv.Meta.Status = status
		return nil
	})
}

// DeleteMessage removes one message by id.
func (s *MemStore) DeleteMessage(_ context.Context, id, messageID string) (*model.Conversation, error) {
	return s.mutate(id, func(conv *model.Conversation) error {
		idx := conv.MessageIndex(messageID)
		if idx < 0 {
			return errors.ErrMessageNotFound
		}
		conv.Messages = append(conv.Messages[:idx], conv.Messages[idx+1:]...)
		return nil
	})
}

// UpdateField applies a whitelisted field mutation.
func (s *MemStore) UpdateField(_ context.Context, id, field string, value any) (*model.Conversation, error) {
	return s.mutate(id, func(conv *model.Conversation) error {
		return ApplyFieldUpdate(conv, field, value)
	})
}

// PutAnalysis stores an immutable analysis snapshot. A snapshot for the
// same (conversation, date) is overwritten byte-identically at worst, so
// the write is idempotent.
func (s *MemStore) PutAnalysis(_ context.Context, analysis *model.Analysis) error {
	if analysis == nil || analysis.Conversation == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "MemStore", "PutAnalysis", "conversation id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.analyses[analysis.Conversation]
	for i, a := range list {
		if a.Date.Equal(analysis.Date) {
			list[i] = analysis
			return nil
		}
	}

	// keep date-ascending order
	pos := len(list)
	for i, a := range list {
		if a.Date.After(analysis.Date) {
			pos = i
			break
		}
	}
	list = append(list, nil)
	copy(list[pos+1:], list[pos:])
	list[pos] = analysis
	s.analyses[analysis.Conversation] = list
	return nil
}

// GetAnalysis returns the snapshot for an exact (conversation, date) pair.
func (s *MemStore) GetAnalysis(_ context.Context, conversationID string, date time.Time) (*model.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.analyses[conversationID] {
		if a.Date.Equal(date) {
			return a, nil
		}
	}
	return nil, errors.ErrAnalysisNotFound
}

// LatestAnalysis returns the newest snapshot for a conversation.
func (s *MemStore) LatestAnalysis(_ context.Context, conversationID string) (*model.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.analyses[conversationID]
	if len(list) == 0 {
		return nil, errors.ErrAnalysisNotFound
	}
	return list[len(list)-1], nil
}
