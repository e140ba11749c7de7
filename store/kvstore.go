package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/convstreams/errors"
	"github.com/c360/convstreams/model"
	"github.com/c360/convstreams/natsclient"
	"github.com/c360/convstreams/pkg/retry"
)

const (
	conversationBucket = "convstreams_conversations"
	analysisBucket     = "convstreams_analyses"
)

// KVStore persists conversations and analyses as JSON documents in NATS
// JetStream KV buckets. Conversation writes go through KV revision CAS;
// unconditional operations (Append and the partial mutations) retry the
// read-modify-write loop on revision conflicts, while
// StoreIfUnmodifiedSince additionally checks the lastModified token and
// never retries a lost race.
type KVStore struct {
	conversations *natsclient.KVStore
	analyses      *natsclient.KVStore
	now           func() time.Time
}

var _ Store = (*KVStore)(nil)

// casRetry bounds the read-modify-write loop for unconditional mutations.
var casRetry = retry.Config{
	MaxAttempts:  10,
	InitialDelay: 10 * time.Millisecond,
	MaxDelay:     time.Second,
	Multiplier:   2.0,
	AddJitter:    true,
}

// NewKVStore creates the KV-backed store, creating the buckets when absent.
func NewKVStore(ctx context.Context, client *natsclient.Client) (*KVStore, error) {
	convBucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      conversationBucket,
		Description: "Conversation aggregates with lastModified CAS",
		History:     5,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "NewKVStore", "create conversation bucket")
	}

	analysisB, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      analysisBucket,
		Description: "Immutable analysis snapshots keyed by conversation and date",
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "NewKVStore", "create analysis bucket")
	}

	return &KVStore{
		conversations: client.NewKVStore(convBucket),
		analyses:      client.NewKVStore(analysisB),
		now:           time.Now,
	}, nil
}

func (s *KVStore) getEntry(ctx context.Context, id string) (*model.Conversation, uint64, error) {
	entry, err := s.conversations.Get(ctx, id)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, 0, errors.ErrConversationNotFound
		}
		return nil, 0, errors.WrapTransient(err, "KVStore", "Get", "kv get")
	}

	var conv model.Conversation
	if err := json.Unmarshal(entry.Value, &conv); err != nil {
		return nil, 0, errors.WrapFatal(err, "KVStore", "Get", "unmarshal conversation")
	}
	return &conv, entry.Revision, nil
}

// Get returns the latest snapshot of a conversation.
func (s *KVStore) Get(ctx context.Context, id string) (*model.Conversation, error) {
	if id == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "KVStore", "Get", "conversation id required")
	}
	conv, _, err := s.getEntry(ctx, id)
	return conv, err
}

func (s *KVStore) put(ctx context.Context, conv *model.Conversation, revision uint64, create bool) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return errors.WrapFatal(err, "KVStore", "put", "marshal conversation")
	}

	if create {
		_, err = s.conversations.Create(ctx, conv.ID, data)
	} else {
		_, err = s.conversations.Update(ctx, conv.ID, data, revision)
	}
	return err
}

// Append upserts a message and persists unconditionally, retrying revision
// conflicts against the freshest stored version.
func (s *KVStore) Append(ctx context.Context, conv *model.Conversation, msg model.Message) (*model.Conversation, error) {
	if conv == nil || conv.ID == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "KVStore", "Append", "conversation id required")
	}

	var result *model.Conversation
	err := retry.Do(ctx, casRetry, func() error {
		stored, revision, err := s.getEntry(ctx, conv.ID)
		create := false
		switch {
		case err == nil:
			if stored.Owner != conv.Owner {
				return retry.NonRetryable(errors.ErrOwnerImmutable)
			}
		case errors.IsNotFound(err):
			stored = conv.Clone()
			create = true
		default:
			return err
		}

		stored.UpsertMessage(msg)
		stored.LastModified = NextModified(s.now, stored.LastModified)

		if err := s.put(ctx, stored, revision, create); err != nil {
			if natsclient.IsKVConflictError(err) {
				return err // raced another writer, reload and retry
			}
			return retry.NonRetryable(err)
		}
		result = stored
		return nil
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "Append", "kv upsert")
	}
	return result, nil
}

// StoreIfUnmodifiedSince persists conv iff the stored lastModified is not
// strictly newer than expected. Lost races are reported, never retried.
func (s *KVStore) StoreIfUnmodifiedSince(ctx context.Context, conv *model.Conversation, expected time.Time) (*model.Conversation, error) {
	if conv == nil || conv.ID == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "KVStore", "StoreIfUnmodifiedSince", "conversation id required")
	}

	stored, revision, err := s.getEntry(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if stored.LastModified.After(expected) {
		return nil, errors.ErrConcurrentModification
	}
	if stored.Owner != conv.Owner {
		return nil, errors.ErrOwnerImmutable
	}

	updated := conv.Clone()
	updated.LastModified = NextModified(s.now, stored.LastModified)

	if err := s.put(ctx, updated, revision, false); err != nil {
		if natsclient.IsKVConflictError(err) {
			// a writer slipped in between our read and the CAS write;
			// by definition the snapshot is stale now
			return nil, errors.ErrConcurrentModification
		}
		return nil, errors.WrapTransient(err, "KVStore", "StoreIfUnmodifiedSince", "kv update")
	}
	return updated, nil
}

func (s *KVStore) mutate(ctx context.Context, id string, fn func(*model.Conversation) error) (*model.Conversation, error) {
	var result *model.Conversation
	err := retry.Do(ctx, casRetry, func() error {
		stored, revision, err := s.getEntry(ctx, id)
		if err != nil {
			if errors.IsNotFound(err) {
				return retry.NonRetryable(err)
			}
			return err
		}

		if err := fn(stored); err != nil {
			return retry.NonRetryable(err)
		}
		stored.LastModified = NextModified(s.now, stored.LastModified)

		if err := s.put(ctx, stored, revision, false); err != nil {
			if natsclient.IsKVConflictError(err) {
				return err
			}
			return retry.NonRetryable(err)
		}
		result = stored
		return nil
	})
	if err != nil {
		// unwrap the retry envelope for expected sentinels
		switch {
		case stderrors.Is(err, errors.ErrConversationNotFound):
			return nil, errors.ErrConversationNotFound
		case stderrors.Is(err, errors.ErrMessageNotFound):
			return nil, errors.ErrMessageNotFound
		}
		return nil, err
	}
	return result, nil
}

// AdjustVotes applies a vote delta to one message.
func (s *KVStore) AdjustVotes(ctx context.Context, id, messageID string, delta int) (*model.Conversation, error) {
	return s.mutate(ctx, id, func(conv *model.Conversation) error {
		idx := conv.MessageIndex(messageID)
		if idx < 0 {
			return errors.ErrMessageNotFound
		}
		conv.Messages[idx].Votes += delta
		return nil
	})
}

// UpdateStatus sets the conversation status.
func (s *KVStore) UpdateStatus(ctx context.Context, id string, status model.Status) (*model.Conversation, error) {
	if !status.Valid() {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "KVStore", "UpdateStatus", "status validation")
	}
	return s.mutate(ctx, id, func(conv *model.Conversation) error {
		conv.Meta.Status = status
		return nil
	})
}

// DeleteMessage removes one message by id.
func (s *KVStore) DeleteMessage(ctx context.Context, id, messageID string) (*model.Conversation, error) {
	return s.mutate(ctx, id, func(conv *model.Conversation) error {
		idx := conv.MessageIndex(messageID)
		if idx < 0 {
			return errors.ErrMessageNotFound
		}
		conv.Messages = append(conv.Messages[:idx], conv.Messages[idx+1:]...)
		return nil
	})
}

// UpdateField applies a whitelisted field mutation.
func (s *KVStore) UpdateField(ctx context.Context, id, field string, value any) (*model.Conversation, error) {
	return s.mutate(ctx, id, func(conv *model.Conversation) error {
		return ApplyFieldUpdate(conv, field, value)
	})
}

// analysisKey encodes (conversation, date) into a KV key. Nanosecond
// precision keeps distinct snapshots distinct.
func analysisKey(conversationID string, date time.Time) string {
	return fmt.Sprintf("%s.%d", conversationID, date.UnixNano())
}

// PutAnalysis stores an immutable analysis snapshot. Writing the same
// (conversation, date) pair twice produces an identical document, so the
// last-writer-wins Put is safe.
func (s *KVStore) PutAnalysis(ctx context.Context, analysis *model.Analysis) error {
	if analysis == nil || analysis.Conversation == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "KVStore", "PutAnalysis", "conversation id required")
	}

	data, err := json.Marshal(analysis)
	if err != nil {
		return errors.WrapFatal(err, "KVStore", "PutAnalysis", "marshal analysis")
	}

	if _, err := s.analyses.Put(ctx, analysisKey(analysis.Conversation, analysis.Date), data); err != nil {
		return errors.WrapTransient(err, "KVStore", "PutAnalysis", "kv put")
	}
	return nil
}

// GetAnalysis returns the snapshot for an exact (conversation, date) pair.
func (s *KVStore) GetAnalysis(ctx context.Context, conversationID string, date time.Time) (*model.Analysis, error) {
	entry, err := s.analyses.Get(ctx, analysisKey(conversationID, date))
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, errors.ErrAnalysisNotFound
		}
		return nil, errors.WrapTransient(err, "KVStore", "GetAnalysis", "kv get")
	}

	var analysis model.Analysis
	if err := json.Unmarshal(entry.Value, &analysis); err != nil {
		return nil, errors.WrapFatal(err, "KVStore", "GetAnalysis", "unmarshal analysis")
	}
	return &analysis, nil
}

// LatestAnalysis scans the conversation's snapshot keys for the newest date.
func (s *KVStore) LatestAnalysis(ctx context.Context, conversationID string) (*model.Analysis, error) {
	keys, err := s.analyses.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "LatestAnalysis", "kv keys")
	}

	prefix := conversationID + "."
	var latest int64 = -1
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		nanos, err := strconv.ParseInt(strings.TrimPrefix(key, prefix), 10, 64)
		if err != nil {
			continue
		}
		if nanos > latest {
			latest = nanos
		}
	}
	if latest < 0 {
		return nil, errors.ErrAnalysisNotFound
	}
	return s.GetAnalysis(ctx, conversationID, time.Unix(0, latest))
}
