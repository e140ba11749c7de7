package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/c360/convstreams/errors"
	"github.com/c360/convstreams/model"
)

// ConversationStore is the storage contract for the Conversation aggregate.
type ConversationStore interface {
	// Get returns the latest durable snapshot, or ErrConversationNotFound.
	Get(ctx context.Context, id string) (*model.Conversation, error)

	// Append upserts msg into the conversation's message list (replace in
	// place when the id exists), bumps LastModified and persists
	// unconditionally. Creates the conversation when absent.
	Append(ctx context.Context, conv *model.Conversation, msg model.Message) (*model.Conversation, error)

	// StoreIfUnmodifiedSince persists conv iff the stored LastModified is
	// not strictly newer than expected. A lost race reports
	// ErrConcurrentModification and leaves storage untouched.
	StoreIfUnmodifiedSince(ctx context.Context, conv *model.Conversation, expected time.Time) (*model.Conversation, error)

	// AdjustVotes applies a vote delta to one message. Bumps LastModified.
	AdjustVotes(ctx context.Context, id, messageID string, delta int) (*model.Conversation, error)

	// UpdateStatus sets the conversation status. Bumps LastModified.
	UpdateStatus(ctx context.Context, id string, status model.Status) (*model.Conversation, error)

	// DeleteMessage removes one message by id. Bumps LastModified.
	DeleteMessage(ctx context.Context, id, messageID string) (*model.Conversation, error)

	// UpdateField applies a targeted field mutation (see ApplyFieldUpdate
	// for the supported paths). Bumps LastModified.
	UpdateField(ctx context.Context, id, field string, value any) (*model.Conversation, error)
}

// AnalysisStore persists immutable analysis snapshots keyed by
// (conversation id, date).
type AnalysisStore interface {
	PutAnalysis(ctx context.Context, analysis *model.Analysis) error
	GetAnalysis(ctx context.Context, conversationID string, date time.Time) (*model.Analysis, error)
	// LatestAnalysis returns the snapshot with the newest date, or
	// ErrAnalysisNotFound.
	LatestAnalysis(ctx context.Context, conversationID string) (*model.Analysis, error)
}

// Store combines conversation and analysis persistence; both backends
// implement it.
type Store interface {
	ConversationStore
	AnalysisStore
}

// ApplyFieldUpdate mutates a whitelisted conversation field in place.
// Supported paths:
//
//	meta.status            value must be a valid model.Status string
//	meta.property.<name>   free-form string property
//	context.<key>          string or []string context entry
func ApplyFieldUpdate(conv *model.Conversation, field string, value any) error {
	switch {
	case field == "meta.status":
		s, ok := value.(string)
		if !ok || !model.Status(s).Valid() {
			return errors.WrapInvalid(
				fmt.Errorf("%q is not a valid status", value),
				"store", "ApplyFieldUpdate", "status validation")
		}
		conv.Meta.Status = model.Status(s)

	case strings.HasPrefix(field, "meta.property."):
		name := strings.TrimPrefix(field, "meta.property.")
		if name == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "store", "ApplyFieldUpdate", "empty property name")
		}
		s, ok := value.(string)
		if !ok {
			return errors.WrapInvalid(
				fmt.Errorf("property %q requires a string value", name),
				"store", "ApplyFieldUpdate", "property validation")
		}
		if conv.Meta.Properties == nil {
			conv.Meta.Properties = make(map[string]string)
		}
		conv.Meta.Properties[name] = s

	case strings.HasPrefix(field, "context."):
		key := strings.TrimPrefix(field, "context.")
		if key == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "store", "ApplyFieldUpdate", "empty context key")
		}
		if conv.Context == nil {
			conv.Context = make(model.Context)
		}
		switch v := value.(type) {
		case string:
			conv.Context[key] = []string{v}
		case []string:
			conv.Context[key] = v
		default:
			return errors.WrapInvalid(
				fmt.Errorf("context key %q requires string or []string", key),
				"store", "ApplyFieldUpdate", "context validation")
		}

	default:
		return errors.WrapInvalid(
			fmt.Errorf("field %q is not updatable", field),
			"store", "ApplyFieldUpdate", "field whitelist")
	}
	return nil
}

// NextModified returns a server-assigned timestamp that is strictly after
// prev, keeping LastModified monotonically non-decreasing per conversation
// even on coarse clocks.
func NextModified(now func() time.Time, prev time.Time) time.Time {
	t := now()
	if !t.After(prev) {
		t = prev.Add(time.Nanosecond)
	}
	return t
}
