package model

import (
	"time"
)

// Status represents the lifecycle state of a conversation
type Status string

// Conversation lifecycle states
const (
	StatusNew      Status = "New"
	StatusOngoing  Status = "Ongoing"
	StatusComplete Status = "Complete"
)

// Valid reports whether s is a known conversation status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusOngoing, StatusComplete:
		return true
	default:
		return false
	}
}

// MessageOrigin identifies who authored a message
type MessageOrigin string

// Message origins
const (
	OriginUser  MessageOrigin = "User"
	OriginAgent MessageOrigin = "Agent"
	OriginBot   MessageOrigin = "Bot"
)

// Message is a single chat message within a conversation. Message ids are
// unique within their conversation; appending a message whose id already
// exists replaces that message in place.
type Message struct {
	ID       string         `json:"id"`
	Origin   MessageOrigin  `json:"origin"`
	Content  string         `json:"content"`
	Time     time.Time      `json:"time"`
	User     string         `json:"user,omitempty"`
	Votes    int            `json:"votes"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ConversationMeta holds status and free-form properties of a conversation
type ConversationMeta struct {
	Status              Status            `json:"status"`
	Properties          map[string]string `json:"properties,omitempty"`
	Tags                []string          `json:"tags,omitempty"`
	LastMessageAnalyzed int               `json:"lastMessageAnalyzed"`
}

// Context is a free-form key to list-of-string environment attached to a
// conversation (channel info, client hints, ...).
type Context map[string][]string

// Conversation is the root aggregate. Owner is immutable after creation.
// LastModified is assigned by the store on every successful write and is
// monotonically non-decreasing per conversation id; it is the CAS token for
// StoreIfUnmodifiedSince.
type Conversation struct {
	ID           string           `json:"id"`
	Owner        string           `json:"owner"`
	Messages     []Message        `json:"messages"`
	Meta         ConversationMeta `json:"meta"`
	Context      Context          `json:"context,omitempty"`
	LastModified time.Time        `json:"lastModified"`
}

// NewConversation creates an empty conversation for the given owner.
func NewConversation(id, owner string) *Conversation {
	return &Conversation{
		ID:    id,
		Owner: owner,
		Meta: ConversationMeta{
			Status:              StatusNew,
			LastMessageAnalyzed: -1,
		},
	}
}

// MessageIndex returns the index of the message with the given id, or -1.
func (c *Conversation) MessageIndex(messageID string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == messageID {
			return i
		}
	}
	return -1
}

// UpsertMessage inserts msg or, when a message with the same id already
// exists, replaces it in place. Returns true if an existing message was
// replaced.
func (c *Conversation) UpsertMessage(msg Message) bool {
	if idx := c.MessageIndex(msg.ID); idx >= 0 {
		c.Messages[idx] = msg
		return true
	}
	c.Messages = append(c.Messages, msg)
	return false
}

// Clone returns a deep copy of the conversation. The pipeline and engine
// operate on private copies; the store boundary is the only place where
// shared state is touched.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	clone := *c

	clone.Messages = make([]Message, len(c.Messages))
	copy(clone.Messages, c.Messages)
	for i := range clone.Messages {
		if md := c.Messages[i].Metadata; md != nil {
			clone.Messages[i].Metadata = make(map[string]any, len(md))
			for k, v := range md {
				clone.Messages[i].Metadata[k] = v
			}
		}
	}

	if c.Meta.Properties != nil {
		clone.Meta.Properties = make(map[string]string, len(c.Meta.Properties))
		for k, v := range c.Meta.Properties {
			clone.Meta.Properties[k] = v
		}
	}
	if c.Meta.Tags != nil {
		clone.Meta.Tags = append([]string(nil), c.Meta.Tags...)
	}

	if c.Context != nil {
		clone.Context = make(Context, len(c.Context))
		for k, v := range c.Context {
			clone.Context[k] = append([]string(nil), v...)
		}
	}

	return &clone
}
