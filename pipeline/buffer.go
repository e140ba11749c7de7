package pipeline

import (
	"github.com/c360/convstreams/model"
)

// Buffer carries the state of one analysis run: a private conversation
// snapshot, the analysis under construction, and the index of the first
// message not covered by a previous run. Stages may use the offset to skip
// already-analyzed messages but are free to re-read the whole conversation.
type Buffer struct {
	Conversation *model.Conversation
	Analysis     *model.Analysis

	// Offset is the index of the first unanalyzed message.
	Offset int

	// Config holds per-run stage configuration keyed by stage key.
	Config map[string]map[string]any
}

// NewBuffer snapshots the conversation and prepares an empty analysis
// dated at the snapshot's LastModified, so the (conversation, date) pair
// identifies exactly the state the tokens were computed from.
func NewBuffer(conv *model.Conversation, client string) *Buffer {
	snapshot := conv.Clone()
	offset := snapshot.Meta.LastMessageAnalyzed + 1
	if offset < 0 || offset > len(snapshot.Messages) {
		offset = 0
	}
	return &Buffer{
		Conversation: snapshot,
		Analysis:     model.NewAnalysis(snapshot.ID, client, snapshot.LastModified),
		Offset:       offset,
		Config:       make(map[string]map[string]any),
	}
}

// StageConfig returns the configuration map for one stage, never nil.
func (b *Buffer) StageConfig(key string) map[string]any {
	if cfg, ok := b.Config[key]; ok {
		return cfg
	}
	return map[string]any{}
}

// AddToken appends a token to the analysis under construction. Ordering is
// not maintained here; the pipeline sorts once after all stages ran.
func (b *Buffer) AddToken(t model.Token) {
	b.Analysis.Tokens = append(b.Analysis.Tokens, t)
}

// Tokens returns the tokens collected so far.
func (b *Buffer) Tokens() []model.Token {
	return b.Analysis.Tokens
}
