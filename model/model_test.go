package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertMessage(t *testing.T) {
	c := NewConversation("c1", "client-a")

	replaced := c.UpsertMessage(Message{ID: "m1", Content: "hello"})
	assert.False(t, replaced)
	require.Len(t, c.Messages, 1)

	replaced = c.UpsertMessage(Message{ID: "m2", Content: "world"})
	assert.False(t, replaced)
	require.Len(t, c.Messages, 2)

	// same id replaces in place, order preserved
	replaced = c.UpsertMessage(Message{ID: "m1", Content: "hello (edited)"})
	assert.True(t, replaced)
	require.Len(t, c.Messages, 2)
	assert.Equal(t, "hello (edited)", c.Messages[0].Content)
	assert.Equal(t, "m2", c.Messages[1].ID)
}

func TestTokenOrdering(t *testing.T) {
	tokens := []Token{
		{MessageIdx: 1, Start: 0, End: 5, Value: "later message"},
		{MessageIdx: 0, Start: 10, End: 15, Value: "second"},
		{MessageIdx: 0, Start: 2, End: 6, Value: "short"},
		{MessageIdx: 0, Start: 2, End: 9, Value: "longest match"},
	}

	SortTokens(tokens)

	// messageIdx asc, start asc, end desc (longest match first)
	assert.Equal(t, "longest match", tokens[0].Value)
	assert.Equal(t, "short", tokens[1].Value)
	assert.Equal(t, "second", tokens[2].Value)
	assert.Equal(t, "later message", tokens[3].Value)
}

func TestTokenOrderingStable(t *testing.T) {
	tokens := []Token{
		{MessageIdx: 0, Start: 0, End: 4, Type: TokenTerm, Value: "first-extracted"},
		{MessageIdx: 0, Start: 0, End: 4, Type: TokenKeyword, Value: "second-extracted"},
	}
	SortTokens(tokens)
	assert.Equal(t, "first-extracted", tokens[0].Value)
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-0.5))
	assert.Equal(t, 1.0, ClampConfidence(1.5))
	assert.Equal(t, 0.7, ClampConfidence(0.7))
}

func TestTemplateValid(t *testing.T) {
	tokens := []Token{
		{Type: TokenTopic, State: StateSuggested},
		{Type: TokenTerm, State: StateRejected},
	}

	tmpl := Template{
		Type: "search",
		Slots: []Slot{
			{Role: "topic", TokenType: TokenTopic, Required: true, TokenIndex: 0},
			{Role: "term", TokenType: TokenTerm, Required: false, TokenIndex: -1},
		},
	}
	assert.True(t, tmpl.Valid(tokens))

	// required slot bound to a rejected token invalidates the template
	tmpl.Slots[0].TokenIndex = 1
	assert.False(t, tmpl.Valid(tokens))

	// unbound required slot invalidates the template
	tmpl.Slots[0].TokenIndex = -1
	assert.False(t, tmpl.Valid(tokens))
}

func TestConversationClone(t *testing.T) {
	c := NewConversation("c1", "client-a")
	c.UpsertMessage(Message{ID: "m1", Content: "hi", Metadata: map[string]any{"k": "v"}})
	c.Meta.Properties = map[string]string{"channel_id": "ch-7"}
	c.Context = Context{"env": {"test"}}

	clone := c.Clone()
	clone.Messages[0].Content = "changed"
	clone.Messages[0].Metadata["k"] = "changed"
	clone.Meta.Properties["channel_id"] = "changed"
	clone.Context["env"][0] = "changed"

	assert.Equal(t, "hi", c.Messages[0].Content)
	assert.Equal(t, "v", c.Messages[0].Metadata["k"])
	assert.Equal(t, "ch-7", c.Meta.Properties["channel_id"])
	assert.Equal(t, "test", c.Context["env"][0])
}

func TestAnalysisWireFormat(t *testing.T) {
	date := time.Date(2024, 4, 2, 12, 30, 0, 0, time.UTC)
	a := NewAnalysis("c1", "client-a", date)

	data, err := json.Marshal(a)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "c1", decoded["conversation"])
	assert.NotNil(t, decoded["tokens"], "tokens must serialize as [] not null")
	assert.NotNil(t, decoded["templates"], "templates must serialize as [] not null")
}
