package stages

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/convstreams/model"
	"github.com/c360/convstreams/pipeline"
)

func bufferWithMessages(msgs ...model.Message) *pipeline.Buffer {
	conv := model.NewConversation("conv-1", "client-a")
	conv.Messages = msgs
	return pipeline.NewBuffer(conv, "client-a")
}

func userMessage(id, content string) model.Message {
	return model.Message{
		ID:      id,
		Origin:  model.OriginUser,
		Content: content,
		Time:    time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
	}
}

func TestKeywordExtraction(t *testing.T) {
	buf := bufferWithMessages(
		userMessage("m1", "My laptop keeps crashing"),
		userMessage("m2", "The laptop worked fine last week"),
	)

	require.NoError(t, NewKeyword().Process(context.Background(), buf))

	byValue := map[string][]model.Token{}
	for _, tok := range buf.Tokens() {
		assert.Equal(t, model.TokenKeyword, tok.Type)
		assert.Equal(t, model.StateSuggested, tok.State)
		assert.Equal(t, model.OriginSystem, tok.Origin)
		byValue[tok.Value.(string)] = append(byValue[tok.Value.(string)], tok)
	}

	require.Len(t, byValue["laptop"], 2, "each occurrence gets its own token")
	assert.Greater(t, byValue["laptop"][0].Confidence, byValue["crashing"][0].Confidence,
		"repeated keywords score higher")
	assert.NotContains(t, byValue, "the", "stopwords are filtered")

	// offsets address the original content
	first := byValue["laptop"][0]
	msg := buf.Conversation.Messages[first.MessageIdx]
	assert.Equal(t, "laptop", msg.Content[first.Start:first.End])
}

func TestKeywordSkipsBotMessages(t *testing.T) {
	bot := userMessage("m1", "automated reply about laptops")
	bot.Origin = model.OriginBot
	buf := bufferWithMessages(bot)

	require.NoError(t, NewKeyword().Process(context.Background(), buf))
	assert.Empty(t, buf.Tokens())
}

func TestKeywordRespectsOffset(t *testing.T) {
	conv := model.NewConversation("conv-1", "client-a")
	conv.Messages = []model.Message{
		userMessage("m1", "already analyzed printer"),
		userMessage("m2", "fresh message about routers"),
	}
	conv.Meta.LastMessageAnalyzed = 0

	buf := pipeline.NewBuffer(conv, "client-a")
	require.NoError(t, NewKeyword().Process(context.Background(), buf))

	for _, tok := range buf.Tokens() {
		assert.Equal(t, 1, tok.MessageIdx, "only the unanalyzed window is scanned")
	}
	assert.NotEmpty(t, buf.Tokens())
}

func TestKeywordCustomStopwords(t *testing.T) {
	buf := bufferWithMessages(userMessage("m1", "printer broken again"))
	buf.Config[KeywordKey] = map[string]any{"stopwords": []string{"printer"}}

	require.NoError(t, NewKeyword().Process(context.Background(), buf))
	for _, tok := range buf.Tokens() {
		assert.NotEqual(t, "printer", tok.Value)
	}
}

func TestDateExtraction(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"iso", "the outage started 2026-08-15 around noon", "2026-08-15"},
		{"german", "Termin am 24.12.2026 bitte", "2026-12-24"},
		{"us slash", "shipped on 08/15/2026 via courier", "2026-08-15"},
		{"named month", "we met on January 5, 2026 in Berlin", "2026-01-05"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := bufferWithMessages(userMessage("m1", tt.content))
			require.NoError(t, NewDateExtractor().Process(context.Background(), buf))

			require.Len(t, buf.Tokens(), 1)
			tok := buf.Tokens()[0]
			assert.Equal(t, model.TokenDate, tok.Type)
			assert.Equal(t, tt.want, tok.Value)
			assert.Equal(t, tt.content[tok.Start:tok.End],
				buf.Conversation.Messages[0].Content[tok.Start:tok.End])
		})
	}
}

func TestDateExtractionRelative(t *testing.T) {
	msg := userMessage("m1", "can we meet tomorrow?")
	buf := bufferWithMessages(msg)

	require.NoError(t, NewDateExtractor().Process(context.Background(), buf))

	require.Len(t, buf.Tokens(), 1)
	tok := buf.Tokens()[0]
	assert.Equal(t, "2026-08-31", tok.Value, "tomorrow resolves against the message time")
	assert.True(t, tok.HasHint("relative"))
}

func TestDateExtractionRejectsInvalidDates(t *testing.T) {
	buf := bufferWithMessages(userMessage("m1", "code 2026-13-99 is not a date"))
	require.NoError(t, NewDateExtractor().Process(context.Background(), buf))
	assert.Empty(t, buf.Tokens())
}

func TestStagesImplementContract(t *testing.T) {
	var _ pipeline.Stage = NewKeyword()
	var _ pipeline.Stage = NewDateExtractor()

	assert.Less(t, NewDateExtractor().Priority(), NewKeyword().Priority(),
		"dates extract before keywords")
}
