package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/convstreams/config"
	"github.com/c360/convstreams/dispatch"
	"github.com/c360/convstreams/engine"
	"github.com/c360/convstreams/errors"
	"github.com/c360/convstreams/model"
	"github.com/c360/convstreams/pipeline"
	"github.com/c360/convstreams/pipeline/stages"
	"github.com/c360/convstreams/store"
)

func newTestService(t *testing.T) (*ConversationService, *store.MemStore, *dispatch.Dispatcher) {
	t.Helper()

	st := store.NewMemStore()

	p, err := pipeline.Resolve(
		[]pipeline.Stage{stages.NewKeyword(), stages.NewDateExtractor()},
		pipeline.Config{Optional: []string{"*"}})
	require.NoError(t, err)

	tr := engine.NewTemplateRegistry()
	require.NoError(t, tr.Register(engine.NewSearchBuilder()))
	eng := engine.New(tr, engine.NewQueryRegistry())

	callback, err := dispatch.NewCallbackClient()
	require.NoError(t, err)

	d, err := dispatch.NewDispatcher(st, p, eng, config.Default(), callback)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, d.Start(ctx))
	t.Cleanup(func() { _ = d.Stop(5 * time.Second) })

	return New(st, d), st, d
}

func TestAppendMessageSyncPath(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.AppendMessage(ctx, "client-a", "conv-1", model.Message{
		ID:      "m1",
		Content: "my laptop keeps crashing",
	}, "")
	require.NoError(t, err)

	assert.False(t, result.Async)
	require.NotNil(t, result.Analysis, "sync path returns the committed analysis")
	assert.NotEmpty(t, result.Analysis.Tokens)
	assert.Len(t, result.Conversation.Messages, 1)

	// defaults were filled in
	msg := result.Conversation.Messages[0]
	assert.Equal(t, model.OriginUser, msg.Origin)
	assert.False(t, msg.Time.IsZero())

	// analysis was persisted under the committed lastModified
	current, err := st.Get(ctx, "conv-1")
	require.NoError(t, err)
	persisted, err := st.GetAnalysis(ctx, "conv-1", current.LastModified)
	require.NoError(t, err)
	assert.Equal(t, current.LastModified, persisted.Date)
}

func TestAppendMessageAsyncPath(t *testing.T) {
	svc, _, _ := newTestService(t)

	received := make(chan dispatch.CallbackPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p dispatch.CallbackPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		received <- p
	}))
	defer server.Close()

	result, err := svc.AppendMessage(context.Background(), "client-a", "conv-1", model.Message{
		Content: "hello there",
	}, server.URL)
	require.NoError(t, err)

	assert.True(t, result.Async)
	assert.Nil(t, result.Analysis, "async path returns no inline analysis")
	assert.NotEmpty(t, result.Conversation.Messages[0].ID, "message id was assigned")

	select {
	case payload := <-received:
		assert.Equal(t, "ok", payload.Result)
		require.NotNil(t, payload.Data)
		assert.Equal(t, "conv-1", payload.Data.Conversation)
	case <-time.After(5 * time.Second):
		t.Fatal("callback was not delivered")
	}
}

func TestAppendMessageUpsert(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AppendMessage(ctx, "client-a", "conv-1", model.Message{ID: "m1", Content: "first"}, "")
	require.NoError(t, err)

	result, err := svc.AppendMessage(ctx, "client-a", "conv-1", model.Message{ID: "m1", Content: "edited"}, "")
	require.NoError(t, err)

	require.Len(t, result.Conversation.Messages, 1)
	assert.Equal(t, "edited", result.Conversation.Messages[0].Content)
}

func TestOwnershipEnforced(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AppendMessage(ctx, "client-a", "conv-1", model.Message{ID: "m1", Content: "hello"}, "")
	require.NoError(t, err)

	_, err = svc.GetConversation(ctx, "client-b", "conv-1")
	assert.ErrorIs(t, err, errors.ErrNotOwner)

	_, err = svc.AppendMessage(ctx, "client-b", "conv-1", model.Message{ID: "m2", Content: "hi"}, "")
	assert.ErrorIs(t, err, errors.ErrNotOwner)

	_, err = svc.GetAnalysis(ctx, "client-b", "conv-1")
	assert.ErrorIs(t, err, errors.ErrNotOwner)

	_, err = svc.AdjustVotes(ctx, "client-b", "conv-1", "m1", 1)
	assert.ErrorIs(t, err, errors.ErrNotOwner)
}

func TestGetAnalysisReturnsLatest(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AppendMessage(ctx, "client-a", "conv-1", model.Message{ID: "m1", Content: "printer broken"}, "")
	require.NoError(t, err)
	result, err := svc.AppendMessage(ctx, "client-a", "conv-1", model.Message{ID: "m2", Content: "printer still broken"}, "")
	require.NoError(t, err)

	latest, err := svc.GetAnalysis(ctx, "client-a", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, result.Analysis.Date, latest.Date)
}

func TestGetAnalysisMissing(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	// conversation exists but nothing was analyzed yet
	_, err := st.Append(ctx, model.NewConversation("conv-1", "client-a"), model.Message{ID: "m1", Content: "x"})
	require.NoError(t, err)

	_, err = svc.GetAnalysis(ctx, "client-a", "conv-1")
	assert.ErrorIs(t, err, errors.ErrAnalysisNotFound)

	_, err = svc.GetConversation(ctx, "client-a", "ghost")
	assert.ErrorIs(t, err, errors.ErrConversationNotFound)
}

func TestPartialMutationsTriggerReanalysis(t *testing.T) {
	svc, st, d := newTestService(t)
	ctx := context.Background()

	_, err := svc.AppendMessage(ctx, "client-a", "conv-1", model.Message{ID: "m1", Content: "laptop crashing"}, "")
	require.NoError(t, err)

	conv, err := svc.UpdateStatus(ctx, "client-a", "conv-1", model.StatusComplete)
	require.NoError(t, err)
	assert.Equal(t, model.StatusComplete, conv.Meta.Status)

	conv, err = svc.AdjustVotes(ctx, "client-a", "conv-1", "m1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.Messages[0].Votes)

	conv, err = svc.UpdateField(ctx, "client-a", "conv-1", "context.channel", "support")
	require.NoError(t, err)
	assert.Equal(t, []string{"support"}, conv.Context["channel"])

	conv, err = svc.DeleteMessage(ctx, "client-a", "conv-1", "m1")
	require.NoError(t, err)
	assert.Empty(t, conv.Messages)

	// queued background re-analyses drain on stop
	require.NoError(t, d.Stop(5*time.Second))
	assert.GreaterOrEqual(t, d.Stats().Submitted, int64(4))

	_, err = st.Get(ctx, "conv-1")
	require.NoError(t, err)
}
