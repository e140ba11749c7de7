package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/c360/convstreams/errors"
	"github.com/c360/convstreams/model"
	"github.com/c360/convstreams/natsclient"
)

type KVStoreIntegrationSuite struct {
	suite.Suite
	testClient *natsclient.TestClient
	store      *KVStore
	ctx        context.Context
	cancel     context.CancelFunc
}

func (s *KVStoreIntegrationSuite) SetupSuite() {
	s.testClient = natsclient.NewTestClient(s.T(), natsclient.WithJetStream())
}

func (s *KVStoreIntegrationSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 30*time.Second)

	var err error
	s.store, err = NewKVStore(s.ctx, s.testClient.Client)
	s.Require().NoError(err)
}

func (s *KVStoreIntegrationSuite) TearDownTest() {
	s.cancel()
}

func (s *KVStoreIntegrationSuite) TestAppendAndGet() {
	conv := model.NewConversation("kv-conv-1", "client-a")
	stored, err := s.store.Append(s.ctx, conv, model.Message{
		ID: "m1", Origin: model.OriginUser, Content: "Hello", User: "alice",
	})
	s.Require().NoError(err)
	s.Len(stored.Messages, 1)
	s.False(stored.LastModified.IsZero())

	retrieved, err := s.store.Get(s.ctx, "kv-conv-1")
	s.Require().NoError(err)
	s.Equal("Hello", retrieved.Messages[0].Content)
	s.True(retrieved.LastModified.Equal(stored.LastModified))
}

func (s *KVStoreIntegrationSuite) TestAppendUpsertsByMessageID() {
	conv := model.NewConversation("kv-conv-2", "client-a")
	stored, err := s.store.Append(s.ctx, conv, model.Message{ID: "m1", Content: "first"})
	s.Require().NoError(err)

	stored, err = s.store.Append(s.ctx, stored, model.Message{ID: "m1", Content: "edited"})
	s.Require().NoError(err)
	s.Len(stored.Messages, 1)
	s.Equal("edited", stored.Messages[0].Content)
}

func (s *KVStoreIntegrationSuite) TestConditionalStoreRejectsStaleSnapshot() {
	conv := model.NewConversation("kv-conv-3", "client-a")
	stored, err := s.store.Append(s.ctx, conv, model.Message{ID: "m1", Content: "Hello"})
	s.Require().NoError(err)
	t0 := stored.LastModified

	snapA := stored.Clone()
	snapB := stored.Clone()

	snapA.Meta.Tags = []string{"writer-a"}
	_, err = s.store.StoreIfUnmodifiedSince(s.ctx, snapA, t0)
	s.Require().NoError(err)

	snapB.Meta.Tags = []string{"writer-b"}
	_, err = s.store.StoreIfUnmodifiedSince(s.ctx, snapB, t0)
	s.Require().ErrorIs(err, errors.ErrConcurrentModification)

	current, err := s.store.Get(s.ctx, "kv-conv-3")
	s.Require().NoError(err)
	s.Equal([]string{"writer-a"}, current.Meta.Tags)
}

func (s *KVStoreIntegrationSuite) TestPartialMutations() {
	conv := model.NewConversation("kv-conv-4", "client-a")
	stored, err := s.store.Append(s.ctx, conv, model.Message{ID: "m1", Content: "Hello"})
	s.Require().NoError(err)
	before := stored.LastModified

	voted, err := s.store.AdjustVotes(s.ctx, "kv-conv-4", "m1", 3)
	s.Require().NoError(err)
	s.Equal(3, voted.Messages[0].Votes)
	s.True(voted.LastModified.After(before))

	updated, err := s.store.UpdateStatus(s.ctx, "kv-conv-4", model.StatusComplete)
	s.Require().NoError(err)
	s.Equal(model.StatusComplete, updated.Meta.Status)

	withProp, err := s.store.UpdateField(s.ctx, "kv-conv-4", "meta.property.channel", "support")
	s.Require().NoError(err)
	s.Equal("support", withProp.Meta.Properties["channel"])

	_, err = s.store.AdjustVotes(s.ctx, "kv-conv-4", "ghost", 1)
	s.Require().ErrorIs(err, errors.ErrMessageNotFound)

	trimmed, err := s.store.DeleteMessage(s.ctx, "kv-conv-4", "m1")
	s.Require().NoError(err)
	s.Empty(trimmed.Messages)
}

func (s *KVStoreIntegrationSuite) TestAnalysisSnapshots() {
	d1 := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	d2 := d1.Add(time.Minute)

	a1 := model.NewAnalysis("kv-conv-5", "client-a", d1)
	a1.Tokens = []model.Token{{MessageIdx: 0, Start: 0, End: 5, Type: model.TokenKeyword, Value: "hello", State: model.StateSuggested}}
	a2 := model.NewAnalysis("kv-conv-5", "client-a", d2)

	s.Require().NoError(s.store.PutAnalysis(s.ctx, a1))
	s.Require().NoError(s.store.PutAnalysis(s.ctx, a2))

	got, err := s.store.GetAnalysis(s.ctx, "kv-conv-5", d1)
	s.Require().NoError(err)
	s.Len(got.Tokens, 1)
	s.Equal("hello", got.Tokens[0].Value)

	latest, err := s.store.LatestAnalysis(s.ctx, "kv-conv-5")
	s.Require().NoError(err)
	s.True(latest.Date.Equal(d2))

	_, err = s.store.LatestAnalysis(s.ctx, "kv-conv-none")
	s.Require().ErrorIs(err, errors.ErrAnalysisNotFound)
}

func (s *KVStoreIntegrationSuite) TestGetMissing() {
	_, err := s.store.Get(s.ctx, "kv-missing")
	s.Require().ErrorIs(err, errors.ErrConversationNotFound)
}

func TestKVStoreIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	suite.Run(t, new(KVStoreIntegrationSuite))
}
