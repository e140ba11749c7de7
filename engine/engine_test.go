package engine

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/convstreams/config"
	"github.com/c360/convstreams/errors"
	"github.com/c360/convstreams/model"
)

// stubQueryBuilder appends one query per accepted template, with a
// configurable confidence so tests can observe regeneration.
type stubQueryBuilder struct {
	name       string
	confidence float64
	buildErr   error
	buildCount int
}

func (s *stubQueryBuilder) Name() string { return s.name }

func (s *stubQueryBuilder) AcceptTemplate(tmpl *model.Template) bool {
	return tmpl.Type == SearchTemplateType
}

func (s *stubQueryBuilder) BuildQuery(_ context.Context, _ *model.Conversation, analysis *model.Analysis, cfg *config.ComponentConfiguration) error {
	s.buildCount++
	if s.buildErr != nil {
		return s.buildErr
	}
	for i := range analysis.Templates {
		tmpl := &analysis.Templates[i]
		if !s.AcceptTemplate(tmpl) {
			continue
		}
		tmpl.Queries = append(tmpl.Queries, model.Query{
			Creator:      CreatorID(s, cfg),
			State:        model.StateSuggested,
			Confidence:   s.confidence,
			DisplayTitle: "stub",
			URL:          "https://search.example.com?q=stub",
			Created:      time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		})
	}
	return nil
}

func (s *stubQueryBuilder) Execute(context.Context, *config.ComponentConfiguration, *model.Template, *model.Conversation, *model.Analysis, map[string]string) (*model.SearchResult, error) {
	return &model.SearchResult{}, nil
}

func (s *stubQueryBuilder) Validate(*config.ComponentConfiguration, *[]string, *[]string) bool {
	return true
}

func clientWith(components ...config.ComponentConfiguration) *config.ClientConfiguration {
	return &config.ClientConfiguration{Client: "client-a", Components: components}
}

func genericInstance(builderType, name string) config.ComponentConfiguration {
	return config.ComponentConfiguration{
		Category: config.CategoryQueryBuilder,
		Type:     builderType,
		Name:     name,
		Enabled:  true,
	}
}

func searchAnalysis() *model.Analysis {
	a := model.NewAnalysis("conv-1", "client-a", time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC))
	a.Tokens = []model.Token{
		{MessageIdx: 0, Start: 0, End: 6, Type: model.TokenKeyword, Value: "laptop", Confidence: 0.4, State: model.StateSuggested, Origin: model.OriginSystem},
	}
	return a
}

func newTestEngine(t *testing.T, builders ...QueryBuilder) *Engine {
	t.Helper()
	tr := NewTemplateRegistry()
	require.NoError(t, tr.Register(NewSearchBuilder()))
	qr := NewQueryRegistry()
	for _, b := range builders {
		require.NoError(t, qr.Register(b))
	}
	return New(tr, qr)
}

func TestBuildTemplatesCreatesSearchTemplate(t *testing.T) {
	e := newTestEngine(t)
	conv := model.NewConversation("conv-1", "client-a")
	analysis := searchAnalysis()

	e.BuildTemplates(context.Background(), conv, analysis, 0)

	require.Len(t, analysis.Templates, 1)
	tmpl := &analysis.Templates[0]
	assert.Equal(t, SearchTemplateType, tmpl.Type)
	assert.NotNil(t, tmpl.BoundToken(SlotTerm, analysis.Tokens))
	assert.InDelta(t, 0.4, tmpl.Probability, 1e-9)
}

func TestBuildTemplatesIsIncremental(t *testing.T) {
	e := newTestEngine(t)
	conv := model.NewConversation("conv-1", "client-a")
	analysis := searchAnalysis()

	e.BuildTemplates(context.Background(), conv, analysis, 0)
	require.Len(t, analysis.Templates, 1)
	slotCount := len(analysis.Templates[0].Slots)

	// second run with no new tokens changes nothing
	e.BuildTemplates(context.Background(), conv, analysis, 0)
	require.Len(t, analysis.Templates, 1)
	assert.Len(t, analysis.Templates[0].Slots, slotCount)

	// a new token binds into a fresh slot on the same template
	analysis.Tokens = append(analysis.Tokens, model.Token{
		MessageIdx: 1, Start: 0, End: 7, Type: model.TokenKeyword,
		Value: "battery", Confidence: 0.6, State: model.StateSuggested,
	})
	e.BuildTemplates(context.Background(), conv, analysis, 0)
	require.Len(t, analysis.Templates, 1)
	assert.Greater(t, len(analysis.Templates[0].Slots), slotCount)
	assert.InDelta(t, 0.6, analysis.Templates[0].Probability, 1e-9)
}

func TestBuildTemplatesIgnoresRejectedTokens(t *testing.T) {
	e := newTestEngine(t)
	conv := model.NewConversation("conv-1", "client-a")
	analysis := model.NewAnalysis("conv-1", "client-a", time.Now())
	analysis.Tokens = []model.Token{
		{Type: model.TokenKeyword, Value: "noise", State: model.StateRejected},
	}

	e.BuildTemplates(context.Background(), conv, analysis, 0)
	assert.Empty(t, analysis.Templates)
}

func TestRebuildQueriesGeneratesAndRegenerates(t *testing.T) {
	stub := &stubQueryBuilder{name: "stub", confidence: 0.4}
	e := newTestEngine(t, stub)
	conv := model.NewConversation("conv-1", "client-a")
	analysis := searchAnalysis()
	clientCfg := clientWith(genericInstance("stub", "kb"))

	e.BuildTemplates(context.Background(), conv, analysis, 0)
	e.RebuildQueries(context.Background(), conv, analysis, clientCfg)

	require.Len(t, analysis.Templates[0].Queries, 1)
	q := analysis.Templates[0].Queries[0]
	assert.Equal(t, "stub:kb", q.Creator)
	assert.Equal(t, model.StateSuggested, q.State)
	assert.InDelta(t, 0.4, q.Confidence, 1e-9)

	// rebuild regenerates confidence, does not accumulate queries
	stub.confidence = 0.9
	e.RebuildQueries(context.Background(), conv, analysis, clientCfg)
	require.Len(t, analysis.Templates[0].Queries, 1)
	assert.InDelta(t, 0.9, analysis.Templates[0].Queries[0].Confidence, 1e-9)
}

func TestRebuildQueriesPreservesFeedbackState(t *testing.T) {
	stub := &stubQueryBuilder{name: "stub", confidence: 0.4}
	e := newTestEngine(t, stub)
	conv := model.NewConversation("conv-1", "client-a")
	analysis := searchAnalysis()
	clientCfg := clientWith(genericInstance("stub", "kb"))

	e.BuildTemplates(context.Background(), conv, analysis, 0)
	e.RebuildQueries(context.Background(), conv, analysis, clientCfg)

	// external feedback confirms the query
	analysis.Templates[0].Queries[0].State = model.StateConfirmed

	stub.confidence = 0.9
	e.RebuildQueries(context.Background(), conv, analysis, clientCfg)

	require.Len(t, analysis.Templates[0].Queries, 1)
	q := analysis.Templates[0].Queries[0]
	assert.Equal(t, model.StateConfirmed, q.State, "feedback state survives the rebuild")
	assert.InDelta(t, 0.9, q.Confidence, 1e-9, "confidence is regenerated, not preserved")
}

func TestRebuildQueriesBestEffort(t *testing.T) {
	broken := &stubQueryBuilder{name: "broken", buildErr: stderrors.New("backend down")}
	healthy := &stubQueryBuilder{name: "healthy", confidence: 0.5}
	e := newTestEngine(t, broken, healthy)
	conv := model.NewConversation("conv-1", "client-a")
	analysis := searchAnalysis()
	clientCfg := clientWith(
		genericInstance("broken", "b"),
		genericInstance("healthy", "h"),
	)

	e.BuildTemplates(context.Background(), conv, analysis, 0)
	e.RebuildQueries(context.Background(), conv, analysis, clientCfg)

	require.Len(t, analysis.Templates[0].Queries, 1, "healthy builder still runs")
	assert.Equal(t, "healthy:h", analysis.Templates[0].Queries[0].Creator)
}

func TestRebuildQueriesUnconfiguredBuilderProducesNothing(t *testing.T) {
	stub := &stubQueryBuilder{name: "stub", confidence: 0.4}
	e := newTestEngine(t, stub)
	conv := model.NewConversation("conv-1", "client-a")
	analysis := searchAnalysis()

	e.BuildTemplates(context.Background(), conv, analysis, 0)
	e.RebuildQueries(context.Background(), conv, analysis, clientWith())

	assert.Empty(t, analysis.Templates[0].Queries)
	assert.Zero(t, stub.buildCount, "no configuration, no build call")
}

func TestRebuildQueriesMultipleInstances(t *testing.T) {
	stub := &stubQueryBuilder{name: "stub", confidence: 0.4}
	e := newTestEngine(t, stub)
	conv := model.NewConversation("conv-1", "client-a")
	analysis := searchAnalysis()
	clientCfg := clientWith(
		genericInstance("stub", "kb"),
		genericInstance("stub", "faq"),
	)

	e.BuildTemplates(context.Background(), conv, analysis, 0)
	e.RebuildQueries(context.Background(), conv, analysis, clientCfg)

	require.Len(t, analysis.Templates[0].Queries, 2, "each instance generates its own query")
	creators := []string{
		analysis.Templates[0].Queries[0].Creator,
		analysis.Templates[0].Queries[1].Creator,
	}
	assert.ElementsMatch(t, []string{"stub:kb", "stub:faq"}, creators)
}

func TestRegistriesRejectDuplicates(t *testing.T) {
	tr := NewTemplateRegistry()
	require.NoError(t, tr.Register(NewSearchBuilder()))
	assert.ErrorIs(t, tr.Register(NewSearchBuilder()), errors.ErrDuplicateRegistration)

	qr := NewQueryRegistry()
	require.NoError(t, qr.Register(&stubQueryBuilder{name: "stub"}))
	assert.ErrorIs(t, qr.Register(&stubQueryBuilder{name: "stub"}), errors.ErrDuplicateRegistration)

	_, err := qr.Get("missing")
	assert.ErrorIs(t, err, errors.ErrNotRegistered)
}
