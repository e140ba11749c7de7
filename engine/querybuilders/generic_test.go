package querybuilders

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/convstreams/config"
	"github.com/c360/convstreams/engine"
	"github.com/c360/convstreams/model"
)

func instance(params map[string]any) *config.ComponentConfiguration {
	return &config.ComponentConfiguration{
		Category:      config.CategoryQueryBuilder,
		Type:          GenericName,
		Name:          "kb",
		Enabled:       true,
		Configuration: params,
	}
}

func analysisWithBoundTemplate() *model.Analysis {
	a := model.NewAnalysis("conv-1", "client-a", time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC))
	a.Tokens = []model.Token{
		{Type: model.TokenKeyword, Value: "laptop", Confidence: 0.4, State: model.StateSuggested},
		{Type: model.TokenKeyword, Value: "battery", Confidence: 0.7, State: model.StateSuggested},
	}

	builder := engine.NewSearchBuilder()
	def := builder.Definition()
	tmpl := def.NewTemplate()
	tmpl.Slots[1].TokenIndex = 0
	extra := model.NewSlot(engine.SlotTerm, model.TokenKeyword, false)
	extra.TokenIndex = 1
	tmpl.Slots = append(tmpl.Slots, extra)
	a.Templates = append(a.Templates, tmpl)
	return a
}

func TestGenericValidate(t *testing.T) {
	g := NewGeneric()

	tests := []struct {
		name            string
		params          map[string]any
		ok              bool
		wantMissing     []string
		wantConflicting []string
	}{
		{"valid", map[string]any{"baseUrl": "https://kb.example.com/search"}, true, nil, nil},
		{"missing baseUrl", map[string]any{}, false, []string{"baseUrl"}, nil},
		{"relative baseUrl", map[string]any{"baseUrl": "/search"}, false, nil, []string{"baseUrl"}},
		{"wrong scheme", map[string]any{"baseUrl": "ftp://kb.example.com"}, false, nil, []string{"baseUrl"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var missing, conflicting []string
			ok := g.Validate(instance(tt.params), &missing, &conflicting)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.wantMissing, missing)
			assert.Equal(t, tt.wantConflicting, conflicting)
		})
	}
}

func TestGenericBuildQuery(t *testing.T) {
	fixed := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	g := NewGeneric(WithClock(func() time.Time { return fixed }))
	analysis := analysisWithBoundTemplate()
	conv := model.NewConversation("conv-1", "client-a")

	cfg := instance(map[string]any{"baseUrl": "https://kb.example.com/search"})
	require.NoError(t, g.BuildQuery(context.Background(), conv, analysis, cfg))

	require.Len(t, analysis.Templates[0].Queries, 1)
	q := analysis.Templates[0].Queries[0]
	assert.Equal(t, "generic:kb", q.Creator)
	assert.Equal(t, model.StateSuggested, q.State)
	assert.Equal(t, "https://kb.example.com/search?q=laptop+battery", q.URL)
	assert.InDelta(t, 0.7, q.Confidence, 1e-9, "confidence follows the strongest bound token")
	assert.Equal(t, "kb: laptop battery", q.DisplayTitle)
	assert.Equal(t, fixed, q.Created)
}

func TestGenericBuildQuerySkipsRejectedTokens(t *testing.T) {
	g := NewGeneric()
	analysis := analysisWithBoundTemplate()
	analysis.Tokens[1].State = model.StateRejected
	conv := model.NewConversation("conv-1", "client-a")

	cfg := instance(map[string]any{"baseUrl": "https://kb.example.com/search"})
	require.NoError(t, g.BuildQuery(context.Background(), conv, analysis, cfg))

	require.Len(t, analysis.Templates[0].Queries, 1)
	assert.Equal(t, "https://kb.example.com/search?q=laptop", analysis.Templates[0].Queries[0].URL)
}

func TestGenericBuildQueryEmptyTemplateProducesNothing(t *testing.T) {
	g := NewGeneric()
	analysis := model.NewAnalysis("conv-1", "client-a", time.Now())
	builder := engine.NewSearchBuilder()
	def := builder.Definition()
	analysis.Templates = append(analysis.Templates, def.NewTemplate())
	conv := model.NewConversation("conv-1", "client-a")

	cfg := instance(map[string]any{"baseUrl": "https://kb.example.com/search"})
	require.NoError(t, g.BuildQuery(context.Background(), conv, analysis, cfg))
	assert.Empty(t, analysis.Templates[0].Queries)
}

func TestGenericExecute(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		assert.Equal(t, "5", r.URL.Query().Get("rows"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"numFound": 2, "start": 0, "rows": [{"title": "doc1"}, {"title": "doc2"}]}`))
	}))
	defer server.Close()

	g := NewGeneric()
	analysis := analysisWithBoundTemplate()
	conv := model.NewConversation("conv-1", "client-a")
	cfg := instance(map[string]any{"baseUrl": server.URL})

	result, err := g.Execute(context.Background(), cfg, &analysis.Templates[0], conv, analysis, map[string]string{"rows": "5"})
	require.NoError(t, err)

	assert.Equal(t, "laptop battery", gotQuery)
	assert.Equal(t, int64(2), result.NumFound)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "doc1", result.Rows[0]["title"])
}

func TestGenericExecuteBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	g := NewGeneric()
	analysis := analysisWithBoundTemplate()
	conv := model.NewConversation("conv-1", "client-a")
	cfg := instance(map[string]any{"baseUrl": server.URL})

	_, err := g.Execute(context.Background(), cfg, &analysis.Templates[0], conv, analysis, nil)
	assert.Error(t, err)
}

func TestGenericImplementsContract(t *testing.T) {
	var _ engine.QueryBuilder = NewGeneric()
}
