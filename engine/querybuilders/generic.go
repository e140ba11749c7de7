package querybuilders

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/c360/convstreams/config"
	"github.com/c360/convstreams/engine"
	"github.com/c360/convstreams/errors"
	"github.com/c360/convstreams/model"
)

// GenericName is the builder type matched against component configuration.
const GenericName = "generic"

// Generic builds URL-encoded search queries from the bound tokens of a
// search template. The baseUrl configuration parameter points at the
// external search endpoint; Execute GETs it with the generated query and
// expects a JSON body shaped like model.SearchResult.
type Generic struct {
	httpClient *http.Client
	now        func() time.Time
}

// GenericOption configures the builder
type GenericOption func(*Generic)

// WithHTTPClient overrides the HTTP client used by Execute.
func WithHTTPClient(c *http.Client) GenericOption {
	return func(g *Generic) {
		if c != nil {
			g.httpClient = c
		}
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) GenericOption {
	return func(g *Generic) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGeneric creates the generic query builder.
func NewGeneric(opts ...GenericOption) *Generic {
	g := &Generic{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name implements engine.QueryBuilder.
func (g *Generic) Name() string { return GenericName }

// AcceptTemplate implements engine.QueryBuilder.
func (g *Generic) AcceptTemplate(tmpl *model.Template) bool {
	return tmpl.Type == engine.SearchTemplateType
}

// Validate implements engine.QueryBuilder. baseUrl is the only required
// parameter and must be an absolute http(s) URL.
func (g *Generic) Validate(cfg *config.ComponentConfiguration, missing *[]string, conflicting *[]string) bool {
	base := cfg.Param("baseUrl", "")
	if base == "" {
		*missing = append(*missing, "baseUrl")
		return false
	}
	u, err := url.Parse(base)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		*conflicting = append(*conflicting, "baseUrl")
		return false
	}
	return true
}

// terms collects the values of the tokens bound into the template's topic
// and term slots, skipping rejected tokens.
func terms(tmpl *model.Template, tokens []model.Token) ([]string, float64) {
	var out []string
	var confidence float64
	for _, slot := range tmpl.Slots {
		if slot.TokenIndex < 0 || slot.TokenIndex >= len(tokens) {
			continue
		}
		tok := &tokens[slot.TokenIndex]
		if tok.State == model.StateRejected {
			continue
		}
		if v, ok := tok.Value.(string); ok && v != "" {
			out = append(out, v)
			if tok.Confidence > confidence {
				confidence = tok.Confidence
			}
		}
	}
	return out, confidence
}

// BuildQuery implements engine.QueryBuilder.
func (g *Generic) BuildQuery(_ context.Context, _ *model.Conversation, analysis *model.Analysis, cfg *config.ComponentConfiguration) error {
	base := cfg.Param("baseUrl", "")

	for i := range analysis.Templates {
		tmpl := &analysis.Templates[i]
		if !g.AcceptTemplate(tmpl) {
			continue
		}

		words, confidence := terms(tmpl, analysis.Tokens)
		if len(words) == 0 {
			continue
		}
		queryString := strings.Join(words, " ")

		values := url.Values{}
		values.Set("q", queryString)
		if rows := cfg.Param("rows", ""); rows != "" {
			values.Set("rows", rows)
		}

		tmpl.Queries = append(tmpl.Queries, model.Query{
			Creator:      engine.CreatorID(g, cfg),
			State:        model.StateSuggested,
			Confidence:   model.ClampConfidence(confidence),
			DisplayTitle: cfg.Param("displayTitle", cfg.DisplayName()) + ": " + queryString,
			URL:          base + "?" + values.Encode(),
			Created:      g.now(),
		})
	}
	return nil
}

// Execute implements engine.QueryBuilder. Params may carry "start" and
// "rows" pagination overrides.
func (g *Generic) Execute(ctx context.Context, cfg *config.ComponentConfiguration, tmpl *model.Template, _ *model.Conversation, analysis *model.Analysis, params map[string]string) (*model.SearchResult, error) {
	if !g.AcceptTemplate(tmpl) {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Generic", "Execute", "unsupported template "+tmpl.Type)
	}

	words, _ := terms(tmpl, analysis.Tokens)
	if len(words) == 0 {
		return &model.SearchResult{Rows: []map[string]any{}}, nil
	}

	values := url.Values{}
	values.Set("q", strings.Join(words, " "))
	for k, v := range params {
		values.Set(k, v)
	}

	endpoint := cfg.Param("baseUrl", "") + "?" + values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Generic", "Execute", "build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, errors.WrapTransient(err, "Generic", "Execute", "search request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.WrapTransient(
			fmt.Errorf("search backend returned %d", resp.StatusCode),
			"Generic", "Execute", "search request")
	}

	var result model.SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.WrapInvalid(err, "Generic", "Execute", "decode search response")
	}
	if result.Rows == nil {
		result.Rows = []map[string]any{}
	}
	return &result, nil
}
