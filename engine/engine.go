package engine

import (
	"context"
	"log/slog"

	"github.com/c360/convstreams/config"
	"github.com/c360/convstreams/model"
)

// Engine orchestrates template building and query generation for one
// analysis run. It is stateless across runs; registries are frozen at
// wiring time.
type Engine struct {
	templates *TemplateRegistry
	queries   *QueryRegistry
	logger    *slog.Logger
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithLogger sets the logger used for builder failures.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an engine over the given registries.
func New(templates *TemplateRegistry, queries *QueryRegistry, opts ...EngineOption) *Engine {
	e := &Engine{
		templates: templates,
		queries:   queries,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BuildTemplates runs every template builder over the analysis. Builder
// errors are logged and skipped so one broken builder cannot suppress the
// templates of the others. Template list positions stay stable: builders
// append and bind, never reorder.
func (e *Engine) BuildTemplates(ctx context.Context, conv *model.Conversation, analysis *model.Analysis, offset int) {
	for _, builder := range e.templates.All() {
		if err := ctx.Err(); err != nil {
			return
		}
		if err := builder.Build(ctx, conv, analysis, offset); err != nil {
			e.logger.Warn("template builder failed, skipping",
				"template", builder.Definition().Type,
				"conversation", conv.ID,
				"error", err)
		}
	}
}

// RebuildQueries regenerates all queries of the analysis.
//
// Per template position the externally-observed query states are captured
// by creator, the query lists are cleared, every active (builder,
// configuration) pair runs best-effort, and the captured states are
// re-applied by (position, creator). Builders without a matching component
// configuration produce nothing; that is not an error.
func (e *Engine) RebuildQueries(ctx context.Context, conv *model.Conversation, analysis *model.Analysis, clientCfg *config.ClientConfiguration) {
	// capture feedback state per template position before wiping
	captured := make([]map[string]model.State, len(analysis.Templates))
	for i := range analysis.Templates {
		tmpl := &analysis.Templates[i]
		states := make(map[string]model.State, len(tmpl.Queries))
		for _, q := range tmpl.Queries {
			states[q.Creator] = q.State
		}
		captured[i] = states
		tmpl.Queries = []model.Query{}
	}

	for _, builder := range e.queries.All() {
		if err := ctx.Err(); err != nil {
			return
		}
		for _, instance := range clientCfg.Instances(config.CategoryQueryBuilder, builder.Name()) {
			var missing, conflicting []string
			if !builder.Validate(instance, &missing, &conflicting) {
				e.logger.Warn("query builder configuration invalid, skipping",
					"builder", builder.Name(),
					"instance", instance.DisplayName(),
					"missing", missing,
					"conflicting", conflicting)
				continue
			}
			if err := builder.BuildQuery(ctx, conv, analysis, instance); err != nil {
				e.logger.Warn("query builder failed, skipping",
					"builder", builder.Name(),
					"instance", instance.DisplayName(),
					"conversation", conv.ID,
					"error", err)
			}
		}
	}

	// re-apply captured feedback; fresh queries keep Suggested
	for i := range analysis.Templates {
		if i >= len(captured) {
			break // templates appended during this rebuild have no history
		}
		tmpl := &analysis.Templates[i]
		for j := range tmpl.Queries {
			if state, ok := captured[i][tmpl.Queries[j].Creator]; ok {
				tmpl.Queries[j].State = state
			}
		}
	}
}
