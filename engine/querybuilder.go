package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/c360/convstreams/config"
	"github.com/c360/convstreams/errors"
	"github.com/c360/convstreams/model"
)

// QueryBuilder generates queries for the templates it accepts. One builder
// type may run under several component configurations (different names and
// parameters); the queries it creates carry a creator id unique per
// (builder, configuration) pair.
type QueryBuilder interface {
	// Name is the builder type, matched against component configuration
	// type within the queryBuilder category.
	Name() string

	// AcceptTemplate reports whether the builder can serve this template.
	AcceptTemplate(tmpl *model.Template) bool

	// BuildQuery appends queries to the accepted templates of the
	// analysis. Implementations must only append to Queries, never touch
	// other templates' entries.
	BuildQuery(ctx context.Context, conv *model.Conversation, analysis *model.Analysis, cfg *config.ComponentConfiguration) error

	// Execute runs a previously built query against the backing search
	// service. Params carry pagination and overrides.
	Execute(ctx context.Context, cfg *config.ComponentConfiguration, tmpl *model.Template, conv *model.Conversation, analysis *model.Analysis, params map[string]string) (*model.SearchResult, error)

	// Validate checks a component configuration, collecting missing and
	// conflicting fields. Returns true when the configuration is usable.
	Validate(cfg *config.ComponentConfiguration, missing *[]string, conflicting *[]string) bool
}

// QueryRegistry holds the installed query builders keyed by name.
type QueryRegistry struct {
	mu       sync.RWMutex
	builders map[string]QueryBuilder
	order    []string
}

// NewQueryRegistry creates an empty query builder registry.
func NewQueryRegistry() *QueryRegistry {
	return &QueryRegistry{builders: make(map[string]QueryBuilder)}
}

// Register adds a query builder under its name.
func (r *QueryRegistry) Register(b QueryBuilder) error {
	if b == nil || b.Name() == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "engine", "Register", "query builder name required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.builders[b.Name()]; exists {
		return errors.WrapInvalid(errors.ErrDuplicateRegistration, "engine", "Register", "query builder "+b.Name())
	}
	r.builders[b.Name()] = b
	r.order = append(r.order, b.Name())
	sort.Strings(r.order)
	return nil
}

// Get returns the builder registered under name.
func (r *QueryRegistry) Get(name string) (QueryBuilder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.builders[name]
	if !ok {
		return nil, errors.ErrNotRegistered
	}
	return b, nil
}

// All returns the installed builders in deterministic (name) order.
func (r *QueryRegistry) All() []QueryBuilder {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]QueryBuilder, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.builders[name])
	}
	return out
}

// CreatorID builds the creator string stamped on generated queries:
// "<builder>:<instance name>". It is stable across rebuilds as long as the
// component configuration keeps its name, which is what lets feedback
// state survive a rebuild.
func CreatorID(builder QueryBuilder, cfg *config.ComponentConfiguration) string {
	return builder.Name() + ":" + cfg.DisplayName()
}
