package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/c360/convstreams/errors"
	"github.com/c360/convstreams/model"
)

// TemplateDefinition declares a template type and its slot layout. Builders
// instantiate templates from this prototype; the slots of a fresh template
// start unbound.
type TemplateDefinition struct {
	Type  string
	Slots []model.Slot
}

// NewTemplate instantiates an unbound template from the definition.
func (d *TemplateDefinition) NewTemplate() model.Template {
	slots := make([]model.Slot, len(d.Slots))
	copy(slots, d.Slots)
	for i := range slots {
		slots[i].TokenIndex = -1
	}
	return model.Template{
		Type:    d.Type,
		State:   model.StateSuggested,
		Slots:   slots,
		Queries: []model.Query{},
	}
}

// TemplateBuilder creates and updates templates of one type from the
// analysis tokens. Build must keep existing template list positions stable;
// it may append new templates and bind slots of its own templates, never
// reorder or remove.
type TemplateBuilder interface {
	Definition() TemplateDefinition
	Build(ctx context.Context, conv *model.Conversation, analysis *model.Analysis, offset int) error
}

// TemplateRegistry holds the installed template builders keyed by template
// type.
type TemplateRegistry struct {
	mu       sync.RWMutex
	builders map[string]TemplateBuilder
	order    []string
}

// NewTemplateRegistry creates an empty template builder registry.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{builders: make(map[string]TemplateBuilder)}
}

// Register adds a builder for its definition type.
func (r *TemplateRegistry) Register(b TemplateBuilder) error {
	if b == nil || b.Definition().Type == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "engine", "Register", "template type required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t := b.Definition().Type
	if _, exists := r.builders[t]; exists {
		return errors.WrapInvalid(errors.ErrDuplicateRegistration, "engine", "Register", "template builder "+t)
	}
	r.builders[t] = b
	r.order = append(r.order, t)
	sort.Strings(r.order)
	return nil
}

// All returns the installed builders in deterministic (type) order.
func (r *TemplateRegistry) All() []TemplateBuilder {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]TemplateBuilder, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.builders[t])
	}
	return out
}
