package pipeline

import (
	"context"
	"sort"
	"sync"

	"github.com/c360/convstreams/errors"
)

// Stage is one unit of conversation analysis. Key must be unique across
// the installed stages; Priority orders execution (lower runs first).
type Stage interface {
	Key() string
	Priority() int
	Process(ctx context.Context, buf *Buffer) error
}

// Registry holds the installed stages. Stages register at wiring time;
// Resolve then selects and orders the active subset.
type Registry struct {
	mu     sync.RWMutex
	stages map[string]Stage
}

// NewRegistry creates an empty stage registry.
func NewRegistry() *Registry {
	return &Registry{stages: make(map[string]Stage)}
}

// Register adds a stage. Registering the same key twice is an error.
func (r *Registry) Register(s Stage) error {
	if s == nil || s.Key() == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "pipeline", "Register", "stage key required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stages[s.Key()]; exists {
		return errors.WrapInvalid(errors.ErrDuplicateRegistration, "pipeline", "Register", "stage "+s.Key())
	}
	r.stages[s.Key()] = s
	return nil
}

// Get returns the stage registered under key.
func (r *Registry) Get(key string) (Stage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stages[key]
	if !ok {
		return nil, errors.ErrNotRegistered
	}
	return s, nil
}

// All returns the installed stages sorted by priority, then key.
func (r *Registry) All() []Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Stage, 0, len(r.stages))
	for _, s := range r.stages {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority() != out[j].Priority() {
			return out[i].Priority() < out[j].Priority()
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}
