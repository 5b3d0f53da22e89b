package job

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps job type identifiers to handler implementations. It is a
// closed registry: all handlers are registered during process startup,
// before any worker claims jobs, so that a misspelled or missing job type
// is caught immediately rather than retrying forever against a handler
// that will never exist. A claimed job whose type is absent here is
// failed terminally on first dispatch.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register associates h with jobType. Registering an empty type, a nil
// handler, or a type that is already registered is a startup error.
func (r *Registry) Register(jobType string, h Handler) error {
	if jobType == "" {
		return fmt.Errorf("register handler: empty job type")
	}
	if h == nil {
		return fmt.Errorf("register handler %q: nil handler", jobType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[jobType]; exists {
		return fmt.Errorf("register handler %q: already registered", jobType)
	}
	r.handlers[jobType] = h
	return nil
}

// Handler returns the handler registered for jobType, if any.
func (r *Registry) Handler(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Types returns all registered job types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
