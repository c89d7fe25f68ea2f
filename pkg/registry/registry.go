package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/kant-ai/bandsaw/pkg/domain"
)

// TaskFunc is the code behind a task. It receives the execution's arguments.
type TaskFunc func(ctx context.Context, args ...any) (any, error)

// Registry maps task names to their functions. Every process that continues
// a session must register the same tasks under the same names.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]TaskFunc
}

// Default is the registry used when a session is not given one.
var Default = NewRegistry()

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]TaskFunc),
	}
}

// Register adds a task function to the registry.
// If a task with the same name exists, it is overwritten.
func (r *Registry) Register(name string, fn TaskFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[name] = fn
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (TaskFunc, error) {
	r.mu.RLock()
	fn, ok := r.tasks[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &domain.TaskNotFoundError{Name: name}
	}
	return fn, nil
}

// Execute looks up a task by name and executes it with args.
func (r *Registry) Execute(ctx context.Context, name string, args ...any) (any, error) {
	fn, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return fn(ctx, args...)
}

// Names lists registered task names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds fn to the Default registry.
func Register(name string, fn TaskFunc) {
	Default.Register(name, fn)
}
