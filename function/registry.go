package function

import (
	"fmt"
	"sort"
	"sync"

	invoker "github.com/machinefabric/invoker-go"
)

// Registry resolves function names. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{functions: make(map[string]Function)}
}

// Register adds fn under name
func (r *Registry) Register(name string, fn Function) error {
	if name == "" {
		return fmt.Errorf("function name must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("function %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.functions[name]; exists {
		return fmt.Errorf("function %q already registered", name)
	}
	r.functions[name] = fn
	return nil
}

// MustRegister is Register that panics on error
func (r *Registry) MustRegister(name string, fn Function) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Resolve looks up name
func (r *Registry) Resolve(name string) (Function, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.functions[name]
	if !ok {
		return nil, invoker.UnknownFunction(name)
	}
	return fn, nil
}

// Names lists registered names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
