package session

import (
	invoker "github.com/machinefabric/invoker-go"
	"github.com/machinefabric/invoker-go/function"
)

// Binder resolves the function named in a handshake
type Binder interface {
	Bind(name string) (string, function.Function, error)
}

type fixed struct {
	name string
	fn   function.Function
}

// Fixed binds every session to fn. A handshake naming a different function
// fails with UnknownFunction; an empty name is accepted.
func Fixed(name string, fn function.Function) Binder {
	return &fixed{name: name, fn: fn}
}

func (f *fixed) Bind(name string) (string, function.Function, error) {
	if name != "" && name != f.name {
		return "", nil, invoker.UnknownFunction(name)
	}
	return f.name, f.fn, nil
}

type lookup struct {
	registry *function.Registry
}

// FromRegistry binds each session to the registry entry its handshake names
func FromRegistry(r *function.Registry) Binder {
	return &lookup{registry: r}
}

func (l *lookup) Bind(name string) (string, function.Function, error) {
	fn, err := l.registry.Resolve(name)
	if err != nil {
		return "", nil, err
	}
	return name, fn, nil
}
