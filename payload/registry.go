package payload

import (
	"fmt"
	"sync"

	"github.com/machinefabric/invoker-go/negotiate"
)

// Registry maps content types to codecs. Lookups ignore content-type
// parameters and case. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
	order  []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Codec)}
}

// NewDefaultRegistry creates a registry holding the built-in codecs
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, c := range []Codec{
		JSONCodec(),
		Text(),
		Binary(),
		CBORCodec(),
		YAMLCodec(YAML),
		YAMLCodec(XYAML),
	} {
		// built-ins never collide
		_ = r.Register(c)
	}
	return r
}

// Register adds a codec under its content type. Registering a content type
// twice replaces the earlier codec, which lets callers plug in their own
// converters for the built-in types.
func (r *Registry) Register(c Codec) error {
	key := negotiate.Base(c.ContentType())
	if key == "" {
		return fmt.Errorf("codec %T has no content type", c)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.codecs[key]; !exists {
		r.order = append(r.order, c.ContentType())
	}
	r.codecs[key] = c
	return nil
}

// Lookup finds the codec for contentType
func (r *Registry) Lookup(contentType string) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[negotiate.Base(contentType)]
	return c, ok
}

// ContentTypes lists the registered content types in registration order
func (r *Registry) ContentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
