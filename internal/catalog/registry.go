package catalog

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/rescale/brocoli/internal/form"
)

// Opener creates a catalog rooted at root from serialized connection values.
type Opener func(ctx context.Context, root string, values form.Values) (Catalog, error)

// Type describes a backend kind that can be selected by name in a profile.
type Type struct {
	Name        string
	Description string
	// Fields returns a fresh field set; callers may mutate it.
	Fields func() *form.Fields
	Open   Opener
}

// Registry maps catalog type names to their implementation.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Type
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]Type)}
}

// Default is the process-wide registry populated by internal/catalog/all.
var Default = NewRegistry()

// Register adds t. Registering the same name twice is an error.
func (r *Registry) Register(t Type) error {
	if t.Name == "" || t.Open == nil {
		return fmt.Errorf("catalog type %q: name and opener are required", t.Name)
	}
	if t.Fields == nil {
		t.Fields = form.NewFields
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[t.Name]; ok {
		return fmt.Errorf("%s: %w", t.Name, ErrDuplicateType)
	}
	r.types[t.Name] = t
	return nil
}

// MustRegister is Register for package init functions.
func (r *Registry) MustRegister(t Type) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// retiredTypes are catalog types found in old profiles that no backend
// implements any more.
var retiredTypes = map[string]string{
	"irods3": "iRODS 3",
}

// Lookup returns the type registered under name.
func (r *Registry) Lookup(name string) (Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	if !ok {
		if desc, retired := retiredTypes[name]; retired {
			return Type{}, fmt.Errorf("%q (%s) is no longer supported: %w", name, desc, ErrUnknownType)
		}
		return Type{}, fmt.Errorf("%q: %w", name, ErrUnknownType)
	}
	return t, nil
}

// Names returns registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Open instantiates a catalog of the named type.
func (r *Registry) Open(ctx context.Context, name, root string, values form.Values) (Catalog, error) {
	t, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	cat, err := t.Open(ctx, root, values)
	if err != nil {
		return nil, fmt.Errorf("open %s catalog: %w", name, err)
	}
	return cat, nil
}
