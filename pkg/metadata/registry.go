package metadata

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nainya/entitystore/pkg/errs"
)

// Registry holds the metadata of every entity type known to the application.
// It is constructed once during bootstrap and passed explicitly to the
// components that need it.
type Registry struct {
	mu      sync.RWMutex
	byClass map[string]*EntityMetadata
}

// NewRegistry creates a registry holding the given metadata.
func NewRegistry(metas ...*EntityMetadata) (*Registry, error) {
	r := &Registry{byClass: make(map[string]*EntityMetadata, len(metas))}
	for _, m := range metas {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds metadata for a new entity class.
func (r *Registry) Register(m *EntityMetadata) error {
	if m == nil {
		return fmt.Errorf("metadata: nil entity metadata")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byClass[m.class]; exists {
		return fmt.Errorf("metadata: entity class %s already registered", m.class)
	}
	r.byClass[m.class] = m
	return nil
}

// Resolve returns the metadata for an entity class. The same instance is
// returned for the lifetime of the registry.
func (r *Registry) Resolve(class string) (*EntityMetadata, error) {
	r.mu.RLock()
	m, ok := r.byClass[class]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrNotRegistered, class)
	}
	return m, nil
}

// ResolveEntity returns the metadata for the class of an entity instance.
func (r *Registry) ResolveEntity(entity any) (*EntityMetadata, error) {
	if entity == nil {
		return nil, fmt.Errorf("%w: nil entity", errs.ErrNotRegistered)
	}
	return r.Resolve(ClassOf(entity))
}

// Classes lists the registered entity classes in sorted order.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	classes := make([]string, 0, len(r.byClass))
	for c := range r.byClass {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	return classes
}
