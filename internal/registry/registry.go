// Package registry holds the report descriptors contributed by business modules.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/noah-isme/report-api/internal/models"
)

// ErrRegistrySealed is returned when registering after discovery finished.
var ErrRegistrySealed = errors.New("report registry is sealed")

// DataFetch produces the data tree a report renders. Params are the request
// query parameters, one value per key.
type DataFetch func(ctx context.Context, principal *models.Principal, params map[string]string) (map[string]interface{}, error)

// Descriptor describes one report a module offers.
type Descriptor struct {
	Name              string
	Description       string
	Module            string
	DefaultDefinition string
	DataFetch         DataFetch
	Permissions       []string
}

// NewDescriptor builds a validated descriptor.
func NewDescriptor(name, defaultDefinition string, fetch DataFetch, permissions ...string) (Descriptor, error) {
	d := Descriptor{
		Name:              name,
		DefaultDefinition: defaultDefinition,
		DataFetch:         fetch,
		Permissions:       permissions,
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// Validate checks the fields every descriptor needs.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("report descriptor: name is required")
	}
	if d.DataFetch == nil {
		return fmt.Errorf("report descriptor %q: data fetch is required", d.Name)
	}
	return nil
}

// VisibleTo reports whether the principal holds every permission the report requires.
func (d Descriptor) VisibleTo(principal *models.Principal) bool {
	return principal.HasPerms(d.Permissions...)
}

// Registry is the set of known reports. It is written during discovery only
// and read concurrently afterwards.
type Registry struct {
	mu          sync.RWMutex
	descriptors []Descriptor
	sealed      bool
}

// New creates an empty, writable registry.
func New() *Registry {
	return &Registry{}
}

// Register appends descriptors in order. Duplicate names are kept; Lookup
// returns the first one registered.
func (r *Registry) Register(descs ...Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrRegistrySealed
	}
	r.descriptors = append(r.descriptors, descs...)
	return nil
}

// Seal makes the registry read-only.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether discovery has completed.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Lookup finds the first descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.descriptors {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// ListVisible returns the descriptors the principal may see, in registration order.
func (r *Registry) ListVisible(principal *models.Principal) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	visible := make([]Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		if d.VisibleTo(principal) {
			visible = append(visible, d)
		}
	}
	return visible
}

// All returns a copy of every registered descriptor.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors)
}
