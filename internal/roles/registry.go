// Package roles holds the fixed, ordered role registry. The order is the
// priority order used by the scheduler when it hands control forward.
package roles

import (
	"fmt"
	"strings"
	"time"
)

// Role is an immutable role definition.
type Role struct {
	Name string
	// Frequency is an informational execution hint. It is never enforced as a
	// hard period once the scheduler is live.
	Frequency time.Duration
}

// Registry maintains the ordered role set.
type Registry struct {
	roles []Role
	index map[string]int
}

// New builds a registry from roles in priority order.
func New(defs []Role) (*Registry, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("roles: at least one role is required")
	}
	reg := &Registry{
		roles: make([]Role, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for i, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, fmt.Errorf("roles: role %d has no name", i)
		}
		if _, exists := reg.index[name]; exists {
			return nil, fmt.Errorf("roles: %s registered twice", name)
		}
		if def.Frequency < 0 {
			return nil, fmt.Errorf("roles: %s has negative frequency", name)
		}
		reg.index[name] = len(reg.roles)
		reg.roles = append(reg.roles, Role{Name: name, Frequency: def.Frequency})
	}
	return reg, nil
}

// MustNew panics if the registry cannot be built.
func MustNew(defs []Role) *Registry {
	reg, err := New(defs)
	if err != nil {
		panic(err)
	}
	return reg
}

// Len reports how many roles are registered.
func (r *Registry) Len() int {
	return len(r.roles)
}

// Index returns the priority position of name.
func (r *Registry) Index(name string) (int, bool) {
	i, ok := r.index[name]
	return i, ok
}

// Contains reports whether name is registered.
func (r *Registry) Contains(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Role looks up a role definition by name.
func (r *Registry) Role(name string) (Role, bool) {
	i, ok := r.index[name]
	if !ok {
		return Role{}, false
	}
	return r.roles[i], true
}

// At returns the role at position i.
func (r *Registry) At(i int) Role {
	return r.roles[i]
}

// Roles returns a copy of the ordered role list.
func (r *Registry) Roles() []Role {
	out := make([]Role, len(r.roles))
	copy(out, r.roles)
	return out
}

// Names returns role names in priority order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.roles))
	for i, role := range r.roles {
		names[i] = role.Name
	}
	return names
}
