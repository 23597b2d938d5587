// Package typemap maps event wire names to Go types and back. A Mapper is
// populated once at startup and then only read.
package typemap

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

var (
	// ErrDuplicateWireName indicates a wire name already bound to a
	// different type.
	ErrDuplicateWireName = errors.New("wire name already registered")
	// ErrDuplicateType indicates a type already bound to a different wire
	// name.
	ErrDuplicateType = errors.New("type already registered")
	// ErrInvalidMapping indicates an empty wire name or a nil type.
	ErrInvalidMapping = errors.New("invalid type mapping")
)

// Mapper is a bidirectional registry between wire names and Go types. It is
// safe for concurrent use.
type Mapper struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}

// New returns an empty Mapper.
func New() *Mapper {
	return &Mapper{
		byName: make(map[string]reflect.Type),
		byType: make(map[reflect.Type]string),
	}
}

// Map registers T under the given wire name.
func Map[T any](m *Mapper, wire string) error {
	return m.Register(reflect.TypeFor[T](), wire)
}

// Register binds a type to a wire name. Registering the same pair twice is
// a no-op; binding either side to something else is an error. Pointer types
// are registered by their element type.
func (m *Mapper) Register(t reflect.Type, wire string) error {
	if t == nil || wire == "" {
		return fmt.Errorf("%w: type %v, wire name %q", ErrInvalidMapping, t, wire)
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byName[wire]; ok {
		if existing == t {
			return nil
		}
		return fmt.Errorf("%w: %q is bound to %v", ErrDuplicateWireName, wire, existing)
	}
	if existing, ok := m.byType[t]; ok {
		return fmt.Errorf("%w: %v is bound to %q", ErrDuplicateType, t, existing)
	}
	m.byName[wire] = t
	m.byType[t] = wire
	return nil
}

// Resolve returns the type registered under a wire name.
func (m *Mapper) Resolve(wire string) (reflect.Type, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.byName[wire]
	return t, ok
}

// WireName returns the wire name of a value's type. Pointers resolve to
// their element type.
func (m *Mapper) WireName(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.byType[t]
	return name, ok
}

// Names returns every registered wire name in sorted order.
func (m *Mapper) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.byName))
	for name := range m.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
