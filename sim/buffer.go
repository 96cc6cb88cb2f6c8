package sim

import (
	"fmt"
	"sort"
)

// VarBuffer is the per-component key/value store for named signals. The name
// set is fixed at construction; values are scalar. A component owns its two
// buffers exclusively, external writes happen only through the Mapper's copy.
type VarBuffer struct {
	declared bool
	values   map[string]float64
}

// NewVarBuffer builds a buffer declaring exactly the given names with their
// initial values. A nil map yields an undeclared buffer: every accessor then
// fails with ErrMissingCapability, signalling that the component has no
// variables on this side at all.
func NewVarBuffer(initial map[string]float64) *VarBuffer {
	if initial == nil {
		return &VarBuffer{}
	}
	values := make(map[string]float64, len(initial))
	for name, v := range initial {
		values[name] = v
	}
	return &VarBuffer{declared: true, values: values}
}

// Declared reports whether the component declares this buffer at all.
func (b *VarBuffer) Declared() bool { return b.declared }

// Contains reports whether name is part of the declared set.
func (b *VarBuffer) Contains(name string) bool {
	if !b.declared {
		return false
	}
	_, ok := b.values[name]
	return ok
}

// Get returns the current value of a declared variable.
func (b *VarBuffer) Get(name string) (float64, error) {
	if !b.declared {
		return 0, ErrMissingCapability
	}
	v, ok := b.values[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownVariable, name)
	}
	return v, nil
}

// Set updates the current value of a declared variable.
func (b *VarBuffer) Set(name string, value float64) error {
	if !b.declared {
		return ErrMissingCapability
	}
	if _, ok := b.values[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVariable, name)
	}
	b.values[name] = value
	return nil
}

// Values returns a copy of the whole buffer.
func (b *VarBuffer) Values() (map[string]float64, error) {
	if !b.declared {
		return nil, ErrMissingCapability
	}
	out := make(map[string]float64, len(b.values))
	for name, v := range b.values {
		out[name] = v
	}
	return out, nil
}

// SetValues overwrites the values of the given names. Every name must be
// declared; on the first unknown name nothing further is applied.
func (b *VarBuffer) SetValues(values map[string]float64) error {
	if !b.declared {
		return ErrMissingCapability
	}
	for name := range values {
		if _, ok := b.values[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownVariable, name)
		}
	}
	for name, v := range values {
		b.values[name] = v
	}
	return nil
}

// Names returns the declared variable names in stable (sorted) order.
func (b *VarBuffer) Names() []string {
	names := make([]string, 0, len(b.values))
	for name := range b.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
