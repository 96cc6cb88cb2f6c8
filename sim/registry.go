package sim

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Constructor builds a component from its resolved configuration section.
// The node is the component's own YAML mapping; constructors decode it into
// their package-local config struct.
type Constructor func(name string, node *yaml.Node) (Component, error)

// registry maps component type tags to constructors. Populated once at
// process start from built-in packages' init functions and any externally
// supplied extensions, resolved per construction, never per cycle.
var registry = map[string]Constructor{}

// Register makes a component type available for construction. It panics on a
// duplicate tag: registration happens from init functions, where a collision
// is a programming error.
func Register(typeTag string, ctor Constructor) {
	if _, dup := registry[typeTag]; dup {
		panic(fmt.Sprintf("sim: component type %q registered twice", typeTag))
	}
	registry[typeTag] = ctor
}

// NewComponent instantiates a component of the given type from its config
// section. Unknown types fail with a ConfigurationError naming the section.
func NewComponent(typeTag, name string, node *yaml.Node) (Component, error) {
	ctor, ok := registry[typeTag]
	if !ok {
		return nil, &ConfigurationError{
			Section: name,
			Err:     fmt.Errorf("component type %q is not implemented (registered: %v)", typeTag, RegisteredTypes()),
		}
	}
	c, err := ctor(name, node)
	if err != nil {
		return nil, &ConfigurationError{Section: name, Err: err}
	}
	return c, nil
}

// RegisteredTypes lists the known type tags in stable order.
func RegisteredTypes() []string {
	tags := make([]string, 0, len(registry))
	for tag := range registry {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
