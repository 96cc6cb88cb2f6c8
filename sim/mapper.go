package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// binding is a resolved variable reference: the owning component and the
// buffer the variable lives in. Resolution happens once in NewMapper, so the
// steady-state apply is pure copies and can never fail on a name.
type binding struct {
	component Component
	buffer    *VarBuffer
	variable  string
}

type boundRule struct {
	source binding
	dests  []binding
}

// Mapper applies the pre-/post-step variable mappings between component
// buffers. All cross-component data flow in a run goes through it; components
// never reference each other directly.
type Mapper struct {
	pre  []boundRule
	post []boundRule
}

// NewMapper resolves the rule set against the live component set and rejects
// invalid configurations: a source that is not a declared output variable, a
// destination that is not a declared input variable, an ambiguous qualified
// name, or two rules of one phase fanning in on the same destination.
func NewMapper(rules []MappingRule, components []Component) (*Mapper, error) {
	m := &Mapper{}
	destSeen := map[Phase]map[string]string{PreStep: {}, PostStep: {}}

	for _, rule := range rules {
		if rule.Phase != PreStep && rule.Phase != PostStep {
			return nil, &ConfigurationError{Section: rule.Source, Err: fmt.Errorf("unknown phase %q", rule.Phase)}
		}
		source, err := resolve(rule.Source, components, outputSide)
		if err != nil {
			return nil, err
		}
		if len(rule.Destinations) == 0 {
			return nil, &ConfigurationError{Section: rule.Source, Err: fmt.Errorf("mapping has no destinations")}
		}
		bound := boundRule{source: source}
		for _, destVar := range rule.Destinations {
			if prev, dup := destSeen[rule.Phase][destVar]; dup {
				return nil, &ConfigurationError{
					Section: destVar,
					Err:     fmt.Errorf("destination mapped twice in %s phase (also fed by %q)", rule.Phase, prev),
				}
			}
			destSeen[rule.Phase][destVar] = rule.Source
			dest, err := resolve(destVar, components, inputSide)
			if err != nil {
				return nil, err
			}
			bound.dests = append(bound.dests, dest)
		}
		switch rule.Phase {
		case PreStep:
			m.pre = append(m.pre, bound)
		case PostStep:
			m.post = append(m.post, bound)
		}
	}
	logrus.Debugf("mapper resolved %d preStep and %d postStep rules", len(m.pre), len(m.post))
	return m, nil
}

type bufferSide int

const (
	outputSide bufferSide = iota
	inputSide
)

func resolve(name string, components []Component, side bufferSide) (binding, error) {
	var found []binding
	for _, c := range components {
		buffer := c.Outputs()
		if side == inputSide {
			buffer = c.Inputs()
		}
		if buffer.Contains(name) {
			found = append(found, binding{component: c, buffer: buffer, variable: name})
		}
	}
	kind := "output"
	if side == inputSide {
		kind = "input"
	}
	switch len(found) {
	case 0:
		return binding{}, &ConfigurationError{
			Section: name,
			Err:     fmt.Errorf("%w: no component declares %s variable %q", ErrUnknownVariable, kind, name),
		}
	case 1:
		return found[0], nil
	default:
		return binding{}, &ConfigurationError{
			Section: name,
			Err: fmt.Errorf("%s variable %q declared by both %q and %q",
				kind, name, found[0].component.Name(), found[1].component.Name()),
		}
	}
}

// Apply copies every rule of the phase: the source value read at apply time
// is written to each destination. Rules of one phase are independent (no rule
// targets another rule's destination), so application order does not matter.
// Returns the number of destination writes performed.
func (m *Mapper) Apply(phase Phase) int {
	rules := m.pre
	if phase == PostStep {
		rules = m.post
	}
	copies := 0
	for _, rule := range rules {
		value, err := rule.source.buffer.Get(rule.source.variable)
		if err != nil {
			// Names were validated at construction; a failure here means a
			// component swapped out its buffer mid-run, which the ownership
			// rules forbid.
			panic(fmt.Sprintf("mapper: resolved source %q vanished: %v", rule.source.variable, err))
		}
		for _, dest := range rule.dests {
			if err := dest.buffer.Set(dest.variable, value); err != nil {
				panic(fmt.Sprintf("mapper: resolved destination %q vanished: %v", dest.variable, err))
			}
			copies++
		}
	}
	return copies
}

// Rules reports how many rules each phase carries, for logging and metrics.
func (m *Mapper) Rules(phase Phase) int {
	if phase == PostStep {
		return len(m.post)
	}
	return len(m.pre)
}
