package sim

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a YAML-decodable wall-clock duration. It accepts either a Go
// duration string ("10s", "250ms") or a bare number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!str" {
		parsed, err := time.ParseDuration(node.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", node.Value, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var seconds float64
	if err := node.Decode(&seconds); err != nil {
		return fmt.Errorf("invalid duration %q", node.Value)
	}
	*d = Duration(seconds * float64(time.Second))
	return nil
}

func (d Duration) String() string { return time.Duration(d).String() }

// Std converts to the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Phase selects when a mapping rule is applied relative to component stepping.
type Phase string

const (
	PreStep  Phase = "preStep"
	PostStep Phase = "postStep"
)

// MappingRule copies one fully qualified output variable into one or more
// fully qualified input variables during the given phase. Fan-out is allowed;
// fan-in (two rules of one phase targeting the same destination) is a
// configuration error.
type MappingRule struct {
	Source       string
	Destinations []string
	Phase        Phase
}

// ComponentSection is one entry of the ordered component list: its section
// name (the component name), the declared type tag, and the raw YAML node the
// component's constructor decodes itself.
type ComponentSection struct {
	Name string
	Type string
	Node yaml.Node
}

// componentList preserves YAML declaration order, which fixes construction
// order and with it every deterministic fan-out in the run.
type componentList []ComponentSection

func (l *componentList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("components: expected a mapping, got %v", node.Tag)
	}
	// Mapping nodes alternate key/value in Content.
	for i := 0; i+1 < len(node.Content); i += 2 {
		var section ComponentSection
		if err := node.Content[i].Decode(&section.Name); err != nil {
			return err
		}
		section.Node = *node.Content[i+1]
		var header struct {
			Type string `yaml:"type"`
		}
		if err := section.Node.Decode(&header); err != nil {
			return fmt.Errorf("component %q: %w", section.Name, err)
		}
		section.Type = header.Type
		*l = append(*l, section)
	}
	return nil
}

// MappingConfig is the declarative rule set, partitioned by phase. Keys are
// source output variables, values the destination input variables they feed.
type MappingConfig struct {
	PreStep  map[string][]string `yaml:"preStep"`
	PostStep map[string][]string `yaml:"postStep"`
}

// Rules flattens both phases into a rule list, sources in stable order.
func (m MappingConfig) Rules() []MappingRule {
	rules := make([]MappingRule, 0, len(m.PreStep)+len(m.PostStep))
	for _, phase := range []Phase{PreStep, PostStep} {
		bySource := m.PreStep
		if phase == PostStep {
			bySource = m.PostStep
		}
		sources := make([]string, 0, len(bySource))
		for source := range bySource {
			sources = append(sources, source)
		}
		sort.Strings(sources)
		for _, source := range sources {
			rules = append(rules, MappingRule{Source: source, Destinations: bySource[source], Phase: phase})
		}
	}
	return rules
}

// RunConfig is the fully resolved configuration the orchestrator consumes.
// Assembly and templating of configuration files happen upstream; by the time
// a RunConfig exists every component section and mapping is final.
type RunConfig struct {
	// TimeStepPerCycle is the fixed dt used in standalone mode. Ignored when
	// a timing authority is present.
	TimeStepPerCycle float64 `yaml:"timeStepPerCycle"`

	// Tend optionally bounds the run: once t reaches it the orchestrator
	// finalizes even if components still report unfinished. 0 = no cutoff.
	Tend float64 `yaml:"tend"`

	// HandshakeTimeout bounds each cycle handshake in master-driven mode.
	HandshakeTimeout Duration `yaml:"handshakeTimeout"`

	Components componentList `yaml:"components"`
	Mapping    MappingConfig `yaml:"mapping"`
}

// DefaultHandshakeTimeout applies when the config leaves it unset.
const DefaultHandshakeTimeout = Duration(10 * time.Second)

// LoadRunConfig reads and validates a resolved run configuration.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run config: %w", err)
	}
	var cfg RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigurationError{Section: path, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate performs the checks that need no live components. Mapping name
// resolution and fan-in detection happen in NewMapper, timing-mode checks in
// NewOrchestrator.
func (cfg *RunConfig) Validate() error {
	if len(cfg.Components) == 0 {
		return &ConfigurationError{Err: fmt.Errorf("no components declared")}
	}
	if cfg.TimeStepPerCycle < 0 {
		return &ConfigurationError{Err: fmt.Errorf("timeStepPerCycle must not be negative, got %g", cfg.TimeStepPerCycle)}
	}
	if cfg.Tend < 0 {
		return &ConfigurationError{Err: fmt.Errorf("tend must not be negative, got %g", cfg.Tend)}
	}
	seen := map[string]bool{}
	for _, section := range cfg.Components {
		if section.Type == "" {
			return &ConfigurationError{Section: section.Name, Err: fmt.Errorf("missing component type")}
		}
		if seen[section.Name] {
			return &ConfigurationError{Section: section.Name, Err: fmt.Errorf("duplicate component name")}
		}
		seen[section.Name] = true
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return nil
}

// BuildComponents instantiates every declared component through the registry,
// in declaration order.
func (cfg *RunConfig) BuildComponents() ([]Component, error) {
	components := make([]Component, 0, len(cfg.Components))
	for i := range cfg.Components {
		section := &cfg.Components[i]
		c, err := NewComponent(section.Type, section.Name, &section.Node)
		if err != nil {
			return nil, err
		}
		components = append(components, c)
	}
	return components, nil
}
