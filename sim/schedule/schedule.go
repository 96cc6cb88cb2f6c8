// Package schedule turns compact periodic pattern descriptions into concrete
// time-indexed value tables. A Table is built once at component construction,
// is immutable afterwards, and represents a step function: the value at any
// query time is the value of the latest row at or before it.
package schedule

import (
	"fmt"
	"math"
	"sort"

	"gopkg.in/yaml.v3"
)

// TimeUnit is the unit the spec's time offsets are expressed in.
type TimeUnit string

const (
	Days    TimeUnit = "days"
	Hours   TimeUnit = "hours"
	Minutes TimeUnit = "minutes"
	Seconds TimeUnit = "seconds"
)

// Seconds returns the length of one unit in seconds.
func (u TimeUnit) Seconds() (float64, error) {
	switch u {
	case Days:
		return 86400, nil
	case Hours:
		return 3600, nil
	case Minutes:
		return 60, nil
	case Seconds:
		return 1, nil
	}
	return 0, fmt.Errorf("unknown time unit %q", u)
}

// Span returns the natural span of the unit in units: 24 hours, 60 minutes,
// 60 seconds, 1 day.
func (u TimeUnit) Span() (float64, error) {
	switch u {
	case Days:
		return 1, nil
	case Hours:
		return 24, nil
	case Minutes, Seconds:
		return 60, nil
	}
	return 0, fmt.Errorf("unknown time unit %q", u)
}

// ConfigError marks a malformed schedule specification. It is fatal and
// detected before the run begins.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("schedule: %v", e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(format string, args ...any) error {
	return &ConfigError{Err: fmt.Errorf(format, args...)}
}

// Pattern is one named value list of the spec.
type Pattern struct {
	Key    string
	Values []float64
}

// Patterns preserves the declared order of the pattern mapping; binding to
// items is positional for keys that match no item name, so order is part of
// the configuration's meaning.
type Patterns []Pattern

func (p *Patterns) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("patterns: expected a mapping, got %v", node.Tag)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var pattern Pattern
		if err := node.Content[i].Decode(&pattern.Key); err != nil {
			return err
		}
		if err := node.Content[i+1].Decode(&pattern.Values); err != nil {
			return fmt.Errorf("pattern %q: %w", pattern.Key, err)
		}
		*p = append(*p, pattern)
	}
	return nil
}

// Built-in defaults, used when a spec names neither items nor patterns.
var (
	DefaultItems    = []string{"item1", "item2", "item3"}
	DefaultPatterns = Patterns{
		{Key: "1", Values: []float64{0, 1, 0, 1}},
		{Key: "2", Values: []float64{1, 0, 1, 0}},
		{Key: "3", Values: []float64{0, 1, 1, 0}},
	}
)

// DefaultDuration covers four days.
const DefaultDuration = 4 * 86400

// DefaultColumnPrefix qualifies generated column names as scenario outputs.
const DefaultColumnPrefix = "scen.out."

// Spec is the compact periodic description of a schedule.
type Spec struct {
	// Duration of the generated table in seconds. Default four days.
	Duration float64 `yaml:"duration"`
	// Items to generate columns for, in declared order.
	Items []string `yaml:"items"`
	// Times are the offsets within one period, expressed in TimeUnit. When
	// absent, offsets are synthesized evenly across the unit's natural span
	// with one offset per pattern value.
	Times []float64 `yaml:"times"`
	// Patterns holds one value list per item, each the same length as Times.
	Patterns Patterns `yaml:"patterns"`
	// TimeUnit the Times are expressed in. Default hours.
	TimeUnit TimeUnit `yaml:"timeUnit"`
	// ColumnPrefix prepended to every item name. Default "scen.out.".
	ColumnPrefix string `yaml:"columnPrefix"`
	// StartTime of the first tile in seconds. Default 0.
	StartTime float64 `yaml:"startTime"`
}

// Row is one table entry: a timestamp and the values of all columns at it.
type Row struct {
	T      float64
	Values []float64
}

// Table is an ordered, monotonically increasing sequence of rows covering
// [start, start+duration). Read-only after generation.
type Table struct {
	columns []string
	rows    []Row
	start   float64
	end     float64
}

// Generate builds the table for the spec. Identical specs yield identical
// tables.
func (s Spec) Generate() (*Table, error) {
	duration := s.Duration
	if duration == 0 {
		duration = DefaultDuration
	}
	if duration < 0 {
		return nil, configErrorf("duration must be positive, got %g", duration)
	}
	unit := s.TimeUnit
	if unit == "" {
		unit = Hours
	}
	unitSeconds, err := unit.Seconds()
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	span, _ := unit.Span()
	prefix := s.ColumnPrefix
	if prefix == "" {
		prefix = DefaultColumnPrefix
	}
	items := s.Items
	patterns := s.Patterns
	if items == nil && patterns == nil {
		items, patterns = DefaultItems, DefaultPatterns
	}
	if len(items) == 0 {
		return nil, configErrorf("items must not be empty")
	}
	if len(patterns) == 0 {
		return nil, configErrorf("patterns must not be empty")
	}
	if len(patterns) != len(items) {
		return nil, configErrorf("got %d patterns for %d items; counts must match", len(patterns), len(items))
	}

	patternLen := len(patterns[0].Values)
	for _, p := range patterns {
		if len(p.Values) != patternLen {
			return nil, configErrorf("pattern %q has %d values, pattern %q has %d; lengths must match",
				patterns[0].Key, patternLen, p.Key, len(p.Values))
		}
	}
	if patternLen == 0 {
		return nil, configErrorf("patterns must not be empty")
	}
	if s.Times != nil && len(s.Times) != patternLen {
		return nil, configErrorf("got %d times for pattern length %d; lengths must match", len(s.Times), patternLen)
	}

	bound, err := bindPatterns(items, patterns)
	if err != nil {
		return nil, err
	}

	// Offsets within one period, in seconds, and the period length itself.
	var offsets []float64
	var period float64
	if s.Times != nil {
		offsets = make([]float64, len(s.Times))
		prev := math.Inf(-1)
		for i, t := range s.Times {
			if t < 0 {
				return nil, configErrorf("times must not be negative, got %g", t)
			}
			if t <= prev {
				return nil, configErrorf("times must be strictly increasing")
			}
			prev = t
			offsets[i] = t * unitSeconds
		}
		period = offsets[len(offsets)-1]
		if period == 0 {
			period = span * unitSeconds
		}
	} else {
		spanSeconds := span * unitSeconds
		step := spanSeconds / float64(patternLen)
		offsets = make([]float64, patternLen)
		for i := range offsets {
			offsets[i] = float64(i) * step
		}
		period = spanSeconds
	}

	table := &Table{
		columns: make([]string, len(items)),
		start:   s.StartTime,
		end:     s.StartTime + duration,
	}
	for i, item := range items {
		table.columns[i] = prefix + item
	}

	// Tile the period until the timestamps cover [start, start+duration).
	// An offset equal to the period collides with the next tile's first row;
	// there the restarting pattern's value takes effect.
	for k := 0; ; k++ {
		base := s.StartTime + float64(k)*period
		if base >= table.end {
			break
		}
		for i, offset := range offsets {
			ts := base + offset
			if ts >= table.end {
				break
			}
			values := make([]float64, len(items))
			for col := range bound {
				values[col] = bound[col][i]
			}
			if n := len(table.rows); n > 0 && table.rows[n-1].T == ts {
				table.rows[n-1].Values = values
				continue
			}
			table.rows = append(table.rows, Row{T: ts, Values: values})
		}
	}
	return table, nil
}

// bindPatterns assigns one value list to every item: an exact key/name match
// binds directly, everything else binds positionally in declared order. Any
// leftover or missing binding is a configuration error.
func bindPatterns(items []string, patterns Patterns) ([][]float64, error) {
	byKey := make(map[string]int, len(patterns))
	for i, p := range patterns {
		if _, dup := byKey[p.Key]; dup {
			return nil, configErrorf("pattern key %q declared twice", p.Key)
		}
		byKey[p.Key] = i
	}

	bound := make([][]float64, len(items))
	claimed := make([]bool, len(patterns))
	var unboundItems []int
	for i, item := range items {
		if pi, ok := byKey[item]; ok {
			bound[i] = patterns[pi].Values
			claimed[pi] = true
			continue
		}
		unboundItems = append(unboundItems, i)
	}
	var free []int
	for i := range patterns {
		if !claimed[i] {
			free = append(free, i)
		}
	}
	if len(free) != len(unboundItems) {
		return nil, configErrorf("%d patterns left for %d unbound items", len(free), len(unboundItems))
	}
	for n, i := range unboundItems {
		bound[i] = patterns[free[n]].Values
	}
	return bound, nil
}

// Columns returns the generated column names in item order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Rows returns a copy of the table rows.
func (t *Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	copy(out, t.rows)
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Start returns the first covered timestamp.
func (t *Table) Start() float64 { return t.start }

// End returns the first timestamp past the covered range.
func (t *Table) End() float64 { return t.end }

// ValueAt returns the column value in force at time x: the value of the
// latest row with timestamp <= x, and 0 before the first row. The second
// return reports whether a row was in force.
func (t *Table) ValueAt(column string, x float64) (float64, bool) {
	col := -1
	for i, name := range t.columns {
		if name == column {
			col = i
			break
		}
	}
	if col < 0 || len(t.rows) == 0 {
		return 0, false
	}
	// First row with T > x, then step back.
	idx := sort.Search(len(t.rows), func(i int) bool { return t.rows[i].T > x }) - 1
	if idx < 0 {
		return 0, false
	}
	return t.rows[idx].Values[col], true
}

// ValuesAt returns all column values in force at time x, keyed by column
// name. Before the first row it returns false and no values.
func (t *Table) ValuesAt(x float64) (map[string]float64, bool) {
	if len(t.rows) == 0 {
		return nil, false
	}
	idx := sort.Search(len(t.rows), func(i int) bool { return t.rows[i].T > x }) - 1
	if idx < 0 {
		return nil, false
	}
	out := make(map[string]float64, len(t.columns))
	for i, name := range t.columns {
		out[name] = t.rows[idx].Values[i]
	}
	return out, true
}
