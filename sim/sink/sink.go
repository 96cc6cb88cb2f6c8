// Package sink implements the data sink component: it records the variables
// mapped into its input buffer at the end of every cycle and exports the
// recording when the run finalizes.
package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/guptarohit/asciigraph"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/marvin-schl/cs-fmu-mapper/sim"
)

// PlotConfig describes one terminal chart rendered at finalize.
type PlotConfig struct {
	Vars   []string `yaml:"vars"`
	Height int      `yaml:"height"`
}

// Config is the sink component's section of the run configuration.
type Config struct {
	Type   string             `yaml:"type"`
	Inputs map[string]float64 `yaml:"inputs"`

	// Path names the directory data.csv is written to at finalize.
	// Empty = keep the recording in memory only.
	Path string `yaml:"path"`

	// Plots are rendered to the terminal at finalize, one chart per entry.
	Plots map[string]PlotConfig `yaml:"plots"`
}

// Sink records its mapped inputs each cycle. The recording grows by one row
// per cycle and is flushed exactly once, at finalize.
type Sink struct {
	sim.BaseComponent

	path    string
	plots   map[string]PlotConfig
	columns []string
	times   []float64
	data    map[string][]float64
}

// New builds the sink component from its config section.
func New(name string, node *yaml.Node) (sim.Component, error) {
	var cfg Config
	if err := node.Decode(&cfg); err != nil {
		return nil, err
	}
	if len(cfg.Inputs) == 0 {
		return nil, fmt.Errorf("sink declares no input variables")
	}
	s := &Sink{
		BaseComponent: sim.NewBaseComponent(name, sim.TypeSink, cfg.Inputs, nil),
		path:          cfg.Path,
		plots:         cfg.Plots,
		data:          map[string][]float64{},
	}
	s.columns = s.Inputs().Names()
	for _, column := range s.columns {
		s.data[column] = nil
	}
	for plot, pc := range cfg.Plots {
		for _, v := range pc.Vars {
			if !s.Inputs().Contains(v) {
				return nil, fmt.Errorf("plot %q references undeclared input %q", plot, v)
			}
		}
	}
	return s, nil
}

// Step appends the current input values to the recording.
func (s *Sink) Step(ctx context.Context, t, dt float64) error {
	values, err := s.Inputs().Values()
	if err != nil {
		return err
	}
	s.times = append(s.times, t)
	for _, column := range s.columns {
		s.data[column] = append(s.data[column], values[column])
	}
	return nil
}

// Finalize renders the configured charts and writes the recording to
// <path>/data.csv.
func (s *Sink) Finalize() error {
	logrus.Infof("sink %q: recorded %d rows", s.Name(), len(s.times))
	s.renderPlots()
	if s.path == "" {
		return nil
	}
	return s.writeCSV()
}

// Rows returns the number of recorded cycles.
func (s *Sink) Rows() int { return len(s.times) }

// Series returns the recorded values of one input variable.
func (s *Sink) Series(name string) []float64 {
	out := make([]float64, len(s.data[name]))
	copy(out, s.data[name])
	return out
}

func (s *Sink) renderPlots() {
	if len(s.plots) > 0 && len(s.times) == 0 {
		// An aborted run can finalize before the first cycle recorded
		// anything; asciigraph rejects empty series.
		logrus.Warnf("sink %q: no recorded rows, skipping %d plot(s)", s.Name(), len(s.plots))
		return
	}
	for plot, pc := range s.plots {
		series := make([][]float64, 0, len(pc.Vars))
		for _, v := range pc.Vars {
			series = append(series, s.data[v])
		}
		height := pc.Height
		if height == 0 {
			height = 10
		}
		chart := asciigraph.PlotMany(series,
			asciigraph.Height(height),
			asciigraph.Caption(fmt.Sprintf("%s: %v", plot, pc.Vars)),
		)
		fmt.Println(chart)
	}
}

func (s *Sink) writeCSV() error {
	if err := os.MkdirAll(s.path, 0o755); err != nil {
		return err
	}
	path := filepath.Join(s.path, "data.csv")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = ';'
	if err := w.Write(append([]string{"time"}, s.columns...)); err != nil {
		return err
	}
	for i, t := range s.times {
		record := make([]string, 0, len(s.columns)+1)
		record = append(record, strconv.FormatFloat(t, 'g', -1, 64))
		for _, column := range s.columns {
			record = append(record, strconv.FormatFloat(s.data[column][i], 'g', -1, 64))
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	logrus.Infof("sink %q: saved recording to %s", s.Name(), path)
	return nil
}
