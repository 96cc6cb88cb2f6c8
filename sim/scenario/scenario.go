// Package scenario implements the scripted signal source: a component whose
// outputs are driven by a precomputed schedule table rather than live
// computation.
package scenario

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/marvin-schl/cs-fmu-mapper/sim"
	"github.com/marvin-schl/cs-fmu-mapper/sim/schedule"
)

// Config is the scenario component's section of the run configuration.
type Config struct {
	Type string `yaml:"type"`
	// Outputs optionally restricts the declared output variables to a subset
	// of the generated columns. When absent, every column becomes an output.
	Outputs map[string]float64 `yaml:"outputs"`
	// Schedule is the compact pattern description the table is built from.
	Schedule schedule.Spec `yaml:"schedule"`
	// ExportPath optionally names a directory the generated schedule is
	// exported to during initialize (schedule.csv + schedule.yaml).
	ExportPath string `yaml:"exportPath"`
}

// Scenario steps through its schedule table, writing the row in force at the
// current simulation time into its output buffer. It reports finished once
// the simulation time passes the end of the table.
type Scenario struct {
	sim.BaseComponent

	table    *schedule.Table
	spec     schedule.Spec
	export   string
	finished bool
	progress float64
}

// New builds the scenario component and its schedule table. Malformed
// schedule parameters fail here, before the run begins.
func New(name string, node *yaml.Node) (sim.Component, error) {
	var cfg Config
	if err := node.Decode(&cfg); err != nil {
		return nil, err
	}
	table, err := cfg.Schedule.Generate()
	if err != nil {
		return nil, err
	}

	outputs := cfg.Outputs
	if outputs == nil {
		outputs = make(map[string]float64, len(table.Columns()))
		for _, column := range table.Columns() {
			outputs[column] = 0
		}
	} else {
		declared := map[string]bool{}
		for _, column := range table.Columns() {
			declared[column] = true
		}
		for name := range outputs {
			if !declared[name] {
				return nil, fmt.Errorf("output %q is not a generated schedule column", name)
			}
		}
	}

	s := &Scenario{
		BaseComponent: sim.NewBaseComponent(name, sim.TypeScenario, nil, outputs),
		table:         table,
		spec:          cfg.Schedule,
		export:        cfg.ExportPath,
	}
	logrus.Infof("scenario %q: %d rows covering [%g, %g)s", name, table.Len(), table.Start(), table.End())
	return s, nil
}

// Initialize exports the generated schedule when configured to.
func (s *Scenario) Initialize(ctx context.Context) error {
	if s.export == "" {
		return nil
	}
	return s.exportSchedule()
}

// Step writes the table row in force at t into the output buffer. Before the
// first row the outputs keep their defaults; past the end of the table the
// scenario is finished and stepping becomes a no-op.
func (s *Scenario) Step(ctx context.Context, t, dt float64) error {
	if s.finished {
		return nil
	}
	if t >= s.table.End() {
		s.finished = true
		s.progress = 1
		logrus.Infof("scenario %q finished at t=%gs", s.Name(), t)
		return nil
	}
	if span := s.table.End() - s.table.Start(); span > 0 {
		s.progress = (t - s.table.Start()) / span
	}
	values, ok := s.table.ValuesAt(t)
	if !ok {
		return nil
	}
	for name := range values {
		if !s.Outputs().Contains(name) {
			delete(values, name)
		}
	}
	return s.Outputs().SetValues(values)
}

// IsFinished reports whether the schedule has been played out.
func (s *Scenario) IsFinished() bool { return s.finished }

// Progress returns the played fraction of the schedule in [0, 1].
func (s *Scenario) Progress() float64 { return s.progress }

// Table exposes the generated schedule for inspection.
func (s *Scenario) Table() *schedule.Table { return s.table }

func (s *Scenario) exportSchedule() error {
	if err := os.MkdirAll(s.export, 0o755); err != nil {
		return err
	}

	csvPath := filepath.Join(s.export, "schedule.csv")
	f, err := os.Create(csvPath)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(append([]string{"t"}, s.table.Columns()...)); err != nil {
		return err
	}
	for _, row := range s.table.Rows() {
		record := make([]string, 0, len(row.Values)+1)
		record = append(record, strconv.FormatFloat(row.T, 'g', -1, 64))
		for _, v := range row.Values {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	specPath := filepath.Join(s.export, "schedule.yaml")
	data, err := yaml.Marshal(s.spec)
	if err != nil {
		return err
	}
	if err := os.WriteFile(specPath, data, 0o644); err != nil {
		return err
	}
	logrus.Infof("scenario %q: exported schedule to %s", s.Name(), s.export)
	return nil
}
