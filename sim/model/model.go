// Package model implements the numeric model adapter component. The solver
// behind it is deliberately the simplest possible stand-in — a first-order
// lag advanced by explicit Euler — because real model backends (FMU solvers
// and the like) plug in as external collaborators behind the same contract.
package model

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/marvin-schl/cs-fmu-mapper/sim"
)

// Config is the model component's section of the run configuration.
type Config struct {
	Type    string             `yaml:"type"`
	Inputs  map[string]float64 `yaml:"inputs"`
	Outputs map[string]float64 `yaml:"outputs"`

	// Gain and TimeConstant parameterize dy/dt = (gain*u - y) / timeConstant.
	Gain         float64 `yaml:"gain"`
	TimeConstant float64 `yaml:"timeConstant"`

	// StepsPerCycle divides one outer cycle into k internal sub-steps of
	// dt/k each. Default 1.
	StepsPerCycle int `yaml:"stepsPerCycle"`
}

// Model integrates a first-order lag from its single input to its single
// output, sub-stepping internally per its configured granularity.
type Model struct {
	sim.BaseComponent

	inVar  string
	outVar string
	gain   float64
	tau    float64
	k      int
	y      float64
}

// New builds the model component from its config section.
func New(name string, node *yaml.Node) (sim.Component, error) {
	cfg := Config{Gain: 1, StepsPerCycle: 1}
	if err := node.Decode(&cfg); err != nil {
		return nil, err
	}
	if len(cfg.Inputs) != 1 || len(cfg.Outputs) != 1 {
		return nil, fmt.Errorf("model needs exactly one input and one output variable, got %d/%d",
			len(cfg.Inputs), len(cfg.Outputs))
	}
	if cfg.TimeConstant <= 0 {
		return nil, fmt.Errorf("timeConstant must be positive, got %g", cfg.TimeConstant)
	}
	if cfg.StepsPerCycle < 1 {
		return nil, fmt.Errorf("stepsPerCycle must be >= 1, got %d", cfg.StepsPerCycle)
	}

	m := &Model{
		BaseComponent: sim.NewBaseComponent(name, sim.TypeModel, cfg.Inputs, cfg.Outputs),
		gain:          cfg.Gain,
		tau:           cfg.TimeConstant,
		k:             cfg.StepsPerCycle,
	}
	for name := range cfg.Inputs {
		m.inVar = name
	}
	for name, init := range cfg.Outputs {
		m.outVar = name
		m.y = init
	}
	logrus.Infof("model %q: %s -> %s (gain=%g, tau=%gs, %d sub-steps/cycle)",
		name, m.inVar, m.outVar, m.gain, m.tau, m.k)
	return m, nil
}

// Step advances the lag from t by dt in k sub-steps of dt/k each, reading the
// input once at the start of the cycle (its value is frozen between mapping
// phases anyway) and publishing the state once at the end.
func (m *Model) Step(ctx context.Context, t, dt float64) error {
	u, err := m.Inputs().Get(m.inVar)
	if err != nil {
		return err
	}
	h := dt / float64(m.k)
	for i := 0; i < m.k; i++ {
		m.y += h * (m.gain*u - m.y) / m.tau
	}
	return m.Outputs().Set(m.outVar, m.y)
}

// StepsPerCycle declares the internal sub-step granularity.
func (m *Model) StepsPerCycle() int { return m.k }
