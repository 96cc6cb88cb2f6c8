package master

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/marvin-schl/cs-fmu-mapper/sim"
)

// TypePaced tags the self-contained wall-clock timing authority.
const TypePaced = "paced-master"

// PacedConfig is the paced master's section of the run configuration.
type PacedConfig struct {
	Type string `yaml:"type"`
	// Dt is the simulation step size granted per cycle.
	Dt float64 `yaml:"dt"`
	// Interval is the wall-clock pace between cycle grants. 0 grants cycles
	// as fast as the components step.
	Interval sim.Duration `yaml:"interval"`
	// Tend ends the run once the granted simulation time reaches it.
	Tend float64 `yaml:"tend"`
}

// Paced is a timing authority that grants one cycle per wall-clock interval
// with a fixed step size, pacing the co-simulation against real time the way
// a cyclic controller would.
type Paced struct {
	sim.BaseComponent

	dt       float64
	interval time.Duration
	tend     float64

	granted float64
	next    time.Time
}

// NewPaced builds the paced master from its config section.
func NewPaced(name string, node *yaml.Node) (sim.Component, error) {
	var cfg PacedConfig
	if err := node.Decode(&cfg); err != nil {
		return nil, err
	}
	if cfg.Dt <= 0 {
		return nil, fmt.Errorf("dt must be positive, got %g", cfg.Dt)
	}
	if cfg.Tend <= 0 {
		return nil, fmt.Errorf("tend must be positive, got %g", cfg.Tend)
	}
	logrus.Infof("paced master %q: dt=%gs every %s until tend=%gs", name, cfg.Dt, cfg.Interval, cfg.Tend)
	return &Paced{
		BaseComponent: sim.NewBaseComponent(name, TypePaced, nil, nil),
		dt:            cfg.Dt,
		interval:      cfg.Interval.Std(),
		tend:          cfg.Tend,
	}, nil
}

// Handshake waits out the wall-clock pace and grants the next cycle.
func (p *Paced) Handshake(ctx context.Context) (float64, error) {
	if p.interval > 0 {
		now := time.Now()
		if p.next.IsZero() {
			p.next = now
		}
		if wait := p.next.Sub(now); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
		p.next = p.next.Add(p.interval)
	}
	p.granted += p.dt
	return p.dt, nil
}

// Step is a no-op: the authority's work happens in the handshake.
func (p *Paced) Step(ctx context.Context, t, dt float64) error { return nil }

// IsFinished reports whether the granted simulation time has reached tend.
func (p *Paced) IsFinished() bool { return p.granted >= p.tend }
