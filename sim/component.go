package sim

import (
	"context"
)

// Known component type tags. User-defined extensions register their own tags
// through Register; the orchestrator treats everything except the timing
// authority uniformly.
const (
	TypeMaster   = "master"
	TypeModel    = "model"
	TypeScenario = "scenario"
	TypeSink     = "sink"
)

// Component is the contract every simulation participant implements.
//
// Step is the only operation a concrete component must provide itself; the
// remaining callbacks carry defaults on BaseComponent (finished=true, no-op
// initialize/notify/finalize, one step per cycle) so a participant only
// overrides what it supports. Step consumes the current simulation time and
// interval, reads its input buffer, performs its internal update and writes
// results to its output buffer. It may block on external I/O; the context is
// cancelled when the run aborts.
type Component interface {
	Name() string
	Type() string
	Inputs() *VarBuffer
	Outputs() *VarBuffer

	// Initialize is invoked exactly once before the first cycle. It may
	// perform blocking setup such as opening a connection or building a
	// schedule table.
	Initialize(ctx context.Context) error

	// Step advances the component from t by dt. Invoked exactly once per
	// cycle; components with StepsPerCycle() == k sub-advance internally in
	// increments of dt/k.
	Step(ctx context.Context, t, dt float64) error

	// IsFinished reports whether the component no longer blocks termination.
	IsFinished() bool

	// NotifyFinished is invoked exactly once, after all components report
	// finished.
	NotifyFinished()

	// Finalize is invoked exactly once at shutdown, regardless of how the
	// run ended.
	Finalize() error

	// StepsPerCycle declares how many internal sub-steps one outer cycle is
	// divided into. Must be >= 1.
	StepsPerCycle() int
}

// TimingAuthority is implemented by master/controller components. In
// master-driven mode the orchestrator waits for Handshake before each cycle;
// the call blocks until the upstream authority signals readiness and returns
// the agreed step size for the cycle.
type TimingAuthority interface {
	Component
	Handshake(ctx context.Context) (dt float64, err error)
}

// BaseComponent carries the name, type tag and buffers of a participant and
// supplies the default bodies for the optional callbacks. Concrete components
// embed it and override what they need.
type BaseComponent struct {
	name    string
	typeTag string
	inputs  *VarBuffer
	outputs *VarBuffer
}

// NewBaseComponent builds the embedded core of a component. Pass nil for a
// buffer the component does not declare.
func NewBaseComponent(name, typeTag string, inputs, outputs map[string]float64) BaseComponent {
	return BaseComponent{
		name:    name,
		typeTag: typeTag,
		inputs:  NewVarBuffer(inputs),
		outputs: NewVarBuffer(outputs),
	}
}

func (c *BaseComponent) Name() string        { return c.name }
func (c *BaseComponent) Type() string        { return c.typeTag }
func (c *BaseComponent) Inputs() *VarBuffer  { return c.inputs }
func (c *BaseComponent) Outputs() *VarBuffer { return c.outputs }

// Contains reports whether the component declares name in either buffer.
func (c *BaseComponent) Contains(name string) bool {
	return c.inputs.Contains(name) || c.outputs.Contains(name)
}

// Default capability set: a component that overrides none of these never
// blocks termination and has nothing to set up or tear down.

func (c *BaseComponent) Initialize(ctx context.Context) error { return nil }
func (c *BaseComponent) IsFinished() bool                     { return true }
func (c *BaseComponent) NotifyFinished()                      {}
func (c *BaseComponent) Finalize() error                      { return nil }
func (c *BaseComponent) StepsPerCycle() int                   { return 1 }
