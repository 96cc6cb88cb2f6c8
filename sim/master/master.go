// Package master provides timing-authority components for master-driven
// runs. The wire protocol a real controller speaks (OPC UA, raw sockets) is
// an external collaborator hidden behind the Transport interface; this
// package supplies the component-side adapters.
package master

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/marvin-schl/cs-fmu-mapper/sim"
)

// Transport is the cycle handshake channel to an external timing authority.
type Transport interface {
	// AwaitCycle blocks until the authority grants the next cycle and
	// returns the agreed step size for it.
	AwaitCycle(ctx context.Context) (dt float64, err error)

	// Terminated reports whether the authority has signalled the end of the
	// run. Authoritative: the orchestrator's finish polling reads it through
	// the component's IsFinished.
	Terminated() bool

	// NotifyFinished tells the authority that every component reported
	// finished.
	NotifyFinished()

	Close() error
}

// Remote is the master/controller component: it relays the handshake of an
// external authority and mirrors its terminate decision. Its buffers carry
// whatever controller signals the mapping feeds to and from the remote side.
type Remote struct {
	sim.BaseComponent
	transport Transport
}

// NewRemote wraps a transport as the run's timing authority. Buffers may be
// nil when the controller exchanges no mapped signals.
func NewRemote(name string, transport Transport, inputs, outputs map[string]float64) *Remote {
	return &Remote{
		BaseComponent: sim.NewBaseComponent(name, sim.TypeMaster, inputs, outputs),
		transport:     transport,
	}
}

// Handshake blocks until the authority grants the next cycle.
func (r *Remote) Handshake(ctx context.Context) (float64, error) {
	return r.transport.AwaitCycle(ctx)
}

// Step is a no-op: the authority's work happens in the handshake, the
// orchestrator does not step it alongside the other components.
func (r *Remote) Step(ctx context.Context, t, dt float64) error { return nil }

// IsFinished mirrors the upstream terminate signal.
func (r *Remote) IsFinished() bool { return r.transport.Terminated() }

// NotifyFinished relays the aggregate finish decision upstream.
func (r *Remote) NotifyFinished() { r.transport.NotifyFinished() }

// Finalize closes the transport.
func (r *Remote) Finalize() error {
	logrus.Infof("master %q: closing transport", r.Name())
	return r.transport.Close()
}
