package master

import (
	"context"
	"sync"

	"github.com/marvin-schl/cs-fmu-mapper/sim"
)

// Loopback is an in-process Transport: the driving side grants cycles over a
// channel and flags termination. Used by tests and by callers embedding the
// engine next to their own controller loop.
type Loopback struct {
	grants chan float64

	mu         sync.Mutex
	terminated bool
	notified   bool
	done       chan struct{}
}

// NewLoopback builds a loopback transport able to buffer the given number of
// pending cycle grants.
func NewLoopback(buffer int) *Loopback {
	return &Loopback{
		grants: make(chan float64, buffer),
		done:   make(chan struct{}),
	}
}

// Grant releases one cycle with the given step size.
func (l *Loopback) Grant(dt float64) { l.grants <- dt }

// Terminate signals the end of the run. Grants already pending are still
// honored; once drained, AwaitCycle reports ErrTerminated.
func (l *Loopback) Terminate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.terminated {
		l.terminated = true
		close(l.done)
	}
}

// AwaitCycle returns the next granted step size, blocking until one is
// granted, termination is signalled, or the context expires. After Terminate
// it drains the pending grants and then fails with sim.ErrTerminated.
func (l *Loopback) AwaitCycle(ctx context.Context) (float64, error) {
	select {
	case dt := <-l.grants:
		return dt, nil
	default:
	}
	select {
	case dt := <-l.grants:
		return dt, nil
	case <-l.done:
		// A grant racing the terminate signal still wins.
		select {
		case dt := <-l.grants:
			return dt, nil
		default:
		}
		return 0, sim.ErrTerminated
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Terminated reports whether Terminate has been called.
func (l *Loopback) Terminated() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.terminated
}

// NotifyFinished records the downstream finish notification.
func (l *Loopback) NotifyFinished() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notified = true
}

// Notified reports whether the finish notification arrived.
func (l *Loopback) Notified() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.notified
}

// Close is a no-op for the in-process transport.
func (l *Loopback) Close() error { return nil }
