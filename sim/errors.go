package sim

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel conditions raised by VarBuffer accessors. Callers that need to
// distinguish them wrap with %w and test via errors.Is.
var (
	// ErrMissingCapability signals that a component declares no input
	// (resp. output) variables at all and a caller tried to use them anyway.
	// This is a configuration/usage mismatch, never a silent no-op.
	ErrMissingCapability = errors.New("component does not declare this buffer")

	// ErrUnknownVariable signals a read or write of a name outside the
	// declared variable set of a buffer.
	ErrUnknownVariable = errors.New("unknown variable")
)

// ErrTerminated is returned by a timing authority's Handshake when the
// upstream side has ended the run instead of granting another cycle. The
// orchestrator treats it as a stop request, not a failure.
var ErrTerminated = errors.New("timing authority terminated the run")

// ConfigurationError covers everything detected at startup: unresolved
// variable references, duplicate fan-in destinations, malformed schedule
// parameters, unknown component types. A run never begins once one is raised.
type ConfigurationError struct {
	Section string // config section or qualified name the error refers to
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("configuration: %v", e.Err)
	}
	return fmt.Sprintf("configuration (%s): %v", e.Section, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ComponentStepError is raised when a component's Step returns an error.
// It aborts the run; finalize still runs on every component.
type ComponentStepError struct {
	Component string
	Time      float64 // simulation time at which the step failed
	Err       error
}

func (e *ComponentStepError) Error() string {
	return fmt.Sprintf("step of %q failed at t=%.6gs: %v", e.Component, e.Time, e.Err)
}

func (e *ComponentStepError) Unwrap() error { return e.Err }

// HandshakeTimeoutError is raised in master-driven mode when the timing
// authority does not complete its cycle handshake within the configured bound.
type HandshakeTimeoutError struct {
	Component string
	Timeout   time.Duration
}

func (e *HandshakeTimeoutError) Error() string {
	return fmt.Sprintf("timing authority %q did not respond within %s", e.Component, e.Timeout)
}

// FinalizeError records one component's finalize failure. Failures are
// collected per component and surfaced as a batch after the run terminates;
// one component's cleanup failure never blocks another's.
type FinalizeError struct {
	Component string
	Err       error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("finalize of %q failed: %v", e.Component, e.Err)
}

func (e *FinalizeError) Unwrap() error { return e.Err }
