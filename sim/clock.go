package sim

// RunClock is the process-wide simulation time state. It is owned exclusively
// by the orchestrator and mutated only by it, once per completed cycle.
type RunClock struct {
	// T is the current simulation time in seconds.
	T float64
	// Dt is the step size of the cycle in flight.
	Dt float64
	// Terminated is set when the run leaves the Running state for good.
	Terminated bool
}

// Advance moves the clock past one completed cycle.
func (c *RunClock) Advance() { c.T += c.Dt }
