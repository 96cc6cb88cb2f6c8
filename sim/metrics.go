package sim

import (
	"fmt"
	"time"
)

// Metrics aggregates statistics about the run for final reporting. Useful for
// checking that a co-simulation advanced as configured and for debugging
// termination behavior.
type Metrics struct {
	Cycles         int    // number of completed cycles
	PreStepCopies  int    // total destination writes in the preStep phase
	PostStepCopies int    // total destination writes in the postStep phase
	ComponentSteps int    // total Step invocations across components
	Outcome        string // "finished", "cutoff", "terminated" or "aborted"

	SimEndTime   float64       // simulation time when the run left Running
	WallDuration time.Duration // wall-clock duration of the whole run
}

// NewMetrics returns zeroed metrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Print displays the aggregated run metrics.
func (m *Metrics) Print() {
	fmt.Println("=== Co-Simulation Metrics ===")
	fmt.Printf("Outcome              : %s\n", m.Outcome)
	fmt.Printf("Completed Cycles     : %d\n", m.Cycles)
	fmt.Printf("Simulation End Time  : %.4gs\n", m.SimEndTime)
	fmt.Printf("Component Steps      : %d\n", m.ComponentSteps)
	fmt.Printf("Mapping Copies       : %d preStep, %d postStep\n", m.PreStepCopies, m.PostStepCopies)
	fmt.Printf("Wall Duration        : %s\n", m.WallDuration.Round(time.Millisecond))
	if m.Cycles > 0 && m.WallDuration > 0 {
		fmt.Printf("Cycles per Second    : %.1f\n", float64(m.Cycles)/m.WallDuration.Seconds())
	}
}
