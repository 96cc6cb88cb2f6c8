package scenario

import "github.com/marvin-schl/cs-fmu-mapper/sim"

func init() {
	sim.Register(sim.TypeScenario, New)
}
