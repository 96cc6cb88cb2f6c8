package model

import "github.com/marvin-schl/cs-fmu-mapper/sim"

func init() {
	sim.Register(sim.TypeModel, New)
}
