package master

import "github.com/marvin-schl/cs-fmu-mapper/sim"

func init() {
	sim.Register(TypePaced, NewPaced)
}
