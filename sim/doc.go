// Package sim provides the cyclic orchestration engine for co-simulation:
// heterogeneous components advance through synchronized time steps and
// exchange variables according to a declarative mapping.
//
// # Reading Guide
//
// Start with these three files to understand the kernel:
//   - component.go: the Component contract and its default capability set
//   - mapper.go: startup name resolution and the per-phase buffer copies
//   - orchestrator.go: the cycle loop, termination protocol and finalize path
//
// # Architecture
//
// The sim package defines the contracts and the cycle runner; concrete
// components live in sub-packages:
//   - sim/scenario/: scripted signal source driven by a precomputed schedule
//   - sim/model/: numeric model adapter with per-cycle sub-stepping
//   - sim/sink/: data sink recording mapped inputs, exported at finalize
//   - sim/master/: timing-authority adapters for master-driven runs
//   - sim/schedule/: the time-pattern schedule generator
//
// Sub-packages register their constructors via init() (Register); the CLI in
// cmd/ blank-imports them and user extensions register the same way.
//
// # Cycle protocol
//
// One cycle is preStep mapping → barrier-joined Step fan-out → postStep
// mapping → finish polling. Components never observe each other's mid-cycle
// buffer mutations; all cross-component visibility goes through the two
// mapping phases.
package sim
