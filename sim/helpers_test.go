package sim

import (
	"context"
	"sync"
)

// stub is the configurable test component: it records every lifecycle call
// and delegates finish/step behavior to optional hooks.
type stub struct {
	BaseComponent

	mu          sync.Mutex
	stepFn      func(ctx context.Context, t, dt float64) error
	finishedFn  func(steps int) bool
	initErr     error
	finalizeErr error

	initialized int
	steps       int
	stepTimes   []float64
	stepDts     []float64
	notified    int
	finalized   int
}

func newStub(name string, inputs, outputs map[string]float64) *stub {
	return &stub{BaseComponent: NewBaseComponent(name, "stub", inputs, outputs)}
}

func (s *stub) Initialize(ctx context.Context) error {
	s.initialized++
	return s.initErr
}

func (s *stub) Step(ctx context.Context, t, dt float64) error {
	s.mu.Lock()
	s.steps++
	s.stepTimes = append(s.stepTimes, t)
	s.stepDts = append(s.stepDts, dt)
	s.mu.Unlock()
	if s.stepFn != nil {
		return s.stepFn(ctx, t, dt)
	}
	return nil
}

func (s *stub) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finishedFn != nil {
		return s.finishedFn(s.steps)
	}
	return true
}

func (s *stub) NotifyFinished() { s.notified++ }

func (s *stub) Finalize() error {
	s.finalized++
	return s.finalizeErr
}

func (s *stub) stepCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps
}

// authorityStub is a stub that acts as timing authority.
type authorityStub struct {
	stub
	handshakeFn func(ctx context.Context) (float64, error)
}

func (a *authorityStub) Handshake(ctx context.Context) (float64, error) {
	return a.handshakeFn(ctx)
}

// never marks a stub as blocking termination forever.
func never(int) bool { return false }

func standaloneConfig(dt, tend float64) *RunConfig {
	return &RunConfig{TimeStepPerCycle: dt, Tend: tend}
}
