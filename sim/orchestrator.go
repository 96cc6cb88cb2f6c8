package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the orchestrator lifecycle state.
//
//	Initializing → Running → Finalizing → Terminated
//
// with the error path Initializing/Running → Aborting → Finalizing →
// Terminated.
type State int

const (
	StateInitializing State = iota
	StateRunning
	StateAborting
	StateFinalizing
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "Initializing"
	case StateRunning:
		return "Running"
	case StateAborting:
		return "Aborting"
	case StateFinalizing:
		return "Finalizing"
	case StateTerminated:
		return "Terminated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Orchestrator drives the main synchronization loop: preStep mapping, the
// barrier-joined component steps, postStep mapping, termination polling, and
// the finalize fan-out. It exclusively owns the component set and the run
// clock for the lifetime of the run.
type Orchestrator struct {
	components []Component
	stepped    []Component     // all components except the timing authority
	master     TimingAuthority // nil in standalone mode

	mapper  *Mapper
	fixedDt float64
	tend    float64
	timeout time.Duration

	Clock   RunClock
	Metrics *Metrics
	state   State
}

// NewOrchestrator wires the component set, the resolved mapper and the timing
// parameters. At most one component may act as timing authority; without one
// the run is standalone and timeStepPerCycle must be positive.
func NewOrchestrator(cfg *RunConfig, components []Component, mapper *Mapper) (*Orchestrator, error) {
	o := &Orchestrator{
		components: components,
		mapper:     mapper,
		fixedDt:    cfg.TimeStepPerCycle,
		tend:       cfg.Tend,
		timeout:    cfg.HandshakeTimeout.Std(),
		Metrics:    NewMetrics(),
		state:      StateInitializing,
	}
	if o.timeout == 0 {
		o.timeout = DefaultHandshakeTimeout.Std()
	}
	for _, c := range components {
		if authority, ok := c.(TimingAuthority); ok {
			if o.master != nil {
				return nil, &ConfigurationError{
					Section: c.Name(),
					Err:     fmt.Errorf("second timing authority (%q already is one)", o.master.Name()),
				}
			}
			o.master = authority
			continue
		}
		o.stepped = append(o.stepped, c)
	}
	if o.master == nil && o.fixedDt <= 0 {
		return nil, &ConfigurationError{
			Err: fmt.Errorf("standalone mode requires timeStepPerCycle > 0, got %g", o.fixedDt),
		}
	}
	return o, nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State { return o.state }

// Standalone reports whether the run has no timing authority.
func (o *Orchestrator) Standalone() bool { return o.master == nil }

// Run executes the co-simulation until every component reports finished, the
// optional tend cutoff is reached, the context is cancelled, or a component
// fails. Finalize is invoked exactly once on every component on all of these
// paths; finalize failures are collected and joined onto the returned error,
// never suppressing each other.
func (o *Orchestrator) Run(ctx context.Context) error {
	start := time.Now()
	defer func() {
		o.Metrics.WallDuration = time.Since(start)
		o.Metrics.SimEndTime = o.Clock.T
	}()

	if o.master == nil {
		logrus.Infof("starting standalone run: %d components, dt=%gs", len(o.components), o.fixedDt)
	} else {
		logrus.Infof("starting master-driven run: %d components, authority %q", len(o.components), o.master.Name())
	}

	if err := o.initialize(ctx); err != nil {
		return o.abort(err)
	}

	o.state = StateRunning
	for {
		select {
		case <-ctx.Done():
			return o.abort(ctx.Err())
		default:
		}

		// The authority's terminate decision ends the run on its own: it
		// overrides components that still report unfinished.
		if o.master != nil && o.master.IsFinished() {
			return o.terminated()
		}

		o.Metrics.PreStepCopies += o.mapper.Apply(PreStep)

		dt, err := o.cycleStep(ctx)
		if errors.Is(err, ErrTerminated) {
			return o.terminated()
		}
		if err != nil {
			return o.abort(err)
		}
		o.Clock.Dt = dt

		if err := o.stepAll(ctx, dt); err != nil {
			return o.abort(err)
		}
		// A stop request observed while components were suspended aborts
		// before the postStep mapping is applied.
		if err := ctx.Err(); err != nil {
			return o.abort(err)
		}

		o.Metrics.PostStepCopies += o.mapper.Apply(PostStep)
		o.Metrics.Cycles++
		logrus.Debugf("[t=%10.4f] cycle %d complete (dt=%g)", o.Clock.T, o.Metrics.Cycles, dt)

		if o.allFinished() {
			logrus.Infof("all components finished at t=%gs after %d cycles", o.Clock.T, o.Metrics.Cycles)
			for _, c := range o.components {
				c.NotifyFinished()
			}
			o.Metrics.Outcome = "finished"
			return o.finalize(nil)
		}

		o.Clock.Advance()
		if o.tend > 0 && o.Clock.T >= o.tend {
			logrus.Infof("cutoff tend=%gs reached after %d cycles", o.tend, o.Metrics.Cycles)
			o.Metrics.Outcome = "cutoff"
			return o.finalize(nil)
		}
	}
}

// initialize invokes Initialize on every component exactly once, in
// construction order, before the first cycle.
func (o *Orchestrator) initialize(ctx context.Context) error {
	for _, c := range o.components {
		logrus.Infof("initializing component %q (%s)", c.Name(), c.Type())
		if err := c.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize %q: %w", c.Name(), err)
		}
	}
	return nil
}

// cycleStep determines dt for the cycle. With a timing authority present the
// handshake is the authority's step: it blocks until the remote side signals
// readiness and supplies the agreed step size. Standalone mode uses the
// configured fixed step directly.
func (o *Orchestrator) cycleStep(ctx context.Context) (float64, error) {
	if o.master == nil {
		return o.fixedDt, nil
	}
	hctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	dt, err := o.master.Handshake(hctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return 0, &HandshakeTimeoutError{Component: o.master.Name(), Timeout: o.timeout}
		}
		return 0, fmt.Errorf("handshake with %q: %w", o.master.Name(), err)
	}
	if dt <= 0 {
		return 0, fmt.Errorf("timing authority %q supplied invalid dt %g", o.master.Name(), dt)
	}
	return dt, nil
}

// stepAll fans the cycle's Step invocations out on goroutines and joins them.
// The steps of one cycle have no defined relative order and share no state:
// cross-component visibility happens only through the mapping phases, so the
// only synchronization needed is the join itself.
func (o *Orchestrator) stepAll(ctx context.Context, dt float64) error {
	t := o.Clock.T
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, c := range o.stepped {
		wg.Add(1)
		go func(c Component) {
			defer wg.Done()
			if err := c.Step(ctx, t, dt); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = &ComponentStepError{Component: c.Name(), Time: t, Err: err}
				}
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()
	o.Metrics.ComponentSteps += len(o.stepped)
	return firstErr
}

// terminated is the stop path taken when the timing authority ends the run.
// Components are not notified: the aggregate finish protocol never completed,
// the upstream decision simply overrides it.
func (o *Orchestrator) terminated() error {
	logrus.Infof("timing authority %q terminated the run at t=%gs after %d cycles",
		o.master.Name(), o.Clock.T, o.Metrics.Cycles)
	o.Metrics.Outcome = "terminated"
	return o.finalize(nil)
}

// allFinished polls the aggregate finish state. In master-driven mode the
// authority's IsFinished participates like everyone else's here; its
// authoritative terminate override is checked separately at the top of each
// cycle.
func (o *Orchestrator) allFinished() bool {
	for _, c := range o.components {
		if !c.IsFinished() {
			return false
		}
	}
	return true
}

// abort is the error path into finalization.
func (o *Orchestrator) abort(cause error) error {
	o.state = StateAborting
	o.Metrics.Outcome = "aborted"
	logrus.Warnf("aborting run at t=%gs: %v", o.Clock.T, cause)
	return o.finalize(cause)
}

// finalize invokes Finalize on every component exactly once, isolated from
// each other: one component's cleanup failure never prevents the next one's
// cleanup from running. The collected batch is joined onto the run error.
func (o *Orchestrator) finalize(cause error) error {
	o.state = StateFinalizing
	var batch []error
	for _, c := range o.components {
		logrus.Infof("finalizing component %q", c.Name())
		if err := finalizeComponent(c); err != nil {
			logrus.Errorf("finalize of %q failed: %v", c.Name(), err)
			batch = append(batch, &FinalizeError{Component: c.Name(), Err: err})
		}
	}
	o.state = StateTerminated
	o.Clock.Terminated = true
	logrus.Infof("run terminated (%s)", o.Metrics.Outcome)
	return errors.Join(cause, errors.Join(batch...))
}

// finalizeComponent converts a panicking Finalize into an error so one
// component's cleanup cannot keep the remaining components from cleaning up.
func finalizeComponent(c Component) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("finalize panicked: %v", r)
		}
	}()
	return c.Finalize()
}
