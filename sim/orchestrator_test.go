package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(t *testing.T, cfg *RunConfig, components ...Component) *Orchestrator {
	t.Helper()
	m, err := NewMapper(nil, components)
	require.NoError(t, err)
	o, err := NewOrchestrator(cfg, components, m)
	require.NoError(t, err)
	return o
}

func TestOrchestrator_Standalone_RunsUntilCutoff(t *testing.T) {
	// GIVEN two components that never report finished and a tend cutoff
	a := newStub("a", nil, nil)
	a.finishedFn = never
	b := newStub("b", nil, nil)
	b.finishedFn = never
	o := newTestOrchestrator(t, standaloneConfig(0.01, 0.05), a, b)

	// WHEN the run executes
	err := o.Run(context.Background())

	// THEN it stops at the cutoff after exactly 5 cycles without a finish
	// notification, and finalizes everything exactly once
	require.NoError(t, err)
	assert.Equal(t, 5, o.Metrics.Cycles)
	assert.Equal(t, "cutoff", o.Metrics.Outcome)
	assert.Equal(t, StateTerminated, o.State())
	for _, s := range []*stub{a, b} {
		assert.Equal(t, 1, s.initialized)
		assert.Equal(t, 5, s.stepCount())
		assert.Equal(t, 0, s.notified)
		assert.Equal(t, 1, s.finalized)
	}
	assert.InDelta(t, 0.05, o.Clock.T, 1e-12)
	assert.True(t, o.Clock.Terminated)
}

func TestOrchestrator_AllFinished_NotifiesOnceThenFinalizes(t *testing.T) {
	// GIVEN components that report finished from the fifth cycle on
	doneAfter5 := func(steps int) bool { return steps >= 5 }
	a := newStub("a", nil, nil)
	a.finishedFn = doneAfter5
	b := newStub("b", nil, nil)
	b.finishedFn = doneAfter5
	o := newTestOrchestrator(t, standaloneConfig(0.01, 0), a, b)

	// WHEN the run executes
	err := o.Run(context.Background())

	// THEN it finishes after cycle 5 and every component is notified exactly
	// once, followed by exactly one finalize
	require.NoError(t, err)
	assert.Equal(t, 5, o.Metrics.Cycles)
	assert.Equal(t, "finished", o.Metrics.Outcome)
	for _, s := range []*stub{a, b} {
		assert.Equal(t, 1, s.notified)
		assert.Equal(t, 1, s.finalized)
	}
}

func TestOrchestrator_StepTimes_AdvanceByDt(t *testing.T) {
	// GIVEN a single component finishing after 3 cycles
	a := newStub("a", nil, nil)
	a.finishedFn = func(steps int) bool { return steps >= 3 }
	o := newTestOrchestrator(t, standaloneConfig(0.5, 0), a)

	require.NoError(t, o.Run(context.Background()))

	// THEN the component observed t = 0, 0.5, 1.0 with dt = 0.5 each cycle
	assert.Equal(t, []float64{0, 0.5, 1.0}, a.stepTimes)
	assert.Equal(t, []float64{0.5, 0.5, 0.5}, a.stepDts)
}

func TestOrchestrator_StepFailure_FinalizesEveryComponentOnce(t *testing.T) {
	// GIVEN three components, one of which fails during its third step
	boom := errors.New("solver diverged")
	a := newStub("a", nil, nil)
	a.finishedFn = never
	b := newStub("b", nil, nil)
	b.finishedFn = never
	b.stepFn = func(ctx context.Context, t, dt float64) error {
		if b.stepCount() >= 3 {
			return boom
		}
		return nil
	}
	c := newStub("c", nil, nil)
	c.finishedFn = never
	o := newTestOrchestrator(t, standaloneConfig(0.1, 0), a, b, c)

	// WHEN the run executes
	err := o.Run(context.Background())

	// THEN the run aborts with a ComponentStepError carrying the failing
	// component and the simulation time, and every component is finalized
	// exactly once even though one step never returned normally
	var stepErr *ComponentStepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "b", stepErr.Component)
	assert.InDelta(t, 0.2, stepErr.Time, 1e-12)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "aborted", o.Metrics.Outcome)
	for _, s := range []*stub{a, b, c} {
		assert.Equal(t, 1, s.finalized)
		assert.Equal(t, 0, s.notified)
	}
	assert.Equal(t, StateTerminated, o.State())
}

func TestOrchestrator_InitializeFailure_StillFinalizes(t *testing.T) {
	// GIVEN a component whose blocking setup fails
	a := newStub("a", nil, nil)
	b := newStub("b", nil, nil)
	b.initErr = errors.New("connection refused")
	o := newTestOrchestrator(t, standaloneConfig(0.1, 0), a, b)

	err := o.Run(context.Background())

	// THEN no cycle ran and both components were finalized
	require.Error(t, err)
	assert.Equal(t, 0, o.Metrics.Cycles)
	assert.Equal(t, 1, a.finalized)
	assert.Equal(t, 1, b.finalized)
}

func TestOrchestrator_FinalizeFailures_CollectedNotSuppressed(t *testing.T) {
	// GIVEN two components with failing cleanup around a healthy one
	a := newStub("a", nil, nil)
	a.finalizeErr = errors.New("close failed")
	b := newStub("b", nil, nil)
	c := newStub("c", nil, nil)
	c.finalizeErr = errors.New("flush failed")
	o := newTestOrchestrator(t, standaloneConfig(0.1, 0), a, b, c)

	// WHEN the run finishes normally (all default to finished)
	err := o.Run(context.Background())

	// THEN both failures surface as a batch and every finalize still ran
	var fin *FinalizeError
	require.ErrorAs(t, err, &fin)
	assert.ErrorIs(t, err, a.finalizeErr)
	assert.ErrorIs(t, err, c.finalizeErr)
	for _, s := range []*stub{a, b, c} {
		assert.Equal(t, 1, s.finalized)
	}
}

// burstingStub panics during cleanup instead of returning an error.
type burstingStub struct {
	*stub
}

func (b *burstingStub) Finalize() error {
	b.stub.Finalize()
	panic("close exploded")
}

func TestOrchestrator_FinalizePanic_IsolatedAndCollected(t *testing.T) {
	// GIVEN a component whose cleanup panics between two healthy ones
	a := newStub("a", nil, nil)
	b := &burstingStub{stub: newStub("b", nil, nil)}
	c := newStub("c", nil, nil)
	o := newTestOrchestrator(t, standaloneConfig(0.1, 0), a, b, c)

	// WHEN the run finishes normally (all default to finished)
	err := o.Run(context.Background())

	// THEN the panic surfaces as that component's finalize failure and the
	// remaining components still cleaned up
	var fin *FinalizeError
	require.ErrorAs(t, err, &fin)
	assert.Equal(t, "b", fin.Component)
	assert.Contains(t, err.Error(), "finalize panicked")
	assert.Equal(t, 1, a.finalized)
	assert.Equal(t, 1, c.finalized)
	assert.Equal(t, StateTerminated, o.State())
}

func TestOrchestrator_Cancellation_AbortsAndFinalizes(t *testing.T) {
	// GIVEN a run cancelled externally after the second cycle
	ctx, cancel := context.WithCancel(context.Background())
	a := newStub("a", nil, nil)
	a.finishedFn = never
	a.stepFn = func(stepCtx context.Context, t, dt float64) error {
		if a.stepCount() == 2 {
			cancel()
		}
		return nil
	}
	o := newTestOrchestrator(t, standaloneConfig(0.1, 0), a)

	// WHEN the run executes
	err := o.Run(ctx)

	// THEN it aborts without further cycles and still finalizes
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, a.stepCount())
	assert.Equal(t, "aborted", o.Metrics.Outcome)
	assert.Equal(t, 1, a.finalized)
}

func TestOrchestrator_MasterDriven_DtComesFromHandshake(t *testing.T) {
	// GIVEN a timing authority granting varying step sizes
	grants := []float64{0.1, 0.2, 0.25}
	i := 0
	authority := &authorityStub{stub: *newStub("plc", nil, nil)}
	authority.handshakeFn = func(ctx context.Context) (float64, error) {
		dt := grants[i%len(grants)]
		i++
		return dt, nil
	}
	authority.finishedFn = never
	a := newStub("a", nil, nil)
	a.finishedFn = never
	cfg := &RunConfig{Tend: 0.45, HandshakeTimeout: Duration(time.Second)}
	o := newTestOrchestrator(t, cfg, authority, a)
	require.False(t, o.Standalone())

	// WHEN the run executes
	err := o.Run(context.Background())

	// THEN the stepped component saw exactly the granted step sizes and the
	// authority itself was never stepped alongside it
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.25}, a.stepDts)
	assert.Equal(t, 0, authority.stepCount())
	assert.InDelta(t, 0.55, o.Clock.T, 1e-12)
}

func TestOrchestrator_MasterDriven_TerminateOverridesUnfinished(t *testing.T) {
	// GIVEN an authority that signals terminate after the second cycle while
	// another component still reports unfinished
	terminated := false
	authority := &authorityStub{stub: *newStub("plc", nil, nil)}
	authority.handshakeFn = func(ctx context.Context) (float64, error) { return 0.1, nil }
	authority.finishedFn = func(int) bool { return terminated }
	a := newStub("a", nil, nil)
	a.finishedFn = never
	a.stepFn = func(ctx context.Context, t, dt float64) error {
		if a.stepCount() == 2 {
			terminated = true
		}
		return nil
	}
	o := newTestOrchestrator(t, &RunConfig{}, authority, a)

	// WHEN the run executes
	err := o.Run(context.Background())

	// THEN the authority's decision ends the run on its own: no further
	// cycles, no finish notification, finalize on everything
	require.NoError(t, err)
	assert.Equal(t, "terminated", o.Metrics.Outcome)
	assert.Equal(t, 2, o.Metrics.Cycles)
	assert.Equal(t, 2, a.stepCount())
	assert.Equal(t, 0, a.notified)
	assert.Equal(t, 1, a.finalized)
	assert.Equal(t, 1, authority.finalized)
	assert.Equal(t, StateTerminated, o.State())
}

func TestOrchestrator_MasterDriven_HandshakeReportsTerminate(t *testing.T) {
	// GIVEN an authority whose handshake reports the upstream terminate
	authority := &authorityStub{stub: *newStub("plc", nil, nil)}
	authority.handshakeFn = func(ctx context.Context) (float64, error) { return 0, ErrTerminated }
	authority.finishedFn = never
	a := newStub("a", nil, nil)
	a.finishedFn = never
	o := newTestOrchestrator(t, &RunConfig{}, authority, a)

	err := o.Run(context.Background())

	// THEN the run ends cleanly without stepping anything
	require.NoError(t, err)
	assert.Equal(t, "terminated", o.Metrics.Outcome)
	assert.Equal(t, 0, o.Metrics.Cycles)
	assert.Equal(t, 0, a.stepCount())
	assert.Equal(t, 1, a.finalized)
}

func TestOrchestrator_MasterDriven_HandshakeTimeout(t *testing.T) {
	// GIVEN a timing authority that never responds
	authority := &authorityStub{stub: *newStub("plc", nil, nil)}
	authority.handshakeFn = func(ctx context.Context) (float64, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	authority.finishedFn = never
	a := newStub("a", nil, nil)
	a.finishedFn = never
	cfg := &RunConfig{HandshakeTimeout: Duration(20 * time.Millisecond)}
	o := newTestOrchestrator(t, cfg, authority, a)

	// WHEN the run executes
	err := o.Run(context.Background())

	// THEN it aborts with a HandshakeTimeoutError and finalizes everything
	var hsErr *HandshakeTimeoutError
	require.ErrorAs(t, err, &hsErr)
	assert.Equal(t, "plc", hsErr.Component)
	assert.Equal(t, 1, a.finalized)
	assert.Equal(t, 1, authority.finalized)
}

func TestOrchestrator_MasterDriven_InvalidDtAborts(t *testing.T) {
	authority := &authorityStub{stub: *newStub("plc", nil, nil)}
	authority.handshakeFn = func(ctx context.Context) (float64, error) { return 0, nil }
	authority.finishedFn = never
	o := newTestOrchestrator(t, &RunConfig{}, authority)

	err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid dt")
}

func TestNewOrchestrator_TwoAuthorities_Rejected(t *testing.T) {
	m1 := &authorityStub{stub: *newStub("m1", nil, nil)}
	m2 := &authorityStub{stub: *newStub("m2", nil, nil)}
	mapper, err := NewMapper(nil, []Component{m1, m2})
	require.NoError(t, err)

	_, err = NewOrchestrator(&RunConfig{}, []Component{m1, m2}, mapper)

	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewOrchestrator_StandaloneNeedsPositiveDt(t *testing.T) {
	a := newStub("a", nil, nil)
	mapper, err := NewMapper(nil, []Component{a})
	require.NoError(t, err)

	_, err = NewOrchestrator(&RunConfig{TimeStepPerCycle: 0}, []Component{a}, mapper)

	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestOrchestrator_MappingPhases_BracketSteps(t *testing.T) {
	// GIVEN scen.out.u feeding mdl.in.u before steps and mdl.out.y feeding
	// log.in.y after steps
	scen := newStub("scen", nil, map[string]float64{"scen.out.u": 5})
	mdl := newStub("mdl", map[string]float64{"mdl.in.u": 0}, map[string]float64{"mdl.out.y": 0})
	mdl.stepFn = func(ctx context.Context, tm, dt float64) error {
		u, err := mdl.Inputs().Get("mdl.in.u")
		if err != nil {
			return err
		}
		return mdl.Outputs().Set("mdl.out.y", 2*u)
	}
	logc := newStub("log", map[string]float64{"log.in.y": 0}, nil)
	components := []Component{scen, mdl, logc}
	mapper, err := NewMapper([]MappingRule{
		{Source: "scen.out.u", Destinations: []string{"mdl.in.u"}, Phase: PreStep},
		{Source: "mdl.out.y", Destinations: []string{"log.in.y"}, Phase: PostStep},
	}, components)
	require.NoError(t, err)
	o, err := NewOrchestrator(standaloneConfig(1, 0), components, mapper)
	require.NoError(t, err)

	// WHEN one cycle runs (all stubs default to finished)
	require.NoError(t, o.Run(context.Background()))

	// THEN the model consumed the pre-mapped input and the sink received the
	// post-mapped doubled output within the same cycle
	y, _ := logc.Inputs().Get("log.in.y")
	assert.Equal(t, 10.0, y)
	assert.Equal(t, 1, o.Metrics.Cycles)
	assert.Equal(t, 1, o.Metrics.PreStepCopies)
	assert.Equal(t, 1, o.Metrics.PostStepCopies)
}
