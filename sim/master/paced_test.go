package master

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/marvin-schl/cs-fmu-mapper/sim"
)

func decodeSection(t *testing.T, body string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(body), &node))
	return node.Content[0]
}

func TestPaced_GrantsFixedStepsUntilTend(t *testing.T) {
	// GIVEN an unpaced authority granting 0.5s steps until tend=1.5s
	c, err := NewPaced("pace", decodeSection(t, "type: paced-master\ndt: 0.5\ntend: 1.5\n"))
	require.NoError(t, err)
	p := c.(*Paced)

	for i := 0; i < 3; i++ {
		assert.False(t, p.IsFinished(), "after %d grants", i)
		dt, err := p.Handshake(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0.5, dt)
	}

	// THEN after granting tend worth of simulation time it reports finished
	assert.True(t, p.IsFinished())
}

func TestPaced_IntervalPacesWallClock(t *testing.T) {
	c, err := NewPaced("pace", decodeSection(t, "type: paced-master\ndt: 1\ninterval: 10ms\ntend: 100\n"))
	require.NoError(t, err)
	p := c.(*Paced)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := p.Handshake(context.Background())
		require.NoError(t, err)
	}

	// The first grant is immediate, the next two wait out the interval.
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestPaced_HandshakeRespectsContext(t *testing.T) {
	c, err := NewPaced("pace", decodeSection(t, "type: paced-master\ndt: 1\ninterval: 10s\ntend: 100\n"))
	require.NoError(t, err)
	p := c.(*Paced)

	// First grant is immediate; the second would wait 10s.
	_, err = p.Handshake(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Handshake(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPaced_ConfigRejections(t *testing.T) {
	_, err := NewPaced("pace", decodeSection(t, "type: paced-master\ntend: 1\n"))
	require.Error(t, err)

	_, err = NewPaced("pace", decodeSection(t, "type: paced-master\ndt: 0.1\n"))
	require.Error(t, err)
}

func TestPaced_RegisteredAsComponentType(t *testing.T) {
	c, err := sim.NewComponent(TypePaced, "pace", decodeSection(t, "type: paced-master\ndt: 0.1\ntend: 1\n"))
	require.NoError(t, err)
	_, isAuthority := c.(sim.TimingAuthority)
	assert.True(t, isAuthority)
}
