package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	cloudprovider "github.com/Octogonapus/CloudIOBench/cloud_provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedNode plays back canned command output and charges a second of fake
// time per command, like a real remote round trip would.
type scriptedNode struct {
	clock *fakeClock

	// properties output per poll, last entry repeats forever
	propertiesOutputs []string
	serviceStatus     string
	polls             int
}

func (n *scriptedNode) Name() string { return "scripted" }

func (n *scriptedNode) CreateInstance(ctx context.Context, config *cloudprovider.InstanceConfig) (string, error) {
	panic("not used")
}

func (n *scriptedNode) WaitForInstanceReady(ctx context.Context, instanceID string, timeout time.Duration) bool {
	panic("not used")
}

func (n *scriptedNode) TerminateInstance(ctx context.Context, instanceID string) {}

func (n *scriptedNode) RunCommand(ctx context.Context, instanceID, command string) (int, string, string, error) {
	n.clock.advance(time.Second)
	if strings.Contains(command, "io_properties.yaml") {
		i := n.polls
		if i >= len(n.propertiesOutputs) {
			i = len(n.propertiesOutputs) - 1
		}
		n.polls++
		return 0, n.propertiesOutputs[i], "", nil
	}
	if strings.Contains(command, "systemctl is-active") {
		return 0, n.serviceStatus + "\n", "", nil
	}
	return 0, "", "", nil
}

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func (c *fakeClock) sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.advance(d)
}

func newTestReader(node *scriptedNode, clock *fakeClock, ceiling time.Duration) *Reader {
	return &Reader{
		Provider: node,
		Ceiling:  ceiling,
		Sleep:    clock.sleep,
		Now:      func() time.Time { return clock.now },
	}
}

func TestWaitForMetricsPartialFileIsSuccess(t *testing.T) {
	clock := &fakeClock{}
	node := &scriptedNode{
		clock:             clock,
		propertiesOutputs: []string{"disks:\n  - write_iops: 42000\n"},
		serviceStatus:     "active",
	}
	r := newTestReader(node, clock, DefaultCeiling)

	props, err := r.WaitForMetrics(context.Background(), "i-123")
	require.NoError(t, err)
	require.NotNil(t, props.WriteIOPS)
	assert.Equal(t, 42000.0, *props.WriteIOPS)
	assert.Nil(t, props.ReadIOPS)
	assert.Empty(t, clock.sleeps, "should return on the first poll without sleeping")
}

func TestWaitForMetricsEventuallyAppears(t *testing.T) {
	clock := &fakeClock{}
	node := &scriptedNode{
		clock: clock,
		propertiesOutputs: []string{
			"file not found",
			"file not found",
			"disks:\n  - read_iops: 100000\n    write_iops: 50000\n",
		},
		serviceStatus: "active",
	}
	r := newTestReader(node, clock, DefaultCeiling)

	props, err := r.WaitForMetrics(context.Background(), "i-123")
	require.NoError(t, err)
	require.NotNil(t, props.ReadIOPS)
	assert.Len(t, clock.sleeps, 2)
}

func TestWaitForMetricsTimesOutOnGarbage(t *testing.T) {
	clock := &fakeClock{}
	node := &scriptedNode{
		clock:             clock,
		propertiesOutputs: []string{"this is not yaml at all {{{"},
		serviceStatus:     "inactive",
	}
	r := newTestReader(node, clock, 2*time.Minute)

	props, err := r.WaitForMetrics(context.Background(), "i-123")
	require.Error(t, err)
	assert.Nil(t, props)
	assert.Contains(t, err.Error(), "timed out")
}

func TestWaitForMetricsSleepPacing(t *testing.T) {
	clock := &fakeClock{}
	node := &scriptedNode{
		clock:             clock,
		propertiesOutputs: []string{"file not found", "disks:\n  - read_iops: 1\n"},
		serviceStatus:     "active",
	}
	r := newTestReader(node, clock, DefaultCeiling)

	_, err := r.WaitForMetrics(context.Background(), "i-123")
	require.NoError(t, err)
	require.Len(t, clock.sleeps, 1)
	// Service already active: poll at the long cadence.
	assert.Equal(t, 30*time.Second, clock.sleeps[0])

	clock = &fakeClock{}
	node = &scriptedNode{
		clock:             clock,
		propertiesOutputs: []string{"file not found", "disks:\n  - read_iops: 1\n"},
		serviceStatus:     "inactive",
	}
	r = newTestReader(node, clock, DefaultCeiling)

	_, err = r.WaitForMetrics(context.Background(), "i-123")
	require.NoError(t, err)
	require.Len(t, clock.sleeps, 1)
	// Service not started yet: poll quickly for startup.
	assert.Equal(t, 10*time.Second, clock.sleeps[0])
}

func TestWaitForMetricsSleepCappedByRemainingBudget(t *testing.T) {
	clock := &fakeClock{}
	node := &scriptedNode{
		clock:             clock,
		propertiesOutputs: []string{"file not found"},
		serviceStatus:     "active",
	}
	r := newTestReader(node, clock, 40*time.Second)

	_, err := r.WaitForMetrics(context.Background(), "i-123")
	require.Error(t, err)
	require.NotEmpty(t, clock.sleeps)
	// The first read burns 1s, leaving 39s of budget; a quarter of that is
	// well under the 30s cap.
	assert.Equal(t, 39*time.Second/4, clock.sleeps[0])
}
