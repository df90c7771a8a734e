package benchmarkorchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	cloudprovider "github.com/Octogonapus/CloudIOBench/cloud_provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProvider simulates a cloud with instant boots and canned metrics.
type mockProvider struct {
	createErr     error
	neverReady    bool
	panicOnCreate bool
	panicOnWait   bool
	readyDelay    time.Duration
	serviceStatus string

	mu         sync.Mutex
	createSeq  int
	creates    int
	terminates int
	iopsByID   map[string]int

	live    atomic.Int32
	maxLive atomic.Int32
}

func newMockProvider() *mockProvider {
	return &mockProvider{iopsByID: map[string]int{}, serviceStatus: "active"}
}

func (p *mockProvider) Name() string { return "mock" }

func (p *mockProvider) CreateInstance(ctx context.Context, config *cloudprovider.InstanceConfig) (string, error) {
	if p.panicOnCreate {
		panic("simulated SDK bug")
	}
	if p.createErr != nil {
		return "", p.createErr
	}

	p.mu.Lock()
	p.createSeq++
	p.creates++
	id := fmt.Sprintf("mock-%s-%d", config.InstanceType, p.createSeq)
	p.iopsByID[id] = 1000 * p.createSeq
	p.mu.Unlock()

	n := p.live.Add(1)
	for {
		old := p.maxLive.Load()
		if n <= old || p.maxLive.CompareAndSwap(old, n) {
			break
		}
	}
	return id, nil
}

func (p *mockProvider) WaitForInstanceReady(ctx context.Context, instanceID string, timeout time.Duration) bool {
	if p.panicOnWait {
		panic("simulated wait bug")
	}
	if p.readyDelay > 0 {
		time.Sleep(p.readyDelay)
	}
	return !p.neverReady
}

func (p *mockProvider) RunCommand(ctx context.Context, instanceID, command string) (int, string, string, error) {
	switch {
	case strings.Contains(command, "io_properties.yaml"):
		p.mu.Lock()
		iops := p.iopsByID[instanceID]
		p.mu.Unlock()
		return 0, fmt.Sprintf("disks:\n  - read_iops: %d\n    write_iops: %d\n", iops, iops/2), "", nil
	case strings.Contains(command, "systemctl is-active"):
		return 0, p.serviceStatus + "\n", "", nil
	}
	return 0, "", "", nil
}

func (p *mockProvider) TerminateInstance(ctx context.Context, instanceID string) {
	p.live.Add(-1)
	p.mu.Lock()
	p.terminates++
	p.mu.Unlock()
}

func TestAllTrialsSucceed(t *testing.T) {
	provider := newMockProvider()
	orch := NewBenchmarkOrchestrator(provider, &BenchmarkConfig{
		InstanceTypes: []string{"i4i.large", "i4i.xlarge"},
		Runs:          3,
		MaxConcurrent: 2,
	})
	results := orch.RunBenchmarks(context.Background())

	require.Len(t, results, 6)
	for _, r := range results {
		assert.True(t, r.Success, "trial %s run %d", r.InstanceType, r.RunNumber)
		assert.NotEmpty(t, r.InstanceID)
		require.NotNil(t, r.ReadIOPS)
		require.NotNil(t, r.WriteIOPS)
	}
	assert.Equal(t, 6, provider.creates)
	assert.Equal(t, 6, provider.terminates)

	// Metrics came from six different instances.
	seen := map[float64]bool{}
	for _, r := range results {
		seen[*r.ReadIOPS] = true
	}
	assert.Len(t, seen, 6)
}

func TestResultsSortedByTypeAndRun(t *testing.T) {
	provider := newMockProvider()
	orch := NewBenchmarkOrchestrator(provider, &BenchmarkConfig{
		InstanceTypes: []string{"i4i.xlarge", "i4i.large"},
		Runs:          2,
		MaxConcurrent: 4,
	})
	results := orch.RunBenchmarks(context.Background())

	require.Len(t, results, 4)
	sorted := sort.SliceIsSorted(results, func(i, j int) bool {
		if results[i].InstanceType != results[j].InstanceType {
			return results[i].InstanceType < results[j].InstanceType
		}
		return results[i].RunNumber < results[j].RunNumber
	})
	assert.True(t, sorted)
	assert.Equal(t, "i4i.large", results[0].InstanceType)
	assert.Equal(t, 1, results[0].RunNumber)
}

func TestNeverReadyStillTerminates(t *testing.T) {
	provider := newMockProvider()
	provider.neverReady = true
	orch := NewBenchmarkOrchestrator(provider, &BenchmarkConfig{
		InstanceTypes: []string{"i4i.large"},
		Runs:          1,
		MaxConcurrent: 1,
	})
	results := orch.RunBenchmarks(context.Background())

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "ready")
	assert.Equal(t, 1, provider.creates)
	assert.Equal(t, 1, provider.terminates)
}

func TestProvisioningFailureNeverTerminates(t *testing.T) {
	provider := newMockProvider()
	provider.createErr = &cloudprovider.ProvisioningError{
		InstanceType: "i4i.metal",
		Reason:       "not supported in any availability zone",
	}
	orch := NewBenchmarkOrchestrator(provider, &BenchmarkConfig{
		InstanceTypes: []string{"i4i.metal"},
		Runs:          2,
		MaxConcurrent: 2,
	})
	results := orch.RunBenchmarks(context.Background())

	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.Success)
		assert.Contains(t, r.Error, "failed to create")
		assert.Empty(t, r.InstanceID)
	}
	assert.Equal(t, 0, provider.terminates)
}

func TestPanicBecomesFailureResult(t *testing.T) {
	provider := newMockProvider()
	provider.panicOnCreate = true
	orch := NewBenchmarkOrchestrator(provider, &BenchmarkConfig{
		InstanceTypes: []string{"i4i.large"},
		Runs:          1,
		MaxConcurrent: 1,
	})
	results := orch.RunBenchmarks(context.Background())

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "internal error")
	assert.Equal(t, 0, provider.terminates)
}

func TestPanicAfterCreateStillTerminates(t *testing.T) {
	provider := newMockProvider()
	provider.panicOnWait = true
	orch := NewBenchmarkOrchestrator(provider, &BenchmarkConfig{
		InstanceTypes: []string{"i4i.large"},
		Runs:          1,
		MaxConcurrent: 1,
	})
	results := orch.RunBenchmarks(context.Background())

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "internal error")
	assert.Equal(t, 1, provider.creates)
	assert.Equal(t, 1, provider.terminates)
}

func TestConcurrencyBound(t *testing.T) {
	provider := newMockProvider()
	provider.readyDelay = 20 * time.Millisecond
	orch := NewBenchmarkOrchestrator(provider, &BenchmarkConfig{
		InstanceTypes: []string{"a.large", "b.large", "c.large"},
		Runs:          4,
		MaxConcurrent: 2,
	})
	results := orch.RunBenchmarks(context.Background())

	require.Len(t, results, 12)
	assert.Equal(t, 12, provider.creates)
	assert.Equal(t, 12, provider.terminates)
	assert.LessOrEqual(t, provider.maxLive.Load(), int32(2))
	assert.Equal(t, int32(0), provider.live.Load())
}
