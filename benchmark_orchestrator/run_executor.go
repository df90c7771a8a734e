package benchmarkorchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	cloudprovider "github.com/Octogonapus/CloudIOBench/cloud_provider"
	"github.com/Octogonapus/CloudIOBench/metrics"
	"github.com/Octogonapus/CloudIOBench/report"
)

// RunExecutor drives a single trial from provisioning to teardown. It never
// panics through to the caller; every outcome, including an internal bug,
// lands in the TrialResult.
type RunExecutor struct {
	Provider cloudprovider.Provider
	Reader   *metrics.Reader

	// CollectDir, when set, receives the raw io_properties.yaml from
	// providers that can copy files off the instance.
	CollectDir string
}

func NewRunExecutor(provider cloudprovider.Provider) *RunExecutor {
	return &RunExecutor{
		Provider: provider,
		Reader:   metrics.NewReader(provider),
	}
}

func (e *RunExecutor) ExecuteRun(ctx context.Context, config *cloudprovider.InstanceConfig, runNumber int) (result *report.TrialResult) {
	start := time.Now()
	result = &report.TrialResult{
		Cloud:        e.Provider.Name(),
		InstanceType: config.InstanceType,
		RunNumber:    runNumber,
	}
	defer func() {
		result.ExecutionTimeSec = time.Since(start).Seconds()
		if r := recover(); r != nil {
			result.Success = false
			result.Error = fmt.Sprintf("internal error: %v", r)
			slog.Error("trial panicked",
				slog.String("instanceType", config.InstanceType),
				slog.Int("runNumber", runNumber),
				slog.String("error", result.Error))
		}
	}()

	slog.Info("starting trial", slog.String("instanceType", config.InstanceType), slog.Int("runNumber", runNumber))

	instanceID, err := e.Provider.CreateInstance(ctx, config)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.InstanceID = instanceID
	// Exactly one terminate per created instance, whatever happens below.
	defer e.Provider.TerminateInstance(ctx, instanceID)

	timeout := cloudprovider.ReadinessTimeout(config.InstanceType)
	if !e.Provider.WaitForInstanceReady(ctx, instanceID, timeout) {
		result.Error = fmt.Sprintf("instance failed to become ready within %s", timeout)
		return result
	}

	props, err := e.Reader.WaitForMetrics(ctx, instanceID)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.ReadIOPS = props.ReadIOPS
	result.WriteIOPS = props.WriteIOPS
	result.ReadBandwidth = props.ReadBandwidth
	result.WriteBandwidth = props.WriteBandwidth

	e.collectProperties(ctx, instanceID, config.InstanceType, runNumber)
	return result
}

// collectProperties pulls the raw properties file for offline inspection.
// Best effort; a failed copy never fails the trial.
func (e *RunExecutor) collectProperties(ctx context.Context, instanceID, instanceType string, runNumber int) {
	if e.CollectDir == "" {
		return
	}
	collector, ok := e.Provider.(cloudprovider.FileCollector)
	if !ok {
		return
	}
	if err := os.MkdirAll(e.CollectDir, 0o755); err != nil {
		slog.Warn("failed to create collect dir", slog.String("dir", e.CollectDir), slog.String("error", err.Error()))
		return
	}

	name := fmt.Sprintf("io_properties_%s_run%d.yaml", strings.ReplaceAll(instanceType, ".", "_"), runNumber)
	localPath := filepath.Join(e.CollectDir, name)
	if err := collector.CollectFile(ctx, instanceID, metrics.PropertiesPath, localPath); err != nil {
		slog.Warn("failed to collect io_properties.yaml",
			slog.String("instanceID", instanceID),
			slog.String("error", err.Error()))
		return
	}
	slog.Info("collected io_properties.yaml", slog.String("path", localPath))
}
