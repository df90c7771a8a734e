package benchmarkorchestrator

import (
	"context"
	"sort"

	cloudprovider "github.com/Octogonapus/CloudIOBench/cloud_provider"
	"github.com/Octogonapus/CloudIOBench/report"
	"github.com/alitto/pond"
	"github.com/schollz/progressbar/v3"
)

type BenchmarkConfig struct {
	InstanceTypes []string
	Runs          int
	MaxConcurrent int

	// Shared instance settings; InstanceType is filled in per trial.
	ImageID         string
	KeyName         string
	SecurityGroupID string
	SubnetID        string
	VPCID           string
	UserData        string

	// Directory for raw io_properties.yaml files, empty to skip collection.
	CollectDir string
}

// Runs I/O benchmark trials on a cloud (e.g. AWS EC2).
type BenchmarkOrchestrator interface {
	// Run all trials (concurrently) and return one result per trial.
	RunBenchmarks(ctx context.Context) []*report.TrialResult
}

type orchestrator struct {
	provider cloudprovider.Provider
	cfg      *BenchmarkConfig
}

func NewBenchmarkOrchestrator(provider cloudprovider.Provider, cfg *BenchmarkConfig) BenchmarkOrchestrator {
	return &orchestrator{provider: provider, cfg: cfg}
}

// RunBenchmarks schedules runs-per-type trials across all instance types and
// collects exactly one result for each. Results come back sorted by instance
// type and run number no matter what order the trials finished in.
func (o *orchestrator) RunBenchmarks(ctx context.Context) []*report.TrialResult {
	ntotal := len(o.cfg.InstanceTypes) * o.cfg.Runs
	resultCh := make(chan *report.TrialResult, ntotal)
	bar := progressbar.Default(int64(ntotal), "Running trials:")

	executor := NewRunExecutor(o.provider)
	executor.CollectDir = o.cfg.CollectDir

	pool := pond.New(o.cfg.MaxConcurrent, 0, pond.MinWorkers(o.cfg.MaxConcurrent))
	for _, instanceType := range o.cfg.InstanceTypes {
		for run := 1; run <= o.cfg.Runs; run++ {
			pool.Submit(func() {
				config := &cloudprovider.InstanceConfig{
					InstanceType:    instanceType,
					ImageID:         o.cfg.ImageID,
					KeyName:         o.cfg.KeyName,
					SecurityGroupID: o.cfg.SecurityGroupID,
					SubnetID:        o.cfg.SubnetID,
					VPCID:           o.cfg.VPCID,
					UserData:        o.cfg.UserData,
				}
				resultCh <- executor.ExecuteRun(ctx, config, run)
				bar.Add(1)
			})
		}
	}
	pool.StopAndWait()
	close(resultCh)

	results := make([]*report.TrialResult, 0, ntotal)
	for result := range resultCh {
		results = append(results, result)
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].InstanceType != results[j].InstanceType {
			return results[i].InstanceType < results[j].InstanceType
		}
		return results[i].RunNumber < results[j].RunNumber
	})
	return results
}
