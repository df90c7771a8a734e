package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	cloudprovider "github.com/Octogonapus/CloudIOBench/cloud_provider"
	"github.com/Octogonapus/CloudIOBench/util"
)

const (
	// DefaultCeiling bounds how long a trial waits for scylla_io_setup to
	// finish on slow instance types.
	DefaultCeiling = 20 * time.Minute

	activeSleepCap   = 30 * time.Second
	inactiveSleepCap = 10 * time.Second
)

// Reader polls an instance until io_properties.yaml appears with metrics in
// it. Poll pacing depends on whether scylla-server is up yet, since the file
// is only written during the service's first start.
type Reader struct {
	Provider cloudprovider.Provider
	Ceiling  time.Duration

	// Injectable for tests.
	Sleep func(time.Duration)
	Now   func() time.Time
}

func NewReader(provider cloudprovider.Provider) *Reader {
	return &Reader{
		Provider: provider,
		Ceiling:  DefaultCeiling,
		Sleep:    time.Sleep,
		Now:      time.Now,
	}
}

// WaitForMetrics blocks until the instance reports disk metrics or the
// ceiling elapses.
func (r *Reader) WaitForMetrics(ctx context.Context, instanceID string) (*DiskProperties, error) {
	start := r.Now()
	for {
		exitCode, stdout, _, err := r.Provider.RunCommand(ctx, instanceID, "cat "+PropertiesPath+" 2>/dev/null || echo 'file not found'")
		if err == nil && exitCode == 0 {
			props, perr := ParseIOProperties(stdout)
			if perr == nil {
				slog.Info("I/O metrics available", slog.String("instanceID", instanceID))
				return props, nil
			}
			slog.Debug("io_properties.yaml not populated yet", slog.String("instanceID", instanceID), slog.String("reason", perr.Error()))
		} else if err != nil {
			slog.Debug("failed to read io_properties.yaml", slog.String("instanceID", instanceID), slog.String("error", err.Error()))
		}

		remaining := r.Ceiling - r.Now().Sub(start)
		if remaining <= 0 {
			return nil, fmt.Errorf("timed out waiting for I/O metrics after %s", r.Ceiling)
		}

		status := r.serviceStatus(ctx, instanceID)
		var sleep time.Duration
		if status == "active" {
			// The service is up, so scylla_io_setup already ran. The file
			// should land any moment now.
			sleep = min(activeSleepCap, remaining/4)
		} else {
			sleep = min(inactiveSleepCap, remaining/10)
		}
		slog.Debug("waiting for I/O metrics",
			slog.String("instanceID", instanceID),
			slog.String("serviceStatus", status),
			slog.String("sleep", sleep.String()))
		r.Sleep(sleep)
	}
}

// serviceStatus reports scylla-server's state, or "unknown" when the probe
// itself fails.
func (r *Reader) serviceStatus(ctx context.Context, instanceID string) string {
	_, stdout, _, err := r.Provider.RunCommand(ctx, instanceID, "systemctl is-active scylla-server")
	if err != nil || strings.TrimSpace(stdout) == "" {
		return "unknown"
	}
	return util.LastNonEmptyLine([]byte(stdout))
}
