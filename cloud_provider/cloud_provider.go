package cloudprovider

import (
	"context"
	"time"
)

// Configuration for creating one cloud instance. Constructed per trial and
// consumed once by the provider.
type InstanceConfig struct {
	InstanceType    string
	ImageID         string
	KeyName         string
	SecurityGroupID string
	SubnetID        string
	VPCID           string
	UserData        string
}

// Provider is the per-vendor contract the benchmark core consumes. One
// implementation exists per cloud; there is no shared base, each conforms to
// the same four operations plus a name for reporting.
type Provider interface {
	// Create an instance and return its provider-specific identifier. Returns
	// a *ProvisioningError when the request is rejected (unsupported type in
	// zone, capacity, invalid image).
	CreateInstance(ctx context.Context, config *InstanceConfig) (string, error)

	// Poll until the instance reports healthy or the timeout elapses. Returns
	// false on timeout instead of an error.
	WaitForInstanceReady(ctx context.Context, instanceID string, timeout time.Duration) bool

	// Run a command on the instance. The error is non-nil only for
	// channel-level failures (*CommandExecutionError); a command that ran but
	// failed is reported through the exit code.
	RunCommand(ctx context.Context, instanceID, command string) (exitCode int, stdout string, stderr string, err error)

	// Terminate the instance. Best-effort: failures are logged, never
	// propagated, so cleanup can't abort the caller.
	TerminateInstance(ctx context.Context, instanceID string)

	// Short vendor name used in results (e.g. "aws").
	Name() string
}

// FileCollector is implemented by providers whose execution channel can also
// fetch files (SSH/SFTP). Used to archive the raw properties file next to the
// results; providers without it are simply skipped.
type FileCollector interface {
	CollectFile(ctx context.Context, instanceID, remotePath string, localPath string) error
}
