package cloudprovider

import "fmt"

// ConfigurationError aborts the whole run before any trial starts: bad
// credentials, missing required cloud parameter, no instance types resolved.
// Hint carries a human-readable remediation step for the CLI to print.
type ConfigurationError struct {
	Reason string
	Hint   string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ProvisioningError means instance creation was rejected. It is recorded as a
// per-trial failure and never retried within the trial.
type ProvisioningError struct {
	InstanceType string
	Reason       string
	Err          error
}

func (e *ProvisioningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to create %s instance: %s: %v", e.InstanceType, e.Reason, e.Err)
	}
	return fmt.Sprintf("failed to create %s instance: %s", e.InstanceType, e.Reason)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// CommandExecutionError is a channel-level remote execution failure
// (unreachable host, every identity rejected), distinct from a command that
// ran and returned a non-zero exit code.
type CommandExecutionError struct {
	InstanceID string
	Err        error
}

func (e *CommandExecutionError) Error() string {
	return fmt.Sprintf("remote execution on %s failed: %v", e.InstanceID, e.Err)
}

func (e *CommandExecutionError) Unwrap() error { return e.Err }
