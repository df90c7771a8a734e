package cloudprovider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	compute "cloud.google.com/go/compute/apiv1"
	"cloud.google.com/go/compute/apiv1/computepb"
	"google.golang.org/api/iterator"
	"google.golang.org/protobuf/proto"
)

// Families whose machine shapes support attaching local SSD scratch disks.
var gcpLocalSSDFamilies = []string{"n1", "n2", "n2d", "c2"}

type GCPProvider struct {
	instances    *compute.InstancesClient
	project      string
	zone         string
	streamOutput bool
}

type GCPProviderInput struct {
	ProjectID    string
	Zone         string
	StreamOutput bool
}

func NewGCPProvider(ctx context.Context, input *GCPProviderInput) (*GCPProvider, error) {
	if input.ProjectID == "" {
		return nil, &ConfigurationError{
			Reason: "project ID is required for GCP",
			Hint:   "pass --project-id or run 'gcloud config set project PROJECT_ID'",
		}
	}

	client, err := compute.NewInstancesRESTClient(ctx)
	if err != nil {
		return nil, &ConfigurationError{
			Reason: "GCP credentials not configured",
			Hint:   "run 'gcloud auth application-default login'",
			Err:    err,
		}
	}

	p := &GCPProvider{
		instances:    client,
		project:      input.ProjectID,
		zone:         input.Zone,
		streamOutput: input.StreamOutput,
	}

	// Verify the credentials can actually talk to the project
	it := client.List(ctx, &computepb.ListInstancesRequest{Project: p.project, Zone: p.zone})
	if _, err := it.Next(); err != nil && err != iterator.Done {
		return nil, &ConfigurationError{
			Reason: "GCP credentials not configured",
			Hint:   "run 'gcloud auth application-default login' and 'gcloud config set project PROJECT_ID'",
			Err:    err,
		}
	}
	return p, nil
}

func (p *GCPProvider) Name() string { return "gcp" }

func (p *GCPProvider) CreateInstance(ctx context.Context, config *InstanceConfig) (string, error) {
	name := gcpInstanceName(config.InstanceType)

	instance := &computepb.Instance{
		Name:        proto.String(name),
		MachineType: proto.String(fmt.Sprintf("zones/%s/machineTypes/%s", p.zone, config.InstanceType)),
		Disks: []*computepb.AttachedDisk{{
			Boot:       proto.Bool(true),
			AutoDelete: proto.Bool(true),
			InitializeParams: &computepb.AttachedDiskInitializeParams{
				SourceImage: proto.String(config.ImageID),
				DiskType:    proto.String(fmt.Sprintf("zones/%s/diskTypes/pd-ssd", p.zone)),
				DiskSizeGb:  proto.Int64(20),
			},
		}},
		NetworkInterfaces: []*computepb.NetworkInterface{{
			Network: proto.String("global/networks/default"),
			AccessConfigs: []*computepb.AccessConfig{{
				Type: proto.String("ONE_TO_ONE_NAT"),
				Name: proto.String("External NAT"),
			}},
		}},
		Labels: map[string]string{
			"purpose":        "scylla-io-benchmark",
			"auto-terminate": "true",
		},
	}

	if gcpSupportsLocalSSD(config.InstanceType) {
		instance.Disks = append(instance.Disks, &computepb.AttachedDisk{
			AutoDelete: proto.Bool(true),
			Interface:  proto.String("NVME"),
			Type:       proto.String("SCRATCH"),
			InitializeParams: &computepb.AttachedDiskInitializeParams{
				DiskType: proto.String(fmt.Sprintf("zones/%s/diskTypes/local-ssd", p.zone)),
			},
		})
	}

	if config.UserData != "" {
		instance.Metadata = &computepb.Metadata{
			Items: []*computepb.Items{{
				Key:   proto.String("startup-script"),
				Value: proto.String(config.UserData),
			}},
		}
	}

	_, err := p.instances.Insert(ctx, &computepb.InsertInstanceRequest{
		Project:          p.project,
		Zone:             p.zone,
		InstanceResource: instance,
	})
	if err != nil {
		return "", &ProvisioningError{InstanceType: config.InstanceType, Reason: "instance creation failed", Err: err}
	}

	slog.Info("created GCP instance", slog.String("name", name), slog.String("instanceType", config.InstanceType))
	return name, nil
}

func (p *GCPProvider) WaitForInstanceReady(ctx context.Context, instanceID string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		instance, err := p.instances.Get(ctx, &computepb.GetInstanceRequest{
			Project:  p.project,
			Zone:     p.zone,
			Instance: instanceID,
		})
		if err == nil && instance.GetStatus() == "RUNNING" {
			slog.Info("GCP instance is ready", slog.String("name", instanceID))
			return true
		}
		if err != nil {
			slog.Debug("waiting for GCP instance", slog.String("name", instanceID), slog.String("error", err.Error()))
		} else {
			slog.Debug("waiting for GCP instance", slog.String("name", instanceID), slog.String("status", instance.GetStatus()))
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(15 * time.Second):
		}
	}
	slog.Error("GCP instance failed to become ready", slog.String("name", instanceID), slog.String("timeout", timeout.String()))
	return false
}

// RunCommand shells out to gcloud, which handles key distribution through the
// project metadata. This keeps the benchmark from needing its own key pair
// plumbing on GCP.
func (p *GCPProvider) RunCommand(ctx context.Context, instanceID, command string) (int, string, string, error) {
	args := []string{
		"compute", "ssh", instanceID,
		"--project", p.project,
		"--zone", p.zone,
		"--ssh-flag=-o StrictHostKeyChecking=no",
		"--ssh-flag=-o UserKnownHostsFile=/dev/null",
		"--ssh-flag=-o ConnectTimeout=30",
		"--command", command,
	}

	cmd := exec.CommandContext(ctx, "gcloud", args...)
	var stdout, stderr bytes.Buffer
	if p.streamOutput {
		cmd.Stdout = io.MultiWriter(&stdout, os.Stdout)
		cmd.Stderr = io.MultiWriter(&stderr, os.Stdout)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), stdout.String(), stderr.String(), nil
		}
		return 0, "", "", &CommandExecutionError{InstanceID: instanceID, Err: err}
	}
	return 0, stdout.String(), stderr.String(), nil
}

func (p *GCPProvider) TerminateInstance(ctx context.Context, instanceID string) {
	_, err := p.instances.Delete(ctx, &computepb.DeleteInstanceRequest{
		Project:  p.project,
		Zone:     p.zone,
		Instance: instanceID,
	})
	if err != nil {
		slog.Error("failed to terminate GCP instance", slog.String("name", instanceID), slog.String("error", err.Error()))
		return
	}
	slog.Info("terminated GCP instance", slog.String("name", instanceID))
}

// GCE instance names must be lowercase RFC 1035 labels.
func gcpInstanceName(instanceType string) string {
	name := strings.ToLower(instanceType)
	name = strings.ReplaceAll(name, ".", "-")
	name = strings.ReplaceAll(name, "_", "-")
	return "scylla-io-benchmark-" + name
}

func gcpSupportsLocalSSD(instanceType string) bool {
	for _, family := range gcpLocalSSDFamilies {
		if strings.HasPrefix(instanceType, family+"-") {
			return true
		}
	}
	return false
}
