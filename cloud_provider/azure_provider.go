package cloudprovider

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v4"
	"github.com/Octogonapus/CloudIOBench/target"
	"golang.org/x/crypto/ssh"
)

type AzureProvider struct {
	vms          *armcompute.VirtualMachinesClient
	nics         *armnetwork.InterfacesClient
	publicIPs    *armnetwork.PublicIPAddressesClient
	subscription string
	resource     string
	location     string
	sshPublicKey string
	signers      []ssh.Signer
	streamOutput bool

	mu      sync.Mutex
	targets map[string]*target.SSHTarget
}

type AzureProviderInput struct {
	SubscriptionID string
	ResourceGroup  string
	Location       string
	// Public key material installed for the admin user at creation time.
	SSHPublicKey string
	StreamOutput bool
}

func NewAzureProvider(ctx context.Context, input *AzureProviderInput) (*AzureProvider, error) {
	if input.SubscriptionID == "" {
		return nil, &ConfigurationError{
			Reason: "subscription ID is required for Azure",
			Hint:   "pass --subscription-id",
		}
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, &ConfigurationError{Reason: "Azure credentials not configured", Hint: "run 'az login'", Err: err}
	}

	vms, err := armcompute.NewVirtualMachinesClient(input.SubscriptionID, cred, nil)
	if err != nil {
		return nil, &ConfigurationError{Reason: "failed to create Azure compute client", Hint: "run 'az login'", Err: err}
	}
	nics, err := armnetwork.NewInterfacesClient(input.SubscriptionID, cred, nil)
	if err != nil {
		return nil, &ConfigurationError{Reason: "failed to create Azure network client", Hint: "run 'az login'", Err: err}
	}
	publicIPs, err := armnetwork.NewPublicIPAddressesClient(input.SubscriptionID, cred, nil)
	if err != nil {
		return nil, &ConfigurationError{Reason: "failed to create Azure network client", Hint: "run 'az login'", Err: err}
	}

	p := &AzureProvider{
		vms:          vms,
		nics:         nics,
		publicIPs:    publicIPs,
		subscription: input.SubscriptionID,
		resource:     input.ResourceGroup,
		location:     input.Location,
		sshPublicKey: input.SSHPublicKey,
		signers:      loadSigners(""),
		streamOutput: input.StreamOutput,
		targets:      map[string]*target.SSHTarget{},
	}

	// Verify the credentials before any trial starts
	pager := vms.NewListPager(p.resource, nil)
	if _, err := pager.NextPage(ctx); err != nil {
		return nil, &ConfigurationError{Reason: "Azure credentials not configured", Hint: "run 'az login'", Err: err}
	}
	return p, nil
}

func (p *AzureProvider) Name() string { return "azure" }

func (p *AzureProvider) CreateInstance(ctx context.Context, config *InstanceConfig) (string, error) {
	vmName := azureVMName(config.InstanceType)

	// The network interface is assumed to exist already; creating vnets and
	// NICs per trial is out of scope for the benchmark.
	nicID := fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Network/networkInterfaces/%s-nic",
		p.subscription, p.resource, vmName)

	properties := &armcompute.VirtualMachineProperties{
		HardwareProfile: &armcompute.HardwareProfile{
			VMSize: to.Ptr(armcompute.VirtualMachineSizeTypes(config.InstanceType)),
		},
		StorageProfile: &armcompute.StorageProfile{
			ImageReference: &armcompute.ImageReference{ID: to.Ptr(config.ImageID)},
			OSDisk: &armcompute.OSDisk{
				CreateOption: to.Ptr(armcompute.DiskCreateOptionTypesFromImage),
				ManagedDisk: &armcompute.ManagedDiskParameters{
					StorageAccountType: to.Ptr(armcompute.StorageAccountTypesPremiumLRS),
				},
			},
		},
		OSProfile: &armcompute.OSProfile{
			ComputerName:  to.Ptr(vmName),
			AdminUsername: to.Ptr("scylla"),
			LinuxConfiguration: &armcompute.LinuxConfiguration{
				DisablePasswordAuthentication: to.Ptr(true),
				SSH: &armcompute.SSHConfiguration{
					PublicKeys: []*armcompute.SSHPublicKey{{
						Path:    to.Ptr("/home/scylla/.ssh/authorized_keys"),
						KeyData: to.Ptr(p.sshPublicKey),
					}},
				},
			},
		},
		NetworkProfile: &armcompute.NetworkProfile{
			NetworkInterfaces: []*armcompute.NetworkInterfaceReference{{ID: to.Ptr(nicID)}},
		},
	}
	if config.UserData != "" {
		properties.OSProfile.CustomData = to.Ptr(base64.StdEncoding.EncodeToString([]byte(config.UserData)))
	}

	_, err := p.vms.BeginCreateOrUpdate(ctx, p.resource, vmName, armcompute.VirtualMachine{
		Location:   to.Ptr(p.location),
		Properties: properties,
		Tags: map[string]*string{
			"Purpose":       to.Ptr("scylla-io-benchmark"),
			"AutoTerminate": to.Ptr("true"),
		},
	}, nil)
	if err != nil {
		return "", &ProvisioningError{InstanceType: config.InstanceType, Reason: "VM creation failed", Err: err}
	}

	slog.Info("created Azure VM", slog.String("name", vmName), slog.String("instanceType", config.InstanceType))
	return vmName, nil
}

func (p *AzureProvider) WaitForInstanceReady(ctx context.Context, instanceID string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		view, err := p.vms.InstanceView(ctx, p.resource, instanceID, nil)
		if err == nil {
			for _, status := range view.Statuses {
				if status.Code != nil && *status.Code == "PowerState/running" {
					slog.Info("Azure VM is ready", slog.String("name", instanceID))
					return true
				}
			}
		} else {
			slog.Debug("waiting for Azure VM", slog.String("name", instanceID), slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(15 * time.Second):
		}
	}
	slog.Error("Azure VM failed to become ready", slog.String("name", instanceID), slog.String("timeout", timeout.String()))
	return false
}

func (p *AzureProvider) RunCommand(ctx context.Context, instanceID, command string) (int, string, string, error) {
	t, err := p.targetFor(ctx, instanceID)
	if err != nil {
		return 0, "", "", &CommandExecutionError{InstanceID: instanceID, Err: err}
	}
	exitCode, stdout, stderr, err := t.RunCommand(ctx, command)
	if err != nil {
		return 0, "", "", &CommandExecutionError{InstanceID: instanceID, Err: err}
	}
	return exitCode, string(stdout), string(stderr), nil
}

func (p *AzureProvider) CollectFile(ctx context.Context, instanceID, remotePath, localPath string) error {
	t, err := p.targetFor(ctx, instanceID)
	if err != nil {
		return &CommandExecutionError{InstanceID: instanceID, Err: err}
	}
	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return t.CopyFileFrom(remotePath, f)
}

func (p *AzureProvider) TerminateInstance(ctx context.Context, instanceID string) {
	p.mu.Lock()
	delete(p.targets, instanceID)
	p.mu.Unlock()

	poller, err := p.vms.BeginDelete(ctx, p.resource, instanceID, nil)
	if err != nil {
		slog.Error("failed to terminate Azure VM", slog.String("name", instanceID), slog.String("error", err.Error()))
		return
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		slog.Error("Azure VM deletion did not finish", slog.String("name", instanceID), slog.String("error", err.Error()))
		return
	}
	slog.Info("terminated Azure VM", slog.String("name", instanceID))
}

func (p *AzureProvider) targetFor(ctx context.Context, instanceID string) (*target.SSHTarget, error) {
	p.mu.Lock()
	if t, ok := p.targets[instanceID]; ok {
		p.mu.Unlock()
		return t, nil
	}
	p.mu.Unlock()

	if len(p.signers) == 0 {
		return nil, fmt.Errorf("no usable SSH private keys found under ~/.ssh")
	}

	ip, err := p.getInstanceIP(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	t := &target.SSHTarget{
		Users:   []string{"scyllaadm", "scylla"},
		IP:      ip,
		SSHPort: 22,
		Auths:   []ssh.AuthMethod{ssh.PublicKeys(p.signers...)},
	}
	if p.streamOutput {
		t.Stream = os.Stdout
	}

	p.mu.Lock()
	p.targets[instanceID] = t
	p.mu.Unlock()
	return t, nil
}

// getInstanceIP walks VM -> NIC -> public IP, falling back to the private
// address when no public IP is attached.
func (p *AzureProvider) getInstanceIP(ctx context.Context, instanceID string) (string, error) {
	vm, err := p.vms.Get(ctx, p.resource, instanceID, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get Azure VM %s: %w", instanceID, err)
	}
	if vm.Properties == nil || vm.Properties.NetworkProfile == nil || len(vm.Properties.NetworkProfile.NetworkInterfaces) == 0 {
		return "", fmt.Errorf("Azure VM %s has no network interfaces", instanceID)
	}

	nicName := lastSegment(*vm.Properties.NetworkProfile.NetworkInterfaces[0].ID)
	nic, err := p.nics.Get(ctx, p.resource, nicName, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get network interface %s: %w", nicName, err)
	}
	if nic.Properties == nil || len(nic.Properties.IPConfigurations) == 0 {
		return "", fmt.Errorf("network interface %s has no IP configurations", nicName)
	}

	ipConfig := nic.Properties.IPConfigurations[0]
	if ipConfig.Properties.PublicIPAddress != nil && ipConfig.Properties.PublicIPAddress.ID != nil {
		publicIPName := lastSegment(*ipConfig.Properties.PublicIPAddress.ID)
		publicIP, err := p.publicIPs.Get(ctx, p.resource, publicIPName, nil)
		if err == nil && publicIP.Properties != nil && publicIP.Properties.IPAddress != nil {
			return *publicIP.Properties.IPAddress, nil
		}
		slog.Debug("failed to resolve public IP, falling back to private", slog.String("name", publicIPName))
	}
	if ipConfig.Properties.PrivateIPAddress != nil {
		return *ipConfig.Properties.PrivateIPAddress, nil
	}
	return "", fmt.Errorf("no IP address found for Azure VM %s", instanceID)
}

func azureVMName(instanceType string) string {
	return "scylla-io-benchmark-" + strings.ToLower(strings.ReplaceAll(instanceType, "_", "-"))
}

func lastSegment(resourceID string) string {
	parts := strings.Split(resourceID, "/")
	return parts[len(parts)-1]
}
