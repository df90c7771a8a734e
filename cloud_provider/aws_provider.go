package cloudprovider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Octogonapus/CloudIOBench/target"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2Types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"golang.org/x/crypto/ssh"
)

const benchmarkSecurityGroupName = "scylla-benchmark-sg"

type AWSProvider struct {
	ec2          *ec2.Client
	region       string
	keyName      string
	signers      []ssh.Signer
	streamOutput bool

	mu      sync.Mutex
	targets map[string]*target.SSHTarget
}

type AWSProviderInput struct {
	AwsConfig aws.Config
	// Name of the EC2 key pair whose private key sits under ~/.ssh.
	KeyName string
	// Mirror remote command output to stdout as it arrives.
	StreamOutput bool
}

func NewAWSProvider(ctx context.Context, input *AWSProviderInput) (*AWSProvider, error) {
	p := &AWSProvider{
		ec2:          ec2.NewFromConfig(input.AwsConfig),
		region:       input.AwsConfig.Region,
		keyName:      input.KeyName,
		signers:      loadSigners(input.KeyName),
		streamOutput: input.StreamOutput,
		targets:      map[string]*target.SSHTarget{},
	}

	// Cheap call to verify the credentials before any trial starts
	_, err := p.ec2.DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, &ConfigurationError{
			Reason: "AWS credentials not configured",
			Hint:   "run 'aws configure' or set AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY",
			Err:    err,
		}
	}
	return p, nil
}

func (p *AWSProvider) Name() string { return "aws" }

func (p *AWSProvider) CreateInstance(ctx context.Context, config *InstanceConfig) (string, error) {
	subnetID, vpcID, err := p.resolveNetwork(ctx, config)
	if err != nil {
		return "", &ProvisioningError{InstanceType: config.InstanceType, Reason: "no usable subnet", Err: err}
	}

	securityGroupID := config.SecurityGroupID
	if securityGroupID == "" {
		securityGroupID = p.getOrCreateSecurityGroup(ctx, vpcID)
	} else {
		slog.Info("using user-specified security group", slog.String("ID", securityGroupID))
	}

	params := &ec2.RunInstancesInput{
		ImageId:      aws.String(config.ImageID),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		InstanceType: ec2Types.InstanceType(config.InstanceType),
		SubnetId:     aws.String(subnetID),
		TagSpecifications: []ec2Types.TagSpecification{{
			ResourceType: ec2Types.ResourceTypeInstance,
			Tags: []ec2Types.Tag{
				{Key: aws.String("Name"), Value: aws.String("scylla-io-benchmark-" + config.InstanceType)},
				{Key: aws.String("Purpose"), Value: aws.String("scylla-io-benchmark")},
				{Key: aws.String("AutoTerminate"), Value: aws.String("true")},
			},
		}},
	}
	if config.KeyName != "" {
		params.KeyName = aws.String(config.KeyName)
	}
	if securityGroupID != "" {
		params.SecurityGroupIds = []string{securityGroupID}
	}
	if config.UserData != "" {
		params.UserData = aws.String(base64.StdEncoding.EncodeToString([]byte(config.UserData)))
	}

	resp, err := p.ec2.RunInstances(ctx, params)
	if err != nil {
		return "", p.classifyRunInstancesError(ctx, config.InstanceType, subnetID, err)
	}

	instanceID := *resp.Instances[0].InstanceId
	slog.Info("created AWS instance", slog.String("instanceID", instanceID), slog.String("instanceType", config.InstanceType))
	return instanceID, nil
}

// classifyRunInstancesError maps AWS rejections onto the provisioning error
// taxonomy, adding a zone survey for the unsupported-in-zone case so the
// message can point at a subnet that would have worked.
func (p *AWSProvider) classifyRunInstancesError(ctx context.Context, instanceType, subnetID string, err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return &ProvisioningError{InstanceType: instanceType, Reason: "instance creation failed", Err: err}
	}

	switch apiErr.ErrorCode() {
	case "Unsupported":
		if !strings.Contains(apiErr.ErrorMessage(), "Availability Zone") {
			break
		}
		var supported []string
		for _, zone := range p.availableZones(ctx) {
			if p.instanceTypeSupportedInZone(ctx, instanceType, zone) {
				supported = append(supported, zone)
			}
		}
		if len(supported) > 0 {
			return &ProvisioningError{
				InstanceType: instanceType,
				Reason: fmt.Sprintf("not supported in the zone of subnet %s but available in zones %s; specify --aws-subnet-id in one of those zones or drop it for automatic selection",
					subnetID, strings.Join(supported, ", ")),
				Err: err,
			}
		}
		return &ProvisioningError{
			InstanceType: instanceType,
			Reason:       fmt.Sprintf("not supported in any availability zone in region %s", p.region),
			Err:          err,
		}
	case "InsufficientInstanceCapacity":
		return &ProvisioningError{InstanceType: instanceType, Reason: "insufficient capacity in the selected availability zone, try again later", Err: err}
	case "InvalidInstanceType":
		return &ProvisioningError{InstanceType: instanceType, Reason: fmt.Sprintf("invalid instance type for region %s", p.region), Err: err}
	}
	return &ProvisioningError{InstanceType: instanceType, Reason: "instance creation failed", Err: err}
}

func (p *AWSProvider) WaitForInstanceReady(ctx context.Context, instanceID string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		status, err := p.ec2.DescribeInstanceStatus(ctx, &ec2.DescribeInstanceStatusInput{
			InstanceIds:         []string{instanceID},
			IncludeAllInstances: aws.Bool(true),
		})
		if err == nil && len(status.InstanceStatuses) > 0 &&
			status.InstanceStatuses[0].InstanceStatus != nil &&
			status.InstanceStatuses[0].InstanceStatus.Status == ec2Types.SummaryStatusOk &&
			status.InstanceStatuses[0].SystemStatus != nil &&
			status.InstanceStatuses[0].SystemStatus.Status == ec2Types.SummaryStatusOk {
			slog.Info("AWS instance is ready", slog.String("instanceID", instanceID))
			return true
		}
		if err != nil {
			slog.Debug("waiting for instance to finish initializing", slog.String("instanceID", instanceID), slog.String("error", err.Error()))
		} else {
			slog.Debug("waiting for instance to finish initializing", slog.String("instanceID", instanceID))
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(15 * time.Second):
		}
	}
	slog.Error("AWS instance failed to become ready", slog.String("instanceID", instanceID), slog.String("timeout", timeout.String()))
	return false
}

func (p *AWSProvider) RunCommand(ctx context.Context, instanceID, command string) (int, string, string, error) {
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

func (p *AWSProvider) CollectFile(ctx context.Context, instanceID, remotePath, localPath string) error {
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

func (p *AWSProvider) TerminateInstance(ctx context.Context, instanceID string) {
	p.mu.Lock()
	delete(p.targets, instanceID)
	p.mu.Unlock()

	_, err := p.ec2.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		slog.Error("failed to terminate AWS instance", slog.String("instanceID", instanceID), slog.String("error", err.Error()))
		return
	}
	slog.Info("terminated AWS instance", slog.String("instanceID", instanceID))
}

// InstanceTypesByFamily discovers every instance type in a family available in
// the region, e.g. "i4i" expands to i4i.large, i4i.xlarge and so on.
func (p *AWSProvider) InstanceTypesByFamily(ctx context.Context, family string) ([]string, error) {
	slog.Info("discovering instance types", slog.String("family", family), slog.String("region", p.region))

	var instanceTypes []string
	paginator := ec2.NewDescribeInstanceTypesPaginator(p.ec2, &ec2.DescribeInstanceTypesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			var apiErr smithy.APIError
			if errors.As(err, &apiErr) && apiErr.ErrorCode() == "UnauthorizedOperation" {
				return nil, &ConfigurationError{
					Reason: "insufficient permissions to describe instance types",
					Hint:   "ensure your AWS credentials have 'ec2:DescribeInstanceTypes' permission",
					Err:    err,
				}
			}
			return nil, fmt.Errorf("failed to discover instance types for family %q: %w", family, err)
		}
		for _, info := range page.InstanceTypes {
			instanceType := string(info.InstanceType)
			if strings.HasPrefix(instanceType, family+".") {
				instanceTypes = append(instanceTypes, instanceType)
			}
		}
	}

	sort.Strings(instanceTypes)
	if len(instanceTypes) == 0 {
		slog.Warn("no instance types found", slog.String("family", family), slog.String("region", p.region))
	} else {
		slog.Info("found instance types", slog.String("family", family), slog.String("types", strings.Join(instanceTypes, ", ")))
	}
	return instanceTypes, nil
}

// resolveNetwork picks the subnet an instance will launch into. Preference
// order: a user-specified subnet (verified to support the type), then a subnet
// in the user's VPC, the default VPC, or any VPC whose zone supports the type.
// The last resort is the first subnet found, letting provisioning fail loudly.
func (p *AWSProvider) resolveNetwork(ctx context.Context, config *InstanceConfig) (subnetID, vpcID string, err error) {
	if config.SubnetID != "" {
		resp, err := p.ec2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{SubnetIds: []string{config.SubnetID}})
		if err != nil || len(resp.Subnets) == 0 {
			return "", "", fmt.Errorf("failed to describe subnet %s: %w", config.SubnetID, err)
		}
		subnet := resp.Subnets[0]
		if p.instanceTypeSupportedInZone(ctx, config.InstanceType, *subnet.AvailabilityZone) {
			slog.Info("using user-specified subnet", slog.String("subnetID", config.SubnetID), slog.String("zone", *subnet.AvailabilityZone))
			return config.SubnetID, *subnet.VpcId, nil
		}
		slog.Warn("user-specified subnet does not support instance type, searching for alternative",
			slog.String("subnetID", config.SubnetID),
			slog.String("zone", *subnet.AvailabilityZone),
			slog.String("instanceType", config.InstanceType))
		return p.findSupportedSubnet(ctx, *subnet.VpcId, config.InstanceType)
	}

	vpcs, err := p.candidateVPCs(ctx, config.VPCID)
	if err != nil {
		return "", "", err
	}
	for _, vpc := range vpcs {
		subnetID, vpcID, err = p.findSupportedSubnet(ctx, vpc, config.InstanceType)
		if err == nil {
			return subnetID, vpcID, nil
		}
		slog.Debug("VPC has no usable subnet", slog.String("vpcID", vpc), slog.String("error", err.Error()))
	}
	return "", "", fmt.Errorf("no VPC with a usable subnet for %s", config.InstanceType)
}

// candidateVPCs returns VPC IDs to search: the user's choice alone if given,
// otherwise default VPCs before the rest.
func (p *AWSProvider) candidateVPCs(ctx context.Context, userVPCID string) ([]string, error) {
	if userVPCID != "" {
		return []string{userVPCID}, nil
	}
	resp, err := p.ec2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to list VPCs: %w", err)
	}
	if len(resp.Vpcs) == 0 {
		return nil, fmt.Errorf("no VPCs found in this AWS account")
	}
	var defaults, others []string
	for _, vpc := range resp.Vpcs {
		if vpc.IsDefault != nil && *vpc.IsDefault {
			defaults = append(defaults, *vpc.VpcId)
		} else {
			others = append(others, *vpc.VpcId)
		}
	}
	return append(defaults, others...), nil
}

func (p *AWSProvider) findSupportedSubnet(ctx context.Context, vpcID, instanceType string) (string, string, error) {
	resp, err := p.ec2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []ec2Types.Filter{{Name: aws.String("vpc-id"), Values: []string{vpcID}}},
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to list subnets in VPC %s: %w", vpcID, err)
	}
	if len(resp.Subnets) == 0 {
		return "", "", fmt.Errorf("no subnets found in VPC %s", vpcID)
	}

	availableZones := map[string]bool{}
	for _, zone := range p.availableZones(ctx) {
		availableZones[zone] = true
	}

	var public, private []ec2Types.Subnet
	for _, subnet := range resp.Subnets {
		if subnet.MapPublicIpOnLaunch != nil && *subnet.MapPublicIpOnLaunch {
			public = append(public, subnet)
		} else {
			private = append(private, subnet)
		}
	}

	for _, subnet := range append(public, private...) {
		zone := *subnet.AvailabilityZone
		if !availableZones[zone] {
			continue
		}
		if p.instanceTypeSupportedInZone(ctx, instanceType, zone) {
			slog.Info("found supported subnet",
				slog.String("subnetID", *subnet.SubnetId),
				slog.String("zone", zone),
				slog.String("instanceType", instanceType))
			return *subnet.SubnetId, vpcID, nil
		}
		slog.Debug("instance type not supported in zone", slog.String("instanceType", instanceType), slog.String("zone", zone))
	}

	// No confirmed zone; try the first subnet anyway and let AWS reject it.
	subnet := resp.Subnets[0]
	slog.Warn("no subnet with confirmed support, trying anyway",
		slog.String("instanceType", instanceType),
		slog.String("subnetID", *subnet.SubnetId),
		slog.String("zone", *subnet.AvailabilityZone))
	return *subnet.SubnetId, vpcID, nil
}

func (p *AWSProvider) availableZones(ctx context.Context) []string {
	resp, err := p.ec2.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{
		Filters: []ec2Types.Filter{{Name: aws.String("state"), Values: []string{"available"}}},
	})
	if err != nil {
		slog.Warn("failed to list availability zones", slog.String("error", err.Error()))
		return nil
	}
	var zones []string
	for _, zone := range resp.AvailabilityZones {
		zones = append(zones, *zone.ZoneName)
	}
	return zones
}

func (p *AWSProvider) instanceTypeSupportedInZone(ctx context.Context, instanceType, zone string) bool {
	resp, err := p.ec2.DescribeInstanceTypeOfferings(ctx, &ec2.DescribeInstanceTypeOfferingsInput{
		LocationType: ec2Types.LocationTypeAvailabilityZone,
		Filters: []ec2Types.Filter{
			{Name: aws.String("instance-type"), Values: []string{instanceType}},
			{Name: aws.String("location"), Values: []string{zone}},
		},
	})
	if err != nil {
		slog.Debug("failed to check instance type offering",
			slog.String("instanceType", instanceType),
			slog.String("zone", zone),
			slog.String("error", err.Error()))
		return false
	}
	return len(resp.InstanceTypeOfferings) > 0
}

func (p *AWSProvider) getOrCreateSecurityGroup(ctx context.Context, vpcID string) string {
	resp, err := p.ec2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []ec2Types.Filter{
			{Name: aws.String("group-name"), Values: []string{benchmarkSecurityGroupName}},
			{Name: aws.String("vpc-id"), Values: []string{vpcID}},
		},
	})
	if err == nil && len(resp.SecurityGroups) > 0 {
		sgID := *resp.SecurityGroups[0].GroupId
		slog.Info("using existing security group", slog.String("ID", sgID))
		return sgID
	}

	created, err := p.ec2.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(benchmarkSecurityGroupName),
		Description: aws.String("Security group for ScyllaDB benchmark instances"),
		VpcId:       aws.String(vpcID),
	})
	if err != nil {
		slog.Warn("failed to create security group", slog.String("error", err.Error()))
		return ""
	}

	_, err = p.ec2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: created.GroupId,
		IpPermissions: []ec2Types.IpPermission{{
			IpProtocol: aws.String("tcp"),
			FromPort:   aws.Int32(22),
			ToPort:     aws.Int32(22),
			IpRanges:   []ec2Types.IpRange{{CidrIp: aws.String("0.0.0.0/0"), Description: aws.String("SSH access for benchmark")}},
		}},
	})
	if err != nil {
		slog.Warn("failed to authorize SSH ingress", slog.String("error", err.Error()))
	}
	slog.Info("created security group", slog.String("ID", *created.GroupId))
	return *created.GroupId
}

func (p *AWSProvider) targetFor(ctx context.Context, instanceID string) (*target.SSHTarget, error) {
	p.mu.Lock()
	if t, ok := p.targets[instanceID]; ok {
		p.mu.Unlock()
		return t, nil
	}
	p.mu.Unlock()

	if len(p.signers) == 0 {
		return nil, fmt.Errorf("no usable SSH private keys found for key pair %q under ~/.ssh", p.keyName)
	}

	ip, err := p.getInstanceIP(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	t := &target.SSHTarget{
		Users:   scyllaSSHUsers,
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

func (p *AWSProvider) getInstanceIP(ctx context.Context, instanceID string) (string, error) {
	for i := 0; i < 10; i++ {
		resp, err := p.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			InstanceIds: []string{instanceID},
		})
		if err != nil {
			return "", err
		}
		if len(resp.Reservations) == 0 || len(resp.Reservations[0].Instances) == 0 {
			return "", fmt.Errorf("instance %s not found", instanceID)
		}
		instance := resp.Reservations[0].Instances[0]
		if instance.PublicIpAddress != nil {
			return *instance.PublicIpAddress, nil
		}
		if instance.PrivateIpAddress != nil {
			return *instance.PrivateIpAddress, nil
		}
		time.Sleep(3 * time.Second)
	}
	return "", fmt.Errorf("failed to get instance %s IP", instanceID)
}
