package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	benchmarkorchestrator "github.com/Octogonapus/CloudIOBench/benchmark_orchestrator"
	cloudprovider "github.com/Octogonapus/CloudIOBench/cloud_provider"
	"github.com/Octogonapus/CloudIOBench/report"
	"github.com/aws/aws-sdk-go-v2/config"
)

// Installed via cloud-init so the instance measures its disks on first boot.
const userDataScript = `#!/bin/bash
systemctl enable scylla-server
systemctl start scylla-server
sleep 30
`

func main() {
	cloud := flag.String("cloud", "aws", "The cloud to benchmark on. Must be one of: aws, gcp, azure.")
	region := flag.String("region", "", "The AWS region. Defaults to the SDK's resolved region.")
	image := flag.String("image", "", "The ScyllaDB image to boot: an AMI ID on AWS, a source image URL on GCP, an image resource ID on Azure. Required unless --dry-run.")
	instanceFamily := flag.String("instance-family", "", "Benchmark every instance type in this family (e.g. i4i). Mutually exclusive with --instance-types.")
	instanceTypes := flag.String("instance-types", "", "Comma-separated list of instance types to benchmark.")
	runs := flag.Int("runs", 3, "How many trials to run per instance type.")
	maxConcurrent := flag.Int("max-concurrent", 4, "How many instances may exist at once.")
	outputCSV := flag.String("output-csv", "results.csv", "Write trial results to this CSV file.")
	resultDir := flag.String("result-dir", "results", "Directory for collected raw properties files.")
	collectProperties := flag.Bool("collect-properties", false, "Download the raw io_properties.yaml from each successful trial into --result-dir.")
	uploadBucket := flag.String("upload-bucket", "", "Upload the CSV and any collected files to this S3 bucket after the run.")
	projectID := flag.String("project-id", "", "The GCP project ID. Required for --cloud gcp.")
	zone := flag.String("zone", "us-east1-b", "The GCP zone.")
	subscriptionID := flag.String("subscription-id", "", "The Azure subscription ID. Required for --cloud azure.")
	resourceGroup := flag.String("resource-group", "scylla-benchmark", "The Azure resource group.")
	location := flag.String("location", "eastus", "The Azure location.")
	azureSSHPublicKey := flag.String("azure-ssh-public-key", "", "Public key material installed on Azure VMs for the admin user.")
	awsVPCID := flag.String("aws-vpc-id", "", "Launch AWS instances in this VPC. Discovered when empty.")
	awsSubnetID := flag.String("aws-subnet-id", "", "Launch AWS instances in this subnet. Discovered when empty.")
	awsSecurityGroupID := flag.String("aws-security-group-id", "", "Use this security group. Created when empty.")
	awsKeyName := flag.String("aws-key-name", "", "The EC2 key pair name. The matching private key must sit under ~/.ssh.")
	dryRun := flag.Bool("dry-run", false, "Run the whole pipeline against a simulated cloud. No instances are created.")
	debug := flag.Bool("debug", false, "Enable debug logging.")
	debugLive := flag.Bool("debug-live", false, "Stream remote command output to stdout as it arrives.")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	if *instanceFamily != "" && *instanceTypes != "" {
		fatal(&cloudprovider.ConfigurationError{
			Reason: "--instance-family and --instance-types are mutually exclusive",
			Hint:   "pass exactly one of them",
		})
	}
	if *instanceFamily == "" && *instanceTypes == "" {
		fatal(&cloudprovider.ConfigurationError{
			Reason: "no instance types selected",
			Hint:   "pass --instance-types or --instance-family",
		})
	}
	if *image == "" && !*dryRun {
		fatal(&cloudprovider.ConfigurationError{
			Reason: "no image selected",
			Hint:   "pass --image with a ScyllaDB image for the chosen cloud",
		})
	}

	if *image != "" {
		if v, err := cloudprovider.ParseImageVersion(*image); err != nil {
			slog.Warn("could not determine ScyllaDB version from image; assuming it writes io_properties.yaml", slog.String("image", *image))
		} else if v.LessThan(cloudprovider.MinIOPropertiesVersion) {
			slog.Warn("image predates io_properties.yaml support, trials will likely time out",
				slog.String("image", *image),
				slog.String("version", v.String()),
				slog.String("minimum", cloudprovider.MinIOPropertiesVersion.String()))
		}
	}

	provider, err := buildProvider(ctx, *cloud, *dryRun, &providerFlags{
		region:            *region,
		projectID:         *projectID,
		zone:              *zone,
		subscriptionID:    *subscriptionID,
		resourceGroup:     *resourceGroup,
		location:          *location,
		azureSSHPublicKey: *azureSSHPublicKey,
		awsKeyName:        *awsKeyName,
		streamOutput:      *debugLive,
	})
	if err != nil {
		fatal(err)
	}

	types, err := resolveInstanceTypes(ctx, provider, *instanceFamily, *instanceTypes)
	if err != nil {
		fatal(err)
	}
	slog.Info("resolved instance types", slog.Int("count", len(types)), slog.String("types", strings.Join(types, ",")))

	collectDir := ""
	if *collectProperties {
		collectDir = *resultDir
	}

	orch := benchmarkorchestrator.NewBenchmarkOrchestrator(provider, &benchmarkorchestrator.BenchmarkConfig{
		InstanceTypes:   types,
		Runs:            *runs,
		MaxConcurrent:   *maxConcurrent,
		ImageID:         *image,
		KeyName:         *awsKeyName,
		SecurityGroupID: *awsSecurityGroupID,
		SubnetID:        *awsSubnetID,
		VPCID:           *awsVPCID,
		UserData:        userDataScript,
		CollectDir:      collectDir,
	})
	results := orch.RunBenchmarks(ctx)

	if err := report.ExportCSV(*outputCSV, results); err != nil {
		slog.Error("failed to write CSV", slog.String("file", *outputCSV), slog.String("error", err.Error()))
	} else {
		slog.Info("wrote results", slog.String("file", *outputCSV))
	}

	report.PrintSummaryTable(results)
	report.PrintAnalysis(results)

	if *uploadBucket != "" {
		uploadResults(ctx, *uploadBucket, *outputCSV, collectDir)
	}

	nfailed := 0
	for _, r := range results {
		if !r.Success {
			nfailed++
		}
	}
	slog.Info("benchmark complete", slog.Int("trials", len(results)), slog.Int("failed", nfailed))
}

type providerFlags struct {
	region            string
	projectID         string
	zone              string
	subscriptionID    string
	resourceGroup     string
	location          string
	azureSSHPublicKey string
	awsKeyName        string
	streamOutput      bool
}

func buildProvider(ctx context.Context, cloud string, dryRun bool, f *providerFlags) (cloudprovider.Provider, error) {
	if dryRun {
		return cloudprovider.NewDryRunProvider(), nil
	}

	switch cloud {
	case "aws":
		opts := []func(*config.LoadOptions) error{config.WithEC2IMDSRegion()}
		if f.region != "" {
			opts = append(opts, config.WithRegion(f.region))
		}
		cfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, &cloudprovider.ConfigurationError{
				Reason: "AWS credentials not configured",
				Hint:   "run 'aws configure' or set AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY",
				Err:    err,
			}
		}
		return cloudprovider.NewAWSProvider(ctx, &cloudprovider.AWSProviderInput{
			AwsConfig:    cfg,
			KeyName:      f.awsKeyName,
			StreamOutput: f.streamOutput,
		})
	case "gcp":
		return cloudprovider.NewGCPProvider(ctx, &cloudprovider.GCPProviderInput{
			ProjectID:    f.projectID,
			Zone:         f.zone,
			StreamOutput: f.streamOutput,
		})
	case "azure":
		return cloudprovider.NewAzureProvider(ctx, &cloudprovider.AzureProviderInput{
			SubscriptionID: f.subscriptionID,
			ResourceGroup:  f.resourceGroup,
			Location:       f.location,
			SSHPublicKey:   f.azureSSHPublicKey,
			StreamOutput:   f.streamOutput,
		})
	default:
		return nil, &cloudprovider.ConfigurationError{
			Reason: fmt.Sprintf("unknown cloud %q", cloud),
			Hint:   "must be one of: aws, gcp, azure",
		}
	}
}

func resolveInstanceTypes(ctx context.Context, provider cloudprovider.Provider, family, explicit string) ([]string, error) {
	if explicit != "" {
		var types []string
		for _, t := range strings.Split(explicit, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
		if len(types) == 0 {
			return nil, &cloudprovider.ConfigurationError{Reason: "empty --instance-types list"}
		}
		return types, nil
	}

	// AWS can enumerate a family live; the others use the fallback tables.
	if aws, ok := provider.(*cloudprovider.AWSProvider); ok {
		types, err := aws.InstanceTypesByFamily(ctx, family)
		if err != nil {
			return nil, err
		}
		if len(types) == 0 {
			return nil, &cloudprovider.ConfigurationError{
				Reason: fmt.Sprintf("no instance types found for family %q", family),
				Hint:   "check the family name (e.g. i4i, i3en, m6i)",
			}
		}
		return types, nil
	}

	types := cloudprovider.FallbackInstanceTypes(provider.Name(), family)
	if len(types) == 0 {
		return nil, &cloudprovider.ConfigurationError{
			Reason: fmt.Sprintf("no known instance types for family %q on %s", family, provider.Name()),
			Hint:   "pass --instance-types explicitly",
		}
	}
	return types, nil
}

func uploadResults(ctx context.Context, bucket, csvFile, collectDir string) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithEC2IMDSRegion())
	if err != nil {
		slog.Error("failed to load AWS config for upload", slog.String("error", err.Error()))
		return
	}

	prefix := path.Join("cloud-io-bench", time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	uploader := report.NewS3Uploader(cfg, bucket)
	if err := uploader.UploadFile(ctx, csvFile, prefix); err != nil {
		slog.Error("failed to upload CSV", slog.String("bucket", bucket), slog.String("error", err.Error()))
	}
	if collectDir != "" {
		if err := uploader.UploadDir(ctx, collectDir, prefix); err != nil {
			slog.Error("failed to upload collected files", slog.String("bucket", bucket), slog.String("error", err.Error()))
		}
	}
}

// fatal prints a setup problem with its remediation hint and exits non-zero.
// Only configuration problems end the process; per-trial failures are
// reported in the results instead.
func fatal(err error) {
	var cfgErr *cloudprovider.ConfigurationError
	if errors.As(err, &cfgErr) && cfgErr.Hint != "" {
		fmt.Fprintf(os.Stderr, "error: %s\nhint: %s\n", cfgErr.Error(), cfgErr.Hint)
	} else {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
	}
	os.Exit(1)
}
