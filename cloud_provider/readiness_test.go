package cloudprovider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReadinessTimeoutTiers(t *testing.T) {
	assert.Equal(t, 180*time.Second, ReadinessTimeout("t3.nano"))
	assert.Equal(t, 270*time.Second, ReadinessTimeout("i4i.large"))
	assert.Equal(t, 360*time.Second, ReadinessTimeout("i4i.xlarge"))
	assert.Equal(t, 450*time.Second, ReadinessTimeout("i4i.2xlarge"))
	assert.Equal(t, 630*time.Second, ReadinessTimeout("i4i.8xlarge"))
	assert.Equal(t, 1080*time.Second, ReadinessTimeout("i4i.32xlarge"))
	assert.Equal(t, 1440*time.Second, ReadinessTimeout("i4i.metal"))
}

func TestReadinessTimeoutUnknownSizes(t *testing.T) {
	// Anything unrecognized gets a generous default, never below the base.
	assert.Equal(t, 360*time.Second, ReadinessTimeout("n2-standard-16"))
	assert.Equal(t, 360*time.Second, ReadinessTimeout("Standard_L8s_v3"))
	assert.Equal(t, 360*time.Second, ReadinessTimeout("i4i.superhuge"))
}

func TestReadinessTimeoutMonotone(t *testing.T) {
	sizes := []string{
		"nano", "micro", "small", "medium", "large", "xlarge",
		"2xlarge", "3xlarge", "4xlarge", "6xlarge", "8xlarge",
		"12xlarge", "16xlarge", "18xlarge", "24xlarge", "32xlarge",
		"48xlarge", "metal",
	}
	prev := time.Duration(0)
	for _, size := range sizes {
		d := ReadinessTimeout("i4i." + size)
		assert.GreaterOrEqual(t, d, prev, "size %s", size)
		assert.GreaterOrEqual(t, d, 180*time.Second, "size %s", size)
		prev = d
	}
}
