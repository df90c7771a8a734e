package cloudprovider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackInstanceTypes(t *testing.T) {
	assert.Contains(t, FallbackInstanceTypes("gcp", "n2"), "n2-standard-8")
	assert.Contains(t, FallbackInstanceTypes("azure", "Lsv2"), "Standard_L16s_v2")
	assert.Empty(t, FallbackInstanceTypes("gcp", "bogus"))
	assert.Empty(t, FallbackInstanceTypes("aws", "i4i"), "AWS families expand through the EC2 API, not the table")
}

func TestParseImageVersion(t *testing.T) {
	v, err := ParseImageVersion("scylladb-5-2-1")
	require.NoError(t, err)
	assert.Equal(t, "5.2.1", v.String())

	v, err = ParseImageVersion("projects/scylla-images/global/images/scylladb-2025-1-0")
	require.NoError(t, err)
	assert.Equal(t, "2025.1.0", v.String())

	// Multiple version-shaped fragments: the trailing one is the release.
	v, err = ParseImageVersion("scylla-enterprise-2024.2/scylladb-6.0.3")
	require.NoError(t, err)
	assert.Equal(t, "6.0.3", v.String())

	_, err = ParseImageVersion("ami-0abc123def456")
	assert.Error(t, err)
}

func TestVersionWarningThreshold(t *testing.T) {
	old, err := ParseImageVersion("scylladb-4-6-3")
	require.NoError(t, err)
	assert.True(t, old.LessThan(MinIOPropertiesVersion))

	current, err := ParseImageVersion("scylladb-5-0-0")
	require.NoError(t, err)
	assert.False(t, current.LessThan(MinIOPropertiesVersion))
}

func TestCandidateKeyPathsOrdering(t *testing.T) {
	paths := candidateKeyPaths("bench-key")
	require.GreaterOrEqual(t, len(paths), 6)
	assert.Contains(t, paths[0], "bench-key.pem")
	assert.Contains(t, paths[1], "bench-key")
	assert.Contains(t, paths[2], "bench-key.key")
	assert.Contains(t, paths[3], "id_rsa")

	// No named key: only the default identities remain.
	paths = candidateKeyPaths("")
	require.Len(t, paths, 3)
	assert.Contains(t, paths[0], "id_rsa")
}
