package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIOPropertiesAllMetrics(t *testing.T) {
	props, err := ParseIOProperties(`disks:
  - mountpoint: /var/lib/scylla
    read_iops: 100000
    read_bandwidth: 1000000000
    write_iops: 50000
    write_bandwidth: 500000000
`)
	require.NoError(t, err)
	require.NotNil(t, props.ReadIOPS)
	require.NotNil(t, props.WriteIOPS)
	require.NotNil(t, props.ReadBandwidth)
	require.NotNil(t, props.WriteBandwidth)
	assert.Equal(t, 100000.0, *props.ReadIOPS)
	assert.Equal(t, 50000.0, *props.WriteIOPS)
	assert.Equal(t, 1000000000.0, *props.ReadBandwidth)
	assert.Equal(t, 500000000.0, *props.WriteBandwidth)
}

func TestParseIOPropertiesPartialMetrics(t *testing.T) {
	props, err := ParseIOProperties(`disks:
  - mountpoint: /var/lib/scylla
    write_iops: 42000
`)
	require.NoError(t, err)
	require.NotNil(t, props.WriteIOPS)
	assert.Equal(t, 42000.0, *props.WriteIOPS)
	assert.Nil(t, props.ReadIOPS)
	assert.Nil(t, props.ReadBandwidth)
	assert.Nil(t, props.WriteBandwidth)
}

func TestParseIOPropertiesFirstDiskWins(t *testing.T) {
	props, err := ParseIOProperties(`disks:
  - read_iops: 1
  - read_iops: 2
`)
	require.NoError(t, err)
	require.NotNil(t, props.ReadIOPS)
	assert.Equal(t, 1.0, *props.ReadIOPS)
}

func TestParseIOPropertiesRejectsBadInput(t *testing.T) {
	for _, text := range []string{
		"",
		"file not found",
		"disks: []",
		"disks:\n  - mountpoint: /var/lib/scylla\n",
		"{{{ not yaml",
		"disks: 7",
	} {
		_, err := ParseIOProperties(text)
		assert.Error(t, err, "input: %q", text)
	}
}

// Parsing must not keep state between calls.
func TestParseIOPropertiesIsPure(t *testing.T) {
	text := "disks:\n  - read_iops: 123\n"
	first, err := ParseIOProperties(text)
	require.NoError(t, err)
	_, err = ParseIOProperties("garbage")
	require.Error(t, err)
	second, err := ParseIOProperties(text)
	require.NoError(t, err)
	assert.Equal(t, *first.ReadIOPS, *second.ReadIOPS)
}
