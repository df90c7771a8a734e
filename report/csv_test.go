package report

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestWriteCSVColumnOrder(t *testing.T) {
	results := []*TrialResult{
		{
			Cloud:            "aws",
			InstanceType:     "i4i.large",
			InstanceID:       "i-0abc",
			RunNumber:        1,
			Success:          true,
			ExecutionTimeSec: 301.5,
			ReadIOPS:         f64(100000),
			WriteIOPS:        f64(50000),
			ReadBandwidth:    f64(1000000000),
			WriteBandwidth:   f64(500000000),
		},
		{
			Cloud:            "aws",
			InstanceType:     "i4i.large",
			InstanceID:       "i-0def",
			RunNumber:        2,
			Success:          false,
			ExecutionTimeSec: 1250.0,
			Error:            "timed out waiting for I/O metrics after 20m0s",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, results))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{
		"cloud", "instance_type", "instance_id", "run_number", "success",
		"execution_time", "read_iops", "write_iops", "read_bandwidth",
		"write_bandwidth", "error_message",
	}, rows[0])

	assert.Equal(t, []string{
		"aws", "i4i.large", "i-0abc", "1", "true", "301.50",
		"100000", "50000", "1000000000", "500000000", "",
	}, rows[1])

	// Absent metrics export as empty cells, not zeros.
	assert.Equal(t, []string{
		"aws", "i4i.large", "i-0def", "2", "false", "1250.00",
		"", "", "", "", "timed out waiting for I/O metrics after 20m0s",
	}, rows[2])
}

func TestHasMetrics(t *testing.T) {
	assert.False(t, (&TrialResult{}).HasMetrics())
	assert.True(t, (&TrialResult{WriteIOPS: f64(1)}).HasMetrics())
	assert.True(t, (&TrialResult{ReadBandwidth: f64(1)}).HasMetrics())
}
