package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
)

// Column order is stable so downstream spreadsheets keep working.
var csvHeader = []string{
	"cloud",
	"instance_type",
	"instance_id",
	"run_number",
	"success",
	"execution_time",
	"read_iops",
	"write_iops",
	"read_bandwidth",
	"write_bandwidth",
	"error_message",
}

func WriteCSV(w io.Writer, results []*TrialResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{
			r.Cloud,
			r.InstanceType,
			r.InstanceID,
			strconv.Itoa(r.RunNumber),
			strconv.FormatBool(r.Success),
			strconv.FormatFloat(r.ExecutionTimeSec, 'f', 2, 64),
			formatMetric(r.ReadIOPS),
			formatMetric(r.WriteIOPS),
			formatMetric(r.ReadBandwidth),
			formatMetric(r.WriteBandwidth),
			r.Error,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ExportCSV(filename string, results []*TrialResult) error {
	if len(results) == 0 {
		slog.Warn("no results to export")
		return nil
	}

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create result file: %w", err)
	}
	defer f.Close()

	err = WriteCSV(f, results)
	if err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	slog.Info("exported results", slog.Int("count", len(results)), slog.String("file", filename))
	return nil
}

func formatMetric(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
