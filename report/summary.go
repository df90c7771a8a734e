package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

type typeStats struct {
	instanceType string
	total        int
	succeeded    int
	avgTime      float64
	stddevTime   float64

	avgReadIOPS     float64
	stddevReadIOPS  float64
	minReadIOPS     float64
	maxReadIOPS     float64
	avgWriteIOPS    float64
	stddevWriteIOPS float64
	minWriteIOPS    float64
	maxWriteIOPS    float64
	avgReadBW       float64
	avgWriteBW      float64
}

// PrintSummaryTable prints one line per instance type with success rate and
// mean metrics across successful runs.
func PrintSummaryTable(results []*TrialResult) {
	if len(results) == 0 {
		fmt.Println("No results to display")
		return
	}

	stats := collectStats(results)

	line := func() { fmt.Println(strings.Repeat("-", 120)) }
	fmt.Println(strings.Repeat("=", 120))
	fmt.Println("SCYLLA I/O SETUP BENCHMARK RESULTS")
	fmt.Println(strings.Repeat("=", 120))
	fmt.Printf("%-20s %-12s %-12s %-15s %-15s %-20s %-20s\n",
		"Instance Type", "Success Rate", "Avg Time (s)", "Avg Read IOPS", "Avg Write IOPS", "Avg Read BW (MB/s)", "Avg Write BW (MB/s)")
	line()

	for _, s := range stats {
		rate := float64(s.succeeded) / float64(s.total) * 100
		if s.succeeded > 0 {
			fmt.Printf("%-20s %10.1f%%  %10.1f   %13.0f   %13.0f   %18.1f   %18.1f\n",
				s.instanceType, rate, s.avgTime, s.avgReadIOPS, s.avgWriteIOPS, s.avgReadBW/1e6, s.avgWriteBW/1e6)
		} else {
			fmt.Printf("%-20s %10.1f%%  %10s   %13s   %13s   %18s   %18s\n",
				s.instanceType, rate, "N/A", "N/A", "N/A", "N/A", "N/A")
		}
	}

	line()
	fmt.Printf("Total instances tested: %d\n", len(results))
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	fmt.Printf("Overall success rate: %.1f%%\n", float64(succeeded)/float64(len(results))*100)
	fmt.Println(strings.Repeat("=", 120))
}

// PrintAnalysis prints per-type statistics (stddev, range) and top-5 rankings.
func PrintAnalysis(results []*TrialResult) {
	if len(results) == 0 {
		fmt.Println("No results to analyze")
		return
	}

	stats := collectStats(results)

	fmt.Println(strings.Repeat("=", 120))
	fmt.Println("SCYLLA I/O SETUP BENCHMARK ANALYSIS")
	fmt.Println(strings.Repeat("=", 120))

	for _, s := range stats {
		fmt.Printf("\nInstance Type: %s\n", s.instanceType)
		fmt.Printf("  Success Rate: %d/%d (%.1f%%)\n", s.succeeded, s.total, float64(s.succeeded)/float64(s.total)*100)
		if s.succeeded == 0 {
			fmt.Println("  All benchmark runs failed")
			continue
		}
		fmt.Printf("  Execution Time: %.2fs ±%.2fs\n", s.avgTime, s.stddevTime)
		fmt.Printf("  Read IOPS: %.0f ±%.0f (range: %.0f-%.0f)\n", s.avgReadIOPS, s.stddevReadIOPS, s.minReadIOPS, s.maxReadIOPS)
		fmt.Printf("  Write IOPS: %.0f ±%.0f (range: %.0f-%.0f)\n", s.avgWriteIOPS, s.stddevWriteIOPS, s.minWriteIOPS, s.maxWriteIOPS)
		fmt.Printf("  Read Bandwidth: %.1f MB/s\n", s.avgReadBW/1e6)
		fmt.Printf("  Write Bandwidth: %.1f MB/s\n", s.avgWriteBW/1e6)
	}

	ranked := make([]typeStats, 0, len(stats))
	for _, s := range stats {
		if s.succeeded > 0 {
			ranked = append(ranked, s)
		}
	}
	if len(ranked) == 0 {
		fmt.Println(strings.Repeat("=", 120))
		return
	}

	fmt.Println()
	fmt.Println(strings.Repeat("=", 120))
	fmt.Println("PERFORMANCE RANKINGS")
	fmt.Println(strings.Repeat("=", 120))

	printRanking("Top 5 by Read IOPS:", ranked, func(a, b typeStats) bool { return a.avgReadIOPS > b.avgReadIOPS },
		func(s typeStats) string { return fmt.Sprintf("%10.0f IOPS", s.avgReadIOPS) })
	printRanking("Top 5 by Write IOPS:", ranked, func(a, b typeStats) bool { return a.avgWriteIOPS > b.avgWriteIOPS },
		func(s typeStats) string { return fmt.Sprintf("%10.0f IOPS", s.avgWriteIOPS) })
	printRanking("Fastest Execution Time:", ranked, func(a, b typeStats) bool { return a.avgTime < b.avgTime },
		func(s typeStats) string { return fmt.Sprintf("%8.2fs", s.avgTime) })
	printRanking("Most Reliable (Highest Success Rate):", ranked,
		func(a, b typeStats) bool {
			return float64(a.succeeded)/float64(a.total) > float64(b.succeeded)/float64(b.total)
		},
		func(s typeStats) string { return fmt.Sprintf("%6.1f%%", float64(s.succeeded)/float64(s.total)*100) })

	fmt.Println(strings.Repeat("=", 120))
}

func printRanking(title string, stats []typeStats, less func(a, b typeStats) bool, value func(typeStats) string) {
	sorted := make([]typeStats, len(stats))
	copy(sorted, stats)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	if len(sorted) > 5 {
		sorted = sorted[:5]
	}
	fmt.Printf("\n%s\n", title)
	for i, s := range sorted {
		fmt.Printf("  %d. %-20s - %s\n", i+1, s.instanceType, value(s))
	}
}

func collectStats(results []*TrialResult) []typeStats {
	byType := map[string][]*TrialResult{}
	order := []string{}
	for _, r := range results {
		if _, ok := byType[r.InstanceType]; !ok {
			order = append(order, r.InstanceType)
		}
		byType[r.InstanceType] = append(byType[r.InstanceType], r)
	}
	sort.Strings(order)

	stats := make([]typeStats, 0, len(order))
	for _, t := range order {
		rs := byType[t]
		s := typeStats{instanceType: t, total: len(rs)}

		var times, readIOPS, writeIOPS, readBW, writeBW []float64
		for _, r := range rs {
			if !r.Success {
				continue
			}
			s.succeeded++
			times = append(times, r.ExecutionTimeSec)
			if r.ReadIOPS != nil {
				readIOPS = append(readIOPS, *r.ReadIOPS)
			}
			if r.WriteIOPS != nil {
				writeIOPS = append(writeIOPS, *r.WriteIOPS)
			}
			if r.ReadBandwidth != nil {
				readBW = append(readBW, *r.ReadBandwidth)
			}
			if r.WriteBandwidth != nil {
				writeBW = append(writeBW, *r.WriteBandwidth)
			}
		}

		s.avgTime, s.stddevTime = meanStddev(times)
		s.avgReadIOPS, s.stddevReadIOPS = meanStddev(readIOPS)
		s.minReadIOPS, s.maxReadIOPS = minMax(readIOPS)
		s.avgWriteIOPS, s.stddevWriteIOPS = meanStddev(writeIOPS)
		s.minWriteIOPS, s.maxWriteIOPS = minMax(writeIOPS)
		s.avgReadBW, _ = meanStddev(readBW)
		s.avgWriteBW, _ = meanStddev(writeBW)
		stats = append(stats, s)
	}
	return stats
}

func meanStddev(vs []float64) (float64, float64) {
	if len(vs) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	mean := sum / float64(len(vs))
	if len(vs) < 2 {
		return mean, 0
	}
	ss := 0.0
	for _, v := range vs {
		ss += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(ss / float64(len(vs)-1))
}

func minMax(vs []float64) (float64, float64) {
	if len(vs) == 0 {
		return 0, 0
	}
	lo, hi := vs[0], vs[0]
	for _, v := range vs[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
