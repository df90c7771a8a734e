package report

// TrialResult is the outcome of a single create-benchmark-terminate cycle for
// one instance type and run number. It is created exactly once per trial and
// never mutated afterwards.
type TrialResult struct {
	Cloud            string
	InstanceType     string
	InstanceID       string
	RunNumber        int
	Success          bool
	ExecutionTimeSec float64

	// The four I/O metrics are independently optional. A trial succeeded iff
	// at least one of them is present.
	ReadIOPS       *float64
	WriteIOPS      *float64
	ReadBandwidth  *float64 // bytes/s, as written by scylla_io_setup
	WriteBandwidth *float64 // bytes/s

	Error string // non-empty iff the trial failed
}

// HasMetrics reports whether any of the four I/O metrics is present.
func (r *TrialResult) HasMetrics() bool {
	return r.ReadIOPS != nil || r.WriteIOPS != nil || r.ReadBandwidth != nil || r.WriteBandwidth != nil
}
