package cloudprovider

import (
	"strings"
	"time"
)

// Base readiness timeout for the smallest instances. Larger instances get a
// size-tiered multiple of this; 3 minutes proved too short for anything above
// a .large, which showed up as trials with empty metrics.
const readinessBase = 180 * time.Second

var sizeMultipliers = map[string]float64{
	"nano":     1.0,
	"micro":    1.0,
	"small":    1.1,
	"medium":   1.2,
	"large":    1.5,
	"xlarge":   2.0,
	"2xlarge":  2.5,
	"3xlarge":  2.5,
	"4xlarge":  3.0,
	"6xlarge":  3.0,
	"8xlarge":  3.5,
	"12xlarge": 4.5,
	"16xlarge": 4.5,
	"18xlarge": 4.5,
	"24xlarge": 6.0,
	"32xlarge": 6.0,
	"48xlarge": 6.0,
	"metal":    8.0,
}

// ReadinessTimeout returns how long to wait for an instance of the given type
// to report healthy. The timeout is monotonically non-decreasing in nominal
// size and never below the base.
func ReadinessTimeout(instanceType string) time.Duration {
	mult := 2.0 // unknown sizes get a generous default
	if i := strings.LastIndex(instanceType, "."); i >= 0 {
		size := strings.ToLower(instanceType[i+1:])
		if m, ok := sizeMultipliers[size]; ok {
			mult = m
		}
	}
	return time.Duration(float64(readinessBase) * mult)
}
