package cloudprovider

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/go-version"
)

// AWS families are discovered live through the EC2 API. GCP and Azure have no
// equivalent cheap query wired up yet, so their families expand through these
// tables.
var fallbackInstanceTypes = map[string]map[string][]string{
	"gcp": {
		"n1":  {"n1-standard-2", "n1-standard-4", "n1-standard-8", "n1-standard-16", "n1-standard-32", "n1-highmem-8", "n1-highmem-16"},
		"n2":  {"n2-standard-2", "n2-standard-4", "n2-standard-8", "n2-standard-16", "n2-standard-32", "n2-highmem-4", "n2-highmem-8"},
		"n2d": {"n2d-standard-2", "n2d-standard-4", "n2d-standard-8", "n2d-standard-16", "n2d-standard-32", "n2d-highmem-4", "n2d-highmem-8"},
		"c2":  {"c2-standard-4", "c2-standard-8", "c2-standard-16", "c2-standard-30"},
		"m1":  {"m1-megamem-96"},
	},
	"azure": {
		"L8s_v3":  {"Standard_L8s_v3"},
		"L16s_v3": {"Standard_L16s_v3"},
		"L32s_v3": {"Standard_L32s_v3"},
		"L48s_v3": {"Standard_L48s_v3"},
		"L64s_v3": {"Standard_L64s_v3"},
		"L80s_v3": {"Standard_L80s_v3"},
		"Lsv2":    {"Standard_L8s_v2", "Standard_L16s_v2", "Standard_L32s_v2"},
	},
}

// FallbackInstanceTypes expands an instance family for providers without
// dynamic discovery. Returns nil for unknown provider/family combinations.
func FallbackInstanceTypes(provider, family string) []string {
	return fallbackInstanceTypes[provider][family]
}

// Images older than this write io_properties.yaml in a different location (or
// not at all), so the metrics poll would spin until the ceiling.
var MinIOPropertiesVersion = version.Must(version.NewVersion("5.0.0"))

var imageVersionPattern = regexp.MustCompile(`(\d+)[.-](\d+)[.-](\d+)`)

// ParseImageVersion extracts the ScyllaDB version embedded in an image
// reference, e.g. "scylladb-5-2-1" or ".../images/scylladb/versions/2025.1.0".
func ParseImageVersion(image string) (*version.Version, error) {
	matches := imageVersionPattern.FindAllStringSubmatch(image, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("no version found in image reference %q", image)
	}
	last := matches[len(matches)-1]
	return version.NewVersion(strings.Join([]string{last[1], last[2], last[3]}, "."))
}
