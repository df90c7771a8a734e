package metrics

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// PropertiesPath is where scylla_io_setup writes its measurements on the node.
const PropertiesPath = "/etc/scylla.d/io_properties.yaml"

// DiskProperties holds the I/O measurements for one disk. Fields are pointers
// because images differ in which metrics their setup tooling emits.
type DiskProperties struct {
	ReadIOPS       *float64 `mapstructure:"read_iops"`
	WriteIOPS      *float64 `mapstructure:"write_iops"`
	ReadBandwidth  *float64 `mapstructure:"read_bandwidth"`
	WriteBandwidth *float64 `mapstructure:"write_bandwidth"`
}

func (d *DiskProperties) HasAny() bool {
	return d.ReadIOPS != nil || d.WriteIOPS != nil || d.ReadBandwidth != nil || d.WriteBandwidth != nil
}

type ioPropertiesFile struct {
	Disks []map[string]any `yaml:"disks"`
}

// ParseIOProperties parses the contents of io_properties.yaml and returns the
// first disk entry. The file counts as populated as soon as any one metric is
// present; scylla_io_setup writes them all at once.
func ParseIOProperties(text string) (*DiskProperties, error) {
	var file ioPropertiesFile
	if err := yaml.Unmarshal([]byte(text), &file); err != nil {
		return nil, fmt.Errorf("failed to parse io_properties.yaml: %w", err)
	}
	if len(file.Disks) == 0 {
		return nil, fmt.Errorf("io_properties.yaml has no disk entries")
	}

	var props DiskProperties
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &props,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(file.Disks[0]); err != nil {
		return nil, fmt.Errorf("failed to decode disk entry: %w", err)
	}
	if !props.HasAny() {
		return nil, fmt.Errorf("io_properties.yaml disk entry has no metrics")
	}
	return &props, nil
}
