package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete stemd configuration
type Config struct {
	InstanceID string         `yaml:"instance_id"`
	Stream     StreamConfig   `yaml:"stream"`
	Output     OutputConfig   `yaml:"output"`
	Pipeline   PipelineConfig `yaml:"pipeline"`
	Masks      MasksConfig    `yaml:"masks"`
	Sink       SinkConfig     `yaml:"sink"`
}

// StreamConfig describes the input block stream
type StreamConfig struct {
	ID          int      `yaml:"id"`          // stream/run identifier, tags all output
	Files       []string `yaml:"files"`       // input files, read in order as one stream
	Compression string   `yaml:"compression"` // auto, none, zstd

	// Synthetic generates the stream in memory when no files are
	// configured, for runs without instrument data
	Synthetic SyntheticStreamConfig `yaml:"synthetic"`
}

// SyntheticStreamConfig sizes a generated stream
type SyntheticStreamConfig struct {
	Blocks  int   `yaml:"blocks"`
	Images  int   `yaml:"images"` // images per block
	Rows    int   `yaml:"rows"`
	Columns int   `yaml:"columns"`
	Seed    int64 `yaml:"seed"`
}

// OutputConfig fixes the scan grid of the aggregated fields
type OutputConfig struct {
	Width  int `yaml:"width"`  // must match the stream's column count
	Height int `yaml:"height"` // must match the stream's row count
}

// PipelineConfig tunes the concurrent pipeline
type PipelineConfig struct {
	Concurrency int `yaml:"concurrency"` // worker count; 0 uses every cpu
	QueueDepth  int `yaml:"queue_depth"` // in-flight block bound; 0 derives 2x concurrency
}

// MasksConfig holds the annular mask radii
type MasksConfig struct {
	Bright MaskConfig `yaml:"bright"`
	Dark   MaskConfig `yaml:"dark"`
}

// MaskConfig is one annulus, radii in pixels
type MaskConfig struct {
	Inner int `yaml:"inner"`
	Outer int `yaml:"outer"`
}

// SinkConfig selects and configures the output sink
type SinkConfig struct {
	Type string         `yaml:"type"` // file, mqtt
	File FileSinkConfig `yaml:"file"`
	MQTT MQTTSinkConfig `yaml:"mqtt"`
}

// FileSinkConfig configures the binary file sink
type FileSinkConfig struct {
	Dir string `yaml:"dir"`
}

// MQTTSinkConfig configures the MQTT sink
type MQTTSinkConfig struct {
	Broker    string `yaml:"broker"`
	ClientID  string `yaml:"client_id"`
	TopicBase string `yaml:"topic_base"`
	QoS       byte   `yaml:"qos"`
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
