package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Default annular radii, from the instrument's detector geometry.
const (
	defaultDarkInner = 40
	defaultOuter     = 288
)

// Validate checks if the configuration is valid and fills defaults
func Validate(cfg *Config) error {
	// Validate instance_id
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	// Validate stream config; files win over a synthetic stream when
	// both are present
	if cfg.Stream.ID < 0 {
		return fmt.Errorf("stream.id must be >= 0")
	}
	if len(cfg.Stream.Files) == 0 && cfg.Stream.Synthetic.Blocks == 0 {
		return fmt.Errorf("stream.files or stream.synthetic.blocks is required")
	}
	if len(cfg.Stream.Files) == 0 {
		if err := validateSynthetic(&cfg.Stream.Synthetic); err != nil {
			return err
		}
	}
	switch cfg.Stream.Compression {
	case "":
		cfg.Stream.Compression = "auto"
	case "auto", "none", "zstd":
	default:
		return fmt.Errorf("stream.compression must be auto, none or zstd, got %q", cfg.Stream.Compression)
	}

	// Validate output grid
	if cfg.Output.Width <= 0 {
		return fmt.Errorf("output.width must be > 0")
	}
	if cfg.Output.Height <= 0 {
		return fmt.Errorf("output.height must be > 0")
	}

	// Pipeline sizing; zero values resolve at run time
	if cfg.Pipeline.Concurrency < 0 {
		return fmt.Errorf("pipeline.concurrency must be >= 0")
	}
	if cfg.Pipeline.QueueDepth < 0 {
		return fmt.Errorf("pipeline.queue_depth must be >= 0")
	}

	// Set default mask radii if not provided
	if cfg.Masks.Bright.Outer == 0 {
		cfg.Masks.Bright = MaskConfig{Inner: 0, Outer: defaultOuter}
	}
	if cfg.Masks.Dark.Outer == 0 {
		cfg.Masks.Dark = MaskConfig{Inner: defaultDarkInner, Outer: defaultOuter}
	}
	if err := validateMask("bright", cfg.Masks.Bright); err != nil {
		return err
	}
	if err := validateMask("dark", cfg.Masks.Dark); err != nil {
		return err
	}

	// Validate sink selection
	switch cfg.Sink.Type {
	case "":
		cfg.Sink.Type = "file"
	case "file", "mqtt":
	default:
		return fmt.Errorf("sink.type must be file or mqtt, got %q", cfg.Sink.Type)
	}
	if cfg.Sink.File.Dir == "" {
		cfg.Sink.File.Dir = "."
	}
	if cfg.Sink.Type == "mqtt" && cfg.Sink.MQTT.Broker == "" {
		return fmt.Errorf("sink.mqtt.broker is required")
	}
	if cfg.Sink.MQTT.QoS > 2 {
		return fmt.Errorf("sink.mqtt.qos must be 0, 1 or 2")
	}
	if cfg.Sink.MQTT.TopicBase == "" {
		cfg.Sink.MQTT.TopicBase = "stem"
	}
	if cfg.Sink.MQTT.ClientID == "" {
		cfg.Sink.MQTT.ClientID = cfg.InstanceID
	}

	return nil
}

func validateMask(name string, m MaskConfig) error {
	if m.Inner < 0 {
		return fmt.Errorf("masks.%s.inner must be >= 0", name)
	}
	if m.Outer <= m.Inner {
		return fmt.Errorf("masks.%s.outer must be > masks.%s.inner", name, name)
	}
	return nil
}

// validateSynthetic fills generator defaults and rejects unusable sizes.
func validateSynthetic(s *SyntheticStreamConfig) error {
	if s.Blocks < 0 {
		return fmt.Errorf("stream.synthetic.blocks must be > 0")
	}
	if s.Images == 0 {
		s.Images = 4
	}
	if s.Rows == 0 {
		s.Rows = 64
	}
	if s.Columns == 0 {
		s.Columns = 64
	}
	if s.Seed == 0 {
		s.Seed = 1
	}
	if s.Images < 0 || s.Rows < 0 || s.Columns < 0 {
		return fmt.Errorf("stream.synthetic sizes must be > 0")
	}
	return nil
}
