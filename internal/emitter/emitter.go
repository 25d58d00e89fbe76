// Package emitter delivers the finished bright/dark fields to their
// configured destination: flat binary files or an MQTT broker.
package emitter

import (
	"fmt"

	"github.com/visiona/stemd/internal/config"
	"github.com/visiona/stemd/internal/core"
)

// imageID is the run-scoped image identifier tagging both outputs; the
// pipeline produces a single aggregate pair per run.
const imageID = 1

// New builds the sink selected by sink.type.
func New(cfg *config.Config) (core.Sink, error) {
	switch cfg.Sink.Type {
	case "file":
		return NewFileSink(cfg), nil
	case "mqtt":
		return NewMQTTSink(cfg), nil
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Sink.Type)
	}
}
