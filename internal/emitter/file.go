package emitter

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/visiona/stemd/internal/config"
	"github.com/visiona/stemd/internal/types"
)

// FileSink writes each finished field as a raw little-endian uint64
// array, named bright-<stream>.<image>.bin and dark-<stream>.<image>.bin
// with three-digit zero-padded identifiers.
type FileSink struct {
	dir      string
	streamID int
}

// NewFileSink creates a sink writing into the configured directory.
func NewFileSink(cfg *config.Config) *FileSink {
	return &FileSink{
		dir:      cfg.Sink.File.Dir,
		streamID: cfg.Stream.ID,
	}
}

// Connect ensures the output directory exists.
func (s *FileSink) Connect(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	return nil
}

// Publish writes the two field files.
func (s *FileSink) Publish(ctx context.Context, fields *types.Fields) error {
	if err := s.writeField("bright", fields.Bright); err != nil {
		return err
	}
	return s.writeField("dark", fields.Dark)
}

func (s *FileSink) writeField(name string, field []uint64) error {
	path := filepath.Join(s.dir, fmt.Sprintf("%s-%03d.%03d.bin", name, s.streamID, imageID))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := binary.Write(f, binary.LittleEndian, field); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	slog.Info("emitter: field written",
		"path", path,
		"bytes", len(field)*8,
	)
	return nil
}

// Close implements the sink contract; a file sink holds no resources
// between publishes.
func (s *FileSink) Close() error { return nil }
