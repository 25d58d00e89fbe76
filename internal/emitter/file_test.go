package emitter

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/visiona/stemd/internal/config"
	"github.com/visiona/stemd/internal/types"
)

func fileSinkConfig(dir string, streamID int) *config.Config {
	return &config.Config{
		InstanceID: "stemd-test",
		Stream:     config.StreamConfig{ID: streamID, Files: []string{"unused"}},
		Sink: config.SinkConfig{
			Type: "file",
			File: config.FileSinkConfig{Dir: dir},
		},
	}
}

func TestFileSinkPublish(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(fileSinkConfig(dir, 7))

	ctx := context.Background()
	if err := sink.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	fields := types.NewFields(2, 2)
	copy(fields.Bright, []uint64{1, 2, 3, 4})
	copy(fields.Dark, []uint64{5, 0, 0, 9})

	if err := sink.Publish(ctx, fields); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	tests := []struct {
		file string
		want []uint64
	}{
		{"bright-007.001.bin", []uint64{1, 2, 3, 4}},
		{"dark-007.001.bin", []uint64{5, 0, 0, 9}},
	}

	for _, tt := range tests {
		raw, err := os.ReadFile(filepath.Join(dir, tt.file))
		if err != nil {
			t.Fatalf("missing output %s: %v", tt.file, err)
		}
		if len(raw) != len(tt.want)*8 {
			t.Fatalf("%s holds %d bytes, want %d", tt.file, len(raw), len(tt.want)*8)
		}
		for i, want := range tt.want {
			if got := binary.LittleEndian.Uint64(raw[8*i:]); got != want {
				t.Errorf("%s word %d = %d, want %d", tt.file, i, got, want)
			}
		}
	}

	if err := sink.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestFileSinkOverwrites(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(fileSinkConfig(dir, 1))
	ctx := context.Background()
	if err := sink.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	fields := types.NewFields(1, 1)
	fields.Bright[0] = 11
	if err := sink.Publish(ctx, fields); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	fields.Bright[0] = 22
	if err := sink.Publish(ctx, fields); err != nil {
		t.Fatalf("second Publish failed: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "bright-001.001.bin"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if got := binary.LittleEndian.Uint64(raw); got != 22 {
		t.Errorf("field word = %d, want 22 after rewrite", got)
	}
}

func TestFileSinkCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "run1")
	sink := NewFileSink(fileSinkConfig(dir, 1))

	if err := sink.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("output dir not created: %v", err)
	}
}

func TestNewSelectsSink(t *testing.T) {
	cfg := fileSinkConfig(t.TempDir(), 1)

	sink, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := sink.(*FileSink); !ok {
		t.Errorf("New returned %T, want *FileSink", sink)
	}

	cfg.Sink.Type = "mqtt"
	cfg.Sink.MQTT.Broker = "localhost:1883"
	sink, err = New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := sink.(*MQTTSink); !ok {
		t.Errorf("New returned %T, want *MQTTSink", sink)
	}

	cfg.Sink.Type = "s3"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for unknown sink type")
	}
}
