package emitter

import (
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/visiona/stemd/internal/config"
	"github.com/visiona/stemd/internal/types"
)

// fakeToken completes immediately.
type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakeMessage struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient records published messages. Methods the sink never calls
// come from the embedded interface and stay nil.
type fakeClient struct {
	mqtt.Client

	mu       sync.Mutex
	messages []fakeMessage
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, fakeMessage{topic: topic, qos: qos, payload: payload.([]byte)})
	return &fakeToken{}
}

func (c *fakeClient) IsConnected() bool { return true }

func (c *fakeClient) Disconnect(quiesce uint) {}

func mqttSinkConfig() *config.Config {
	return &config.Config{
		InstanceID: "stemd-test",
		Stream:     config.StreamConfig{ID: 3, Files: []string{"unused"}},
		Sink: config.SinkConfig{
			Type: "mqtt",
			MQTT: config.MQTTSinkConfig{
				Broker:    "localhost:1883",
				ClientID:  "stemd-test",
				TopicBase: "stem",
				QoS:       1,
			},
		},
	}
}

func TestMQTTSinkPublish(t *testing.T) {
	sink := NewMQTTSink(mqttSinkConfig())
	client := &fakeClient{}
	sink.client = client
	sink.connected = true

	fields := types.NewFields(2, 2)
	copy(fields.Bright, []uint64{10, 20, 30, 40})
	copy(fields.Dark, []uint64{1, 0, 0, 2})
	fields.TraceID = "trace-1"

	if err := sink.Publish(context.Background(), fields); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(client.messages) != 2 {
		t.Fatalf("published %d messages, want 2", len(client.messages))
	}

	wantTopics := []string{"stem/bright", "stem/dark"}
	wantData := [][]uint64{{10, 20, 30, 40}, {1, 0, 0, 2}}
	for i, msg := range client.messages {
		if msg.topic != wantTopics[i] {
			t.Errorf("message %d topic = %q, want %q", i, msg.topic, wantTopics[i])
		}
		if msg.qos != 1 {
			t.Errorf("message %d qos = %d, want 1", i, msg.qos)
		}

		var envelope fieldMessage
		if err := msgpack.Unmarshal(msg.payload, &envelope); err != nil {
			t.Fatalf("message %d payload does not unmarshal: %v", i, err)
		}
		if envelope.StreamID != "3" || envelope.ImageID != "1" {
			t.Errorf("message %d ids = %s/%s, want 3/1", i, envelope.StreamID, envelope.ImageID)
		}
		if envelope.Width != 2 || envelope.Height != 2 {
			t.Errorf("message %d grid = %dx%d, want 2x2", i, envelope.Width, envelope.Height)
		}
		if envelope.TraceID != "trace-1" {
			t.Errorf("message %d trace id = %q, want trace-1", i, envelope.TraceID)
		}
		if len(envelope.Data) != 32 {
			t.Fatalf("message %d data = %d bytes, want 32", i, len(envelope.Data))
		}
		for j, want := range wantData[i] {
			if got := binary.LittleEndian.Uint64(envelope.Data[8*j:]); got != want {
				t.Errorf("message %d data word %d = %d, want %d", i, j, got, want)
			}
		}
	}

	stats := sink.Stats()
	if stats.Published["stem/bright"] != 1 || stats.Published["stem/dark"] != 1 {
		t.Errorf("publish counters = %+v", stats.Published)
	}
	if !stats.Connected {
		t.Error("stats report not connected")
	}
}

func TestMQTTSinkNotConnected(t *testing.T) {
	sink := NewMQTTSink(mqttSinkConfig())

	err := sink.Publish(context.Background(), types.NewFields(1, 1))
	if err == nil {
		t.Fatal("expected error when not connected")
	}
	if !strings.Contains(err.Error(), "not connected") {
		t.Errorf("error = %v, want a not-connected failure", err)
	}
	if got := sink.Stats().Errors; got != 1 {
		t.Errorf("error count = %d, want 1", got)
	}
}

func TestMQTTSinkPublishTokenError(t *testing.T) {
	sink := NewMQTTSink(mqttSinkConfig())
	sink.client = &failingClient{}
	sink.connected = true

	err := sink.Publish(context.Background(), types.NewFields(1, 1))
	if err == nil {
		t.Fatal("expected error from a failing publish token")
	}
	if got := sink.Stats().Errors; got != 1 {
		t.Errorf("error count = %d, want 1", got)
	}
}

// failingClient returns an erroring token from Publish.
type failingClient struct {
	mqtt.Client
}

func (c *failingClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return &fakeToken{err: errors.New("token failed")}
}

func TestFieldBytes(t *testing.T) {
	got := fieldBytes([]uint64{1, 1 << 40})
	if len(got) != 16 {
		t.Fatalf("len = %d, want 16", len(got))
	}
	if got[0] != 1 || got[13] != 1 {
		t.Errorf("unexpected little-endian layout: %v", got)
	}
	for i, b := range got {
		if i != 0 && i != 13 && b != 0 {
			t.Errorf("byte %d = %d, want 0", i, b)
		}
	}
}
