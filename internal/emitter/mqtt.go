package emitter

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/visiona/stemd/internal/config"
	"github.com/visiona/stemd/internal/types"
)

// fieldMessage is the wire envelope published for each finished field.
// Data carries the raw little-endian uint64 array.
type fieldMessage struct {
	StreamID string `msgpack:"stream_id"`
	ImageID  string `msgpack:"image_id"`
	Width    int    `msgpack:"width"`
	Height   int    `msgpack:"height"`
	TraceID  string `msgpack:"trace_id"`
	Data     []byte `msgpack:"data"`
}

// MQTTSink publishes finished fields to an MQTT broker, one message per
// field under <topic_base>/bright and <topic_base>/dark.
type MQTTSink struct {
	cfg    *config.Config
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published map[string]uint64
	errors    uint64
}

// NewMQTTSink creates an unconnected MQTT sink.
func NewMQTTSink(cfg *config.Config) *MQTTSink {
	return &MQTTSink{
		cfg:       cfg,
		published: make(map[string]uint64),
	}
}

// Connect establishes the broker connection, with automatic reconnects
// once established.
func (s *MQTTSink) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", s.cfg.Sink.MQTT.Broker))
	opts.SetClientID(s.cfg.Sink.MQTT.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	// Connection handlers
	opts.OnConnect = func(c mqtt.Client) {
		s.mu.Lock()
		s.connected = true
		s.mu.Unlock()
		slog.Info("emitter: mqtt connection established",
			"broker", s.cfg.Sink.MQTT.Broker,
			"client_id", s.cfg.Sink.MQTT.ClientID,
		)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		slog.Warn("emitter: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", s.cfg.Sink.MQTT.Broker,
		)
	}

	s.client = mqtt.NewClient(opts)

	slog.Info("emitter: connecting to mqtt broker", "broker", s.cfg.Sink.MQTT.Broker)

	token := s.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()

	return nil
}

// Publish sends one message per field.
func (s *MQTTSink) Publish(ctx context.Context, fields *types.Fields) error {
	if err := s.publishField("bright", fields, fields.Bright); err != nil {
		return err
	}
	return s.publishField("dark", fields, fields.Dark)
}

func (s *MQTTSink) publishField(name string, fields *types.Fields, field []uint64) error {
	if !s.isConnected() {
		s.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := msgpack.Marshal(fieldMessage{
		StreamID: strconv.Itoa(s.cfg.Stream.ID),
		ImageID:  strconv.Itoa(imageID),
		Width:    fields.Width,
		Height:   fields.Height,
		TraceID:  fields.TraceID,
		Data:     fieldBytes(field),
	})
	if err != nil {
		s.countError()
		return fmt.Errorf("failed to marshal %s field: %w", name, err)
	}

	topic := fmt.Sprintf("%s/%s", s.cfg.Sink.MQTT.TopicBase, name)
	qos := s.cfg.Sink.MQTT.QoS

	token := s.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		s.countError()
		return fmt.Errorf("publish timeout on %s", topic)
	}
	if err := token.Error(); err != nil {
		s.countError()
		return fmt.Errorf("publish failed on %s: %w", topic, err)
	}

	s.mu.Lock()
	s.published[topic]++
	s.mu.Unlock()

	slog.Debug("emitter: field published",
		"topic", topic,
		"qos", qos,
		"size", len(payload),
	)
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() error {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250) // 250ms grace period
		slog.Info("emitter: mqtt disconnected")
	}

	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()

	return nil
}

// Stats returns sink publish counters.
func (s *MQTTSink) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	published := make(map[string]uint64)
	for k, v := range s.published {
		published[k] = v
	}

	return Stats{
		Connected: s.connected,
		Published: published,
		Errors:    s.errors,
	}
}

// Stats contains sink statistics
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

func (s *MQTTSink) isConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *MQTTSink) countError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

// fieldBytes serializes a field as raw little-endian uint64 bytes.
func fieldBytes(field []uint64) []byte {
	buf := make([]byte, len(field)*8)
	for i, v := range field {
		binary.LittleEndian.PutUint64(buf[8*i:], v)
	}
	return buf
}
