// Package mqtt provides the MQTT transport with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/env-controller/internal/logic"
	"github.com/sweeney/env-controller/internal/sensor"
)

// Publisher publishes messages to the broker.
type Publisher interface {
	// Publish sends payload to topic. While disconnected the message is
	// buffered for replay; the returned error never needs to stop the caller.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// Handler receives inbound messages.
type Handler func(topic string, payload []byte)

// Subscriber registers inbound handlers. Subscriptions survive reconnects.
type Subscriber interface {
	Subscribe(topic string, qos byte, h Handler) error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Client is the full transport used by the daemon.
type Client interface {
	Publisher
	Subscriber
	ConnectionStatus
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// SamplePayload is a raw sample on the sensors/raw topic.
type SamplePayload struct {
	Temperature   *float64 `json:"temperature"`
	Humidity      *float64 `json:"humidity"`
	AirQualityRaw *int     `json:"air_quality_raw"`
}

// ParseSample decodes a raw sample. Missing fields produce an invalid sample,
// which the sampler rejects like a failed acquisition.
func ParseSample(data []byte) (sensor.Sample, error) {
	var p SamplePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return sensor.Sample{}, fmt.Errorf("decode sample: %w", err)
	}
	if p.Temperature == nil || p.Humidity == nil || p.AirQualityRaw == nil {
		return sensor.Sample{}, nil
	}
	return sensor.Sample{
		Temperature:   *p.Temperature,
		Humidity:      *p.Humidity,
		AirQualityRaw: *p.AirQualityRaw,
		Valid:         true,
	}, nil
}

// ReadingPayload is the stable reading published on the sensors topic.
type ReadingPayload struct {
	Timestamp       string  `json:"timestamp"`
	Temperature     float64 `json:"temperature"`
	Humidity        float64 `json:"humidity"`
	AirQualityLevel uint8   `json:"air_quality_level"`
	AirQuality      string  `json:"air_quality"`
	Valid           bool    `json:"valid"`
}

// FormatReading creates the JSON payload for a stable reading.
func FormatReading(r logic.StableReading, ts time.Time) ([]byte, error) {
	level := r.AirQualityLevel
	if level > logic.MaxAirLevel {
		level = logic.MaxAirLevel
	}
	return json.Marshal(ReadingPayload{
		Timestamp:       ts.UTC().Format(time.RFC3339),
		Temperature:     r.Temperature,
		Humidity:        r.Humidity,
		AirQualityLevel: r.AirQualityLevel,
		AirQuality:      logic.PaletteNames[level],
		Valid:           r.Valid,
	})
}
