package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/env-controller/internal/logic"
)

func TestTopics(t *testing.T) {
	tp := NewTopics("livingroom")

	tests := []struct {
		got, want string
	}{
		{tp.Actuator("fan"), "smarthome/livingroom/actuators/fan"},
		{tp.Mode(), "smarthome/livingroom/mode"},
		{tp.SensorsRaw(), "smarthome/livingroom/sensors/raw"},
		{tp.Sensors(), "smarthome/livingroom/sensors"},
		{tp.System(), "smarthome/livingroom/system"},
		{Reported(tp.Actuator("led")), "smarthome/livingroom/actuators/led/reported"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestActuatorName(t *testing.T) {
	tp := NewTopics("bedroom")

	tests := []struct {
		topic string
		name  string
		ok    bool
	}{
		{"smarthome/bedroom/actuators/fan", "fan", true},
		{"smarthome/bedroom/actuators/buzzer", "buzzer", true},
		{"smarthome/bedroom/actuators/fan/reported", "", false},
		{"smarthome/kitchen/actuators/fan", "", false},
		{"smarthome/bedroom/actuators/", "", false},
		{"smarthome/bedroom/mode", "", false},
	}
	for _, tt := range tests {
		name, ok := tp.ActuatorName(tt.topic)
		if name != tt.name || ok != tt.ok {
			t.Errorf("ActuatorName(%q): got (%q, %v), want (%q, %v)", tt.topic, name, ok, tt.name, tt.ok)
		}
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadOmitsReason(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"HEARTBEAT"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload passthrough, got %s", payload)
	}
}

func TestFormatSystemPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*60*60)
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 17, 30, 45, 0, loc),
		Event:     "STARTUP",
	}

	payload, _ := FormatSystemPayload(event)
	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Timestamp != "2026-02-03T10:30:45Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.System.Timestamp)
	}
}

func TestParseSample(t *testing.T) {
	s, err := ParseSample([]byte(`{"temperature":24.5,"humidity":55,"air_quality_raw":1200}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Valid || s.Temperature != 24.5 || s.Humidity != 55 || s.AirQualityRaw != 1200 {
		t.Errorf("unexpected sample: %+v", s)
	}
}

func TestParseSampleMissingField(t *testing.T) {
	s, err := ParseSample([]byte(`{"temperature":24.5,"humidity":55}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Valid {
		t.Error("sample with a missing channel must be invalid")
	}
}

func TestParseSampleGarbage(t *testing.T) {
	if _, err := ParseSample([]byte(`not json`)); err == nil {
		t.Error("expected decode error")
	}
}

func TestFormatReading(t *testing.T) {
	r := logic.StableReading{Temperature: 26.5, Humidity: 48, AirQualityLevel: 2, Valid: true}
	payload, err := FormatReading(r, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"timestamp":"2026-03-01T12:00:00Z","temperature":26.5,"humidity":48,"air_quality_level":2,"air_quality":"Moderate","valid":true}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFakePublisherRecords(t *testing.T) {
	f := NewFakePublisher()

	if err := f.Publish("a/b", []byte("x"), 1, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.Publish("c/d", []byte("y"), 0, false)

	msgs := f.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Topic != "a/b" || msgs[0].QoS != 1 || !msgs[0].Retained {
		t.Errorf("unexpected first message: %+v", msgs[0])
	}
	if len(f.MessagesOn("c/")) != 1 {
		t.Error("MessagesOn should filter by prefix")
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("connection lost")

	if err := f.Publish("a", nil, 0, false); err == nil {
		t.Error("expected error")
	}
	if len(f.Messages()) != 0 {
		t.Error("failed publish must not be recorded")
	}
}

func TestFakePublisherSystemEvents(t *testing.T) {
	f := NewFakePublisher()

	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "STARTUP", Retained: true})
	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "HEARTBEAT"})

	events := f.SystemEvents()
	if len(events) != 2 {
		t.Fatalf("expected 2 system events, got %d", len(events))
	}
	if !events[0].Retained || events[1].Retained {
		t.Error("retained flags not preserved")
	}
	if len(f.SystemPayloads()) != 2 {
		t.Error("expected payloads for each event")
	}

	f.PublishSystemError = errors.New("boom")
	if err := f.PublishSystem(SystemEvent{Event: "SHUTDOWN"}); err == nil {
		t.Error("expected error")
	}
}

func TestFakePublisherDeliver(t *testing.T) {
	f := NewFakePublisher()
	var got string
	f.Subscribe("smarthome/x/mode", 1, func(topic string, payload []byte) {
		got = topic + " " + string(payload)
	})

	if !f.Deliver("smarthome/x/mode", []byte(`{"state":"ON"}`)) {
		t.Fatal("expected delivery")
	}
	if got != `smarthome/x/mode {"state":"ON"}` {
		t.Errorf("handler got %q", got)
	}
	if f.Deliver("smarthome/x/other", nil) {
		t.Error("delivery to an unsubscribed topic should report false")
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.Subscribe("t", 0, func(string, []byte) {})
	f.Publish("t", nil, 0, false)
	f.PublishError = errors.New("x")
	f.Close()

	f.Reset()

	if len(f.Messages()) != 0 || f.Closed() || f.PublishError != nil {
		t.Error("Reset should clear messages, errors and closed flag")
	}
	if len(f.Subscriptions()) != 1 {
		t.Error("Reset should keep subscriptions")
	}
}

func TestFakePublisherConnected(t *testing.T) {
	f := NewFakePublisher()
	if !f.IsConnected() {
		t.Error("expected connected by default")
	}
	f.SetConnected(false)
	if f.IsConnected() {
		t.Error("expected disconnected")
	}
}
