package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/env-controller/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Mode          string       `json:"mode"`
	Fan           FanJSON      `json:"fan"`
	LED           LEDJSON      `json:"led"`
	Alert         string       `json:"alert"`
	Reading       ReadingJSON  `json:"reading"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// FanJSON is the JSON representation of the fan tier.
type FanJSON struct {
	State string `json:"state"`
	Level uint8  `json:"level"`
}

// LEDJSON is the JSON representation of the LED. Index is -1 when dark.
type LEDJSON struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	R     uint16 `json:"r"`
	G     uint16 `json:"g"`
	B     uint16 `json:"b"`
}

// ReadingJSON is the JSON representation of the stable reading.
type ReadingJSON struct {
	Temperature     float64 `json:"temperature"`
	Humidity        float64 `json:"humidity"`
	AirQualityLevel uint8   `json:"air_quality_level"`
	Valid           bool    `json:"valid"`
	LastSample      string  `json:"last_sample,omitempty"`
	SampleAgeMs     int64   `json:"sample_age_ms,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of the counters.
type CountsJSON struct {
	Decisions        int `json:"decisions"`
	CommandsApplied  int `json:"commands_applied"`
	CommandsRejected int `json:"commands_rejected"`
	CommandsIgnored  int `json:"commands_ignored"`
	ModeChanges      int `json:"mode_changes"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Room          string         `json:"room"`
	SampleMs      int64          `json:"sample_ms"`
	ReportMs      int64          `json:"report_ms"`
	HeartbeatMs   int64          `json:"heartbeat_ms"`
	Broker        string         `json:"broker"`
	HTTPAddr      string         `json:"http_addr"`
	InfluxEnabled bool           `json:"influx_enabled"`
	Thresholds    ThresholdsJSON `json:"thresholds"`
}

// ThresholdsJSON is the JSON representation of the decision bounds.
type ThresholdsJSON struct {
	FanHalfOn     float64 `json:"fan_half_on"`
	FanHalfOff    float64 `json:"fan_half_off"`
	FanFullOn     float64 `json:"fan_full_on"`
	FanFullOff    float64 `json:"fan_full_off"`
	AlertChannel  string  `json:"alert_channel"`
	CriticalAbove float64 `json:"critical_above"`
	WarnAbove     float64 `json:"warn_above"`
	WarnAirLevel  uint8   `json:"warn_air_level"`
}

// BuildLED returns the JSON view of an LED color.
func BuildLED(c logic.Color) LEDJSON {
	led := LEDJSON{Index: logic.PaletteIndex(c), Name: "OFF", R: c.R, G: c.G, B: c.B}
	if led.Index >= 0 {
		led.Name = logic.PaletteNames[led.Index]
	} else if !c.IsOff() {
		led.Name = "CUSTOM"
	}
	return led
}

func buildInner(snap Snapshot) StatusInner {
	t := snap.Config.Thresholds
	reading := ReadingJSON{
		Temperature:     snap.Reading.Temperature,
		Humidity:        snap.Reading.Humidity,
		AirQualityLevel: snap.Reading.AirQualityLevel,
		Valid:           snap.Reading.Valid,
	}
	if !snap.LastSample.IsZero() {
		reading.LastSample = snap.LastSample.UTC().Format(time.RFC3339)
		reading.SampleAgeMs = snap.SampleAge().Milliseconds()
	}
	return StatusInner{
		Mode:          snap.ModeString(),
		Fan:           FanJSON{State: snap.Fan.String(), Level: snap.Fan.Level()},
		LED:           BuildLED(snap.Color),
		Alert:         snap.Alert.String(),
		Reading:       reading,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Decisions:        snap.Counts.Decisions,
			CommandsApplied:  snap.Counts.CommandsApplied,
			CommandsRejected: snap.Counts.CommandsRejected,
			CommandsIgnored:  snap.Counts.CommandsIgnored,
			ModeChanges:      snap.Counts.ModeChanges,
		},
		Config: ConfigJSON{
			Room:          snap.Config.Room,
			SampleMs:      snap.Config.SampleMs,
			ReportMs:      snap.Config.ReportMs,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			Broker:        snap.Config.Broker,
			HTTPAddr:      snap.Config.HTTPAddr,
			InfluxEnabled: snap.Config.InfluxEnabled,
			Thresholds: ThresholdsJSON{
				FanHalfOn:     t.FanHalfOn,
				FanHalfOff:    t.FanHalfOff,
				FanFullOn:     t.FanFullOn,
				FanFullOff:    t.FanFullOff,
				AlertChannel:  string(t.AlertChannel),
				CriticalAbove: t.CriticalAbove,
				WarnAbove:     t.WarnAbove,
				WarnAirLevel:  t.WarnAirLevel,
			},
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
