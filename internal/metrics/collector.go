package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/env-controller/internal/logic"
	"github.com/sweeney/env-controller/internal/status"
)

// collector reads one snapshot per scrape so every sample comes from the same instant.
type collector struct {
	state     *status.ControlState
	scheduler SchedulerStats
	buffer    BufferStats

	mode        *prometheus.Desc
	fan         *prometheus.Desc
	led         *prometheus.Desc
	alert       *prometheus.Desc
	valid       *prometheus.Desc
	temperature *prometheus.Desc
	humidity    *prometheus.Desc
	air         *prometheus.Desc
	uptime      *prometheus.Desc
	connected   *prometheus.Desc
	decisions   *prometheus.Desc
	commands    *prometheus.Desc
	modeChanges *prometheus.Desc

	alertTasks    *prometheus.Desc
	alertSpawned  *prometheus.Desc
	alertFailures *prometheus.Desc
	buffered      *prometheus.Desc
}

func desc(name, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
}

func newCollector(state *status.ControlState) *collector {
	return &collector{
		state:       state,
		mode:        desc("mode", "Active mode: 0 uninitialized, 1 AUTO, 2 MANUAL."),
		fan:         desc("fan_level", "Applied fan tier (0 off, 1 half, 2 full)."),
		led:         desc("led_palette_index", "Palette index of the LED color, -1 when dark."),
		alert:       desc("alert_level", "Requested alert level (0 off .. 3 critical)."),
		valid:       desc("reading_valid", "1 when the stable reading is valid."),
		temperature: desc("temperature_celsius", "Stable temperature."),
		humidity:    desc("humidity_percent", "Stable relative humidity."),
		air:         desc("air_quality_level", "Stable air quality tier (0 good .. 4 very poor)."),
		uptime:      desc("uptime_seconds", "Seconds since start."),
		connected:   desc("mqtt_connected", "1 while the MQTT session is up."),
		decisions:   desc("decisions_total", "Decision cycles applied in AUTO."),
		commands:    desc("commands_total", "Actuator commands by outcome.", "outcome"),
		modeChanges: desc("mode_changes_total", "Mode transitions that changed the mode."),

		alertTasks:    desc("alert_tasks", "Alert tasks currently alive."),
		alertSpawned:  desc("alert_spawned_total", "Alert tasks started."),
		alertFailures: desc("alert_spawn_failures_total", "Alert task starts that failed."),
		buffered:      desc("mqtt_buffered_messages", "Outbound messages waiting for reconnect."),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.mode, c.fan, c.led, c.alert, c.valid, c.temperature, c.humidity, c.air,
		c.uptime, c.connected, c.decisions, c.commands, c.modeChanges,
	} {
		ch <- d
	}
	if c.scheduler != nil {
		ch <- c.alertTasks
		ch <- c.alertSpawned
		ch <- c.alertFailures
	}
	if c.buffer != nil {
		ch <- c.buffered
	}
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.state.Snapshot()

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}

	gauge(c.mode, modeValue(snap))
	gauge(c.fan, float64(snap.Fan.Level()))
	gauge(c.led, float64(snap.LEDIndex()))
	gauge(c.alert, float64(snap.Alert))
	gauge(c.valid, boolValue(snap.Reading.Valid))
	gauge(c.temperature, snap.Reading.Temperature)
	gauge(c.humidity, snap.Reading.Humidity)
	gauge(c.air, float64(snap.Reading.AirQualityLevel))
	gauge(c.uptime, snap.Uptime().Seconds())
	gauge(c.connected, boolValue(snap.MQTTConnected))

	counter(c.decisions, float64(snap.Counts.Decisions))
	counter(c.commands, float64(snap.Counts.CommandsApplied), "applied")
	counter(c.commands, float64(snap.Counts.CommandsRejected), "rejected")
	counter(c.commands, float64(snap.Counts.CommandsIgnored), "ignored")
	counter(c.modeChanges, float64(snap.Counts.ModeChanges))

	if c.scheduler != nil {
		gauge(c.alertTasks, float64(c.scheduler.Alive()))
		counter(c.alertSpawned, float64(c.scheduler.Spawned()))
		counter(c.alertFailures, float64(c.scheduler.SpawnFailures()))
	}
	if c.buffer != nil {
		gauge(c.buffered, float64(c.buffer.Buffered()))
	}
}

func modeValue(s status.Snapshot) float64 {
	switch {
	case !s.Initialized:
		return 0
	case s.Mode == logic.ModeAuto:
		return 1
	default:
		return 2
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
