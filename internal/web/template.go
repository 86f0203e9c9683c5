package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/env-controller/internal/logic"
	"github.com/sweeney/env-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"rgb": func(r, g, b uint16) template.CSS {
		// 10-bit duty to 8-bit CSS channel.
		return template.CSS(fmt.Sprintf("rgb(%d,%d,%d)", r>>2, g>>2, b>>2))
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Env Controller · {{.Config.Room}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.warn { color: orange; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
.swatch { display: inline-block; width: 10px; height: 10px; border: 1px solid #444; margin-right: 6px; vertical-align: middle; }
</style>
</head>
<body>
<h1>Env Controller · {{.Config.Room}}</h1>

<h2>Control</h2>
<table>
<tr><th>Mode</th><td id="mode">{{.ModeString}}</td></tr>
<tr><th>Fan</th><td id="fan" class="{{if eq .Fan.String "OFF"}}off{{else}}on{{end}}">{{.Fan}}</td></tr>
<tr><th>LED</th><td id="led"><span class="swatch" style="background: {{rgb .Color.R .Color.G .Color.B}}"></span>{{.LED.Name}}</td></tr>
<tr><th>Alert</th><td id="alert" class="{{if eq .Alert.String "OFF"}}off{{else}}warn{{end}}">{{.Alert}}</td></tr>
</table>

<h2>Reading</h2>
<table>
{{if .Reading.Valid}}<tr><th>Temperature</th><td>{{printf "%.1f" .Reading.Temperature}} °C</td></tr>
<tr><th>Humidity</th><td>{{printf "%.1f" .Reading.Humidity}} %</td></tr>
<tr><th>Air quality</th><td>{{.AirName}} ({{.Reading.AirQualityLevel}})</td></tr>
{{else}}<tr><th>Sensors</th><td class="warn">unavailable</td></tr>{{end}}
{{if not .LastSample.IsZero}}<tr><th>Last sample</th><td>{{uptime .SampleAge}} ago</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counters</h2>
<table>
<tr><th>Decisions</th><td>{{.Counts.Decisions}}</td></tr>
<tr><th>Commands applied</th><td>{{.Counts.CommandsApplied}}</td></tr>
<tr><th>Commands rejected</th><td>{{.Counts.CommandsRejected}}</td></tr>
<tr><th>Commands ignored</th><td>{{.Counts.CommandsIgnored}}</td></tr>
<tr><th>Mode changes</th><td>{{.Counts.ModeChanges}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Sample</th><td>{{.Config.SampleMs}}ms</td></tr>
<tr><th>Report</th><td>{{.Config.ReportMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Fan bands</th><td>half {{.Config.Thresholds.FanHalfOn}}/{{.Config.Thresholds.FanHalfOff}}, full {{.Config.Thresholds.FanFullOn}}/{{.Config.Thresholds.FanFullOff}}</td></tr>
<tr><th>Telemetry</th><td>{{if .Config.InfluxEnabled}}influx{{else}}disabled{{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime  time.Duration
		LED     status.LEDJSON
		AirName string
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		LED:      status.BuildLED(snap.Color),
		AirName:  airName(snap.Reading.AirQualityLevel),
	}
	return indexTmpl.Execute(w, data)
}

func airName(level uint8) string {
	if int(level) >= len(logic.PaletteNames) {
		return "unknown"
	}
	return logic.PaletteNames[level]
}
