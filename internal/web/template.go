package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/sleep-monitor/internal/logic"
	"github.com/sweeney/sleep-monitor/internal/status"
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
	"clock": logic.FormatMinutes,
	"onOff": func(on bool) string {
		if on {
			return "ON"
		}
		return "OFF"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Sleep Monitor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Sleep Monitor</h1>

<h2>Light</h2>
<table>
<tr><th>Light</th><td id="light-state" class="{{if eq .LightLabel "ON"}}on{{else if eq .LightLabel "OFF"}}off{{else}}unknown{{end}}">{{.LightLabel}}</td></tr>
<tr><th>Schedule</th><td>{{if .Window.IsSet}}{{clock .Window.On}} to {{clock .Window.Off}}{{else}}not set{{end}}</td></tr>
<tr><th>Indicator</th><td class="{{if .Indicator}}on{{else}}off{{end}}">{{onOff .Indicator}}</td></tr>
</table>

<h2>Last Interval</h2>
{{with .LastPayload}}<table>
<tr><th>Time</th><td>{{.Timestamp.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Heart rate</th><td>{{printf "%.1f" .Sensor.HeartRate}}</td></tr>
<tr><th>Motion</th><td>{{printf "%.2f" .Sensor.Motion}}</td></tr>
<tr><th>Temperature</th><td>{{printf "%.1f" .Sensor.Temp}} &deg;C</td></tr>
<tr><th>Humidity</th><td>{{printf "%.1f" .Sensor.Humid}} %</td></tr>
<tr><th>Sound</th><td>{{printf "%.3f" .Sensor.Sound}}</td></tr>
<tr><th>Brightness</th><td>{{printf "%.1f" .Sensor.Brightness}} %</td></tr>
<tr><th>Posture</th><td>{{.Posture.Posture}}</td></tr>
<tr><th>Samples</th><td>{{.Samples}}</td></tr>
</table>
<p>Sleep quality: <strong>{{printf "%.2f" $.Quality}}</strong></p>{{else}}<p>No interval flushed yet.</p>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Sinks</th><td>{{range $i, $s := .Config.Sinks}}{{if $i}}, {{end}}{{$s}}{{end}}</td></tr>
</table>

<h2>Counts</h2>
<table>
<tr><th>Rounds</th><td>{{.Counts.Rounds}}</td></tr>
<tr><th>Flushes</th><td>{{.Counts.Flushes}}</td></tr>
<tr><th>Malformed</th><td>{{.Counts.Malformed}}</td></tr>
<tr><th>Sensor faults</th><td>{{.Counts.SensorFaults}}</td></tr>
<tr><th>Publish faults</th><td>{{.Counts.PublishFaults}}</td></tr>
<tr><th>Actuation faults</th><td>{{.Counts.ActuationFaults}}</td></tr>
<tr><th>Rejected settings</th><td>{{.Counts.ScheduleRejected}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Flush</th><td>{{.Config.FlushIntervalMs}}ms</td></tr>
<tr><th>Read timeout</th><td>{{.Config.ReadTimeoutMs}}ms</td></tr>
<tr><th>Brightness threshold</th><td>{{.Config.BrightnessThreshold}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has methods the template cannot call with arguments.
	data := struct {
		status.Snapshot
		Uptime     time.Duration
		LightLabel string
	}{
		Snapshot:   snap,
		Uptime:     snap.Uptime(),
		LightLabel: status.LightLabel(snap),
	}
	indexTmpl.Execute(w, data)
}
