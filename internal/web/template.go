package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/sat-heartbeat/internal/heartbeat"
	"github.com/sweeney/sat-heartbeat/internal/status"
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
	"probeClass": func(p heartbeat.ProbeState) string {
		switch p {
		case heartbeat.ProbeRespReceived:
			return "live"
		case heartbeat.ProbeTimedOut:
			return "late"
		case heartbeat.ProbeResetIssued:
			return "reset"
		}
		return "idle"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Config.Self}} heartbeat</title>
<style>
body { font-family: monospace; max-width: 760px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.live { color: green; font-weight: bold; }
.late { color: orange; }
.reset { color: red; font-weight: bold; }
.idle { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>{{.Config.Self}} heartbeat</h1>

<h2>Peers</h2>
<table>
<tr><th>Peer</th><th>Probe</th><th>Reply</th><th>Period</th><th>Last ack</th><th>Silent</th><th>Pings</th><th>Timeouts</th><th>Resets</th></tr>
{{range .Links}}<tr>
<td>{{.Peer}}</td>
<td class="{{probeClass .Probe}}">{{.Probe}}</td>
<td>{{.Reply}}</td>
<td>{{.PingPeriod}}s</td>
<td>{{.LastAck}}</td>
<td>{{.Staleness}}s</td>
<td>{{.Counters.PingsSent}}</td>
<td>{{.Counters.Timeouts}}</td>
<td>{{.Counters.Resets}}{{if .Counters.ResetFailures}} ({{.Counters.ResetFailures}} failed){{end}}</td>
</tr>
{{else}}<tr><td colspan="9">engine not started</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>Bus</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Dropped frames</th><td>{{.BusDropped}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Boot</th><td>{{.BootID}}</td></tr>
<tr><th>Uptime counter</th><td>{{.UptimeS}}s</td></tr>
<tr><th>Process uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Reset threshold</th><td>{{.Config.ResetThresholdS}}s</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
