package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/bed-scheduler/internal/status"
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
	"utc": func(t time.Time) string {
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
	"stageOrDash": func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Bed Scheduler</title>
<style>
body { font-family: monospace; max-width: 760px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; }
.failed { color: red; font-weight: bold; }
.dry { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Bed Scheduler</h1>

<h2>Last Run</h2>
<table>
{{if .LastRun}}<tr><th>Run</th><td>{{.LastRun.ID}}</td></tr>
<tr><th>At</th><td>{{utc .LastRun.At}}{{if .LastRun.DryRun}} <span class="dry">(dry run)</span>{{end}}</td></tr>
<tr><th>Duration</th><td>{{.LastRun.Duration}}</td></tr>
{{if .LastRun.Error}}<tr><th>Error</th><td class="failed">{{.LastRun.Error}}</td></tr>{{end}}{{else}}<tr><th>Run</th><td>none yet</td></tr>{{end}}
</table>

<h2>Profiles</h2>
<table>
<tr><th>Owner</th><th>Side</th><th>Stage</th><th>Command</th><th>Result</th></tr>
{{range .Profiles}}{{$p := .}}{{if .Sides}}{{range .Sides}}<tr><td>{{$p.Owner}}</td><td>{{.Side}} ({{.Role}})</td><td>{{stageOrDash .Stage}}</td><td title="{{.Reason}}">{{.Command}}</td><td class="{{if $p.Error}}failed{{else}}ok{{end}}">{{if $p.Error}}{{$p.Error}}{{else if $p.DryRun}}dry run{{else if $p.Wrote}}written{{else}}unchanged{{end}}</td></tr>
{{end}}{{else}}<tr><td>{{.Owner}}</td><td>-</td><td>-</td><td>-</td><td class="failed">{{.Error}}</td></tr>
{{end}}{{else}}<tr><td colspan="5">no profiles processed</td></tr>
{{end}}</table>

<h2>Counters</h2>
<table>
<tr><th>Runs</th><td>{{.Counts.Runs}}</td></tr>
<tr><th>Aborted runs</th><td>{{.Counts.AbortedRuns}}</td></tr>
<tr><th>Device writes</th><td>{{.Counts.Writes}}</td></tr>
<tr><th>Profile failures</th><td>{{.Counts.Failures}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{utc .StartTime}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickInterval}}</td></tr>
<tr><th>Workers</th><td>{{.Config.Workers}}</td></tr>
<tr><th>Store</th><td>{{.Config.StoreBackend}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">Metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
