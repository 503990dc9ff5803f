package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/gpio-isp/internal/isp"
	"github.com/sweeney/gpio-isp/internal/status"
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
	"hex": func(b [4]byte) string {
		return isp.Command(b).String()
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>GPIO ISP</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.err { color: red; }
.idle { color: #888; }
</style>
</head>
<body>
<h1>GPIO ISP</h1>

<h2>Transport</h2>
<table>
<tr><th>Session</th><td>{{.Session}}</td></tr>
<tr><th>Backend</th><td>{{.Config.Backend}}</td></tr>
<tr><th>Pins</th><td class="{{if .Open}}ok{{else}}idle{{end}}">{{if .Open}}open{{else}}closed{{end}}</td></tr>
{{range $role, $pin := .Config.Pins}}<tr><th>{{$role}}</th><td>{{$pin}}</td></tr>
{{end}}</table>

<h2>Exchanges</h2>
<table>
<tr><th>Command</th><td>{{.Config.Command}}</td></tr>
<tr><th>Interval</th><td>{{.Config.IntervalMs}}ms</td></tr>
<tr><th>Total</th><td>{{.Exchanges}}</td></tr>
<tr><th>Failed</th><td{{if .Errors}} class="err"{{end}}>{{.Errors}}</td></tr>
{{if .Exchanges}}<tr><th>Last</th><td>{{.LastAt.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Sent</th><td>{{hex .LastCommand}}</td></tr>
{{if .LastError}}<tr><th>Error</th><td class="err">{{.LastError}}</td></tr>
{{else}}<tr><th>Received</th><td class="ok">{{hex .LastResponse}}</td></tr>
{{end}}{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}ok{{else}}err{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// The template needs Uptime as a field, not a method.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
