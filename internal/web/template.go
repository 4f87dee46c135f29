package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/thermostat/internal/processed"
	"github.com/sweeney/thermostat/internal/status"
	"github.com/sweeney/thermostat/internal/telemetry"
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
	"clock": func(epoch float64) string {
		return telemetry.FromEpoch(epoch).Format("15:04:05")
	},
	"newestFirst": func(recs []processed.Record) []processed.Record {
		out := make([]processed.Record, len(recs))
		for i, r := range recs {
			out[len(recs)-1-i] = r
		}
		return out
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Thermostat</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.banner { padding: 6px 10px; margin: 1em 0; font-weight: bold; }
.peak { background: #fde2c8; }
.offpeak { background: #d8ecd8; }
.error { background: #f8d0d0; color: #900; }
.metrics td { font-size: 1.2em; }
#chart { width: 100%; height: 160px; border: 1px solid #ddd; }
</style>
</head>
<body>
<h1>Thermostat</h1>

{{if .LastError}}<div id="error" class="banner error">Controller error at {{.LastErrorAt.Format "15:04:05"}}: {{.LastError}}</div>{{end}}
{{if .ReadError}}<div class="banner error">Cannot read processed records: {{.ReadError}}</div>{{end}}

{{if .Latest}}
<div id="peak" class="banner {{if .Latest.IsPeak}}peak{{else}}offpeak{{end}}">{{if .Latest.IsPeak}}PEAK HOURS: heating suppressed{{else}}OFF-PEAK{{end}}</div>

<table class="metrics">
<tr><th>Temperature</th><td id="temp">{{printf "%.2f" .Latest.Temperature}} &deg;C</td></tr>
<tr><th>Target</th><td id="target">{{printf "%.2f" .Latest.TargetTemp}} &deg;C</td></tr>
<tr><th>Heater</th><td id="heater" class="{{if eq .Latest.HeaterState "ON"}}on{{else}}off{{end}}">{{.Latest.HeaterState}}</td></tr>
</table>

<svg id="chart" viewBox="0 0 100 40" preserveAspectRatio="none"></svg>

<table>
<thead><tr><th>Time</th><th>Device</th><th>Temp</th><th>Target</th><th>Heater</th><th>Peak</th></tr></thead>
<tbody id="rows">
{{range newestFirst .Records}}<tr><td>{{clock .Timestamp}}</td><td>{{.DeviceID}}</td><td>{{printf "%.2f" .Temperature}}</td><td>{{printf "%.2f" .TargetTemp}}</td><td>{{.HeaterActive}}</td><td>{{if .IsPeak}}yes{{else}}no{{end}}</td></tr>
{{end}}</tbody>
</table>
{{else}}
<p id="waiting">Waiting for data...</p>
{{end}}

<h2>System</h2>
<table>
<tr><th>Instance</th><td>{{.Config.InstanceID}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Processed</th><td>{{.Counts.Processed}} ({{.Counts.Skipped}} skipped)</td></tr>
<tr><th>Heater ON / OFF</th><td>{{.Counts.HeaterOn}} / {{.Counts.HeaterOff}}</td></tr>
<tr><th>Cycle errors</th><td>{{.Counts.CycleErrors}}</td></tr>
<tr><th>MQTT</th><td>{{if .MQTTConnected}}connected{{else}}disconnected{{end}}{{if .Config.Broker}} ({{.Config.Broker}}){{end}}</td></tr>
<tr><th>Interval</th><td>{{.Config.IntervalMs}}ms</td></tr>
</table>

<p><a href="/index.json">status</a> | <a href="/records.json">records</a></p>

<script>
(function() {
  var records = {{.Records}} || [];
  var windowSize = {{.Config.Window}} || 50;

  function draw() {
    var svg = document.getElementById("chart");
    if (!svg || records.length === 0) return;
    var lo = Infinity, hi = -Infinity;
    records.forEach(function(r) {
      lo = Math.min(lo, r.temperature, r.target_temp);
      hi = Math.max(hi, r.temperature, r.target_temp);
    });
    if (hi === lo) { hi += 1; lo -= 1; }
    var step = records.length > 1 ? 100 / (records.length - 1) : 0;
    function y(v) { return 38 - (v - lo) / (hi - lo) * 36; }
    function line(key, color) {
      var pts = records.map(function(r, i) { return (i * step) + "," + y(r[key]); }).join(" ");
      return '<polyline fill="none" stroke="' + color + '" stroke-width="0.5" points="' + pts + '"/>';
    }
    var heat = records.map(function(r, i) {
      return r.heater_state === "ON" ? '<rect x="' + (i * step) + '" y="39" width="' + Math.max(step, 1) + '" height="1" fill="orange"/>' : "";
    }).join("");
    svg.innerHTML = line("target_temp", "#999") + line("temperature", "#c33") + heat;
  }

  function cell(text) { var td = document.createElement("td"); td.textContent = text; return td; }

  function add(r) {
    records.push(r);
    if (records.length > windowSize) records.shift();
    var rows = document.getElementById("rows");
    if (!rows) { location.reload(); return; }
    var tr = document.createElement("tr");
    tr.appendChild(cell(new Date(r.timestamp * 1000).toTimeString().slice(0, 8)));
    tr.appendChild(cell(r.device_id));
    tr.appendChild(cell(r.temperature.toFixed(2)));
    tr.appendChild(cell(r.target_temp.toFixed(2)));
    tr.appendChild(cell(r.heater_state === "ON" ? "1" : "0"));
    tr.appendChild(cell(r.is_peak ? "yes" : "no"));
    rows.insertBefore(tr, rows.firstChild);
    while (rows.children.length > windowSize) rows.removeChild(rows.lastChild);
    document.getElementById("temp").textContent = r.temperature.toFixed(2) + " °C";
    document.getElementById("target").textContent = r.target_temp.toFixed(2) + " °C";
    var h = document.getElementById("heater");
    h.textContent = r.heater_state;
    h.className = r.heater_state === "ON" ? "on" : "off";
    var p = document.getElementById("peak");
    p.className = "banner " + (r.is_peak ? "peak" : "offpeak");
    p.textContent = r.is_peak ? "PEAK HOURS: heating suppressed" : "OFF-PEAK";
    draw();
  }

  draw();
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/ws");
  ws.onmessage = function(ev) {
    try {
      var msg = JSON.parse(ev.data);
      if (msg.type === "record") msg.records.forEach(add);
    } catch (e) {}
  };
})();
</script>
</body>
</html>
`

type page struct {
	status.Snapshot
	Uptime    time.Duration
	Records   []processed.Record
	Latest    *processed.Record
	ReadError string
}

func renderHTML(w io.Writer, snap status.Snapshot, recs []processed.Record, readErr error) error {
	data := page{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Records:  recs,
	}
	if len(recs) > 0 {
		data.Latest = &recs[len(recs)-1]
	}
	if readErr != nil {
		data.ReadError = readErr.Error()
	}
	return indexTmpl.Execute(w, data)
}
