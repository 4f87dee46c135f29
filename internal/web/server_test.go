package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/sweeney/thermostat/internal/logic"
	"github.com/sweeney/thermostat/internal/processed"
	"github.com/sweeney/thermostat/internal/status"
)

type fixture struct {
	ts      *httptest.Server
	tracker *status.Tracker
	records *processed.MemoryLog
	hub     *Hub
}

func newTestServer(t *testing.T) *fixture {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		InstanceID: "test-instance",
		IntervalMs: 3000,
		Broker:     "tcp://192.168.1.200:1883",
		HTTPAddr:   ":8080",
		Window:     50,
	}
	f := &fixture{
		tracker: status.NewTracker(start, cfg),
		records: processed.NewMemoryLog(100),
		hub:     NewHub(),
	}
	srv := New(Options{
		Addr:    ":0",
		Tracker: f.tracker,
		Records: f.records,
		Hub:     f.hub,
		Window:  50,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	f.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(f.ts.Close)
	return f
}

func record(temp float64, heater logic.State, peak bool) processed.Record {
	return processed.Record{
		DeviceID:    "thermostat01",
		Temperature: temp,
		Timestamp:   1767261600,
		HeaterState: heater,
		TargetTemp:  20,
		IsPeak:      peak,
	}
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestJSONEndpoint(t *testing.T) {
	f := newTestServer(t)
	f.tracker.Update(logic.StateOn, logic.EventCounts{Processed: 5, HeaterOn: 2})
	f.tracker.SetMQTTConnected(true)

	resp, body := get(t, f.ts.URL+"/index.json")
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal([]byte(body), &sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if sj.Status.Heater != "ON" {
		t.Errorf("Heater: got %q, want ON", sj.Status.Heater)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Counts.Processed != 5 {
		t.Errorf("Counts.Processed: got %d, want 5", sj.Status.Counts.Processed)
	}
	if sj.Status.InstanceID != "test-instance" {
		t.Errorf("InstanceID: got %q", sj.Status.InstanceID)
	}
}

func TestRecordsEndpoint(t *testing.T) {
	f := newTestServer(t)
	for i := 0; i < 60; i++ {
		f.records.Append(record(18+float64(i)/10, logic.StateOn, false))
	}

	_, body := get(t, f.ts.URL+"/records.json")
	var rj RecordsJSON
	if err := json.Unmarshal([]byte(body), &rj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rj.Count != 50 || len(rj.Records) != 50 {
		t.Errorf("default window: got count=%d len=%d, want 50", rj.Count, len(rj.Records))
	}

	_, body = get(t, f.ts.URL+"/records.json?n=3")
	json.Unmarshal([]byte(body), &rj)
	if rj.Count != 3 {
		t.Fatalf("n=3: got %d", rj.Count)
	}
	if want := 18 + float64(59)/10; rj.Records[2].Temperature != want {
		t.Errorf("newest last: got %v", rj.Records[2].Temperature)
	}
}

func TestRecordsEndpointEmpty(t *testing.T) {
	f := newTestServer(t)

	_, body := get(t, f.ts.URL+"/records.json")
	if !strings.Contains(body, `"records":[]`) {
		t.Errorf("expected empty array, got %s", body)
	}
}

func TestRecordsEndpointBadN(t *testing.T) {
	f := newTestServer(t)

	for _, n := range []string{"0", "-1", "abc"} {
		resp, _ := get(t, f.ts.URL+"/records.json?n="+n)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("n=%s: got %d, want 400", n, resp.StatusCode)
		}
	}
}

type failingReader struct{}

func (failingReader) Tail(int) ([]processed.Record, error) {
	return nil, errors.New("permission denied")
}

func TestRecordsEndpointReadError(t *testing.T) {
	tr := status.NewTracker(time.Now(), status.Config{})
	srv := New(Options{Tracker: tr, Records: failingReader{}, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, _ := get(t, ts.URL+"/records.json")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", resp.StatusCode)
	}

	resp, body := get(t, ts.URL+"/")
	if resp.StatusCode != 200 {
		t.Errorf("dashboard should still render, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Cannot read processed records") {
		t.Error("expected read error banner")
	}
}

func TestHTMLWaitingForData(t *testing.T) {
	f := newTestServer(t)

	resp, body := get(t, f.ts.URL+"/")
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q", ct)
	}
	if !strings.Contains(body, "Waiting for data...") {
		t.Error("expected waiting message with no records")
	}
	if strings.Contains(body, `id="peak"`) {
		t.Error("peak banner should not render without data")
	}
}

func TestHTMLShowsLatestRecord(t *testing.T) {
	f := newTestServer(t)
	f.records.Append(record(18.5, logic.StateOn, false))
	f.records.Append(record(19.25, logic.StateOff, true))

	_, body := get(t, f.ts.URL+"/index.html")
	if strings.Contains(body, "Waiting for data...") {
		t.Error("should not show waiting message")
	}
	for _, want := range []string{"19.25", `class="banner peak"`, `class="off">OFF`, "test-instance"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestHTMLOffPeakBanner(t *testing.T) {
	f := newTestServer(t)
	f.records.Append(record(18.5, logic.StateOn, false))

	_, body := get(t, f.ts.URL+"/")
	if !strings.Contains(body, `class="banner offpeak"`) {
		t.Error("expected OFF-PEAK banner")
	}
}

func TestHTMLErrorBanner(t *testing.T) {
	f := newTestServer(t)
	f.tracker.SetError(errors.New("append processed record: disk full"), time.Now())

	_, body := get(t, f.ts.URL+"/")
	if !strings.Contains(body, "disk full") {
		t.Error("expected error banner")
	}

	f.tracker.SetError(nil, time.Now())
	_, body = get(t, f.ts.URL+"/")
	if strings.Contains(body, "disk full") {
		t.Error("banner should clear after a good cycle")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	f := newTestServer(t)

	resp, _ := get(t, f.ts.URL+"/nonexistent")
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestWebsocketStream(t *testing.T) {
	f := newTestServer(t)
	f.records.Append(record(18.5, logic.StateOn, false))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	c, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close(websocket.StatusNormalClosure, "")

	var first Message
	if err := wsjson.Read(ctx, c, &first); err != nil {
		t.Fatalf("read window: %v", err)
	}
	if first.Type != MessageWindow || len(first.Records) != 1 {
		t.Fatalf("window: got %+v", first)
	}

	// The server subscribes before sending the window.
	if f.hub.Len() != 1 {
		t.Fatalf("subscribers: got %d, want 1", f.hub.Len())
	}
	f.hub.Broadcast(record(19, logic.StateOn, false))

	var next Message
	if err := wsjson.Read(ctx, c, &next); err != nil {
		t.Fatalf("read record: %v", err)
	}
	if next.Type != MessageRecord || len(next.Records) != 1 || next.Records[0].Temperature != 19 {
		t.Errorf("record: got %+v", next)
	}
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()

	for i := 0; i < subscriberBuffer+1; i++ {
		h.Broadcast(record(float64(i), logic.StateOff, false))
	}
	if h.Len() != 0 {
		t.Errorf("slow subscriber should be dropped, len=%d", h.Len())
	}

	n := 0
	for range ch {
		n++
	}
	if n != subscriberBuffer {
		t.Errorf("buffered messages: got %d, want %d", n, subscriberBuffer)
	}

	// Unsubscribing a dropped channel is a no-op.
	h.Unsubscribe(ch)
}

func TestHubBroadcastNothing(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	h.Broadcast()
	if len(ch) != 0 {
		t.Errorf("expected no messages, got %d", len(ch))
	}
	h.Unsubscribe(ch)
	if h.Len() != 0 {
		t.Errorf("len after unsubscribe: %d", h.Len())
	}
}
