package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/sleep-monitor/internal/logic"
	"github.com/sweeney/sleep-monitor/internal/metrics"
	"github.com/sweeney/sleep-monitor/internal/status"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker, *metrics.Metrics) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		FlushIntervalMs:     10000,
		ReadTimeoutMs:       2000,
		BrightnessThreshold: 60,
		Broker:              "ssl://broker.example.com:8883",
		HTTPPort:            ":8080",
		Sinks:               []string{"mqtt", "influxdb"},
	}
	tr := status.NewTracker(start, cfg)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	srv := New(":0", tr, reg, []string{"http://dashboard.local"})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr, m
}

func getStatus(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.SetActuators(true, true, false)
	tr.SetWindow(logic.NewWindow(22, 0, 6, 30))
	tr.SetMQTTConnected(true)
	tr.Count(func(c *status.Counts) { c.Rounds = 12; c.Malformed = 1 })

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.Light != "ON" {
		t.Errorf("Light: got %q, want ON", sj.Status.Light)
	}
	if sj.Status.Schedule.On != "22:00" || sj.Status.Schedule.Off != "06:30" || !sj.Status.Schedule.Set {
		t.Errorf("Schedule: got %+v", sj.Status.Schedule)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "ssl://broker.example.com:8883" {
		t.Errorf("MQTT.Broker: got %q", sj.Status.MQTT.Broker)
	}
	if sj.Status.Counts.Rounds != 12 || sj.Status.Counts.Malformed != 1 {
		t.Errorf("Counts: got %+v", sj.Status.Counts)
	}
	if sj.Status.Config.FlushIntervalMs != 10000 {
		t.Errorf("Config.FlushIntervalMs: got %d, want 10000", sj.Status.Config.FlushIntervalMs)
	}
	if len(sj.Status.Config.Sinks) != 2 {
		t.Errorf("Config.Sinks: got %v", sj.Status.Config.Sinks)
	}
	if sj.Status.Last != nil {
		t.Error("expected no last readings before the first flush")
	}
}

func TestJSONUnknownLightBeforeFirstActuation(t *testing.T) {
	ts, _, _ := newTestServer(t)

	sj := getStatus(t, ts.URL)

	if sj.Status.Light != "UNKNOWN" {
		t.Errorf("Light before actuation: got %q, want UNKNOWN", sj.Status.Light)
	}
	if sj.Status.Schedule.Set {
		t.Error("schedule should be unset")
	}
}

func TestJSONLastReadings(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.RecordFlush(logic.Payload{
		ID:        "batch-7",
		Timestamp: time.Date(2026, 1, 1, 23, 0, 10, 0, time.UTC),
		Sensor:    logic.SensorAggregate{HeartRate: 58, Temp: 21.5, Light: true},
		Posture:   logic.PostureAggregate{Posture: "Left Side"},
		Samples:   9,
	}, 87.5)

	sj := getStatus(t, ts.URL)

	if sj.Status.Last == nil {
		t.Fatal("expected last readings")
	}
	if sj.Status.Last.ID != "batch-7" || sj.Status.Last.Posture != "Left Side" {
		t.Errorf("Last: got %+v", sj.Status.Last)
	}
	if sj.Status.Last.Sensor.HeartRate != 58 {
		t.Errorf("HeartRate: got %v, want 58", sj.Status.Last.Sensor.HeartRate)
	}
	if sj.Status.Quality != 87.5 {
		t.Errorf("Quality: got %v, want 87.5", sj.Status.Quality)
	}
	if sj.Status.Counts.Flushes != 1 {
		t.Errorf("Flushes: got %d, want 1", sj.Status.Counts.Flushes)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.SetActuators(false, true, true)
	tr.SetWindow(logic.NewWindow(8, 0, 20, 0))

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"08:00 to 20:00", ">OFF<", "No interval flushed yet."} {
		if !strings.Contains(string(body), want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || string(body) != "ok" {
		t.Errorf("healthz: got %d %q", resp.StatusCode, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, m := newTestServer(t)
	m.Flushes.Inc()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "sleep_flushes_total 1") {
		t.Errorf("metrics output missing flush counter:\n%s", body)
	}
}

func TestCORSAllowedOrigin(t *testing.T) {
	ts, _, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/index.json", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://dashboard.local" {
		t.Errorf("Access-Control-Allow-Origin: got %q", got)
	}
}

func TestCORSOtherOriginNotAllowed(t *testing.T) {
	ts, _, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/index.json", nil)
	req.Header.Set("Origin", "http://evil.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin: got %q, want empty", got)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestPostNotAllowed(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/index.json", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr, _ := newTestServer(t)

	sj1 := getStatus(t, ts.URL)
	if sj1.Status.MQTT.Connected {
		t.Error("expected MQTT disconnected initially")
	}

	tr.SetActuators(true, true, true)
	tr.SetMQTTConnected(true)

	sj2 := getStatus(t, ts.URL)
	if sj2.Status.Light != "ON" || !sj2.Status.Indicator {
		t.Errorf("expected light and indicator on, got %q %v", sj2.Status.Light, sj2.Status.Indicator)
	}
	if !sj2.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}
