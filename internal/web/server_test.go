package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/gpio-isp/internal/status"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		Backend:    "sysfs",
		Pins:       map[string]string{"clock": "11", "master_out": "10", "master_in": "9"},
		Command:    "AC 53 00 00",
		IntervalMs: 5000,
		Broker:     "tcp://192.168.1.200:1883",
		HTTPAddr:   ":8080",
	}
	tr := status.NewTracker("01HTESTSESSION", start, cfg)
	srv := New(":0", tr, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func getJSON(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.SetOpen(true)
	tr.SetMQTTConnected(true)
	tr.RecordExchange(time.Now(), [4]byte{0xAC, 0x53, 0x00, 0x00}, [4]byte{0xFF, 0xAC, 0x53, 0x00}, nil)

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

	if !sj.Status.Open {
		t.Error("expected Open=true")
	}
	if sj.Status.Session != "01HTESTSESSION" {
		t.Errorf("Session: got %q", sj.Status.Session)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Counts.Exchanges != 1 {
		t.Errorf("Counts.Exchanges: got %d, want 1", sj.Status.Counts.Exchanges)
	}
	if sj.Status.Last == nil || sj.Status.Last.Response != "FF AC 53 00" {
		t.Errorf("Last: got %+v", sj.Status.Last)
	}
	if sj.Status.Config.Backend != "sysfs" {
		t.Errorf("Config.Backend: got %q", sj.Status.Config.Backend)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t)

	sj1 := getJSON(t, ts.URL+"/index.json")
	if sj1.Status.Open || sj1.Status.Last != nil {
		t.Error("expected closed with no exchange initially")
	}

	tr.SetOpen(true)
	tr.RecordExchange(time.Now(), [4]byte{0x30}, [4]byte{}, errors.New("gpio: get master_in (pin 9): i/o failure"))

	sj2 := getJSON(t, ts.URL+"/index.json")
	if !sj2.Status.Open {
		t.Error("expected Open=true after update")
	}
	if sj2.Status.Counts.Errors != 1 || sj2.Status.Last == nil || sj2.Status.Last.Error == "" {
		t.Errorf("failed exchange not reflected: %+v", sj2.Status)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.SetOpen(true)
	tr.RecordExchange(time.Now(), [4]byte{0x30, 0x00, 0x00, 0x00}, [4]byte{0x00, 0x30, 0x00, 0x1E}, nil)

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
	for _, want := range []string{"01HTESTSESSION", "master_in", "00 30 00 1E", "open"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestHTMLShowsLastError(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.RecordExchange(time.Now(), [4]byte{0xAC, 0x53}, [4]byte{}, errors.New("pin not open"))

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "pin not open") {
		t.Error("page should show the last error")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/index.json", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != "GET, HEAD" {
		t.Errorf("Allow: got %q", allow)
	}
}

func TestUptimeFormatting(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var sb strings.Builder
	err := renderHTML(&sb, status.Snapshot{StartTime: start, Now: start.Add(26*time.Hour + 3*time.Minute + 4*time.Second)})
	if err != nil {
		t.Fatalf("renderHTML: %v", err)
	}
	if !strings.Contains(sb.String(), "1d 2h 3m 4s") {
		t.Error("uptime not formatted as days/hours/minutes/seconds")
	}
}
