package internal

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/gpio-isp/internal/bitbang"
	"github.com/sweeney/gpio-isp/internal/gpio"
	"github.com/sweeney/gpio-isp/internal/isp"
	"github.com/sweeney/gpio-isp/internal/mqtt"
	"github.com/sweeney/gpio-isp/internal/status"
	"github.com/sweeney/gpio-isp/internal/sysfs"
)

// sysfsTree lays out a /sys/class/gpio lookalike with the given lines
// already present and master_in reading level.
func sysfsTree(t *testing.T, masterIn string, ids ...int) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range []string{"export", "unexport"} {
		if err := os.WriteFile(filepath.Join(root, f), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	for _, id := range ids {
		dir := filepath.Join(root, "gpio"+strconv.Itoa(id))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		value := "0\n"
		if id == gpio.DefaultMasterIn {
			value = masterIn
		}
		if err := os.WriteFile(filepath.Join(dir, "direction"), []byte("in"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "value"), []byte(value), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

// TestIntegrationSysfsToMQTT runs one exchange over files shaped like the
// kernel's control-plane and follows it through to the published payload and
// the status document.
func TestIntegrationSysfsToMQTT(t *testing.T) {
	root := sysfsTree(t, "1\n", gpio.DefaultClock, gpio.DefaultMasterOut, gpio.DefaultMasterIn)

	backend, err := sysfs.New(sysfs.Dir{Root: root}, gpio.DefaultAssignment())
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	tr := bitbang.New(backend)
	if err := tr.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}

	if got := readFile(t, filepath.Join(root, "gpio11", "direction")); got != "out" {
		t.Errorf("clock direction: got %q", got)
	}
	if got := readFile(t, filepath.Join(root, "gpio9", "direction")); got != "in" {
		t.Errorf("master_in direction: got %q", got)
	}

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tracker := status.NewTracker(status.NewSessionID(start), start, status.Config{Backend: "sysfs"})
	tracker.SetOpen(true)
	publisher := mqtt.NewFakePublisher()

	cmd := isp.ReadSignature(0)
	res, err := tr.Command(cmd)
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	// master_in is held high, so every sampled bit is 1.
	if res != [4]byte{0xFF, 0xFF, 0xFF, 0xFF} {
		t.Errorf("response: got %X", res)
	}
	// Regular files keep every write at its own offset, so the value files
	// hold the full bit history: MSB first on master_out, one high/low pair
	// per bit on clock.
	if got, want := readFile(t, filepath.Join(root, "gpio10", "value")), "00110000"+strings.Repeat("0", 24); got != want {
		t.Errorf("master_out bits:\ngot:  %s\nwant: %s", got, want)
	}
	if got, want := readFile(t, filepath.Join(root, "gpio11", "value")), strings.Repeat("10", 32); got != want {
		t.Errorf("clock edges:\ngot:  %s\nwant: %s", got, want)
	}

	tracker.RecordExchange(start, cmd, res, nil)
	if err := publisher.Publish(mqtt.Exchange{Timestamp: start, Session: "s", Seq: 1, Command: cmd, Response: res}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	tr.Close()
	tracker.SetOpen(false)
	if got := readFile(t, filepath.Join(root, "gpio11", "direction")); got != "in" {
		t.Errorf("clock not returned to input: %q", got)
	}
	if _, err := tr.Command(cmd); !errors.Is(err, gpio.ErrNotOpen) {
		t.Errorf("command after close: expected ErrNotOpen, got %v", err)
	}

	var parsed mqtt.Payload
	if err := json.Unmarshal(publisher.Payloads[0], &parsed); err != nil {
		t.Fatalf("payload: invalid JSON: %v", err)
	}
	if parsed.Exchange.Command != "30 00 00 00" || parsed.Exchange.Response != "FF FF FF FF" {
		t.Errorf("payload exchange: %+v", parsed.Exchange)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(status.FormatJSON(tracker.Snapshot()), &sj); err != nil {
		t.Fatalf("status: invalid JSON: %v", err)
	}
	if sj.Status.Open || sj.Status.Counts.Exchanges != 1 {
		t.Errorf("status: %+v", sj.Status)
	}
	if sj.Status.Last == nil || sj.Status.Last.Response != "FF FF FF FF" {
		t.Errorf("status last exchange: %+v", sj.Status.Last)
	}
}

// TestIntegrationTargetNotInSync checks that a floating master_in line shows
// up as a programmer sync failure rather than a transport error.
func TestIntegrationTargetNotInSync(t *testing.T) {
	root := sysfsTree(t, "0\n", gpio.DefaultClock, gpio.DefaultMasterOut, gpio.DefaultMasterIn)

	backend, err := sysfs.New(sysfs.Dir{Root: root}, gpio.DefaultAssignment())
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	tr := bitbang.New(backend)
	if err := tr.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer tr.Close()

	p := &isp.Programmer{T: tr}
	err = p.Enable()
	if !errors.Is(err, isp.ErrNotInSync) {
		t.Fatalf("expected ErrNotInSync, got %v", err)
	}
	if errors.Is(err, gpio.ErrIOFailure) {
		t.Error("sync failure should not look like an I/O failure")
	}
}

// TestIntegrationMissingControlPlane checks the error class when the sysfs
// root does not exist.
func TestIntegrationMissingControlPlane(t *testing.T) {
	backend, err := sysfs.New(sysfs.Dir{Root: filepath.Join(t.TempDir(), "absent")}, gpio.DefaultAssignment())
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	tr := bitbang.New(backend)

	err = tr.Open()
	if !errors.Is(err, gpio.ErrResourceUnavailable) {
		t.Fatalf("expected ErrResourceUnavailable, got %v", err)
	}
	if tr.IsOpen() {
		t.Error("transport should not be open after a failed Open")
	}
}
