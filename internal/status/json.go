package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/gpio-isp/internal/isp"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Session       string        `json:"session"`
	Open          bool          `json:"open"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Counts        CountsJSON    `json:"counts"`
	Last          *ExchangeJSON `json:"last_exchange,omitempty"`
	Config        ConfigJSON    `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of exchange counts.
type CountsJSON struct {
	Exchanges uint64 `json:"exchanges"`
	Errors    uint64 `json:"errors"`
}

// ExchangeJSON is the JSON representation of the latest exchange.
type ExchangeJSON struct {
	Timestamp string `json:"timestamp"`
	Command   string `json:"command"`
	Response  string `json:"response,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Backend    string            `json:"backend"`
	Pins       map[string]string `json:"pins"`
	Command    string            `json:"command"`
	IntervalMs int64             `json:"interval_ms"`
	Broker     string            `json:"broker"`
	HTTPAddr   string            `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Session:       snap.Session,
		Open:          snap.Open,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:        CountsJSON{Exchanges: snap.Exchanges, Errors: snap.Errors},
		Config: ConfigJSON{
			Backend:    snap.Config.Backend,
			Pins:       snap.Config.Pins,
			Command:    snap.Config.Command,
			IntervalMs: snap.Config.IntervalMs,
			Broker:     snap.Config.Broker,
			HTTPAddr:   snap.Config.HTTPAddr,
		},
	}
	if snap.Exchanges > 0 {
		last := &ExchangeJSON{
			Timestamp: snap.LastAt.UTC().Format(time.RFC3339),
			Command:   isp.Command(snap.LastCommand).String(),
			Error:     snap.LastError,
		}
		if snap.LastError == "" {
			last.Response = isp.Command(snap.LastResponse).String()
		}
		inner.Last = last
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
