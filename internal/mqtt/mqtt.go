// Package mqtt publishes command exchanges and lifecycle events, with an
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/gpio-isp/internal/isp"
)

// Topic is the MQTT topic for command exchanges.
const Topic = "isp/gpio/exchanges"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "isp/gpio/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends one command exchange to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(ex Exchange) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Exchange is one command/response round trip.
type Exchange struct {
	Timestamp time.Time
	Session   string
	Seq       uint64
	Command   [4]byte
	Response  [4]byte
	Err       error
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "OFFLINE"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Exchange ExchangePayload `json:"exchange"`
}

// ExchangePayload contains the exchange details. Bytes are formatted as
// space separated hex.
type ExchangePayload struct {
	Timestamp string `json:"timestamp"`
	Session   string `json:"session"`
	Seq       uint64 `json:"seq"`
	Command   string `json:"command"`
	Response  string `json:"response,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FormatPayload creates the JSON payload for an exchange. A failed exchange
// carries the error and no response.
func FormatPayload(ex Exchange) ([]byte, error) {
	p := ExchangePayload{
		Timestamp: ex.Timestamp.UTC().Format(time.RFC3339Nano),
		Session:   ex.Session,
		Seq:       ex.Seq,
		Command:   isp.Command(ex.Command).String(),
	}
	if ex.Err != nil {
		p.Error = ex.Err.Error()
	} else {
		p.Response = isp.Command(ex.Response).String()
	}
	return json.Marshal(Payload{Exchange: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
