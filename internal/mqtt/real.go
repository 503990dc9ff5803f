package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	outboxSize     = 256
	publishTimeout = 5 * time.Second
)

// RealPublisher publishes to an actual MQTT broker. Reports published while
// the connection is down wait in an outbox and are replayed, oldest first,
// when the client reconnects.
type RealPublisher struct {
	client paho.Client
	log    *slog.Logger

	mu     sync.Mutex
	outbox *outbox
}

// NewRealPublisher creates a publisher for broker. Connecting happens in the
// background and is retried until it succeeds.
func NewRealPublisher(broker, clientID string, log *slog.Logger) *RealPublisher {
	if log == nil {
		log = slog.Default()
	}
	p := &RealPublisher{
		log:    log,
		outbox: newOutbox(outboxSize, log),
	}

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) {
			log.Info("mqtt: connected", "broker", broker)
			go p.flush()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("mqtt: connection lost", "broker", broker, "error", err)
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

// Publish sends an exchange at QoS 0.
func (p *RealPublisher) Publish(ex Exchange) error {
	payload, err := FormatPayload(ex)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.send(outboundMsg{topic: Topic, payload: payload})
}

// PublishSystem sends a system lifecycle event at QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(outboundMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) send(msg outboundMsg) error {
	if !p.client.IsConnectionOpen() {
		p.queue(msg)
		return nil
	}
	if err := p.publish(msg); err != nil {
		p.queue(msg)
		return err
	}
	return nil
}

func (p *RealPublisher) publish(msg outboundMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (p *RealPublisher) queue(msg outboundMsg) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outbox.add(msg)
}

// flush replays the outbox. It stops at the first failure and puts the
// unsent reports back.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	msgs, dropped := p.outbox.take()
	p.mu.Unlock()

	for i, msg := range msgs {
		if err := p.publish(msg); err != nil {
			p.log.Warn("mqtt: replay failed", "pending", len(msgs)-i, "error", err)
			p.mu.Lock()
			p.outbox.putBack(msgs[i:], dropped)
			p.mu.Unlock()
			return
		}
	}
	if len(msgs) > 0 {
		p.log.Info("mqtt: replayed queued reports", "count", len(msgs), "lost", dropped)
	}
}

// Queued returns the number of reports waiting for a connection.
func (p *RealPublisher) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outbox.waiting()
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
