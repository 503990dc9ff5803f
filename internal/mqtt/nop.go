package mqtt

// NopPublisher discards everything. It stands in when no broker is
// configured.
type NopPublisher struct{}

// Publish discards ex.
func (NopPublisher) Publish(Exchange) error { return nil }

// PublishSystem discards event.
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }

// Close does nothing.
func (NopPublisher) Close() error { return nil }

// IsConnected always reports false.
func (NopPublisher) IsConnected() bool { return false }
