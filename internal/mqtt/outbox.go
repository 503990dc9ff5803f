package mqtt

import "log/slog"

// outboundMsg is a formatted exchange report or lifecycle event on its way
// to the broker.
type outboundMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds the reports published while the broker is unreachable. Once
// every slot is taken, each new report overwrites the oldest one, so after a
// long outage the broker still receives the most recent exchanges. The
// caller holds the lock.
type outbox struct {
	slots []outboundMsg
	next  int // slot for the next report
	n     int
	// dropped counts reports overwritten since the last take.
	dropped int
	log     *slog.Logger
}

func newOutbox(size int, log *slog.Logger) *outbox {
	if log == nil {
		log = slog.Default()
	}
	return &outbox{slots: make([]outboundMsg, size), log: log}
}

func (o *outbox) add(msg outboundMsg) {
	if o.n == len(o.slots) {
		if o.dropped == 0 {
			o.log.Warn("mqtt: outbox full, overwriting oldest report", "size", len(o.slots), "topic", o.slots[o.next].topic)
		}
		o.dropped++
	} else {
		o.n++
	}
	o.slots[o.next] = msg
	o.next = (o.next + 1) % len(o.slots)
}

// take empties the outbox. It returns the waiting reports oldest first and
// how many were overwritten while they waited.
func (o *outbox) take() ([]outboundMsg, int) {
	dropped := o.dropped
	o.dropped = 0
	if o.n == 0 {
		return nil, dropped
	}
	first := (o.next - o.n + len(o.slots)) % len(o.slots)
	msgs := make([]outboundMsg, o.n)
	for i := range msgs {
		msgs[i] = o.slots[(first+i)%len(o.slots)]
	}
	o.n, o.next = 0, 0
	return msgs, dropped
}

// putBack returns reports that take handed out but that could not be sent.
func (o *outbox) putBack(msgs []outboundMsg, dropped int) {
	for _, m := range msgs {
		o.add(m)
	}
	o.dropped += dropped
}

func (o *outbox) waiting() int {
	return o.n
}
