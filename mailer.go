package identity

import (
	"context"
	"log"
)

// NoOpMailer discards deliveries. It is the default when no mailer is
// configured, which effectively disables email verification and password
// reset completion.
type NoOpMailer struct{}

// Deliver discards the delivery.
func (NoOpMailer) Deliver(context.Context, Delivery) {}

// ChannelMailer buffers deliveries on a channel, for tests and custom
// transports.
type ChannelMailer struct {
	deliveries chan Delivery
}

// NewChannelMailer creates a ChannelMailer with the given buffer capacity.
func NewChannelMailer(buffer int) *ChannelMailer {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelMailer{deliveries: make(chan Delivery, buffer)}
}

// Deliver blocks until the delivery is buffered or ctx ends.
func (m *ChannelMailer) Deliver(ctx context.Context, d Delivery) {
	select {
	case m.deliveries <- d:
	case <-ctx.Done():
	}
}

// Deliveries exposes the receiving side of the mailer.
func (m *ChannelMailer) Deliveries() <-chan Delivery {
	return m.deliveries
}

// LogMailer writes deliveries to the standard logger, without the token
// itself. Development use only.
type LogMailer struct{}

// Deliver logs the recipient and purpose.
func (LogMailer) Deliver(_ context.Context, d Delivery) {
	log.Printf("identity: token delivery purpose=%s to=%s", d.Purpose, d.Email)
}
