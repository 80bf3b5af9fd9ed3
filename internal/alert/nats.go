package alert

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSChannel publishes the alert job as JSON for downstream consumers
// (dashboards, paging bridges).
type NATSChannel struct {
	pub        Publisher
	subject    string
	maxRetries int
}

func NewNATSChannel(pub Publisher, subject string, maxRetries int) *NATSChannel {
	return &NATSChannel{
		pub:        pub,
		subject:    subject,
		maxRetries: maxRetries,
	}
}

func (c *NATSChannel) Name() string { return "nats" }

func (c *NATSChannel) Send(ctx context.Context, j Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return &TransportError{Channel: c.Name(), Err: fmt.Errorf("marshal error: %w", err)}
	}

	err = retry(ctx, c.maxRetries, func() error {
		return c.pub.Publish(c.subject, data)
	})
	if err != nil {
		return &TransportError{Channel: c.Name(), Recipient: c.subject, Err: fmt.Errorf("publish failed after %d retries: %w", c.maxRetries, err)}
	}
	return nil
}
