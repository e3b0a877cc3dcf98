package fanout

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes fan-out events over core NATS. Delivery is
// at-most-once: no JetStream, no acks. Clients that miss a live event
// recover it from the durable message store on reconnect.
type NATSPublisher struct {
	nc      *nats.Conn
	timeout time.Duration
}

// NewNATSPublisher connects to the given NATS URL.
func NewNATSPublisher(url string, timeout time.Duration) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("loom-fanout"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &NATSPublisher{nc: nc, timeout: timeout}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, userID string, evt Event) error {
	data, err := Encode(evt)
	if err != nil {
		return err
	}
	return p.nc.Publish(TopicFor(userID), data)
}

// HealthPing verifies the connection can round-trip to the server.
func (p *NATSPublisher) HealthPing(ctx context.Context) error {
	to := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < to {
			to = d
		}
	}
	return p.nc.FlushTimeout(to)
}

// Close flushes buffered publishes and drops the connection.
func (p *NATSPublisher) Close() {
	_ = p.nc.Drain()
}
