package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/urlqueue/urlqueue/internal/job"
)

type Client struct{ nc *nats.Conn }

func Connect(url string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("urlqueue"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &Client{nc: nc}, nil
}

// Close flushes pending messages and closes the connection.
func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}

// SubscribeEvents calls handler for every job event published on subject.
// Messages that are not events are skipped.
func (c *Client) SubscribeEvents(subject string, handler func(ctx context.Context, ev Event)) (*nats.Subscription, error) {
	return c.nc.Subscribe(subject, func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		handler(ctx, ev)
	})
}

// Publisher returns a Publisher sending events to subject.<status>, so
// listeners can subscribe to all events with subject.> or to one status.
func (c *Client) Publisher(subject string) Publisher {
	return &natsPublisher{client: c, subject: subject}
}

type natsPublisher struct {
	client  *Client
	subject string
}

func (p *natsPublisher) Publish(_ context.Context, ev Event) error {
	if err := p.client.PublishJSON(Subject(p.subject, ev.Status), ev); err != nil {
		return fmt.Errorf("publish job %d event: %w", ev.JobID, err)
	}
	return nil
}

// Subject is the subject an event with status is published on.
func Subject(prefix string, status job.Status) string {
	return prefix + "." + string(status)
}
