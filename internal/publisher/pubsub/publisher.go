// Package pubsub publishes run summaries to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"google.golang.org/api/option"

	"github.com/JakeFAU/catalog-ingest/internal/telemetry"
)

// Sender is the part of *pubsub.Publisher used here.
type Sender interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// Publisher wraps a Pub/Sub topic publisher.
type Publisher struct {
	sender Sender
	stop   func()
}

// New creates a Publisher for the provided topic publisher.
func New(sender Sender) *Publisher {
	return &Publisher{sender: sender}
}

// Dial opens a client for projectID and binds it to topic. Close releases both.
func Dial(ctx context.Context, projectID, topic string, opts ...option.ClientOption) (*Publisher, error) {
	if projectID == "" || topic == "" {
		return nil, fmt.Errorf("pubsub project and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	p := client.Publisher(topic)
	return &Publisher{
		sender: p,
		stop: func() {
			p.Stop()
			_ = client.Close()
		},
	}, nil
}

// Publish marshals the payload to JSON and waits for the server id. The
// event name is carried as the "event" attribute next to the trace context.
func (p *Publisher) Publish(ctx context.Context, event string, payload any) (string, error) {
	if p == nil || p.sender == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data, Attributes: map[string]string{"event": event}}
	telemetry.Inject(ctx, msg.Attributes)

	id, err := p.sender.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close flushes pending messages and closes the client when Dial created it.
func (p *Publisher) Close() {
	if p != nil && p.stop != nil {
		p.stop()
	}
}
