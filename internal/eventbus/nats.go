package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// EventsStreamName/EventsSubjectBase mirror the teacher's JetStream
// naming for the durable leg of the bus.
const (
	EventsStreamName  = "FACEGUARD_EVENTS"
	EventsSubjectBase = "events"
)

// DurableBus publishes/consumes DomainEvent through a JetStream stream,
// the cross-process leg of the event bus. cmd/gateway only publishes to
// it (through busPublisher); the gateway's WebSocket hub is fed by the
// in-process Bus, and nothing in cmd/gateway calls Consume.
type DurableBus struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// NewDurableBus connects to NATS and opens a JetStream context.
func NewDurableBus(natsURL string) (*DurableBus, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("eventbus: create jetstream context: %w", err)
	}

	return &DurableBus{nc: nc, js: js}, nil
}

// EnsureStream creates the events stream if it doesn't exist, retrying
// while NATS finishes starting up.
func (d *DurableBus) EnsureStream(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:        EventsStreamName,
		Subjects:    []string{EventsSubjectBase + ".>"},
		Retention:   jetstream.InterestPolicy,
		MaxAge:      24 * time.Hour,
		MaxMsgs:     1000000,
		Storage:     jetstream.FileStorage,
		Description: "Durable leg of the domain event bus",
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := d.js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("eventbus: create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
		}
		slog.Warn("eventbus: ensure stream (retrying)", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil
}

// Publish durably publishes evt under a subject keyed by camera ID
// (falling back to "global" for events without one), so a consumer can
// subscribe to a subset of cameras if it chooses to.
func (d *DurableBus) Publish(ctx context.Context, evt DomainEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}

	subject := EventsSubjectBase + ".global"
	if evt.CameraID != nil {
		subject = fmt.Sprintf("%s.%s", EventsSubjectBase, evt.CameraID.String())
	}

	if _, err := d.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("eventbus: publish event: %w", err)
	}
	return nil
}

// EventHandler processes one durably-delivered DomainEvent.
type EventHandler func(ctx context.Context, evt DomainEvent) error

// Consume starts a durable consumer fetch loop delivering DomainEvents
// to handler, grounded on the teacher's queue.Consumer.ConsumeEvents
// fetch-loop-plus-ack pattern.
func (d *DurableBus) Consume(ctx context.Context, consumerName string, handler EventHandler) error {
	stream, err := d.js.Stream(ctx, EventsStreamName)
	if err != nil {
		return fmt.Errorf("eventbus: get stream %s: %w", EventsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: EventsSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("eventbus: create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				var evt DomainEvent
				if err := json.Unmarshal(msg.Data(), &evt); err != nil {
					slog.Error("eventbus: decode durable event", "error", err)
					_ = msg.Nak()
					continue
				}
				if err := handler(ctx, evt); err != nil {
					slog.Error("eventbus: handle durable event", "error", err)
					_ = msg.Nak()
					continue
				}
				_ = msg.Ack()
			}
		}
	}()

	slog.Info("eventbus: durable consumer started", "consumer", consumerName)
	return nil
}

// Close releases the underlying NATS connection.
func (d *DurableBus) Close() {
	d.nc.Close()
}
