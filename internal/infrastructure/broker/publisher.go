package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ersonp/kin-core/internal/domain/entities"
)

// Publisher implements ports.EventPublisher on Redis pub/sub.
type Publisher struct {
	client  redis.UniversalClient
	channel string
}

// NewPublisher creates a new Publisher.
func NewPublisher(client redis.UniversalClient, channel string) *Publisher {
	if channel == "" {
		channel = "kin:events"
	}
	return &Publisher{client: client, channel: channel}
}

// Publish sends the event as JSON on the events channel.
func (p *Publisher) Publish(ctx context.Context, event entities.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publishing %s: %w", event.Type, err)
	}
	return nil
}

// Channel returns the pub/sub channel events are sent on.
func (p *Publisher) Channel() string {
	return p.channel
}

// LogPublisher implements ports.EventPublisher by logging events.
// It is used when no Redis server is configured.
type LogPublisher struct {
	log *logrus.Entry
}

// NewLogPublisher creates a new LogPublisher.
func NewLogPublisher(log *logrus.Entry) *LogPublisher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LogPublisher{log: log.WithField("component", "events")}
}

// Publish logs the event.
func (p *LogPublisher) Publish(_ context.Context, event entities.Event) error {
	fields := logrus.Fields{
		"type":    event.Type,
		"subject": event.SubjectID,
		"object":  event.ObjectID,
	}
	if event.Code != "" {
		fields["code"] = event.Code
	}
	p.log.WithFields(fields).Info("Event")
	return nil
}
