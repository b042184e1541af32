// Package kafka connects the service to Kafka: alerts are published to a
// topic and position fixes can be consumed from one.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/okian/herdwatch/internal/adapters/alerts"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// AlertMessage is the JSON payload published for each alert.
type AlertMessage struct {
	AlertID    string    `json:"alert_id,omitempty"`
	EntityID   string    `json:"entity_id,omitempty"`
	EntityName string    `json:"entity_name,omitempty"`
	Fence      string    `json:"fence,omitempty"`
	Previous   string    `json:"previous,omitempty"`
	Current    string    `json:"current,omitempty"`
	Lat        float64   `json:"lat,omitempty"`
	Lon        float64   `json:"lon,omitempty"`
	Battery    *int      `json:"battery,omitempty"`
	At         time.Time `json:"at,omitzero"`
	Subject    string    `json:"subject"`
	Message    string    `json:"message"`
}

// AlertPublisher is a notify service that writes alerts to a Kafka topic,
// keyed by entity id.
type AlertPublisher struct {
	writer messageWriter
}

// NewAlertPublisher creates a publisher for topic.
func NewAlertPublisher(brokers []string, topic string) *AlertPublisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &AlertPublisher{writer: w}
}

// Send implements notify.Notifier. When the context carries the alert being
// delivered, the payload includes its structured fields.
func (p *AlertPublisher) Send(ctx context.Context, subject, message string) error {
	msg := AlertMessage{Subject: subject, Message: message}
	var key []byte
	if a, ok := alerts.AlertFromContext(ctx); ok {
		ev := a.Event
		msg.AlertID = a.ID
		msg.EntityID = ev.EntityID
		msg.EntityName = ev.EntityName
		msg.Fence = ev.Fence
		msg.Previous = ev.Previous.String()
		msg.Current = ev.Current.String()
		msg.Lat = ev.Position.Lat
		msg.Lon = ev.Position.Lon
		msg.Battery = ev.Battery
		msg.At = ev.At
		key = []byte(ev.EntityID)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafkago.Message{Key: key, Value: data}); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *AlertPublisher) Close() error {
	return p.writer.Close()
}
