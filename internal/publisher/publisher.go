// Package publisher delivers handler results on the shared response channel.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// NullPayload is the sentinel published when a handler produced no value.
const NullPayload = "null"

// ResponseEnvelope is the outer structure written to the response channel.
// CorrelationID is copied verbatim from the triggering request and is the
// only disambiguator; routing pending callers to their response is the
// gateway's concern. Error is set instead of a result when the handler
// failed, so callers do not hang waiting for a correlation id.
type ResponseEnvelope struct {
	CorrelationID string `json:"correlationId"`
	Payload       string `json:"payload"`
	Error         string `json:"error,omitempty"`
}

// MessageWriter exposes the minimal kafka.Writer interface needed here.
type MessageWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
}

// Publisher serializes response envelopes onto one response topic
// regardless of request type.
type Publisher struct {
	writer MessageWriter
}

// New constructs a Publisher over the provided writer.
func New(writer MessageWriter) *Publisher {
	return &Publisher{writer: writer}
}

// NewWriter builds the kafka.Writer for the response topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
}

// Publish wraps the result with the correlation id and writes it out. A nil
// result publishes the null sentinel.
func (p *Publisher) Publish(ctx context.Context, correlationID string, result interface{}) error {
	payload := NullPayload
	if result != nil {
		body, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal response payload: %w", err)
		}
		payload = string(body)
	}

	if err := p.write(ctx, correlationID, ResponseEnvelope{
		CorrelationID: correlationID,
		Payload:       payload,
	}); err != nil {
		return err
	}
	recordPublished()
	return nil
}

// PublishError answers a failed request with an error-tagged envelope
// carrying the original correlation id.
func (p *Publisher) PublishError(ctx context.Context, correlationID string, handlerErr error) error {
	if err := p.write(ctx, correlationID, ResponseEnvelope{
		CorrelationID: correlationID,
		Payload:       NullPayload,
		Error:         handlerErr.Error(),
	}); err != nil {
		return err
	}
	recordErrorPublished()
	return nil
}

func (p *Publisher) write(ctx context.Context, correlationID string, env ResponseEnvelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal response envelope: %w", err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(correlationID),
		Value: value,
	})
}
