// Package consumer provides the request dispatch loop for the account worker.
package consumer

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

// Reader exposes the minimal kafka.Reader interface needed by the dispatcher.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// ResponsePublisher delivers handler results back on the response channel.
type ResponsePublisher interface {
	Publish(ctx context.Context, correlationID string, result interface{}) error
	PublishError(ctx context.Context, correlationID string, handlerErr error) error
}

// Handler receives decoded request envelopes.
type Handler interface {
	Handle(ctx context.Context, env RequestEnvelope) (interface{}, error)
}

// Option configures optional behaviour for the Dispatcher.
type Option func(*Dispatcher)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithHandlerTimeout bounds each handler invocation. Expiry is treated as a
// handler failure and answered with an error response.
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.handlerTimeout = timeout
	}
}

// Dispatcher pulls messages from the request queue, decodes envelopes, and
// routes each to exactly one handler. It is a single logical worker:
// messages are processed strictly sequentially, and cross-worker races are
// resolved by the storage layer, never in process.
type Dispatcher struct {
	reader         Reader
	handler        Handler
	publisher      ResponsePublisher
	logger         *log.Logger
	handlerTimeout time.Duration
	restartPolicy  *backoff.ExponentialBackOff
	healthyRun     time.Duration
}

// Consecutive fetch failures tolerated before Run returns and the
// supervisor applies backoff.
const maxFetchFailures = 5

// A Run outlasting this duration counts as healthy and resets the restart
// backoff, so transient outages days apart start escalating from scratch.
const defaultHealthyRun = time.Minute

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(reader Reader, handler Handler, publisher ResponsePublisher, opts ...Option) *Dispatcher {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0

	d := &Dispatcher{
		reader:        reader,
		handler:       handler,
		publisher:     publisher,
		logger:        log.New(log.Writer(), "[dispatcher] ", log.LstdFlags|log.Lshortfile),
		restartPolicy: policy,
		healthyRun:    defaultHealthyRun,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run starts a blocking loop that processes request messages until the
// context is cancelled. Per-message failures are isolated: decoding and
// handler errors are logged and the loop continues. Repeated fetch failures
// abort the loop so RunSupervised can back off and restart.
func (d *Dispatcher) Run(ctx context.Context) error {
	fetchFailures := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := d.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			fetchFailures++
			d.logger.Printf("fetch error (%d/%d): %v", fetchFailures, maxFetchFailures, err)
			if fetchFailures >= maxFetchFailures {
				return err
			}
			continue
		}
		fetchFailures = 0

		d.process(ctx, msg)

		// The message has been handed to this dispatcher; it must never be
		// visible to a second consumption attempt, whatever the outcome.
		if commitErr := d.reader.CommitMessages(ctx, msg); commitErr != nil {
			d.logger.Printf("commit error (partition=%d, offset=%d): %v", msg.Partition, msg.Offset, commitErr)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, msg kafka.Message) {
	env, err := DecodeRequest(msg.Value)
	if err != nil {
		d.logger.Printf("decode error (partition=%d, offset=%d): %v", msg.Partition, msg.Offset, err)
		recordDecodeError(msg.Topic)
		if env.CorrelationID != "" {
			if pubErr := d.publisher.PublishError(ctx, env.CorrelationID, err); pubErr != nil {
				d.logger.Printf("publish error response failed (correlation_id=%s): %v", env.CorrelationID, pubErr)
			}
		}
		return
	}

	handlerCtx := ctx
	if d.handlerTimeout > 0 {
		var cancel context.CancelFunc
		handlerCtx, cancel = context.WithTimeout(ctx, d.handlerTimeout)
		defer cancel()
	}

	result, err := d.handler.Handle(handlerCtx, env)
	if err != nil {
		if errors.Is(err, ErrUnknownType) {
			// Silently dropped; the caller is responsible for timing out a
			// correlation id that never receives a response.
			d.logger.Printf("unknown request type %q (correlation_id=%s)", env.Type, env.CorrelationID)
			recordUnknownType(env.Type)
			return
		}
		d.logger.Printf("handler error (type=%s, correlation_id=%s): %v", env.Type, env.CorrelationID, err)
		recordHandlerError(env.Type)
		if pubErr := d.publisher.PublishError(ctx, env.CorrelationID, err); pubErr != nil {
			d.logger.Printf("publish error response failed (correlation_id=%s): %v", env.CorrelationID, pubErr)
		}
		return
	}

	if err := d.publisher.Publish(ctx, env.CorrelationID, result); err != nil {
		d.logger.Printf("publish failed (type=%s, correlation_id=%s): %v", env.Type, env.CorrelationID, err)
		recordPublishFailure(env.Type)
		return
	}
	recordProcessed(env.Type, msg.Time)
}

// RunSupervised keeps the consumption loop alive, restarting Run with
// exponential backoff after unexpected termination. A Run that stayed
// healthy for long enough resets the policy, so the next failure backs off
// from the initial interval rather than continuing an old escalation. It
// returns once the context is cancelled.
func (d *Dispatcher) RunSupervised(ctx context.Context) error {
	for {
		started := time.Now()
		err := d.Run(ctx)
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return err
		}

		if time.Since(started) >= d.healthyRun {
			d.restartPolicy.Reset()
		}

		wait := d.restartPolicy.NextBackOff()
		d.logger.Printf("dispatcher stopped unexpectedly: %v (restarting in %s)", err, wait)
		recordRestart()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
