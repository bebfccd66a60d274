package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func requestMessage(t *testing.T, env RequestEnvelope) kafka.Message {
	t.Helper()
	value, err := json.Marshal(env)
	require.NoError(t, err)
	return kafka.Message{
		Topic: "account_requests",
		Time:  time.Now().UTC(),
		Value: value,
	}
}

func TestDispatcherRoutesAndCommitsOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := requestMessage(t, RequestEnvelope{
		Type:          TypeGetProfileInfo,
		CorrelationID: "c1",
		Payload:       `{"accountId":"acc-1"}`,
	})

	reader := &stubReader{messages: []kafka.Message{msg}, after: contextCanceled}
	handler := &stubHandler{result: "ok"}
	pub := &stubPublisher{}

	dispatcher := NewDispatcher(reader, handler, pub, WithLogger(log.New(testWriter{t}, "", 0)))

	err := dispatcher.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, TypeGetProfileInfo, handler.last.Type)
	require.Equal(t, "c1", handler.last.CorrelationID)
	require.Equal(t, []string{"c1"}, pub.published)
	require.Empty(t, pub.errored)
}

func TestDispatcherAnswersHandlerErrorAndContinues(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	failing := requestMessage(t, RequestEnvelope{
		Type:          TypeLogin,
		CorrelationID: "c-fail",
		Payload:       `{"email":"a@x.com","password":"p"}`,
	})
	healthy := requestMessage(t, RequestEnvelope{
		Type:          TypeLogin,
		CorrelationID: "c-ok",
		Payload:       `{"email":"a@x.com","password":"p"}`,
	})

	reader := &stubReader{messages: []kafka.Message{failing, healthy}, after: contextCanceled}
	handler := &stubHandler{errOnce: errors.New("storage down")}
	pub := &stubPublisher{}

	dispatcher := NewDispatcher(reader, handler, pub, WithLogger(log.New(testWriter{t}, "", 0)))

	err := dispatcher.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// A failing handler must not stop the loop, and the caller is answered
	// with an error-tagged envelope carrying the original correlation id.
	require.Equal(t, 2, handler.calls)
	require.Equal(t, 2, reader.commitCalls)
	require.Equal(t, []string{"c-fail"}, pub.errored)
	require.Equal(t, []string{"c-ok"}, pub.published)
}

func TestDispatcherDropsUnknownTypeWithoutResponse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := requestMessage(t, RequestEnvelope{
		Type:          "delete-account",
		CorrelationID: "c2",
		Payload:       `{}`,
	})

	reader := &stubReader{messages: []kafka.Message{msg}, after: contextCanceled}
	pub := &stubPublisher{}

	dispatcher := NewDispatcher(reader, &stubHandler{err: ErrUnknownType}, pub, WithLogger(log.New(testWriter{t}, "", 0)))

	err := dispatcher.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, reader.commitCalls)
	require.Empty(t, pub.published)
	require.Empty(t, pub.errored)
}

func TestDispatcherCommitsMalformedEnvelopes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{
		messages: []kafka.Message{{Topic: "account_requests", Value: []byte("not json")}},
		after:    contextCanceled,
	}
	handler := &stubHandler{}
	pub := &stubPublisher{}

	dispatcher := NewDispatcher(reader, handler, pub, WithLogger(log.New(testWriter{t}, "", 0)))

	err := dispatcher.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// Malformed messages are committed to avoid poison-pill loops.
	require.Equal(t, 0, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Empty(t, pub.published)
}

func TestDispatcherAnswersEnvelopeMissingType(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{
		messages: []kafka.Message{{Topic: "account_requests", Value: []byte(`{"correlationId":"c-untyped","payload":"{}"}`)}},
		after:    contextCanceled,
	}
	handler := &stubHandler{}
	pub := &stubPublisher{}

	dispatcher := NewDispatcher(reader, handler, pub, WithLogger(log.New(testWriter{t}, "", 0)))

	err := dispatcher.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// The envelope decoded far enough to yield a correlation id, so the
	// caller is answered instead of left to time out.
	require.Equal(t, 0, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, []string{"c-untyped"}, pub.errored)
	require.Empty(t, pub.published)
}

func TestDispatcherHandlerTimeoutAnswersError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := requestMessage(t, RequestEnvelope{
		Type:          TypeGetProfileInfo,
		CorrelationID: "c-slow",
		Payload:       `{"accountId":"acc-1"}`,
	})

	reader := &stubReader{messages: []kafka.Message{msg}, after: contextCanceled}
	handler := &blockingHandler{}
	pub := &stubPublisher{}

	dispatcher := NewDispatcher(reader, handler, pub,
		WithLogger(log.New(testWriter{t}, "", 0)),
		WithHandlerTimeout(10*time.Millisecond))

	err := dispatcher.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// Deadline expiry surfaces as a handler failure: the caller receives an
	// error-tagged envelope and the message is still committed.
	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, []string{"c-slow"}, pub.errored)
	require.Empty(t, pub.published)
}

func TestRunSupervisedRestartsWithEscalatingBackoff(t *testing.T) {
	fetchErr := errors.New("broker unreachable")
	// Two full fetch-failure bursts, then a clean shutdown.
	reader := &flakyReader{failures: 2 * maxFetchFailures, err: fetchErr}

	var buf bytes.Buffer
	dispatcher := NewDispatcher(reader, &stubHandler{}, &stubPublisher{}, WithLogger(log.New(&buf, "", 0)))
	tuneRestartPolicy(dispatcher)
	dispatcher.healthyRun = time.Hour // no Run is long enough to count as healthy

	err := dispatcher.RunSupervised(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 2*maxFetchFailures+1, reader.calls)
	require.Contains(t, buf.String(), "restarting in 1ms")
	require.Contains(t, buf.String(), "restarting in 2ms")
}

func TestRunSupervisedResetsBackoffAfterHealthyRun(t *testing.T) {
	fetchErr := errors.New("broker unreachable")
	reader := &flakyReader{failures: 2 * maxFetchFailures, err: fetchErr}

	var buf bytes.Buffer
	dispatcher := NewDispatcher(reader, &stubHandler{}, &stubPublisher{}, WithLogger(log.New(&buf, "", 0)))
	tuneRestartPolicy(dispatcher)
	dispatcher.healthyRun = 0 // every Run counts as healthy

	err := dispatcher.RunSupervised(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	// Both outages back off from the initial interval instead of the second
	// one continuing the first one's escalation.
	require.Equal(t, 2, strings.Count(buf.String(), "restarting in 1ms"))
	require.NotContains(t, buf.String(), "restarting in 2ms")
}

func tuneRestartPolicy(d *Dispatcher) {
	d.restartPolicy.InitialInterval = time.Millisecond
	d.restartPolicy.RandomizationFactor = 0
	d.restartPolicy.Multiplier = 2
	d.restartPolicy.MaxInterval = 4 * time.Millisecond
	d.restartPolicy.Reset()
}

func TestDispatcherReturnsAfterRepeatedFetchFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetchErr := errors.New("broker unreachable")
	reader := &stubReader{after: func() error { return fetchErr }}

	dispatcher := NewDispatcher(reader, &stubHandler{}, &stubPublisher{}, WithLogger(log.New(testWriter{t}, "", 0)))

	err := dispatcher.Run(ctx)
	require.ErrorIs(t, err, fetchErr)
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
	after       func() error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		if r.after != nil {
			return kafka.Message{}, r.after()
		}
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

func contextCanceled() error { return context.Canceled }

// flakyReader fails a fixed number of fetches, then reports a clean
// shutdown.
type flakyReader struct {
	failures int
	calls    int
	err      error
}

func (r *flakyReader) FetchMessage(context.Context) (kafka.Message, error) {
	r.calls++
	if r.calls <= r.failures {
		return kafka.Message{}, r.err
	}
	return kafka.Message{}, context.Canceled
}

func (r *flakyReader) CommitMessages(context.Context, ...kafka.Message) error { return nil }

func (r *flakyReader) Close() error { return nil }

// blockingHandler waits for its context to expire, simulating a stalled
// storage call.
type blockingHandler struct {
	calls int
}

func (h *blockingHandler) Handle(ctx context.Context, _ RequestEnvelope) (interface{}, error) {
	h.calls++
	<-ctx.Done()
	return nil, ctx.Err()
}

type stubHandler struct {
	calls   int
	err     error
	errOnce error
	result  interface{}
	last    RequestEnvelope
}

func (h *stubHandler) Handle(_ context.Context, env RequestEnvelope) (interface{}, error) {
	h.calls++
	h.last = env
	if h.errOnce != nil {
		err := h.errOnce
		h.errOnce = nil
		return nil, err
	}
	if h.err != nil {
		return nil, h.err
	}
	return h.result, nil
}

type stubPublisher struct {
	published []string
	errored   []string
}

func (p *stubPublisher) Publish(_ context.Context, correlationID string, _ interface{}) error {
	p.published = append(p.published, correlationID)
	return nil
}

func (p *stubPublisher) PublishError(_ context.Context, correlationID string, _ error) error {
	p.errored = append(p.errored, correlationID)
	return nil
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
