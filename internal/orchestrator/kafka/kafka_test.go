package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-orchestration-service/internal/models"
	"agent-orchestration-service/internal/orchestrator/events"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	msgs []kafka.Message
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) Close() error { return nil }

func TestNotifierPublishesCompletionEvent(t *testing.T) {
	w := &fakeWriter{}
	n := NewNotifier(w)

	res := models.Succeeded(map[string]any{"problemId": "p1"})
	res.TaskID = "t1"
	res.Warning = "DuplicateSuggestion"
	require.NoError(t, n.Notify(context.Background(), "u1", "LeetcodeSolver", res))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "u1", string(w.msgs[0].Key))
	var event events.TaskCompletedEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &event))
	assert.Equal(t, "t1", event.TaskID)
	assert.Equal(t, "LeetcodeSolver", event.AgentType)
	assert.Equal(t, "p1", event.Output["problemId"])
	assert.Equal(t, "DuplicateSuggestion", event.Warning)
	assert.False(t, event.CompletedAt.IsZero())

	w.err = errors.New("broker down")
	assert.ErrorContains(t, n.Notify(context.Background(), "u1", "x", res), "broker down")
}

func TestDispatchRequestRoundTrip(t *testing.T) {
	in := events.DispatchRequest{
		RequestID: "r1",
		AgentType: "OpenSourceContributor",
		UserID:    "u1",
		Input:     map[string]any{"queries": []any{"language:go"}},
	}
	b, err := EncodeDispatchRequest(in)
	require.NoError(t, err)
	out, err := DecodeDispatchRequest(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	b, err = EncodeDispatchRequest(events.DispatchRequest{RequestID: "r2", AgentType: "A"})
	require.NoError(t, err)
	_, err = DecodeDispatchRequest(b)
	assert.Error(t, err)
}

func TestDispatchProducerAssignsRequestID(t *testing.T) {
	w := &fakeWriter{}
	p := &DispatchProducer{Writer: w}

	id, err := p.Enqueue(context.Background(), events.DispatchRequest{AgentType: "A", UserID: "u1"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.Len(t, w.msgs, 1)

	req, err := DecodeDispatchRequest(w.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, id, req.RequestID)
	assert.Nil(t, req.Input)
}

func TestDispatchConsumerSkipsMalformedMessages(t *testing.T) {
	good, err := EncodeDispatchRequest(events.DispatchRequest{RequestID: "r1", AgentType: "A", UserID: "u1"})
	require.NoError(t, err)
	failing, err := EncodeDispatchRequest(events.DispatchRequest{RequestID: "r2", AgentType: "B", UserID: "u2"})
	require.NoError(t, err)

	log, hook := test.NewNullLogger()
	var handled []string
	c := &DispatchConsumer{
		Reader: &fakeReader{msgs: []kafka.Message{{Value: []byte("garbage")}, {Value: good}, {Value: failing}}},
		Handler: func(ctx context.Context, req events.DispatchRequest) error {
			handled = append(handled, req.RequestID)
			if req.AgentType == "B" {
				return errors.New("agent failed")
			}
			return nil
		},
		Log: log,
	}
	c.Run(context.Background())

	assert.Equal(t, []string{"r1", "r2"}, handled)
	var messages []string
	for _, e := range hook.AllEntries() {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "dropping malformed dispatch request")
	assert.Contains(t, messages, "queued dispatch failed")
}

func TestLogNotifier(t *testing.T) {
	log, hook := test.NewNullLogger()
	require.NoError(t, LogNotifier{Log: log}.Notify(context.Background(), "u1", "A", models.Result{TaskID: "t1"}))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "t1", hook.LastEntry().Data["task_id"])
}
