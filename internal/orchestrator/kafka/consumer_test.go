package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-orchestration-service/internal/agents"
	"agent-orchestration-service/internal/models"
	"agent-orchestration-service/internal/orchestrator/db/dbtest"
	"agent-orchestration-service/internal/orchestrator/events"
	"agent-orchestration-service/internal/orchestrator/services"
)

// queueReader hands out its messages and then blocks like an idle topic.
type queueReader struct {
	msgs chan kafka.Message
}

func (r *queueReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *queueReader) Close() error { return nil }

type slowAgent struct {
	started chan struct{}
	work    time.Duration
}

func (a *slowAgent) Descriptor() models.AgentDescriptor {
	return models.AgentDescriptor{Type: "Slow", Name: "Slow agent", Active: true}
}

func (a *slowAgent) Execute(ctx context.Context, task models.Task) (models.Result, error) {
	close(a.started)
	select {
	case <-time.After(a.work):
		return models.Succeeded(map[string]any{"done": true}), nil
	case <-ctx.Done():
		return models.Result{}, ctx.Err()
	}
}

func TestDispatchConsumerFinishesRunningDispatchAfterCancel(t *testing.T) {
	repo := dbtest.NewRepository(t)
	agent := &slowAgent{started: make(chan struct{}), work: 200 * time.Millisecond}
	reg, err := agents.NewRegistry(agent)
	require.NoError(t, err)
	log, _ := test.NewNullLogger()
	exec := services.NewExecutor(reg, repo, nil, 1, services.OwnerWorker, log)

	payload, err := EncodeDispatchRequest(events.DispatchRequest{RequestID: "r1", AgentType: "Slow", UserID: "u1"})
	require.NoError(t, err)
	reader := &queueReader{msgs: make(chan kafka.Message, 1)}
	reader.msgs <- kafka.Message{Value: payload}

	var res models.Result
	c := &DispatchConsumer{
		Reader: reader,
		Handler: func(ctx context.Context, req events.DispatchRequest) error {
			var err error
			res, err = exec.Dispatch(ctx, req.AgentType, req.UserID, req.Input)
			return err
		},
		Log:        log,
		DrainGrace: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	<-agent.started
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.True(t, exec.Drain(time.Second))

	require.True(t, res.Success, res.Error)
	row, err := repo.GetTask(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusCompleted), row.Status)
	assert.Empty(t, row.Error)
}

func TestDetachCancelsAfterGrace(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := detach(parent, 30*time.Millisecond)
	defer cancel()

	cancelParent()
	assert.NoError(t, ctx.Err())

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("detached context outlived its grace")
	}
}

func TestDetachReleasedWithoutParentCancel(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	defer cancelParent()
	ctx, cancel := detach(parent, time.Minute)
	cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
