package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"agent-orchestration-service/internal/orchestrator/events"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// DispatchHandler runs one queued dispatch.
type DispatchHandler func(ctx context.Context, req events.DispatchRequest) error

func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        3 * time.Second,
	})
}

// DefaultDrainGrace bounds a running dispatch once the consumer is cancelled.
const DefaultDrainGrace = 30 * time.Second

// DispatchConsumer reads queued dispatch requests and hands them to a handler.
//
// Cancelling the Run context stops reading. A dispatch already handed to the handler
// keeps running on a detached context and is only cancelled DrainGrace after that.
type DispatchConsumer struct {
	Reader     MessageReader
	Handler    DispatchHandler
	Log        logrus.FieldLogger
	DrainGrace time.Duration
}

// Run blocks until ctx is cancelled or the reader is closed.
func (c *DispatchConsumer) Run(ctx context.Context) {
	c.Log.Info("dispatch consumer started")
	for {
		select {
		case <-ctx.Done():
			c.Log.Info("dispatch consumer stopping")
			return
		default:
		}

		readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		msg, err := c.Reader.ReadMessage(readCtx)
		cancel()

		switch {
		case err == nil:
		case errors.Is(err, context.DeadlineExceeded):
			continue
		case errors.Is(err, context.Canceled):
			return
		case errors.Is(err, io.EOF):
			c.Log.Info("kafka reader closed, stopping consumption")
			return
		default:
			c.Log.WithError(err).Error("error reading dispatch request")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		logger := c.Log.WithFields(logrus.Fields{"partition": msg.Partition, "offset": msg.Offset})
		req, err := DecodeDispatchRequest(msg.Value)
		if err != nil {
			logger.WithError(err).Warn("dropping malformed dispatch request")
			continue
		}
		logger = logger.WithFields(logrus.Fields{"request_id": req.RequestID, "agent_type": req.AgentType, "user_id": req.UserID})
		if err := c.handle(ctx, req); err != nil {
			logger.WithError(err).Error("queued dispatch failed")
			continue
		}
		logger.Debug("queued dispatch handled")
	}
}

func (c *DispatchConsumer) handle(ctx context.Context, req events.DispatchRequest) error {
	dispatchCtx, cancel := detach(ctx, c.DrainGrace)
	defer cancel()
	return c.Handler(dispatchCtx, req)
}

// detach returns a context that survives cancellation of parent for grace.
func detach(parent context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	if grace <= 0 {
		grace = DefaultDrainGrace
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(parent, func() {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancel()
		case <-ctx.Done():
		}
	})
	return ctx, func() {
		stop()
		cancel()
	}
}

func (c *DispatchConsumer) Close() error {
	if c.Reader == nil {
		return nil
	}
	return c.Reader.Close()
}
