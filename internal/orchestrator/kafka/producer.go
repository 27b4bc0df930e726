package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"agent-orchestration-service/internal/models"
	"agent-orchestration-service/internal/orchestrator/events"
)

const (
	DefaultNotifyTopic   = "agent_task_completed"
	DefaultDispatchTopic = "agent_dispatch_requests"
	DefaultGroupID       = "agent-worker"

	writeTimeout = 10 * time.Second
)

// MessageWriter is the part of *kafka.Writer the producers use.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaProducer(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

// Notifier publishes TaskCompletedEvents as JSON keyed by user id.
type Notifier struct {
	Writer MessageWriter
	now    func() time.Time
}

func NewNotifier(w MessageWriter) *Notifier {
	return &Notifier{Writer: w, now: func() time.Time { return time.Now().UTC() }}
}

func (n *Notifier) Notify(ctx context.Context, userID, agentType string, result models.Result) error {
	event := events.TaskCompletedEvent{
		TaskID:      result.TaskID,
		UserID:      userID,
		AgentType:   agentType,
		Output:      result.Output,
		Warning:     result.Warning,
		CompletedAt: n.now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal completion event: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := n.Writer.WriteMessages(writeCtx, kafka.Message{Key: []byte(userID), Value: payload}); err != nil {
		return fmt.Errorf("failed to publish completion event for task %s: %w", result.TaskID, err)
	}
	return nil
}

func (n *Notifier) Close() error { return n.Writer.Close() }

// LogNotifier stands in for the Kafka notifier when no broker is configured.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (l LogNotifier) Notify(ctx context.Context, userID, agentType string, result models.Result) error {
	l.Log.WithFields(logrus.Fields{"task_id": result.TaskID, "user_id": userID, "agent_type": agentType}).Info("task completed notification")
	return nil
}

// DispatchProducer queues manual dispatches for the worker.
type DispatchProducer struct {
	Writer MessageWriter
}

// Enqueue assigns a request id when missing and publishes the request.
func (p *DispatchProducer) Enqueue(ctx context.Context, req events.DispatchRequest) (string, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	payload, err := EncodeDispatchRequest(req)
	if err != nil {
		return "", err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	msg := kafka.Message{Key: []byte(req.UserID), Value: payload}
	if err := p.Writer.WriteMessages(writeCtx, msg); err != nil {
		return "", fmt.Errorf("failed to queue dispatch %s: %w", req.RequestID, err)
	}
	return req.RequestID, nil
}

func (p *DispatchProducer) Close() error { return p.Writer.Close() }

// EncodeDispatchRequest serializes a request as a protobuf Struct.
func EncodeDispatchRequest(req events.DispatchRequest) ([]byte, error) {
	input := req.Input
	if input == nil {
		input = map[string]any{}
	}
	st, err := structpb.NewStruct(map[string]any{
		"request_id": req.RequestID,
		"agent_type": req.AgentType,
		"user_id":    req.UserID,
		"input":      input,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build dispatch payload: %w", err)
	}
	b, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dispatch payload: %w", err)
	}
	return b, nil
}

// DecodeDispatchRequest is the inverse of EncodeDispatchRequest.
func DecodeDispatchRequest(b []byte) (events.DispatchRequest, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(b, &st); err != nil {
		return events.DispatchRequest{}, fmt.Errorf("failed to unmarshal dispatch payload: %w", err)
	}
	m := st.AsMap()
	req := events.DispatchRequest{}
	req.RequestID, _ = m["request_id"].(string)
	req.AgentType, _ = m["agent_type"].(string)
	req.UserID, _ = m["user_id"].(string)
	if in, ok := m["input"].(map[string]any); ok && len(in) > 0 {
		req.Input = in
	}
	if req.AgentType == "" || req.UserID == "" {
		return req, fmt.Errorf("dispatch payload is missing agent_type or user_id")
	}
	return req, nil
}
