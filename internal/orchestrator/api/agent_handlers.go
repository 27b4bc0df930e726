package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"agent-orchestration-service/internal/models"
	"agent-orchestration-service/internal/orchestrator/events"
	"agent-orchestration-service/internal/orchestrator/services"
)

// Orchestrator is the service surface the handlers call.
type Orchestrator interface {
	DispatchManual(ctx context.Context, agentType, userID string, input map[string]any) (models.Result, error)
	GetAgentStatus(ctx context.Context, agentType string) (*services.AgentStatus, bool, error)
	GetAllAgentsStatus(ctx context.Context) ([]services.AgentStatus, error)
	GetUserHistory(ctx context.Context, userID string, limit int) ([]services.TaskView, error)
	StopAll()
	Restart() error
	TimerCount() int
	InFlight() int64
}

// Queue accepts dispatches to be run by a worker.
type Queue interface {
	Enqueue(ctx context.Context, req events.DispatchRequest) (string, error)
}

type AgentHandler struct {
	Orchestrator Orchestrator
	Queue        Queue // nil disables queued dispatch
}

func NewAgentHandler(o Orchestrator, q Queue) *AgentHandler {
	return &AgentHandler{Orchestrator: o, Queue: q}
}

type DispatchRequest struct {
	UserID string         `json:"userId"`
	Input  map[string]any `json:"input"`
	Async  bool           `json:"async"`
}

// statusFor maps an orchestration error to an HTTP status.
func statusFor(err error) int {
	switch models.KindOf(err) {
	case models.KindAgentNotFound:
		return http.StatusNotFound
	case models.KindAgentInactive:
		return http.StatusConflict
	case models.KindInvalidInput:
		return http.StatusBadRequest
	case models.KindInterrupted:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(c *app.RequestContext, err error) {
	c.JSON(statusFor(err), utils.H{"error": err.Error(), "kind": models.KindOf(err)})
}

// Dispatch runs an agent for one user. With async=true and a queue configured, the
// request is queued and 202 is returned.
func (h *AgentHandler) Dispatch(ctx context.Context, c *app.RequestContext) {
	agentType := c.Param("type")
	var req DispatchRequest
	if err := c.Bind(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, utils.H{"error": "userId is required", "kind": models.KindInvalidInput})
		return
	}

	if req.Async {
		if h.Queue == nil {
			c.JSON(http.StatusBadRequest, utils.H{"error": "queued dispatch is not configured"})
			return
		}
		id, err := h.Queue.Enqueue(ctx, events.DispatchRequest{AgentType: agentType, UserID: req.UserID, Input: req.Input})
		if err != nil {
			hlog.CtxErrorf(ctx, "failed to queue dispatch for %s: %v", agentType, err)
			c.JSON(http.StatusBadGateway, utils.H{"error": "Failed to queue dispatch: " + err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, utils.H{"requestId": id})
		return
	}

	res, err := h.Orchestrator.DispatchManual(ctx, agentType, req.UserID, req.Input)
	if err != nil {
		if res.TaskID != "" {
			c.JSON(statusFor(err), utils.H{"error": err.Error(), "kind": models.KindOf(err), "taskId": res.TaskID})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *AgentHandler) GetAgents(ctx context.Context, c *app.RequestContext) {
	statuses, err := h.Orchestrator.GetAllAgentsStatus(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, statuses)
}

func (h *AgentHandler) GetAgent(ctx context.Context, c *app.RequestContext) {
	status, ok, err := h.Orchestrator.GetAgentStatus(ctx, c.Param("type"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, utils.H{"error": "Agent not found", "kind": models.KindAgentNotFound})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *AgentHandler) GetUserHistory(ctx context.Context, c *app.RequestContext) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}
	history, err := h.Orchestrator.GetUserHistory(ctx, c.Param("id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}
