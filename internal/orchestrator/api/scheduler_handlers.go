package api

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"
)

func (h *AgentHandler) StopScheduler(ctx context.Context, c *app.RequestContext) {
	h.Orchestrator.StopAll()
	hlog.CtxInfof(ctx, "all agent timers stopped via API")
	c.JSON(http.StatusOK, utils.H{"timers": h.Orchestrator.TimerCount()})
}

func (h *AgentHandler) RestartScheduler(ctx context.Context, c *app.RequestContext) {
	if err := h.Orchestrator.Restart(); err != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": err.Error(), "timers": h.Orchestrator.TimerCount()})
		return
	}
	c.JSON(http.StatusOK, utils.H{"timers": h.Orchestrator.TimerCount()})
}

func (h *AgentHandler) Ping(ctx context.Context, c *app.RequestContext) {
	c.JSON(http.StatusOK, utils.H{"message": "pong", "inFlight": h.Orchestrator.InFlight()})
}
