package api

import "github.com/cloudwego/hertz/pkg/route"

// Register mounts the orchestrator routes on r.
func Register(r *route.Engine, h *AgentHandler) {
	r.GET("/ping", h.Ping)

	agents := r.Group("/agents")
	{
		agents.GET("", h.GetAgents)
		agents.GET("/:type", h.GetAgent)
		agents.POST("/:type/dispatch", h.Dispatch)
	}
	r.GET("/users/:id/history", h.GetUserHistory)

	scheduler := r.Group("/scheduler")
	{
		scheduler.POST("/stop", h.StopScheduler)
		scheduler.POST("/restart", h.RestartScheduler)
	}
}
