// Package httpapi provides the HTTP surface: workflow, step and agent CRUD
// plus the invoke endpoint that runs a workflow synchronously or as an SSE
// stream.
package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hupe1980/flowmesh/engine"
	"github.com/hupe1980/flowmesh/logging"
	"github.com/hupe1980/flowmesh/store"
)

// Handler handles HTTP requests.
type Handler struct {
	store   store.Store
	builder *store.PlanBuilder
	engine  *engine.Engine
	mux     *engine.Multiplexer
	logger  logging.Logger
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	Logger logging.Logger
}

// NewHandler creates a handler over the given store and engine.
func NewHandler(s store.Store, eng *engine.Engine, mux *engine.Multiplexer, optFns ...func(o *HandlerOptions)) *Handler {
	opts := HandlerOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Handler{
		store:   s,
		builder: store.NewPlanBuilder(s),
		engine:  eng,
		mux:     mux,
		logger:  opts.Logger,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/workflows", h.CreateWorkflow)
	e.GET("/v1/workflows", h.ListWorkflows)
	e.GET("/v1/workflows/:workflow_id", h.GetWorkflow)
	e.PATCH("/v1/workflows/:workflow_id", h.UpdateWorkflow)
	e.DELETE("/v1/workflows/:workflow_id", h.DeleteWorkflow)

	e.POST("/v1/workflows/:workflow_id/steps", h.AddStep)
	e.GET("/v1/workflows/:workflow_id/steps", h.ListSteps)
	e.DELETE("/v1/workflows/:workflow_id/steps/:step_id", h.DeleteStep)

	e.POST("/v1/agents", h.CreateAgent)
	e.GET("/v1/agents", h.ListAgents)
	e.GET("/v1/agents/:agent_id", h.GetAgent)
	e.DELETE("/v1/agents/:agent_id", h.DeleteAgent)

	e.POST("/v1/workflows/:workflow_id/invoke", h.Invoke)
	e.POST("/v1/runs/:run_id/cancel", h.CancelRun)

	e.GET("/health", h.Health)
}

// Health returns health status.
// GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
