package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/store"
)

// AgentRequest is the request body for creating an agent definition.
type AgentRequest struct {
	Name         string         `json:"name"`
	Model        string         `json:"model"`
	Instructions string         `json:"instructions,omitempty"`
	OutputSchema map[string]any `json:"output_schema,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// CreateAgent creates a new agent definition.
// POST /v1/agents
func (h *Handler) CreateAgent(c echo.Context) error {
	ctx := c.Request().Context()

	var req AgentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "name is required"})
	}
	if req.Model == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "model is required"})
	}

	agent := &store.AgentDef{
		ID:           core.NewID(),
		Name:         req.Name,
		Model:        req.Model,
		Instructions: req.Instructions,
		OutputSchema: req.OutputSchema,
		Metadata:     req.Metadata,
	}

	if err := h.store.CreateAgent(ctx, agent); err != nil {
		h.logger.Error("failed to create agent", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create agent"})
	}

	return c.JSON(http.StatusCreated, agent)
}

// ListAgents lists all agent definitions.
// GET /v1/agents
func (h *Handler) ListAgents(c echo.Context) error {
	ctx := c.Request().Context()

	agents, err := h.store.ListAgents(ctx)
	if err != nil {
		h.logger.Error("failed to list agents", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list agents"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"agents": agents,
	})
}

// GetAgent gets an agent definition by ID.
// GET /v1/agents/:agent_id
func (h *Handler) GetAgent(c echo.Context) error {
	ctx := c.Request().Context()
	agentID := c.Param("agent_id")

	agent, err := h.store.GetAgent(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "agent not found"})
	}
	if err != nil {
		h.logger.Error("failed to get agent", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get agent"})
	}

	return c.JSON(http.StatusOK, agent)
}

// DeleteAgent removes an agent definition.
// DELETE /v1/agents/:agent_id
func (h *Handler) DeleteAgent(c echo.Context) error {
	ctx := c.Request().Context()
	agentID := c.Param("agent_id")

	err := h.store.DeleteAgent(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "agent not found"})
	}
	if err != nil {
		h.logger.Error("failed to delete agent", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to delete agent"})
	}

	return c.NoContent(http.StatusNoContent)
}
