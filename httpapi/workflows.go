package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/store"
)

// WorkflowRequest is the request body for creating or updating a workflow.
type WorkflowRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreateWorkflow creates a new workflow.
// POST /v1/workflows
func (h *Handler) CreateWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	var req WorkflowRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "name is required"})
	}

	wf := &store.Workflow{
		ID:          core.NewID(),
		Name:        req.Name,
		Description: req.Description,
	}

	if err := h.store.CreateWorkflow(ctx, wf); err != nil {
		h.logger.Error("failed to create workflow", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create workflow"})
	}

	return c.JSON(http.StatusCreated, wf)
}

// ListWorkflows lists all workflows.
// GET /v1/workflows
func (h *Handler) ListWorkflows(c echo.Context) error {
	ctx := c.Request().Context()

	workflows, err := h.store.ListWorkflows(ctx)
	if err != nil {
		h.logger.Error("failed to list workflows", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list workflows"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"workflows": workflows,
	})
}

// GetWorkflow gets a workflow by ID.
// GET /v1/workflows/:workflow_id
func (h *Handler) GetWorkflow(c echo.Context) error {
	ctx := c.Request().Context()
	workflowID := c.Param("workflow_id")

	wf, err := h.store.GetWorkflow(ctx, workflowID)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "workflow not found"})
	}
	if err != nil {
		h.logger.Error("failed to get workflow", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get workflow"})
	}

	return c.JSON(http.StatusOK, wf)
}

// UpdateWorkflow updates a workflow's name and description.
// PATCH /v1/workflows/:workflow_id
func (h *Handler) UpdateWorkflow(c echo.Context) error {
	ctx := c.Request().Context()
	workflowID := c.Param("workflow_id")

	var req WorkflowRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	wf, err := h.store.GetWorkflow(ctx, workflowID)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "workflow not found"})
	}
	if err != nil {
		h.logger.Error("failed to get workflow", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to update workflow"})
	}

	if req.Name != "" {
		wf.Name = req.Name
	}
	if req.Description != "" {
		wf.Description = req.Description
	}

	if err := h.store.UpdateWorkflow(ctx, wf); err != nil {
		h.logger.Error("failed to update workflow", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to update workflow"})
	}

	return c.JSON(http.StatusOK, wf)
}

// DeleteWorkflow removes a workflow and its steps.
// DELETE /v1/workflows/:workflow_id
func (h *Handler) DeleteWorkflow(c echo.Context) error {
	ctx := c.Request().Context()
	workflowID := c.Param("workflow_id")

	err := h.store.DeleteWorkflow(ctx, workflowID)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "workflow not found"})
	}
	if err != nil {
		h.logger.Error("failed to delete workflow", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to delete workflow"})
	}

	return c.NoContent(http.StatusNoContent)
}

// StepRequest is the request body for adding a workflow step.
type StepRequest struct {
	AgentID  string `json:"agent_id"`
	Position int    `json:"position"`
}

// AddStep adds a step to a workflow.
// POST /v1/workflows/:workflow_id/steps
func (h *Handler) AddStep(c echo.Context) error {
	ctx := c.Request().Context()
	workflowID := c.Param("workflow_id")

	var req StepRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.AgentID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "agent_id is required"})
	}

	if _, err := h.store.GetAgent(ctx, req.AgentID); errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "agent not found"})
	} else if err != nil {
		h.logger.Error("failed to get agent", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to add step"})
	}

	step := &store.WorkflowStep{
		ID:         core.NewID(),
		WorkflowID: workflowID,
		AgentID:    req.AgentID,
		Position:   req.Position,
	}

	err := h.store.AddStep(ctx, step)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "workflow not found"})
	}
	if err != nil {
		h.logger.Error("failed to add step", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to add step"})
	}

	return c.JSON(http.StatusCreated, step)
}

// ListSteps lists a workflow's steps in position order.
// GET /v1/workflows/:workflow_id/steps
func (h *Handler) ListSteps(c echo.Context) error {
	ctx := c.Request().Context()
	workflowID := c.Param("workflow_id")

	if _, err := h.store.GetWorkflow(ctx, workflowID); errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "workflow not found"})
	} else if err != nil {
		h.logger.Error("failed to get workflow", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list steps"})
	}

	steps, err := h.store.ListSteps(ctx, workflowID)
	if err != nil {
		h.logger.Error("failed to list steps", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list steps"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"steps": steps,
	})
}

// DeleteStep removes a step from a workflow.
// DELETE /v1/workflows/:workflow_id/steps/:step_id
func (h *Handler) DeleteStep(c echo.Context) error {
	ctx := c.Request().Context()
	stepID := c.Param("step_id")

	err := h.store.DeleteStep(ctx, stepID)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "step not found"})
	}
	if err != nil {
		h.logger.Error("failed to delete step", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to delete step"})
	}

	return c.NoContent(http.StatusNoContent)
}
