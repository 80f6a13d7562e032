package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/engine"
	"github.com/hupe1980/flowmesh/store"
)

// InvokeRequest is the request body for running a workflow.
type InvokeRequest struct {
	Input           string                    `json:"input"`
	EnableStreaming bool                      `json:"enableStreaming"`
	SessionID       string                    `json:"sessionId,omitempty"`
	OutputSchemas   map[string]map[string]any `json:"outputSchemas,omitempty"` // per step id
	OutputSchema    map[string]any            `json:"outputSchema,omitempty"`  // run level
}

// InvokeResponse is the synchronous (non-streaming) invoke result.
type InvokeResponse struct {
	Success bool            `json:"success"`
	Data    *core.RunResult `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Invoke runs a workflow. With enableStreaming the response is a
// text/event-stream of fragment events; otherwise the run result is returned
// as JSON once the run finishes.
// POST /v1/workflows/:workflow_id/invoke
func (h *Handler) Invoke(c echo.Context) error {
	ctx := c.Request().Context()
	workflowID := c.Param("workflow_id")

	var req InvokeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Input == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "input is required"})
	}

	plan, err := h.builder.Build(ctx, workflowID, store.PlanRequest{
		Input:       req.Input,
		SessionID:   req.SessionID,
		CallerID:    c.Request().Header.Get("X-Caller-ID"),
		Streaming:   req.EnableStreaming,
		StepSchemas: req.OutputSchemas,
		RunSchema:   req.OutputSchema,
	})
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "workflow not found"})
	}
	if err != nil {
		h.logger.Error("failed to build plan", "workflow_id", workflowID, "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	handle, err := h.engine.Start(ctx, *plan, req.Input)
	if err != nil {
		h.logger.Error("failed to start run", "workflow_id", workflowID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to start run"})
	}

	if req.EnableStreaming {
		return h.streamRun(c, handle)
	}

	result, runErr := handle.Wait(ctx)
	resp := InvokeResponse{
		Success: runErr == nil,
		Data:    &result,
	}
	if runErr != nil {
		resp.Error = runErr.Error()
	}

	return c.JSON(http.StatusOK, resp)
}

// streamRun encodes the run's fragment events as server-sent events.
func (h *Handler) streamRun(c echo.Context, handle *engine.RunHandle) error {
	ctx := c.Request().Context()

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Run-ID", handle.RunID())
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming unsupported")
	}

	for ev := range h.mux.Drain(ctx, handle) {
		frame := encodeSSE(ev)
		if frame == "" {
			continue
		}
		if _, err := fmt.Fprint(c.Response().Writer, frame); err != nil {
			// Client went away. The run context derives from the request
			// context, so the disconnect also cancels the run.
			h.logger.Warn("sse write failed", "run_id", handle.RunID(), "error", err)
			return nil
		}
		flusher.Flush()
	}

	return nil
}

// CancelRun cancels an active run.
// POST /v1/runs/:run_id/cancel
func (h *Handler) CancelRun(c echo.Context) error {
	runID := c.Param("run_id")

	if err := h.engine.Cancel(runID); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"run_id":    runID,
		"cancelled": true,
	})
}

// encodeSSE renders one fragment event in server-sent-event framing. Token
// and parsed-line events carry the agent name on the id field; function
// calls and errors use named events.
func encodeSSE(ev core.FragmentEvent) string {
	switch e := ev.(type) {
	case core.TokenEvent:
		return fmt.Sprintf("id: %s\ndata: %s\n\n", e.AgentName, e.Text)
	case core.ParsedLineEvent:
		return fmt.Sprintf("id: %s\ndata: %s\n\n", e.AgentName, e.Line)
	case core.FunctionCallEvent:
		payload, err := json.Marshal(map[string]string{
			"step_name": e.StepName,
			"function":  e.Function,
			"args":      e.Args,
			"response":  e.Response,
		})
		if err != nil {
			payload = []byte("{}")
		}
		return fmt.Sprintf("event: function_call\ndata: %s\n\n", payload)
	case core.ErrorEvent:
		return fmt.Sprintf("event: error\ndata: %s\n\n", e.Message)
	case core.EndOfRunEvent:
		return "data: [DONE]\n\n"
	default:
		return ""
	}
}
