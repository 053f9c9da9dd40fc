// Package web provides the REST API over flows and the run control surface.
package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/persistence"
	"github.com/replaykit/replaykit/pkg/protocol"
	"github.com/replaykit/replaykit/pkg/queue"
	"github.com/replaykit/replaykit/pkg/services"
)

type APIHandlers struct {
	flowService *services.Flows
	runService  *services.Runs
	queue       *queue.Queue
	store       persistence.Persistence
	validator   *validator.Validate
}

func NewAPIHandlers(
	flowService *services.Flows,
	runService *services.Runs,
	q *queue.Queue,
	store persistence.Persistence,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		flowService: flowService,
		runService:  runService,
		queue:       q,
		store:       store,
		validator:   validator,
	}
}

// SetupRoutes registers all API routes on the app.
func (h *APIHandlers) SetupRoutes(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	app.Post("/flows", h.CreateFlow)
	app.Get("/flows", h.ListFlows)
	app.Get("/flows/:id", h.GetFlow)
	app.Put("/flows/:id", h.UpdateFlow)
	app.Delete("/flows/:id", h.DeleteFlow)
	app.Post("/flows/:id/execute", h.ExecuteFlow)

	app.Get("/runs/:id", h.GetRun)
	app.Get("/runs/:id/events", h.GetRunEvents)
	app.Post("/runs/:id/pause", h.PauseRun)
	app.Post("/runs/:id/resume", h.ResumeRun)
	app.Post("/runs/:id/cancel", h.CancelRun)

	app.Get("/queue/items", h.ListQueueItems)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.store.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateFlow(c fiber.Ctx) error {
	var req CreateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	flow, err := h.flowService.Create(c.Context(), req.toFlow())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(flow)
}

func (h *APIHandlers) ListFlows(c fiber.Ctx) error {
	flows, err := h.flowService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"flows": flows})
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	flow, err := h.flowService.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) UpdateFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	var req CreateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	flow := req.toFlow()
	flow.ID = id

	updated, err := h.flowService.Update(c.Context(), flow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	if err := h.flowService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ExecuteFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	req := ExecuteFlowRequest{}

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		if err := h.validator.Struct(req); err != nil {
			return badRequest(c, err.Error())
		}
	}

	run, err := h.runService.Execute(c.Context(), protocol.ExecuteRequest{
		FlowID:   id,
		Args:     req.Args,
		Priority: req.Priority,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(ExecuteFlowResponse{
		RunID:  run.ID,
		FlowID: run.FlowID,
		Status: string(run.Status),
	})
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	run, err := h.runService.State(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) GetRunEvents(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	var sinceSeq int64

	if sinceStr := c.Query("since_seq"); sinceStr != "" {
		since, err := strconv.ParseInt(sinceStr, 10, 64)
		if err != nil {
			return badRequest(c, "Invalid since_seq parameter")
		}

		sinceSeq = since
	}

	log, err := h.runService.Events(c.Context(), id, sinceSeq)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"run_id": id, "events": log})
}

func (h *APIHandlers) PauseRun(c fiber.Ctx) error {
	return h.control(c, h.runService.Pause)
}

func (h *APIHandlers) ResumeRun(c fiber.Ctx) error {
	return h.control(c, h.runService.Resume)
}

func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	return h.control(c, h.runService.Cancel)
}

func (h *APIHandlers) control(c fiber.Ctx, op func(ctx context.Context, runID string) error) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	if err := op(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"run_id": id, "accepted": true})
}

func (h *APIHandlers) ListQueueItems(c fiber.Ctx) error {
	status := c.Query("status")

	items, err := h.queue.Items(c.Context(), models.QueueItemStatus(status))
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"items": items})
}
