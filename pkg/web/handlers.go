// Package web provides HTTP handlers and REST API endpoints for conversation workflows,
// channel connections and realtime sessions.
package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/parley/pkg/services"
	"github.com/dukex/parley/pkg/session"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	workflowService   *services.Workflow
	connectionService *services.Connections
	channelService    *services.Channels
	routingService    *services.Routing
	sessions          *session.Manager
	validator         *validator.Validate
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	connectionService *services.Connections,
	channelService *services.Channels,
	routingService *services.Routing,
	sessions *session.Manager,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService:   workflowService,
		connectionService: connectionService,
		channelService:    channelService,
		routingService:    routingService,
		sessions:          sessions,
		validator:         validator,
	}
}

// Register mounts every API route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Post("/build", h.BuildWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Put("/:id", h.UpdateWorkflow)
	w.Patch("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)

	c := router.Group("/connections")
	c.Get("/", h.GetConnections)
	c.Post("/", h.RegisterConnection)
	c.Get("/:id", h.GetConnection)
	c.Patch("/:id", h.UpdateConnectionRouting)
	c.Patch("/:id/config", h.UpdateConnectionRouting)
	c.Patch("/:id/status", h.UpdateConnectionStatus)
	c.Delete("/:id", h.DeleteConnection)
	c.Get("/:id/routing", h.GetEffectiveWorkflow)
	c.Post("/:id/decide", h.Decide)

	ch := router.Group("/channels")
	ch.Get("/", h.GetChannels)
	ch.Post("/", h.CreateChannel)
	ch.Delete("/:id", h.DeleteChannel)

	if h.sessions != nil {
		s := router.Group("/sessions")
		s.Post("/", h.OpenSession)
		s.Get("/:userId", h.GetSession)
		s.Get("/:userId/updates", h.PollUpdates)
		s.Delete("/:userId", h.CloseSession)
	}

	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Parley API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Parley API is healthy"
		httpStatus = http.StatusOK
	}

	checkers := fiber.Map{"repository": repositoryCheck}
	if h.sessions != nil {
		checkers["sessions"] = strconv.Itoa(h.sessions.Len()) + " open"
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"checkers":  checkers,
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	req, err := parseListWorkflowsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	workflows, err := h.workflowService.List(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflows)
}

// parseListWorkflowsRequest parses the query parameters of a workflow listing.
func parseListWorkflowsRequest(c fiber.Ctx) (*services.ListWorkflowsRequest, error) {
	req := &services.ListWorkflowsRequest{
		BusinessID: c.Query("businessId"),
		AgentID:    optionalQuery(c, "agentId"),
	}

	if activeStr := c.Query("active"); activeStr != "" {
		active, err := strconv.ParseBool(activeStr)
		if err != nil {
			return nil, err
		}

		req.Active = &active
	}

	if includeStr := c.Query("includeUnbound"); includeStr != "" {
		include, err := strconv.ParseBool(includeStr)
		if err != nil {
			return nil, err
		}

		req.IncludeUnbound = include
	}

	return req, nil
}

func optionalQuery(c fiber.Ctx, key string) *string {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil
	}

	return &value
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.Create(c.Context(), req.Workflow())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) BuildWorkflow(c fiber.Ctx) error {
	var req BuildWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.Build(c.Context(), req.Input())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	updated, err := h.workflowService.Update(c.Context(), id, req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.workflowService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(DeleteWorkflowResponse{ID: id})
}
