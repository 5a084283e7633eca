package web

import (
	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/services"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) GetConnections(c fiber.Ctx) error {
	connections, err := h.connectionService.List(c.Context(), services.ListConnectionsRequest{
		BusinessID: c.Query("businessId"),
		Kind:       models.ConnectionKind(c.Query("kind")),
		AgentID:    optionalQuery(c, "agentId"),
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(connections)
}

func (h *APIHandlers) GetConnection(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Connection ID is required")
	}

	record, err := h.connectionService.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(record)
}

// RegisterConnection upserts a connection. The body is a connection record whose "kind"
// selects the variant.
func (h *APIHandlers) RegisterConnection(c fiber.Ctx) error {
	var record models.ConnectionRecord
	if err := c.Bind().JSON(&record); err != nil {
		return badRequest(c, "Invalid connection: "+err.Error())
	}

	registered, err := h.connectionService.Register(c.Context(), record.Connection())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(registered)
}

func (h *APIHandlers) UpdateConnectionRouting(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Connection ID is required")
	}

	var req UpdateRoutingRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	updated, err := h.connectionService.UpdateRouting(c.Context(), id, req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) UpdateConnectionStatus(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Connection ID is required")
	}

	var req UpdateStatusRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.connectionService.UpdateStatus(c.Context(), id, req.Status)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteConnection(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Connection ID is required")
	}

	if err := h.connectionService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetEffectiveWorkflow(c fiber.Ctx) error {
	effective, err := h.routingService.EffectiveWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(effective)
}

func (h *APIHandlers) Decide(c fiber.Ctx) error {
	var req DecideRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	decision, err := h.routingService.Decide(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(decision)
}
