package web

import "github.com/gofiber/fiber/v3"

func (h *APIHandlers) GetChannels(c fiber.Ctx) error {
	channels, err := h.channelService.List(c.Context(), c.Query("businessId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(channels)
}

func (h *APIHandlers) CreateChannel(c fiber.Ctx) error {
	var req CreateChannelRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	channel, err := h.channelService.Create(c.Context(), req.BusinessID, req.Name)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(channel)
}

func (h *APIHandlers) DeleteChannel(c fiber.Ctx) error {
	if err := h.channelService.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
