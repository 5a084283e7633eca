package web

import (
	"errors"
	"strconv"
	"time"

	"github.com/dukex/parley/pkg/session"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

const (
	defaultPollWait = 25 * time.Second
	maxPollWait     = 60 * time.Second
)

func (h *APIHandlers) OpenSession(c fiber.Ctx) error {
	var req OpenSessionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	s, err := h.sessions.Open(c.Context(), req.UserID, req.BusinessID)
	if err != nil {
		return handleSessionError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(sessionResponse(s))
}

func (h *APIHandlers) GetSession(c fiber.Ctx) error {
	s, ok := h.sessions.Get(c.Params("userId"))
	if !ok {
		return notFound(c, "session_not_found", "session not found")
	}

	return c.JSON(sessionResponse(s))
}

// PollUpdates long-polls the session of a user. It answers as soon as at least one update
// is queued, or with an empty batch once the wait elapses.
func (h *APIHandlers) PollUpdates(c fiber.Ctx) error {
	s, ok := h.sessions.Get(c.Params("userId"))
	if !ok {
		return notFound(c, "session_not_found", "session not found")
	}

	wait := defaultPollWait
	if waitStr := c.Query("wait"); waitStr != "" {
		parsed, err := time.ParseDuration(waitStr)
		if err != nil || parsed < 0 {
			return badRequest(c, "Invalid wait duration")
		}

		wait = min(parsed, maxPollWait)
	}

	limit := session.DefaultDrainLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return badRequest(c, "Invalid limit")
		}

		limit = parsed
	}

	updates := s.Drain(c.Context(), limit, wait)

	return c.JSON(UpdatesResponse{Updates: updates, Dropped: s.Dropped()})
}

func (h *APIHandlers) CloseSession(c fiber.Ctx) error {
	if !h.sessions.Close(c.Params("userId")) {
		return notFound(c, "session_not_found", "session not found")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func handleSessionError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, session.ErrUserIDRequired), errors.Is(err, session.ErrBusinessIDRequired):
		return badRequest(c, err.Error())
	case errors.Is(err, session.ErrNotStarted):
		problem := problems.NewStatusProblem(503).
			WithInstance(c.Path()).
			WithType("sessions_unavailable").
			WithDetail(err.Error())

		return c.Status(fiber.StatusServiceUnavailable).JSON(problem)
	default:
		return internalError(c, err)
	}
}
