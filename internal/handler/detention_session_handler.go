package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sma-discipline-api/internal/dto"
	"github.com/noah-isme/sma-discipline-api/internal/service"
	"github.com/noah-isme/sma-discipline-api/internal/utils"
)

// DetentionSessionHandler wires session HTTP routes, including the bulk
// auto-assign and explicit queue processing actions.
type DetentionSessionHandler struct {
	sessions service.SessionService
	engine   service.DetentionEngine
	queue    service.QueueService
	logger   zerolog.Logger
}

// NewDetentionSessionHandler constructs the handler.
func NewDetentionSessionHandler(sessions service.SessionService, engine service.DetentionEngine, queue service.QueueService, logger zerolog.Logger) *DetentionSessionHandler {
	return &DetentionSessionHandler{
		sessions: sessions,
		engine:   engine,
		queue:    queue,
		logger:   logger.With().Str("component", "detention_session_handler").Logger(),
	}
}

// Register attaches session endpoints to the router group.
func (h *DetentionSessionHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Post("", h.create)
	router.Patch("/:id/status", h.updateStatus)
	router.Post("/:id/auto-assign", h.autoAssign)
	router.Post("/:id/process-queue", h.processQueue)
}

func (h *DetentionSessionHandler) list(c *fiber.Ctx) error {
	req := dto.SessionListRequest{
		Status:   c.Query("status"),
		FromDate: c.Query("from_date"),
		ToDate:   c.Query("to_date"),
	}

	sessions, err := h.sessions.List(c.Context(), req)
	if err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "sessions retrieved", sessions)
}

func (h *DetentionSessionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	session, err := h.sessions.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "session not found")
		}
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "session retrieved", session)
}

func (h *DetentionSessionHandler) create(c *fiber.Ctx) error {
	var payload dto.SessionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	sessions, err := h.sessions.Create(c.Context(), payload)
	if err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "sessions created", sessions)
}

func (h *DetentionSessionHandler) updateStatus(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SessionStatusUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	session, err := h.sessions.UpdateStatus(c.Context(), id, payload)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "session not found")
		case errors.Is(err, service.ErrInvalidSessionTransition):
			return utils.SendError(c, fiber.StatusConflict, "invalid session status transition")
		case isValidationError(err):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		default:
			return h.internalError(c, err)
		}
	}

	return utils.SendSuccess(c, "session status updated", session)
}

func (h *DetentionSessionHandler) autoAssign(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.engine.AutoAssignBatch(c.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "session not found")
		case errors.Is(err, service.ErrSessionUnavailable):
			return utils.SendError(c, fiber.StatusConflict, "session not available for assignment")
		default:
			return h.internalError(c, err)
		}
	}

	return utils.SendSuccess(c, "auto-assign completed", result)
}

func (h *DetentionSessionHandler) processQueue(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.queue.Drain(c.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "session not found")
		case errors.Is(err, service.ErrSessionUnavailable):
			return utils.SendError(c, fiber.StatusConflict, "session not available for assignment")
		default:
			return h.internalError(c, err)
		}
	}

	return utils.SendSuccess(c, "queue processed", result)
}

func (h *DetentionSessionHandler) internalError(c *fiber.Ctx, err error) error {
	h.logger.Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
