package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sma-discipline-api/internal/dto"
	"github.com/noah-isme/sma-discipline-api/internal/service"
	"github.com/noah-isme/sma-discipline-api/internal/utils"
)

// DetentionAssignmentHandler wires manual assignment and attendance routes.
type DetentionAssignmentHandler struct {
	engine     service.DetentionEngine
	attendance service.AttendanceService
	logger     zerolog.Logger
}

// NewDetentionAssignmentHandler constructs the handler.
func NewDetentionAssignmentHandler(engine service.DetentionEngine, attendance service.AttendanceService, logger zerolog.Logger) *DetentionAssignmentHandler {
	return &DetentionAssignmentHandler{
		engine:     engine,
		attendance: attendance,
		logger:     logger.With().Str("component", "detention_assignment_handler").Logger(),
	}
}

// Register attaches assignment endpoints to the router group.
func (h *DetentionAssignmentHandler) Register(router fiber.Router) {
	router.Post("", h.assign)
	router.Patch("/:id/attendance", h.recordAttendance)
}

func (h *DetentionAssignmentHandler) assign(c *fiber.Ctx) error {
	var payload dto.AssignRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.engine.Assign(c.Context(), payload)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrStudentNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "student not found")
		case errors.Is(err, service.ErrSessionNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "session not found")
		case errors.Is(err, service.ErrSessionUnavailable):
			return utils.SendError(c, fiber.StatusConflict, "session not available for assignment")
		case isValidationError(err):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		default:
			return h.internalError(c, err)
		}
	}

	// Duplicate placements are absorbed, not failed: the student already
	// holds a pending detention.
	switch {
	case result.Duplicate:
		return utils.SendSuccess(c, "student already has a pending detention", nil)
	case result.Assignment != nil:
		return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "student assigned to detention", result.Assignment)
	default:
		return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "no session available, student queued", result.QueueEntry)
	}
}

func (h *DetentionAssignmentHandler) recordAttendance(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AttendanceRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.attendance.Record(c.Context(), id, payload)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAssignmentNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "assignment not found")
		case errors.Is(err, service.ErrOutcomeAlreadyRecorded):
			return utils.SendError(c, fiber.StatusConflict, "attendance outcome already recorded")
		case isValidationError(err):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		default:
			return h.internalError(c, err)
		}
	}

	return utils.SendSuccess(c, "attendance recorded", result)
}

func (h *DetentionAssignmentHandler) internalError(c *fiber.Ctx, err error) error {
	h.logger.Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
