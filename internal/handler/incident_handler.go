package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sma-discipline-api/internal/dto"
	"github.com/noah-isme/sma-discipline-api/internal/service"
	"github.com/noah-isme/sma-discipline-api/internal/utils"
)

// IncidentHandler wires incident HTTP routes.
type IncidentHandler struct {
	service service.IncidentService
	logger  zerolog.Logger
}

// NewIncidentHandler constructs the handler.
func NewIncidentHandler(service service.IncidentService, logger zerolog.Logger) *IncidentHandler {
	return &IncidentHandler{
		service: service,
		logger:  logger.With().Str("component", "incident_handler").Logger(),
	}
}

// Register attaches incident endpoints to the router group.
func (h *IncidentHandler) Register(router fiber.Router) {
	router.Post("", h.create)
	router.Get("/students/:id", h.listByStudent)
}

func (h *IncidentHandler) create(c *fiber.Ctx) error {
	var payload dto.IncidentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.Record(c.Context(), payload, userIDStringFromContext(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrStudentNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "student not found")
		case isValidationError(err):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		default:
			return h.internalError(c, err)
		}
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "incident recorded", result)
}

func (h *IncidentHandler) listByStudent(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	incidents, err := h.service.ListByStudent(c.Context(), id, limit)
	if err != nil {
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "incidents retrieved", incidents)
}

func (h *IncidentHandler) internalError(c *fiber.Ctx, err error) error {
	h.logger.Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
