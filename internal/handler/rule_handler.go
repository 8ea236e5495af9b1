package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sma-discipline-api/internal/service"
	"github.com/noah-isme/sma-discipline-api/internal/utils"
)

// RuleHandler wires detention rule administration routes.
type RuleHandler struct {
	rules  service.RuleService
	logger zerolog.Logger
}

// NewRuleHandler constructs the handler.
func NewRuleHandler(rules service.RuleService, logger zerolog.Logger) *RuleHandler {
	return &RuleHandler{
		rules:  rules,
		logger: logger.With().Str("component", "rule_handler").Logger(),
	}
}

// Register attaches rule endpoints to the router group.
func (h *RuleHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("", h.create)
	router.Patch("/:id/active", h.setActive)
}

func (h *RuleHandler) list(c *fiber.Ctx) error {
	rules, err := h.rules.List(c.Context())
	if err != nil {
		return h.internalError(c, err)
	}
	return utils.SendSuccess(c, "rules retrieved", rules)
}

func (h *RuleHandler) create(c *fiber.Ctx) error {
	var payload service.RuleCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	rule, err := h.rules.Create(c.Context(), payload)
	if err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "rule created", rule)
}

func (h *RuleHandler) setActive(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload struct {
		Active bool `json:"active"`
	}
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	rule, err := h.rules.SetActive(c.Context(), id, payload.Active)
	if err != nil {
		if errors.Is(err, service.ErrRuleNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "rule not found")
		}
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "rule updated", rule)
}

func (h *RuleHandler) internalError(c *fiber.Ctx, err error) error {
	h.logger.Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
