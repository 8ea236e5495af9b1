package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sma-discipline-api/internal/models"
	"github.com/noah-isme/sma-discipline-api/internal/service"
	"github.com/noah-isme/sma-discipline-api/internal/utils"
)

// DetentionQueueHandler exposes the waitlist listing.
type DetentionQueueHandler struct {
	queue  service.QueueService
	logger zerolog.Logger
}

// NewDetentionQueueHandler constructs the handler.
func NewDetentionQueueHandler(queue service.QueueService, logger zerolog.Logger) *DetentionQueueHandler {
	return &DetentionQueueHandler{
		queue:  queue,
		logger: logger.With().Str("component", "detention_queue_handler").Logger(),
	}
}

// Register attaches queue endpoints to the router group.
func (h *DetentionQueueHandler) Register(router fiber.Router) {
	router.Get("", h.list)
}

func (h *DetentionQueueHandler) list(c *fiber.Ctx) error {
	status := models.QueueEntryStatus(c.Query("status", string(models.QueueEntryStatusPending)))
	if status != models.QueueEntryStatusPending && status != models.QueueEntryStatusAssigned {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid status filter")
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	entries, err := h.queue.List(c.Context(), status, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	return utils.SendSuccess(c, "queue entries retrieved", entries)
}
