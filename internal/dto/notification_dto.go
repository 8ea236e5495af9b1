package dto

import (
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/sma-discipline-api/internal/models"
)

// NotificationCreateRequest describes the payload to create a notification.
type NotificationCreateRequest struct {
	UserID   string            `json:"user_id" validate:"required,max=64"`
	Category string            `json:"category" validate:"required,max=64"`
	Title    string            `json:"title" validate:"required,min=1,max=255"`
	Message  string            `json:"message" validate:"required,min=1,max=2000"`
	Metadata datatypes.JSONMap `json:"metadata"`
}

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID        uint              `json:"id"`
	UserID    string            `json:"user_id"`
	Category  string            `json:"category"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewNotificationResponse converts a notification model to a DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        model.ID,
		UserID:    model.UserID,
		Category:  model.Category,
		Title:     model.Title,
		Message:   model.Message,
		Metadata:  model.Metadata,
		Read:      model.Read,
		CreatedAt: model.CreatedAt,
	}
}

// NewNotificationResponseSlice converts a slice of models into DTOs.
func NewNotificationResponseSlice(notifications []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(notifications))
	for _, notification := range notifications {
		out = append(out, NewNotificationResponse(notification))
	}
	return out
}

// LiveEvent is broadcast to websocket observers whenever a session or
// assignment changes state. Delivery is best-effort.
type LiveEvent struct {
	Kind         string    `json:"kind"`
	SessionID    uint      `json:"session_id,omitempty"`
	AssignmentID uint      `json:"assignment_id,omitempty"`
	StudentID    uint      `json:"student_id,omitempty"`
	Status       string    `json:"status"`
	OccurredAt   time.Time `json:"occurred_at"`
}
