package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification categories emitted by the detention core.
const (
	NotificationCategoryDetentionAssigned   = "detention_assigned"
	NotificationCategoryDetentionReassigned = "detention_reassigned"
	NotificationCategoryDetentionAttended   = "detention_attended"
	NotificationCategoryDetentionMissed     = "detention_missed"
	NotificationCategoryDetentionLate       = "detention_late"
	NotificationCategoryDetentionExcused    = "detention_excused"
	NotificationCategoryDetentionQueued     = "detention_queued"
)

// Notification represents an in-app message targeted at a user (guardian or
// administrator). Delivery to external channels is handled elsewhere.
type Notification struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    string            `gorm:"size:64;index" json:"user_id"`
	Category  string            `gorm:"size:64" json:"category"`
	Title     string            `gorm:"size:255" json:"title"`
	Message   string            `gorm:"type:text" json:"message"`
	Metadata  datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	Read      bool              `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
