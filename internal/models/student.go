package models

import "time"

// StudentStatus enumerates enrolment states.
type StudentStatus string

const (
	StudentStatusActive   StudentStatus = "active"
	StudentStatusInactive StudentStatus = "inactive"
)

// Student represents a learner tracked by the discipline system. The record
// is owned by the school administration service; this API only reads it.
type Student struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	Name           string        `gorm:"size:255;not null" json:"name"`
	Email          string        `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Class          string        `gorm:"size:64;index" json:"class"`
	GuardianUserID string        `gorm:"size:64;index" json:"guardian_user_id"`
	Status         StudentStatus `gorm:"size:32;default:active" json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
