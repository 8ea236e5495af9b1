package models

import "time"

// IncidentSeverity classifies how serious an incident is.
type IncidentSeverity string

const (
	IncidentSeverityMinor    IncidentSeverity = "minor"
	IncidentSeverityModerate IncidentSeverity = "moderate"
	IncidentSeverityMajor    IncidentSeverity = "major"
	IncidentSeveritySevere   IncidentSeverity = "severe"
)

// Incident records a behaviour infraction and its demerit point deduction.
// Serving a detention resolves the incident and settles its points.
type Incident struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	StudentID      uint             `gorm:"index;not null" json:"student_id"`
	Severity       IncidentSeverity `gorm:"size:32;index" json:"severity"`
	PointDeduction int              `gorm:"not null;default:0" json:"point_deduction"`
	Description    string           `gorm:"type:text" json:"description"`
	OccurredAt     time.Time        `gorm:"index;not null" json:"occurred_at"`
	Resolved       bool             `gorm:"not null;default:false;index" json:"resolved"`
	ResolvedAt     *time.Time       `json:"resolved_at,omitempty"`
	ReportedBy     string           `gorm:"size:64" json:"reported_by"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}
