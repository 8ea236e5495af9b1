package dto

import (
	"time"

	"github.com/noah-isme/sma-discipline-api/internal/models"
)

// IncidentCreateRequest describes the payload posted when an incident is logged.
type IncidentCreateRequest struct {
	StudentID      uint   `json:"student_id" validate:"required"`
	Severity       string `json:"severity" validate:"required,oneof=minor moderate major severe"`
	PointDeduction int    `json:"point_deduction" validate:"min=0,max=100"`
	Description    string `json:"description" validate:"required,min=3,max=4000"`
	OccurredAt     string `json:"occurred_at" validate:"omitempty"`
}

// IncidentResponse is the serialized representation of an incident.
type IncidentResponse struct {
	ID             uint       `json:"id"`
	StudentID      uint       `json:"student_id"`
	Severity       string     `json:"severity"`
	PointDeduction int        `json:"point_deduction"`
	Description    string     `json:"description"`
	OccurredAt     time.Time  `json:"occurred_at"`
	Resolved       bool       `json:"resolved"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NewIncidentResponse converts a model into a DTO.
func NewIncidentResponse(incident models.Incident) IncidentResponse {
	return IncidentResponse{
		ID:             incident.ID,
		StudentID:      incident.StudentID,
		Severity:       string(incident.Severity),
		PointDeduction: incident.PointDeduction,
		Description:    incident.Description,
		OccurredAt:     incident.OccurredAt,
		Resolved:       incident.Resolved,
		ResolvedAt:     incident.ResolvedAt,
		CreatedAt:      incident.CreatedAt,
	}
}

// IncidentRecordResult reports the incident together with the placement the
// qualification pass produced, if any.
type IncidentRecordResult struct {
	Incident    IncidentResponse             `json:"incident"`
	MatchedRule *DetentionRuleResponse       `json:"matched_rule,omitempty"`
	Placement   *DetentionAssignmentResponse `json:"placement,omitempty"`
	Queued      *DetentionQueueEntryResponse `json:"queued,omitempty"`
}

// QualifyingStudentResponse is one row of the dashboard qualifying view.
type QualifyingStudentResponse struct {
	StudentID           uint   `json:"student_id"`
	Name                string `json:"name"`
	Class               string `json:"class"`
	OutstandingPoints   int    `json:"outstanding_points"`
	UnresolvedIncidents int    `json:"unresolved_incidents"`
	HasUpcomingSession  bool   `json:"has_upcoming_session"`
}
