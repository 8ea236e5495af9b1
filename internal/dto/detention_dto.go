package dto

import (
	"time"

	"github.com/noah-isme/sma-discipline-api/internal/models"
)

// DetentionRuleResponse is the serialized representation of a rule.
type DetentionRuleResponse struct {
	ID                       uint   `json:"id"`
	Name                     string `json:"name"`
	ActionType               string `json:"action_type"`
	MinPoints                int    `json:"min_points"`
	MaxPoints                *int   `json:"max_points,omitempty"`
	Severity                 string `json:"severity,omitempty"`
	TimePeriodDays           int    `json:"time_period_days"`
	DetentionDurationMinutes int    `json:"detention_duration_minutes"`
	Active                   bool   `json:"active"`
}

// NewDetentionRuleResponse converts a rule model to a DTO.
func NewDetentionRuleResponse(rule models.DetentionRule) DetentionRuleResponse {
	return DetentionRuleResponse{
		ID:                       rule.ID,
		Name:                     rule.Name,
		ActionType:               string(rule.ActionType),
		MinPoints:                rule.MinPoints,
		MaxPoints:                rule.MaxPoints,
		Severity:                 string(rule.Severity),
		TimePeriodDays:           rule.TimePeriodDays,
		DetentionDurationMinutes: rule.DetentionDurationMinutes,
		Active:                   rule.Active,
	}
}

// SessionCreateRequest describes the payload to create one session or a
// weekly recurring batch.
type SessionCreateRequest struct {
	Date            string `json:"date" validate:"required"`
	StartTime       string `json:"start_time" validate:"required"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,min=15,max=480"`
	Location        string `json:"location" validate:"required,max=255"`
	Supervisor      string `json:"supervisor" validate:"required,max=255"`
	MaxCapacity     int    `json:"max_capacity" validate:"required,min=1,max=500"`
	RepeatWeeks     int    `json:"repeat_weeks" validate:"omitempty,min=0,max=52"`
}

// SessionStatusUpdateRequest moves a session forward in its lifecycle.
type SessionStatusUpdateRequest struct {
	Status string `json:"status" validate:"required,oneof=in_progress completed cancelled"`
}

// SessionListRequest filters the session listing.
type SessionListRequest struct {
	Status   string `query:"status" validate:"omitempty,oneof=scheduled in_progress completed cancelled"`
	FromDate string `query:"from_date"`
	ToDate   string `query:"to_date"`
}

// SessionResponse is the serialized representation of a detention session.
type SessionResponse struct {
	ID              uint      `json:"id"`
	Date            time.Time `json:"date"`
	StartTime       string    `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Location        string    `json:"location"`
	Supervisor      string    `json:"supervisor"`
	MaxCapacity     int       `json:"max_capacity"`
	Status          string    `json:"status"`
	Occupancy       int       `json:"occupancy"`
	AvailableSlots  int       `json:"available_slots"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewSessionResponse converts a session model plus its occupancy to a DTO.
func NewSessionResponse(session models.DetentionSession, occupancy int) SessionResponse {
	free := session.MaxCapacity - occupancy
	if free < 0 {
		free = 0
	}

	return SessionResponse{
		ID:              session.ID,
		Date:            session.Date,
		StartTime:       session.StartTime,
		DurationMinutes: session.DurationMinutes,
		Location:        session.Location,
		Supervisor:      session.Supervisor,
		MaxCapacity:     session.MaxCapacity,
		Status:          string(session.Status),
		Occupancy:       occupancy,
		AvailableSlots:  free,
		CreatedAt:       session.CreatedAt,
	}
}

// AssignRequest places a student into a session, or into the next available
// session when SessionID is omitted.
type AssignRequest struct {
	StudentID uint   `json:"student_id" validate:"required"`
	SessionID *uint  `json:"session_id"`
	Reason    string `json:"reason" validate:"omitempty,max=255"`
}

// AttendanceRequest records the outcome for one assignment.
type AttendanceRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=attended absent late excused dismissed"`
	Notes   string `json:"notes" validate:"omitempty,max=4000"`
}

// DetentionAssignmentResponse is the serialized representation of an assignment.
type DetentionAssignmentResponse struct {
	ID         uint             `json:"id"`
	SessionID  uint             `json:"session_id"`
	StudentID  uint             `json:"student_id"`
	Status     string           `json:"status"`
	Reason     string           `json:"reason,omitempty"`
	Notes      string           `json:"notes,omitempty"`
	Reassigned bool             `json:"reassigned"`
	CreatedAt  time.Time        `json:"created_at"`
	Session    *SessionResponse `json:"session,omitempty"`
}

// NewDetentionAssignmentResponse converts an assignment model to a DTO.
func NewDetentionAssignmentResponse(assignment models.DetentionAssignment) DetentionAssignmentResponse {
	return DetentionAssignmentResponse{
		ID:         assignment.ID,
		SessionID:  assignment.SessionID,
		StudentID:  assignment.StudentID,
		Status:     string(assignment.Status),
		Reason:     assignment.Reason,
		Notes:      assignment.Notes,
		Reassigned: assignment.Reassigned,
		CreatedAt:  assignment.CreatedAt,
	}
}

// AttendanceResult reports the attendance transition and any follow-up the
// state machine produced for an absent or dismissed student.
type AttendanceResult struct {
	Assignment   DetentionAssignmentResponse  `json:"assignment"`
	Reassignment *DetentionAssignmentResponse `json:"reassignment,omitempty"`
	Queued       *DetentionQueueEntryResponse `json:"queued,omitempty"`
}

// DetentionQueueEntryResponse is the serialized representation of a waitlist entry.
type DetentionQueueEntryResponse struct {
	ID                uint      `json:"id"`
	StudentID         uint      `json:"student_id"`
	PointsAtQueue     int       `json:"points_at_queue"`
	QueuedAt          time.Time `json:"queued_at"`
	Status            string    `json:"status"`
	AssignedSessionID *uint     `json:"assigned_session_id,omitempty"`
}

// NewDetentionQueueEntryResponse converts a queue entry model to a DTO.
func NewDetentionQueueEntryResponse(entry models.DetentionQueueEntry) DetentionQueueEntryResponse {
	return DetentionQueueEntryResponse{
		ID:                entry.ID,
		StudentID:         entry.StudentID,
		PointsAtQueue:     entry.PointsAtQueue,
		QueuedAt:          entry.QueuedAt,
		Status:            string(entry.Status),
		AssignedSessionID: entry.AssignedSessionID,
	}
}

// NewDetentionQueueEntryResponseSlice converts a slice of entries into DTOs.
func NewDetentionQueueEntryResponseSlice(entries []models.DetentionQueueEntry) []DetentionQueueEntryResponse {
	out := make([]DetentionQueueEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, NewDetentionQueueEntryResponse(entry))
	}
	return out
}

// AutoAssignResult reports the aggregate outcome of a bulk auto-assign run.
type AutoAssignResult struct {
	SessionID  uint `json:"session_id"`
	Qualifying int  `json:"qualifying"`
	Assigned   int  `json:"assigned"`
	Queued     int  `json:"queued"`
	Skipped    int  `json:"skipped"`
	Failed     int  `json:"failed"`
}

// DrainResult reports the aggregate outcome of a queue drain.
type DrainResult struct {
	SessionID      uint                          `json:"session_id"`
	AvailableSlots int                           `json:"available_slots"`
	Assigned       []DetentionAssignmentResponse `json:"assigned"`
	Failed         int                           `json:"failed"`
}
