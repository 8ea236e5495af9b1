package models

import "time"

// RuleActionType selects how a detention rule inspects a student's record.
type RuleActionType string

const (
	RuleActionPointsThreshold RuleActionType = "points_threshold"
	RuleActionIncidentCount   RuleActionType = "incident_count"
	RuleActionSeverityMatch   RuleActionType = "severity_match"
)

// DetentionRule describes a qualification criterion. Rules are evaluated in
// ascending MinPoints order and the first match wins.
type DetentionRule struct {
	ID                       uint             `gorm:"primaryKey" json:"id"`
	Name                     string           `gorm:"size:255;not null" json:"name"`
	ActionType               RuleActionType   `gorm:"size:32;not null" json:"action_type"`
	MinPoints                int              `gorm:"not null;default:0" json:"min_points"`
	MaxPoints                *int             `json:"max_points,omitempty"`
	Severity                 IncidentSeverity `gorm:"size:32" json:"severity,omitempty"`
	TimePeriodDays           int              `gorm:"not null;default:30" json:"time_period_days"`
	DetentionDurationMinutes int              `gorm:"not null;default:60" json:"detention_duration_minutes"`
	Active                   bool             `gorm:"not null;default:true;index" json:"active"`
	CreatedAt                time.Time        `json:"created_at"`
	UpdatedAt                time.Time        `json:"updated_at"`
}

// SessionStatus enumerates the forward-only session lifecycle.
type SessionStatus string

const (
	SessionStatusScheduled  SessionStatus = "scheduled"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusCancelled  SessionStatus = "cancelled"
)

// DetentionSession is a capacity-bounded detention time slot.
type DetentionSession struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	Date            time.Time     `gorm:"index;not null" json:"date"`
	StartTime       string        `gorm:"size:8;not null" json:"start_time"`
	DurationMinutes int           `gorm:"not null;default:60" json:"duration_minutes"`
	Location        string        `gorm:"size:255" json:"location"`
	Supervisor      string        `gorm:"size:255" json:"supervisor"`
	MaxCapacity     int           `gorm:"not null" json:"max_capacity"`
	Status          SessionStatus `gorm:"size:32;default:scheduled;index" json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`

	Assignments []DetentionAssignment `gorm:"foreignKey:SessionID" json:"assignments,omitempty"`
}

// AssignmentStatus enumerates attendance outcomes. All outcomes are terminal
// for the assignment row; reassignment creates a new row.
type AssignmentStatus string

const (
	AssignmentStatusAssigned  AssignmentStatus = "assigned"
	AssignmentStatusAttended  AssignmentStatus = "attended"
	AssignmentStatusAbsent    AssignmentStatus = "absent"
	AssignmentStatusLate      AssignmentStatus = "late"
	AssignmentStatusExcused   AssignmentStatus = "excused"
	AssignmentStatusDismissed AssignmentStatus = "dismissed"
)

// CountsTowardCapacity reports whether an assignment in this status occupies
// a seat in its session.
func (s AssignmentStatus) CountsTowardCapacity() bool {
	switch s {
	case AssignmentStatusAssigned, AssignmentStatusAttended, AssignmentStatusLate:
		return true
	}
	return false
}

// Pending reports whether the assignment still awaits an attendance outcome
// that blocks further placements for the student.
func (s AssignmentStatus) Pending() bool {
	return s == AssignmentStatusAssigned || s == AssignmentStatusLate
}

// DetentionAssignment links one student to one session. Rows are append-only:
// attendance outcomes update Status once, and any follow-up placement is a
// new row so the history survives.
type DetentionAssignment struct {
	ID         uint             `gorm:"primaryKey" json:"id"`
	SessionID  uint             `gorm:"index;not null" json:"session_id"`
	StudentID  uint             `gorm:"index;not null" json:"student_id"`
	Status     AssignmentStatus `gorm:"size:32;default:assigned;index" json:"status"`
	Reason     string           `gorm:"size:255" json:"reason"`
	Notes      string           `gorm:"type:text" json:"notes"`
	Reassigned bool             `gorm:"not null;default:false" json:"reassigned"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`

	Session *DetentionSession `json:"session,omitempty"`
	Student *Student          `json:"student,omitempty"`
}

// QueueEntryStatus enumerates waitlist states.
type QueueEntryStatus string

const (
	QueueEntryStatusPending  QueueEntryStatus = "pending"
	QueueEntryStatusAssigned QueueEntryStatus = "assigned"
)

// DetentionQueueEntry is a waitlisted placement for a qualifying student when
// no session had capacity. Entries are never deleted; the pending→assigned
// transition happens exactly once, preserving wait-time history. The partial
// unique index on student_id caps each student at one pending entry while
// leaving settled history untouched.
type DetentionQueueEntry struct {
	ID                uint             `gorm:"primaryKey" json:"id"`
	StudentID         uint             `gorm:"index;not null;uniqueIndex:uniq_queue_student_pending,where:status = 'pending'" json:"student_id"`
	PointsAtQueue     int              `gorm:"not null;default:0" json:"points_at_queue"`
	QueuedAt          time.Time        `gorm:"index;not null" json:"queued_at"`
	Status            QueueEntryStatus `gorm:"size:32;default:pending;index:idx_queue_student_status" json:"status"`
	AssignedSessionID *uint            `json:"assigned_session_id,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`

	Student *Student `json:"student,omitempty"`
}
