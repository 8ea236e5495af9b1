package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/sma-discipline-api/internal/dto"
	"github.com/noah-isme/sma-discipline-api/internal/models"
	"github.com/noah-isme/sma-discipline-api/internal/observability"
	"github.com/noah-isme/sma-discipline-api/internal/repository"
)

// ErrAssignmentNotFound indicates the referenced assignment does not exist.
var ErrAssignmentNotFound = errors.New("assignment not found")

// ErrOutcomeAlreadyRecorded indicates the assignment already carries a
// terminal attendance outcome.
var ErrOutcomeAlreadyRecorded = errors.New("attendance outcome already recorded")

// AttendanceService applies attendance outcomes to assignments. Every
// outcome is terminal for the row; absences trigger a best-effort forward
// reassignment and attendance settles the student's demerit debt.
type AttendanceService interface {
	Record(ctx context.Context, assignmentID uint, req dto.AttendanceRequest) (dto.AttendanceResult, error)
}

type attendanceService struct {
	assignments  repository.DetentionAssignmentRepository
	incidents    repository.IncidentRepository
	students     repository.StudentRepository
	engine       DetentionEngine
	notifier     Notifier
	live         LiveBroadcaster
	validator    *validator.Validate
	sanitizer    *bluemonday.Policy
	adminUserIDs []string
	logger       zerolog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

// NewAttendanceService builds the attendance state machine. adminUserIDs
// receive escalation notices for absences and dismissals.
func NewAttendanceService(
	assignments repository.DetentionAssignmentRepository,
	incidents repository.IncidentRepository,
	students repository.StudentRepository,
	engine DetentionEngine,
	notifier Notifier,
	live LiveBroadcaster,
	validate *validator.Validate,
	adminUserIDs []string,
	logger zerolog.Logger,
) AttendanceService {
	return &attendanceService{
		assignments:  assignments,
		incidents:    incidents,
		students:     students,
		engine:       engine,
		notifier:     notifier,
		live:         live,
		validator:    validate,
		sanitizer:    bluemonday.StrictPolicy(),
		adminUserIDs: adminUserIDs,
		logger:       logger.With().Str("component", "attendance_service").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/sma-discipline-api/internal/service/attendance"),
		now:          time.Now,
	}
}

func (s *attendanceService) Record(ctx context.Context, assignmentID uint, req dto.AttendanceRequest) (dto.AttendanceResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AttendanceResult{}, err
	}

	ctx, span := s.tracer.Start(ctx, "detention.record_attendance", trace.WithAttributes(
		attribute.Int64("detention.assignment_id", int64(assignmentID)),
		attribute.String("detention.outcome", req.Outcome),
	))
	defer span.End()

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "assignment_not_found")
			return dto.AttendanceResult{}, ErrAssignmentNotFound
		}
		return dto.AttendanceResult{}, err
	}

	if assignment.Status != models.AssignmentStatusAssigned {
		span.SetStatus(codes.Error, "outcome_already_recorded")
		return dto.AttendanceResult{}, ErrOutcomeAlreadyRecorded
	}

	outcome := models.AssignmentStatus(req.Outcome)
	notes := strings.TrimSpace(s.sanitizer.Sanitize(req.Notes))

	// The status write is the primary operation. Everything after it is
	// best-effort and must not undo or fail it.
	updated, err := s.assignments.UpdateOutcome(ctx, assignment.ID, outcome, notes)
	if err != nil {
		return dto.AttendanceResult{}, err
	}

	observability.AttendanceOutcomesTotal().WithLabelValues(string(outcome)).Inc()

	if s.live != nil {
		s.live.Broadcast(dto.LiveEvent{
			Kind:         "assignment",
			SessionID:    updated.SessionID,
			AssignmentID: updated.ID,
			StudentID:    updated.StudentID,
			Status:       string(outcome),
			OccurredAt:   s.now().UTC(),
		})
	}

	result := dto.AttendanceResult{Assignment: dto.NewDetentionAssignmentResponse(updated)}

	student, studentErr := s.students.GetByID(ctx, updated.StudentID)
	if studentErr != nil {
		s.logger.Warn().Err(studentErr).Uint("student_id", updated.StudentID).Msg("student lookup failed after attendance update")
		return result, nil
	}

	switch outcome {
	case models.AssignmentStatusAttended:
		s.settleDebt(ctx, student)
		s.notifyGuardian(ctx, student, models.NotificationCategoryDetentionAttended,
			"Detention completed",
			fmt.Sprintf("%s attended the detention session and outstanding incidents have been resolved.", student.Name),
			updated)

	case models.AssignmentStatusLate:
		s.notifyGuardian(ctx, student, models.NotificationCategoryDetentionLate,
			"Late arrival at detention",
			fmt.Sprintf("%s arrived late to the detention session.", student.Name),
			updated)

	case models.AssignmentStatusExcused:
		s.notifyGuardian(ctx, student, models.NotificationCategoryDetentionExcused,
			"Detention absence excused",
			fmt.Sprintf("%s was excused from the detention session.", student.Name),
			updated)

	case models.AssignmentStatusAbsent, models.AssignmentStatusDismissed:
		result = s.handleMissed(ctx, student, updated, result)
	}

	return result, nil
}

// settleDebt resolves the student's unresolved point-bearing incidents.
// Repeated calls are no-ops, so the session completion sweep can run it again.
func (s *attendanceService) settleDebt(ctx context.Context, student models.Student) {
	resolved, err := s.incidents.ResolveAllForStudent(ctx, student.ID, s.now().UTC())
	if err != nil {
		s.logger.Error().Err(err).Uint("student_id", student.ID).Msg("failed to resolve incidents after attendance")
		return
	}
	if resolved > 0 {
		s.logger.Info().Uint("student_id", student.ID).Int64("incidents", resolved).Msg("incidents resolved after served detention")
	}
}

func (s *attendanceService) handleMissed(ctx context.Context, student models.Student, assignment models.DetentionAssignment, result dto.AttendanceResult) dto.AttendanceResult {
	missedDate := s.now()
	if assignment.Session != nil {
		missedDate = assignment.Session.Date
	}

	// Reassignment is best-effort; a failure here never unwinds the recorded
	// outcome.
	placement, err := s.engine.ReassignAfter(ctx, student.ID, missedDate, "missed detention on "+missedDate.Format("2006-01-02"))
	if err != nil {
		s.logger.Warn().Err(err).Uint("student_id", student.ID).Msg("reassignment after missed detention failed")
	} else {
		result.Reassignment = placement.Assignment
		result.Queued = placement.QueueEntry
	}

	message := fmt.Sprintf("%s missed the detention session on %s.", student.Name, missedDate.Format("2006-01-02"))
	if result.Reassignment != nil {
		message += " A replacement session has been scheduled."
	} else if result.Queued != nil {
		message += " They have been placed on the waiting list for the next available session."
	}
	s.notifyGuardian(ctx, student, models.NotificationCategoryDetentionMissed, "Detention missed", message, assignment)

	for _, adminID := range s.adminUserIDs {
		if _, err := s.notifier.Publish(ctx, dto.NotificationCreateRequest{
			UserID:   adminID,
			Category: models.NotificationCategoryDetentionMissed,
			Title:    "Detention missed",
			Message:  fmt.Sprintf("%s (class %s) missed detention on %s.", student.Name, student.Class, missedDate.Format("2006-01-02")),
			Metadata: datatypes.JSONMap{
				"assignment_id": assignment.ID,
				"student_id":    student.ID,
			},
		}); err != nil {
			s.logger.Warn().Err(err).Str("admin_id", adminID).Msg("admin escalation notification failed")
		}
	}

	return result
}

func (s *attendanceService) notifyGuardian(ctx context.Context, student models.Student, category, title, message string, assignment models.DetentionAssignment) {
	if s.notifier == nil || student.GuardianUserID == "" {
		return
	}

	if _, err := s.notifier.Publish(ctx, dto.NotificationCreateRequest{
		UserID:   student.GuardianUserID,
		Category: category,
		Title:    title,
		Message:  message,
		Metadata: datatypes.JSONMap{
			"assignment_id": assignment.ID,
			"session_id":    assignment.SessionID,
			"student_id":    student.ID,
		},
	}); err != nil {
		s.logger.Warn().Err(err).Uint("student_id", student.ID).Msg("guardian notification failed")
	}
}
