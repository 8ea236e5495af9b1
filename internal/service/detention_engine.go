package service

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// ErrStudentNotFound indicates the referenced student does not exist.
var ErrStudentNotFound = errors.New("student not found")

// ErrSessionNotFound indicates the referenced session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionUnavailable indicates the session cannot accept placements
// because it is not scheduled or lies in the past.
var ErrSessionUnavailable = errors.New("session not available for assignment")

// ErrSessionFull signals that a session's capacity was exhausted between the
// availability check and the insert.
var ErrSessionFull = errors.New("session is at capacity")

// Notifier publishes notifications on behalf of the detention core. Failures
// are logged by callers and never abort the triggering operation.
type Notifier interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
}

// LiveBroadcaster pushes best-effort state change events to live observers.
type LiveBroadcaster interface {
	Broadcast(event dto.LiveEvent)
}

// PlacementResult reports where a placement attempt ended up: in a session,
// on the waitlist, or absorbed because the student already holds a pending
// detention.
type PlacementResult struct {
	Assignment   *dto.DetentionAssignmentResponse
	QueueEntry   *dto.DetentionQueueEntryResponse
	QueueCreated bool
	Duplicate    bool
}

// DetentionEngine places qualifying students into capacity-bounded sessions
// and defers overflow to the waitlist.
type DetentionEngine interface {
	// Assign places a student into the given session, or into the earliest
	// available session when req.SessionID is nil. When no session has
	// capacity the student is queued instead.
	Assign(ctx context.Context, req dto.AssignRequest) (PlacementResult, error)
	// AutoAssignBatch fills a session's free slots from globally qualifying
	// students, queueing the overflow. Per-candidate failures are isolated.
	AutoAssignBatch(ctx context.Context, sessionID uint) (dto.AutoAssignResult, error)
	// PlaceInSession inserts the assignment row and notifies the guardian.
	// The occupancy invariant is re-checked immediately before the insert.
	PlaceInSession(ctx context.Context, student models.Student, session models.DetentionSession, reason string, reassigned bool) (models.DetentionAssignment, error)
	// ReassignAfter places the student into the earliest session strictly
	// after the given date, or queues them when none exists.
	ReassignAfter(ctx context.Context, studentID uint, after time.Time, reason string) (PlacementResult, error)
}

type detentionEngine struct {
	sessions      repository.DetentionSessionRepository
	assignments   repository.DetentionAssignmentRepository
	students      repository.StudentRepository
	queue         repository.DetentionQueueRepository
	qualification QualificationService
	notifier      Notifier
	live          LiveBroadcaster
	logger        zerolog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// NewDetentionEngine builds the assignment engine.
func NewDetentionEngine(
	sessions repository.DetentionSessionRepository,
	assignments repository.DetentionAssignmentRepository,
	students repository.StudentRepository,
	queue repository.DetentionQueueRepository,
	qualification QualificationService,
	notifier Notifier,
	live LiveBroadcaster,
	logger zerolog.Logger,
) DetentionEngine {
	return &detentionEngine{
		sessions:      sessions,
		assignments:   assignments,
		students:      students,
		queue:         queue,
		qualification: qualification,
		notifier:      notifier,
		live:          live,
		logger:        logger.With().Str("component", "detention_engine").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/sma-discipline-api/internal/service/detention_engine"),
		now:           time.Now,
	}
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func (e *detentionEngine) Assign(ctx context.Context, req dto.AssignRequest) (PlacementResult, error) {
	ctx, span := e.tracer.Start(ctx, "detention.assign", trace.WithAttributes(
		attribute.Int64("detention.student_id", int64(req.StudentID)),
	))
	defer span.End()

	student, err := e.students.GetByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "student_not_found")
			return PlacementResult{}, ErrStudentNotFound
		}
		return PlacementResult{}, err
	}

	today := startOfDay(e.now())

	// A student may hold at most one pending upcoming detention.
	pending, err := e.assignments.HasPendingUpcoming(ctx, student.ID, today)
	if err != nil {
		return PlacementResult{}, err
	}
	if pending {
		span.SetAttributes(attribute.Bool("detention.duplicate", true))
		return PlacementResult{Duplicate: true}, nil
	}

	reason := req.Reason
	if reason == "" {
		points, pointsErr := e.qualification.OutstandingPoints(ctx, student.ID)
		if pointsErr == nil {
			reason = fmt.Sprintf("%d outstanding demerit points", points)
		}
	}

	if req.SessionID != nil {
		return e.assignToSession(ctx, student, *req.SessionID, reason, today)
	}
	return e.assignToNextAvailable(ctx, student, reason, today)
}

func (e *detentionEngine) assignToSession(ctx context.Context, student models.Student, sessionID uint, reason string, today time.Time) (PlacementResult, error) {
	session, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PlacementResult{}, ErrSessionNotFound
		}
		return PlacementResult{}, err
	}

	if session.Status != models.SessionStatusScheduled || session.Date.Before(today) {
		return PlacementResult{}, ErrSessionUnavailable
	}

	exists, err := e.assignments.ExistsForSession(ctx, student.ID, session.ID)
	if err != nil {
		return PlacementResult{}, err
	}
	if exists {
		return PlacementResult{Duplicate: true}, nil
	}

	assignment, err := e.PlaceInSession(ctx, student, session, reason, false)
	if err != nil {
		if errors.Is(err, ErrSessionFull) {
			return e.enqueueOverflow(ctx, student)
		}
		return PlacementResult{}, err
	}

	response := dto.NewDetentionAssignmentResponse(assignment)
	return PlacementResult{Assignment: &response}, nil
}

func (e *detentionEngine) assignToNextAvailable(ctx context.Context, student models.Student, reason string, from time.Time) (PlacementResult, error) {
	session, err := e.sessions.FirstAvailable(ctx, from)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return e.enqueueOverflow(ctx, student)
		}
		return PlacementResult{}, err
	}

	assignment, err := e.PlaceInSession(ctx, student, session, reason, false)
	if err != nil {
		if errors.Is(err, ErrSessionFull) {
			return e.enqueueOverflow(ctx, student)
		}
		return PlacementResult{}, err
	}

	response := dto.NewDetentionAssignmentResponse(assignment)
	return PlacementResult{Assignment: &response}, nil
}

func (e *detentionEngine) enqueueOverflow(ctx context.Context, student models.Student) (PlacementResult, error) {
	points, err := e.qualification.OutstandingPoints(ctx, student.ID)
	if err != nil {
		points = 0
	}

	entry, created, err := e.queue.InsertPending(ctx, student.ID, points, e.now().UTC())
	if err != nil {
		return PlacementResult{}, err
	}

	if created {
		observability.QueuePendingDepth().Inc()
		e.notifyQueued(ctx, student, entry)
	}

	response := dto.NewDetentionQueueEntryResponse(entry)
	return PlacementResult{QueueEntry: &response, QueueCreated: created}, nil
}

func (e *detentionEngine) PlaceInSession(ctx context.Context, student models.Student, session models.DetentionSession, reason string, reassigned bool) (models.DetentionAssignment, error) {
	// Occupancy is re-read right before the insert; the window between this
	// check and the write is closed by a store-level check in production.
	occupancy, err := e.sessions.Occupancy(ctx, session.ID)
	if err != nil {
		return models.DetentionAssignment{}, err
	}
	if occupancy >= session.MaxCapacity {
		return models.DetentionAssignment{}, ErrSessionFull
	}

	assignment := models.DetentionAssignment{
		SessionID:  session.ID,
		StudentID:  student.ID,
		Status:     models.AssignmentStatusAssigned,
		Reason:     reason,
		Reassigned: reassigned,
	}
	if err := e.assignments.Create(ctx, &assignment); err != nil {
		return models.DetentionAssignment{}, err
	}

	origin := "assign"
	if reassigned {
		origin = "reassign"
	}
	observability.AssignmentsTotal().WithLabelValues(origin).Inc()

	e.logger.Info().
		Uint("student_id", student.ID).
		Uint("session_id", session.ID).
		Bool("reassigned", reassigned).
		Msg("detention assignment created")

	e.notifyPlacement(ctx, student, session, assignment, reassigned)

	if e.live != nil {
		e.live.Broadcast(dto.LiveEvent{
			Kind:         "assignment",
			SessionID:    session.ID,
			AssignmentID: assignment.ID,
			StudentID:    student.ID,
			Status:       string(assignment.Status),
			OccurredAt:   e.now().UTC(),
		})
	}

	return assignment, nil
}

func (e *detentionEngine) ReassignAfter(ctx context.Context, studentID uint, after time.Time, reason string) (PlacementResult, error) {
	student, err := e.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PlacementResult{}, ErrStudentNotFound
		}
		return PlacementResult{}, err
	}

	// Strictly forward in time: never a session on or before the missed date.
	from := startOfDay(after).AddDate(0, 0, 1)
	session, err := e.sessions.FirstAvailable(ctx, from)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return e.enqueueOverflow(ctx, student)
		}
		return PlacementResult{}, err
	}

	assignment, err := e.PlaceInSession(ctx, student, session, reason, true)
	if err != nil {
		if errors.Is(err, ErrSessionFull) {
			return e.enqueueOverflow(ctx, student)
		}
		return PlacementResult{}, err
	}

	response := dto.NewDetentionAssignmentResponse(assignment)
	return PlacementResult{Assignment: &response}, nil
}

func (e *detentionEngine) AutoAssignBatch(ctx context.Context, sessionID uint) (dto.AutoAssignResult, error) {
	ctx, span := e.tracer.Start(ctx, "detention.auto_assign_batch", trace.WithAttributes(
		attribute.Int64("detention.session_id", int64(sessionID)),
	))
	defer span.End()

	session, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "session_not_found")
			return dto.AutoAssignResult{}, ErrSessionNotFound
		}
		return dto.AutoAssignResult{}, err
	}

	today := startOfDay(e.now())
	if session.Status != models.SessionStatusScheduled || session.Date.Before(today) {
		return dto.AutoAssignResult{}, ErrSessionUnavailable
	}

	occupancy, err := e.sessions.Occupancy(ctx, session.ID)
	if err != nil {
		return dto.AutoAssignResult{}, err
	}
	slots := session.MaxCapacity - occupancy
	if slots < 0 {
		slots = 0
	}

	candidates, err := e.qualification.QualifyingStudents(ctx)
	if err != nil {
		return dto.AutoAssignResult{}, err
	}

	blocked, err := e.assignments.StudentIDsWithPendingUpcoming(ctx, today)
	if err != nil {
		return dto.AutoAssignResult{}, err
	}

	result := dto.AutoAssignResult{SessionID: session.ID, Qualifying: len(candidates)}

	for _, candidate := range candidates {
		if _, taken := blocked[candidate.StudentID]; taken {
			result.Skipped++
			continue
		}

		student, err := e.students.GetByID(ctx, candidate.StudentID)
		if err != nil {
			result.Failed++
			e.logger.Warn().Err(err).Uint("student_id", candidate.StudentID).Msg("auto-assign candidate lookup failed")
			continue
		}

		if slots <= 0 {
			placement, err := e.enqueueOverflow(ctx, student)
			if err != nil {
				result.Failed++
				e.logger.Warn().Err(err).Uint("student_id", student.ID).Msg("auto-assign enqueue failed")
				continue
			}
			if placement.QueueCreated {
				result.Queued++
			} else {
				result.Skipped++
			}
			continue
		}

		reason := fmt.Sprintf("%d outstanding demerit points", candidate.TotalPoints)
		if _, err := e.PlaceInSession(ctx, student, session, reason, false); err != nil {
			if errors.Is(err, ErrSessionFull) {
				slots = 0
				placement, qErr := e.enqueueOverflow(ctx, student)
				if qErr != nil {
					result.Failed++
					continue
				}
				if placement.QueueCreated {
					result.Queued++
				} else {
					result.Skipped++
				}
				continue
			}
			result.Failed++
			e.logger.Warn().Err(err).Uint("student_id", student.ID).Msg("auto-assign placement failed")
			continue
		}

		result.Assigned++
		slots--
	}

	e.logger.Info().
		Uint("session_id", session.ID).
		Int("qualifying", result.Qualifying).
		Int("assigned", result.Assigned).
		Int("queued", result.Queued).
		Msg("auto-assign batch completed")

	return result, nil
}

func (e *detentionEngine) notifyPlacement(ctx context.Context, student models.Student, session models.DetentionSession, assignment models.DetentionAssignment, reassigned bool) {
	if e.notifier == nil || student.GuardianUserID == "" {
		return
	}

	category := models.NotificationCategoryDetentionAssigned
	title := "Detention assigned"
	message := fmt.Sprintf("%s has been assigned detention on %s at %s (%s). Reason: %s.",
		student.Name, session.Date.Format("2006-01-02"), session.StartTime, session.Location, assignment.Reason)
	if reassigned {
		category = models.NotificationCategoryDetentionReassigned
		title = "Detention rescheduled"
		message = fmt.Sprintf("%s has been rescheduled to detention on %s at %s (%s).",
			student.Name, session.Date.Format("2006-01-02"), session.StartTime, session.Location)
	}

	if _, err := e.notifier.Publish(ctx, dto.NotificationCreateRequest{
		UserID:   student.GuardianUserID,
		Category: category,
		Title:    title,
		Message:  message,
		Metadata: datatypes.JSONMap{
			"assignment_id": assignment.ID,
			"session_id":    session.ID,
			"student_id":    student.ID,
		},
	}); err != nil {
		e.logger.Warn().Err(err).Uint("student_id", student.ID).Msg("guardian notification failed")
	}
}

func (e *detentionEngine) notifyQueued(ctx context.Context, student models.Student, entry models.DetentionQueueEntry) {
	if e.notifier == nil || student.GuardianUserID == "" {
		return
	}

	if _, err := e.notifier.Publish(ctx, dto.NotificationCreateRequest{
		UserID:   student.GuardianUserID,
		Category: models.NotificationCategoryDetentionQueued,
		Title:    "Detention pending scheduling",
		Message:  fmt.Sprintf("%s qualifies for detention and has been placed on the waiting list. A session will be allocated when capacity opens.", student.Name),
		Metadata: datatypes.JSONMap{
			"queue_entry_id": entry.ID,
			"student_id":     student.ID,
		},
	}); err != nil {
		e.logger.Warn().Err(err).Uint("student_id", student.ID).Msg("queue notification failed")
	}
}
