package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/sma-discipline-api/internal/dto"
	"github.com/noah-isme/sma-discipline-api/internal/models"
	"github.com/noah-isme/sma-discipline-api/internal/observability"
	"github.com/noah-isme/sma-discipline-api/internal/repository"
)

// QueueService manages the detention waitlist: students who qualified while
// no session had capacity. Draining is strict FIFO on QueuedAt.
type QueueService interface {
	// Enqueue adds a pending entry for the student. Idempotent: an existing
	// pending entry is returned unchanged.
	Enqueue(ctx context.Context, studentID uint, points int) (dto.DetentionQueueEntryResponse, bool, error)
	// Drain fills the session's free slots from the oldest pending entries.
	Drain(ctx context.Context, sessionID uint) (dto.DrainResult, error)
	List(ctx context.Context, status models.QueueEntryStatus, limit int) ([]dto.DetentionQueueEntryResponse, error)
}

type queueService struct {
	queue    repository.DetentionQueueRepository
	sessions repository.DetentionSessionRepository
	students repository.StudentRepository
	engine   DetentionEngine
	logger   zerolog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewQueueService builds the queue manager. The engine performs the actual
// assignment inserts so queue placements share its notification path.
func NewQueueService(
	queue repository.DetentionQueueRepository,
	sessions repository.DetentionSessionRepository,
	students repository.StudentRepository,
	engine DetentionEngine,
	logger zerolog.Logger,
) QueueService {
	return &queueService{
		queue:    queue,
		sessions: sessions,
		students: students,
		engine:   engine,
		logger:   logger.With().Str("component", "queue_service").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/sma-discipline-api/internal/service/queue"),
		now:      time.Now,
	}
}

func (s *queueService) Enqueue(ctx context.Context, studentID uint, points int) (dto.DetentionQueueEntryResponse, bool, error) {
	entry, created, err := s.queue.InsertPending(ctx, studentID, points, s.now().UTC())
	if err != nil {
		return dto.DetentionQueueEntryResponse{}, false, err
	}

	if created {
		observability.QueuePendingDepth().Inc()
		s.logger.Info().Uint("student_id", studentID).Int("points", points).Msg("student queued for detention")
	}

	return dto.NewDetentionQueueEntryResponse(entry), created, nil
}

func (s *queueService) Drain(ctx context.Context, sessionID uint) (dto.DrainResult, error) {
	ctx, span := s.tracer.Start(ctx, "detention.queue_drain", trace.WithAttributes(
		attribute.Int64("detention.session_id", int64(sessionID)),
	))
	defer span.End()

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "session_not_found")
			return dto.DrainResult{}, ErrSessionNotFound
		}
		return dto.DrainResult{}, err
	}

	today := startOfDay(s.now())
	if session.Status != models.SessionStatusScheduled || session.Date.Before(today) {
		return dto.DrainResult{}, ErrSessionUnavailable
	}

	occupancy, err := s.sessions.Occupancy(ctx, session.ID)
	if err != nil {
		return dto.DrainResult{}, err
	}

	slots := session.MaxCapacity - occupancy
	result := dto.DrainResult{SessionID: session.ID, AvailableSlots: slots}
	if slots <= 0 {
		return result, nil
	}

	// Oldest wait wins. Fetch exactly as many entries as there are slots; a
	// per-entry failure releases its slot to no one rather than skipping
	// ahead of the FIFO order.
	entries, err := s.queue.ListPending(ctx, slots)
	if err != nil {
		return dto.DrainResult{}, err
	}

	for _, entry := range entries {
		student, err := s.students.GetByID(ctx, entry.StudentID)
		if err != nil {
			result.Failed++
			s.logger.Warn().Err(err).Uint("student_id", entry.StudentID).Msg("queued student lookup failed")
			continue
		}

		assignment, err := s.engine.PlaceInSession(ctx, student, session, "drained from detention queue", false)
		if err != nil {
			result.Failed++
			s.logger.Warn().Err(err).Uint("student_id", entry.StudentID).Msg("queue drain placement failed")
			if errors.Is(err, ErrSessionFull) {
				break
			}
			continue
		}

		if _, err := s.queue.MarkAssigned(ctx, entry.ID, session.ID); err != nil {
			s.logger.Error().Err(err).Uint("entry_id", entry.ID).Msg("failed to mark queue entry assigned")
		} else {
			observability.QueuePendingDepth().Dec()
		}

		result.Assigned = append(result.Assigned, dto.NewDetentionAssignmentResponse(assignment))
	}

	s.logger.Info().
		Uint("session_id", session.ID).
		Int("slots", slots).
		Int("assigned", len(result.Assigned)).
		Int("failed", result.Failed).
		Msg("detention queue drained")

	return result, nil
}

func (s *queueService) List(ctx context.Context, status models.QueueEntryStatus, limit int) ([]dto.DetentionQueueEntryResponse, error) {
	entries, err := s.queue.List(ctx, status, limit)
	if err != nil {
		return nil, err
	}
	return dto.NewDetentionQueueEntryResponseSlice(entries), nil
}
