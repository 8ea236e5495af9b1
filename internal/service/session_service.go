package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/sma-discipline-api/internal/dto"
	"github.com/noah-isme/sma-discipline-api/internal/models"
	"github.com/noah-isme/sma-discipline-api/internal/repository"
)

// ErrInvalidSessionTransition indicates a backwards or repeated lifecycle move.
var ErrInvalidSessionTransition = errors.New("invalid session status transition")

// SessionService manages detention session lifecycle. Creating a session with
// capacity implicitly drains the waitlist into it.
type SessionService interface {
	Create(ctx context.Context, req dto.SessionCreateRequest) ([]dto.SessionResponse, error)
	List(ctx context.Context, req dto.SessionListRequest) ([]dto.SessionResponse, error)
	Get(ctx context.Context, id uint) (dto.SessionResponse, error)
	UpdateStatus(ctx context.Context, id uint, req dto.SessionStatusUpdateRequest) (dto.SessionResponse, error)
}

type sessionService struct {
	sessions    repository.DetentionSessionRepository
	assignments repository.DetentionAssignmentRepository
	incidents   repository.IncidentRepository
	queue       QueueService
	validator   *validator.Validate
	live        LiveBroadcaster
	logger      zerolog.Logger
	now         func() time.Time
}

// NewSessionService builds the session manager.
func NewSessionService(
	sessions repository.DetentionSessionRepository,
	assignments repository.DetentionAssignmentRepository,
	incidents repository.IncidentRepository,
	queue QueueService,
	validate *validator.Validate,
	live LiveBroadcaster,
	logger zerolog.Logger,
) SessionService {
	return &sessionService{
		sessions:    sessions,
		assignments: assignments,
		incidents:   incidents,
		queue:       queue,
		validator:   validate,
		live:        live,
		logger:      logger.With().Str("component", "session_service").Logger(),
		now:         time.Now,
	}
}

func (s *sessionService) Create(ctx context.Context, req dto.SessionCreateRequest) ([]dto.SessionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	date, err := time.ParseInLocation("2006-01-02", req.Date, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid date: %w", err)
	}
	if date.Before(startOfDay(s.now())) {
		return nil, fmt.Errorf("session date must not be in the past")
	}

	if _, err := time.Parse("15:04", req.StartTime); err != nil {
		return nil, fmt.Errorf("invalid start time: %w", err)
	}

	occurrences := 1 + req.RepeatWeeks
	responses := make([]dto.SessionResponse, 0, occurrences)

	for i := 0; i < occurrences; i++ {
		session := models.DetentionSession{
			Date:            date.AddDate(0, 0, 7*i),
			StartTime:       req.StartTime,
			DurationMinutes: req.DurationMinutes,
			Location:        req.Location,
			Supervisor:      req.Supervisor,
			MaxCapacity:     req.MaxCapacity,
			Status:          models.SessionStatusScheduled,
		}
		if err := s.sessions.Create(ctx, &session); err != nil {
			return nil, err
		}

		s.logger.Info().
			Uint("session_id", session.ID).
			Time("date", session.Date).
			Int("capacity", session.MaxCapacity).
			Msg("detention session created")

		if s.live != nil {
			s.live.Broadcast(dto.LiveEvent{
				Kind:       "session",
				SessionID:  session.ID,
				Status:     string(session.Status),
				OccurredAt: s.now().UTC(),
			})
		}

		// New capacity opened: drain the waitlist. Best-effort, the session
		// itself is already created.
		drained, err := s.queue.Drain(ctx, session.ID)
		if err != nil {
			s.logger.Warn().Err(err).Uint("session_id", session.ID).Msg("queue drain after session create failed")
		}

		occupancy := len(drained.Assigned)
		responses = append(responses, dto.NewSessionResponse(session, occupancy))
	}

	return responses, nil
}

func (s *sessionService) List(ctx context.Context, req dto.SessionListRequest) ([]dto.SessionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	filter := repository.SessionFilter{Status: models.SessionStatus(req.Status)}
	if req.FromDate != "" {
		from, err := time.ParseInLocation("2006-01-02", req.FromDate, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid from_date: %w", err)
		}
		filter.FromDate = &from
	}
	if req.ToDate != "" {
		to, err := time.ParseInLocation("2006-01-02", req.ToDate, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid to_date: %w", err)
		}
		filter.ToDate = &to
	}

	sessions, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(sessions))
	for _, session := range sessions {
		ids = append(ids, session.ID)
	}
	occupancies, err := s.sessions.Occupancies(ctx, ids)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		responses = append(responses, dto.NewSessionResponse(session, occupancies[session.ID]))
	}
	return responses, nil
}

func (s *sessionService) Get(ctx context.Context, id uint) (dto.SessionResponse, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SessionResponse{}, ErrSessionNotFound
		}
		return dto.SessionResponse{}, err
	}

	occupancy, err := s.sessions.Occupancy(ctx, id)
	if err != nil {
		return dto.SessionResponse{}, err
	}
	return dto.NewSessionResponse(session, occupancy), nil
}

// allowed forward transitions; terminal states have no successors.
// A session must pass through in_progress before it can complete.
var sessionTransitions = map[models.SessionStatus][]models.SessionStatus{
	models.SessionStatusScheduled:  {models.SessionStatusInProgress, models.SessionStatusCancelled},
	models.SessionStatusInProgress: {models.SessionStatusCompleted},
}

func transitionAllowed(from, to models.SessionStatus) bool {
	for _, allowed := range sessionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s *sessionService) UpdateStatus(ctx context.Context, id uint, req dto.SessionStatusUpdateRequest) (dto.SessionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SessionResponse{}, err
	}

	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SessionResponse{}, ErrSessionNotFound
		}
		return dto.SessionResponse{}, err
	}

	target := models.SessionStatus(req.Status)
	if !transitionAllowed(session.Status, target) {
		return dto.SessionResponse{}, ErrInvalidSessionTransition
	}

	session.Status = target
	if err := s.sessions.Save(ctx, &session); err != nil {
		return dto.SessionResponse{}, err
	}

	s.logger.Info().Uint("session_id", session.ID).Str("status", string(target)).Msg("session status updated")

	if s.live != nil {
		s.live.Broadcast(dto.LiveEvent{
			Kind:       "session",
			SessionID:  session.ID,
			Status:     string(target),
			OccurredAt: s.now().UTC(),
		})
	}

	if target == models.SessionStatusCompleted {
		s.sweepCompleted(ctx, session)
	}

	occupancy, err := s.sessions.Occupancy(ctx, id)
	if err != nil {
		return dto.SessionResponse{}, err
	}
	return dto.NewSessionResponse(session, occupancy), nil
}

// sweepCompleted settles demerit debt for every attended assignment on a
// closed session. Idempotent with the per-assignment resolution, covering
// attendance recorded before the session was formally closed.
func (s *sessionService) sweepCompleted(ctx context.Context, session models.DetentionSession) {
	assignments, err := s.assignments.ListBySession(ctx, session.ID)
	if err != nil {
		s.logger.Error().Err(err).Uint("session_id", session.ID).Msg("completion sweep listing failed")
		return
	}

	for _, assignment := range assignments {
		if assignment.Status != models.AssignmentStatusAttended {
			continue
		}
		if _, err := s.incidents.ResolveAllForStudent(ctx, assignment.StudentID, s.now().UTC()); err != nil {
			s.logger.Error().Err(err).
				Uint("student_id", assignment.StudentID).
				Uint("session_id", session.ID).
				Msg("completion sweep resolution failed")
		}
	}
}
