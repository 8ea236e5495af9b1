package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sma-discipline-api/internal/dto"
	"github.com/noah-isme/sma-discipline-api/internal/repository"
)

const qualifyingCacheKey = "dashboard:qualifying"

// DashboardService produces the qualifying-students view used by
// administrator dashboards. Results are cached briefly since the view backs
// a polling UI.
type DashboardService interface {
	QualifyingStudents(ctx context.Context) ([]dto.QualifyingStudentResponse, error)
}

type dashboardService struct {
	qualification QualificationService
	students      repository.StudentRepository
	assignments   repository.DetentionAssignmentRepository
	cache         *redis.Client
	cacheTTL      time.Duration
	logger        zerolog.Logger
	now           func() time.Time
}

// NewDashboardService builds the dashboard aggregator.
func NewDashboardService(
	qualification QualificationService,
	students repository.StudentRepository,
	assignments repository.DetentionAssignmentRepository,
	cache *redis.Client,
	ttl time.Duration,
	logger zerolog.Logger,
) DashboardService {
	return &dashboardService{
		qualification: qualification,
		students:      students,
		assignments:   assignments,
		cache:         cache,
		cacheTTL:      ttl,
		logger:        logger.With().Str("component", "dashboard_service").Logger(),
		now:           time.Now,
	}
}

func (s *dashboardService) QualifyingStudents(ctx context.Context) ([]dto.QualifyingStudentResponse, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, qualifyingCacheKey).Result(); err == nil {
			var response []dto.QualifyingStudentResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Msg("qualifying dashboard cache hit")
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read qualifying dashboard cache")
		}
	}

	aggregates, err := s.qualification.QualifyingStudents(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(aggregates))
	for _, aggregate := range aggregates {
		ids = append(ids, aggregate.StudentID)
	}

	students, err := s.students.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]int, len(students))
	for i, student := range students {
		byID[student.ID] = i
	}

	upcoming, err := s.assignments.StudentIDsWithPendingUpcoming(ctx, startOfDay(s.now()))
	if err != nil {
		return nil, err
	}

	response := make([]dto.QualifyingStudentResponse, 0, len(aggregates))
	for _, aggregate := range aggregates {
		row := dto.QualifyingStudentResponse{
			StudentID:           aggregate.StudentID,
			OutstandingPoints:   aggregate.TotalPoints,
			UnresolvedIncidents: int(aggregate.IncidentCount),
		}
		if idx, ok := byID[aggregate.StudentID]; ok {
			row.Name = students[idx].Name
			row.Class = students[idx].Class
		}
		if _, ok := upcoming[aggregate.StudentID]; ok {
			row.HasUpcomingSession = true
		}
		response = append(response, row)
	}

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, qualifyingCacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store qualifying dashboard cache")
			}
		}
	}

	return response, nil
}
