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
	"gorm.io/gorm"

	"github.com/noah-isme/sma-discipline-api/internal/dto"
	"github.com/noah-isme/sma-discipline-api/internal/models"
	"github.com/noah-isme/sma-discipline-api/internal/repository"
)

// IncidentService records demerit incidents and runs the inline
// qualification pass that may place the student into detention.
type IncidentService interface {
	Record(ctx context.Context, req dto.IncidentCreateRequest, reportedBy string) (dto.IncidentRecordResult, error)
	ListByStudent(ctx context.Context, studentID uint, limit int) ([]dto.IncidentResponse, error)
}

type incidentService struct {
	incidents     repository.IncidentRepository
	students      repository.StudentRepository
	qualification QualificationService
	engine        DetentionEngine
	validator     *validator.Validate
	sanitizer     *bluemonday.Policy
	logger        zerolog.Logger
	now           func() time.Time
}

// NewIncidentService builds the incident recorder.
func NewIncidentService(
	incidents repository.IncidentRepository,
	students repository.StudentRepository,
	qualification QualificationService,
	engine DetentionEngine,
	validate *validator.Validate,
	logger zerolog.Logger,
) IncidentService {
	return &incidentService{
		incidents:     incidents,
		students:      students,
		qualification: qualification,
		engine:        engine,
		validator:     validate,
		sanitizer:     bluemonday.StrictPolicy(),
		logger:        logger.With().Str("component", "incident_service").Logger(),
		now:           time.Now,
	}
}

func (s *incidentService) Record(ctx context.Context, req dto.IncidentCreateRequest, reportedBy string) (dto.IncidentRecordResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.IncidentRecordResult{}, err
	}

	if _, err := s.students.GetByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.IncidentRecordResult{}, ErrStudentNotFound
		}
		return dto.IncidentRecordResult{}, err
	}

	occurredAt := s.now().UTC()
	if req.OccurredAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.OccurredAt)
		if err != nil {
			return dto.IncidentRecordResult{}, fmt.Errorf("invalid occurred_at: %w", err)
		}
		occurredAt = parsed.UTC()
	}

	incident := models.Incident{
		StudentID:      req.StudentID,
		Severity:       models.IncidentSeverity(req.Severity),
		PointDeduction: req.PointDeduction,
		Description:    strings.TrimSpace(s.sanitizer.Sanitize(req.Description)),
		OccurredAt:     occurredAt,
		ReportedBy:     reportedBy,
	}
	if err := s.incidents.Create(ctx, &incident); err != nil {
		return dto.IncidentRecordResult{}, err
	}

	result := dto.IncidentRecordResult{Incident: dto.NewIncidentResponse(incident)}

	// Qualification and placement run inline, but the incident write is the
	// primary operation; a placement failure is logged and the incident stands.
	rule, err := s.qualification.EvaluateRules(ctx, req.StudentID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("student_id", req.StudentID).Msg("rule evaluation failed after incident")
		return result, nil
	}
	if rule == nil {
		return result, nil
	}

	ruleResponse := dto.NewDetentionRuleResponse(*rule)
	result.MatchedRule = &ruleResponse

	placement, err := s.engine.Assign(ctx, dto.AssignRequest{
		StudentID: req.StudentID,
		Reason:    rule.Name,
	})
	if err != nil {
		s.logger.Warn().Err(err).Uint("student_id", req.StudentID).Msg("placement failed after incident")
		return result, nil
	}

	result.Placement = placement.Assignment
	result.Queued = placement.QueueEntry
	return result, nil
}

func (s *incidentService) ListByStudent(ctx context.Context, studentID uint, limit int) ([]dto.IncidentResponse, error) {
	incidents, err := s.incidents.ListByStudent(ctx, studentID, limit)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.IncidentResponse, 0, len(incidents))
	for _, incident := range incidents {
		responses = append(responses, dto.NewIncidentResponse(incident))
	}
	return responses, nil
}
