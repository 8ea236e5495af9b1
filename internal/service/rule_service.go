package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/sma-discipline-api/internal/dto"
	"github.com/noah-isme/sma-discipline-api/internal/models"
	"github.com/noah-isme/sma-discipline-api/internal/repository"
)

// ErrRuleNotFound indicates the referenced rule does not exist.
var ErrRuleNotFound = errors.New("detention rule not found")

// RuleCreateRequest describes the payload to create a detention rule.
type RuleCreateRequest struct {
	Name                     string `json:"name" validate:"required,min=3,max=255"`
	ActionType               string `json:"action_type" validate:"required,oneof=points_threshold incident_count severity_match"`
	MinPoints                int    `json:"min_points" validate:"min=0"`
	MaxPoints                *int   `json:"max_points"`
	Severity                 string `json:"severity" validate:"omitempty,oneof=minor moderate major severe"`
	TimePeriodDays           int    `json:"time_period_days" validate:"required,min=1,max=365"`
	DetentionDurationMinutes int    `json:"detention_duration_minutes" validate:"required,min=15,max=480"`
}

// RuleService manages the configurable qualification rule set.
type RuleService interface {
	Create(ctx context.Context, req RuleCreateRequest) (dto.DetentionRuleResponse, error)
	List(ctx context.Context) ([]dto.DetentionRuleResponse, error)
	SetActive(ctx context.Context, id uint, active bool) (dto.DetentionRuleResponse, error)
}

type ruleService struct {
	rules     repository.DetentionRuleRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewRuleService builds the rule manager.
func NewRuleService(rules repository.DetentionRuleRepository, validate *validator.Validate, logger zerolog.Logger) RuleService {
	return &ruleService{
		rules:     rules,
		validator: validate,
		logger:    logger.With().Str("component", "rule_service").Logger(),
	}
}

func (s *ruleService) Create(ctx context.Context, req RuleCreateRequest) (dto.DetentionRuleResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.DetentionRuleResponse{}, err
	}

	if req.MaxPoints != nil && *req.MaxPoints < req.MinPoints {
		return dto.DetentionRuleResponse{}, fmt.Errorf("max_points must not be below min_points")
	}
	if req.ActionType == string(models.RuleActionSeverityMatch) && req.Severity == "" {
		return dto.DetentionRuleResponse{}, fmt.Errorf("severity is required for severity_match rules")
	}

	rule := models.DetentionRule{
		Name:                     req.Name,
		ActionType:               models.RuleActionType(req.ActionType),
		MinPoints:                req.MinPoints,
		MaxPoints:                req.MaxPoints,
		Severity:                 models.IncidentSeverity(req.Severity),
		TimePeriodDays:           req.TimePeriodDays,
		DetentionDurationMinutes: req.DetentionDurationMinutes,
		Active:                   true,
	}
	if err := s.rules.Create(ctx, &rule); err != nil {
		return dto.DetentionRuleResponse{}, err
	}

	s.logger.Info().Uint("rule_id", rule.ID).Str("name", rule.Name).Msg("detention rule created")
	return dto.NewDetentionRuleResponse(rule), nil
}

func (s *ruleService) List(ctx context.Context) ([]dto.DetentionRuleResponse, error) {
	rules, err := s.rules.List(ctx)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.DetentionRuleResponse, 0, len(rules))
	for _, rule := range rules {
		responses = append(responses, dto.NewDetentionRuleResponse(rule))
	}
	return responses, nil
}

func (s *ruleService) SetActive(ctx context.Context, id uint, active bool) (dto.DetentionRuleResponse, error) {
	rule, err := s.rules.SetActive(ctx, id, active)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.DetentionRuleResponse{}, ErrRuleNotFound
		}
		return dto.DetentionRuleResponse{}, err
	}
	return dto.NewDetentionRuleResponse(rule), nil
}
