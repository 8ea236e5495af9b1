package service

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/sma-discipline-api/internal/models"
	"github.com/noah-isme/sma-discipline-api/internal/repository"
)

// GlobalQualifyThreshold is the fixed aggregate-points policy used by the
// dashboard qualifying view and bulk auto-assign. It is deliberately
// independent of the configurable rule set, which drives per-incident
// evaluation; the two policies serve different callers.
const GlobalQualifyThreshold = 10

// QualificationService evaluates whether a student's demerit activity
// qualifies them for detention. All operations are pure reads.
type QualificationService interface {
	// EvaluateRules returns the first active rule the student matches, in
	// ascending MinPoints order, or nil when no rule matches.
	EvaluateRules(ctx context.Context, studentID uint) (*models.DetentionRule, error)
	// EvaluateRuleSet evaluates an explicit rule set instead of the stored
	// active rules.
	EvaluateRuleSet(ctx context.Context, studentID uint, rules []models.DetentionRule) (*models.DetentionRule, error)
	// QualifyingStudents lists per-student unresolved point aggregates at or
	// above the global threshold.
	QualifyingStudents(ctx context.Context) ([]repository.StudentPointsAggregate, error)
	// OutstandingPoints returns the student's unresolved point total.
	OutstandingPoints(ctx context.Context, studentID uint) (int, error)
}

type qualificationService struct {
	incidents repository.IncidentRepository
	rules     repository.DetentionRuleRepository
	logger    zerolog.Logger
	now       func() time.Time
}

// NewQualificationService builds the evaluator.
func NewQualificationService(incidents repository.IncidentRepository, rules repository.DetentionRuleRepository, logger zerolog.Logger) QualificationService {
	return &qualificationService{
		incidents: incidents,
		rules:     rules,
		logger:    logger.With().Str("component", "qualification_service").Logger(),
		now:       time.Now,
	}
}

func (s *qualificationService) EvaluateRules(ctx context.Context, studentID uint) (*models.DetentionRule, error) {
	rules, err := s.rules.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return s.EvaluateRuleSet(ctx, studentID, rules)
}

func (s *qualificationService) EvaluateRuleSet(ctx context.Context, studentID uint, rules []models.DetentionRule) (*models.DetentionRule, error) {
	// Lowest threshold wins regardless of the order the caller supplies.
	ordered := make([]models.DetentionRule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].MinPoints < ordered[j].MinPoints
	})

	for i := range ordered {
		rule := ordered[i]
		if !rule.Active {
			continue
		}

		matched, err := s.matches(ctx, studentID, rule)
		if err != nil {
			return nil, err
		}
		if matched {
			s.logger.Debug().
				Uint("student_id", studentID).
				Uint("rule_id", rule.ID).
				Str("rule", rule.Name).
				Msg("student matched detention rule")
			return &rule, nil
		}
	}
	return nil, nil
}

func (s *qualificationService) matches(ctx context.Context, studentID uint, rule models.DetentionRule) (bool, error) {
	var since *time.Time
	if rule.TimePeriodDays > 0 {
		cutoff := s.now().AddDate(0, 0, -rule.TimePeriodDays)
		since = &cutoff
	}

	switch rule.ActionType {
	case models.RuleActionPointsThreshold:
		points, err := s.incidents.SumUnresolvedPoints(ctx, studentID, since)
		if err != nil {
			return false, err
		}
		return inRange(points, rule.MinPoints, rule.MaxPoints), nil

	case models.RuleActionIncidentCount:
		count, err := s.incidents.CountUnresolved(ctx, studentID, since)
		if err != nil {
			return false, err
		}
		return inRange(int(count), rule.MinPoints, rule.MaxPoints), nil

	case models.RuleActionSeverityMatch:
		if rule.Severity == "" {
			return false, nil
		}
		count, err := s.incidents.CountUnresolvedBySeverity(ctx, studentID, rule.Severity, since)
		if err != nil {
			return false, err
		}
		return count > 0, nil
	}

	s.logger.Warn().Uint("rule_id", rule.ID).Str("action_type", string(rule.ActionType)).Msg("unknown rule action type")
	return false, nil
}

func inRange(value, min int, max *int) bool {
	if value < min {
		return false
	}
	if max != nil && value > *max {
		return false
	}
	return true
}

func (s *qualificationService) QualifyingStudents(ctx context.Context) ([]repository.StudentPointsAggregate, error) {
	return s.incidents.AggregateUnresolved(ctx, GlobalQualifyThreshold)
}

func (s *qualificationService) OutstandingPoints(ctx context.Context, studentID uint) (int, error) {
	return s.incidents.SumUnresolvedPoints(ctx, studentID, nil)
}
