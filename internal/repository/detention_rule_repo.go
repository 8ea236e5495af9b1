package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/sma-discipline-api/internal/models"
)

// DetentionRuleRepository handles persistence for qualification rules.
type DetentionRuleRepository interface {
	Create(ctx context.Context, rule *models.DetentionRule) error
	List(ctx context.Context) ([]models.DetentionRule, error)
	// ListActive returns active rules ordered by ascending MinPoints, the
	// order the evaluator must apply them in.
	ListActive(ctx context.Context) ([]models.DetentionRule, error)
	SetActive(ctx context.Context, id uint, active bool) (models.DetentionRule, error)
}

type detentionRuleRepository struct {
	db *gorm.DB
}

// NewDetentionRuleRepository constructs a repository backed by GORM.
func NewDetentionRuleRepository(db *gorm.DB) DetentionRuleRepository {
	return &detentionRuleRepository{db: db}
}

func (r *detentionRuleRepository) Create(ctx context.Context, rule *models.DetentionRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *detentionRuleRepository) List(ctx context.Context) ([]models.DetentionRule, error) {
	var rules []models.DetentionRule
	if err := r.db.WithContext(ctx).Order("min_points ASC").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *detentionRuleRepository) ListActive(ctx context.Context) ([]models.DetentionRule, error) {
	var rules []models.DetentionRule
	if err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("min_points ASC").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *detentionRuleRepository) SetActive(ctx context.Context, id uint, active bool) (models.DetentionRule, error) {
	var rule models.DetentionRule
	if err := r.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		return models.DetentionRule{}, err
	}

	if rule.Active == active {
		return rule, nil
	}

	rule.Active = active
	if err := r.db.WithContext(ctx).Save(&rule).Error; err != nil {
		return models.DetentionRule{}, err
	}
	return rule, nil
}
