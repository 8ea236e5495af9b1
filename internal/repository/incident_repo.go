package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/sma-discipline-api/internal/models"
)

// StudentPointsAggregate summarises a student's unresolved demerit activity.
type StudentPointsAggregate struct {
	StudentID     uint
	TotalPoints   int
	IncidentCount int64
}

// IncidentRepository handles persistence and aggregation for incidents.
type IncidentRepository interface {
	Create(ctx context.Context, incident *models.Incident) error
	GetByID(ctx context.Context, id uint) (models.Incident, error)
	ListByStudent(ctx context.Context, studentID uint, limit int) ([]models.Incident, error)

	// SumUnresolvedPoints totals point deductions for unresolved incidents,
	// optionally restricted to incidents occurring on or after since.
	SumUnresolvedPoints(ctx context.Context, studentID uint, since *time.Time) (int, error)
	CountUnresolved(ctx context.Context, studentID uint, since *time.Time) (int64, error)
	CountUnresolvedBySeverity(ctx context.Context, studentID uint, severity models.IncidentSeverity, since *time.Time) (int64, error)

	// ResolveAllForStudent marks every unresolved, point-bearing incident for
	// the student as resolved. Idempotent: already-resolved rows are untouched.
	ResolveAllForStudent(ctx context.Context, studentID uint, at time.Time) (int64, error)

	// AggregateUnresolved returns per-student unresolved point totals at or
	// above minPoints, highest debt first.
	AggregateUnresolved(ctx context.Context, minPoints int) ([]StudentPointsAggregate, error)
}

type incidentRepository struct {
	db *gorm.DB
}

// NewIncidentRepository constructs a repository backed by GORM.
func NewIncidentRepository(db *gorm.DB) IncidentRepository {
	return &incidentRepository{db: db}
}

func (r *incidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	return r.db.WithContext(ctx).Create(incident).Error
}

func (r *incidentRepository) GetByID(ctx context.Context, id uint) (models.Incident, error) {
	var incident models.Incident
	if err := r.db.WithContext(ctx).First(&incident, id).Error; err != nil {
		return models.Incident{}, err
	}
	return incident, nil
}

func (r *incidentRepository) ListByStudent(ctx context.Context, studentID uint, limit int) ([]models.Incident, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var incidents []models.Incident
	if err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&incidents).Error; err != nil {
		return nil, err
	}
	return incidents, nil
}

func (r *incidentRepository) unresolvedQuery(ctx context.Context, studentID uint, since *time.Time) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&models.Incident{}).
		Where("student_id = ? AND resolved = ?", studentID, false)
	if since != nil {
		query = query.Where("occurred_at >= ?", *since)
	}
	return query
}

func (r *incidentRepository) SumUnresolvedPoints(ctx context.Context, studentID uint, since *time.Time) (int, error) {
	var total *int
	if err := r.unresolvedQuery(ctx, studentID, since).
		Select("SUM(point_deduction)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

func (r *incidentRepository) CountUnresolved(ctx context.Context, studentID uint, since *time.Time) (int64, error) {
	var count int64
	if err := r.unresolvedQuery(ctx, studentID, since).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *incidentRepository) CountUnresolvedBySeverity(ctx context.Context, studentID uint, severity models.IncidentSeverity, since *time.Time) (int64, error) {
	var count int64
	if err := r.unresolvedQuery(ctx, studentID, since).
		Where("severity = ?", severity).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *incidentRepository) ResolveAllForStudent(ctx context.Context, studentID uint, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Incident{}).
		Where("student_id = ? AND resolved = ? AND point_deduction > 0", studentID, false).
		Updates(map[string]interface{}{"resolved": true, "resolved_at": at})
	return result.RowsAffected, result.Error
}

func (r *incidentRepository) AggregateUnresolved(ctx context.Context, minPoints int) ([]StudentPointsAggregate, error) {
	var aggregates []StudentPointsAggregate
	if err := r.db.WithContext(ctx).
		Model(&models.Incident{}).
		Select("student_id, SUM(point_deduction) AS total_points, COUNT(*) AS incident_count").
		Where("resolved = ?", false).
		Group("student_id").
		Having("SUM(point_deduction) >= ?", minPoints).
		Order("total_points DESC").
		Scan(&aggregates).Error; err != nil {
		return nil, err
	}
	return aggregates, nil
}
