package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/sma-discipline-api/internal/models"
)

// DetentionAssignmentRepository handles persistence for assignments. Rows are
// append-only; only Status and Notes may change after insert.
type DetentionAssignmentRepository interface {
	Create(ctx context.Context, assignment *models.DetentionAssignment) error
	GetByID(ctx context.Context, id uint) (models.DetentionAssignment, error)
	ListBySession(ctx context.Context, sessionID uint) ([]models.DetentionAssignment, error)
	UpdateOutcome(ctx context.Context, id uint, status models.AssignmentStatus, notes string) (models.DetentionAssignment, error)

	// HasPendingUpcoming reports whether the student holds an assigned/late
	// assignment for a session dated on or after today.
	HasPendingUpcoming(ctx context.Context, studentID uint, today time.Time) (bool, error)
	ExistsForSession(ctx context.Context, studentID, sessionID uint) (bool, error)
	StudentIDsWithPendingUpcoming(ctx context.Context, today time.Time) (map[uint]struct{}, error)
}

type detentionAssignmentRepository struct {
	db *gorm.DB
}

// NewDetentionAssignmentRepository constructs a repository backed by GORM.
func NewDetentionAssignmentRepository(db *gorm.DB) DetentionAssignmentRepository {
	return &detentionAssignmentRepository{db: db}
}

func (r *detentionAssignmentRepository) Create(ctx context.Context, assignment *models.DetentionAssignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *detentionAssignmentRepository) GetByID(ctx context.Context, id uint) (models.DetentionAssignment, error) {
	var assignment models.DetentionAssignment
	if err := r.db.WithContext(ctx).Preload("Session").First(&assignment, id).Error; err != nil {
		return models.DetentionAssignment{}, err
	}
	return assignment, nil
}

func (r *detentionAssignmentRepository) ListBySession(ctx context.Context, sessionID uint) ([]models.DetentionAssignment, error) {
	var assignments []models.DetentionAssignment
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&assignments).Error; err != nil {
		return nil, err
	}
	return assignments, nil
}

func (r *detentionAssignmentRepository) UpdateOutcome(ctx context.Context, id uint, status models.AssignmentStatus, notes string) (models.DetentionAssignment, error) {
	var assignment models.DetentionAssignment
	if err := r.db.WithContext(ctx).Preload("Session").First(&assignment, id).Error; err != nil {
		return models.DetentionAssignment{}, err
	}

	assignment.Status = status
	if notes != "" {
		assignment.Notes = notes
	}
	if err := r.db.WithContext(ctx).Save(&assignment).Error; err != nil {
		return models.DetentionAssignment{}, err
	}
	return assignment, nil
}

var pendingStatuses = []models.AssignmentStatus{
	models.AssignmentStatusAssigned,
	models.AssignmentStatusLate,
}

func (r *detentionAssignmentRepository) HasPendingUpcoming(ctx context.Context, studentID uint, today time.Time) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.DetentionAssignment{}).
		Joins("JOIN detention_sessions ON detention_sessions.id = detention_assignments.session_id").
		Where("detention_assignments.student_id = ? AND detention_assignments.status IN ?", studentID, pendingStatuses).
		Where("detention_sessions.date >= ?", today).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *detentionAssignmentRepository) ExistsForSession(ctx context.Context, studentID, sessionID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.DetentionAssignment{}).
		Where("student_id = ? AND session_id = ?", studentID, sessionID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *detentionAssignmentRepository) StudentIDsWithPendingUpcoming(ctx context.Context, today time.Time) (map[uint]struct{}, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&models.DetentionAssignment{}).
		Joins("JOIN detention_sessions ON detention_sessions.id = detention_assignments.session_id").
		Where("detention_assignments.status IN ?", pendingStatuses).
		Where("detention_sessions.date >= ?", today).
		Distinct().
		Pluck("detention_assignments.student_id", &ids).Error; err != nil {
		return nil, err
	}

	result := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		result[id] = struct{}{}
	}
	return result, nil
}
