package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/sma-discipline-api/internal/models"
)

// SessionFilter narrows session listings.
type SessionFilter struct {
	Status   models.SessionStatus
	FromDate *time.Time
	ToDate   *time.Time
}

// DetentionSessionRepository handles persistence for detention sessions.
type DetentionSessionRepository interface {
	Create(ctx context.Context, session *models.DetentionSession) error
	GetByID(ctx context.Context, id uint) (models.DetentionSession, error)
	List(ctx context.Context, filter SessionFilter) ([]models.DetentionSession, error)
	Save(ctx context.Context, session *models.DetentionSession) error

	// Occupancy counts assignments that hold a seat (assigned/attended/late).
	Occupancy(ctx context.Context, sessionID uint) (int, error)
	Occupancies(ctx context.Context, sessionIDs []uint) (map[uint]int, error)

	// FirstAvailable returns the earliest scheduled session dated on or after
	// from whose occupancy is below capacity, ordered by (date, start_time).
	FirstAvailable(ctx context.Context, from time.Time) (models.DetentionSession, error)
}

type detentionSessionRepository struct {
	db *gorm.DB
}

// NewDetentionSessionRepository constructs a repository backed by GORM.
func NewDetentionSessionRepository(db *gorm.DB) DetentionSessionRepository {
	return &detentionSessionRepository{db: db}
}

func (r *detentionSessionRepository) Create(ctx context.Context, session *models.DetentionSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *detentionSessionRepository) GetByID(ctx context.Context, id uint) (models.DetentionSession, error) {
	var session models.DetentionSession
	if err := r.db.WithContext(ctx).First(&session, id).Error; err != nil {
		return models.DetentionSession{}, err
	}
	return session, nil
}

func (r *detentionSessionRepository) List(ctx context.Context, filter SessionFilter) ([]models.DetentionSession, error) {
	query := r.db.WithContext(ctx).Model(&models.DetentionSession{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.FromDate != nil {
		query = query.Where("date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("date <= ?", *filter.ToDate)
	}

	var sessions []models.DetentionSession
	if err := query.Order("date ASC, start_time ASC").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *detentionSessionRepository) Save(ctx context.Context, session *models.DetentionSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}

var occupiedStatuses = []models.AssignmentStatus{
	models.AssignmentStatusAssigned,
	models.AssignmentStatusAttended,
	models.AssignmentStatusLate,
}

func (r *detentionSessionRepository) Occupancy(ctx context.Context, sessionID uint) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.DetentionAssignment{}).
		Where("session_id = ? AND status IN ?", sessionID, occupiedStatuses).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *detentionSessionRepository) Occupancies(ctx context.Context, sessionIDs []uint) (map[uint]int, error) {
	result := make(map[uint]int, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return result, nil
	}

	type row struct {
		SessionID uint
		Count     int
	}
	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&models.DetentionAssignment{}).
		Select("session_id, COUNT(*) AS count").
		Where("session_id IN ? AND status IN ?", sessionIDs, occupiedStatuses).
		Group("session_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	for _, r := range rows {
		result[r.SessionID] = r.Count
	}
	return result, nil
}

func (r *detentionSessionRepository) FirstAvailable(ctx context.Context, from time.Time) (models.DetentionSession, error) {
	var session models.DetentionSession
	err := r.db.WithContext(ctx).
		Where("status = ? AND date >= ?", models.SessionStatusScheduled, from).
		Where("(SELECT COUNT(*) FROM detention_assignments WHERE detention_assignments.session_id = detention_sessions.id AND detention_assignments.status IN ?) < max_capacity", occupiedStatuses).
		Order("date ASC, start_time ASC").
		First(&session).Error
	if err != nil {
		return models.DetentionSession{}, err
	}
	return session, nil
}
