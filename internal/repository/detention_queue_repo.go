package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/sma-discipline-api/internal/models"
)

// DetentionQueueRepository handles persistence for the detention waitlist.
// Entries are never deleted; the pending→assigned transition occurs once.
type DetentionQueueRepository interface {
	// InsertPending adds a pending entry for the student unless one already
	// exists. Returns the effective entry and whether a new row was created.
	InsertPending(ctx context.Context, studentID uint, points int, queuedAt time.Time) (models.DetentionQueueEntry, bool, error)
	ListPending(ctx context.Context, limit int) ([]models.DetentionQueueEntry, error)
	List(ctx context.Context, status models.QueueEntryStatus, limit int) ([]models.DetentionQueueEntry, error)
	MarkAssigned(ctx context.Context, id uint, sessionID uint) (models.DetentionQueueEntry, error)
	CountPending(ctx context.Context) (int64, error)
}

type detentionQueueRepository struct {
	db *gorm.DB
}

// NewDetentionQueueRepository constructs a repository backed by GORM.
func NewDetentionQueueRepository(db *gorm.DB) DetentionQueueRepository {
	return &detentionQueueRepository{db: db}
}

func (r *detentionQueueRepository) InsertPending(ctx context.Context, studentID uint, points int, queuedAt time.Time) (models.DetentionQueueEntry, bool, error) {
	// Read-then-insert inside a transaction; a store-level partial unique
	// index on (student_id) WHERE status='pending' closes the remaining race
	// in postgres, and a duplicate-key error is treated as the existing-entry
	// case.
	var entry models.DetentionQueueEntry
	created := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("student_id = ? AND status = ?", studentID, models.QueueEntryStatusPending).
			First(&entry).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		entry = models.DetentionQueueEntry{
			StudentID:     studentID,
			PointsAtQueue: points,
			QueuedAt:      queuedAt,
			Status:        models.QueueEntryStatusPending,
		}
		if err := tx.Create(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				created = false
				return tx.Where("student_id = ? AND status = ?", studentID, models.QueueEntryStatusPending).
					First(&entry).Error
			}
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return models.DetentionQueueEntry{}, false, err
	}
	return entry, created, nil
}

func (r *detentionQueueRepository) ListPending(ctx context.Context, limit int) ([]models.DetentionQueueEntry, error) {
	return r.List(ctx, models.QueueEntryStatusPending, limit)
}

func (r *detentionQueueRepository) List(ctx context.Context, status models.QueueEntryStatus, limit int) ([]models.DetentionQueueEntry, error) {
	query := r.db.WithContext(ctx).Model(&models.DetentionQueueEntry{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var entries []models.DetentionQueueEntry
	if err := query.Order("queued_at ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *detentionQueueRepository) MarkAssigned(ctx context.Context, id uint, sessionID uint) (models.DetentionQueueEntry, error) {
	var entry models.DetentionQueueEntry
	if err := r.db.WithContext(ctx).First(&entry, id).Error; err != nil {
		return models.DetentionQueueEntry{}, err
	}

	if entry.Status == models.QueueEntryStatusAssigned {
		return entry, nil
	}

	entry.Status = models.QueueEntryStatusAssigned
	entry.AssignedSessionID = &sessionID
	if err := r.db.WithContext(ctx).Save(&entry).Error; err != nil {
		return models.DetentionQueueEntry{}, err
	}
	return entry, nil
}

func (r *detentionQueueRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.DetentionQueueEntry{}).
		Where("status = ?", models.QueueEntryStatusPending).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
