package cron

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/nokasa/pickup-backend/pkg/db/models"
)

// Repository deletes rows that have outlived their usefulness.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DeletePublishedOutbox removes outbox rows published before cutoff.
// Unpublished rows are never touched.
func (r *Repository) DeletePublishedOutbox(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("published_at IS NOT NULL AND published_at < ?", cutoff).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func (r *Repository) DeleteDLQ(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("failed_at < ?", cutoff).
		Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}

// DeleteReadNotifications removes notifications that were read before cutoff.
func (r *Repository) DeleteReadNotifications(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("is_read = ? AND read_at IS NOT NULL AND read_at < ?", true, cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}

// DeleteStaleOTPs removes login codes that expired before cutoff, used or not.
func (r *Repository) DeleteStaleOTPs(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&models.OTP{})
	return res.RowsAffected, res.Error
}
