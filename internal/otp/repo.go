package otp

import (
	"context"
	"time"

	"github.com/nokasa/pickup-backend/internal/repo"
	"github.com/nokasa/pickup-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository persists login codes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, row *models.OTP) error
	Delete(ctx context.Context, id int64) error
	Active(ctx context.Context, entityID int64, now time.Time) (*models.OTP, error)
	Recent(ctx context.Context, entityID int64, since time.Time, limit int) ([]models.OTP, error)
	CountAttempt(ctx context.Context, id int64, maxAttempts int) (int64, error)
	Consume(ctx context.Context, id int64, at time.Time) error
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) Create(ctx context.Context, row *models.OTP) error {
	return r.DB(ctx).Create(row).Error
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	return r.DB(ctx).Where("id = ?", id).Delete(&models.OTP{}).Error
}

// Active returns the newest unconsumed, unexpired code for the entity.
func (r *repository) Active(ctx context.Context, entityID int64, now time.Time) (*models.OTP, error) {
	var row models.OTP
	err := r.DB(ctx).
		Where("entity_id = ? AND consumed_at IS NULL AND expires_at > ?", entityID, now).
		Order("created_at DESC").
		Order("id DESC").
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Recent lists codes issued since the given time, newest first.
func (r *repository) Recent(ctx context.Context, entityID int64, since time.Time, limit int) ([]models.OTP, error) {
	var rows []models.OTP
	err := r.DB(ctx).
		Where("entity_id = ? AND created_at >= ?", entityID, since).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// CountAttempt spends one verification attempt. Zero rows means the code was
// consumed or exhausted by a concurrent request.
func (r *repository) CountAttempt(ctx context.Context, id int64, maxAttempts int) (int64, error) {
	query := r.DB(ctx).
		Model(&models.OTP{}).
		Where("id = ? AND consumed_at IS NULL AND attempts < ?", id, maxAttempts)
	return r.Conditional(ctx, query, map[string]any{"attempts": gorm.Expr("attempts + 1")})
}

func (r *repository) Consume(ctx context.Context, id int64, at time.Time) error {
	return r.DB(ctx).
		Model(&models.OTP{}).
		Where("id = ? AND consumed_at IS NULL", id).
		Update("consumed_at", at).Error
}
