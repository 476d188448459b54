package history

import (
	"context"

	"github.com/nokasa/pickup-backend/internal/repo"
	"github.com/nokasa/pickup-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository persists cancel/reject audit rows. Rows are only ever inserted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, row *models.OrderCancelAndRejectHistory) error
	ListByOrders(ctx context.Context, orderIDs []int64) ([]models.OrderCancelAndRejectHistory, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds a history repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) Append(ctx context.Context, row *models.OrderCancelAndRejectHistory) error {
	return r.DB(ctx).Create(row).Error
}

// ListByOrders returns rows for the given orders, newest first.
func (r *repository) ListByOrders(ctx context.Context, orderIDs []int64) ([]models.OrderCancelAndRejectHistory, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	var rows []models.OrderCancelAndRejectHistory
	err := r.DB(ctx).
		Where("order_id IN ?", orderIDs).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
