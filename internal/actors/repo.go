package actors

import (
	"context"

	"github.com/nokasa/pickup-backend/internal/repo"
	"github.com/nokasa/pickup-backend/pkg/db/models"
	"github.com/nokasa/pickup-backend/pkg/enums"
	"gorm.io/gorm"
)

// Repository loads actor profiles for an authenticated entity.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindEntity(ctx context.Context, entityID int64) (*models.Entity, error)
	FindEntityByPhone(ctx context.Context, phone string, kind enums.EntityType) (*models.Entity, error)
	FindVendorByEntity(ctx context.Context, entityID int64) (*models.Vendor, error)
	FindAgentByEntity(ctx context.Context, entityID int64) (*models.Agent, error)
	FindUserByEntity(ctx context.Context, entityID int64) (*models.User, error)
	FindAdminByEntity(ctx context.Context, entityID int64) (*models.Admin, error)
	FindVendor(ctx context.Context, vendorID int64) (*models.Vendor, error)
	FindAgent(ctx context.Context, agentID int64) (*models.Agent, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds an actors repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) FindEntity(ctx context.Context, entityID int64) (*models.Entity, error) {
	var entity models.Entity
	if err := r.DB(ctx).Where("id = ?", entityID).First(&entity).Error; err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *repository) FindEntityByPhone(ctx context.Context, phone string, kind enums.EntityType) (*models.Entity, error) {
	var entity models.Entity
	err := r.DB(ctx).
		Where("phone = ? AND type = ?", phone, kind).
		First(&entity).Error
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *repository) FindVendorByEntity(ctx context.Context, entityID int64) (*models.Vendor, error) {
	var vendor models.Vendor
	err := r.DB(ctx).
		Where("entity_id = ? AND is_deleted = ?", entityID, false).
		First(&vendor).Error
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

func (r *repository) FindAgentByEntity(ctx context.Context, entityID int64) (*models.Agent, error) {
	var agent models.Agent
	err := r.DB(ctx).
		Where("entity_id = ? AND is_deleted = ?", entityID, false).
		First(&agent).Error
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *repository) FindUserByEntity(ctx context.Context, entityID int64) (*models.User, error) {
	var user models.User
	err := r.DB(ctx).
		Where("entity_id = ? AND is_deleted = ?", entityID, false).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindAdminByEntity(ctx context.Context, entityID int64) (*models.Admin, error) {
	var admin models.Admin
	if err := r.DB(ctx).Where("entity_id = ?", entityID).First(&admin).Error; err != nil {
		return nil, err
	}
	return &admin, nil
}

func (r *repository) FindVendor(ctx context.Context, vendorID int64) (*models.Vendor, error) {
	var vendor models.Vendor
	err := r.DB(ctx).
		Where("id = ? AND is_deleted = ?", vendorID, false).
		First(&vendor).Error
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

func (r *repository) FindAgent(ctx context.Context, agentID int64) (*models.Agent, error) {
	var agent models.Agent
	err := r.DB(ctx).
		Where("id = ? AND is_deleted = ?", agentID, false).
		First(&agent).Error
	if err != nil {
		return nil, err
	}
	return &agent, nil
}
