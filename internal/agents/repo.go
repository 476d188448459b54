package agents

import (
	"context"
	"time"

	"github.com/nokasa/pickup-backend/internal/repo"
	"github.com/nokasa/pickup-backend/pkg/db/models"
	"github.com/nokasa/pickup-backend/pkg/enums"
	"gorm.io/gorm"
)

// Repository persists agents and the soft-delete cascade of entities.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListByVendor(ctx context.Context, vendorID int64) ([]AgentSummary, error)
	FindForVendor(ctx context.Context, vendorID, agentID int64) (*AgentDetail, error)
	PhoneTaken(ctx context.Context, phone string, excludeEntityID int64) (bool, error)
	CreateEntity(ctx context.Context, entity *models.Entity) error
	CreateAgent(ctx context.Context, agent *models.Agent) error
	OpenVendorHistory(ctx context.Context, agentID, vendorID int64, at time.Time) error
	UpdateAgent(ctx context.Context, agentID int64, updates map[string]any) error
	UpdatePhone(ctx context.Context, entityID int64, phone string) error
	CountActiveAgents(ctx context.Context, vendorID int64) (int64, error)
	CountOrders(ctx context.Context, filter OrderFilter) (int64, error)
	SoftDeleteVendor(ctx context.Context, vendorID int64, at time.Time) error
	SoftDeleteAgent(ctx context.Context, agentID int64, at time.Time) error
	SoftDeleteUser(ctx context.Context, userID int64, at time.Time) error
	DeactivateEntity(ctx context.Context, entityID int64, at time.Time) error
}

// OrderFilter counts orders by one owner column and optional status.
type OrderFilter struct {
	VendorID int64
	AgentID  int64
	UserID   int64
	Status   enums.OrderStatus
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

func (r *repository) agentsWithPhone(ctx context.Context) *gorm.DB {
	return r.DB(ctx).
		Table("agents AS a").
		Joins("JOIN entities e ON e.id = a.entity_id").
		Where("a.is_deleted = ?", false)
}

// ListByVendor returns the vendor's live agents ordered by name.
func (r *repository) ListByVendor(ctx context.Context, vendorID int64) ([]AgentSummary, error) {
	var rows []AgentSummary
	err := r.agentsWithPhone(ctx).
		Select("a.id, a.name, e.phone").
		Where("a.vendor_id = ?", vendorID).
		Order("a.name ASC").
		Order("a.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindForVendor(ctx context.Context, vendorID, agentID int64) (*AgentDetail, error) {
	var row AgentDetail
	err := r.agentsWithPhone(ctx).
		Select("a.id, a.entity_id, a.name, e.phone, a.vehicle_type, a.vehicle_number, a.status").
		Where("a.id = ? AND a.vendor_id = ?", agentID, vendorID).
		Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// PhoneTaken reports whether another agent entity already uses phone.
func (r *repository) PhoneTaken(ctx context.Context, phone string, excludeEntityID int64) (bool, error) {
	var n int64
	err := r.DB(ctx).
		Model(&models.Entity{}).
		Where("phone = ? AND type = ? AND id <> ?", phone, enums.EntityTypeAgent, excludeEntityID).
		Count(&n).Error
	return n > 0, err
}

func (r *repository) CreateEntity(ctx context.Context, entity *models.Entity) error {
	return r.DB(ctx).Create(entity).Error
}

func (r *repository) CreateAgent(ctx context.Context, agent *models.Agent) error {
	return r.DB(ctx).Create(agent).Error
}

func (r *repository) OpenVendorHistory(ctx context.Context, agentID, vendorID int64, at time.Time) error {
	return r.DB(ctx).Create(&models.VendorHistory{AgentID: agentID, VendorID: vendorID, StartDate: at}).Error
}

func (r *repository) closeVendorHistory(ctx context.Context, agentIDs *gorm.DB, at time.Time) error {
	return r.DB(ctx).
		Model(&models.VendorHistory{}).
		Where("agent_id IN (?) AND end_date IS NULL", agentIDs).
		Update("end_date", at).Error
}

func (r *repository) UpdateAgent(ctx context.Context, agentID int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.DB(ctx).Model(&models.Agent{}).Where("id = ?", agentID).Updates(updates).Error
}

func (r *repository) UpdatePhone(ctx context.Context, entityID int64, phone string) error {
	return r.DB(ctx).Model(&models.Entity{}).Where("id = ?", entityID).Update("phone", phone).Error
}

func (r *repository) CountActiveAgents(ctx context.Context, vendorID int64) (int64, error) {
	var n int64
	err := r.DB(ctx).
		Model(&models.Agent{}).
		Where("vendor_id = ? AND is_deleted = ?", vendorID, false).
		Count(&n).Error
	return n, err
}

func (r *repository) CountOrders(ctx context.Context, filter OrderFilter) (int64, error) {
	query := r.DB(ctx).Model(&models.Order{})
	switch {
	case filter.VendorID > 0:
		query = query.Where("vendor_id = ?", filter.VendorID)
	case filter.AgentID > 0:
		query = query.Where("agent_id = ?", filter.AgentID)
	case filter.UserID > 0:
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	var n int64
	err := query.Count(&n).Error
	return n, err
}

// SoftDeleteVendor marks the vendor and every one of its agents deleted and
// takes the agents offline.
func (r *repository) SoftDeleteVendor(ctx context.Context, vendorID int64, at time.Time) error {
	err := r.DB(ctx).
		Model(&models.Vendor{}).
		Where("id = ?", vendorID).
		Updates(map[string]any{"is_deleted": true, "deleted_at": at}).Error
	if err != nil {
		return err
	}
	agentIDs := r.DB(ctx).Model(&models.Agent{}).Select("id").Where("vendor_id = ?", vendorID)
	if err := r.closeVendorHistory(ctx, agentIDs, at); err != nil {
		return err
	}
	return r.DB(ctx).
		Model(&models.Agent{}).
		Where("vendor_id = ?", vendorID).
		Updates(map[string]any{"is_deleted": true, "deleted_at": at, "status": enums.AgentStatusOffline}).Error
}

func (r *repository) SoftDeleteAgent(ctx context.Context, agentID int64, at time.Time) error {
	err := r.DB(ctx).
		Model(&models.Agent{}).
		Where("id = ?", agentID).
		Updates(map[string]any{"is_deleted": true, "deleted_at": at, "status": enums.AgentStatusOffline}).Error
	if err != nil {
		return err
	}
	agentIDs := r.DB(ctx).Model(&models.Agent{}).Select("id").Where("id = ?", agentID)
	return r.closeVendorHistory(ctx, agentIDs, at)
}

func (r *repository) SoftDeleteUser(ctx context.Context, userID int64, at time.Time) error {
	return r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"is_deleted": true, "deleted_at": at}).Error
}

func (r *repository) DeactivateEntity(ctx context.Context, entityID int64, at time.Time) error {
	return r.DB(ctx).
		Model(&models.Entity{}).
		Where("id = ?", entityID).
		Updates(map[string]any{"is_active": false, "deleted_at": at}).Error
}
