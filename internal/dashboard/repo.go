package dashboard

import (
	"context"
	"time"

	"github.com/nokasa/pickup-backend/internal/repo"
	"github.com/nokasa/pickup-backend/pkg/db/models"
	"github.com/nokasa/pickup-backend/pkg/enums"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Scope restricts a query to one vendor or one agent.
type Scope struct {
	VendorID int64
	AgentID  int64
}

// Window selects orders in a status scheduled inside [From, To).
type Window struct {
	Scope
	Status enums.OrderStatus
	From   *time.Time
	To     *time.Time
	Desc   bool
}

// OrderRow is an order joined with its customer, agent and pickup address.
type OrderRow struct {
	ID                  int64               `gorm:"column:id"`
	Status              enums.OrderStatus   `gorm:"column:status"`
	ScheduledPickupTime time.Time           `gorm:"column:scheduled_pickup_time"`
	ActualPickupTime    *time.Time          `gorm:"column:actual_pickup_time"`
	EstimatedWeight     decimal.Decimal     `gorm:"column:estimated_weight"`
	ActualWeight        decimal.NullDecimal `gorm:"column:actual_weight"`
	Items               models.LineItems    `gorm:"column:items"`
	CustomerName        string              `gorm:"column:customer_name"`
	CustomerPhone       string              `gorm:"column:customer_phone"`
	AgentID             *int64              `gorm:"column:agent_id"`
	AgentName           *string             `gorm:"column:agent_name"`
	AgentStatus         *string             `gorm:"column:agent_status"`
	VehicleType         *string             `gorm:"column:vehicle_type"`
	VehicleNumber       *string             `gorm:"column:vehicle_number"`
	Street              *string             `gorm:"column:street"`
	City                *string             `gorm:"column:city"`
	State               *string             `gorm:"column:state"`
	PostalCode          *string             `gorm:"column:postal_code"`
	Latitude            *float64            `gorm:"column:latitude"`
	Longitude           *float64            `gorm:"column:longitude"`
}

// Repository runs the dashboard counters and order window.
type Repository interface {
	CountOrders(ctx context.Context, w Window) (int64, error)
	CountAvailableAgents(ctx context.Context, vendorID int64) (int64, error)
	ListWindow(ctx context.Context, w Window) ([]OrderRow, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func applyWindow(query *gorm.DB, w Window) *gorm.DB {
	if w.VendorID > 0 {
		query = query.Where("o.vendor_id = ?", w.VendorID)
	}
	if w.AgentID > 0 {
		query = query.Where("o.agent_id = ?", w.AgentID)
	}
	if w.Status != "" {
		query = query.Where("o.status = ?", w.Status)
	}
	if w.From != nil {
		query = query.Where("o.scheduled_pickup_time >= ?", *w.From)
	}
	if w.To != nil {
		query = query.Where("o.scheduled_pickup_time < ?", *w.To)
	}
	return query
}

func (r *repository) CountOrders(ctx context.Context, w Window) (int64, error) {
	var n int64
	err := applyWindow(r.DB(ctx).Table("orders AS o"), w).Count(&n).Error
	return n, err
}

func (r *repository) CountAvailableAgents(ctx context.Context, vendorID int64) (int64, error) {
	var n int64
	err := r.DB(ctx).
		Model(&models.Agent{}).
		Where("vendor_id = ? AND status = ? AND is_deleted = ?", vendorID, enums.AgentStatusAvailable, false).
		Count(&n).Error
	return n, err
}

func (r *repository) ListWindow(ctx context.Context, w Window) ([]OrderRow, error) {
	direction := "ASC"
	if w.Desc {
		direction = "DESC"
	}
	query := r.DB(ctx).
		Table("orders AS o").
		Select(`o.id, o.status, o.scheduled_pickup_time, o.actual_pickup_time, o.estimated_weight,
			o.actual_weight, o.items, u.name AS customer_name, e.phone AS customer_phone,
			a.id AS agent_id, a.name AS agent_name, a.status AS agent_status, a.vehicle_type, a.vehicle_number,
			ad.street, ad.city, ad.state, ad.postal_code, ad.latitude, ad.longitude`).
		Joins("JOIN users u ON u.id = o.user_id").
		Joins("JOIN entities e ON e.id = u.entity_id").
		Joins("LEFT JOIN agents a ON a.id = o.agent_id").
		Joins("LEFT JOIN addresses ad ON ad.id = o.pickup_address_id")
	var rows []OrderRow
	err := applyWindow(query, w).
		Order("o.scheduled_pickup_time " + direction).
		Order("o.id " + direction).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
