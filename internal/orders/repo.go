package orders

import (
	"context"

	"github.com/nokasa/pickup-backend/internal/actors"
	"github.com/nokasa/pickup-backend/internal/repo"
	"github.com/nokasa/pickup-backend/pkg/db/models"
	"github.com/nokasa/pickup-backend/pkg/enums"
	"github.com/nokasa/pickup-backend/pkg/pagination"
	"gorm.io/gorm"
)

// Repository defines persistence operations for orders and the rows created with them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOwnedOrder(ctx context.Context, actor actors.Actor, orderID int64) (*models.Order, error)
	FindOfferedOrder(ctx context.Context, actor actors.Actor, orderID int64) (*models.Order, error)
	OrderStatus(ctx context.Context, orderID int64) (enums.OrderStatus, error)
	CreateAddress(ctx context.Context, address *models.Address) error
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateTransaction(ctx context.Context, txn *models.Transaction, tax *models.TaxDetails) error
	TransitionOrder(ctx context.Context, orderID int64, expected enums.OrderStatus, updates map[string]any) (int64, error)
	FindAddress(ctx context.Context, addressID int64) (*models.Address, error)
	FindVendor(ctx context.Context, vendorID int64) (*models.Vendor, error)
	FindCustomer(ctx context.Context, userID int64) (*Customer, error)
	FindAgentRef(ctx context.Context, agentID int64) (*AgentRef, error)
	FindOpenTransaction(ctx context.Context, orderID int64) (*models.Transaction, error)
	CompleteTransaction(ctx context.Context, transactionID int64) (int64, error)
	LatestCompletedInvoice(ctx context.Context, orderID int64) (string, error)
	ListVendorHistory(ctx context.Context, vendorID int64, filter HistoryFilter) ([]models.Order, error)
	CountVendorHistory(ctx context.Context, vendorID int64, filter HistoryFilter) (int64, error)
}

// Customer is the user projection shown to vendors and agents.
type Customer struct {
	UserID   int64  `gorm:"column:user_id" json:"-"`
	EntityID int64  `gorm:"column:entity_id" json:"-"`
	Name     string `gorm:"column:name" json:"name"`
	Phone    string `gorm:"column:phone" json:"phone"`
}

// AgentRef is the short agent projection embedded in order views.
type AgentRef struct {
	ID       int64  `gorm:"column:id" json:"id"`
	EntityID int64  `gorm:"column:entity_id" json:"-"`
	Name     string `gorm:"column:name" json:"name"`
}

// HistoryFilter scopes a vendor history page.
type HistoryFilter struct {
	Statuses []enums.OrderStatus
	Cursor   *pagination.Cursor
	Limit    int
}

type repository struct {
	repo.Base
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

// ownedScope restricts a query to orders the actor may see. Vendors see
// orders routed to them; agents see orders assigned to them; users see their
// own; admins see everything. Anything else matches nothing.
func ownedScope(actor actors.Actor) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch {
		case actor.IsVendor():
			return db.Where("orders.vendor_id = ?", actor.VendorID)
		case actor.IsAgent():
			return db.Where("orders.agent_id = ?", actor.AgentID)
		case actor.Type == enums.EntityTypeUser && actor.UserID > 0:
			return db.Where("orders.user_id = ?", actor.UserID)
		case actor.Type == enums.EntityTypeAdmin && actor.AdminID > 0:
			return db
		default:
			return db.Where("1 = 0")
		}
	}
}

// offerScope widens ownedScope for vendors deciding on an order: every NEW
// order is an open offer any vendor may accept or decline.
func offerScope(actor actors.Actor) func(*gorm.DB) *gorm.DB {
	if !actor.IsVendor() {
		return ownedScope(actor)
	}
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("(orders.vendor_id = ? OR orders.status = ?)", actor.VendorID, enums.OrderStatusNew)
	}
}

// FindOwnedOrder loads an order only when the actor may see it. Missing and
// foreign orders both come back as gorm.ErrRecordNotFound.
func (r *repository) FindOwnedOrder(ctx context.Context, actor actors.Actor, orderID int64) (*models.Order, error) {
	return r.findScoped(ctx, ownedScope(actor), orderID)
}

// FindOfferedOrder is FindOwnedOrder plus open NEW offers for vendors.
func (r *repository) FindOfferedOrder(ctx context.Context, actor actors.Actor, orderID int64) (*models.Order, error) {
	return r.findScoped(ctx, offerScope(actor), orderID)
}

// OrderStatus reads only the status column of an order.
func (r *repository) OrderStatus(ctx context.Context, orderID int64) (enums.OrderStatus, error) {
	var order models.Order
	err := r.DB(ctx).
		Select("status").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return "", err
	}
	return order.Status, nil
}

func (r *repository) findScoped(ctx context.Context, scope func(*gorm.DB) *gorm.DB, orderID int64) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).
		Scopes(scope).
		Where("orders.id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) CreateAddress(ctx context.Context, address *models.Address) error {
	return r.DB(ctx).Create(address).Error
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.DB(ctx).Create(order).Error
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.Transaction, tax *models.TaxDetails) error {
	if err := r.DB(ctx).Create(txn).Error; err != nil {
		return err
	}
	if tax == nil {
		return nil
	}
	tax.TransactionID = txn.ID
	return r.DB(ctx).Create(tax).Error
}

// TransitionOrder applies updates only while the order is still in expected.
// The returned count is zero when a concurrent writer got there first.
func (r *repository) TransitionOrder(ctx context.Context, orderID int64, expected enums.OrderStatus, updates map[string]any) (int64, error) {
	query := r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, expected)
	return r.Conditional(ctx, query, updates)
}

func (r *repository) FindAddress(ctx context.Context, addressID int64) (*models.Address, error) {
	var address models.Address
	if err := r.DB(ctx).Where("id = ?", addressID).First(&address).Error; err != nil {
		return nil, err
	}
	return &address, nil
}

func (r *repository) FindVendor(ctx context.Context, vendorID int64) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := r.DB(ctx).Where("id = ?", vendorID).First(&vendor).Error; err != nil {
		return nil, err
	}
	return &vendor, nil
}

func (r *repository) FindCustomer(ctx context.Context, userID int64) (*Customer, error) {
	var customer Customer
	err := r.DB(ctx).
		Table("users AS u").
		Select("u.id AS user_id, u.entity_id, u.name, e.phone").
		Joins("JOIN entities e ON e.id = u.entity_id").
		Where("u.id = ?", userID).
		Take(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *repository) FindAgentRef(ctx context.Context, agentID int64) (*AgentRef, error) {
	var ref AgentRef
	err := r.DB(ctx).
		Model(&models.Agent{}).
		Select("id, entity_id, name").
		Where("id = ?", agentID).
		Take(&ref).Error
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (r *repository) FindOpenTransaction(ctx context.Context, orderID int64) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.DB(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.TransactionStatusPending).
		Order("id DESC").
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// CompleteTransaction flips a PENDING transaction to COMPLETED. The quoted
// amount, invoice number and date stay as written at creation.
func (r *repository) CompleteTransaction(ctx context.Context, transactionID int64) (int64, error) {
	query := r.DB(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", transactionID, enums.TransactionStatusPending)
	return r.Conditional(ctx, query, map[string]any{
		"status": enums.TransactionStatusCompleted,
	})
}

// LatestCompletedInvoice returns the invoice number of the newest completed
// transaction, or "" when there is none.
func (r *repository) LatestCompletedInvoice(ctx context.Context, orderID int64) (string, error) {
	var txns []models.Transaction
	err := r.DB(ctx).
		Select("invoice_number").
		Where("order_id = ? AND status = ?", orderID, enums.TransactionStatusCompleted).
		Order("date DESC").
		Limit(1).
		Find(&txns).Error
	if err != nil {
		return "", err
	}
	if len(txns) == 0 {
		return "", nil
	}
	return txns[0].InvoiceNumber, nil
}

func (r *repository) historyQuery(ctx context.Context, vendorID int64, statuses []enums.OrderStatus) *gorm.DB {
	query := r.DB(ctx).Model(&models.Order{}).Where("vendor_id = ?", vendorID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	return query
}

// ListVendorHistory pages through a vendor's orders newest scheduled pickup first.
func (r *repository) ListVendorHistory(ctx context.Context, vendorID int64, filter HistoryFilter) ([]models.Order, error) {
	query := r.historyQuery(ctx, vendorID, filter.Statuses)
	if filter.Cursor != nil {
		query = query.Where("scheduled_pickup_time < ? OR (scheduled_pickup_time = ? AND id < ?)",
			filter.Cursor.At, filter.Cursor.At, filter.Cursor.ID)
	}
	var orders []models.Order
	err := query.
		Order("scheduled_pickup_time DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(filter.Limit)).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) CountVendorHistory(ctx context.Context, vendorID int64, filter HistoryFilter) (int64, error) {
	var total int64
	if err := r.historyQuery(ctx, vendorID, filter.Statuses).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
