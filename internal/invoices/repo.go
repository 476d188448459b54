package invoices

import (
	"context"
	"time"

	"github.com/nokasa/pickup-backend/internal/repo"
	"github.com/nokasa/pickup-backend/pkg/db/models"
	"github.com/nokasa/pickup-backend/pkg/enums"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// reportLimit caps a single transactions report.
const reportLimit = 1000

// InvoiceRow is a transaction joined with the order it settles.
type InvoiceRow struct {
	TransactionID       int64            `gorm:"column:transaction_id"`
	InvoiceNumber       string           `gorm:"column:invoice_number"`
	Date                time.Time        `gorm:"column:date"`
	Amount              decimal.Decimal  `gorm:"column:amount"`
	OrderID             int64            `gorm:"column:order_id"`
	ScheduledPickupTime time.Time        `gorm:"column:scheduled_pickup_time"`
	Items               models.LineItems `gorm:"column:items"`
	PickupAddressID     int64            `gorm:"column:pickup_address_id"`
	UserID              int64            `gorm:"column:user_id"`
	VendorID            int64            `gorm:"column:vendor_id"`
}

// ReportRow is one completed transaction in a vendor report.
type ReportRow struct {
	OrderID       int64            `gorm:"column:order_id"`
	Amount        decimal.Decimal  `gorm:"column:amount"`
	Date          time.Time        `gorm:"column:date"`
	InvoiceNumber string           `gorm:"column:invoice_number"`
	Items         models.LineItems `gorm:"column:items"`
	UserName      string           `gorm:"column:user_name"`
}

// Party is a name and phone pair for an invoice customer.
type Party struct {
	Name  string `gorm:"column:name"`
	Phone string `gorm:"column:phone"`
}

// Repository reads settled transactions and the rows an invoice is built from.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindInvoice(ctx context.Context, invoiceNumber string, vendorID int64) (*InvoiceRow, error)
	FindTax(ctx context.Context, transactionID int64) (*models.TaxDetails, error)
	FindVendor(ctx context.Context, vendorID int64) (*models.Vendor, error)
	FindAddress(ctx context.Context, addressID int64) (*models.Address, error)
	FindCustomer(ctx context.Context, userID int64) (*Party, error)
	ListCompleted(ctx context.Context, vendorID int64) ([]ReportRow, error)
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

// FindInvoice loads the invoice only when its order belongs to vendorID.
func (r *repository) FindInvoice(ctx context.Context, invoiceNumber string, vendorID int64) (*InvoiceRow, error) {
	var row InvoiceRow
	err := r.DB(ctx).
		Table("transactions AS t").
		Select(`t.id AS transaction_id, t.invoice_number, t.date, t.amount,
			o.id AS order_id, o.scheduled_pickup_time, o.items, o.pickup_address_id, o.user_id, o.vendor_id`).
		Joins("JOIN orders o ON o.id = t.order_id").
		Where("t.invoice_number = ? AND o.vendor_id = ?", invoiceNumber, vendorID).
		Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindTax(ctx context.Context, transactionID int64) (*models.TaxDetails, error) {
	var tax models.TaxDetails
	if err := r.DB(ctx).Where("transaction_id = ?", transactionID).Take(&tax).Error; err != nil {
		return nil, err
	}
	return &tax, nil
}

func (r *repository) FindVendor(ctx context.Context, vendorID int64) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := r.DB(ctx).Where("id = ?", vendorID).Take(&vendor).Error; err != nil {
		return nil, err
	}
	return &vendor, nil
}

func (r *repository) FindAddress(ctx context.Context, addressID int64) (*models.Address, error) {
	var address models.Address
	if err := r.DB(ctx).Where("id = ?", addressID).Take(&address).Error; err != nil {
		return nil, err
	}
	return &address, nil
}

func (r *repository) FindCustomer(ctx context.Context, userID int64) (*Party, error) {
	var party Party
	err := r.DB(ctx).
		Table("users AS u").
		Select("u.name, e.phone").
		Joins("JOIN entities e ON e.id = u.entity_id").
		Where("u.id = ?", userID).
		Take(&party).Error
	if err != nil {
		return nil, err
	}
	return &party, nil
}

// ListCompleted returns the vendor's completed transactions, newest first.
func (r *repository) ListCompleted(ctx context.Context, vendorID int64) ([]ReportRow, error) {
	var rows []ReportRow
	err := r.DB(ctx).
		Table("transactions AS t").
		Select("t.order_id, t.amount, t.date, t.invoice_number, o.items, u.name AS user_name").
		Joins("JOIN orders o ON o.id = t.order_id").
		Joins("JOIN users u ON u.id = o.user_id").
		Where("o.vendor_id = ? AND t.status = ?", vendorID, enums.TransactionStatusCompleted).
		Order("t.date DESC").
		Order("t.id DESC").
		Limit(reportLimit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
