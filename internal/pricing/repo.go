package pricing

import (
	"context"
	"strings"

	"github.com/nokasa/pickup-backend/internal/repo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PriceRow is one priced waste type for a vendor at a postal code.
type PriceRow struct {
	WasteType  string          `gorm:"column:waste_type"`
	PostalCode string          `gorm:"column:postal_code"`
	Price      decimal.Decimal `gorm:"column:price"`
}

// Candidate is a vendor able to price at least one requested waste type.
type Candidate struct {
	VendorID int64           `gorm:"column:vendor_id"`
	Covered  int             `gorm:"column:covered"`
	Rating   decimal.Decimal `gorm:"column:rating"`
}

// Repository reads vendor price lists.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	PricesFor(ctx context.Context, vendorID int64, postalCode string, wasteTypes []string) ([]PriceRow, error)
	VendorPriceList(ctx context.Context, vendorID int64) ([]PriceRow, error)
	CandidateVendors(ctx context.Context, postalCode string, wasteTypes []string) ([]Candidate, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds a pricing repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) priced(ctx context.Context) *gorm.DB {
	return r.DB(ctx).
		Table("vendor_pricings AS vp").
		Joins("JOIN waste_types wt ON wt.id = vp.waste_type_id")
}

// PricesFor loads the vendor's prices at postalCode. When wasteTypes is empty
// every type priced there is returned.
func (r *repository) PricesFor(ctx context.Context, vendorID int64, postalCode string, wasteTypes []string) ([]PriceRow, error) {
	query := r.priced(ctx).
		Select("wt.name AS waste_type, vp.postal_code, vp.price").
		Where("vp.vendor_id = ? AND vp.postal_code = ?", vendorID, postalCode)
	if len(wasteTypes) > 0 {
		query = query.Where("LOWER(wt.name) IN ?", lowerAll(wasteTypes))
	}
	var rows []PriceRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) VendorPriceList(ctx context.Context, vendorID int64) ([]PriceRow, error) {
	var rows []PriceRow
	err := r.priced(ctx).
		Select("wt.name AS waste_type, vp.postal_code, vp.price").
		Where("vp.vendor_id = ?", vendorID).
		Order("wt.name ASC").
		Order("vp.postal_code ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// CandidateVendors ranks live vendors at postalCode by how many of the
// requested types they price, then rating, then id.
func (r *repository) CandidateVendors(ctx context.Context, postalCode string, wasteTypes []string) ([]Candidate, error) {
	if len(wasteTypes) == 0 {
		return nil, nil
	}
	var rows []Candidate
	err := r.priced(ctx).
		Select("vp.vendor_id AS vendor_id, COUNT(DISTINCT wt.id) AS covered, v.rating AS rating").
		Joins("JOIN vendors v ON v.id = vp.vendor_id").
		Where("vp.postal_code = ? AND v.is_deleted = ?", postalCode, false).
		Where("LOWER(wt.name) IN ?", lowerAll(wasteTypes)).
		Group("vp.vendor_id, v.rating").
		Order("covered DESC").
		Order("v.rating DESC").
		Order("vp.vendor_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
