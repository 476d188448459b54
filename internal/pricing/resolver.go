// Package pricing turns requested line items into priced quotes using a
// vendor's area-scoped price list.
package pricing

import (
	"context"
	"fmt"
	"strings"

	"github.com/nokasa/pickup-backend/pkg/db/models"
	pkgerrors "github.com/nokasa/pickup-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const moneyPlaces = 2

// PriceMap maps a lowercased waste type name to its unit price.
type PriceMap map[string]decimal.Decimal

// NewPriceMap indexes rows case-insensitively. Later rows win on collision.
func NewPriceMap(rows []PriceRow) PriceMap {
	out := make(PriceMap, len(rows))
	for _, row := range rows {
		out[strings.ToLower(strings.TrimSpace(row.WasteType))] = row.Price
	}
	return out
}

// Lookup returns the unit price for name, ignoring case.
func (m PriceMap) Lookup(name string) (decimal.Decimal, bool) {
	price, ok := m[strings.ToLower(strings.TrimSpace(name))]
	return price, ok
}

// PricedItem is one line item with its unit price and rounded cost.
type PricedItem struct {
	WasteType string          `json:"wasteType"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Cost      decimal.Decimal `json:"cost"`
}

// Quote is the priced result for a set of line items.
type Quote struct {
	TotalWeight decimal.Decimal `json:"totalWeight"`
	TotalCost   decimal.Decimal `json:"totalCost"`
	Items       []PricedItem    `json:"items"`
}

// Price prices every item against prices. An item without a price fails the
// whole quote. Each item cost is rounded half-up to 2 places before summing
// and the total is rounded again.
func Price(items models.LineItems, prices PriceMap) (Quote, error) {
	if len(items) == 0 {
		return Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "items required")
	}
	quote := Quote{
		TotalWeight: decimal.Zero,
		TotalCost:   decimal.Zero,
		Items:       make([]PricedItem, 0, len(items)),
	}
	for _, item := range items {
		if strings.TrimSpace(item.WasteType) == "" {
			return Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "waste type required")
		}
		if !item.Quantity.IsPositive() {
			return Quote{}, pkgerrors.Newf(pkgerrors.CodeValidation, "quantity must be positive for %s", item.WasteType)
		}
		unit, ok := prices.Lookup(item.WasteType)
		if !ok {
			return Quote{}, InvalidWasteType(item.WasteType)
		}
		quote.add(item, unit)
	}
	quote.TotalCost = quote.TotalCost.Round(moneyPlaces)
	return quote, nil
}

// Estimate prices what it can. Unknown types and non-positive quantities are
// skipped. Used for read-only projections of stored orders.
func Estimate(items models.LineItems, prices PriceMap) Quote {
	quote := Quote{TotalWeight: decimal.Zero, TotalCost: decimal.Zero, Items: []PricedItem{}}
	for _, item := range items {
		if !item.Quantity.IsPositive() {
			continue
		}
		unit, ok := prices.Lookup(item.WasteType)
		if !ok {
			continue
		}
		quote.add(item, unit)
	}
	quote.TotalCost = quote.TotalCost.Round(moneyPlaces)
	return quote
}

func (q *Quote) add(item models.LineItem, unit decimal.Decimal) {
	cost := item.Quantity.Mul(unit).Round(moneyPlaces)
	q.Items = append(q.Items, PricedItem{
		WasteType: item.WasteType,
		Quantity:  item.Quantity,
		UnitPrice: unit,
		Cost:      cost,
	})
	q.TotalWeight = q.TotalWeight.Add(item.Quantity)
	q.TotalCost = q.TotalCost.Add(cost)
}

// InvalidWasteType is the validation error for an unpriced waste type.
func InvalidWasteType(name string) error {
	return pkgerrors.Newf(pkgerrors.CodeValidation, "Invalid waste type: %s", name).
		WithDetails(map[string]any{"wasteType": name})
}

// Resolver prices items against the database.
type Resolver struct {
	repo Repository
}

// NewResolver builds a resolver over the pricing repository.
func NewResolver(repo Repository) (*Resolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("pricing repository required")
	}
	return &Resolver{repo: repo}, nil
}

// WithTx returns a resolver whose reads run inside tx.
func (r *Resolver) WithTx(tx *gorm.DB) *Resolver {
	return &Resolver{repo: r.repo.WithTx(tx)}
}

// Repository exposes the underlying reads for callers that need raw rows.
func (r *Resolver) Repository() Repository { return r.repo }

// PriceMapFor loads the vendor's price map at postalCode, narrowed to
// wasteTypes when given.
func (r *Resolver) PriceMapFor(ctx context.Context, vendorID int64, postalCode string, wasteTypes []string) (PriceMap, error) {
	rows, err := r.repo.PricesFor(ctx, vendorID, postalCode, wasteTypes)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor pricing")
	}
	return NewPriceMap(rows), nil
}

// ComputeCost prices items for vendorID at postalCode, all or nothing.
func (r *Resolver) ComputeCost(ctx context.Context, vendorID int64, postalCode string, items models.LineItems) (Quote, error) {
	if len(items) == 0 {
		return Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "items required")
	}
	prices, err := r.PriceMapFor(ctx, vendorID, postalCode, wasteTypeNames(items))
	if err != nil {
		return Quote{}, err
	}
	return Price(items, prices)
}

// SelectVendor picks the best ranked vendor serving postalCode for the
// requested types and prices the items with it.
func (r *Resolver) SelectVendor(ctx context.Context, postalCode string, items models.LineItems) (int64, Quote, error) {
	if len(items) == 0 {
		return 0, Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "items required")
	}
	candidates, err := r.repo.CandidateVendors(ctx, postalCode, wasteTypeNames(items))
	if err != nil {
		return 0, Quote{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rank vendors")
	}
	if len(candidates) == 0 {
		return 0, Quote{}, pkgerrors.New(pkgerrors.CodeNotFound, "no vendor available for this location and waste types")
	}
	best := candidates[0]
	quote, err := r.ComputeCost(ctx, best.VendorID, postalCode, items)
	if err != nil {
		return 0, Quote{}, err
	}
	return best.VendorID, quote, nil
}

func wasteTypeNames(items models.LineItems) []string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.WasteType)
	}
	return names
}
