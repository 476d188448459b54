// Package invoices renders invoices and completed-transaction reports for
// vendors and their agents.
package invoices

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nokasa/pickup-backend/internal/actors"
	"github.com/nokasa/pickup-backend/internal/pricing"
	"github.com/nokasa/pickup-backend/pkg/auth"
	"github.com/nokasa/pickup-backend/pkg/config"
	"github.com/nokasa/pickup-backend/pkg/db"
	pkgerrors "github.com/nokasa/pickup-backend/pkg/errors"
	"github.com/nokasa/pickup-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

const (
	moneyPlaces   = 2
	reportDateFmt = "2 Jan 2006"
)

// Service defines the invoice read operations.
type Service interface {
	GetInvoice(ctx context.Context, principal auth.Principal, invoiceNumber string) (*Invoice, error)
	ListTransactions(ctx context.Context, principal auth.Principal) ([]DayGroup, error)
}

type ServiceParams struct {
	Repo    Repository
	Gate    *actors.Gate
	Pricing *pricing.Resolver
	Config  config.OrderConfig
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	gate    *actors.Gate
	pricing *pricing.Resolver
	dueIn   time.Duration
	loc     *time.Location
	logg    *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("invoices repository is required")
	}
	if params.Gate == nil {
		return nil, fmt.Errorf("authorization gate is required")
	}
	if params.Pricing == nil {
		return nil, fmt.Errorf("pricing resolver is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	days := params.Config.InvoiceDueInDays
	if days <= 0 {
		days = 7
	}
	return &service{
		repo:    params.Repo,
		gate:    params.Gate,
		pricing: params.Pricing,
		dueIn:   time.Duration(days) * 24 * time.Hour,
		loc:     params.Config.Location(),
		logg:    logg,
	}, nil
}

// vendorScope is the vendor whose books the principal may read. Agents read
// their vendor's.
func (s *service) vendorScope(ctx context.Context, principal auth.Principal) (int64, error) {
	actor, err := s.gate.Resolve(ctx, principal)
	if err != nil {
		return 0, err
	}
	if !actor.IsVendor() && !actor.IsAgent() {
		return 0, pkgerrors.New(pkgerrors.CodeForbidden, "Unauthorized access")
	}
	return actor.VendorID, nil
}

func (s *service) GetInvoice(ctx context.Context, principal auth.Principal, invoiceNumber string) (*Invoice, error) {
	invoiceNumber = strings.TrimSpace(invoiceNumber)
	if invoiceNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Missing invoice ID")
	}
	vendorID, err := s.vendorScope(ctx, principal)
	if err != nil {
		return nil, err
	}

	row, err := s.repo.FindInvoice(ctx, invoiceNumber, vendorID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}

	vendor, err := s.repo.FindVendor(ctx, row.VendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}
	address, err := s.repo.FindAddress(ctx, row.PickupAddressID)
	if err != nil && !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pickup address")
	}
	customer, err := s.repo.FindCustomer(ctx, row.UserID)
	if err != nil && !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	tax, err := s.repo.FindTax(ctx, row.TransactionID)
	if err != nil && !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tax details")
	}

	postal := ""
	if address != nil {
		postal = address.PostalCode
	}
	prices, err := s.pricing.PriceMapFor(ctx, vendor.ID, postal, nil)
	if err != nil {
		return nil, err
	}

	invoice := &Invoice{
		InvoiceNumber: row.InvoiceNumber,
		Date:          row.Date,
		DueDate:       row.ScheduledPickupTime.Add(s.dueIn),
		VendorName:    vendor.Name,
		VendorBankDetails: BankDetails{
			BankName:      stringValue(vendor.BankName),
			AccountName:   stringValue(vendor.AccountName),
			AccountNumber: stringValue(vendor.AccountNumber),
		},
		Items:    lineItems(row, prices),
		Subtotal: row.Amount,
		TaxDetails: Tax{
			GSTRate:           decimal.Zero,
			CGSTAmount:        decimal.Zero,
			SGSTAmount:        decimal.Zero,
			IGSTAmount:        decimal.Zero,
			TotalTaxableValue: decimal.Zero,
		},
	}
	if tax != nil {
		invoice.TaxDetails = Tax{
			GSTRate:           tax.GSTRate,
			CGSTAmount:        tax.CGST,
			SGSTAmount:        tax.SGST,
			IGSTAmount:        tax.IGST,
			TotalTaxableValue: tax.TotalTaxableValue,
		}
	}
	invoice.Total = row.Amount.Add(invoice.TaxDetails.TotalTaxableValue).Round(moneyPlaces)

	if customer != nil {
		invoice.CustomerName = customer.Name
		invoice.CustomerPhone = customer.Phone
	}
	if address != nil {
		invoice.VendorAddress = joinAddress(vendor.BusinessName, address.Street, address.City)
		invoice.CustomerAddress = joinAddress(address.Street, address.City, address.State, address.PostalCode)
	} else {
		invoice.VendorAddress = joinAddress(vendor.BusinessName)
	}
	return invoice, nil
}

// lineItems prices every stored item. Types missing from the price list are
// shown at zero.
func lineItems(row *InvoiceRow, prices pricing.PriceMap) []LineItem {
	out := make([]LineItem, 0, len(row.Items))
	for _, item := range row.Items {
		unit, ok := prices.Lookup(item.WasteType)
		if !ok {
			unit = decimal.Zero
		}
		out = append(out, LineItem{
			Description: item.WasteType,
			UnitPrice:   unit,
			Quantity:    item.Quantity,
			Total:       unit.Mul(item.Quantity).Round(moneyPlaces),
		})
	}
	return out
}

func stringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func joinAddress(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

// ListTransactions groups the vendor's completed transactions by calendar
// day, newest day first.
func (s *service) ListTransactions(ctx context.Context, principal auth.Principal) ([]DayGroup, error) {
	vendorID, err := s.vendorScope(ctx, principal)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListCompleted(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	return groupByDay(rows, s.loc), nil
}

func groupByDay(rows []ReportRow, loc *time.Location) []DayGroup {
	groups := []DayGroup{}
	index := map[string]int{}
	for _, row := range rows {
		day := row.Date.In(loc).Format(reportDateFmt)
		i, ok := index[day]
		if !ok {
			i = len(groups)
			index[day] = i
			groups = append(groups, DayGroup{Date: day})
		}
		groups[i].Data = append(groups[i].Data, ReportEntry{
			OrderID:       row.OrderID,
			UserName:      row.UserName,
			ItemCount:     countValid(row),
			Amount:        row.Amount,
			InvoiceNumber: row.InvoiceNumber,
		})
	}
	return groups
}

func countValid(row ReportRow) int {
	n := 0
	for _, item := range row.Items {
		if strings.TrimSpace(item.WasteType) != "" && item.Quantity.IsPositive() {
			n++
		}
	}
	return n
}
