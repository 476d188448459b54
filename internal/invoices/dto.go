package invoices

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankDetails is where the customer settles the invoice.
type BankDetails struct {
	BankName      string `json:"bankName"`
	AccountName   string `json:"accountName"`
	AccountNumber string `json:"accountNumber"`
}

// LineItem is one priced row on an invoice.
type LineItem struct {
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    decimal.Decimal `json:"quantity"`
	Total       decimal.Decimal `json:"total"`
}

// Tax is the tax snapshot recorded with the transaction.
type Tax struct {
	GSTRate           decimal.Decimal `json:"gstRate"`
	CGSTAmount        decimal.Decimal `json:"cgstAmount"`
	SGSTAmount        decimal.Decimal `json:"sgstAmount"`
	IGSTAmount        decimal.Decimal `json:"igstAmount"`
	TotalTaxableValue decimal.Decimal `json:"totalTaxableValue"`
}

// Invoice is the printable view of a transaction.
type Invoice struct {
	InvoiceNumber     string          `json:"invoiceNumber"`
	Date              time.Time       `json:"date"`
	DueDate           time.Time       `json:"dueDate"`
	VendorName        string          `json:"vendorName"`
	VendorAddress     string          `json:"vendorAddress"`
	VendorBankDetails BankDetails     `json:"vendorBankDetails"`
	CustomerName      string          `json:"customerName"`
	CustomerPhone     string          `json:"customerPhone"`
	CustomerAddress   string          `json:"customerAddress"`
	Items             []LineItem      `json:"items"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	TaxDetails        Tax             `json:"taxDetails"`
	Total             decimal.Decimal `json:"total"`
}

// ReportEntry is one completed transaction in the report.
type ReportEntry struct {
	OrderID       int64           `json:"orderId"`
	UserName      string          `json:"userName"`
	ItemCount     int             `json:"itemCount"`
	Amount        decimal.Decimal `json:"amount"`
	InvoiceNumber string          `json:"invoiceNumber"`
}

// DayGroup is every completed transaction of one calendar day.
type DayGroup struct {
	Date string        `json:"date"`
	Data []ReportEntry `json:"data"`
}
