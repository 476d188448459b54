package orders

import (
	"time"

	"github.com/nokasa/pickup-backend/internal/history"
	"github.com/nokasa/pickup-backend/internal/pricing"
	"github.com/nokasa/pickup-backend/pkg/auth"
	"github.com/nokasa/pickup-backend/pkg/db/models"
	"github.com/nokasa/pickup-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// AddressInput is the pickup address submitted with a new order.
type AddressInput struct {
	Street     string   `json:"street" validate:"required"`
	City       string   `json:"city" validate:"required"`
	State      string   `json:"state" validate:"required"`
	PostalCode string   `json:"postalCode" validate:"required"`
	Country    string   `json:"country" validate:"required"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
}

// CreateOrderInput carries a user's pickup request.
type CreateOrderInput struct {
	Principal           auth.Principal
	ScheduledPickupTime time.Time
	PickupAddress       AddressInput
	Items               models.LineItems
	EstimatedWeight     decimal.Decimal
	ApplicationID       *int64
}

// VendorSummary names the vendor an order was routed to.
type VendorSummary struct {
	Name         string `json:"name"`
	BusinessName string `json:"businessName"`
}

// CreateOrderResult is returned once the order, address and transaction exist.
type CreateOrderResult struct {
	OrderID             int64             `json:"orderId"`
	Status              enums.OrderStatus `json:"status"`
	Vendor              VendorSummary     `json:"vendor"`
	ScheduledPickupTime time.Time         `json:"scheduledPickupTime"`
	Amount              decimal.Decimal   `json:"amount"`
	TransactionID       int64             `json:"transactionId"`
	InvoiceNumber       string            `json:"invoiceNumber"`
}

// AcceptInput assigns an agent to a NEW order.
type AcceptInput struct {
	Principal auth.Principal
	OrderID   int64
	AgentID   int64
}

// RejectInput rejects an order with free-text reasons.
type RejectInput struct {
	Principal auth.Principal
	OrderID   int64
	Reasons   []string
}

// CancelInput cancels an accepted order.
type CancelInput struct {
	Principal auth.Principal
	OrderID   int64
	Reasons   []string
}

// ReassignInput swaps the agent on an accepted order.
type ReassignInput struct {
	Principal auth.Principal
	OrderID   int64
	AgentID   int64
}

// ConfirmInput completes a pickup with the customer's OTP.
type ConfirmInput struct {
	Principal auth.Principal
	OrderID   int64
	OTP       string
}

// OrderRefInput addresses one order as the calling actor.
type OrderRefInput struct {
	Principal auth.Principal
	OrderID   int64
}

// UpdateItemsInput replaces an accepted order's line items.
type UpdateItemsInput struct {
	Principal auth.Principal
	OrderID   int64
	Items     models.LineItems
}

// TransitionResult is the order state after a successful operation.
type TransitionResult struct {
	OrderID  int64             `json:"orderId"`
	Status   enums.OrderStatus `json:"status"`
	VendorID *int64            `json:"vendorId,omitempty"`
	AgentID  *int64            `json:"agentId,omitempty"`
	Message  string            `json:"message"`
}

// ResendOTPResult reports a reissued pickup OTP. The code is only echoed
// back in fixed-code mode; otherwise it goes to the customer out of band.
type ResendOTPResult struct {
	OrderID   int64     `json:"orderId"`
	OTP       string    `json:"otp,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
	Message   string    `json:"message"`
}

// UpdateItemsResult is the repriced order. TotalCost is not persisted.
type UpdateItemsResult struct {
	OrderID     int64                `json:"orderId"`
	Items       []pricing.PricedItem `json:"items"`
	TotalWeight decimal.Decimal      `json:"totalWeight"`
	TotalCost   decimal.Decimal      `json:"totalCost"`
}

// AddressView is the pickup address shown on order views.
type AddressView struct {
	Street     string   `json:"street"`
	City       string   `json:"city"`
	State      string   `json:"state"`
	PostalCode string   `json:"postalCode"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
}

// NewAddressView projects a stored address.
func NewAddressView(a *models.Address) *AddressView {
	if a == nil {
		return nil
	}
	return &AddressView{
		Street:     a.Street,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Latitude:   a.Latitude,
		Longitude:  a.Longitude,
	}
}

// OrderDetails is the full order projection for its vendor or agent.
type OrderDetails struct {
	ID                  int64                `json:"id"`
	Status              enums.OrderStatus    `json:"status"`
	ScheduledPickupTime time.Time            `json:"scheduledPickupTime"`
	ActualPickupTime    *time.Time           `json:"actualPickupTime,omitempty"`
	EstimatedWeight     decimal.Decimal      `json:"estimatedWeight"`
	ActualWeight        *decimal.Decimal     `json:"actualWeight,omitempty"`
	Items               []pricing.PricedItem `json:"items"`
	TotalOrderCost      decimal.Decimal      `json:"totalOrderCost"`
	InvoiceNumber       string               `json:"invoiceNumber,omitempty"`
	Customer            *Customer            `json:"user,omitempty"`
	PickupAddress       *AddressView         `json:"pickupAddress,omitempty"`
	Agent               *AgentRef            `json:"agent,omitempty"`
	Rating              *int                 `json:"rating,omitempty"`
	Review              *string              `json:"review,omitempty"`
}

// VendorHistoryInput pages through a vendor's closed orders.
type VendorHistoryInput struct {
	Principal auth.Principal
	Status    enums.OrderStatus
	Limit     int
	Cursor    string
}

// HistoryItem is one closed order with its latest audit row.
type HistoryItem struct {
	ID                  int64             `json:"id"`
	Status              enums.OrderStatus `json:"status"`
	ScheduledPickupTime time.Time         `json:"scheduledPickupTime"`
	ActualPickupTime    *time.Time        `json:"actualPickupTime,omitempty"`
	EstimatedWeight     decimal.Decimal   `json:"estimatedWeight"`
	ActualWeight        *decimal.Decimal  `json:"actualWeight,omitempty"`
	Items               models.LineItems  `json:"items"`
	Reasons             []string          `json:"reasons,omitempty"`
	RejectedAt          *time.Time        `json:"rejectedAt,omitempty"`
	CancelledAt         *time.Time        `json:"cancelledAt,omitempty"`
	History             []history.Record  `json:"history,omitempty"`
}

// VendorHistoryPage is a page of history plus the filtered total.
type VendorHistoryPage struct {
	Items      []HistoryItem `json:"items"`
	NextCursor string        `json:"nextCursor,omitempty"`
	Total      int64         `json:"total"`
}

// AgentPricing is one row of the agent's vendor price list.
type AgentPricing struct {
	WasteType  string          `json:"wasteType"`
	PostalCode string          `json:"postalCode"`
	Price      decimal.Decimal `json:"price"`
}

// AgentPricings is the price list of the agent's vendor.
type AgentPricings struct {
	VendorID int64          `json:"vendorId"`
	Pricings []AgentPricing `json:"pricings"`
}

func actualWeight(o *models.Order) *decimal.Decimal {
	if !o.ActualWeight.Valid {
		return nil
	}
	w := o.ActualWeight.Decimal
	return &w
}
