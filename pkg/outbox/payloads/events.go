package payloads

import (
	"time"

	"github.com/nokasa/pickup-backend/pkg/enums"
)

// OrderCreatedEvent is emitted once an order is persisted against a vendor.
type OrderCreatedEvent struct {
	OrderID   int64     `json:"orderId"`
	UserID    int64     `json:"userId"`
	VendorID  int64     `json:"vendorId"`
	TotalCost string    `json:"totalCost"`
	CreatedAt time.Time `json:"createdAt"`
}

// OrderStatusChangedEvent covers accept, reject, cancel, reassign and OTP reissue.
type OrderStatusChangedEvent struct {
	OrderID  int64             `json:"orderId"`
	From     enums.OrderStatus `json:"from"`
	To       enums.OrderStatus `json:"to"`
	VendorID *int64            `json:"vendorId,omitempty"`
	AgentID  *int64            `json:"agentId,omitempty"`
	Reason   string            `json:"reason,omitempty"`
}

// OrderCompletedEvent carries the billing outcome of a confirmed pickup.
type OrderCompletedEvent struct {
	OrderID       int64     `json:"orderId"`
	VendorID      int64     `json:"vendorId"`
	AgentID       int64     `json:"agentId"`
	TransactionID int64     `json:"transactionId"`
	InvoiceNumber string    `json:"invoiceNumber"`
	Amount        string    `json:"amount"`
	CompletedAt   time.Time `json:"completedAt"`
}

// OrderItemsUpdatedEvent reports an agent-side edit of line items.
type OrderItemsUpdatedEvent struct {
	OrderID      int64  `json:"orderId"`
	AgentID      int64  `json:"agentId"`
	ActualWeight string `json:"actualWeight"`
	TotalCost    string `json:"totalCost"`
}

// NotificationRequestedEvent asks the notification worker to deliver a stored notification.
type NotificationRequestedEvent struct {
	NotificationID int64                  `json:"notificationId"`
	EntityID       int64                  `json:"entityId"`
	Type           enums.NotificationType `json:"type"`
	Message        string                 `json:"message"`
	Phone          string                 `json:"phone,omitempty"`
	DeliverSMS     bool                   `json:"deliverSms"`
}
