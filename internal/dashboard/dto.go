package dashboard

import (
	"time"

	"github.com/nokasa/pickup-backend/pkg/db/models"
	"github.com/nokasa/pickup-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// Query is the validated /homepage query string.
type Query struct {
	OrderType string `validate:"required,oneof=new accepted pending completed"`
	Sort      string `validate:"required,oneof=0 1"`
}

// Stats are the counters at the top of the home screen. Vendors see
// AgentsAvailable, agents see CompletedOrders.
type Stats struct {
	TodaysOrders    int64  `json:"todaysOrders"`
	PendingOrders   int64  `json:"pendingOrders"`
	AgentsAvailable *int64 `json:"agentsAvailable,omitempty"`
	CompletedOrders *int64 `json:"completedOrders,omitempty"`
}

type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type Agent struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Status        string `json:"status"`
	VehicleType   string `json:"vehicleType"`
	VehicleNumber string `json:"vehicleNumber"`
}

type Address struct {
	Street     string   `json:"street"`
	City       string   `json:"city"`
	State      string   `json:"state"`
	PostalCode string   `json:"postalCode"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
}

// Card is one order on the home screen.
type Card struct {
	ID                  int64             `json:"id"`
	Status              enums.OrderStatus `json:"status"`
	ScheduledPickupTime time.Time         `json:"scheduledPickupTime"`
	ActualPickupTime    *time.Time        `json:"actualPickupTime,omitempty"`
	EstimatedWeight     decimal.Decimal   `json:"estimatedWeight"`
	ActualWeight        *decimal.Decimal  `json:"actualWeight,omitempty"`
	Items               models.LineItems  `json:"items"`
	User                Customer          `json:"user"`
	Agent               *Agent            `json:"agent,omitempty"`
	PickupAddress       *Address          `json:"pickupAddress,omitempty"`
}

// Orders splits the week ahead at the end of today.
type Orders struct {
	Today    []Card `json:"today"`
	Upcoming []Card `json:"upcoming"`
}

// Dashboard is the /homepage response.
type Dashboard struct {
	Stats  Stats  `json:"stats"`
	Orders Orders `json:"orders"`
}
