package orders

import (
	"context"
	"fmt"

	"github.com/nokasa/pickup-backend/internal/pricing"
	"github.com/nokasa/pickup-backend/pkg/auth"
	"github.com/nokasa/pickup-backend/pkg/db"
	"github.com/nokasa/pickup-backend/pkg/db/models"
	"github.com/nokasa/pickup-backend/pkg/enums"
	pkgerrors "github.com/nokasa/pickup-backend/pkg/errors"
	"github.com/nokasa/pickup-backend/pkg/pagination"
)

var closedStatuses = []enums.OrderStatus{
	enums.OrderStatusCompleted,
	enums.OrderStatusRejected,
	enums.OrderStatusCancelled,
}

// Details returns the order as seen by its vendor or assigned agent, with
// line items priced at the vendor's current list.
func (s *service) Details(ctx context.Context, input OrderRefInput) (*OrderDetails, error) {
	actor, err := s.gate.Resolve(ctx, input.Principal)
	if err != nil {
		return nil, err
	}
	if !actor.IsVendor() && !actor.IsAgent() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "unauthorized access")
	}
	order, err := loadOwned(ctx, s.repo, actor, input.OrderID)
	if err != nil {
		return nil, err
	}

	address, err := s.repo.FindAddress(ctx, order.PickupAddressID)
	if err != nil && !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pickup address")
	}

	details := &OrderDetails{
		ID:                  order.ID,
		Status:              order.Status,
		ScheduledPickupTime: order.ScheduledPickupTime,
		ActualPickupTime:    order.ActualPickupTime,
		EstimatedWeight:     order.EstimatedWeight,
		ActualWeight:        actualWeight(order),
		Items:               []pricing.PricedItem{},
		PickupAddress:       NewAddressView(address),
		Rating:              order.Rating,
		Review:              order.Review,
	}

	if order.VendorID != nil && address != nil {
		prices, err := s.pricing.PriceMapFor(ctx, *order.VendorID, address.PostalCode, nil)
		if err != nil {
			return nil, err
		}
		quote := pricing.Estimate(order.Items, prices)
		details.Items = quote.Items
		details.TotalOrderCost = quote.TotalCost
	}

	customer, err := s.repo.FindCustomer(ctx, order.UserID)
	if err != nil && !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	details.Customer = customer

	if order.AgentID != nil {
		agent, err := s.repo.FindAgentRef(ctx, *order.AgentID)
		if err != nil && !db.IsNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent")
		}
		details.Agent = agent
	}

	if order.Status == enums.OrderStatusCompleted {
		invoice, err := s.repo.LatestCompletedInvoice(ctx, order.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice number")
		}
		details.InvoiceNumber = invoice
	}
	return details, nil
}

// VendorHistory pages through the calling vendor's closed orders, newest
// scheduled pickup first, each with its cancel or reject audit rows.
func (s *service) VendorHistory(ctx context.Context, input VendorHistoryInput) (*VendorHistoryPage, error) {
	vendor, err := s.gate.ResolveVendor(ctx, input.Principal)
	if err != nil {
		return nil, err
	}

	statuses := closedStatuses
	if input.Status != "" {
		if !input.Status.IsTerminal() {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", input.Status)
		}
		statuses = []enums.OrderStatus{input.Status}
	}
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	filter := HistoryFilter{Statuses: statuses, Cursor: cursor, Limit: input.Limit}
	rows, err := s.repo.ListVendorHistory(ctx, vendor.ID, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vendor history")
	}
	total, err := s.repo.CountVendorHistory(ctx, vendor.ID, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count vendor history")
	}

	page := pagination.Trim(rows, input.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{At: o.ScheduledPickupTime, ID: o.ID}
	})

	ids := make([]int64, 0, len(page.Items))
	for _, o := range page.Items {
		ids = append(ids, o.ID)
	}
	records, err := s.recorder.ListForOrders(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]HistoryItem, 0, len(page.Items))
	for i := range page.Items {
		o := &page.Items[i]
		item := HistoryItem{
			ID:                  o.ID,
			Status:              o.Status,
			ScheduledPickupTime: o.ScheduledPickupTime,
			ActualPickupTime:    o.ActualPickupTime,
			EstimatedWeight:     o.EstimatedWeight,
			ActualWeight:        actualWeight(o),
			Items:               o.Items,
			History:             records[o.ID],
		}
		if hist := records[o.ID]; len(hist) > 0 {
			latest := hist[0]
			item.Reasons = latest.Reasons
			item.RejectedAt = latest.RejectedAt
			item.CancelledAt = latest.CancelledAt
		}
		items = append(items, item)
	}

	return &VendorHistoryPage{Items: items, NextCursor: page.NextCursor, Total: total}, nil
}

// AgentPricings lists the price list of the calling agent's vendor.
func (s *service) AgentPricings(ctx context.Context, principal auth.Principal) (*AgentPricings, error) {
	agent, err := s.gate.ResolveAgent(ctx, principal)
	if err != nil {
		return nil, err
	}
	rows, err := s.pricing.Repository().VendorPriceList(ctx, agent.VendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("load pricing for vendor %d", agent.VendorID))
	}
	if len(rows) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "No pricing data found")
	}
	out := &AgentPricings{VendorID: agent.VendorID, Pricings: make([]AgentPricing, 0, len(rows))}
	for _, row := range rows {
		out.Pricings = append(out.Pricings, AgentPricing{
			WasteType:  row.WasteType,
			PostalCode: row.PostalCode,
			Price:      row.Price,
		})
	}
	return out, nil
}
