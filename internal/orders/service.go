package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nokasa/pickup-backend/internal/actors"
	"github.com/nokasa/pickup-backend/internal/history"
	"github.com/nokasa/pickup-backend/internal/pricing"
	"github.com/nokasa/pickup-backend/pkg/auth"
	"github.com/nokasa/pickup-backend/pkg/config"
	"github.com/nokasa/pickup-backend/pkg/db"
	"github.com/nokasa/pickup-backend/pkg/db/models"
	"github.com/nokasa/pickup-backend/pkg/enums"
	pkgerrors "github.com/nokasa/pickup-backend/pkg/errors"
	"github.com/nokasa/pickup-backend/pkg/logger"
	"github.com/nokasa/pickup-backend/pkg/outbox"
	"github.com/nokasa/pickup-backend/pkg/outbox/payloads"
	"github.com/nokasa/pickup-backend/pkg/security"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FixedReissueOTP is the code older clients expect after a resend.
const FixedReissueOTP = "654321"

const (
	otpDigits          = 6
	statusChangedMsg   = "order status has changed"
	orderNotFoundMsg   = "order not found"
	invoiceNumberStyle = "INV-%d-%d"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithTxOptions(ctx context.Context, opts db.TxOptions, fn func(tx *gorm.DB) error) error
}

type transitionObserver interface {
	ObserveTransition(action, outcome string)
}

type noopObserver struct{}

func (noopObserver) ObserveTransition(string, string) {}

// Service runs the order lifecycle. Every mutating call is one transaction
// whose final write is conditioned on the status it read.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	Accept(ctx context.Context, input AcceptInput) (*TransitionResult, error)
	Reject(ctx context.Context, input RejectInput) (*TransitionResult, error)
	Cancel(ctx context.Context, input CancelInput) (*TransitionResult, error)
	Reassign(ctx context.Context, input ReassignInput) (*TransitionResult, error)
	Confirm(ctx context.Context, input ConfirmInput) (*TransitionResult, error)
	ResendOTP(ctx context.Context, input OrderRefInput) (*ResendOTPResult, error)
	UpdateItems(ctx context.Context, input UpdateItemsInput) (*UpdateItemsResult, error)
	Details(ctx context.Context, input OrderRefInput) (*OrderDetails, error)
	VendorHistory(ctx context.Context, input VendorHistoryInput) (*VendorHistoryPage, error)
	AgentPricings(ctx context.Context, principal auth.Principal) (*AgentPricings, error)
}

// ServiceParams bundles the dependencies required to build the order service.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Gate     *actors.Gate
	Pricing  *pricing.Resolver
	Recorder *history.Recorder
	Outbox   outbox.Emitter
	Metrics  transitionObserver
	Config   config.OrderConfig
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	tx       txRunner
	gate     *actors.Gate
	pricing  *pricing.Resolver
	recorder *history.Recorder
	outbox   outbox.Emitter
	metrics  transitionObserver
	cfg      config.OrderConfig
	logg     *logger.Logger
	now      func() time.Time
	otp      func() (string, error)
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Gate == nil {
		return nil, fmt.Errorf("authorization gate required")
	}
	if params.Pricing == nil {
		return nil, fmt.Errorf("pricing resolver required")
	}
	if params.Recorder == nil {
		return nil, fmt.Errorf("history recorder required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	metrics := params.Metrics
	if metrics == nil {
		metrics = noopObserver{}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		gate:     params.Gate,
		pricing:  params.Pricing,
		recorder: params.Recorder,
		outbox:   params.Outbox,
		metrics:  metrics,
		cfg:      params.Config,
		logg:     logg,
		now:      time.Now,
		otp:      func() (string, error) { return security.GenerateNumericCode(otpDigits) },
	}, nil
}

func (s *service) txOptions(serializable bool) db.TxOptions {
	if serializable {
		return db.Serializable(s.cfg.TxTimeout)
	}
	return db.TxOptions{Timeout: s.cfg.TxTimeout}
}

// finish records the outcome metric and normalizes storage errors.
func (s *service) finish(ctx context.Context, action Action, orderID int64, err error) error {
	if err != nil && pkgerrors.As(err) == nil {
		if db.IsSerializationFailure(err) {
			err = pkgerrors.Wrap(pkgerrors.CodeConflict, err, statusChangedMsg)
		} else {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s order", action))
		}
	}
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(pkgerrors.CodeOf(err)))
	}
	s.metrics.ObserveTransition(string(action), outcome)
	if err != nil && pkgerrors.MetadataFor(pkgerrors.CodeOf(err)).HTTPStatus >= 500 {
		s.logg.Error(s.logg.WithOrderID(ctx, orderID), fmt.Sprintf("order %s failed", action), err)
	}
	return err
}

func loadOwned(ctx context.Context, repo Repository, actor actors.Actor, orderID int64) (*models.Order, error) {
	return loadScoped(ctx, repo.FindOwnedOrder, actor, orderID)
}

// loadOffered is loadOwned for accept and reject, where vendors also reach
// open NEW offers.
func loadOffered(ctx context.Context, repo Repository, actor actors.Actor, orderID int64) (*models.Order, error) {
	return loadScoped(ctx, repo.FindOfferedOrder, actor, orderID)
}

func loadScoped(ctx context.Context, find func(context.Context, actors.Actor, int64) (*models.Order, error), actor actors.Actor, orderID int64) (*models.Order, error) {
	if orderID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id")
	}
	order, err := find(ctx, actor, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, orderNotFoundMsg)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// closedOffer turns a miss on an accept lookup into a state conflict when the
// order exists but is no longer open. Only the status is disclosed.
func closedOffer(ctx context.Context, repo Repository, orderID int64, lookupErr error) error {
	if !pkgerrors.IsCode(lookupErr, pkgerrors.CodeNotFound) {
		return lookupErr
	}
	status, err := repo.OrderStatus(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return lookupErr
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order status")
	}
	return illegal(ActionAccept, status)
}

func illegal(action Action, status enums.OrderStatus) error {
	return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order cannot be %s in status %s", pastTense(action), status).
		WithDetails(map[string]any{"status": status, "expected": requiredStatus(action)})
}

func pastTense(action Action) string {
	switch action {
	case ActionAccept:
		return "accepted"
	case ActionReject:
		return "rejected"
	case ActionCancel:
		return "cancelled"
	case ActionReassign:
		return "reassigned"
	case ActionConfirm:
		return "confirmed"
	case ActionUpdateItems:
		return "updated"
	default:
		return string(action)
	}
}

func lostRace(n int64) error {
	if n == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, statusChangedMsg)
	}
	return nil
}

func actorRef(actor actors.Actor) *outbox.ActorRef {
	return &outbox.ActorRef{EntityID: actor.EntityID, EntityType: actor.Type}
}

func (s *service) emitStatusChange(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, actor actors.Actor, data payloads.OrderStatusChangedEvent) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   data.OrderID,
		Actor:         actorRef(actor),
		Data:          data,
	})
}

func int64Ptr(v int64) *int64 { return &v }

// Create routes a new pickup to the best ranked vendor and records its
// address, transaction and vendor notification.
func (s *service) Create(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	items, err := normalizeItems(input.Items)
	if err != nil {
		return nil, s.finish(ctx, ActionCreate, 0, err)
	}
	if err := validateCreate(input); err != nil {
		return nil, s.finish(ctx, ActionCreate, 0, err)
	}

	var result *CreateOrderResult
	err = s.tx.WithTxOptions(ctx, s.txOptions(false), func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		user, err := s.gate.WithTx(tx).ResolveUser(ctx, input.Principal)
		if err != nil {
			return err
		}

		postal := strings.TrimSpace(input.PickupAddress.PostalCode)
		vendorID, quote, err := s.pricing.WithTx(tx).SelectVendor(ctx, postal, items)
		if err != nil {
			return err
		}
		vendor, err := repo.FindVendor(ctx, vendorID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
		}

		addr := input.PickupAddress
		address := &models.Address{
			EntityID:   input.Principal.EntityID,
			Street:     strings.TrimSpace(addr.Street),
			City:       strings.TrimSpace(addr.City),
			State:      strings.TrimSpace(addr.State),
			PostalCode: postal,
			Country:    strings.TrimSpace(addr.Country),
			Latitude:   addr.Latitude,
			Longitude:  addr.Longitude,
			Type:       enums.AddressTypeHome,
			IsPrimary:  false,
		}
		if err := repo.CreateAddress(ctx, address); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create pickup address")
		}

		order := &models.Order{
			UserID:              user.ID,
			VendorID:            int64Ptr(vendor.ID),
			ApplicationID:       input.ApplicationID,
			Status:              enums.OrderStatusNew,
			PickupAddressID:     address.ID,
			ScheduledPickupTime: input.ScheduledPickupTime.UTC(),
			EstimatedWeight:     input.EstimatedWeight,
			Items:               items,
		}
		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		now := s.now().UTC()
		txn := &models.Transaction{
			OrderID:       order.ID,
			EntityID:      input.Principal.EntityID,
			InvoiceNumber: fmt.Sprintf(invoiceNumberStyle, order.ID, now.UnixMilli()),
			Amount:        quote.TotalCost,
			Type:          enums.TransactionTypePurchase,
			Status:        enums.TransactionStatusPending,
			PaymentMethod: enums.PaymentMethodCash,
			Date:          now,
		}
		tax := &models.TaxDetails{
			GSTRate:           decimal.Zero,
			CGST:              decimal.Zero,
			SGST:              decimal.Zero,
			IGST:              decimal.Zero,
			TotalTaxableValue: decimal.Zero,
		}
		if err := repo.CreateTransaction(ctx, txn, tax); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transaction")
		}

		actor := actors.Actor{EntityID: input.Principal.EntityID, Type: enums.EntityTypeUser, UserID: user.ID}
		if _, err := s.recorder.Notify(ctx, tx, history.Notice{
			EntityID: vendor.EntityID,
			Type:     enums.NotificationTypeInfo,
			Message:  fmt.Sprintf("New pickup request received for %s", order.ScheduledPickupTime.Format(time.RFC3339)),
			Actor:    actorRef(actor),
		}); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(actor),
			Data: payloads.OrderCreatedEvent{
				OrderID:   order.ID,
				UserID:    user.ID,
				VendorID:  vendor.ID,
				TotalCost: quote.TotalCost.StringFixed(2),
				CreatedAt: now,
			},
		}); err != nil {
			return err
		}

		result = &CreateOrderResult{
			OrderID:             order.ID,
			Status:              order.Status,
			Vendor:              VendorSummary{Name: vendor.Name, BusinessName: vendor.BusinessName},
			ScheduledPickupTime: order.ScheduledPickupTime,
			Amount:              quote.TotalCost,
			TransactionID:       txn.ID,
			InvoiceNumber:       txn.InvoiceNumber,
		}
		return nil
	})
	if err != nil {
		return nil, s.finish(ctx, ActionCreate, 0, err)
	}
	_ = s.finish(ctx, ActionCreate, result.OrderID, nil)
	return result, nil
}

func validateCreate(input CreateOrderInput) error {
	if input.ScheduledPickupTime.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "scheduled pickup time required")
	}
	if !input.EstimatedWeight.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "estimated weight must be positive")
	}
	addr := input.PickupAddress
	missing := []string{}
	for field, value := range map[string]string{
		"street":     addr.Street,
		"city":       addr.City,
		"state":      addr.State,
		"postalCode": addr.PostalCode,
		"country":    addr.Country,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "pickup address incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	return nil
}

func normalizeItems(items models.LineItems) (models.LineItems, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	out := make(models.LineItems, 0, len(items))
	for _, item := range items {
		item.WasteType = strings.TrimSpace(item.WasteType)
		if item.WasteType == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "waste type required")
		}
		if !item.Quantity.IsPositive() {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "quantity must be positive for %s", item.WasteType)
		}
		out = append(out, item)
	}
	return out, nil
}

// Accept claims a NEW order for the calling vendor and assigns one of its
// agents. It runs serializable so two vendors cannot both win.
func (s *service) Accept(ctx context.Context, input AcceptInput) (*TransitionResult, error) {
	if input.AgentID <= 0 {
		return nil, s.finish(ctx, ActionAccept, input.OrderID, pkgerrors.New(pkgerrors.CodeValidation, "agent id is required"))
	}

	var result *TransitionResult
	err := s.tx.WithTxOptions(ctx, s.txOptions(true), func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		gate := s.gate.WithTx(tx)
		vendor, err := gate.ResolveVendor(ctx, input.Principal)
		if err != nil {
			return err
		}
		actor := actors.Actor{EntityID: input.Principal.EntityID, Type: enums.EntityTypeVendor, VendorID: vendor.ID}

		agent, err := gate.AgentOfVendor(ctx, vendor.ID, input.AgentID)
		if err != nil {
			return err
		}
		order, err := loadOffered(ctx, repo, actor, input.OrderID)
		if err != nil {
			return closedOffer(ctx, repo, input.OrderID, err)
		}
		if !CanTransition(order.Status, enums.OrderStatusAccepted, actor.Type) {
			return illegal(ActionAccept, order.Status)
		}

		code, err := s.otp()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate pickup otp")
		}
		n, err := repo.TransitionOrder(ctx, order.ID, enums.OrderStatusNew, map[string]any{
			"status":    enums.OrderStatusAccepted,
			"vendor_id": vendor.ID,
			"agent_id":  agent.ID,
			"otp":       code,
		})
		if err != nil {
			return err
		}
		if err := lostRace(n); err != nil {
			return err
		}

		customer, err := repo.FindCustomer(ctx, order.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
		}
		if _, err := s.recorder.Notify(ctx, tx, history.Notice{
			EntityID:   customer.EntityID,
			Type:       enums.NotificationTypeInfo,
			Message:    fmt.Sprintf("Your pickup #%d was accepted by %s. Share OTP %s with the agent at pickup.", order.ID, vendor.Name, code),
			Phone:      customer.Phone,
			DeliverSMS: true,
			Actor:      actorRef(actor),
		}); err != nil {
			return err
		}

		if err := s.emitStatusChange(ctx, tx, enums.EventOrderAccepted, actor, payloads.OrderStatusChangedEvent{
			OrderID:  order.ID,
			From:     enums.OrderStatusNew,
			To:       enums.OrderStatusAccepted,
			VendorID: int64Ptr(vendor.ID),
			AgentID:  int64Ptr(agent.ID),
		}); err != nil {
			return err
		}

		result = &TransitionResult{
			OrderID:  order.ID,
			Status:   enums.OrderStatusAccepted,
			VendorID: int64Ptr(vendor.ID),
			AgentID:  int64Ptr(agent.ID),
			Message:  "order accepted",
		}
		return nil
	})
	if err != nil {
		return nil, s.finish(ctx, ActionAccept, input.OrderID, err)
	}
	_ = s.finish(ctx, ActionAccept, input.OrderID, nil)
	return result, nil
}

// Reject closes an order as REJECTED. A vendor may reject a NEW order; the
// assigned agent may reject an ACCEPTED one. The agent is always cleared.
func (s *service) Reject(ctx context.Context, input RejectInput) (*TransitionResult, error) {
	reasons, err := history.CleanReasons(input.Reasons)
	if err != nil {
		return nil, s.finish(ctx, ActionReject, input.OrderID, err)
	}

	var result *TransitionResult
	err = s.tx.WithTxOptions(ctx, s.txOptions(false), func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		actor, err := s.gate.WithTx(tx).Resolve(ctx, input.Principal)
		if err != nil {
			return err
		}
		if !actor.IsVendor() && !actor.IsAgent() {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only vendors and agents can reject orders")
		}

		order, err := loadOffered(ctx, repo, actor, input.OrderID)
		if err != nil {
			return err
		}
		if !CanTransition(order.Status, enums.OrderStatusRejected, actor.Type) {
			return illegal(ActionReject, order.Status)
		}

		updates := map[string]any{
			"status":   enums.OrderStatusRejected,
			"agent_id": nil,
		}
		vendorID := order.VendorID
		if actor.IsVendor() {
			updates["vendor_id"] = actor.VendorID
			vendorID = int64Ptr(actor.VendorID)
		}
		n, err := repo.TransitionOrder(ctx, order.ID, order.Status, updates)
		if err != nil {
			return err
		}
		if err := lostRace(n); err != nil {
			return err
		}

		if _, err := s.recorder.AppendHistory(ctx, tx, history.Entry{
			OrderID:  order.ID,
			EntityID: actor.EntityID,
			Reasons:  reasons,
			Kind:     enums.HistoryKindReject,
		}); err != nil {
			return err
		}

		if err := s.notifyRejection(ctx, tx, repo, actor, order, vendorID); err != nil {
			return err
		}

		if err := s.emitStatusChange(ctx, tx, enums.EventOrderRejected, actor, payloads.OrderStatusChangedEvent{
			OrderID:  order.ID,
			From:     order.Status,
			To:       enums.OrderStatusRejected,
			VendorID: vendorID,
			Reason:   history.JoinReasons(reasons),
		}); err != nil {
			return err
		}

		result = &TransitionResult{
			OrderID:  order.ID,
			Status:   enums.OrderStatusRejected,
			VendorID: vendorID,
			Message:  "order rejected",
		}
		return nil
	})
	if err != nil {
		return nil, s.finish(ctx, ActionReject, input.OrderID, err)
	}
	_ = s.finish(ctx, ActionReject, input.OrderID, nil)
	return result, nil
}

// notifyRejection tells the customer about a vendor rejection, or the vendor
// about an agent rejection.
func (s *service) notifyRejection(ctx context.Context, tx *gorm.DB, repo Repository, actor actors.Actor, order *models.Order, vendorID *int64) error {
	if actor.IsAgent() {
		if vendorID == nil {
			return nil
		}
		vendor, err := repo.FindVendor(ctx, *vendorID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
		}
		_, err = s.recorder.Notify(ctx, tx, history.Notice{
			EntityID: vendor.EntityID,
			Type:     enums.NotificationTypeWarning,
			Message:  fmt.Sprintf("Agent %s rejected pickup #%d", actor.Name, order.ID),
			Actor:    actorRef(actor),
		})
		return err
	}
	customer, err := repo.FindCustomer(ctx, order.UserID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	_, err = s.recorder.Notify(ctx, tx, history.Notice{
		EntityID: customer.EntityID,
		Type:     enums.NotificationTypeWarning,
		Message:  fmt.Sprintf("Your pickup request #%d could not be accepted", order.ID),
		Actor:    actorRef(actor),
	})
	return err
}

// Cancel closes an ACCEPTED order owned by the calling vendor.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*TransitionResult, error) {
	reasons, err := history.CleanReasons(input.Reasons)
	if err != nil {
		return nil, s.finish(ctx, ActionCancel, input.OrderID, err)
	}

	var result *TransitionResult
	err = s.tx.WithTxOptions(ctx, s.txOptions(false), func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		vendor, err := s.gate.WithTx(tx).ResolveVendor(ctx, input.Principal)
		if err != nil {
			return err
		}
		actor := actors.Actor{EntityID: input.Principal.EntityID, Type: enums.EntityTypeVendor, VendorID: vendor.ID, Name: vendor.Name}

		order, err := loadOwned(ctx, repo, actor, input.OrderID)
		if err != nil {
			return err
		}
		if !CanTransition(order.Status, enums.OrderStatusCancelled, actor.Type) {
			return illegal(ActionCancel, order.Status)
		}

		n, err := repo.TransitionOrder(ctx, order.ID, enums.OrderStatusAccepted, map[string]any{
			"status":   enums.OrderStatusCancelled,
			"agent_id": nil,
		})
		if err != nil {
			return err
		}
		if err := lostRace(n); err != nil {
			return err
		}

		if _, err := s.recorder.AppendHistory(ctx, tx, history.Entry{
			OrderID:  order.ID,
			EntityID: actor.EntityID,
			Reasons:  reasons,
			Kind:     enums.HistoryKindCancel,
		}); err != nil {
			return err
		}

		customer, err := repo.FindCustomer(ctx, order.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
		}
		if _, err := s.recorder.Notify(ctx, tx, history.Notice{
			EntityID: customer.EntityID,
			Type:     enums.NotificationTypeAlert,
			Message:  fmt.Sprintf("Your pickup #%d was cancelled by %s", order.ID, vendor.Name),
			Actor:    actorRef(actor),
		}); err != nil {
			return err
		}

		if err := s.emitStatusChange(ctx, tx, enums.EventOrderCancelled, actor, payloads.OrderStatusChangedEvent{
			OrderID:  order.ID,
			From:     enums.OrderStatusAccepted,
			To:       enums.OrderStatusCancelled,
			VendorID: int64Ptr(vendor.ID),
			Reason:   history.JoinReasons(reasons),
		}); err != nil {
			return err
		}

		result = &TransitionResult{
			OrderID:  order.ID,
			Status:   enums.OrderStatusCancelled,
			VendorID: int64Ptr(vendor.ID),
			Message:  "order cancelled",
		}
		return nil
	})
	if err != nil {
		return nil, s.finish(ctx, ActionCancel, input.OrderID, err)
	}
	_ = s.finish(ctx, ActionCancel, input.OrderID, nil)
	return result, nil
}

// Reassign swaps the agent on an ACCEPTED order. Status is unchanged.
func (s *service) Reassign(ctx context.Context, input ReassignInput) (*TransitionResult, error) {
	if input.AgentID <= 0 {
		return nil, s.finish(ctx, ActionReassign, input.OrderID, pkgerrors.New(pkgerrors.CodeValidation, "agent id is required"))
	}

	var result *TransitionResult
	err := s.tx.WithTxOptions(ctx, s.txOptions(false), func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		gate := s.gate.WithTx(tx)
		vendor, err := gate.ResolveVendor(ctx, input.Principal)
		if err != nil {
			return err
		}
		actor := actors.Actor{EntityID: input.Principal.EntityID, Type: enums.EntityTypeVendor, VendorID: vendor.ID}

		order, err := loadOwned(ctx, repo, actor, input.OrderID)
		if err != nil {
			return err
		}
		if !CanEdit(ActionReassign, order.Status, actor.Type) {
			return illegal(ActionReassign, order.Status)
		}
		agent, err := gate.AgentOfVendor(ctx, vendor.ID, input.AgentID)
		if err != nil {
			return err
		}

		n, err := repo.TransitionOrder(ctx, order.ID, enums.OrderStatusAccepted, map[string]any{
			"agent_id": agent.ID,
		})
		if err != nil {
			return err
		}
		if err := lostRace(n); err != nil {
			return err
		}

		if _, err := s.recorder.Notify(ctx, tx, history.Notice{
			EntityID: agent.EntityID,
			Type:     enums.NotificationTypeInfo,
			Message:  fmt.Sprintf("Pickup #%d has been assigned to you", order.ID),
			Actor:    actorRef(actor),
		}); err != nil {
			return err
		}

		if err := s.emitStatusChange(ctx, tx, enums.EventOrderReassigned, actor, payloads.OrderStatusChangedEvent{
			OrderID:  order.ID,
			From:     enums.OrderStatusAccepted,
			To:       enums.OrderStatusAccepted,
			VendorID: int64Ptr(vendor.ID),
			AgentID:  int64Ptr(agent.ID),
		}); err != nil {
			return err
		}

		result = &TransitionResult{
			OrderID:  order.ID,
			Status:   enums.OrderStatusAccepted,
			VendorID: int64Ptr(vendor.ID),
			AgentID:  int64Ptr(agent.ID),
			Message:  "agent reassigned",
		}
		return nil
	})
	if err != nil {
		return nil, s.finish(ctx, ActionReassign, input.OrderID, err)
	}
	_ = s.finish(ctx, ActionReassign, input.OrderID, nil)
	return result, nil
}

// Confirm completes a pickup when the agent presents the customer's OTP and
// settles the order's pending transaction.
func (s *service) Confirm(ctx context.Context, input ConfirmInput) (*TransitionResult, error) {
	code := strings.TrimSpace(input.OTP)
	if code == "" {
		return nil, s.finish(ctx, ActionConfirm, input.OrderID, pkgerrors.New(pkgerrors.CodeValidation, "otp is required"))
	}

	var result *TransitionResult
	err := s.tx.WithTxOptions(ctx, s.txOptions(false), func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		agent, err := s.gate.WithTx(tx).ResolveAgent(ctx, input.Principal)
		if err != nil {
			return err
		}
		actor := actors.Actor{EntityID: input.Principal.EntityID, Type: enums.EntityTypeAgent, AgentID: agent.ID, VendorID: agent.VendorID}

		order, err := loadOwned(ctx, repo, actor, input.OrderID)
		if err != nil {
			return err
		}
		if !CanTransition(order.Status, enums.OrderStatusCompleted, actor.Type) {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "order is not awaiting pickup (status %s)", order.Status).
				WithDetails(map[string]any{"status": order.Status})
		}
		if order.OTP == nil || *order.OTP != code {
			return pkgerrors.New(pkgerrors.CodeValidation, "Invalid OTP")
		}

		now := s.now().UTC()
		weight := order.EstimatedWeight
		if order.ActualWeight.Valid {
			weight = order.ActualWeight.Decimal
		}
		n, err := repo.TransitionOrder(ctx, order.ID, enums.OrderStatusAccepted, map[string]any{
			"status":             enums.OrderStatusCompleted,
			"actual_pickup_time": now,
			"actual_weight":      weight,
		})
		if err != nil {
			return err
		}
		if err := lostRace(n); err != nil {
			return err
		}

		completed, err := s.settle(ctx, repo, order, now)
		if err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(actor),
			Data:          completed,
		}); err != nil {
			return err
		}

		result = &TransitionResult{
			OrderID:  order.ID,
			Status:   enums.OrderStatusCompleted,
			VendorID: order.VendorID,
			AgentID:  int64Ptr(agent.ID),
			Message:  "order completed",
		}
		return nil
	})
	if err != nil {
		return nil, s.finish(ctx, ActionConfirm, input.OrderID, err)
	}
	_ = s.finish(ctx, ActionConfirm, input.OrderID, nil)
	return result, nil
}

// settle marks the pending transaction COMPLETED. The amount quoted at
// creation is the invoiced amount; collection never reprices it.
func (s *service) settle(ctx context.Context, repo Repository, order *models.Order, at time.Time) (payloads.OrderCompletedEvent, error) {
	event := payloads.OrderCompletedEvent{OrderID: order.ID, CompletedAt: at}
	if order.AgentID != nil {
		event.AgentID = *order.AgentID
	}
	if order.VendorID != nil {
		event.VendorID = *order.VendorID
	}

	txn, err := repo.FindOpenTransaction(ctx, order.ID)
	if err != nil {
		if db.IsNotFound(err) {
			return event, nil
		}
		return event, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	n, err := repo.CompleteTransaction(ctx, txn.ID)
	if err != nil {
		return event, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete transaction")
	}
	if err := lostRace(n); err != nil {
		return event, err
	}
	event.TransactionID = txn.ID
	event.InvoiceNumber = txn.InvoiceNumber
	event.Amount = txn.Amount.StringFixed(2)
	return event, nil
}

// ResendOTP reissues the pickup OTP on an ACCEPTED order.
func (s *service) ResendOTP(ctx context.Context, input OrderRefInput) (*ResendOTPResult, error) {
	var result *ResendOTPResult
	err := s.tx.WithTxOptions(ctx, s.txOptions(false), func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		agent, err := s.gate.WithTx(tx).ResolveAgent(ctx, input.Principal)
		if err != nil {
			return err
		}
		actor := actors.Actor{EntityID: input.Principal.EntityID, Type: enums.EntityTypeAgent, AgentID: agent.ID, VendorID: agent.VendorID}

		order, err := loadOwned(ctx, repo, actor, input.OrderID)
		if err != nil {
			return err
		}
		if !CanEdit(ActionResendOTP, order.Status, actor.Type) {
			return illegal(ActionResendOTP, order.Status)
		}

		code := FixedReissueOTP
		if !s.cfg.FixedReissueOTP {
			if code, err = s.otp(); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate pickup otp")
			}
		}
		now := s.now().UTC()
		n, err := repo.TransitionOrder(ctx, order.ID, enums.OrderStatusAccepted, map[string]any{
			"otp":        code,
			"updated_at": now,
		})
		if err != nil {
			return err
		}
		if err := lostRace(n); err != nil {
			return err
		}

		if !s.cfg.FixedReissueOTP {
			customer, err := repo.FindCustomer(ctx, order.UserID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
			}
			if _, err := s.recorder.Notify(ctx, tx, history.Notice{
				EntityID:   customer.EntityID,
				Type:       enums.NotificationTypeInfo,
				Message:    fmt.Sprintf("Your new pickup OTP for order #%d is %s", order.ID, code),
				Phone:      customer.Phone,
				DeliverSMS: true,
				Actor:      actorRef(actor),
			}); err != nil {
				return err
			}
		}

		if err := s.emitStatusChange(ctx, tx, enums.EventOrderOTPReissued, actor, payloads.OrderStatusChangedEvent{
			OrderID:  order.ID,
			From:     enums.OrderStatusAccepted,
			To:       enums.OrderStatusAccepted,
			VendorID: order.VendorID,
			AgentID:  int64Ptr(agent.ID),
		}); err != nil {
			return err
		}

		result = &ResendOTPResult{OrderID: order.ID, UpdatedAt: now, Message: "otp sent to customer"}
		if s.cfg.FixedReissueOTP {
			result.OTP = code
			result.Message = "otp reset"
		}
		return nil
	})
	if err != nil {
		return nil, s.finish(ctx, ActionResendOTP, input.OrderID, err)
	}
	_ = s.finish(ctx, ActionResendOTP, input.OrderID, nil)
	return result, nil
}

// UpdateItems replaces the line items of an ACCEPTED order, reprices them
// with the vendor's list and stores the new actual weight.
func (s *service) UpdateItems(ctx context.Context, input UpdateItemsInput) (*UpdateItemsResult, error) {
	items, err := normalizeItems(input.Items)
	if err != nil {
		return nil, s.finish(ctx, ActionUpdateItems, input.OrderID, err)
	}

	var result *UpdateItemsResult
	err = s.tx.WithTxOptions(ctx, s.txOptions(false), func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		agent, err := s.gate.WithTx(tx).ResolveAgent(ctx, input.Principal)
		if err != nil {
			return err
		}
		actor := actors.Actor{EntityID: input.Principal.EntityID, Type: enums.EntityTypeAgent, AgentID: agent.ID, VendorID: agent.VendorID}

		order, err := loadOwned(ctx, repo, actor, input.OrderID)
		if err != nil {
			return err
		}
		if !CanEdit(ActionUpdateItems, order.Status, actor.Type) {
			return illegal(ActionUpdateItems, order.Status)
		}
		if order.VendorID == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "accepted order has no vendor")
		}
		address, err := repo.FindAddress(ctx, order.PickupAddressID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pickup address")
		}

		quote, err := s.pricing.WithTx(tx).ComputeCost(ctx, *order.VendorID, address.PostalCode, items)
		if err != nil {
			return err
		}

		n, err := repo.TransitionOrder(ctx, order.ID, enums.OrderStatusAccepted, map[string]any{
			"items":         items,
			"actual_weight": quote.TotalWeight,
		})
		if err != nil {
			return err
		}
		if err := lostRace(n); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderItemsUpdated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(actor),
			Data: payloads.OrderItemsUpdatedEvent{
				OrderID:      order.ID,
				AgentID:      agent.ID,
				ActualWeight: quote.TotalWeight.String(),
				TotalCost:    quote.TotalCost.StringFixed(2),
			},
		}); err != nil {
			return err
		}

		result = &UpdateItemsResult{
			OrderID:     order.ID,
			Items:       quote.Items,
			TotalWeight: quote.TotalWeight,
			TotalCost:   quote.TotalCost,
		}
		return nil
	})
	if err != nil {
		return nil, s.finish(ctx, ActionUpdateItems, input.OrderID, err)
	}
	_ = s.finish(ctx, ActionUpdateItems, input.OrderID, nil)
	return result, nil
}
