package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nokasa/pickup-backend/internal/actors"
	"github.com/nokasa/pickup-backend/internal/history"
	"github.com/nokasa/pickup-backend/internal/notifications"
	"github.com/nokasa/pickup-backend/internal/pricing"
	"github.com/nokasa/pickup-backend/pkg/auth"
	"github.com/nokasa/pickup-backend/pkg/config"
	"github.com/nokasa/pickup-backend/pkg/db"
	"github.com/nokasa/pickup-backend/pkg/db/dbtest"
	"github.com/nokasa/pickup-backend/pkg/db/models"
	"github.com/nokasa/pickup-backend/pkg/enums"
	pkgerrors "github.com/nokasa/pickup-backend/pkg/errors"
	"github.com/nokasa/pickup-backend/pkg/logger"
	"github.com/nokasa/pickup-backend/pkg/outbox"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string][]string
}

func (r *recordingObserver) ObserveTransition(action, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string][]string{}
	}
	r.outcomes[action] = append(r.outcomes[action], outcome)
}

// racingRepo loses every conditional update, as if another writer moved the
// order between the read and the write.
type racingRepo struct {
	Repository
}

func (r racingRepo) WithTx(tx *gorm.DB) Repository {
	return racingRepo{Repository: r.Repository.WithTx(tx)}
}

func (racingRepo) TransitionOrder(context.Context, int64, enums.OrderStatus, map[string]any) (int64, error) {
	return 0, nil
}

type harness struct {
	svc     *service
	conn    *gorm.DB
	fx      *dbtest.Fixtures
	metrics *recordingObserver
	codes   []string
}

type harnessOption func(*ServiceParams)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	gate, err := actors.NewGate(actors.NewRepository(conn))
	require.NoError(t, err)
	resolver, err := pricing.NewResolver(pricing.NewRepository(conn))
	require.NoError(t, err)
	emitter := outbox.NewService(outbox.NewRepository(conn), logger.Nop())
	recorder, err := history.NewRecorder(history.NewRepository(conn), notifications.NewRepository(conn), emitter)
	require.NoError(t, err)

	metrics := &recordingObserver{}
	params := ServiceParams{
		Repo:     NewRepository(conn),
		Tx:       db.NewFromConn(conn),
		Gate:     gate,
		Pricing:  resolver,
		Recorder: recorder,
		Outbox:   emitter,
		Metrics:  metrics,
		Config:   config.OrderConfig{TxTimeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(&params)
	}
	built, err := NewService(params)
	require.NoError(t, err)

	h := &harness{svc: built.(*service), conn: conn, fx: dbtest.NewFixtures(t, conn), metrics: metrics}
	h.codes = []string{"111111", "222222", "333333"}
	h.svc.otp = func() (string, error) {
		if len(h.codes) == 0 {
			return "", errors.New("no codes left")
		}
		code := h.codes[0]
		h.codes = h.codes[1:]
		return code, nil
	}
	return h
}

func principal(entityID int64, kind enums.EntityType) auth.Principal {
	return auth.Principal{EntityID: entityID, EntityType: kind}
}

func (h *harness) order(t *testing.T, id int64) models.Order {
	t.Helper()
	var o models.Order
	require.NoError(t, h.conn.First(&o, id).Error)
	return o
}

func (h *harness) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.conn.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func paper(qty int64) models.LineItems {
	return models.LineItems{{WasteType: "PAPER", Quantity: decimal.NewFromInt(qty)}}
}

func createInput(userEntity int64, items models.LineItems) CreateOrderInput {
	return CreateOrderInput{
		Principal:           principal(userEntity, enums.EntityTypeUser),
		ScheduledPickupTime: time.Now().Add(24 * time.Hour),
		PickupAddress: AddressInput{
			Street:     "12 MG Road",
			City:       "Bengaluru",
			State:      "KA",
			PostalCode: "560001",
			Country:    "IN",
		},
		Items:           items,
		EstimatedWeight: decimal.NewFromInt(5),
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestPickupLifecycleEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.fx.User("asha")
	vendor := h.fx.Vendor("green", 4.5)
	agent := h.fx.Agent(vendor.ID, "ravi")
	h.fx.Price(vendor.ID, "PAPER", "560001", "10.00")

	created, err := h.svc.Create(ctx, createInput(user.EntityID, paper(5)))
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusNew, created.Status)
	require.Equal(t, "green", created.Vendor.Name)
	require.Equal(t, "50.00", created.Amount.StringFixed(2))
	require.NotEmpty(t, created.InvoiceNumber)
	require.EqualValues(t, 1, h.count(t, &models.Notification{}, "entity_id = ?", vendor.EntityID))
	require.EqualValues(t, 1, h.count(t, &models.TaxDetails{}, "transaction_id = ?", created.TransactionID))

	accepted, err := h.svc.Accept(ctx, AcceptInput{
		Principal: principal(vendor.EntityID, enums.EntityTypeVendor),
		OrderID:   created.OrderID,
		AgentID:   agent.ID,
	})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusAccepted, accepted.Status)
	require.Equal(t, agent.ID, *accepted.AgentID)
	stored := h.order(t, created.OrderID)
	require.Equal(t, "111111", *stored.OTP)
	require.EqualValues(t, 1, h.count(t, &models.Notification{}, "entity_id = ?", user.EntityID))

	agentPrincipal := principal(agent.EntityID, enums.EntityTypeAgent)
	_, err = h.svc.Confirm(ctx, ConfirmInput{Principal: agentPrincipal, OrderID: created.OrderID, OTP: "999999"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	done, err := h.svc.Confirm(ctx, ConfirmInput{Principal: agentPrincipal, OrderID: created.OrderID, OTP: "111111"})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCompleted, done.Status)

	stored = h.order(t, created.OrderID)
	require.NotNil(t, stored.ActualPickupTime)
	require.True(t, stored.ActualWeight.Valid)

	var txn models.Transaction
	require.NoError(t, h.conn.First(&txn, created.TransactionID).Error)
	require.Equal(t, enums.TransactionStatusCompleted, txn.Status)
	require.Equal(t, "50.00", txn.Amount.StringFixed(2))

	_, err = h.svc.Confirm(ctx, ConfirmInput{Principal: agentPrincipal, OrderID: created.OrderID, OTP: "111111"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	details, err := h.svc.Details(ctx, OrderRefInput{Principal: principal(vendor.EntityID, enums.EntityTypeVendor), OrderID: created.OrderID})
	require.NoError(t, err)
	require.Equal(t, created.InvoiceNumber, details.InvoiceNumber)
	require.Equal(t, "50.00", details.TotalOrderCost.StringFixed(2))
	require.Equal(t, "asha", details.Customer.Name)
	require.Equal(t, "ravi", details.Agent.Name)

	var events []models.OutboxEvent
	require.NoError(t, h.conn.Where("aggregate_type = ?", enums.AggregateOrder).Order("created_at ASC").Find(&events).Error)
	types := make([]enums.OutboxEventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType)
	}
	require.ElementsMatch(t, []enums.OutboxEventType{enums.EventOrderCreated, enums.EventOrderAccepted, enums.EventOrderCompleted}, types)

	require.Equal(t, []string{"ok"}, h.metrics.outcomes["create"])
	require.Equal(t, []string{"validation_error", "ok", "conflict"}, h.metrics.outcomes["confirm"])
}

func TestConfirmKeepsQuotedAmount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.fx.User("asha")
	vendor := h.fx.Vendor("green", 4.5)
	agent := h.fx.Agent(vendor.ID, "ravi")
	h.fx.Price(vendor.ID, "PAPER", "560001", "10.00")

	created, err := h.svc.Create(ctx, createInput(user.EntityID, paper(5)))
	require.NoError(t, err)
	_, err = h.svc.Accept(ctx, AcceptInput{
		Principal: principal(vendor.EntityID, enums.EntityTypeVendor),
		OrderID:   created.OrderID,
		AgentID:   agent.ID,
	})
	require.NoError(t, err)

	// The price list changes between quote and pickup.
	require.NoError(t, h.conn.Where("vendor_id = ?", vendor.ID).Delete(&models.VendorPricing{}).Error)

	_, err = h.svc.Confirm(ctx, ConfirmInput{Principal: principal(agent.EntityID, enums.EntityTypeAgent), OrderID: created.OrderID, OTP: "111111"})
	require.NoError(t, err)

	var txn models.Transaction
	require.NoError(t, h.conn.First(&txn, created.TransactionID).Error)
	require.Equal(t, enums.TransactionStatusCompleted, txn.Status)
	require.Equal(t, "50.00", txn.Amount.StringFixed(2))
	require.Equal(t, created.InvoiceNumber, txn.InvoiceNumber)
}

func TestCreateWithoutCoverageIsNotFound(t *testing.T) {
	h := newHarness(t)
	user := h.fx.User("asha")
	vendor := h.fx.Vendor("green", 4.5)
	h.fx.Price(vendor.ID, "PAPER", "110001", "10.00")

	_, err := h.svc.Create(context.Background(), createInput(user.EntityID, paper(5)))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	require.EqualValues(t, 0, h.count(t, &models.Order{}, "1 = 1"))
	require.EqualValues(t, 0, h.count(t, &models.Address{}, "1 = 1"))
}

func TestCreateRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	user := h.fx.User("asha")

	in := createInput(user.EntityID, nil)
	_, err := h.svc.Create(context.Background(), in)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	in = createInput(user.EntityID, paper(0))
	_, err = h.svc.Create(context.Background(), in)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	in = createInput(user.EntityID, paper(2))
	in.PickupAddress.City = " "
	_, err = h.svc.Create(context.Background(), in)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCreateRequiresUser(t *testing.T) {
	h := newHarness(t)
	vendor := h.fx.Vendor("green", 4.5)
	in := createInput(vendor.EntityID, paper(2))
	in.Principal.EntityType = enums.EntityTypeVendor
	_, err := h.svc.Create(context.Background(), in)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestCancelRequiresAccepted(t *testing.T) {
	h := newHarness(t)
	user := h.fx.User("asha")
	vendor := h.fx.Vendor("green", 4.5)
	order := h.fx.Order(dbtest.OrderSpec{UserID: user.ID, VendorID: dbtest.Ptr(vendor.ID)})

	_, err := h.svc.Cancel(context.Background(), CancelInput{
		Principal: principal(vendor.EntityID, enums.EntityTypeVendor),
		OrderID:   order.ID,
		Reasons:   []string{"no trucks"},
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Equal(t, enums.OrderStatusNew, h.order(t, order.ID).Status)
}

func TestCancelAcceptedOrder(t *testing.T) {
	h := newHarness(t)
	user := h.fx.User("asha")
	vendor := h.fx.Vendor("green", 4.5)
	agent := h.fx.Agent(vendor.ID, "ravi")
	order := h.fx.Order(dbtest.OrderSpec{UserID: user.ID, VendorID: dbtest.Ptr(vendor.ID), AgentID: dbtest.Ptr(agent.ID), Status: enums.OrderStatusAccepted, OTP: "111111"})

	res, err := h.svc.Cancel(context.Background(), CancelInput{
		Principal: principal(vendor.EntityID, enums.EntityTypeVendor),
		OrderID:   order.ID,
		Reasons:   []string{"no trucks", "rain"},
	})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, res.Status)

	stored := h.order(t, order.ID)
	require.Equal(t, enums.OrderStatusCancelled, stored.Status)
	require.Nil(t, stored.AgentID)

	records, err := h.svc.recorder.ListHistory(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, enums.HistoryKindCancel, records[0].Kind())
	require.Equal(t, []string{"no trucks", "rain"}, records[0].Reasons)
}

func TestRejectTwiceFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.fx.User("asha")
	vendor := h.fx.Vendor("green", 4.5)
	order := h.fx.Order(dbtest.OrderSpec{UserID: user.ID})
	in := RejectInput{
		Principal: principal(vendor.EntityID, enums.EntityTypeVendor),
		OrderID:   order.ID,
		Reasons:   []string{"too far"},
	}

	res, err := h.svc.Reject(ctx, in)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusRejected, res.Status)
	require.Equal(t, vendor.ID, *h.order(t, order.ID).VendorID)

	_, err = h.svc.Reject(ctx, in)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.EqualValues(t, 1, h.count(t, &models.OrderCancelAndRejectHistory{}, "order_id = ?", order.ID))
}

func TestRejectRequiresReasons(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Reject(context.Background(), RejectInput{OrderID: 1, Reasons: []string{"  "}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAgentRejectNotifiesVendorAndReleasesOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.fx.User("asha")
	vendor := h.fx.Vendor("green", 4.5)
	agent := h.fx.Agent(vendor.ID, "ravi")
	order := h.fx.Order(dbtest.OrderSpec{UserID: user.ID, VendorID: dbtest.Ptr(vendor.ID), AgentID: dbtest.Ptr(agent.ID), Status: enums.OrderStatusAccepted, OTP: "111111"})

	_, err := h.svc.Reject(ctx, RejectInput{
		Principal: principal(agent.EntityID, enums.EntityTypeAgent),
		OrderID:   order.ID,
		Reasons:   []string{"customer unavailable"},
	})
	require.NoError(t, err)
	stored := h.order(t, order.ID)
	require.Equal(t, enums.OrderStatusRejected, stored.Status)
	require.Nil(t, stored.AgentID)
	require.Equal(t, vendor.ID, *stored.VendorID)
	require.EqualValues(t, 1, h.count(t, &models.Notification{}, "entity_id = ?", vendor.EntityID))

	// The agent no longer owns the order.
	_, err = h.svc.Reject(ctx, RejectInput{
		Principal: principal(agent.EntityID, enums.EntityTypeAgent),
		OrderID:   order.ID,
		Reasons:   []string{"again"},
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestAcceptWithForeignAgentIsForbidden(t *testing.T) {
	h := newHarness(t)
	user := h.fx.User("asha")
	vendor := h.fx.Vendor("green", 4.5)
	other := h.fx.Vendor("blue", 3)
	foreign := h.fx.Agent(other.ID, "kiran")
	order := h.fx.Order(dbtest.OrderSpec{UserID: user.ID, VendorID: dbtest.Ptr(vendor.ID)})

	_, err := h.svc.Accept(context.Background(), AcceptInput{
		Principal: principal(vendor.EntityID, enums.EntityTypeVendor),
		OrderID:   order.ID,
		AgentID:   foreign.ID,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	require.Equal(t, enums.OrderStatusNew, h.order(t, order.ID).Status)
}

func TestAcceptLostRaceIsConflict(t *testing.T) {
	h := newHarness(t, func(p *ServiceParams) { p.Repo = racingRepo{Repository: p.Repo} })
	user := h.fx.User("asha")
	vendor := h.fx.Vendor("green", 4.5)
	agent := h.fx.Agent(vendor.ID, "ravi")
	order := h.fx.Order(dbtest.OrderSpec{UserID: user.ID})

	_, err := h.svc.Accept(context.Background(), AcceptInput{
		Principal: principal(vendor.EntityID, enums.EntityTypeVendor),
		OrderID:   order.ID,
		AgentID:   agent.ID,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	require.Equal(t, []string{"conflict"}, h.metrics.outcomes["accept"])
	require.EqualValues(t, 0, h.count(t, &models.Notification{}, "1 = 1"))
}

func TestConcurrentAcceptsHaveOneWinner(t *testing.T) {
	h := newHarness(t)
	var mu sync.Mutex
	next := h.svc.otp
	h.svc.otp = func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		return next()
	}

	user := h.fx.User("asha")
	green := h.fx.Vendor("green", 4.5)
	blue := h.fx.Vendor("blue", 3)
	ravi := h.fx.Agent(green.ID, "ravi")
	kiran := h.fx.Agent(blue.ID, "kiran")
	order := h.fx.Order(dbtest.OrderSpec{UserID: user.ID, VendorID: dbtest.Ptr(green.ID)})

	inputs := []AcceptInput{
		{Principal: principal(green.EntityID, enums.EntityTypeVendor), OrderID: order.ID, AgentID: ravi.ID},
		{Principal: principal(blue.EntityID, enums.EntityTypeVendor), OrderID: order.ID, AgentID: kiran.ID},
	}
	errs := make([]error, len(inputs))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, in := range inputs {
		wg.Add(1)
		go func(i int, in AcceptInput) {
			defer wg.Done()
			<-start
			_, errs[i] = h.svc.Accept(context.Background(), in)
		}(i, in)
	}
	close(start)
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, winner, "only one accept may succeed")
			winner = i
			continue
		}
		require.True(t,
			pkgerrors.IsCode(err, pkgerrors.CodeConflict) || pkgerrors.IsCode(err, pkgerrors.CodeStateConflict),
			"loser got %v", err)
	}
	require.NotEqual(t, -1, winner)

	stored := h.order(t, order.ID)
	require.Equal(t, enums.OrderStatusAccepted, stored.Status)
	require.Equal(t, inputs[winner].AgentID, *stored.AgentID)
	require.EqualValues(t, 1, h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventOrderAccepted))
}

func TestAcceptClosedOfferIsStateConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.fx.User("asha")
	green := h.fx.Vendor("green", 4.5)
	blue := h.fx.Vendor("blue", 3)
	ravi := h.fx.Agent(green.ID, "ravi")
	kiran := h.fx.Agent(blue.ID, "kiran")
	order := h.fx.Order(dbtest.OrderSpec{UserID: user.ID, VendorID: dbtest.Ptr(green.ID), AgentID: dbtest.Ptr(ravi.ID), Status: enums.OrderStatusAccepted, OTP: "111111"})

	_, err := h.svc.Accept(ctx, AcceptInput{Principal: principal(blue.EntityID, enums.EntityTypeVendor), OrderID: order.ID, AgentID: kiran.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.svc.Accept(ctx, AcceptInput{Principal: principal(blue.EntityID, enums.EntityTypeVendor), OrderID: order.ID + 100, AgentID: kiran.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	// Rejecting stays disguised for orders the vendor does not own.
	_, err = h.svc.Reject(ctx, RejectInput{Principal: principal(blue.EntityID, enums.EntityTypeVendor), OrderID: order.ID, Reasons: []string{"busy"}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	require.Equal(t, ravi.ID, *h.order(t, order.ID).AgentID)
}

func TestDetailsHidesOtherVendorsOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.fx.User("asha")
	green := h.fx.Vendor("green", 4.5)
	blue := h.fx.Vendor("blue", 3)
	order := h.fx.Order(dbtest.OrderSpec{UserID: user.ID, VendorID: dbtest.Ptr(green.ID)})

	_, err := h.svc.Details(ctx, OrderRefInput{Principal: principal(blue.EntityID, enums.EntityTypeVendor), OrderID: order.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	details, err := h.svc.Details(ctx, OrderRefInput{Principal: principal(green.EntityID, enums.EntityTypeVendor), OrderID: order.ID})
	require.NoError(t, err)
	require.Equal(t, "asha", details.Customer.Name)
}

func TestAcceptAlreadyAcceptedOrder(t *testing.T) {
	h := newHarness(t)
	user := h.fx.User("asha")
	vendor := h.fx.Vendor("green", 4.5)
	agent := h.fx.Agent(vendor.ID, "ravi")
	order := h.fx.Order(dbtest.OrderSpec{UserID: user.ID, VendorID: dbtest.Ptr(vendor.ID), AgentID: dbtest.Ptr(agent.ID), Status: enums.OrderStatusAccepted, OTP: "111111"})

	_, err := h.svc.Accept(context.Background(), AcceptInput{
		Principal: principal(vendor.EntityID, enums.EntityTypeVendor),
		OrderID:   order.ID,
		AgentID:   agent.ID,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestReassignSwapsAgent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.fx.User("asha")
	vendor := h.fx.Vendor("green", 4.5)
	first := h.fx.Agent(vendor.ID, "ravi")
	second := h.fx.Agent(vendor.ID, "meena")
	order := h.fx.Order(dbtest.OrderSpec{UserID: user.ID, VendorID: dbtest.Ptr(vendor.ID), AgentID: dbtest.Ptr(first.ID), Status: enums.OrderStatusAccepted, OTP: "111111"})

	res, err := h.svc.Reassign(ctx, ReassignInput{
		Principal: principal(vendor.EntityID, enums.EntityTypeVendor),
		OrderID:   order.ID,
		AgentID:   second.ID,
	})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusAccepted, res.Status)
	stored := h.order(t, order.ID)
	require.Equal(t, second.ID, *stored.AgentID)
	require.Equal(t, "111111", *stored.OTP)
	require.EqualValues(t, 1, h.count(t, &models.Notification{}, "entity_id = ?", second.EntityID))

	_, err = h.svc.Reassign(ctx, ReassignInput{
		Principal: principal(vendor.EntityID, enums.EntityTypeVendor),
		OrderID:   order.ID + 100,
		AgentID:   second.ID,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestReassignRequiresAccepted(t *testing.T) {
	h := newHarness(t)
	user := h.fx.User("asha")
	vendor := h.fx.Vendor("green", 4.5)
	agent := h.fx.Agent(vendor.ID, "ravi")
	order := h.fx.Order(dbtest.OrderSpec{UserID: user.ID, VendorID: dbtest.Ptr(vendor.ID)})

	_, err := h.svc.Reassign(context.Background(), ReassignInput{
		Principal: principal(vendor.EntityID, enums.EntityTypeVendor),
		OrderID:   order.ID,
		AgentID:   agent.ID,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestResendOTPInvalidatesPreviousCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.fx.User("asha")
	vendor := h.fx.Vendor("green", 4.5)
	agent := h.fx.Agent(vendor.ID, "ravi")
	order := h.fx.Order(dbtest.OrderSpec{UserID: user.ID, VendorID: dbtest.Ptr(vendor.ID), AgentID: dbtest.Ptr(agent.ID), Status: enums.OrderStatusAccepted, OTP: "000000"})
	agentPrincipal := principal(agent.EntityID, enums.EntityTypeAgent)

	res, err := h.svc.ResendOTP(ctx, OrderRefInput{Principal: agentPrincipal, OrderID: order.ID})
	require.NoError(t, err)
	require.Empty(t, res.OTP)
	require.Equal(t, "111111", *h.order(t, order.ID).OTP)
	require.EqualValues(t, 1, h.count(t, &models.Notification{}, "entity_id = ?", user.EntityID))

	_, err = h.svc.Confirm(ctx, ConfirmInput{Principal: agentPrincipal, OrderID: order.ID, OTP: "000000"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.Confirm(ctx, ConfirmInput{Principal: agentPrincipal, OrderID: order.ID, OTP: "111111"})
	require.NoError(t, err)
}

func TestResendOTPFixedCode(t *testing.T) {
	h := newHarness(t, func(p *ServiceParams) { p.Config.FixedReissueOTP = true })
	user := h.fx.User("asha")
	vendor := h.fx.Vendor("green", 4.5)
	agent := h.fx.Agent(vendor.ID, "ravi")
	order := h.fx.Order(dbtest.OrderSpec{UserID: user.ID, VendorID: dbtest.Ptr(vendor.ID), AgentID: dbtest.Ptr(agent.ID), Status: enums.OrderStatusAccepted, OTP: "000000"})

	res, err := h.svc.ResendOTP(context.Background(), OrderRefInput{Principal: principal(agent.EntityID, enums.EntityTypeAgent), OrderID: order.ID})
	require.NoError(t, err)
	require.Equal(t, FixedReissueOTP, res.OTP)
	require.Equal(t, FixedReissueOTP, *h.order(t, order.ID).OTP)
	require.EqualValues(t, 0, h.count(t, &models.Notification{}, "1 = 1"))
}

func TestUpdateItemsReprices(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.fx.User("asha")
	vendor := h.fx.Vendor("green", 4.5)
	agent := h.fx.Agent(vendor.ID, "ravi")
	h.fx.Price(vendor.ID, "PAPER", "560001", "10.00")
	h.fx.Price(vendor.ID, "PLASTIC", "560001", "12.50")
	order := h.fx.Order(dbtest.OrderSpec{UserID: user.ID, VendorID: dbtest.Ptr(vendor.ID), AgentID: dbtest.Ptr(agent.ID), Status: enums.OrderStatusAccepted, OTP: "111111"})
	agentPrincipal := principal(agent.EntityID, enums.EntityTypeAgent)

	items := models.LineItems{
		{WasteType: "paper", Quantity: decimal.NewFromInt(7)},
		{WasteType: "PLASTIC", Quantity: decimal.RequireFromString("2.5")},
	}
	res, err := h.svc.UpdateItems(ctx, UpdateItemsInput{Principal: agentPrincipal, OrderID: order.ID, Items: items})
	require.NoError(t, err)
	require.Equal(t, "101.25", res.TotalCost.StringFixed(2))
	require.Equal(t, "9.5", res.TotalWeight.String())
	require.Len(t, res.Items, 2)

	stored := h.order(t, order.ID)
	require.Len(t, stored.Items, 2)
	require.Equal(t, "9.5", stored.ActualWeight.Decimal.String())

	_, err = h.svc.UpdateItems(ctx, UpdateItemsInput{
		Principal: agentPrincipal,
		OrderID:   order.ID,
		Items:     models.LineItems{{WasteType: "GLASS", Quantity: decimal.NewFromInt(1)}},
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Len(t, h.order(t, order.ID).Items, 2)
}

func TestDetailsRestrictedToOwners(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.fx.User("asha")
	vendor := h.fx.Vendor("green", 4.5)
	agent := h.fx.Agent(vendor.ID, "ravi")
	other := h.fx.Agent(vendor.ID, "meena")
	order := h.fx.Order(dbtest.OrderSpec{UserID: user.ID, VendorID: dbtest.Ptr(vendor.ID), AgentID: dbtest.Ptr(agent.ID), Status: enums.OrderStatusAccepted, OTP: "111111"})

	_, err := h.svc.Details(ctx, OrderRefInput{Principal: principal(user.EntityID, enums.EntityTypeUser), OrderID: order.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = h.svc.Details(ctx, OrderRefInput{Principal: principal(other.EntityID, enums.EntityTypeAgent), OrderID: order.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	details, err := h.svc.Details(ctx, OrderRefInput{Principal: principal(agent.EntityID, enums.EntityTypeAgent), OrderID: order.ID})
	require.NoError(t, err)
	require.Equal(t, "560001", details.PickupAddress.PostalCode)
	require.Empty(t, details.InvoiceNumber)
}

func TestVendorHistoryPagesClosedOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.fx.User("asha")
	vendor := h.fx.Vendor("green", 4.5)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	rejected := h.fx.Order(dbtest.OrderSpec{UserID: user.ID, Scheduled: base.Add(72 * time.Hour)})
	_, err := h.svc.Reject(ctx, RejectInput{
		Principal: principal(vendor.EntityID, enums.EntityTypeVendor),
		OrderID:   rejected.ID,
		Reasons:   []string{"too far", "no truck"},
	})
	require.NoError(t, err)
	completed := h.fx.Order(dbtest.OrderSpec{UserID: user.ID, VendorID: dbtest.Ptr(vendor.ID), Status: enums.OrderStatusCompleted, Scheduled: base.Add(48 * time.Hour)})
	cancelled := h.fx.Order(dbtest.OrderSpec{UserID: user.ID, VendorID: dbtest.Ptr(vendor.ID), Status: enums.OrderStatusCancelled, Scheduled: base.Add(24 * time.Hour)})
	h.fx.Order(dbtest.OrderSpec{UserID: user.ID, VendorID: dbtest.Ptr(vendor.ID), Status: enums.OrderStatusAccepted, Scheduled: base})

	vendorPrincipal := principal(vendor.EntityID, enums.EntityTypeVendor)
	page, err := h.svc.VendorHistory(ctx, VendorHistoryInput{Principal: vendorPrincipal, Limit: 2})
	require.NoError(t, err)
	require.EqualValues(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	require.Equal(t, rejected.ID, page.Items[0].ID)
	require.Equal(t, []string{"too far", "no truck"}, page.Items[0].Reasons)
	require.NotNil(t, page.Items[0].RejectedAt)
	require.Equal(t, completed.ID, page.Items[1].ID)
	require.NotEmpty(t, page.NextCursor)

	next, err := h.svc.VendorHistory(ctx, VendorHistoryInput{Principal: vendorPrincipal, Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	require.Equal(t, cancelled.ID, next.Items[0].ID)
	require.Empty(t, next.NextCursor)

	only, err := h.svc.VendorHistory(ctx, VendorHistoryInput{Principal: vendorPrincipal, Status: enums.OrderStatusCompleted})
	require.NoError(t, err)
	require.EqualValues(t, 1, only.Total)

	_, err = h.svc.VendorHistory(ctx, VendorHistoryInput{Principal: vendorPrincipal, Status: enums.OrderStatusNew})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.VendorHistory(ctx, VendorHistoryInput{Principal: vendorPrincipal, Cursor: "%%%"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAgentPricings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	vendor := h.fx.Vendor("green", 4.5)
	agent := h.fx.Agent(vendor.ID, "ravi")
	agentPrincipal := principal(agent.EntityID, enums.EntityTypeAgent)

	_, err := h.svc.AgentPricings(ctx, agentPrincipal)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	h.fx.Price(vendor.ID, "PLASTIC", "560001", "12.50")
	h.fx.Price(vendor.ID, "PAPER", "560001", "10.00")
	res, err := h.svc.AgentPricings(ctx, agentPrincipal)
	require.NoError(t, err)
	require.Equal(t, vendor.ID, res.VendorID)
	require.Len(t, res.Pricings, 2)
	require.Equal(t, "PAPER", res.Pricings[0].WasteType)
}
