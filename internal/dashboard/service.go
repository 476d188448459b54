// Package dashboard builds the vendor and agent home screens.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nokasa/pickup-backend/internal/actors"
	"github.com/nokasa/pickup-backend/pkg/auth"
	"github.com/nokasa/pickup-backend/pkg/enums"
	pkgerrors "github.com/nokasa/pickup-backend/pkg/errors"
	"github.com/nokasa/pickup-backend/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const (
	windowDays      = 7
	invalidQueryMsg = "Invalid query parameters"
)

type Service interface {
	Home(ctx context.Context, principal auth.Principal, query Query) (*Dashboard, error)
}

type ServiceParams struct {
	Repo     Repository
	Gate     *actors.Gate
	Location *time.Location
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	gate     *actors.Gate
	loc      *time.Location
	validate *validator.Validate
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("dashboard repository is required")
	}
	if params.Gate == nil {
		return nil, fmt.Errorf("authorization gate is required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:     params.Repo,
		gate:     params.Gate,
		loc:      loc,
		validate: validator.New(),
		logg:     logg,
		now:      time.Now,
	}, nil
}

type span struct {
	today    time.Time
	tomorrow time.Time
	weekEnd  time.Time
}

func (s *service) span() span {
	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	return span{
		today:    today,
		tomorrow: today.AddDate(0, 0, 1),
		weekEnd:  today.AddDate(0, 0, windowDays),
	}
}

// Home returns today's counters and the next seven days of orders for a
// vendor or an agent.
func (s *service) Home(ctx context.Context, principal auth.Principal, query Query) (*Dashboard, error) {
	if err := s.validate.Struct(query); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, invalidQueryMsg)
	}
	switch principal.EntityType {
	case enums.EntityTypeVendor:
		vendor, err := s.gate.ResolveVendor(ctx, principal)
		if err != nil {
			return nil, err
		}
		status, ok := vendorStatus(query.OrderType)
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, invalidQueryMsg)
		}
		return s.vendorHome(ctx, vendor.ID, status, query.Sort == "1")
	case enums.EntityTypeAgent:
		agent, err := s.gate.ResolveAgent(ctx, principal)
		if err != nil {
			return nil, err
		}
		status, ok := agentStatus(query.OrderType)
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, invalidQueryMsg)
		}
		return s.agentHome(ctx, agent.ID, status, query.Sort == "1")
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "Invalid user type")
	}
}

func vendorStatus(orderType string) (enums.OrderStatus, bool) {
	switch orderType {
	case "new":
		return enums.OrderStatusNew, true
	case "accepted":
		return enums.OrderStatusAccepted, true
	}
	return "", false
}

func agentStatus(orderType string) (enums.OrderStatus, bool) {
	switch orderType {
	case "pending":
		return enums.OrderStatusAccepted, true
	case "completed":
		return enums.OrderStatusCompleted, true
	}
	return "", false
}

func (s *service) vendorHome(ctx context.Context, vendorID int64, status enums.OrderStatus, desc bool) (*Dashboard, error) {
	sp := s.span()
	scope := Scope{VendorID: vendorID}
	var (
		stats Stats
		avail int64
		rows  []OrderRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.TodaysOrders, err = s.repo.CountOrders(gctx, Window{Scope: scope, Status: enums.OrderStatusNew, From: &sp.today, To: &sp.tomorrow})
		return err
	})
	g.Go(func() (err error) {
		stats.PendingOrders, err = s.repo.CountOrders(gctx, Window{Scope: scope, Status: enums.OrderStatusAccepted})
		return err
	})
	g.Go(func() (err error) {
		avail, err = s.repo.CountAvailableAgents(gctx, vendorID)
		return err
	})
	g.Go(func() (err error) {
		rows, err = s.repo.ListWindow(gctx, Window{Scope: scope, Status: status, From: &sp.today, To: &sp.weekEnd, Desc: desc})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor dashboard")
	}
	stats.AgentsAvailable = &avail
	return &Dashboard{Stats: stats, Orders: s.split(rows, sp, true)}, nil
}

func (s *service) agentHome(ctx context.Context, agentID int64, status enums.OrderStatus, desc bool) (*Dashboard, error) {
	sp := s.span()
	scope := Scope{AgentID: agentID}
	var (
		stats     Stats
		completed int64
		rows      []OrderRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.TodaysOrders, err = s.repo.CountOrders(gctx, Window{Scope: scope, Status: enums.OrderStatusAccepted, From: &sp.today, To: &sp.tomorrow})
		return err
	})
	g.Go(func() (err error) {
		stats.PendingOrders, err = s.repo.CountOrders(gctx, Window{Scope: scope, Status: enums.OrderStatusAccepted})
		return err
	})
	g.Go(func() (err error) {
		completed, err = s.repo.CountOrders(gctx, Window{Scope: scope, Status: enums.OrderStatusCompleted})
		return err
	})
	g.Go(func() (err error) {
		rows, err = s.repo.ListWindow(gctx, Window{Scope: scope, Status: status, From: &sp.today, To: &sp.weekEnd, Desc: desc})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent dashboard")
	}
	stats.CompletedOrders = &completed
	return &Dashboard{Stats: stats, Orders: s.split(rows, sp, false)}, nil
}

func (s *service) split(rows []OrderRow, sp span, withAgent bool) Orders {
	out := Orders{Today: []Card{}, Upcoming: []Card{}}
	for _, row := range rows {
		card := toCard(row, withAgent)
		if row.ScheduledPickupTime.Before(sp.tomorrow) {
			out.Today = append(out.Today, card)
		} else {
			out.Upcoming = append(out.Upcoming, card)
		}
	}
	return out
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func toCard(row OrderRow, withAgent bool) Card {
	card := Card{
		ID:                  row.ID,
		Status:              row.Status,
		ScheduledPickupTime: row.ScheduledPickupTime,
		ActualPickupTime:    row.ActualPickupTime,
		EstimatedWeight:     row.EstimatedWeight,
		Items:               row.Items,
		User:                Customer{Name: row.CustomerName, Phone: row.CustomerPhone},
	}
	if row.ActualWeight.Valid {
		w := row.ActualWeight.Decimal
		card.ActualWeight = &w
	}
	if withAgent && row.AgentID != nil {
		card.Agent = &Agent{
			ID:            *row.AgentID,
			Name:          deref(row.AgentName),
			Status:        deref(row.AgentStatus),
			VehicleType:   deref(row.VehicleType),
			VehicleNumber: deref(row.VehicleNumber),
		}
	}
	if row.PostalCode != nil {
		card.PickupAddress = &Address{
			Street:     deref(row.Street),
			City:       deref(row.City),
			State:      deref(row.State),
			PostalCode: *row.PostalCode,
			Latitude:   row.Latitude,
			Longitude:  row.Longitude,
		}
	}
	return card
}
