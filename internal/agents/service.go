// Package agents lets vendors manage their field agents and applies the
// soft-delete rules for every actor type.
package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nokasa/pickup-backend/internal/actors"
	"github.com/nokasa/pickup-backend/pkg/auth"
	"github.com/nokasa/pickup-backend/pkg/db"
	"github.com/nokasa/pickup-backend/pkg/db/models"
	"github.com/nokasa/pickup-backend/pkg/enums"
	pkgerrors "github.com/nokasa/pickup-backend/pkg/errors"
	"github.com/nokasa/pickup-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	agentNotFoundMsg = "Agent not found or does not belong to this vendor"
	phoneInUseMsg    = "An agent with this phone number already exists"
	permissionMsg    = "Permission denied"
)

var (
	indiaPrefix = regexp.MustCompile(`^\+91`)
	e164        = regexp.MustCompile(`^\+[1-9]\d{10,14}$`)
)

type txRunner interface {
	WithTxOptions(ctx context.Context, opts db.TxOptions, fn func(tx *gorm.DB) error) error
}

// Service defines agent management and entity deletion.
type Service interface {
	List(ctx context.Context, principal auth.Principal) (*AgentList, error)
	Get(ctx context.Context, principal auth.Principal, agentID int64) (*AgentDetail, error)
	Create(ctx context.Context, input CreateInput) (*AgentDetail, error)
	Update(ctx context.Context, input UpdateInput) (*AgentDetail, error)
	DeleteEntity(ctx context.Context, principal auth.Principal, targetEntityID int64) error
}

// ServiceParams bundles the dependencies required to build the agents service.
type ServiceParams struct {
	Repo      Repository
	Entities  actors.Repository
	Gate      *actors.Gate
	Tx        txRunner
	TxTimeout time.Duration
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	entities  actors.Repository
	gate      *actors.Gate
	tx        txRunner
	txTimeout time.Duration
	logg      *logger.Logger
	now       func() time.Time
}

// NewService constructs the agents service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("agents repository is required")
	}
	if params.Entities == nil {
		return nil, fmt.Errorf("entity lookup is required")
	}
	if params.Gate == nil {
		return nil, fmt.Errorf("authorization gate is required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:      params.Repo,
		entities:  params.Entities,
		gate:      params.Gate,
		tx:        params.Tx,
		txTimeout: params.TxTimeout,
		logg:      logg,
		now:       time.Now,
	}, nil
}

func (s *service) serializable(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := s.tx.WithTxOptions(ctx, db.Serializable(s.txTimeout), fn)
	if err == nil || pkgerrors.As(err) != nil {
		return err
	}
	if db.IsSerializationFailure(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "concurrent update, retry the request")
	}
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, phoneInUseMsg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "agents transaction")
}

func (s *service) List(ctx context.Context, principal auth.Principal) (*AgentList, error) {
	vendor, err := s.gate.ResolveVendor(ctx, principal)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByVendor(ctx, vendor.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list agents")
	}
	if rows == nil {
		rows = []AgentSummary{}
	}
	return &AgentList{Agents: rows}, nil
}

func (s *service) Get(ctx context.Context, principal auth.Principal, agentID int64) (*AgentDetail, error) {
	if agentID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Invalid agent ID")
	}
	vendor, err := s.gate.ResolveVendor(ctx, principal)
	if err != nil {
		return nil, err
	}
	return findForVendor(ctx, s.repo, vendor.ID, agentID)
}

func findForVendor(ctx context.Context, repo Repository, vendorID, agentID int64) (*AgentDetail, error) {
	detail, err := repo.FindForVendor(ctx, vendorID, agentID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, agentNotFoundMsg)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent")
	}
	return detail, nil
}

// NormalizeLocalPhone strips a +91 prefix and surrounding space.
func NormalizeLocalPhone(phone string) string {
	return indiaPrefix.ReplaceAllString(strings.TrimSpace(phone), "")
}

func validateCreate(req CreateRequest) (CreateRequest, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.VehicleNumber = strings.TrimSpace(req.VehicleNumber)
	req.Phone = NormalizeLocalPhone(req.Phone)
	if req.Name == "" || req.Phone == "" || req.VehicleNumber == "" ||
		!req.VehicleType.IsValid() || !req.Status.IsValid() {
		return req, pkgerrors.New(pkgerrors.CodeValidation, "Missing or invalid required fields")
	}
	return req, nil
}

// Create registers a new agent entity under the calling vendor and opens its
// vendor history.
func (s *service) Create(ctx context.Context, input CreateInput) (*AgentDetail, error) {
	req, err := validateCreate(input.CreateRequest)
	if err != nil {
		return nil, err
	}

	var detail *AgentDetail
	err = s.serializable(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		vendor, err := s.gate.WithTx(tx).ResolveVendor(ctx, input.Principal)
		if err != nil {
			return err
		}
		taken, err := repo.PhoneTaken(ctx, req.Phone, 0)
		if err != nil {
			return err
		}
		if taken {
			return pkgerrors.New(pkgerrors.CodeConflict, phoneInUseMsg)
		}

		entity := &models.Entity{Phone: req.Phone, Type: enums.EntityTypeAgent, IsActive: true}
		if err := repo.CreateEntity(ctx, entity); err != nil {
			return err
		}
		agent := &models.Agent{
			EntityID:      entity.ID,
			VendorID:      vendor.ID,
			Name:          req.Name,
			VehicleType:   req.VehicleType,
			VehicleNumber: req.VehicleNumber,
			Status:        req.Status,
			Rating:        decimal.Zero,
		}
		if err := repo.CreateAgent(ctx, agent); err != nil {
			return err
		}
		if err := repo.OpenVendorHistory(ctx, agent.ID, vendor.ID, s.now().UTC()); err != nil {
			return err
		}
		detail = &AgentDetail{
			ID:            agent.ID,
			EntityID:      entity.ID,
			Name:          agent.Name,
			Phone:         entity.Phone,
			VehicleType:   agent.VehicleType,
			VehicleNumber: agent.VehicleNumber,
			Status:        agent.Status,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func buildUpdates(req UpdateRequest) (map[string]any, *string, error) {
	if req.Name == nil && req.Phone == nil && req.VehicleType == nil && req.VehicleNumber == nil && req.Status == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "No update data provided")
	}
	updates := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "Invalid name")
		}
		updates["name"] = name
	}
	var phone *string
	if req.Phone != nil {
		raw := strings.TrimSpace(*req.Phone)
		if !e164.MatchString(raw) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "Invalid phone")
		}
		local := NormalizeLocalPhone(raw)
		phone = &local
	}
	if req.VehicleType != nil {
		if !req.VehicleType.IsValid() {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "Invalid vehicle type")
		}
		updates["vehicle_type"] = *req.VehicleType
	}
	if req.VehicleNumber != nil {
		number := strings.TrimSpace(*req.VehicleNumber)
		if number == "" {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "Invalid vehicle number")
		}
		updates["vehicle_number"] = number
	}
	if req.Status != nil {
		if !req.Status.IsValid() {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "Invalid status")
		}
		updates["status"] = *req.Status
	}
	return updates, phone, nil
}

// Update edits an agent owned by the calling vendor. A new phone must be
// free among agent entities.
func (s *service) Update(ctx context.Context, input UpdateInput) (*AgentDetail, error) {
	if input.AgentID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Invalid agent ID")
	}
	updates, phone, err := buildUpdates(input.UpdateRequest)
	if err != nil {
		return nil, err
	}

	var detail *AgentDetail
	err = s.serializable(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		vendor, err := s.gate.WithTx(tx).ResolveVendor(ctx, input.Principal)
		if err != nil {
			return err
		}
		current, err := findForVendor(ctx, repo, vendor.ID, input.AgentID)
		if err != nil {
			return err
		}
		if phone != nil {
			taken, err := repo.PhoneTaken(ctx, *phone, current.EntityID)
			if err != nil {
				return err
			}
			if taken {
				return pkgerrors.New(pkgerrors.CodeConflict, "Phone number already in use")
			}
			if err := repo.UpdatePhone(ctx, current.EntityID, *phone); err != nil {
				return err
			}
		}
		if err := repo.UpdateAgent(ctx, current.ID, updates); err != nil {
			return err
		}
		detail, err = findForVendor(ctx, repo, vendor.ID, current.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// DeleteEntity soft-deletes an actor. Admins may delete anyone. Vendors may
// delete one of their agents, unless it is their last one or has an accepted
// order, and may delete themselves when nothing is accepted. Users may delete
// themselves when they have never ordered.
func (s *service) DeleteEntity(ctx context.Context, principal auth.Principal, targetEntityID int64) error {
	if targetEntityID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid entity id")
	}
	return s.serializable(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		entities := s.entities.WithTx(tx)
		actor, err := s.gate.WithTx(tx).Resolve(ctx, principal)
		if err != nil {
			return err
		}

		target, err := entities.FindEntity(ctx, targetEntityID)
		if err != nil && !db.IsNotFound(err) {
			return err
		}
		if target == nil || target.DeletedAt != nil {
			if actor.Type == enums.EntityTypeAdmin {
				return pkgerrors.New(pkgerrors.CodeNotFound, "Entity not found")
			}
			return pkgerrors.New(pkgerrors.CodeForbidden, permissionMsg)
		}

		allowed, err := s.mayDelete(ctx, repo, entities, actor, target)
		if err != nil {
			return err
		}
		if !allowed {
			return pkgerrors.New(pkgerrors.CodeForbidden, permissionMsg)
		}

		now := s.now().UTC()
		switch target.Type {
		case enums.EntityTypeVendor:
			if v, err := entities.FindVendorByEntity(ctx, target.ID); err == nil {
				if err := repo.SoftDeleteVendor(ctx, v.ID, now); err != nil {
					return err
				}
			} else if !db.IsNotFound(err) {
				return err
			}
		case enums.EntityTypeAgent:
			if a, err := entities.FindAgentByEntity(ctx, target.ID); err == nil {
				if err := repo.SoftDeleteAgent(ctx, a.ID, now); err != nil {
					return err
				}
			} else if !db.IsNotFound(err) {
				return err
			}
		case enums.EntityTypeUser:
			if u, err := entities.FindUserByEntity(ctx, target.ID); err == nil {
				if err := repo.SoftDeleteUser(ctx, u.ID, now); err != nil {
					return err
				}
			} else if !db.IsNotFound(err) {
				return err
			}
		}
		if err := repo.DeactivateEntity(ctx, target.ID, now); err != nil {
			return err
		}
		s.logg.Info(s.logg.WithEntity(ctx, target.ID, string(target.Type)), "entity deleted")
		return nil
	})
}

func (s *service) mayDelete(ctx context.Context, repo Repository, entities actors.Repository, actor actors.Actor, target *models.Entity) (bool, error) {
	switch actor.Type {
	case enums.EntityTypeAdmin:
		return true, nil
	case enums.EntityTypeVendor:
		switch {
		case target.Type == enums.EntityTypeAgent:
			agent, err := entities.FindAgentByEntity(ctx, target.ID)
			if err != nil {
				if db.IsNotFound(err) {
					return false, nil
				}
				return false, err
			}
			if agent.VendorID != actor.VendorID {
				return false, nil
			}
			remaining, err := repo.CountActiveAgents(ctx, actor.VendorID)
			if err != nil {
				return false, err
			}
			if remaining <= 1 {
				return false, nil
			}
			accepted, err := repo.CountOrders(ctx, OrderFilter{AgentID: agent.ID, Status: enums.OrderStatusAccepted})
			if err != nil {
				return false, err
			}
			return accepted == 0, nil
		case target.Type == enums.EntityTypeVendor && target.ID == actor.EntityID:
			accepted, err := repo.CountOrders(ctx, OrderFilter{VendorID: actor.VendorID, Status: enums.OrderStatusAccepted})
			if err != nil {
				return false, err
			}
			return accepted == 0, nil
		}
	case enums.EntityTypeUser:
		if target.ID != actor.EntityID {
			return false, nil
		}
		orders, err := repo.CountOrders(ctx, OrderFilter{UserID: actor.UserID})
		if err != nil {
			return false, err
		}
		return orders == 0, nil
	}
	return false, nil
}
