// Package actors maps a verified token principal onto the vendor, agent, user
// or admin row it may act as. Soft-deleted profiles never resolve.
package actors

import (
	"context"
	"fmt"

	"github.com/nokasa/pickup-backend/pkg/auth"
	"github.com/nokasa/pickup-backend/pkg/db"
	"github.com/nokasa/pickup-backend/pkg/db/models"
	"github.com/nokasa/pickup-backend/pkg/enums"
	pkgerrors "github.com/nokasa/pickup-backend/pkg/errors"
	"gorm.io/gorm"
)

// Actor is the resolved identity a transition runs as. Exactly one of the
// profile ids is set, matching Type.
type Actor struct {
	EntityID int64
	Type     enums.EntityType
	VendorID int64
	AgentID  int64
	UserID   int64
	AdminID  int64
	Name     string
}

// IsVendor reports whether the actor acts for a vendor.
func (a Actor) IsVendor() bool { return a.Type == enums.EntityTypeVendor && a.VendorID > 0 }

// IsAgent reports whether the actor acts as a field agent.
func (a Actor) IsAgent() bool { return a.Type == enums.EntityTypeAgent && a.AgentID > 0 }

// Gate resolves principals against the current profile tables.
type Gate struct {
	repo Repository
}

// NewGate builds a gate over the supplied repository.
func NewGate(repo Repository) (*Gate, error) {
	if repo == nil {
		return nil, fmt.Errorf("actors repository required")
	}
	return &Gate{repo: repo}, nil
}

// WithTx returns a gate whose lookups run inside tx, so ownership is derived
// in the same transaction as the write that depends on it.
func (g *Gate) WithTx(tx *gorm.DB) *Gate {
	return &Gate{repo: g.repo.WithTx(tx)}
}

// Resolve loads the profile matching the principal's entity type.
func (g *Gate) Resolve(ctx context.Context, p auth.Principal) (Actor, error) {
	switch p.EntityType {
	case enums.EntityTypeVendor:
		vendor, err := g.ResolveVendor(ctx, p)
		if err != nil {
			return Actor{}, err
		}
		return Actor{EntityID: p.EntityID, Type: p.EntityType, VendorID: vendor.ID, Name: vendor.Name}, nil
	case enums.EntityTypeAgent:
		agent, err := g.ResolveAgent(ctx, p)
		if err != nil {
			return Actor{}, err
		}
		return Actor{EntityID: p.EntityID, Type: p.EntityType, AgentID: agent.ID, VendorID: agent.VendorID, Name: agent.Name}, nil
	case enums.EntityTypeUser:
		user, err := g.ResolveUser(ctx, p)
		if err != nil {
			return Actor{}, err
		}
		return Actor{EntityID: p.EntityID, Type: p.EntityType, UserID: user.ID, Name: user.Name}, nil
	case enums.EntityTypeAdmin:
		admin, err := g.ResolveAdmin(ctx, p)
		if err != nil {
			return Actor{}, err
		}
		return Actor{EntityID: p.EntityID, Type: p.EntityType, AdminID: admin.ID, Name: admin.Name}, nil
	default:
		return Actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "invalid user type")
	}
}

// ResolveVendor returns the live vendor behind a VENDOR principal.
func (g *Gate) ResolveVendor(ctx context.Context, p auth.Principal) (*models.Vendor, error) {
	if err := expectType(p, enums.EntityTypeVendor); err != nil {
		return nil, err
	}
	vendor, err := g.repo.FindVendorByEntity(ctx, p.EntityID)
	if err != nil {
		return nil, lookupError(err, "vendor not found or inactive", "load vendor")
	}
	return vendor, nil
}

// ResolveAgent returns the live agent behind an AGENT principal.
func (g *Gate) ResolveAgent(ctx context.Context, p auth.Principal) (*models.Agent, error) {
	if err := expectType(p, enums.EntityTypeAgent); err != nil {
		return nil, err
	}
	agent, err := g.repo.FindAgentByEntity(ctx, p.EntityID)
	if err != nil {
		return nil, lookupError(err, "agent not found or inactive", "load agent")
	}
	return agent, nil
}

// ResolveUser returns the live user behind a USER principal. Inactive entities
// are refused as well.
func (g *Gate) ResolveUser(ctx context.Context, p auth.Principal) (*models.User, error) {
	if err := expectType(p, enums.EntityTypeUser); err != nil {
		return nil, err
	}
	entity, err := g.repo.FindEntity(ctx, p.EntityID)
	if err != nil {
		return nil, lookupError(err, "user not found or inactive", "load entity")
	}
	if !entity.IsActive || entity.DeletedAt != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found or inactive")
	}
	user, err := g.repo.FindUserByEntity(ctx, p.EntityID)
	if err != nil {
		return nil, lookupError(err, "user not found or inactive", "load user")
	}
	return user, nil
}

// ResolveAdmin returns the admin profile behind an ADMIN principal.
func (g *Gate) ResolveAdmin(ctx context.Context, p auth.Principal) (*models.Admin, error) {
	if err := expectType(p, enums.EntityTypeAdmin); err != nil {
		return nil, err
	}
	admin, err := g.repo.FindAdminByEntity(ctx, p.EntityID)
	if err != nil {
		return nil, lookupError(err, "admin not found", "load admin")
	}
	return admin, nil
}

// AgentOfVendor loads a target agent and checks it belongs to vendorID. A
// missing, deleted or foreign agent is a FORBIDDEN so callers cannot enumerate
// other vendors' rosters.
func (g *Gate) AgentOfVendor(ctx context.Context, vendorID, agentID int64) (*models.Agent, error) {
	if agentID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agent id required")
	}
	agent, err := g.repo.FindAgent(ctx, agentID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "invalid agent or unauthorized")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent")
	}
	if agent.VendorID != vendorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "invalid agent or unauthorized")
	}
	return agent, nil
}

func expectType(p auth.Principal, want enums.EntityType) error {
	if p.EntityID <= 0 {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication failed")
	}
	if p.EntityType != want {
		return pkgerrors.New(pkgerrors.CodeForbidden, "unauthorized access")
	}
	return nil
}

func lookupError(err error, notFound, op string) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
