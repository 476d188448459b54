// Package otp implements phone login: issue a code by SMS, verify it and
// mint an access token.
package otp

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nokasa/pickup-backend/pkg/auth"
	"github.com/nokasa/pickup-backend/pkg/config"
	"github.com/nokasa/pickup-backend/pkg/db"
	"github.com/nokasa/pickup-backend/pkg/db/models"
	"github.com/nokasa/pickup-backend/pkg/enums"
	pkgerrors "github.com/nokasa/pickup-backend/pkg/errors"
	"github.com/nokasa/pickup-backend/pkg/logger"
	"github.com/nokasa/pickup-backend/pkg/security"
	"github.com/nokasa/pickup-backend/pkg/sms"
)

const (
	codeDigits    = 6
	dailyWindow   = 24 * time.Hour
	inactiveMsg   = "Account not found or inactive"
	noValidOTPMsg = "No valid OTP found. Please request a new one"
	exhaustedMsg  = "Maximum attempts exceeded. Please request a new OTP"
	sentMessage   = "OTP sent successfully"
	successMsg    = "Authentication successful"
)

// Service defines phone login.
type Service interface {
	SendOTP(ctx context.Context, req SendRequest) (*SendResult, error)
	VerifyOTP(ctx context.Context, req VerifyRequest) (*VerifyResult, error)
	ResendOTP(ctx context.Context, req ResendRequest) (*SendResult, error)
}

type entityLookup interface {
	FindEntityByPhone(ctx context.Context, phone string, kind enums.EntityType) (*models.Entity, error)
	FindVendorByEntity(ctx context.Context, entityID int64) (*models.Vendor, error)
	FindAgentByEntity(ctx context.Context, entityID int64) (*models.Agent, error)
	FindUserByEntity(ctx context.Context, entityID int64) (*models.User, error)
}

// ServiceParams bundles the dependencies required to build the OTP service.
type ServiceParams struct {
	Repo      Repository
	Entities  entityLookup
	Sender    sms.Sender
	OTPConfig config.OTPConfig
	JWTConfig config.JWTConfig
	Logger    *logger.Logger
}

type service struct {
	repo     Repository
	entities entityLookup
	sender   sms.Sender
	cfg      config.OTPConfig
	jwtCfg   config.JWTConfig
	logg     *logger.Logger
	now      func() time.Time
	generate func() (string, error)
}

// NewService constructs the OTP login service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("otp repository is required")
	}
	if params.Entities == nil {
		return nil, fmt.Errorf("entity lookup is required")
	}
	if params.Sender == nil {
		return nil, fmt.Errorf("sms sender is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	cfg := params.OTPConfig
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ResendWindow <= 0 {
		cfg.ResendWindow = time.Minute
	}
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = 5
	}
	return &service{
		repo:     params.Repo,
		entities: params.Entities,
		sender:   params.Sender,
		cfg:      cfg,
		jwtCfg:   params.JWTConfig,
		logg:     logg,
		now:      time.Now,
		generate: func() (string, error) { return security.GenerateNumericCode(codeDigits) },
	}, nil
}

func parseRequest(phone string, kind enums.EntityType) (string, enums.EntityType, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" || kind == "" {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "phone number and type are required")
	}
	parsed, err := enums.ParseEntityType(strings.ToUpper(string(kind)))
	if err != nil {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "Invalid entity type")
	}
	return phone, parsed, nil
}

func secondsUntil(from, to time.Time) int64 {
	return int64(math.Ceil(to.Sub(from).Seconds()))
}

// SendOTP issues a code unless one is still live for the entity.
func (s *service) SendOTP(ctx context.Context, req SendRequest) (*SendResult, error) {
	phone, kind, err := parseRequest(req.Phone, req.Type)
	if err != nil {
		return nil, err
	}
	entity, err := s.entities.FindEntityByPhone(ctx, phone, kind)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Account not found with this phone number")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup entity")
	}

	now := s.now().UTC()
	active, err := s.repo.Active(ctx, entity.ID, now)
	if err != nil && !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup active otp")
	}
	if active != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "Active OTP exists").
			WithDetails(map[string]any{"activeOtpExpiresIn": secondsUntil(now, active.ExpiresAt)})
	}

	return s.issue(ctx, entity, phone, now)
}

// ResendOTP issues a new code subject to the per-minute and daily limits.
func (s *service) ResendOTP(ctx context.Context, req ResendRequest) (*SendResult, error) {
	phone, kind, err := parseRequest(req.Phone, req.Type)
	if err != nil {
		return nil, err
	}
	entity, err := s.activeEntity(ctx, phone, kind)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	recent, err := s.repo.Recent(ctx, entity.ID, now.Add(-dailyWindow), s.cfg.DailyLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list recent otps")
	}
	if len(recent) >= s.cfg.DailyLimit {
		oldest := recent[s.cfg.DailyLimit-1]
		return nil, pkgerrors.New(pkgerrors.CodeRateLimit, "Maximum OTP requests exceeded. Please try again later").
			WithDetails(map[string]any{"nextAllowedAt": oldest.CreatedAt.Add(dailyWindow).UTC()})
	}
	if len(recent) > 0 {
		last := recent[0]
		retryAt := last.CreatedAt.Add(s.cfg.ResendWindow)
		if last.ConsumedAt == nil && now.Before(retryAt) {
			return nil, pkgerrors.New(pkgerrors.CodeRateLimit, "Please wait before requesting a new OTP").
				WithDetails(map[string]any{"retryAfterSeconds": secondsUntil(now, retryAt)})
		}
	}

	return s.issue(ctx, entity, phone, now)
}

// issue stores a hashed code and sends it. The row is deleted again when the
// gateway fails, since the SMS call cannot join the database write.
func (s *service) issue(ctx context.Context, entity *models.Entity, phone string, now time.Time) (*SendResult, error) {
	code, err := s.generate()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate otp")
	}
	hash, err := security.HashCode(code, s.cfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash otp")
	}
	row := &models.OTP{
		EntityID:  entity.ID,
		CodeHash:  hash,
		ExpiresAt: now.Add(s.cfg.TTL),
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store otp")
	}

	if err := s.sender.Send(ctx, phone, sms.LoginMessage(code)); err != nil {
		if delErr := s.repo.Delete(ctx, row.ID); delErr != nil {
			s.logg.Error(ctx, "failed to delete undelivered otp", delErr)
		}
		ctx = s.logg.WithEntity(ctx, entity.ID, string(entity.Type))
		s.logg.Error(ctx, "sms gateway rejected otp", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to send OTP")
	}
	return &SendResult{Message: sentMessage, ExpiresAt: row.ExpiresAt}, nil
}

func (s *service) activeEntity(ctx context.Context, phone string, kind enums.EntityType) (*models.Entity, error) {
	entity, err := s.entities.FindEntityByPhone(ctx, phone, kind)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, inactiveMsg)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup entity")
	}
	if !entity.IsActive || entity.DeletedAt != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, inactiveMsg)
	}
	return entity, nil
}

// VerifyOTP checks the newest live code. Every check spends an attempt,
// and the code is consumed on success or once attempts run out.
func (s *service) VerifyOTP(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	phone, kind, err := parseRequest(req.Phone, req.Type)
	if err != nil {
		return nil, err
	}
	code := strings.TrimSpace(req.OTP)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Phone, OTP, and type are required")
	}
	entity, err := s.activeEntity(ctx, phone, kind)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	row, err := s.repo.Active(ctx, entity.ID, now)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, noValidOTPMsg)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup active otp")
	}

	if row.Attempts >= s.cfg.MaxAttempts {
		if err := s.repo.Consume(ctx, row.ID, now); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire otp")
		}
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, exhaustedMsg)
	}

	n, err := s.repo.CountAttempt(ctx, row.ID, s.cfg.MaxAttempts)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count otp attempt")
	}
	if n == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, exhaustedMsg)
	}

	ok, err := security.VerifyCode(code, row.CodeHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify otp")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "Invalid OTP").
			WithDetails(map[string]any{"remainingAttempts": s.cfg.MaxAttempts - 1 - row.Attempts})
	}

	if err := s.repo.Consume(ctx, row.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume otp")
	}

	profile, err := s.profile(ctx, entity)
	if err != nil {
		return nil, err
	}

	token, err := auth.MintAccessToken(s.jwtCfg, now, auth.Principal{EntityID: entity.ID, EntityType: entity.Type})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}
	return &VerifyResult{Message: successMsg, User: profile, Token: token}, nil
}

// profile loads the actor row behind the entity. Admins carry no profile of
// their own beyond the entity.
func (s *service) profile(ctx context.Context, entity *models.Entity) (Profile, error) {
	var (
		id   int64
		name string
		err  error
	)
	switch entity.Type {
	case enums.EntityTypeAdmin:
		return Profile{ID: entity.ID, Type: entity.Type}, nil
	case enums.EntityTypeVendor:
		var v *models.Vendor
		if v, err = s.entities.FindVendorByEntity(ctx, entity.ID); err == nil {
			id, name = v.ID, v.Name
		}
	case enums.EntityTypeAgent:
		var a *models.Agent
		if a, err = s.entities.FindAgentByEntity(ctx, entity.ID); err == nil {
			id, name = a.ID, a.Name
		}
	case enums.EntityTypeUser:
		var u *models.User
		if u, err = s.entities.FindUserByEntity(ctx, entity.ID); err == nil {
			id, name = u.ID, u.Name
		}
	default:
		return Profile{}, pkgerrors.New(pkgerrors.CodeForbidden, "invalid user type")
	}
	if err != nil {
		if db.IsNotFound(err) {
			return Profile{}, pkgerrors.Newf(pkgerrors.CodeForbidden, "%s account is inactive", entity.Type)
		}
		return Profile{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
	}
	return Profile{ID: id, Type: entity.Type, Name: name}, nil
}
