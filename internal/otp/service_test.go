package otp

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/nokasa/pickup-backend/internal/actors"
	"github.com/nokasa/pickup-backend/pkg/auth"
	"github.com/nokasa/pickup-backend/pkg/config"
	"github.com/nokasa/pickup-backend/pkg/db/dbtest"
	"github.com/nokasa/pickup-backend/pkg/db/models"
	"github.com/nokasa/pickup-backend/pkg/enums"
	pkgerrors "github.com/nokasa/pickup-backend/pkg/errors"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeSender struct {
	err  error
	sent []string
}

func (f *fakeSender) Send(_ context.Context, phone, message string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, phone+"|"+message)
	return nil
}

var codePattern = regexp.MustCompile(`code (\d{6})`)

func (f *fakeSender) lastCode(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, f.sent)
	m := codePattern.FindStringSubmatch(f.sent[len(f.sent)-1])
	require.Len(t, m, 2)
	return m[1]
}

type fixture struct {
	svc    *service
	conn   *gorm.DB
	fx     *dbtest.Fixtures
	sender *fakeSender
	clock  time.Time
	jwt    config.JWTConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	sender := &fakeSender{}
	jwtCfg := config.JWTConfig{Secret: "test-secret", Issuer: "pickup-test", ExpirationMinutes: 60}
	built, err := NewService(ServiceParams{
		Repo:     NewRepository(conn),
		Entities: actors.NewRepository(conn),
		Sender:   sender,
		OTPConfig: config.OTPConfig{
			TTL:              5 * time.Minute,
			MaxAttempts:      3,
			ResendWindow:     time.Minute,
			DailyLimit:       5,
			ArgonMemoryKB:    8,
			ArgonTime:        1,
			ArgonParallelism: 1,
			ArgonSaltLen:     16,
			ArgonKeyLen:      32,
		},
		JWTConfig: jwtCfg,
	})
	require.NoError(t, err)
	f := &fixture{
		svc:    built.(*service),
		conn:   conn,
		fx:     dbtest.NewFixtures(t, conn),
		sender: sender,
		clock:  time.Now().UTC().Truncate(time.Second),
		jwt:    jwtCfg,
	}
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) phoneOf(t *testing.T, entityID int64) string {
	t.Helper()
	var e models.Entity
	require.NoError(t, f.conn.First(&e, entityID).Error)
	return e.Phone
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestSendAndVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	vendor := f.fx.Vendor("green", 4)
	phone := f.phoneOf(t, vendor.EntityID)

	sent, err := f.svc.SendOTP(ctx, SendRequest{Phone: phone, Type: enums.EntityTypeVendor})
	require.NoError(t, err)
	require.Equal(t, f.clock.Add(5*time.Minute), sent.ExpiresAt)
	code := f.sender.lastCode(t)

	var stored models.OTP
	require.NoError(t, f.conn.Where("entity_id = ?", vendor.EntityID).First(&stored).Error)
	require.NotContains(t, stored.CodeHash, code)

	res, err := f.svc.VerifyOTP(ctx, VerifyRequest{Phone: phone, OTP: code, Type: enums.EntityTypeVendor})
	require.NoError(t, err)
	require.Equal(t, vendor.ID, res.User.ID)
	require.Equal(t, "green", res.User.Name)

	principal, err := auth.VerifyToken(f.jwt, res.Token)
	require.NoError(t, err)
	require.Equal(t, vendor.EntityID, principal.EntityID)
	require.Equal(t, enums.EntityTypeVendor, principal.EntityType)

	// A consumed code cannot be replayed.
	_, err = f.svc.VerifyOTP(ctx, VerifyRequest{Phone: phone, OTP: code, Type: enums.EntityTypeVendor})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestSendRejectsWhileCodeIsLive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fx.User("asha")
	phone := f.phoneOf(t, user.EntityID)

	_, err := f.svc.SendOTP(ctx, SendRequest{Phone: phone, Type: enums.EntityTypeUser})
	require.NoError(t, err)

	f.clock = f.clock.Add(2 * time.Minute)
	_, err = f.svc.SendOTP(ctx, SendRequest{Phone: phone, Type: enums.EntityTypeUser})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	details := pkgerrors.As(err).Details().(map[string]any)
	require.EqualValues(t, 180, details["activeOtpExpiresIn"])

	f.clock = f.clock.Add(4 * time.Minute)
	_, err = f.svc.SendOTP(ctx, SendRequest{Phone: phone, Type: enums.EntityTypeUser})
	require.NoError(t, err)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SendOTP(ctx, SendRequest{Phone: "", Type: enums.EntityTypeUser})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.SendOTP(ctx, SendRequest{Phone: "9800000001", Type: "ROBOT"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.SendOTP(ctx, SendRequest{Phone: "9800000001", Type: enums.EntityTypeUser})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestGatewayFailureDeletesCode(t *testing.T) {
	f := newFixture(t)
	user := f.fx.User("asha")
	phone := f.phoneOf(t, user.EntityID)
	f.sender.err = errors.New("gateway down")

	_, err := f.svc.SendOTP(context.Background(), SendRequest{Phone: phone, Type: enums.EntityTypeUser})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	var n int64
	require.NoError(t, f.conn.Model(&models.OTP{}).Where("entity_id = ?", user.EntityID).Count(&n).Error)
	require.Zero(t, n)
}

func TestVerifyAttemptsRunOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.fx.Agent(f.fx.Vendor("green", 4).ID, "ravi")
	phone := f.phoneOf(t, agent.EntityID)

	_, err := f.svc.SendOTP(ctx, SendRequest{Phone: phone, Type: enums.EntityTypeAgent})
	require.NoError(t, err)
	code := f.sender.lastCode(t)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for want := 2; want >= 0; want-- {
		_, err = f.svc.VerifyOTP(ctx, VerifyRequest{Phone: phone, OTP: wrong, Type: enums.EntityTypeAgent})
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
		require.EqualValues(t, want, pkgerrors.As(err).Details().(map[string]any)["remainingAttempts"])
	}

	_, err = f.svc.VerifyOTP(ctx, VerifyRequest{Phone: phone, OTP: code, Type: enums.EntityTypeAgent})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
	require.Equal(t, exhaustedMsg, pkgerrors.As(err).Message())

	var stored models.OTP
	require.NoError(t, f.conn.Where("entity_id = ?", agent.EntityID).First(&stored).Error)
	require.NotNil(t, stored.ConsumedAt)
	require.Equal(t, 3, stored.Attempts)
}

func TestVerifyRejectsInactiveAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fx.User("asha")
	phone := f.phoneOf(t, user.EntityID)

	_, err := f.svc.SendOTP(ctx, SendRequest{Phone: phone, Type: enums.EntityTypeUser})
	require.NoError(t, err)
	code := f.sender.lastCode(t)

	require.NoError(t, f.conn.Model(&models.User{}).Where("id = ?", user.ID).Update("is_deleted", true).Error)
	_, err = f.svc.VerifyOTP(ctx, VerifyRequest{Phone: phone, OTP: code, Type: enums.EntityTypeUser})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	require.NoError(t, f.conn.Model(&models.Entity{}).Where("id = ?", user.EntityID).Update("is_active", false).Error)
	_, err = f.svc.VerifyOTP(ctx, VerifyRequest{Phone: phone, OTP: code, Type: enums.EntityTypeUser})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestVerifyAdminUsesEntityProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.fx.Admin("root")
	phone := f.phoneOf(t, admin.EntityID)

	_, err := f.svc.SendOTP(ctx, SendRequest{Phone: phone, Type: enums.EntityTypeAdmin})
	require.NoError(t, err)
	res, err := f.svc.VerifyOTP(ctx, VerifyRequest{Phone: phone, OTP: f.sender.lastCode(t), Type: enums.EntityTypeAdmin})
	require.NoError(t, err)
	require.Equal(t, admin.EntityID, res.User.ID)
	require.Empty(t, res.User.Name)
}

func TestResendLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fx.User("asha")
	phone := f.phoneOf(t, user.EntityID)
	req := ResendRequest{Phone: phone, Type: enums.EntityTypeUser}

	_, err := f.svc.ResendOTP(ctx, req)
	require.NoError(t, err)

	f.clock = f.clock.Add(20 * time.Second)
	_, err = f.svc.ResendOTP(ctx, req)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRateLimit))
	require.EqualValues(t, 40, pkgerrors.As(err).Details().(map[string]any)["retryAfterSeconds"])

	for i := 0; i < 4; i++ {
		f.clock = f.clock.Add(61 * time.Second)
		_, err = f.svc.ResendOTP(ctx, req)
		require.NoError(t, err)
	}

	f.clock = f.clock.Add(61 * time.Second)
	_, err = f.svc.ResendOTP(ctx, req)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRateLimit))
	require.Contains(t, pkgerrors.As(err).Details().(map[string]any), "nextAllowedAt")
	require.Len(t, f.sender.sent, 5)

	_, err = f.svc.ResendOTP(ctx, ResendRequest{Phone: "9899999999", Type: enums.EntityTypeUser})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
