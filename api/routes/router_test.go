package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/nokasa/pickup-backend/internal/notifications"
	"github.com/nokasa/pickup-backend/internal/orders"
	"github.com/nokasa/pickup-backend/pkg/auth"
	"github.com/nokasa/pickup-backend/pkg/config"
	"github.com/nokasa/pickup-backend/pkg/enums"
	"github.com/nokasa/pickup-backend/pkg/logger"
	"github.com/nokasa/pickup-backend/pkg/metrics"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

// stubOrdersService panics on any method the test does not override.
type stubOrdersService struct {
	orders.Service
	acceptFn func(ctx context.Context, input orders.AcceptInput) (*orders.TransitionResult, error)
	createFn func(ctx context.Context, input orders.CreateOrderInput) (*orders.CreateOrderResult, error)
}

func (s *stubOrdersService) Accept(ctx context.Context, input orders.AcceptInput) (*orders.TransitionResult, error) {
	return s.acceptFn(ctx, input)
}

func (s *stubOrdersService) Create(ctx context.Context, input orders.CreateOrderInput) (*orders.CreateOrderResult, error) {
	return s.createFn(ctx, input)
}

type stubNotificationsService struct {
	notifications.Service
}

func (stubNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "dev"},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "pickup", ExpirationMinutes: 60},
		RateLimit: config.RateLimitConfig{
			OTPPerIPPerMinute:    20,
			OTPPerPhonePerMinute: 5,
		},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config, ordersSvc orders.Service) (http.Handler, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	handler := NewRouter(Dependencies{
		Config:        cfg,
		Logger:        logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:            stubPinger{},
		Gatherer:      reg,
		HTTP:          metrics.NewHTTPMetrics(reg),
		Orders:        ordersSvc,
		Notifications: stubNotificationsService{},
	})
	return handler, reg
}

func bearer(t *testing.T, cfg *config.Config, entityID int64, kind enums.EntityType) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), auth.Principal{EntityID: entityID, EntityType: kind})
	require.NoError(t, err)
	return "Bearer " + token
}

func TestHealthLive(t *testing.T) {
	router, _ := newTestRouter(t, testConfig(), &stubOrdersService{})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestPrivateRoutesRejectMissingJWT(t *testing.T) {
	router, _ := newTestRouter(t, testConfig(), &stubOrdersService{})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil))
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestNotificationsWithJWT(t *testing.T) {
	cfg := testConfig()
	router, _ := newTestRouter(t, cfg, &stubOrdersService{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	req.Header.Set("Authorization", bearer(t, cfg, 5, enums.EntityTypeUser))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestVendorRoutesRequireVendor(t *testing.T) {
	cfg := testConfig()
	router, _ := newTestRouter(t, cfg, &stubOrdersService{})

	for _, kind := range []enums.EntityType{enums.EntityTypeUser, enums.EntityTypeAgent} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/vendor/orders/9/accept", strings.NewReader(`{"agentId":3}`))
		req.Header.Set("Authorization", bearer(t, cfg, 5, kind))
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		require.Equal(t, http.StatusForbidden, resp.Code, kind)
	}
}

func TestVendorAcceptReachesService(t *testing.T) {
	cfg := testConfig()
	called := false
	svc := &stubOrdersService{
		acceptFn: func(ctx context.Context, input orders.AcceptInput) (*orders.TransitionResult, error) {
			called = true
			require.Equal(t, int64(9), input.OrderID)
			require.Equal(t, int64(3), input.AgentID)
			require.Equal(t, int64(5), input.Principal.EntityID)
			return &orders.TransitionResult{OrderID: 9, Status: enums.OrderStatusAccepted}, nil
		},
	}
	router, _ := newTestRouter(t, cfg, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/vendor/orders/9/accept", strings.NewReader(`{"agentId":3}`))
	req.Header.Set("Authorization", bearer(t, cfg, 5, enums.EntityTypeVendor))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.True(t, called)
}

func TestCreateOrderRequiresUser(t *testing.T) {
	cfg := testConfig()
	router, _ := newTestRouter(t, cfg, &stubOrdersService{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{}`))
	req.Header.Set("Authorization", bearer(t, cfg, 5, enums.EntityTypeVendor))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusForbidden, resp.Code)
}

func TestAgentRoutesRequireAgent(t *testing.T) {
	cfg := testConfig()
	router, _ := newTestRouter(t, cfg, &stubOrdersService{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/orders/9/confirm", strings.NewReader(`{"otp":"123456"}`))
	req.Header.Set("Authorization", bearer(t, cfg, 5, enums.EntityTypeVendor))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusForbidden, resp.Code)
}

func TestMetricsEndpointExportsHTTPLatency(t *testing.T) {
	router, reg := newTestRouter(t, testConfig(), &stubOrdersService{})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "http_request")
}
