package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nokasa/pickup-backend/api/controllers"
	authcontrollers "github.com/nokasa/pickup-backend/api/controllers/auth"
	ordercontrollers "github.com/nokasa/pickup-backend/api/controllers/orders"
	"github.com/nokasa/pickup-backend/api/middleware"
	"github.com/nokasa/pickup-backend/internal/agents"
	"github.com/nokasa/pickup-backend/internal/dashboard"
	"github.com/nokasa/pickup-backend/internal/invoices"
	"github.com/nokasa/pickup-backend/internal/notifications"
	"github.com/nokasa/pickup-backend/internal/orders"
	"github.com/nokasa/pickup-backend/internal/otp"
	"github.com/nokasa/pickup-backend/pkg/config"
	"github.com/nokasa/pickup-backend/pkg/enums"
	"github.com/nokasa/pickup-backend/pkg/logger"
	"github.com/nokasa/pickup-backend/pkg/metrics"
	pkgredis "github.com/nokasa/pickup-backend/pkg/redis"
)

const otpWindow = time.Minute

// redisStore is the slice of the redis client the router needs.
type redisStore interface {
	pkgredis.IdempotencyStore
	pkgredis.Pinger
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Dependencies carries everything the route table hands to controllers.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       pkgredis.Pinger
	Redis    redisStore
	Gatherer prometheus.Gatherer
	HTTP     *metrics.HTTPMetrics
	Limiter  *middleware.IPLimiter

	OTP           otp.Service
	Orders        orders.Service
	Agents        agents.Service
	Invoices      invoices.Service
	Dashboard     dashboard.Service
	Notifications notifications.Service
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)
	if deps.HTTP != nil {
		r.Use(middleware.Metrics(deps.HTTP))
	}

	otpPolicy := middleware.NewAuthRateLimitPolicy("otp", otpWindow, cfg.RateLimit.OTPPerIPPerMinute, cfg.RateLimit.OTPPerPhonePerMinute)
	idempotent := middleware.Idempotency(deps.Redis, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.DB, deps.Redis, logg))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		if deps.Limiter != nil {
			r.Use(deps.Limiter.Middleware(logg))
		}
		r.Use(middleware.AuthRateLimit(otpPolicy, deps.Redis, logg))
		r.Post("/send-otp", authcontrollers.SendOTP(deps.OTP, logg))
		r.Post("/verify-otp", authcontrollers.VerifyOTP(deps.OTP, logg))
		r.Post("/resend-otp", authcontrollers.ResendOTP(deps.OTP, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		vendorOrAgent := middleware.RequireEntityType(logg, enums.EntityTypeVendor, enums.EntityTypeAgent)

		r.With(middleware.RequireEntityType(logg, enums.EntityTypeUser), idempotent).
			Post("/orders", ordercontrollers.Create(deps.Orders, logg))
		r.With(vendorOrAgent).Get("/orders/{orderID}", ordercontrollers.Detail(deps.Orders, logg))
		r.With(vendorOrAgent, idempotent).Post("/orders/{orderID}/reject", ordercontrollers.Reject(deps.Orders, logg))
		r.With(middleware.RequireEntityType(logg, enums.EntityTypeVendor), idempotent).
			Post("/orders/{orderID}/cancel", ordercontrollers.Cancel(deps.Orders, logg))

		r.Route("/vendor", func(r chi.Router) {
			r.Use(middleware.RequireEntityType(logg, enums.EntityTypeVendor))
			r.Get("/orders/history", ordercontrollers.VendorHistory(deps.Orders, logg))
			r.With(idempotent).Post("/orders/{orderID}/accept", ordercontrollers.Accept(deps.Orders, logg))
			r.With(idempotent).Post("/orders/{orderID}/reassign", ordercontrollers.Reassign(deps.Orders, logg))

			r.Get("/agents", controllers.ListAgents(deps.Agents, logg))
			r.With(idempotent).Post("/agents", controllers.CreateAgent(deps.Agents, logg))
			r.Get("/agents/{agentID}", controllers.GetAgent(deps.Agents, logg))
			r.Patch("/agents/{agentID}", controllers.UpdateAgent(deps.Agents, logg))
		})

		r.Route("/agent", func(r chi.Router) {
			r.Use(middleware.RequireEntityType(logg, enums.EntityTypeAgent))
			r.Get("/pricings", ordercontrollers.AgentPricings(deps.Orders, logg))
			r.With(idempotent).Post("/orders/{orderID}/confirm", ordercontrollers.Confirm(deps.Orders, logg))
			r.Post("/orders/{orderID}/resend-otp", ordercontrollers.ResendOTP(deps.Orders, logg))
			r.Put("/orders/{orderID}/items", ordercontrollers.UpdateItems(deps.Orders, logg))
		})

		r.Route("/profile", func(r chi.Router) {
			r.Use(vendorOrAgent)
			r.Get("/invoices/{invoiceNumber}", controllers.GetInvoice(deps.Invoices, logg))
			r.Get("/transactions", controllers.ListTransactions(deps.Invoices, logg))
		})

		r.With(vendorOrAgent).Get("/homepage", controllers.Homepage(deps.Dashboard, logg))
		r.Delete("/entities/{entityID}", controllers.DeleteEntity(deps.Agents, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
			r.Post("/{notificationID}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
		})
	})

	return r
}
