package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/nokasa/pickup-backend/api/middleware"
	"github.com/nokasa/pickup-backend/api/routes"
	"github.com/nokasa/pickup-backend/internal/actors"
	"github.com/nokasa/pickup-backend/internal/agents"
	"github.com/nokasa/pickup-backend/internal/dashboard"
	"github.com/nokasa/pickup-backend/internal/history"
	"github.com/nokasa/pickup-backend/internal/invoices"
	"github.com/nokasa/pickup-backend/internal/notifications"
	"github.com/nokasa/pickup-backend/internal/orders"
	"github.com/nokasa/pickup-backend/internal/otp"
	"github.com/nokasa/pickup-backend/internal/pricing"
	"github.com/nokasa/pickup-backend/pkg/config"
	"github.com/nokasa/pickup-backend/pkg/db"
	"github.com/nokasa/pickup-backend/pkg/logger"
	"github.com/nokasa/pickup-backend/pkg/metrics"
	"github.com/nokasa/pickup-backend/pkg/migrate"
	"github.com/nokasa/pickup-backend/pkg/outbox"
	"github.com/nokasa/pickup-backend/pkg/redis"
	"github.com/nokasa/pickup-backend/pkg/sms"
)

const (
	shutdownTimeout   = 15 * time.Second
	limiterSweepEvery = time.Minute
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	dbClient, err := db.New(ctx, cfg.DB, logg, db.WithQueryObserver(metrics.NewDBMetrics(reg)))
	if err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return multierr.Append(err, dbClient.Close())
	}
	defer func() {
		err = multierr.Combine(err, redisClient.Close(), dbClient.Close())
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	deps, err := buildDependencies(cfg, logg, dbClient, redisClient, reg)
	if err != nil {
		return err
	}

	limiter := middleware.NewIPLimiter(cfg.RateLimit.AuthPerIPPerSecond, cfg.RateLimit.AuthPerIPBurst)
	go limiter.Sweep(ctx, limiterSweepEvery)
	deps.Limiter = limiter

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(logCtx, "starting api server")

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildDependencies(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg *prometheus.Registry) (routes.Dependencies, error) {
	conn := dbClient.DB()

	actorsRepo := actors.NewRepository(conn)
	gate, err := actors.NewGate(actorsRepo)
	if err != nil {
		return routes.Dependencies{}, err
	}
	resolver, err := pricing.NewResolver(pricing.NewRepository(conn))
	if err != nil {
		return routes.Dependencies{}, err
	}
	notificationsRepo := notifications.NewRepository(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	recorder, err := history.NewRecorder(history.NewRepository(conn), notificationsRepo, emitter)
	if err != nil {
		return routes.Dependencies{}, err
	}

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:     orders.NewRepository(conn),
		Tx:       dbClient,
		Gate:     gate,
		Pricing:  resolver,
		Recorder: recorder,
		Outbox:   emitter,
		Metrics:  metrics.NewOrderMetrics(reg),
		Config:   cfg.Order,
		Logger:   logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	sender, err := sms.NewClient(cfg.SMS)
	if err != nil {
		return routes.Dependencies{}, err
	}
	otpSvc, err := otp.NewService(otp.ServiceParams{
		Repo:      otp.NewRepository(conn),
		Entities:  actorsRepo,
		Sender:    sender,
		OTPConfig: cfg.OTP,
		JWTConfig: cfg.JWT,
		Logger:    logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	agentsSvc, err := agents.NewService(agents.ServiceParams{
		Repo:      agents.NewRepository(conn),
		Entities:  actorsRepo,
		Gate:      gate,
		Tx:        dbClient,
		TxTimeout: cfg.Order.TxTimeout,
		Logger:    logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	invoicesSvc, err := invoices.NewService(invoices.ServiceParams{
		Repo:    invoices.NewRepository(conn),
		Gate:    gate,
		Pricing: resolver,
		Config:  cfg.Order,
		Logger:  logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	dashboardSvc, err := dashboard.NewService(dashboard.ServiceParams{
		Repo:     dashboard.NewRepository(conn),
		Gate:     gate,
		Location: cfg.Order.Location(),
		Logger:   logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	notificationsSvc, err := notifications.NewService(notificationsRepo)
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Redis:         redisClient,
		Gatherer:      reg,
		HTTP:          metrics.NewHTTPMetrics(reg),
		OTP:           otpSvc,
		Orders:        ordersSvc,
		Agents:        agentsSvc,
		Invoices:      invoicesSvc,
		Dashboard:     dashboardSvc,
		Notifications: notificationsSvc,
	}, nil
}
