package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nokasa/pickup-backend/pkg/logger"
	"github.com/nokasa/pickup-backend/pkg/metrics"
)

const (
	workerName        = "notification-worker"
	heartbeatInterval = time.Minute
)

type pinger interface {
	Ping(context.Context) error
}

type consumer interface {
	Run(context.Context) error
}

type ServiceParams struct {
	Logger   *logger.Logger
	DB       pinger
	Redis    pinger
	PubSub   pinger
	Consumer consumer
	Metrics  *metrics.WorkerMetrics
}

// Service owns the notification consumer loop and its dependency checks.
type Service struct {
	logg     *logger.Logger
	db       pinger
	redis    pinger
	pubsub   pinger
	consumer consumer
	metrics  *metrics.WorkerMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.Consumer == nil {
		return nil, errors.New("notification consumer is required")
	}
	return &Service{
		logg:     params.Logger,
		db:       params.DB,
		redis:    params.Redis,
		pubsub:   params.PubSub,
		consumer: params.Consumer,
		metrics:  params.Metrics,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range []struct {
		name string
		p    pinger
	}{
		{"database", s.db},
		{"redis", s.redis},
		{"pubsub", s.pubsub},
	} {
		if err := dep.p.Ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", dep.name), err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	return nil
}

// Run blocks until ctx is cancelled or the consumer stops on its own.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.consumer.Run(ctx)
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "notification worker context canceled")
			return ctx.Err()
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.metrics.IncFailure(workerName)
				s.logg.Error(ctx, "notification consumer stopped unexpectedly", err)
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err == nil {
				err = errors.New("notification consumer exited")
			}
			return err
		case <-ticker.C:
			started := time.Now()
			if err := s.redis.Ping(ctx); err != nil {
				s.metrics.IncFailure(workerName)
				s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "redis heartbeat failed")
				continue
			}
			s.metrics.ObserveDuration(workerName, time.Since(started))
			s.metrics.IncSuccess(workerName)
		}
	}
}
