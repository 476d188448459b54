package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nokasa/pickup-backend/pkg/config"
	"github.com/nokasa/pickup-backend/pkg/logger"
)

// DeleteFunc removes rows older than cutoff and reports how many went.
type DeleteFunc func(ctx context.Context, cutoff time.Time) (int64, error)

// RetentionJob deletes rows older than a fixed age.
type RetentionJob struct {
	name      string
	retention time.Duration
	remove    DeleteFunc
	logg      *logger.Logger
	now       func() time.Time
}

func NewRetentionJob(name string, retention time.Duration, remove DeleteFunc, logg *logger.Logger) (*RetentionJob, error) {
	if name == "" {
		return nil, errors.New("job name required")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("%s: retention must be positive", name)
	}
	if remove == nil {
		return nil, fmt.Errorf("%s: delete func required", name)
	}
	if logg == nil {
		return nil, fmt.Errorf("%s: logger required", name)
	}
	return &RetentionJob{
		name:      name,
		retention: retention,
		remove:    remove,
		logg:      logg,
		now:       time.Now,
	}, nil
}

func (j *RetentionJob) Name() string { return j.name }

func (j *RetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.remove(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "retention cleanup complete")
	return nil
}

// DefaultJobs wires the housekeeping jobs this service runs.
func DefaultJobs(repo *Repository, cfg config.CronConfig, logg *logger.Logger) ([]Job, error) {
	specs := []struct {
		name      string
		retention time.Duration
		remove    DeleteFunc
	}{
		{"outbox-retention", cfg.OutboxRetention, repo.DeletePublishedOutbox},
		{"outbox-dlq-retention", cfg.DLQRetention, repo.DeleteDLQ},
		{"notification-cleanup", cfg.NotificationRetention, repo.DeleteReadNotifications},
		{"otp-cleanup", cfg.OTPRetention, repo.DeleteStaleOTPs},
	}
	jobs := make([]Job, 0, len(specs))
	for _, spec := range specs {
		job, err := NewRetentionJob(spec.name, spec.retention, spec.remove, logg)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
