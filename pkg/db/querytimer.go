package db

import (
	"context"
	"time"

	"github.com/nokasa/pickup-backend/pkg/logger"
	"gorm.io/gorm"
)

const queryStartKey = "pickup:query_started_at"

// QueryObserver receives the latency of every gorm operation.
type QueryObserver interface {
	ObserveQuery(operation, table string, d time.Duration, slow bool)
}

// QueryTimer is a gorm plugin that times each operation and logs the slow ones.
type QueryTimer struct {
	logg      *logger.Logger
	threshold time.Duration
	observer  QueryObserver
	now       func() time.Time
}

func NewQueryTimer(logg *logger.Logger, threshold time.Duration, observer QueryObserver) *QueryTimer {
	return &QueryTimer{logg: logg, threshold: threshold, observer: observer, now: time.Now}
}

func (q *QueryTimer) Name() string { return "pickup:query_timer" }

func (q *QueryTimer) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		op     string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, h := range hooks {
		op := h.op
		if err := h.before("pickup:timer_start_"+op, q.start); err != nil {
			return err
		}
		if err := h.after("pickup:timer_end_"+op, func(tx *gorm.DB) { q.finish(tx, op) }); err != nil {
			return err
		}
	}
	return nil
}

func (q *QueryTimer) start(tx *gorm.DB) {
	tx.InstanceSet(queryStartKey, q.now())
}

func (q *QueryTimer) finish(tx *gorm.DB, op string) {
	v, ok := tx.InstanceGet(queryStartKey)
	if !ok {
		return
	}
	started, ok := v.(time.Time)
	if !ok {
		return
	}
	elapsed := q.now().Sub(started)
	slow := q.threshold > 0 && elapsed >= q.threshold
	table := tx.Statement.Table

	if q.observer != nil {
		q.observer.ObserveQuery(op, table, elapsed, slow)
	}
	if !slow || q.logg == nil {
		return
	}

	ctx := tx.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = q.logg.WithFields(ctx, map[string]any{
		"operation":     op,
		"table":         table,
		"duration_ms":   elapsed.Milliseconds(),
		"rows_affected": tx.RowsAffected,
		"sql":           tx.Statement.SQL.String(),
	})
	q.logg.Warn(ctx, "slow query")
}
