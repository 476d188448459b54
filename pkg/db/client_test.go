package db

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nokasa/pickup-backend/pkg/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := NewFromConn(db)

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestWithTxOptions_AppliesTimeoutAndCommits(t *testing.T) {
	db := newTestDB(t)
	client := NewFromConn(db)

	err := client.WithTxOptions(context.Background(), Serializable(2*time.Second), func(tx *gorm.DB) error {
		deadline, ok := tx.Statement.Context.Deadline()
		if !ok || time.Until(deadline) > 2*time.Second {
			t.Fatalf("expected a deadline within 2s")
		}
		return tx.Create(&testModel{Name: "serial"}).Error
	})
	if err != nil {
		t.Fatalf("WithTxOptions failed: %v", err)
	}
}

func TestPing(t *testing.T) {
	client := NewFromConn(newTestDB(t))
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

type recordingObserver struct {
	ops  []string
	slow int
}

func (r *recordingObserver) ObserveQuery(operation, table string, _ time.Duration, slow bool) {
	r.ops = append(r.ops, operation+":"+table)
	if slow {
		r.slow++
	}
}

func TestQueryTimer_ObservesAndLogsSlowQueries(t *testing.T) {
	db := newTestDB(t)
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	obs := &recordingObserver{}

	timer := NewQueryTimer(logg, 50*time.Millisecond, obs)
	tick := time.Unix(0, 0)
	timer.now = func() time.Time {
		tick = tick.Add(60 * time.Millisecond)
		return tick
	}
	if err := db.Use(timer); err != nil {
		t.Fatalf("install timer: %v", err)
	}

	if err := db.Create(&testModel{Name: "timed"}).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	if len(obs.ops) == 0 || obs.ops[0] != "create:test_models" {
		t.Fatalf("expected create observation, got %v", obs.ops)
	}
	if obs.slow == 0 {
		t.Fatalf("expected slow query to be flagged")
	}
	if !strings.Contains(buf.String(), "slow query") {
		t.Fatalf("expected slow query log, got %s", buf.String())
	}
}

func TestIsUniqueViolationFallsBackToMessage(t *testing.T) {
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: entities.phone"), "") {
		t.Fatalf("expected sqlite unique failure to match")
	}
	if IsUniqueViolation(errors.New("other"), "") {
		t.Fatalf("unexpected match")
	}
	if IsSerializationFailure(errors.New("plain")) {
		t.Fatalf("plain errors are not serialization failures")
	}
}
