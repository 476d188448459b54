package history

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nokasa/pickup-backend/internal/notifications"
	"github.com/nokasa/pickup-backend/pkg/db/dbtest"
	"github.com/nokasa/pickup-backend/pkg/db/models"
	"github.com/nokasa/pickup-backend/pkg/enums"
	pkgerrors "github.com/nokasa/pickup-backend/pkg/errors"
	"github.com/nokasa/pickup-backend/pkg/logger"
	"github.com/nokasa/pickup-backend/pkg/outbox"
	"github.com/nokasa/pickup-backend/pkg/outbox/payloads"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newRecorder(t *testing.T) (*Recorder, *gorm.DB, *dbtest.Fixtures) {
	t.Helper()
	conn := dbtest.Open(t)
	emitter := outbox.NewService(outbox.NewRepository(conn), logger.Nop())
	rec, err := NewRecorder(NewRepository(conn), notifications.NewRepository(conn), emitter)
	require.NoError(t, err)
	return rec, conn, dbtest.NewFixtures(t, conn)
}

func TestReasonsRoundTrip(t *testing.T) {
	reasons := []string{"customer unavailable", "wrong address", "  rain  "}
	cleaned, err := CleanReasons(reasons)
	require.NoError(t, err)
	require.Equal(t, []string{"customer unavailable", "wrong address", "rain"}, SplitReasons(JoinReasons(cleaned)))
	require.Equal(t, []string{}, SplitReasons(""))
}

func TestCleanReasonsRejectsDelimiterAndEmpty(t *testing.T) {
	_, err := CleanReasons([]string{"a#%#%b"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = CleanReasons([]string{" ", ""})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAppendAndListHistory(t *testing.T) {
	rec, conn, fx := newRecorder(t)
	ctx := context.Background()
	user := fx.User("asha")
	vendor := fx.Vendor("green", 4)
	order := fx.Order(dbtest.OrderSpec{UserID: user.ID})

	err := conn.Transaction(func(tx *gorm.DB) error {
		if _, err := rec.AppendHistory(ctx, tx, Entry{OrderID: order.ID, EntityID: vendor.EntityID, Reasons: []string{"too far"}, Kind: enums.HistoryKindReject}); err != nil {
			return err
		}
		_, err := rec.AppendHistory(ctx, tx, Entry{OrderID: order.ID, EntityID: vendor.EntityID, Reasons: []string{"agent sick", "truck broke"}, Kind: enums.HistoryKindCancel})
		return err
	})
	require.NoError(t, err)

	records, err := rec.ListHistory(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, enums.HistoryKindCancel, records[0].Kind())
	require.Equal(t, []string{"agent sick", "truck broke"}, records[0].Reasons)
	require.NotNil(t, records[0].CancelledAt)
	require.Nil(t, records[0].RejectedAt)
	require.Equal(t, enums.HistoryKindReject, records[1].Kind())

	empty, err := rec.ListHistory(ctx, order.ID+100)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestAppendHistoryRollsBackWithTransition(t *testing.T) {
	rec, conn, fx := newRecorder(t)
	ctx := context.Background()
	user := fx.User("asha")
	order := fx.Order(dbtest.OrderSpec{UserID: user.ID})

	boom := errors.New("boom")
	err := conn.Transaction(func(tx *gorm.DB) error {
		if _, err := rec.AppendHistory(ctx, tx, Entry{OrderID: order.ID, EntityID: user.EntityID, Reasons: []string{"x"}, Kind: enums.HistoryKindReject}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, conn.Model(&models.OrderCancelAndRejectHistory{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestAppendHistoryRejectsUnknownKind(t *testing.T) {
	rec, conn, _ := newRecorder(t)
	_, err := rec.AppendHistory(context.Background(), conn, Entry{OrderID: 1, EntityID: 1, Reasons: []string{"x"}, Kind: "other"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestNotifyWritesRowAndEvent(t *testing.T) {
	rec, conn, fx := newRecorder(t)
	ctx := context.Background()
	vendor := fx.Vendor("green", 4)

	var note *models.Notification
	err := conn.Transaction(func(tx *gorm.DB) error {
		var err error
		note, err = rec.Notify(ctx, tx, Notice{EntityID: vendor.EntityID, Message: "New pickup request received", DeliverSMS: true})
		return err
	})
	require.NoError(t, err)
	require.Equal(t, enums.NotificationTypeInfo, note.Type)

	var events []models.OutboxEvent
	require.NoError(t, conn.Find(&events).Error)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventNotificationRequested, events[0].EventType)
	require.Equal(t, note.ID, events[0].AggregateID)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	var payload payloads.NotificationRequestedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	require.Equal(t, vendor.EntityID, payload.EntityID)
	require.True(t, payload.DeliverSMS)
}

func TestNotifyValidates(t *testing.T) {
	rec, conn, _ := newRecorder(t)
	_, err := rec.Notify(context.Background(), conn, Notice{EntityID: 1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = rec.Notify(context.Background(), conn, Notice{EntityID: 1, Message: "x", Type: "LOUD"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
