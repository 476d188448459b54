// Package history records the immutable audit trail of cancellations and
// rejections, and queues notifications alongside order transitions.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nokasa/pickup-backend/internal/notifications"
	"github.com/nokasa/pickup-backend/pkg/db/models"
	"github.com/nokasa/pickup-backend/pkg/enums"
	pkgerrors "github.com/nokasa/pickup-backend/pkg/errors"
	"github.com/nokasa/pickup-backend/pkg/outbox"
	"github.com/nokasa/pickup-backend/pkg/outbox/payloads"
	"gorm.io/gorm"
)

// ReasonDelimiter joins reasons into the single stored column. A reason may
// not contain it.
const ReasonDelimiter = "#%#%"

// Entry is one cancellation or rejection to record.
type Entry struct {
	OrderID  int64
	EntityID int64
	Reasons  []string
	Kind     enums.HistoryKind
}

// Record is a stored history row with its reasons split back out.
type Record struct {
	ID          int64      `json:"id"`
	OrderID     int64      `json:"orderId"`
	EntityID    int64      `json:"entityId"`
	Reasons     []string   `json:"reasons"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	RejectedAt  *time.Time `json:"rejectedAt,omitempty"`
}

// Kind reports whether the record is a cancellation or a rejection.
func (r Record) Kind() enums.HistoryKind {
	if r.CancelledAt != nil {
		return enums.HistoryKindCancel
	}
	return enums.HistoryKindReject
}

// Notice is a notification to store and hand to the delivery worker.
type Notice struct {
	EntityID   int64
	Type       enums.NotificationType
	Message    string
	Phone      string
	DeliverSMS bool
	Actor      *outbox.ActorRef
}

// Recorder writes history and notifications inside the caller's transaction.
type Recorder struct {
	repo          Repository
	notifications notifications.Repository
	outbox        outbox.Emitter
	now           func() time.Time
}

// NewRecorder wires the recorder dependencies.
func NewRecorder(repo Repository, notes notifications.Repository, emitter outbox.Emitter) (*Recorder, error) {
	if repo == nil {
		return nil, fmt.Errorf("history repository required")
	}
	if notes == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &Recorder{repo: repo, notifications: notes, outbox: emitter, now: time.Now}, nil
}

// CleanReasons trims reasons, drops blanks and rejects the delimiter.
func CleanReasons(reasons []string) ([]string, error) {
	out := make([]string, 0, len(reasons))
	for _, reason := range reasons {
		reason = strings.TrimSpace(reason)
		if reason == "" {
			continue
		}
		if strings.Contains(reason, ReasonDelimiter) {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "reason may not contain %q", ReasonDelimiter)
		}
		out = append(out, reason)
	}
	if len(out) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one reason is required")
	}
	return out, nil
}

// JoinReasons encodes reasons for storage.
func JoinReasons(reasons []string) string {
	return strings.Join(reasons, ReasonDelimiter)
}

// SplitReasons decodes a stored reasons column.
func SplitReasons(stored string) []string {
	if stored == "" {
		return []string{}
	}
	return strings.Split(stored, ReasonDelimiter)
}

// AppendHistory inserts one immutable row. Exactly one of cancelledAt and
// rejectedAt is stamped, according to the entry kind.
func (r *Recorder) AppendHistory(ctx context.Context, tx *gorm.DB, entry Entry) (*models.OrderCancelAndRejectHistory, error) {
	if entry.OrderID <= 0 || entry.EntityID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order and entity required for history")
	}
	reasons, err := CleanReasons(entry.Reasons)
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()
	row := &models.OrderCancelAndRejectHistory{
		OrderID:  entry.OrderID,
		EntityID: entry.EntityID,
		Reasons:  JoinReasons(reasons),
	}
	switch entry.Kind {
	case enums.HistoryKindCancel:
		row.CancelledAt = &now
	case enums.HistoryKindReject:
		row.RejectedAt = &now
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown history kind %q", entry.Kind)
	}
	if err := r.repo.WithTx(tx).Append(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
	}
	return row, nil
}

// ListHistory returns an order's history, newest first.
func (r *Recorder) ListHistory(ctx context.Context, orderID int64) ([]Record, error) {
	byOrder, err := r.ListForOrders(ctx, []int64{orderID})
	if err != nil {
		return nil, err
	}
	records := byOrder[orderID]
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// ListForOrders groups history by order id, each group newest first.
func (r *Recorder) ListForOrders(ctx context.Context, orderIDs []int64) (map[int64][]Record, error) {
	rows, err := r.repo.ListByOrders(ctx, orderIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order history")
	}
	out := make(map[int64][]Record, len(orderIDs))
	for _, row := range rows {
		out[row.OrderID] = append(out[row.OrderID], Record{
			ID:          row.ID,
			OrderID:     row.OrderID,
			EntityID:    row.EntityID,
			Reasons:     SplitReasons(row.Reasons),
			CancelledAt: row.CancelledAt,
			RejectedAt:  row.RejectedAt,
		})
	}
	return out, nil
}

// Notify stores an in-app notification and queues its delivery event in the
// same transaction.
func (r *Recorder) Notify(ctx context.Context, tx *gorm.DB, notice Notice) (*models.Notification, error) {
	if notice.EntityID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification entity required")
	}
	if strings.TrimSpace(notice.Message) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification message required")
	}
	if notice.Type == "" {
		notice.Type = enums.NotificationTypeInfo
	}
	if !notice.Type.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid notification type %q", notice.Type)
	}

	row := &models.Notification{
		EntityID: notice.EntityID,
		Type:     notice.Type,
		Message:  notice.Message,
	}
	if err := r.notifications.WithTx(tx).Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   row.ID,
		Actor:         notice.Actor,
		Data: payloads.NotificationRequestedEvent{
			NotificationID: row.ID,
			EntityID:       row.EntityID,
			Type:           row.Type,
			Message:        row.Message,
			Phone:          notice.Phone,
			DeliverSMS:     notice.DeliverSMS,
		},
	}
	if err := r.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue notification event")
	}
	return row, nil
}
