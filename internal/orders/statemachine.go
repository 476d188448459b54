package orders

import "github.com/nokasa/pickup-backend/pkg/enums"

// Action names an order operation for metrics, events and error messages.
type Action string

const (
	ActionCreate      Action = "create"
	ActionAccept      Action = "accept"
	ActionReject      Action = "reject"
	ActionCancel      Action = "cancel"
	ActionReassign    Action = "reassign"
	ActionConfirm     Action = "confirm"
	ActionResendOTP   Action = "resend_otp"
	ActionUpdateItems Action = "update_items"
)

type edge struct {
	from enums.OrderStatus
	to   enums.OrderStatus
}

// transitions lists every status change and the actor types allowed to make
// it. Anything absent is illegal, which keeps terminal states closed.
var transitions = map[edge][]enums.EntityType{
	{enums.OrderStatusNew, enums.OrderStatusAccepted}:       {enums.EntityTypeVendor},
	{enums.OrderStatusNew, enums.OrderStatusRejected}:       {enums.EntityTypeVendor},
	{enums.OrderStatusAccepted, enums.OrderStatusRejected}:  {enums.EntityTypeAgent},
	{enums.OrderStatusAccepted, enums.OrderStatusCancelled}: {enums.EntityTypeVendor},
	{enums.OrderStatusAccepted, enums.OrderStatusCompleted}: {enums.EntityTypeAgent},
}

// CanTransition reports whether actor may move an order from one status to another.
func CanTransition(from, to enums.OrderStatus, actor enums.EntityType) bool {
	allowed, ok := transitions[edge{from: from, to: to}]
	if !ok {
		return false
	}
	for _, candidate := range allowed {
		if candidate == actor {
			return true
		}
	}
	return false
}

// inPlace lists the operations that edit an order without changing status,
// with the status they require and who may run them.
var inPlace = map[Action]struct {
	status enums.OrderStatus
	actor  enums.EntityType
}{
	ActionReassign:    {enums.OrderStatusAccepted, enums.EntityTypeVendor},
	ActionResendOTP:   {enums.OrderStatusAccepted, enums.EntityTypeAgent},
	ActionUpdateItems: {enums.OrderStatusAccepted, enums.EntityTypeAgent},
}

// CanEdit reports whether actor may run a status-preserving action on an
// order currently in status.
func CanEdit(action Action, status enums.OrderStatus, actor enums.EntityType) bool {
	rule, ok := inPlace[action]
	return ok && rule.status == status && rule.actor == actor
}

// requiredStatus is the status an action expects to find the order in.
func requiredStatus(action Action) enums.OrderStatus {
	switch action {
	case ActionAccept:
		return enums.OrderStatusNew
	case ActionCancel, ActionConfirm, ActionReassign, ActionResendOTP, ActionUpdateItems:
		return enums.OrderStatusAccepted
	}
	return ""
}
