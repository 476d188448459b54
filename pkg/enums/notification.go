package enums

import "fmt"

// NotificationType maps to the notification_type column.
type NotificationType string

const (
	NotificationTypeInfo    NotificationType = "INFO"
	NotificationTypeWarning NotificationType = "WARNING"
	NotificationTypeAlert   NotificationType = "ALERT"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeInfo,
	NotificationTypeWarning,
	NotificationTypeAlert,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

// HistoryKind tells whether a history row records a cancellation or a rejection.
type HistoryKind string

const (
	HistoryKindCancel HistoryKind = "cancel"
	HistoryKindReject HistoryKind = "reject"
)
