package ticket

import (
	"capslock/backend/internal/domain"
)

// transitions holds the allowed lifecycle moves. Anything absent here is
// rejected, including self-transitions.
var transitions = map[domain.QueueStatus][]domain.QueueStatus{
	domain.StatusQueued:         {domain.StatusReadyForPickup, domain.StatusCancelled},
	domain.StatusReadyForPickup: {domain.StatusCompleted, domain.StatusCancelled},
}

// notificationTriggers lists the transition ids that notify the customer.
// Completed and Cancelled happen at the counter, so no message goes out.
var notificationTriggers = map[string]bool{
	TransitionID(domain.StatusQueued, domain.StatusReadyForPickup): true,
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to domain.QueueStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionID is the durable identifier of a lifecycle move, e.g.
// "queued>ready_for_pickup". It is what the notification marker column stores.
func TransitionID(from, to domain.QueueStatus) string {
	return string(from) + ">" + string(to)
}

// IsNotificationTrigger reports whether a transition sends a customer message.
func IsNotificationTrigger(transitionID string) bool {
	return notificationTriggers[transitionID]
}
