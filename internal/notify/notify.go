// Package notify renders and delivers customer messages for ticket lifecycle
// events. Delivery is idempotent per (ticket, transition): a durable marker is
// recorded only after the transport accepts the message, and a marked
// transition is never sent again.
package notify

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"capslock/backend/internal/domain"
	"capslock/backend/internal/ticket"
)

// MarkerStore persists the per-ticket record of dispatched transitions.
type MarkerStore interface {
	RecordNotified(ctx context.Context, id string, transitionID string) error
}

const defaultSendTimeout = 15 * time.Second

type Dispatcher struct {
	transport Transport
	markers   MarkerStore
	profile   domain.ShopProfile
	timeout   time.Duration
}

func NewDispatcher(transport Transport, markers MarkerStore, profile domain.ShopProfile) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		markers:   markers,
		profile:   profile,
		timeout:   defaultSendTimeout,
	}
}

// DispatchTransition sends the customer message for a lifecycle move, if that
// move notifies at all and was not already dispatched. It reports whether a
// message went out. The ticket's new status is already committed when this
// runs; a delivery failure surfaces as an error but never touches the ticket.
func (d *Dispatcher) DispatchTransition(ctx context.Context, t *domain.Ticket, transitionID string) (bool, error) {
	if !ticket.IsNotificationTrigger(transitionID) {
		return false, nil
	}
	if ticket.HasNotified(t, transitionID) {
		return false, nil
	}
	recipient := NormalizePhone(t.CustomerPhone)
	if recipient == "" {
		log.Printf("[notify] ticket %s has no usable phone number, skipping", t.ID)
		return false, nil
	}

	message := ReadyForPickupMessage(d.profile, t)
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.transport.Send(sendCtx, recipient, message); err != nil {
		return false, fmt.Errorf("send %s for %s: %w", transitionID, t.ID, err)
	}

	// Marker goes down only after the transport accepted. If this write
	// fails the message may repeat on the next dispatch, which the shop
	// prefers over a silent customer.
	if err := d.markers.RecordNotified(ctx, t.ID, transitionID); err != nil {
		return true, fmt.Errorf("record marker for %s: %w", t.ID, err)
	}
	return true, nil
}

// NormalizePhone canonicalizes an Indonesian phone number for WhatsApp:
// separators are stripped and a leading 0 becomes the 62 country code.
// Anything that does not come out as a plausible number returns empty.
func NormalizePhone(raw string) string {
	cleaned := strings.NewReplacer("+", "", " ", "", "-", "").Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return ""
	}
	if strings.HasPrefix(cleaned, "0") {
		cleaned = "62" + cleaned[1:]
	} else if !strings.HasPrefix(cleaned, "62") {
		cleaned = "62" + cleaned
	}
	if len(cleaned) < 10 {
		return ""
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return cleaned
}

// WhatsAppLink builds a wa.me deep link carrying a prefilled message, for the
// operator to open from the intake screen. Empty when the phone is unusable.
func WhatsAppLink(phone string, message string) string {
	recipient := NormalizePhone(phone)
	if recipient == "" {
		return ""
	}
	return "https://wa.me/" + recipient + "?text=" + url.QueryEscape(message)
}
