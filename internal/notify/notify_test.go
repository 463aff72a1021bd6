package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"capslock/backend/internal/domain"
	"capslock/backend/internal/rowstore"
	"capslock/backend/internal/rowstore/memory"
	"capslock/backend/internal/sequence"
	"capslock/backend/internal/ticket"
)

type recordingTransport struct {
	failures int
	sent     []string
}

func (r *recordingTransport) Send(_ context.Context, recipient string, message string) error {
	if r.failures > 0 {
		r.failures--
		return errors.New("gateway down")
	}
	r.sent = append(r.sent, recipient+": "+message)
	return nil
}

func testProfile() domain.ShopProfile {
	return domain.ShopProfile{Name: "Capslock Servis", Address: "Jl. Kaliurang KM 5", Phone: "0274123456"}
}

func setupDispatch(t *testing.T, transport Transport) (*Dispatcher, *ticket.Service, *domain.Ticket, string) {
	t.Helper()
	store := memory.New()
	seq := sequence.New(store, rowstore.SheetService, ticket.ColID, ticket.ColClaim,
		sequence.WithSleep(func(time.Duration) {}))
	svc := ticket.NewService(store, seq)

	created, err := svc.CreateTicket(context.Background(), domain.CreateTicketRequest{
		CustomerName:    "Budi",
		CustomerPhone:   "0812-3456-7890",
		ItemDescription: "Laptop Asus",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	moved, transition, err := svc.Transition(context.Background(), created.ID, domain.TransitionRequest{
		Target:         domain.StatusReadyForPickup,
		ServiceFee:     int64ptr(150000),
		PaymentChannel: domain.ChannelCash,
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	return NewDispatcher(transport, svc, testProfile()), svc, moved, transition
}

func int64ptr(v int64) *int64 { return &v }

func TestDispatchSendsOnceAndMarks(t *testing.T) {
	transport := &recordingTransport{}
	d, svc, moved, transition := setupDispatch(t, transport)
	ctx := context.Background()

	sent, err := d.DispatchTransition(ctx, moved, transition)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !sent {
		t.Fatal("expected a send")
	}

	// A redelivery attempt sees the durable marker and stays quiet.
	reloaded, err := svc.Get(ctx, moved.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	sent, err = d.DispatchTransition(ctx, reloaded, transition)
	if err != nil {
		t.Fatalf("redispatch: %v", err)
	}
	if sent {
		t.Fatal("marked transition must not resend")
	}
	if len(transport.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(transport.sent))
	}
	if !strings.HasPrefix(transport.sent[0], "6281234567890: ") {
		t.Fatalf("unexpected recipient in %q", transport.sent[0])
	}
	if !strings.Contains(transport.sent[0], "SIAP DIAMBIL") {
		t.Fatalf("unexpected message body in %q", transport.sent[0])
	}
	if !strings.Contains(transport.sent[0], "Rp 150.000") {
		t.Fatalf("expected formatted fee in %q", transport.sent[0])
	}
}

func TestDispatchFailureLeavesMarkerUnset(t *testing.T) {
	transport := &recordingTransport{failures: 1}
	d, svc, moved, transition := setupDispatch(t, transport)
	ctx := context.Background()

	if _, err := d.DispatchTransition(ctx, moved, transition); err == nil {
		t.Fatal("expected transport error")
	}

	// The failed attempt must not have marked, so the retry goes through.
	reloaded, _ := svc.Get(ctx, moved.ID)
	if ticket.HasNotified(reloaded, transition) {
		t.Fatal("failed send must not record a marker")
	}
	sent, err := d.DispatchTransition(ctx, reloaded, transition)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !sent || len(transport.sent) != 1 {
		t.Fatalf("expected exactly one delivered message, got %d", len(transport.sent))
	}
	reloaded, _ = svc.Get(ctx, moved.ID)
	if !ticket.HasNotified(reloaded, transition) {
		t.Fatal("successful retry must record the marker")
	}
}

func TestDispatchSkipsNonTriggerTransitions(t *testing.T) {
	transport := &recordingTransport{}
	d, _, moved, _ := setupDispatch(t, transport)

	completion := ticket.TransitionID(domain.StatusReadyForPickup, domain.StatusCompleted)
	sent, err := d.DispatchTransition(context.Background(), moved, completion)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if sent || len(transport.sent) != 0 {
		t.Fatal("completion must not notify")
	}
}

func TestDispatchSkipsUnusablePhone(t *testing.T) {
	transport := &recordingTransport{}
	d, _, moved, transition := setupDispatch(t, transport)
	moved.CustomerPhone = "n/a"

	sent, err := d.DispatchTransition(context.Background(), moved, transition)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if sent || len(transport.sent) != 0 {
		t.Fatal("unusable phone must not send")
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"081234567890", "6281234567890"},
		{"0812-3456-7890", "6281234567890"},
		{"+62 812 3456 7890", "6281234567890"},
		{"81234567890", "6281234567890"},
		{"6281234567890", "6281234567890"},
		{"0812", ""},
		{"n/a", ""},
		{"", ""},
	}
	for _, tc := range tests {
		if got := NormalizePhone(tc.in); got != tc.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWhatsAppLink(t *testing.T) {
	link := WhatsAppLink("081234567890", "Nota SRV/0000001 siap")
	if !strings.HasPrefix(link, "https://wa.me/6281234567890?text=") {
		t.Fatalf("unexpected link %q", link)
	}
	if strings.Contains(link, " ") {
		t.Fatalf("link must be url-encoded: %q", link)
	}
	if WhatsAppLink("banana", "hi") != "" {
		t.Fatal("unusable phone must yield no link")
	}
}

func TestLowStockMessage(t *testing.T) {
	if msg := LowStockMessage("SSD 256GB", 0); !strings.Contains(msg, "kosong") {
		t.Fatalf("unexpected out-of-stock message %q", msg)
	}
	if msg := LowStockMessage("SSD 256GB", 1); !strings.Contains(msg, "tinggal <b>1</b>") {
		t.Fatalf("unexpected low-stock message %q", msg)
	}
	if msg := LowStockMessage("SSD 256GB", 2); msg != "" {
		t.Fatalf("expected no alert, got %q", msg)
	}
}
