package ticket

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"capslock/backend/internal/domain"
	"capslock/backend/internal/rowstore"
	"capslock/backend/internal/rowstore/memory"
	"capslock/backend/internal/sequence"
)

func newTestService() (*Service, *memory.Store) {
	store := memory.New()
	seq := sequence.New(store, rowstore.SheetService, ColID, ColClaim,
		sequence.WithSleep(func(time.Duration) {}))
	svc := NewService(store, seq)
	svc.now = func() time.Time {
		return time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)
	}
	return svc, store
}

func intake() domain.CreateTicketRequest {
	return domain.CreateTicketRequest{
		CustomerName:     "Budi",
		CustomerPhone:    "081234567890",
		ItemDescription:  "Laptop Asus A409",
		FaultDescription: "Tidak menyala",
		Accessories:      "Charger",
		EstimatedDays:    2,
	}
}

func fee(v int64) *int64 { return &v }

func TestCreateTicketAssignsSequentialNotaNumbers(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	first, err := svc.CreateTicket(ctx, intake())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := svc.CreateTicket(ctx, intake())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.ID != "SRV/0000001" || second.ID != "SRV/0000002" {
		t.Fatalf("got ids %s, %s", first.ID, second.ID)
	}

	rows, err := store.ReadAllRows(ctx, rowstore.SheetService)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][ColStatus] != "Antrian" {
		t.Fatalf("expected status Antrian, got %q", rows[0][ColStatus])
	}
	if rows[0][ColCreatedAt] != "10/03/2024" {
		t.Fatalf("expected created 10/03/2024, got %q", rows[0][ColCreatedAt])
	}
	if rows[0][ColEstimatedAt] != "12/03/2024" {
		t.Fatalf("expected estimate 12/03/2024, got %q", rows[0][ColEstimatedAt])
	}
	if rows[0][ColClaim] == "" {
		t.Fatal("expected a claim token on the stored row")
	}
}

func TestCreateTicketRejectsBlankCustomer(t *testing.T) {
	svc, _ := newTestService()
	req := intake()
	req.CustomerName = "  "
	if _, err := svc.CreateTicket(context.Background(), req); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestTransitionToReadyPersistsFeeAndChannel(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	created, _ := svc.CreateTicket(ctx, intake())

	got, transition, err := svc.Transition(ctx, created.ID, domain.TransitionRequest{
		Target:         domain.StatusReadyForPickup,
		ServiceFee:     fee(150000),
		PartsCost:      fee(50000),
		PaymentChannel: domain.ChannelCash,
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if transition != "queued>ready_for_pickup" {
		t.Fatalf("unexpected transition id %q", transition)
	}
	if got.Status != domain.StatusReadyForPickup {
		t.Fatalf("unexpected status %s", got.Status)
	}

	rows, _ := store.ReadAllRows(ctx, rowstore.SheetService)
	row := rows[created.RowIndex]
	if row[ColStatus] != "Siap Diambil" {
		t.Fatalf("expected Siap Diambil, got %q", row[ColStatus])
	}
	if row[ColServiceFee] != "Rp 150.000" {
		t.Fatalf("expected Rp 150.000, got %q", row[ColServiceFee])
	}
	if row[ColChannel] != "Cash" {
		t.Fatalf("expected Cash, got %q", row[ColChannel])
	}
}

func TestTransitionToReadyRequiresChannel(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	created, _ := svc.CreateTicket(ctx, intake())

	_, _, err := svc.Transition(ctx, created.ID, domain.TransitionRequest{
		Target:     domain.StatusReadyForPickup,
		ServiceFee: fee(150000),
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	rows, _ := store.ReadAllRows(ctx, rowstore.SheetService)
	if rows[created.RowIndex][ColStatus] != "Antrian" {
		t.Fatal("rejected transition must not touch the sheet")
	}
}

func TestInvalidTransitionsRejected(t *testing.T) {
	tests := []struct {
		name   string
		target domain.QueueStatus
	}{
		{"completed straight from queue", domain.StatusCompleted},
		{"back to queue", domain.StatusQueued},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, store := newTestService()
			ctx := context.Background()
			created, _ := svc.CreateTicket(ctx, intake())

			_, _, err := svc.Transition(ctx, created.ID, domain.TransitionRequest{Target: tc.target})
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			rows, _ := store.ReadAllRows(ctx, rowstore.SheetService)
			if rows[created.RowIndex][ColStatus] != "Antrian" {
				t.Fatal("rejected transition must not touch the sheet")
			}
		})
	}
}

func TestCancelFromQueueAllowed(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	created, _ := svc.CreateTicket(ctx, intake())

	got, _, err := svc.Transition(ctx, created.ID, domain.TransitionRequest{Target: domain.StatusCancelled})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != domain.StatusCancelled {
		t.Fatalf("unexpected status %s", got.Status)
	}
}

func TestConcurrentReadyTransitionsSingleWinner(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	created, _ := svc.CreateTicket(ctx, intake())

	req := domain.TransitionRequest{
		Target:         domain.StatusReadyForPickup,
		ServiceFee:     fee(150000),
		PaymentChannel: domain.ChannelCash,
	}
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _, errs[n] = svc.Transition(ctx, created.ID, req)
		}(i)
	}
	wg.Wait()

	var wins, rejects int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrInvalidTransition):
			rejects++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || rejects != 1 {
		t.Fatalf("expected exactly one winner, got %d wins %d rejects", wins, rejects)
	}
}

func TestRecordNotifiedIsIdempotent(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	created, _ := svc.CreateTicket(ctx, intake())
	transition := TransitionID(domain.StatusQueued, domain.StatusReadyForPickup)

	for i := 0; i < 2; i++ {
		if err := svc.RecordNotified(ctx, created.ID, transition); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	rows, _ := store.ReadAllRows(ctx, rowstore.SheetService)
	if got := rows[created.RowIndex][ColNotified]; got != transition {
		t.Fatalf("expected single marker %q, got %q", transition, got)
	}

	reloaded, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !HasNotified(reloaded, transition) {
		t.Fatal("marker not visible after reload")
	}
}

func TestTransitionTriggersAreScoped(t *testing.T) {
	if !IsNotificationTrigger("queued>ready_for_pickup") {
		t.Fatal("ready-for-pickup must notify")
	}
	if IsNotificationTrigger("ready_for_pickup>completed") {
		t.Fatal("completion must not notify")
	}
}
