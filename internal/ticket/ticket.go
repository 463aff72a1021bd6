// Package ticket manages service tickets on the Servis sheet: intake with a
// collision-safe nota number, the queue lifecycle, and the durable
// notification markers the dispatcher consults.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"capslock/backend/internal/currency"
	"capslock/backend/internal/domain"
	"capslock/backend/internal/rowstore"
	"capslock/backend/internal/sequence"
)

var (
	ErrTicketNotFound    = errors.New("ticket: not found")
	ErrInvalidTransition = errors.New("ticket: invalid transition")
	ErrInvalidInput      = errors.New("ticket: invalid input")
)

// PrefixService is the nota prefix for service tickets.
const PrefixService = "SRV"

// Servis sheet columns, as the operators named them.
const (
	ColID          = "No Nota"
	ColCreatedAt   = "Tanggal Masuk"
	ColEstimatedAt = "Estimasi Selesai"
	ColCustomer    = "Nama Pelanggan"
	ColPhone       = "No HP"
	ColItem        = "Barang"
	ColFault       = "Kerusakan"
	ColAccessories = "Kelengkapan"
	ColStatus      = "Status Antrian"
	ColServiceFee  = "Harga Jasa"
	ColPartsCost   = "Harga Modal"
	ColChannel     = "Jenis Transaksi"
	ColNotified    = "Notifikasi"
	ColClaim       = "Klaim"
)

const dateLayout = "02/01/2006"

const defaultEstimateDays = 3

// Service owns all writes to the Servis sheet. Reads go straight to the row
// store; writes to one ticket are serialized by a per-ticket lock so the
// read-validate-write cycle of a transition cannot interleave.
type Service struct {
	store rowstore.Store
	seq   *sequence.Generator
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(store rowstore.Store, seq *sequence.Generator) *Service {
	return &Service{
		store: store,
		seq:   seq,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// lock returns the mutex guarding one ticket id, creating it on first use.
func (s *Service) lock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// CreateTicket registers a new service order. The nota number is claimed
// through the sequence generator, so concurrent intakes never share an id.
func (s *Service) CreateTicket(ctx context.Context, req domain.CreateTicketRequest) (*domain.Ticket, error) {
	if strings.TrimSpace(req.CustomerName) == "" {
		return nil, fmt.Errorf("%w: customer name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.ItemDescription) == "" {
		return nil, fmt.Errorf("%w: item description is required", ErrInvalidInput)
	}
	if req.ServiceFee < 0 || req.PartsCost < 0 {
		return nil, fmt.Errorf("%w: negative amount", ErrInvalidInput)
	}
	days := req.EstimatedDays
	if days <= 0 {
		days = defaultEstimateDays
	}

	createdAt := s.now()
	t := domain.Ticket{
		CreatedAt:        createdAt,
		EstimatedAt:      createdAt.AddDate(0, 0, days),
		CustomerName:     strings.TrimSpace(req.CustomerName),
		CustomerPhone:    strings.TrimSpace(req.CustomerPhone),
		ItemDescription:  strings.TrimSpace(req.ItemDescription),
		FaultDescription: strings.TrimSpace(req.FaultDescription),
		Accessories:      strings.TrimSpace(req.Accessories),
		ServiceFee:       req.ServiceFee,
		PartsCost:        req.PartsCost,
		PaymentChannel:   req.PaymentChannel,
		Status:           domain.StatusQueued,
	}

	id, rowIndex, err := s.seq.Claim(ctx, PrefixService, toRow(t))
	if err != nil {
		return nil, fmt.Errorf("claim nota number: %w", err)
	}
	t.ID = id
	t.RowIndex = rowIndex
	return &t, nil
}

// Get loads one ticket by nota number.
func (s *Service) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	rows, err := s.store.ReadAllRows(ctx, rowstore.SheetService)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		if row[ColID] == id {
			t := FromRow(row, i)
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTicketNotFound, id)
}

// NextTicketNumber previews the nota number the next intake would receive.
// Purely informational: CreateTicket recomputes and claims its own number,
// so the preview can be stale under concurrent intakes.
func (s *Service) NextTicketNumber(ctx context.Context) (string, error) {
	return s.seq.Next(ctx, PrefixService)
}

// List returns every live ticket on the sheet, oldest first.
func (s *Service) List(ctx context.Context) ([]domain.Ticket, error) {
	rows, err := s.store.ReadAllRows(ctx, rowstore.SheetService)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Ticket, 0, len(rows))
	for i, row := range rows {
		if row[ColID] == "" || row[ColID] == sequence.VoidMarker {
			continue
		}
		out = append(out, FromRow(row, i))
	}
	return out, nil
}

// Transition moves a ticket to the target status. All validation happens
// before the first cell write, so a rejected transition leaves the sheet
// untouched. The returned transition id identifies the move for the
// notification dispatcher.
func (s *Service) Transition(ctx context.Context, id string, req domain.TransitionRequest) (*domain.Ticket, string, error) {
	l := s.lock(id)
	l.Lock()
	defer l.Unlock()

	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	from := t.Status
	if !CanTransition(from, req.Target) {
		return nil, "", fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, req.Target)
	}

	if req.Target == domain.StatusReadyForPickup {
		if req.PaymentChannel != "" {
			t.PaymentChannel = req.PaymentChannel
		}
		if t.PaymentChannel == "" {
			return nil, "", fmt.Errorf("%w: payment channel is required before pickup", ErrInvalidInput)
		}
		if req.ServiceFee == nil && t.ServiceFee == 0 {
			return nil, "", fmt.Errorf("%w: service fee must be set before pickup", ErrInvalidInput)
		}
	}
	if req.ServiceFee != nil {
		if *req.ServiceFee < 0 {
			return nil, "", fmt.Errorf("%w: negative service fee", ErrInvalidInput)
		}
		t.ServiceFee = *req.ServiceFee
	}
	if req.PartsCost != nil {
		if *req.PartsCost < 0 {
			return nil, "", fmt.Errorf("%w: negative parts cost", ErrInvalidInput)
		}
		t.PartsCost = *req.PartsCost
	}
	t.Status = req.Target

	updates := map[string]string{
		ColStatus:     t.Status.SheetValue(),
		ColServiceFee: currency.FormatRupiah(t.ServiceFee),
		ColPartsCost:  currency.FormatRupiah(t.PartsCost),
		ColChannel:    string(t.PaymentChannel),
	}
	for column, value := range updates {
		if err := s.store.UpdateCell(ctx, rowstore.SheetService, t.RowIndex, column, value); err != nil {
			return nil, "", fmt.Errorf("persist transition: %w", err)
		}
	}
	return t, TransitionID(from, req.Target), nil
}

// HasNotified reports whether the given transition was already dispatched
// for this ticket, per the durable marker column.
func HasNotified(t *domain.Ticket, transitionID string) bool {
	for _, done := range t.NotifiedTransitions {
		if done == transitionID {
			return true
		}
	}
	return false
}

// RecordNotified appends a transition id to the ticket's marker column. It
// re-reads the row first so markers written by earlier dispatches survive.
func (s *Service) RecordNotified(ctx context.Context, id string, transitionID string) error {
	l := s.lock(id)
	l.Lock()
	defer l.Unlock()

	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if HasNotified(t, transitionID) {
		return nil
	}
	markers := append(t.NotifiedTransitions, transitionID)
	return s.store.UpdateCell(ctx, rowstore.SheetService, t.RowIndex, ColNotified, strings.Join(markers, ","))
}

// FromRow maps a Servis sheet row back to a Ticket. Money and date cells are
// parsed fail-soft: garbage reads as zero, exactly as the sheet tolerates it.
func FromRow(row rowstore.Row, rowIndex int) domain.Ticket {
	t := domain.Ticket{
		ID:               row[ColID],
		CustomerName:     row[ColCustomer],
		CustomerPhone:    row[ColPhone],
		ItemDescription:  row[ColItem],
		FaultDescription: row[ColFault],
		Accessories:      row[ColAccessories],
		ServiceFee:       currency.ParseRupiah(row[ColServiceFee]),
		PartsCost:        currency.ParseRupiah(row[ColPartsCost]),
		PaymentChannel:   domain.ParsePaymentChannel(row[ColChannel]),
		Status:           domain.ParseQueueStatus(row[ColStatus]),
		ClaimToken:       row[ColClaim],
		RowIndex:         rowIndex,
	}
	if created, err := time.Parse(dateLayout, row[ColCreatedAt]); err == nil {
		t.CreatedAt = created
	}
	if estimated, err := time.Parse(dateLayout, row[ColEstimatedAt]); err == nil {
		t.EstimatedAt = estimated
	}
	if markers := strings.TrimSpace(row[ColNotified]); markers != "" {
		t.NotifiedTransitions = strings.Split(markers, ",")
	}
	return t
}

// toRow maps a ticket to the full set of Servis sheet cells.
func toRow(t domain.Ticket) rowstore.Row {
	return rowstore.Row{
		ColID:          t.ID,
		ColCreatedAt:   t.CreatedAt.Format(dateLayout),
		ColEstimatedAt: t.EstimatedAt.Format(dateLayout),
		ColCustomer:    t.CustomerName,
		ColPhone:       t.CustomerPhone,
		ColItem:        t.ItemDescription,
		ColFault:       t.FaultDescription,
		ColAccessories: t.Accessories,
		ColStatus:      t.Status.SheetValue(),
		ColServiceFee:  currency.FormatRupiah(t.ServiceFee),
		ColPartsCost:   currency.FormatRupiah(t.PartsCost),
		ColChannel:     string(t.PaymentChannel),
		ColNotified:    strings.Join(t.NotifiedTransitions, ","),
		ColClaim:       t.ClaimToken,
	}
}
