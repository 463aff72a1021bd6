// Package ledger reconciles the Servis, Transaksi and Pengeluaran sheets into
// profit reports. Money cells are parsed fail-soft and rows whose dates do not
// parse are left out of every window.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"capslock/backend/internal/cache"
	"capslock/backend/internal/currency"
	"capslock/backend/internal/domain"
	"capslock/backend/internal/inventory"
	"capslock/backend/internal/rowstore"
	"capslock/backend/internal/sequence"
	"capslock/backend/internal/ticket"
)

var ErrInvalidInput = errors.New("ledger: invalid input")

// Pengeluaran sheet columns.
const (
	ColDate        = "Tanggal"
	ColDescription = "Keterangan"
	ColNominal     = "Nominal"
	ColChannel     = "Jenis Transaksi"
)

const dateLayout = "02/01/2006"

const defaultCacheTTL = time.Minute

type Aggregator struct {
	store rowstore.Store
	cache cache.ReportCache
	ttl   time.Duration
	now   func() time.Time
}

func NewAggregator(store rowstore.Store, reports cache.ReportCache, cacheTTL time.Duration) *Aggregator {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &Aggregator{
		store: store,
		cache: reports,
		ttl:   cacheTTL,
		now:   time.Now,
	}
}

// AppendExpense records one entry on the expense sheet. The date defaults to
// today; a malformed explicit date is rejected rather than silently shifted.
func (a *Aggregator) AppendExpense(ctx context.Context, req domain.ExpenseRequest) (*domain.Expense, error) {
	if strings.TrimSpace(req.Description) == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	if req.Nominal <= 0 {
		return nil, fmt.Errorf("%w: nominal must be positive", ErrInvalidInput)
	}

	date := a.now()
	if raw := strings.TrimSpace(req.Date); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be dd/mm/yyyy", ErrInvalidInput)
		}
		date = parsed
	}

	expense := domain.Expense{
		Date:           date,
		Description:    strings.TrimSpace(req.Description),
		Nominal:        req.Nominal,
		PaymentChannel: req.PaymentChannel,
	}
	err := a.store.AppendRow(ctx, rowstore.SheetExpenses, rowstore.Row{
		ColDate:        expense.Date.Format(dateLayout),
		ColDescription: expense.Description,
		ColNominal:     currency.FormatRupiah(expense.Nominal),
		ColChannel:     string(expense.PaymentChannel),
	})
	if err != nil {
		return nil, err
	}
	return &expense, nil
}

// SummaryForDay reconciles one calendar day.
func (a *Aggregator) SummaryForDay(ctx context.Context, day time.Time, channel domain.PaymentChannel) (*domain.ProfitSummary, error) {
	label := day.Format("2006-01-02")
	return a.cachedSummary(ctx, label, channel, func(d time.Time) bool {
		return sameDay(d, day)
	})
}

// SummaryForMonth reconciles one calendar month.
func (a *Aggregator) SummaryForMonth(ctx context.Context, year int, month time.Month, channel domain.PaymentChannel) (*domain.ProfitSummary, error) {
	label := fmt.Sprintf("%04d-%02d", year, month)
	return a.cachedSummary(ctx, label, channel, func(d time.Time) bool {
		return d.Year() == year && d.Month() == month
	})
}

// SummaryAll reconciles everything ever recorded.
func (a *Aggregator) SummaryAll(ctx context.Context, channel domain.PaymentChannel) (*domain.ProfitSummary, error) {
	return a.cachedSummary(ctx, "all", channel, func(time.Time) bool { return true })
}

// MonthlySeries returns twelve buckets for one year. Months without activity
// are present with zero totals so charts keep their shape.
func (a *Aggregator) MonthlySeries(ctx context.Context, year int, channel domain.PaymentChannel) ([]domain.MonthBucket, error) {
	key := fmt.Sprintf("series:%04d:%s", year, channelKey(channel))
	if cached, ok, err := a.cache.GetSeries(ctx, key); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Printf("[ledger] series cache read failed: %v", err)
	}

	facts, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	series := make([]domain.MonthBucket, 0, 12)
	for m := time.January; m <= time.December; m++ {
		month := m
		summary := facts.summarize(fmt.Sprintf("%04d-%02d", year, month), channel, func(d time.Time) bool {
			return d.Year() == year && d.Month() == month
		})
		series = append(series, domain.MonthBucket{
			Month:   summary.Label,
			Summary: *summary,
		})
	}

	if err := a.cache.SetSeries(ctx, key, series, a.ttl); err != nil {
		log.Printf("[ledger] series cache write failed: %v", err)
	}
	return series, nil
}

// PotentialInventoryProfit is the margin locked up in current stock:
// (price - cost) * quantity summed over every item.
func (a *Aggregator) PotentialInventoryProfit(ctx context.Context) (int64, error) {
	rows, err := a.store.ReadAllRows(ctx, rowstore.SheetInventory)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, row := range rows {
		if row[inventory.ColItemName] == "" {
			continue
		}
		price := currency.ParseRupiah(row[inventory.ColUnitPrice])
		cost := currency.ParseRupiah(row[inventory.ColUnitCost])
		qty := currency.ParseRupiah(row[inventory.ColQuantity])
		total += (price - cost) * qty
	}
	return total, nil
}

func (a *Aggregator) cachedSummary(ctx context.Context, label string, channel domain.PaymentChannel, inWindow func(time.Time) bool) (*domain.ProfitSummary, error) {
	key := fmt.Sprintf("summary:%s:%s", label, channelKey(channel))
	if cached, ok, err := a.cache.GetSummary(ctx, key); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Printf("[ledger] summary cache read failed: %v", err)
	}

	facts, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	summary := facts.summarize(label, channel, inWindow)

	if err := a.cache.SetSummary(ctx, key, summary, a.ttl); err != nil {
		log.Printf("[ledger] summary cache write failed: %v", err)
	}
	return summary, nil
}

// facts is one consistent read of the three sheets.
type facts struct {
	tickets  []domain.Ticket
	sales    []domain.GoodsTransaction
	expenses []domain.Expense
}

func (a *Aggregator) load(ctx context.Context) (*facts, error) {
	serviceRows, err := a.store.ReadAllRows(ctx, rowstore.SheetService)
	if err != nil {
		return nil, err
	}
	saleRows, err := a.store.ReadAllRows(ctx, rowstore.SheetTransactions)
	if err != nil {
		return nil, err
	}
	expenseRows, err := a.store.ReadAllRows(ctx, rowstore.SheetExpenses)
	if err != nil {
		return nil, err
	}

	f := &facts{}
	for i, row := range serviceRows {
		id := row[ticket.ColID]
		if id == "" || id == sequence.VoidMarker {
			continue
		}
		f.tickets = append(f.tickets, ticket.FromRow(row, i))
	}
	for _, row := range saleRows {
		id := row[inventory.ColTxID]
		if id == "" || id == sequence.VoidMarker {
			continue
		}
		tx := inventory.TxFromRow(row)
		// Old rows predate the Untung column; reconstruct their margin.
		if strings.TrimSpace(row[inventory.ColTxProfit]) == "" {
			tx.Profit = (tx.UnitPrice - tx.UnitCost) * int64(tx.Quantity)
		}
		f.sales = append(f.sales, tx)
	}
	for _, row := range expenseRows {
		date, err := time.Parse(dateLayout, strings.TrimSpace(row[ColDate]))
		if err != nil {
			continue
		}
		f.expenses = append(f.expenses, domain.Expense{
			Date:           date,
			Description:    row[ColDescription],
			Nominal:        currency.ParseRupiah(row[ColNominal]),
			PaymentChannel: domain.ParsePaymentChannel(row[ColChannel]),
		})
	}
	return f, nil
}

// summarize folds the facts matching a window and channel into one summary.
// Service profit counts Completed tickets only: a ticket still on the shelf
// has not earned anything yet, and a cancelled one never will.
func (f *facts) summarize(label string, channel domain.PaymentChannel, inWindow func(time.Time) bool) *domain.ProfitSummary {
	summary := &domain.ProfitSummary{Label: label}

	for _, t := range f.tickets {
		if t.Status != domain.StatusCompleted {
			continue
		}
		if t.CreatedAt.IsZero() || !inWindow(t.CreatedAt) {
			continue
		}
		if !matchesChannel(t.PaymentChannel, channel) {
			continue
		}
		summary.ServiceProfit += t.ServiceFee - t.PartsCost
		summary.ServiceTicketCount++
	}

	for _, tx := range f.sales {
		if tx.Timestamp.IsZero() || !inWindow(tx.Timestamp) {
			continue
		}
		if !matchesChannel(tx.PaymentChannel, channel) {
			continue
		}
		summary.GoodsProfit += tx.Profit
		summary.GoodsSaleCount++
	}

	for _, e := range f.expenses {
		if !inWindow(e.Date) {
			continue
		}
		if !matchesChannel(e.PaymentChannel, channel) {
			continue
		}
		summary.Expenses += e.Nominal
	}

	summary.Profit = summary.ServiceProfit + summary.GoodsProfit
	summary.NetTotal = summary.Profit - summary.Expenses
	return summary
}

func matchesChannel(have domain.PaymentChannel, want domain.PaymentChannel) bool {
	return want == "" || have == want
}

func channelKey(channel domain.PaymentChannel) string {
	if channel == "" {
		return "all"
	}
	return string(channel)
}

func sameDay(a time.Time, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
