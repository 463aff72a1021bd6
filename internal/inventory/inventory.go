// Package inventory manages the Stok sheet and records goods sales on the
// Transaksi sheet. Stock decrements are serialized per item so the last unit
// can only be sold once, and quantities never go below zero.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"capslock/backend/internal/currency"
	"capslock/backend/internal/domain"
	"capslock/backend/internal/notify"
	"capslock/backend/internal/rowstore"
	"capslock/backend/internal/sequence"
)

var (
	ErrItemNotFound      = errors.New("inventory: item not found")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	ErrInvalidInput      = errors.New("inventory: invalid input")
)

// PrefixGoods is the nota prefix for over-the-counter sales.
const PrefixGoods = "TRX"

// Stok sheet columns.
const (
	ColItemName  = "nama_barang"
	ColUnitCost  = "modal"
	ColUnitPrice = "harga_jual"
	ColQuantity  = "qty"
)

// Transaksi sheet columns.
const (
	ColTxID      = "No Nota"
	ColTxDate    = "Tanggal"
	ColTxItem    = "Nama Barang"
	ColTxCost    = "Modal"
	ColTxPrice   = "Harga Jual"
	ColTxQty     = "Qty"
	ColTxTotal   = "Total"
	ColTxProfit  = "Untung"
	ColTxBuyer   = "Pembeli"
	ColTxPhone   = "No HP Pembeli"
	ColTxChannel = "Jenis Transaksi"
	ColTxClaim   = "Klaim"
)

const dateLayout = "02/01/2006"

// Alerter carries operator alerts out of band. A nil Alerter disables alerts.
type Alerter interface {
	SendMessage(ctx context.Context, text string) error
}

type Service struct {
	store   rowstore.Store
	seq     *sequence.Generator
	alerter Alerter
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(store rowstore.Store, seq *sequence.Generator, alerter Alerter) *Service {
	return &Service{
		store:   store,
		seq:     seq,
		alerter: alerter,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *Service) lock(item string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(item))
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// ListItems returns every stocked item.
func (s *Service) ListItems(ctx context.Context) ([]domain.InventoryItem, error) {
	rows, err := s.store.ReadAllRows(ctx, rowstore.SheetInventory)
	if err != nil {
		return nil, err
	}
	items := make([]domain.InventoryItem, 0, len(rows))
	for _, row := range rows {
		if row[ColItemName] == "" {
			continue
		}
		items = append(items, itemFromRow(row))
	}
	return items, nil
}

// RecordSale sells goods over the counter. Stock sales check and decrement
// the Stok row under a per-item lock; manual sales take cost and price from
// the request as typed. Either way the sale lands on the Transaksi sheet
// under a collision-safe TRX nota number.
func (s *Service) RecordSale(ctx context.Context, req domain.GoodsSaleRequest) (*domain.GoodsTransaction, error) {
	name := strings.TrimSpace(req.ItemName)
	if name == "" {
		return nil, fmt.Errorf("%w: item name is required", ErrInvalidInput)
	}
	if req.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}
	if req.UnitCost < 0 || req.UnitPrice < 0 {
		return nil, fmt.Errorf("%w: negative amount", ErrInvalidInput)
	}

	tx := domain.GoodsTransaction{
		Timestamp:      s.now(),
		ItemName:       name,
		UnitCost:       req.UnitCost,
		UnitPrice:      req.UnitPrice,
		Quantity:       req.Quantity,
		BuyerName:      strings.TrimSpace(req.BuyerName),
		BuyerPhone:     strings.TrimSpace(req.BuyerPhone),
		PaymentChannel: req.PaymentChannel,
	}

	if !req.FromStock {
		return s.appendSale(ctx, &tx)
	}

	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	rowIndex, item, err := s.findItem(ctx, name)
	if err != nil {
		return nil, err
	}
	if item.QuantityOnHand < req.Quantity {
		return nil, fmt.Errorf("%w: %s has %d left", ErrInsufficientStock, item.Name, item.QuantityOnHand)
	}
	tx.ItemName = item.Name
	tx.UnitCost = item.UnitCost
	if tx.UnitPrice == 0 {
		tx.UnitPrice = item.UnitPrice
	}

	out, err := s.appendSale(ctx, &tx)
	if err != nil {
		return nil, err
	}

	remaining := item.QuantityOnHand - req.Quantity
	if err := s.writeQuantity(ctx, rowIndex, remaining); err != nil {
		return nil, fmt.Errorf("decrement stock for %s: %w", item.Name, err)
	}
	s.alertLowStock(ctx, item.Name, remaining)
	return out, nil
}

// Restock raises an item's quantity, creating the Stok row if the item is
// new. Cost and price are only rewritten when the request carries them.
func (s *Service) Restock(ctx context.Context, req domain.RestockRequest) (*domain.InventoryItem, error) {
	name := strings.TrimSpace(req.ItemName)
	if name == "" {
		return nil, fmt.Errorf("%w: item name is required", ErrInvalidInput)
	}
	if req.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}

	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	rowIndex, item, err := s.findItem(ctx, name)
	if errors.Is(err, ErrItemNotFound) {
		fresh := domain.InventoryItem{
			Name:           name,
			UnitCost:       req.UnitCost,
			UnitPrice:      req.UnitPrice,
			QuantityOnHand: req.Quantity,
		}
		if appendErr := s.store.AppendRow(ctx, rowstore.SheetInventory, itemToRow(fresh)); appendErr != nil {
			return nil, appendErr
		}
		return &fresh, nil
	}
	if err != nil {
		return nil, err
	}

	item.QuantityOnHand += req.Quantity
	if err := s.writeQuantity(ctx, rowIndex, item.QuantityOnHand); err != nil {
		return nil, err
	}
	if req.UnitCost > 0 {
		item.UnitCost = req.UnitCost
		if err := s.store.UpdateCell(ctx, rowstore.SheetInventory, rowIndex, ColUnitCost, currency.FormatRupiah(item.UnitCost)); err != nil {
			return nil, err
		}
	}
	if req.UnitPrice > 0 {
		item.UnitPrice = req.UnitPrice
		if err := s.store.UpdateCell(ctx, rowstore.SheetInventory, rowIndex, ColUnitPrice, currency.FormatRupiah(item.UnitPrice)); err != nil {
			return nil, err
		}
	}
	return item, nil
}

func (s *Service) appendSale(ctx context.Context, tx *domain.GoodsTransaction) (*domain.GoodsTransaction, error) {
	tx.Total = tx.UnitPrice * int64(tx.Quantity)
	tx.Profit = (tx.UnitPrice - tx.UnitCost) * int64(tx.Quantity)

	id, _, err := s.seq.Claim(ctx, PrefixGoods, txToRow(*tx))
	if err != nil {
		return nil, fmt.Errorf("claim nota number: %w", err)
	}
	tx.ID = id
	return tx, nil
}

// writeQuantity persists a quantity and re-reads it. A concurrent writer
// outside this process can slip between our read and write; if the stored
// value went negative we clamp it back to zero.
func (s *Service) writeQuantity(ctx context.Context, rowIndex int, quantity int) error {
	if quantity < 0 {
		quantity = 0
	}
	if err := s.store.UpdateCell(ctx, rowstore.SheetInventory, rowIndex, ColQuantity, strconv.Itoa(quantity)); err != nil {
		return err
	}
	rows, err := s.store.ReadAllRows(ctx, rowstore.SheetInventory)
	if err != nil {
		return err
	}
	if rowIndex < len(rows) {
		if stored, convErr := strconv.Atoi(rows[rowIndex][ColQuantity]); convErr == nil && stored < 0 {
			return s.store.UpdateCell(ctx, rowstore.SheetInventory, rowIndex, ColQuantity, "0")
		}
	}
	return nil
}

func (s *Service) alertLowStock(ctx context.Context, name string, remaining int) {
	if s.alerter == nil {
		return
	}
	text := notify.LowStockMessage(name, remaining)
	if text == "" {
		return
	}
	if err := s.alerter.SendMessage(ctx, text); err != nil {
		log.Printf("[inventory] low-stock alert for %s failed: %v", name, err)
	}
}

// findItem scans Stok for an item by name, case-insensitively.
func (s *Service) findItem(ctx context.Context, name string) (int, *domain.InventoryItem, error) {
	rows, err := s.store.ReadAllRows(ctx, rowstore.SheetInventory)
	if err != nil {
		return 0, nil, err
	}
	want := strings.ToLower(strings.TrimSpace(name))
	for i, row := range rows {
		if strings.ToLower(strings.TrimSpace(row[ColItemName])) == want {
			item := itemFromRow(row)
			return i, &item, nil
		}
	}
	return 0, nil, fmt.Errorf("%w: %s", ErrItemNotFound, name)
}

func itemFromRow(row rowstore.Row) domain.InventoryItem {
	qty, _ := strconv.Atoi(strings.TrimSpace(row[ColQuantity]))
	if qty < 0 {
		qty = 0
	}
	return domain.InventoryItem{
		Name:           row[ColItemName],
		UnitCost:       currency.ParseRupiah(row[ColUnitCost]),
		UnitPrice:      currency.ParseRupiah(row[ColUnitPrice]),
		QuantityOnHand: qty,
	}
}

func itemToRow(item domain.InventoryItem) rowstore.Row {
	return rowstore.Row{
		ColItemName:  item.Name,
		ColUnitCost:  currency.FormatRupiah(item.UnitCost),
		ColUnitPrice: currency.FormatRupiah(item.UnitPrice),
		ColQuantity:  strconv.Itoa(item.QuantityOnHand),
	}
}

func txToRow(tx domain.GoodsTransaction) rowstore.Row {
	return rowstore.Row{
		ColTxID:      tx.ID,
		ColTxDate:    tx.Timestamp.Format(dateLayout),
		ColTxItem:    tx.ItemName,
		ColTxCost:    currency.FormatRupiah(tx.UnitCost),
		ColTxPrice:   currency.FormatRupiah(tx.UnitPrice),
		ColTxQty:     strconv.Itoa(tx.Quantity),
		ColTxTotal:   currency.FormatRupiah(tx.Total),
		ColTxProfit:  currency.FormatRupiah(tx.Profit),
		ColTxBuyer:   tx.BuyerName,
		ColTxPhone:   tx.BuyerPhone,
		ColTxChannel: string(tx.PaymentChannel),
	}
}

// TxFromRow maps a Transaksi sheet row back to a transaction.
func TxFromRow(row rowstore.Row) domain.GoodsTransaction {
	qty, _ := strconv.Atoi(strings.TrimSpace(row[ColTxQty]))
	tx := domain.GoodsTransaction{
		ID:             row[ColTxID],
		ItemName:       row[ColTxItem],
		UnitCost:       currency.ParseRupiah(row[ColTxCost]),
		UnitPrice:      currency.ParseRupiah(row[ColTxPrice]),
		Quantity:       qty,
		Total:          currency.ParseRupiah(row[ColTxTotal]),
		Profit:         currency.ParseRupiah(row[ColTxProfit]),
		BuyerName:      row[ColTxBuyer],
		BuyerPhone:     row[ColTxPhone],
		PaymentChannel: domain.ParsePaymentChannel(row[ColTxChannel]),
	}
	if ts, err := time.Parse(dateLayout, row[ColTxDate]); err == nil {
		tx.Timestamp = ts
	}
	return tx
}
