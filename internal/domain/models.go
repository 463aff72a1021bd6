package domain

import (
	"strings"
	"time"
)

// QueueStatus is the lifecycle state of a service ticket. The zero value is
// not a valid state; rows with an empty status cell are read as StatusQueued
// because early revisions of the intake sheet left the column blank.
type QueueStatus string

const (
	StatusQueued         QueueStatus = "queued"
	StatusReadyForPickup QueueStatus = "ready_for_pickup"
	StatusCompleted      QueueStatus = "completed"
	StatusCancelled      QueueStatus = "cancelled"
)

// Sheet cell values for queue statuses, as the operators see them.
const (
	sheetStatusQueued         = "Antrian"
	sheetStatusReadyForPickup = "Siap Diambil"
	sheetStatusCompleted      = "Selesai"
	sheetStatusCancelled      = "Batal"
)

// SheetValue returns the cell text persisted for this status.
func (s QueueStatus) SheetValue() string {
	switch s {
	case StatusReadyForPickup:
		return sheetStatusReadyForPickup
	case StatusCompleted:
		return sheetStatusCompleted
	case StatusCancelled:
		return sheetStatusCancelled
	default:
		return sheetStatusQueued
	}
}

// ParseQueueStatus maps a sheet cell back to a QueueStatus. Unknown or empty
// cells map to StatusQueued.
func ParseQueueStatus(cell string) QueueStatus {
	switch strings.TrimSpace(cell) {
	case sheetStatusReadyForPickup:
		return StatusReadyForPickup
	case sheetStatusCompleted:
		return StatusCompleted
	case sheetStatusCancelled:
		return StatusCancelled
	default:
		return StatusQueued
	}
}

// PaymentChannel is how the customer pays. Persisted verbatim.
type PaymentChannel string

const (
	ChannelCash     PaymentChannel = "Cash"
	ChannelTransfer PaymentChannel = "Transfer"
)

// ParsePaymentChannel is tolerant of casing and whitespace in sheet cells.
// Unknown values return an empty channel.
func ParsePaymentChannel(cell string) PaymentChannel {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "cash":
		return ChannelCash
	case "transfer":
		return ChannelTransfer
	default:
		return ""
	}
}

// Ticket is a service order tracked through the queue lifecycle.
type Ticket struct {
	ID                  string         `json:"id"`
	CreatedAt           time.Time      `json:"created_at"`
	EstimatedAt         time.Time      `json:"estimated_at"`
	CustomerName        string         `json:"customer_name"`
	CustomerPhone       string         `json:"customer_phone"`
	ItemDescription     string         `json:"item_description"`
	FaultDescription    string         `json:"fault_description"`
	Accessories         string         `json:"accessories"`
	ServiceFee          int64          `json:"service_fee"`
	PartsCost           int64          `json:"parts_cost"`
	PaymentChannel      PaymentChannel `json:"payment_channel"`
	Status              QueueStatus    `json:"status"`
	NotifiedTransitions []string       `json:"notified_transitions"`
	ClaimToken          string         `json:"-"`
	RowIndex            int            `json:"-"`
}

// GoodsTransaction is a completed sale of inventory or a manually entered
// part. Profit is always (unit price - unit cost) * quantity.
type GoodsTransaction struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	ItemName       string         `json:"item_name"`
	UnitCost       int64          `json:"unit_cost"`
	UnitPrice      int64          `json:"unit_price"`
	Quantity       int            `json:"quantity"`
	Total          int64          `json:"total"`
	Profit         int64          `json:"profit"`
	BuyerName      string         `json:"buyer_name,omitempty"`
	BuyerPhone     string         `json:"buyer_phone,omitempty"`
	PaymentChannel PaymentChannel `json:"payment_channel"`
}

type InventoryItem struct {
	Name           string `json:"name"`
	UnitCost       int64  `json:"unit_cost"`
	UnitPrice      int64  `json:"unit_price"`
	QuantityOnHand int    `json:"quantity_on_hand"`
}

// Expense is one entry in the parallel append-only expense ledger.
type Expense struct {
	Date           time.Time      `json:"date"`
	Description    string         `json:"description"`
	Nominal        int64          `json:"nominal"`
	PaymentChannel PaymentChannel `json:"payment_channel"`
}

// ShopProfile feeds the outbound message templates.
type ShopProfile struct {
	Name    string
	Address string
	Phone   string
}

type CreateTicketRequest struct {
	CustomerName     string         `json:"customer_name"`
	CustomerPhone    string         `json:"customer_phone"`
	ItemDescription  string         `json:"item_description"`
	FaultDescription string         `json:"fault_description"`
	Accessories      string         `json:"accessories"`
	EstimatedDays    int            `json:"estimated_days"`
	ServiceFee       int64          `json:"service_fee"`
	PartsCost        int64          `json:"parts_cost"`
	PaymentChannel   PaymentChannel `json:"payment_channel"`
}

type CreateTicketResponse struct {
	Ticket       Ticket `json:"ticket"`
	ReceiptText  string `json:"receipt_text"`
	WhatsAppLink string `json:"whatsapp_link,omitempty"`
}

type TransitionRequest struct {
	Target         QueueStatus    `json:"target"`
	ServiceFee     *int64         `json:"service_fee,omitempty"`
	PartsCost      *int64         `json:"parts_cost,omitempty"`
	PaymentChannel PaymentChannel `json:"payment_channel,omitempty"`
}

type TransitionResponse struct {
	Ticket     Ticket `json:"ticket"`
	Transition string `json:"transition"`
	Notified   bool   `json:"notified"`
}

type GoodsSaleRequest struct {
	ItemName       string         `json:"item_name"`
	FromStock      bool           `json:"from_stock"`
	UnitCost       int64          `json:"unit_cost"`
	UnitPrice      int64          `json:"unit_price"`
	Quantity       int            `json:"quantity"`
	BuyerName      string         `json:"buyer_name,omitempty"`
	BuyerPhone     string         `json:"buyer_phone,omitempty"`
	PaymentChannel PaymentChannel `json:"payment_channel"`
}

type GoodsSaleResponse struct {
	Transaction  GoodsTransaction `json:"transaction"`
	ReceiptText  string           `json:"receipt_text"`
	WhatsAppLink string           `json:"whatsapp_link,omitempty"`
}

type RestockRequest struct {
	ItemName  string `json:"item_name"`
	Quantity  int    `json:"quantity"`
	UnitCost  int64  `json:"unit_cost,omitempty"`
	UnitPrice int64  `json:"unit_price,omitempty"`
}

type ExpenseRequest struct {
	Date           string         `json:"date"`
	Description    string         `json:"description"`
	Nominal        int64          `json:"nominal"`
	PaymentChannel PaymentChannel `json:"payment_channel"`
}

// ProfitSummary is the reconciled figure for one window and channel filter.
type ProfitSummary struct {
	Label              string `json:"label"`
	ServiceProfit      int64  `json:"service_profit"`
	GoodsProfit        int64  `json:"goods_profit"`
	Profit             int64  `json:"profit"`
	Expenses           int64  `json:"expenses"`
	NetTotal           int64  `json:"net_total"`
	ServiceTicketCount int    `json:"service_ticket_count"`
	GoodsSaleCount     int    `json:"goods_sale_count"`
}

// MonthBucket is one calendar month in a full-year series. Months with no
// activity are still present with zero totals.
type MonthBucket struct {
	Month   string        `json:"month"`
	Summary ProfitSummary `json:"summary"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}
