package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"capslock/backend/internal/cache"
	"capslock/backend/internal/domain"
	"capslock/backend/internal/inventory"
	"capslock/backend/internal/ledger"
	"capslock/backend/internal/notify"
	"capslock/backend/internal/rowstore"
	"capslock/backend/internal/rowstore/memory"
	"capslock/backend/internal/sequence"
	"capslock/backend/internal/ticket"
)

type captureTransport struct {
	sent []string
}

func (c *captureTransport) Send(_ context.Context, recipient string, message string) error {
	c.sent = append(c.sent, recipient)
	return nil
}

type testEnv struct {
	server    *httptest.Server
	transport *captureTransport
	admin     string
	operator  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewSeeded()
	profile := domain.ShopProfile{Name: "Capslock Komputer", Address: "Jl. Buluh Cina", Phone: "0851-1111-2222"}

	ticketSeq := sequence.New(store, rowstore.SheetService, ticket.ColID, ticket.ColClaim,
		sequence.WithSleep(func(time.Duration) {}))
	tickets := ticket.NewService(store, ticketSeq)

	saleSeq := sequence.New(store, rowstore.SheetTransactions, inventory.ColTxID, inventory.ColTxClaim,
		sequence.WithSleep(func(time.Duration) {}))
	inv := inventory.NewService(store, saleSeq, nil)

	reports := ledger.NewAggregator(store, cache.NoopReportCache{}, 0)

	transport := &captureTransport{}
	dispatcher := notify.NewDispatcher(transport, tickets, profile)

	auth := NewAuthManager("test-secret", time.Hour)
	auth.SeedUser("admin", "admin-pass", "admin")
	auth.SeedUser("kasir", "kasir-pass", "operator")

	api := New(tickets, inv, reports, dispatcher, auth, profile, "http://127.0.0.1:3000")
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)

	env := &testEnv{server: server, transport: transport}
	env.admin = env.login(t, "admin", "admin-pass")
	env.operator = env.login(t, "kasir", "kasir-pass")
	return env
}

func (e *testEnv) login(t *testing.T, username string, password string) string {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/v1/auth/login", "",
		domain.LoginRequest{Username: username, Password: password})
	if status != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, status, body)
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("login decode: %v", err)
	}
	return resp.AccessToken
}

func (e *testEnv) do(t *testing.T, method string, path string, token string, payload any) (int, []byte) {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, body)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes()
}

func (e *testEnv) createTicket(t *testing.T) domain.CreateTicketResponse {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/v1/tickets", e.operator, domain.CreateTicketRequest{
		CustomerName:    "Budi",
		CustomerPhone:   "081234567890",
		ItemDescription: "Laptop Asus",
	})
	if status != http.StatusCreated {
		t.Fatalf("create ticket: status %d body %s", status, body)
	}
	var resp domain.CreateTicketResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestNextTicketNumberPreview(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/api/v1/tickets/next-number", env.operator, nil)
	if status != http.StatusOK {
		t.Fatalf("next-number: status %d body %s", status, body)
	}
	var preview struct {
		NextID string `json:"next_id"`
	}
	if err := json.Unmarshal(body, &preview); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if preview.NextID != "SRV/0000001" {
		t.Fatalf("unexpected preview %q", preview.NextID)
	}

	created := env.createTicket(t)
	if created.Ticket.ID != preview.NextID {
		t.Fatalf("preview was %q but intake assigned %q", preview.NextID, created.Ticket.ID)
	}

	status, body = env.do(t, http.MethodGet, "/api/v1/tickets/next-number", env.operator, nil)
	if status != http.StatusOK {
		t.Fatalf("next-number: status %d body %s", status, body)
	}
	if err := json.Unmarshal(body, &preview); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if preview.NextID != "SRV/0000002" {
		t.Fatalf("expected preview to advance, got %q", preview.NextID)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.do(t, http.MethodGet, "/api/v1/tickets", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}

	// Operators cannot reach admin reports.
	status, _ = env.do(t, http.MethodGet, "/api/v1/reports/total", env.operator, nil)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	env := newTestEnv(t)
	status, _ := env.do(t, http.MethodPost, "/api/v1/auth/login", "",
		domain.LoginRequest{Username: "admin", Password: "wrong"})
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
}

func TestCreateTicketReturnsReceiptAndLink(t *testing.T) {
	env := newTestEnv(t)
	resp := env.createTicket(t)

	if resp.Ticket.ID != "SRV/0000001" {
		t.Fatalf("unexpected id %s", resp.Ticket.ID)
	}
	if !strings.Contains(resp.ReceiptText, "NOTA ELEKTRONIK") {
		t.Fatalf("unexpected receipt %q", resp.ReceiptText)
	}
	if !strings.HasPrefix(resp.WhatsAppLink, "https://wa.me/6281234567890?text=") {
		t.Fatalf("unexpected link %q", resp.WhatsAppLink)
	}
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	created := env.createTicket(t)
	path := "/api/v1/tickets/" + created.Ticket.ID

	// Nota numbers contain a slash; the route must still resolve.
	status, body := env.do(t, http.MethodGet, path, env.operator, nil)
	if status != http.StatusOK {
		t.Fatalf("get: status %d body %s", status, body)
	}

	fee := int64(150000)
	status, body = env.do(t, http.MethodPost, path+"/transition", env.operator, domain.TransitionRequest{
		Target:         domain.StatusReadyForPickup,
		ServiceFee:     &fee,
		PaymentChannel: domain.ChannelCash,
	})
	if status != http.StatusOK {
		t.Fatalf("transition: status %d body %s", status, body)
	}
	var moved domain.TransitionResponse
	if err := json.Unmarshal(body, &moved); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !moved.Notified {
		t.Fatal("pickup transition must notify")
	}
	if len(env.transport.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(env.transport.sent))
	}

	// Same transition again is a conflict.
	status, _ = env.do(t, http.MethodPost, path+"/transition", env.operator, domain.TransitionRequest{
		Target:         domain.StatusReadyForPickup,
		ServiceFee:     &fee,
		PaymentChannel: domain.ChannelCash,
	})
	if status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}

	// A resend attempt respects the marker.
	status, body = env.do(t, http.MethodPost, path+"/notify", env.operator, nil)
	if status != http.StatusOK {
		t.Fatalf("resend: status %d body %s", status, body)
	}
	if len(env.transport.sent) != 1 {
		t.Fatalf("resend must not duplicate, got %d sends", len(env.transport.sent))
	}

	status, _ = env.do(t, http.MethodPost, path+"/transition", env.operator, domain.TransitionRequest{
		Target: domain.StatusCompleted,
	})
	if status != http.StatusOK {
		t.Fatalf("complete: status %d", status)
	}
}

func TestTicketNotFound(t *testing.T) {
	env := newTestEnv(t)
	status, _ := env.do(t, http.MethodGet, "/api/v1/tickets/SRV/9999999", env.operator, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestSalesEndpoint(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/api/v1/sales", env.operator, domain.GoodsSaleRequest{
		ItemName:       "SSD 256GB",
		FromStock:      true,
		Quantity:       1,
		PaymentChannel: domain.ChannelCash,
	})
	if status != http.StatusCreated {
		t.Fatalf("sale: status %d body %s", status, body)
	}
	var resp domain.GoodsSaleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Transaction.ID != "TRX/0000001" || resp.Transaction.Profit != 70000 {
		t.Fatalf("unexpected transaction %+v", resp.Transaction)
	}

	status, _ = env.do(t, http.MethodPost, "/api/v1/sales", env.operator, domain.GoodsSaleRequest{
		ItemName:  "SSD 256GB",
		FromStock: true,
		Quantity:  100,
	})
	if status != http.StatusConflict {
		t.Fatalf("oversell: expected 409, got %d", status)
	}
}

func TestExpenseAndReports(t *testing.T) {
	env := newTestEnv(t)
	created := env.createTicket(t)

	fee := int64(150000)
	parts := int64(50000)
	path := "/api/v1/tickets/" + created.Ticket.ID
	if status, body := env.do(t, http.MethodPost, path+"/transition", env.operator, domain.TransitionRequest{
		Target:         domain.StatusReadyForPickup,
		ServiceFee:     &fee,
		PartsCost:      &parts,
		PaymentChannel: domain.ChannelCash,
	}); status != http.StatusOK {
		t.Fatalf("ready: status %d body %s", status, body)
	}
	if status, _ := env.do(t, http.MethodPost, path+"/transition", env.operator, domain.TransitionRequest{
		Target: domain.StatusCompleted,
	}); status != http.StatusOK {
		t.Fatalf("complete failed")
	}

	today := time.Now().Format("02/01/2006")
	if status, body := env.do(t, http.MethodPost, "/api/v1/expenses", env.admin, domain.ExpenseRequest{
		Date:           today,
		Description:    "Beli alkohol 70%",
		Nominal:        30000,
		PaymentChannel: domain.ChannelCash,
	}); status != http.StatusCreated {
		t.Fatalf("expense: status %d body %s", status, body)
	}

	status, body := env.do(t, http.MethodGet, "/api/v1/reports/daily?channel=Cash", env.admin, nil)
	if status != http.StatusOK {
		t.Fatalf("report: status %d body %s", status, body)
	}
	var summary domain.ProfitSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.ServiceProfit != 100000 {
		t.Fatalf("service profit = %d, want 100000", summary.ServiceProfit)
	}
	if summary.NetTotal != 70000 {
		t.Fatalf("net = %d, want 70000", summary.NetTotal)
	}

	status, body = env.do(t, http.MethodGet, "/api/v1/reports/stock-potential", env.admin, nil)
	if status != http.StatusOK {
		t.Fatalf("potential: status %d body %s", status, body)
	}
	var potential map[string]int64
	if err := json.Unmarshal(body, &potential); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if potential["potential_profit"] <= 0 {
		t.Fatalf("expected positive stock potential, got %d", potential["potential_profit"])
	}
}

func TestSeriesReportShape(t *testing.T) {
	env := newTestEnv(t)

	year := time.Now().Year()
	status, body := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/reports/series?year=%d", year), env.admin, nil)
	if status != http.StatusOK {
		t.Fatalf("series: status %d body %s", status, body)
	}
	var resp struct {
		Year   int                  `json:"year"`
		Months []domain.MonthBucket `json:"months"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Year != year || len(resp.Months) != 12 {
		t.Fatalf("unexpected shape: year %d, %d buckets", resp.Year, len(resp.Months))
	}
}
