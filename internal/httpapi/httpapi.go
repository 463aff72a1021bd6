// Package httpapi exposes the shop's operations over JSON endpoints: ticket
// intake and lifecycle, goods sales, stock, expenses and profit reports.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"capslock/backend/internal/domain"
	"capslock/backend/internal/inventory"
	"capslock/backend/internal/ledger"
	"capslock/backend/internal/notify"
	"capslock/backend/internal/rowstore"
	"capslock/backend/internal/sequence"
	"capslock/backend/internal/ticket"
)

type API struct {
	tickets       *ticket.Service
	inventory     *inventory.Service
	reports       *ledger.Aggregator
	dispatcher    *notify.Dispatcher
	auth          *AuthManager
	profile       domain.ShopProfile
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(tickets *ticket.Service, inv *inventory.Service, reports *ledger.Aggregator, dispatcher *notify.Dispatcher, auth *AuthManager, profile domain.ShopProfile, allowedOrigin string) *API {
	return &API{
		tickets:       tickets,
		inventory:     inv,
		reports:       reports,
		dispatcher:    dispatcher,
		auth:          auth,
		profile:       profile,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/tickets", a.requireAuth(a.handleTickets, "operator", "admin"))
	mux.HandleFunc("/api/v1/tickets/next-number", a.requireAuth(a.handleNextTicketNumber, "operator", "admin"))
	mux.HandleFunc("/api/v1/tickets/", a.requireAuth(a.handleTicketActions, "operator", "admin"))
	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales, "operator", "admin"))
	mux.HandleFunc("/api/v1/inventory", a.requireAuth(a.handleInventory, "operator", "admin"))

	mux.HandleFunc("/api/v1/inventory/restock", a.requireAuth(a.handleRestock, "admin"))
	mux.HandleFunc("/api/v1/expenses", a.requireAuth(a.handleExpenses, "admin"))
	mux.HandleFunc("/api/v1/reports/daily", a.requireAuth(a.handleDailyReport, "admin"))
	mux.HandleFunc("/api/v1/reports/monthly", a.requireAuth(a.handleMonthlyReport, "admin"))
	mux.HandleFunc("/api/v1/reports/total", a.requireAuth(a.handleTotalReport, "admin"))
	mux.HandleFunc("/api/v1/reports/series", a.requireAuth(a.handleSeriesReport, "admin"))
	mux.HandleFunc("/api/v1/reports/stock-potential", a.requireAuth(a.handleStockPotential, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r)
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleTickets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tickets, err := a.tickets.List(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
	case http.MethodPost:
		var req domain.CreateTicketRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := a.tickets.CreateTicket(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		receipt := notify.IntakeReceiptMessage(a.profile, created)
		writeJSON(w, http.StatusCreated, domain.CreateTicketResponse{
			Ticket:       *created,
			ReceiptText:  receipt,
			WhatsAppLink: notify.WhatsAppLink(created.CustomerPhone, receipt),
		})
	default:
		writeMethodNotAllowed(w)
	}
}

// handleNextTicketNumber shows the nota number the next intake would get, for
// display on the intake form. Creation still claims its own number.
func (a *API) handleNextTicketNumber(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	next, err := a.tickets.NextTicketNumber(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"next_id": next})
}

// handleTicketActions routes paths under /api/v1/tickets/. Nota numbers carry
// a slash (SRV/0000001), so the id is everything up to a known action suffix.
func (a *API) handleTicketActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/tickets/")
	switch {
	case strings.HasSuffix(rest, "/transition"):
		a.handleTransition(w, r, strings.TrimSuffix(rest, "/transition"))
	case strings.HasSuffix(rest, "/notify"):
		a.handleNotifyResend(w, r, strings.TrimSuffix(rest, "/notify"))
	default:
		a.handleTicketGet(w, r, rest)
	}
}

func (a *API) handleTicketGet(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	t, err := a.tickets.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleTransition(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.TransitionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	moved, transition, err := a.tickets.Transition(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// The status change is already durable. A delivery failure is logged
	// and reported, never rolled back.
	notified, err := a.dispatcher.DispatchTransition(r.Context(), moved, transition)
	if err != nil {
		log.Printf("[httpapi] notify %s after %s: %v", id, transition, err)
	}

	writeJSON(w, http.StatusOK, domain.TransitionResponse{
		Ticket:     *moved,
		Transition: transition,
		Notified:   notified,
	})
}

// handleNotifyResend re-runs dispatch for the pickup notification. The
// idempotency marker still applies: an already-delivered message stays sent.
func (a *API) handleNotifyResend(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	t, err := a.tickets.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if t.Status != domain.StatusReadyForPickup {
		writeError(w, http.StatusConflict, errors.New("ticket is not awaiting pickup"))
		return
	}

	transition := ticket.TransitionID(domain.StatusQueued, domain.StatusReadyForPickup)
	notified, err := a.dispatcher.DispatchTransition(r.Context(), t, transition)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket_id": t.ID,
		"notified":  notified,
	})
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.GoodsSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tx, err := a.inventory.RecordSale(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	receipt := notify.GoodsReceiptMessage(a.profile, tx)
	writeJSON(w, http.StatusCreated, domain.GoodsSaleResponse{
		Transaction:  *tx,
		ReceiptText:  receipt,
		WhatsAppLink: notify.WhatsAppLink(tx.BuyerPhone, receipt),
	})
}

func (a *API) handleInventory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	items, err := a.inventory.ListItems(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleRestock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.RestockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	item, err := a.inventory.Restock(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleExpenses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.ExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	expense, err := a.reports.AppendExpense(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	day := time.Now()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.Parse("02/01/2006", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("date must be dd/mm/yyyy"))
			return
		}
		day = parsed
	}
	summary, err := a.reports.SummaryForDay(r.Context(), day, channelParam(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	now := time.Now()
	year := queryInt(r, "year", now.Year())
	month := queryInt(r, "month", int(now.Month()))
	if month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, errors.New("month must be 1-12"))
		return
	}
	summary, err := a.reports.SummaryForMonth(r.Context(), year, time.Month(month), channelParam(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleTotalReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	summary, err := a.reports.SummaryAll(r.Context(), channelParam(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleSeriesReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	year := queryInt(r, "year", time.Now().Year())
	series, err := a.reports.MonthlySeries(r.Context(), year, channelParam(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": year, "months": series})
}

func (a *API) handleStockPotential(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	potential, err := a.reports.PotentialInventoryProfit(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"potential_profit": potential})
}

func channelParam(r *http.Request) domain.PaymentChannel {
	return domain.ParsePaymentChannel(r.URL.Query().Get("channel"))
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(raw); err == nil {
		return parsed
	}
	return fallback
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

// writeServiceError maps domain sentinels onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ticket.ErrTicketNotFound),
		errors.Is(err, inventory.ErrItemNotFound),
		errors.Is(err, rowstore.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, ticket.ErrInvalidTransition),
		errors.Is(err, inventory.ErrInsufficientStock):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, ticket.ErrInvalidInput),
		errors.Is(err, inventory.ErrInvalidInput),
		errors.Is(err, ledger.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, sequence.ErrSequenceExhausted),
		errors.Is(err, rowstore.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the log; clients get a generic message.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
