package billing

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/vethome-platform/internal/catalog"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

// Handler exposes carts, documents and receivables over HTTP.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

type cartResponse struct {
	*Cart
	Totals
}

// CreateCart handles POST /carts
func (h *Handler) CreateCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.svc.NewCart(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cartResponse{cart, cart.Totals()})
}

// GetCart handles GET /carts/{cartID}
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.svc.GetCart(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{cart, cart.Totals()})
}

// AddCartItem handles POST /carts/{cartID}/items
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cart, err := h.svc.AddToCart(r.Context(), chi.URLParam(r, "cartID"), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{cart, cart.Totals()})
}

// RemoveCartItem handles DELETE /carts/{cartID}/items/{index}
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be a number")
		return
	}
	cart, err := h.svc.RemoveFromCart(r.Context(), chi.URLParam(r, "cartID"), index)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{cart, cart.Totals()})
}

// SubmitInvoice handles POST /invoices
func (h *Handler) SubmitInvoice(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	inv, err := h.svc.SubmitInvoice(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// ListInvoices handles GET /invoices
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.svc.ListInvoices(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if invoices == nil {
		invoices = []*Invoice{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices, "count": len(invoices)})
}

// GetInvoice handles GET /invoices/{invoiceID}
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.svc.GetInvoice(r.Context(), chi.URLParam(r, "invoiceID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// VoidInvoice handles POST /invoices/{invoiceID}/void
func (h *Handler) VoidInvoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReasonCode CreditNoteReason `json:"reason_code"`
		Reason     string           `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	nc, err := h.svc.VoidInvoice(r.Context(), chi.URLParam(r, "invoiceID"), req.ReasonCode, req.Reason)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, nc)
}

// RegisterPayment handles POST /invoices/{invoiceID}/payments
func (h *Handler) RegisterPayment(w http.ResponseWriter, r *http.Request) {
	inv, err := h.svc.RegisterPayment(r.Context(), chi.URLParam(r, "invoiceID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// Receivables handles GET /receivables
func (h *Handler) Receivables(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Receivables(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// SaveQuote handles POST /quotes
func (h *Handler) SaveQuote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CartID   string `json:"cart_id"`
		ClientID string `json:"client_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	q, err := h.svc.SaveQuote(r.Context(), req.CartID, req.ClientID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

// ListQuotes handles GET /quotes
func (h *Handler) ListQuotes(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.svc.ListQuotes(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if quotes == nil {
		quotes = []*Quote{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"quotes": quotes, "count": len(quotes)})
}

// RegisterExpense handles POST /expenses
func (h *Handler) RegisterExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	e, err := h.svc.RegisterExpense(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// ListExpenses handles GET /expenses
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.svc.ListExpenses(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if expenses == nil {
		expenses = []*Expense{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": expenses, "count": len(expenses)})
}

// AcceptExpense handles POST /expenses/{expenseID}/acceptance
func (h *Handler) AcceptExpense(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code AcceptanceCode `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	e, err := h.svc.AcceptExpense(r.Context(), chi.URLParam(r, "expenseID"), req.Code)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	var rejected *RejectedError
	switch {
	case errors.As(err, &rejected):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":   "rejected",
			"type":    string(rejected.Type),
			"message": rejected.Message,
		})
	case isValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAuthorityNotConfigured):
		writeError(w, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, ErrCartNotFound), errors.Is(err, ErrClientNotFound),
		errors.Is(err, ErrInvoiceNotFound), errors.Is(err, ErrExpenseNotFound),
		errors.Is(err, ErrLineItemNotFound), errors.Is(err, catalog.ErrItemNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotVoidable), errors.Is(err, ErrExpenseAlreadyProcessed),
		errors.Is(err, ErrDuplicateConsecutive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrAuthorityUnavailable):
		h.logger.Warn("authority unavailable", "error", err)
		writeError(w, http.StatusBadGateway, "authority unavailable")
	default:
		h.logger.Error("billing request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
