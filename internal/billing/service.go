package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/vethome-platform/internal/audit"
	"github.com/wolfman30/vethome-platform/internal/authority"
	"github.com/wolfman30/vethome-platform/internal/catalog"
	"github.com/wolfman30/vethome-platform/internal/gateway"
	"github.com/wolfman30/vethome-platform/internal/observability/metrics"
	"github.com/wolfman30/vethome-platform/internal/registry"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

var tracer = otel.Tracer("vethome.billing")

const expenseKeyLength = 50

// CredentialsSource returns the current authority configuration.
type CredentialsSource interface {
	Current(ctx context.Context) (*authority.Credentials, error)
}

// ClientDirectory resolves the receiver of a document.
type ClientDirectory interface {
	Get(ctx context.Context, id string) (*registry.Client, error)
}

// ItemLookup resolves catalog items added to a cart.
type ItemLookup interface {
	Get(ctx context.Context, id string) (*catalog.Item, error)
}

// Authority submits documents and receiver messages.
type Authority interface {
	ValidateDocument(ctx context.Context, doc gateway.DocumentRequest) (gateway.DocumentResult, error)
	SendAcceptance(ctx context.Context, req gateway.AcceptanceRequest) (gateway.AcceptanceResult, error)
}

// Config holds the billing rules that vary per deployment.
type Config struct {
	QuoteValidity     time.Duration
	DefaultCreditTerm int
}

// Deps are the collaborators of the billing service.
type Deps struct {
	Repo        Repository
	Carts       CartStore
	Credentials CredentialsSource
	Clients     ClientDirectory
	Items       ItemLookup
	Authority   Authority
	Metrics     *metrics.BillingMetrics
	// Audit is optional.
	Audit  *audit.Service
	Logger *logging.Logger
}

// Service is the billing state manager.
type Service struct {
	repo        Repository
	carts       CartStore
	credentials CredentialsSource
	clients     ClientDirectory
	items       ItemLookup
	authority   Authority
	metrics     *metrics.BillingMetrics
	audit       *audit.Service
	logger      *logging.Logger
	cfg         Config
	now         func() time.Time

	// cartLocks serializes read-modify-write cycles per cart; quoteMu guards
	// quote numbering.
	cartLocks keyedMutex
	quoteMu   sync.Mutex
}

func NewService(cfg Config, deps Deps) *Service {
	if cfg.QuoteValidity <= 0 {
		cfg.QuoteValidity = 7 * 24 * time.Hour
	}
	if cfg.DefaultCreditTerm <= 0 {
		cfg.DefaultCreditTerm = 30
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &Service{
		repo:        deps.Repo,
		carts:       deps.Carts,
		credentials: deps.Credentials,
		clients:     deps.Clients,
		items:       deps.Items,
		authority:   deps.Authority,
		metrics:     deps.Metrics,
		audit:       deps.Audit,
		logger:      deps.Logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// NewCart starts an empty cart.
func (s *Service) NewCart(ctx context.Context) (*Cart, error) {
	c := NewCart()
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetCart(ctx context.Context, id string) (*Cart, error) {
	return s.carts.Get(ctx, id)
}

// AddItemRequest adds either a catalog item by id or a free entry, usually
// a code-search result.
type AddItemRequest struct {
	ItemID   string        `json:"item_id,omitempty"`
	Quantity int           `json:"quantity,omitempty"`
	Entry    *CatalogEntry `json:"entry,omitempty"`
}

func (s *Service) AddToCart(ctx context.Context, cartID string, req AddItemRequest) (*Cart, error) {
	var entry CatalogEntry
	switch {
	case req.ItemID != "":
		item, err := s.items.Get(ctx, req.ItemID)
		if err != nil {
			return nil, err
		}
		entry = CatalogEntry{
			ProductID:   item.ID,
			Code:        item.Code,
			Description: item.Name,
			Price:       decimal.NewNullDecimal(item.Price),
			TaxRate:     decimal.NewNullDecimal(item.TaxRate),
			Quantity:    req.Quantity,
		}
	case req.Entry != nil:
		entry = *req.Entry
		if req.Quantity != 0 {
			entry.Quantity = req.Quantity
		}
	default:
		return nil, ErrItemRequired
	}

	defer s.cartLocks.Lock(cartID)()
	cart, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if _, err := cart.AddLineItem(entry); err != nil {
		return nil, err
	}
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *Service) RemoveFromCart(ctx context.Context, cartID string, index int) (*Cart, error) {
	defer s.cartLocks.Lock(cartID)()
	cart, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if err := cart.RemoveLineItem(index); err != nil {
		return nil, err
	}
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// SubmitRequest asks for a cart to be issued as an invoice or ticket.
type SubmitRequest struct {
	CartID        string        `json:"cart_id"`
	ClientID      string        `json:"client_id"`
	DocumentType  DocumentType  `json:"document_type"`
	SaleCondition SaleCondition `json:"sale_condition"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	CreditTerm    int           `json:"credit_term,omitempty"`
}

func (r *SubmitRequest) normalize() error {
	if r.DocumentType == "" {
		r.DocumentType = DocumentInvoice
	}
	if r.DocumentType != DocumentInvoice && r.DocumentType != DocumentTicket {
		return ErrInvalidDocumentType
	}
	if r.SaleCondition == "" {
		r.SaleCondition = SaleCash
	}
	if !r.SaleCondition.Valid() {
		return ErrInvalidSaleCondition
	}
	if r.PaymentMethod == "" {
		r.PaymentMethod = PaymentCash
	}
	if !r.PaymentMethod.Valid() {
		return ErrInvalidPaymentMethod
	}
	if r.CreditTerm < 0 {
		return ErrInvalidCreditTerm
	}
	return nil
}

// SubmitInvoice sends the cart to the authority and records the accepted
// document. A rejection records nothing and returns *RejectedError.
func (s *Service) SubmitInvoice(ctx context.Context, req SubmitRequest) (*Invoice, error) {
	ctx, span := tracer.Start(ctx, "billing.submit_invoice")
	defer span.End()

	creds, err := s.credentials.Current(ctx)
	if err != nil {
		return nil, err
	}
	if !creds.IsConfigured() {
		return nil, ErrAuthorityNotConfigured
	}
	if err := req.normalize(); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("billing.document_type", string(req.DocumentType)),
		attribute.String("billing.sale_condition", string(req.SaleCondition)),
	)

	// Only this cart waits on the authority round trip.
	defer s.cartLocks.Lock(req.CartID)()

	cart, err := s.carts.Get(ctx, req.CartID)
	if err != nil {
		return nil, err
	}
	client, err := s.receiver(ctx, cart, req.ClientID)
	if err != nil {
		return nil, err
	}

	creditTerm := 0
	if req.SaleCondition == SaleCredit {
		creditTerm = req.CreditTerm
		if creditTerm == 0 {
			creditTerm = s.cfg.DefaultCreditTerm
		}
	}

	totals := cart.Totals()
	res, err := s.validate(ctx, span, gateway.DocumentRequest{
		Type:          string(req.DocumentType),
		ClientID:      client.ID,
		ClientName:    client.FullName,
		Items:         documentLines(cart.Items),
		Subtotal:      totals.Subtotal,
		Tax:           totals.Tax,
		Total:         totals.Total,
		SaleCondition: string(req.SaleCondition),
		PaymentMethod: string(req.PaymentMethod),
		CreditTerm:    creditTerm,
		Environment:   string(creds.Environment),
	})
	if err != nil {
		s.metrics.ObserveDocument(string(req.DocumentType), "error")
		return nil, err
	}
	if !res.Accepted() {
		s.metrics.ObserveDocument(string(req.DocumentType), "rejected")
		s.logger.Warn("document rejected", "type", req.DocumentType, "message", res.Message)
		s.audit.Record(ctx, audit.Event{
			Type:         audit.EventDocumentRejected,
			DocumentType: string(req.DocumentType),
			Message:      res.Message,
		}, &audit.Details{Total: totals.Total.StringFixed(2)})
		return nil, &RejectedError{Type: req.DocumentType, Message: res.Message}
	}

	now := s.now().UTC()
	payment := PaymentUnpaid
	if req.SaleCondition == SaleCash {
		payment = PaymentPaid
	}
	inv := &Invoice{
		ID:               uuid.New().String(),
		Consecutive:      consecutive(res.Key, "506", now),
		ClientID:         client.ID,
		ClientName:       client.FullName,
		Date:             now,
		Items:            append([]LineItem{}, cart.Items...),
		Subtotal:         totals.Subtotal,
		Tax:              totals.Tax,
		Total:            totals.Total,
		Type:             req.DocumentType,
		Status:           StatusAccepted,
		PaymentStatus:    payment,
		SaleCondition:    req.SaleCondition,
		PaymentMethod:    req.PaymentMethod,
		CreditTerm:       creditTerm,
		AuthorityMessage: res.Message,
	}
	if err := s.storeDocument(inv, "506", now, func(doc *Invoice) error {
		return s.repo.CreateInvoice(ctx, doc)
	}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	cart.Clear()
	if err := s.carts.Save(ctx, cart); err != nil {
		s.logger.Warn("failed to clear cart", "cart_id", cart.ID, "error", err)
	}

	s.metrics.ObserveDocument(string(inv.Type), "accepted")
	s.audit.Record(ctx, audit.Event{
		Type:         audit.EventDocumentAccepted,
		DocumentType: string(inv.Type),
		DocumentID:   inv.ID,
		Consecutive:  inv.Consecutive,
		Message:      inv.AuthorityMessage,
	}, &audit.Details{Total: inv.Total.StringFixed(2), PaymentStatus: string(inv.PaymentStatus), Fallback: res.Fallback})
	s.logger.Info("document accepted",
		"invoice_id", inv.ID,
		"type", inv.Type,
		"consecutive", inv.Consecutive,
		"payment_status", inv.PaymentStatus,
		"fallback", res.Fallback,
	)
	return inv, nil
}

// SaveQuote stores the cart as a local quote. It never reaches the authority.
func (s *Service) SaveQuote(ctx context.Context, cartID, clientID string) (*Quote, error) {
	defer s.cartLocks.Lock(cartID)()

	cart, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	client, err := s.receiver(ctx, cart, clientID)
	if err != nil {
		return nil, err
	}

	s.quoteMu.Lock()
	defer s.quoteMu.Unlock()
	count, err := s.repo.CountQuotes(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	totals := cart.Totals()
	q := &Quote{
		ID:          uuid.New().String(),
		QuoteNumber: fmt.Sprintf("COT-%d", count+101),
		ClientID:    client.ID,
		ClientName:  client.FullName,
		Date:        now,
		ExpiryDate:  now.Add(s.cfg.QuoteValidity),
		Items:       append([]LineItem{}, cart.Items...),
		Subtotal:    totals.Subtotal,
		Tax:         totals.Tax,
		Total:       totals.Total,
		Status:      QuoteDraft,
	}
	if err := s.repo.CreateQuote(ctx, q); err != nil {
		return nil, err
	}

	cart.Clear()
	if err := s.carts.Save(ctx, cart); err != nil {
		s.logger.Warn("failed to clear cart", "cart_id", cart.ID, "error", err)
	}
	s.metrics.ObserveDocument(string(documentQuote), "saved")
	s.logger.Info("quote saved", "quote_number", q.QuoteNumber, "client_id", client.ID)
	return q, nil
}

// VoidInvoice issues a credit note for the invoice. On acceptance the
// original becomes voided and the credit note is stored in the same step.
func (s *Service) VoidInvoice(ctx context.Context, invoiceID string, code CreditNoteReason, reason string) (*Invoice, error) {
	ctx, span := tracer.Start(ctx, "billing.void_invoice")
	defer span.End()
	span.SetAttributes(attribute.String("billing.reason_code", string(code)))

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrVoidReasonRequired
	}
	if code == "" {
		code = ReasonVoid
	}
	if !code.Valid() {
		return nil, ErrInvalidReasonCode
	}

	orig, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !orig.Voidable() {
		return nil, ErrNotVoidable
	}
	creds, err := s.credentials.Current(ctx)
	if err != nil {
		return nil, err
	}

	res, err := s.validate(ctx, span, gateway.DocumentRequest{
		Type:          string(DocumentCreditNote),
		ClientID:      orig.ClientID,
		ClientName:    orig.ClientName,
		Items:         documentLines(orig.Items),
		Subtotal:      orig.Subtotal.Neg(),
		Tax:           orig.Tax.Neg(),
		Total:         orig.Total.Neg(),
		SaleCondition: string(orig.SaleCondition),
		PaymentMethod: string(orig.PaymentMethod),
		ReferenceKey:  orig.Consecutive,
		ReasonCode:    string(code),
		Reason:        reason,
		Environment:   string(creds.Environment),
	})
	if err != nil {
		s.metrics.ObserveDocument(string(DocumentCreditNote), "error")
		return nil, err
	}
	if !res.Accepted() {
		s.metrics.ObserveDocument(string(DocumentCreditNote), "rejected")
		s.audit.Record(ctx, audit.Event{
			Type:         audit.EventDocumentRejected,
			DocumentType: string(DocumentCreditNote),
			Message:      res.Message,
		}, &audit.Details{ReferenceID: orig.ID, ReasonCode: string(code), Reason: reason})
		return nil, &RejectedError{Type: DocumentCreditNote, Message: res.Message}
	}

	now := s.now().UTC()
	nc := &Invoice{
		ID:                   uuid.New().String(),
		Consecutive:          consecutive(res.Key, "506NC", now),
		ClientID:             orig.ClientID,
		ClientName:           orig.ClientName,
		Date:                 now,
		Items:                append([]LineItem{}, orig.Items...),
		Subtotal:             orig.Subtotal.Neg(),
		Tax:                  orig.Tax.Neg(),
		Total:                orig.Total.Neg(),
		Type:                 DocumentCreditNote,
		Status:               StatusAccepted,
		PaymentStatus:        PaymentPaid,
		SaleCondition:        orig.SaleCondition,
		PaymentMethod:        orig.PaymentMethod,
		ReferenceID:          orig.ID,
		ReferenceConsecutive: orig.Consecutive,
		VoidReason:           reason,
		CreditNoteReason:     code,
		AuthorityMessage:     res.Message,
	}
	if err := s.storeDocument(nc, "506NC", now, func(doc *Invoice) error {
		return s.repo.VoidWithCreditNote(ctx, orig.ID, doc)
	}); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.metrics.ObserveDocument(string(DocumentCreditNote), "accepted")
	s.audit.Record(ctx, audit.Event{
		Type:         audit.EventCreditNoteIssued,
		DocumentType: string(DocumentCreditNote),
		DocumentID:   nc.ID,
		Consecutive:  nc.Consecutive,
		Message:      nc.AuthorityMessage,
	}, &audit.Details{
		Total:       nc.Total.StringFixed(2),
		ReferenceID: orig.ID,
		ReasonCode:  string(code),
		Reason:      reason,
		Fallback:    res.Fallback,
	})
	s.logger.Info("credit note issued", "invoice_id", orig.ID, "credit_note_id", nc.ID, "reason_code", code)
	return nc, nil
}

// RegisterPayment marks an invoice as paid. Paying a paid invoice is a no-op.
func (s *Service) RegisterPayment(ctx context.Context, invoiceID string) (*Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.PaymentStatus == PaymentPaid {
		return inv, nil
	}
	inv, err = s.repo.MarkPaid(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	s.metrics.ObservePayment()
	s.audit.Record(ctx, audit.Event{
		Type:         audit.EventPaymentRegistered,
		DocumentType: string(inv.Type),
		DocumentID:   inv.ID,
		Consecutive:  inv.Consecutive,
	}, &audit.Details{Total: inv.Total.StringFixed(2), PaymentStatus: string(inv.PaymentStatus)})
	s.logger.Info("payment registered", "invoice_id", invoiceID)
	return inv, nil
}

// ReceivablesReport lists the invoices pending collection.
type ReceivablesReport struct {
	Invoices []*Invoice      `json:"invoices"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}

func (s *Service) Receivables(ctx context.Context) (ReceivablesReport, error) {
	all, err := s.repo.ListInvoices(ctx)
	if err != nil {
		return ReceivablesReport{}, err
	}
	report := ReceivablesReport{Invoices: []*Invoice{}, Total: decimal.Zero}
	for _, inv := range all {
		if inv.Receivable() {
			report.Invoices = append(report.Invoices, inv)
			report.Total = report.Total.Add(inv.Total)
		}
	}
	report.Count = len(report.Invoices)
	return report, nil
}

func (s *Service) ListInvoices(ctx context.Context) ([]*Invoice, error) {
	return s.repo.ListInvoices(ctx)
}

func (s *Service) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

func (s *Service) ListQuotes(ctx context.Context) ([]*Quote, error) {
	return s.repo.ListQuotes(ctx)
}

func (s *Service) ListExpenses(ctx context.Context) ([]*Expense, error) {
	return s.repo.ListExpenses(ctx)
}

// ExpenseRequest registers a supplier invoice received by the clinic.
type ExpenseRequest struct {
	SupplierID   string          `json:"supplier_id,omitempty"`
	SupplierName string          `json:"supplier_name"`
	Key          string          `json:"key"`
	Total        decimal.Decimal `json:"total"`
	Tax          decimal.Decimal `json:"tax"`
}

func (r *ExpenseRequest) Validate() error {
	r.SupplierName = strings.TrimSpace(r.SupplierName)
	r.Key = strings.TrimSpace(r.Key)
	if r.SupplierName == "" {
		return ErrInvalidSupplier
	}
	if len(r.Key) != expenseKeyLength || strings.Trim(r.Key, "0123456789") != "" {
		return ErrInvalidExpenseKey
	}
	if r.Tax.IsNegative() || r.Total.LessThan(r.Tax) {
		return ErrInvalidAmount
	}
	return nil
}

func (s *Service) RegisterExpense(ctx context.Context, req ExpenseRequest) (*Expense, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	e := &Expense{
		ID:           uuid.New().String(),
		SupplierID:   strings.TrimSpace(req.SupplierID),
		SupplierName: req.SupplierName,
		Key:          req.Key,
		Total:        req.Total,
		Tax:          req.Tax,
		Status:       ExpensePending,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateExpense(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// AcceptExpense sends the receiver message for a pending supplier invoice.
// Code 03 rejects it; 01 and 02 accept it fully or partially.
func (s *Service) AcceptExpense(ctx context.Context, expenseID string, code AcceptanceCode) (*Expense, error) {
	ctx, span := tracer.Start(ctx, "billing.accept_expense")
	defer span.End()
	span.SetAttributes(attribute.String("billing.acceptance_code", string(code)))

	if !code.Valid() {
		return nil, ErrInvalidAcceptanceCode
	}
	e, err := s.repo.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if e.Status != ExpensePending {
		return nil, ErrExpenseAlreadyProcessed
	}
	creds, err := s.credentials.Current(ctx)
	if err != nil {
		return nil, err
	}

	res, err := s.authority.SendAcceptance(ctx, gateway.AcceptanceRequest{
		Key:          e.Key,
		SupplierName: e.SupplierName,
		Total:        e.Total,
		Tax:          e.Tax,
		Code:         string(code),
		Environment:  string(creds.Environment),
	})
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveDocument(string(DocumentReceiverMessage), "error")
		return nil, unavailable(err)
	}
	if !res.Success {
		s.metrics.ObserveDocument(string(DocumentReceiverMessage), "rejected")
		s.audit.Record(ctx, audit.Event{
			Type:         audit.EventReceiverMessageRejected,
			DocumentType: string(DocumentReceiverMessage),
			DocumentID:   e.ID,
			Message:      res.AuthorityResponse,
		}, &audit.Details{ReasonCode: string(code)})
		return nil, &RejectedError{Type: DocumentReceiverMessage, Message: res.AuthorityResponse}
	}

	now := s.now().UTC()
	e.Status = ExpenseAccepted
	if code == AcceptReject {
		e.Status = ExpenseRejected
	}
	e.AcceptanceCode = code
	e.AcceptanceConsecutive = consecutive(res.Consecutive, "MR-", now)
	e.AcceptedAt = &now
	if err := s.repo.UpdateExpense(ctx, e); err != nil {
		return nil, err
	}
	s.metrics.ObserveDocument(string(DocumentReceiverMessage), "accepted")
	s.audit.Record(ctx, audit.Event{
		Type:         audit.EventReceiverMessageSent,
		DocumentType: string(DocumentReceiverMessage),
		DocumentID:   e.ID,
		Consecutive:  e.AcceptanceConsecutive,
		Message:      res.AuthorityResponse,
	}, &audit.Details{Total: e.Total.StringFixed(2), ReasonCode: string(code)})
	s.logger.Info("receiver message sent", "expense_id", e.ID, "code", code, "status", e.Status)
	return e, nil
}

// receiver enforces the non-empty cart and selected client rules.
func (s *Service) receiver(ctx context.Context, cart *Cart, clientID string) (*registry.Client, error) {
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if strings.TrimSpace(clientID) == "" {
		return nil, ErrClientRequired
	}
	client, err := s.clients.Get(ctx, clientID)
	if errors.Is(err, registry.ErrClientNotFound) {
		return nil, ErrClientNotFound
	}
	return client, err
}

func (s *Service) validate(ctx context.Context, span trace.Span, doc gateway.DocumentRequest) (gateway.DocumentResult, error) {
	res, err := s.authority.ValidateDocument(ctx, doc)
	if err != nil {
		span.RecordError(err)
		return gateway.DocumentResult{}, unavailable(err)
	}
	span.SetAttributes(
		attribute.String("billing.authority_status", res.Status),
		attribute.Bool("billing.fallback", res.Fallback),
	)
	return res, nil
}

// unavailable keeps cancellation errors intact and marks everything else as
// an authority outage.
func unavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrAuthorityUnavailable, err)
}

func consecutive(key, prefix string, now time.Time) string {
	if key != "" {
		return key
	}
	return prefix + strconv.FormatInt(now.UnixMilli(), 10)
}

// storeDocument runs store and, when the consecutive is already recorded,
// retries once under a locally generated number. The authority has accepted
// the document by then, so it must not be lost.
func (s *Service) storeDocument(doc *Invoice, prefix string, now time.Time, store func(*Invoice) error) error {
	err := store(doc)
	if !errors.Is(err, ErrDuplicateConsecutive) {
		return err
	}
	taken := doc.Consecutive
	doc.Consecutive = prefix + strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.NewString()[:8]
	s.logger.Warn("consecutive already recorded, storing under a local number",
		"consecutive", taken,
		"replacement", doc.Consecutive,
		"type", doc.Type,
	)
	return store(doc)
}

func documentLines(items []LineItem) []gateway.DocumentLine {
	lines := make([]gateway.DocumentLine, len(items))
	for i, it := range items {
		lines[i] = gateway.DocumentLine{
			Name:     it.Name,
			CABYS:    it.CABYS,
			Quantity: it.Quantity,
			Price:    it.Price,
			Tax:      it.Tax,
		}
	}
	return lines
}

// keyedMutex hands out one mutex per key and drops it once nobody holds or
// waits on it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
