package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vethome-platform/internal/audit"
	"github.com/wolfman30/vethome-platform/internal/authority"
	"github.com/wolfman30/vethome-platform/internal/catalog"
	"github.com/wolfman30/vethome-platform/internal/gateway"
	"github.com/wolfman30/vethome-platform/internal/registry"
)

type fakeCredentials struct {
	creds *authority.Credentials
}

func (f fakeCredentials) Current(context.Context) (*authority.Credentials, error) {
	return f.creds, nil
}

type fakeClients map[string]*registry.Client

func (f fakeClients) Get(_ context.Context, id string) (*registry.Client, error) {
	c, ok := f[id]
	if !ok {
		return nil, registry.ErrClientNotFound
	}
	return c, nil
}

type fakeAuthority struct {
	doc    gateway.DocumentResult
	docErr error
	acc    gateway.AcceptanceResult
	accErr error
	docs   []gateway.DocumentRequest
	accs   []gateway.AcceptanceRequest
}

func (f *fakeAuthority) ValidateDocument(_ context.Context, doc gateway.DocumentRequest) (gateway.DocumentResult, error) {
	f.docs = append(f.docs, doc)
	return f.doc, f.docErr
}

func (f *fakeAuthority) SendAcceptance(_ context.Context, req gateway.AcceptanceRequest) (gateway.AcceptanceResult, error) {
	f.accs = append(f.accs, req)
	return f.acc, f.accErr
}

var fixedNow = time.Date(2025, 6, 24, 15, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	repo  *InMemoryRepository
	carts *MemoryCartStore
	auth  *fakeAuthority
	trail *audit.MemoryStore
}

func newFixture(t *testing.T, configured bool) *fixture {
	t.Helper()
	f := &fixture{
		repo:  NewInMemoryRepository(),
		carts: NewMemoryCartStore(),
		trail: audit.NewMemoryStore(),
		auth: &fakeAuthority{
			doc: gateway.DocumentResult{Status: gateway.StatusAccepted, Key: "50624062500310123456700100001010000000001", Message: "Aceptado"},
			acc: gateway.AcceptanceResult{Success: true, Consecutive: "MR-1"},
		},
	}
	f.svc = NewService(Config{}, Deps{
		Repo:        f.repo,
		Carts:       f.carts,
		Credentials: fakeCredentials{creds: &authority.Credentials{Configured: configured, Environment: authority.EnvironmentSandbox}},
		Clients: fakeClients{
			"c1": {ID: "c1", FullName: "Andrés Calderón"},
		},
		Items:     catalog.NewSeededRepository(),
		Authority: f.auth,
		Audit:     audit.NewService(f.trail, nil),
	})
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) cartWith(t *testing.T, entries ...CatalogEntry) *Cart {
	t.Helper()
	cart, err := f.svc.NewCart(context.Background())
	require.NoError(t, err)
	for _, e := range entries {
		cart, err = f.svc.AddToCart(context.Background(), cart.ID, AddItemRequest{Entry: &e})
		require.NoError(t, err)
	}
	return cart
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func entry(price, rate string, qty int) CatalogEntry {
	return CatalogEntry{
		Code:        "0121100000000",
		Description: "Consulta",
		Price:       decimal.NewNullDecimal(dec(price)),
		TaxRate:     decimal.NewNullDecimal(dec(rate)),
		Quantity:    qty,
	}
}

func TestAddLineItemDefaults(t *testing.T) {
	cart := NewCart()
	item, err := cart.AddLineItem(CatalogEntry{Code: "0121100000000", Description: "Consulta"})
	require.NoError(t, err)
	assert.True(t, item.Price.Equal(dec("15000")))
	assert.True(t, item.Tax.Equal(dec("600")))
	assert.Equal(t, 1, item.Quantity)
	assert.NotEmpty(t, item.ProductID)

	_, err = cart.AddLineItem(CatalogEntry{Quantity: -2})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	exempt, err := cart.AddLineItem(CatalogEntry{Price: decimal.NewNullDecimal(dec("1000")), TaxRate: decimal.NewNullDecimal(decimal.Zero)})
	require.NoError(t, err)
	assert.True(t, exempt.Tax.IsZero())
}

func TestComputeTotals(t *testing.T) {
	totals := ComputeTotals([]LineItem{
		{Price: dec("25000"), Tax: dec("1000"), Quantity: 2},
		{Price: dec("8000"), Tax: dec("1040"), Quantity: 1},
	})
	assert.True(t, totals.Subtotal.Equal(dec("58000")), totals.Subtotal.String())
	assert.True(t, totals.Tax.Equal(dec("3040")), totals.Tax.String())
	assert.True(t, totals.Total.Equal(dec("61040")), totals.Total.String())

	totals = ComputeTotals([]LineItem{
		{Price: dec("25000"), Tax: dec("1000"), Quantity: 1},
		{Price: dec("15000"), Tax: dec("600"), Quantity: 2},
	})
	assert.True(t, totals.Subtotal.Equal(dec("55000")), totals.Subtotal.String())
	assert.True(t, totals.Tax.Equal(dec("2200")), totals.Tax.String())
	assert.True(t, totals.Total.Equal(dec("57200")), totals.Total.String())

	empty := ComputeTotals(nil)
	assert.True(t, empty.Total.IsZero())
}

func TestRemoveLineItem(t *testing.T) {
	cart := NewCart()
	_, _ = cart.AddLineItem(entry("100", "0.13", 1))
	_, _ = cart.AddLineItem(entry("200", "0.13", 1))

	assert.ErrorIs(t, cart.RemoveLineItem(2), ErrLineItemNotFound)
	assert.ErrorIs(t, cart.RemoveLineItem(-1), ErrLineItemNotFound)
	require.NoError(t, cart.RemoveLineItem(0))
	require.Len(t, cart.Items, 1)
	assert.True(t, cart.Items[0].Price.Equal(dec("200")))
}

func TestAddToCartFromCatalog(t *testing.T) {
	f := newFixture(t, true)
	cart := f.cartWith(t)

	cart, err := f.svc.AddToCart(context.Background(), cart.ID, AddItemRequest{ItemID: "seed-2", Quantity: 2})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "0121100000100", cart.Items[0].CABYS)
	assert.True(t, cart.Items[0].Tax.Equal(dec("150")))

	_, err = f.svc.AddToCart(context.Background(), cart.ID, AddItemRequest{ItemID: "nope"})
	assert.ErrorIs(t, err, catalog.ErrItemNotFound)

	_, err = f.svc.AddToCart(context.Background(), cart.ID, AddItemRequest{})
	assert.ErrorIs(t, err, ErrItemRequired)
}

func TestSubmitInvoiceRequiresConfiguredAuthority(t *testing.T) {
	f := newFixture(t, false)
	cart := f.cartWith(t, entry("25000", "0.04", 1))

	_, err := f.svc.SubmitInvoice(context.Background(), SubmitRequest{CartID: cart.ID, ClientID: "c1"})
	assert.ErrorIs(t, err, ErrAuthorityNotConfigured)
	assert.Empty(t, f.auth.docs)
}

func TestSubmitInvoiceGuards(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	empty := f.cartWith(t)
	_, err := f.svc.SubmitInvoice(ctx, SubmitRequest{CartID: empty.ID, ClientID: "c1"})
	assert.ErrorIs(t, err, ErrEmptyCart)

	cart := f.cartWith(t, entry("25000", "0.04", 1))
	_, err = f.svc.SubmitInvoice(ctx, SubmitRequest{CartID: cart.ID})
	assert.ErrorIs(t, err, ErrClientRequired)

	_, err = f.svc.SubmitInvoice(ctx, SubmitRequest{CartID: cart.ID, ClientID: "ghost"})
	assert.ErrorIs(t, err, ErrClientNotFound)

	_, err = f.svc.SubmitInvoice(ctx, SubmitRequest{CartID: cart.ID, ClientID: "c1", DocumentType: DocumentCreditNote})
	assert.ErrorIs(t, err, ErrInvalidDocumentType)

	_, err = f.svc.SubmitInvoice(ctx, SubmitRequest{CartID: cart.ID, ClientID: "c1", SaleCondition: "07"})
	assert.ErrorIs(t, err, ErrInvalidSaleCondition)

	assert.Empty(t, f.auth.docs)
}

func TestSubmitInvoiceCashSale(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	cart := f.cartWith(t, entry("25000", "0.04", 2), entry("8000", "0.13", 1))

	inv, err := f.svc.SubmitInvoice(ctx, SubmitRequest{CartID: cart.ID, ClientID: "c1", SaleCondition: SaleCash, CreditTerm: 15})
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, inv.Status)
	assert.Equal(t, PaymentPaid, inv.PaymentStatus)
	assert.Equal(t, DocumentInvoice, inv.Type)
	assert.Equal(t, 0, inv.CreditTerm)
	assert.Equal(t, "Andrés Calderón", inv.ClientName)
	assert.Equal(t, f.auth.doc.Key, inv.Consecutive)
	assert.True(t, inv.Subtotal.Equal(dec("58000")))
	assert.True(t, inv.Tax.Equal(dec("3040")))
	assert.True(t, inv.Total.Equal(inv.Subtotal.Add(inv.Tax)))

	require.Len(t, f.auth.docs, 1)
	assert.Equal(t, "sandbox", f.auth.docs[0].Environment)
	assert.Len(t, f.auth.docs[0].Items, 2)

	cleared, err := f.svc.GetCart(ctx, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, cleared.Items)
}

func TestSubmitInvoiceCreditSaleIsReceivable(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.auth.doc.Key = ""
	cart := f.cartWith(t, entry("10000", "0.13", 1))

	inv, err := f.svc.SubmitInvoice(ctx, SubmitRequest{CartID: cart.ID, ClientID: "c1", SaleCondition: SaleCredit, PaymentMethod: PaymentTransfer})
	require.NoError(t, err)
	assert.Equal(t, PaymentUnpaid, inv.PaymentStatus)
	assert.Equal(t, 30, inv.CreditTerm)
	assert.Equal(t, "506"+"1750777200000", inv.Consecutive)

	report, err := f.svc.Receivables(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Count)
	assert.True(t, report.Total.Equal(dec("11300")))

	paid, err := f.svc.RegisterPayment(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, paid.PaymentStatus)

	again, err := f.svc.RegisterPayment(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, again.PaymentStatus)

	report, err = f.svc.Receivables(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Count)

	_, err = f.svc.RegisterPayment(ctx, "missing")
	assert.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestSubmitInvoiceRejected(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.auth.doc = gateway.DocumentResult{Status: gateway.StatusRejected, Message: "Cédula inválida"}
	cart := f.cartWith(t, entry("10000", "0.13", 1))

	_, err := f.svc.SubmitInvoice(ctx, SubmitRequest{CartID: cart.ID, ClientID: "c1"})
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Cédula inválida", rejected.Message)

	invoices, err := f.svc.ListInvoices(ctx)
	require.NoError(t, err)
	assert.Empty(t, invoices)

	kept, err := f.svc.GetCart(ctx, cart.ID)
	require.NoError(t, err)
	assert.Len(t, kept.Items, 1)
}

func TestSubmitInvoiceAuthorityDown(t *testing.T) {
	f := newFixture(t, true)
	f.auth.docErr = gateway.ErrUnavailable
	cart := f.cartWith(t, entry("10000", "0.13", 1))

	_, err := f.svc.SubmitInvoice(context.Background(), SubmitRequest{CartID: cart.ID, ClientID: "c1"})
	assert.ErrorIs(t, err, ErrAuthorityUnavailable)
	assert.ErrorIs(t, err, gateway.ErrUnavailable)

	f.auth.docErr = context.Canceled
	_, err = f.svc.SubmitInvoice(context.Background(), SubmitRequest{CartID: cart.ID, ClientID: "c1"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrAuthorityUnavailable))
}

func TestSubmitInvoiceReusedKeyStoresUnderLocalConsecutive(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	first, err := f.svc.SubmitInvoice(ctx, SubmitRequest{CartID: f.cartWith(t, entry("10000", "0.13", 1)).ID, ClientID: "c1"})
	require.NoError(t, err)
	second, err := f.svc.SubmitInvoice(ctx, SubmitRequest{CartID: f.cartWith(t, entry("5000", "0.13", 1)).ID, ClientID: "c1"})
	require.NoError(t, err)

	assert.Equal(t, f.auth.doc.Key, first.Consecutive)
	assert.NotEqual(t, first.Consecutive, second.Consecutive)
	assert.True(t, strings.HasPrefix(second.Consecutive, "5061750777200000-"), second.Consecutive)

	stored, err := f.svc.ListInvoices(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestInMemoryRepositoryRejectsDuplicateConsecutive(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateInvoice(ctx, &Invoice{ID: "a", Consecutive: "506-1", Status: StatusAccepted, Type: DocumentInvoice}))

	err := repo.CreateInvoice(ctx, &Invoice{ID: "b", Consecutive: "506-1"})
	assert.ErrorIs(t, err, ErrDuplicateConsecutive)

	err = repo.VoidWithCreditNote(ctx, "a", &Invoice{ID: "nc", Consecutive: "506-1", VoidReason: "x"})
	assert.ErrorIs(t, err, ErrDuplicateConsecutive)
	orig, err := repo.GetInvoice(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, orig.Status)
}

type blockingAuthority struct {
	*fakeAuthority
	entered chan struct{}
	release chan struct{}
}

func (b *blockingAuthority) ValidateDocument(ctx context.Context, doc gateway.DocumentRequest) (gateway.DocumentResult, error) {
	close(b.entered)
	<-b.release
	return b.fakeAuthority.ValidateDocument(ctx, doc)
}

func TestOtherCartsProceedWhileSubmissionAwaitsAuthority(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	blocking := &blockingAuthority{fakeAuthority: f.auth, entered: make(chan struct{}), release: make(chan struct{})}
	f.svc.authority = blocking

	busy := f.cartWith(t, entry("10000", "0.13", 1))
	other := f.cartWith(t)

	submitted := make(chan error, 1)
	go func() {
		_, err := f.svc.SubmitInvoice(ctx, SubmitRequest{CartID: busy.ID, ClientID: "c1"})
		submitted <- err
	}()
	select {
	case <-blocking.entered:
	case <-time.After(time.Second):
		t.Fatal("submission never reached the authority")
	}

	added := make(chan error, 1)
	go func() {
		e := entry("2000", "0.13", 1)
		_, err := f.svc.AddToCart(ctx, other.ID, AddItemRequest{Entry: &e})
		added <- err
	}()
	select {
	case err := <-added:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("adding to another cart waited on the authority")
	}

	close(blocking.release)
	require.NoError(t, <-submitted)
}

func TestSaveQuote(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	cart := f.cartWith(t, entry("25000", "0.04", 1))
	q1, err := f.svc.SaveQuote(ctx, cart.ID, "c1")
	require.NoError(t, err)
	assert.Equal(t, "COT-101", q1.QuoteNumber)
	assert.Equal(t, QuoteDraft, q1.Status)
	assert.Equal(t, fixedNow.Add(7*24*time.Hour), q1.ExpiryDate)
	assert.Empty(t, f.auth.docs)

	_, err = f.svc.SaveQuote(ctx, cart.ID, "c1")
	assert.ErrorIs(t, err, ErrEmptyCart)

	cart2 := f.cartWith(t, entry("1000", "0.13", 1))
	_, err = f.svc.SaveQuote(ctx, cart2.ID, "")
	assert.ErrorIs(t, err, ErrClientRequired)

	q2, err := f.svc.SaveQuote(ctx, cart2.ID, "c1")
	require.NoError(t, err)
	assert.Equal(t, "COT-102", q2.QuoteNumber)

	quotes, err := f.svc.ListQuotes(ctx)
	require.NoError(t, err)
	assert.Len(t, quotes, 2)
}

func TestVoidInvoice(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	cart := f.cartWith(t, entry("10000", "0.13", 2))
	inv, err := f.svc.SubmitInvoice(ctx, SubmitRequest{CartID: cart.ID, ClientID: "c1", SaleCondition: SaleCredit})
	require.NoError(t, err)

	_, err = f.svc.VoidInvoice(ctx, inv.ID, ReasonVoid, "   ")
	assert.ErrorIs(t, err, ErrVoidReasonRequired)

	_, err = f.svc.VoidInvoice(ctx, inv.ID, "09", "error")
	assert.ErrorIs(t, err, ErrInvalidReasonCode)

	f.auth.doc.Key = "50624062500310123456700100001030000000001"
	nc, err := f.svc.VoidInvoice(ctx, inv.ID, ReasonCorrectAmount, "Monto incorrecto")
	require.NoError(t, err)
	assert.Equal(t, DocumentCreditNote, nc.Type)
	assert.Equal(t, StatusAccepted, nc.Status)
	assert.Equal(t, PaymentPaid, nc.PaymentStatus)
	assert.True(t, nc.Total.Equal(inv.Total.Neg()))
	assert.True(t, nc.Total.Equal(nc.Subtotal.Add(nc.Tax)))
	assert.Equal(t, inv.ID, nc.ReferenceID)
	assert.Equal(t, inv.Consecutive, nc.ReferenceConsecutive)
	assert.Equal(t, ReasonCorrectAmount, nc.CreditNoteReason)

	last := f.auth.docs[len(f.auth.docs)-1]
	assert.Equal(t, "NC", last.Type)
	assert.Equal(t, inv.Consecutive, last.ReferenceKey)

	orig, err := f.svc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusVoided, orig.Status)
	assert.True(t, orig.Total.Equal(inv.Total))

	report, err := f.svc.Receivables(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Count)

	_, err = f.svc.VoidInvoice(ctx, inv.ID, ReasonVoid, "otra vez")
	assert.ErrorIs(t, err, ErrNotVoidable)
	_, err = f.svc.VoidInvoice(ctx, nc.ID, ReasonVoid, "nota")
	assert.ErrorIs(t, err, ErrNotVoidable)
}

func TestVoidInvoiceRejectedKeepsOriginal(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	cart := f.cartWith(t, entry("10000", "0.13", 1))
	inv, err := f.svc.SubmitInvoice(ctx, SubmitRequest{CartID: cart.ID, ClientID: "c1"})
	require.NoError(t, err)

	f.auth.doc = gateway.DocumentResult{Status: gateway.StatusRejected, Message: "Referencia inválida"}
	_, err = f.svc.VoidInvoice(ctx, inv.ID, ReasonVoid, "Anulación")
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)

	orig, err := f.svc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, orig.Status)
}

func TestAuditTrailRecordsDocumentLifecycle(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	cart := f.cartWith(t, entry("10000", "0.13", 1))
	inv, err := f.svc.SubmitInvoice(ctx, SubmitRequest{CartID: cart.ID, ClientID: "c1", SaleCondition: SaleCredit})
	require.NoError(t, err)
	_, err = f.svc.RegisterPayment(ctx, inv.ID)
	require.NoError(t, err)
	nc, err := f.svc.VoidInvoice(ctx, inv.ID, ReasonVoid, "Anulación")
	require.NoError(t, err)

	f.auth.doc = gateway.DocumentResult{Status: gateway.StatusRejected, Message: "Cédula inválida"}
	cart = f.cartWith(t, entry("5000", "0.13", 1))
	_, err = f.svc.SubmitInvoice(ctx, SubmitRequest{CartID: cart.ID, ClientID: "c1"})
	require.Error(t, err)

	events, err := f.trail.Query(ctx, audit.Filter{})
	require.NoError(t, err)
	types := make([]audit.EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.ElementsMatch(t, []audit.EventType{
		audit.EventDocumentAccepted,
		audit.EventPaymentRegistered,
		audit.EventCreditNoteIssued,
		audit.EventDocumentRejected,
	}, types)

	issued, err := f.trail.Query(ctx, audit.Filter{Type: audit.EventCreditNoteIssued})
	require.NoError(t, err)
	require.Len(t, issued, 1)
	assert.Equal(t, nc.ID, issued[0].DocumentID)
	var d audit.Details
	require.NoError(t, json.Unmarshal(issued[0].Details, &d))
	assert.Equal(t, inv.ID, d.ReferenceID)
	assert.Equal(t, "-11300.00", d.Total)
}

func expenseKey() string {
	return "50624062500310123456700100001010000000001199999999"
}

func TestExpenses(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.RegisterExpense(ctx, ExpenseRequest{SupplierName: "Distribuidora Vet", Key: "123", Total: dec("1000")})
	assert.ErrorIs(t, err, ErrInvalidExpenseKey)

	_, err = f.svc.RegisterExpense(ctx, ExpenseRequest{SupplierName: "Distribuidora Vet", Key: expenseKey(), Total: dec("100"), Tax: dec("130")})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	e, err := f.svc.RegisterExpense(ctx, ExpenseRequest{SupplierName: "Distribuidora Vet", Key: expenseKey(), Total: dec("113000"), Tax: dec("13000")})
	require.NoError(t, err)
	assert.Equal(t, ExpensePending, e.Status)

	_, err = f.svc.AcceptExpense(ctx, e.ID, "05")
	assert.ErrorIs(t, err, ErrInvalidAcceptanceCode)

	rejected, err := f.svc.AcceptExpense(ctx, e.ID, AcceptReject)
	require.NoError(t, err)
	assert.Equal(t, ExpenseRejected, rejected.Status)
	assert.Equal(t, "MR-1", rejected.AcceptanceConsecutive)
	require.NotNil(t, rejected.AcceptedAt)
	require.Len(t, f.auth.accs, 1)
	assert.Equal(t, "03", f.auth.accs[0].Code)

	_, err = f.svc.AcceptExpense(ctx, e.ID, AcceptFull)
	assert.ErrorIs(t, err, ErrExpenseAlreadyProcessed)

	e2, err := f.svc.RegisterExpense(ctx, ExpenseRequest{SupplierName: "Agroveterinaria", Key: expenseKey(), Total: dec("5000")})
	require.NoError(t, err)
	accepted, err := f.svc.AcceptExpense(ctx, e2.ID, AcceptPartial)
	require.NoError(t, err)
	assert.Equal(t, ExpenseAccepted, accepted.Status)
}

func TestRedisCartStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisCartStore(client)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCartNotFound)

	cart := NewCart()
	_, err = cart.AddLineItem(entry("25000", "0.04", 1))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, cart))
	assert.Equal(t, 24*time.Hour, mr.TTL("billing:cart:"+cart.ID))

	got, err := store.Get(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].Tax.Equal(dec("1000")))

	mr.FastForward(25 * time.Hour)
	_, err = store.Get(ctx, cart.ID)
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPostgresVoidWithCreditNote(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	nc := &Invoice{ID: "nc1", Type: DocumentCreditNote, VoidReason: "Anulación", Items: []LineItem{}}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE invoices SET status = 'voided'`).
		WithArgs("inv1", "Anulación").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO invoices`).
		WithArgs(anyArgs(20)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, NewPostgresRepository(mock).VoidWithCreditNote(context.Background(), "inv1", nc))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateInvoiceDuplicateConsecutive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO invoices`).
		WithArgs(anyArgs(20)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "invoices_consecutive_key"})

	err = NewPostgresRepository(mock).CreateInvoice(context.Background(), &Invoice{ID: "inv1", Consecutive: "506123", Items: []LineItem{}})
	assert.ErrorIs(t, err, ErrDuplicateConsecutive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresVoidWithCreditNoteNotVoidable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE invoices SET status = 'voided'`).
		WithArgs("inv1", "x").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("inv1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err = NewPostgresRepository(mock).VoidWithCreditNote(context.Background(), "inv1", &Invoice{ID: "nc1", VoidReason: "x"})
	assert.ErrorIs(t, err, ErrNotVoidable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCountQuotes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM quotes`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))

	n, err := NewPostgresRepository(mock).CountQuotes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func newTestRouter(svc *Service) http.Handler {
	h := NewHandler(svc, nil)
	r := chi.NewRouter()
	r.Post("/carts", h.CreateCart)
	r.Post("/carts/{cartID}/items", h.AddCartItem)
	r.Delete("/carts/{cartID}/items/{index}", h.RemoveCartItem)
	r.Post("/invoices", h.SubmitInvoice)
	r.Post("/invoices/{invoiceID}/void", h.VoidInvoice)
	r.Get("/receivables", h.Receivables)
	return r
}

func TestHandlerInvoiceFlow(t *testing.T) {
	f := newFixture(t, true)
	r := newTestRouter(f.svc)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carts", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	var cart Cart
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cart))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carts/"+cart.ID+"/items", bytes.NewReader([]byte(`{"item_id":"seed-1"}`))))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "26000", body["total"])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/carts/"+cart.ID+"/items/5", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoices", bytes.NewReader([]byte(`{"cart_id":"`+cart.ID+`"}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.auth.doc = gateway.DocumentResult{Status: gateway.StatusRejected, Message: "XML inválido"}
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoices", bytes.NewReader([]byte(`{"cart_id":"`+cart.ID+`","client_id":"c1"}`))))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "XML inválido")

	f.auth.doc = gateway.DocumentResult{Status: gateway.StatusAccepted, Key: "506123"}
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoices", bytes.NewReader([]byte(`{"cart_id":"`+cart.ID+`","client_id":"c1","sale_condition":"02"}`))))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/receivables", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestHandlerNotConfigured(t *testing.T) {
	f := newFixture(t, false)
	r := newTestRouter(f.svc)
	cart := f.cartWith(t, entry("1000", "0.13", 1))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoices", bytes.NewReader([]byte(`{"cart_id":"`+cart.ID+`","client_id":"c1"}`))))
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}
