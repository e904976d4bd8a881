package billing

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Repository stores issued documents, quotes and supplier invoices.
type Repository interface {
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	ListInvoices(ctx context.Context) ([]*Invoice, error)
	// VoidWithCreditNote marks the original voided and stores the credit
	// note in one step. It fails with ErrNotVoidable if the original is no
	// longer voidable.
	VoidWithCreditNote(ctx context.Context, originalID string, creditNote *Invoice) error
	MarkPaid(ctx context.Context, id string) (*Invoice, error)

	CreateQuote(ctx context.Context, q *Quote) error
	ListQuotes(ctx context.Context) ([]*Quote, error)
	CountQuotes(ctx context.Context) (int, error)

	CreateExpense(ctx context.Context, e *Expense) error
	GetExpense(ctx context.Context, id string) (*Expense, error)
	ListExpenses(ctx context.Context) ([]*Expense, error)
	UpdateExpense(ctx context.Context, e *Expense) error
}

// InMemoryRepository is an in-memory implementation of Repository
type InMemoryRepository struct {
	mu       sync.RWMutex
	invoices map[string]*Invoice
	quotes   map[string]*Quote
	expenses map[string]*Expense
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		invoices: make(map[string]*Invoice),
		quotes:   make(map[string]*Quote),
		expenses: make(map[string]*Expense),
	}
}

func (r *InMemoryRepository) CreateInvoice(_ context.Context, inv *Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consecutiveTaken(inv.Consecutive) {
		return fmt.Errorf("%w: %s", ErrDuplicateConsecutive, inv.Consecutive)
	}
	r.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func (r *InMemoryRepository) consecutiveTaken(consecutive string) bool {
	for _, inv := range r.invoices {
		if inv.Consecutive == consecutive {
			return true
		}
	}
	return false
}

func (r *InMemoryRepository) GetInvoice(_ context.Context, id string) (*Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	return cloneInvoice(inv), nil
}

func (r *InMemoryRepository) ListInvoices(_ context.Context) ([]*Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Invoice, 0, len(r.invoices))
	for _, inv := range r.invoices {
		out = append(out, cloneInvoice(inv))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID > out[j].ID
		}
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

func (r *InMemoryRepository) VoidWithCreditNote(_ context.Context, originalID string, nc *Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	orig, ok := r.invoices[originalID]
	if !ok {
		return ErrInvoiceNotFound
	}
	if !orig.Voidable() {
		return ErrNotVoidable
	}
	if r.consecutiveTaken(nc.Consecutive) {
		return fmt.Errorf("%w: %s", ErrDuplicateConsecutive, nc.Consecutive)
	}
	orig.Status = StatusVoided
	orig.VoidReason = nc.VoidReason
	r.invoices[nc.ID] = cloneInvoice(nc)
	return nil
}

func (r *InMemoryRepository) MarkPaid(_ context.Context, id string) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	inv.PaymentStatus = PaymentPaid
	return cloneInvoice(inv), nil
}

func (r *InMemoryRepository) CreateQuote(_ context.Context, q *Quote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *q
	cp.Items = append([]LineItem{}, q.Items...)
	r.quotes[q.ID] = &cp
	return nil
}

func (r *InMemoryRepository) ListQuotes(_ context.Context) ([]*Quote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Quote, 0, len(r.quotes))
	for _, q := range r.quotes {
		cp := *q
		cp.Items = append([]LineItem{}, q.Items...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].QuoteNumber > out[j].QuoteNumber
		}
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

func (r *InMemoryRepository) CountQuotes(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.quotes), nil
}

func (r *InMemoryRepository) CreateExpense(_ context.Context, e *Expense) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.expenses[e.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetExpense(_ context.Context, id string) (*Expense, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.expenses[id]
	if !ok {
		return nil, ErrExpenseNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *InMemoryRepository) ListExpenses(_ context.Context) ([]*Expense, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Expense, 0, len(r.expenses))
	for _, e := range r.expenses {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepository) UpdateExpense(_ context.Context, e *Expense) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.expenses[e.ID]; !ok {
		return ErrExpenseNotFound
	}
	cp := *e
	r.expenses[e.ID] = &cp
	return nil
}

func cloneInvoice(inv *Invoice) *Invoice {
	cp := *inv
	cp.Items = append([]LineItem{}, inv.Items...)
	return &cp
}
