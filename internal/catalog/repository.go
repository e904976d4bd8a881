package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository defines catalog storage.
type Repository interface {
	Create(ctx context.Context, req *CreateItemRequest) (*Item, error)
	Get(ctx context.Context, id string) (*Item, error)
	List(ctx context.Context, query string) ([]*Item, error)
}

// InMemoryRepository keeps items in a map.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Item
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{items: make(map[string]*Item)}
}

// NewSeededRepository returns an in-memory repository holding DefaultItems.
func NewSeededRepository() *InMemoryRepository {
	r := NewInMemoryRepository()
	for _, item := range DefaultItems() {
		r.items[item.ID] = item
	}
	return r
}

func (r *InMemoryRepository) Create(_ context.Context, req *CreateItemRequest) (*Item, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	item := newItem(req)

	r.mu.Lock()
	r.items[item.ID] = item
	r.mu.Unlock()
	return item, nil
}

func (r *InMemoryRepository) Get(_ context.Context, id string) (*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

// List returns items whose name, code or category contains query, by name.
func (r *InMemoryRepository) List(_ context.Context, query string) ([]*Item, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	r.mu.RLock()
	out := make([]*Item, 0, len(r.items))
	for _, item := range r.items {
		if q != "" &&
			!strings.Contains(strings.ToLower(item.Name), q) &&
			!strings.Contains(item.Code, q) &&
			!strings.Contains(strings.ToLower(item.Category), q) {
			continue
		}
		cp := *item
		out = append(out, &cp)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func newItem(req *CreateItemRequest) *Item {
	return &Item{
		ID:          uuid.New().String(),
		Code:        req.Code,
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		TaxRate:     *req.TaxRate,
		Type:        req.Type,
		Stock:       req.Stock,
		Category:    req.Category,
		CreatedAt:   time.Now().UTC(),
	}
}

// DefaultItems is the starter veterinary catalog.
func DefaultItems() []*Item {
	stock := func(n int) *int { return &n }
	seed := []struct {
		code, name string
		price      int64
		rate       string
		typ        ItemType
	}{
		{"0121100000000", "Consulta General Veterinaria", 25000, "0.04", TypeService},
		{"0121100000100", "Vacuna Nobivac DHPPi", 15000, "0.01", TypeProduct},
		{"0121100000200", "Vacuna Rabia", 12000, "0.01", TypeProduct},
		{"0121100000300", "Desparasitación Interna", 8000, "0.13", TypeService},
		{"0121100000400", "Limpieza Dental Especializada", 45000, "0.04", TypeService},
	}
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	items := make([]*Item, 0, len(seed))
	for i, s := range seed {
		item := &Item{
			ID:        fmt.Sprintf("seed-%d", i+1),
			Code:      s.code,
			Name:      s.name,
			Price:     decimal.NewFromInt(s.price),
			TaxRate:   decimal.RequireFromString(s.rate),
			Type:      s.typ,
			Category:  "Salud",
			CreatedAt: created,
		}
		if s.typ == TypeProduct {
			item.Stock = stock(10)
		}
		items = append(items, item)
	}
	return items
}
