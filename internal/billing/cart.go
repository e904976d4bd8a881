package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

var (
	// DefaultLinePrice applies when a catalog entry carries no price.
	DefaultLinePrice = decimal.NewFromInt(15000)
	// DefaultLineTaxRate applies when a catalog entry carries no tax rate.
	DefaultLineTaxRate = decimal.RequireFromString("0.04")
)

const cartTTL = 24 * time.Hour

// CatalogEntry is a catalog or code-search result about to become a line item.
type CatalogEntry struct {
	ProductID   string              `json:"product_id,omitempty"`
	Code        string              `json:"code"`
	Description string              `json:"description"`
	Price       decimal.NullDecimal `json:"price"`
	TaxRate     decimal.NullDecimal `json:"tax_rate"`
	Quantity    int                 `json:"quantity,omitempty"`
}

// Cart holds the line items of a sale being prepared.
type Cart struct {
	ID        string     `json:"id"`
	Items     []LineItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func NewCart() *Cart {
	return &Cart{ID: uuid.New().String(), Items: []LineItem{}, UpdatedAt: time.Now().UTC()}
}

// AddLineItem appends a line built from the entry. Missing price, tax rate
// and quantity take the defaults; the line tax is price × rate.
func (c *Cart) AddLineItem(e CatalogEntry) (LineItem, error) {
	price := DefaultLinePrice
	if e.Price.Valid {
		price = e.Price.Decimal
	}
	rate := DefaultLineTaxRate
	if e.TaxRate.Valid {
		rate = e.TaxRate.Decimal
	}
	qty := e.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return LineItem{}, ErrInvalidQuantity
	}
	if price.IsNegative() || rate.IsNegative() {
		return LineItem{}, ErrInvalidPrice
	}

	productID := e.ProductID
	if productID == "" {
		productID = uuid.New().String()
	}
	item := LineItem{
		ProductID: productID,
		Name:      strings.TrimSpace(e.Description),
		CABYS:     e.Code,
		Quantity:  qty,
		Price:     price,
		Tax:       price.Mul(rate),
	}
	c.Items = append(c.Items, item)
	c.UpdatedAt = time.Now().UTC()
	return item, nil
}

// RemoveLineItem removes the line at index.
func (c *Cart) RemoveLineItem(index int) error {
	if index < 0 || index >= len(c.Items) {
		return ErrLineItemNotFound
	}
	c.Items = append(c.Items[:index], c.Items[index+1:]...)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (c *Cart) Clear() {
	c.Items = []LineItem{}
	c.UpdatedAt = time.Now().UTC()
}

func (c *Cart) Totals() Totals {
	return ComputeTotals(c.Items)
}

// CartStore persists carts between requests.
type CartStore interface {
	Get(ctx context.Context, id string) (*Cart, error)
	Save(ctx context.Context, cart *Cart) error
}

// RedisCartStore keeps each cart as a JSON blob that expires after a day.
type RedisCartStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisCartStore(client *redis.Client) *RedisCartStore {
	if client == nil {
		panic("billing: redis client required")
	}
	return &RedisCartStore{redis: client, ttl: cartTTL}
}

func cartKey(id string) string {
	return "billing:cart:" + id
}

func (s *RedisCartStore) Get(ctx context.Context, id string) (*Cart, error) {
	data, err := s.redis.Get(ctx, cartKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("billing: get cart: %w", err)
	}
	var cart Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("billing: unmarshal cart: %w", err)
	}
	if cart.Items == nil {
		cart.Items = []LineItem{}
	}
	return &cart, nil
}

func (s *RedisCartStore) Save(ctx context.Context, cart *Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("billing: marshal cart: %w", err)
	}
	if err := s.redis.Set(ctx, cartKey(cart.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("billing: save cart: %w", err)
	}
	return nil
}

// MemoryCartStore is used when Redis is not configured. Carts do not expire.
type MemoryCartStore struct {
	mu    sync.RWMutex
	carts map[string]*Cart
}

func NewMemoryCartStore() *MemoryCartStore {
	return &MemoryCartStore{carts: make(map[string]*Cart)}
}

func (s *MemoryCartStore) Get(_ context.Context, id string) (*Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.carts[id]
	if !ok {
		return nil, ErrCartNotFound
	}
	cp := *c
	cp.Items = append([]LineItem{}, c.Items...)
	return &cp, nil
}

func (s *MemoryCartStore) Save(_ context.Context, cart *Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cart
	cp.Items = append([]LineItem{}, cart.Items...)
	s.carts[cart.ID] = &cp
	return nil
}
