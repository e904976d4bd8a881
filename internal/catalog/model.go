// Package catalog manages the clinic's priced and taxed products and services.
package catalog

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ItemType string

const (
	TypeProduct ItemType = "product"
	TypeService ItemType = "service"
	TypeBundle  ItemType = "bundle"
)

// DefaultTaxRate is the general VAT rate applied when none is given.
var DefaultTaxRate = decimal.RequireFromString("0.13")

// Item is a sellable catalog entry identified by its CABYS code.
type Item struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	SKU         string          `json:"sku,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	Type        ItemType        `json:"type"`
	// Stock is only tracked for products; nil means unlimited.
	Stock     *int      `json:"stock"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Unlimited reports whether availability is not bounded by stock.
func (i *Item) Unlimited() bool {
	return i.Type != TypeProduct || i.Stock == nil
}

// CreateItemRequest is the payload for adding a catalog entry.
type CreateItemRequest struct {
	Code        string           `json:"code"`
	SKU         string           `json:"sku,omitempty"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Price       decimal.Decimal  `json:"price"`
	TaxRate     *decimal.Decimal `json:"tax_rate,omitempty"`
	Type        ItemType         `json:"type"`
	Stock       *int             `json:"stock,omitempty"`
	Category    string           `json:"category,omitempty"`
}

// Validate normalizes the request and checks it.
func (r *CreateItemRequest) Validate() error {
	r.Code = strings.TrimSpace(r.Code)
	r.Name = strings.TrimSpace(r.Name)
	if r.Type == "" {
		r.Type = TypeProduct
	}
	switch r.Type {
	case TypeProduct, TypeService, TypeBundle:
	default:
		return ErrInvalidType
	}
	if !IsCABYSCode(r.Code) {
		return ErrInvalidCode
	}
	if r.Name == "" {
		return ErrInvalidName
	}
	if r.Price.IsNegative() {
		return ErrInvalidPrice
	}
	if r.TaxRate == nil {
		rate := DefaultTaxRate
		r.TaxRate = &rate
	}
	if r.TaxRate.IsNegative() || r.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return ErrInvalidTaxRate
	}
	if r.Type != TypeProduct {
		r.Stock = nil
		return nil
	}
	if r.Stock == nil {
		zero := 0
		r.Stock = &zero
	}
	if *r.Stock < 0 {
		return ErrInvalidStock
	}
	return nil
}

// IsCABYSCode reports whether code is a 13-digit CABYS code.
func IsCABYSCode(code string) bool {
	if len(code) != 13 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
