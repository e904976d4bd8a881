// Package reports builds the tax summary and the admin dashboard from
// billing, scheduling and clinic data.
package reports

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wolfman30/vethome-platform/internal/billing"
	"github.com/wolfman30/vethome-platform/internal/clinic"
)

var ErrInvalidPeriod = errors.New("reports: period must be YYYY-MM-DD with from <= to")

// Period bounds a report by civil date in Costa Rica, both ends inclusive.
// An empty bound is open.
type Period struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

func (p Period) validate() error {
	var from, to time.Time
	var err error
	if p.From != "" {
		if from, err = time.Parse(time.DateOnly, p.From); err != nil {
			return ErrInvalidPeriod
		}
	}
	if p.To != "" {
		if to, err = time.Parse(time.DateOnly, p.To); err != nil {
			return ErrInvalidPeriod
		}
	}
	if p.From != "" && p.To != "" && from.After(to) {
		return ErrInvalidPeriod
	}
	return nil
}

func (p Period) contains(t time.Time) bool {
	day := t.In(clinic.CostaRica).Format(time.DateOnly)
	if p.From != "" && day < p.From {
		return false
	}
	if p.To != "" && day > p.To {
		return false
	}
	return true
}

// RateLine is the taxable base and tax collected at one VAT rate.
type RateLine struct {
	Rate decimal.Decimal `json:"rate"`
	Base decimal.Decimal `json:"base"`
	Tax  decimal.Decimal `json:"tax"`
}

type TaxSummary struct {
	Period      Period          `json:"period"`
	Lines       []RateLine      `json:"lines"`
	SalesTax    decimal.Decimal `json:"sales_tax"`
	PurchaseTax decimal.Decimal `json:"purchase_tax"`
	Net         decimal.Decimal `json:"net"`
	Documents   int             `json:"documents"`
}

// SummarizeTaxes groups issued documents by VAT rate and nets sales tax
// against the tax on accepted supplier invoices. Credit notes subtract, so a
// voided invoice and its note cancel out. Rejected and draft documents are
// ignored.
func SummarizeTaxes(invoices []*billing.Invoice, expenses []*billing.Expense, period Period) (TaxSummary, error) {
	if err := period.validate(); err != nil {
		return TaxSummary{}, err
	}
	summary := TaxSummary{
		Period:      period,
		Lines:       []RateLine{},
		SalesTax:    decimal.Zero,
		PurchaseTax: decimal.Zero,
	}

	byRate := map[string]*RateLine{}
	for _, inv := range invoices {
		if inv == nil || (inv.Status != billing.StatusAccepted && inv.Status != billing.StatusVoided) {
			continue
		}
		if !period.contains(inv.Date) {
			continue
		}
		sign := decimal.NewFromInt(1)
		if inv.Type == billing.DocumentCreditNote {
			sign = sign.Neg()
		}
		summary.Documents++
		for _, it := range inv.Items {
			rate := decimal.Zero
			if !it.Price.IsZero() {
				rate = it.Tax.Div(it.Price).Round(4)
			}
			key := rate.String()
			line, ok := byRate[key]
			if !ok {
				line = &RateLine{Rate: rate, Base: decimal.Zero, Tax: decimal.Zero}
				byRate[key] = line
			}
			q := decimal.NewFromInt(int64(it.Quantity)).Mul(sign)
			line.Base = line.Base.Add(it.Price.Mul(q))
			line.Tax = line.Tax.Add(it.Tax.Mul(q))
		}
	}
	for _, line := range byRate {
		summary.Lines = append(summary.Lines, *line)
		summary.SalesTax = summary.SalesTax.Add(line.Tax)
	}
	sort.Slice(summary.Lines, func(i, j int) bool {
		return summary.Lines[i].Rate.LessThan(summary.Lines[j].Rate)
	})

	for _, e := range expenses {
		if e == nil || e.Status != billing.ExpenseAccepted {
			continue
		}
		when := e.CreatedAt
		if e.AcceptedAt != nil {
			when = *e.AcceptedAt
		}
		if !period.contains(when) {
			continue
		}
		summary.PurchaseTax = summary.PurchaseTax.Add(e.Tax)
	}
	summary.Net = summary.SalesTax.Sub(summary.PurchaseTax)
	return summary, nil
}
