// Package billing issues fiscal documents (invoices, tickets and credit
// notes), quotes and supplier invoice acceptances, and tracks receivables.
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

type DocumentType string

const (
	DocumentInvoice    DocumentType = "FE"
	DocumentTicket     DocumentType = "TE"
	DocumentCreditNote DocumentType = "NC"
	// DocumentReceiverMessage accepts or rejects a supplier invoice.
	DocumentReceiverMessage DocumentType = "MR"
	documentQuote           DocumentType = "quote"
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusSending  Status = "sending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusVoided   Status = "voided"
)

type PaymentStatus string

const (
	PaymentPaid   PaymentStatus = "paid"
	PaymentUnpaid PaymentStatus = "unpaid"
)

// SaleCondition is the authority's code for how a sale is settled.
type SaleCondition string

const (
	SaleCash        SaleCondition = "01"
	SaleCredit      SaleCondition = "02"
	SaleConsignment SaleCondition = "03"
	SaleLayaway     SaleCondition = "04"
	SaleOther       SaleCondition = "99"
)

func (s SaleCondition) Valid() bool {
	switch s {
	case SaleCash, SaleCredit, SaleConsignment, SaleLayaway, SaleOther:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCash       PaymentMethod = "01"
	PaymentCard       PaymentMethod = "02"
	PaymentCheck      PaymentMethod = "03"
	PaymentTransfer   PaymentMethod = "04"
	PaymentThirdParty PaymentMethod = "05"
)

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCash, PaymentCard, PaymentCheck, PaymentTransfer, PaymentThirdParty:
		return true
	}
	return false
}

// CreditNoteReason is the reference code sent with a credit note.
type CreditNoteReason string

const (
	ReasonVoid          CreditNoteReason = "01"
	ReasonCorrectText   CreditNoteReason = "02"
	ReasonCorrectAmount CreditNoteReason = "03"
)

func (r CreditNoteReason) Valid() bool {
	return r == ReasonVoid || r == ReasonCorrectText || r == ReasonCorrectAmount
}

// LineItem is one priced line of a cart, quote or invoice. Tax is per unit.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	CABYS     string          `json:"cabys"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Tax       decimal.Decimal `json:"tax"`
}

// Totals are the exact sums over a list of line items.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeTotals sums price×quantity and tax×quantity over items.
func ComputeTotals(items []LineItem) Totals {
	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, it := range items {
		q := decimal.NewFromInt(int64(it.Quantity))
		subtotal = subtotal.Add(it.Price.Mul(q))
		tax = tax.Add(it.Tax.Mul(q))
	}
	return Totals{Subtotal: subtotal, Tax: tax, Total: subtotal.Add(tax)}
}

// Invoice is an electronic invoice, ticket or credit note.
type Invoice struct {
	ID                   string           `json:"id"`
	Consecutive          string           `json:"consecutive"`
	ClientID             string           `json:"client_id"`
	ClientName           string           `json:"client_name"`
	Date                 time.Time        `json:"date"`
	Items                []LineItem       `json:"items"`
	Subtotal             decimal.Decimal  `json:"subtotal"`
	Tax                  decimal.Decimal  `json:"tax"`
	Total                decimal.Decimal  `json:"total"`
	Type                 DocumentType     `json:"type"`
	Status               Status           `json:"status"`
	PaymentStatus        PaymentStatus    `json:"payment_status"`
	SaleCondition        SaleCondition    `json:"sale_condition"`
	PaymentMethod        PaymentMethod    `json:"payment_method"`
	CreditTerm           int              `json:"credit_term,omitempty"`
	ReferenceID          string           `json:"reference_id,omitempty"`
	ReferenceConsecutive string           `json:"reference_consecutive,omitempty"`
	VoidReason           string           `json:"void_reason,omitempty"`
	CreditNoteReason     CreditNoteReason `json:"credit_note_reason,omitempty"`
	AuthorityMessage     string           `json:"authority_message,omitempty"`
}

// Receivable reports whether the invoice still has money to collect.
func (i *Invoice) Receivable() bool {
	return i.PaymentStatus == PaymentUnpaid && i.Status != StatusVoided
}

// Voidable reports whether a credit note may be issued against the invoice.
func (i *Invoice) Voidable() bool {
	return i.Status == StatusAccepted && i.Type != DocumentCreditNote
}

type QuoteStatus string

const (
	QuoteDraft    QuoteStatus = "draft"
	QuoteSent     QuoteStatus = "sent"
	QuoteAccepted QuoteStatus = "accepted"
	QuoteRejected QuoteStatus = "rejected"
	QuoteInvoiced QuoteStatus = "invoiced"
)

type Quote struct {
	ID          string          `json:"id"`
	QuoteNumber string          `json:"quote_number"`
	ClientID    string          `json:"client_id"`
	ClientName  string          `json:"client_name"`
	Date        time.Time       `json:"date"`
	ExpiryDate  time.Time       `json:"expiry_date"`
	Items       []LineItem      `json:"items"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
	Status      QuoteStatus     `json:"status"`
}

type ExpenseStatus string

const (
	ExpensePending  ExpenseStatus = "pending"
	ExpenseAccepted ExpenseStatus = "accepted"
	ExpenseRejected ExpenseStatus = "rejected"
)

// AcceptanceCode is the receiver message code for a supplier invoice.
type AcceptanceCode string

const (
	AcceptFull    AcceptanceCode = "01"
	AcceptPartial AcceptanceCode = "02"
	AcceptReject  AcceptanceCode = "03"
)

func (c AcceptanceCode) Valid() bool {
	return c == AcceptFull || c == AcceptPartial || c == AcceptReject
}

// Expense is a supplier invoice received by the clinic.
type Expense struct {
	ID                    string          `json:"id"`
	SupplierID            string          `json:"supplier_id"`
	SupplierName          string          `json:"supplier_name"`
	Key                   string          `json:"key"`
	Total                 decimal.Decimal `json:"total"`
	Tax                   decimal.Decimal `json:"tax"`
	Status                ExpenseStatus   `json:"status"`
	AcceptanceCode        AcceptanceCode  `json:"acceptance_code,omitempty"`
	AcceptanceConsecutive string          `json:"acceptance_consecutive,omitempty"`
	AcceptedAt            *time.Time      `json:"accepted_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
}
