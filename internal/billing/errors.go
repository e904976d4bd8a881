package billing

import (
	"errors"
	"fmt"
)

var (
	ErrAuthorityNotConfigured = errors.New("billing: authority credentials are not configured")
	ErrAuthorityUnavailable   = errors.New("billing: authority unavailable")

	ErrEmptyCart      = errors.New("billing: cart has no line items")
	ErrClientRequired = errors.New("billing: a client must be selected")
	ErrClientNotFound = errors.New("billing: client not found")

	ErrCartNotFound     = errors.New("billing: cart not found")
	ErrLineItemNotFound = errors.New("billing: line item not found")
	ErrInvalidQuantity  = errors.New("billing: quantity must be positive")
	ErrInvalidPrice     = errors.New("billing: price and tax rate cannot be negative")
	ErrItemRequired     = errors.New("billing: item_id or entry is required")

	ErrInvalidDocumentType  = errors.New("billing: document type must be FE or TE")
	ErrInvalidSaleCondition = errors.New("billing: unknown sale condition")
	ErrInvalidPaymentMethod = errors.New("billing: unknown payment method")
	ErrInvalidCreditTerm    = errors.New("billing: credit term cannot be negative")

	ErrInvoiceNotFound      = errors.New("billing: invoice not found")
	ErrVoidReasonRequired   = errors.New("billing: a void reason is required")
	ErrInvalidReasonCode    = errors.New("billing: reason code must be 01, 02 or 03")
	ErrNotVoidable          = errors.New("billing: only accepted invoices can be voided")
	ErrDuplicateConsecutive = errors.New("billing: consecutive number already recorded")

	ErrExpenseNotFound         = errors.New("billing: expense not found")
	ErrInvalidAcceptanceCode   = errors.New("billing: acceptance code must be 01, 02 or 03")
	ErrExpenseAlreadyProcessed = errors.New("billing: expense already processed")
	ErrInvalidExpenseKey       = errors.New("billing: expense key must be 50 digits")
	ErrInvalidSupplier         = errors.New("billing: supplier name is required")
	ErrInvalidAmount           = errors.New("billing: total must be at least the tax and tax cannot be negative")
)

// RejectedError is returned when the authority refuses a document.
type RejectedError struct {
	Type    DocumentType
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("billing: %s rejected by the authority", e.Type)
	}
	return fmt.Sprintf("billing: %s rejected by the authority: %s", e.Type, e.Message)
}

func isValidation(err error) bool {
	for _, target := range []error{
		ErrEmptyCart, ErrClientRequired, ErrInvalidQuantity, ErrInvalidPrice, ErrItemRequired,
		ErrInvalidDocumentType, ErrInvalidSaleCondition, ErrInvalidPaymentMethod, ErrInvalidCreditTerm,
		ErrVoidReasonRequired, ErrInvalidReasonCode, ErrInvalidAcceptanceCode, ErrInvalidExpenseKey,
		ErrInvalidSupplier, ErrInvalidAmount,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
