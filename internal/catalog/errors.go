package catalog

import "errors"

var (
	ErrInvalidType    = errors.New("type must be product, service or bundle")
	ErrInvalidCode    = errors.New("code must be a 13 digit CABYS code")
	ErrInvalidName    = errors.New("name is required")
	ErrInvalidPrice   = errors.New("price cannot be negative")
	ErrInvalidTaxRate = errors.New("tax rate must be between 0 and 1")
	ErrInvalidStock   = errors.New("stock cannot be negative")

	// ErrItemNotFound is returned when an item is not found
	ErrItemNotFound = errors.New("catalog item not found")
)
