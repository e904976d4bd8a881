package registry

import "errors"

var (
	// ErrInvalidName is returned when the client name is missing
	ErrInvalidName = errors.New("full name is required")

	// ErrMissingContact is returned when both email and phone are missing
	ErrMissingContact = errors.New("either email or phone is required")

	ErrInvalidNationalID = errors.New("national id must have 9 to 12 digits")
	ErrInvalidPetName    = errors.New("pet name is required")
	ErrInvalidSpecies    = errors.New("species must be dog or cat")
	ErrInvalidDate       = errors.New("dates must be YYYY-MM-DD")
	ErrInvalidWeight     = errors.New("weight cannot be negative")
	ErrInvalidReason     = errors.New("visit reason is required")
	ErrInvalidAttachment = errors.New("attachment name is required")
	ErrInvalidVaccine    = errors.New("vaccine name is required")

	ErrClientNotFound = errors.New("client not found")
	ErrPetNotFound    = errors.New("pet not found")
)

// IsValidation reports whether err is a request validation error.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidName, ErrMissingContact, ErrInvalidNationalID, ErrInvalidPetName,
		ErrInvalidSpecies, ErrInvalidDate, ErrInvalidWeight, ErrInvalidReason,
		ErrInvalidAttachment, ErrInvalidVaccine,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
