package scheduling

import "errors"

var (
	ErrPatientRequired  = errors.New("scheduling: client_id and pet_id are required")
	ErrInvalidDate      = errors.New("scheduling: date must be YYYY-MM-DD")
	ErrInvalidTime      = errors.New("scheduling: time must be HH:MM")
	ErrReasonRequired   = errors.New("scheduling: reason is required")
	ErrInvalidStatus    = errors.New("scheduling: invalid appointment status")
	ErrInvalidDateRange = errors.New("scheduling: start and end must be YYYY-MM-DD with start <= end")
	ErrNoAppointments   = errors.New("scheduling: no appointments in range")

	ErrAppointmentNotFound = errors.New("scheduling: appointment not found")
	ErrCampaignNotFound    = errors.New("scheduling: campaign not found")
	ErrTaskNotFound        = errors.New("scheduling: campaign task not found")
	ErrTaskNotQueued       = errors.New("scheduling: campaign task is not queued")
	ErrCampaignClosed      = errors.New("scheduling: campaign already confirmed")
)

func isValidation(err error) bool {
	switch {
	case errors.Is(err, ErrPatientRequired), errors.Is(err, ErrInvalidDate),
		errors.Is(err, ErrInvalidTime), errors.Is(err, ErrReasonRequired),
		errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidDateRange),
		errors.Is(err, ErrNoAppointments):
		return true
	}
	return false
}
