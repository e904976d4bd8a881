// Package scheduling keeps the appointment agenda and runs notification
// campaigns over a date range of appointments.
package scheduling

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusCancelled
}

// Appointment is one visit on the agenda. Date is YYYY-MM-DD and Time HH:MM,
// both in clinic local time.
type Appointment struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	PetID     string    `json:"pet_id"`
	PetName   string    `json:"pet_name"`
	OwnerName string    `json:"owner_name"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Reason    string    `json:"reason"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateAppointmentRequest struct {
	ClientID string `json:"client_id"`
	PetID    string `json:"pet_id"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Reason   string `json:"reason"`
}

func (r *CreateAppointmentRequest) Validate() error {
	r.ClientID = strings.TrimSpace(r.ClientID)
	r.PetID = strings.TrimSpace(r.PetID)
	r.Reason = strings.TrimSpace(r.Reason)
	if r.ClientID == "" || r.PetID == "" {
		return ErrPatientRequired
	}
	if !validDate(r.Date) {
		return ErrInvalidDate
	}
	if _, err := time.Parse("15:04", r.Time); err != nil {
		return ErrInvalidTime
	}
	if r.Reason == "" {
		return ErrReasonRequired
	}
	return nil
}

func validDate(s string) bool {
	_, err := time.Parse(dateLayout, s)
	return err == nil
}

// FilterByDateRange keeps appointments dated between start and end, both
// inclusive. Dates compare as YYYY-MM-DD strings, so input order is kept.
func FilterByDateRange(appointments []*Appointment, start, end string) ([]*Appointment, error) {
	if !validDate(start) || !validDate(end) || start > end {
		return nil, ErrInvalidDateRange
	}
	out := make([]*Appointment, 0, len(appointments))
	for _, a := range appointments {
		if a.Date >= start && a.Date <= end {
			out = append(out, a)
		}
	}
	return out, nil
}
