// Package appointments books eye examination slots. Bookings share the
// reference generator with orders under their own prefix.
package appointments

import (
	"context"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type ContactPref string

const (
	ContactWhatsApp ContactPref = "WhatsApp"
	ContactEmail    ContactPref = "Email"
	ContactPhone    ContactPref = "Phone"
)

func (c ContactPref) Valid() bool {
	return c == ContactWhatsApp || c == ContactEmail || c == ContactPhone
}

type Appointment struct {
	ID          string      `json:"id"`
	Ref         string      `json:"ref"`
	FirstName   string      `json:"first_name"`
	LastName    string      `json:"last_name"`
	Email       string      `json:"email"`
	Phone       string      `json:"phone"`
	Service     string      `json:"service"`
	Date        time.Time   `json:"date"`
	Slot        string      `json:"slot"`
	ContactPref ContactPref `json:"contact_pref"`
	Notes       string      `json:"notes"`
	Status      Status      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type Store interface {
	AppointmentRefExists(ctx context.Context, ref string) (bool, error)
	// InsertAppointment fails with a conflict carrying apperr.CodeDuplicateRef
	// when the ref is taken.
	InsertAppointment(ctx context.Context, a Appointment) error
	FindAppointmentByID(ctx context.Context, id string) (Appointment, error)
	// ListAppointments returns the most recent bookings first.
	ListAppointments(ctx context.Context, limit int) ([]Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id string, status Status, at time.Time) (Appointment, error)
}
