package appointments

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/storefront-orders/internal/apperr"
	"github.com/ariefcatur/storefront-orders/internal/auth"
	"github.com/ariefcatur/storefront-orders/internal/events"
	"github.com/ariefcatur/storefront-orders/internal/logging"
	"github.com/ariefcatur/storefront-orders/internal/refgen"
)

const DefaultRefPrefix = "CEC"

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

type CreateInput struct {
	FirstName   string      `json:"first_name"`
	LastName    string      `json:"last_name"`
	Email       string      `json:"email"`
	Phone       string      `json:"phone"`
	Service     string      `json:"service"`
	Date        string      `json:"date"`
	Slot        string      `json:"slot"`
	ContactPref ContactPref `json:"contact_pref"`
	Notes       string      `json:"notes"`
}

type Service struct {
	Store       Store
	Refs        *refgen.Generator
	Publisher   events.Publisher
	Logger      *zap.Logger
	Clock       func() time.Time
	RefPrefix   string
	ServiceName string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (Appointment, error) {
	const op = "appointments.Create"
	a, err := in.toAppointment()
	if err != nil {
		return Appointment{}, err
	}
	now := s.now()
	a.ID = uuid.NewString()
	a.Status = StatusPending
	a.CreatedAt, a.UpdatedAt = now, now

	refs := s.Refs
	if refs == nil {
		refs = refgen.New()
	}
	prefix := s.RefPrefix
	if prefix == "" {
		prefix = DefaultRefPrefix
	}
	for attempt := 0; attempt < refs.MaxAttempts(); attempt++ {
		if a.Ref, err = refs.Mint(ctx, prefix, s.Store.AppointmentRefExists); err != nil {
			return Appointment{}, err
		}
		err = s.Store.InsertAppointment(ctx, a)
		if apperr.HasCode(err, apperr.CodeDuplicateRef) {
			continue
		}
		if err != nil {
			return Appointment{}, err
		}
		s.log(ctx).Info("appointment booked", zap.String("ref", a.Ref), zap.String("service", a.Service), zap.String("slot", a.Slot))
		s.publish(ctx, a)
		return a, nil
	}
	return Appointment{}, apperr.Conflict(op, apperr.CodeRefExhausted, "could not allocate a unique appointment reference")
}

func (s *Service) Get(ctx context.Context, id string) (Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return Appointment{}, apperr.Validation("appointments.Get", "appointment id is required")
	}
	return s.Store.FindAppointmentByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit int) ([]Appointment, error) {
	if !auth.IsAdmin(ctx) {
		return nil, apperr.Forbidden("appointments.List", "admin access required")
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.Store.ListAppointments(ctx, limit)
}

func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (Appointment, error) {
	const op = "appointments.UpdateStatus"
	if !auth.IsAdmin(ctx) {
		return Appointment{}, apperr.Forbidden(op, "admin access required")
	}
	if !status.Valid() {
		return Appointment{}, apperr.Validation(op, "invalid status %q, must be one of: pending, confirmed, completed, cancelled", status)
	}
	return s.Store.UpdateAppointmentStatus(ctx, id, status, s.now())
}

func (in CreateInput) toAppointment() (Appointment, error) {
	const op = "appointments.Create"
	a := Appointment{
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		Email:       strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:       strings.TrimSpace(in.Phone),
		Service:     strings.TrimSpace(in.Service),
		Slot:        strings.TrimSpace(in.Slot),
		ContactPref: in.ContactPref,
		Notes:       strings.TrimSpace(in.Notes),
	}
	if a.ContactPref == "" {
		a.ContactPref = ContactWhatsApp
	}
	switch {
	case a.FirstName == "":
		return a, apperr.Validation(op, "first name is required")
	case a.LastName == "":
		return a, apperr.Validation(op, "last name is required")
	case !emailPattern.MatchString(a.Email):
		return a, apperr.Validation(op, "valid email is required")
	case a.Phone == "":
		return a, apperr.Validation(op, "phone number is required")
	case a.Service == "":
		return a, apperr.Validation(op, "service selection is required")
	case a.Slot == "":
		return a, apperr.Validation(op, "time slot is required")
	case !a.ContactPref.Valid():
		return a, apperr.Validation(op, "contact preference must be WhatsApp, Email or Phone")
	}
	d, err := parseDate(in.Date)
	if err != nil {
		return a, apperr.Validation(op, "valid date is required")
	}
	a.Date = d
	return a, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}

func (s *Service) publish(ctx context.Context, a Appointment) {
	if s.Publisher == nil {
		return
	}
	env, err := events.New(events.EventAppointmentCreated, s.ServiceName, a.ID, events.AppointmentCreatedPayload{
		AppointmentID: a.ID,
		Ref:           a.Ref,
		Service:       a.Service,
		Date:          a.Date.Format(time.DateOnly),
		Slot:          a.Slot,
		ContactPref:   string(a.ContactPref),
	})
	if err == nil {
		env.TraceID = logging.RequestID(ctx)
		err = s.Publisher.Publish(ctx, events.TopicAppointments, env)
	}
	if err != nil {
		s.log(ctx).Warn("publish failed", zap.String("ref", a.Ref), zap.Error(err))
	}
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) log(ctx context.Context) *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logging.FromContext(ctx)
}
