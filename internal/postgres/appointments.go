package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/storefront-orders/internal/apperr"
	"github.com/ariefcatur/storefront-orders/internal/appointments"
)

const appointmentColumns = `id, ref, first_name, last_name, email, phone, service,
	date, slot, contact_pref, notes, status, created_at, updated_at`

func scanAppointment(row pgx.Row) (appointments.Appointment, error) {
	var a appointments.Appointment
	err := row.Scan(&a.ID, &a.Ref, &a.FirstName, &a.LastName, &a.Email, &a.Phone, &a.Service,
		&a.Date, &a.Slot, &a.ContactPref, &a.Notes, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s *Store) AppointmentRefExists(ctx context.Context, ref string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM appointments WHERE ref=$1)`, ref).Scan(&exists)
	return exists, mapErr("postgres.AppointmentRefExists", err)
}

func (s *Store) InsertAppointment(ctx context.Context, a appointments.Appointment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO appointments(id, ref, first_name, last_name, email, phone, service,
			date, slot, contact_pref, notes, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		a.ID, a.Ref, a.FirstName, a.LastName, a.Email, a.Phone, a.Service,
		a.Date, a.Slot, string(a.ContactPref), a.Notes, string(a.Status), a.CreatedAt, a.UpdatedAt)
	return mapErr("postgres.InsertAppointment", err)
}

func (s *Store) FindAppointmentByID(ctx context.Context, id string) (appointments.Appointment, error) {
	const op = "postgres.FindAppointmentByID"
	a, err := scanAppointment(s.pool.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return appointments.Appointment{}, apperr.NotFound(op, "appointment %s not found", id)
	}
	return a, mapErr(op, err)
}

func (s *Store) ListAppointments(ctx context.Context, limit int) ([]appointments.Appointment, error) {
	const op = "postgres.ListAppointments"
	rows, err := s.pool.Query(ctx,
		`SELECT `+appointmentColumns+` FROM appointments ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	var out []appointments.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, mapErr(op, err)
		}
		out = append(out, a)
	}
	return out, mapErr(op, rows.Err())
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, id string, status appointments.Status, at time.Time) (appointments.Appointment, error) {
	const op = "postgres.UpdateAppointmentStatus"
	a, err := scanAppointment(s.pool.QueryRow(ctx, `
		UPDATE appointments SET status=$2, updated_at=$3
		WHERE id=$1
		RETURNING `+appointmentColumns, id, string(status), at))
	if errors.Is(err, pgx.ErrNoRows) {
		return appointments.Appointment{}, apperr.NotFound(op, "appointment %s not found", id)
	}
	return a, mapErr(op, err)
}
