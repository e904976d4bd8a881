package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx pool for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository keeps appointments in the appointments table. Date and
// time are DATE and TIME columns rendered back as text.
type PostgresRepository struct {
	db DB
}

func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("scheduling: db required")
	}
	return &PostgresRepository{db: db}
}

const appointmentColumns = `id, client_id, pet_id, pet_name, owner_name,
	to_char(date, 'YYYY-MM-DD'), to_char(time, 'HH24:MI'), reason, status, created_at`

func (r *PostgresRepository) Create(ctx context.Context, a *Appointment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO appointments (id, client_id, pet_id, pet_name, owner_name, date, time, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7::time, $8, $9, $10)`,
		a.ID, a.ClientID, a.PetID, a.PetName, a.OwnerName, a.Date, a.Time, a.Reason, string(a.Status), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("scheduling: insert appointment: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	a, err := scanAppointment(r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scheduling: get appointment: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*Appointment, error) {
	return r.query(ctx, `SELECT `+appointmentColumns+` FROM appointments ORDER BY date, time, id`)
}

func (r *PostgresRepository) ListByDate(ctx context.Context, date string) ([]*Appointment, error) {
	return r.query(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE date = $1::date ORDER BY time, id`, date)
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status Status) (*Appointment, error) {
	a, err := scanAppointment(r.db.QueryRow(ctx, `
		UPDATE appointments SET status = $2 WHERE id = $1
		RETURNING `+appointmentColumns, id, string(status)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scheduling: update status: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) query(ctx context.Context, sql string, args ...any) ([]*Appointment, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list appointments: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	if err := row.Scan(&a.ID, &a.ClientID, &a.PetID, &a.PetName, &a.OwnerName,
		&a.Date, &a.Time, &a.Reason, &status, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}
