package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abejo/dental-clinic/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.PgQuerier(ctx, r.pool)
}

const pgCols = `id, patient_id, first_name, middle_name, last_name, suffix, gender,
	contact_number, email, to_char(appointment_date, 'YYYY-MM-DD'),
	to_char(appointment_time, 'HH24:MI:SS'), treatment_id, status, photo, created_at`

func scanPG(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.FirstName, &a.MiddleName, &a.LastName, &a.Suffix, &a.Gender,
		&a.ContactNumber, &a.Email, &a.AppointmentDate, &a.AppointmentTime, &a.TreatmentID,
		&a.Status, &a.Photo, &a.CreatedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	if a.Status == "" {
		a.Status = StatusPending
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (first_name, middle_name, last_name, suffix, gender,
			contact_number, email, appointment_date, appointment_time, treatment_id, status, photo)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8::date,$9::time,$10,$11,$12)
		RETURNING id, created_at`,
		a.FirstName, a.MiddleName, a.LastName, a.Suffix, a.Gender,
		a.ContactNumber, a.Email, a.AppointmentDate, a.AppointmentTime, a.TreatmentID,
		string(a.Status), a.Photo).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *repoPG) get(ctx context.Context, query string, id int64) (*Appointment, error) {
	a, err := scanPG(r.conn(ctx).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment %d: %w", id, err)
	}
	return a, nil
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	return r.get(ctx, `SELECT `+pgCols+` FROM appointments WHERE id = $1`, id)
}

func (r *repoPG) GetForUpdate(ctx context.Context, id int64) (*Appointment, error) {
	return r.get(ctx, `SELECT `+pgCols+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
}

func (r *repoPG) SetStatus(ctx context.Context, id int64, status Status) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE appointments SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return 0, fmt.Errorf("update appointment status: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) MarkCompleted(ctx context.Context, id int64, patientID int64) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointments SET status = $2, patient_id = $3 WHERE id = $1`,
		id, string(StatusCompleted), patientID)
	if err != nil {
		return fmt.Errorf("complete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListByStatus(ctx context.Context, order Order, statuses ...Status) ([]*Appointment, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+pgCols+` FROM appointments WHERE status = ANY($1) ORDER BY `+orderClause(order), names)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	items := []*Appointment{}
	for rows.Next() {
		a, err := scanPG(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func orderClause(o Order) string {
	switch o {
	case OrderChronological:
		return `appointment_date, appointment_time, id`
	default:
		return `created_at DESC, id DESC`
	}
}
