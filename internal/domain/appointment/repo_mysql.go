package appointment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/abejo/dental-clinic/internal/platform/db"
)

type repoMySQL struct{ db *sql.DB }

func NewRepoMySQL(sqlDB *sql.DB) Repository { return &repoMySQL{db: sqlDB} }

func (r *repoMySQL) conn(ctx context.Context) db.SQLQuerier {
	return db.SQLQuerierFrom(ctx, r.db)
}

const mysqlCols = `id, patient_id, first_name, middle_name, last_name, suffix, gender,
	contact_number, email, DATE_FORMAT(appointment_date, '%Y-%m-%d'),
	TIME_FORMAT(appointment_time, '%H:%i:%s'), treatment_id, status, photo, created_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMySQL(row scanner) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.FirstName, &a.MiddleName, &a.LastName, &a.Suffix, &a.Gender,
		&a.ContactNumber, &a.Email, &a.AppointmentDate, &a.AppointmentTime, &a.TreatmentID,
		&a.Status, &a.Photo, &a.CreatedAt)
	return &a, err
}

func (r *repoMySQL) Create(ctx context.Context, a *Appointment) error {
	if a.Status == "" {
		a.Status = StatusPending
	}
	res, err := r.conn(ctx).ExecContext(ctx, `
		INSERT INTO appointments (first_name, middle_name, last_name, suffix, gender,
			contact_number, email, appointment_date, appointment_time, treatment_id, status, photo)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.FirstName, a.MiddleName, a.LastName, a.Suffix, a.Gender,
		a.ContactNumber, a.Email, a.AppointmentDate, a.AppointmentTime, a.TreatmentID,
		string(a.Status), a.Photo)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	if err := r.conn(ctx).QueryRowContext(ctx, `SELECT created_at FROM appointments WHERE id = ?`, a.ID).Scan(&a.CreatedAt); err != nil {
		return fmt.Errorf("read back appointment: %w", err)
	}
	return nil
}

func (r *repoMySQL) get(ctx context.Context, query string, id int64) (*Appointment, error) {
	a, err := scanMySQL(r.conn(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment %d: %w", id, err)
	}
	return a, nil
}

func (r *repoMySQL) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	return r.get(ctx, `SELECT `+mysqlCols+` FROM appointments WHERE id = ?`, id)
}

func (r *repoMySQL) GetForUpdate(ctx context.Context, id int64) (*Appointment, error) {
	return r.get(ctx, `SELECT `+mysqlCols+` FROM appointments WHERE id = ? FOR UPDATE`, id)
}

func (r *repoMySQL) SetStatus(ctx context.Context, id int64, status Status) (int64, error) {
	res, err := r.conn(ctx).ExecContext(ctx, `UPDATE appointments SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return 0, fmt.Errorf("update appointment status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update appointment status: %w", err)
	}
	return n, nil
}

func (r *repoMySQL) MarkCompleted(ctx context.Context, id int64, patientID int64) error {
	res, err := r.conn(ctx).ExecContext(ctx,
		`UPDATE appointments SET status = ?, patient_id = ? WHERE id = ?`,
		string(StatusCompleted), patientID, id)
	if err != nil {
		return fmt.Errorf("complete appointment: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("complete appointment: %w", err)
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoMySQL) ListByStatus(ctx context.Context, order Order, statuses ...Status) ([]*Appointment, error) {
	if len(statuses) == 0 {
		return []*Appointment{}, nil
	}
	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")

	rows, err := r.conn(ctx).QueryContext(ctx,
		`SELECT `+mysqlCols+` FROM appointments WHERE status IN (`+placeholders+`) ORDER BY `+orderClause(order), args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	items := []*Appointment{}
	for rows.Next() {
		a, err := scanMySQL(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
