package patient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/abejo/dental-clinic/internal/platform/db"
)

type repoMySQL struct{ db *sql.DB }

func NewRepoMySQL(sqlDB *sql.DB) Repository { return &repoMySQL{db: sqlDB} }

func (r *repoMySQL) conn(ctx context.Context) db.SQLQuerier {
	return db.SQLQuerierFrom(ctx, r.db)
}

func (r *repoMySQL) Create(ctx context.Context, p *Patient) error {
	res, err := r.conn(ctx).ExecContext(ctx, `
		INSERT INTO patients (first_name, middle_name, last_name, suffix, gender, contact_number, email, photo)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.FirstName, p.MiddleName, p.LastName, p.Suffix, p.Gender,
		p.ContactNumber, p.Email, p.Photo)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	if err := r.conn(ctx).QueryRowContext(ctx, `SELECT created_at FROM patients WHERE id = ?`, p.ID).Scan(&p.CreatedAt); err != nil {
		return fmt.Errorf("read back patient: %w", err)
	}
	return nil
}

// FindByIdentity upserts the identity's row in patient_identity_locks, which
// holds an exclusive record lock until the transaction ends. A concurrent
// transaction resolving the same identity waits there.
func (r *repoMySQL) FindByIdentity(ctx context.Context, ident Identity) (int64, bool, error) {
	if _, err := r.conn(ctx).ExecContext(ctx, `
		INSERT INTO patient_identity_locks (lock_key) VALUES (SHA2(?, 256))
		ON DUPLICATE KEY UPDATE locked_at = CURRENT_TIMESTAMP`, ident.LockKey()); err != nil {
		return 0, false, fmt.Errorf("lock patient identity: %w", err)
	}

	var id int64
	err := r.conn(ctx).QueryRowContext(ctx, `
		SELECT id FROM patients
		WHERE first_name = ? AND last_name = ? AND contact_number = ?
		ORDER BY id LIMIT 1`,
		ident.FirstName, ident.LastName, ident.ContactNumber).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find patient: %w", err)
	}
	return id, true, nil
}

func (r *repoMySQL) List(ctx context.Context) ([]*ListRow, error) {
	rows, err := r.conn(ctx).QueryContext(ctx, `
		SELECT p.id, p.first_name, p.middle_name, p.last_name, p.suffix, p.gender,
			p.contact_number, p.email, p.photo, p.created_at,
			(SELECT ph.treatment FROM patient_history ph WHERE ph.patient_id = p.id
				ORDER BY ph.treatment_date DESC, ph.treatment_time DESC, ph.id DESC LIMIT 1),
			(SELECT DATE_FORMAT(ph.treatment_date, '%Y-%m-%d') FROM patient_history ph WHERE ph.patient_id = p.id
				ORDER BY ph.treatment_date DESC, ph.treatment_time DESC, ph.id DESC LIMIT 1)
		FROM patients p
		ORDER BY p.created_at DESC, p.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	items := []*ListRow{}
	for rows.Next() {
		var lr ListRow
		p := &lr.Patient
		if err := rows.Scan(&p.ID, &p.FirstName, &p.MiddleName, &p.LastName, &p.Suffix, &p.Gender,
			&p.ContactNumber, &p.Email, &p.Photo, &p.CreatedAt,
			&lr.SelectedTreatment, &lr.AppointmentDate); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		items = append(items, &lr)
	}
	return items, rows.Err()
}

func (r *repoMySQL) AddHistory(ctx context.Context, h *History) error {
	res, err := r.conn(ctx).ExecContext(ctx, `
		INSERT INTO patient_history (patient_id, appointment_id, treatment_date, treatment_time, treatment, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		h.PatientID, h.AppointmentID, h.TreatmentDate, h.TreatmentTime, h.Treatment, h.Status)
	if err != nil {
		return fmt.Errorf("insert patient history: %w", err)
	}
	if h.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert patient history: %w", err)
	}
	if err := r.conn(ctx).QueryRowContext(ctx, `SELECT created_at FROM patient_history WHERE id = ?`, h.ID).Scan(&h.CreatedAt); err != nil {
		return fmt.Errorf("read back patient history: %w", err)
	}
	return nil
}

func (r *repoMySQL) ListHistory(ctx context.Context) ([]*HistoryRow, error) {
	rows, err := r.conn(ctx).QueryContext(ctx, `
		SELECT ph.id, ph.patient_id, ph.appointment_id,
			DATE_FORMAT(ph.treatment_date, '%Y-%m-%d'), TIME_FORMAT(ph.treatment_time, '%H:%i:%s'),
			ph.treatment, ph.status, ph.created_at,
			p.first_name, p.middle_name, p.last_name
		FROM patient_history ph
		JOIN patients p ON ph.patient_id = p.id
		ORDER BY ph.treatment_date DESC, ph.treatment_time DESC, ph.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list patient history: %w", err)
	}
	defer rows.Close()

	items := []*HistoryRow{}
	for rows.Next() {
		var (
			hr          HistoryRow
			first, last string
			middle      *string
		)
		h := &hr.History
		if err := rows.Scan(&h.ID, &h.PatientID, &h.AppointmentID, &h.TreatmentDate, &h.TreatmentTime,
			&h.Treatment, &h.Status, &h.CreatedAt, &first, &middle, &last); err != nil {
			return nil, fmt.Errorf("scan patient history: %w", err)
		}
		hr.PatientName = FullName(first, middle, last)
		items = append(items, &hr)
	}
	return items, rows.Err()
}
