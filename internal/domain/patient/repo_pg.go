package patient

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

const patientCols = `p.id, p.first_name, p.middle_name, p.last_name, p.suffix, p.gender,
	p.contact_number, p.email, p.photo, p.created_at`

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (first_name, middle_name, last_name, suffix, gender, contact_number, email, photo)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, created_at`,
		p.FirstName, p.MiddleName, p.LastName, p.Suffix, p.Gender,
		p.ContactNumber, p.Email, p.Photo).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *repoPG) FindByIdentity(ctx context.Context, ident Identity) (int64, bool, error) {
	if _, err := r.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ident.LockKey()); err != nil {
		return 0, false, fmt.Errorf("lock patient identity: %w", err)
	}

	var id int64
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id FROM patients
		WHERE first_name = $1 AND last_name = $2 AND contact_number = $3
		ORDER BY id LIMIT 1`,
		ident.FirstName, ident.LastName, ident.ContactNumber).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find patient: %w", err)
	}
	return id, true, nil
}

func (r *repoPG) List(ctx context.Context) ([]*ListRow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+patientCols+`, latest.treatment, to_char(latest.treatment_date, 'YYYY-MM-DD')
		FROM patients p
		LEFT JOIN LATERAL (
			SELECT ph.treatment, ph.treatment_date
			FROM patient_history ph
			WHERE ph.patient_id = p.id
			ORDER BY ph.treatment_date DESC, ph.treatment_time DESC, ph.id DESC
			LIMIT 1
		) latest ON true
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

func (r *repoPG) AddHistory(ctx context.Context, h *History) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_history (patient_id, appointment_id, treatment_date, treatment_time, treatment, status)
		VALUES ($1, $2, $3::date, $4::time, $5, $6)
		RETURNING id, created_at`,
		h.PatientID, h.AppointmentID, h.TreatmentDate, h.TreatmentTime, h.Treatment, h.Status).
		Scan(&h.ID, &h.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert patient history: %w", err)
	}
	return nil
}

func (r *repoPG) ListHistory(ctx context.Context) ([]*HistoryRow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT ph.id, ph.patient_id, ph.appointment_id,
			to_char(ph.treatment_date, 'YYYY-MM-DD'), to_char(ph.treatment_time, 'HH24:MI:SS'),
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
