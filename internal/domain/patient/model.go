package patient

import (
	"strings"
	"time"
)

// History statuses.
const (
	HistoryCompleted = "completed"
	HistoryCancelled = "cancelled"
)

// Patient maps to the patients table. Rows are created when an appointment
// completes for someone not yet on file and are never updated afterwards.
type Patient struct {
	ID            int64     `db:"id" json:"id"`
	FirstName     string    `db:"first_name" json:"firstName"`
	MiddleName    *string   `db:"middle_name" json:"middleName"`
	LastName      string    `db:"last_name" json:"lastName"`
	Suffix        *string   `db:"suffix" json:"suffix"`
	Gender        *string   `db:"gender" json:"gender"`
	ContactNumber *string   `db:"contact_number" json:"contactNumber"`
	Email         *string   `db:"email" json:"email"`
	Photo         *string   `db:"photo" json:"photo"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// Identity is the tuple used to decide whether an appointment belongs to a
// patient already on file.
type Identity struct {
	FirstName     string
	LastName      string
	ContactNumber *string
}

// Identity returns p's matching key.
func (p *Patient) Identity() Identity {
	return Identity{FirstName: p.FirstName, LastName: p.LastName, ContactNumber: p.ContactNumber}
}

// Matchable reports whether the identity can equal any stored row. A missing
// contact number compares as SQL NULL and never matches.
func (i Identity) Matchable() bool { return i.ContactNumber != nil }

// LockKey is the string hashed into the per-identity lock taken while
// resolving a patient.
func (i Identity) LockKey() string {
	contact := ""
	if i.ContactNumber != nil {
		contact = *i.ContactNumber
	}
	return "patient:" + i.FirstName + "\x1f" + i.LastName + "\x1f" + contact
}

// ListRow is a patient with the most recent treatment on file.
type ListRow struct {
	Patient
	FullName          string  `json:"fullName"`
	SelectedTreatment *string `json:"selectedTreatment"`
	AppointmentDate   *string `json:"appointmentDate"`
}

// History maps to patient_history. Exactly one row is written per completed
// appointment.
type History struct {
	ID            int64     `db:"id" json:"id"`
	PatientID     int64     `db:"patient_id" json:"patientId"`
	AppointmentID *int64    `db:"appointment_id" json:"appointmentId"`
	TreatmentDate string    `db:"treatment_date" json:"treatmentDate"`
	TreatmentTime string    `db:"treatment_time" json:"treatmentTime"`
	Treatment     string    `db:"treatment" json:"treatment"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// HistoryRow is a history entry with the patient's display name.
type HistoryRow struct {
	History
	PatientName string `json:"patientName"`
}

// FullName joins the name parts with single spaces, skipping an empty middle
// name.
func FullName(first string, middle *string, last string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{first, deref(middle), last} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
