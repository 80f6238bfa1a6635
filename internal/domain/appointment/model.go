package appointment

import (
	"fmt"
	"time"
)

// Status is an appointment's lifecycle state.
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

// Terminal reports whether no further transitions leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Outcome is the result of evaluating a status change.
type Outcome int

const (
	// Applied means the move is legal and changes the state.
	Applied Outcome = iota + 1
	// Noop means the appointment is already in the target state.
	Noop
	// Invalid means the move is not allowed from the current state.
	Invalid
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Noop:
		return "noop"
	case Invalid:
		return "invalid"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// Transition evaluates moving an appointment from current to target. It is
// defined for every pair of statuses.
func Transition(current, target Status) Outcome {
	if !current.Valid() || !target.Valid() {
		return Invalid
	}
	if current == target {
		return Noop
	}
	if current.Terminal() {
		return Invalid
	}
	for _, s := range allowedTransitions[current] {
		if s == target {
			return Applied
		}
	}
	return Invalid
}

// Appointment maps to the appointments table. The name and contact fields
// are a snapshot taken at booking time and are never synced with the
// patient record created on completion.
type Appointment struct {
	ID              int64     `db:"id" json:"id"`
	PatientID       *int64    `db:"patient_id" json:"patientId"`
	FirstName       string    `db:"first_name" json:"firstName"`
	MiddleName      *string   `db:"middle_name" json:"middleName"`
	LastName        string    `db:"last_name" json:"lastName"`
	Suffix          *string   `db:"suffix" json:"suffix"`
	Gender          *string   `db:"gender" json:"gender"`
	ContactNumber   *string   `db:"contact_number" json:"contactNumber"`
	Email           *string   `db:"email" json:"email"`
	AppointmentDate string    `db:"appointment_date" json:"appointmentDate"`
	AppointmentTime string    `db:"appointment_time" json:"appointmentTime"`
	TreatmentID     string    `db:"treatment_id" json:"treatmentId"`
	Status          Status    `db:"status" json:"status"`
	Photo           *string   `db:"photo" json:"photo"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`

	FullName string `db:"-" json:"fullName"`
}

// ScheduleRow is one entry of the clinic schedule.
type ScheduleRow struct {
	Date    string `json:"date"`
	Type    string `json:"type"`
	Patient string `json:"patient"`
	Time    string `json:"time"`
	Status  Status `json:"status"`
}

// CreateRequest is the booking form. It binds from JSON, urlencoded and
// multipart bodies.
type CreateRequest struct {
	FirstName     string `json:"firstName" form:"firstName"`
	MiddleName    string `json:"middleName" form:"middleName"`
	LastName      string `json:"lastName" form:"lastName"`
	Suffix        string `json:"suffix" form:"suffix"`
	Gender        string `json:"gender" form:"gender"`
	ContactNumber string `json:"contactNumber" form:"contactNumber"`
	Email         string `json:"email" form:"email"`
	Date          string `json:"date" form:"date"`
	Time          string `json:"time" form:"time"`
	TreatmentID   string `json:"treatmentId" form:"treatmentId"`
}

// TransitionResult reports the effect of Confirm or Cancel.
type TransitionResult struct {
	AppointmentID int64
	Status        Status
	Outcome       Outcome
	AffectedRows  int64
}

// CompleteResult reports the effect of Complete.
type CompleteResult struct {
	AppointmentID   int64
	PatientID       int64
	AppointmentDate string
	PatientCreated  bool
	Outcome         Outcome
}

// Order selects the sort order of a list query.
type Order int

const (
	// OrderNewest sorts by creation time, newest first.
	OrderNewest Order = iota
	// OrderChronological sorts by appointment date, then time.
	OrderChronological
)
