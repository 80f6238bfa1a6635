package appointment

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/abejo/dental-clinic/internal/domain/patient"
	"github.com/abejo/dental-clinic/internal/platform/apierr"
	"github.com/abejo/dental-clinic/internal/platform/blobstore"
	"github.com/abejo/dental-clinic/internal/platform/datefmt"
	"github.com/abejo/dental-clinic/internal/platform/db"
)

// PatientDirectory is the part of the patient registry that completing an
// appointment writes to.
type PatientDirectory interface {
	Resolve(ctx context.Context, p *patient.Patient) (int64, bool, error)
	RecordHistory(ctx context.Context, h *patient.History) error
}

type Service struct {
	repo     Repository
	patients PatientDirectory
	tx       db.TxRunner
	photos   blobstore.PhotoStore
	logger   zerolog.Logger
}

func NewService(repo Repository, patients PatientDirectory, tx db.TxRunner, photos blobstore.PhotoStore, logger zerolog.Logger) *Service {
	return &Service{repo: repo, patients: patients, tx: tx, photos: photos, logger: logger}
}

var requiredFields = []string{"firstName", "lastName", "date", "time", "treatmentId"}

var fieldLimits = []struct {
	name  string
	value func(*CreateRequest) string
	max   int
}{
	{"firstName", func(r *CreateRequest) string { return r.FirstName }, 100},
	{"middleName", func(r *CreateRequest) string { return r.MiddleName }, 100},
	{"lastName", func(r *CreateRequest) string { return r.LastName }, 100},
	{"suffix", func(r *CreateRequest) string { return r.Suffix }, 20},
	{"gender", func(r *CreateRequest) string { return r.Gender }, 10},
	{"contactNumber", func(r *CreateRequest) string { return r.ContactNumber }, 20},
	{"email", func(r *CreateRequest) string { return r.Email }, 100},
	{"treatmentId", func(r *CreateRequest) string { return r.TreatmentID }, 100},
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

// validate checks req and returns the appointment it describes.
func validate(req *CreateRequest) (*Appointment, error) {
	for _, v := range []string{req.FirstName, req.LastName, req.Date, req.Time, req.TreatmentID} {
		if strings.TrimSpace(v) == "" {
			return nil, apierr.Validation("Missing required fields", requiredFields...)
		}
	}
	for _, f := range fieldLimits {
		if utf8.RuneCountInString(strings.TrimSpace(f.value(req))) > f.max {
			return nil, apierr.Validation(fmt.Sprintf("%s must be at most %d characters", f.name, f.max))
		}
	}

	date, ok := datefmt.Normalize(req.Date)
	if !ok {
		return nil, apierr.Validation("Invalid date format. Please use YYYY-MM-DD format.")
	}
	tod, ok := datefmt.NormalizeTime(req.Time)
	if !ok {
		return nil, apierr.Validation("Invalid time format. Please use HH:MM format.")
	}

	return &Appointment{
		FirstName:       strings.TrimSpace(req.FirstName),
		MiddleName:      optional(req.MiddleName),
		LastName:        strings.TrimSpace(req.LastName),
		Suffix:          optional(req.Suffix),
		Gender:          optional(req.Gender),
		ContactNumber:   optional(req.ContactNumber),
		Email:           optional(req.Email),
		AppointmentDate: date,
		AppointmentTime: tod,
		TreatmentID:     strings.TrimSpace(req.TreatmentID),
		Status:          StatusPending,
	}, nil
}

func photoError(err error) error {
	switch {
	case errors.Is(err, blobstore.ErrInvalidContentType):
		return apierr.Validation("Only image uploads are allowed")
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return apierr.Validation("Photo exceeds the 50 MB limit")
	case errors.Is(err, blobstore.ErrMissingFileName):
		return apierr.Validation("Photo file name is required")
	}
	return err
}

// Create validates and books a pending appointment. The photo, when given,
// is stored first and removed again if the insert fails.
func (s *Service) Create(ctx context.Context, req CreateRequest, photo *multipart.FileHeader) (*Appointment, error) {
	a, err := validate(&req)
	if err != nil {
		return nil, err
	}

	if photo != nil {
		if s.photos == nil {
			return nil, fmt.Errorf("photo storage is not configured")
		}
		name, err := blobstore.SaveUpload(ctx, s.photos, photo)
		if err != nil {
			return nil, photoError(err)
		}
		a.Photo = &name
	}

	if err := s.repo.Create(ctx, a); err != nil {
		if a.Photo != nil {
			if derr := s.photos.Delete(ctx, *a.Photo); derr != nil {
				s.logger.Warn().Err(derr).Str("photo", *a.Photo).Msg("remove orphaned photo")
			}
		}
		return nil, err
	}

	created, err := s.repo.GetByID(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("appointment_id", created.ID).Str("date", created.AppointmentDate).Msg("appointment booked")
	return present(created), nil
}

// present fills the derived fields and normalizes the date for output.
func present(a *Appointment) *Appointment {
	if d, ok := datefmt.Normalize(a.AppointmentDate); ok {
		a.AppointmentDate = d
	}
	a.FullName = patient.FullName(a.FirstName, a.MiddleName, a.LastName)
	return a
}

func (s *Service) Get(ctx context.Context, id int64) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apierr.NotFound("Appointment not found")
	}
	if err != nil {
		return nil, err
	}
	return present(a), nil
}

func (s *Service) Confirm(ctx context.Context, id int64) (*TransitionResult, error) {
	return s.setStatus(ctx, id, StatusConfirmed)
}

func (s *Service) Cancel(ctx context.Context, id int64) (*TransitionResult, error) {
	return s.setStatus(ctx, id, StatusCancelled)
}

func (s *Service) setStatus(ctx context.Context, id int64, target Status) (*TransitionResult, error) {
	res := &TransitionResult{AppointmentID: id, Status: target}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.lock(ctx, id)
		if err != nil {
			return err
		}
		res.Outcome = Transition(a.Status, target)
		switch res.Outcome {
		case Noop:
			return nil
		case Invalid:
			return conflict(a.Status, target)
		}
		res.AffectedRows, err = s.repo.SetStatus(ctx, id, target)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("appointment_id", id).Str("status", string(target)).
		Str("outcome", res.Outcome.String()).Msg("appointment status changed")
	return res, nil
}

func (s *Service) lock(ctx context.Context, id int64) (*Appointment, error) {
	a, err := s.repo.GetForUpdate(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apierr.NotFound("Appointment not found")
	}
	return a, err
}

var verbs = map[Status]string{
	StatusConfirmed: "confirm",
	StatusCompleted: "complete",
	StatusCancelled: "cancel",
}

func conflict(from, to Status) error {
	return apierr.Conflict(fmt.Sprintf("Cannot %s an appointment that is %s", verbs[to], from))
}

// Complete marks a confirmed appointment completed. In one transaction it
// attaches the appointment to a matching patient, creating one from the
// booking snapshot when none exists, and appends the treatment history row.
func (s *Service) Complete(ctx context.Context, id int64) (*CompleteResult, error) {
	res := &CompleteResult{AppointmentID: id}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.lock(ctx, id)
		if err != nil {
			return err
		}
		date, ok := datefmt.Normalize(a.AppointmentDate)
		if !ok {
			return fmt.Errorf("appointment %d has an unreadable date %q", id, a.AppointmentDate)
		}
		res.AppointmentDate = date

		res.Outcome = Transition(a.Status, StatusCompleted)
		switch res.Outcome {
		case Noop:
			if a.PatientID != nil {
				res.PatientID = *a.PatientID
			}
			return nil
		case Invalid:
			return conflict(a.Status, StatusCompleted)
		}

		res.PatientID, res.PatientCreated, err = s.patients.Resolve(ctx, &patient.Patient{
			FirstName:     a.FirstName,
			MiddleName:    a.MiddleName,
			LastName:      a.LastName,
			Suffix:        a.Suffix,
			Gender:        a.Gender,
			ContactNumber: a.ContactNumber,
			Email:         a.Email,
			Photo:         a.Photo,
		})
		if err != nil {
			return fmt.Errorf("resolve patient: %w", err)
		}

		if err := s.repo.MarkCompleted(ctx, id, res.PatientID); err != nil {
			return err
		}

		apptID := id
		return s.patients.RecordHistory(ctx, &patient.History{
			PatientID:     res.PatientID,
			AppointmentID: &apptID,
			TreatmentDate: date,
			TreatmentTime: a.AppointmentTime,
			Treatment:     a.TreatmentID,
			Status:        patient.HistoryCompleted,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("appointment_id", id).Int64("patient_id", res.PatientID).
		Bool("patient_created", res.PatientCreated).Str("outcome", res.Outcome.String()).
		Msg("appointment completed")
	return res, nil
}

func (s *Service) list(ctx context.Context, order Order, statuses ...Status) ([]*Appointment, error) {
	items, err := s.repo.ListByStatus(ctx, order, statuses...)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Appointment{}
	}
	for _, a := range items {
		present(a)
	}
	return items, nil
}

// ListPending returns appointments awaiting confirmation, newest first.
func (s *Service) ListPending(ctx context.Context) ([]*Appointment, error) {
	return s.list(ctx, OrderNewest, StatusPending)
}

// ListConfirmed returns confirmed appointments by date, then time.
func (s *Service) ListConfirmed(ctx context.Context) ([]*Appointment, error) {
	return s.list(ctx, OrderChronological, StatusConfirmed)
}

// Schedule returns confirmed and completed appointments as schedule rows.
func (s *Service) Schedule(ctx context.Context) ([]*ScheduleRow, error) {
	items, err := s.list(ctx, OrderChronological, StatusConfirmed, StatusCompleted)
	if err != nil {
		return nil, err
	}
	rows := make([]*ScheduleRow, 0, len(items))
	for _, a := range items {
		rows = append(rows, &ScheduleRow{
			Date:    a.AppointmentDate,
			Type:    a.TreatmentID,
			Patient: a.FullName,
			Time:    a.AppointmentTime,
			Status:  a.Status,
		})
	}
	return rows, nil
}
