package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/abejo/dental-clinic/internal/platform/apierr"
	"github.com/abejo/dental-clinic/internal/platform/datefmt"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Resolve returns the id of the patient matching p's identity, creating the
// patient from p when none matches. It must run inside a transaction for
// the identity lock to hold until the caller commits.
func (s *Service) Resolve(ctx context.Context, p *Patient) (int64, bool, error) {
	if strings.TrimSpace(p.FirstName) == "" || strings.TrimSpace(p.LastName) == "" {
		return 0, false, apierr.Validation("Patient first and last name are required")
	}

	ident := p.Identity()
	if ident.Matchable() {
		id, found, err := s.repo.FindByIdentity(ctx, ident)
		if err != nil {
			return 0, false, err
		}
		if found {
			s.logger.Debug().Int64("patient_id", id).Msg("reusing existing patient")
			return id, false, nil
		}
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return 0, false, err
	}
	s.logger.Info().Int64("patient_id", p.ID).Msg("patient created")
	return p.ID, true, nil
}

// RecordHistory appends a treatment history row.
func (s *Service) RecordHistory(ctx context.Context, h *History) error {
	if h.PatientID == 0 {
		return fmt.Errorf("history requires a patient id")
	}
	switch h.Status {
	case HistoryCompleted, HistoryCancelled:
	default:
		return apierr.Validation(fmt.Sprintf("Invalid history status: %s", h.Status))
	}
	date, ok := datefmt.Normalize(h.TreatmentDate)
	if !ok {
		return apierr.Validation("Invalid date format. Please use YYYY-MM-DD format.")
	}
	h.TreatmentDate = date
	return s.repo.AddHistory(ctx, h)
}

// List returns every patient, newest first, with the latest treatment.
func (s *Service) List(ctx context.Context) ([]*ListRow, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []*ListRow{}
	}
	for _, r := range rows {
		r.FullName = FullName(r.FirstName, r.MiddleName, r.LastName)
		r.AppointmentDate = datefmt.NormalizePtr(r.AppointmentDate)
	}
	return rows, nil
}

// ListHistory returns every history row, newest treatment first.
func (s *Service) ListHistory(ctx context.Context) ([]*HistoryRow, error) {
	rows, err := s.repo.ListHistory(ctx)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []*HistoryRow{}
	}
	for _, r := range rows {
		if d, ok := datefmt.Normalize(r.TreatmentDate); ok {
			r.TreatmentDate = d
		}
	}
	return rows, nil
}
