package appointment

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("appointment not found")

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id int64) (*Appointment, error)
	// GetForUpdate reads the appointment and locks its row until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*Appointment, error)
	SetStatus(ctx context.Context, id int64, status Status) (int64, error)
	MarkCompleted(ctx context.Context, id int64, patientID int64) error
	ListByStatus(ctx context.Context, order Order, statuses ...Status) ([]*Appointment, error)
}
