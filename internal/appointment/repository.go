package appointment

import (
	"context"
	"errors"
)

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrInvalidTransition = errors.New("invalid appointment status transition")
)

// Repository is the canonical store of appointment records, independent of
// the request workflow.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Appointment, error)
	GetByID(ctx context.Context, id string) (*Appointment, error)

	// GetByRequestID resolves the appointment created for a request, used by
	// the cancellation flow to walk back from ledger entries.
	GetByRequestID(ctx context.Context, requestID string) (*Appointment, error)

	// UpdateStatus applies a conditional transition: it fails with
	// ErrInvalidTransition when the record is not currently in `from`.
	UpdateStatus(ctx context.Context, id string, from, to Status) (*Appointment, error)

	// RecordOutcome stores the encounter outcome on a Confirmed appointment
	// and moves it to Completed.
	RecordOutcome(ctx context.Context, id string, notes, service string, meds []Medication) (*Appointment, error)

	List(ctx context.Context, filter Filter) ([]Appointment, error)
}
