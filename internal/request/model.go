package request

import "errors"

// Status is the lifecycle state of an appointment request. Transitions are
// one-directional: Pending moves to exactly one of the terminal states and
// terminal states are never re-entered.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusAccepted  Status = "Accepted"
	StatusDeclined  Status = "Declined"
	StatusCancelled Status = "Cancelled"
)

var (
	ErrNotFound        = errors.New("request not found")
	ErrAlreadyResolved = errors.New("request already resolved")
	ErrInvalidStatus   = errors.New("invalid request status")
)

// Request is a patient-submitted ask for a specific doctor, date, and time
// slot. Requests are never deleted, only status-updated.
type Request struct {
	ID        string
	PatientID string
	DoctorID  string
	Date      string // yyyy-MM-dd
	TimeSlot  string // HH:mm
	Status    Status
}

// Terminal reports whether the status admits no further transition.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusDeclined || s == StatusCancelled
}

func parseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusAccepted, StatusDeclined, StatusCancelled:
		return Status(s), nil
	default:
		return "", ErrInvalidStatus
	}
}
