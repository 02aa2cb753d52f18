package appointment

import "time"

// Status is the lifecycle state of an appointment record. An appointment is
// born Pending or Confirmed, moves to Completed via outcome recording, and to
// Cancelled via the cancellation flow.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusConfirmed Status = "Confirmed"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

type MedicationStatus string

const (
	MedicationPending   MedicationStatus = "Pending"
	MedicationDispensed MedicationStatus = "Dispensed"
)

// Medication is one prescribed line item on a completed appointment.
type Medication struct {
	Name     string
	Quantity int
	Status   MedicationStatus
}

// Appointment is the durable record of a clinical encounter. RequestID links
// back to the originating appointment request; it is empty for walk-in
// entries created directly against the store.
type Appointment struct {
	ID                string
	RequestID         string
	PatientID         string
	DoctorID          string
	DateTime          time.Time
	Status            Status
	ConsultationNotes string
	ServiceProvided   string
	Medications       []Medication
}

// CreateParams carries the fields of a new appointment record. Status
// defaults to Pending when empty.
type CreateParams struct {
	RequestID string
	PatientID string
	DoctorID  string
	DateTime  time.Time
	Status    Status
}

// Filter narrows List results; empty fields match everything.
type Filter struct {
	PatientID string
	DoctorID  string
	Status    Status
}

func (f Filter) matches(a Appointment) bool {
	if f.PatientID != "" && a.PatientID != f.PatientID {
		return false
	}
	if f.DoctorID != "" && a.DoctorID != f.DoctorID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	return true
}
