package appointment

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateTimeLayout is the appointmentDateTime format in the legacy CSV layout.
const DateTimeLayout = "2006-01-02 15:04"

// CSVRepository persists appointments as appointment.csv. Medication lines
// are ;-joined across the medications, quantities, and medicationStatus
// columns, as in the legacy files. The requestId column is appended to the
// legacy layout to carry the foreign key to the originating request.
type CSVRepository struct {
	path         string
	appointments map[string]*Appointment
	order        []string
}

var appointmentHeader = []string{
	"appointmentId", "patientId", "doctorId", "appointmentDateTime", "status",
	"consultationNotes", "serviceProvided", "medications", "quantities", "medicationStatus",
	"requestId",
}

func NewCSVRepository(dataDir string) (*CSVRepository, error) {
	r := &CSVRepository{
		path:         filepath.Join(dataDir, "appointment.csv"),
		appointments: make(map[string]*Appointment),
	}
	if err := r.load(); err != nil {
		return nil, fmt.Errorf("load appointment store: %w", err)
	}
	return r, nil
}

func (r *CSVRepository) Create(ctx context.Context, params CreateParams) (*Appointment, error) {
	status := params.Status
	if status == "" {
		status = StatusPending
	}

	a := &Appointment{
		ID:        uuid.NewString(),
		RequestID: params.RequestID,
		PatientID: params.PatientID,
		DoctorID:  params.DoctorID,
		DateTime:  params.DateTime,
		Status:    status,
	}

	r.appointments[a.ID] = a
	r.order = append(r.order, a.ID)
	if err := r.persist(); err != nil {
		delete(r.appointments, a.ID)
		r.order = r.order[:len(r.order)-1]
		return nil, err
	}

	out := cloneAppointment(a)
	return &out, nil
}

func (r *CSVRepository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneAppointment(a)
	return &out, nil
}

func (r *CSVRepository) GetByRequestID(ctx context.Context, requestID string) (*Appointment, error) {
	for _, a := range r.appointments {
		if a.RequestID != "" && a.RequestID == requestID {
			out := cloneAppointment(a)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *CSVRepository) UpdateStatus(ctx context.Context, id string, from, to Status) (*Appointment, error) {
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != from {
		return nil, fmt.Errorf("%w: %s is %s, not %s", ErrInvalidTransition, id, a.Status, from)
	}

	a.Status = to
	if err := r.persist(); err != nil {
		a.Status = from
		return nil, err
	}

	out := cloneAppointment(a)
	return &out, nil
}

func (r *CSVRepository) RecordOutcome(ctx context.Context, id string, notes, service string, meds []Medication) (*Appointment, error) {
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != StatusConfirmed {
		return nil, fmt.Errorf("%w: %s is %s, outcome requires Confirmed", ErrInvalidTransition, id, a.Status)
	}

	prev := cloneAppointment(a)
	a.Status = StatusCompleted
	a.ConsultationNotes = notes
	a.ServiceProvided = service
	a.Medications = append([]Medication(nil), meds...)
	if err := r.persist(); err != nil {
		*a = prev
		return nil, err
	}

	out := cloneAppointment(a)
	return &out, nil
}

func (r *CSVRepository) List(ctx context.Context, filter Filter) ([]Appointment, error) {
	var out []Appointment
	for _, a := range r.appointments {
		if filter.matches(*a) {
			out = append(out, cloneAppointment(a))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateTime.Equal(out[j].DateTime) {
			return out[i].DateTime.Before(out[j].DateTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func cloneAppointment(a *Appointment) Appointment {
	out := *a
	out.Medications = append([]Medication(nil), a.Medications...)
	return out
}

func (r *CSVRepository) load() error {
	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", r.path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = len(appointmentHeader)

	if _, err := cr.Read(); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("read %s header: %w", r.path, err)
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", r.path, err)
		}

		a, err := appointmentFromRecord(rec)
		if err != nil {
			return fmt.Errorf("parse %s: %w", r.path, err)
		}
		r.appointments[a.ID] = a
		r.order = append(r.order, a.ID)
	}

	return nil
}

func (r *CSVRepository) persist() error {
	tmp, err := os.CreateTemp(filepath.Dir(r.path), "appointment-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(appointmentHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s header: %w", r.path, err)
	}

	for _, id := range r.order {
		if err := w.Write(appointmentToRecord(r.appointments[id])); err != nil {
			tmp.Close()
			return fmt.Errorf("write %s: %w", r.path, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush %s: %w", r.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("replace %s: %w", r.path, err)
	}
	return nil
}

func appointmentToRecord(a *Appointment) []string {
	names := make([]string, len(a.Medications))
	quantities := make([]string, len(a.Medications))
	statuses := make([]string, len(a.Medications))
	for i, m := range a.Medications {
		names[i] = m.Name
		quantities[i] = strconv.Itoa(m.Quantity)
		statuses[i] = string(m.Status)
	}

	return []string{
		a.ID,
		a.PatientID,
		a.DoctorID,
		a.DateTime.Format(DateTimeLayout),
		string(a.Status),
		a.ConsultationNotes,
		a.ServiceProvided,
		strings.Join(names, ";"),
		strings.Join(quantities, ";"),
		strings.Join(statuses, ";"),
		a.RequestID,
	}
}

func appointmentFromRecord(rec []string) (*Appointment, error) {
	at, err := time.ParseInLocation(DateTimeLayout, rec[3], time.Local)
	if err != nil {
		return nil, fmt.Errorf("appointment %s: bad dateTime %q: %w", rec[0], rec[3], err)
	}

	a := &Appointment{
		ID:                rec[0],
		PatientID:         rec[1],
		DoctorID:          rec[2],
		DateTime:          at,
		Status:            Status(rec[4]),
		ConsultationNotes: rec[5],
		ServiceProvided:   rec[6],
		RequestID:         rec[10],
	}

	if rec[7] != "" {
		names := strings.Split(rec[7], ";")
		quantities := strings.Split(rec[8], ";")
		statuses := strings.Split(rec[9], ";")
		if len(quantities) != len(names) || len(statuses) != len(names) {
			return nil, fmt.Errorf("appointment %s: mismatched medication columns", rec[0])
		}
		for i, name := range names {
			qty, err := strconv.Atoi(quantities[i])
			if err != nil {
				return nil, fmt.Errorf("appointment %s: bad quantity %q: %w", rec[0], quantities[i], err)
			}
			a.Medications = append(a.Medications, Medication{
				Name:     name,
				Quantity: qty,
				Status:   MedicationStatus(statuses[i]),
			})
		}
	}

	return a, nil
}
