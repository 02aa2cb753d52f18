package resolution

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Event types recorded in the journal. Every AcceptBegin is closed by either
// AcceptCommit or AcceptAbort; an open begin at startup means the sequence
// crashed in the gap and recovery must undo it. The rest are audit records.
const (
	EventAcceptBegin          = "ACCEPT_BEGIN"
	EventAcceptCommit         = "ACCEPT_COMMIT"
	EventAcceptAbort          = "ACCEPT_ABORT"
	EventRequestDeclined      = "REQUEST_DECLINED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventRequestSwept         = "REQUEST_SWEPT"
	EventOutcomeRecorded      = "OUTCOME_RECORDED"
)

type Event struct {
	Type          string
	RequestID     string
	AppointmentID string
	DoctorID      string
	Date          string
	TimeSlot      string
	PatientID     string
	CreatedAt     time.Time
}

// Journal is the append-only intent and audit log, persisted as events.csv.
// Unlike the grid and ledger stores it never rewrites the file; records are
// appended one at a time.
type Journal struct {
	path string
}

var eventHeader = []string{"eventType", "requestId", "appointmentId", "doctorId", "date", "timeSlot", "patientId", "createdAt"}

func NewJournal(dataDir string) *Journal {
	return &Journal{path: filepath.Join(dataDir, "events.csv")}
}

func (j *Journal) Append(ev Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", j.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", j.path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(eventHeader); err != nil {
			return fmt.Errorf("write %s header: %w", j.path, err)
		}
	}

	rec := []string{
		ev.Type, ev.RequestID, ev.AppointmentID,
		ev.DoctorID, ev.Date, ev.TimeSlot, ev.PatientID,
		ev.CreatedAt.Format(time.RFC3339),
	}
	if err := w.Write(rec); err != nil {
		return fmt.Errorf("append %s: %w", j.path, err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", j.path, err)
	}
	return f.Sync()
}

func (j *Journal) Load() ([]Event, error) {
	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", j.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(eventHeader)

	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s header: %w", j.path, err)
	}

	var events []Event
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", j.path, err)
		}

		at, err := time.Parse(time.RFC3339, rec[7])
		if err != nil {
			return nil, fmt.Errorf("%s: bad createdAt %q: %w", j.path, rec[7], err)
		}

		events = append(events, Event{
			Type:          rec[0],
			RequestID:     rec[1],
			AppointmentID: rec[2],
			DoctorID:      rec[3],
			Date:          rec[4],
			TimeSlot:      rec[5],
			PatientID:     rec[6],
			CreatedAt:     at,
		})
	}

	return events, nil
}
