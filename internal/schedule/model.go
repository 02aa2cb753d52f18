package schedule

import (
	"errors"
	"fmt"
	"time"
)

// SlotStatus is the availability state of a single grid cell. Occupied slots
// additionally carry the patient holding them; in the CSV layout the patient
// id literal replaces the status word.
type SlotStatus string

const (
	StatusAvailable SlotStatus = "Available"
	StatusBlocked   SlotStatus = "Blocked"
	StatusOccupied  SlotStatus = "Occupied"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

var (
	ErrBadDate     = errors.New("date must be formatted yyyy-MM-dd")
	ErrBadTimeSlot = errors.New("time slot must be formatted HH:mm")
)

// Slot is one cell of a doctor's weekly availability grid.
type Slot struct {
	DoctorID  string
	Date      string // yyyy-MM-dd
	TimeSlot  string // HH:mm
	Status    SlotStatus
	PatientID string // set only while Status is StatusOccupied
}

type slotKey struct {
	doctorID string
	date     string
	timeSlot string
}

func (s Slot) key() slotKey {
	return slotKey{doctorID: s.DoctorID, date: s.Date, timeSlot: s.TimeSlot}
}

// NormalizeDate validates and canonicalizes a yyyy-MM-dd date string.
func NormalizeDate(s string) (string, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrBadDate, s)
	}
	return t.Format(DateLayout), nil
}

// NormalizeTimeSlot validates and canonicalizes an HH:mm slot string.
func NormalizeTimeSlot(s string) (string, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrBadTimeSlot, s)
	}
	return t.Format(TimeLayout), nil
}

// SlotTime combines a grid date and time slot into a single wall-clock time.
func SlotTime(date, timeSlot string) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+timeSlot, time.Local)
}

// LockKey is the per-slot lock key used to serialize acceptance for one cell.
func LockKey(doctorID, date, timeSlot string) string {
	return fmt.Sprintf("slot:%s:%s:%s", doctorID, date, timeSlot)
}
