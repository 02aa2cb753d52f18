package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// Store persists the full grid. Every mutating Grid operation writes through
// synchronously before returning.
type Store interface {
	Load() ([]Slot, error)
	Save(slots []Slot) error
}

// Grid tracks, per doctor, a sparse calendar of date and time slot to
// availability state, and answers booking operations against it.
//
// State transitions are strict: a slot becomes Occupied only from Available,
// returns to Available only via Release, and Blocked never overlaps Occupied.
// Invalid transitions are reported as a false first return value with no side
// effect; errors are reserved for persistence failures.
type Grid struct {
	store Store
	log   *logrus.Logger
	slots map[slotKey]*Slot
}

func NewGrid(store Store, log *logrus.Logger) (*Grid, error) {
	loaded, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load schedule grid: %w", err)
	}

	g := &Grid{
		store: store,
		log:   log,
		slots: make(map[slotKey]*Slot, len(loaded)),
	}
	for i := range loaded {
		s := loaded[i]
		g.slots[s.key()] = &s
	}

	return g, nil
}

// Add registers a new grid cell, used at schedule-initialization time.
// Adding an already-present cell is rejected.
func (g *Grid) Add(slot Slot) error {
	if _, ok := g.slots[slot.key()]; ok {
		return fmt.Errorf("slot %s %s %s already exists", slot.DoctorID, slot.Date, slot.TimeSlot)
	}
	if slot.Status == "" {
		slot.Status = StatusAvailable
	}

	g.slots[slot.key()] = &slot
	if err := g.persist(); err != nil {
		delete(g.slots, slot.key())
		return err
	}
	return nil
}

// IsAvailable reports whether the slot exists and is open for booking.
// A missing slot is not available.
func (g *Grid) IsAvailable(doctorID, date, timeSlot string) bool {
	s, ok := g.slots[slotKey{doctorID, date, timeSlot}]
	return ok && s.Status == StatusAvailable
}

// Book moves an Available slot to Occupied for the given patient. It returns
// false with no side effect when the slot is missing, Blocked, or already
// occupied.
func (g *Grid) Book(doctorID, date, timeSlot, patientID string) (bool, error) {
	s, ok := g.slots[slotKey{doctorID, date, timeSlot}]
	if !ok || s.Status != StatusAvailable {
		return false, nil
	}

	s.Status = StatusOccupied
	s.PatientID = patientID
	if err := g.persist(); err != nil {
		s.Status = StatusAvailable
		s.PatientID = ""
		return false, err
	}

	return true, nil
}

// Release vacates an occupied slot. It returns false when the slot is missing
// or not currently occupied.
func (g *Grid) Release(doctorID, date, timeSlot string) (bool, error) {
	s, ok := g.slots[slotKey{doctorID, date, timeSlot}]
	if !ok || s.Status != StatusOccupied {
		return false, nil
	}

	prev := s.PatientID
	s.Status = StatusAvailable
	s.PatientID = ""
	if err := g.persist(); err != nil {
		s.Status = StatusOccupied
		s.PatientID = prev
		return false, err
	}

	return true, nil
}

// SetAvailable reopens a Blocked slot. Occupied slots must be released, not
// force-set, so the call is a no-op for them.
func (g *Grid) SetAvailable(doctorID, date, timeSlot string) (bool, error) {
	s, ok := g.slots[slotKey{doctorID, date, timeSlot}]
	if !ok || s.Status != StatusBlocked {
		if ok && s.Status == StatusOccupied {
			g.log.WithFields(logrus.Fields{
				"doctor_id": doctorID,
				"date":      date,
				"time_slot": timeSlot,
			}).Warn("refusing to set occupied slot available")
		}
		return false, nil
	}

	s.Status = StatusAvailable
	if err := g.persist(); err != nil {
		s.Status = StatusBlocked
		return false, err
	}

	return true, nil
}

// SetUnavailable blocks an Available slot. Blocked and occupied slots are
// left untouched.
func (g *Grid) SetUnavailable(doctorID, date, timeSlot string) (bool, error) {
	s, ok := g.slots[slotKey{doctorID, date, timeSlot}]
	if !ok || s.Status != StatusAvailable {
		return false, nil
	}

	s.Status = StatusBlocked
	if err := g.persist(); err != nil {
		s.Status = StatusAvailable
		return false, err
	}

	return true, nil
}

// Occupant returns the patient currently holding the slot, if any.
func (g *Grid) Occupant(doctorID, date, timeSlot string) (string, bool) {
	s, ok := g.slots[slotKey{doctorID, date, timeSlot}]
	if !ok || s.Status != StatusOccupied {
		return "", false
	}
	return s.PatientID, true
}

// ListUpcoming returns the doctor's occupied slots strictly after the given
// time, ordered by date then time slot.
func (g *Grid) ListUpcoming(doctorID string, from time.Time) []Slot {
	var out []Slot
	for _, s := range g.slots {
		if s.DoctorID != doctorID || s.Status != StatusOccupied {
			continue
		}
		at, err := SlotTime(s.Date, s.TimeSlot)
		if err != nil {
			g.log.WithError(err).WithField("doctor_id", doctorID).
				Warn("skipping slot with unparseable date")
			continue
		}
		if at.After(from) {
			out = append(out, *s)
		}
	}

	sortSlots(out)
	return out
}

// AvailableSlots returns the doctor's open slots on a date, ordered by time
// slot, for the patient-facing availability view.
func (g *Grid) AvailableSlots(doctorID, date string) []Slot {
	var out []Slot
	for _, s := range g.slots {
		if s.DoctorID == doctorID && s.Date == date && s.Status == StatusAvailable {
			out = append(out, *s)
		}
	}

	sortSlots(out)
	return out
}

// Snapshot returns a sorted copy of every slot in the grid.
func (g *Grid) Snapshot() []Slot {
	out := make([]Slot, 0, len(g.slots))
	for _, s := range g.slots {
		out = append(out, *s)
	}
	sortSlots(out)
	return out
}

func (g *Grid) persist() error {
	if err := g.store.Save(g.Snapshot()); err != nil {
		return fmt.Errorf("persist schedule grid: %w", err)
	}
	return nil
}

func sortSlots(slots []Slot) {
	sort.Slice(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if a.DoctorID != b.DoctorID {
			return a.DoctorID < b.DoctorID
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.TimeSlot < b.TimeSlot
	})
}
