package schedule

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CSVStore persists the grid as schedule.csv, one row per slot. The status
// column holds "Available", "Blocked", or the occupying patient id literal,
// matching the legacy file layout.
type CSVStore struct {
	path string
}

var scheduleHeader = []string{"doctorID", "date", "timeSlot", "status"}

func NewCSVStore(dataDir string) *CSVStore {
	return &CSVStore{path: filepath.Join(dataDir, "schedule.csv")}
}

func (s *CSVStore) Load() ([]Slot, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(scheduleHeader)

	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s header: %w", s.path, err)
	}

	var slots []Slot
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", s.path, err)
		}

		slot := Slot{
			DoctorID: rec[0],
			Date:     rec[1],
			TimeSlot: rec[2],
		}
		switch rec[3] {
		case string(StatusAvailable):
			slot.Status = StatusAvailable
		case string(StatusBlocked):
			slot.Status = StatusBlocked
		default:
			slot.Status = StatusOccupied
			slot.PatientID = rec[3]
		}
		slots = append(slots, slot)
	}

	return slots, nil
}

func (s *CSVStore) Save(slots []Slot) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "schedule-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(scheduleHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s header: %w", s.path, err)
	}

	for _, slot := range slots {
		status := string(slot.Status)
		if slot.Status == StatusOccupied {
			status = slot.PatientID
		}
		if err := w.Write([]string{slot.DoctorID, slot.Date, slot.TimeSlot, status}); err != nil {
			tmp.Close()
			return fmt.Errorf("write %s: %w", s.path, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
