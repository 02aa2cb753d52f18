package request

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CSVStore persists the ledger as appointment_request.csv in the legacy
// column order.
type CSVStore struct {
	path string
}

var requestHeader = []string{"RequestID", "DoctorID", "PatientID", "RequestedDate", "RequestedTimeSlot", "Status"}

func NewCSVStore(dataDir string) *CSVStore {
	return &CSVStore{path: filepath.Join(dataDir, "appointment_request.csv")}
}

func (s *CSVStore) Load() ([]Request, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(requestHeader)

	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s header: %w", s.path, err)
	}

	var requests []Request
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", s.path, err)
		}

		status, err := parseStatus(rec[5])
		if err != nil {
			return nil, fmt.Errorf("request %s: %w: %q", rec[0], err, rec[5])
		}

		requests = append(requests, Request{
			ID:        rec[0],
			DoctorID:  rec[1],
			PatientID: rec[2],
			Date:      rec[3],
			TimeSlot:  rec[4],
			Status:    status,
		})
	}

	return requests, nil
}

func (s *CSVStore) Save(requests []Request) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "appointment_request-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(requestHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s header: %w", s.path, err)
	}

	for _, r := range requests {
		rec := []string{r.ID, r.DoctorID, r.PatientID, r.Date, r.TimeSlot, string(r.Status)}
		if err := w.Write(rec); err != nil {
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
