package request

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Store persists the full ledger. Mutations write through before returning.
type Store interface {
	Load() ([]Request, error)
	Save(requests []Request) error
}

// Ledger is the durable queue of appointment requests. Submission does not
// check slot availability; that belongs to the resolution service at
// acceptance time.
type Ledger struct {
	store    Store
	log      *logrus.Logger
	requests map[string]*Request
	order    []string // submission order, for stable persistence
}

func NewLedger(store Store, log *logrus.Logger) (*Ledger, error) {
	loaded, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load request ledger: %w", err)
	}

	l := &Ledger{
		store:    store,
		log:      log,
		requests: make(map[string]*Request, len(loaded)),
	}
	for i := range loaded {
		r := loaded[i]
		l.requests[r.ID] = &r
		l.order = append(l.order, r.ID)
	}

	return l, nil
}

// Submit records a new Pending request and returns it.
func (l *Ledger) Submit(patientID, doctorID, date, timeSlot string) (*Request, error) {
	r := &Request{
		ID:        uuid.NewString(),
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      date,
		TimeSlot:  timeSlot,
		Status:    StatusPending,
	}

	l.requests[r.ID] = r
	l.order = append(l.order, r.ID)
	if err := l.persist(); err != nil {
		delete(l.requests, r.ID)
		l.order = l.order[:len(l.order)-1]
		return nil, err
	}

	out := *r
	return &out, nil
}

// GetByID returns a copy of the request or ErrNotFound.
func (l *Ledger) GetByID(id string) (*Request, error) {
	r, ok := l.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *r
	return &out, nil
}

// ListPending returns the doctor's Pending requests, optionally bounded to
// the inclusive [from, to] date window (empty bound means unbounded), ordered
// by requested date then time slot.
func (l *Ledger) ListPending(doctorID, from, to string) ([]Request, error) {
	var out []Request
	for _, r := range l.requests {
		if r.DoctorID != doctorID || r.Status != StatusPending {
			continue
		}
		if from != "" && r.Date < from {
			continue
		}
		if to != "" && r.Date > to {
			continue
		}
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].TimeSlot < out[j].TimeSlot
	})
	return out, nil
}

// ListPendingBefore returns every Pending request, for any doctor, whose
// requested date sorts strictly before the given date. The sweeper uses this
// to cancel requests whose slot has already passed.
func (l *Ledger) ListPendingBefore(date string) ([]Request, error) {
	var out []Request
	for _, r := range l.requests {
		if r.Status == StatusPending && r.Date < date {
			out = append(out, *r)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].TimeSlot < out[j].TimeSlot
	})
	return out, nil
}

// UpdateStatus resolves a Pending request to a terminal status. It fails with
// ErrAlreadyResolved when the request is already terminal; re-resolution is
// rejected rather than overwritten.
func (l *Ledger) UpdateStatus(id string, to Status) (*Request, error) {
	if !to.Terminal() {
		return nil, fmt.Errorf("%w: cannot transition to %q", ErrInvalidStatus, to)
	}

	r, ok := l.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status.Terminal() {
		l.log.WithFields(logrus.Fields{
			"request_id": id,
			"status":     r.Status,
			"wanted":     to,
		}).Warn("rejecting re-resolution of resolved request")
		return nil, ErrAlreadyResolved
	}

	prev := r.Status
	r.Status = to
	if err := l.persist(); err != nil {
		r.Status = prev
		return nil, err
	}

	out := *r
	return &out, nil
}

func (l *Ledger) persist() error {
	all := make([]Request, 0, len(l.order))
	for _, id := range l.order {
		all = append(all, *l.requests[id])
	}
	if err := l.store.Save(all); err != nil {
		return fmt.Errorf("persist request ledger: %w", err)
	}
	return nil
}
