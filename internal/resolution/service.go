package resolution

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/carewellhq/hospital-scheduling/internal/appointment"
	"github.com/carewellhq/hospital-scheduling/internal/inventory"
	"github.com/carewellhq/hospital-scheduling/internal/lock"
	"github.com/carewellhq/hospital-scheduling/internal/request"
	"github.com/carewellhq/hospital-scheduling/internal/schedule"
)

var (
	ErrSlotUnavailable   = errors.New("slot is not available")
	ErrUnknownMedication = errors.New("medication not present in inventory")
)

// Grid is the slice of the schedule grid the resolution service drives.
type Grid interface {
	Book(doctorID, date, timeSlot, patientID string) (bool, error)
	Release(doctorID, date, timeSlot string) (bool, error)
	Occupant(doctorID, date, timeSlot string) (string, bool)
}

// Ledger is the slice of the request ledger the resolution service drives.
type Ledger interface {
	GetByID(id string) (*request.Request, error)
	UpdateStatus(id string, to request.Status) (*request.Request, error)
	ListPendingBefore(date string) ([]request.Request, error)
}

// Service orchestrates the schedule grid, the request ledger, and the
// appointment record store to resolve appointment requests, keeping the
// three consistent.
type Service struct {
	grid    Grid
	ledger  Ledger
	repo    appointment.Repository
	inv     *inventory.Store
	journal *Journal
	locker  lock.Locker
	log     *logrus.Logger
}

func NewService(grid Grid, ledger Ledger, repo appointment.Repository, inv *inventory.Store, journal *Journal, locker lock.Locker, log *logrus.Logger) *Service {
	return &Service{
		grid:    grid,
		ledger:  ledger,
		repo:    repo,
		inv:     inv,
		journal: journal,
		locker:  locker,
		log:     log,
	}
}

// AcceptRequest books the requested slot, creates a Confirmed appointment,
// and marks the request Accepted. The sequence runs under the per-slot lock;
// when multiple pending requests target the same slot the first successful
// booking wins and later acceptances fail with ErrSlotUnavailable. If any
// step after the booking fails, the booking is rolled back so no slot stays
// locked without a matching appointment.
func (s *Service) AcceptRequest(ctx context.Context, requestID string) (*appointment.Appointment, error) {
	req, err := s.ledger.GetByID(requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != request.StatusPending {
		return nil, request.ErrAlreadyResolved
	}

	var created *appointment.Appointment

	err = s.locker.WithSlotLock(ctx, schedule.LockKey(req.DoctorID, req.Date, req.TimeSlot), func(lockCtx context.Context) error {
		// The intent record must be durable before the grid mutates, so a
		// crash inside the sequence is recoverable.
		if err := s.journal.Append(acceptEvent(EventAcceptBegin, req, "")); err != nil {
			return fmt.Errorf("journal accept intent: %w", err)
		}

		booked, err := s.grid.Book(req.DoctorID, req.Date, req.TimeSlot, req.PatientID)
		if err != nil {
			return fmt.Errorf("book slot: %w", err)
		}
		if !booked {
			s.audit(acceptEvent(EventAcceptAbort, req, ""))
			return ErrSlotUnavailable
		}

		at, err := schedule.SlotTime(req.Date, req.TimeSlot)
		if err != nil {
			s.rollbackBooking(req)
			s.audit(acceptEvent(EventAcceptAbort, req, ""))
			return fmt.Errorf("compose appointment time: %w", err)
		}

		appt, err := s.repo.Create(lockCtx, appointment.CreateParams{
			RequestID: req.ID,
			PatientID: req.PatientID,
			DoctorID:  req.DoctorID,
			DateTime:  at,
			Status:    appointment.StatusConfirmed,
		})
		if err != nil {
			s.rollbackBooking(req)
			s.audit(acceptEvent(EventAcceptAbort, req, ""))
			return fmt.Errorf("create appointment: %w", err)
		}

		if _, err := s.ledger.UpdateStatus(req.ID, request.StatusAccepted); err != nil {
			if _, cancelErr := s.repo.UpdateStatus(lockCtx, appt.ID, appointment.StatusConfirmed, appointment.StatusCancelled); cancelErr != nil {
				s.log.WithError(cancelErr).WithField("appointment_id", appt.ID).
					Error("failed to cancel appointment while rolling back acceptance")
			}
			s.rollbackBooking(req)
			s.audit(acceptEvent(EventAcceptAbort, req, ""))
			return fmt.Errorf("mark request accepted: %w", err)
		}

		created = appt

		if err := s.journal.Append(acceptEvent(EventAcceptCommit, req, appt.ID)); err != nil {
			// The accept itself committed; recovery reconciles from the
			// ledger when the commit record is missing.
			s.log.WithError(err).WithField("request_id", req.ID).
				Warn("failed to journal accept commit")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// DeclineRequest marks a pending request Declined. The grid is untouched:
// booking only ever happens on acceptance, so a still-pending request holds
// no slot.
func (s *Service) DeclineRequest(ctx context.Context, requestID string) (*request.Request, error) {
	req, err := s.ledger.GetByID(requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != request.StatusPending {
		return nil, request.ErrAlreadyResolved
	}

	updated, err := s.ledger.UpdateStatus(requestID, request.StatusDeclined)
	if err != nil {
		return nil, err
	}

	s.audit(acceptEvent(EventRequestDeclined, req, ""))
	return updated, nil
}

// CancelAppointment undoes an accepted booking: the appointment goes to
// Cancelled, the slot is released, and the originating ledger entry is
// marked Cancelled.
func (s *Service) CancelAppointment(ctx context.Context, appointmentID string) (*appointment.Appointment, error) {
	appt, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, appointmentID, appointment.StatusConfirmed, appointment.StatusCancelled)
	if err != nil {
		return nil, err
	}

	date := appt.DateTime.Format(schedule.DateLayout)
	timeSlot := appt.DateTime.Format(schedule.TimeLayout)
	if _, err := s.grid.Release(appt.DoctorID, date, timeSlot); err != nil {
		return nil, fmt.Errorf("release slot: %w", err)
	}

	if appt.RequestID != "" {
		if _, err := s.ledger.UpdateStatus(appt.RequestID, request.StatusCancelled); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"appointment_id": appointmentID,
				"request_id":     appt.RequestID,
			}).Warn("failed to cancel originating request")
		}
	}

	s.audit(Event{
		Type:          EventAppointmentCancelled,
		RequestID:     appt.RequestID,
		AppointmentID: appt.ID,
		DoctorID:      appt.DoctorID,
		Date:          date,
		TimeSlot:      timeSlot,
		PatientID:     appt.PatientID,
	})
	return updated, nil
}

// RecordOutcome completes a confirmed appointment with the encounter
// outcome. Every prescribed medication must exist in the inventory list.
func (s *Service) RecordOutcome(ctx context.Context, appointmentID, notes, service string, meds []appointment.Medication) (*appointment.Appointment, error) {
	for _, m := range meds {
		if !s.inv.Has(m.Name) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMedication, m.Name)
		}
	}

	updated, err := s.repo.RecordOutcome(ctx, appointmentID, notes, service, meds)
	if err != nil {
		return nil, err
	}

	s.audit(Event{
		Type:          EventOutcomeRecorded,
		RequestID:     updated.RequestID,
		AppointmentID: updated.ID,
		DoctorID:      updated.DoctorID,
		PatientID:     updated.PatientID,
	})
	return updated, nil
}

// SweepStaleRequests cancels every request still Pending after its requested
// date has passed. Individual failures are logged and skipped so one bad
// record cannot stall the sweep.
func (s *Service) SweepStaleRequests(ctx context.Context, today string) (int, error) {
	stale, err := s.ledger.ListPendingBefore(today)
	if err != nil {
		return 0, fmt.Errorf("list stale requests: %w", err)
	}

	swept := 0
	for _, req := range stale {
		if _, err := s.ledger.UpdateStatus(req.ID, request.StatusCancelled); err != nil {
			s.log.WithError(err).WithField("request_id", req.ID).
				Warn("failed to sweep stale request")
			continue
		}
		r := req
		s.audit(acceptEvent(EventRequestSwept, &r, ""))
		swept++
	}

	return swept, nil
}

// Recover replays the journal on startup and undoes accept sequences that
// began but were never closed by a commit or abort record: a crash between
// the booking and the ledger update would otherwise leave the slot occupied
// with no accepted request. Events are replayed in file order so a retried
// acceptance (begin, abort, begin) is judged by its latest attempt.
func (s *Service) Recover(ctx context.Context) error {
	events, err := s.journal.Load()
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}

	open := make(map[string]Event)
	for _, ev := range events {
		switch ev.Type {
		case EventAcceptBegin:
			open[ev.RequestID] = ev
		case EventAcceptCommit, EventAcceptAbort:
			delete(open, ev.RequestID)
		}
	}

	for id, ev := range open {

		req, err := s.ledger.GetByID(id)
		if err != nil {
			s.log.WithError(err).WithField("request_id", id).
				Warn("journal names unknown request, skipping")
			continue
		}
		if req.Status != request.StatusPending {
			// The sequence finished; only the commit record was lost.
			continue
		}

		if appt, err := s.repo.GetByRequestID(ctx, id); err == nil && appt.Status == appointment.StatusConfirmed {
			if _, err := s.repo.UpdateStatus(ctx, appt.ID, appointment.StatusConfirmed, appointment.StatusCancelled); err != nil {
				return fmt.Errorf("recovery: cancel orphaned appointment %s: %w", appt.ID, err)
			}
		}

		if occupant, ok := s.grid.Occupant(ev.DoctorID, ev.Date, ev.TimeSlot); ok && occupant == req.PatientID {
			if _, err := s.grid.Release(ev.DoctorID, ev.Date, ev.TimeSlot); err != nil {
				return fmt.Errorf("recovery: release slot for request %s: %w", id, err)
			}
			s.log.WithFields(logrus.Fields{
				"request_id": id,
				"doctor_id":  ev.DoctorID,
				"date":       ev.Date,
				"time_slot":  ev.TimeSlot,
			}).Info("released orphaned booking from interrupted acceptance")
		}
	}

	return nil
}

func (s *Service) rollbackBooking(req *request.Request) {
	if _, err := s.grid.Release(req.DoctorID, req.Date, req.TimeSlot); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"request_id": req.ID,
			"doctor_id":  req.DoctorID,
			"date":       req.Date,
			"time_slot":  req.TimeSlot,
		}).Error("failed to roll back booking, slot may be orphaned until recovery")
	}
}

// audit appends a best-effort journal record; failures are logged, never
// propagated, matching the audit-trail role of these events.
func (s *Service) audit(ev Event) {
	if err := s.journal.Append(ev); err != nil {
		s.log.WithError(err).WithField("event_type", ev.Type).
			Warn("failed to append audit event")
	}
}

func acceptEvent(eventType string, req *request.Request, appointmentID string) Event {
	return Event{
		Type:          eventType,
		RequestID:     req.ID,
		AppointmentID: appointmentID,
		DoctorID:      req.DoctorID,
		Date:          req.Date,
		TimeSlot:      req.TimeSlot,
		PatientID:     req.PatientID,
	}
}
