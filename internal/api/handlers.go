package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carewellhq/hospital-scheduling/internal/appointment"
	"github.com/carewellhq/hospital-scheduling/internal/lock"
	"github.com/carewellhq/hospital-scheduling/internal/request"
	"github.com/carewellhq/hospital-scheduling/internal/resolution"
	"github.com/carewellhq/hospital-scheduling/internal/schedule"
)

func submitRequestHandler(ledger *request.Ledger, grid *schedule.Grid) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body SubmitRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if body.PatientID == "" || body.DoctorID == "" {
			writeError(w, http.StatusBadRequest, "missing_field", "patient_id and doctor_id are required")
			return
		}

		date, err := schedule.NormalizeDate(body.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}
		timeSlot, err := schedule.NormalizeTimeSlot(body.TimeSlot)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time_slot", err.Error())
			return
		}

		// An advisory check only: the authoritative availability test happens
		// at acceptance time, inside the slot lock.
		if !grid.IsAvailable(body.DoctorID, date, timeSlot) {
			writeError(w, http.StatusConflict, "slot_unavailable", "requested slot is not open")
			return
		}

		req, err := ledger.Submit(body.PatientID, body.DoctorID, date, timeSlot)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusCreated, requestResponse(req))
	}
}

func getRequestHandler(ledger *request.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := ledger.GetByID(chi.URLParam(r, "id"))
		if err != nil {
			handleResolutionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, requestResponse(req))
	}
}

func listPendingRequestsHandler(ledger *request.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID := chi.URLParam(r, "doctorID")
		from := r.URL.Query().Get("from")
		to := r.URL.Query().Get("to")

		pending, err := ledger.ListPending(doctorID, from, to)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		out := make([]RequestResponse, 0, len(pending))
		for i := range pending {
			out = append(out, requestResponse(&pending[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func acceptRequestHandler(svc *resolution.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := svc.AcceptRequest(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleResolutionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func declineRequestHandler(svc *resolution.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := svc.DeclineRequest(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleResolutionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, requestResponse(req))
	}
}

func availableSlotsHandler(grid *schedule.Grid) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, err := schedule.NormalizeDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}
		slots := grid.AvailableSlots(chi.URLParam(r, "doctorID"), date)
		writeJSON(w, http.StatusOK, slotResponses(slots))
	}
}

func upcomingSlotsHandler(grid *schedule.Grid) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slots := grid.ListUpcoming(chi.URLParam(r, "doctorID"), time.Now())
		writeJSON(w, http.StatusOK, slotResponses(slots))
	}
}

func addSlotHandler(grid *schedule.Grid) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, body, ok := decodeSlotBody(w, r)
		if !ok {
			return
		}

		err := grid.Add(schedule.Slot{
			DoctorID: doctorID,
			Date:     body.Date,
			TimeSlot: body.TimeSlot,
			Status:   schedule.StatusAvailable,
		})
		if err != nil {
			writeError(w, http.StatusConflict, "slot_exists", err.Error())
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

func blockSlotHandler(grid *schedule.Grid) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, body, ok := decodeSlotBody(w, r)
		if !ok {
			return
		}
		toggleSlot(w, func() (bool, error) {
			return grid.SetUnavailable(doctorID, body.Date, body.TimeSlot)
		})
	}
}

func unblockSlotHandler(grid *schedule.Grid) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, body, ok := decodeSlotBody(w, r)
		if !ok {
			return
		}
		toggleSlot(w, func() (bool, error) {
			return grid.SetAvailable(doctorID, body.Date, body.TimeSlot)
		})
	}
}

func decodeSlotBody(w http.ResponseWriter, r *http.Request) (string, SlotBody, bool) {
	var body SlotBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return "", SlotBody{}, false
	}

	date, err := schedule.NormalizeDate(body.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return "", SlotBody{}, false
	}
	timeSlot, err := schedule.NormalizeTimeSlot(body.TimeSlot)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_time_slot", err.Error())
		return "", SlotBody{}, false
	}

	body.Date = date
	body.TimeSlot = timeSlot
	return chi.URLParam(r, "doctorID"), body, true
}

func toggleSlot(w http.ResponseWriter, toggle func() (bool, error)) {
	changed, err := toggle()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if !changed {
		writeError(w, http.StatusConflict, "invalid_slot_state", "slot is missing, occupied, or already in the requested state")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func getAppointmentHandler(repo appointment.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := repo.GetByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleResolutionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func listAppointmentsHandler(repo appointment.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := appointment.Filter{
			PatientID: q.Get("patient_id"),
			DoctorID:  q.Get("doctor_id"),
			Status:    appointment.Status(q.Get("status")),
		}

		appts, err := repo.List(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		out := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			out = append(out, appointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func cancelAppointmentHandler(svc *resolution.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := svc.CancelAppointment(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleResolutionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func recordOutcomeHandler(svc *resolution.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body OutcomeBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		meds := make([]appointment.Medication, 0, len(body.Medications))
		for _, m := range body.Medications {
			if m.Quantity <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_quantity", "medication quantity must be positive")
				return
			}
			meds = append(meds, appointment.Medication{
				Name:     m.Name,
				Quantity: m.Quantity,
				Status:   appointment.MedicationPending,
			})
		}

		appt, err := svc.RecordOutcome(r.Context(), chi.URLParam(r, "id"), body.ConsultationNotes, body.ServiceProvided, meds)
		if err != nil {
			handleResolutionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

// sweepRequestsHandler runs one stale-request sweep on demand, the on-call
// counterpart of the periodic sweeper binary.
func sweepRequestsHandler(svc *resolution.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		today := time.Now().Format(schedule.DateLayout)
		swept, err := svc.SweepStaleRequests(r.Context(), today)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, SweepResponse{Swept: swept})
	}
}

func handleResolutionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, request.ErrNotFound):
		writeError(w, http.StatusNotFound, "request_not_found", err.Error())
	case errors.Is(err, appointment.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, request.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, "already_resolved", err.Error())
	case errors.Is(err, resolution.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, lock.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, resolution.ErrUnknownMedication):
		writeError(w, http.StatusBadRequest, "unknown_medication", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
