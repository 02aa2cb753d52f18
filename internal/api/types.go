package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/carewellhq/hospital-scheduling/internal/appointment"
	"github.com/carewellhq/hospital-scheduling/internal/request"
	"github.com/carewellhq/hospital-scheduling/internal/schedule"
)

type SubmitRequestBody struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	TimeSlot  string `json:"time_slot"`
}

type SlotBody struct {
	Date     string `json:"date"`
	TimeSlot string `json:"time_slot"`
}

type OutcomeBody struct {
	ConsultationNotes string           `json:"consultation_notes"`
	ServiceProvided   string           `json:"service_provided"`
	Medications       []MedicationBody `json:"medications"`
}

type MedicationBody struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type RequestResponse struct {
	ID        string `json:"id"`
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	TimeSlot  string `json:"time_slot"`
	Status    string `json:"status"`
}

type AppointmentResponse struct {
	ID                string           `json:"id"`
	RequestID         string           `json:"request_id,omitempty"`
	PatientID         string           `json:"patient_id"`
	DoctorID          string           `json:"doctor_id"`
	DateTime          time.Time        `json:"date_time"`
	Status            string           `json:"status"`
	ConsultationNotes string           `json:"consultation_notes,omitempty"`
	ServiceProvided   string           `json:"service_provided,omitempty"`
	Medications       []MedicationBody `json:"medications,omitempty"`
}

type SlotResponse struct {
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	TimeSlot  string `json:"time_slot"`
	Status    string `json:"status"`
	PatientID string `json:"patient_id,omitempty"`
}

type SweepResponse struct {
	Swept int `json:"swept"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func requestResponse(r *request.Request) RequestResponse {
	return RequestResponse{
		ID:        r.ID,
		PatientID: r.PatientID,
		DoctorID:  r.DoctorID,
		Date:      r.Date,
		TimeSlot:  r.TimeSlot,
		Status:    string(r.Status),
	}
}

func appointmentResponse(a *appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:                a.ID,
		RequestID:         a.RequestID,
		PatientID:         a.PatientID,
		DoctorID:          a.DoctorID,
		DateTime:          a.DateTime,
		Status:            string(a.Status),
		ConsultationNotes: a.ConsultationNotes,
		ServiceProvided:   a.ServiceProvided,
	}
	for _, m := range a.Medications {
		resp.Medications = append(resp.Medications, MedicationBody{Name: m.Name, Quantity: m.Quantity})
	}
	return resp
}

func slotResponses(slots []schedule.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{
			DoctorID:  s.DoctorID,
			Date:      s.Date,
			TimeSlot:  s.TimeSlot,
			Status:    string(s.Status),
			PatientID: s.PatientID,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
