package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository keeps appointment records in Postgres, for deployments where
// whole-file CSV rewriting no longer scales.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var requestID *string
	var meds []byte

	err := row.Scan(
		&a.ID,
		&requestID,
		&a.PatientID,
		&a.DoctorID,
		&a.DateTime,
		&a.Status,
		&a.ConsultationNotes,
		&a.ServiceProvided,
		&meds,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if requestID != nil {
		a.RequestID = *requestID
	}
	if len(meds) > 0 {
		if err := json.Unmarshal(meds, &a.Medications); err != nil {
			return nil, fmt.Errorf("decode medications for %s: %w", a.ID, err)
		}
	}

	return &a, nil
}

const appointmentColumns = `id, request_id, patient_id, doctor_id, scheduled_at, status, consultation_notes, service_provided, medications`

func (r *PgRepository) Create(ctx context.Context, params CreateParams) (*Appointment, error) {
	status := params.Status
	if status == "" {
		status = StatusPending
	}

	var requestID *string
	if params.RequestID != "" {
		requestID = &params.RequestID
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, request_id, patient_id, doctor_id, scheduled_at, status, consultation_notes, service_provided, medications, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, '', '', '[]', now(), now())
		RETURNING `+appointmentColumns+`
	`, uuid.New(), requestID, params.PatientID, params.DoctorID, params.DateTime, status)

	return scanAppointment(row)
}

func (r *PgRepository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetByRequestID(ctx context.Context, requestID string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE request_id = $1
	`, requestID)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id string, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	a, err := scanAppointment(row)
	if errors.Is(err, ErrNotFound) {
		// Distinguish a missing record from a lost conditional update.
		if _, getErr := r.GetByID(ctx, id); getErr == nil {
			return nil, fmt.Errorf("%w: %s is not %s", ErrInvalidTransition, id, from)
		}
		return nil, ErrNotFound
	}
	return a, err
}

func (r *PgRepository) RecordOutcome(ctx context.Context, id string, notes, service string, meds []Medication) (*Appointment, error) {
	encoded, err := json.Marshal(meds)
	if err != nil {
		return nil, fmt.Errorf("encode medications: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    consultation_notes = $3,
		    service_provided = $4,
		    medications = $5,
		    updated_at = now()
		WHERE id = $1
		  AND status = $6
		RETURNING `+appointmentColumns+`
	`, id, StatusCompleted, notes, service, encoded, StatusConfirmed)

	a, err := scanAppointment(row)
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr == nil {
			return nil, fmt.Errorf("%w: %s is not Confirmed", ErrInvalidTransition, id)
		}
		return nil, ErrNotFound
	}
	return a, err
}

func (r *PgRepository) List(ctx context.Context, filter Filter) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1 = '' OR patient_id = $1)
		  AND ($2 = '' OR doctor_id = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY scheduled_at, id
	`, filter.PatientID, filter.DoctorID, string(filter.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
