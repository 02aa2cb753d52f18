package resolution

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carewellhq/hospital-scheduling/internal/appointment"
	"github.com/carewellhq/hospital-scheduling/internal/inventory"
	"github.com/carewellhq/hospital-scheduling/internal/lock"
	"github.com/carewellhq/hospital-scheduling/internal/request"
	"github.com/carewellhq/hospital-scheduling/internal/schedule"
)

type testEnv struct {
	svc    *Service
	grid   *schedule.Grid
	ledger *request.Ledger
	repo   *appointment.CSVRepository
	dir    string
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	log := testLogger()

	invCSV := "medicationName,stock\nParacetamol,100\nIbuprofen,50\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inventory.csv"), []byte(invCSV), 0o644))

	grid, err := schedule.NewGrid(schedule.NewCSVStore(dir), log)
	require.NoError(t, err)
	ledger, err := request.NewLedger(request.NewCSVStore(dir), log)
	require.NoError(t, err)
	repo, err := appointment.NewCSVRepository(dir)
	require.NoError(t, err)
	inv, err := inventory.Load(dir)
	require.NoError(t, err)

	svc := NewService(grid, ledger, repo, inv, NewJournal(dir), lock.NewKeyedMutex(), log)

	return &testEnv{svc: svc, grid: grid, ledger: ledger, repo: repo, dir: dir}
}

func (e *testEnv) addSlot(t *testing.T, doctorID, date, timeSlot string) {
	t.Helper()
	require.NoError(t, e.grid.Add(schedule.Slot{
		DoctorID: doctorID,
		Date:     date,
		TimeSlot: timeSlot,
		Status:   schedule.StatusAvailable,
	}))
}

func (e *testEnv) submit(t *testing.T, patientID, doctorID, date, timeSlot string) *request.Request {
	t.Helper()
	req, err := e.ledger.Submit(patientID, doctorID, date, timeSlot)
	require.NoError(t, err)
	return req
}

func TestAcceptRequestBooksSlotAndConfirms(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addSlot(t, "D1", "2024-06-10", "09:00")
	req := env.submit(t, "P1", "D1", "2024-06-10", "09:00")

	appt, err := env.svc.AcceptRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, appt.Status)
	assert.Equal(t, req.ID, appt.RequestID)
	assert.Equal(t, "P1", appt.PatientID)
	assert.Equal(t, time.Date(2024, 6, 10, 9, 0, 0, 0, time.Local), appt.DateTime)

	updated, err := env.ledger.GetByID(req.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusAccepted, updated.Status)

	occupant, ok := env.grid.Occupant("D1", "2024-06-10", "09:00")
	assert.True(t, ok)
	assert.Equal(t, "P1", occupant)
}

func TestAcceptRequestLosesRaceForSameSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addSlot(t, "D1", "2024-06-10", "09:00")
	r1 := env.submit(t, "P1", "D1", "2024-06-10", "09:00")
	r2 := env.submit(t, "P2", "D1", "2024-06-10", "09:00")

	_, err := env.svc.AcceptRequest(ctx, r1.ID)
	require.NoError(t, err)

	_, err = env.svc.AcceptRequest(ctx, r2.ID)
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	// The loser stays Pending: the doctor must decline it explicitly.
	got, err := env.ledger.GetByID(r2.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusPending, got.Status)

	_, err = env.repo.GetByRequestID(ctx, r2.ID)
	assert.ErrorIs(t, err, appointment.ErrNotFound)
}

func TestAcceptRequestIdempotenceOnResolved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addSlot(t, "D1", "2024-06-10", "09:00")
	req := env.submit(t, "P1", "D1", "2024-06-10", "09:00")

	_, err := env.svc.AcceptRequest(ctx, req.ID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = env.svc.AcceptRequest(ctx, req.ID)
		assert.ErrorIs(t, err, request.ErrAlreadyResolved)
	}

	appts, err := env.repo.List(ctx, appointment.Filter{PatientID: "P1"})
	require.NoError(t, err)
	assert.Len(t, appts, 1, "no duplicate appointment on re-acceptance")
}

func TestAcceptRequestUnknownID(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.AcceptRequest(context.Background(), "nope")
	assert.ErrorIs(t, err, request.ErrNotFound)
}

func TestDeclineRequestLeavesSlotOpen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addSlot(t, "D1", "2024-06-10", "09:00")
	req := env.submit(t, "P1", "D1", "2024-06-10", "09:00")

	declined, err := env.svc.DeclineRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusDeclined, declined.Status)

	assert.True(t, env.grid.IsAvailable("D1", "2024-06-10", "09:00"))

	_, err = env.repo.GetByRequestID(ctx, req.ID)
	assert.ErrorIs(t, err, appointment.ErrNotFound)

	_, err = env.svc.DeclineRequest(ctx, req.ID)
	assert.ErrorIs(t, err, request.ErrAlreadyResolved)
}

func TestCancelAppointmentReleasesEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addSlot(t, "D1", "2024-06-10", "09:00")
	req := env.submit(t, "P1", "D1", "2024-06-10", "09:00")

	appt, err := env.svc.AcceptRequest(ctx, req.ID)
	require.NoError(t, err)

	cancelled, err := env.svc.CancelAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, cancelled.Status)

	assert.True(t, env.grid.IsAvailable("D1", "2024-06-10", "09:00"))

	got, err := env.ledger.GetByID(req.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusCancelled, got.Status)

	_, err = env.svc.CancelAppointment(ctx, appt.ID)
	assert.ErrorIs(t, err, appointment.ErrInvalidTransition)
}

func TestRecordOutcome(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addSlot(t, "D1", "2024-06-10", "09:00")
	req := env.submit(t, "P1", "D1", "2024-06-10", "09:00")
	appt, err := env.svc.AcceptRequest(ctx, req.ID)
	require.NoError(t, err)

	_, err = env.svc.RecordOutcome(ctx, appt.ID, "notes", "Consultation", []appointment.Medication{
		{Name: "NoSuchDrug", Quantity: 1, Status: appointment.MedicationPending},
	})
	assert.ErrorIs(t, err, ErrUnknownMedication)

	done, err := env.svc.RecordOutcome(ctx, appt.ID, "rest and fluids", "Consultation", []appointment.Medication{
		{Name: "Paracetamol", Quantity: 20, Status: appointment.MedicationPending},
	})
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, done.Status)
	assert.Equal(t, "rest and fluids", done.ConsultationNotes)
}

func TestSweepStaleRequests(t *testing.T) {
	env := newTestEnv(t)

	stale := env.submit(t, "P1", "D1", "2024-06-01", "09:00")
	fresh := env.submit(t, "P2", "D1", "2024-06-20", "09:00")

	swept, err := env.svc.SweepStaleRequests(context.Background(), "2024-06-10")
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	got, err := env.ledger.GetByID(stale.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusCancelled, got.Status)

	got, err = env.ledger.GetByID(fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusPending, got.Status)
}

// mockRepository forces failures inside the accept sequence.
type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Create(ctx context.Context, params appointment.CreateParams) (*appointment.Appointment, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appointment.Appointment), args.Error(1)
}

func (m *mockRepository) GetByID(ctx context.Context, id string) (*appointment.Appointment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appointment.Appointment), args.Error(1)
}

func (m *mockRepository) GetByRequestID(ctx context.Context, requestID string) (*appointment.Appointment, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appointment.Appointment), args.Error(1)
}

func (m *mockRepository) UpdateStatus(ctx context.Context, id string, from, to appointment.Status) (*appointment.Appointment, error) {
	args := m.Called(ctx, id, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appointment.Appointment), args.Error(1)
}

func (m *mockRepository) RecordOutcome(ctx context.Context, id string, notes, service string, meds []appointment.Medication) (*appointment.Appointment, error) {
	args := m.Called(ctx, id, notes, service, meds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appointment.Appointment), args.Error(1)
}

func (m *mockRepository) List(ctx context.Context, filter appointment.Filter) ([]appointment.Appointment, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]appointment.Appointment), args.Error(1)
}

func TestAcceptRollsBackBookingWhenCreateFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addSlot(t, "D1", "2024-06-10", "09:00")
	req := env.submit(t, "P1", "D1", "2024-06-10", "09:00")

	repo := &mockRepository{}
	repo.On("Create", mock.Anything, mock.AnythingOfType("appointment.CreateParams")).
		Return(nil, errors.New("disk full"))

	inv, err := inventory.Load(env.dir)
	require.NoError(t, err)
	svc := NewService(env.grid, env.ledger, repo, inv, NewJournal(env.dir), lock.NewKeyedMutex(), testLogger())

	_, err = svc.AcceptRequest(ctx, req.ID)
	require.Error(t, err)

	// The compensating release must leave the pre-call state.
	assert.True(t, env.grid.IsAvailable("D1", "2024-06-10", "09:00"))

	got, err := env.ledger.GetByID(req.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusPending, got.Status)

	repo.AssertExpectations(t)
}

func TestRecoverReleasesOrphanedBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addSlot(t, "D1", "2024-06-10", "09:00")
	req := env.submit(t, "P1", "D1", "2024-06-10", "09:00")

	// Simulate a crash after the booking: intent journaled, slot occupied,
	// but no appointment and the ledger still Pending.
	journal := NewJournal(env.dir)
	require.NoError(t, journal.Append(Event{
		Type:      EventAcceptBegin,
		RequestID: req.ID,
		DoctorID:  "D1",
		Date:      "2024-06-10",
		TimeSlot:  "09:00",
		PatientID: "P1",
	}))
	booked, err := env.grid.Book("D1", "2024-06-10", "09:00", "P1")
	require.NoError(t, err)
	require.True(t, booked)

	require.NoError(t, env.svc.Recover(ctx))

	assert.True(t, env.grid.IsAvailable("D1", "2024-06-10", "09:00"))
}

func TestRecoverSkipsFailedAcceptForHeldSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addSlot(t, "D1", "2024-06-10", "09:00")
	won := env.submit(t, "P1", "D1", "2024-06-10", "09:00")
	retry := env.submit(t, "P1", "D1", "2024-06-10", "09:00")

	_, err := env.svc.AcceptRequest(ctx, won.ID)
	require.NoError(t, err)

	// Same patient asks again for the slot they already hold; the accept
	// fails and must leave no open intent behind.
	_, err = env.svc.AcceptRequest(ctx, retry.ID)
	require.ErrorIs(t, err, ErrSlotUnavailable)

	require.NoError(t, env.svc.Recover(ctx))

	occupant, ok := env.grid.Occupant("D1", "2024-06-10", "09:00")
	assert.True(t, ok)
	assert.Equal(t, "P1", occupant, "recovery must not release a slot whose acceptance stands")

	appt, err := env.repo.GetByRequestID(ctx, won.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, appt.Status)
}

func TestRecoverJudgesRetriedAcceptByLatestAttempt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addSlot(t, "D1", "2024-06-10", "09:00")
	req := env.submit(t, "P1", "D1", "2024-06-10", "09:00")

	// A failed first attempt followed by a crashed retry: the abort closes
	// only the first begin, so the second, still-open begin is undone.
	journal := NewJournal(env.dir)
	require.NoError(t, journal.Append(Event{
		Type: EventAcceptBegin, RequestID: req.ID,
		DoctorID: "D1", Date: "2024-06-10", TimeSlot: "09:00", PatientID: "P1",
	}))
	require.NoError(t, journal.Append(Event{
		Type: EventAcceptAbort, RequestID: req.ID,
		DoctorID: "D1", Date: "2024-06-10", TimeSlot: "09:00", PatientID: "P1",
	}))
	require.NoError(t, journal.Append(Event{
		Type: EventAcceptBegin, RequestID: req.ID,
		DoctorID: "D1", Date: "2024-06-10", TimeSlot: "09:00", PatientID: "P1",
	}))
	booked, err := env.grid.Book("D1", "2024-06-10", "09:00", "P1")
	require.NoError(t, err)
	require.True(t, booked)

	require.NoError(t, env.svc.Recover(ctx))

	assert.True(t, env.grid.IsAvailable("D1", "2024-06-10", "09:00"))
}

func TestRecoverLeavesCommittedAcceptAlone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addSlot(t, "D1", "2024-06-10", "09:00")
	req := env.submit(t, "P1", "D1", "2024-06-10", "09:00")

	appt, err := env.svc.AcceptRequest(ctx, req.ID)
	require.NoError(t, err)

	require.NoError(t, env.svc.Recover(ctx))

	occupant, ok := env.grid.Occupant("D1", "2024-06-10", "09:00")
	assert.True(t, ok)
	assert.Equal(t, "P1", occupant)

	got, err := env.repo.GetByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, got.Status)
}
