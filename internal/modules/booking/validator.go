// README: Booking validator re-checks a chosen doctor's fresh schedule and commits.
package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"homecare/internal/modules/appointment"
	"homecare/internal/modules/doctor"
	"homecare/internal/modules/feasibility"
	"homecare/internal/modules/location"
	"homecare/internal/types"
)

var (
	ErrPatientNotFound = location.ErrPatientNotFound
	ErrDoctorNotFound  = doctor.ErrNotFound
)

type LocationResolver interface {
	PatientLocation(ctx context.Context, id types.ID) (types.Location, error)
}

type DoctorGetter interface {
	Get(ctx context.Context, id types.ID) (doctor.Doctor, error)
}

type Store interface {
	Get(ctx context.Context, id types.ID) (*appointment.Appointment, error)
	ActiveSchedule(ctx context.Context, doctorID types.ID, date string) (feasibility.Schedule, error)
	ActiveForPatient(ctx context.Context, patientID types.ID, date string) ([]appointment.Appointment, error)
	Commit(ctx context.Context, a *appointment.Appointment, expectedVersion int64) error
	Reschedule(ctx context.Context, a *appointment.Appointment, expected map[types.ID]int64) error
}

type BookCommand struct {
	PatientID types.ID
	DoctorID  types.ID
	// Time is "HH:MM", "YYYY-MM-DD HH:MM" or an ISO timestamp; the date part
	// selects the doctor's day and a bare clock time means today.
	Time     string
	Duration int
}

// RescheduleCommand edits an active appointment in place. Empty fields keep
// the current value; a bare clock time keeps the appointment's day.
type RescheduleCommand struct {
	AppointmentID types.ID
	PatientID     types.ID
	DoctorID      types.ID
	Time          string
	Duration      int
}

// Outcome is the answer to a booking or an availability check. A rejection is carried in
// Result and is not an error.
type Outcome struct {
	Accepted      bool
	AppointmentID types.ID
	Result        feasibility.Result
}

type Validator struct {
	locations       LocationResolver
	doctors         DoctorGetter
	store           Store
	engine          *feasibility.Engine
	locker          Locker
	defaultDuration int
	log             zerolog.Logger
	now             func() time.Time
}

func NewValidator(
	locations LocationResolver,
	doctors DoctorGetter,
	store Store,
	engine *feasibility.Engine,
	locker Locker,
	defaultDuration int,
	log zerolog.Logger,
) *Validator {
	if defaultDuration <= 0 {
		defaultDuration = appointment.DefaultDurationMinutes
	}
	return &Validator{
		locations:       locations,
		doctors:         doctors,
		store:           store,
		engine:          engine,
		locker:          locker,
		defaultDuration: defaultDuration,
		log:             log.With().Str("module", "booking").Logger(),
		now:             time.Now,
	}
}

// WithClock sets the clock that decides which day a bare clock time falls on.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

type request struct {
	patientID types.ID
	doctor    doctor.Doctor
	date      string
	candidate feasibility.Candidate
}

func (v *Validator) prepare(ctx context.Context, patientID, doctorID types.ID, when string, duration int) (request, error) {
	if patientID == "" || doctorID == "" {
		return request{}, appointment.ErrBadRequest
	}
	date, start, ok := types.SplitSlot(when)
	if !ok {
		return request{}, fmt.Errorf("time %q: %w", when, appointment.ErrBadRequest)
	}
	if date == "" {
		date = types.Today(v.now())
	}
	if duration <= 0 {
		duration = v.defaultDuration
	}
	loc, err := v.locations.PatientLocation(ctx, patientID)
	if err != nil {
		return request{}, err
	}
	doc, err := v.doctors.Get(ctx, doctorID)
	if err != nil {
		return request{}, err
	}
	return request{
		patientID: patientID,
		doctor:    doc,
		date:      date,
		candidate: feasibility.Candidate{
			PatientID: patientID,
			Start:     start,
			Duration:  duration,
			Location:  loc,
		},
	}, nil
}

// CheckConflict answers whether the slot would be accepted right now, without
// locking or writing anything.
func (v *Validator) CheckConflict(ctx context.Context, cmd BookCommand) (Outcome, error) {
	req, err := v.prepare(ctx, cmd.PatientID, cmd.DoctorID, cmd.Time, cmd.Duration)
	if err != nil {
		return Outcome{}, err
	}
	if !req.doctor.AcceptsBookings() {
		return unavailable(req.doctor), nil
	}
	res, _, err := v.evaluate(ctx, req, "")
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Accepted: res.Feasible, Result: res}, nil
}

// ValidateAndBook re-reads the doctor's schedule under the doctor's lock,
// re-runs the insertion and patient checks and persists a Pending
// appointment. ErrConflict means the schedule moved between read and commit.
func (v *Validator) ValidateAndBook(ctx context.Context, cmd BookCommand) (Outcome, error) {
	req, err := v.prepare(ctx, cmd.PatientID, cmd.DoctorID, cmd.Time, cmd.Duration)
	if err != nil {
		return Outcome{}, err
	}
	if !req.doctor.AcceptsBookings() {
		return unavailable(req.doctor), nil
	}

	release, err := v.locker.Lock(ctx, doctorKey(req.doctor.ID))
	if err != nil {
		return Outcome{}, fmt.Errorf("lock doctor %s: %w", req.doctor.ID, err)
	}
	defer release()

	res, version, err := v.evaluate(ctx, req, "")
	if err != nil {
		return Outcome{}, err
	}
	if !res.Feasible {
		return Outcome{Result: res}, nil
	}

	doctorID := req.doctor.ID
	a := &appointment.Appointment{
		ID:              types.ID(uuid.NewString()),
		PatientID:       req.patientID,
		DoctorID:        &doctorID,
		Date:            req.date,
		StartMinute:     req.candidate.Start,
		DurationMinutes: req.candidate.Duration,
		Status:          appointment.StatusPending,
		Location:        req.candidate.Location,
		CreatedAt:       v.now(),
	}
	if err := v.store.Commit(ctx, a, version); err != nil {
		return Outcome{}, fmt.Errorf("commit appointment: %w", err)
	}

	v.log.Info().
		Str("appointment_id", string(a.ID)).
		Str("doctor_id", string(doctorID)).
		Str("patient_id", string(a.PatientID)).
		Str("start", types.FormatMinutes(a.StartMinute)).
		Int("travel_minutes", res.TravelMinutes).
		Msg("appointment booked")
	return Outcome{Accepted: true, AppointmentID: a.ID, Result: res}, nil
}

// Reschedule moves an active appointment to a new time, doctor or patient
// under the same validation as a fresh booking. The appointment itself is
// left out of both schedules it is checked against and keeps its id.
func (v *Validator) Reschedule(ctx context.Context, cmd RescheduleCommand) (Outcome, error) {
	if cmd.AppointmentID == "" {
		return Outcome{}, appointment.ErrBadRequest
	}
	current, err := v.store.Get(ctx, cmd.AppointmentID)
	if err != nil {
		return Outcome{}, err
	}
	if !current.Active() {
		return Outcome{}, appointment.ErrInvalidState
	}

	patientID := current.PatientID
	if cmd.PatientID != "" {
		patientID = cmd.PatientID
	}
	doctorID := cmd.DoctorID
	if doctorID == "" && current.DoctorID != nil {
		doctorID = *current.DoctorID
	}
	when := cmd.Time
	if when == "" {
		when = types.FormatMinutes(current.StartMinute)
	}
	if date, _, ok := types.SplitSlot(when); ok && date == "" && current.Date != "" {
		when = current.Date + " " + strings.TrimSpace(when)
	}
	duration := cmd.Duration
	if duration <= 0 {
		duration = current.DurationMinutes
	}

	req, err := v.prepare(ctx, patientID, doctorID, when, duration)
	if err != nil {
		return Outcome{}, err
	}
	if patientID == current.PatientID && current.Location.HasCoordinates() {
		req.candidate.Location = current.Location
	}
	if !req.doctor.AcceptsBookings() {
		return unavailable(req.doctor), nil
	}

	keys := []types.ID{req.doctor.ID}
	if current.DoctorID != nil && *current.DoctorID != req.doctor.ID {
		keys = append(keys, *current.DoctorID)
	}
	release, err := v.lockAll(ctx, keys)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	// Re-read under the lock; a concurrent edit or cancel may have landed.
	fresh, err := v.store.Get(ctx, cmd.AppointmentID)
	if err != nil {
		return Outcome{}, err
	}
	if !fresh.Active() {
		return Outcome{}, appointment.ErrInvalidState
	}
	if fresh.Version != current.Version {
		return Outcome{}, appointment.ErrConflict
	}

	res, version, err := v.evaluate(ctx, req, current.ID)
	if err != nil {
		return Outcome{}, err
	}
	if !res.Feasible {
		return Outcome{Result: res}, nil
	}

	expected := map[types.ID]int64{req.doctor.ID: version}
	if len(keys) > 1 {
		old, err := v.store.ActiveSchedule(ctx, keys[1], current.Date)
		if err != nil {
			return Outcome{}, err
		}
		expected[keys[1]] = old.Version
	}

	updated := *fresh
	newDoctor := req.doctor.ID
	updated.PatientID = req.patientID
	updated.DoctorID = &newDoctor
	updated.Date = req.date
	updated.StartMinute = req.candidate.Start
	updated.DurationMinutes = req.candidate.Duration
	updated.Location = req.candidate.Location
	if err := v.store.Reschedule(ctx, &updated, expected); err != nil {
		return Outcome{}, fmt.Errorf("reschedule appointment: %w", err)
	}

	v.log.Info().
		Str("appointment_id", string(updated.ID)).
		Str("doctor_id", string(newDoctor)).
		Str("start", types.FormatMinutes(updated.StartMinute)).
		Msg("appointment rescheduled")
	return Outcome{Accepted: true, AppointmentID: updated.ID, Result: res}, nil
}

// evaluate runs the insertion check against a fresh schedule read, then the
// patient-side collision check. exclude drops one appointment from both.
func (v *Validator) evaluate(ctx context.Context, req request, exclude types.ID) (feasibility.Result, int64, error) {
	sched, err := v.store.ActiveSchedule(ctx, req.doctor.ID, req.date)
	if err != nil {
		return feasibility.Result{}, 0, fmt.Errorf("read schedule: %w", err)
	}
	visits := sched.Visits
	if exclude != "" {
		visits = make([]feasibility.Visit, 0, len(sched.Visits))
		for _, vis := range sched.Visits {
			if vis.AppointmentID != exclude {
				visits = append(visits, vis)
			}
		}
	}

	res := v.engine.Check(ctx, visits, req.candidate)
	if !res.Feasible {
		return res, sched.Version, nil
	}

	existing, err := v.store.ActiveForPatient(ctx, req.patientID, req.date)
	if err != nil {
		return feasibility.Result{}, 0, fmt.Errorf("read patient appointments: %w", err)
	}
	for _, a := range existing {
		if a.ID == exclude || a.StartMinute != req.candidate.Start {
			continue
		}
		r := feasibility.Reject(feasibility.ReasonPatientDoubleBooked, fmt.Sprintf(
			"patient already has an appointment at %s", types.FormatMinutes(a.StartMinute),
		))
		r.ConflictWith = a.ID
		return r, sched.Version, nil
	}
	return res, sched.Version, nil
}

// lockAll takes the doctor locks in id order so two edits swapping doctors
// cannot wait on each other.
func (v *Validator) lockAll(ctx context.Context, ids []types.ID) (func(), error) {
	sorted := append([]types.ID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var releases []func()
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, id := range sorted {
		release, err := v.locker.Lock(ctx, doctorKey(id))
		if err != nil {
			releaseAll()
			return nil, fmt.Errorf("lock doctor %s: %w", id, err)
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

func unavailable(d doctor.Doctor) Outcome {
	return Outcome{Result: feasibility.Reject(feasibility.ReasonDoctorUnavailable, d.UnavailableReason())}
}

// IsRejected reports whether err is a storage-side refusal the caller can
// retry after re-reading, as opposed to a bad request.
func IsRejected(err error) bool {
	return errors.Is(err, appointment.ErrConflict) || errors.Is(err, ErrLockTimeout)
}
