// README: Appointment store backed by PostgreSQL; commits are serialized per doctor row.
package appointment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"homecare/internal/modules/doctor"
	"homecare/internal/modules/feasibility"
	"homecare/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const selectColumns = `
	id, patient_id, doctor_id, visit_date, start_minute, duration_minutes,
	status, version, lat, lng, address,
	created_at, confirmed_at, cancelled_at, cancel_reason`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	if err := scanInto(row, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// scanInto reads selectColumns into a, followed by any extra destinations.
func scanInto(row pgx.Row, a *Appointment, extra ...any) error {
	var doctorID sql.NullString
	var confirmedAt, cancelledAt sql.NullTime
	var cancelReason sql.NullString

	dest := append([]any{
		&a.ID, &a.PatientID, &doctorID, &a.Date, &a.StartMinute, &a.DurationMinutes,
		&a.Status, &a.Version, &a.Location.Lat, &a.Location.Lng, &a.Location.Address,
		&a.CreatedAt, &confirmedAt, &cancelledAt, &cancelReason,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	if doctorID.Valid {
		d := types.ID(doctorID.String)
		a.DoctorID = &d
	}
	a.ConfirmedAt = toTimePtr(confirmedAt)
	a.CancelledAt = toTimePtr(cancelledAt)
	if cancelReason.Valid {
		a.CancelReason = &cancelReason.String
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM appointments WHERE id = $1`, string(id))
	a, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// List joins patient and doctor names; empty filter fields match everything.
func (s *Store) List(ctx context.Context, f ListFilter) ([]Listing, error) {
	rows, err := s.db.Query(ctx, `
		SELECT a.id, a.patient_id, a.doctor_id, a.visit_date, a.start_minute, a.duration_minutes,
		       a.status, a.version, a.lat, a.lng, a.address,
		       a.created_at, a.confirmed_at, a.cancelled_at, a.cancel_reason,
		       COALESCE(p.name, ''), COALESCE(d.name, '')
		FROM appointments a
		LEFT JOIN patients p ON p.id = a.patient_id
		LEFT JOIN doctors d ON d.id = a.doctor_id
		WHERE ($1 = '' OR a.visit_date = $1)
		  AND ($2 = '' OR a.doctor_id = $2)
		  AND ($3 = '' OR a.status = $3)
		ORDER BY a.visit_date ASC, a.start_minute ASC, a.id ASC
		LIMIT $4`,
		f.Date, string(f.DoctorID), string(f.Status), f.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Listing
	for rows.Next() {
		var l Listing
		if err := scanInto(rows, &l.Appointment, &l.PatientName, &l.DoctorName); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ActiveSchedule reads the doctor's version before the visits: a commit that
// lands in between leaves the snapshot with a stale version, which the commit
// check then rejects.
func (s *Store) ActiveSchedule(ctx context.Context, doctorID types.ID, date string) (feasibility.Schedule, error) {
	sched := feasibility.Schedule{DoctorID: doctorID, Date: date}
	err := s.db.QueryRow(ctx,
		`SELECT schedule_version FROM doctors WHERE id = $1`, string(doctorID),
	).Scan(&sched.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return sched, doctor.ErrNotFound
	}
	if err != nil {
		return sched, err
	}

	appts, err := s.ListByDoctor(ctx, doctorID, date)
	if err != nil {
		return sched, err
	}
	sched.Visits = make([]feasibility.Visit, 0, len(appts))
	for _, a := range appts {
		sched.Visits = append(sched.Visits, a.Visit())
	}
	return sched, nil
}

// ListByDoctor returns the doctor's active appointments for a day, ordered by start.
func (s *Store) ListByDoctor(ctx context.Context, doctorID types.ID, date string) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+selectColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND visit_date = $2 AND status <> 'Cancelled'
		ORDER BY start_minute ASC, id ASC`,
		string(doctorID), date,
	)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *Store) ActiveForPatient(ctx context.Context, patientID types.ID, date string) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+selectColumns+`
		FROM appointments
		WHERE patient_id = $1 AND visit_date = $2 AND status <> 'Cancelled'
		ORDER BY start_minute ASC`,
		string(patientID), date,
	)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Commit inserts a validated appointment. The doctor row is locked for the
// duration of the transaction and its schedule_version must still equal
// expectedVersion, otherwise ErrConflict is returned and nothing is written.
func (s *Store) Commit(ctx context.Context, a *Appointment, expectedVersion int64) error {
	if a.DoctorID == nil || a.Date == "" {
		return fmt.Errorf("commit appointment %s: %w", a.ID, ErrBadRequest)
	}
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := lockDoctorVersions(ctx, tx, map[types.ID]int64{*a.DoctorID: expectedVersion}); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO appointments (
				id, patient_id, doctor_id, visit_date, start_minute, duration_minutes,
				status, version, lat, lng, address, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			string(a.ID), string(a.PatientID), string(*a.DoctorID), a.Date, a.StartMinute, a.DurationMinutes,
			string(a.Status), a.Version, a.Location.Lat, a.Location.Lng, a.Location.Address, a.CreatedAt,
		); err != nil {
			return err
		}
		if err := bumpDoctorVersions(ctx, tx, *a.DoctorID); err != nil {
			return err
		}
		return insertEvent(ctx, tx, &Event{
			AppointmentID: a.ID,
			FromStatus:    StatusNone,
			ToStatus:      a.Status,
			ActorType:     "patient",
			ActorID:       &a.PatientID,
			CreatedAt:     a.CreatedAt,
		})
	})
}

// Reschedule rewrites time, doctor and location of an existing appointment in
// place. expected holds the schedule version of every doctor whose day changes
// (old and new doctor), all of which are locked and checked.
func (s *Store) Reschedule(ctx context.Context, a *Appointment, expected map[types.ID]int64) error {
	if a.DoctorID == nil || a.Date == "" {
		return fmt.Errorf("reschedule appointment %s: %w", a.ID, ErrBadRequest)
	}
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := lockDoctorVersions(ctx, tx, expected); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			UPDATE appointments
			SET patient_id = $1, doctor_id = $2, visit_date = $3, start_minute = $4,
			    duration_minutes = $5, lat = $6, lng = $7, address = $8,
			    version = version + 1
			WHERE id = $9 AND version = $10 AND status <> 'Cancelled'`,
			string(a.PatientID), string(*a.DoctorID), a.Date, a.StartMinute,
			a.DurationMinutes, a.Location.Lat, a.Location.Lng, a.Location.Address,
			string(a.ID), a.Version,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return ErrConflict
		}
		ids := make([]types.ID, 0, len(expected))
		for id := range expected {
			ids = append(ids, id)
		}
		if err := bumpDoctorVersions(ctx, tx, ids...); err != nil {
			return err
		}
		a.Version++
		return nil
	})
}

func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, reason *string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET status = $1,
		    version = version + 1,
		    confirmed_at = CASE WHEN $1 = 'Confirmed' THEN NOW() ELSE confirmed_at END,
		    cancelled_at = CASE WHEN $1 = 'Cancelled' THEN NOW() ELSE cancelled_at END,
		    cancel_reason = COALESCE($2, cancel_reason)
		WHERE id = $3 AND status = $4 AND version = $5`,
		string(to),
		reason,
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO appointment_events (
			appointment_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.AppointmentID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

// lockDoctorVersions takes row locks in id order so two reschedules touching
// the same pair of doctors cannot deadlock.
func lockDoctorVersions(ctx context.Context, tx pgx.Tx, expected map[types.ID]int64) error {
	ids := make([]types.ID, 0, len(expected))
	for id := range expected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		var current int64
		err := tx.QueryRow(ctx,
			`SELECT schedule_version FROM doctors WHERE id = $1 FOR UPDATE`, string(id),
		).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return doctor.ErrNotFound
		}
		if err != nil {
			return err
		}
		if current != expected[id] {
			return ErrConflict
		}
	}
	return nil
}

func bumpDoctorVersions(ctx context.Context, tx pgx.Tx, ids ...types.ID) error {
	for _, id := range ids {
		if _, err := tx.Exec(ctx,
			`UPDATE doctors SET schedule_version = schedule_version + 1 WHERE id = $1`, string(id),
		); err != nil {
			return err
		}
	}
	return nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, e *Event) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointment_events (
			appointment_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.AppointmentID), string(e.FromStatus), string(e.ToStatus),
		e.ActorType, toStringPtr(e.ActorID), e.CreatedAt,
	)
	return err
}

func collect(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()
	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
