package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"homecare/internal/modules/doctor"
	"homecare/internal/modules/feasibility"
	"homecare/internal/types"
)

// MemoryStore is an in-process Store with the same version semantics as the
// PostgreSQL one. Doctors must be registered with AddDoctor before use.
type MemoryStore struct {
	mu       sync.Mutex
	appts    map[types.ID]Appointment
	versions map[types.ID]int64
	events   []Event
	doctors  map[types.ID]string
	patients map[types.ID]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		appts:    make(map[types.ID]Appointment),
		versions: make(map[types.ID]int64),
		doctors:  make(map[types.ID]string),
		patients: make(map[types.ID]string),
	}
}

// NameDoctor and NamePatient record display names for List.
func (m *MemoryStore) NameDoctor(id types.ID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doctors[id] = name
}

func (m *MemoryStore) NamePatient(id types.ID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[id] = name
}

func (m *MemoryStore) AddDoctor(id types.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.versions[id]; !ok {
		m.versions[id] = 0
	}
}

// Seed stores a without version checks; the doctor is registered if needed.
func (m *MemoryStore) Seed(a Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.DoctorID != nil {
		if _, ok := m.versions[*a.DoctorID]; !ok {
			m.versions[*a.DoctorID] = 0
		}
	}
	m.appts[a.ID] = a
}

func (m *MemoryStore) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func (m *MemoryStore) Get(_ context.Context, id types.ID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *MemoryStore) List(_ context.Context, f ListFilter) ([]Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Listing
	for _, a := range m.appts {
		if f.Date != "" && a.Date != f.Date {
			continue
		}
		if f.DoctorID != "" && !a.AssignedTo(f.DoctorID) {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		l := Listing{Appointment: a, PatientName: m.patients[a.PatientID]}
		if a.DoctorID != nil {
			l.DoctorName = m.doctors[*a.DoctorID]
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].StartMinute != out[j].StartMinute {
			return out[i].StartMinute < out[j].StartMinute
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) ActiveSchedule(_ context.Context, doctorID types.ID, date string) (feasibility.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[doctorID]
	if !ok {
		return feasibility.Schedule{DoctorID: doctorID, Date: date}, doctor.ErrNotFound
	}
	sched := feasibility.Schedule{DoctorID: doctorID, Date: date, Version: v}
	for _, a := range m.byDoctor(doctorID, date) {
		sched.Visits = append(sched.Visits, a.Visit())
	}
	return sched, nil
}

func (m *MemoryStore) ListByDoctor(_ context.Context, doctorID types.ID, date string) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byDoctor(doctorID, date), nil
}

func (m *MemoryStore) ActiveForPatient(_ context.Context, patientID types.ID, date string) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID && a.Date == date && a.Active() {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out, nil
}

func (m *MemoryStore) Commit(_ context.Context, a *Appointment, expectedVersion int64) error {
	if a.DoctorID == nil || a.Date == "" {
		return ErrBadRequest
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkVersions(map[types.ID]int64{*a.DoctorID: expectedVersion}); err != nil {
		return err
	}
	if _, exists := m.appts[a.ID]; exists {
		return ErrConflict
	}
	m.appts[a.ID] = *a
	m.versions[*a.DoctorID]++
	m.events = append(m.events, Event{
		ID:            int64(len(m.events) + 1),
		AppointmentID: a.ID,
		FromStatus:    StatusNone,
		ToStatus:      a.Status,
		ActorType:     "patient",
		ActorID:       &a.PatientID,
		CreatedAt:     a.CreatedAt,
	})
	return nil
}

func (m *MemoryStore) Reschedule(_ context.Context, a *Appointment, expected map[types.ID]int64) error {
	if a.DoctorID == nil || a.Date == "" {
		return ErrBadRequest
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkVersions(expected); err != nil {
		return err
	}
	cur, ok := m.appts[a.ID]
	if !ok || cur.Version != a.Version || !cur.Active() {
		return ErrConflict
	}
	a.Version++
	m.appts[a.ID] = *a
	for id := range expected {
		m.versions[id]++
	}
	return nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int, reason *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.Status != from || a.Version != version {
		return false, nil
	}
	now := time.Now()
	a.Status = to
	a.Version++
	switch to {
	case StatusConfirmed:
		a.ConfirmedAt = &now
	case StatusCancelled:
		a.CancelledAt = &now
	}
	if reason != nil {
		a.CancelReason = reason
	}
	m.appts[id] = a
	return true, nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := *e
	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return nil
}

func (m *MemoryStore) checkVersions(expected map[types.ID]int64) error {
	for id, want := range expected {
		got, ok := m.versions[id]
		if !ok {
			return doctor.ErrNotFound
		}
		if got != want {
			return ErrConflict
		}
	}
	return nil
}

func (m *MemoryStore) byDoctor(doctorID types.ID, date string) []Appointment {
	var out []Appointment
	for _, a := range m.appts {
		if a.AssignedTo(doctorID) && a.Date == date && a.Active() {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out
}

func sortByStart(list []Appointment) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].StartMinute != list[j].StartMinute {
			return list[i].StartMinute < list[j].StartMinute
		}
		return list[i].ID < list[j].ID
	})
}
