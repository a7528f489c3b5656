package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"homecare/internal/types"
)

func seedPending(t *testing.T, store *MemoryStore, id types.ID, doctorID types.ID, start int) {
	t.Helper()
	d := doctorID
	store.Seed(Appointment{
		ID:              id,
		PatientID:       "p1",
		DoctorID:        &d,
		Date:            "2024-03-01",
		StartMinute:     start,
		DurationMinutes: 30,
		Status:          StatusPending,
		CreatedAt:       time.Now(),
	})
}

func TestConfirmThenCancel(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store, zerolog.Nop())
	seedPending(t, store, "a1", "d1", 540)

	if err := svc.Confirm(ctx, ConfirmCommand{AppointmentID: "a1"}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	a, _ := svc.Get(ctx, "a1")
	if a.Status != StatusConfirmed || a.ConfirmedAt == nil || a.Version != 1 {
		t.Fatalf("unexpected after confirm: %+v", a)
	}

	if err := svc.Cancel(ctx, CancelCommand{AppointmentID: "a1", Reason: "patient_request"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	a, _ = svc.Get(ctx, "a1")
	if a.Status != StatusCancelled || a.CancelReason == nil || *a.CancelReason != "patient_request" {
		t.Fatalf("unexpected after cancel: %+v", a)
	}

	events := store.Events()
	if len(events) != 2 || events[0].ToStatus != StatusConfirmed || events[1].ToStatus != StatusCancelled {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestCancelledIsTerminal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store, zerolog.Nop())
	seedPending(t, store, "a1", "d1", 540)

	if err := svc.Cancel(ctx, CancelCommand{AppointmentID: "a1"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := svc.Confirm(ctx, ConfirmCommand{AppointmentID: "a1"}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if err := svc.Cancel(ctx, CancelCommand{AppointmentID: "a1"}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second cancel, got %v", err)
	}
}

func TestUnknownAppointment(t *testing.T) {
	svc := NewService(NewMemoryStore(), zerolog.Nop())
	if err := svc.Confirm(context.Background(), ConfirmCommand{AppointmentID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Get(context.Background(), ""); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestDoctorRouteOrderedAndActiveOnly(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store, zerolog.Nop())
	seedPending(t, store, "late", "d1", 780)
	seedPending(t, store, "early", "d1", 540)
	seedPending(t, store, "dropped", "d1", 600)
	seedPending(t, store, "other", "d2", 600)

	if err := svc.Cancel(ctx, CancelCommand{AppointmentID: "dropped"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	route, err := svc.DoctorRoute(ctx, "d1", "2024-03-01")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(route) != 2 || route[0].ID != "early" || route[1].ID != "late" {
		t.Fatalf("unexpected route: %+v", route)
	}
}

func TestMemoryStoreCommitVersionCheck(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.AddDoctor("d1")
	d := types.ID("d1")

	sched, err := store.ActiveSchedule(ctx, "d1", "2024-03-01")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	first := &Appointment{ID: "a1", PatientID: "p1", DoctorID: &d, Date: "2024-03-01", StartMinute: 540, DurationMinutes: 30, Status: StatusPending}
	if err := store.Commit(ctx, first, sched.Version); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	second := &Appointment{ID: "a2", PatientID: "p2", DoctorID: &d, Date: "2024-03-01", StartMinute: 600, DurationMinutes: 30, Status: StatusPending}
	if err := store.Commit(ctx, second, sched.Version); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on stale version, got %v", err)
	}

	if _, err := store.ActiveSchedule(ctx, "nobody", "2024-03-01"); err == nil {
		t.Fatal("expected error for unknown doctor")
	}
}

func TestListOrdersByDayAndTimeWithNames(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.NameDoctor("d1", "Dr. Lin")
	store.NamePatient("p1", "Amy")
	svc := NewService(store, zerolog.Nop())

	seedPending(t, store, "a3", "d1", 600)
	seedPending(t, store, "a1", "d1", 540)
	later := Appointment{ID: "a0", PatientID: "p9", Date: "2024-03-02", StartMinute: 480, DurationMinutes: 30, Status: StatusPending}
	store.Seed(later)

	got, err := svc.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 || got[0].ID != "a1" || got[1].ID != "a3" || got[2].ID != "a0" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].DoctorName != "Dr. Lin" || got[0].PatientName != "Amy" {
		t.Fatalf("expected names on the listing, got %+v", got[0])
	}
	if got[2].DoctorName != "" || got[2].PatientName != "" {
		t.Fatalf("unassigned and unknown records should have empty names, got %+v", got[2])
	}

	if err := svc.Cancel(ctx, CancelCommand{AppointmentID: "a3"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ = svc.List(ctx, ListFilter{Date: "2024-03-01", Status: StatusCancelled})
	if len(got) != 1 || got[0].ID != "a3" {
		t.Fatalf("expected only the cancelled visit, got %+v", got)
	}
	got, _ = svc.List(ctx, ListFilter{Limit: 1})
	if len(got) != 1 || got[0].ID != "a1" {
		t.Fatalf("expected the limit to apply after ordering, got %+v", got)
	}
	if _, err := svc.List(ctx, ListFilter{Status: "Done"}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for unknown status, got %v", err)
	}
}

func TestDoctorRouteDefaultsToToday(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedPending(t, store, "a1", "d1", 540)
	day, _ := time.Parse(time.DateOnly, "2024-03-01")
	svc := NewService(store, zerolog.Nop()).WithClock(func() time.Time { return day.Add(6 * time.Hour) })

	route, err := svc.DoctorRoute(ctx, "d1", "")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(route) != 1 || route[0].ID != "a1" {
		t.Fatalf("expected today's visit, got %+v", route)
	}
}

func TestMemoryStoreCommitRequiresDate(t *testing.T) {
	store := NewMemoryStore()
	d := types.ID("d1")
	store.AddDoctor(d)
	a := &Appointment{ID: "a1", PatientID: "p1", DoctorID: &d, StartMinute: 540, DurationMinutes: 30, Status: StatusPending}
	if err := store.Commit(context.Background(), a, 0); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}
