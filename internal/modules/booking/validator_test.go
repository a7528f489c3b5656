package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"homecare/internal/modules/appointment"
	"homecare/internal/modules/doctor"
	"homecare/internal/modules/feasibility"
	"homecare/internal/modules/location"
	"homecare/internal/types"
)

var (
	home1 = types.Location{Point: types.Point{Lat: 25.0340, Lng: 121.5645}, Address: "home 1"}
	home2 = types.Location{Point: types.Point{Lat: 25.0478, Lng: 121.5170}, Address: "home 2"}
)

type fakeLocations map[types.ID]types.Location

func (f fakeLocations) PatientLocation(_ context.Context, id types.ID) (types.Location, error) {
	loc, ok := f[id]
	if !ok {
		return types.Location{}, location.ErrPatientNotFound
	}
	return loc, nil
}

type fakeDoctors map[types.ID]doctor.Doctor

func (f fakeDoctors) Get(_ context.Context, id types.ID) (doctor.Doctor, error) {
	d, ok := f[id]
	if !ok {
		return doctor.Doctor{}, doctor.ErrNotFound
	}
	return d, nil
}

// flatOracle returns the same minutes for every pair and counts calls.
type flatOracle struct {
	mu      sync.Mutex
	minutes int
	calls   int
}

func (o *flatOracle) EstimateTravelMinutes(_ context.Context, _, _ types.Point) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	return o.minutes
}

// noLocker lets every caller through so only the store's version check guards commits.
type noLocker struct{}

func (noLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

type fixture struct {
	v      *Validator
	store  *appointment.MemoryStore
	oracle *flatOracle
}

func newFixture(t *testing.T, locker Locker) fixture {
	t.Helper()
	store := appointment.NewMemoryStore()
	doctors := fakeDoctors{
		"d1": {ID: "d1", Name: "Dr. Lin", Status: doctor.StatusAvailable},
		"d2": {ID: "d2", Name: "Dr. Chen", Status: doctor.StatusAvailable},
		"d3": {ID: "d3", Name: "Dr. Wu", Status: doctor.StatusOnLeave},
	}
	for id := range doctors {
		store.AddDoctor(id)
	}
	oracle := &flatOracle{minutes: 10}
	v := NewValidator(
		fakeLocations{"p1": home1, "p2": home2, "p3": home2},
		doctors,
		store,
		feasibility.NewEngine(oracle, feasibility.DefaultBufferMinutes),
		locker,
		30,
		zerolog.Nop(),
	)
	return fixture{v: v, store: store, oracle: oracle}
}

func TestValidateAndBookPersistsPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewLocalLocker(time.Second))

	out, err := f.v.ValidateAndBook(ctx, BookCommand{PatientID: "p1", DoctorID: "d1", Time: "2024-03-01 09:00"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Accepted || out.AppointmentID == "" {
		t.Fatalf("expected acceptance, got %+v", out)
	}

	a, err := f.store.Get(ctx, out.AppointmentID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.Status != appointment.StatusPending || a.Date != "2024-03-01" || a.StartMinute != 540 || a.DurationMinutes != 30 {
		t.Fatalf("unexpected appointment: %+v", a)
	}
	if a.Location != home1 {
		t.Fatalf("expected patient location, got %+v", a.Location)
	}
	if ev := f.store.Events(); len(ev) != 1 || ev[0].ToStatus != appointment.StatusPending {
		t.Fatalf("expected one creation event, got %+v", ev)
	}
}

func TestValidateAndBookRejectsOverlapWithoutWriting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewLocalLocker(time.Second))

	if _, err := f.v.ValidateAndBook(ctx, BookCommand{PatientID: "p1", DoctorID: "d1", Time: "2024-03-01 09:00"}); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	out, err := f.v.ValidateAndBook(ctx, BookCommand{PatientID: "p2", DoctorID: "d1", Time: "2024-03-01 09:15"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Accepted || out.Result.Reason != feasibility.ReasonTimeOverlap {
		t.Fatalf("expected TimeOverlap rejection, got %+v", out)
	}
	day, _ := f.store.ListByDoctor(ctx, "d1", "2024-03-01")
	if len(day) != 1 {
		t.Fatalf("expected one visit on the day, got %d", len(day))
	}
}

func TestValidateAndBookPatientDoubleBooked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewLocalLocker(time.Second))

	if _, err := f.v.ValidateAndBook(ctx, BookCommand{PatientID: "p1", DoctorID: "d1", Time: "2024-03-01 10:00"}); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	out, err := f.v.ValidateAndBook(ctx, BookCommand{PatientID: "p1", DoctorID: "d2", Time: "2024-03-01 10:00"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Accepted || out.Result.Reason != feasibility.ReasonPatientDoubleBooked {
		t.Fatalf("expected PatientDoubleBooked, got %+v", out)
	}

	// A different start on the same day is not a collision.
	out, err = f.v.ValidateAndBook(ctx, BookCommand{PatientID: "p1", DoctorID: "d2", Time: "2024-03-01 11:00"})
	if err != nil || !out.Accepted {
		t.Fatalf("expected acceptance at a different time, got %+v, %v", out, err)
	}
}

func TestValidateAndBookTravelShortfall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewLocalLocker(time.Second))

	if _, err := f.v.ValidateAndBook(ctx, BookCommand{PatientID: "p1", DoctorID: "d1", Time: "2024-03-01 09:00"}); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	// Previous visit ends 09:30; 10 min travel + 5 min buffer needs 09:45.
	out, err := f.v.ValidateAndBook(ctx, BookCommand{PatientID: "p2", DoctorID: "d1", Time: "2024-03-01 09:35"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Result.Reason != feasibility.ReasonInsufficientTravelFromPrev || out.Result.ShortfallMinutes != 10 {
		t.Fatalf("expected 10 min shortfall from previous, got %+v", out.Result)
	}
}

func TestValidateAndBookDoctorUnavailable(t *testing.T) {
	f := newFixture(t, NewLocalLocker(time.Second))

	out, err := f.v.ValidateAndBook(context.Background(), BookCommand{PatientID: "p1", DoctorID: "d3", Time: "09:00"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Accepted || out.Result.Reason != feasibility.ReasonDoctorUnavailable {
		t.Fatalf("expected DoctorUnavailable, got %+v", out)
	}
	if f.oracle.calls != 0 {
		t.Fatalf("expected no oracle calls, got %d", f.oracle.calls)
	}
}

func TestValidateAndBookReferentialErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewLocalLocker(time.Second))

	if _, err := f.v.ValidateAndBook(ctx, BookCommand{PatientID: "ghost", DoctorID: "d1", Time: "09:00"}); !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
	if _, err := f.v.ValidateAndBook(ctx, BookCommand{PatientID: "p1", DoctorID: "nobody", Time: "09:00"}); !errors.Is(err, ErrDoctorNotFound) {
		t.Fatalf("expected ErrDoctorNotFound, got %v", err)
	}
	if _, err := f.v.ValidateAndBook(ctx, BookCommand{PatientID: "p1", DoctorID: "d1"}); !errors.Is(err, appointment.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest without a time, got %v", err)
	}
}

func TestCheckConflictDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewLocalLocker(time.Second))

	out, err := f.v.CheckConflict(ctx, BookCommand{PatientID: "p1", DoctorID: "d1", Time: "2024-03-01 09:00", Duration: 45})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Accepted || out.AppointmentID != "" {
		t.Fatalf("expected available without an id, got %+v", out)
	}
	day, _ := f.store.ListByDoctor(ctx, "d1", "2024-03-01")
	if len(day) != 0 {
		t.Fatalf("availability check must not persist, found %d visits", len(day))
	}
}

func TestConcurrentBookingsSameDoctor(t *testing.T) {
	lockers := map[string]Locker{
		"local lock":   NewLocalLocker(5 * time.Second),
		"version only": noLocker{},
	}
	for name, locker := range lockers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, locker)

			const n = 10
			var wg sync.WaitGroup
			type result struct {
				out Outcome
				err error
			}
			results := make(chan result, n)
			patients := []types.ID{"p1", "p2", "p3"}
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					out, err := f.v.ValidateAndBook(ctx, BookCommand{
						PatientID: patients[i%len(patients)],
						DoctorID:  "d1",
						Time:      "2024-03-01 09:00",
						Duration:  60,
					})
					results <- result{out, err}
				}(i)
			}
			wg.Wait()
			close(results)

			accepted := 0
			for r := range results {
				if r.err != nil {
					if !errors.Is(r.err, appointment.ErrConflict) {
						t.Fatalf("unexpected error: %v", r.err)
					}
					continue
				}
				if r.out.Accepted {
					accepted++
				}
			}
			if accepted != 1 {
				t.Fatalf("expected exactly one booking, got %d", accepted)
			}
			day, _ := f.store.ListByDoctor(ctx, "d1", "2024-03-01")
			if len(day) != 1 {
				t.Fatalf("expected one visit persisted, got %d", len(day))
			}
		})
	}
}

func TestRescheduleKeepsIDAndIgnoresOwnSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewLocalLocker(time.Second))

	booked, err := f.v.ValidateAndBook(ctx, BookCommand{PatientID: "p1", DoctorID: "d1", Time: "2024-03-01 09:00"})
	if err != nil || !booked.Accepted {
		t.Fatalf("book: %+v, %v", booked, err)
	}

	// 09:10 overlaps the appointment's own old slot, which must not count.
	out, err := f.v.Reschedule(ctx, RescheduleCommand{AppointmentID: booked.AppointmentID, Time: "2024-03-01 09:10", Duration: 45})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if !out.Accepted || out.AppointmentID != booked.AppointmentID {
		t.Fatalf("expected accepted edit with same id, got %+v", out)
	}
	a, _ := f.store.Get(ctx, booked.AppointmentID)
	if a.StartMinute != 550 || a.DurationMinutes != 45 || a.Version != 1 {
		t.Fatalf("unexpected appointment after edit: %+v", a)
	}
}

func TestRescheduleToAnotherDoctor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewLocalLocker(time.Second))

	booked, _ := f.v.ValidateAndBook(ctx, BookCommand{PatientID: "p1", DoctorID: "d1", Time: "2024-03-01 09:00"})
	blocker, _ := f.v.ValidateAndBook(ctx, BookCommand{PatientID: "p2", DoctorID: "d2", Time: "2024-03-01 13:00"})
	if !booked.Accepted || !blocker.Accepted {
		t.Fatal("setup bookings failed")
	}

	out, err := f.v.Reschedule(ctx, RescheduleCommand{AppointmentID: booked.AppointmentID, DoctorID: "d2", Time: "2024-03-01 13:15"})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if out.Accepted || out.Result.Reason != feasibility.ReasonTimeOverlap {
		t.Fatalf("expected overlap on the new doctor, got %+v", out)
	}

	out, err = f.v.Reschedule(ctx, RescheduleCommand{AppointmentID: booked.AppointmentID, DoctorID: "d2", Time: "2024-03-01 15:00"})
	if err != nil || !out.Accepted {
		t.Fatalf("expected move to d2, got %+v, %v", out, err)
	}
	old, _ := f.store.ListByDoctor(ctx, "d1", "2024-03-01")
	moved, _ := f.store.ListByDoctor(ctx, "d2", "2024-03-01")
	if len(old) != 0 || len(moved) != 2 {
		t.Fatalf("expected d1 empty and d2 with two visits, got %d and %d", len(old), len(moved))
	}
}

func TestRescheduleCancelled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewLocalLocker(time.Second))

	booked, _ := f.v.ValidateAndBook(ctx, BookCommand{PatientID: "p1", DoctorID: "d1", Time: "2024-03-01 09:00"})
	svc := appointment.NewService(f.store, zerolog.Nop())
	if err := svc.Cancel(ctx, appointment.CancelCommand{AppointmentID: booked.AppointmentID}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.v.Reschedule(ctx, RescheduleCommand{AppointmentID: booked.AppointmentID, Time: "2024-03-01 10:00"}); !errors.Is(err, appointment.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func fixedClock(date string, hour int) func() time.Time {
	day, _ := time.Parse(time.DateOnly, date)
	return func() time.Time { return day.Add(time.Duration(hour) * time.Hour) }
}

func TestBareTimeSharesTheDatedDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewLocalLocker(time.Second))
	f.v.WithClock(fixedClock("2024-03-01", 7))

	if out, err := f.v.ValidateAndBook(ctx, BookCommand{PatientID: "p1", DoctorID: "d1", Time: "2024-03-01 09:00", Duration: 30}); err != nil || !out.Accepted {
		t.Fatalf("dated booking: %+v, %v", out, err)
	}
	out, err := f.v.ValidateAndBook(ctx, BookCommand{PatientID: "p2", DoctorID: "d1", Time: "09:15", Duration: 30})
	if err != nil {
		t.Fatal(err)
	}
	if out.Accepted || out.Result.Reason != feasibility.ReasonTimeOverlap {
		t.Fatalf("expected bare 09:15 to overlap the dated 09:00 visit, got %+v", out)
	}
	day, _ := f.store.ListByDoctor(ctx, "d1", "2024-03-01")
	if len(day) != 1 {
		t.Fatalf("expected a single visit on d1, got %d", len(day))
	}

	// Same patient, same start, one request dated and one bare.
	out, err = f.v.ValidateAndBook(ctx, BookCommand{PatientID: "p1", DoctorID: "d2", Time: "09:00"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Accepted || out.Result.Reason != feasibility.ReasonPatientDoubleBooked {
		t.Fatalf("expected PatientDoubleBooked, got %+v", out)
	}
}

func TestBareTimeIsStoredWithTodaysDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewLocalLocker(time.Second))
	f.v.WithClock(fixedClock("2024-03-04", 7))

	out, err := f.v.ValidateAndBook(ctx, BookCommand{PatientID: "p1", DoctorID: "d1", Time: "11:30"})
	if err != nil || !out.Accepted {
		t.Fatalf("book: %+v, %v", out, err)
	}
	a, _ := f.store.Get(ctx, out.AppointmentID)
	if a.Date != "2024-03-04" || a.StartMinute != 690 {
		t.Fatalf("expected 2024-03-04 11:30, got %s %d", a.Date, a.StartMinute)
	}
}

func TestRescheduleBareTimeKeepsAppointmentDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewLocalLocker(time.Second))
	f.v.WithClock(fixedClock("2024-03-01", 7))

	booked, err := f.v.ValidateAndBook(ctx, BookCommand{PatientID: "p1", DoctorID: "d1", Time: "2024-03-05 09:00"})
	if err != nil || !booked.Accepted {
		t.Fatalf("book: %+v, %v", booked, err)
	}
	out, err := f.v.Reschedule(ctx, RescheduleCommand{AppointmentID: booked.AppointmentID, Time: "11:00"})
	if err != nil || !out.Accepted {
		t.Fatalf("reschedule: %+v, %v", out, err)
	}
	a, _ := f.store.Get(ctx, booked.AppointmentID)
	if a.Date != "2024-03-05" || a.StartMinute != 660 {
		t.Fatalf("expected 2024-03-05 11:00, got %s %d", a.Date, a.StartMinute)
	}

	if _, err := f.v.Reschedule(ctx, RescheduleCommand{AppointmentID: booked.AppointmentID, Time: "tomorrow 10:00"}); !errors.Is(err, appointment.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for an unreadable date, got %v", err)
	}
}

func TestUnreadableTimeIsBadRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewLocalLocker(time.Second))

	for _, when := range []string{"9:00 AM", "noon", "2024-13-01 09:00"} {
		if _, err := f.v.ValidateAndBook(ctx, BookCommand{PatientID: "p1", DoctorID: "d1", Time: when}); !errors.Is(err, appointment.ErrBadRequest) {
			t.Fatalf("%q: expected ErrBadRequest, got %v", when, err)
		}
		if _, err := f.v.CheckConflict(ctx, BookCommand{PatientID: "p1", DoctorID: "d1", Time: when}); !errors.Is(err, appointment.ErrBadRequest) {
			t.Fatalf("%q: CheckConflict expected ErrBadRequest, got %v", when, err)
		}
	}
	if day, _ := f.store.ListByDoctor(ctx, "d1", "2024-03-01"); len(day) != 0 {
		t.Fatalf("nothing should be written, got %d", len(day))
	}
	if f.oracle.calls != 0 {
		t.Fatalf("expected no oracle calls, got %d", f.oracle.calls)
	}
}
