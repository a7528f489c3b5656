package appointment

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusNone, StatusPending, true},
		{StatusNone, StatusConfirmed, false},
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCancelled, StatusCancelled, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestNormalizeDuration(t *testing.T) {
	if NormalizeDuration(0) != 30 || NormalizeDuration(-5) != 30 {
		t.Error("expected default 30 for unset durations")
	}
	if NormalizeDuration(45) != 45 {
		t.Error("explicit duration should be kept")
	}
}

func TestAppointmentVisit(t *testing.T) {
	a := Appointment{ID: "a1", PatientID: "p1", StartMinute: 600, DurationMinutes: 45}
	v := a.Visit()
	if v.Start != 600 || v.End() != 645 || v.AppointmentID != "a1" {
		t.Fatalf("unexpected visit: %+v", v)
	}
	if a.EndMinute() != 645 {
		t.Fatalf("unexpected end: %d", a.EndMinute())
	}
}
