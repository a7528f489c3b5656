// README: Appointment aggregate and status definitions.
package appointment

import (
	"time"

	"homecare/internal/modules/feasibility"
	"homecare/internal/types"
)

type Status string

const (
	StatusNone      Status = "none"
	StatusPending   Status = "Pending"
	StatusConfirmed Status = "Confirmed"
	StatusCancelled Status = "Cancelled"
)

const DefaultDurationMinutes = 30

type Appointment struct {
	ID              types.ID
	PatientID       types.ID
	DoctorID        *types.ID
	Date            string
	StartMinute     int
	DurationMinutes int
	Status          Status
	Version         int
	Location        types.Location
	CreatedAt       time.Time
	ConfirmedAt     *time.Time
	CancelledAt     *time.Time
	CancelReason    *string
}

func (a Appointment) EndMinute() int {
	return a.StartMinute + a.DurationMinutes
}

func (a Appointment) Active() bool {
	return a.Status != StatusCancelled
}

func (a Appointment) AssignedTo(doctorID types.ID) bool {
	return a.DoctorID != nil && *a.DoctorID == doctorID
}

func (a Appointment) Visit() feasibility.Visit {
	return feasibility.Visit{
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		Start:         a.StartMinute,
		Duration:      a.DurationMinutes,
		Location:      a.Location,
	}
}

// Listing is an appointment with the display names of its patient and doctor.
// A name is empty when the record is missing or no doctor is assigned.
type Listing struct {
	Appointment
	PatientName string
	DoctorName  string
}

// ListFilter narrows List; zero fields match everything.
type ListFilter struct {
	Date     string
	DoctorID types.ID
	Status   Status
	Limit    int
}

type Event struct {
	ID            int64
	AppointmentID types.ID
	FromStatus    Status
	ToStatus      Status
	ActorType     string
	ActorID       *types.ID
	CreatedAt     time.Time
}

// AllowedTransitions represents the appointment state flow as code.
// Cancelled is terminal.
var AllowedTransitions = map[Status][]Status{
	StatusNone:      {StatusPending},
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// NormalizeDuration applies the default visit length to unset or invalid durations.
func NormalizeDuration(minutes int) int {
	if minutes <= 0 {
		return DefaultDurationMinutes
	}
	return minutes
}
