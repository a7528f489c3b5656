// README: Schedule snapshot, candidate visit and the tagged feasibility result.
package feasibility

import "homecare/internal/types"

// Visit is one active (non-cancelled) appointment in a doctor's day.
type Visit struct {
	AppointmentID types.ID
	PatientID     types.ID
	Start         int
	Duration      int
	Location      types.Location
}

func (v Visit) End() int { return v.Start + v.Duration }

// Schedule is a read snapshot of one doctor's day, ordered by Start ascending.
// Version is the doctor's schedule version at read time and is handed back on
// commit for the optimistic check.
type Schedule struct {
	DoctorID types.ID
	Date     string
	Version  int64
	Visits   []Visit
}

// Candidate is a visit being evaluated; it is not persisted.
type Candidate struct {
	PatientID types.ID
	Start     int
	Duration  int
	Location  types.Location
}

func (c Candidate) End() int { return c.Start + c.Duration }

type Reason string

const (
	ReasonNone                       Reason = ""
	ReasonTimeOverlap                Reason = "TimeOverlap"
	ReasonInsufficientTravelFromPrev Reason = "InsufficientTravelTimeFromPrevious"
	ReasonInsufficientTravelToNext   Reason = "InsufficientTravelTimeToNext"
	ReasonPatientDoubleBooked        Reason = "PatientDoubleBooked"
	ReasonDoctorUnavailable          Reason = "DoctorUnavailable"
)

// Result is returned for every check; an infeasible slot is not an error.
type Result struct {
	Feasible bool
	Reason   Reason
	Message  string
	// TravelMinutes is the travel time from the predecessor visit (0 without one).
	TravelMinutes int
	// RequiredMinutes is travel plus buffer for the adjacency that failed.
	RequiredMinutes int
	// ShortfallMinutes is how many minutes the slot is short by.
	ShortfallMinutes int
	ConflictWith     types.ID
}

func Feasible(travelMinutes int) Result {
	return Result{Feasible: true, TravelMinutes: travelMinutes}
}

func Reject(reason Reason, msg string) Result {
	return Result{Reason: reason, Message: msg}
}
