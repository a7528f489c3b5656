// README: Doctor directory entry and availability status.
package doctor

import "homecare/internal/types"

type Status string

const (
	StatusAvailable Status = "Available"
	StatusBusy      Status = "Busy"
	StatusOnLeave   Status = "On Leave"
)

type Doctor struct {
	ID     types.ID
	Name   string
	Status Status
}

// AcceptsBookings is false for doctors marked Busy or On Leave; their schedule
// is not consulted at all.
func (d Doctor) AcceptsBookings() bool {
	return d.Status == StatusAvailable || d.Status == ""
}

// UnavailableReason is the user-facing text for a doctor who does not accept bookings.
func (d Doctor) UnavailableReason() string {
	switch d.Status {
	case StatusOnLeave:
		return "doctor is on leave"
	case StatusBusy:
		return "doctor is busy and not accepting bookings"
	default:
		return ""
	}
}
