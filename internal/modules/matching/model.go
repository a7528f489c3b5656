// README: Ranker request and the doctors it recommends.
package matching

import "homecare/internal/types"

// Request is one visit to place. An empty Date means today. Location, when
// set, is used as is instead of resolving the patient's address.
type Request struct {
	PatientID types.ID
	Date      string
	Start     int
	Duration  int
	Location  *types.Location
}

// Candidate is a doctor who can take the requested slot.
type Candidate struct {
	DoctorID      types.ID
	DoctorName    string
	TravelMinutes int
}
