// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"homecare/internal/modules/appointment"
	"homecare/internal/modules/booking"
	"homecare/internal/modules/feasibility"
	"homecare/internal/modules/matching"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts the ids this service hands out (uuids) and the short
// codes used for seeded patients and doctors.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func isValidDate(v string) bool {
	_, err := time.Parse(time.DateOnly, v)
	return err == nil
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeBookingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, appointment.ErrBadRequest), errors.Is(err, matching.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrPatientNotFound),
		errors.Is(err, booking.ErrDoctorNotFound),
		errors.Is(err, appointment.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, appointment.ErrInvalidState):
		writeError(c, http.StatusConflict, err.Error())
	case booking.IsRejected(err):
		writeError(c, http.StatusConflict, "doctor schedule changed, please retry")
	default:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("request failed")
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

type resultResponse struct {
	Available        bool   `json:"available"`
	Reason           string `json:"reason,omitempty"`
	Message          string `json:"message,omitempty"`
	TravelTime       int    `json:"travelTime"`
	RequiredMinutes  int    `json:"requiredMinutes,omitempty"`
	ShortfallMinutes int    `json:"shortfallMinutes,omitempty"`
	ConflictWith     string `json:"conflictWith,omitempty"`
}

func toResultResponse(r feasibility.Result) resultResponse {
	return resultResponse{
		Available:        r.Feasible,
		Reason:           string(r.Reason),
		Message:          r.Message,
		TravelTime:       r.TravelMinutes,
		RequiredMinutes:  r.RequiredMinutes,
		ShortfallMinutes: r.ShortfallMinutes,
		ConflictWith:     string(r.ConflictWith),
	}
}

const badTimeMessage = "time must be HH:MM or YYYY-MM-DD HH:MM"

// slotRequest accepts both the booking names (time, duration) and the
// field names (newTime, newDuration) used by the scheduling front end.
type slotRequest struct {
	PatientID   string `json:"patientId"`
	DoctorID    string `json:"doctorId"`
	Time        string `json:"time"`
	Duration    int    `json:"duration"`
	NewTime     string `json:"newTime"`
	NewDuration int    `json:"newDuration"`
}

func (r slotRequest) when() string {
	if r.NewTime != "" {
		return r.NewTime
	}
	return r.Time
}

func (r slotRequest) minutes() int {
	if r.NewDuration > 0 {
		return r.NewDuration
	}
	return r.Duration
}
