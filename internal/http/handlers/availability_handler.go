// README: Doctor recommendation and availability check handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"homecare/internal/modules/booking"
	"homecare/internal/modules/matching"
	"homecare/internal/types"
)

type Ranker interface {
	FindCandidates(ctx context.Context, req matching.Request) ([]matching.Candidate, error)
	Alternatives(ctx context.Context, req matching.Request, current types.ID, limit int) ([]matching.Candidate, error)
}

type ConflictChecker interface {
	CheckConflict(ctx context.Context, cmd booking.BookCommand) (booking.Outcome, error)
}

type AvailabilityHandler struct {
	ranker          Ranker
	checker         ConflictChecker
	defaultDuration int
}

func NewAvailabilityHandler(ranker Ranker, checker ConflictChecker, defaultDuration int) *AvailabilityHandler {
	return &AvailabilityHandler{ranker: ranker, checker: checker, defaultDuration: defaultDuration}
}

type doctorResponse struct {
	ID         types.ID `json:"id"`
	Name       string   `json:"name"`
	TravelTime int      `json:"travelTime"`
}

func (h *AvailabilityHandler) FindAvailableDoctors(c *gin.Context) {
	var req slotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !isValidID(req.PatientID) || req.when() == "" {
		writeError(c, http.StatusBadRequest, "patientId and newTime are required")
		return
	}
	date, start, ok := types.SplitSlot(req.when())
	if !ok {
		writeError(c, http.StatusBadRequest, badTimeMessage)
		return
	}
	duration := req.minutes()
	if duration <= 0 {
		duration = h.defaultDuration
	}

	found, err := h.ranker.FindCandidates(c.Request.Context(), matching.Request{
		PatientID: types.ID(req.PatientID),
		Date:      date,
		Start:     start,
		Duration:  duration,
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}

	writeJSON(c, http.StatusOK, toDoctorResponses(found))
}

func toDoctorResponses(found []matching.Candidate) []doctorResponse {
	out := make([]doctorResponse, 0, len(found))
	for _, d := range found {
		out = append(out, doctorResponse{ID: d.DoctorID, Name: d.DoctorName, TravelTime: d.TravelMinutes})
	}
	return out
}

// CheckAvailability always answers 200 with available true or false; only
// missing records and malformed input are errors.
func (h *AvailabilityHandler) CheckAvailability(c *gin.Context) {
	var req slotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !isValidID(req.PatientID) || !isValidID(req.DoctorID) || req.when() == "" {
		writeError(c, http.StatusBadRequest, "patientId, doctorId and newTime are required")
		return
	}
	if _, _, ok := types.SplitSlot(req.when()); !ok {
		writeError(c, http.StatusBadRequest, badTimeMessage)
		return
	}
	out, err := h.checker.CheckConflict(c.Request.Context(), booking.BookCommand{
		PatientID: types.ID(req.PatientID),
		DoctorID:  types.ID(req.DoctorID),
		Time:      req.when(),
		Duration:  req.minutes(),
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toResultResponse(out.Result))
}
