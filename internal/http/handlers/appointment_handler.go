// README: Appointment handlers for book/get/edit/confirm/cancel.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"homecare/internal/modules/appointment"
	"homecare/internal/modules/booking"
	"homecare/internal/modules/matching"
	"homecare/internal/types"
)

type Booker interface {
	ValidateAndBook(ctx context.Context, cmd booking.BookCommand) (booking.Outcome, error)
	Reschedule(ctx context.Context, cmd booking.RescheduleCommand) (booking.Outcome, error)
}

type Appointments interface {
	Get(ctx context.Context, id types.ID) (*appointment.Appointment, error)
	List(ctx context.Context, f appointment.ListFilter) ([]appointment.Listing, error)
	Confirm(ctx context.Context, cmd appointment.ConfirmCommand) error
	Cancel(ctx context.Context, cmd appointment.CancelCommand) error
	DoctorRoute(ctx context.Context, doctorID types.ID, date string) ([]appointment.Appointment, error)
}

type AppointmentHandler struct {
	booker       Booker
	appointments Appointments
	ranker       Ranker
}

func NewAppointmentHandler(booker Booker, appointments Appointments, ranker Ranker) *AppointmentHandler {
	return &AppointmentHandler{booker: booker, appointments: appointments, ranker: ranker}
}

type appointmentResponse struct {
	ID           types.ID   `json:"id"`
	PatientID    types.ID   `json:"patientId"`
	DoctorID     *types.ID  `json:"doctorId"`
	Date         string     `json:"date,omitempty"`
	Time         string     `json:"time"`
	Duration     int        `json:"duration"`
	Status       string     `json:"status"`
	Lat          float64    `json:"lat"`
	Lng          float64    `json:"lng"`
	Location     string     `json:"location"`
	CreatedAt    time.Time  `json:"createdAt"`
	ConfirmedAt  *time.Time `json:"confirmedAt,omitempty"`
	CancelledAt  *time.Time `json:"cancelledAt,omitempty"`
	CancelReason *string    `json:"cancelReason,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:           a.ID,
		PatientID:    a.PatientID,
		DoctorID:     a.DoctorID,
		Date:         a.Date,
		Time:         types.FormatMinutes(a.StartMinute),
		Duration:     a.DurationMinutes,
		Status:       string(a.Status),
		Lat:          a.Location.Lat,
		Lng:          a.Location.Lng,
		Location:     a.Location.Address,
		CreatedAt:    a.CreatedAt,
		ConfirmedAt:  a.ConfirmedAt,
		CancelledAt:  a.CancelledAt,
		CancelReason: a.CancelReason,
	}
}

type bookingResponse struct {
	AppointmentID types.ID `json:"appointmentId,omitempty"`
	Status        string   `json:"status,omitempty"`
	resultResponse
}

// writeOutcome answers 201/200 for an accepted booking and 409 with the
// rejection reason otherwise.
func writeOutcome(c *gin.Context, okStatus int, out booking.Outcome) {
	body := bookingResponse{resultResponse: toResultResponse(out.Result)}
	if !out.Accepted {
		writeJSON(c, http.StatusConflict, body)
		return
	}
	body.AppointmentID = out.AppointmentID
	body.Status = string(appointment.StatusPending)
	writeJSON(c, okStatus, body)
}

func (h *AppointmentHandler) Create(c *gin.Context) {
	var req slotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !isValidID(req.PatientID) || !isValidID(req.DoctorID) || req.when() == "" {
		writeError(c, http.StatusBadRequest, "patientId, doctorId and time are required")
		return
	}
	if _, _, ok := types.SplitSlot(req.when()); !ok {
		writeError(c, http.StatusBadRequest, badTimeMessage)
		return
	}
	out, err := h.booker.ValidateAndBook(c.Request.Context(), booking.BookCommand{
		PatientID: types.ID(req.PatientID),
		DoctorID:  types.ID(req.DoctorID),
		Time:      req.when(),
		Duration:  req.minutes(),
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeOutcome(c, http.StatusCreated, out)
}

func (h *AppointmentHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid appointment id")
		return
	}
	a, err := h.appointments.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toAppointmentResponse(a))
}

// Update reschedules in place; omitted fields keep their current value.
func (h *AppointmentHandler) Update(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid appointment id")
		return
	}
	var req slotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	for _, v := range []string{req.PatientID, req.DoctorID} {
		if v != "" && !isValidID(v) {
			writeError(c, http.StatusBadRequest, "invalid id")
			return
		}
	}
	if when := req.when(); when != "" {
		if _, _, ok := types.SplitSlot(when); !ok {
			writeError(c, http.StatusBadRequest, badTimeMessage)
			return
		}
	}
	out, err := h.booker.Reschedule(c.Request.Context(), booking.RescheduleCommand{
		AppointmentID: types.ID(id),
		PatientID:     types.ID(req.PatientID),
		DoctorID:      types.ID(req.DoctorID),
		Time:          req.when(),
		Duration:      req.minutes(),
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	if out.Accepted {
		// Status is unchanged by an edit; report the stored one.
		a, err := h.appointments.Get(c.Request.Context(), out.AppointmentID)
		if err != nil {
			writeBookingError(c, err)
			return
		}
		body := bookingResponse{
			AppointmentID:  a.ID,
			Status:         string(a.Status),
			resultResponse: toResultResponse(out.Result),
		}
		writeJSON(c, http.StatusOK, body)
		return
	}
	writeOutcome(c, http.StatusOK, out)
}

func (h *AppointmentHandler) Confirm(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid appointment id")
		return
	}
	var actor *types.ID
	if doctorID := c.Query("doctorId"); isValidID(doctorID) {
		d := types.ID(doctorID)
		actor = &d
	}
	if err := h.appointments.Confirm(c.Request.Context(), appointment.ConfirmCommand{
		AppointmentID: types.ID(id),
		ActorID:       actor,
	}); err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"id": id, "status": appointment.StatusConfirmed})
}

func (h *AppointmentHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid appointment id")
		return
	}
	reason := c.Query("reason")
	if reason == "" {
		reason = "user_cancel"
	}
	if err := h.appointments.Cancel(c.Request.Context(), appointment.CancelCommand{
		AppointmentID: types.ID(id),
		ActorType:     "patient",
		Reason:        reason,
	}); err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"id": id, "status": appointment.StatusCancelled})
}

type routeStop struct {
	AppointmentID types.ID `json:"appointmentId"`
	PatientID     types.ID `json:"patientId"`
	Time          string   `json:"time"`
	Duration      int      `json:"duration"`
	Lat           float64  `json:"lat"`
	Lng           float64  `json:"lng"`
	Location      string   `json:"location"`
}

// DoctorRoute lists the doctor's day in visiting order. Stops without
// coordinates are left out since they cannot be drawn on a map.
func (h *AppointmentHandler) DoctorRoute(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid doctor id")
		return
	}
	date := c.Query("date")
	if date != "" && !isValidDate(date) {
		writeError(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	appts, err := h.appointments.DoctorRoute(c.Request.Context(), types.ID(id), date)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	stops := make([]routeStop, 0, len(appts))
	for _, a := range appts {
		if !a.Location.HasCoordinates() {
			continue
		}
		stops = append(stops, routeStop{
			AppointmentID: a.ID,
			PatientID:     a.PatientID,
			Time:          types.FormatMinutes(a.StartMinute),
			Duration:      a.DurationMinutes,
			Lat:           a.Location.Lat,
			Lng:           a.Location.Lng,
			Location:      a.Location.Address,
		})
	}
	writeJSON(c, http.StatusOK, stops)
}

type listItem struct {
	ID          types.ID  `json:"id"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Duration    int       `json:"duration"`
	Status      string    `json:"status"`
	PatientID   types.ID  `json:"patientId"`
	PatientName string    `json:"patientName"`
	DoctorID    *types.ID `json:"doctorId"`
	DoctorName  string    `json:"doctorName"`
	Location    string    `json:"location"`
}

// List returns appointments ordered by time, filtered by the optional
// date, doctorId and status query parameters.
func (h *AppointmentHandler) List(c *gin.Context) {
	f := appointment.ListFilter{
		Date:   c.Query("date"),
		Status: appointment.Status(c.Query("status")),
	}
	if f.Date != "" && !isValidDate(f.Date) {
		writeError(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	if doctorID := c.Query("doctorId"); doctorID != "" {
		if !isValidID(doctorID) {
			writeError(c, http.StatusBadRequest, "invalid doctor id")
			return
		}
		f.DoctorID = types.ID(doctorID)
	}
	limit, ok := queryLimit(c)
	if !ok {
		writeError(c, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	f.Limit = limit

	list, err := h.appointments.List(c.Request.Context(), f)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	out := make([]listItem, 0, len(list))
	for _, l := range list {
		out = append(out, listItem{
			ID:          l.ID,
			Date:        l.Date,
			Time:        types.FormatMinutes(l.StartMinute),
			Duration:    l.DurationMinutes,
			Status:      string(l.Status),
			PatientID:   l.PatientID,
			PatientName: l.PatientName,
			DoctorID:    l.DoctorID,
			DoctorName:  l.DoctorName,
			Location:    l.Location.Address,
		})
	}
	writeJSON(c, http.StatusOK, out)
}

type alternativesResponse struct {
	AppointmentID   types.ID         `json:"appointmentId"`
	CurrentDoctorID *types.ID        `json:"currentDoctorId"`
	Alternatives    []doctorResponse `json:"alternatives"`
}

// Alternatives ranks replacement doctors for an active appointment's slot;
// the assigned doctor is never offered.
func (h *AppointmentHandler) Alternatives(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid appointment id")
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		writeError(c, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	a, err := h.appointments.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeBookingError(c, err)
		return
	}
	if !a.Active() {
		writeBookingError(c, appointment.ErrInvalidState)
		return
	}

	var current types.ID
	if a.DoctorID != nil {
		current = *a.DoctorID
	}
	req := matching.Request{
		PatientID: a.PatientID,
		Date:      a.Date,
		Start:     a.StartMinute,
		Duration:  a.DurationMinutes,
	}
	if a.Location.HasCoordinates() {
		loc := a.Location
		req.Location = &loc
	}
	found, err := h.ranker.Alternatives(c.Request.Context(), req, current, limit)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, alternativesResponse{
		AppointmentID:   a.ID,
		CurrentDoctorID: a.DoctorID,
		Alternatives:    toDoctorResponses(found),
	})
}

// queryLimit reads ?limit; absent means 0 and lets the service pick its default.
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
