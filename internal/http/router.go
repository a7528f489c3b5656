// README: HTTP router registration.
package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"homecare/internal/http/handlers"
	"homecare/internal/http/middleware"
)

// BookingService is the validator seen from the transport side.
type BookingService interface {
	handlers.Booker
	handlers.ConflictChecker
}

type RouterDeps struct {
	Ranker          handlers.Ranker
	Booker          BookingService
	Appointments    handlers.Appointments
	DB              handlers.Pinger
	DefaultDuration int
	CORSOrigins     []string
	Log             zerolog.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logging(deps.Log),
		middleware.Recovery(),
		middleware.CORS(deps.CORSOrigins),
	)

	availability := handlers.NewAvailabilityHandler(deps.Ranker, deps.Booker, deps.DefaultDuration)
	appointments := handlers.NewAppointmentHandler(deps.Booker, deps.Appointments, deps.Ranker)

	api := r.Group("/api")
	api.POST("/find-available-doctors", availability.FindAvailableDoctors)
	api.POST("/check-availability", availability.CheckAvailability)

	api.POST("/appointments", appointments.Create)
	api.GET("/appointments", appointments.List)
	api.GET("/appointments/:id", appointments.Get)
	api.GET("/appointments/:id/alternatives", appointments.Alternatives)
	api.PUT("/appointments/:id", appointments.Update)
	api.POST("/appointments/:id/confirm", appointments.Confirm)
	api.DELETE("/appointments/:id", appointments.Cancel)

	api.GET("/doctors/:id/route", appointments.DoctorRoute)

	r.GET("/health", handlers.Health(deps.DB))
	return r
}
