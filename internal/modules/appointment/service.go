// README: Appointment service implements status transitions and day-route reads.
package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"homecare/internal/types"
)

var (
	ErrInvalidState = errors.New("invalid state transition")
	ErrNotFound     = errors.New("appointment not found")
	ErrConflict     = errors.New("schedule changed concurrently")
	ErrBadRequest   = errors.New("bad request")
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

type Repository interface {
	Get(ctx context.Context, id types.ID) (*Appointment, error)
	List(ctx context.Context, f ListFilter) ([]Listing, error)
	ListByDoctor(ctx context.Context, doctorID types.ID, date string) ([]Appointment, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, reason *string) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
}

type Service struct {
	store Repository
	log   zerolog.Logger
	now   func() time.Time
}

func NewService(store Repository, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		log:   log.With().Str("module", "appointment").Logger(),
		now:   time.Now,
	}
}

// WithClock sets the clock that decides which day an undated route read is for.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type ConfirmCommand struct {
	AppointmentID types.ID
	ActorID       *types.ID
}

type CancelCommand struct {
	AppointmentID types.ID
	ActorType     string
	Reason        string
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Appointment, error) {
	if id == "" {
		return nil, ErrBadRequest
	}
	return s.store.Get(ctx, id)
}

func (s *Service) Confirm(ctx context.Context, cmd ConfirmCommand) error {
	a, err := s.store.Get(ctx, cmd.AppointmentID)
	if err != nil {
		return err
	}
	if !CanTransition(a.Status, StatusConfirmed) {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, a.ID, a.Status, StatusConfirmed, a.Version, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.appendEvent(ctx, &Event{
		AppointmentID: a.ID,
		FromStatus:    a.Status,
		ToStatus:      StatusConfirmed,
		ActorType:     "doctor",
		ActorID:       cmd.ActorID,
		CreatedAt:     time.Now(),
	})
	return nil
}

func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) error {
	a, err := s.store.Get(ctx, cmd.AppointmentID)
	if err != nil {
		return err
	}
	if !CanTransition(a.Status, StatusCancelled) {
		return ErrInvalidState
	}
	var reason *string
	if cmd.Reason != "" {
		reason = &cmd.Reason
	}
	ok, err := s.store.UpdateStatus(ctx, a.ID, a.Status, StatusCancelled, a.Version, reason)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	actor := cmd.ActorType
	if actor == "" {
		actor = "patient"
	}
	s.appendEvent(ctx, &Event{
		AppointmentID: a.ID,
		FromStatus:    a.Status,
		ToStatus:      StatusCancelled,
		ActorType:     actor,
		CreatedAt:     time.Now(),
	})
	return nil
}

// DoctorRoute returns the doctor's active visits for the day in visiting order.
// An empty date means today.
func (s *Service) DoctorRoute(ctx context.Context, doctorID types.ID, date string) ([]Appointment, error) {
	if doctorID == "" {
		return nil, ErrBadRequest
	}
	if date == "" {
		date = types.Today(s.now())
	}
	return s.store.ListByDoctor(ctx, doctorID, date)
}

// List returns appointments ordered by day, start minute and id.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Listing, error) {
	switch f.Status {
	case "", StatusPending, StatusConfirmed, StatusCancelled:
	default:
		return nil, ErrBadRequest
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	return s.store.List(ctx, f)
}

// The transition already happened; a lost audit row is logged, not surfaced.
func (s *Service) appendEvent(ctx context.Context, e *Event) {
	if err := s.store.AppendEvent(ctx, e); err != nil {
		s.log.Warn().Err(err).
			Str("appointment_id", string(e.AppointmentID)).
			Str("to", string(e.ToStatus)).
			Msg("append appointment event")
	}
}
