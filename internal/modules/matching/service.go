// README: Matching service ranks doctors who can fit a requested visit.
package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"homecare/internal/maps"
	"homecare/internal/modules/doctor"
	"homecare/internal/modules/feasibility"
	"homecare/internal/types"
)

const (
	DefaultConcurrency = 8
	// DefaultAlternatives caps the replacement doctors offered for one appointment.
	DefaultAlternatives = 5
)

var ErrBadRequest = errors.New("bad request")

type LocationResolver interface {
	PatientLocation(ctx context.Context, id types.ID) (types.Location, error)
}

type DoctorLister interface {
	ListAvailable(ctx context.Context) ([]doctor.Doctor, error)
}

type ScheduleReader interface {
	ActiveSchedule(ctx context.Context, doctorID types.ID, date string) (feasibility.Schedule, error)
}

type Service struct {
	locations   LocationResolver
	doctors     DoctorLister
	schedules   ScheduleReader
	engine      *feasibility.Engine
	oracle      maps.Estimator
	concurrency int
	log         zerolog.Logger
	now         func() time.Time
}

func NewService(
	locations LocationResolver,
	doctors DoctorLister,
	schedules ScheduleReader,
	oracle maps.Estimator,
	bufferMinutes int,
	concurrency int,
	log zerolog.Logger,
) *Service {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Service{
		locations:   locations,
		doctors:     doctors,
		schedules:   schedules,
		engine:      feasibility.NewEngine(oracle, bufferMinutes),
		oracle:      oracle,
		concurrency: concurrency,
		log:         log.With().Str("module", "matching").Logger(),
		now:         time.Now,
	}
}

// WithClock sets the clock that decides which day an undated request is for.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// FindCandidates returns every available doctor whose day can take the
// requested visit, nearest first (ties broken by doctor id). No match is an
// empty slice, not an error.
func (s *Service) FindCandidates(ctx context.Context, req Request) ([]Candidate, error) {
	if req.PatientID == "" || req.Duration <= 0 {
		return nil, ErrBadRequest
	}
	if req.Date == "" {
		req.Date = types.Today(s.now())
	}
	var loc types.Location
	if req.Location != nil {
		loc = *req.Location
	} else {
		resolved, err := s.locations.PatientLocation(ctx, req.PatientID)
		if err != nil {
			return nil, err
		}
		loc = resolved
	}
	docs, err := s.doctors.ListAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}

	// Every doctor shares the patient's point, so one memo per request lets
	// doctors with a common neighbour reuse the estimate.
	engine := s.engine.WithOracle(maps.NewMemo(s.oracle))
	cand := feasibility.Candidate{
		PatientID: req.PatientID,
		Start:     req.Start,
		Duration:  req.Duration,
		Location:  loc,
	}

	var mu sync.Mutex
	out := make([]Candidate, 0, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, d := range docs {
		d := d
		g.Go(func() error {
			sched, err := s.schedules.ActiveSchedule(gctx, d.ID, req.Date)
			if errors.Is(err, doctor.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("schedule for doctor %s: %w", d.ID, err)
			}
			res := engine.Check(gctx, sched.Visits, cand)
			if !res.Feasible {
				s.log.Debug().
					Str("doctor_id", string(d.ID)).
					Str("reason", string(res.Reason)).
					Msg("doctor rejected")
				return nil
			}
			mu.Lock()
			out = append(out, Candidate{DoctorID: d.ID, DoctorName: d.Name, TravelMinutes: res.TravelMinutes})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	SortCandidates(out)
	return out, nil
}

// Alternatives ranks replacement doctors for a visit already assigned to
// current: the same slot is searched, current is left out and at most limit
// candidates are returned.
func (s *Service) Alternatives(ctx context.Context, req Request, current types.ID, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = DefaultAlternatives
	}
	found, err := s.FindCandidates(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, min(limit, len(found)))
	for _, c := range found {
		if c.DoctorID == current {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, c)
	}
	return out, nil
}

func SortCandidates(list []Candidate) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].TravelMinutes != list[j].TravelMinutes {
			return list[i].TravelMinutes < list[j].TravelMinutes
		}
		return list[i].DoctorID < list[j].DoctorID
	})
}
