// README: Insertion check of a candidate visit into a doctor's ordered schedule.
package feasibility

import (
	"context"
	"fmt"
	"sort"

	"homecare/internal/types"
)

const DefaultBufferMinutes = 5

type TravelEstimator interface {
	EstimateTravelMinutes(ctx context.Context, origin, dest types.Point) int
}

// Engine binds CheckInsertion to an oracle and a fixed buffer.
type Engine struct {
	oracle TravelEstimator
	buffer int
}

func NewEngine(oracle TravelEstimator, bufferMinutes int) *Engine {
	if bufferMinutes < 0 {
		bufferMinutes = DefaultBufferMinutes
	}
	return &Engine{oracle: oracle, buffer: bufferMinutes}
}

func (e *Engine) BufferMinutes() int { return e.buffer }

func (e *Engine) Check(ctx context.Context, visits []Visit, c Candidate) Result {
	return CheckInsertion(ctx, e.oracle, visits, c, e.buffer)
}

// WithOracle returns an engine sharing the buffer but using another estimator,
// typically a per-request memo around the shared oracle.
func (e *Engine) WithOracle(oracle TravelEstimator) *Engine {
	return &Engine{oracle: oracle, buffer: e.buffer}
}

// CheckInsertion decides whether c fits into visits, which must be ordered by
// Start and free of overlaps. Overlap is checked before any oracle call, and
// at most two oracle calls are made: predecessor to candidate and candidate
// to successor.
func CheckInsertion(ctx context.Context, oracle TravelEstimator, visits []Visit, c Candidate, bufferMinutes int) Result {
	start, end := c.Start, c.End()

	for _, v := range visits {
		if types.Overlaps(start, end, v.Start, v.End()) {
			r := Reject(ReasonTimeOverlap, fmt.Sprintf(
				"requested %s-%s overlaps existing visit %s-%s",
				types.FormatMinutes(start), types.FormatMinutes(end),
				types.FormatMinutes(v.Start), types.FormatMinutes(v.End()),
			))
			r.ConflictWith = v.AppointmentID
			return r
		}
	}

	// With overlaps excluded every visit lies wholly before or after the
	// candidate, so the first visit starting at or after end is the successor
	// and the one before it is the predecessor.
	next := sort.Search(len(visits), func(i int) bool { return visits[i].Start >= end })

	travelFromPrev := 0
	if next > 0 {
		prev := visits[next-1]
		travelFromPrev = oracle.EstimateTravelMinutes(ctx, prev.Location.Point, c.Location.Point)
		earliest := prev.End() + travelFromPrev + bufferMinutes
		if earliest > start {
			r := Reject(ReasonInsufficientTravelFromPrev, fmt.Sprintf(
				"needs %d min travel + %d min buffer after the visit ending %s; earliest start is %s",
				travelFromPrev, bufferMinutes, types.FormatMinutes(prev.End()), types.FormatMinutes(earliest),
			))
			r.TravelMinutes = travelFromPrev
			r.RequiredMinutes = travelFromPrev + bufferMinutes
			r.ShortfallMinutes = earliest - start
			r.ConflictWith = prev.AppointmentID
			return r
		}
	}

	if next < len(visits) {
		succ := visits[next]
		travelToNext := oracle.EstimateTravelMinutes(ctx, c.Location.Point, succ.Location.Point)
		arrival := end + travelToNext + bufferMinutes
		if arrival > succ.Start {
			r := Reject(ReasonInsufficientTravelToNext, fmt.Sprintf(
				"needs %d min travel + %d min buffer before the visit at %s; latest end is %s",
				travelToNext, bufferMinutes, types.FormatMinutes(succ.Start),
				types.FormatMinutes(succ.Start-travelToNext-bufferMinutes),
			))
			r.TravelMinutes = travelFromPrev
			r.RequiredMinutes = travelToNext + bufferMinutes
			r.ShortfallMinutes = arrival - succ.Start
			r.ConflictWith = succ.AppointmentID
			return r
		}
	}

	return Feasible(travelFromPrev)
}
