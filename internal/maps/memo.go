package maps

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"homecare/internal/types"
)

// Memo caches estimates for the lifetime of one request. Concurrent lookups of
// the same ordered pair share a single backend call.
type Memo struct {
	next  Estimator
	group singleflight.Group

	mu   sync.Mutex
	seen map[string]int
}

func NewMemo(next Estimator) *Memo {
	return &Memo{next: next, seen: make(map[string]int)}
}

func (m *Memo) EstimateTravelMinutes(ctx context.Context, origin, dest types.Point) int {
	key := pairKey(origin, dest)

	m.mu.Lock()
	v, ok := m.seen[key]
	m.mu.Unlock()
	if ok {
		return v
	}

	res, _, _ := m.group.Do(key, func() (any, error) {
		m.mu.Lock()
		v, ok := m.seen[key]
		m.mu.Unlock()
		if ok {
			return v, nil
		}
		minutes := m.next.EstimateTravelMinutes(ctx, origin, dest)
		m.mu.Lock()
		m.seen[key] = minutes
		m.mu.Unlock()
		return minutes, nil
	})
	return res.(int)
}

func pairKey(a, b types.Point) string {
	return fmt.Sprintf("%.6f,%.6f>%.6f,%.6f", a.Lat, a.Lng, b.Lat, b.Lng)
}
