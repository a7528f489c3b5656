package doctor

import (
	"context"

	"homecare/internal/types"
)

type Repository interface {
	Get(ctx context.Context, id types.ID) (Doctor, error)
	List(ctx context.Context) ([]Doctor, error)
}

type Service struct {
	store Repository
}

func NewService(store Repository) *Service {
	return &Service{store: store}
}

func (s *Service) Get(ctx context.Context, id types.ID) (Doctor, error) {
	return s.store.Get(ctx, id)
}

// ListAvailable returns the doctors that accept bookings, ordered by id.
func (s *Service) ListAvailable(ctx context.Context) ([]Doctor, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Doctor, 0, len(all))
	for _, d := range all {
		if d.AcceptsBookings() {
			out = append(out, d)
		}
	}
	return out, nil
}
