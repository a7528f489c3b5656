// README: Location resolver maps a patient id to the coordinate a visit happens at.
package location

import (
	"context"

	"github.com/rs/zerolog"

	"homecare/internal/types"
)

type Repository interface {
	GetPatient(ctx context.Context, id types.ID) (Patient, error)
}

type Service struct {
	store    Repository
	fallback types.Location
	log      zerolog.Logger
}

// NewService returns a resolver that answers with fallback for patients whose
// record carries no usable coordinates.
func NewService(store Repository, fallback types.Location, log zerolog.Logger) *Service {
	return &Service{store: store, fallback: fallback, log: log}
}

// PatientLocation returns ErrPatientNotFound only when the record itself is
// missing; a patient without coordinates resolves to the fallback location.
func (s *Service) PatientLocation(ctx context.Context, id types.ID) (types.Location, error) {
	p, err := s.store.GetPatient(ctx, id)
	if err != nil {
		return types.Location{}, err
	}
	if !p.Point.HasCoordinates() {
		s.log.Debug().Str("patient_id", string(id)).Msg("patient has no coordinates, using default location")
		loc := s.fallback
		if p.Address != "" {
			loc.Address = p.Address
		}
		return loc, nil
	}
	return p.Location(), nil
}
