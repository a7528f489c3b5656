// README: Patient location store backed by PostgreSQL.
package location

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"homecare/internal/types"
)

var ErrPatientNotFound = errors.New("patient not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetPatient(ctx context.Context, id types.ID) (Patient, error) {
	var p Patient
	var lat, lng sql.NullFloat64
	err := s.db.QueryRow(ctx,
		`SELECT id, name, lat, lng, address FROM patients WHERE id = $1`, string(id),
	).Scan(&p.ID, &p.Name, &lat, &lng, &p.Address)
	if errors.Is(err, pgx.ErrNoRows) {
		return Patient{}, ErrPatientNotFound
	}
	if err != nil {
		return Patient{}, err
	}
	p.Point = types.Point{Lat: lat.Float64, Lng: lng.Float64}
	return p, nil
}
