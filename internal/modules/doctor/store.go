// README: Doctor store backed by PostgreSQL (read side only).
package doctor

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"homecare/internal/types"
)

var ErrNotFound = errors.New("doctor not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, id types.ID) (Doctor, error) {
	var d Doctor
	err := s.db.QueryRow(ctx,
		`SELECT id, name, status FROM doctors WHERE id = $1`, string(id),
	).Scan(&d.ID, &d.Name, &d.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Doctor{}, ErrNotFound
	}
	if err != nil {
		return Doctor{}, err
	}
	return d, nil
}

func (s *Store) List(ctx context.Context) ([]Doctor, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, status FROM doctors ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Doctor, error) {
		var d Doctor
		err := row.Scan(&d.ID, &d.Name, &d.Status)
		return d, err
	})
}
