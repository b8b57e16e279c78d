package repository

import (
	"context"

	"github.com/Domenick1991/flightservice/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AirlineRepository interface {
	Create(ctx context.Context, in domain.AirlineInput) (*domain.Airline, error)
	GetByID(ctx context.Context, id int64) (*domain.Airline, error)
	ListActive(ctx context.Context) ([]domain.Airline, error)
	Update(ctx context.Context, id int64, in domain.AirlineInput) (*domain.Airline, error)
	Deactivate(ctx context.Context, id int64) error
}

type PGAirlineRepository struct {
	db *pgxpool.Pool
}

func NewAirlineRepository(db *pgxpool.Pool) AirlineRepository {
	return &PGAirlineRepository{db: db}
}

const airlineColumns = `id, name, code, country, active, created_at`

func scanAirline(row scanner) (*domain.Airline, error) {
	var a domain.Airline
	if err := row.Scan(&a.ID, &a.Name, &a.Code, &a.Country, &a.Active, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PGAirlineRepository) Create(ctx context.Context, in domain.AirlineInput) (*domain.Airline, error) {
	a, err := scanAirline(r.db.QueryRow(ctx, `INSERT INTO airlines (name, code, country) VALUES ($1, $2, $3)
		RETURNING `+airlineColumns, in.Name, in.Code, in.Country))
	if isUniqueViolation(err) {
		return nil, domain.Conflict("airline with this name or code already exists")
	}
	return a, err
}

func (r *PGAirlineRepository) GetByID(ctx context.Context, id int64) (*domain.Airline, error) {
	a, err := scanAirline(r.db.QueryRow(ctx, `SELECT `+airlineColumns+` FROM airlines WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err, "airline")
	}
	return a, nil
}

func (r *PGAirlineRepository) ListActive(ctx context.Context) ([]domain.Airline, error) {
	rows, err := r.db.Query(ctx, `SELECT `+airlineColumns+` FROM airlines WHERE active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Airline, error) {
		a, err := scanAirline(row)
		if err != nil {
			return domain.Airline{}, err
		}
		return *a, nil
	})
}

func (r *PGAirlineRepository) Update(ctx context.Context, id int64, in domain.AirlineInput) (*domain.Airline, error) {
	a, err := scanAirline(r.db.QueryRow(ctx, `UPDATE airlines SET name=$2, code=$3, country=$4 WHERE id=$1
		RETURNING `+airlineColumns, id, in.Name, in.Code, in.Country))
	if isUniqueViolation(err) {
		return nil, domain.Conflict("airline with this name or code already exists")
	}
	if err != nil {
		return nil, notFound(err, "airline")
	}
	return a, nil
}

func (r *PGAirlineRepository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE airlines SET active = FALSE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("airline not found")
	}
	return nil
}

var _ AirlineRepository = (*PGAirlineRepository)(nil)
