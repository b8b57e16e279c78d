package repository

import (
	"context"

	"github.com/Domenick1991/flightservice/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RatingRepository interface {
	Create(ctx context.Context, rating *domain.Rating) error
	Exists(ctx context.Context, flightID, userID int64) (bool, error)
	ListByFlight(ctx context.Context, flightID int64) ([]domain.Rating, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Rating, error)
	ListAll(ctx context.Context) ([]domain.Rating, error)
}

type PGRatingRepository struct {
	db *pgxpool.Pool
}

func NewRatingRepository(db *pgxpool.Pool) RatingRepository {
	return &PGRatingRepository{db: db}
}

const ratingColumns = `id, flight_id, user_id, score, comment, created_at`

func (r *PGRatingRepository) Create(ctx context.Context, rating *domain.Rating) error {
	err := r.db.QueryRow(ctx, `INSERT INTO ratings (flight_id, user_id, score, comment) VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`, rating.FlightID, rating.UserID, rating.Score, rating.Comment).
		Scan(&rating.ID, &rating.CreatedAt)
	if isUniqueViolation(err) {
		return domain.Conflict("you have already rated this flight")
	}
	return err
}

func (r *PGRatingRepository) Exists(ctx context.Context, flightID, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ratings WHERE flight_id=$1 AND user_id=$2)`,
		flightID, userID).Scan(&exists)
	return exists, err
}

func (r *PGRatingRepository) ListByFlight(ctx context.Context, flightID int64) ([]domain.Rating, error) {
	return r.list(ctx, `SELECT `+ratingColumns+` FROM ratings WHERE flight_id=$1 ORDER BY created_at DESC`, flightID)
}

func (r *PGRatingRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Rating, error) {
	return r.list(ctx, `SELECT `+ratingColumns+` FROM ratings WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

func (r *PGRatingRepository) ListAll(ctx context.Context) ([]domain.Rating, error) {
	return r.list(ctx, `SELECT `+ratingColumns+` FROM ratings ORDER BY created_at DESC`)
}

func (r *PGRatingRepository) list(ctx context.Context, query string, args ...any) ([]domain.Rating, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Rating, error) {
		var rt domain.Rating
		err := row.Scan(&rt.ID, &rt.FlightID, &rt.UserID, &rt.Score, &rt.Comment, &rt.CreatedAt)
		return rt, err
	})
}

var _ RatingRepository = (*PGRatingRepository)(nil)
