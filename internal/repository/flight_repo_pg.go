package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/flightservice/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type FlightRepository interface {
	Create(ctx context.Context, flight *domain.Flight) error
	GetByID(ctx context.Context, id int64) (*domain.Flight, error)
	GetDetails(ctx context.Context, id int64) (*domain.FlightDetails, error)
	List(ctx context.Context, filter domain.FlightFilter) ([]domain.FlightDetails, error)
	// Mutate locks the flight row, lets fn change it and persists the result.
	// An error from fn aborts the transaction and is returned unchanged.
	Mutate(ctx context.Context, id int64, fn func(f *domain.Flight) error) (*domain.Flight, error)
	// Cancel locks the flight, applies guard (which sets the new status) and
	// voids every active ticket in the same transaction.
	Cancel(ctx context.Context, id int64, guard func(f *domain.Flight) error) (*domain.Flight, []domain.Ticket, error)
	Delete(ctx context.Context, id int64) error
	// AdvanceByTime applies schedule-driven transitions due at now and returns
	// the flights whose status changed.
	AdvanceByTime(ctx context.Context, now time.Time) ([]domain.Flight, error)
}

type PGFlightRepository struct {
	db *pgxpool.Pool
}

func NewFlightRepository(db *pgxpool.Pool) FlightRepository {
	return &PGFlightRepository{db: db}
}

const flightColumns = `id, name, airline_id, distance_km, origin, destination, departure_time, duration_minutes,
	price_cents, total_seats, creator_id, status, rejection_reason, created_at, updated_at`

const flightDetailsColumns = `f.id, f.name, f.airline_id, f.distance_km, f.origin, f.destination, f.departure_time, f.duration_minutes,
	f.price_cents, f.total_seats, f.creator_id, f.status, f.rejection_reason, f.created_at, f.updated_at,
	f.total_seats - (SELECT count(*) FROM tickets t WHERE t.flight_id = f.id AND NOT t.voided) AS available_seats,
	(SELECT avg(r.score)::float8 FROM ratings r WHERE r.flight_id = f.id) AS average_rating,
	a.id, a.name, a.code, a.country, a.active, a.created_at`

type scanner interface {
	Scan(dest ...any) error
}

func flightFields(f *domain.Flight) []any {
	return []any{&f.ID, &f.Name, &f.AirlineID, &f.DistanceKm, &f.Origin, &f.Destination, &f.DepartureTime,
		&f.DurationMinutes, &f.PriceCents, &f.TotalSeats, &f.CreatorID, &f.Status, &f.RejectionReason,
		&f.CreatedAt, &f.UpdatedAt}
}

func scanFlight(row scanner) (*domain.Flight, error) {
	var f domain.Flight
	if err := row.Scan(flightFields(&f)...); err != nil {
		return nil, err
	}
	return &f, nil
}

func scanFlightDetails(row scanner) (*domain.FlightDetails, error) {
	var d domain.FlightDetails
	var a domain.Airline
	dest := append(flightFields(&d.Flight), &d.AvailableSeats, &d.AverageRating,
		&a.ID, &a.Name, &a.Code, &a.Country, &a.Active, &a.CreatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	d.Airline = &a
	return &d, nil
}

func (r *PGFlightRepository) Create(ctx context.Context, f *domain.Flight) error {
	return r.db.QueryRow(ctx, `INSERT INTO flights (name, airline_id, distance_km, origin, destination, departure_time,
		duration_minutes, price_cents, total_seats, creator_id, status, rejection_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`,
		f.Name, f.AirlineID, f.DistanceKm, f.Origin, f.Destination, f.DepartureTime,
		f.DurationMinutes, f.PriceCents, f.TotalSeats, f.CreatorID, f.Status, f.RejectionReason).
		Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
}

func (r *PGFlightRepository) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	f, err := scanFlight(r.db.QueryRow(ctx, `SELECT `+flightColumns+` FROM flights WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err, "flight")
	}
	return f, nil
}

func (r *PGFlightRepository) GetDetails(ctx context.Context, id int64) (*domain.FlightDetails, error) {
	d, err := scanFlightDetails(r.db.QueryRow(ctx, `SELECT `+flightDetailsColumns+`
		FROM flights f JOIN airlines a ON a.id = f.airline_id WHERE f.id=$1`, id))
	if err != nil {
		return nil, notFound(err, "flight")
	}
	return d, nil
}

func (r *PGFlightRepository) List(ctx context.Context, filter domain.FlightFilter) ([]domain.FlightDetails, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != "" {
		add("f.status = $%d", filter.Status)
	}
	if filter.Name != "" {
		add("f.name ILIKE '%%' || $%d || '%%'", filter.Name)
	}
	if filter.AirlineID != 0 {
		add("f.airline_id = $%d", filter.AirlineID)
	}
	if !filter.From.IsZero() {
		add("f.departure_time >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("f.departure_time <= $%d", filter.To)
	}
	if filter.CreatorID != 0 {
		add("f.creator_id = $%d", filter.CreatorID)
	}

	query := `SELECT ` + flightDetailsColumns + ` FROM flights f JOIN airlines a ON a.id = f.airline_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY f.departure_time"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flights := make([]domain.FlightDetails, 0)
	for rows.Next() {
		d, err := scanFlightDetails(rows)
		if err != nil {
			return nil, err
		}
		flights = append(flights, *d)
	}
	return flights, rows.Err()
}

func lockFlight(ctx context.Context, tx pgx.Tx, id int64) (*domain.Flight, error) {
	f, err := scanFlight(tx.QueryRow(ctx, `SELECT `+flightColumns+` FROM flights WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "flight")
	}
	return f, nil
}

func (r *PGFlightRepository) Mutate(ctx context.Context, id int64, fn func(f *domain.Flight) error) (*domain.Flight, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	f, err := lockFlight(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(f); err != nil {
		return nil, err
	}

	if err := tx.QueryRow(ctx, `UPDATE flights SET name=$2, airline_id=$3, distance_km=$4, origin=$5, destination=$6,
		departure_time=$7, duration_minutes=$8, price_cents=$9, total_seats=$10, status=$11, rejection_reason=$12,
		updated_at=now() WHERE id=$1 RETURNING updated_at`,
		f.ID, f.Name, f.AirlineID, f.DistanceKm, f.Origin, f.Destination, f.DepartureTime, f.DurationMinutes,
		f.PriceCents, f.TotalSeats, f.Status, f.RejectionReason).Scan(&f.UpdatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

func (r *PGFlightRepository) Cancel(ctx context.Context, id int64, guard func(f *domain.Flight) error) (*domain.Flight, []domain.Ticket, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	f, err := lockFlight(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := guard(f); err != nil {
		return nil, nil, err
	}

	if err := tx.QueryRow(ctx, `UPDATE flights SET status=$2, updated_at=now() WHERE id=$1 RETURNING updated_at`,
		f.ID, f.Status).Scan(&f.UpdatedAt); err != nil {
		return nil, nil, err
	}

	rows, err := tx.Query(ctx, `UPDATE tickets SET voided = TRUE WHERE flight_id=$1 AND NOT voided
		RETURNING `+ticketColumns, f.ID)
	if err != nil {
		return nil, nil, err
	}
	voided, err := collectTickets(rows)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return f, voided, nil
}

func (r *PGFlightRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := lockFlight(ctx, tx, id); err != nil {
		return err
	}

	var active int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM tickets WHERE flight_id=$1 AND NOT voided`, id).Scan(&active); err != nil {
		return err
	}
	if active > 0 {
		return domain.Conflict("flight has sold tickets; cancel it instead")
	}

	if _, err := tx.Exec(ctx, `DELETE FROM flights WHERE id=$1`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGFlightRepository) AdvanceByTime(ctx context.Context, now time.Time) ([]domain.Flight, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Rows held by a purchase or cancellation are picked up on the next sweep.
	rows, err := tx.Query(ctx, `SELECT `+flightColumns+` FROM flights
		WHERE status IN ($1, $2) AND departure_time <= $3 FOR UPDATE SKIP LOCKED`,
		domain.FlightStatusApproved, domain.FlightStatusInProgress, now)
	if err != nil {
		return nil, err
	}
	var due []domain.Flight
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		due = append(due, *f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	changed := make([]domain.Flight, 0, len(due))
	for _, f := range due {
		to, ok := domain.TimeTransition(f, now)
		if !ok {
			continue
		}
		if err := tx.QueryRow(ctx, `UPDATE flights SET status=$2, updated_at=now() WHERE id=$1 RETURNING updated_at`,
			f.ID, to).Scan(&f.UpdatedAt); err != nil {
			return nil, err
		}
		f.Status = to
		changed = append(changed, f)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return changed, nil
}

var _ FlightRepository = (*PGFlightRepository)(nil)
