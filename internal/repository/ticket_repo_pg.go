package repository

import (
	"context"

	"github.com/Domenick1991/flightservice/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SettleFunc runs while the flight row is locked. It receives the locked
// flight, its free seat count and whether the user already holds an active
// ticket, and returns the price to record on the new ticket. Any error aborts
// the reservation.
type SettleFunc func(ctx context.Context, f domain.Flight, available int, hasTicket bool) (priceCents int64, err error)

// VoidFunc runs while both the flight and the ticket rows are locked. Any
// error leaves the ticket active.
type VoidFunc func(ctx context.Context, t domain.Ticket, f domain.Flight) error

type TicketRepository interface {
	// Reserve serializes purchases per flight: the seat count, the duplicate
	// check, settle and the insert all happen under one flight row lock.
	Reserve(ctx context.Context, flightID, userID int64, settle SettleFunc) (*domain.Ticket, error)
	Void(ctx context.Context, ticketID int64, fn VoidFunc) (*domain.Ticket, error)
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Ticket, error)
	ListByFlight(ctx context.Context, flightID int64) ([]domain.Ticket, error)
	HasActive(ctx context.Context, flightID, userID int64) (bool, error)
}

type PGTicketRepository struct {
	db *pgxpool.Pool
}

func NewTicketRepository(db *pgxpool.Pool) TicketRepository {
	return &PGTicketRepository{db: db}
}

const ticketColumns = `id, flight_id, user_id, price_cents, voided, purchased_at`

func scanTicket(row scanner) (*domain.Ticket, error) {
	var t domain.Ticket
	if err := row.Scan(&t.ID, &t.FlightID, &t.UserID, &t.PriceCents, &t.Voided, &t.PurchasedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	defer rows.Close()
	tickets := make([]domain.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

func (r *PGTicketRepository) Reserve(ctx context.Context, flightID, userID int64, settle SettleFunc) (*domain.Ticket, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	f, err := lockFlight(ctx, tx, flightID)
	if err != nil {
		return nil, err
	}

	var sold int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM tickets WHERE flight_id=$1 AND NOT voided`, flightID).Scan(&sold); err != nil {
		return nil, err
	}
	var hasTicket bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE flight_id=$1 AND user_id=$2 AND NOT voided)`,
		flightID, userID).Scan(&hasTicket); err != nil {
		return nil, err
	}

	price, err := settle(ctx, *f, f.TotalSeats-sold, hasTicket)
	if err != nil {
		return nil, err
	}

	t := &domain.Ticket{FlightID: flightID, UserID: userID, PriceCents: price}
	if err := tx.QueryRow(ctx, `INSERT INTO tickets (flight_id, user_id, price_cents) VALUES ($1, $2, $3)
		RETURNING id, purchased_at`, flightID, userID, price).Scan(&t.ID, &t.PurchasedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, domain.Conflict("you already hold a ticket for this flight")
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *PGTicketRepository) Void(ctx context.Context, ticketID int64, fn VoidFunc) (*domain.Ticket, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Flight first, then ticket: the same order Reserve and Cancel use.
	var flightID int64
	if err := tx.QueryRow(ctx, `SELECT flight_id FROM tickets WHERE id=$1`, ticketID).Scan(&flightID); err != nil {
		return nil, notFound(err, "ticket")
	}
	f, err := lockFlight(ctx, tx, flightID)
	if err != nil {
		return nil, err
	}
	t, err := scanTicket(tx.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1 FOR UPDATE`, ticketID))
	if err != nil {
		return nil, notFound(err, "ticket")
	}

	if err := fn(ctx, *t, *f); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `UPDATE tickets SET voided = TRUE WHERE id=$1`, ticketID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	t.Voided = true
	return t, nil
}

func (r *PGTicketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	t, err := scanTicket(r.db.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err, "ticket")
	}
	return t, nil
}

func (r *PGTicketRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Ticket, error) {
	rows, err := r.db.Query(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE user_id=$1 ORDER BY purchased_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectTickets(rows)
}

func (r *PGTicketRepository) ListByFlight(ctx context.Context, flightID int64) ([]domain.Ticket, error) {
	rows, err := r.db.Query(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE flight_id=$1 ORDER BY id`, flightID)
	if err != nil {
		return nil, err
	}
	return collectTickets(rows)
}

func (r *PGTicketRepository) HasActive(ctx context.Context, flightID, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE flight_id=$1 AND user_id=$2 AND NOT voided)`,
		flightID, userID).Scan(&exists)
	return exists, err
}

var _ TicketRepository = (*PGTicketRepository)(nil)
