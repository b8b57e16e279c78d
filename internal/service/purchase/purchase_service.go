package purchase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Domenick1991/flightservice/internal/balance"
	"github.com/Domenick1991/flightservice/internal/domain"
	"github.com/Domenick1991/flightservice/internal/logging"
	"github.com/Domenick1991/flightservice/internal/metrics"
	"github.com/Domenick1991/flightservice/internal/notify"
	"github.com/Domenick1991/flightservice/internal/reconcile"
	"github.com/Domenick1991/flightservice/internal/repository"
	"github.com/Domenick1991/flightservice/internal/tracing"
	"github.com/Domenick1991/flightservice/internal/worker"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type PurchaseUseCase interface {
	Purchase(ctx context.Context, input PurchaseInput) (*PurchaseAccepted, error)
	CancelTicket(ctx context.Context, ticketID, userID int64) (*domain.Ticket, error)
	ListUserTickets(ctx context.Context, userID int64) ([]domain.Ticket, error)
	GetTicket(ctx context.Context, ticketID, userID int64) (*domain.Ticket, error)
	ListFlightTickets(ctx context.Context, flightID int64, viewer Viewer) ([]domain.Ticket, error)
}

// Viewer is who asks for a flight's passenger list. Admins see every flight;
// a manager sees only the flights they created.
type Viewer struct {
	UserID int64
	Admin  bool
}

type FlightReader interface {
	GetDetails(ctx context.Context, id int64) (*domain.FlightDetails, error)
}

// Balance is the part of the user service that moves money.
type Balance interface {
	Deduct(ctx context.Context, userID, amountCents int64, idempotencyKey string) error
	Refund(ctx context.Context, userID, amountCents int64, idempotencyKey string) error
	FetchUser(ctx context.Context, userID int64) (*balance.User, error)
}

type Submitter interface {
	Submit(ctx context.Context, job worker.Job) error
}

type AlertRaiser interface {
	Raise(ctx context.Context, a reconcile.Alert)
}

type CacheInvalidator interface {
	InvalidateFlights(ctx context.Context) error
}

type PurchaseInput struct {
	FlightID int64 `json:"flight_id"`
	UserID   int64 `json:"-"`
}

// PurchaseAccepted is returned as soon as the purchase is queued. The outcome
// arrives later as purchase_success or purchase_failed on the buyer's channel.
type PurchaseAccepted struct {
	AttemptID string `json:"attempt_id"`
	FlightID  int64  `json:"flight_id"`
}

type Service struct {
	flights  FlightReader
	tickets  repository.TicketRepository
	balance  Balance
	jobs     Submitter
	alerts   AlertRaiser
	notifier notify.Notifier
	cache    CacheInvalidator
	metrics  *metrics.Metrics
	delay    time.Duration
	now      func() time.Time
}

type Option func(*Service)

// WithProcessingDelay makes every accepted purchase wait d before it runs.
func WithProcessingDelay(d time.Duration) Option {
	return func(s *Service) { s.delay = d }
}

func WithCache(c CacheInvalidator) Option {
	return func(s *Service) { s.cache = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(
	flights FlightReader,
	tickets repository.TicketRepository,
	bal Balance,
	jobs Submitter,
	alerts AlertRaiser,
	notifier notify.Notifier,
	opts ...Option,
) *Service {
	s := &Service{
		flights:  flights,
		tickets:  tickets,
		balance:  bal,
		jobs:     jobs,
		alerts:   alerts,
		notifier: notifier,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	return s
}

// Purchase checks the request against current state and, when it passes,
// queues the purchase. Nothing irreversible happens before the job runs.
func (s *Service) Purchase(ctx context.Context, input PurchaseInput) (*PurchaseAccepted, error) {
	flight, err := s.flights.GetDetails(ctx, input.FlightID)
	if err != nil {
		return nil, err
	}
	hasTicket, err := s.tickets.HasActive(ctx, input.FlightID, input.UserID)
	if err != nil {
		return nil, err
	}
	user, err := s.balance.FetchUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	check := domain.PurchaseCheck{
		Flight:         flight.Flight,
		AvailableSeats: flight.AvailableSeats,
		HasTicket:      hasTicket,
		BalanceCents:   user.BalanceCents,
		Now:            s.now(),
	}
	if err := check.Validate(); err != nil {
		return nil, err
	}

	a := &attempt{id: uuid.NewString(), flightID: input.FlightID, userID: input.UserID}
	err = s.jobs.Submit(ctx, worker.Job{
		Name:    "purchase",
		Run:     func(ctx context.Context) { s.process(ctx, a) },
		Recover: func(ctx context.Context, p any) { s.recoverAttempt(ctx, a, p) },
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PurchaseAccepted()
	logging.FromContext(ctx).WithFields(logrus.Fields{
		"attempt_id": a.id,
		"flight_id":  a.flightID,
		"user_id":    a.userID,
	}).Info("purchase accepted")
	return &PurchaseAccepted{AttemptID: a.id, FlightID: input.FlightID}, nil
}

// attempt is the state of one accepted purchase. It is shared between the
// job and its panic handler.
type attempt struct {
	id       string
	flightID int64
	userID   int64

	mu       sync.Mutex
	deducted bool
	settled  bool
	price    int64
}

func (a *attempt) markDeducted(price int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deducted = true
	a.price = price
}

// finish reports whether the deduction is unbacked by a ticket. It returns
// false on every call after the first so an attempt is settled only once.
func (a *attempt) finish(persisted bool) (orphaned bool, price int64, first bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.settled {
		return false, 0, false
	}
	a.settled = true
	return a.deducted && !persisted, a.price, true
}

func (s *Service) process(ctx context.Context, a *attempt) {
	ctx, span := tracing.Tracer().Start(ctx, "purchase.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("purchase.attempt_id", a.id),
		attribute.Int64("flight.id", a.flightID),
		attribute.Int64("user.id", a.userID),
	)
	ctx = logging.ToContext(ctx, logging.FromContext(ctx).WithField("attempt_id", a.id))

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			s.fail(ctx, a, domain.External("purchase timed out", ctx.Err()))
			return
		}
	}

	user, err := s.balance.FetchUser(ctx, a.userID)
	if err != nil {
		s.fail(ctx, a, err)
		return
	}

	var (
		flight    domain.Flight
		available int
	)
	ticket, err := s.tickets.Reserve(ctx, a.flightID, a.userID,
		func(ctx context.Context, f domain.Flight, free int, hasTicket bool) (int64, error) {
			check := domain.PurchaseCheck{
				Flight:         f,
				AvailableSeats: free,
				HasTicket:      hasTicket,
				BalanceCents:   user.BalanceCents,
				Now:            s.now(),
			}
			if err := check.Validate(); err != nil {
				return 0, err
			}
			if err := s.balance.Deduct(ctx, a.userID, f.PriceCents, a.id); err != nil {
				return 0, err
			}
			a.markDeducted(f.PriceCents)
			flight, available = f, free-1
			return f.PriceCents, nil
		})
	if err != nil {
		span.RecordError(err)
		s.fail(ctx, a, err)
		return
	}

	if _, _, first := a.finish(true); !first {
		return
	}
	s.metrics.PurchaseSucceeded()
	if s.cache != nil {
		if err := s.cache.InvalidateFlights(ctx); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("flight cache invalidation failed")
		}
	}
	logging.FromContext(ctx).WithField("ticket_id", ticket.ID).Info("ticket purchased")

	success := notify.New(domain.EventPurchaseSuccess, domain.UserRoom(a.userID))
	success.FlightID = a.flightID
	success.UserID = a.userID
	success.Payload = map[string]any{
		"attempt_id":  a.id,
		"ticket_id":   ticket.ID,
		"flight_name": flight.Name,
		"price":       float64(ticket.PriceCents) / 100,
	}
	s.notifier.Notify(ctx, success)

	purchased := notify.New(domain.EventTicketPurchased, domain.RoomFlights, domain.FlightRoom(a.flightID))
	purchased.FlightID = a.flightID
	purchased.Payload = map[string]any{"available_seats": available}
	s.notifier.Notify(ctx, purchased)
}

func (s *Service) recoverAttempt(ctx context.Context, a *attempt, p any) {
	s.fail(ctx, a, fmt.Errorf("purchase worker panicked: %v", p))
}

// fail settles a that did not produce a ticket. A deduction that already went
// through gets one compensating refund and a reconciliation alert.
func (s *Service) fail(ctx context.Context, a *attempt, cause error) {
	orphaned, price, first := a.finish(false)
	if !first {
		return
	}
	if orphaned {
		s.compensate(ctx, a, price, cause)
	}

	s.metrics.PurchaseFailed()
	logging.FromContext(ctx).WithFields(logrus.Fields{
		"flight_id": a.flightID,
		"user_id":   a.userID,
	}).WithError(cause).Warn("purchase failed")

	e := notify.New(domain.EventPurchaseFailed, domain.UserRoom(a.userID))
	e.FlightID = a.flightID
	e.UserID = a.userID
	e.Reason = failureReason(cause)
	e.Payload = map[string]any{"attempt_id": a.id}
	s.notifier.Notify(ctx, e)
}

func (s *Service) compensate(ctx context.Context, a *attempt, price int64, cause error) {
	alert := reconcile.Alert{
		AttemptID:   a.id,
		UserID:      a.userID,
		FlightID:    a.flightID,
		AmountCents: price,
		Cause:       cause.Error(),
	}
	// The job context may be the one that expired; the refund gets its own.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.balance.Refund(rctx, a.userID, price, "compensate-"+a.id); err != nil {
		alert.CompensateErr = err.Error()
		s.metrics.Refund(false)
	} else {
		alert.Compensated = true
		s.metrics.Refund(true)
	}
	if s.alerts != nil {
		s.alerts.Raise(ctx, alert)
	}
}

func failureReason(err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Msg
	}
	return "purchase could not be completed"
}

// CancelTicket refunds and voids one of the caller's own tickets. The refund
// is made while the ticket is locked; if it fails the ticket stays active.
func (s *Service) CancelTicket(ctx context.Context, ticketID, userID int64) (*domain.Ticket, error) {
	now := s.now()
	var refunded *domain.Ticket
	ticket, err := s.tickets.Void(ctx, ticketID, func(ctx context.Context, t domain.Ticket, f domain.Flight) error {
		if t.UserID != userID {
			return errNotTicketOwner
		}
		if t.Voided {
			return domain.Conflict("ticket is already cancelled")
		}
		if f.Departed(now) {
			return domain.Conflict("flight has already departed")
		}
		if err := s.balance.Refund(ctx, t.UserID, t.PriceCents, ticketRefundKey(t.ID)); err != nil {
			return err
		}
		refunded = &t
		return nil
	})
	if err != nil {
		if refunded != nil {
			s.refundedNotVoided(ctx, refunded, err)
		}
		return nil, err
	}

	s.metrics.Refund(true)
	if s.cache != nil {
		if err := s.cache.InvalidateFlights(ctx); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("flight cache invalidation failed")
		}
	}
	logging.FromContext(ctx).WithFields(logrus.Fields{
		"ticket_id": ticket.ID,
		"flight_id": ticket.FlightID,
		"user_id":   userID,
	}).Info("ticket cancelled")
	return ticket, nil
}

// refundedNotVoided records a cancellation whose refund went through while the
// void was rolled back. The ticket is still active and paid back, so an
// operator has to void it by hand; retrying the cancel reuses the refund key.
func (s *Service) refundedNotVoided(ctx context.Context, t *domain.Ticket, cause error) {
	logging.FromContext(ctx).WithError(cause).WithFields(logrus.Fields{
		"ticket_id":    t.ID,
		"flight_id":    t.FlightID,
		"user_id":      t.UserID,
		"amount_cents": t.PriceCents,
	}).Error("refund issued but ticket not voided")
	if s.alerts != nil {
		s.alerts.Raise(ctx, reconcile.Alert{
			AttemptID:   ticketRefundKey(t.ID),
			UserID:      t.UserID,
			FlightID:    t.FlightID,
			AmountCents: t.PriceCents,
			Cause:       "refund issued but ticket not voided: " + cause.Error(),
			Compensated: true,
		})
	}
}

func ticketRefundKey(ticketID int64) string {
	return "refund-ticket-" + strconv.FormatInt(ticketID, 10)
}

func (s *Service) ListUserTickets(ctx context.Context, userID int64) ([]domain.Ticket, error) {
	return s.tickets.ListByUser(ctx, userID)
}

var errNotTicketOwner = domain.Conflict("ticket belongs to another user")

func (s *Service) GetTicket(ctx context.Context, ticketID, userID int64) (*domain.Ticket, error) {
	t, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, errNotTicketOwner
	}
	return t, nil
}

// ListFlightTickets returns every ticket sold for a flight, voided ones
// included.
func (s *Service) ListFlightTickets(ctx context.Context, flightID int64, viewer Viewer) ([]domain.Ticket, error) {
	flight, err := s.flights.GetDetails(ctx, flightID)
	if err != nil {
		return nil, err
	}
	if !viewer.Admin && flight.CreatorID != viewer.UserID {
		return nil, domain.Conflict("only the manager who created the flight can see its tickets")
	}
	return s.tickets.ListByFlight(ctx, flightID)
}

var _ PurchaseUseCase = (*Service)(nil)
