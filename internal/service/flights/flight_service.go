package flights

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Domenick1991/flightservice/internal/balance"
	"github.com/Domenick1991/flightservice/internal/domain"
	"github.com/Domenick1991/flightservice/internal/logging"
	"github.com/Domenick1991/flightservice/internal/metrics"
	"github.com/Domenick1991/flightservice/internal/notify"
	"github.com/Domenick1991/flightservice/internal/repository"
	"github.com/Domenick1991/flightservice/internal/tracing"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type FlightUseCase interface {
	Create(ctx context.Context, creatorID int64, draft domain.FlightDraft) (*domain.Flight, error)
	Update(ctx context.Context, id, editorID int64, draft domain.FlightDraft) (*domain.Flight, error)
	Approve(ctx context.Context, id int64) (*domain.Flight, error)
	Reject(ctx context.Context, id int64, reason string) (*domain.Flight, error)
	Cancel(ctx context.Context, id int64) (*CancelResult, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*domain.FlightDetails, error)
	List(ctx context.Context, status domain.FlightStatus) ([]domain.FlightDetails, error)
	Search(ctx context.Context, filter domain.FlightFilter) ([]domain.FlightDetails, error)
	ByCreator(ctx context.Context, creatorID int64) ([]domain.FlightDetails, error)
	AdvanceStatuses(ctx context.Context) ([]domain.Flight, error)
	Report(ctx context.Context, requesterID int64, reportType ReportType) ([]map[string]any, error)
}

// FlightCache stores flight listings per status filter. SetFlights must drop
// a listing whose generation is older than the latest invalidation.
type FlightCache interface {
	GetFlights(ctx context.Context, status domain.FlightStatus) ([]domain.FlightDetails, error)
	FlightsGeneration(ctx context.Context) (int64, error)
	SetFlights(ctx context.Context, gen int64, status domain.FlightStatus, flights []domain.FlightDetails) error
	InvalidateFlights(ctx context.Context) error
}

type Refunder interface {
	Refund(ctx context.Context, userID, amountCents int64, idempotencyKey string) error
}

type UserDirectory interface {
	FetchUser(ctx context.Context, userID int64) (*balance.User, error)
}

// CancelResult lists every voided ticket's refund and, separately, the
// refunds the balance service did not accept.
type CancelResult struct {
	Flight  *domain.Flight         `json:"flight"`
	Refunds []domain.Refund        `json:"refunds"`
	Failed  []domain.RefundFailure `json:"failed"`
}

type FlightService struct {
	flights  repository.FlightRepository
	airlines repository.AirlineRepository
	refunds  Refunder
	users    UserDirectory
	notifier notify.Notifier
	cache    FlightCache
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Option func(*FlightService)

func WithCache(cache FlightCache) Option {
	return func(s *FlightService) { s.cache = cache }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *FlightService) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *FlightService) { s.now = now }
}

func NewFlightService(
	flights repository.FlightRepository,
	airlines repository.AirlineRepository,
	refunds Refunder,
	users UserDirectory,
	notifier notify.Notifier,
	opts ...Option,
) *FlightService {
	s := &FlightService{
		flights:  flights,
		airlines: airlines,
		refunds:  refunds,
		users:    users,
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

func (s *FlightService) Create(ctx context.Context, creatorID int64, draft domain.FlightDraft) (*domain.Flight, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	if !draft.DepartureTime.After(s.now()) {
		return nil, domain.Validation("departure time cannot be in the past")
	}
	if err := s.checkAirline(ctx, draft.AirlineID); err != nil {
		return nil, err
	}

	flight := &domain.Flight{CreatorID: creatorID, Status: domain.FlightStatusPendingApproval}
	draft.Apply(flight)
	if err := s.flights.Create(ctx, flight); err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	e := flightEvent(domain.EventNewFlightPending, flight, domain.RoomAdmin)
	s.notifier.Notify(ctx, e)
	return flight, nil
}

func (s *FlightService) Update(ctx context.Context, id, editorID int64, draft domain.FlightDraft) (*domain.Flight, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkAirline(ctx, draft.AirlineID); err != nil {
		return nil, err
	}

	flight, err := s.flights.Mutate(ctx, id, func(f *domain.Flight) error {
		return f.Edit(editorID, draft)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.notifier.Notify(ctx, flightEvent(domain.EventFlightUpdated, flight,
		domain.RoomAdmin, domain.RoomFlights, domain.FlightRoom(flight.ID)))
	return flight, nil
}

func (s *FlightService) Approve(ctx context.Context, id int64) (*domain.Flight, error) {
	flight, err := s.flights.Mutate(ctx, id, func(f *domain.Flight) error {
		return f.Approve()
	})
	if err != nil {
		return nil, err
	}

	s.metrics.StatusTransition(string(flight.Status))
	s.invalidate(ctx)
	s.notifier.Notify(ctx, flightEvent(domain.EventFlightApproved, flight,
		domain.RoomFlights, domain.RoomManager, domain.UserRoom(flight.CreatorID)))
	return flight, nil
}

func (s *FlightService) Reject(ctx context.Context, id int64, reason string) (*domain.Flight, error) {
	flight, err := s.flights.Mutate(ctx, id, func(f *domain.Flight) error {
		return f.Reject(reason)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.StatusTransition(string(flight.Status))
	s.invalidate(ctx)
	e := flightEvent(domain.EventFlightRejected, flight, domain.RoomManager, domain.UserRoom(flight.CreatorID))
	e.Reason = reason
	s.notifier.Notify(ctx, e)
	return flight, nil
}

// Cancel commits the cancellation and the voiding of all tickets, then asks
// for one refund per voided ticket. Refund failures are reported, not retried.
func (s *FlightService) Cancel(ctx context.Context, id int64) (*CancelResult, error) {
	ctx, span := tracing.Tracer().Start(ctx, "flights.Cancel")
	defer span.End()
	span.SetAttributes(attribute.Int64("flight.id", id))

	now := s.now()
	flight, voided, err := s.flights.Cancel(ctx, id, func(f *domain.Flight) error {
		return f.Cancel(now)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.StatusTransition(string(flight.Status))
	s.invalidate(ctx)

	result := &CancelResult{
		Flight: flight,
		Refunds: lo.Map(voided, func(t domain.Ticket, _ int) domain.Refund {
			return domain.Refund{UserID: t.UserID, TicketID: t.ID, AmountCents: t.PriceCents}
		}),
		Failed: []domain.RefundFailure{},
	}

	log := logging.FromContext(ctx).WithField("flight_id", flight.ID)
	for _, r := range result.Refunds {
		if err := s.refunds.Refund(ctx, r.UserID, r.AmountCents, refundKey(r.TicketID)); err != nil {
			s.metrics.Refund(false)
			log.WithFields(logrus.Fields{"user_id": r.UserID, "ticket_id": r.TicketID}).WithError(err).Error("refund failed, needs manual follow-up")
			result.Failed = append(result.Failed, domain.RefundFailure{Refund: r, Reason: domain.Message(err)})
			continue
		}
		s.metrics.Refund(true)
	}
	span.SetAttributes(attribute.Int("refunds.total", len(result.Refunds)), attribute.Int("refunds.failed", len(result.Failed)))

	failedTickets := lo.Associate(result.Failed, func(f domain.RefundFailure) (int64, bool) { return f.TicketID, true })
	e := flightEvent(domain.EventFlightCancelled, flight,
		domain.RoomFlights, domain.RoomManager, domain.FlightRoom(flight.ID))
	e.Payload["refunds"] = lo.Reject(result.Refunds, func(r domain.Refund, _ int) bool { return failedTickets[r.TicketID] })
	e.Payload["failed"] = result.Failed
	s.notifier.Notify(ctx, e)
	return result, nil
}

// refundKey is stable per ticket so a repeated refund call cannot pay twice.
func refundKey(ticketID int64) string {
	return "refund-ticket-" + strconv.FormatInt(ticketID, 10)
}

func (s *FlightService) Delete(ctx context.Context, id int64) error {
	if err := s.flights.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *FlightService) Get(ctx context.Context, id int64) (*domain.FlightDetails, error) {
	return s.flights.GetDetails(ctx, id)
}

func (s *FlightService) List(ctx context.Context, status domain.FlightStatus) ([]domain.FlightDetails, error) {
	if status != "" && !status.Valid() {
		return nil, domain.Validation(fmt.Sprintf("unknown flight status %q", status))
	}
	cacheable := false
	var gen int64
	if s.cache != nil {
		if cached, err := s.cache.GetFlights(ctx, status); err == nil && cached != nil {
			return cached, nil
		}
		var err error
		if gen, err = s.cache.FlightsGeneration(ctx); err == nil {
			cacheable = true
		}
	}

	flights, err := s.flights.List(ctx, domain.FlightFilter{Status: status})
	if err != nil {
		return nil, err
	}
	if cacheable {
		if err := s.cache.SetFlights(ctx, gen, status, flights); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("flight cache write failed")
		}
	}
	return flights, nil
}

// Search only ever returns approved flights.
func (s *FlightService) Search(ctx context.Context, filter domain.FlightFilter) ([]domain.FlightDetails, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, domain.Validation("search window ends before it starts")
	}
	filter.Status = domain.FlightStatusApproved
	filter.CreatorID = 0
	return s.flights.List(ctx, filter)
}

func (s *FlightService) ByCreator(ctx context.Context, creatorID int64) ([]domain.FlightDetails, error) {
	return s.flights.List(ctx, domain.FlightFilter{CreatorID: creatorID})
}

// AdvanceStatuses moves flights along their schedule and announces each change.
func (s *FlightService) AdvanceStatuses(ctx context.Context) ([]domain.Flight, error) {
	changed, err := s.flights.AdvanceByTime(ctx, s.now())
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		return changed, nil
	}

	s.invalidate(ctx)
	for i := range changed {
		f := &changed[i]
		s.metrics.StatusTransition(string(f.Status))
		s.notifier.Notify(ctx, flightEvent(domain.EventFlightStatusChanged, f,
			domain.RoomFlights, domain.FlightRoom(f.ID)))
	}
	return changed, nil
}

func (s *FlightService) checkAirline(ctx context.Context, airlineID int64) error {
	airline, err := s.airlines.GetByID(ctx, airlineID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Validation("airline not found")
	}
	if err != nil {
		return err
	}
	if !airline.Active {
		return domain.Validation("airline is not active")
	}
	return nil
}

func (s *FlightService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateFlights(ctx); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("flight cache invalidation failed")
	}
}

func flightEvent(t domain.EventType, f *domain.Flight, rooms ...string) notify.Event {
	e := notify.New(t, rooms...)
	e.FlightID = f.ID
	e.Payload = map[string]any{
		"flight_name": f.Name,
		"origin":      f.Origin,
		"destination": f.Destination,
		"status":      f.Status,
		"departure":   f.DepartureTime,
	}
	return e
}

var _ FlightUseCase = (*FlightService)(nil)
