package purchase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/flightservice/internal/balance"
	"github.com/Domenick1991/flightservice/internal/domain"
	"github.com/Domenick1991/flightservice/internal/notify"
	"github.com/Domenick1991/flightservice/internal/reconcile"
	"github.com/Domenick1991/flightservice/internal/repository"
	"github.com/Domenick1991/flightservice/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

// memoryStore serializes Reserve and Void on one mutex, standing in for the
// flight row lock.
type memoryStore struct {
	mu      sync.Mutex
	flights map[int64]*domain.Flight
	tickets []domain.Ticket

	insertErr   error
	voidErr     error
	panicBefore bool
	panicAfter  bool
}

func newMemoryStore(flights ...domain.Flight) *memoryStore {
	m := &memoryStore{flights: map[int64]*domain.Flight{}}
	for i := range flights {
		f := flights[i]
		m.flights[f.ID] = &f
	}
	return m
}

func (m *memoryStore) sold(flightID int64) int {
	n := 0
	for _, t := range m.tickets {
		if t.FlightID == flightID && !t.Voided {
			n++
		}
	}
	return n
}

func (m *memoryStore) hasActive(flightID, userID int64) bool {
	for _, t := range m.tickets {
		if t.FlightID == flightID && t.UserID == userID && !t.Voided {
			return true
		}
	}
	return false
}

func (m *memoryStore) setStatus(flightID int64, status domain.FlightStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flights[flightID].Status = status
}

func (m *memoryStore) activeTickets(flightID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sold(flightID)
}

func (m *memoryStore) GetDetails(_ context.Context, id int64) (*domain.FlightDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flights[id]
	if !ok {
		return nil, domain.NotFound("flight not found")
	}
	return &domain.FlightDetails{Flight: *f, AvailableSeats: f.TotalSeats - m.sold(id)}, nil
}

func (m *memoryStore) Reserve(ctx context.Context, flightID, userID int64, settle repository.SettleFunc) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flights[flightID]
	if !ok {
		return nil, domain.NotFound("flight not found")
	}
	if m.panicBefore {
		panic("lost database connection")
	}
	price, err := settle(ctx, *f, f.TotalSeats-m.sold(flightID), m.hasActive(flightID, userID))
	if err != nil {
		return nil, err
	}
	if m.panicAfter {
		panic("lost database connection")
	}
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	t := domain.Ticket{ID: int64(len(m.tickets) + 1), FlightID: flightID, UserID: userID, PriceCents: price, PurchasedAt: now}
	m.tickets = append(m.tickets, t)
	return &t, nil
}

func (m *memoryStore) Void(ctx context.Context, ticketID int64, fn repository.VoidFunc) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tickets {
		t := &m.tickets[i]
		if t.ID != ticketID {
			continue
		}
		if err := fn(ctx, *t, *m.flights[t.FlightID]); err != nil {
			return nil, err
		}
		if m.voidErr != nil {
			return nil, m.voidErr
		}
		t.Voided = true
		out := *t
		return &out, nil
	}
	return nil, domain.NotFound("ticket not found")
}

func (m *memoryStore) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tickets {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, domain.NotFound("ticket not found")
}

func (m *memoryStore) ListByUser(_ context.Context, userID int64) ([]domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Ticket{}
	for _, t := range m.tickets {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memoryStore) ListByFlight(_ context.Context, flightID int64) ([]domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Ticket{}
	for _, t := range m.tickets {
		if t.FlightID == flightID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memoryStore) HasActive(_ context.Context, flightID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasActive(flightID, userID), nil
}

type refundCall struct {
	userID int64
	amount int64
	key    string
}

type fakeBalance struct {
	mu         sync.Mutex
	balances   map[int64]int64
	deductErr  error
	refundErr  error
	deductKeys []string
	refunds    []refundCall
}

func newFakeBalance(balances map[int64]int64) *fakeBalance {
	return &fakeBalance{balances: balances}
}

func (b *fakeBalance) Deduct(_ context.Context, userID, amountCents int64, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deductErr != nil {
		return b.deductErr
	}
	b.deductKeys = append(b.deductKeys, key)
	b.balances[userID] -= amountCents
	return nil
}

func (b *fakeBalance) Refund(_ context.Context, userID, amountCents int64, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refundErr != nil {
		return b.refundErr
	}
	b.refunds = append(b.refunds, refundCall{userID: userID, amount: amountCents, key: key})
	b.balances[userID] += amountCents
	return nil
}

func (b *fakeBalance) FetchUser(_ context.Context, userID int64) (*balance.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal, ok := b.balances[userID]
	if !ok {
		return nil, domain.External("user lookup failed", errors.New("404"))
	}
	return &balance.User{ID: userID, Email: fmt.Sprintf("user%d@example.com", userID), BalanceCents: bal}, nil
}

func (b *fakeBalance) balanceOf(userID int64) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[userID]
}

// queuedJobs holds submitted jobs until run is called.
type queuedJobs struct {
	mu   sync.Mutex
	jobs []worker.Job
	err  error
}

func (q *queuedJobs) Submit(_ context.Context, job worker.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *queuedJobs) run(ctx context.Context) {
	q.mu.Lock()
	jobs := q.jobs
	q.jobs = nil
	q.mu.Unlock()
	for _, job := range jobs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					job.Recover(ctx, r)
				}
			}()
			job.Run(ctx)
		}()
	}
}

func (q *queuedJobs) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingNotifier) ofType(t domain.EventType) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []reconcile.Alert
}

func (r *recordingAlerts) Raise(_ context.Context, a reconcile.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recordingAlerts) all() []reconcile.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reconcile.Alert(nil), r.alerts...)
}

func openFlight(seats int) domain.Flight {
	return domain.Flight{
		ID:              7,
		Name:            "Belgrade Paris",
		Origin:          "BEG",
		Destination:     "CDG",
		DepartureTime:   now.Add(24 * time.Hour),
		DurationMinutes: 150,
		PriceCents:      20000,
		TotalSeats:      seats,
		Status:          domain.FlightStatusApproved,
	}
}

type fixture struct {
	store    *memoryStore
	balance  *fakeBalance
	jobs     *queuedJobs
	notifier *recordingNotifier
	alerts   *recordingAlerts
	service  *Service
}

func newFixture(flight domain.Flight, balances map[int64]int64) *fixture {
	f := &fixture{
		store:    newMemoryStore(flight),
		balance:  newFakeBalance(balances),
		jobs:     &queuedJobs{},
		notifier: &recordingNotifier{},
		alerts:   &recordingAlerts{},
	}
	f.service = NewService(f.store, f.store, f.balance, f.jobs, f.alerts, f.notifier,
		WithClock(func() time.Time { return now }))
	return f
}

func TestPurchase_Success(t *testing.T) {
	ctx := context.Background()
	f := newFixture(openFlight(2), map[int64]int64{1: 50000})

	accepted, err := f.service.Purchase(ctx, PurchaseInput{FlightID: 7, UserID: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, accepted.AttemptID)
	assert.Equal(t, 0, f.store.activeTickets(7), "nothing happens before the job runs")

	f.jobs.run(ctx)

	assert.Equal(t, 1, f.store.activeTickets(7))
	assert.Equal(t, int64(30000), f.balance.balanceOf(1))
	assert.Equal(t, []string{accepted.AttemptID}, f.balance.deductKeys)

	success := f.notifier.ofType(domain.EventPurchaseSuccess)
	require.Len(t, success, 1)
	assert.Equal(t, []string{domain.UserRoom(1)}, success[0].Rooms)
	assert.Equal(t, 200.0, success[0].Payload["price"])

	purchased := f.notifier.ofType(domain.EventTicketPurchased)
	require.Len(t, purchased, 1)
	assert.ElementsMatch(t, []string{domain.RoomFlights, domain.FlightRoom(7)}, purchased[0].Rooms)
	assert.Equal(t, 1, purchased[0].Payload["available_seats"])
	assert.Empty(t, f.notifier.ofType(domain.EventPurchaseFailed))
}

func TestPurchase_SynchronousRejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		flight func() domain.Flight
		prep   func(f *fixture)
		input  PurchaseInput
		want   error
	}{
		{
			name:  "unknown flight",
			input: PurchaseInput{FlightID: 99, UserID: 1},
			want:  domain.ErrNotFound,
		},
		{
			name: "pending flight",
			flight: func() domain.Flight {
				fl := openFlight(2)
				fl.Status = domain.FlightStatusPendingApproval
				return fl
			},
			want: domain.ErrConflict,
		},
		{
			name: "departed",
			flight: func() domain.Flight {
				fl := openFlight(2)
				fl.DepartureTime = now.Add(-time.Minute)
				return fl
			},
			want: domain.ErrConflict,
		},
		{
			name:   "sold out",
			flight: func() domain.Flight { return openFlight(0) },
			want:   domain.ErrCapacity,
		},
		{
			name: "insufficient balance",
			prep: func(f *fixture) { f.balance.balances[1] = 100 },
			want: domain.ErrValidation,
		},
		{
			name: "already holds a ticket",
			prep: func(f *fixture) {
				f.store.tickets = append(f.store.tickets, domain.Ticket{ID: 1, FlightID: 7, UserID: 1, PriceCents: 20000})
			},
			want: domain.ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flight := openFlight(2)
			if tt.flight != nil {
				flight = tt.flight()
			}
			f := newFixture(flight, map[int64]int64{1: 50000})
			if tt.prep != nil {
				tt.prep(f)
			}
			input := tt.input
			if input.FlightID == 0 {
				input = PurchaseInput{FlightID: 7, UserID: 1}
			}

			_, err := f.service.Purchase(ctx, input)

			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, f.jobs.pending())
			assert.Empty(t, f.balance.deductKeys)
		})
	}
}

func TestPurchase_QueueFull(t *testing.T) {
	f := newFixture(openFlight(2), map[int64]int64{1: 50000})
	f.jobs.err = domain.External("too many purchases in progress, try again later", worker.ErrQueueFull)

	_, err := f.service.Purchase(context.Background(), PurchaseInput{FlightID: 7, UserID: 1})

	assert.ErrorIs(t, err, domain.ErrExternalDependency)
	assert.ErrorIs(t, err, worker.ErrQueueFull)
}

func TestPurchase_LastSeatTwoBuyers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := newMemoryStore(openFlight(1))
	bal := newFakeBalance(map[int64]int64{1: 50000, 2: 50000})
	notifier := &recordingNotifier{}
	pool := worker.NewPool(worker.Config{Workers: 2, QueueSize: 4, JobTimeout: 5 * time.Second}, nil)
	go pool.Run(ctx)

	service := NewService(store, store, bal, pool, &recordingAlerts{}, notifier,
		WithClock(func() time.Time { return now }),
		WithProcessingDelay(50*time.Millisecond))

	_, err := service.Purchase(ctx, PurchaseInput{FlightID: 7, UserID: 1})
	require.NoError(t, err)
	_, err = service.Purchase(ctx, PurchaseInput{FlightID: 7, UserID: 2})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(notifier.ofType(domain.EventPurchaseSuccess))+len(notifier.ofType(domain.EventPurchaseFailed)) == 2
	}, 3*time.Second, 10*time.Millisecond)

	assert.Len(t, notifier.ofType(domain.EventPurchaseSuccess), 1)
	failed := notifier.ofType(domain.EventPurchaseFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "no seats left on this flight", failed[0].Reason)
	assert.Equal(t, 1, store.activeTickets(7))
	assert.Equal(t, int64(80000), bal.balanceOf(1)+bal.balanceOf(2), "only one buyer is charged")
}

func TestPurchase_LastSeatSameUserTwice(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := newMemoryStore(openFlight(1))
	bal := newFakeBalance(map[int64]int64{1: 50000})
	notifier := &recordingNotifier{}
	pool := worker.NewPool(worker.Config{Workers: 2, QueueSize: 4, JobTimeout: 5 * time.Second}, nil)
	go pool.Run(ctx)

	service := NewService(store, store, bal, pool, &recordingAlerts{}, notifier,
		WithClock(func() time.Time { return now }),
		WithProcessingDelay(50*time.Millisecond))

	_, err := service.Purchase(ctx, PurchaseInput{FlightID: 7, UserID: 1})
	require.NoError(t, err)
	_, err = service.Purchase(ctx, PurchaseInput{FlightID: 7, UserID: 1})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(notifier.ofType(domain.EventPurchaseSuccess))+len(notifier.ofType(domain.EventPurchaseFailed)) == 2
	}, 3*time.Second, 10*time.Millisecond)

	assert.Len(t, notifier.ofType(domain.EventPurchaseSuccess), 1)
	failed := notifier.ofType(domain.EventPurchaseFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "no seats left on this flight", failed[0].Reason)
	assert.Equal(t, 1, store.activeTickets(7))
	assert.Equal(t, int64(30000), bal.balanceOf(1), "charged once")
}

func TestPurchase_ConcurrentBuyersNeverOversell(t *testing.T) {
	ctx := context.Background()
	const buyers, seats = 12, 3

	balances := map[int64]int64{}
	for i := int64(1); i <= buyers; i++ {
		balances[i] = 50000
	}
	f := newFixture(openFlight(seats), balances)
	for i := int64(1); i <= buyers; i++ {
		_, err := f.service.Purchase(ctx, PurchaseInput{FlightID: 7, UserID: i})
		require.NoError(t, err)
	}

	f.jobs.mu.Lock()
	jobs := f.jobs.jobs
	f.jobs.jobs = nil
	f.jobs.mu.Unlock()

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job worker.Job) {
			defer wg.Done()
			job.Run(ctx)
		}(job)
	}
	wg.Wait()

	assert.Equal(t, seats, f.store.activeTickets(7))
	assert.Len(t, f.notifier.ofType(domain.EventPurchaseSuccess), seats)
	assert.Len(t, f.notifier.ofType(domain.EventPurchaseFailed), buyers-seats)
	assert.Len(t, f.balance.deductKeys, seats)
}

func TestPurchase_DeductionFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(openFlight(2), map[int64]int64{1: 50000})
	_, err := f.service.Purchase(ctx, PurchaseInput{FlightID: 7, UserID: 1})
	require.NoError(t, err)

	f.balance.deductErr = domain.External("balance deduction failed", errors.New("status 503"))
	f.jobs.run(ctx)

	assert.Equal(t, 0, f.store.activeTickets(7))
	assert.Equal(t, int64(50000), f.balance.balanceOf(1))
	failed := f.notifier.ofType(domain.EventPurchaseFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "balance deduction failed", failed[0].Reason)
	assert.Equal(t, []string{domain.UserRoom(1)}, failed[0].Rooms)
	assert.Empty(t, f.alerts.all())
	assert.Empty(t, f.balance.refunds)
}

func TestPurchase_FlightCancelledBeforeWorkerRuns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(openFlight(2), map[int64]int64{1: 50000})
	_, err := f.service.Purchase(ctx, PurchaseInput{FlightID: 7, UserID: 1})
	require.NoError(t, err)

	f.store.setStatus(7, domain.FlightStatusCancelled)
	f.jobs.run(ctx)

	assert.Equal(t, 0, f.store.activeTickets(7))
	assert.Empty(t, f.balance.deductKeys)
	failed := f.notifier.ofType(domain.EventPurchaseFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "tickets can only be bought for approved flights", failed[0].Reason)
}

func TestPurchase_DeductedButNotPersisted(t *testing.T) {
	ctx := context.Background()

	t.Run("compensated", func(t *testing.T) {
		f := newFixture(openFlight(2), map[int64]int64{1: 50000})
		accepted, err := f.service.Purchase(ctx, PurchaseInput{FlightID: 7, UserID: 1})
		require.NoError(t, err)

		f.store.insertErr = errors.New("connection reset")
		f.jobs.run(ctx)

		alerts := f.alerts.all()
		require.Len(t, alerts, 1)
		assert.Equal(t, accepted.AttemptID, alerts[0].AttemptID)
		assert.Equal(t, int64(20000), alerts[0].AmountCents)
		assert.True(t, alerts[0].Compensated)
		assert.Equal(t, "connection reset", alerts[0].Cause)
		require.Len(t, f.balance.refunds, 1)
		assert.Equal(t, "compensate-"+accepted.AttemptID, f.balance.refunds[0].key)
		assert.Equal(t, int64(50000), f.balance.balanceOf(1))
		assert.Len(t, f.notifier.ofType(domain.EventPurchaseFailed), 1)
		assert.Empty(t, f.notifier.ofType(domain.EventPurchaseSuccess))
	})

	t.Run("compensation fails", func(t *testing.T) {
		f := newFixture(openFlight(2), map[int64]int64{1: 50000})
		_, err := f.service.Purchase(ctx, PurchaseInput{FlightID: 7, UserID: 1})
		require.NoError(t, err)

		f.store.insertErr = errors.New("connection reset")
		f.balance.refundErr = errors.New("balance service down")
		f.jobs.run(ctx)

		alerts := f.alerts.all()
		require.Len(t, alerts, 1)
		assert.False(t, alerts[0].Compensated)
		assert.Equal(t, "balance service down", alerts[0].CompensateErr)
		assert.Equal(t, int64(30000), f.balance.balanceOf(1))
	})
}

func TestPurchase_WorkerPanic(t *testing.T) {
	ctx := context.Background()

	t.Run("before deduction", func(t *testing.T) {
		f := newFixture(openFlight(2), map[int64]int64{1: 50000})
		_, err := f.service.Purchase(ctx, PurchaseInput{FlightID: 7, UserID: 1})
		require.NoError(t, err)

		f.store.panicBefore = true
		f.jobs.run(ctx)

		failed := f.notifier.ofType(domain.EventPurchaseFailed)
		require.Len(t, failed, 1)
		assert.Equal(t, "purchase could not be completed", failed[0].Reason)
		assert.Empty(t, f.alerts.all())
	})

	t.Run("after deduction", func(t *testing.T) {
		f := newFixture(openFlight(2), map[int64]int64{1: 50000})
		_, err := f.service.Purchase(ctx, PurchaseInput{FlightID: 7, UserID: 1})
		require.NoError(t, err)

		f.store.panicAfter = true
		f.jobs.run(ctx)

		assert.Len(t, f.notifier.ofType(domain.EventPurchaseFailed), 1)
		require.Len(t, f.alerts.all(), 1)
		assert.True(t, f.alerts.all()[0].Compensated)
		assert.Equal(t, int64(50000), f.balance.balanceOf(1))
	})

	t.Run("through the worker pool", func(t *testing.T) {
		runCtx, cancel := context.WithCancel(ctx)
		t.Cleanup(cancel)
		store := newMemoryStore(openFlight(2))
		store.panicBefore = true
		notifier := &recordingNotifier{}
		pool := worker.NewPool(worker.Config{Workers: 1, QueueSize: 1}, nil)
		go pool.Run(runCtx)

		service := NewService(store, store, newFakeBalance(map[int64]int64{1: 50000}), pool, nil, notifier,
			WithClock(func() time.Time { return now }))
		_, err := service.Purchase(runCtx, PurchaseInput{FlightID: 7, UserID: 1})
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return len(notifier.ofType(domain.EventPurchaseFailed)) == 1
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestCancelTicket(t *testing.T) {
	ctx := context.Background()

	setup := func(flight domain.Flight) *fixture {
		f := newFixture(flight, map[int64]int64{1: 30000, 2: 50000})
		f.store.tickets = []domain.Ticket{{ID: 1, FlightID: 7, UserID: 1, PriceCents: 18000}}
		return f
	}

	t.Run("refunds the price paid", func(t *testing.T) {
		f := setup(openFlight(2))
		ticket, err := f.service.CancelTicket(ctx, 1, 1)
		require.NoError(t, err)
		assert.True(t, ticket.Voided)
		assert.Equal(t, []refundCall{{userID: 1, amount: 18000, key: "refund-ticket-1"}}, f.balance.refunds)
		assert.Equal(t, int64(48000), f.balance.balanceOf(1))
		assert.Equal(t, 0, f.store.activeTickets(7))
	})

	t.Run("someone else's ticket", func(t *testing.T) {
		f := setup(openFlight(2))
		_, err := f.service.CancelTicket(ctx, 1, 2)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.Equal(t, 1, f.store.activeTickets(7))
		assert.Empty(t, f.balance.refunds)
	})

	t.Run("void rolled back after refund raises an alert", func(t *testing.T) {
		f := setup(openFlight(2))
		f.store.voidErr = errors.New("commit: connection reset")
		_, err := f.service.CancelTicket(ctx, 1, 1)
		require.Error(t, err)
		assert.Len(t, f.balance.refunds, 1)
		assert.Equal(t, 1, f.store.activeTickets(7))

		alerts := f.alerts.all()
		require.Len(t, alerts, 1)
		assert.Equal(t, "refund-ticket-1", alerts[0].AttemptID)
		assert.Equal(t, int64(18000), alerts[0].AmountCents)
		assert.Contains(t, alerts[0].Cause, "refund issued but ticket not voided")
	})

	t.Run("already cancelled", func(t *testing.T) {
		f := setup(openFlight(2))
		f.store.tickets[0].Voided = true
		_, err := f.service.CancelTicket(ctx, 1, 1)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.Empty(t, f.balance.refunds)
	})

	t.Run("departed", func(t *testing.T) {
		fl := openFlight(2)
		fl.DepartureTime = now.Add(-time.Hour)
		f := setup(fl)
		_, err := f.service.CancelTicket(ctx, 1, 1)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("refund fails", func(t *testing.T) {
		f := setup(openFlight(2))
		f.balance.refundErr = domain.External("balance refund failed", errors.New("timeout"))
		_, err := f.service.CancelTicket(ctx, 1, 1)
		assert.ErrorIs(t, err, domain.ErrExternalDependency)
		assert.Equal(t, 1, f.store.activeTickets(7))
		assert.Empty(t, f.alerts.all())
	})

	t.Run("unknown ticket", func(t *testing.T) {
		f := setup(openFlight(2))
		_, err := f.service.CancelTicket(ctx, 42, 1)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestListUserTickets(t *testing.T) {
	f := newFixture(openFlight(2), map[int64]int64{1: 0})
	f.store.tickets = []domain.Ticket{
		{ID: 1, FlightID: 7, UserID: 1},
		{ID: 2, FlightID: 7, UserID: 2},
		{ID: 3, FlightID: 7, UserID: 1, Voided: true},
	}

	tickets, err := f.service.ListUserTickets(context.Background(), 1)

	require.NoError(t, err)
	assert.Len(t, tickets, 2)
}

func TestGetTicket(t *testing.T) {
	ctx := context.Background()
	f := newFixture(openFlight(2), map[int64]int64{1: 0})
	f.store.tickets = []domain.Ticket{{ID: 1, FlightID: 7, UserID: 1, PriceCents: 20000}}

	ticket, err := f.service.GetTicket(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), ticket.PriceCents)

	_, err = f.service.GetTicket(ctx, 1, 2)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.service.GetTicket(ctx, 9, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListFlightTickets(t *testing.T) {
	ctx := context.Background()
	flight := openFlight(5)
	flight.CreatorID = 40
	f := newFixture(flight, map[int64]int64{1: 0})
	f.store.tickets = []domain.Ticket{
		{ID: 1, FlightID: 7, UserID: 1},
		{ID: 2, FlightID: 7, UserID: 2, Voided: true},
		{ID: 3, FlightID: 8, UserID: 1},
	}

	tickets, err := f.service.ListFlightTickets(ctx, 7, Viewer{UserID: 40})
	require.NoError(t, err)
	assert.Len(t, tickets, 2)

	tickets, err = f.service.ListFlightTickets(ctx, 7, Viewer{UserID: 1, Admin: true})
	require.NoError(t, err)
	assert.Len(t, tickets, 2)

	_, err = f.service.ListFlightTickets(ctx, 7, Viewer{UserID: 41})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.service.ListFlightTickets(ctx, 99, Viewer{Admin: true})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
