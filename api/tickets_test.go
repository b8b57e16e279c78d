package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Domenick1991/flightservice/internal/auth"
	"github.com/Domenick1991/flightservice/internal/domain"
	"github.com/Domenick1991/flightservice/internal/notify"
	"github.com/Domenick1991/flightservice/internal/realtime"
	"github.com/Domenick1991/flightservice/internal/service/purchase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPurchaseUseCase struct {
	mock.Mock
}

func (m *MockPurchaseUseCase) Purchase(ctx context.Context, input purchase.PurchaseInput) (*purchase.PurchaseAccepted, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*purchase.PurchaseAccepted), args.Error(1)
}

func (m *MockPurchaseUseCase) CancelTicket(ctx context.Context, ticketID, userID int64) (*domain.Ticket, error) {
	args := m.Called(ctx, ticketID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockPurchaseUseCase) ListUserTickets(ctx context.Context, userID int64) ([]domain.Ticket, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Ticket), args.Error(1)
}

func (m *MockPurchaseUseCase) GetTicket(ctx context.Context, ticketID, userID int64) (*domain.Ticket, error) {
	args := m.Called(ctx, ticketID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockPurchaseUseCase) ListFlightTickets(ctx context.Context, flightID int64, viewer purchase.Viewer) ([]domain.Ticket, error) {
	args := m.Called(ctx, flightID, viewer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Ticket), args.Error(1)
}

func TestTicketHandler_purchase(t *testing.T) {
	mockService := &MockPurchaseUseCase{}
	r := newRouter(NewTicketHandler(mockService))
	mockService.On("Purchase", mock.Anything, purchase.PurchaseInput{FlightID: 7, UserID: 3}).
		Return(&purchase.PurchaseAccepted{AttemptID: "a-1", FlightID: 7}, nil).Once()
	mockService.On("Purchase", mock.Anything, purchase.PurchaseInput{FlightID: 8, UserID: 3}).
		Return(nil, domain.Capacity("no seats left on this flight")).Once()
	mockService.On("Purchase", mock.Anything, purchase.PurchaseInput{FlightID: 9, UserID: 3}).
		Return(nil, domain.External("user lookup failed", errors.New("timeout"))).Once()

	w := do(r, http.MethodPost, "/api/tickets", token(t, 3, auth.RoleUser), purchaseRequest{FlightID: 7})
	require.Equal(t, http.StatusAccepted, w.Code)
	var body map[string]any
	decode(t, w, &body)
	assert.Equal(t, "a-1", body["attempt_id"])

	w = do(r, http.MethodPost, "/api/tickets", token(t, 3, auth.RoleUser), purchaseRequest{FlightID: 8})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodPost, "/api/tickets", token(t, 3, auth.RoleUser), purchaseRequest{FlightID: 9})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = do(r, http.MethodPost, "/api/tickets", token(t, 3, auth.RoleManager), purchaseRequest{FlightID: 7})
	assert.Equal(t, http.StatusForbidden, w.Code)
	mockService.AssertExpectations(t)
}

func TestTicketHandler_purchaseMalformedBody(t *testing.T) {
	r := newRouter(NewTicketHandler(&MockPurchaseUseCase{}))
	req := httptest.NewRequest(http.MethodPost, "/api/tickets", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+token(t, 3, auth.RoleUser))
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTicketHandler_cancelUsesCaller(t *testing.T) {
	mockService := &MockPurchaseUseCase{}
	r := newRouter(NewTicketHandler(mockService))
	mockService.On("CancelTicket", mock.Anything, int64(11), int64(3)).
		Return(&domain.Ticket{ID: 11, FlightID: 7, UserID: 3, PriceCents: 15000, Voided: true}, nil).Once()

	w := do(r, http.MethodDelete, "/api/tickets/11", token(t, 3, auth.RoleUser), nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body ticketResponse
	decode(t, w, &body)
	assert.True(t, body.Voided)
	assert.Equal(t, 150.0, body.Price)
	mockService.AssertExpectations(t)
}

func TestTicketHandler_mine(t *testing.T) {
	mockService := &MockPurchaseUseCase{}
	r := newRouter(NewTicketHandler(mockService))
	mockService.On("ListUserTickets", mock.Anything, int64(3)).Return([]domain.Ticket{{ID: 1}, {ID: 2}}, nil)

	w := do(r, http.MethodGet, "/api/tickets/mine", token(t, 3, auth.RoleUser), nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body []ticketResponse
	decode(t, w, &body)
	assert.Len(t, body, 2)
}

func TestTicketHandler_get(t *testing.T) {
	mockService := &MockPurchaseUseCase{}
	r := newRouter(NewTicketHandler(mockService))
	mockService.On("GetTicket", mock.Anything, int64(11), int64(3)).
		Return(&domain.Ticket{ID: 11, FlightID: 7, UserID: 3, PriceCents: 15000}, nil).Once()
	mockService.On("GetTicket", mock.Anything, int64(11), int64(4)).
		Return(nil, domain.Conflict("ticket belongs to another user")).Once()
	mockService.On("GetTicket", mock.Anything, int64(12), int64(3)).
		Return(nil, domain.NotFound("ticket not found")).Once()

	w := do(r, http.MethodGet, "/api/tickets/11", token(t, 3, auth.RoleUser), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body ticketResponse
	decode(t, w, &body)
	assert.Equal(t, int64(7), body.FlightID)
	assert.Equal(t, 150.0, body.Price)

	w = do(r, http.MethodGet, "/api/tickets/11", token(t, 4, auth.RoleUser), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodGet, "/api/tickets/12", token(t, 3, auth.RoleUser), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/tickets/11", token(t, 3, auth.RoleManager), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodGet, "/api/tickets/abc", token(t, 3, auth.RoleUser), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertExpectations(t)
}

func TestTicketHandler_byFlight(t *testing.T) {
	mockService := &MockPurchaseUseCase{}
	r := newRouter(NewTicketHandler(mockService))
	sold := []domain.Ticket{{ID: 1, FlightID: 7}, {ID: 2, FlightID: 7, Voided: true}}
	mockService.On("ListFlightTickets", mock.Anything, int64(7), purchase.Viewer{UserID: 1, Admin: true}).
		Return(sold, nil).Once()
	mockService.On("ListFlightTickets", mock.Anything, int64(7), purchase.Viewer{UserID: 40}).
		Return(sold, nil).Once()
	mockService.On("ListFlightTickets", mock.Anything, int64(7), purchase.Viewer{UserID: 41}).
		Return(nil, domain.Conflict("only the manager who created the flight can see its tickets")).Once()

	w := do(r, http.MethodGet, "/api/flights/7/tickets", token(t, 1, auth.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body []ticketResponse
	decode(t, w, &body)
	require.Len(t, body, 2)
	assert.True(t, body[1].Voided)

	w = do(r, http.MethodGet, "/api/flights/7/tickets", token(t, 40, auth.RoleManager), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/flights/7/tickets", token(t, 41, auth.RoleManager), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodGet, "/api/flights/7/tickets", token(t, 3, auth.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	mockService.AssertExpectations(t)
}

func TestStreamHandler_forbiddenRoom(t *testing.T) {
	r := newRouter(NewStreamHandler(realtime.NewHub(), time.Minute))

	w := do(r, http.MethodGet, "/api/stream?rooms=user:99", token(t, 3, auth.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodGet, "/api/stream?rooms=admin", token(t, 3, auth.RoleManager), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodGet, "/api/stream?rooms=lobby", token(t, 3, auth.RoleUser), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamHandler_deliversRoomEvents(t *testing.T) {
	hub := realtime.NewHub()
	r := newRouter(NewStreamHandler(hub, time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/stream?access_token="+token(t, 3, auth.RoleUser), nil).WithContext(ctx)
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ServeHTTP(w, req)
	}()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	mine := notify.New(domain.EventPurchaseSuccess, domain.UserRoom(3))
	other := notify.New(domain.EventPurchaseFailed, domain.UserRoom(4))
	hub.Deliver(ctx, mine)
	hub.Deliver(ctx, other)
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	assert.Contains(t, body, "event:ready")
	assert.Contains(t, body, "event:purchase_success")
	assert.NotContains(t, body, "purchase_failed")
	assert.Equal(t, 0, hub.Subscribers())
}
