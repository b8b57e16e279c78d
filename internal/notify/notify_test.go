package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/Domenick1991/flightservice/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Publish(ctx context.Context, e Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func TestNew(t *testing.T) {
	e := New(domain.EventFlightApproved, domain.RoomFlights, domain.RoomManager)
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.OccurredAt.IsZero())
	assert.Equal(t, []string{"flights", "manager"}, e.Rooms)
}

func TestFanout_FailingSinkDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	broken := &MockSink{}
	healthy := &MockSink{}
	broken.On("Publish", ctx, mock.AnythingOfType("notify.Event")).Return(errors.New("broker down")).Once()
	healthy.On("Publish", ctx, mock.MatchedBy(func(e Event) bool {
		return e.Type == domain.EventFlightCancelled && e.ID != ""
	})).Return(nil).Once()

	NewFanout(broken, healthy).Notify(ctx, Event{Type: domain.EventFlightCancelled})

	broken.AssertExpectations(t)
	healthy.AssertExpectations(t)
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() { Nop{}.Notify(context.Background(), Event{}) })
}
