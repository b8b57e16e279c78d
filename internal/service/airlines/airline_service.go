package airlines

import (
	"context"

	"github.com/Domenick1991/flightservice/internal/domain"
	"github.com/Domenick1991/flightservice/internal/logging"
	"github.com/Domenick1991/flightservice/internal/repository"
)

type AirlineUseCase interface {
	Create(ctx context.Context, in domain.AirlineInput) (*domain.Airline, error)
	Get(ctx context.Context, id int64) (*domain.Airline, error)
	List(ctx context.Context) ([]domain.Airline, error)
	Update(ctx context.Context, id int64, in domain.AirlineInput) (*domain.Airline, error)
	Delete(ctx context.Context, id int64) error
}

type AirlineService struct {
	airlines repository.AirlineRepository
}

func NewAirlineService(airlines repository.AirlineRepository) *AirlineService {
	return &AirlineService{airlines: airlines}
}

func (s *AirlineService) Create(ctx context.Context, in domain.AirlineInput) (*domain.Airline, error) {
	in = in.Normalized()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	airline, err := s.airlines.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).WithField("airline_id", airline.ID).Info("airline created")
	return airline, nil
}

func (s *AirlineService) Get(ctx context.Context, id int64) (*domain.Airline, error) {
	return s.airlines.GetByID(ctx, id)
}

// List returns active airlines only.
func (s *AirlineService) List(ctx context.Context) ([]domain.Airline, error) {
	return s.airlines.ListActive(ctx)
}

func (s *AirlineService) Update(ctx context.Context, id int64, in domain.AirlineInput) (*domain.Airline, error) {
	in = in.Normalized()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return s.airlines.Update(ctx, id, in)
}

// Delete deactivates the airline. Its existing flights keep referring to it,
// but no new flight can be created for it.
func (s *AirlineService) Delete(ctx context.Context, id int64) error {
	if err := s.airlines.Deactivate(ctx, id); err != nil {
		return err
	}
	logging.FromContext(ctx).WithField("airline_id", id).Info("airline deactivated")
	return nil
}

var _ AirlineUseCase = (*AirlineService)(nil)
