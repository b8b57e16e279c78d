package ratings

import (
	"context"
	"fmt"
	"strings"

	"github.com/Domenick1991/flightservice/internal/domain"
	"github.com/Domenick1991/flightservice/internal/logging"
	"github.com/Domenick1991/flightservice/internal/repository"
	"github.com/sirupsen/logrus"
)

const maxCommentLength = 1000

type RatingUseCase interface {
	Rate(ctx context.Context, input RateInput) (*domain.Rating, error)
	ListByFlight(ctx context.Context, flightID int64) (*domain.FlightRatings, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Rating, error)
	ListAll(ctx context.Context) ([]domain.Rating, error)
}

type FlightReader interface {
	GetByID(ctx context.Context, id int64) (*domain.Flight, error)
}

type TicketChecker interface {
	HasActive(ctx context.Context, flightID, userID int64) (bool, error)
}

type RateInput struct {
	FlightID int64  `json:"-"`
	UserID   int64  `json:"-"`
	Score    int    `json:"score"`
	Comment  string `json:"comment"`
}

type RatingService struct {
	flights FlightReader
	tickets TicketChecker
	ratings repository.RatingRepository
}

func NewRatingService(flights FlightReader, tickets TicketChecker, ratings repository.RatingRepository) *RatingService {
	return &RatingService{flights: flights, tickets: tickets, ratings: ratings}
}

// Rate records a passenger's one and only rating of a finished flight.
func (s *RatingService) Rate(ctx context.Context, input RateInput) (*domain.Rating, error) {
	if input.Score < domain.MinScore || input.Score > domain.MaxScore {
		return nil, domain.Validation(fmt.Sprintf("score must be between %d and %d", domain.MinScore, domain.MaxScore))
	}
	comment := strings.TrimSpace(input.Comment)
	if len([]rune(comment)) > maxCommentLength {
		return nil, domain.Validation(fmt.Sprintf("comment must have at most %d characters", maxCommentLength))
	}

	flight, err := s.flights.GetByID(ctx, input.FlightID)
	if err != nil {
		return nil, err
	}
	if flight.Status != domain.FlightStatusFinished {
		return nil, domain.Conflict("only finished flights can be rated")
	}

	hasTicket, err := s.tickets.HasActive(ctx, input.FlightID, input.UserID)
	if err != nil {
		return nil, err
	}
	if !hasTicket {
		return nil, domain.Conflict("only passengers of this flight can rate it")
	}

	rated, err := s.ratings.Exists(ctx, input.FlightID, input.UserID)
	if err != nil {
		return nil, err
	}
	if rated {
		return nil, domain.Conflict("you have already rated this flight")
	}

	rating := &domain.Rating{
		FlightID: input.FlightID,
		UserID:   input.UserID,
		Score:    input.Score,
		Comment:  comment,
	}
	// A concurrent duplicate that got past Exists is caught by the unique index.
	if err := s.ratings.Create(ctx, rating); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(logrus.Fields{
		"flight_id": rating.FlightID,
		"user_id":   rating.UserID,
		"score":     rating.Score,
	}).Info("flight rated")
	return rating, nil
}

func (s *RatingService) ListByFlight(ctx context.Context, flightID int64) (*domain.FlightRatings, error) {
	if _, err := s.flights.GetByID(ctx, flightID); err != nil {
		return nil, err
	}
	ratings, err := s.ratings.ListByFlight(ctx, flightID)
	if err != nil {
		return nil, err
	}
	return &domain.FlightRatings{
		FlightID: flightID,
		Ratings:  ratings,
		Count:    len(ratings),
		Average:  domain.AverageScore(ratings),
	}, nil
}

func (s *RatingService) ListByUser(ctx context.Context, userID int64) ([]domain.Rating, error) {
	return s.ratings.ListByUser(ctx, userID)
}

func (s *RatingService) ListAll(ctx context.Context) ([]domain.Rating, error) {
	return s.ratings.ListAll(ctx)
}

var _ RatingUseCase = (*RatingService)(nil)
