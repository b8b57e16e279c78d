package api

import (
	"math"
	"time"

	"github.com/Domenick1991/flightservice/internal/domain"
)

// Prices cross the API as decimal amounts and are kept in cents inside.
func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromCents(cents int64) float64 {
	return float64(cents) / 100
}

type flightRequest struct {
	Name            string    `json:"name"`
	AirlineID       int64     `json:"airline_id"`
	DistanceKm      float64   `json:"distance_km"`
	Origin          string    `json:"origin"`
	Destination     string    `json:"destination"`
	DepartureTime   time.Time `json:"departure_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Price           float64   `json:"price"`
	TotalSeats      int       `json:"total_seats"`
}

func (r flightRequest) draft() domain.FlightDraft {
	return domain.FlightDraft{
		Name:            r.Name,
		AirlineID:       r.AirlineID,
		DistanceKm:      r.DistanceKm,
		Origin:          r.Origin,
		Destination:     r.Destination,
		DepartureTime:   r.DepartureTime,
		DurationMinutes: r.DurationMinutes,
		PriceCents:      toCents(r.Price),
		TotalSeats:      r.TotalSeats,
	}
}

type airlineResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Country   string    `json:"country,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func newAirlineResponse(a domain.Airline) airlineResponse {
	return airlineResponse{ID: a.ID, Name: a.Name, Code: a.Code, Country: a.Country, Active: a.Active, CreatedAt: a.CreatedAt}
}

type flightResponse struct {
	ID              int64            `json:"id"`
	Name            string           `json:"name"`
	AirlineID       int64            `json:"airline_id"`
	Airline         *airlineResponse `json:"airline,omitempty"`
	DistanceKm      float64          `json:"distance_km"`
	Origin          string           `json:"origin"`
	Destination     string           `json:"destination"`
	DepartureTime   time.Time        `json:"departure_time"`
	ArrivalTime     time.Time        `json:"arrival_time"`
	DurationMinutes int              `json:"duration_minutes"`
	Price           float64          `json:"price"`
	TotalSeats      int              `json:"total_seats"`
	AvailableSeats  *int             `json:"available_seats,omitempty"`
	AverageRating   *float64         `json:"average_rating,omitempty"`
	Status          string           `json:"status"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
	CreatorID       int64            `json:"creator_id"`
}

func newFlightResponse(f domain.Flight) flightResponse {
	return flightResponse{
		ID:              f.ID,
		Name:            f.Name,
		AirlineID:       f.AirlineID,
		DistanceKm:      f.DistanceKm,
		Origin:          f.Origin,
		Destination:     f.Destination,
		DepartureTime:   f.DepartureTime,
		ArrivalTime:     f.ArrivalTime(),
		DurationMinutes: f.DurationMinutes,
		Price:           fromCents(f.PriceCents),
		TotalSeats:      f.TotalSeats,
		Status:          string(f.Status),
		RejectionReason: f.RejectionReason,
		CreatorID:       f.CreatorID,
	}
}

func newFlightDetailsResponse(d domain.FlightDetails) flightResponse {
	r := newFlightResponse(d.Flight)
	available := d.AvailableSeats
	r.AvailableSeats = &available
	r.AverageRating = d.AverageRating
	if d.Airline != nil {
		a := newAirlineResponse(*d.Airline)
		r.Airline = &a
	}
	return r
}

func newFlightListResponse(list []domain.FlightDetails) []flightResponse {
	out := make([]flightResponse, 0, len(list))
	for _, d := range list {
		out = append(out, newFlightDetailsResponse(d))
	}
	return out
}

type refundResponse struct {
	UserID   int64   `json:"user_id"`
	TicketID int64   `json:"ticket_id"`
	Amount   float64 `json:"amount"`
	Reason   string  `json:"reason,omitempty"`
}

type cancelResponse struct {
	Flight  flightResponse   `json:"flight"`
	Refunds []refundResponse `json:"refunds"`
	Failed  []refundResponse `json:"failed"`
}

type ticketResponse struct {
	ID          int64     `json:"id"`
	FlightID    int64     `json:"flight_id"`
	Price       float64   `json:"price"`
	Voided      bool      `json:"voided"`
	PurchasedAt time.Time `json:"purchased_at"`
}

func newTicketResponse(t domain.Ticket) ticketResponse {
	return ticketResponse{ID: t.ID, FlightID: t.FlightID, Price: fromCents(t.PriceCents), Voided: t.Voided, PurchasedAt: t.PurchasedAt}
}

type ratingResponse struct {
	ID        int64     `json:"id"`
	FlightID  int64     `json:"flight_id"`
	UserID    int64     `json:"user_id"`
	Score     int       `json:"score"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func newRatingResponse(r domain.Rating) ratingResponse {
	return ratingResponse{ID: r.ID, FlightID: r.FlightID, UserID: r.UserID, Score: r.Score, Comment: r.Comment, CreatedAt: r.CreatedAt}
}

func newRatingResponses(list []domain.Rating) []ratingResponse {
	out := make([]ratingResponse, 0, len(list))
	for _, r := range list {
		out = append(out, newRatingResponse(r))
	}
	return out
}
