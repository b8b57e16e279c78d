package domain

import (
	"strings"
	"time"
)

type Flight struct {
	ID              int64
	Name            string
	AirlineID       int64
	DistanceKm      float64
	Origin          string
	Destination     string
	DepartureTime   time.Time
	DurationMinutes int
	PriceCents      int64
	TotalSeats      int
	CreatorID       int64
	Status          FlightStatus
	RejectionReason string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ArrivalTime is derived from departure and duration and never stored.
func (f Flight) ArrivalTime() time.Time {
	return f.DepartureTime.Add(time.Duration(f.DurationMinutes) * time.Minute)
}

func (f Flight) Departed(now time.Time) bool {
	return !now.Before(f.DepartureTime)
}

func (f Flight) Arrived(now time.Time) bool {
	return !now.Before(f.ArrivalTime())
}

// FlightDetails is a flight together with its derived inventory and rating data.
type FlightDetails struct {
	Flight
	AvailableSeats int
	AverageRating  *float64
	Airline        *Airline
}

// FlightDraft carries the manager-editable fields of a flight.
type FlightDraft struct {
	Name            string    `json:"name"`
	AirlineID       int64     `json:"airline_id"`
	DistanceKm      float64   `json:"distance_km"`
	Origin          string    `json:"origin"`
	Destination     string    `json:"destination"`
	DepartureTime   time.Time `json:"departure_time"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int64     `json:"price_cents"`
	TotalSeats      int       `json:"total_seats"`
}

func (d FlightDraft) Validate() error {
	var problems []string
	if len(strings.TrimSpace(d.Name)) < 3 {
		problems = append(problems, "flight name must have at least 3 characters")
	}
	if d.AirlineID <= 0 {
		problems = append(problems, "airline is required")
	}
	if d.DistanceKm <= 0 {
		problems = append(problems, "distance must be positive")
	}
	if d.DurationMinutes <= 0 {
		problems = append(problems, "duration must be positive")
	}
	if d.DepartureTime.IsZero() {
		problems = append(problems, "departure time is required")
	}
	origin, destination := normalizeAirport(d.Origin), normalizeAirport(d.Destination)
	if origin == "" {
		problems = append(problems, "origin airport is required")
	}
	if destination == "" {
		problems = append(problems, "destination airport is required")
	}
	if origin != "" && origin == destination {
		problems = append(problems, "origin and destination must differ")
	}
	if d.PriceCents <= 0 {
		problems = append(problems, "price must be positive")
	}
	if d.TotalSeats <= 0 {
		problems = append(problems, "total seats must be positive")
	}
	if len(problems) > 0 {
		return Validation(strings.Join(problems, ", "))
	}
	return nil
}

// Apply copies the draft onto f. Capacity is only taken from the draft while
// the flight has never been approved, which is the only time edits are allowed.
func (d FlightDraft) Apply(f *Flight) {
	f.Name = strings.TrimSpace(d.Name)
	f.AirlineID = d.AirlineID
	f.DistanceKm = d.DistanceKm
	f.Origin = normalizeAirport(d.Origin)
	f.Destination = normalizeAirport(d.Destination)
	f.DepartureTime = d.DepartureTime
	f.DurationMinutes = d.DurationMinutes
	f.PriceCents = d.PriceCents
	f.TotalSeats = d.TotalSeats
}

func normalizeAirport(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// FlightFilter narrows flight searches. Zero values are ignored.
type FlightFilter struct {
	Status    FlightStatus
	Name      string
	AirlineID int64
	From      time.Time
	To        time.Time
	CreatorID int64
}
