package domain

import "time"

const (
	MinScore = 1
	MaxScore = 5
)

type Rating struct {
	ID        int64
	FlightID  int64
	UserID    int64
	Score     int
	Comment   string
	CreatedAt time.Time
}

type FlightRatings struct {
	FlightID int64
	Ratings  []Rating
	Count    int
	Average  *float64
}

// AverageScore is the plain arithmetic mean, nil when there are no ratings.
func AverageScore(ratings []Rating) *float64 {
	if len(ratings) == 0 {
		return nil
	}
	sum := 0
	for _, r := range ratings {
		sum += r.Score
	}
	avg := float64(sum) / float64(len(ratings))
	return &avg
}
