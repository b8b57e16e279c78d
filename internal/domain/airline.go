package domain

import (
	"strings"
	"time"
)

type Airline struct {
	ID        int64
	Name      string
	Code      string
	Country   string
	Active    bool
	CreatedAt time.Time
}

type AirlineInput struct {
	Name    string `json:"name"`
	Code    string `json:"code"`
	Country string `json:"country"`
}

func (in AirlineInput) Validate() error {
	var problems []string
	if len(strings.TrimSpace(in.Name)) < 2 {
		problems = append(problems, "airline name must have at least 2 characters")
	}
	code := strings.TrimSpace(in.Code)
	if len(code) < 2 || len(code) > 4 {
		problems = append(problems, "airline code must have 2-4 characters")
	}
	if len(problems) > 0 {
		return Validation(strings.Join(problems, ", "))
	}
	return nil
}

func (in AirlineInput) Normalized() AirlineInput {
	return AirlineInput{
		Name:    strings.TrimSpace(in.Name),
		Code:    strings.ToUpper(strings.TrimSpace(in.Code)),
		Country: strings.TrimSpace(in.Country),
	}
}
