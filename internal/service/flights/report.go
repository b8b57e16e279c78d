package flights

import (
	"context"
	"fmt"

	"github.com/Domenick1991/flightservice/internal/domain"
	"github.com/Domenick1991/flightservice/internal/notify"
	"github.com/samber/lo"
)

type ReportType string

const (
	ReportUpcoming   ReportType = "upcoming"
	ReportInProgress ReportType = "in_progress"
	ReportFinished   ReportType = "finished"
)

func ParseReportType(s string) (ReportType, error) {
	switch t := ReportType(s); t {
	case ReportUpcoming, ReportInProgress, ReportFinished:
		return t, nil
	}
	return "", domain.Validation(fmt.Sprintf("unknown report type %q", s))
}

// Report snapshots the flights of one report type and queues an email with
// the snapshot to the requesting admin.
func (s *FlightService) Report(ctx context.Context, requesterID int64, reportType ReportType) ([]map[string]any, error) {
	flights, err := s.reportFlights(ctx, reportType)
	if err != nil {
		return nil, err
	}
	rows := lo.Map(flights, func(f domain.FlightDetails, _ int) map[string]any {
		return reportRow(f)
	})

	requester, err := s.users.FetchUser(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	e := notify.New(domain.EventReportRequested)
	e.UserID = requesterID
	e.Payload = map[string]any{
		"report_type":     string(reportType),
		"recipient_email": requester.Email,
		"recipient_name":  requester.Name,
		"rows":            rows,
	}
	s.notifier.Notify(ctx, e)
	return rows, nil
}

func (s *FlightService) reportFlights(ctx context.Context, reportType ReportType) ([]domain.FlightDetails, error) {
	switch reportType {
	case ReportUpcoming:
		return s.flights.List(ctx, domain.FlightFilter{Status: domain.FlightStatusApproved, From: s.now()})
	case ReportInProgress:
		return s.flights.List(ctx, domain.FlightFilter{Status: domain.FlightStatusInProgress})
	case ReportFinished:
		finished, err := s.flights.List(ctx, domain.FlightFilter{Status: domain.FlightStatusFinished})
		if err != nil {
			return nil, err
		}
		cancelled, err := s.flights.List(ctx, domain.FlightFilter{Status: domain.FlightStatusCancelled})
		if err != nil {
			return nil, err
		}
		return append(finished, cancelled...), nil
	}
	return nil, domain.Validation(fmt.Sprintf("unknown report type %q", reportType))
}

func reportRow(f domain.FlightDetails) map[string]any {
	airline := ""
	if f.Airline != nil {
		airline = f.Airline.Name
	}
	return map[string]any{
		"id":              f.ID,
		"name":            f.Name,
		"airline":         airline,
		"origin":          f.Origin,
		"destination":     f.Destination,
		"departure_time":  f.DepartureTime.UTC().Format("2006-01-02 15:04"),
		"arrival_time":    f.ArrivalTime().UTC().Format("2006-01-02 15:04"),
		"price":           float64(f.PriceCents) / 100,
		"status":          string(f.Status),
		"available_seats": f.AvailableSeats,
	}
}
