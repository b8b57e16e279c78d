package domain

import "fmt"

type EventType string

const (
	EventNewFlightPending    EventType = "new_flight_pending"
	EventFlightApproved      EventType = "flight_approved"
	EventFlightRejected      EventType = "flight_rejected"
	EventFlightUpdated       EventType = "flight_updated"
	EventFlightCancelled     EventType = "flight_cancelled"
	EventFlightStatusChanged EventType = "flight_status_changed"
	EventTicketPurchased     EventType = "ticket_purchased"
	EventPurchaseSuccess     EventType = "purchase_success"
	EventPurchaseFailed      EventType = "purchase_failed"
	EventReportRequested     EventType = "report_requested"
)

// Audiences an event can be addressed to.
const (
	RoomAdmin   = "admin"
	RoomManager = "manager"
	RoomFlights = "flights"
)

func FlightRoom(flightID int64) string { return fmt.Sprintf("flight:%d", flightID) }

func UserRoom(userID int64) string { return fmt.Sprintf("user:%d", userID) }
