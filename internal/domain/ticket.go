package domain

import "time"

type Ticket struct {
	ID          int64
	FlightID    int64
	UserID      int64
	PriceCents  int64
	Voided      bool
	PurchasedAt time.Time
}

// PurchaseCheck is the state a purchase is validated against.
type PurchaseCheck struct {
	Flight         Flight
	AvailableSeats int
	HasTicket      bool
	BalanceCents   int64
	Now            time.Time
}

// Validate applies the purchase guards in a fixed order so that the same
// state always yields the same rejection.
func (c PurchaseCheck) Validate() error {
	if c.Flight.Status != FlightStatusApproved {
		return Conflict("tickets can only be bought for approved flights")
	}
	if c.Flight.Departed(c.Now) {
		return Conflict("flight has already departed")
	}
	if c.AvailableSeats <= 0 {
		return Capacity("no seats left on this flight")
	}
	if c.BalanceCents < c.Flight.PriceCents {
		return Validation("insufficient balance")
	}
	if c.HasTicket {
		return Conflict("you already hold a ticket for this flight")
	}
	return nil
}

// Refund is money owed back to a user for a voided ticket.
type Refund struct {
	UserID      int64 `json:"user_id"`
	TicketID    int64 `json:"ticket_id"`
	AmountCents int64 `json:"amount_cents"`
}

type RefundFailure struct {
	Refund
	Reason string `json:"reason"`
}
