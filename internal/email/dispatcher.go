package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/Domenick1991/flightservice/internal/balance"
	"github.com/Domenick1991/flightservice/internal/domain"
	"github.com/Domenick1991/flightservice/internal/logging"
	"github.com/Domenick1991/flightservice/internal/notify"
	"github.com/sirupsen/logrus"
)

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type UserDirectory interface {
	FetchUser(ctx context.Context, userID int64) (*balance.User, error)
}

// CancellationPayload is what flight_cancelled events carry for mailing.
type CancellationPayload struct {
	FlightName  string                 `json:"flight_name"`
	Origin      string                 `json:"origin"`
	Destination string                 `json:"destination"`
	Refunds     []domain.Refund        `json:"refunds"`
	Failed      []domain.RefundFailure `json:"failed"`
}

// ReportPayload is what report_requested events carry.
type ReportPayload struct {
	ReportType     string           `json:"report_type"`
	RecipientEmail string           `json:"recipient_email"`
	RecipientName  string           `json:"recipient_name"`
	Rows           []map[string]any `json:"rows"`
}

// Dispatcher turns events from the event log into emails.
type Dispatcher struct {
	mailer   Mailer
	users    UserDirectory
	attempts int
	backoff  time.Duration
}

func NewDispatcher(mailer Mailer, users UserDirectory, attempts int, backoff time.Duration) *Dispatcher {
	if attempts <= 0 {
		attempts = 1
	}
	return &Dispatcher{mailer: mailer, users: users, attempts: attempts, backoff: backoff}
}

// Handle never fails: an undeliverable email is logged and the event is
// considered processed.
func (d *Dispatcher) Handle(ctx context.Context, e notify.Event) error {
	switch e.Type {
	case domain.EventFlightCancelled:
		var p CancellationPayload
		if err := decodePayload(e.Payload, &p); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("bad cancellation payload")
			return nil
		}
		d.sendCancellations(ctx, e.FlightID, p)
	case domain.EventReportRequested:
		var p ReportPayload
		if err := decodePayload(e.Payload, &p); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("bad report payload")
			return nil
		}
		d.sendReport(ctx, p)
	}
	return nil
}

func (d *Dispatcher) sendCancellations(ctx context.Context, flightID int64, p CancellationPayload) {
	for _, r := range p.Refunds {
		d.sendCancellation(ctx, flightID, p, r,
			fmt.Sprintf("%.2f has been returned to your account.", float64(r.AmountCents)/100))
	}
	for _, f := range p.Failed {
		d.sendCancellation(ctx, flightID, p, f.Refund,
			fmt.Sprintf("Your refund of %.2f is delayed; our staff will complete it shortly.", float64(f.AmountCents)/100))
	}
}

func (d *Dispatcher) sendCancellation(ctx context.Context, flightID int64, p CancellationPayload, r domain.Refund, refundLine string) {
	log := logging.FromContext(ctx).WithFields(logrus.Fields{"user_id": r.UserID, "flight_id": flightID})
	user, err := d.users.FetchUser(ctx, r.UserID)
	if err != nil {
		log.WithError(err).Warn("cannot look up user for cancellation email")
		return
	}
	msg := Message{
		To:      user.Email,
		Subject: fmt.Sprintf("Flight %s has been cancelled", p.FlightName),
		Body: fmt.Sprintf("Dear %s,\n\nflight %s (%s -> %s) has been cancelled. %s\n",
			user.Name, p.FlightName, p.Origin, p.Destination, refundLine),
	}
	if err := d.sendWithRetry(ctx, msg); err != nil {
		log.WithError(err).Error("cancellation email not delivered")
	}
}

func (d *Dispatcher) sendReport(ctx context.Context, p ReportPayload) {
	msg := Message{
		To:      p.RecipientEmail,
		Subject: fmt.Sprintf("Report: %s flights", p.ReportType),
		Body:    RenderReport(p),
	}
	if err := d.sendWithRetry(ctx, msg); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("report_type", p.ReportType).Error("report email not delivered")
	}
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, msg Message) error {
	var err error
	for i := 0; i < d.attempts; i++ {
		if err = d.mailer.Send(ctx, msg); err == nil {
			return nil
		}
		if i < d.attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.backoff):
			}
		}
	}
	return fmt.Errorf("after %d attempts: %w", d.attempts, err)
}

// RenderReport lays the report rows out as an aligned text table followed by
// totals.
func RenderReport(p ReportPayload) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Dear %s,\n\nthe %s flights report you requested:\n\n", p.RecipientName, p.ReportType)
	if len(p.Rows) == 0 {
		buf.WriteString("No flights to show.\n")
		return buf.String()
	}

	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tAIRLINE\tFROM\tTO\tDEPARTURE\tPRICE\tSTATUS")
	var total float64
	for _, row := range p.Rows {
		price, _ := row["price"].(float64)
		total += price
		fmt.Fprintf(tw, "%v\t%v\t%v\t%v\t%v\t%.2f\t%v\n",
			row["name"], row["airline"], row["origin"], row["destination"], row["departure_time"], price, row["status"])
	}
	tw.Flush()
	fmt.Fprintf(&buf, "\nFlights: %d\nTotal ticket value: %.2f\n", len(p.Rows), total)
	return buf.String()
}

func decodePayload(payload map[string]any, v any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
