package email

import (
	"context"
	"errors"

	"github.com/Domenick1991/flightservice/internal/logging"
	"github.com/sirupsen/logrus"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender writes outgoing mail to the log. There is no SMTP relay in this
// deployment.
type Sender struct{}

func NewSender() *Sender {
	return &Sender{}
}

func (s *Sender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("email recipient is empty")
	}
	logging.FromContext(ctx).WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info(msg.Body)
	return nil
}
