// Package reconcile records balance deductions that ended up without a
// persisted ticket so they can be settled by hand.
package reconcile

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/Domenick1991/flightservice/internal/logging"
	"github.com/Domenick1991/flightservice/internal/metrics"
	bolt "github.com/boltdb/bolt"
	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"
)

const bucketName = "reconciliation_alerts"

// Alert describes money taken from a user with no ticket to show for it.
type Alert struct {
	AttemptID     string    `cbor:"attempt_id" json:"attempt_id"`
	UserID        int64     `cbor:"user_id" json:"user_id"`
	FlightID      int64     `cbor:"flight_id" json:"flight_id"`
	AmountCents   int64     `cbor:"amount_cents" json:"amount_cents"`
	Cause         string    `cbor:"cause" json:"cause"`
	Compensated   bool      `cbor:"compensated" json:"compensated"`
	CompensateErr string    `cbor:"compensate_error,omitempty" json:"compensate_error,omitempty"`
	RaisedAt      time.Time `cbor:"raised_at" json:"raised_at"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("reconcile: CBOR encoder initialization failed: " + err.Error())
	}
}

// Journal is an append-only bolt file of alerts.
type Journal struct {
	db *bolt.DB
}

func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open reconciliation journal: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) Append(a Alert) error {
	data, err := encMode.Marshal(a)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, data)
	})
}

// List returns every alert in the order it was appended.
func (j *Journal) List() ([]Alert, error) {
	alerts := []Alert{}
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(_, v []byte) error {
			var a Alert
			if err := cbor.Unmarshal(v, &a); err != nil {
				return err
			}
			alerts = append(alerts, a)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return alerts, nil
}

// Recorder raises alerts: it logs, counts and journals each one. A failing
// journal write is logged and does not stop the alert.
type Recorder struct {
	journal *Journal
	metrics *metrics.Metrics
}

func NewRecorder(journal *Journal, m *metrics.Metrics) *Recorder {
	return &Recorder{journal: journal, metrics: m}
}

func (r *Recorder) Raise(ctx context.Context, a Alert) {
	if a.RaisedAt.IsZero() {
		a.RaisedAt = time.Now().UTC()
	}
	log := logging.FromContext(ctx).WithFields(logrus.Fields{
		"attempt_id":   a.AttemptID,
		"user_id":      a.UserID,
		"flight_id":    a.FlightID,
		"amount_cents": a.AmountCents,
		"compensated":  a.Compensated,
	})
	log.WithField("cause", a.Cause).Error("reconciliation alert: balance deducted without a ticket")
	r.metrics.ReconciliationAlert()

	if r.journal == nil {
		return
	}
	if err := r.journal.Append(a); err != nil {
		log.WithError(err).Error("failed to journal reconciliation alert")
	}
}
