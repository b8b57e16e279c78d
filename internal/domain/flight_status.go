package domain

import (
	"fmt"
	"time"
)

type FlightStatus string

// The string spellings are persisted and sent over the wire; do not change them.
const (
	FlightStatusPendingApproval FlightStatus = "PENDING_APPROVAL"
	FlightStatusApproved        FlightStatus = "APPROVED"
	FlightStatusRejected        FlightStatus = "REJECTED"
	FlightStatusInProgress      FlightStatus = "IN_PROGRESS"
	FlightStatusFinished        FlightStatus = "FINISHED"
	FlightStatusCancelled       FlightStatus = "CANCELLED"
)

var flightStatuses = []FlightStatus{
	FlightStatusPendingApproval,
	FlightStatusApproved,
	FlightStatusRejected,
	FlightStatusInProgress,
	FlightStatusFinished,
	FlightStatusCancelled,
}

func FlightStatuses() []FlightStatus {
	return append([]FlightStatus(nil), flightStatuses...)
}

func ParseFlightStatus(s string) (FlightStatus, error) {
	for _, st := range flightStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", Validation(fmt.Sprintf("unknown flight status %q", s))
}

func (s FlightStatus) Valid() bool {
	_, err := ParseFlightStatus(string(s))
	return err == nil
}

func (s FlightStatus) Terminal() bool {
	return s == FlightStatusFinished || s == FlightStatusCancelled
}

func (s FlightStatus) Editable() bool {
	return s == FlightStatusPendingApproval || s == FlightStatusRejected
}

type Trigger string

const (
	TriggerApprove Trigger = "approve"
	TriggerReject  Trigger = "reject"
	TriggerEdit    Trigger = "edit"
	TriggerDepart  Trigger = "depart"
	TriggerArrive  Trigger = "arrive"
	TriggerCancel  Trigger = "cancel"
)

type transitionKey struct {
	from    FlightStatus
	trigger Trigger
}

var transitions = map[transitionKey]FlightStatus{
	{FlightStatusPendingApproval, TriggerApprove}: FlightStatusApproved,
	{FlightStatusPendingApproval, TriggerReject}:  FlightStatusRejected,
	{FlightStatusPendingApproval, TriggerEdit}:    FlightStatusPendingApproval,
	{FlightStatusRejected, TriggerEdit}:           FlightStatusPendingApproval,
	{FlightStatusApproved, TriggerDepart}:         FlightStatusInProgress,
	{FlightStatusApproved, TriggerArrive}:         FlightStatusFinished,
	{FlightStatusInProgress, TriggerArrive}:       FlightStatusFinished,
	{FlightStatusApproved, TriggerCancel}:         FlightStatusCancelled,
}

// NextStatus returns the status reached from `from` by trigger t, or a
// conflict error when the transition is not in the table.
func NextStatus(from FlightStatus, t Trigger) (FlightStatus, error) {
	to, ok := transitions[transitionKey{from, t}]
	if !ok {
		return "", Conflict(fmt.Sprintf("cannot %s a flight in status %s", t, from))
	}
	return to, nil
}

// TimeTransition reports the status a flight should move to at time now
// because of its schedule. ok is false when no time-based transition applies.
func TimeTransition(f Flight, now time.Time) (to FlightStatus, ok bool) {
	switch f.Status {
	case FlightStatusApproved:
		if f.Arrived(now) {
			return FlightStatusFinished, true
		}
		if f.Departed(now) {
			return FlightStatusInProgress, true
		}
	case FlightStatusInProgress:
		if f.Arrived(now) {
			return FlightStatusFinished, true
		}
	}
	return "", false
}

const MinRejectionReasonLength = 10

// Approve moves a pending flight to APPROVED.
func (f *Flight) Approve() error {
	to, err := NextStatus(f.Status, TriggerApprove)
	if err != nil {
		return err
	}
	f.Status = to
	return nil
}

func (f *Flight) Reject(reason string) error {
	if len([]rune(reason)) < MinRejectionReasonLength {
		return Validation(fmt.Sprintf("rejection reason must have at least %d characters", MinRejectionReasonLength))
	}
	to, err := NextStatus(f.Status, TriggerReject)
	if err != nil {
		return err
	}
	f.Status = to
	f.RejectionReason = reason
	return nil
}

// Edit applies a manager's draft and resubmits the flight for approval.
func (f *Flight) Edit(editorID int64, draft FlightDraft) error {
	if f.CreatorID != editorID {
		return Conflict("only the manager who created the flight can edit it")
	}
	to, err := NextStatus(f.Status, TriggerEdit)
	if err != nil {
		return Conflict("flight can only be edited while pending approval or rejected")
	}
	draft.Apply(f)
	f.Status = to
	f.RejectionReason = ""
	return nil
}

func (f *Flight) Cancel(now time.Time) error {
	to, err := NextStatus(f.Status, TriggerCancel)
	if err != nil {
		return Conflict("only approved flights can be cancelled")
	}
	if f.Departed(now) {
		return Conflict("flight has already departed")
	}
	f.Status = to
	return nil
}
