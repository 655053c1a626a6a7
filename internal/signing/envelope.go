package signing

import (
	"fmt"
	"slices"
	"time"
)

var validEnvelopeTransitions = map[EnvelopeStatus][]EnvelopeStatus{
	EnvelopeStatusDraft:     {EnvelopeStatusPending},
	EnvelopeStatusPending:   {EnvelopeStatusCompleted, EnvelopeStatusRejected},
	EnvelopeStatusCompleted: {EnvelopeStatusPending}, // only when a recipient is reset
	EnvelopeStatusRejected:  {},                      // terminal state
}

// CanTransition reports whether an envelope may move from one status to another.
// Soft deletion is not a status and is always allowed.
func CanTransition(from, to EnvelopeStatus) bool {
	next, ok := validEnvelopeTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(next, to)
}

// transition moves the envelope to status and maintains the timestamps that belong to it.
func (e *Envelope) transition(to EnvelopeStatus, at time.Time) error {
	if !CanTransition(e.Status, to) {
		return NewInvalidStateError(fmt.Sprintf("envelope cannot move from %s to %s", e.Status, to))
	}

	switch to {
	case EnvelopeStatusCompleted:
		e.CompletedAt = &at
	case EnvelopeStatusRejected:
		e.RejectedAt = &at
	case EnvelopeStatusPending:
		e.CompletedAt = nil
	}
	e.Status = to
	e.UpdatedAt = at
	return nil
}

// allActionableSigned reports whether every actionable recipient has signed. An envelope with no
// actionable recipients is never complete.
func allActionableSigned(recipients []Recipient) bool {
	n := 0
	for _, r := range recipients {
		if !r.Role.Actionable() {
			continue
		}
		if !r.Signed() {
			return false
		}
		n++
	}
	return n > 0
}
