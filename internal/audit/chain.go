package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/crypto"
)

// ErrChainBroken is wrapped by every error returned from VerifyChain.
var ErrChainBroken = errors.New("audit chain broken")

// chainPayload is the checksummed view of an entry. Timestamps are hashed as UTC strings at
// microsecond precision so that an entry read back from the database produces the same checksum.
type chainPayload struct {
	ID               string         `json:"id"`
	EnvelopeID       string         `json:"envelopeId"`
	Sequence         int64          `json:"sequence"`
	Type             EventType      `json:"type"`
	Actor            Actor          `json:"actor"`
	RecipientID      string         `json:"recipientId,omitempty"`
	FieldID          string         `json:"fieldId,omitempty"`
	IPAddress        string         `json:"ipAddress,omitempty"`
	UserAgent        string         `json:"userAgent,omitempty"`
	Data             map[string]any `json:"data,omitempty"`
	CreatedAt        string         `json:"createdAt"`
	PreviousChecksum string         `json:"previousChecksum"`
}

func optionalID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

// ComputeChecksum returns sha256(jcs(entry without checksum)). The previous checksum is part of the hashed payload.
func ComputeChecksum(e Entry) (string, error) {
	payload := chainPayload{
		ID:               e.ID.String(),
		EnvelopeID:       e.EnvelopeID.String(),
		Sequence:         e.Sequence,
		Type:             e.Type,
		Actor:            e.Actor,
		RecipientID:      optionalID(e.RecipientID),
		FieldID:          optionalID(e.FieldID),
		IPAddress:        e.IPAddress,
		UserAgent:        e.UserAgent,
		Data:             e.Data,
		CreatedAt:        e.CreatedAt.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano),
		PreviousChecksum: e.PreviousChecksum,
	}
	checksum, err := crypto.HashJSON(payload)
	if err != nil {
		return "", fmt.Errorf("failed to compute audit checksum: %w", err)
	}
	return checksum, nil
}

// Record assigns the next sequence number for the envelope, chains the entry to its predecessor
// and appends it. Callers must hold the envelope lock so that sequence assignment is serialized.
func Record(ctx context.Context, w Writer, e Entry) (Entry, error) {
	if e.EnvelopeID == uuid.Nil {
		return Entry{}, fmt.Errorf("audit entry has no envelope id")
	}
	if !e.Type.Valid() {
		return Entry{}, fmt.Errorf("unknown audit event type %q", e.Type)
	}

	last, ok, err := w.LastAuditLog(ctx, e.EnvelopeID)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read last audit entry: %w", err)
	}

	e.Sequence = 1
	e.PreviousChecksum = ""
	if ok {
		e.Sequence = last.Sequence + 1
		e.PreviousChecksum = last.Checksum
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC().Truncate(time.Microsecond)

	e.Checksum, err = ComputeChecksum(e)
	if err != nil {
		return Entry{}, err
	}

	if err := w.AppendAuditLog(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("failed to append audit entry: %w", err)
	}
	return e, nil
}

// VerifyChain checks that entries (in sequence order) form an unbroken chain starting at sequence 1.
func VerifyChain(entries []Entry) error {
	previous := ""
	for i, e := range entries {
		want := int64(i + 1)
		if e.Sequence != want {
			return fmt.Errorf("%w: expected sequence %d, got %d", ErrChainBroken, want, e.Sequence)
		}
		if e.PreviousChecksum != previous {
			return fmt.Errorf("%w: sequence %d does not link to its predecessor", ErrChainBroken, e.Sequence)
		}
		checksum, err := ComputeChecksum(e)
		if err != nil {
			return err
		}
		if checksum != e.Checksum {
			return fmt.Errorf("%w: sequence %d checksum mismatch", ErrChainBroken, e.Sequence)
		}
		previous = e.Checksum
	}
	return nil
}

// Count returns the number of entries of the given type, optionally restricted to one recipient.
func Count(entries []Entry, t EventType, recipientID *uuid.UUID) int {
	n := 0
	for _, e := range entries {
		if e.Type != t {
			continue
		}
		if recipientID != nil && (e.RecipientID == nil || *e.RecipientID != *recipientID) {
			continue
		}
		n++
	}
	return n
}
