// Package audit records the append-only, hash-chained event log of an envelope and
// projects it into a signed certificate of completion.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventDocumentCreated            EventType = "DOCUMENT_CREATED"
	EventDocumentSent               EventType = "DOCUMENT_SENT"
	EventDocumentOpened             EventType = "DOCUMENT_OPENED"
	EventDocumentFieldInserted      EventType = "DOCUMENT_FIELD_INSERTED"
	EventDocumentFieldUninserted    EventType = "DOCUMENT_FIELD_UNINSERTED"
	EventDocumentRecipientCompleted EventType = "DOCUMENT_RECIPIENT_COMPLETED"
	EventDocumentRecipientReset     EventType = "DOCUMENT_RECIPIENT_RESET"
	EventDocumentCompleted          EventType = "DOCUMENT_COMPLETED"
	EventDocumentRejected           EventType = "DOCUMENT_REJECTED"
	EventDocumentDeleted            EventType = "DOCUMENT_DELETED"
)

func (t EventType) Valid() bool {
	switch t {
	case EventDocumentCreated, EventDocumentSent, EventDocumentOpened,
		EventDocumentFieldInserted, EventDocumentFieldUninserted,
		EventDocumentRecipientCompleted, EventDocumentRecipientReset,
		EventDocumentCompleted, EventDocumentRejected, EventDocumentDeleted:
		return true
	}
	return false
}

type ActorType string

const (
	ActorUser      ActorType = "USER"
	ActorRecipient ActorType = "RECIPIENT"
	ActorSystem    ActorType = "SYSTEM"
)

// Actor identifies who caused an event.
type Actor struct {
	Type  ActorType `json:"type"`
	ID    string    `json:"id,omitempty"`
	Email string    `json:"email,omitempty"`
	Name  string    `json:"name,omitempty"`
}

func SystemActor() Actor {
	return Actor{Type: ActorSystem}
}

// Entry is one immutable audit log record.
//
// Sequence, PreviousChecksum and Checksum are assigned by Record.
type Entry struct {
	ID               uuid.UUID      `json:"id"`
	EnvelopeID       uuid.UUID      `json:"envelopeId"`
	Sequence         int64          `json:"sequence"`
	Type             EventType      `json:"type"`
	Actor            Actor          `json:"actor"`
	RecipientID      *uuid.UUID     `json:"recipientId,omitempty"`
	FieldID          *uuid.UUID     `json:"fieldId,omitempty"`
	IPAddress        string         `json:"ipAddress,omitempty"`
	UserAgent        string         `json:"userAgent,omitempty"`
	Data             map[string]any `json:"data,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	PreviousChecksum string         `json:"previousChecksum"`
	Checksum         string         `json:"checksum"`
}

// Writer appends entries. Implementations run inside the caller's transaction.
type Writer interface {
	// LastAuditLog returns the entry with the highest sequence for the envelope, or ok=false when there is none.
	LastAuditLog(ctx context.Context, envelopeID uuid.UUID) (entry Entry, ok bool, err error)
	AppendAuditLog(ctx context.Context, entry Entry) error
}

// Reader lists the entries of an envelope in sequence order.
type Reader interface {
	ListAuditLogs(ctx context.Context, envelopeID uuid.UUID) ([]Entry, error)
}
