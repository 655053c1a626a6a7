package database

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID
	Email     string
	Name      string
	CreatedAt time.Time
}

type DocumentDatum struct {
	ID          uuid.UUID
	Type        string
	InitialData string
	Data        string
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Envelope struct {
	ID              uuid.UUID
	Title           string
	Status          string
	OwnerUserID     uuid.UUID
	TeamID          *uuid.UUID
	SigningOrder    string
	DateFormat      string
	Timezone        string
	CompletedAt     *time.Time
	RejectedAt      *time.Time
	RejectionReason string
	DeletedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type EnvelopeItem struct {
	ID             uuid.UUID
	EnvelopeID     uuid.UUID
	DocumentDataID uuid.UUID
	Title          string
	ItemOrder      int32
}

type Recipient struct {
	ID            uuid.UUID
	EnvelopeID    uuid.UUID
	Email         string
	Name          string
	Role          string
	SigningStatus string
	SendStatus    string
	ReadStatus    string
	Token         string
	SigningOrder  *int32
	SignedAt      *time.Time
	SentAt        *time.Time
	OpenedAt      *time.Time
	CreatedAt     time.Time
}

type Field struct {
	ID             uuid.UUID
	EnvelopeID     uuid.UUID
	EnvelopeItemID uuid.UUID
	RecipientID    uuid.UUID
	Type           string
	Page           int32
	PositionX      float64
	PositionY      float64
	Width          float64
	Height         float64
	Inserted       bool
	CustomText     string
	FieldMeta      []byte
	CreatedAt      time.Time
}

type Signature struct {
	ID                     uuid.UUID
	FieldID                uuid.UUID
	RecipientID            uuid.UUID
	SignatureImageAsBase64 *string
	TypedSignature         *string
	CreatedAt              time.Time
}

type AuditLog struct {
	ID               uuid.UUID
	EnvelopeID       uuid.UUID
	Sequence         int64
	Type             string
	Actor            []byte
	RecipientID      *uuid.UUID
	FieldID          *uuid.UUID
	IPAddress        string
	UserAgent        string
	Data             []byte
	PreviousChecksum string
	Checksum         string
	CreatedAt        time.Time
}
