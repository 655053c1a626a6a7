package signing

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type EnvelopeStatus string

const (
	EnvelopeStatusDraft     EnvelopeStatus = "DRAFT"
	EnvelopeStatusPending   EnvelopeStatus = "PENDING"
	EnvelopeStatusCompleted EnvelopeStatus = "COMPLETED"
	EnvelopeStatusRejected  EnvelopeStatus = "REJECTED"
)

type SigningOrder string

const (
	SigningOrderParallel   SigningOrder = "PARALLEL"
	SigningOrderSequential SigningOrder = "SEQUENTIAL"
)

// Envelope is the top level signable unit. It wraps one or more envelope items (PDF documents).
type Envelope struct {
	ID              uuid.UUID      `json:"id"`
	Title           string         `json:"title"`
	Status          EnvelopeStatus `json:"status"`
	OwnerUserID     uuid.UUID      `json:"ownerUserId"`
	TeamID          *uuid.UUID     `json:"teamId,omitempty"`
	SigningOrder    SigningOrder   `json:"signingOrder"`
	DateFormat      string         `json:"dateFormat,omitempty"`
	Timezone        string         `json:"timezone,omitempty"`
	CompletedAt     *time.Time     `json:"completedAt,omitempty"`
	RejectedAt      *time.Time     `json:"rejectedAt,omitempty"`
	RejectionReason string         `json:"rejectionReason,omitempty"`
	DeletedAt       *time.Time     `json:"deletedAt,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

func (e Envelope) Deleted() bool { return e.DeletedAt != nil }

type EnvelopeItem struct {
	ID             uuid.UUID `json:"id"`
	EnvelopeID     uuid.UUID `json:"envelopeId"`
	DocumentDataID uuid.UUID `json:"documentDataId"`
	Title          string    `json:"title"`
	Order          int32     `json:"order"`
}

// DocumentDataType says how DocumentData.Data and InitialData are interpreted by the file store.
type DocumentDataType string

const (
	DocumentDataTypeBytes64   DocumentDataType = "BYTES_64"
	DocumentDataTypeLocalFile DocumentDataType = "LOCAL_FILE"
)

// DocumentData references the PDF bytes of an envelope item. InitialData is the pristine upload
// and never changes; Data is the latest mutated version. Version increments on every Data update.
type DocumentData struct {
	ID          uuid.UUID        `json:"id"`
	Type        DocumentDataType `json:"type"`
	InitialData string           `json:"-"`
	Data        string           `json:"-"`
	Version     int64            `json:"version"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

type Role string

const (
	RoleSigner    Role = "SIGNER"
	RoleApprover  Role = "APPROVER"
	RoleViewer    Role = "VIEWER"
	RoleCC        Role = "CC"
	RoleAssistant Role = "ASSISTANT"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSigner, RoleApprover, RoleViewer, RoleCC, RoleAssistant:
		return true
	}
	return false
}

// Actionable reports whether recipients with this role must sign before the envelope completes.
func (r Role) Actionable() bool {
	return r != RoleCC && r != RoleViewer
}

type SigningStatus string

const (
	SigningStatusNotSigned SigningStatus = "NOT_SIGNED"
	SigningStatusSigned    SigningStatus = "SIGNED"
)

type SendStatus string

const (
	SendStatusNotSent SendStatus = "NOT_SENT"
	SendStatusSent    SendStatus = "SENT"
)

type ReadStatus string

const (
	ReadStatusNotOpened ReadStatus = "NOT_OPENED"
	ReadStatusOpened    ReadStatus = "OPENED"
)

// Recipient is a party on an envelope. Token is the sole credential for signing access.
type Recipient struct {
	ID            uuid.UUID     `json:"id"`
	EnvelopeID    uuid.UUID     `json:"envelopeId"`
	Email         string        `json:"email"`
	Name          string        `json:"name"`
	Role          Role          `json:"role"`
	SigningStatus SigningStatus `json:"signingStatus"`
	SendStatus    SendStatus    `json:"sendStatus"`
	ReadStatus    ReadStatus    `json:"readStatus"`
	Token         string        `json:"-"`
	SigningOrder  *int32        `json:"signingOrder,omitempty"`
	SignedAt      *time.Time    `json:"signedAt,omitempty"`
	SentAt        *time.Time    `json:"sentAt,omitempty"`
	OpenedAt      *time.Time    `json:"openedAt,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

func (r Recipient) Signed() bool { return r.SigningStatus == SigningStatusSigned }

// Signature is the value of a SIGNATURE field. Exactly one of the two payloads is set.
type Signature struct {
	ID                     uuid.UUID `json:"id"`
	FieldID                uuid.UUID `json:"fieldId"`
	RecipientID            uuid.UUID `json:"recipientId"`
	SignatureImageAsBase64 *string   `json:"signatureImageAsBase64,omitempty"`
	TypedSignature         *string   `json:"typedSignature,omitempty"`
	CreatedAt              time.Time `json:"createdAt"`
}

func (s Signature) Valid() bool {
	return (s.SignatureImageAsBase64 == nil) != (s.TypedSignature == nil)
}

// Field is a positioned placeholder on a page of an envelope item.
//
// Page is 0-indexed. Position and size are fractions of the page width/height, with the
// position measured from the top left corner.
type Field struct {
	ID             uuid.UUID  `json:"id"`
	EnvelopeID     uuid.UUID  `json:"envelopeId"`
	EnvelopeItemID uuid.UUID  `json:"envelopeItemId"`
	RecipientID    uuid.UUID  `json:"recipientId"`
	Type           FieldType  `json:"type"`
	Page           int32      `json:"page"`
	PositionX      float64    `json:"positionX"`
	PositionY      float64    `json:"positionY"`
	Width          float64    `json:"width"`
	Height         float64    `json:"height"`
	Inserted       bool       `json:"inserted"`
	CustomText     string     `json:"customText,omitempty"`
	Meta           FieldMeta  `json:"fieldMeta"`
	Signature      *Signature `json:"signature,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}
