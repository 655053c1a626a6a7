package signing

import (
	"context"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/audit"
)

// Store runs fn inside a single transaction. If fn returns an error every write made through tx is discarded.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional persistence surface used by the Service.
//
// Lookups return an error wrapping ErrRecordNotFound when nothing matches; inserts that violate a
// unique constraint return an error wrapping ErrDuplicateRecord.
type Tx interface {
	audit.Writer
	audit.Reader

	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id uuid.UUID) (User, error)

	CreateEnvelope(ctx context.Context, e Envelope) error
	GetEnvelope(ctx context.Context, id uuid.UUID) (Envelope, error)
	// LockEnvelope reads the envelope and holds a row lock on it until the transaction ends.
	// Every mutation of an envelope's recipients, fields or document bytes starts with it.
	LockEnvelope(ctx context.Context, id uuid.UUID) (Envelope, error)
	UpdateEnvelope(ctx context.Context, e Envelope) error

	CreateDocumentData(ctx context.Context, d DocumentData) error
	GetDocumentData(ctx context.Context, id uuid.UUID) (DocumentData, error)
	// UpdateDocumentData replaces Data if the stored version still equals expectedVersion, and
	// returns ErrVersionConflict otherwise. InitialData is never modified.
	UpdateDocumentData(ctx context.Context, id uuid.UUID, data string, expectedVersion int64) (DocumentData, error)

	CreateEnvelopeItem(ctx context.Context, item EnvelopeItem) error
	ListEnvelopeItems(ctx context.Context, envelopeID uuid.UUID) ([]EnvelopeItem, error)

	CreateRecipient(ctx context.Context, r Recipient) error
	GetRecipientByToken(ctx context.Context, token string) (Recipient, error)
	ListRecipients(ctx context.Context, envelopeID uuid.UUID) ([]Recipient, error)
	UpdateRecipient(ctx context.Context, r Recipient) error

	CreateField(ctx context.Context, f Field) error
	// ListFields returns the envelope's fields with their Signature attached.
	ListFields(ctx context.Context, envelopeID uuid.UUID) ([]Field, error)
	// UpdateField persists Inserted and CustomText.
	UpdateField(ctx context.Context, f Field) error
	DeleteField(ctx context.Context, id uuid.UUID) error

	CreateSignature(ctx context.Context, s Signature) error
	DeleteSignatureByFieldID(ctx context.Context, fieldID uuid.UUID) error
}

// UpdateFileRequest asks the file store to replace the bytes referenced by OldData.
type UpdateFileRequest struct {
	Type    DocumentDataType
	OldData string
	NewData []byte
}

// FileStore stores document bytes. The reference it returns is what DocumentData.Data and
// InitialData hold.
type FileStore interface {
	PutFile(ctx context.Context, data []byte) (DocumentDataType, string, error)
	GetFile(ctx context.Context, t DocumentDataType, data string) ([]byte, error)
	// UpdateFile stores NewData and returns its reference. The bytes behind OldData must remain
	// readable: a rolled back transaction still points at them.
	UpdateFile(ctx context.Context, req UpdateFileRequest) (string, error)
}

type Mail struct {
	To      []string
	From    string
	Subject string
	HTML    string
	Text    string
}

type Mailer interface {
	SendMail(ctx context.Context, m Mail) error
}
