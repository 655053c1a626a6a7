package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/crypto"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// EnvelopeSummary, RecipientSummary and DocumentSummary are the inputs BuildCertificate needs from the signing domain.
type EnvelopeSummary struct {
	ID          uuid.UUID
	Title       string
	Status      string
	OwnerEmail  string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

type RecipientSummary struct {
	ID            uuid.UUID
	Name          string
	Email         string
	Role          string
	SigningStatus string
	SigningOrder  *int32
}

type DocumentSummary struct {
	ItemID   uuid.UUID
	Title    string
	Checksum string
}

type CertificateField struct {
	FieldID    string    `json:"fieldId"`
	Type       string    `json:"type,omitempty"`
	InsertedAt time.Time `json:"insertedAt"`
}

type CertificateRecipient struct {
	RecipientID   string                      `json:"recipientId"`
	Name          string                      `json:"name"`
	Email         string                      `json:"email"`
	Role          string                      `json:"role"`
	SigningOrder  *int32                      `json:"signingOrder,omitempty"`
	SigningStatus string                      `json:"signingStatus"`
	SentAt        *time.Time                  `json:"sentAt,omitempty"`
	OpenedAt      *time.Time                  `json:"openedAt,omitempty"`
	SignedAt      *time.Time                  `json:"signedAt,omitempty"`
	IPAddress     string                      `json:"ipAddress,omitempty"`
	UserAgent     string                      `json:"userAgent,omitempty"`
	Fields        map[string]CertificateField `json:"fields"`
}

// Certificate is the certificate of completion for an envelope. Recipient data is keyed by
// recipient id and field data by field id.
type Certificate struct {
	EnvelopeID       string                 `json:"envelopeId"`
	Title            string                 `json:"title"`
	Status           string                 `json:"status"`
	OwnerEmail       string                 `json:"ownerEmail,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
	CompletedAt      *time.Time             `json:"completedAt,omitempty"`
	Documents        []CertificateDocument  `json:"documents"`
	Recipients       []CertificateRecipient `json:"recipients"`
	EventCount       int                    `json:"eventCount"`
	AuditLogChecksum string                 `json:"auditLogChecksum"`
	ChainVerified    bool                   `json:"chainVerified"`
	GeneratedAt      time.Time              `json:"generatedAt"`
}

type CertificateDocument struct {
	ItemID   string `json:"itemId"`
	Title    string `json:"title"`
	Checksum string `json:"checksum"`
}

func timePtr(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}

// BuildCertificate projects the audit log onto the envelope's recipients. Events are matched to
// recipients and fields by id, so the result does not depend on the order in which concurrent
// signers were recorded.
func BuildCertificate(env EnvelopeSummary, recipients []RecipientSummary, documents []DocumentSummary, entries []Entry, generatedAt time.Time) Certificate {
	cert := Certificate{
		EnvelopeID:  env.ID.String(),
		Title:       env.Title,
		Status:      env.Status,
		OwnerEmail:  env.OwnerEmail,
		CreatedAt:   env.CreatedAt.UTC(),
		Documents:   make([]CertificateDocument, 0, len(documents)),
		Recipients:  make([]CertificateRecipient, 0, len(recipients)),
		EventCount:  len(entries),
		GeneratedAt: generatedAt.UTC(),
	}
	if env.CompletedAt != nil {
		cert.CompletedAt = timePtr(*env.CompletedAt)
	}
	for _, d := range documents {
		cert.Documents = append(cert.Documents, CertificateDocument{ItemID: d.ItemID.String(), Title: d.Title, Checksum: d.Checksum})
	}
	if len(entries) > 0 {
		cert.AuditLogChecksum = entries[len(entries)-1].Checksum
	}
	cert.ChainVerified = VerifyChain(entries) == nil

	byID := make(map[uuid.UUID]*CertificateRecipient, len(recipients))
	for _, r := range recipients {
		cert.Recipients = append(cert.Recipients, CertificateRecipient{
			RecipientID:   r.ID.String(),
			Name:          r.Name,
			Email:         r.Email,
			Role:          r.Role,
			SigningOrder:  r.SigningOrder,
			SigningStatus: r.SigningStatus,
			Fields:        map[string]CertificateField{},
		})
	}
	for i := range cert.Recipients {
		byID[recipients[i].ID] = &cert.Recipients[i]
	}

	for _, e := range entries {
		if e.RecipientID == nil {
			continue
		}
		r, ok := byID[*e.RecipientID]
		if !ok {
			continue
		}

		switch e.Type {
		case EventDocumentSent:
			if r.SentAt == nil {
				r.SentAt = timePtr(e.CreatedAt)
			}
		case EventDocumentOpened:
			if r.OpenedAt == nil {
				r.OpenedAt = timePtr(e.CreatedAt)
			}
		case EventDocumentFieldInserted:
			if e.FieldID == nil {
				continue
			}
			fieldType, _ := e.Data["fieldType"].(string)
			r.Fields[e.FieldID.String()] = CertificateField{
				FieldID:    e.FieldID.String(),
				Type:       fieldType,
				InsertedAt: e.CreatedAt.UTC(),
			}
		case EventDocumentFieldUninserted:
			if e.FieldID != nil {
				delete(r.Fields, e.FieldID.String())
			}
		case EventDocumentRecipientCompleted:
			r.SignedAt = timePtr(e.CreatedAt)
			r.IPAddress = e.IPAddress
			r.UserAgent = e.UserAgent
		case EventDocumentRecipientReset:
			r.SignedAt = nil
			r.IPAddress = ""
			r.UserAgent = ""
			r.Fields = map[string]CertificateField{}
		}
	}

	sort.SliceStable(cert.Recipients, func(i, j int) bool {
		a, b := cert.Recipients[i], cert.Recipients[j]
		if a.SigningOrder != nil && b.SigningOrder != nil && *a.SigningOrder != *b.SigningOrder {
			return *a.SigningOrder < *b.SigningOrder
		}
		return a.Email < b.Email
	})

	return cert
}

// SignedCertificate is the exported form of a certificate: the certificate itself and a
// JWS over its canonical JSON.
type SignedCertificate struct {
	Certificate Certificate `json:"certificate"`
	KeyID       string      `json:"keyId"`
	JWS         string      `json:"jws"`
}

// SignCertificate signs the canonical JSON of cert with key.
func SignCertificate(cert Certificate, key jwk.Key) (SignedCertificate, error) {
	token, err := crypto.SignJSON(cert, key)
	if err != nil {
		return SignedCertificate{}, fmt.Errorf("failed to sign certificate: %w", err)
	}
	keyID, _ := key.KeyID()
	return SignedCertificate{Certificate: cert, KeyID: keyID, JWS: token}, nil
}

// VerifyCertificate verifies a certificate JWS against set and returns the signed certificate.
func VerifyCertificate(token string, set jwk.Set) (Certificate, error) {
	payload, err := crypto.VerifyJWS(token, set)
	if err != nil {
		return Certificate{}, err
	}
	var cert Certificate
	if err := json.Unmarshal(payload, &cert); err != nil {
		return Certificate{}, fmt.Errorf("failed to decode certificate: %w", err)
	}
	return cert, nil
}
