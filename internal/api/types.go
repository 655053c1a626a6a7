package api

// types.go defines the request and response bodies of the signing API.

import (
	"time"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/signing"
)

// SignFieldRequest is the body of PUT /api/v1/sign/{token}/fields/{fieldID}.
//
// Signatures are sent either as a base64 image (isBase64=true, optionally as a data URL) or as
// typed text. Checkbox fields use selected; radio and dropdown fields accept value or a single selected option.
type SignFieldRequest struct {
	Value    string   `json:"value" example:"Ada Lovelace"`
	IsBase64 bool     `json:"isBase64"`
	Selected []string `json:"selected,omitempty"`
}

// FieldSubmission is one entry of CompleteSigningRequest.
type FieldSubmission struct {
	FieldID  uuid.UUID `json:"fieldId"`
	Value    string    `json:"value"`
	IsBase64 bool      `json:"isBase64"`
	Selected []string  `json:"selected,omitempty"`
}

// ToFieldInput converts the submission into the typed signing input.
func (s FieldSubmission) ToFieldInput() (signing.FieldInput, error) {
	return signing.ParseFieldInput(s.FieldID, s.Value, s.IsBase64, s.Selected)
}

// CompleteSigningRequest is the body of POST /api/v1/sign/{token}/complete.
// Fields may be empty when every required field was already signed individually.
type CompleteSigningRequest struct {
	Fields []FieldSubmission `json:"fields"`
}

// CompleteSigningResponse is returned once a recipient has signed.
type CompleteSigningResponse struct {
	// DocumentToken gives read access to the signed documents
	DocumentToken   string                 `json:"documentToken"`
	EnvelopeID      uuid.UUID              `json:"envelopeId"`
	EnvelopeStatus  signing.EnvelopeStatus `json:"envelopeStatus" example:"COMPLETED"`
	RecipientStatus signing.SigningStatus  `json:"recipientStatus" example:"SIGNED"`
}

// RejectRequest is the body of POST /api/v1/sign/{token}/reject.
type RejectRequest struct {
	Reason string `json:"reason" example:"the payment terms are wrong"`
}

// SigningEnvelope is the part of the envelope a recipient is allowed to see.
type SigningEnvelope struct {
	ID           uuid.UUID              `json:"id"`
	Title        string                 `json:"title"`
	Status       signing.EnvelopeStatus `json:"status"`
	SigningOrder signing.SigningOrder   `json:"signingOrder"`
	CompletedAt  *time.Time             `json:"completedAt,omitempty"`
}

// ItemResponse describes one document of an envelope.
type ItemResponse struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
	Order int32     `json:"order"`
	// PDFURL is relative to the API root
	PDFURL string `json:"pdfUrl"`
}

// SigningViewResponse is returned by GET /api/v1/sign/{token}.
type SigningViewResponse struct {
	Envelope  SigningEnvelope   `json:"envelope"`
	Recipient signing.Recipient `json:"recipient"`
	Items     []ItemResponse    `json:"items"`
	Fields    []signing.Field   `json:"fields"`
	CanSign   bool              `json:"canSign"`
}

// NewSigningViewResponse builds the response for a signing view opened with token.
func NewSigningViewResponse(token string, view signing.SigningView) SigningViewResponse {
	items := make([]ItemResponse, 0, len(view.Items))
	for _, it := range view.Items {
		items = append(items, ItemResponse{
			ID:     it.ID,
			Title:  it.Title,
			Order:  it.Order,
			PDFURL: "/api/v1/sign/" + token + "/items/" + it.ID.String() + "/pdf",
		})
	}
	fields := view.Fields
	if fields == nil {
		fields = []signing.Field{}
	}
	return SigningViewResponse{
		Envelope: SigningEnvelope{
			ID:           view.Envelope.ID,
			Title:        view.Envelope.Title,
			Status:       view.Envelope.Status,
			SigningOrder: view.Envelope.SigningOrder,
			CompletedAt:  view.Envelope.CompletedAt,
		},
		Recipient: view.Recipient,
		Items:     items,
		Fields:    fields,
		CanSign:   view.CanSign,
	}
}

// CreateUserRequest is the body of POST /admin/users.
type CreateUserRequest struct {
	Email string `json:"email" example:"owner@example.com"`
	Name  string `json:"name" example:"Owner"`
}

// DocumentUploadRequest carries one PDF. Data is base64 encoded in JSON.
type DocumentUploadRequest struct {
	Title string `json:"title"`
	Data  []byte `json:"data" swaggertype:"string" format:"base64"`
}

// CreateEnvelopeRequest is the body of POST /admin/envelopes.
type CreateEnvelopeRequest struct {
	OwnerUserID  uuid.UUID               `json:"ownerUserId"`
	Title        string                  `json:"title"`
	SigningOrder signing.SigningOrder    `json:"signingOrder,omitempty" example:"PARALLEL"`
	DateFormat   string                  `json:"dateFormat,omitempty" example:"yyyy-MM-dd"`
	Timezone     string                  `json:"timezone,omitempty" example:"Europe/London"`
	Documents    []DocumentUploadRequest `json:"documents"`
}

// AddRecipientRequest is the body of POST /admin/envelopes/{envelopeID}/recipients.
type AddRecipientRequest struct {
	Email        string       `json:"email"`
	Name         string       `json:"name"`
	Role         signing.Role `json:"role,omitempty" example:"SIGNER"`
	SigningOrder *int32       `json:"signingOrder,omitempty"`
}

// AddFieldRequest is the body of POST /admin/envelopes/{envelopeID}/fields.
// Positions and sizes are fractions (0-1) of the page, measured from the top left corner. Page is 0-indexed.
type AddFieldRequest struct {
	EnvelopeItemID uuid.UUID         `json:"envelopeItemId"`
	RecipientID    uuid.UUID         `json:"recipientId"`
	Type           signing.FieldType `json:"type" example:"SIGNATURE"`
	Page           int32             `json:"page"`
	PositionX      float64           `json:"positionX"`
	PositionY      float64           `json:"positionY"`
	Width          float64           `json:"width"`
	Height         float64           `json:"height"`
	FieldMeta      signing.FieldMeta `json:"fieldMeta"`
}

// RecipientResponse is the administrative view of a recipient, including the signing link.
type RecipientResponse struct {
	signing.Recipient
	SigningURL string `json:"signingUrl"`
}

// EnvelopeResponse is the administrative view of an envelope.
type EnvelopeResponse struct {
	Envelope   signing.Envelope       `json:"envelope"`
	Items      []signing.EnvelopeItem `json:"items"`
	Recipients []RecipientResponse    `json:"recipients"`
	Fields     []signing.Field        `json:"fields"`
}

// NewEnvelopeResponse builds the administrative view. signingURL returns the link for a recipient.
func NewEnvelopeResponse(env signing.Envelope, items []signing.EnvelopeItem, recipients []signing.Recipient, fields []signing.Field, signingURL func(signing.Recipient) string) EnvelopeResponse {
	resp := EnvelopeResponse{
		Envelope:   env,
		Items:      items,
		Recipients: make([]RecipientResponse, 0, len(recipients)),
		Fields:     fields,
	}
	if resp.Items == nil {
		resp.Items = []signing.EnvelopeItem{}
	}
	if resp.Fields == nil {
		resp.Fields = []signing.Field{}
	}
	for _, r := range recipients {
		resp.Recipients = append(resp.Recipients, RecipientResponse{Recipient: r, SigningURL: signingURL(r)})
	}
	return resp
}

// SelfServeFieldRequest places a field for the recipient it is listed under, on the uploaded document.
type SelfServeFieldRequest struct {
	Type      signing.FieldType `json:"type"`
	Page      int32             `json:"page"`
	PositionX float64           `json:"positionX"`
	PositionY float64           `json:"positionY"`
	Width     float64           `json:"width"`
	Height    float64           `json:"height"`
	FieldMeta signing.FieldMeta `json:"fieldMeta"`
}

type SelfServeRecipientRequest struct {
	Email        string                  `json:"email"`
	Name         string                  `json:"name"`
	Role         signing.Role            `json:"role,omitempty"`
	SigningOrder *int32                  `json:"signingOrder,omitempty"`
	Fields       []SelfServeFieldRequest `json:"fields"`
}

// SelfServeRequest is the body of POST /api/v1/self-serve/envelopes.
type SelfServeRequest struct {
	Title        string                      `json:"title"`
	SigningOrder signing.SigningOrder        `json:"signingOrder,omitempty"`
	DateFormat   string                      `json:"dateFormat,omitempty"`
	Timezone     string                      `json:"timezone,omitempty"`
	Document     DocumentUploadRequest       `json:"document"`
	Recipients   []SelfServeRecipientRequest `json:"recipients"`
}

// ToSigningRequest converts the body into the signing service request.
func (req SelfServeRequest) ToSigningRequest() signing.SelfServeRequest {
	out := signing.SelfServeRequest{
		Title:        req.Title,
		SigningOrder: req.SigningOrder,
		DateFormat:   req.DateFormat,
		Timezone:     req.Timezone,
		Document:     signing.DocumentUpload{Title: req.Document.Title, Data: req.Document.Data},
		Recipients:   make([]signing.SelfServeRecipient, 0, len(req.Recipients)),
	}
	for _, r := range req.Recipients {
		rec := signing.SelfServeRecipient{
			Email:        r.Email,
			Name:         r.Name,
			Role:         r.Role,
			SigningOrder: r.SigningOrder,
			Fields:       make([]signing.SelfServeField, 0, len(r.Fields)),
		}
		for _, f := range r.Fields {
			rec.Fields = append(rec.Fields, signing.SelfServeField{
				Type:      f.Type,
				Page:      f.Page,
				PositionX: f.PositionX,
				PositionY: f.PositionY,
				Width:     f.Width,
				Height:    f.Height,
				Meta:      f.FieldMeta,
			})
		}
		out.Recipients = append(out.Recipients, rec)
	}
	return out
}
