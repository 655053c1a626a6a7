package signing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/audit"
	"github.com/information-sharing-networks/esign-demo/internal/crypto"
	"github.com/information-sharing-networks/esign-demo/internal/pdfstamp"
)

const maxNameLength = 255

func hashDocument(pdf []byte) (string, error) {
	checksum, err := crypto.Hash(pdf)
	if err != nil {
		return "", WrapInternalError(err, "failed to hash document")
	}
	return checksum, nil
}

type CreateUserRequest struct {
	Email string
	Name  string
}

func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return User{}, NewValidationError(err.Error())
	}
	u := User{ID: uuid.New(), Email: email, Name: strings.TrimSpace(req.Name), CreatedAt: s.timestamp()}

	err = s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		return mapStoreError(tx.CreateUser(ctx, u), "a user with this email already exists")
	})
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	var u User
	err := s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		u, err = tx.GetUser(ctx, id)
		return mapStoreError(err, "user not found")
	})
	return u, err
}

type DocumentUpload struct {
	Title string
	Data  []byte
}

type CreateEnvelopeRequest struct {
	OwnerUserID  uuid.UUID
	Title        string
	SigningOrder SigningOrder
	DateFormat   string
	Timezone     string
	Documents    []DocumentUpload
	Actor        audit.Actor
}

func (req CreateEnvelopeRequest) validate() error {
	if strings.TrimSpace(req.Title) == "" {
		return NewValidationError("title is required")
	}
	switch req.SigningOrder {
	case "", SigningOrderParallel, SigningOrderSequential:
	default:
		return NewValidationError(fmt.Sprintf("unknown signing order %q", req.SigningOrder))
	}
	if req.DateFormat != "" && !ValidDateFormat(req.DateFormat) {
		return NewValidationError(fmt.Sprintf("unknown date format %q", req.DateFormat))
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			return NewValidationError(fmt.Sprintf("unknown timezone %q", req.Timezone))
		}
	}
	if len(req.Documents) == 0 {
		return NewValidationError("at least one document is required")
	}
	for i, d := range req.Documents {
		n, err := pdfstamp.PageCount(d.Data)
		if err != nil || n == 0 {
			return NewValidationError(fmt.Sprintf("document %d is not a readable PDF", i+1))
		}
	}
	return nil
}

// CreateEnvelope creates a DRAFT envelope owned by req.OwnerUserID with one item per uploaded document.
func (s *Service) CreateEnvelope(ctx context.Context, req CreateEnvelopeRequest) (EnvelopeDetails, error) {
	if err := req.validate(); err != nil {
		return EnvelopeDetails{}, err
	}
	var details EnvelopeDetails
	err := s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		details, err = s.createEnvelopeTx(ctx, tx, req)
		return err
	})
	return details, err
}

func (s *Service) createEnvelopeTx(ctx context.Context, tx Tx, req CreateEnvelopeRequest) (EnvelopeDetails, error) {
	if _, err := tx.GetUser(ctx, req.OwnerUserID); err != nil {
		return EnvelopeDetails{}, mapStoreError(err, "owner not found")
	}

	now := s.timestamp()
	order := req.SigningOrder
	if order == "" {
		order = SigningOrderParallel
	}
	env := Envelope{
		ID:           uuid.New(),
		Title:        strings.TrimSpace(req.Title),
		Status:       EnvelopeStatusDraft,
		OwnerUserID:  req.OwnerUserID,
		SigningOrder: order,
		DateFormat:   req.DateFormat,
		Timezone:     req.Timezone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.CreateEnvelope(ctx, env); err != nil {
		return EnvelopeDetails{}, mapStoreError(err, "failed to create envelope")
	}

	details := EnvelopeDetails{Envelope: env}
	for i, upload := range req.Documents {
		kind, ref, err := s.files.PutFile(ctx, upload.Data)
		if err != nil {
			return EnvelopeDetails{}, WrapInternalError(err, "failed to store document")
		}
		doc := DocumentData{ID: uuid.New(), Type: kind, InitialData: ref, Data: ref, Version: 1, CreatedAt: now, UpdatedAt: now}
		if err := tx.CreateDocumentData(ctx, doc); err != nil {
			return EnvelopeDetails{}, mapStoreError(err, "failed to create document data")
		}

		title := strings.TrimSpace(upload.Title)
		if title == "" {
			title = fmt.Sprintf("%s (%d)", env.Title, i+1)
		}
		item := EnvelopeItem{ID: uuid.New(), EnvelopeID: env.ID, DocumentDataID: doc.ID, Title: title, Order: int32(i + 1)}
		if err := tx.CreateEnvelopeItem(ctx, item); err != nil {
			return EnvelopeDetails{}, mapStoreError(err, "failed to create envelope item")
		}
		details.Items = append(details.Items, item)
	}

	if err := s.record(ctx, tx, audit.Entry{
		EnvelopeID: env.ID,
		Type:       audit.EventDocumentCreated,
		Actor:      req.Actor,
		Data:       map[string]any{"title": env.Title, "documents": len(req.Documents)},
	}); err != nil {
		return EnvelopeDetails{}, err
	}
	return details, nil
}

// lockDraft locks the envelope and checks it can still be edited.
func (s *Service) lockDraft(ctx context.Context, tx Tx, envelopeID uuid.UUID) (*envelopeState, error) {
	st, err := s.loadEnvelopeState(ctx, tx, envelopeID)
	if err != nil {
		return nil, err
	}
	if st.envelope.Status != EnvelopeStatusDraft {
		return nil, NewInvalidStateError("recipients and fields can only be changed while the envelope is a draft")
	}
	return st, nil
}

type AddRecipientRequest struct {
	EnvelopeID   uuid.UUID
	Email        string
	Name         string
	Role         Role
	SigningOrder *int32
}

func (s *Service) AddRecipient(ctx context.Context, req AddRecipientRequest) (Recipient, error) {
	var r Recipient
	err := s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		st, err := s.lockDraft(ctx, tx, req.EnvelopeID)
		if err != nil {
			return err
		}
		r, err = s.addRecipientTx(ctx, tx, st, req)
		return err
	})
	return r, err
}

func (s *Service) addRecipientTx(ctx context.Context, tx Tx, st *envelopeState, req AddRecipientRequest) (Recipient, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return Recipient{}, NewValidationError(err.Error())
	}
	role := req.Role
	if role == "" {
		role = RoleSigner
	}
	if !role.Valid() {
		return Recipient{}, NewValidationError(fmt.Sprintf("unknown role %q", req.Role))
	}
	name := strings.TrimSpace(req.Name)
	if len(name) > maxNameLength {
		return Recipient{}, NewValidationError(fmt.Sprintf("name exceeds %d characters", maxNameLength))
	}
	if req.SigningOrder != nil && *req.SigningOrder < 0 {
		return Recipient{}, NewValidationError("signing order must not be negative")
	}

	token, err := generateToken()
	if err != nil {
		return Recipient{}, WrapInternalError(err, "failed to create recipient token")
	}

	r := Recipient{
		ID:            uuid.New(),
		EnvelopeID:    st.envelope.ID,
		Email:         email,
		Name:          name,
		Role:          role,
		SigningStatus: SigningStatusNotSigned,
		SendStatus:    SendStatusNotSent,
		ReadStatus:    ReadStatusNotOpened,
		Token:         token,
		SigningOrder:  req.SigningOrder,
		CreatedAt:     s.timestamp(),
	}
	if err := tx.CreateRecipient(ctx, r); err != nil {
		if errors.Is(err, ErrDuplicateRecord) {
			return Recipient{}, WrapConflictError(err, "recipient is already on this envelope")
		}
		return Recipient{}, mapStoreError(err, "failed to create recipient")
	}
	st.recipients = append(st.recipients, r)
	return r, nil
}

type AddFieldRequest struct {
	EnvelopeID     uuid.UUID
	EnvelopeItemID uuid.UUID
	RecipientID    uuid.UUID
	Type           FieldType
	Page           int32
	PositionX      float64
	PositionY      float64
	Width          float64
	Height         float64
	Meta           FieldMeta
}

func (s *Service) AddField(ctx context.Context, req AddFieldRequest) (Field, error) {
	var f Field
	err := s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		st, err := s.lockDraft(ctx, tx, req.EnvelopeID)
		if err != nil {
			return err
		}
		f, err = s.addFieldTx(ctx, tx, st, req)
		return err
	})
	return f, err
}

func (s *Service) addFieldTx(ctx context.Context, tx Tx, st *envelopeState, req AddFieldRequest) (Field, error) {
	item, ok := st.item(req.EnvelopeItemID)
	if !ok {
		return Field{}, NewNotFoundError("envelope item not found")
	}
	r, ok := st.recipient(req.RecipientID)
	if !ok {
		return Field{}, NewNotFoundError("recipient not found")
	}
	if !r.Role.Actionable() {
		return Field{}, NewValidationError(fmt.Sprintf("recipients with role %s cannot have fields", r.Role))
	}
	if !req.Type.Valid() {
		return Field{}, NewValidationError(fmt.Sprintf("unknown field type %q", req.Type))
	}

	f := Field{
		ID:             uuid.New(),
		EnvelopeID:     st.envelope.ID,
		EnvelopeItemID: item.ID,
		RecipientID:    r.ID,
		Type:           req.Type,
		Page:           req.Page,
		PositionX:      req.PositionX,
		PositionY:      req.PositionY,
		Width:          req.Width,
		Height:         req.Height,
		Meta:           req.Meta,
		CreatedAt:      s.timestamp(),
	}
	if err := f.Meta.Validate(f.Type); err != nil {
		return Field{}, NewValidationError("invalid field settings", FieldError{FieldID: f.ID, Property: "fieldMeta", Message: err.Error()})
	}

	doc := st.documents[item.ID]
	pdf, err := s.files.GetFile(ctx, doc.Type, doc.InitialData)
	if err != nil {
		return Field{}, WrapInternalError(err, "failed to read document")
	}
	pages, err := pdfstamp.PageCount(pdf)
	if err != nil {
		return Field{}, WrapMalformedDocumentError(err, "failed to read document")
	}
	if err := f.ValidatePlacement(pages); err != nil {
		return Field{}, NewValidationError("invalid field placement", FieldError{FieldID: f.ID, Property: "position", Message: err.Error()})
	}

	if err := tx.CreateField(ctx, f); err != nil {
		return Field{}, mapStoreError(err, "failed to create field")
	}
	st.fields = append(st.fields, f)
	return f, nil
}

type DeleteFieldRequest struct {
	EnvelopeID uuid.UUID
	FieldID    uuid.UUID
}

func (s *Service) DeleteField(ctx context.Context, req DeleteFieldRequest) error {
	return s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		st, err := s.lockDraft(ctx, tx, req.EnvelopeID)
		if err != nil {
			return err
		}
		if st.field(req.FieldID) == nil {
			return NewNotFoundError("field not found")
		}
		return mapStoreError(tx.DeleteField(ctx, req.FieldID), "field not found")
	})
}

// SelfServeField places a field for the recipient it is listed under.
type SelfServeField struct {
	Type      FieldType
	Page      int32
	PositionX float64
	PositionY float64
	Width     float64
	Height    float64
	Meta      FieldMeta
}

type SelfServeRecipient struct {
	Email        string
	Name         string
	Role         Role
	SigningOrder *int32
	Fields       []SelfServeField
}

type SelfServeRequest struct {
	Title        string
	SigningOrder SigningOrder
	DateFormat   string
	Timezone     string
	Document     DocumentUpload
	Recipients   []SelfServeRecipient
}

type SelfServeResult struct {
	Envelope   Envelope
	Items      []EnvelopeItem
	Recipients []Recipient
	Fields     []Field
}

// CreateSelfServeEnvelope creates, populates and sends an envelope in one transaction. The envelope
// is owned by the configured service account. Fields are placed on the single uploaded document.
func (s *Service) CreateSelfServeEnvelope(ctx context.Context, req SelfServeRequest) (SelfServeResult, error) {
	if s.cfg.ServiceAccountUserID == uuid.Nil {
		return SelfServeResult{}, NewInvalidStateError("self-serve signing is not configured")
	}

	createReq := CreateEnvelopeRequest{
		OwnerUserID:  s.cfg.ServiceAccountUserID,
		Title:        req.Title,
		SigningOrder: req.SigningOrder,
		DateFormat:   req.DateFormat,
		Timezone:     req.Timezone,
		Documents:    []DocumentUpload{req.Document},
	}
	if err := createReq.validate(); err != nil {
		return SelfServeResult{}, err
	}
	if len(req.Recipients) == 0 {
		return SelfServeResult{}, NewValidationError("at least one recipient is required")
	}

	var (
		result SelfServeResult
		mails  []Mail
	)
	err := s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		owner, err := tx.GetUser(ctx, s.cfg.ServiceAccountUserID)
		if err != nil {
			return mapStoreError(err, "self-serve service account not found")
		}
		actor := UserActor(owner)
		createReq.Actor = actor

		created, err := s.createEnvelopeTx(ctx, tx, createReq)
		if err != nil {
			return err
		}
		st, err := s.loadEnvelopeState(ctx, tx, created.Envelope.ID)
		if err != nil {
			return err
		}
		itemID := st.items[0].ID

		for _, rr := range req.Recipients {
			r, err := s.addRecipientTx(ctx, tx, st, AddRecipientRequest{
				EnvelopeID:   st.envelope.ID,
				Email:        rr.Email,
				Name:         rr.Name,
				Role:         rr.Role,
				SigningOrder: rr.SigningOrder,
			})
			if err != nil {
				return err
			}
			for _, sf := range rr.Fields {
				if _, err := s.addFieldTx(ctx, tx, st, AddFieldRequest{
					EnvelopeID:     st.envelope.ID,
					EnvelopeItemID: itemID,
					RecipientID:    r.ID,
					Type:           sf.Type,
					Page:           sf.Page,
					PositionX:      sf.PositionX,
					PositionY:      sf.PositionY,
					Width:          sf.Width,
					Height:         sf.Height,
					Meta:           sf.Meta,
				}); err != nil {
					return err
				}
			}
		}

		if mails, err = s.sendTx(ctx, tx, st, actor); err != nil {
			return err
		}

		result = SelfServeResult{Envelope: st.envelope, Items: st.items, Recipients: st.recipients, Fields: st.fields}
		return nil
	})
	if err != nil {
		return SelfServeResult{}, err
	}

	s.deliver(ctx, mails)
	return result, nil
}
