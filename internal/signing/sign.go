package signing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/audit"
)

type SignFieldRequest struct {
	Token    string
	Input    FieldInput
	Metadata RequestMetadata
}

type SignAllFieldsRequest struct {
	Token string
	// Fields may be empty when every required field was already signed with SignField.
	Fields   []FieldInput
	Metadata RequestMetadata
}

type SignResult struct {
	// DocumentToken gives read access to the signed document (the recipient's token).
	DocumentToken   string
	EnvelopeID      uuid.UUID
	EnvelopeStatus  EnvelopeStatus
	RecipientStatus SigningStatus
}

type submission struct {
	field   *Field
	content fieldContent
}

// validateSubmissions checks every input before anything is written. Unknown fields are reported
// as not found and already inserted fields as already signed; value problems are collected and
// returned together as one validation error.
func (s *Service) validateSubmissions(st *envelopeState, r Recipient, inputs []FieldInput) ([]submission, error) {
	var (
		subs     []submission
		problems []FieldError
		seen     = map[uuid.UUID]bool{}
	)
	for _, in := range inputs {
		f := st.field(in.FieldID)
		if f == nil || f.RecipientID != r.ID {
			return nil, NewNotFoundError("field not found")
		}
		if seen[f.ID] {
			problems = append(problems, FieldError{FieldID: f.ID, Message: "field submitted more than once"})
			continue
		}
		seen[f.ID] = true

		if f.Inserted {
			return nil, NewAlreadySignedError("field has already been signed")
		}

		content, err := validateFieldValue(*f, in.Value, s.cfg.MaxSignatureImageBytes)
		if err != nil {
			problems = append(problems, FieldError{FieldID: f.ID, Message: err.Error()})
			continue
		}
		subs = append(subs, submission{field: f, content: content})
	}

	if len(problems) > 0 {
		return nil, NewValidationError("one or more fields are invalid", problems...)
	}
	return subs, nil
}

// applySubmissions stores the submitted values on their fields (creating Signature rows) without
// marking them inserted, and returns the fields in their new state.
func (s *Service) applySubmissions(ctx context.Context, tx Tx, r Recipient, subs []submission) ([]Field, error) {
	now := s.timestamp()
	fields := make([]Field, 0, len(subs))
	for _, sub := range subs {
		f := sub.field
		if f.Type == FieldTypeSignature {
			sig := Signature{
				ID:                     uuid.New(),
				FieldID:                f.ID,
				RecipientID:            r.ID,
				SignatureImageAsBase64: sub.content.imageBase64,
				TypedSignature:         sub.content.typed,
				CreatedAt:              now,
			}
			if err := tx.CreateSignature(ctx, sig); err != nil {
				if errors.Is(err, ErrDuplicateRecord) {
					return nil, NewAlreadySignedError("field has already been signed")
				}
				return nil, mapStoreError(err, "failed to store signature")
			}
			f.Signature = &sig
		} else {
			f.CustomText = sub.content.customText
		}
		fields = append(fields, *f)
	}
	return fields, nil
}

// markInserted sets the checkpoint flag on fields whose values are now in the document bytes,
// and records one audit event per field.
func (s *Service) markInserted(ctx context.Context, tx Tx, st *envelopeState, fields []Field, actor audit.Actor, meta RequestMetadata) error {
	for _, f := range fields {
		stored := st.field(f.ID)
		stored.Inserted = true
		stored.CustomText = f.CustomText
		stored.Signature = f.Signature

		if err := tx.UpdateField(ctx, *stored); err != nil {
			return mapStoreError(err, "failed to update field")
		}

		if err := s.record(ctx, tx, audit.Entry{
			EnvelopeID:  st.envelope.ID,
			Type:        audit.EventDocumentFieldInserted,
			Actor:       actor,
			RecipientID: idPtr(f.RecipientID),
			FieldID:     idPtr(f.ID),
			IPAddress:   meta.IPAddress,
			UserAgent:   meta.UserAgent,
			Data:        fieldAuditData(*stored),
		}); err != nil {
			return err
		}
	}
	return nil
}

func fieldAuditData(f Field) map[string]any {
	data := map[string]any{
		"fieldType":      string(f.Type),
		"envelopeItemId": f.EnvelopeItemID.String(),
		"page":           f.Page,
	}
	switch {
	case f.Signature != nil && f.Signature.TypedSignature != nil:
		data["signatureKind"] = "typed"
	case f.Signature != nil:
		data["signatureKind"] = "image"
	case f.CustomText != "":
		data["value"] = f.CustomText
	}
	return data
}

// SignField inserts a single recipient entered field. Computed fields (date, name, email) are
// filled when the recipient completes signing and are rejected here.
func (s *Service) SignField(ctx context.Context, req SignFieldRequest) error {
	return s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		st, r, err := s.beginRecipientSubmission(ctx, tx, req.Token)
		if err != nil {
			return err
		}
		sc, err := s.signingContext(st.envelope)
		if err != nil {
			return err
		}

		subs, err := s.validateSubmissions(st, r, []FieldInput{req.Input})
		if err != nil {
			return err
		}
		fields, err := s.applySubmissions(ctx, tx, r, subs)
		if err != nil {
			return err
		}
		if err := s.renderIncremental(ctx, tx, st, fields, sc); err != nil {
			return err
		}
		return s.markInserted(ctx, tx, st, fields, recipientActor(r), req.Metadata)
	})
}

// SignAllFields inserts the submitted fields, fills the computed fields of every signed recipient,
// marks the recipient signed and completes the envelope when no actionable recipient is left.
// The whole submission is one transaction: on any error nothing is persisted.
func (s *Service) SignAllFields(ctx context.Context, req SignAllFieldsRequest) (SignResult, error) {
	var (
		result SignResult
		mails  []Mail
	)

	err := s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		st, r, err := s.beginRecipientSubmission(ctx, tx, req.Token)
		if err != nil {
			return err
		}
		sc, err := s.signingContext(st.envelope)
		if err != nil {
			return err
		}

		subs, err := s.validateSubmissions(st, r, req.Fields)
		if err != nil {
			return err
		}

		submitted := make(map[uuid.UUID]bool, len(subs))
		for _, sub := range subs {
			submitted[sub.field.ID] = true
		}
		var missing []FieldError
		for _, f := range st.fields {
			if f.RecipientID != r.ID || f.Inserted || f.autoFilled() || !f.IsRequired() || submitted[f.ID] {
				continue
			}
			missing = append(missing, FieldError{FieldID: f.ID, Message: "field is required"})
		}
		if len(missing) > 0 {
			return NewValidationError("required fields have not been completed", missing...)
		}

		now := s.timestamp()
		r.SigningStatus = SigningStatusSigned
		r.SignedAt = &now
		st.setRecipient(r)

		fields, err := s.applySubmissions(ctx, tx, r, subs)
		if err != nil {
			return err
		}

		// computed and read only fields of every signed recipient that are not in the document yet
		var autoFields []Field
		recipients := st.recipientMap()
		for _, f := range st.fields {
			owner := recipients[f.RecipientID]
			if f.Inserted || !f.autoFilled() || !owner.Signed() {
				continue
			}
			text, err := autoFillText(f, owner, sc)
			if err != nil {
				return err
			}
			f.CustomText = text
			autoFields = append(autoFields, f)
		}

		if err := s.renderIncremental(ctx, tx, st, append(fields, autoFields...), sc); err != nil {
			return err
		}
		if err := s.markInserted(ctx, tx, st, fields, recipientActor(r), req.Metadata); err != nil {
			return err
		}
		for _, f := range autoFields {
			actor := audit.SystemActor()
			meta := RequestMetadata{}
			if f.RecipientID == r.ID {
				actor, meta = recipientActor(r), req.Metadata
			}
			if err := s.markInserted(ctx, tx, st, []Field{f}, actor, meta); err != nil {
				return err
			}
		}

		if err := tx.UpdateRecipient(ctx, r); err != nil {
			return mapStoreError(err, "failed to update recipient")
		}
		if err := s.record(ctx, tx, audit.Entry{
			EnvelopeID:  st.envelope.ID,
			Type:        audit.EventDocumentRecipientCompleted,
			Actor:       recipientActor(r),
			RecipientID: idPtr(r.ID),
			IPAddress:   req.Metadata.IPAddress,
			UserAgent:   req.Metadata.UserAgent,
			Data:        map[string]any{"role": string(r.Role)},
		}); err != nil {
			return err
		}

		if allActionableSigned(st.recipients) {
			if err := st.envelope.transition(EnvelopeStatusCompleted, now); err != nil {
				return err
			}
			if err := tx.UpdateEnvelope(ctx, st.envelope); err != nil {
				return mapStoreError(err, "failed to update envelope")
			}
			if err := s.record(ctx, tx, audit.Entry{
				EnvelopeID: st.envelope.ID,
				Type:       audit.EventDocumentCompleted,
				Actor:      audit.SystemActor(),
			}); err != nil {
				return err
			}

			owner, err := tx.GetUser(ctx, st.envelope.OwnerUserID)
			if err != nil {
				return mapStoreError(err, "failed to load envelope owner")
			}
			mails = s.completionMails(st.envelope, owner, st.recipients)
		} else {
			// sequential envelopes: invite whoever is next
			invites, err := s.sendInvites(ctx, tx, st, audit.SystemActor())
			if err != nil {
				return err
			}
			mails = invites
		}

		result = SignResult{
			DocumentToken:   r.Token,
			EnvelopeID:      st.envelope.ID,
			EnvelopeStatus:  st.envelope.Status,
			RecipientStatus: r.SigningStatus,
		}
		return nil
	})
	if err != nil {
		return SignResult{}, err
	}

	s.deliver(ctx, mails)
	return result, nil
}
