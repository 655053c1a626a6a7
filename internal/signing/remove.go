package signing

import (
	"context"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/audit"
)

type RemoveSignedFieldRequest struct {
	Token    string
	FieldID  uuid.UUID
	Metadata RequestMetadata
}

// uninsert clears the stored value of f, deleting its Signature, and resets the inserted flag.
func (s *Service) uninsert(ctx context.Context, tx Tx, f *Field) error {
	if f.Type == FieldTypeSignature && f.Signature != nil {
		if err := tx.DeleteSignatureByFieldID(ctx, f.ID); err != nil {
			return mapStoreError(err, "signature not found")
		}
		f.Signature = nil
	}
	f.CustomText = ""
	f.Inserted = false
	if err := tx.UpdateField(ctx, *f); err != nil {
		return mapStoreError(err, "failed to update field")
	}
	return nil
}

// RemoveSignedField reverses the insertion of one field the recipient entered. The item's bytes are
// recomputed from its initial data with every field that is still inserted.
func (s *Service) RemoveSignedField(ctx context.Context, req RemoveSignedFieldRequest) error {
	return s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		st, r, err := s.beginRecipientSubmission(ctx, tx, req.Token)
		if err != nil {
			return err
		}
		sc, err := s.signingContext(st.envelope)
		if err != nil {
			return err
		}

		f := st.field(req.FieldID)
		if f == nil || f.RecipientID != r.ID {
			return NewNotFoundError("field not found")
		}
		if f.autoFilled() {
			return NewValidationError("field cannot be removed", FieldError{FieldID: f.ID, Message: "field is filled automatically"})
		}
		if !f.Inserted {
			return NewValidationError("field cannot be removed", FieldError{FieldID: f.ID, Message: "field has not been signed"})
		}

		if err := s.uninsert(ctx, tx, f); err != nil {
			return err
		}
		if err := s.recomputeItems(ctx, tx, st, []uuid.UUID{f.EnvelopeItemID}, sc); err != nil {
			return err
		}

		return s.record(ctx, tx, audit.Entry{
			EnvelopeID:  st.envelope.ID,
			Type:        audit.EventDocumentFieldUninserted,
			Actor:       recipientActor(r),
			RecipientID: idPtr(r.ID),
			FieldID:     idPtr(f.ID),
			IPAddress:   req.Metadata.IPAddress,
			UserAgent:   req.Metadata.UserAgent,
			Data:        map[string]any{"fieldType": string(f.Type)},
		})
	})
}

type ResetRecipientRequest struct {
	EnvelopeID  uuid.UUID
	RecipientID uuid.UUID
	Actor       audit.Actor
}

// ResetRecipient returns a signed recipient to NOT_SIGNED: their fields are uninserted, the affected
// items are recomputed from their initial data and a completed envelope goes back to PENDING.
// The recipient is invited again.
func (s *Service) ResetRecipient(ctx context.Context, req ResetRecipientRequest) (Recipient, error) {
	var (
		out   Recipient
		mails []Mail
	)

	err := s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		st, err := s.loadEnvelopeState(ctx, tx, req.EnvelopeID)
		if err != nil {
			return err
		}
		if st.envelope.Status != EnvelopeStatusPending && st.envelope.Status != EnvelopeStatusCompleted {
			return NewInvalidStateError("only pending or completed envelopes can be reset")
		}
		sc, err := s.signingContext(st.envelope)
		if err != nil {
			return err
		}

		r, ok := st.recipient(req.RecipientID)
		if !ok {
			return NewNotFoundError("recipient not found")
		}
		if !r.Signed() {
			return NewInvalidStateError("recipient has not signed")
		}

		now := s.timestamp()
		r.SigningStatus = SigningStatusNotSigned
		r.SignedAt = nil
		st.setRecipient(r)
		if err := tx.UpdateRecipient(ctx, r); err != nil {
			return mapStoreError(err, "failed to update recipient")
		}

		var items []uuid.UUID
		seenItem := map[uuid.UUID]bool{}
		for i := range st.fields {
			f := &st.fields[i]
			if f.RecipientID != r.ID || !f.Inserted {
				continue
			}
			if err := s.uninsert(ctx, tx, f); err != nil {
				return err
			}
			if !seenItem[f.EnvelopeItemID] {
				seenItem[f.EnvelopeItemID] = true
				items = append(items, f.EnvelopeItemID)
			}
			if err := s.record(ctx, tx, audit.Entry{
				EnvelopeID:  st.envelope.ID,
				Type:        audit.EventDocumentFieldUninserted,
				Actor:       req.Actor,
				RecipientID: idPtr(r.ID),
				FieldID:     idPtr(f.ID),
				Data:        map[string]any{"fieldType": string(f.Type)},
			}); err != nil {
				return err
			}
		}

		if err := s.recomputeItems(ctx, tx, st, items, sc); err != nil {
			return err
		}

		if st.envelope.Status == EnvelopeStatusCompleted {
			if err := st.envelope.transition(EnvelopeStatusPending, now); err != nil {
				return err
			}
			if err := tx.UpdateEnvelope(ctx, st.envelope); err != nil {
				return mapStoreError(err, "failed to update envelope")
			}
		}

		if err := s.record(ctx, tx, audit.Entry{
			EnvelopeID:  st.envelope.ID,
			Type:        audit.EventDocumentRecipientReset,
			Actor:       req.Actor,
			RecipientID: idPtr(r.ID),
		}); err != nil {
			return err
		}

		out = r
		if r.SendStatus == SendStatusSent && isRecipientsTurn(st.envelope, r, st.recipients) {
			mails = append(mails, s.inviteMail(st.envelope, r))
		}
		return nil
	})
	if err != nil {
		return Recipient{}, err
	}

	s.deliver(ctx, mails)
	return out, nil
}
