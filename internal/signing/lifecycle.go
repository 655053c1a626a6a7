package signing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/audit"
)

// sendInvites marks the recipients returned by pendingInvites as sent, records a DOCUMENT_SENT
// event for each and returns their invitation mail.
func (s *Service) sendInvites(ctx context.Context, tx Tx, st *envelopeState, actor audit.Actor) ([]Mail, error) {
	now := s.timestamp()
	var mails []Mail
	for _, r := range pendingInvites(st.envelope, st.recipients) {
		r.SendStatus = SendStatusSent
		r.SentAt = &now
		if err := tx.UpdateRecipient(ctx, r); err != nil {
			return nil, mapStoreError(err, "failed to update recipient")
		}
		st.setRecipient(r)

		if err := s.record(ctx, tx, audit.Entry{
			EnvelopeID:  st.envelope.ID,
			Type:        audit.EventDocumentSent,
			Actor:       actor,
			RecipientID: idPtr(r.ID),
			Data:        map[string]any{"role": string(r.Role)},
		}); err != nil {
			return nil, err
		}
		mails = append(mails, s.inviteMail(st.envelope, r))
	}
	return mails, nil
}

type SendEnvelopeRequest struct {
	EnvelopeID uuid.UUID
	Actor      audit.Actor
}

// SendEnvelope moves a draft envelope to PENDING and invites the first recipients.
// It requires at least one actionable recipient and a signature field for every signer.
func (s *Service) SendEnvelope(ctx context.Context, req SendEnvelopeRequest) (Envelope, error) {
	var (
		out   Envelope
		mails []Mail
	)
	err := s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		st, err := s.loadEnvelopeState(ctx, tx, req.EnvelopeID)
		if err != nil {
			return err
		}
		mails, err = s.sendTx(ctx, tx, st, req.Actor)
		out = st.envelope
		return err
	})
	if err != nil {
		return Envelope{}, err
	}

	s.deliver(ctx, mails)
	return out, nil
}

func (s *Service) sendTx(ctx context.Context, tx Tx, st *envelopeState, actor audit.Actor) ([]Mail, error) {
	if st.envelope.Status != EnvelopeStatusDraft {
		return nil, NewInvalidStateError(fmt.Sprintf("envelope is %s, only draft envelopes can be sent", st.envelope.Status))
	}

	actionable := 0
	for _, r := range st.recipients {
		if r.Role.Actionable() {
			actionable++
		}
	}
	if actionable == 0 {
		return nil, NewValidationError("envelope needs at least one recipient who signs or approves")
	}
	if len(st.fields) == 0 {
		return nil, NewValidationError("envelope has no fields")
	}

	var missing []string
	for _, r := range st.recipients {
		if r.Role != RoleSigner {
			continue
		}
		hasSignature := false
		for _, f := range st.fields {
			if f.RecipientID == r.ID && f.Type == FieldTypeSignature {
				hasSignature = true
				break
			}
		}
		if !hasSignature {
			missing = append(missing, r.Email)
		}
	}
	if len(missing) > 0 {
		return nil, NewValidationError("signers without a signature field: " + strings.Join(missing, ", "))
	}

	if err := st.envelope.transition(EnvelopeStatusPending, s.timestamp()); err != nil {
		return nil, err
	}
	if err := tx.UpdateEnvelope(ctx, st.envelope); err != nil {
		return nil, mapStoreError(err, "failed to update envelope")
	}

	return s.sendInvites(ctx, tx, st, actor)
}

type RejectEnvelopeRequest struct {
	Token    string
	Reason   string
	Metadata RequestMetadata
}

// RejectEnvelope lets an approver reject a pending envelope. Rejection is terminal.
func (s *Service) RejectEnvelope(ctx context.Context, req RejectEnvelopeRequest) (Envelope, error) {
	var (
		out   Envelope
		mails []Mail
	)
	err := s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		st, r, err := s.beginRecipientSubmission(ctx, tx, req.Token)
		if err != nil {
			return err
		}
		if r.Role != RoleApprover {
			return NewInvalidStateError("only approvers can reject an envelope")
		}
		reason := strings.TrimSpace(req.Reason)
		if reason == "" {
			return NewValidationError("a reason is required to reject an envelope")
		}

		now := s.timestamp()
		if err := st.envelope.transition(EnvelopeStatusRejected, now); err != nil {
			return err
		}
		st.envelope.RejectionReason = reason
		if err := tx.UpdateEnvelope(ctx, st.envelope); err != nil {
			return mapStoreError(err, "failed to update envelope")
		}

		if err := s.record(ctx, tx, audit.Entry{
			EnvelopeID:  st.envelope.ID,
			Type:        audit.EventDocumentRejected,
			Actor:       recipientActor(r),
			RecipientID: idPtr(r.ID),
			IPAddress:   req.Metadata.IPAddress,
			UserAgent:   req.Metadata.UserAgent,
			Data:        map[string]any{"reason": reason},
		}); err != nil {
			return err
		}

		owner, err := tx.GetUser(ctx, st.envelope.OwnerUserID)
		if err != nil {
			return mapStoreError(err, "failed to load envelope owner")
		}
		mails = []Mail{s.rejectionMail(st.envelope, owner, r, reason)}
		out = st.envelope
		return nil
	})
	if err != nil {
		return Envelope{}, err
	}

	s.deliver(ctx, mails)
	return out, nil
}

// SigningView is what a recipient sees when they open their signing link.
type SigningView struct {
	Envelope  Envelope
	Recipient Recipient
	Items     []EnvelopeItem
	// Fields holds the recipient's own fields.
	Fields []Field
	// CanSign is false when the recipient has signed, does not sign, or is waiting for an earlier recipient.
	CanSign bool
}

type OpenDocumentRequest struct {
	Token    string
	Metadata RequestMetadata
}

// OpenDocument returns the signing view for a token. The first call records DOCUMENT_OPENED.
func (s *Service) OpenDocument(ctx context.Context, req OpenDocumentRequest) (SigningView, error) {
	var view SigningView
	err := s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		st, r, err := s.openRecipientEnvelope(ctx, tx, req.Token)
		if err != nil {
			return err
		}

		if r.ReadStatus != ReadStatusOpened {
			now := s.timestamp()
			r.ReadStatus = ReadStatusOpened
			r.OpenedAt = &now
			if err := tx.UpdateRecipient(ctx, r); err != nil {
				return mapStoreError(err, "failed to update recipient")
			}
			st.setRecipient(r)
			if err := s.record(ctx, tx, audit.Entry{
				EnvelopeID:  st.envelope.ID,
				Type:        audit.EventDocumentOpened,
				Actor:       recipientActor(r),
				RecipientID: idPtr(r.ID),
				IPAddress:   req.Metadata.IPAddress,
				UserAgent:   req.Metadata.UserAgent,
			}); err != nil {
				return err
			}
		}

		view = SigningView{
			Envelope:  st.envelope,
			Recipient: r,
			Items:     st.items,
			CanSign: st.envelope.Status == EnvelopeStatusPending && !r.Signed() &&
				r.Role.Actionable() && isRecipientsTurn(st.envelope, r, st.recipients),
		}
		for _, f := range st.fields {
			if f.RecipientID == r.ID {
				view.Fields = append(view.Fields, f)
			}
		}
		return nil
	})
	return view, err
}

// openRecipientEnvelope resolves a token to its recipient and a sent, undeleted envelope.
func (s *Service) openRecipientEnvelope(ctx context.Context, tx Tx, token string) (*envelopeState, Recipient, error) {
	r, err := tx.GetRecipientByToken(ctx, token)
	if err != nil {
		return nil, Recipient{}, mapStoreError(err, "recipient not found")
	}
	st, err := s.loadEnvelopeState(ctx, tx, r.EnvelopeID)
	if err != nil {
		return nil, Recipient{}, err
	}
	if st.envelope.Status == EnvelopeStatusDraft {
		return nil, Recipient{}, NewNotFoundError("recipient not found")
	}
	r, ok := st.recipient(r.ID)
	if !ok {
		return nil, Recipient{}, NewNotFoundError("recipient not found")
	}
	return st, r, nil
}

// GetSigningDocument returns the current bytes of one envelope item for a recipient.
func (s *Service) GetSigningDocument(ctx context.Context, token string, itemID uuid.UUID) ([]byte, error) {
	var pdf []byte
	err := s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		st, _, err := s.openRecipientEnvelope(ctx, tx, token)
		if err != nil {
			return err
		}
		pdf, err = s.currentBytes(ctx, st, itemID)
		return err
	})
	return pdf, err
}

func (s *Service) currentBytes(ctx context.Context, st *envelopeState, itemID uuid.UUID) ([]byte, error) {
	if _, ok := st.item(itemID); !ok {
		return nil, NewNotFoundError("document not found")
	}
	doc := st.documents[itemID]
	pdf, err := s.files.GetFile(ctx, doc.Type, doc.Data)
	if err != nil {
		return nil, WrapInternalError(err, "failed to read document")
	}
	return pdf, nil
}

type DeleteEnvelopeRequest struct {
	EnvelopeID uuid.UUID
	Actor      audit.Actor
}

// DeleteEnvelope soft deletes an envelope. Its status and data are kept; it is no longer
// reachable through recipient tokens.
func (s *Service) DeleteEnvelope(ctx context.Context, req DeleteEnvelopeRequest) error {
	return s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		env, err := tx.LockEnvelope(ctx, req.EnvelopeID)
		if err != nil {
			return mapStoreError(err, "envelope not found")
		}
		if env.Deleted() {
			return NewNotFoundError("envelope not found")
		}

		now := s.timestamp()
		env.DeletedAt = &now
		env.UpdatedAt = now
		if err := tx.UpdateEnvelope(ctx, env); err != nil {
			return mapStoreError(err, "failed to update envelope")
		}
		return s.record(ctx, tx, audit.Entry{
			EnvelopeID: env.ID,
			Type:       audit.EventDocumentDeleted,
			Actor:      req.Actor,
			Data:       map[string]any{"status": string(env.Status)},
		})
	})
}

// EnvelopeDetails is the administrative view of an envelope.
type EnvelopeDetails struct {
	Envelope   Envelope
	Items      []EnvelopeItem
	Recipients []Recipient
	Fields     []Field
}

func (s *Service) GetEnvelopeDetails(ctx context.Context, envelopeID uuid.UUID) (EnvelopeDetails, error) {
	var details EnvelopeDetails
	err := s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		st, err := s.loadEnvelopeState(ctx, tx, envelopeID)
		if err != nil {
			return err
		}
		details = EnvelopeDetails{Envelope: st.envelope, Items: st.items, Recipients: st.recipients, Fields: st.fields}
		return nil
	})
	return details, err
}

// GetEnvelopeDocument returns the current bytes of an envelope item.
func (s *Service) GetEnvelopeDocument(ctx context.Context, envelopeID, itemID uuid.UUID) ([]byte, error) {
	var pdf []byte
	err := s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		st, err := s.loadEnvelopeState(ctx, tx, envelopeID)
		if err != nil {
			return err
		}
		pdf, err = s.currentBytes(ctx, st, itemID)
		return err
	})
	return pdf, err
}

// AuditLog returns the envelope's audit entries in sequence order.
func (s *Service) AuditLog(ctx context.Context, envelopeID uuid.UUID) ([]audit.Entry, error) {
	var entries []audit.Entry
	err := s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetEnvelope(ctx, envelopeID); err != nil {
			return mapStoreError(err, "envelope not found")
		}
		var err error
		entries, err = tx.ListAuditLogs(ctx, envelopeID)
		if err != nil {
			return mapStoreError(err, "failed to load audit log")
		}
		return nil
	})
	return entries, err
}

// Certificate projects the audit log of an envelope onto its recipients. The document checksums
// are SHA-256 digests of the current bytes of each item.
func (s *Service) Certificate(ctx context.Context, envelopeID uuid.UUID) (audit.Certificate, error) {
	var cert audit.Certificate
	err := s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		st, err := s.loadEnvelopeState(ctx, tx, envelopeID)
		if err != nil {
			return err
		}
		entries, err := tx.ListAuditLogs(ctx, envelopeID)
		if err != nil {
			return mapStoreError(err, "failed to load audit log")
		}
		owner, err := tx.GetUser(ctx, st.envelope.OwnerUserID)
		if err != nil {
			return mapStoreError(err, "failed to load envelope owner")
		}

		docs := make([]audit.DocumentSummary, 0, len(st.items))
		for _, item := range st.items {
			pdf, err := s.currentBytes(ctx, st, item.ID)
			if err != nil {
				return err
			}
			checksum, err := hashDocument(pdf)
			if err != nil {
				return err
			}
			docs = append(docs, audit.DocumentSummary{ItemID: item.ID, Title: item.Title, Checksum: checksum})
		}

		recipients := make([]audit.RecipientSummary, 0, len(st.recipients))
		for _, r := range st.recipients {
			recipients = append(recipients, audit.RecipientSummary{
				ID:            r.ID,
				Name:          r.Name,
				Email:         r.Email,
				Role:          string(r.Role),
				SigningStatus: string(r.SigningStatus),
				SigningOrder:  r.SigningOrder,
			})
		}

		cert = audit.BuildCertificate(audit.EnvelopeSummary{
			ID:          st.envelope.ID,
			Title:       st.envelope.Title,
			Status:      string(st.envelope.Status),
			OwnerEmail:  owner.Email,
			CreatedAt:   st.envelope.CreatedAt,
			CompletedAt: st.envelope.CompletedAt,
		}, recipients, docs, entries, s.timestamp())
		return nil
	})
	return cert, err
}
