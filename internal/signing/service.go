// Package signing implements the envelope signing workflow: field validation, resolution of
// field values, insertion of values into the PDF bytes, recipient and envelope state
// transitions and the audit events that accompany them.
//
// Every operation runs in one transaction. Operations that change an envelope lock it first,
// which serializes concurrent signers on the same envelope for the whole mutate-then-persist
// step; DocumentData updates additionally check the version read after taking the lock.
// Notification mail is sent after commit and its failures are only logged.
package signing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/audit"
	"github.com/information-sharing-networks/esign-demo/internal/logger"
)

// MinTxTimeout is the lower bound applied to Config.TxTimeout.
const MinTxTimeout = 30 * time.Second

type Config struct {
	// DefaultDateFormat and DefaultTimezone apply to envelopes that do not set their own.
	DefaultDateFormat string
	DefaultTimezone   string

	// MaxSignatureImageBytes limits decoded signature images. Zero means no limit.
	MaxSignatureImageBytes int

	TxTimeout time.Duration

	// ServiceAccountUserID owns self-serve envelopes. uuid.Nil disables self-serve.
	ServiceAccountUserID uuid.UUID

	MailFrom      string
	PublicBaseURL string
}

type Service struct {
	store  Store
	files  FileStore
	mailer Mailer
	cfg    Config
	now    func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, files FileStore, mailer Mailer, cfg Config, opts ...Option) *Service {
	if cfg.TxTimeout < MinTxTimeout {
		cfg.TxTimeout = MinTxTimeout
	}
	if cfg.DefaultDateFormat == "" {
		cfg.DefaultDateFormat = DefaultDateFormat
	}
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = "UTC"
	}
	s := &Service{store: store, files: files, mailer: mailer, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestMetadata describes the client of a recipient request. It is recorded in the audit log.
type RequestMetadata struct {
	IPAddress string
	UserAgent string
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) withinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()

	err := s.store.WithinTx(ctx, fn)
	if err == nil {
		return nil
	}
	var signingErr *SigningError
	if errors.As(err, &signingErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapInternalError(err, "signing transaction timed out")
	}
	return mapStoreError(err, "transaction failed")
}

func (s *Service) signingContext(env Envelope) (SigningContext, error) {
	format := env.DateFormat
	if format == "" {
		format = s.cfg.DefaultDateFormat
	}
	tz := env.Timezone
	if tz == "" {
		tz = s.cfg.DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return SigningContext{}, WrapInternalError(err, fmt.Sprintf("unknown timezone %q", tz))
	}
	return SigningContext{DateFormat: format, Location: loc}, nil
}

// envelopeState is everything a submission reads, loaded once after the envelope lock is taken.
type envelopeState struct {
	envelope   Envelope
	items      []EnvelopeItem
	recipients []Recipient
	fields     []Field
	// documents is keyed by envelope item id
	documents map[uuid.UUID]DocumentData
}

func (s *Service) loadEnvelopeState(ctx context.Context, tx Tx, envelopeID uuid.UUID) (*envelopeState, error) {
	env, err := tx.LockEnvelope(ctx, envelopeID)
	if err != nil {
		return nil, mapStoreError(err, "envelope not found")
	}
	if env.Deleted() {
		return nil, NewNotFoundError("envelope not found")
	}

	st := &envelopeState{envelope: env, documents: map[uuid.UUID]DocumentData{}}

	if st.items, err = tx.ListEnvelopeItems(ctx, envelopeID); err != nil {
		return nil, mapStoreError(err, "failed to load envelope items")
	}
	if st.recipients, err = tx.ListRecipients(ctx, envelopeID); err != nil {
		return nil, mapStoreError(err, "failed to load recipients")
	}
	if st.fields, err = tx.ListFields(ctx, envelopeID); err != nil {
		return nil, mapStoreError(err, "failed to load fields")
	}
	for _, item := range st.items {
		doc, err := tx.GetDocumentData(ctx, item.DocumentDataID)
		if err != nil {
			return nil, mapStoreError(err, "failed to load document data")
		}
		st.documents[item.ID] = doc
	}
	return st, nil
}

func (st *envelopeState) recipientMap() map[uuid.UUID]Recipient {
	m := make(map[uuid.UUID]Recipient, len(st.recipients))
	for _, r := range st.recipients {
		m[r.ID] = r
	}
	return m
}

func (st *envelopeState) recipient(id uuid.UUID) (Recipient, bool) {
	for _, r := range st.recipients {
		if r.ID == id {
			return r, true
		}
	}
	return Recipient{}, false
}

func (st *envelopeState) setRecipient(r Recipient) {
	for i := range st.recipients {
		if st.recipients[i].ID == r.ID {
			st.recipients[i] = r
		}
	}
}

func (st *envelopeState) field(id uuid.UUID) *Field {
	for i := range st.fields {
		if st.fields[i].ID == id {
			return &st.fields[i]
		}
	}
	return nil
}

func (st *envelopeState) item(id uuid.UUID) (EnvelopeItem, bool) {
	for _, item := range st.items {
		if item.ID == id {
			return item, true
		}
	}
	return EnvelopeItem{}, false
}

// beginRecipientSubmission resolves a recipient token and checks the recipient may act on the envelope now.
// The returned state holds the envelope lock.
func (s *Service) beginRecipientSubmission(ctx context.Context, tx Tx, token string) (*envelopeState, Recipient, error) {
	r, err := tx.GetRecipientByToken(ctx, token)
	if err != nil {
		return nil, Recipient{}, mapStoreError(err, "recipient not found")
	}
	if r.Signed() {
		return nil, Recipient{}, NewAlreadySignedError("recipient has already signed")
	}

	st, err := s.loadEnvelopeState(ctx, tx, r.EnvelopeID)
	if err != nil {
		return nil, Recipient{}, err
	}

	// re-read under the lock: a concurrent submission may have completed first
	r, ok := st.recipient(r.ID)
	if !ok {
		return nil, Recipient{}, NewNotFoundError("recipient not found")
	}
	if r.Signed() {
		return nil, Recipient{}, NewAlreadySignedError("recipient has already signed")
	}

	switch st.envelope.Status {
	case EnvelopeStatusPending:
	case EnvelopeStatusDraft:
		return nil, Recipient{}, NewNotFoundError("recipient not found")
	case EnvelopeStatusRejected:
		return nil, Recipient{}, NewInvalidStateError("envelope has been rejected")
	default:
		return nil, Recipient{}, NewInvalidStateError(fmt.Sprintf("envelope is %s", st.envelope.Status))
	}

	if !r.Role.Actionable() {
		return nil, Recipient{}, NewInvalidStateError(fmt.Sprintf("recipients with role %s do not sign", r.Role))
	}
	if !isRecipientsTurn(st.envelope, r, st.recipients) {
		return nil, Recipient{}, NewNotRecipientsTurnError("waiting for an earlier recipient to sign")
	}
	return st, r, nil
}

// renderIncremental inserts fields into the current bytes of their envelope items.
func (s *Service) renderIncremental(ctx context.Context, tx Tx, st *envelopeState, fields []Field, sc SigningContext) error {
	return s.renderItems(ctx, tx, st, groupByItem(fields), sc, false)
}

// recomputeItems rebuilds each item from its initial bytes by folding every field still inserted.
func (s *Service) recomputeItems(ctx context.Context, tx Tx, st *envelopeState, itemIDs []uuid.UUID, sc SigningContext) error {
	groups := make(map[uuid.UUID][]Field, len(itemIDs))
	for _, id := range itemIDs {
		groups[id] = nil
	}
	for _, f := range st.fields {
		if _, ok := groups[f.EnvelopeItemID]; ok && f.Inserted {
			groups[f.EnvelopeItemID] = append(groups[f.EnvelopeItemID], f)
		}
	}
	return s.renderItems(ctx, tx, st, groups, sc, true)
}

func groupByItem(fields []Field) map[uuid.UUID][]Field {
	groups := map[uuid.UUID][]Field{}
	for _, f := range fields {
		groups[f.EnvelopeItemID] = append(groups[f.EnvelopeItemID], f)
	}
	return groups
}

func (s *Service) renderItems(ctx context.Context, tx Tx, st *envelopeState, groups map[uuid.UUID][]Field, sc SigningContext, fromInitial bool) error {
	recipients := st.recipientMap()

	// deterministic item order
	for _, item := range st.items {
		fields, ok := groups[item.ID]
		if !ok {
			continue
		}
		doc, ok := st.documents[item.ID]
		if !ok {
			return NewInternalError("envelope item has no document data")
		}

		base := doc.Data
		if fromInitial {
			base = doc.InitialData
		}
		pdf, err := s.files.GetFile(ctx, doc.Type, base)
		if err != nil {
			return WrapInternalError(err, "failed to read document")
		}

		out, err := renderFields(pdf, fields, recipients, sc)
		if err != nil {
			if CodeOf(err) == ErrCodeMalformedDocument {
				logger.ContextRequestLogger(ctx).Error("document could not be modified",
					slog.String("envelope_id", st.envelope.ID.String()),
					slog.String("envelope_item_id", item.ID.String()),
					slog.String("error", err.Error()),
				)
			}
			return err
		}

		ref, err := s.files.UpdateFile(ctx, UpdateFileRequest{Type: doc.Type, OldData: doc.Data, NewData: out})
		if err != nil {
			return WrapInternalError(err, "failed to store document")
		}

		updated, err := tx.UpdateDocumentData(ctx, doc.ID, ref, doc.Version)
		if err != nil {
			return mapStoreError(err, "document was modified by a concurrent request")
		}
		st.documents[item.ID] = updated
	}
	return nil
}

func (s *Service) record(ctx context.Context, tx Tx, e audit.Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.timestamp()
	}
	if _, err := audit.Record(ctx, tx, e); err != nil {
		return WrapInternalError(err, "failed to record audit event")
	}
	return nil
}

func recipientActor(r Recipient) audit.Actor {
	return audit.Actor{Type: audit.ActorRecipient, ID: r.ID.String(), Email: r.Email, Name: r.Name}
}

// UserActor is the audit actor for an action taken by a user (an envelope owner or an administrator).
func UserActor(u User) audit.Actor {
	return audit.Actor{Type: audit.ActorUser, ID: u.ID.String(), Email: u.Email, Name: u.Name}
}

func idPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
