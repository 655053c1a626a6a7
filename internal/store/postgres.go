package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/audit"
	"github.com/information-sharing-networks/esign-demo/internal/database"
	"github.com/information-sharing-networks/esign-demo/internal/logger"
	"github.com/information-sharing-networks/esign-demo/internal/signing"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// Postgres is a signing.Store backed by a pgx connection pool.
type Postgres struct {
	pool    *pgxpool.Pool
	queries *database.Queries
}

func NewPostgres(pool *pgxpool.Pool, queries *database.Queries) *Postgres {
	return &Postgres{pool: pool, queries: queries}
}

// WithinTx runs fn in a read committed transaction and commits if fn succeeds.
func (p *Postgres) WithinTx(ctx context.Context, fn func(ctx context.Context, tx signing.Tx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			logger.ContextRequestLogger(ctx).Error("Failed to rollback transaction",
				slog.String("error", err.Error()),
			)
		}
	}()

	if err := fn(ctx, &postgresTx{q: p.queries.WithTx(tx)}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapPgError(err))
	}
	return nil
}

// mapPgError translates pgx errors into the signing store sentinels.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", signing.ErrRecordNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s: %w", signing.ErrDuplicateRecord, pgErr.ConstraintName, err)
	}
	return err
}

func requireRow(rows int64, kind string, id uuid.UUID) error {
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, signing.ErrRecordNotFound)
	}
	return nil
}

type postgresTx struct {
	q *database.Queries
}

func (tx *postgresTx) CreateUser(ctx context.Context, u signing.User) error {
	return mapPgError(tx.q.CreateUser(ctx, database.CreateUserParams{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	}))
}

func (tx *postgresTx) GetUser(ctx context.Context, id uuid.UUID) (signing.User, error) {
	u, err := tx.q.GetUserByID(ctx, id)
	if err != nil {
		return signing.User{}, mapPgError(err)
	}
	return signing.User{ID: u.ID, Email: u.Email, Name: u.Name, CreatedAt: u.CreatedAt}, nil
}

func envelopeFromRow(e database.Envelope) signing.Envelope {
	return signing.Envelope{
		ID:              e.ID,
		Title:           e.Title,
		Status:          signing.EnvelopeStatus(e.Status),
		OwnerUserID:     e.OwnerUserID,
		TeamID:          e.TeamID,
		SigningOrder:    signing.SigningOrder(e.SigningOrder),
		DateFormat:      e.DateFormat,
		Timezone:        e.Timezone,
		CompletedAt:     utcPtr(e.CompletedAt),
		RejectedAt:      utcPtr(e.RejectedAt),
		RejectionReason: e.RejectionReason,
		DeletedAt:       utcPtr(e.DeletedAt),
		CreatedAt:       e.CreatedAt.UTC(),
		UpdatedAt:       e.UpdatedAt.UTC(),
	}
}

func (tx *postgresTx) CreateEnvelope(ctx context.Context, e signing.Envelope) error {
	return mapPgError(tx.q.CreateEnvelope(ctx, database.CreateEnvelopeParams{
		ID:           e.ID,
		Title:        e.Title,
		Status:       string(e.Status),
		OwnerUserID:  e.OwnerUserID,
		TeamID:       e.TeamID,
		SigningOrder: string(e.SigningOrder),
		DateFormat:   e.DateFormat,
		Timezone:     e.Timezone,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}))
}

func (tx *postgresTx) GetEnvelope(ctx context.Context, id uuid.UUID) (signing.Envelope, error) {
	e, err := tx.q.GetEnvelopeByID(ctx, id)
	if err != nil {
		return signing.Envelope{}, mapPgError(err)
	}
	return envelopeFromRow(e), nil
}

func (tx *postgresTx) LockEnvelope(ctx context.Context, id uuid.UUID) (signing.Envelope, error) {
	e, err := tx.q.LockEnvelopeByID(ctx, id)
	if err != nil {
		return signing.Envelope{}, mapPgError(err)
	}
	return envelopeFromRow(e), nil
}

func (tx *postgresTx) UpdateEnvelope(ctx context.Context, e signing.Envelope) error {
	_, err := tx.q.UpdateEnvelope(ctx, database.UpdateEnvelopeParams{
		ID:              e.ID,
		Title:           e.Title,
		Status:          string(e.Status),
		SigningOrder:    string(e.SigningOrder),
		DateFormat:      e.DateFormat,
		Timezone:        e.Timezone,
		CompletedAt:     e.CompletedAt,
		RejectedAt:      e.RejectedAt,
		RejectionReason: e.RejectionReason,
		DeletedAt:       e.DeletedAt,
		UpdatedAt:       e.UpdatedAt,
	})
	return mapPgError(err)
}

func documentFromRow(d database.DocumentDatum) signing.DocumentData {
	return signing.DocumentData{
		ID:          d.ID,
		Type:        signing.DocumentDataType(d.Type),
		InitialData: d.InitialData,
		Data:        d.Data,
		Version:     d.Version,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

func (tx *postgresTx) CreateDocumentData(ctx context.Context, d signing.DocumentData) error {
	return mapPgError(tx.q.CreateDocumentData(ctx, database.CreateDocumentDataParams{
		ID:          d.ID,
		Type:        string(d.Type),
		InitialData: d.InitialData,
		Data:        d.Data,
		Version:     d.Version,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}))
}

func (tx *postgresTx) GetDocumentData(ctx context.Context, id uuid.UUID) (signing.DocumentData, error) {
	d, err := tx.q.GetDocumentDataByID(ctx, id)
	if err != nil {
		return signing.DocumentData{}, mapPgError(err)
	}
	return documentFromRow(d), nil
}

func (tx *postgresTx) UpdateDocumentData(ctx context.Context, id uuid.UUID, data string, expectedVersion int64) (signing.DocumentData, error) {
	d, err := tx.q.UpdateDocumentData(ctx, database.UpdateDocumentDataParams{
		ID:              id,
		Data:            data,
		ExpectedVersion: expectedVersion,
		UpdatedAt:       time.Now().UTC(),
	})
	if err == nil {
		return documentFromRow(d), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return signing.DocumentData{}, mapPgError(err)
	}

	// no row: either the id is unknown or the version moved on
	if _, getErr := tx.q.GetDocumentDataByID(ctx, id); getErr != nil {
		return signing.DocumentData{}, mapPgError(getErr)
	}
	return signing.DocumentData{}, fmt.Errorf("document data %s, expected version %d: %w",
		id, expectedVersion, signing.ErrVersionConflict)
}

func (tx *postgresTx) CreateEnvelopeItem(ctx context.Context, item signing.EnvelopeItem) error {
	return mapPgError(tx.q.CreateEnvelopeItem(ctx, database.CreateEnvelopeItemParams{
		ID:             item.ID,
		EnvelopeID:     item.EnvelopeID,
		DocumentDataID: item.DocumentDataID,
		Title:          item.Title,
		ItemOrder:      item.Order,
	}))
}

func (tx *postgresTx) ListEnvelopeItems(ctx context.Context, envelopeID uuid.UUID) ([]signing.EnvelopeItem, error) {
	rows, err := tx.q.ListEnvelopeItemsByEnvelopeID(ctx, envelopeID)
	if err != nil {
		return nil, mapPgError(err)
	}
	items := make([]signing.EnvelopeItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, signing.EnvelopeItem{
			ID:             r.ID,
			EnvelopeID:     r.EnvelopeID,
			DocumentDataID: r.DocumentDataID,
			Title:          r.Title,
			Order:          r.ItemOrder,
		})
	}
	return items, nil
}

func recipientFromRow(r database.Recipient) signing.Recipient {
	return signing.Recipient{
		ID:            r.ID,
		EnvelopeID:    r.EnvelopeID,
		Email:         r.Email,
		Name:          r.Name,
		Role:          signing.Role(r.Role),
		SigningStatus: signing.SigningStatus(r.SigningStatus),
		SendStatus:    signing.SendStatus(r.SendStatus),
		ReadStatus:    signing.ReadStatus(r.ReadStatus),
		Token:         r.Token,
		SigningOrder:  r.SigningOrder,
		SignedAt:      utcPtr(r.SignedAt),
		SentAt:        utcPtr(r.SentAt),
		OpenedAt:      utcPtr(r.OpenedAt),
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

func (tx *postgresTx) CreateRecipient(ctx context.Context, r signing.Recipient) error {
	return mapPgError(tx.q.CreateRecipient(ctx, database.CreateRecipientParams{
		ID:            r.ID,
		EnvelopeID:    r.EnvelopeID,
		Email:         r.Email,
		Name:          r.Name,
		Role:          string(r.Role),
		SigningStatus: string(r.SigningStatus),
		SendStatus:    string(r.SendStatus),
		ReadStatus:    string(r.ReadStatus),
		Token:         r.Token,
		SigningOrder:  r.SigningOrder,
		CreatedAt:     r.CreatedAt,
	}))
}

func (tx *postgresTx) GetRecipientByToken(ctx context.Context, token string) (signing.Recipient, error) {
	r, err := tx.q.GetRecipientByToken(ctx, token)
	if err != nil {
		return signing.Recipient{}, mapPgError(err)
	}
	return recipientFromRow(r), nil
}

func (tx *postgresTx) ListRecipients(ctx context.Context, envelopeID uuid.UUID) ([]signing.Recipient, error) {
	rows, err := tx.q.ListRecipientsByEnvelopeID(ctx, envelopeID)
	if err != nil {
		return nil, mapPgError(err)
	}
	recipients := make([]signing.Recipient, 0, len(rows))
	for _, r := range rows {
		recipients = append(recipients, recipientFromRow(r))
	}
	return recipients, nil
}

func (tx *postgresTx) UpdateRecipient(ctx context.Context, r signing.Recipient) error {
	rows, err := tx.q.UpdateRecipientStatus(ctx, database.UpdateRecipientStatusParams{
		ID:            r.ID,
		SigningStatus: string(r.SigningStatus),
		SendStatus:    string(r.SendStatus),
		ReadStatus:    string(r.ReadStatus),
		SignedAt:      r.SignedAt,
		SentAt:        r.SentAt,
		OpenedAt:      r.OpenedAt,
	})
	if err != nil {
		return mapPgError(err)
	}
	return requireRow(rows, "recipient", r.ID)
}

func (tx *postgresTx) CreateField(ctx context.Context, f signing.Field) error {
	meta, err := json.Marshal(f.Meta)
	if err != nil {
		return fmt.Errorf("failed to marshal field meta: %w", err)
	}
	return mapPgError(tx.q.CreateField(ctx, database.CreateFieldParams{
		ID:             f.ID,
		EnvelopeID:     f.EnvelopeID,
		EnvelopeItemID: f.EnvelopeItemID,
		RecipientID:    f.RecipientID,
		Type:           string(f.Type),
		Page:           f.Page,
		PositionX:      f.PositionX,
		PositionY:      f.PositionY,
		Width:          f.Width,
		Height:         f.Height,
		Inserted:       f.Inserted,
		CustomText:     f.CustomText,
		FieldMeta:      meta,
		CreatedAt:      f.CreatedAt,
	}))
}

func (tx *postgresTx) ListFields(ctx context.Context, envelopeID uuid.UUID) ([]signing.Field, error) {
	rows, err := tx.q.ListFieldsWithSignaturesByEnvelopeID(ctx, envelopeID)
	if err != nil {
		return nil, mapPgError(err)
	}
	fields := make([]signing.Field, 0, len(rows))
	for _, r := range rows {
		f := signing.Field{
			ID:             r.Field.ID,
			EnvelopeID:     r.Field.EnvelopeID,
			EnvelopeItemID: r.Field.EnvelopeItemID,
			RecipientID:    r.Field.RecipientID,
			Type:           signing.FieldType(r.Field.Type),
			Page:           r.Field.Page,
			PositionX:      r.Field.PositionX,
			PositionY:      r.Field.PositionY,
			Width:          r.Field.Width,
			Height:         r.Field.Height,
			Inserted:       r.Field.Inserted,
			CustomText:     r.Field.CustomText,
			CreatedAt:      r.Field.CreatedAt.UTC(),
		}
		if len(r.Field.FieldMeta) > 0 {
			if err := json.Unmarshal(r.Field.FieldMeta, &f.Meta); err != nil {
				return nil, fmt.Errorf("failed to unmarshal meta of field %s: %w", f.ID, err)
			}
		}
		if r.SignatureID != nil {
			f.Signature = &signing.Signature{
				ID:                     *r.SignatureID,
				FieldID:                f.ID,
				RecipientID:            derefUUID(r.SignatureRecipientID),
				SignatureImageAsBase64: r.SignatureImageAsBase64,
				TypedSignature:         r.TypedSignature,
			}
			if r.SignatureCreatedAt != nil {
				f.Signature.CreatedAt = r.SignatureCreatedAt.UTC()
			}
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func (tx *postgresTx) UpdateField(ctx context.Context, f signing.Field) error {
	rows, err := tx.q.UpdateFieldInsertion(ctx, database.UpdateFieldInsertionParams{
		ID:         f.ID,
		Inserted:   f.Inserted,
		CustomText: f.CustomText,
	})
	if err != nil {
		return mapPgError(err)
	}
	return requireRow(rows, "field", f.ID)
}

func (tx *postgresTx) DeleteField(ctx context.Context, id uuid.UUID) error {
	rows, err := tx.q.DeleteField(ctx, id)
	if err != nil {
		return mapPgError(err)
	}
	return requireRow(rows, "field", id)
}

func (tx *postgresTx) CreateSignature(ctx context.Context, s signing.Signature) error {
	return mapPgError(tx.q.CreateSignature(ctx, database.CreateSignatureParams{
		ID:                     s.ID,
		FieldID:                s.FieldID,
		RecipientID:            s.RecipientID,
		SignatureImageAsBase64: s.SignatureImageAsBase64,
		TypedSignature:         s.TypedSignature,
		CreatedAt:              s.CreatedAt,
	}))
}

func (tx *postgresTx) DeleteSignatureByFieldID(ctx context.Context, fieldID uuid.UUID) error {
	_, err := tx.q.DeleteSignatureByFieldID(ctx, fieldID)
	return mapPgError(err)
}

func auditEntryFromRow(r database.AuditLog) (audit.Entry, error) {
	e := audit.Entry{
		ID:               r.ID,
		EnvelopeID:       r.EnvelopeID,
		Sequence:         r.Sequence,
		Type:             audit.EventType(r.Type),
		RecipientID:      r.RecipientID,
		FieldID:          r.FieldID,
		IPAddress:        r.IPAddress,
		UserAgent:        r.UserAgent,
		PreviousChecksum: r.PreviousChecksum,
		Checksum:         r.Checksum,
		CreatedAt:        r.CreatedAt.UTC(),
	}
	if err := json.Unmarshal(r.Actor, &e.Actor); err != nil {
		return audit.Entry{}, fmt.Errorf("failed to unmarshal actor of audit log %s: %w", r.ID, err)
	}
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &e.Data); err != nil {
			return audit.Entry{}, fmt.Errorf("failed to unmarshal data of audit log %s: %w", r.ID, err)
		}
	}
	return e, nil
}

func (tx *postgresTx) LastAuditLog(ctx context.Context, envelopeID uuid.UUID) (audit.Entry, bool, error) {
	r, err := tx.q.GetLastAuditLogByEnvelopeID(ctx, envelopeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return audit.Entry{}, false, nil
	}
	if err != nil {
		return audit.Entry{}, false, mapPgError(err)
	}
	e, err := auditEntryFromRow(r)
	if err != nil {
		return audit.Entry{}, false, err
	}
	return e, true, nil
}

func (tx *postgresTx) AppendAuditLog(ctx context.Context, e audit.Entry) error {
	actor, err := json.Marshal(e.Actor)
	if err != nil {
		return fmt.Errorf("failed to marshal audit actor: %w", err)
	}
	var data []byte
	if e.Data != nil {
		if data, err = json.Marshal(e.Data); err != nil {
			return fmt.Errorf("failed to marshal audit data: %w", err)
		}
	}
	return mapPgError(tx.q.CreateAuditLog(ctx, database.CreateAuditLogParams{
		ID:               e.ID,
		EnvelopeID:       e.EnvelopeID,
		Sequence:         e.Sequence,
		Type:             string(e.Type),
		Actor:            actor,
		RecipientID:      e.RecipientID,
		FieldID:          e.FieldID,
		IPAddress:        e.IPAddress,
		UserAgent:        e.UserAgent,
		Data:             data,
		PreviousChecksum: e.PreviousChecksum,
		Checksum:         e.Checksum,
		CreatedAt:        e.CreatedAt,
	}))
}

func (tx *postgresTx) ListAuditLogs(ctx context.Context, envelopeID uuid.UUID) ([]audit.Entry, error) {
	rows, err := tx.q.ListAuditLogsByEnvelopeID(ctx, envelopeID)
	if err != nil {
		return nil, mapPgError(err)
	}
	entries := make([]audit.Entry, 0, len(rows))
	for _, r := range rows {
		e, err := auditEntryFromRow(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func derefUUID(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
