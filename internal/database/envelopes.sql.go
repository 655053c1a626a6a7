package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const envelopeColumns = `id, title, status, owner_user_id, team_id, signing_order, date_format, timezone,
	completed_at, rejected_at, rejection_reason, deleted_at, created_at, updated_at`

func scanEnvelope(row pgx.Row) (Envelope, error) {
	var i Envelope
	err := row.Scan(
		&i.ID,
		&i.Title,
		&i.Status,
		&i.OwnerUserID,
		&i.TeamID,
		&i.SigningOrder,
		&i.DateFormat,
		&i.Timezone,
		&i.CompletedAt,
		&i.RejectedAt,
		&i.RejectionReason,
		&i.DeletedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createEnvelope = `
INSERT INTO envelopes (id, title, status, owner_user_id, team_id, signing_order, date_format, timezone, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

type CreateEnvelopeParams struct {
	ID           uuid.UUID
	Title        string
	Status       string
	OwnerUserID  uuid.UUID
	TeamID       *uuid.UUID
	SigningOrder string
	DateFormat   string
	Timezone     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (q *Queries) CreateEnvelope(ctx context.Context, arg CreateEnvelopeParams) error {
	_, err := q.db.Exec(ctx, createEnvelope,
		arg.ID,
		arg.Title,
		arg.Status,
		arg.OwnerUserID,
		arg.TeamID,
		arg.SigningOrder,
		arg.DateFormat,
		arg.Timezone,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const getEnvelopeByID = `SELECT ` + envelopeColumns + ` FROM envelopes WHERE id = $1`

func (q *Queries) GetEnvelopeByID(ctx context.Context, id uuid.UUID) (Envelope, error) {
	return scanEnvelope(q.db.QueryRow(ctx, getEnvelopeByID, id))
}

// the row lock is held until the transaction ends
const lockEnvelopeByID = `SELECT ` + envelopeColumns + ` FROM envelopes WHERE id = $1 FOR UPDATE`

func (q *Queries) LockEnvelopeByID(ctx context.Context, id uuid.UUID) (Envelope, error) {
	return scanEnvelope(q.db.QueryRow(ctx, lockEnvelopeByID, id))
}

const updateEnvelope = `
UPDATE envelopes
SET title = $2,
    status = $3,
    signing_order = $4,
    date_format = $5,
    timezone = $6,
    completed_at = $7,
    rejected_at = $8,
    rejection_reason = $9,
    deleted_at = $10,
    updated_at = $11
WHERE id = $1
RETURNING ` + envelopeColumns

type UpdateEnvelopeParams struct {
	ID              uuid.UUID
	Title           string
	Status          string
	SigningOrder    string
	DateFormat      string
	Timezone        string
	CompletedAt     *time.Time
	RejectedAt      *time.Time
	RejectionReason string
	DeletedAt       *time.Time
	UpdatedAt       time.Time
}

func (q *Queries) UpdateEnvelope(ctx context.Context, arg UpdateEnvelopeParams) (Envelope, error) {
	row := q.db.QueryRow(ctx, updateEnvelope,
		arg.ID,
		arg.Title,
		arg.Status,
		arg.SigningOrder,
		arg.DateFormat,
		arg.Timezone,
		arg.CompletedAt,
		arg.RejectedAt,
		arg.RejectionReason,
		arg.DeletedAt,
		arg.UpdatedAt,
	)
	return scanEnvelope(row)
}
