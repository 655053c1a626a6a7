package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const recipientColumns = `id, envelope_id, email, name, role, signing_status, send_status, read_status, token,
	signing_order, signed_at, sent_at, opened_at, created_at`

func scanRecipient(row pgx.Row) (Recipient, error) {
	var i Recipient
	err := row.Scan(
		&i.ID,
		&i.EnvelopeID,
		&i.Email,
		&i.Name,
		&i.Role,
		&i.SigningStatus,
		&i.SendStatus,
		&i.ReadStatus,
		&i.Token,
		&i.SigningOrder,
		&i.SignedAt,
		&i.SentAt,
		&i.OpenedAt,
		&i.CreatedAt,
	)
	return i, err
}

const createRecipient = `
INSERT INTO recipients (id, envelope_id, email, name, role, signing_status, send_status, read_status, token, signing_order, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

type CreateRecipientParams struct {
	ID            uuid.UUID
	EnvelopeID    uuid.UUID
	Email         string
	Name          string
	Role          string
	SigningStatus string
	SendStatus    string
	ReadStatus    string
	Token         string
	SigningOrder  *int32
	CreatedAt     time.Time
}

func (q *Queries) CreateRecipient(ctx context.Context, arg CreateRecipientParams) error {
	_, err := q.db.Exec(ctx, createRecipient,
		arg.ID,
		arg.EnvelopeID,
		arg.Email,
		arg.Name,
		arg.Role,
		arg.SigningStatus,
		arg.SendStatus,
		arg.ReadStatus,
		arg.Token,
		arg.SigningOrder,
		arg.CreatedAt,
	)
	return err
}

const getRecipientByToken = `SELECT ` + recipientColumns + ` FROM recipients WHERE token = $1`

func (q *Queries) GetRecipientByToken(ctx context.Context, token string) (Recipient, error) {
	return scanRecipient(q.db.QueryRow(ctx, getRecipientByToken, token))
}

const listRecipientsByEnvelopeID = `
SELECT ` + recipientColumns + `
FROM recipients
WHERE envelope_id = $1
ORDER BY signing_order NULLS LAST, created_at, id
`

func (q *Queries) ListRecipientsByEnvelopeID(ctx context.Context, envelopeID uuid.UUID) ([]Recipient, error) {
	rows, err := q.db.Query(ctx, listRecipientsByEnvelopeID, envelopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Recipient
	for rows.Next() {
		i, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateRecipientStatus = `
UPDATE recipients
SET signing_status = $2,
    send_status = $3,
    read_status = $4,
    signed_at = $5,
    sent_at = $6,
    opened_at = $7
WHERE id = $1
`

type UpdateRecipientStatusParams struct {
	ID            uuid.UUID
	SigningStatus string
	SendStatus    string
	ReadStatus    string
	SignedAt      *time.Time
	SentAt        *time.Time
	OpenedAt      *time.Time
}

func (q *Queries) UpdateRecipientStatus(ctx context.Context, arg UpdateRecipientStatusParams) (int64, error) {
	result, err := q.db.Exec(ctx, updateRecipientStatus,
		arg.ID,
		arg.SigningStatus,
		arg.SendStatus,
		arg.ReadStatus,
		arg.SignedAt,
		arg.SentAt,
		arg.OpenedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
