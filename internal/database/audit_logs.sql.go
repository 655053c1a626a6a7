package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const auditLogColumns = `id, envelope_id, sequence, type, actor, recipient_id, field_id, ip_address, user_agent,
	data, previous_checksum, checksum, created_at`

func scanAuditLog(row pgx.Row) (AuditLog, error) {
	var i AuditLog
	err := row.Scan(
		&i.ID,
		&i.EnvelopeID,
		&i.Sequence,
		&i.Type,
		&i.Actor,
		&i.RecipientID,
		&i.FieldID,
		&i.IPAddress,
		&i.UserAgent,
		&i.Data,
		&i.PreviousChecksum,
		&i.Checksum,
		&i.CreatedAt,
	)
	return i, err
}

const createAuditLog = `
INSERT INTO audit_logs (id, envelope_id, sequence, type, actor, recipient_id, field_id, ip_address, user_agent,
    data, previous_checksum, checksum, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`

type CreateAuditLogParams struct {
	ID               uuid.UUID
	EnvelopeID       uuid.UUID
	Sequence         int64
	Type             string
	Actor            []byte
	RecipientID      *uuid.UUID
	FieldID          *uuid.UUID
	IPAddress        string
	UserAgent        string
	Data             []byte
	PreviousChecksum string
	Checksum         string
	CreatedAt        time.Time
}

func (q *Queries) CreateAuditLog(ctx context.Context, arg CreateAuditLogParams) error {
	_, err := q.db.Exec(ctx, createAuditLog,
		arg.ID,
		arg.EnvelopeID,
		arg.Sequence,
		arg.Type,
		arg.Actor,
		arg.RecipientID,
		arg.FieldID,
		arg.IPAddress,
		arg.UserAgent,
		arg.Data,
		arg.PreviousChecksum,
		arg.Checksum,
		arg.CreatedAt,
	)
	return err
}

const getLastAuditLogByEnvelopeID = `
SELECT ` + auditLogColumns + `
FROM audit_logs
WHERE envelope_id = $1
ORDER BY sequence DESC
LIMIT 1
`

func (q *Queries) GetLastAuditLogByEnvelopeID(ctx context.Context, envelopeID uuid.UUID) (AuditLog, error) {
	return scanAuditLog(q.db.QueryRow(ctx, getLastAuditLogByEnvelopeID, envelopeID))
}

const listAuditLogsByEnvelopeID = `
SELECT ` + auditLogColumns + `
FROM audit_logs
WHERE envelope_id = $1
ORDER BY sequence
`

func (q *Queries) ListAuditLogsByEnvelopeID(ctx context.Context, envelopeID uuid.UUID) ([]AuditLog, error) {
	rows, err := q.db.Query(ctx, listAuditLogsByEnvelopeID, envelopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AuditLog
	for rows.Next() {
		i, err := scanAuditLog(rows)
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
