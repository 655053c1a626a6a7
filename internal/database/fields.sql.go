package database

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const createField = `
INSERT INTO fields (id, envelope_id, envelope_item_id, recipient_id, type, page, position_x, position_y, width, height,
    inserted, custom_text, field_meta, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
`

type CreateFieldParams struct {
	ID             uuid.UUID
	EnvelopeID     uuid.UUID
	EnvelopeItemID uuid.UUID
	RecipientID    uuid.UUID
	Type           string
	Page           int32
	PositionX      float64
	PositionY      float64
	Width          float64
	Height         float64
	Inserted       bool
	CustomText     string
	FieldMeta      []byte
	CreatedAt      time.Time
}

func (q *Queries) CreateField(ctx context.Context, arg CreateFieldParams) error {
	_, err := q.db.Exec(ctx, createField,
		arg.ID,
		arg.EnvelopeID,
		arg.EnvelopeItemID,
		arg.RecipientID,
		arg.Type,
		arg.Page,
		arg.PositionX,
		arg.PositionY,
		arg.Width,
		arg.Height,
		arg.Inserted,
		arg.CustomText,
		arg.FieldMeta,
		arg.CreatedAt,
	)
	return err
}

// ListFieldsWithSignaturesByEnvelopeIDRow is a field and its signature, if any.
type ListFieldsWithSignaturesByEnvelopeIDRow struct {
	Field                  Field
	SignatureID            *uuid.UUID
	SignatureRecipientID   *uuid.UUID
	SignatureImageAsBase64 *string
	TypedSignature         *string
	SignatureCreatedAt     *time.Time
}

const listFieldsWithSignaturesByEnvelopeID = `
SELECT f.id, f.envelope_id, f.envelope_item_id, f.recipient_id, f.type, f.page,
    f.position_x::float8, f.position_y::float8, f.width::float8, f.height::float8,
    f.inserted, f.custom_text, f.field_meta, f.created_at,
    s.id, s.recipient_id, s.signature_image_as_base64, s.typed_signature, s.created_at
FROM fields f
LEFT JOIN signatures s ON s.field_id = f.id
WHERE f.envelope_id = $1
ORDER BY f.created_at, f.id
`

func (q *Queries) ListFieldsWithSignaturesByEnvelopeID(ctx context.Context, envelopeID uuid.UUID) ([]ListFieldsWithSignaturesByEnvelopeIDRow, error) {
	rows, err := q.db.Query(ctx, listFieldsWithSignaturesByEnvelopeID, envelopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListFieldsWithSignaturesByEnvelopeIDRow
	for rows.Next() {
		var i ListFieldsWithSignaturesByEnvelopeIDRow
		if err := rows.Scan(
			&i.Field.ID,
			&i.Field.EnvelopeID,
			&i.Field.EnvelopeItemID,
			&i.Field.RecipientID,
			&i.Field.Type,
			&i.Field.Page,
			&i.Field.PositionX,
			&i.Field.PositionY,
			&i.Field.Width,
			&i.Field.Height,
			&i.Field.Inserted,
			&i.Field.CustomText,
			&i.Field.FieldMeta,
			&i.Field.CreatedAt,
			&i.SignatureID,
			&i.SignatureRecipientID,
			&i.SignatureImageAsBase64,
			&i.TypedSignature,
			&i.SignatureCreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateFieldInsertion = `
UPDATE fields
SET inserted = $2,
    custom_text = $3
WHERE id = $1
`

type UpdateFieldInsertionParams struct {
	ID         uuid.UUID
	Inserted   bool
	CustomText string
}

func (q *Queries) UpdateFieldInsertion(ctx context.Context, arg UpdateFieldInsertionParams) (int64, error) {
	result, err := q.db.Exec(ctx, updateFieldInsertion, arg.ID, arg.Inserted, arg.CustomText)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteField = `DELETE FROM fields WHERE id = $1`

func (q *Queries) DeleteField(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteField, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const createSignature = `
INSERT INTO signatures (id, field_id, recipient_id, signature_image_as_base64, typed_signature, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`

type CreateSignatureParams struct {
	ID                     uuid.UUID
	FieldID                uuid.UUID
	RecipientID            uuid.UUID
	SignatureImageAsBase64 *string
	TypedSignature         *string
	CreatedAt              time.Time
}

func (q *Queries) CreateSignature(ctx context.Context, arg CreateSignatureParams) error {
	_, err := q.db.Exec(ctx, createSignature,
		arg.ID,
		arg.FieldID,
		arg.RecipientID,
		arg.SignatureImageAsBase64,
		arg.TypedSignature,
		arg.CreatedAt,
	)
	return err
}

const deleteSignatureByFieldID = `DELETE FROM signatures WHERE field_id = $1`

func (q *Queries) DeleteSignatureByFieldID(ctx context.Context, fieldID uuid.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteSignatureByFieldID, fieldID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
