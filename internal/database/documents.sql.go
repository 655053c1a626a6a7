package database

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const createDocumentData = `
INSERT INTO document_data (id, type, initial_data, data, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

type CreateDocumentDataParams struct {
	ID          uuid.UUID
	Type        string
	InitialData string
	Data        string
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (q *Queries) CreateDocumentData(ctx context.Context, arg CreateDocumentDataParams) error {
	_, err := q.db.Exec(ctx, createDocumentData,
		arg.ID,
		arg.Type,
		arg.InitialData,
		arg.Data,
		arg.Version,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const getDocumentDataByID = `
SELECT id, type, initial_data, data, version, created_at, updated_at
FROM document_data
WHERE id = $1
`

func (q *Queries) GetDocumentDataByID(ctx context.Context, id uuid.UUID) (DocumentDatum, error) {
	row := q.db.QueryRow(ctx, getDocumentDataByID, id)
	var i DocumentDatum
	err := row.Scan(
		&i.ID,
		&i.Type,
		&i.InitialData,
		&i.Data,
		&i.Version,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

// no row is returned when the version has moved on (or the id is unknown)
const updateDocumentData = `
UPDATE document_data
SET data = $2,
    version = version + 1,
    updated_at = $4
WHERE id = $1 AND version = $3
RETURNING id, type, initial_data, data, version, created_at, updated_at
`

type UpdateDocumentDataParams struct {
	ID              uuid.UUID
	Data            string
	ExpectedVersion int64
	UpdatedAt       time.Time
}

func (q *Queries) UpdateDocumentData(ctx context.Context, arg UpdateDocumentDataParams) (DocumentDatum, error) {
	row := q.db.QueryRow(ctx, updateDocumentData, arg.ID, arg.Data, arg.ExpectedVersion, arg.UpdatedAt)
	var i DocumentDatum
	err := row.Scan(
		&i.ID,
		&i.Type,
		&i.InitialData,
		&i.Data,
		&i.Version,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createEnvelopeItem = `
INSERT INTO envelope_items (id, envelope_id, document_data_id, title, item_order)
VALUES ($1, $2, $3, $4, $5)
`

type CreateEnvelopeItemParams struct {
	ID             uuid.UUID
	EnvelopeID     uuid.UUID
	DocumentDataID uuid.UUID
	Title          string
	ItemOrder      int32
}

func (q *Queries) CreateEnvelopeItem(ctx context.Context, arg CreateEnvelopeItemParams) error {
	_, err := q.db.Exec(ctx, createEnvelopeItem, arg.ID, arg.EnvelopeID, arg.DocumentDataID, arg.Title, arg.ItemOrder)
	return err
}

const listEnvelopeItemsByEnvelopeID = `
SELECT id, envelope_id, document_data_id, title, item_order
FROM envelope_items
WHERE envelope_id = $1
ORDER BY item_order, id
`

func (q *Queries) ListEnvelopeItemsByEnvelopeID(ctx context.Context, envelopeID uuid.UUID) ([]EnvelopeItem, error) {
	rows, err := q.db.Query(ctx, listEnvelopeItemsByEnvelopeID, envelopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []EnvelopeItem
	for rows.Next() {
		var i EnvelopeItem
		if err := rows.Scan(&i.ID, &i.EnvelopeID, &i.DocumentDataID, &i.Title, &i.ItemOrder); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
