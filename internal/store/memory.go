package store

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/audit"
	"github.com/information-sharing-networks/esign-demo/internal/signing"
)

type memoryData struct {
	users       map[uuid.UUID]signing.User
	envelopes   map[uuid.UUID]signing.Envelope
	documents   map[uuid.UUID]signing.DocumentData
	items       map[uuid.UUID]signing.EnvelopeItem
	recipients  map[uuid.UUID]signing.Recipient
	fields      map[uuid.UUID]signing.Field
	signatures  map[uuid.UUID]signing.Signature // keyed by field id
	auditLogs   map[uuid.UUID][]audit.Entry     // keyed by envelope id
	fieldSeq    map[uuid.UUID]int64             // insertion order of fields
	nextFieldNo int64
}

func newMemoryData() *memoryData {
	return &memoryData{
		users:      map[uuid.UUID]signing.User{},
		envelopes:  map[uuid.UUID]signing.Envelope{},
		documents:  map[uuid.UUID]signing.DocumentData{},
		items:      map[uuid.UUID]signing.EnvelopeItem{},
		recipients: map[uuid.UUID]signing.Recipient{},
		fields:     map[uuid.UUID]signing.Field{},
		signatures: map[uuid.UUID]signing.Signature{},
		auditLogs:  map[uuid.UUID][]audit.Entry{},
		fieldSeq:   map[uuid.UUID]int64{},
	}
}

func (d *memoryData) clone() *memoryData {
	c := &memoryData{
		users:       maps.Clone(d.users),
		envelopes:   maps.Clone(d.envelopes),
		documents:   maps.Clone(d.documents),
		items:       maps.Clone(d.items),
		recipients:  maps.Clone(d.recipients),
		fields:      maps.Clone(d.fields),
		signatures:  maps.Clone(d.signatures),
		auditLogs:   make(map[uuid.UUID][]audit.Entry, len(d.auditLogs)),
		fieldSeq:    maps.Clone(d.fieldSeq),
		nextFieldNo: d.nextFieldNo,
	}
	for k, v := range d.auditLogs {
		c.auditLogs[k] = slices.Clone(v)
	}
	return c
}

// Memory is an in-memory signing.Store. Transactions are fully serialized.
type Memory struct {
	mu   sync.Mutex
	data *memoryData
}

func NewMemory() *Memory {
	return &Memory{data: newMemoryData()}
}

func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context, tx signing.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := m.data.clone()
	if err := fn(ctx, &memoryTx{data: m.data}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

type memoryTx struct {
	data *memoryData
}

func notFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, signing.ErrRecordNotFound)
}

func duplicate(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, signing.ErrDuplicateRecord)
}

func (tx *memoryTx) CreateUser(ctx context.Context, u signing.User) error {
	for _, existing := range tx.data.users {
		if existing.Email == u.Email {
			return duplicate("user", u.Email)
		}
	}
	if _, ok := tx.data.users[u.ID]; ok {
		return duplicate("user", u.ID)
	}
	tx.data.users[u.ID] = u
	return nil
}

func (tx *memoryTx) GetUser(ctx context.Context, id uuid.UUID) (signing.User, error) {
	u, ok := tx.data.users[id]
	if !ok {
		return signing.User{}, notFound("user", id)
	}
	return u, nil
}

func (tx *memoryTx) CreateEnvelope(ctx context.Context, e signing.Envelope) error {
	if _, ok := tx.data.users[e.OwnerUserID]; !ok {
		return fmt.Errorf("envelope owner %s does not exist", e.OwnerUserID)
	}
	if _, ok := tx.data.envelopes[e.ID]; ok {
		return duplicate("envelope", e.ID)
	}
	tx.data.envelopes[e.ID] = e
	return nil
}

func (tx *memoryTx) GetEnvelope(ctx context.Context, id uuid.UUID) (signing.Envelope, error) {
	e, ok := tx.data.envelopes[id]
	if !ok {
		return signing.Envelope{}, notFound("envelope", id)
	}
	return e, nil
}

// LockEnvelope is a read: the store mutex already serializes transactions.
func (tx *memoryTx) LockEnvelope(ctx context.Context, id uuid.UUID) (signing.Envelope, error) {
	return tx.GetEnvelope(ctx, id)
}

func (tx *memoryTx) UpdateEnvelope(ctx context.Context, e signing.Envelope) error {
	existing, ok := tx.data.envelopes[e.ID]
	if !ok {
		return notFound("envelope", e.ID)
	}
	e.OwnerUserID = existing.OwnerUserID
	e.TeamID = existing.TeamID
	e.CreatedAt = existing.CreatedAt
	tx.data.envelopes[e.ID] = e
	return nil
}

func (tx *memoryTx) CreateDocumentData(ctx context.Context, d signing.DocumentData) error {
	if _, ok := tx.data.documents[d.ID]; ok {
		return duplicate("document data", d.ID)
	}
	tx.data.documents[d.ID] = d
	return nil
}

func (tx *memoryTx) GetDocumentData(ctx context.Context, id uuid.UUID) (signing.DocumentData, error) {
	d, ok := tx.data.documents[id]
	if !ok {
		return signing.DocumentData{}, notFound("document data", id)
	}
	return d, nil
}

func (tx *memoryTx) UpdateDocumentData(ctx context.Context, id uuid.UUID, data string, expectedVersion int64) (signing.DocumentData, error) {
	d, ok := tx.data.documents[id]
	if !ok {
		return signing.DocumentData{}, notFound("document data", id)
	}
	if d.Version != expectedVersion {
		return signing.DocumentData{}, fmt.Errorf("document data %s at version %d, expected %d: %w",
			id, d.Version, expectedVersion, signing.ErrVersionConflict)
	}
	d.Data = data
	d.Version++
	tx.data.documents[id] = d
	return d, nil
}

func (tx *memoryTx) CreateEnvelopeItem(ctx context.Context, item signing.EnvelopeItem) error {
	if _, ok := tx.data.envelopes[item.EnvelopeID]; !ok {
		return fmt.Errorf("envelope %s does not exist", item.EnvelopeID)
	}
	if _, ok := tx.data.documents[item.DocumentDataID]; !ok {
		return fmt.Errorf("document data %s does not exist", item.DocumentDataID)
	}
	if _, ok := tx.data.items[item.ID]; ok {
		return duplicate("envelope item", item.ID)
	}
	tx.data.items[item.ID] = item
	return nil
}

func (tx *memoryTx) ListEnvelopeItems(ctx context.Context, envelopeID uuid.UUID) ([]signing.EnvelopeItem, error) {
	var items []signing.EnvelopeItem
	for _, item := range tx.data.items {
		if item.EnvelopeID == envelopeID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Order != items[j].Order {
			return items[i].Order < items[j].Order
		}
		return items[i].ID.String() < items[j].ID.String()
	})
	return items, nil
}

func (tx *memoryTx) CreateRecipient(ctx context.Context, r signing.Recipient) error {
	if _, ok := tx.data.envelopes[r.EnvelopeID]; !ok {
		return fmt.Errorf("envelope %s does not exist", r.EnvelopeID)
	}
	for _, existing := range tx.data.recipients {
		if existing.Token == r.Token {
			return duplicate("recipient token", "")
		}
		if existing.EnvelopeID == r.EnvelopeID && existing.Email == r.Email {
			return duplicate("recipient", r.Email)
		}
	}
	tx.data.recipients[r.ID] = r
	return nil
}

func (tx *memoryTx) GetRecipientByToken(ctx context.Context, token string) (signing.Recipient, error) {
	for _, r := range tx.data.recipients {
		if r.Token == token {
			return r, nil
		}
	}
	return signing.Recipient{}, notFound("recipient", "token")
}

func (tx *memoryTx) ListRecipients(ctx context.Context, envelopeID uuid.UUID) ([]signing.Recipient, error) {
	var recipients []signing.Recipient
	for _, r := range tx.data.recipients {
		if r.EnvelopeID == envelopeID {
			recipients = append(recipients, r)
		}
	}
	// same order as the postgres query: signing order (nulls last), creation, id
	sort.Slice(recipients, func(i, j int) bool {
		a, b := recipients[i], recipients[j]
		switch {
		case a.SigningOrder != nil && b.SigningOrder == nil:
			return true
		case a.SigningOrder == nil && b.SigningOrder != nil:
			return false
		case a.SigningOrder != nil && *a.SigningOrder != *b.SigningOrder:
			return *a.SigningOrder < *b.SigningOrder
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return recipients, nil
}

// UpdateRecipient persists the status columns only.
func (tx *memoryTx) UpdateRecipient(ctx context.Context, r signing.Recipient) error {
	existing, ok := tx.data.recipients[r.ID]
	if !ok {
		return notFound("recipient", r.ID)
	}
	existing.SigningStatus = r.SigningStatus
	existing.SendStatus = r.SendStatus
	existing.ReadStatus = r.ReadStatus
	existing.SignedAt = r.SignedAt
	existing.SentAt = r.SentAt
	existing.OpenedAt = r.OpenedAt
	tx.data.recipients[r.ID] = existing
	return nil
}

func (tx *memoryTx) CreateField(ctx context.Context, f signing.Field) error {
	if _, ok := tx.data.items[f.EnvelopeItemID]; !ok {
		return fmt.Errorf("envelope item %s does not exist", f.EnvelopeItemID)
	}
	if _, ok := tx.data.recipients[f.RecipientID]; !ok {
		return fmt.Errorf("recipient %s does not exist", f.RecipientID)
	}
	if _, ok := tx.data.fields[f.ID]; ok {
		return duplicate("field", f.ID)
	}
	f.Signature = nil
	tx.data.fields[f.ID] = f
	tx.data.nextFieldNo++
	tx.data.fieldSeq[f.ID] = tx.data.nextFieldNo
	return nil
}

func (tx *memoryTx) ListFields(ctx context.Context, envelopeID uuid.UUID) ([]signing.Field, error) {
	var fields []signing.Field
	for _, f := range tx.data.fields {
		if f.EnvelopeID != envelopeID {
			continue
		}
		if sig, ok := tx.data.signatures[f.ID]; ok {
			f.Signature = &sig
		}
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool {
		return tx.data.fieldSeq[fields[i].ID] < tx.data.fieldSeq[fields[j].ID]
	})
	return fields, nil
}

// UpdateField persists Inserted and CustomText.
func (tx *memoryTx) UpdateField(ctx context.Context, f signing.Field) error {
	existing, ok := tx.data.fields[f.ID]
	if !ok {
		return notFound("field", f.ID)
	}
	existing.Inserted = f.Inserted
	existing.CustomText = f.CustomText
	tx.data.fields[f.ID] = existing
	return nil
}

func (tx *memoryTx) DeleteField(ctx context.Context, id uuid.UUID) error {
	if _, ok := tx.data.fields[id]; !ok {
		return notFound("field", id)
	}
	delete(tx.data.fields, id)
	delete(tx.data.signatures, id)
	delete(tx.data.fieldSeq, id)
	return nil
}

func (tx *memoryTx) CreateSignature(ctx context.Context, s signing.Signature) error {
	if !s.Valid() {
		return fmt.Errorf("signature must have exactly one of image or typed text")
	}
	if _, ok := tx.data.fields[s.FieldID]; !ok {
		return fmt.Errorf("field %s does not exist", s.FieldID)
	}
	if _, ok := tx.data.signatures[s.FieldID]; ok {
		return duplicate("signature for field", s.FieldID)
	}
	tx.data.signatures[s.FieldID] = s
	return nil
}

func (tx *memoryTx) DeleteSignatureByFieldID(ctx context.Context, fieldID uuid.UUID) error {
	delete(tx.data.signatures, fieldID)
	return nil
}

func (tx *memoryTx) LastAuditLog(ctx context.Context, envelopeID uuid.UUID) (audit.Entry, bool, error) {
	entries := tx.data.auditLogs[envelopeID]
	if len(entries) == 0 {
		return audit.Entry{}, false, nil
	}
	return entries[len(entries)-1], true, nil
}

// AppendAuditLog stores the entry as the database would: Data goes through a JSON round trip.
func (tx *memoryTx) AppendAuditLog(ctx context.Context, e audit.Entry) error {
	entries := tx.data.auditLogs[e.EnvelopeID]
	for _, existing := range entries {
		if existing.Sequence == e.Sequence {
			return duplicate("audit log sequence", e.Sequence)
		}
	}
	if e.Data != nil {
		b, err := json.Marshal(e.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal audit data: %w", err)
		}
		var data map[string]any
		if err := json.Unmarshal(b, &data); err != nil {
			return fmt.Errorf("failed to unmarshal audit data: %w", err)
		}
		e.Data = data
	}
	tx.data.auditLogs[e.EnvelopeID] = append(entries, e)
	return nil
}

func (tx *memoryTx) ListAuditLogs(ctx context.Context, envelopeID uuid.UUID) ([]audit.Entry, error) {
	return slices.Clone(tx.data.auditLogs[envelopeID]), nil
}
